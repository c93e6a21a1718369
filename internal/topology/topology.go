// Package topology maps organization names to the ledger network endpoints
// and deployments they may use. Resolution fails closed: an organization that
// is not configured is rejected, never defaulted.
package topology

import (
	"slices"
	"strings"
)

// Endpoint is a network address reachable over gRPC.
type Endpoint struct {
	Address    string `mapstructure:"address" validate:"required,hostname_port"`
	TLSCACert  string `mapstructure:"tls_ca_cert"`
	ServerName string `mapstructure:"server_name"`
}

// Channel lists the contracts deployed on one channel.
type Channel struct {
	Name      string   `mapstructure:"name" validate:"required"`
	Contracts []string `mapstructure:"contracts" validate:"required,min=1,dive,required"`
}

// Topology is the connection profile of one organization.
type Topology struct {
	Organization string     `mapstructure:"-"`
	MSPID        string     `mapstructure:"msp_id" validate:"required"`
	Peers        []Endpoint `mapstructure:"peers" validate:"required,min=1,dive"`
	Orderers     []Endpoint `mapstructure:"orderers" validate:"dive"`
	CA           *Endpoint  `mapstructure:"ca" validate:"omitempty"`
	Channels     []Channel  `mapstructure:"channels" validate:"required,min=1,dive"`
}

// NormalizeOrganization canonicalizes an organization name for lookups.
func NormalizeOrganization(org string) string {
	return strings.ToLower(strings.TrimSpace(org))
}

// GatewayPeer returns the peer the gateway client connects to.
func (t Topology) GatewayPeer() Endpoint {
	return t.Peers[0]
}

// HasChannel reports whether the organization may use the channel.
func (t Topology) HasChannel(channel string) bool {
	return slices.ContainsFunc(t.Channels, func(c Channel) bool { return c.Name == channel })
}

// HasContract reports whether contract is deployed on channel for this organization.
func (t Topology) HasContract(channel, contract string) bool {
	for _, c := range t.Channels {
		if c.Name == channel {
			return slices.Contains(c.Contracts, contract)
		}
	}
	return false
}

func (t Topology) clone() Topology {
	t.Peers = slices.Clone(t.Peers)
	t.Orderers = slices.Clone(t.Orderers)
	if t.CA != nil {
		ca := *t.CA
		t.CA = &ca
	}
	channels := make([]Channel, len(t.Channels))
	for i, c := range t.Channels {
		channels[i] = Channel{Name: c.Name, Contracts: slices.Clone(c.Contracts)}
	}
	t.Channels = channels
	return t
}
