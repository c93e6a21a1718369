package devnet

import (
	"context"
	"fmt"

	"github.com/hyperledger/fabric-chaincode-go/v2/shim"

	"legitify/internal/identity/enroll"
	idmodels "legitify/internal/identity/models"
	"legitify/internal/topology"
)

// Member is an organization joining the devnet with the wallet labels it needs.
type Member struct {
	Organization string
	MSPID        string
	Labels       []string
}

// Wallet receives the identities minted during bootstrap.
type Wallet interface {
	Put(ctx context.Context, identity idmodels.Identity) error
}

// Bootstrap deploys cc, builds a topology for every member on channel and
// enrolls one self-signed identity per member label into wallet.
func Bootstrap(ctx context.Context, n *Network, cc shim.Chaincode, channel, contract string, members []Member, wallet Wallet) (map[string]topology.Topology, error) {
	if _, err := n.Deploy(channel, contract, cc); err != nil {
		return nil, err
	}

	topos := make(map[string]topology.Topology, len(members))
	for _, m := range members {
		org := topology.NormalizeOrganization(m.Organization)
		topos[org] = topology.Topology{
			Organization: org,
			MSPID:        m.MSPID,
			Peers:        []topology.Endpoint{{Address: "devnet-peer:7051"}},
			Channels:     []topology.Channel{{Name: channel, Contracts: []string{contract}}},
		}
		for _, label := range m.Labels {
			identity, err := enroll.SelfSigned{MSPID: m.MSPID, Label: label}.Enroll(ctx, org)
			if err != nil {
				return nil, fmt.Errorf("devnet: enroll %s/%s: %w", org, label, err)
			}
			if err := wallet.Put(ctx, identity); err != nil {
				return nil, fmt.Errorf("devnet: store %s/%s: %w", org, label, err)
			}
		}
	}
	return topos, nil
}
