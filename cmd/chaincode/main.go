// Command chaincode runs the credential contract on a Fabric peer, either
// launched by the peer or as an external chaincode service.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/hyperledger/fabric-chaincode-go/v2/shim"

	"legitify/internal/ledger/contract"
	"legitify/internal/platform/logger"
)

type serverConfig struct {
	CCID      string
	Address   string
	TLS       string
	TLSKey    string
	TLSCert   string
	TLSCACert string
	LogLevel  string
}

func main() {
	cfg := serverConfig{
		CCID:      os.Getenv("CHAINCODE_ID"),
		Address:   os.Getenv("CHAINCODE_SERVER_ADDRESS"),
		TLS:       os.Getenv("CHAINCODE_TLS"),
		TLSKey:    os.Getenv("CHAINCODE_TLS_KEY"),
		TLSCert:   os.Getenv("CHAINCODE_TLS_CERT"),
		TLSCACert: os.Getenv("CHAINCODE_TLS_CA_CERTS"),
		LogLevel:  os.Getenv("CHAINCODE_LOG_LEVEL"),
	}
	// stdout belongs to the peer protocol in embedded mode.
	log := logger.NewWithWriter(os.Stderr, cfg.LogLevel)
	cc := contract.New(log)

	if cfg.CCID == "" || cfg.Address == "" {
		log.Info("starting credential chaincode in peer-launched mode")
		if err := shim.Start(cc); err != nil {
			fail(log, "cannot start chaincode", err)
		}
		return
	}

	tlsProps, err := cfg.tlsProperties()
	if err != nil {
		fail(log, "invalid chaincode TLS configuration", err)
	}
	server := &shim.ChaincodeServer{
		CCID:     cfg.CCID,
		Address:  cfg.Address,
		CC:       cc,
		TLSProps: tlsProps,
	}
	log.Info("starting credential chaincode as a service",
		"ccid", cfg.CCID,
		"address", cfg.Address,
		"tls", !tlsProps.Disabled,
	)
	if err := server.Start(); err != nil {
		fail(log, "chaincode server stopped", err)
	}
}

// tlsProperties enables TLS when CHAINCODE_TLS is true or a key is supplied.
func (c serverConfig) tlsProperties() (shim.TLSProperties, error) {
	if c.TLS == "" && c.TLSKey != "" {
		c.TLS = "true"
	}
	if c.TLS == "" {
		return shim.TLSProperties{Disabled: true}, nil
	}
	enabled, err := strconv.ParseBool(c.TLS)
	if err != nil {
		return shim.TLSProperties{}, fmt.Errorf("parse CHAINCODE_TLS %q: %w", c.TLS, err)
	}
	if !enabled {
		return shim.TLSProperties{Disabled: true}, nil
	}

	key, err := os.ReadFile(c.TLSKey)
	if err != nil {
		return shim.TLSProperties{}, fmt.Errorf("read tls key: %w", err)
	}
	cert, err := os.ReadFile(c.TLSCert)
	if err != nil {
		return shim.TLSProperties{}, fmt.Errorf("read tls cert: %w", err)
	}
	props := shim.TLSProperties{Key: key, Cert: cert}
	if c.TLSCACert != "" {
		ca, err := os.ReadFile(c.TLSCACert)
		if err != nil {
			return shim.TLSProperties{}, fmt.Errorf("read tls client ca: %w", err)
		}
		props.ClientCACerts = ca
	}
	return props, nil
}

func fail(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
