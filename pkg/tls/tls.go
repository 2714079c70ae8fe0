// Package tls builds TLS configurations for the envmon HTTP server, its
// clients and broker connections.
//
// Server and HTTP client configurations enforce TLS 1.3 and mutual
// authentication. Broker configurations only require TLS 1.2 because public
// MQTT brokers commonly stop there, and a client certificate is optional.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var tls13Suites = []uint16{
	tls.TLS_AES_128_GCM_SHA256,
	tls.TLS_AES_256_GCM_SHA384,
	tls.TLS_CHACHA20_POLY1305_SHA256,
}

// Config holds certificate paths for the HTTP server or client.
type Config struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	CAFile   string
}

// Validate returns an error if TLS is enabled but a file is missing.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.CertFile == "" || c.KeyFile == "" || c.CAFile == "" {
		return errors.New("tls enabled but cert/key/ca files not specified")
	}
	return statFiles(c.CertFile, c.KeyFile, c.CAFile)
}

// NewServerTLSConfig creates a TLS 1.3 server configuration that requires
// client certificates signed by the CA in caFile.
func NewServerTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	if err := validateCertFiles(certFile, keyFile, caFile); err != nil {
		return nil, err
	}

	pool, err := loadCAPool(caFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
		CipherSuites: tls13Suites,
	}, nil
}

// NewClientTLSConfig creates a TLS 1.3 client configuration that presents
// the given certificate and verifies the server against caFile.
func NewClientTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	if err := validateCertFiles(certFile, keyFile, caFile); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}

	pool, err := loadCAPool(caFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
		CipherSuites: tls13Suites,
	}, nil
}

// BrokerConfig describes TLS towards a message broker.
type BrokerConfig struct {
	Enabled bool
	// CAFile verifies the broker certificate. Empty uses the system pool.
	CAFile string
	// CertFile and KeyFile are set together to present a client certificate.
	CertFile string
	KeyFile  string
	// ServerName overrides the name checked against the broker certificate.
	ServerName string
	// InsecureSkipVerify disables broker certificate verification.
	InsecureSkipVerify bool
}

// TLSConfig returns nil when TLS is disabled.
func (b BrokerConfig) TLSConfig() (*tls.Config, error) {
	if !b.Enabled {
		return nil, nil
	}
	if (b.CertFile == "") != (b.KeyFile == "") {
		return nil, errors.New("broker tls: cert and key files must be set together")
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         b.ServerName,
		InsecureSkipVerify: b.InsecureSkipVerify,
	}

	if b.CAFile != "" {
		pool, err := loadCAPool(b.CAFile)
		if err != nil {
			return nil, fmt.Errorf("broker tls: %w", err)
		}
		cfg.RootCAs = pool
	}

	if b.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(b.CertFile, b.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("broker tls: load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA certificate")
	}
	return pool, nil
}

func validateCertFiles(certFile, keyFile, caFile string) error {
	if certFile == "" {
		return errors.New("certificate file path cannot be empty")
	}
	if keyFile == "" {
		return errors.New("key file path cannot be empty")
	}
	if caFile == "" {
		return errors.New("CA certificate file path cannot be empty")
	}
	return statFiles(certFile, keyFile, caFile)
}

func statFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("certificate file %q: %w", path, err)
		}
	}
	return nil
}
