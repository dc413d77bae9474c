// Package tls builds mutual TLS configurations for the results API and for
// adapter clients. All configurations require TLS 1.3.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Config holds PEM file paths for one side of an mTLS connection.
type Config struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	CAFile   string
}

// Validate reports missing or unreadable files when TLS is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.CertFile == "" || c.KeyFile == "" || c.CAFile == "" {
		return errors.New("tls enabled but cert/key/ca files not specified")
	}
	return checkFiles(c.CertFile, c.KeyFile, c.CAFile)
}

var cipherSuites = []uint16{
	tls.TLS_AES_128_GCM_SHA256,
	tls.TLS_AES_256_GCM_SHA384,
	tls.TLS_CHACHA20_POLY1305_SHA256,
}

// NewServerTLSConfig returns a server configuration that requires client
// certificates signed by the CA in caFile.
func NewServerTLSConfig(c Config) (*tls.Config, error) {
	pool, err := loadCA(c)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
		CipherSuites: cipherSuites,
	}, nil
}

// NewClientTLSConfig returns a client configuration presenting the key pair
// in c and trusting only the CA in c.CAFile.
func NewClientTLSConfig(c Config) (*tls.Config, error) {
	pool, err := loadCA(c)
	if err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
		CipherSuites: cipherSuites,
	}, nil
}

func loadCA(c Config) (*x509.CertPool, error) {
	if c.CertFile == "" || c.KeyFile == "" || c.CAFile == "" {
		return nil, errors.New("certificate, key and CA file paths are required")
	}
	if err := checkFiles(c.CertFile, c.KeyFile, c.CAFile); err != nil {
		return nil, err
	}

	caCert, err := os.ReadFile(c.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA certificate")
	}
	return pool, nil
}

func checkFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("tls file %q: %w", path, err)
		}
	}
	return nil
}
