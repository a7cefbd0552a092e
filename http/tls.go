package http

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// newTLSConfig builds the client TLS configuration from the SSL options.
// Peer verification is on unless OptSSLVerifyPeer says otherwise; with
// OptSSLVerifyHost set to 0 the chain is still verified but the host name
// is not.
func newTLSConfig(opts Options) (*tls.Config, error) {
	verifyPeer := !opts.Has(OptSSLVerifyPeer) || opts.Bool(OptSSLVerifyPeer)
	verifyHost := opts.Int(OptSSLVerifyHost, 2)

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if caFile := opts.String(OptCAInfo); caFile != "" {
		pemData, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("error setting certificate verify locations: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("error setting certificate verify locations: no certificates in %s", caFile)
		}
		cfg.RootCAs = pool
	}

	switch {
	case !verifyPeer:
		cfg.InsecureSkipVerify = true
	case verifyHost == 0:
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = verifyChainOnly(cfg.RootCAs)
	}

	certFile, keyFile := opts.String(OptSSLCert), opts.String(OptSSLKey)
	if certFile != "" || keyFile != "" {
		if certFile == "" {
			certFile = keyFile
		}
		if keyFile == "" {
			keyFile = certFile
		}
		cert, err := loadKeyPair(certFile, keyFile, opts.String(OptSSLCertPasswd))
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// verifyChainOnly checks the presented chain against roots without
// matching the server name. A nil pool means the system roots.
func verifyChainOnly(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("no peer certificate")
		}
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("parsing peer certificate: %w", err)
			}
			certs = append(certs, cert)
		}
		intermediates := x509.NewCertPool()
		for _, cert := range certs[1:] {
			intermediates.AddCert(cert)
		}
		_, err := certs[0].Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
		})
		return err
	}
}

// loadKeyPair reads a PEM certificate and private key. An encrypted key is
// decrypted with password.
func loadKeyPair(certFile, keyFile, password string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("could not load PEM client certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("unable to set private key file: %w", err)
	}

	if password != "" {
		keyPEM, err = decryptKey(keyPEM, password)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("unable to set private key file: %w", err)
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("unable to use client certificate: %w", err)
	}
	return cert, nil
}

// decryptKey returns keyPEM with its first private key block decrypted.
// Unencrypted keys are returned unchanged.
func decryptKey(keyPEM []byte, password string) ([]byte, error) {
	rest := keyPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return keyPEM, nil
		}
		if !strings.HasSuffix(block.Type, "PRIVATE KEY") {
			continue
		}
		//nolint:staticcheck // legacy encrypted PEM is what client keys ship as
		if !x509.IsEncryptedPEMBlock(block) {
			return keyPEM, nil
		}
		//nolint:staticcheck
		der, err := x509.DecryptPEMBlock(block, []byte(password))
		if err != nil {
			return nil, err
		}
		return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
	}
}
