package tlsutil

import (
	"crypto/tls"
	"net"
)

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ClientConfig returns DefaultTLSConfig with ServerName taken from addr
// ("host" or "host:port").
func ClientConfig(addr string) *tls.Config {
	cfg := DefaultTLSConfig()
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	cfg.ServerName = host
	return cfg
}

// ServerConfig returns DefaultTLSConfig loaded with the given key pair.
func ServerConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	cfg := DefaultTLSConfig()
	cfg.Certificates = []tls.Certificate{cert}
	return cfg, nil
}
