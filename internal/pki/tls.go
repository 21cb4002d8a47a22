// Package pki builds the TLS configuration used when a server or DCC peer
// connection is configured for "tls: true". Unlike a mutually-authenticated
// service mesh, IRC and DCC peers rarely present certificates anyone in the
// session can validate, so this package intentionally does not attempt
// identity verification — tls here buys transport confidentiality against
// passive network observers only, never peer authentication.
package pki

import "crypto/tls"

// NewClientTLSConfig returns a tls.Config suitable for dialing an IRC server
// or a DCC peer. When verifyServer is false (the common case for DCC peers,
// which present self-signed or no certificates at all), hostname and chain
// verification are disabled; callers must not rely on this connection to
// authenticate the remote end.
func NewClientTLSConfig(serverName string, verifyServer bool) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         serverName,
		InsecureSkipVerify: !verifyServer,
	}
}
