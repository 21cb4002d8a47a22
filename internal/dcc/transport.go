package dcc

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/dccbot/dccagent/internal/pki"
)

// DialTimeout bounds how long a DCC data-connection dial may take.
const DialTimeout = 15 * time.Second

// Transport is the raw TCP (optionally TLS) socket to a DCC peer. When TLS
// is used it is a transport cipher only: hostname verification and
// certificate validation are disabled, matching the insecure tls.Config
// produced by internal/pki.
type Transport struct {
	conn           net.Conn
	disconnectedBy string
}

// Dial opens the DCC data connection to addr:port. useTLS wraps the socket
// with an insecure (no hostname/cert verification) TLS client — DCC peers
// rarely present certificates anyone can validate.
func Dial(addr net.IP, port int, useTLS bool) (*Transport, error) {
	address := net.JoinHostPort(addr.String(), fmt.Sprintf("%d", port))

	rawConn, err := net.DialTimeout("tcp", address, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dialing DCC peer %s: %w", address, err)
	}

	var conn net.Conn = rawConn
	if useTLS {
		conn = tls.Client(rawConn, pki.NewClientTLSConfig(addr.String(), false))
	}

	return &Transport{conn: conn}, nil
}

// Read reads raw file bytes into p; each chunk is delivered verbatim to the
// owning Transfer FSM.
func (t *Transport) Read(p []byte) (int, error) {
	return t.conn.Read(p)
}

// SendAck writes the cumulative bytes-received value using the ack width
// rule.
func (t *Transport) SendAck(cumulative, declaredSize uint64) error {
	if err := WriteAck(t.conn, cumulative, declaredSize); err != nil {
		return fmt.Errorf("writing DCC ack: %w", err)
	}
	return nil
}

// Disconnect closes the socket, recording reason for later inspection by the
// Transfer FSM's finalization logic.
func (t *Transport) Disconnect(reason string) error {
	t.disconnectedBy = reason
	return t.conn.Close()
}

// DisconnectReason returns the reason passed to the most recent Disconnect
// call, or "" if the transport is still open.
func (t *Transport) DisconnectReason() string {
	return t.disconnectedBy
}
