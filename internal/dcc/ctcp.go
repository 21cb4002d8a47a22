// Package dcc implements the Direct Client-to-Client transfer engine: CTCP
// request parsing, inbound SEND/SSEND offer validation, the per-transfer
// state machine, the ack wire format, and the peer-nick resume queue.
package dcc

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const ctcpDelim = '\x01'

// ExtractCTCP returns the payload of a CTCP-framed message (the text between
// the two \x01 delimiters inside a PRIVMSG), and whether the message carried
// one. Messages with no CTCP framing return ok=false.
func ExtractCTCP(text string) (payload string, ok bool) {
	start := strings.IndexByte(text, ctcpDelim)
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(text[start+1:], ctcpDelim)
	if end < 0 {
		return "", false
	}
	return text[start+1 : start+1+end], true
}

// WrapCTCP frames payload as a CTCP message.
func WrapCTCP(payload string) string {
	return string(ctcpDelim) + payload + string(ctcpDelim)
}

// TokenizeShellStyle splits a DCC argument line the way a shell would:
// double-quoted substrings (which may contain spaces) are single tokens,
// and the remaining whitespace-separated words are individual tokens. DCC
// filenames are quoted this way so names containing spaces survive the
// PRIVMSG round trip.
func TokenizeShellStyle(s string) []string {
	var tokens []string
	var cur strings.Builder
	inQuotes := false
	hasToken := false

	flush := func() {
		if hasToken {
			tokens = append(tokens, cur.String())
			cur.Reset()
			hasToken = false
		}
	}

	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			hasToken = true
		case r == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
			hasToken = true
		}
	}
	flush()
	return tokens
}

// QuoteFilename double-quotes a filename for outbound CTCP emission,
// stripping any embedded quote characters first (spec: "embedded \" in the
// filename are stripped before emission").
func QuoteFilename(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, "") + `"`
}

// uint32ToIP decodes the legacy DCC convention of encoding an IPv4 address
// as a single big-endian unsigned 32-bit integer (ip_numstr_to_quad).
func uint32ToIP(n uint32) net.IP {
	return net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

// ParsePeerAddress accepts a DCC address token in any of the forms peers
// actually send: a dotted IPv4 literal, an IPv6 literal, or the legacy
// integer-encoded IPv4 form used by most bouncers and bots.
func ParsePeerAddress(s string) (net.IP, error) {
	if ip := net.ParseIP(s); ip != nil {
		return ip, nil
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return uint32ToIP(uint32(n)), nil
	}
	return nil, fmt.Errorf("invalid DCC address %q", s)
}
