package dcc

import "net"

var privateV4Blocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
)

var privateV6Blocks = mustParseCIDRs(
	"::1/128",
	"fc00::/7", // unique local
	"fe80::/10", // link-local
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// IsPrivateIP reports whether ip falls within RFC1918, loopback, link-local,
// or IPv6 ULA ranges.
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if v4 := ip.To4(); v4 != nil {
		for _, n := range privateV4Blocks {
			if n.Contains(v4) {
				return true
			}
		}
		return false
	}
	for _, n := range privateV6Blocks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
