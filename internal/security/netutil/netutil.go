package netutil

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrInvalidEndpoint is returned for provider endpoints that are malformed or
// point into private address space.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

var privateNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		nets = append(nets, network)
	}
	return nets
}

// IsPrivateIP returns true if the IP is in a private, loopback, link-local or reserved range
func IsPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ValidateEndpoint checks that rawURL is an absolute http(s) URL whose host
// does not resolve into private or reserved ranges. Loopback is allowed so
// local stubs and tests work.
func ValidateEndpoint(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: must use HTTP or HTTPS", ErrInvalidEndpoint)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) && !ip.IsLoopback() {
			return nil, fmt.Errorf("%w: %s is a private/reserved address", ErrInvalidEndpoint, host)
		}
		return u, nil
	}

	// Unresolvable hosts are left for the HTTP client to report.
	if addrs, err := net.LookupIP(host); err == nil {
		for _, a := range addrs {
			if IsPrivateIP(a) && !a.IsLoopback() {
				return nil, fmt.Errorf("%w: %s resolves to a private/reserved address", ErrInvalidEndpoint, host)
			}
		}
	}
	return u, nil
}
