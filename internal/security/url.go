// Package security guards the service against unsafe navigation targets
// and keeps secrets out of logs.
package security

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// URL validation errors.
var (
	ErrInvalidURL       = errors.New("invalid URL")
	ErrBlockedScheme    = errors.New("URL scheme not allowed")
	ErrLocalhostBlocked = errors.New("localhost URLs are not allowed")
	ErrPrivateIPBlocked = errors.New("private/internal IP addresses are not allowed")
	ErrMetadataBlocked  = errors.New("cloud metadata URLs are not allowed")
)

// lookupTimeout bounds the DNS check done by ValidateURL.
const lookupTimeout = 5 * time.Second

var localHostnames = map[string]bool{
	"localhost":                true,
	"localhost.localdomain":    true,
	"local":                    true,
	"ip6-localhost":            true,
	"ip6-loopback":             true,
	"metadata":                 true,
	"metadata.google.internal": true,
	"instance-data":            true,
}

var metadataAddrs = []netip.Addr{
	netip.MustParseAddr("169.254.169.254"),
	netip.MustParseAddr("169.254.170.2"),
	netip.MustParseAddr("100.100.100.200"),
	netip.MustParseAddr("192.0.0.192"),
	netip.MustParseAddr("fd00:ec2::254"),
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// ValidateURL checks that rawURL is an http(s) URL that does not point at
// loopback, private, link-local or cloud metadata addresses. Hostnames are
// resolved with net.DefaultResolver; a failed lookup is allowed through and
// left for the browser to report.
func ValidateURL(ctx context.Context, rawURL string) error {
	return ValidateURLWith(ctx, rawURL, net.DefaultResolver)
}

// ValidateURLWith is ValidateURL with an explicit resolver.
func ValidateURLWith(ctx context.Context, rawURL string, resolver Resolver) error {
	if rawURL == "" {
		return ErrInvalidURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ErrInvalidURL
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrBlockedScheme
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if localHostnames[host] || strings.HasSuffix(host, ".localhost") || strings.HasPrefix(host, "localhost.") {
		return ErrLocalhostBlocked
	}

	if addr, ok := parseLooseIP(host); ok {
		return checkAddr(addr)
	}

	if resolver == nil {
		return nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	addrs, err := resolver.LookupNetIP(lookupCtx, "ip", host)
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		if err := checkAddr(addr); err != nil {
			return err
		}
	}
	return nil
}

func checkAddr(addr netip.Addr) error {
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback():
		return ErrLocalhostBlocked
	case isMetadata(addr):
		return ErrMetadataBlocked
	case addr.IsPrivate(), addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast(), addr.IsUnspecified():
		return ErrPrivateIPBlocked
	}
	return nil
}

func isMetadata(addr netip.Addr) bool {
	for _, m := range metadataAddrs {
		if addr == m {
			return true
		}
	}
	return false
}

// parseLooseIP accepts the address spellings browsers accept: standard
// notation, a single 32-bit integer, two-part "a.b" and dotted parts in
// octal or hex.
func parseLooseIP(host string) (netip.Addr, bool) {
	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return addr, true
	}

	parts := strings.Split(host, ".")
	nums := make([]uint64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 0, 32)
		if err != nil {
			// Octal without the 0o prefix.
			if len(p) > 1 && p[0] == '0' {
				n, err = strconv.ParseUint(p[1:], 8, 32)
			}
			if err != nil {
				return netip.Addr{}, false
			}
		}
		nums[i] = n
	}

	var v uint64
	switch len(nums) {
	case 1:
		v = nums[0]
	case 2:
		if nums[0] > 0xff || nums[1] > 0xffffff {
			return netip.Addr{}, false
		}
		v = nums[0]<<24 | nums[1]
	case 4:
		for _, n := range nums {
			if n > 0xff {
				return netip.Addr{}, false
			}
			v = v<<8 | n
		}
	default:
		return netip.Addr{}, false
	}
	if v > 0xffffffff {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}), true
}
