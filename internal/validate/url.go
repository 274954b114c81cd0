package validate

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"slices"
	"strings"
)

var (
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrDisallowedScheme = errors.New("URL scheme not allowed")
	ErrDisallowedDomain = errors.New("URL domain not allowed")
	ErrPrivateAddress   = errors.New("URL points at a private address")
)

// URLConstraints restricts which absolute URLs URL accepts.
type URLConstraints struct {
	// AllowedSchemes is matched case-insensitively. Empty allows any.
	AllowedSchemes []string
	// AllowedDomains admits each domain and its subdomains. Empty allows any.
	AllowedDomains []string
	// BlockPrivate rejects localhost and literal loopback, private and
	// link-local addresses. Names are not resolved.
	BlockPrivate bool
	// MaxLength is in bytes; 0 means no limit.
	MaxLength int
}

// ImageURLConstraints admits public http and https image links.
var ImageURLConstraints = URLConstraints{
	AllowedSchemes: []string{"https", "http"},
	BlockPrivate:   true,
	MaxLength:      2048,
}

// URL checks that raw is an absolute URL meeting c and returns it trimmed.
func URL(raw string, c URLConstraints) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmpty
	}
	if c.MaxLength > 0 && len(raw) > c.MaxLength {
		return "", fmt.Errorf("%w: URL exceeds %d characters", ErrStringTooLong, c.MaxLength)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: scheme and host are required", ErrInvalidURL)
	}
	if len(c.AllowedSchemes) > 0 && !containsFold(c.AllowedSchemes, u.Scheme) {
		return "", fmt.Errorf("%w: %q", ErrDisallowedScheme, strings.ToLower(u.Scheme))
	}

	host := strings.ToLower(u.Hostname())
	if len(c.AllowedDomains) > 0 && !slices.ContainsFunc(c.AllowedDomains, func(d string) bool {
		d = strings.ToLower(d)
		return host == d || strings.HasSuffix(host, "."+d)
	}) {
		return "", fmt.Errorf("%w: %q", ErrDisallowedDomain, host)
	}

	if c.BlockPrivate {
		if host == "localhost" || strings.HasSuffix(host, ".localhost") || host == "localhost.localdomain" {
			return "", fmt.Errorf("%w: %s", ErrPrivateAddress, host)
		}
		if addr, err := netip.ParseAddr(host); err == nil && isPrivate(addr) {
			return "", fmt.Errorf("%w: %s", ErrPrivateAddress, addr)
		}
	}
	return raw, nil
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(v string) bool { return strings.EqualFold(v, s) })
}

// isPrivate reports addresses that never belong to a public image host.
func isPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()
}
