package shortener

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// MaxURLLength bounds the long URLs accepted for shortening.
const MaxURLLength = 2048

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// URLValidator checks long URLs before a code is generated for them.
type URLValidator struct {
	// Resolver, when set, rejects hosts that resolve to private addresses.
	Resolver Resolver
}

// Validate returns the trimmed URL, or an error wrapping ErrInvalidURL.
func (v URLValidator) Validate(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)

	if rawURL == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidURL)
	}

	if len(rawURL) > MaxURLLength {
		return "", fmt.Errorf("%w: url longer than %d characters", ErrInvalidURL, MaxURLLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, err.Error())
	}

	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: host is required", ErrInvalidURL)
	}

	if err := v.checkHost(ctx, host); err != nil {
		return "", err
	}

	return rawURL, nil
}

func (v URLValidator) checkHost(ctx context.Context, host string) error {
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("%w: localhost is not allowed", ErrInvalidURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("%w: private addresses are not allowed", ErrInvalidURL)
		}

		return nil
	}

	if v.Resolver == nil {
		return nil
	}

	addrs, err := v.Resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: host does not resolve", ErrInvalidURL)
	}

	for _, addr := range addrs {
		if isPrivateIP(addr.IP) {
			return fmt.Errorf("%w: private addresses are not allowed", ErrInvalidURL)
		}
	}

	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// NormalizeURL normalizes a URL for consistent hashing.
// - Lowercases the scheme and host
// - Removes default ports (80 for http, 443 for https)
// - Removes trailing slashes from path (unless path is just "/")
// - Sorts query parameters
// - Removes the fragment
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	switch {
	case u.Scheme == "http" && u.Port() == "80":
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && u.Port() == "443":
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = ""
	}

	if u.RawQuery != "" {
		// Encode sorts by key and keeps the order of repeated values.
		u.RawQuery = u.Query().Encode()
	}

	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}

// HashURL computes a hex-encoded SHA-256 of the normalized URL.
func HashURL(normalizedURL string) URLHash {
	h := sha256.Sum256([]byte(normalizedURL))

	return URLHash(hex.EncodeToString(h[:]))
}
