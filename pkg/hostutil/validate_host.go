package hostutil

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"unicode"
)

// ErrInvalidHost wraps every rejection from ValidateHost.
var ErrInvalidHost = errors.New("invalid host")

// ValidateHost accepts a dotted IPv4 address, an IPv6 literal (bare or in
// brackets) or an RFC 1123 hostname.
func ValidateHost(raw string) error {
	switch {
	case raw == "":
		return fmt.Errorf("%w: empty", ErrInvalidHost)
	case looksLikeIPv4(raw):
		if ip := net.ParseIP(raw); ip == nil || ip.To4() == nil {
			return fmt.Errorf("%w: %q is not an IPv4 address", ErrInvalidHost, raw)
		}
	case looksLikeIPv6(raw):
		ip := net.ParseIP(strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]"))
		if ip == nil || ip.To4() != nil {
			return fmt.Errorf("%w: %q is not an IPv6 address", ErrInvalidHost, raw)
		}
	default:
		if !validHostname(raw) {
			return fmt.Errorf("%w: %q is not a valid hostname", ErrInvalidHost, raw)
		}
	}
	return nil
}

// looksLikeIPv4 reports whether raw is four dot-separated digit groups.
func looksLikeIPv4(raw string) bool {
	parts := strings.Split(raw, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || strings.IndexFunc(p, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
			return false
		}
	}
	return true
}

func looksLikeIPv6(raw string) bool {
	return strings.Contains(raw, ":") || (strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]"))
}

// validHostname checks DNS label rules (RFC 1123).
func validHostname(raw string) bool {
	if len(raw) > 253 {
		return false
	}
	for _, label := range strings.Split(raw, ".") {
		if len(label) < 1 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
				return false
			}
		}
	}
	return true
}
