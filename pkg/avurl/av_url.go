// Package avurl validates publish destinations for the encoder output.
package avurl

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/edirooss/loopcast/pkg/hostutil"
)

// Schemes accepted as publish destinations.
var Schemes = []string{"rtmp", "rtmps", "srt"}

// URL is a parsed publish destination.
type URL struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Port   string `json:"port"`
	Path   string `json:"path"`
}

// ParseDestination parses raw as a publish base URL: a known scheme, a valid
// host, an optional port in range and no embedded credentials. The stream
// key is appended separately and must not be part of raw's query.
func ParseDestination(raw string) (*URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if !slices.Contains(Schemes, scheme) {
		return nil, fmt.Errorf("unsupported scheme '%s' (want %s)", u.Scheme, strings.Join(Schemes, ", "))
	}
	if u.User != nil {
		return nil, errors.New("userinfo should not be embedded in the URL")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, errors.New("query and fragment are not allowed")
	}

	host := u.Hostname()
	if err := hostutil.ValidateHost(host); err != nil {
		return nil, err
	}
	port := u.Port()
	if port != "" && !isPort(port) {
		return nil, fmt.Errorf("bad port: '%s'", port)
	}

	return &URL{Scheme: scheme, Host: host, Port: port, Path: u.Path}, nil
}

// isPort checks if s is a port number 1-65535 without leading zeros.
func isPort(s string) bool {
	if len(s) > 1 && s[0] == '0' {
		return false
	}
	port, err := strconv.Atoi(s)
	return err == nil && port >= 1 && port <= 65535
}
