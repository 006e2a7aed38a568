// File: internal/proxypool/endpoint.go
package proxypool

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Supported endpoint protocols.
const (
	ProtocolHTTP   = "http"
	ProtocolSOCKS5 = "socks5"
)

// Endpoint is a single proxy relay address. Endpoints are value types and are
// immutable once issued to a caller; the pool replaces its backing list
// wholesale on refresh instead of mutating entries in place.
type Endpoint struct {
	Host          string
	Port          int
	Protocol      string
	LastValidated time.Time
	Healthy       bool
}

// Addr returns the host:port form of the endpoint.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL returns the scheme://host:port form used for browser proxy flags.
func (e Endpoint) URL() string {
	return fmt.Sprintf("%s://%s", e.Protocol, e.Addr())
}

// key identifies an endpoint for deduplication.
func (e Endpoint) key() string {
	return e.Protocol + "://" + e.Addr()
}

// ParseEndpoint parses "host:port" or "scheme://host:port" into an Endpoint.
// A bare host:port defaults to the http protocol. The returned endpoint is
// unvalidated (Healthy false, zero LastValidated).
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, fmt.Errorf("empty endpoint")
	}

	protocol := ProtocolHTTP
	if i := strings.Index(s, "://"); i >= 0 {
		switch scheme := strings.ToLower(s[:i]); scheme {
		case ProtocolHTTP, "https":
			protocol = ProtocolHTTP
		case ProtocolSOCKS5, "socks":
			protocol = ProtocolSOCKS5
		default:
			return Endpoint{}, fmt.Errorf("unsupported proxy scheme %q", scheme)
		}
		s = s[i+3:]
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid port %q", portStr)
	}

	return Endpoint{Host: host, Port: port, Protocol: protocol}, nil
}
