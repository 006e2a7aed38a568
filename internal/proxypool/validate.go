// File: internal/proxypool/validate.go
package proxypool

import (
	"context"
	"net"
	"time"

	xproxy "golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"
)

// Validator probes candidate endpoints for reachability before they enter the
// pool. Probes run concurrently, bounded by Concurrency.
type Validator struct {
	Timeout     time.Duration
	Concurrency int
	// ProbeAddr is the address dialed through SOCKS5 endpoints to confirm the
	// relay actually forwards traffic.
	ProbeAddr string
}

// NewValidator creates a validator with sane bounds applied.
func NewValidator(timeout time.Duration, concurrency int) *Validator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	return &Validator{
		Timeout:     timeout,
		Concurrency: concurrency,
		ProbeAddr:   "wafid.com:443",
	}
}

// Validate probes every candidate and returns the same set with Healthy and
// LastValidated populated. Probe failures mark the endpoint unhealthy; they
// never abort the batch.
func (v *Validator) Validate(ctx context.Context, candidates []Endpoint) []Endpoint {
	out := make([]Endpoint, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.Concurrency)
	for i, ep := range candidates {
		g.Go(func() error {
			out[i] = v.probe(ctx, ep)
			return nil
		})
	}
	// Probes never return errors; Wait only joins the goroutines.
	_ = g.Wait()
	return out
}

func (v *Validator) probe(ctx context.Context, ep Endpoint) Endpoint {
	ep.LastValidated = time.Now()
	ep.Healthy = false

	dialCtx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()

	switch ep.Protocol {
	case ProtocolSOCKS5:
		ep.Healthy = v.probeSOCKS5(dialCtx, ep)
	default:
		dialer := &net.Dialer{Timeout: v.Timeout}
		conn, err := dialer.DialContext(dialCtx, "tcp", ep.Addr())
		if err == nil {
			conn.Close()
			ep.Healthy = true
		}
	}
	return ep
}

// probeSOCKS5 confirms the relay forwards traffic by dialing ProbeAddr
// through it, not merely that its port accepts connections.
func (v *Validator) probeSOCKS5(ctx context.Context, ep Endpoint) bool {
	forward := &net.Dialer{Timeout: v.Timeout}
	dialer, err := xproxy.SOCKS5("tcp", ep.Addr(), nil, forward)
	if err != nil {
		return false
	}

	var conn net.Conn
	if cd, ok := dialer.(xproxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", v.ProbeAddr)
	} else {
		conn, err = dialer.Dial("tcp", v.ProbeAddr)
	}
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
