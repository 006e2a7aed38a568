// File: internal/browser/relay.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"
	xproxy "golang.org/x/net/proxy"

	"github.com/wafidbot/wafidbot/internal/proxypool"
)

// Relay is a loopback HTTP proxy chained to one upstream endpoint. Chrome is
// pointed at the relay, which keeps the browser side identical regardless of
// the upstream's protocol. One relay lives and dies with one session.
type Relay struct {
	server    *http.Server
	listener  net.Listener
	addr      string
	upstream  proxypool.Endpoint
	transport *http.Transport
	logger    *zap.Logger
	serveErr  chan error
}

// StartRelay binds a relay on an ephemeral loopback port and begins serving.
func StartRelay(logger *zap.Logger, upstream proxypool.Endpoint) (*Relay, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("relay")

	proxy := goproxy.NewProxyHttpServer()
	proxy.Logger = zap.NewStdLog(log)

	var transport *http.Transport
	switch upstream.Protocol {
	case proxypool.ProtocolSOCKS5:
		dialer, err := xproxy.SOCKS5("tcp", upstream.Addr(), nil, &net.Dialer{Timeout: 10 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("socks5 upstream %s: %w", upstream.Addr(), err)
		}
		transport = &http.Transport{Dial: dialer.Dial}
		proxy.Tr = transport
		proxy.ConnectDial = dialer.Dial
	default:
		upstreamURL, err := url.Parse(upstream.URL())
		if err != nil {
			return nil, fmt.Errorf("upstream url %q: %w", upstream.URL(), err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(upstreamURL)}
		proxy.Tr = transport
		proxy.ConnectDial = proxy.NewConnectDialToProxy(upstream.URL())
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("bind relay listener: %w", err)
	}

	r := &Relay{
		server: &http.Server{
			Handler:      proxy,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
			ErrorLog:     zap.NewStdLog(log),
		},
		listener:  listener,
		addr:      listener.Addr().String(),
		upstream:  upstream,
		transport: transport,
		logger:    log,
		serveErr:  make(chan error, 1),
	}

	go func() {
		err := r.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("relay serve error", zap.Error(err))
		}
		r.serveErr <- err
	}()

	log.Info("proxy relay started",
		zap.String("listen", r.addr),
		zap.String("upstream", upstream.URL()))
	return r, nil
}

// Addr returns the relay's loopback listen address.
func (r *Relay) Addr() string { return r.addr }

// Upstream returns the endpoint the relay forwards to.
func (r *Relay) Upstream() proxypool.Endpoint { return r.upstream }

// Stop shuts the relay down, respecting the caller's deadline. Idle upstream
// connections are torn down too; the relay's lifetime is its session's.
func (r *Relay) Stop(ctx context.Context) error {
	err := r.server.Shutdown(ctx)
	r.transport.CloseIdleConnections()
	if err != nil {
		return fmt.Errorf("relay shutdown: %w", err)
	}
	// Serve has returned once Shutdown completes.
	select {
	case <-r.serveErr:
	default:
	}
	return nil
}
