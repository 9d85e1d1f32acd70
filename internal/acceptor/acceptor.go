// Package acceptor listens for TCP connections, assigns each a monotonic
// client id, and spawns a connection.Service to run it.
package acceptor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/adred-codev/natsd/internal/config"
	"github.com/adred-codev/natsd/internal/connection"
	"github.com/adred-codev/natsd/internal/ratelimit"
	"github.com/adred-codev/natsd/internal/router"
)

// Acceptor owns the broker's listen socket and the lifetime of every
// connection it spawns.
type Acceptor struct {
	cfg    *config.ServerConfig
	router *router.Router
	logger zerolog.Logger

	listener net.Listener
	nextID   atomic.Uint64

	wg           sync.WaitGroup
	shuttingDown atomic.Bool

	connCount atomic.Int64
}

// New builds an Acceptor bound to cfg's router and logger. Client ids start
// at 1.
func New(cfg *config.ServerConfig, r *router.Router, logger zerolog.Logger) *Acceptor {
	return &Acceptor{cfg: cfg, router: r, logger: logger}
}

// Start binds the listen socket and begins accepting connections in a
// background goroutine. It returns once the socket is bound. Cancelling ctx
// closes every connection accepted under it.
func (a *Acceptor) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	a.listener = listener
	a.logger.Info().Str("address", addr).Msg("listening")

	a.wg.Add(1)
	go a.acceptLoop(ctx)

	return nil
}

// ConnectionCount returns the number of currently open connections, for the
// periodic stats sampler and the connection gauge.
func (a *Acceptor) ConnectionCount() int {
	return int(a.connCount.Load())
}

func (a *Acceptor) acceptLoop(ctx context.Context) {
	defer a.wg.Done()

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if a.shuttingDown.Load() {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				a.logger.Warn().Err(err).Msg("transient accept error, continuing")
				continue
			}
			a.logger.Error().Err(err).Msg("accept error")
			return
		}

		id := a.nextID.Add(1)
		limit := ratelimit.New(a.cfg.PublishRateLimit)
		svc := connection.NewService(id, conn, a.router, a.cfg, a.logger, limit)

		a.connCount.Add(1)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer a.connCount.Add(-1)
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			defer stop()
			svc.Run()
		}()
	}
}

// Shutdown stops accepting new connections and waits for in-flight
// connections to finish their current operation and close.
func (a *Acceptor) Shutdown() error {
	a.shuttingDown.Store(true)
	var err error
	if a.listener != nil {
		err = a.listener.Close()
	}
	a.wg.Wait()
	return err
}
