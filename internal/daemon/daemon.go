// Package daemon is the socket accept loop and per-connection state machine
// spec §5 and §6 describe: a long-lived process listening on a Unix stream
// socket, one goroutine per connection, shut down cleanly on SIGINT/SIGTERM.
package daemon

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hausd/itd/internal/dispatch"
	"github.com/hausd/itd/internal/engine"
)

// Daemon owns the listening socket and lends the shared Engine/Dispatcher to
// every accepted connection. No other mutable state is package-level (spec
// §9's "Global mutable state" design note).
type Daemon struct {
	eng  *engine.Engine
	disp *dispatch.Dispatcher
	log  *zap.Logger

	sockPath string

	wg sync.WaitGroup
}

// New binds a Daemon to eng and the Unix socket path it will listen on.
func New(eng *engine.Engine, sockPath string, log *zap.Logger) *Daemon {
	if log == nil {
		log = zap.NewNop()
	}
	return &Daemon{
		eng:      eng,
		disp:     dispatch.New(eng),
		log:      log.Named("daemon"),
		sockPath: sockPath,
	}
}

// Run listens on the Unix socket and services connections until ctx is
// canceled (the caller wires SIGINT/SIGTERM into ctx — see cmd/itd). It
// returns after every in-flight connection has finished its current
// operation; no connection is forcibly aborted (spec §5's "Cancellation").
func (d *Daemon) Run(ctx context.Context) error {
	if err := os.Remove(d.sockPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	ln, err := net.Listen("unix", d.sockPath)
	if err != nil {
		return err
	}
	defer ln.Close()

	d.log.Info("listening", zap.String("socket", d.sockPath))

	go func() {
		<-ctx.Done()
		d.log.Info("shutting down, closing listener")
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			d.log.Warn("accept failed", zap.Error(err))
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handle(ctx, conn)
		}()
	}

	d.wg.Wait()
	return nil
}

// RunUntilSignal is the convenience entrypoint cmd/itd uses: it derives a
// context that's canceled on SIGINT/SIGTERM and runs the accept loop on it.
// SIGPIPE is ignored globally, matching spec §5 ("SIGPIPE is ignored") —
// Go already turns a write to a closed socket into an EPIPE error rather
// than a process-killing signal, so for connections this changes nothing;
// its effect is that a broken stdout/stderr pipe no longer kills the
// process either.
func (d *Daemon) RunUntilSignal() error {
	signal.Ignore(syscall.SIGPIPE)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}

// connTimeout bounds how long a connection's per-line read may block so a
// stalled client doesn't wedge its goroutine forever on shutdown; it is
// generous relative to spec's 1-second multiplex tick and is not meant to
// be hit under normal operation.
const connTimeout = 30 * time.Second
