package h1

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/http/serve"
	"github.com/indigo-web/h1/transport"
	"go.opentelemetry.io/otel/metric"
)

// App binds listeners and serves every accepted connection in its own goroutine.
type App struct {
	cfg        *config.Config
	hooks      hooks
	transports []Transport
	supervisor *transport.Supervisor
	opts       []serve.Option
	ctx        context.Context
	cancel     context.CancelFunc

	disconnects, failures atomic.Uint64
}

// New returns a new App instance. Nil config is replaced by config.Default().
func New(cfg *config.Config) *App {
	if cfg == nil {
		cfg = config.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		cfg:        cfg,
		supervisor: transport.NewSupervisor(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Logger sets the logger every connection logs into.
func (a *App) Logger(logger *slog.Logger) *App {
	a.opts = append(a.opts, serve.WithLogger(logger))
	return a
}

// Meter sets the meter connection metrics are recorded with.
func (a *App) Meter(meter metric.Meter) *App {
	a.opts = append(a.opts, serve.WithMeter(meter))
	return a
}

// OnStart calls the callback at the moment, when all the listeners are bound.
func (a *App) OnStart(cb func()) *App {
	a.hooks.OnStart = cb
	return a
}

// OnStop calls the callback once all the listeners are stopped and all the connections
// are closed.
func (a *App) OnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// Listen adds a new listener. If no transports are passed, plain TCP is used.
func (a *App) Listen(addr string, transports ...Transport) *App {
	if len(transports) == 0 {
		transports = append(transports, TCP())
	}

	for _, t := range transports {
		t.addr = addr
		a.transports = append(a.transports, t)
	}

	return a
}

// Serve starts the application and blocks until it stops. All the transports are stopped
// as soon as any of them fails.
func (a *App) Serve(handler http.Handler) error {
	server, err := serve.New(a.cfg, handler, a.opts...)
	if err != nil {
		return err
	}

	for _, t := range a.transports {
		if t.error != nil {
			a.supervisor.Stop()
			return t.error
		}

		if err := a.supervisor.Add(t.addr, t.inner, a.spawn(server)); err != nil {
			return err
		}
	}

	callIfNotNil(a.hooks.OnStart)
	err = a.supervisor.Run(a.ctx, a.cfg.NET)
	callIfNotNil(a.hooks.OnStop)

	return err
}

// Stop stops accepting new connections. Idle connections are closed immediately, the busy
// ones once their current response is sent. It doesn't wait for the application to stop.
func (a *App) Stop() {
	a.cancel()
}

func (a *App) spawn(server *serve.Server) func(net.Conn) {
	return func(conn net.Conn) {
		err := server.HTTP1(a.ctx, conn)
		switch {
		case err == nil:
		case errors.Is(err, http.ErrDisconnected):
			a.disconnects.Add(1)
		default:
			a.failures.Add(1)
			server.Logger().Debug("connection terminated",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Stats returns the number of connections terminated by a client disconnecting mid-exchange
// and by any other error.
func (a *App) Stats() (disconnects, failures uint64) {
	return a.disconnects.Load(), a.failures.Load()
}

type hooks struct {
	OnStart, OnStop func()
}

func callIfNotNil(f func()) {
	if f != nil {
		f()
	}
}
