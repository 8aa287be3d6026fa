package serve

import (
	"context"
	"log/slog"

	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/internal/protocol/http1"
	"github.com/indigo-web/h1/internal/telemetry"
	"github.com/indigo-web/h1/transport"
	"go.opentelemetry.io/otel/metric"
)

type options struct {
	logger *slog.Logger
	meter  metric.Meter
}

type Option func(*options)

// WithLogger sets the logger records of the connection go to. By default, records are
// bridged into the global OpenTelemetry logger provider.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeter sets the meter the connection metrics are recorded with. Defaults to the meter of
// the global OpenTelemetry meter provider.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// Server serves HTTP/1.x connections. All of them share the logger and the metric
// instruments, which are created once.
type Server struct {
	cfg       *config.Config
	handler   http.Handler
	telemetry *telemetry.Telemetry
}

// New creates the server. Nil config is replaced by config.Default().
func New(cfg *config.Config, handler http.Handler, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	t, err := telemetry.New(o.logger, o.meter)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:       cfg,
		handler:   handler,
		telemetry: t,
	}, nil
}

// Logger returns the logger the server's records go to.
func (s *Server) Logger() *slog.Logger {
	return s.telemetry.Logger
}

// HTTP1 serves HTTP/1.x exchanges over the stream until the connection closes. It returns nil
// if the connection was closed in an orderly way, http.ErrDisconnected if the client went
// away before the response was delivered and the terminal error otherwise. The stream isn't
// closed automatically if the connection was upgraded.
func (s *Server) HTTP1(ctx context.Context, conn transport.Conn) error {
	return newConn(s.cfg, conn, s.handler, s.telemetry).Serve(ctx)
}

// HTTP1 serves a single connection. Serving many of them is cheaper via Server, which
// doesn't recreate the metric instruments each time.
func HTTP1(ctx context.Context, cfg *config.Config, conn transport.Conn, handler http.Handler, opts ...Option) error {
	s, err := New(cfg, handler, opts...)
	if err != nil {
		return err
	}

	return s.HTTP1(ctx, conn)
}

func newConn(cfg *config.Config, conn transport.Conn, handler http.Handler, t *telemetry.Telemetry) *http1.Conn {
	client := transport.NewClient(
		conn,
		make([]byte, cfg.NET.ReadBufferSize),
		cfg.NET.ReadTimeout,
		cfg.NET.WriteTimeout,
		cfg.NET.WouldBlockRetry,
	)

	return http1.NewConn(cfg, client, handler, t)
}
