// Package telemetry carries the structured logger and the metric instruments of the engine.
package telemetry

import (
	"context"
	"log/slog"
	"net"

	"github.com/dchest/uniuri"
	"github.com/indigo-web/h1/http/status"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const Name = "github.com/indigo-web/h1"

// Reasons of connection closure.
const (
	ReasonEOF          = "eof"
	ReasonMalformed    = "malformed"
	ReasonFraming      = "framing"
	ReasonTransport    = "transport"
	ReasonDisconnected = "disconnected"
	ReasonCanceled     = "canceled"
	ReasonClose        = "close"
	ReasonUpgrade      = "upgrade"
	ReasonHandler      = "handler"
)

const (
	In  = "in"
	Out = "out"
)

type Telemetry struct {
	Logger    *slog.Logger
	exchanges metric.Int64Counter
	closed    metric.Int64Counter
	malformed metric.Int64Counter
	bodyBytes metric.Int64Counter
}

// New creates the instruments with the meter. Nil logger or meter are replaced by the ones
// provided by the global OpenTelemetry providers.
func New(logger *slog.Logger, meter metric.Meter) (*Telemetry, error) {
	if logger == nil {
		logger = otelslog.NewLogger(Name)
	}

	if meter == nil {
		meter = otel.Meter(Name)
	}

	t := &Telemetry{Logger: logger}

	var err error
	if t.exchanges, err = meter.Int64Counter("h1.exchanges",
		metric.WithDescription("The number of completed request-response exchanges"),
		metric.WithUnit("{exchange}")); err != nil {
		return nil, err
	}

	if t.closed, err = meter.Int64Counter("h1.connections.closed",
		metric.WithDescription("The number of closed connections by the reason"),
		metric.WithUnit("{connection}")); err != nil {
		return nil, err
	}

	if t.malformed, err = meter.Int64Counter("h1.request.malformed",
		metric.WithDescription("The number of rejected malformed requests by the response status"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}

	if t.bodyBytes, err = meter.Int64Counter("h1.body.bytes",
		metric.WithDescription("The number of body bytes transferred by the direction"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}

	return t, nil
}

// Default returns telemetry bound to the global providers. If the instruments can't be
// created, the metrics are silently discarded.
func Default() *Telemetry {
	t, err := New(nil, nil)
	if err != nil {
		t, _ = New(otelslog.NewLogger(Name), noop.NewMeterProvider().Meter(Name))
	}

	return t
}

// Conn returns a logger for a single connection. Each one is tagged by a random id, so
// records of a connection can be correlated.
func (t *Telemetry) Conn(remote net.Addr) *slog.Logger {
	logger := t.Logger.With(slog.String("conn", uniuri.NewLen(10)))
	if remote != nil {
		logger = logger.With(slog.String("remote", remote.String()))
	}

	return logger
}

func (t *Telemetry) Exchange(ctx context.Context, code status.Code, keepAlive bool) {
	t.exchanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status_class", status.Class(code)),
		attribute.Bool("keep_alive", keepAlive),
	))
}

func (t *Telemetry) Closed(ctx context.Context, reason string) {
	t.closed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (t *Telemetry) Malformed(ctx context.Context, code status.Code) {
	t.malformed.Add(ctx, 1, metric.WithAttributes(attribute.Int("status", int(code))))
}

func (t *Telemetry) BodyBytes(ctx context.Context, direction string, n int) {
	if n == 0 {
		return
	}

	t.bodyBytes.Add(ctx, int64(n), metric.WithAttributes(attribute.String("direction", direction)))
}
