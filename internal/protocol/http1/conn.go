package http1

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/http/framing"
	"github.com/indigo-web/h1/http/method"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/telemetry"
	"github.com/indigo-web/h1/kv"
	"github.com/indigo-web/h1/transport"
	"github.com/indigo-web/utils/strcomp"
	"golang.org/x/net/http/httpguts"
)

type State uint8

const (
	AwaitingRequest State = iota
	ReadingHead
	ReadingBody
	WritingHead
	WritingBody
	Closing
	Closed
	// Upgraded means the transport was handed over to the upgrade callback.
	Upgraded
)

func (s State) String() string {
	switch s {
	case AwaitingRequest:
		return "awaiting request"
	case ReadingHead:
		return "reading head"
	case ReadingBody:
		return "reading body"
	case WritingHead:
		return "writing head"
	case WritingBody:
		return "writing body"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Upgraded:
		return "upgraded"
	default:
		return "unknown"
	}
}

// Conn serves a sequence of exchanges over a single client. It isn't safe for concurrent use,
// except that the serving context may be canceled at any moment.
type Conn struct {
	cfg           *config.Config
	client        transport.Client
	handler       http.Handler
	telemetry     *telemetry.Telemetry
	logger        *slog.Logger
	request       *http.Request
	parser        *Parser
	body          *body
	serializer    *serializer
	state         State
	exchanges     int
	err           error
	interruptible bool
	ctx           context.Context
	mu            sync.Mutex
}

// NewConn binds the handler to the client. Nil telemetry falls back to telemetry.Default().
func NewConn(
	cfg *config.Config, client transport.Client, handler http.Handler, t *telemetry.Telemetry,
) *Conn {
	if t == nil {
		t = telemetry.Default()
	}

	remote := client.Remote()
	logger := t.Conn(remote)
	request := http.NewRequest(kv.NewPrealloc(cfg.Headers.Number.Default), http.NewResponse(), remote)

	c := &Conn{
		cfg:        cfg,
		client:     client,
		handler:    handler,
		telemetry:  t,
		logger:     logger,
		request:    request,
		parser:     NewParser(cfg, request),
		serializer: newSerializer(cfg, client, logger),
		ctx:        context.Background(),
	}
	c.body = newBody(client, cfg, func(n int) {
		t.BodyBytes(c.ctx, telemetry.In, n)
	})

	// nothing reads from the client yet, so that's merely a probe
	c.interruptible = client.Interrupt()
	client.Resume()

	return c
}

// Serve runs exchanges until the connection closes. It returns nil if the connection was
// closed in an orderly way, http.ErrDisconnected if the client went away while the request
// was processed and the response couldn't be delivered, and the terminal error otherwise. Canceling the context aborts awaiting the
// next request; the response to a request being processed is still sent, but the connection
// is closed afterward.
func (c *Conn) Serve(ctx context.Context) error {
	stop := c.bind(ctx)
	defer stop()

	for c.serve(ctx) {
	}

	return c.err
}

// ServeOnce serves a single exchange and reports whether the connection may serve more.
func (c *Conn) ServeOnce(ctx context.Context) bool {
	stop := c.bind(ctx)
	defer stop()

	return c.serve(ctx)
}

func (c *Conn) State() State {
	return c.state
}

// Exchanges returns the number of responses sent.
func (c *Conn) Exchanges() int {
	return c.exchanges
}

// Err returns the error the connection was terminated with, if any.
func (c *Conn) Err() error {
	return c.err
}

func (c *Conn) bind(ctx context.Context) (stop func() bool) {
	c.ctx = ctx

	return context.AfterFunc(ctx, c.interrupt)
}

func (c *Conn) serve(ctx context.Context) bool {
	if c.state >= Closing {
		return false
	}

	if ctx.Err() != nil {
		return c.close(ctx, telemetry.ReasonCanceled, nil)
	}

	request := c.request
	request.Reset()
	c.state = AwaitingRequest
	c.client.SetTimeout(c.cfg.NET.IdleTimeout)

	for {
		data, err := c.client.Read()
		if err != nil {
			return c.readFailed(ctx, err)
		}

		if c.state == AwaitingRequest {
			c.state = ReadingHead
			c.client.SetTimeout(c.cfg.NET.ReadTimeout)
		}

		done, extra, err := c.parser.Parse(data)
		if err != nil {
			return c.reject(ctx, err)
		}

		if done {
			c.client.Pushback(extra)
			break
		}
	}

	f, err := framing.Request(request.Headers, request.Protocol)
	if err != nil {
		return c.reject(ctx, err)
	}

	if f.Kind == framing.Fixed && f.Length > c.cfg.Body.MaxSize {
		return c.reject(ctx, status.ErrBodyTooLarge)
	}

	expectContinue, err := expectation(request)
	if err != nil {
		return c.reject(ctx, err)
	}

	request.Framing = f
	c.body.Reset(f, expectContinue)
	request.Body.Reset(c.body)
	c.state = ReadingBody

	c.logger.Debug("request received",
		slog.String("method", request.MethodToken),
		slog.String("target", request.Target),
		slog.String("protocol", request.Protocol.String()),
		slog.String("framing", f.String()),
	)

	return c.exchange(ctx)
}

func (c *Conn) exchange(ctx context.Context) bool {
	request := c.request
	exchangeCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	request.SetContext(exchangeCtx)

	w := c.watch(request, cancel)
	response := c.handle(request)
	disconnected := c.unwatch(ctx, w)
	fields := response.Reveal()

	if disconnected {
		// the client might have only shut down its writing side, so the response is still
		// attempted once. Whether the client is gone for real is told by the write
		c.logger.Debug("client stopped sending while the request was processed")
	}

	fields = c.sanitize(request, fields)

	// the rest of the request body must never be mistaken for the next request
	keepAlive := !disconnected
	bodyErr := c.body.drain()
	if bodyErr != nil {
		keepAlive = false
		if errors.Is(bodyErr, errUndrainable) || interrupted(ctx, bodyErr) {
			bodyErr = nil
		}
	}

	c.state = WritingHead
	f := c.prepare(request, fields)
	upgrade := keepAlive && fields.Upgrade != nil &&
		(fields.Code == status.SwitchingProtocols || request.Method == method.CONNECT && fields.Code/100 == 2)
	keepAlive = keepAlive && !upgrade && c.keepAlive(ctx, request, fields, f)

	switch {
	case upgrade:
	case !keepAlive:
		fields.Headers.Set("Connection", "close")
	case request.Protocol == proto.HTTP10:
		fields.Headers.Set("Connection", "keep-alive")
	}

	c.serializer.Head(request.Protocol, fields)
	c.logger.Debug("responding",
		slog.Int("status", int(fields.Code)),
		slog.String("framing", f.String()),
		slog.Bool("keep_alive", keepAlive),
	)

	if upgrade {
		return c.upgrade(ctx, fields)
	}

	c.state = WritingBody
	written, err := c.serializer.Body(fields, f)
	c.telemetry.BodyBytes(ctx, telemetry.Out, int(written))

	if err != nil {
		notify(fields, false)
		switch {
		case disconnected && http.KindOf(err) == http.KindTransport:
			return c.close(ctx, telemetry.ReasonDisconnected, http.ErrDisconnected)
		case errors.Is(err, http.ErrBodyOverflow) || errors.Is(err, http.ErrBodyUnderflow):
			err = &http.HandlerError{Err: err}
		}

		return c.close(ctx, reasonOf(err), err)
	}

	c.exchanges++
	notify(fields, true)
	c.telemetry.Exchange(ctx, fields.Code, keepAlive)

	switch {
	case bodyErr != nil:
		return c.close(ctx, reasonOf(bodyErr), bodyErr)
	case ctx.Err() != nil:
		return c.close(ctx, telemetry.ReasonCanceled, nil)
	case !keepAlive:
		return c.close(ctx, telemetry.ReasonClose, nil)
	}

	return true
}

func (c *Conn) handle(request *http.Request) (response *http.Response) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("handler panicked", slog.Any("panic", p))
			response = c.onError(request, &http.HandlerError{Panic: p})
		}
	}()

	if response = c.handler.OnRequest(request); response == nil {
		response = request.Respond()
	}

	return response
}

func (c *Conn) onError(request *http.Request, err error) (response *http.Response) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("error handler panicked", slog.Any("panic", p))
			response = request.Respond().Error(status.ErrInternalServerError)
		}
	}()

	if response = c.handler.OnError(request, err); response == nil {
		response = request.Respond().Error(http.Public(err))
	}

	return response
}

// sanitize replaces responses with status codes that can't complete an exchange.
func (c *Conn) sanitize(request *http.Request, fields *http.Fields) *http.Fields {
	code := fields.Code

	switch {
	case !status.Valid(code):
		c.logger.Error("handler responded with an invalid status code", slog.Int("status", int(code)))
	case status.Informational(code) && (code != status.SwitchingProtocols || fields.Upgrade == nil):
		c.logger.Error("handler responded with an interim status code", slog.Int("status", int(code)))
	default:
		return fields
	}

	return request.Respond().Error(status.ErrInternalServerError).Reveal()
}

// prepare resolves the framing of the response. If the headers set by the handler leave the
// framing ambiguous, they're dropped in favor of the ones derived from the body.
func (c *Conn) prepare(request *http.Request, fields *http.Fields) framing.Framing {
	f, err := c.serializer.Prepare(request, fields)
	if err != nil {
		c.logger.Warn("dropping contradicting response framing headers", slog.String("error", err.Error()))
		fields.Headers.Delete(contentLength).Delete(transferEncoding)
		// can't fail, as there's nothing to contradict anymore
		f, _ = c.serializer.Prepare(request, fields)
	}

	return f
}

func (c *Conn) keepAlive(ctx context.Context, request *http.Request, fields *http.Fields, f framing.Framing) bool {
	if ctx.Err() != nil || f.Kind == framing.UntilClose {
		return false
	}

	reqConnection := slices.Collect(request.Headers.Values("Connection"))
	if httpguts.HeaderValuesContainsToken(reqConnection, "close") {
		return false
	}

	respConnection := slices.Collect(fields.Headers.Values("Connection"))
	if httpguts.HeaderValuesContainsToken(respConnection, "close") {
		return false
	}

	switch request.Protocol {
	case proto.HTTP11:
		return true
	case proto.HTTP10:
		return httpguts.HeaderValuesContainsToken(reqConnection, "keep-alive")
	default:
		return false
	}
}

func (c *Conn) upgrade(ctx context.Context, fields *http.Fields) bool {
	if err := c.serializer.Flush(); err != nil {
		notify(fields, false)
		return c.close(ctx, telemetry.ReasonTransport, err)
	}

	c.exchanges++
	c.state = Upgraded
	c.telemetry.Exchange(ctx, fields.Code, false)
	c.telemetry.Closed(ctx, telemetry.ReasonUpgrade)
	c.logger.Debug("connection upgraded")
	notify(fields, true)
	fields.Upgrade(c.client)

	return false
}

// reject answers the malformed request with an error and closes the connection.
func (c *Conn) reject(ctx context.Context, err error) bool {
	code := status.BadRequest
	var httpErr status.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
	}

	c.logger.Warn("malformed request", slog.String("error", err.Error()), slog.Int("status", int(code)))
	c.telemetry.Malformed(ctx, code)

	request := c.request
	request.Framing = framing.Empty
	request.Body.Reset(c.body)
	c.body.Reset(framing.Empty, false)

	fields := c.onError(request, err).Reveal()
	fields.Upgrade = nil
	if !status.Valid(fields.Code) || status.Informational(fields.Code) {
		fields = request.Respond().Error(http.Public(err)).Reveal()
	}

	c.state = WritingHead
	f := c.prepare(request, fields)
	fields.Headers.Set("Connection", "close")
	c.serializer.Head(request.Protocol, fields)
	c.state = WritingBody
	// the client might be gone already, so that's the best effort
	_, werr := c.serializer.Body(fields, f)
	notify(fields, werr == nil)

	return c.close(ctx, telemetry.ReasonMalformed, err)
}

func (c *Conn) readFailed(ctx context.Context, err error) bool {
	timeout := errors.Is(err, os.ErrDeadlineExceeded)

	switch {
	case errors.Is(err, transport.ErrInterrupted):
		return c.close(ctx, telemetry.ReasonCanceled, nil)
	case !c.parser.Started() && (err == io.EOF || timeout):
		return c.close(ctx, telemetry.ReasonEOF, nil)
	case timeout:
		return c.reject(ctx, status.ErrRequestTimeout)
	case err == io.EOF:
		// the head was cut off
		return c.reject(ctx, status.ErrBadRequest)
	default:
		return c.close(ctx, telemetry.ReasonTransport, &http.TransportError{Op: "read", Err: err})
	}
}

func (c *Conn) close(ctx context.Context, reason string, err error) bool {
	c.state = Closing
	c.err = err
	c.serializer.Discard()

	switch {
	case err == nil:
		c.logger.Debug("connection closed", slog.String("reason", reason))
	case reason == telemetry.ReasonTransport:
		c.logger.Error("connection closed", slog.String("reason", reason), slog.String("error", err.Error()))
	default:
		c.logger.Debug("connection closed", slog.String("reason", reason), slog.String("error", err.Error()))
	}

	c.telemetry.Closed(ctx, reason)
	if cerr := c.client.Close(); cerr != nil {
		c.logger.Debug("closing the transport", slog.String("error", cerr.Error()))
	}

	c.state = Closed
	return false
}

// expectation tells whether the client waits for 100 Continue before sending the body.
func expectation(request *http.Request) (bool, error) {
	value, found := request.Headers.Get("Expect")
	if !found {
		return false, nil
	}

	if !strcomp.EqualFold(value, "100-continue") {
		return false, status.ErrExpectationFailed
	}

	return request.Protocol == proto.HTTP11, nil
}

// interrupted reports whether the error is caused by the serving context being done.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, transport.ErrInterrupted)
}

func notify(fields *http.Fields, ok bool) {
	if fields.OnSent != nil {
		fields.OnSent(ok)
	}
}

func reasonOf(err error) string {
	switch http.KindOf(err) {
	case http.KindMalformed:
		return telemetry.ReasonMalformed
	case http.KindFraming:
		return telemetry.ReasonFraming
	case http.KindTransport:
		return telemetry.ReasonTransport
	case http.KindDisconnected:
		return telemetry.ReasonDisconnected
	case http.KindHandler:
		return telemetry.ReasonHandler
	default:
		return telemetry.ReasonClose
	}
}
