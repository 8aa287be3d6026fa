package http

import (
	"errors"
	"fmt"

	"github.com/indigo-web/h1/http/status"
)

// ErrDisconnected means the peer went away while the request was still being processed. It's
// delivered as the cancellation cause of Request.Context, so abandoned work can be told apart
// from genuine failures.
var ErrDisconnected = errors.New("client disconnected")

var (
	// ErrBodyOverflow is returned when more bytes are written into a body than its
	// Content-Length declares.
	ErrBodyOverflow = errors.New("body is longer than declared")
	// ErrBodyUnderflow is returned when a body declaring Content-Length is closed before
	// all of its bytes are written.
	ErrBodyUnderflow = errors.New("body is shorter than declared")
	// ErrUnterminatedBody is returned when a chunked body is left without its terminating
	// zero-length chunk.
	ErrUnterminatedBody = errors.New("chunked body is not terminated")
)

// FramingError is a violation of the message framing in the middle of a body: malformed chunk
// syntax or a premature end of the stream. The connection can't be reused after it, as its
// byte alignment is lost.
type FramingError struct {
	Err error
}

func (f *FramingError) Error() string {
	return "framing violation: " + f.Err.Error()
}

func (f *FramingError) Unwrap() error {
	return f.Err
}

// TransportError is a failure of the underlying byte stream.
type TransportError struct {
	Op  string
	Err error
}

func (t *TransportError) Error() string {
	return "transport " + t.Op + ": " + t.Err.Error()
}

func (t *TransportError) Unwrap() error {
	return t.Err
}

// HandlerError is a failure of the handler: either a recovered panic or an error of the
// body source it provided.
type HandlerError struct {
	// Panic holds the recovered value if the handler panicked.
	Panic any
	Err   error
}

func (h *HandlerError) Error() string {
	if h.Err == nil {
		return fmt.Sprintf("handler panicked: %v", h.Panic)
	}

	return "handler failed: " + h.Err.Error()
}

func (h *HandlerError) Unwrap() error {
	return h.Err
}

type ErrorKind uint8

const (
	KindNone ErrorKind = iota
	KindMalformed
	KindFraming
	KindTransport
	KindDisconnected
	KindHandler
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMalformed:
		return "malformed"
	case KindFraming:
		return "framing"
	case KindTransport:
		return "transport"
	case KindDisconnected:
		return "disconnected"
	case KindHandler:
		return "handler"
	default:
		return "other"
	}
}

// KindOf classifies the error. Disconnection takes precedence over everything else, so does
// a framing violation over the malformed chunk that caused it.
func KindOf(err error) ErrorKind {
	var (
		framing   *FramingError
		transport *TransportError
		handler   *HandlerError
		httpErr   status.HTTPError
	)

	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrDisconnected):
		return KindDisconnected
	case errors.As(err, &framing):
		return KindFraming
	case errors.As(err, &handler):
		return KindHandler
	case errors.As(err, &transport):
		return KindTransport
	case errors.As(err, &httpErr):
		return KindMalformed
	default:
		return KindOther
	}
}

// Public returns the error itself if it's meant to be shown to the client, that is if it's
// a status.HTTPError. Otherwise, status.ErrInternalServerError is returned, so no internals
// leak into responses.
func Public(err error) error {
	var httpErr status.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	return status.ErrInternalServerError
}
