package http

import (
	"errors"
	"io"

	"github.com/indigo-web/h1/http/mime"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/kv"
	"github.com/indigo-web/h1/transport"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

const (
	// why 7? I don't know. There's no theory behind this number nor researches.
	// It can be adjusted to 10 as well, but why you would ever need to do this?
	preallocRespHeaders = 7
	// Unsized marks streams of unknown length.
	Unsized int64 = -1
)

// UpgradeFunc takes over the connection after the response head was sent. Bytes already
// received from the client but not consumed yet are available through the client's Read.
type UpgradeFunc func(client transport.Client)

// Fields is everything the response builder collected.
type Fields struct {
	Code    status.Code
	Status  status.Status
	Headers *kv.Storage
	Body    []byte
	// Stream is the source of the body. If set, Body is ignored.
	Stream io.Reader
	// StreamSize is the length of the Stream or Unsized.
	StreamSize int64
	Upgrade    UpgradeFunc
	OnSent     func(ok bool)
	// buff is the memory owned by the response. Body points into it unless it was set
	// from outside via Response.Bytes.
	buff  []byte
	owned bool
}

func (f *Fields) Clear() {
	f.Code = status.OK
	f.Status = ""
	f.Headers.Clear()
	f.Body, f.owned = f.buff[:0], true
	f.Stream = nil
	f.StreamSize = Unsized
	f.Upgrade = nil
	f.OnSent = nil
}

type Response struct {
	fields *Fields
}

// NewResponse returns a new instance of the Response object with status code set to 200 OK
// and pre-allocated space for response headers.
// NOTE: it's recommended to use Request.Respond() method inside of handlers, if there's no
// clear reason otherwise
func NewResponse() *Response {
	return &Response{
		&Fields{
			Code:       status.OK,
			Headers:    kv.NewPrealloc(preallocRespHeaders),
			StreamSize: Unsized,
		},
	}
}

// Code sets a Response code.
func (r *Response) Code(code status.Code) *Response {
	r.fields.Code = code
	return r
}

// Status sets a custom reason phrase. By default, the one registered for the code is used.
func (r *Response) Status(status status.Status) *Response {
	r.fields.Status = status
	return r
}

// ContentType sets a custom Content-Type header value.
func (r *Response) ContentType(value mime.MIME) *Response {
	r.fields.Headers.Set("Content-Type", value)
	return r
}

// Header adds header values to a key. In case it already exists the values will be
// appended.
func (r *Response) Header(key string, values ...string) *Response {
	for _, value := range values {
		r.fields.Headers.Add(key, value)
	}

	return r
}

// SetHeader replaces all the values of the key with a new one.
func (r *Response) SetHeader(key, value string) *Response {
	r.fields.Headers.Set(key, value)
	return r
}

// String sets the response's body to the passed string
func (r *Response) String(body string) *Response {
	return r.Bytes(uf.S2B(body))
}

// Bytes sets the response's body to passed slice WITHOUT COPYING. Changing
// the passed slice later will affect the response by itself
func (r *Response) Bytes(body []byte) *Response {
	r.fields.Body, r.fields.owned = body, false
	return r
}

// Write implements io.Writer interface. It always returns n=len(b) and err=nil
func (r *Response) Write(b []byte) (n int, err error) {
	f := r.fields
	if !f.owned {
		// the body might be a view over a string, so it must never be appended to in place
		f.buff = append(f.buff[:0], f.Body...)
		f.owned = true
	} else {
		f.buff = f.Body
	}

	f.buff = append(f.buff, b...)
	f.Body = f.buff

	return len(b), nil
}

// Stream sets the source of the body. Size is the exact number of bytes the reader produces, or
// Unsized if it's unknown in advance. Unsized streams are sent chunked to HTTP/1.1 clients and
// close-delimited to HTTP/1.0 ones. If the reader is an io.Closer, it's closed once consumed.
func (r *Response) Stream(reader io.Reader, size int64) *Response {
	r.fields.Stream = reader
	r.fields.StreamSize = size
	return r
}

// TryJSON receives a model (must be a pointer to the structure) and returns a new Response
// object and an error
func (r *Response) TryJSON(model any) (*Response, error) {
	r.fields.Body, r.fields.owned = r.fields.buff[:0], true
	stream := json.ConfigDefault.BorrowStream(r)
	stream.WriteVal(model)
	err := stream.Flush()
	json.ConfigDefault.ReturnStream(stream)

	return r.ContentType(mime.JSON), err
}

// JSON does the same as TryJSON does, except returned error is being implicitly wrapped
// by Error
func (r *Response) JSON(model any) *Response {
	resp, err := r.TryJSON(model)
	if err != nil {
		return r.Error(err)
	}

	return resp
}

// Error returns a response builder with an error set. If passed err is nil, nothing will happen.
// If an instance of status.HTTPError is passed, error code will be automatically set. Custom
// codes can be passed, however only first will be used. By default, the error is
// status.ErrInternalServerError
func (r *Response) Error(err error, code ...status.Code) *Response {
	if err == nil {
		return r
	}

	var httpErr status.HTTPError
	if errors.As(err, &httpErr) {
		return r.
			Code(httpErr.Code).
			String(httpErr.Message)
	}

	c := status.InternalServerError
	if len(code) > 0 {
		// peek the first, ignore the rest
		c = code[0]
	}

	return r.
		Code(c).
		String(err.Error())
}

// Upgrade makes the connection be handed over to the callback once the response head is sent.
// It takes effect only for 101 Switching Protocols responses and successful answers to CONNECT.
func (r *Response) Upgrade(fn UpgradeFunc) *Response {
	r.fields.Upgrade = fn
	return r
}

// OnSent sets a hook called once the response is either completely transmitted (ok is true)
// or abandoned.
func (r *Response) OnSent(fn func(ok bool)) *Response {
	r.fields.OnSent = fn
	return r
}

// Reveal returns a struct with values, filled by builder. Used mostly in internal purposes
func (r *Response) Reveal() *Fields {
	return r.fields
}

// Clear discards everything was done with Response object before
func (r *Response) Clear() *Response {
	r.fields.Clear()
	return r
}

// Respond is a predicate to request.Respond(). May be used as a dummy handler
func Respond(request *Request) *Response {
	return request.Respond()
}

// Code is a predicate to request.Respond().Code(...)
func Code(request *Request, code status.Code) *Response {
	return request.Respond().Code(code)
}

// String is a predicate to request.Respond().String(...)
func String(request *Request, str string) *Response {
	return request.Respond().String(str)
}

// Bytes is a predicate to request.Respond().Bytes(...)
func Bytes(request *Request, b []byte) *Response {
	return request.Respond().Bytes(b)
}

// JSON is a predicate to request.Respond().JSON(...)
func JSON(request *Request, model any) *Response {
	return request.Respond().JSON(model)
}

// Error is a predicate to request.Respond().Error(...)
func Error(request *Request, err error, code ...status.Code) *Response {
	return request.Respond().Error(err, code...)
}
