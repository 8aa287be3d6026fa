package http

import (
	"context"
	"net"
	"strings"

	"github.com/indigo-web/h1/http/framing"
	"github.com/indigo-web/h1/http/method"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/kv"
)

type (
	Headers = *kv.Storage
	Header  = kv.Pair
)

// Request represents the head of an HTTP request along with the access to its body.
type Request struct {
	// Method is an enum representing the request method. Extension methods are method.Unknown.
	Method method.Method
	// MethodToken is the method exactly as it was received. That's the only way to tell what
	// extension method was requested.
	MethodToken string
	// Target is the raw request target, neither decoded nor normalized.
	Target string
	// Protocol is either proto.HTTP10 or proto.HTTP11.
	Protocol proto.Proto
	// Headers holds non-normalized header pairs in their order of arrival, even though lookup is
	// case-insensitive. Duplicates are preserved.
	Headers Headers
	// Framing describes how the body is delimited.
	Framing framing.Framing
	// Remote holds the remote address, if known. Please note that this is generally not a good
	// parameter to identify a user, because there might be proxies in the middle.
	Remote net.Addr
	// Body is a dedicated entity providing access to the message body.
	Body     *Body
	ctx      context.Context
	response *Response
}

func NewRequest(headers *kv.Storage, response *Response, remote net.Addr) *Request {
	request := &Request{
		Protocol: proto.HTTP11,
		Headers:  headers,
		Remote:   remote,
		ctx:      context.Background(),
		response: response,
	}
	request.Body = NewBody(request)

	return request
}

// Context returns the context of the exchange. It's canceled with the cause ErrDisconnected if
// the client goes away before the response is sent.
func (r *Request) Context() context.Context {
	return r.ctx
}

// SetContext replaces the context of the exchange.
func (r *Request) SetContext(ctx context.Context) {
	r.ctx = ctx
}

// Path returns the request target without the query.
func (r *Request) Path() string {
	path, _, _ := strings.Cut(r.Target, "?")
	return path
}

// Query returns the raw query of the request target, if any.
func (r *Request) Query() string {
	_, query, _ := strings.Cut(r.Target, "?")
	return query
}

// Respond returns Response object.
//
// WARNING: this method clears the response builder under the hood. As it is passed
// by reference, it'll be cleared EVERYWHERE along a handler
func (r *Request) Respond() *Response {
	return r.response.Clear()
}

// Reset the request
func (r *Request) Reset() {
	r.Method = method.Unknown
	r.MethodToken = ""
	r.Target = ""
	r.Protocol = proto.HTTP11
	r.Headers.Clear()
	r.Framing = framing.Empty
	r.ctx = context.Background()
}
