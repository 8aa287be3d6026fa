package http

// Handler serves exchanges. OnRequest is invoked exactly once per request which was received
// completely, OnError is invoked instead when the request couldn't be received or OnRequest
// failed before anything was sent. In the latter case the request may be partially filled.
//
// Returning nil is the same as returning an unmodified Request.Respond().
type Handler interface {
	OnRequest(request *Request) *Response
	OnError(request *Request, err error) *Response
}

// HandlerFunc adapts a plain function to the Handler. Errors are answered with
// Response.Error, hiding everything but status.HTTPError behind 500 Internal Server Error.
type HandlerFunc func(request *Request) *Response

func (h HandlerFunc) OnRequest(request *Request) *Response {
	return h(request)
}

func (h HandlerFunc) OnError(request *Request, err error) *Response {
	return request.Respond().Error(Public(err))
}
