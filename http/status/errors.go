package status

// HTTPError is a request that cannot be served, along with the status code of the response
// the client deserves. Every one of them ends the connection once the error response is sent.
type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

var (
	ErrBadRequest                 = NewError(BadRequest, "bad request")
	ErrBadMethod                  = NewError(BadRequest, "malformed request method")
	ErrBadRequestTarget           = NewError(BadRequest, "malformed request target")
	ErrBadProtocol                = NewError(BadRequest, "malformed protocol version")
	ErrBadHeaderName              = NewError(BadRequest, "invalid header field name")
	ErrBadHeaderValue             = NewError(BadRequest, "invalid header field value")
	ErrObsoleteLineFolding        = NewError(BadRequest, "obsolete line folding is not allowed")
	ErrBareCR                     = NewError(BadRequest, "bare CR in the request head")
	ErrBadContentLength           = NewError(BadRequest, "invalid Content-Length value")
	ErrConflictingContentLength   = NewError(BadRequest, "conflicting Content-Length values")
	ErrAmbiguousFraming           = NewError(BadRequest, "both Transfer-Encoding and Content-Length are set")
	ErrUnchunkedTransferEncoding  = NewError(BadRequest, "last transfer coding must be chunked")
	ErrTransferEncodingHTTP10     = NewError(BadRequest, "transfer codings are not allowed in HTTP/1.0")
	ErrBadChunk                   = NewError(BadRequest, "malformed chunk-encoded data")
	ErrBodyTooLarge               = NewError(RequestEntityTooLarge, "request body is too large")
	ErrURITooLong                 = NewError(RequestURITooLong, "request URI too long")
	ErrHeaderFieldsTooLarge       = NewError(RequestHeaderFieldsTooLarge, "too large headers section")
	ErrTooManyHeaders             = NewError(RequestHeaderFieldsTooLarge, "too many headers")
	ErrTrailerTooLarge            = NewError(RequestHeaderFieldsTooLarge, "too large chunked trailer section")
	ErrUnsupportedTransferCoding  = NewError(NotImplemented, "transfer coding is not supported")
	ErrHTTPVersionNotSupported    = NewError(HTTPVersionNotSupported, "HTTP version not supported")
	ErrInternalServerError        = NewError(InternalServerError, "internal server error")
	ErrRequestTimeout             = NewError(RequestTimeout, "request timeout")
	ErrServiceUnavailable         = NewError(ServiceUnavailable, "service unavailable")
	ErrExpectationFailed          = NewError(ExpectationFailed, "expectation failed")
	ErrNotImplemented             = NewError(NotImplemented, "not implemented")
	ErrUpgradeRequired            = NewError(UpgradeRequired, "upgrade required")
	ErrUnsupportedMediaType       = NewError(UnsupportedMediaType, "unsupported media type")
	ErrLengthRequired             = NewError(LengthRequired, "length required")
	ErrMisdirectedRequest         = NewError(MisdirectedRequest, "misdirected request")
	ErrUnavailableForLegalReasons = NewError(UnavailableForLegalReasons, "unavailable for legal reasons")
)
