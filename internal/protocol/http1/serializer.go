package http1

import (
	"io"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/http/framing"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/transport"
	"golang.org/x/net/http/httpguts"
)

const (
	contentLength    = "Content-Length"
	transferEncoding = "Transfer-Encoding"
	// timeFormat is the IMF-fixdate format.
	timeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// serializer renders responses into the client. Everything is accumulated in the buffer, so
// the head is never split between writes: it goes out either completely or along with
// the first piece of the body.
type serializer struct {
	cfg        *config.Config
	client     transport.Client
	logger     *slog.Logger
	buff       []byte
	streamBuff []byte
	writer     BodyWriter
}

func newSerializer(cfg *config.Config, client transport.Client, logger *slog.Logger) *serializer {
	return &serializer{
		cfg:    cfg,
		client: client,
		logger: logger,
		buff:   make([]byte, 0, cfg.NET.WriteBufferSize.Default),
	}
}

// Prepare normalizes the framing-related headers of the response and resolves its framing.
// Bodies of known size get Content-Length, the unsized ones are chunked for HTTP/1.1 clients
// and delimited by the connection closure otherwise.
func (s *serializer) Prepare(request *http.Request, fields *http.Fields) (framing.Framing, error) {
	headers := fields.Headers
	size := int64(len(fields.Body))
	if fields.Stream != nil {
		size = fields.StreamSize
	}

	switch code := fields.Code; {
	case status.Informational(code), code == status.NoContent:
		headers.Delete(contentLength).Delete(transferEncoding)
	case code == status.NotModified:
		headers.Delete(transferEncoding)
	default:
		if request.Protocol != proto.HTTP11 {
			headers.Delete(transferEncoding)
		}

		switch {
		case headers.Has(transferEncoding):
			if framing.IsChunked(headers) {
				headers.Delete(contentLength)
			}
		case headers.Has(contentLength):
		case size >= 0:
			headers.Set(contentLength, strconv.FormatInt(size, 10))
		case request.Protocol == proto.HTTP11:
			headers.Set(transferEncoding, "chunked")
		}
	}

	return framing.Response(headers, request.Method, fields.Code)
}

// Head renders the status line and the header fields. Nothing is written into the client yet.
func (s *serializer) Head(protocol proto.Proto, fields *http.Fields) {
	if protocol == proto.Unknown {
		// the request line might be malformed before the protocol was reached.
		protocol = proto.HTTP11
	}

	s.buff = append(s.buff, protocol.String()...)
	s.sp()
	s.buff = append(s.buff, status.StringCode(fields.Code)...)
	s.sp()

	reason := string(fields.Status)
	if len(reason) == 0 || !httpguts.ValidHeaderFieldValue(reason) {
		reason = string(status.Text(fields.Code))
	}

	s.buff = append(s.buff, reason...)
	s.crlf()

	for key, value := range fields.Headers.Pairs() {
		if !httpguts.ValidHeaderFieldName(key) || !httpguts.ValidHeaderFieldValue(value) {
			s.logger.Warn("skipping invalid response header field", slog.String("key", key))
			continue
		}

		s.buff = append(s.buff, key...)
		s.colonsp()
		s.buff = append(s.buff, value...)
		s.crlf()
	}

	if s.cfg.Response.Date && !fields.Headers.Has("Date") {
		s.buff = append(s.buff, "Date: "...)
		s.buff = time.Now().UTC().AppendFormat(s.buff, timeFormat)
		s.crlf()
	}

	if server := s.cfg.Response.Server; len(server) > 0 && !fields.Headers.Has("Server") {
		s.buff = append(s.buff, "Server: "...)
		s.buff = append(s.buff, server...)
		s.crlf()
	}

	s.crlf()
}

// Body encodes the body according to the framing and flushes everything left in the buffer.
// The number of body bytes written is returned even if an error occurred.
func (s *serializer) Body(fields *http.Fields, f framing.Framing) (written uint64, err error) {
	w := &s.writer
	w.Reset(f, s)

	if fields.Stream == nil {
		if f.Kind == framing.Fixed {
			s.growToContain(len(fields.Body))
		}

		_, err = w.Write(fields.Body)
	} else {
		if f.Kind != framing.None {
			err = s.copyStream(w, fields.Stream)
		}

		if c, ok := fields.Stream.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = &http.HandlerError{Err: cerr}
			}
		}
	}

	if err == nil {
		err = w.Close()
	}

	if err == nil && !w.Terminated() {
		err = http.ErrUnterminatedBody
	}

	if ferr := s.Flush(); err == nil {
		err = ferr
	}

	return w.Written(), err
}

func (s *serializer) copyStream(w *BodyWriter, stream io.Reader) error {
	if len(s.streamBuff) == 0 {
		s.streamBuff = make([]byte, s.cfg.NET.WriteBufferSize.Default)
	}

	for {
		n, err := stream.Read(s.streamBuff)
		if n > 0 {
			if _, werr := w.Write(s.streamBuff[:n]); werr != nil {
				return werr
			}
		}

		switch err {
		case nil:
		case io.EOF:
			return nil
		default:
			return &http.HandlerError{Err: err}
		}
	}
}

// Write implements io.Writer. The data is accumulated in the buffer, which is flushed
// whenever it overflows.
func (s *serializer) Write(p []byte) (int, error) {
	total := len(p)

	for len(p) > 0 {
		free := cap(s.buff) - len(s.buff)
		if free == 0 {
			if err := s.Flush(); err != nil {
				return total - len(p), err
			}

			continue
		}

		n := min(free, len(p))
		s.buff = append(s.buff, p[:n]...)
		p = p[n:]
	}

	return total, nil
}

// Flush writes out everything accumulated so far.
func (s *serializer) Flush() error {
	if len(s.buff) == 0 {
		return nil
	}

	_, err := s.client.Write(s.buff)
	s.buff = s.buff[:0]
	if err != nil {
		return &http.TransportError{Op: "write", Err: err}
	}

	return nil
}

// Discard drops everything accumulated but not yet written.
func (s *serializer) Discard() {
	s.buff = s.buff[:0]
}

// growToContain makes room for n more bytes, unless the buffer would exceed its maximal size.
func (s *serializer) growToContain(n int) {
	if len(s.buff)+n > s.cfg.NET.WriteBufferSize.Maximal {
		return
	}

	s.buff = slices.Grow(s.buff, n)
}

func (s *serializer) sp() {
	s.buff = append(s.buff, ' ')
}

func (s *serializer) colonsp() {
	s.buff = append(s.buff, ':', ' ')
}

func (s *serializer) crlf() {
	s.buff = append(s.buff, crlf...)
}
