package http1

import (
	"errors"
	"io"

	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/http/framing"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/transport"
)

var continueResponse = []byte("HTTP/1.1 100 Continue\r\n\r\n")

// errUndrainable is returned by drain when skipping the rest of the body isn't worth it or
// isn't safe.
var errUndrainable = errors.New("request body cannot be drained")

// body reads a single request body out of the client. It never reads past the body
// boundary: whatever follows it is pushed back into the client.
type body struct {
	client   transport.Client
	cfg      config.Body
	framing  framing.Framing
	left     uint64
	received uint64
	chunked  chunkedParser
	err      error
	// expectContinue is set if the client waits for the interim 100 Continue response before
	// sending the body, which hasn't been sent yet.
	expectContinue bool
	onRead         func(n int)
}

func newBody(client transport.Client, cfg *config.Config, onRead func(n int)) *body {
	return &body{
		client:  client,
		cfg:     cfg.Body,
		chunked: newChunkedParser(cfg.Headers.Space.Maximal),
		err:     io.EOF,
		onRead:  onRead,
	}
}

// Reset prepares the reader for the next request.
func (b *body) Reset(f framing.Framing, expectContinue bool) {
	b.framing = f
	b.left = f.Length
	b.received = 0
	b.chunked.reset()
	b.err = nil
	b.expectContinue = expectContinue && !f.Bodiless()

	if f.Bodiless() {
		b.err = io.EOF
	}
}

// Fetch implements http.Retriever.
func (b *body) Fetch() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}

	var (
		data []byte
		err  error
	)

	switch b.framing.Kind {
	case framing.Fixed:
		data, err = b.fixed()
	case framing.Chunked:
		data, err = b.chunkedPiece()
	case framing.UntilClose:
		data, err = b.untilClose()
	default:
		err = io.EOF
	}

	if err != nil {
		b.err = err
	}

	if b.onRead != nil {
		b.onRead(len(data))
	}

	return data, err
}

func (b *body) fixed() ([]byte, error) {
	data, err := b.read()
	if err != nil {
		return nil, err
	}

	n := min(uint64(len(data)), b.left)
	piece, extra := data[:n], data[n:]
	b.client.Pushback(extra)

	if b.left -= n; b.left == 0 {
		return piece, io.EOF
	}

	return piece, nil
}

func (b *body) chunkedPiece() ([]byte, error) {
	for {
		data, err := b.read()
		if err != nil {
			return nil, err
		}

		chunk, extra, err := b.chunked.Parse(data)
		switch err {
		case nil, io.EOF:
		default:
			return nil, &http.FramingError{Err: err}
		}

		if b.received += uint64(len(chunk)); b.received > b.cfg.MaxSize {
			return nil, status.ErrBodyTooLarge
		}

		b.client.Pushback(extra)
		if len(chunk) > 0 || err == io.EOF {
			return chunk, err
		}
	}
}

func (b *body) untilClose() ([]byte, error) {
	data, err := b.client.Read()
	switch {
	case err == io.EOF:
		return nil, io.EOF
	case err != nil:
		return nil, &http.TransportError{Op: "read", Err: err}
	}

	if b.received += uint64(len(data)); b.received > b.cfg.MaxSize {
		return nil, status.ErrBodyTooLarge
	}

	return data, nil
}

// read returns the next piece of data from the client. Premature end of the stream is
// a framing violation, as the body is known to be incomplete.
func (b *body) read() ([]byte, error) {
	if b.expectContinue {
		b.expectContinue = false

		if len(b.client.Pending()) == 0 {
			if _, err := b.client.Write(continueResponse); err != nil {
				return nil, &http.TransportError{Op: "write", Err: err}
			}
		}
	}

	data, err := b.client.Read()
	switch {
	case err == nil:
		return data, nil
	case err == io.EOF:
		return nil, &http.FramingError{Err: io.ErrUnexpectedEOF}
	default:
		return nil, &http.TransportError{Op: "read", Err: err}
	}
}

// Done reports whether the body was read to its very end.
func (b *body) Done() bool {
	return b.err == io.EOF
}

// drain skips the rest of the body, so the next request can be read. The body isn't drained
// if the client still waits for the 100 Continue response or if the rest is longer than the
// configured limit.
func (b *body) drain() error {
	switch {
	case b.err == io.EOF:
		return nil
	case b.err != nil:
		return b.err
	case b.expectContinue:
		return errUndrainable
	case b.framing.Kind == framing.Fixed && b.left > b.cfg.MaxDiscard:
		return errUndrainable
	case b.framing.Kind == framing.UntilClose:
		return errUndrainable
	}

	budget := b.cfg.MaxDiscard
	for {
		data, err := b.Fetch()
		if uint64(len(data)) > budget {
			return errUndrainable
		}

		budget -= uint64(len(data))

		switch err {
		case nil:
		case io.EOF:
			return nil
		default:
			return err
		}
	}
}
