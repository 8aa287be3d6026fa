package http1

import (
	"io"

	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/http/framing"
	"github.com/indigo-web/h1/internal/hexconv"
)

const crlf = "\r\n"

var chunkZeroTrailer = []byte("0\r\n\r\n")

// BodyWriter encodes a message body according to its framing. Fixed bodies must be written
// exactly to their length, chunked ones are terminated by Close. Bytes of bodies framed as
// None are silently dropped.
type BodyWriter struct {
	w       io.Writer
	framing framing.Framing
	left    uint64
	written uint64
	closed  bool
	scratch []byte
}

func NewBodyWriter(f framing.Framing, w io.Writer) *BodyWriter {
	b := new(BodyWriter)
	b.Reset(f, w)
	return b
}

func (b *BodyWriter) Reset(f framing.Framing, w io.Writer) {
	b.w = w
	b.framing = f
	b.left = f.Length
	b.written = 0
	b.closed = false
}

func (b *BodyWriter) Write(p []byte) (n int, err error) {
	if b.closed {
		return 0, io.ErrClosedPipe
	}

	switch b.framing.Kind {
	case framing.None:
		return len(p), nil
	case framing.Fixed:
		if uint64(len(p)) > b.left {
			n, err = b.w.Write(p[:b.left])
			b.account(n)
			if err == nil {
				err = http.ErrBodyOverflow
			}

			return n, err
		}

		n, err = b.w.Write(p)
		b.account(n)
		return n, err
	case framing.Chunked:
		if len(p) == 0 {
			// zero-length chunk is the terminator
			return 0, nil
		}

		b.scratch = hexconv.Append(b.scratch[:0], uint64(len(p)))
		b.scratch = append(b.scratch, crlf...)
		if _, err = b.w.Write(b.scratch); err != nil {
			return 0, err
		}

		if n, err = b.w.Write(p); err != nil {
			return n, err
		}

		b.written += uint64(n)
		_, err = io.WriteString(b.w, crlf)
		return n, err
	default:
		n, err = b.w.Write(p)
		b.written += uint64(n)
		return n, err
	}
}

func (b *BodyWriter) account(n int) {
	b.left -= uint64(n)
	b.written += uint64(n)
}

// Close completes the body. It writes the terminating chunk for chunked bodies and fails with
// http.ErrBodyUnderflow if a fixed body wasn't written completely.
func (b *BodyWriter) Close() error {
	if b.closed {
		return nil
	}

	b.closed = true

	switch b.framing.Kind {
	case framing.Fixed:
		if b.left > 0 {
			return http.ErrBodyUnderflow
		}
	case framing.Chunked:
		_, err := b.w.Write(chunkZeroTrailer)
		return err
	}

	return nil
}

// Terminated reports whether the receiver is able to tell where the body ends: fixed bodies
// must be complete, chunked ones must have the terminating chunk written.
func (b *BodyWriter) Terminated() bool {
	switch b.framing.Kind {
	case framing.Fixed:
		return b.left == 0
	case framing.Chunked:
		return b.closed
	default:
		return true
	}
}

// Written returns the number of body bytes written, excluding the chunked encoding overhead.
func (b *BodyWriter) Written() uint64 {
	return b.written
}
