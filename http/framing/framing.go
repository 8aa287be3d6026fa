// Package framing decides how the body of a message is delimited. It does no I/O, the
// decision is derived once from the message head and never changes afterwards.
package framing

import (
	"iter"
	"strconv"

	"github.com/indigo-web/h1/http/method"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/kv"
	"github.com/indigo-web/utils/strcomp"
)

type Kind uint8

const (
	// None means the message carries no body at all.
	None Kind = iota
	// Fixed bodies are exactly Framing.Length bytes long.
	Fixed
	// Chunked bodies are a sequence of length-prefixed chunks terminated by a zero-length one.
	Chunked
	// UntilClose bodies last until the transport is closed by the sender.
	UntilClose
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Fixed:
		return "fixed"
	case Chunked:
		return "chunked"
	case UntilClose:
		return "until-close"
	default:
		return "unknown"
	}
}

type Framing struct {
	Kind   Kind
	Length uint64
}

// Empty is a body of zero length. Requests without any framing headers carry it.
var Empty = Framing{Kind: Fixed}

func WithLength(n uint64) Framing {
	return Framing{Kind: Fixed, Length: n}
}

// Bodiless reports whether there are no body bytes to expect at all.
func (f Framing) Bodiless() bool {
	return f.Kind == None || (f.Kind == Fixed && f.Length == 0)
}

func (f Framing) String() string {
	if f.Kind == Fixed {
		return "fixed(" + strconv.FormatUint(f.Length, 10) + ")"
	}

	return f.Kind.String()
}

const (
	contentLength    = "content-length"
	transferEncoding = "transfer-encoding"
	chunked          = "chunked"
)

// Request resolves the framing of a request body. Any ambiguity is an error: a request
// declaring both Transfer-Encoding and Content-Length, disagreeing Content-Length values or
// transfer codings in HTTP/1.0 are rejected rather than guessed.
func Request(headers *kv.Storage, protocol proto.Proto) (Framing, error) {
	if headers.Has(transferEncoding) {
		if protocol == proto.HTTP10 {
			return Framing{}, status.ErrTransferEncodingHTTP10
		}

		if headers.Has(contentLength) {
			return Framing{}, status.ErrAmbiguousFraming
		}

		last, count := lastCoding(headers)
		switch {
		case !strcomp.EqualFold(last, chunked):
			return Framing{}, status.ErrUnchunkedTransferEncoding
		case count > 1:
			// codings applied before chunked would have to be decoded by us, which isn't supported
			return Framing{}, status.ErrUnsupportedTransferCoding
		}

		return Framing{Kind: Chunked}, nil
	}

	if !headers.Has(contentLength) {
		return Empty, nil
	}

	length, err := ContentLength(headers)
	if err != nil {
		return Framing{}, err
	}

	return WithLength(length), nil
}

// Response resolves the framing of a response body sent in answer to a request with the
// method m.
func Response(headers *kv.Storage, m method.Method, code status.Code) (Framing, error) {
	switch {
	case m == method.HEAD,
		status.Informational(code),
		code == status.NoContent,
		code == status.NotModified,
		m == method.CONNECT && code/100 == 2:
		return Framing{Kind: None}, nil
	}

	if headers.Has(transferEncoding) {
		if headers.Has(contentLength) {
			return Framing{}, status.ErrAmbiguousFraming
		}

		if IsChunked(headers) {
			return Framing{Kind: Chunked}, nil
		}

		return Framing{Kind: UntilClose}, nil
	}

	if headers.Has(contentLength) {
		length, err := ContentLength(headers)
		if err != nil {
			return Framing{}, err
		}

		return WithLength(length), nil
	}

	// nothing but the end of the connection delimits the body, so the connection can't
	// outlive this message.
	return Framing{Kind: UntilClose}, nil
}

// IsChunked reports whether chunked is the final transfer coding of the message.
func IsChunked(headers *kv.Storage) bool {
	last, _ := lastCoding(headers)
	return strcomp.EqualFold(last, chunked)
}

// ContentLength returns the value all the Content-Length fields agree on. Both repeated
// fields and comma-separated lists of identical values are accepted.
func ContentLength(headers *kv.Storage) (length uint64, err error) {
	seen := false

	for value := range Tokens(headers.Values(contentLength)) {
		n, ok := parseDecimal(value)
		if !ok {
			return 0, status.ErrBadContentLength
		}

		if seen && n != length {
			return 0, status.ErrConflictingContentLength
		}

		length, seen = n, true
	}

	if !seen {
		return 0, status.ErrBadContentLength
	}

	return length, nil
}

// Tokens iterates over elements of comma-separated list values, trimming optional whitespaces
// around them and skipping empty ones.
func Tokens(values iter.Seq[string]) iter.Seq[string] {
	return func(yield func(string) bool) {
		for value := range values {
			for len(value) > 0 {
				var token string

				for i := 0; i <= len(value); i++ {
					if i == len(value) || value[i] == ',' {
						token, value = value[:i], value[min(i+1, len(value)):]
						break
					}
				}

				if token = trimOWS(token); len(token) == 0 {
					continue
				}

				if !yield(token) {
					return
				}
			}
		}
	}
}

func lastCoding(headers *kv.Storage) (last string, count int) {
	for token := range Tokens(headers.Values(transferEncoding)) {
		last = token
		count++
	}

	return last, count
}

func parseDecimal(str string) (n uint64, ok bool) {
	if len(str) == 0 {
		return 0, false
	}

	for i := range len(str) {
		c := str[i]
		if c < '0' || c > '9' {
			return 0, false
		}

		next := n*10 + uint64(c-'0')
		if next/10 != n {
			// overflow
			return 0, false
		}

		n = next
	}

	return n, true
}

func trimOWS(str string) string {
	for len(str) > 0 && (str[0] == ' ' || str[0] == '\t') {
		str = str[1:]
	}

	for len(str) > 0 && (str[len(str)-1] == ' ' || str[len(str)-1] == '\t') {
		str = str[:len(str)-1]
	}

	return str
}
