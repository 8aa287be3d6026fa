package http

import (
	"errors"
	"io"

	"github.com/indigo-web/h1/http/mime"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
	"golang.org/x/text/encoding/htmlindex"
)

type BodyCallback func([]byte) error

// Retriever is the source of body bytes. Fetch returns successive pieces of the body and
// io.EOF once it's over. The data returned along with io.EOF (if any) still belongs to the body.
// Returned slices are valid only until the next call.
type Retriever interface {
	Fetch() ([]byte, error)
}

type retriever = Retriever

// Body is a lazy, single-pass, forward-only view over the request body. It can be consumed
// exactly once in any of the available ways.
type Body struct {
	retriever
	request *Request
	buff    []byte
	pending []byte
	error   error
}

func NewBody(r *Request) *Body {
	return &Body{request: r}
}

// Reset binds the body to a new source of data.
func (b *Body) Reset(impl Retriever) {
	b.retriever = impl
	b.buff = b.buff[:0]
	b.pending = nil
	b.error = nil
}

// Callback invokes the callback every time as there's a piece of body available
// for reading. If the callback returns an error, it'll be passed back to the caller.
//
// Please note: this method can be used only once.
func (b *Body) Callback(cb BodyCallback) error {
	for b.error == nil {
		var data []byte
		data, b.error = b.Fetch()
		if b.error != nil && b.error != io.EOF {
			break
		}

		if len(data) > 0 {
			if err := cb(data); err != nil {
				return err
			}
		}
	}

	if b.error == io.EOF {
		return nil
	}

	return b.error
}

// Bytes returns the whole body at once in a byte representation.
func (b *Body) Bytes() ([]byte, error) {
	if len(b.buff) != 0 {
		return b.buff, nil
	}

	if b.error != nil {
		if b.error == io.EOF {
			return nil, nil
		}

		return nil, b.error
	}

	if b.buff == nil {
		b.buff = make([]byte, 0, min(b.request.Framing.Length, 64*1024))
	}

	err := b.Callback(func(data []byte) error {
		b.buff = append(b.buff, data...)
		return nil
	})

	return b.buff, err
}

// String returns the whole body at once in a string representation. If Content-Type specifies
// a charset different from UTF-8, the body is decoded from it. Unknown charsets result in
// status.ErrUnsupportedMediaType.
func (b *Body) String() (string, error) {
	raw, err := b.Bytes()
	if err != nil {
		return "", err
	}

	charset := mime.Charset(b.request.Headers.Value("content-type"))
	if len(charset) == 0 {
		return uf.B2S(raw), nil
	}

	encoding, err := htmlindex.Get(charset)
	if err != nil {
		return "", status.ErrUnsupportedMediaType
	}

	if name, _ := htmlindex.Name(encoding); name == "utf-8" {
		return uf.B2S(raw), nil
	}

	decoded, err := encoding.NewDecoder().Bytes(raw)
	if err != nil {
		return "", status.ErrBadRequest
	}

	return uf.B2S(decoded), nil
}

// Read implements the io.Reader interface.
func (b *Body) Read(into []byte) (n int, err error) {
	if len(b.pending) == 0 && b.error == nil {
		b.pending, b.error = b.Fetch()
	}

	n = copy(into, b.pending)
	b.pending = b.pending[n:]

	if len(b.pending) == 0 && b.error != nil {
		err = b.error
	}

	return n, err
}

// JSON convoys the request's body to a json unmarshaller automatically and behaves
// in a similar manner.
//
// Please note: this method cannot be used on requests with Content-Type incompatible
// with mime.JSON (in this case, status.ErrUnsupportedMediaType is returned).
func (b *Body) JSON(model any) error {
	if !mime.Complies(mime.JSON, b.request.Headers.Value("content-type")) {
		return status.ErrUnsupportedMediaType
	}

	data, err := b.Bytes()
	if err != nil {
		return err
	}

	iterator := json.ConfigDefault.BorrowIterator(data)
	iterator.ReadVal(model)
	err = iterator.Error
	json.ConfigDefault.ReturnIterator(iterator)

	return err
}

// Discard discards the rest of the body (if any). If no networking error was encountered,
// nil is returned.
func (b *Body) Discard() error {
	b.pending = nil

	for b.error == nil {
		_, b.error = b.Fetch()
	}

	if b.error == io.EOF {
		return nil
	}

	return b.error
}

// Error returns a previously encountered error, otherwise nil. Exhausted body has no error.
func (b *Body) Error() error {
	if errors.Is(b.error, io.EOF) {
		return nil
	}

	return b.error
}

// Done tells whether the body was consumed to the very end.
func (b *Body) Done() bool {
	return b.error == io.EOF
}
