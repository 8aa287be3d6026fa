package http1

import (
	"bytes"

	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/http/method"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/buffer"
	"github.com/indigo-web/utils/uf"
	"golang.org/x/net/http/httpguts"
)

type parserState uint8

const (
	eMethod parserState = iota + 1
	eTarget
	eProtocol
	eHeaderKey
	eHeaderValue
	eHeadEndLF
)

// Parser is an incremental parser of the request head. It may be fed by arbitrary pieces of
// data, keeping everything it needs in its own buffers, so strings put into the request stay
// valid until the next request is parsed.
type Parser struct {
	state         parserState
	headersNumber int
	consumed      int
	limit         int
	cfg           *config.Config
	request       *http.Request
	requestLine   buffer.Buffer
	headers       buffer.Buffer
	key           string
}

func NewParser(cfg *config.Config, request *http.Request) *Parser {
	return &Parser{
		state:       eMethod,
		limit:       cfg.URI.RequestLineSize.Maximal + cfg.Headers.Space.Maximal,
		cfg:         cfg,
		request:     request,
		requestLine: buffer.New(cfg.URI.RequestLineSize.Default, cfg.URI.RequestLineSize.Maximal),
		headers:     buffer.New(cfg.Headers.Space.Default, cfg.Headers.Space.Maximal),
	}
}

// Parse consumes the data. Three outcomes are possible:
//   - done is false: the head isn't complete yet, more data is needed;
//   - done is true and err is nil: the head is complete, extra holds the bytes following it;
//   - err is not nil: the head is malformed, the error is always a status.HTTPError.
//
// Every byte of the head counts towards the limit, including the ones that aren't stored,
// so feeding the parser in small pieces can't circumvent it.
func (p *Parser) Parse(data []byte) (done bool, extra []byte, err error) {
	done, extra, err = p.parse(data)
	if err != nil {
		p.cleanup()
		return true, nil, err
	}

	if p.consumed += len(data) - len(extra); p.consumed > p.limit {
		err = status.ErrHeaderFieldsTooLarge
		if p.state <= eProtocol && !done {
			err = status.ErrURITooLong
		}

		p.cleanup()
		return true, nil, err
	}

	if done {
		p.cleanup()
	}

	return done, extra, nil
}

// Started tells whether any byte of the head, except for the leading empty lines,
// was received.
func (p *Parser) Started() bool {
	return p.state != eMethod || p.requestLine.SegmentLength() > 0
}

func (p *Parser) parse(data []byte) (done bool, extra []byte, err error) {
	request := p.request
	requestLine := &p.requestLine
	headers := &p.headers

	switch p.state {
	case eMethod:
		goto method
	case eTarget:
		goto target
	case eProtocol:
		goto protocol
	case eHeaderKey:
		goto headerKey
	case eHeaderValue:
		goto headerValue
	case eHeadEndLF:
		goto headEndLF
	default:
		panic("unreachable code")
	}

method:
	if requestLine.SegmentLength() == 0 {
		// empty lines preceding the request line are ignored
		for len(data) > 0 && (data[0] == '\r' || data[0] == '\n') {
			data = data[1:]
		}
	}

	for i := 0; i < len(data); i++ {
		switch char := data[i]; {
		case char == ' ':
			if !requestLine.Append(data[:i]...) {
				return true, nil, status.ErrURITooLong
			}

			token := uf.B2S(requestLine.Finish())
			if len(token) == 0 {
				return true, nil, status.ErrBadMethod
			}

			request.Method = method.Parse(token)
			request.MethodToken = token
			data = data[i+1:]
			goto target
		case !httpguts.IsTokenRune(rune(char)):
			return true, nil, status.ErrBadMethod
		}
	}

	if !requestLine.Append(data...) {
		return true, nil, status.ErrURITooLong
	}

	p.state = eMethod
	return false, nil, nil

target:
	for i := 0; i < len(data); i++ {
		switch char := data[i]; {
		case char == ' ':
			if !requestLine.Append(data[:i]...) {
				return true, nil, status.ErrURITooLong
			}

			request.Target = uf.B2S(requestLine.Finish())
			if len(request.Target) == 0 {
				return true, nil, status.ErrBadRequestTarget
			}

			data = data[i+1:]
			goto protocol
		case isProhibitedChar(char):
			return true, nil, status.ErrBadRequestTarget
		}
	}

	if !requestLine.Append(data...) {
		return true, nil, status.ErrURITooLong
	}

	p.state = eTarget
	return false, nil, nil

protocol:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if !requestLine.Append(data...) {
				return true, nil, status.ErrURITooLong
			}

			p.state = eProtocol
			return false, nil, nil
		}

		if !requestLine.Append(data[:lf]...) {
			return true, nil, status.ErrURITooLong
		}

		raw := stripCR(requestLine.Finish())
		request.Protocol = proto.FromBytes(raw)
		if request.Protocol == proto.Unknown {
			if proto.WellFormed(raw) {
				return true, nil, status.ErrHTTPVersionNotSupported
			}

			return true, nil, status.ErrBadProtocol
		}

		data = data[lf+1:]
		// fallthrough to headerKey
	}

headerKey:
	if len(data) == 0 {
		p.state = eHeaderKey
		return false, nil, nil
	}

	if headers.SegmentLength() == 0 {
		switch data[0] {
		case '\n':
			return true, data[1:], nil
		case '\r':
			data = data[1:]
			goto headEndLF
		case ' ', '\t':
			return true, nil, status.ErrObsoleteLineFolding
		}
	}

	for i := 0; i < len(data); i++ {
		switch char := data[i]; {
		case char == ':':
			if !headers.Append(data[:i]...) {
				return true, nil, status.ErrHeaderFieldsTooLarge
			}

			p.key = uf.B2S(headers.Finish())
			if len(p.key) == 0 {
				return true, nil, status.ErrBadHeaderName
			}

			if p.headersNumber++; p.headersNumber > p.cfg.Headers.Number.Maximal {
				return true, nil, status.ErrTooManyHeaders
			}

			data = data[i+1:]
			goto headerValue
		case !httpguts.IsTokenRune(rune(char)):
			return true, nil, status.ErrBadHeaderName
		}
	}

	if !headers.Append(data...) {
		return true, nil, status.ErrHeaderFieldsTooLarge
	}

	p.state = eHeaderKey
	return false, nil, nil

headerValue:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if !headers.Append(data...) {
				return true, nil, status.ErrHeaderFieldsTooLarge
			}

			p.state = eHeaderValue
			return false, nil, nil
		}

		if !headers.Append(data[:lf]...) {
			return true, nil, status.ErrHeaderFieldsTooLarge
		}

		raw := stripCR(headers.Finish())
		if bytes.IndexByte(raw, '\r') != -1 {
			return true, nil, status.ErrBareCR
		}

		value := uf.B2S(trimOWS(raw))
		if !httpguts.ValidHeaderFieldValue(value) {
			return true, nil, status.ErrBadHeaderValue
		}

		request.Headers.Add(p.key, value)
		data = data[lf+1:]
		goto headerKey
	}

headEndLF:
	if len(data) == 0 {
		p.state = eHeadEndLF
		return false, nil, nil
	}

	if data[0] != '\n' {
		return true, nil, status.ErrBareCR
	}

	return true, data[1:], nil
}

func (p *Parser) cleanup() {
	p.headersNumber = 0
	p.consumed = 0
	p.requestLine.Clear()
	p.headers.Clear()
	p.key = ""
	p.state = eMethod
}

func trimOWS(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}

	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}

	return b
}

func stripCR(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\r' {
		return b[:len(b)-1]
	}

	return b
}

func isProhibitedChar(c byte) bool {
	return c <= 0x20 || c > 0x7e
}
