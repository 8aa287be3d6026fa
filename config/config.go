package config

import (
	"time"
)

type (
	HeadersNumber struct {
		Default, Maximal int
	}

	HeadersSpace struct {
		Default, Maximal int
	}

	NETWriteBufferSize struct {
		Default, Maximal int
	}

	URIRequestLineSize struct {
		Default, Maximal int
	}
)

type (
	URI struct {
		// RequestLineSize is a buffer storing the method (if split between reads), the request
		// target and the protocol. The maximal boundary limits the request line as a whole,
		// exceeding it results in status.ErrURITooLong.
		RequestLineSize URIRequestLineSize
	}

	Headers struct {
		// Number is responsible for headers storage size.
		// Default value is an initial capacity of the headers storage.
		// Maximal value is maximum number of header fields allowed to be presented.
		Number HeadersNumber
		// Space limits the amount of memory occupied by the header block. The maximal value
		// is the ceiling of the whole header block including field-line delimiters, so it
		// bounds the memory a slow or hostile client is able to pin.
		Space HeadersSpace
	}

	Body struct {
		// MaxSize describes the maximal size of a body, that can be processed. Reading past
		// this value results in status.ErrBodyTooLarge.
		MaxSize uint64
		// MaxDiscard is the greatest amount of unread request body bytes the connection
		// is willing to skip in order to stay alive. Bigger leftovers close the connection.
		MaxDiscard uint64
	}

	NET struct {
		// ReadBufferSize is a size of buffer in bytes which will be used to read from
		// the transport.
		ReadBufferSize int
		// ReadTimeout limits every single read while a request head or a body is received.
		ReadTimeout time.Duration
		// IdleTimeout controls the maximal lifetime of IDLE connections. If no data was
		// received in this period of time between requests, it'll be closed.
		IdleTimeout time.Duration
		// WriteTimeout limits every single write into the transport.
		WriteTimeout time.Duration
		// WouldBlockRetry controls what happens when the transport reports that no progress
		// is possible without waiting. Zero yields the goroutine, positive values sleep
		// for the duration before retrying.
		WouldBlockRetry time.Duration
		// AcceptLoopInterruptPeriod controls how often will the Accept() call be interrupted
		// in order to check whether it's time to stop. Defaults to 5 seconds.
		AcceptLoopInterruptPeriod time.Duration
		// MaxConnections limits the number of connections served at once by a single listener.
		// Connections above the limit are closed as soon as they're accepted. Zero disables it.
		MaxConnections int `test:"nullable"`
		// WriteBufferSize stores the response head and the body pieces before they're
		// transmitted. The buffer is flushed on overflow and grown up to the maximal value
		// when a sized body fits into it completely.
		WriteBufferSize NETWriteBufferSize
	}

	Response struct {
		// Server is the value of Server header added to every response, unless set explicitly.
		// Empty value disables the header.
		Server string `test:"nullable"`
		// Date enables the automatic Date header.
		Date bool
	}
)

// Config holds settings used across the engine, mainly restrictions, limitations
// and pre-allocations.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually, because most likely this will result in ambiguous errors.
type Config struct {
	URI      URI
	Headers  Headers
	Body     Body
	NET      NET
	Response Response
}

// Default returns default config. Those are initially well-balanced, however maximal defaults
// are pretty permitting.
func Default() *Config {
	return &Config{
		URI: URI{
			RequestLineSize: URIRequestLineSize{
				Default: 2 * 1024,
				// allow at most 16kb of request line, which is effectively pretty much tolerant,
				// considering most web-entities limit it to 4-8kb.
				Maximal: 16 * 1024,
			},
		},
		Headers: Headers{
			Number: HeadersNumber{
				Default: 16,
				Maximal: 128,
			},
			Space: HeadersSpace{
				Default: 1 * 1024, // 1kb for headers must be fairly enough in most cases.
				Maximal: 8 * 1024, // However, there also might be extremely long cookies.
			},
		},
		Body: Body{
			MaxSize:    512 * 1024 * 1024, // 512 megabytes
			MaxDiscard: 256 * 1024,
		},
		NET: NET{
			ReadBufferSize:            4 * 1024,
			ReadTimeout:               60 * time.Second,
			IdleTimeout:               90 * time.Second,
			WriteTimeout:              60 * time.Second,
			WouldBlockRetry:           50 * time.Microsecond,
			AcceptLoopInterruptPeriod: 5 * time.Second,
			WriteBufferSize: NETWriteBufferSize{
				Default: 2 * 1024,
				Maximal: 64 * 1024,
			},
		},
		Response: Response{
			Server: "indigo-h1",
			Date:   true,
		},
	}
}
