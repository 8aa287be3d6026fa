package http1

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	stdhttp "net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/telemetry"
	"github.com/indigo-web/h1/transport"
	"github.com/indigo-web/h1/transport/dummy"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func quietTelemetry(t *testing.T) *telemetry.Telemetry {
	tm, err := telemetry.New(nopLogger(), noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return tm
}

type reply struct {
	Code   int
	Close  bool
	Body   string
	Header stdhttp.Header
}

func replies(t *testing.T, raw string) (result []reply) {
	reader := bufio.NewReader(strings.NewReader(raw))

	for {
		if _, err := reader.Peek(1); err != nil {
			return result
		}

		resp, err := stdhttp.ReadResponse(reader, nil)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		result = append(result, reply{
			Code:   resp.StatusCode,
			Close:  resp.Close,
			Body:   string(body),
			Header: resp.Header,
		})
	}
}

func serveMock(t *testing.T, cfg *config.Config, handler http.Handler, pieces ...string) (*Conn, *dummy.Client, error) {
	data := make([][]byte, len(pieces))
	for i, piece := range pieces {
		data[i] = []byte(piece)
	}

	client := dummy.NewMockClient(data...)
	conn := NewConn(cfg, client, handler, quietTelemetry(t))
	err := conn.Serve(context.Background())

	return conn, client, err
}

func echoPath(r *http.Request) *http.Response {
	return r.Respond().String(r.Path())
}

func echoBody(r *http.Request) *http.Response {
	body, err := r.Body.Bytes()
	if err != nil {
		return r.Respond().Error(err)
	}

	return r.Respond().Bytes(body)
}

// countingHandler counts the calls to each of the handler's methods.
type countingHandler struct {
	http.HandlerFunc
	requests, errors int
	lastErr          error
}

func (c *countingHandler) OnRequest(r *http.Request) *http.Response {
	c.requests++
	return c.HandlerFunc.OnRequest(r)
}

func (c *countingHandler) OnError(r *http.Request, err error) *http.Response {
	c.errors++
	c.lastErr = err
	return c.HandlerFunc.OnError(r, err)
}

// failingClient returns the error instead of io.EOF once all the data is read.
type failingClient struct {
	*dummy.Client
	err error
}

func (f failingClient) Read() ([]byte, error) {
	data, err := f.Client.Read()
	if err == io.EOF {
		return nil, f.err
	}

	return data, err
}

func TestConn(t *testing.T) {
	t.Run("pipelined requests", func(t *testing.T) {
		conn, client, err := serveMock(t, config.Default(), http.HandlerFunc(echoPath),
			"GET /a HTTP/1.1\r\nHost: localhost\r\n\r\nGET /b HTTP/1.1\r\n\r\n",
		)
		require.NoError(t, err)
		require.Equal(t, 2, conn.Exchanges())
		require.Equal(t, Closed, conn.State())
		require.True(t, client.Closed())

		rs := replies(t, client.Written())
		require.Len(t, rs, 2)
		require.Equal(t, "/a", rs[0].Body)
		require.False(t, rs[0].Close)
		require.Equal(t, "/b", rs[1].Body)
	})

	t.Run("requests scattered byte by byte", func(t *testing.T) {
		const request = "POST /hello HTTP/1.1\r\nContent-Length: 5\r\n\r\nworld"
		var pieces []string
		for _, piece := range scatter([]byte(request+request), 1) {
			pieces = append(pieces, string(piece))
		}

		conn, client, err := serveMock(t, config.Default(), http.HandlerFunc(echoBody), pieces...)
		require.NoError(t, err)
		require.Equal(t, 2, conn.Exchanges())

		rs := replies(t, client.Written())
		require.Len(t, rs, 2)
		require.Equal(t, "world", rs[0].Body)
		require.Equal(t, "world", rs[1].Body)
	})

	t.Run("body boundary", func(t *testing.T) {
		conn, client, err := serveMock(t, config.Default(), http.HandlerFunc(echoBody),
			"POST / HTTP/1.1\r\nContent-Length: 3\r\n\r\nabcXYZ",
		)
		require.ErrorIs(t, err, status.ErrBadRequest)
		require.Equal(t, 1, conn.Exchanges())

		rs := replies(t, client.Written())
		require.Len(t, rs, 2)
		require.Equal(t, "abc", rs[0].Body)
		require.Equal(t, 400, rs[1].Code)
		require.True(t, rs[1].Close)
	})

	t.Run("unread body is drained", func(t *testing.T) {
		conn, client, err := serveMock(t, config.Default(), http.HandlerFunc(echoPath),
			"POST /a HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello",
			"GET /b HTTP/1.1\r\n\r\n",
		)
		require.NoError(t, err)
		require.Equal(t, 2, conn.Exchanges())

		rs := replies(t, client.Written())
		require.Len(t, rs, 2)
		require.Equal(t, "/b", rs[1].Body)
	})

	t.Run("too long unread body closes the connection", func(t *testing.T) {
		cfg := config.Default()
		cfg.Body.MaxDiscard = 2
		conn, client, err := serveMock(t, cfg, http.HandlerFunc(echoPath),
			"POST /a HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello",
			"GET /b HTTP/1.1\r\n\r\n",
		)
		require.NoError(t, err)
		require.Equal(t, 1, conn.Exchanges())

		rs := replies(t, client.Written())
		require.Len(t, rs, 1)
		require.True(t, rs[0].Close)
	})

	for _, tc := range []struct {
		Name    string
		Request string
		Err     error
		Code    int
	}{
		{
			Name:    "conflicting content length",
			Request: "POST / HTTP/1.1\r\nContent-Length: 5\r\nContent-Length: 7\r\n\r\nhello",
			Err:     status.ErrConflictingContentLength,
			Code:    400,
		},
		{
			Name:    "ambiguous framing",
			Request: "POST / HTTP/1.1\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\n0\r\n\r\n",
			Err:     status.ErrAmbiguousFraming,
			Code:    400,
		},
		{
			Name:    "unsupported transfer coding",
			Request: "POST / HTTP/1.1\r\nTransfer-Encoding: gzip, chunked\r\n\r\n0\r\n\r\n",
			Err:     status.ErrUnsupportedTransferCoding,
			Code:    501,
		},
		{
			Name:    "body too large",
			Request: "POST / HTTP/1.1\r\nContent-Length: 999999999999\r\n\r\n",
			Err:     status.ErrBodyTooLarge,
			Code:    413,
		},
		{
			Name:    "unsupported expectation",
			Request: "POST / HTTP/1.1\r\nContent-Length: 5\r\nExpect: the unexpected\r\n\r\nhello",
			Err:     status.ErrExpectationFailed,
			Code:    417,
		},
		{
			Name:    "unsupported protocol",
			Request: "GET / HTTP/2.0\r\n\r\n",
			Err:     status.ErrHTTPVersionNotSupported,
			Code:    505,
		},
		{
			Name:    "truncated head",
			Request: "GET / HTTP/1.1\r\nHost: loc",
			Err:     status.ErrBadRequest,
			Code:    400,
		},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			handler := &countingHandler{HandlerFunc: echoPath}
			conn, client, err := serveMock(t, config.Default(), handler, tc.Request)
			require.ErrorIs(t, err, tc.Err)
			require.Equal(t, Closed, conn.State())
			require.Zero(t, handler.requests)
			require.Equal(t, 1, handler.errors)
			require.ErrorIs(t, handler.lastErr, tc.Err)

			rs := replies(t, client.Written())
			require.Len(t, rs, 1)
			require.Equal(t, tc.Code, rs[0].Code)
			require.True(t, rs[0].Close)
		})
	}

	t.Run("too large head", func(t *testing.T) {
		cfg := config.Default()
		cfg.Headers.Space.Default = 32
		cfg.Headers.Space.Maximal = 64
		_, client, err := serveMock(t, cfg, http.HandlerFunc(echoPath),
			"GET / HTTP/1.1\r\nCookie: "+strings.Repeat("a", 200)+"\r\n\r\n",
		)
		require.ErrorIs(t, err, status.ErrHeaderFieldsTooLarge)
		rs := replies(t, client.Written())
		require.Len(t, rs, 1)
		require.Equal(t, 431, rs[0].Code)
	})

	t.Run("response until close", func(t *testing.T) {
		handler := func(r *http.Request) *http.Response {
			return r.Respond().Stream(strings.NewReader("hello"), http.Unsized)
		}

		conn, client, err := serveMock(t, config.Default(), http.HandlerFunc(handler),
			"GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\nGET / HTTP/1.0\r\n\r\n",
		)
		require.NoError(t, err)
		require.Equal(t, 1, conn.Exchanges())
		require.True(t, client.Closed())

		rs := replies(t, client.Written())
		require.Len(t, rs, 1)
		require.Equal(t, "hello", rs[0].Body)
		require.True(t, rs[0].Close)
	})

	t.Run("HTTP/1.0 keep-alive", func(t *testing.T) {
		conn, client, err := serveMock(t, config.Default(), http.HandlerFunc(echoPath),
			"GET /a HTTP/1.0\r\nConnection: keep-alive\r\n\r\nGET /b HTTP/1.0\r\n\r\nGET /c HTTP/1.0\r\n\r\n",
		)
		require.NoError(t, err)
		require.Equal(t, 2, conn.Exchanges())

		rs := replies(t, client.Written())
		require.Len(t, rs, 2)
		require.False(t, rs[0].Close)
		require.Equal(t, "keep-alive", rs[0].Header.Get("Connection"))
		require.True(t, rs[1].Close)
	})

	t.Run("connection close", func(t *testing.T) {
		conn, client, err := serveMock(t, config.Default(), http.HandlerFunc(echoPath),
			"GET /a HTTP/1.1\r\nConnection: close\r\n\r\nGET /b HTTP/1.1\r\n\r\n",
		)
		require.NoError(t, err)
		require.Equal(t, 1, conn.Exchanges())

		rs := replies(t, client.Written())
		require.Len(t, rs, 1)
		require.True(t, rs[0].Close)
	})

	t.Run("no content", func(t *testing.T) {
		handler := func(r *http.Request) *http.Response {
			return r.Respond().Code(status.NoContent).String("hello")
		}

		_, client, err := serveMock(t, config.Default(), http.HandlerFunc(handler),
			"GET / HTTP/1.1\r\n\r\nGET / HTTP/1.1\r\n\r\n",
		)
		require.NoError(t, err)
		require.NotContains(t, client.Written(), "hello")

		rs := replies(t, client.Written())
		require.Len(t, rs, 2)
		require.Equal(t, 204, rs[0].Code)
		require.Equal(t, 204, rs[1].Code)
	})

	t.Run("panicking handler", func(t *testing.T) {
		handler := func(r *http.Request) *http.Response {
			if r.Path() == "/panic" {
				panic("something went wrong")
			}

			return echoPath(r)
		}

		conn, client, err := serveMock(t, config.Default(), http.HandlerFunc(handler),
			"GET /panic HTTP/1.1\r\n\r\nGET /ok HTTP/1.1\r\n\r\n",
		)
		require.NoError(t, err)
		require.Equal(t, 2, conn.Exchanges())

		rs := replies(t, client.Written())
		require.Len(t, rs, 2)
		require.Equal(t, 500, rs[0].Code)
		require.NotContains(t, rs[0].Body, "something went wrong")
		require.Equal(t, "/ok", rs[1].Body)
	})

	t.Run("interim status without upgrade", func(t *testing.T) {
		handler := func(r *http.Request) *http.Response {
			return r.Respond().Code(status.Continue)
		}

		_, client, err := serveMock(t, config.Default(), http.HandlerFunc(handler), "GET / HTTP/1.1\r\n\r\n")
		require.NoError(t, err)
		rs := replies(t, client.Written())
		require.Len(t, rs, 1)
		require.Equal(t, 500, rs[0].Code)
	})

	t.Run("expect continue", func(t *testing.T) {
		conn, client, err := serveMock(t, config.Default(), http.HandlerFunc(echoBody),
			"POST / HTTP/1.1\r\nContent-Length: 5\r\nExpect: 100-continue\r\n\r\n",
			"hello",
		)
		require.NoError(t, err)
		require.Equal(t, 1, conn.Exchanges())

		raw := client.Written()
		require.True(t, strings.HasPrefix(raw, string(continueResponse)))
		rs := replies(t, strings.TrimPrefix(raw, string(continueResponse)))
		require.Len(t, rs, 1)
		require.Equal(t, "hello", rs[0].Body)
	})

	t.Run("expectation ignored for untouched body", func(t *testing.T) {
		_, client, err := serveMock(t, config.Default(), http.HandlerFunc(echoPath),
			"POST / HTTP/1.1\r\nContent-Length: 5\r\nExpect: 100-continue\r\n\r\n",
			"hello",
		)
		require.NoError(t, err)

		raw := client.Written()
		require.False(t, strings.HasPrefix(raw, string(continueResponse)))
		rs := replies(t, raw)
		require.Len(t, rs, 1)
		require.True(t, rs[0].Close)
	})

	t.Run("upgrade", func(t *testing.T) {
		var received string
		handler := func(r *http.Request) *http.Response {
			return r.Respond().
				Code(status.SwitchingProtocols).
				SetHeader("Upgrade", "echo").
				SetHeader("Connection", "upgrade").
				Upgrade(func(client transport.Client) {
					data, err := client.Read()
					if err == nil {
						received = string(data)
					}
				})
		}

		conn, client, err := serveMock(t, config.Default(), http.HandlerFunc(handler),
			"GET / HTTP/1.1\r\nUpgrade: echo\r\nConnection: upgrade\r\n\r\nhello",
		)
		require.NoError(t, err)
		require.Equal(t, Upgraded, conn.State())
		require.Equal(t, "hello", received)
		require.False(t, client.Closed())
		require.True(t, strings.HasPrefix(client.Written(), "HTTP/1.1 101 Switching Protocols\r\n"))
		require.True(t, strings.HasSuffix(client.Written(), "\r\n\r\n"))
	})

	t.Run("on sent", func(t *testing.T) {
		var calls []bool
		handler := func(r *http.Request) *http.Response {
			return r.Respond().String("hello").OnSent(func(ok bool) {
				calls = append(calls, ok)
			})
		}

		_, _, err := serveMock(t, config.Default(), http.HandlerFunc(handler), "GET / HTTP/1.1\r\n\r\n")
		require.NoError(t, err)
		require.Equal(t, []bool{true}, calls)
	})

	t.Run("canceled before serving", func(t *testing.T) {
		client := dummy.NewMockClient([]byte("GET / HTTP/1.1\r\n\r\n"))
		conn := NewConn(config.Default(), client, http.HandlerFunc(echoPath), quietTelemetry(t))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.False(t, conn.ServeOnce(ctx))
		require.NoError(t, conn.Err())
		require.True(t, client.Closed())
		require.Empty(t, client.Written())
	})

	t.Run("canceled while handling", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		handler := func(r *http.Request) *http.Response {
			cancel()
			return echoPath(r)
		}

		client := dummy.NewMockClient([]byte("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n"))
		conn := NewConn(config.Default(), client, http.HandlerFunc(handler), quietTelemetry(t))
		require.NoError(t, conn.Serve(ctx))
		require.Equal(t, 1, conn.Exchanges())

		rs := replies(t, client.Written())
		require.Len(t, rs, 1)
		require.Equal(t, "/a", rs[0].Body)
		require.True(t, rs[0].Close)
	})

	t.Run("idle timeout", func(t *testing.T) {
		client := failingClient{Client: dummy.NewMockClient(), err: os.ErrDeadlineExceeded}
		conn := NewConn(config.Default(), client, http.HandlerFunc(echoPath), quietTelemetry(t))
		require.NoError(t, conn.Serve(context.Background()))
		require.Empty(t, client.Written())
		require.Equal(t, []time.Duration{config.Default().NET.IdleTimeout}, client.Timeouts())
	})

	t.Run("read timeout", func(t *testing.T) {
		client := failingClient{
			Client: dummy.NewMockClient([]byte("GET / HTTP/1.1\r\n")),
			err:    os.ErrDeadlineExceeded,
		}
		conn := NewConn(config.Default(), client, http.HandlerFunc(echoPath), quietTelemetry(t))
		require.ErrorIs(t, conn.Serve(context.Background()), status.ErrRequestTimeout)

		rs := replies(t, client.Written())
		require.Len(t, rs, 1)
		require.Equal(t, 408, rs[0].Code)
	})

	t.Run("transport failure", func(t *testing.T) {
		client := failingClient{
			Client: dummy.NewMockClient([]byte("GET / HTTP/1.1\r\n")),
			err:    errors.New("connection reset by peer"),
		}
		conn := NewConn(config.Default(), client, http.HandlerFunc(echoPath), quietTelemetry(t))
		err := conn.Serve(context.Background())

		var transportErr *http.TransportError
		require.True(t, errors.As(err, &transportErr))
		require.Empty(t, client.Written())
		require.True(t, client.Closed())
	})
}

func TestConn_Telemetry(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	tm, err := telemetry.New(nopLogger(), provider.Meter(telemetry.Name))
	require.NoError(t, err)

	client := dummy.NewMockClient([]byte("POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nhelloGET / HTTP/1.1\r\n\r\n"))
	conn := NewConn(config.Default(), client, http.HandlerFunc(echoBody), tm)
	require.NoError(t, conn.Serve(context.Background()))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]int64)
	reasons := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)

			for _, point := range sum.DataPoints {
				sums[m.Name] += point.Value
				if reason, found := point.Attributes.Value("reason"); found {
					reasons[reason.AsString()] += point.Value
				}
			}
		}
	}

	require.EqualValues(t, 2, sums["h1.exchanges"])
	require.EqualValues(t, 1, sums["h1.connections.closed"])
	require.EqualValues(t, 1, reasons[telemetry.ReasonEOF])
	require.EqualValues(t, 10, sums["h1.body.bytes"])
}

func pipeClient(conn net.Conn) transport.Client {
	cfg := config.Default()
	return transport.NewClient(
		conn, make([]byte, cfg.NET.ReadBufferSize),
		cfg.NET.ReadTimeout, cfg.NET.WriteTimeout, cfg.NET.WouldBlockRetry,
	)
}

func TestConn_Pipe(t *testing.T) {
	t.Run("keep-alive", func(t *testing.T) {
		server, client := net.Pipe()
		conn := NewConn(config.Default(), pipeClient(server), http.HandlerFunc(echoPath), quietTelemetry(t))

		bodies := make(chan string, 2)
		go func() {
			defer client.Close()
			reader := bufio.NewReader(client)

			for _, path := range []string{"/a", "/b"} {
				if _, err := client.Write([]byte("GET " + path + " HTTP/1.1\r\n\r\n")); err != nil {
					return
				}

				resp, err := stdhttp.ReadResponse(reader, nil)
				if err != nil {
					return
				}

				body, _ := io.ReadAll(resp.Body)
				bodies <- string(body)
			}
		}()

		require.NoError(t, conn.Serve(context.Background()))
		require.Equal(t, 2, conn.Exchanges())
		require.Equal(t, "/a", <-bodies)
		require.Equal(t, "/b", <-bodies)
	})

	t.Run("disconnect while handling", func(t *testing.T) {
		server, client := net.Pipe()
		started := make(chan struct{})
		var (
			cause error
			sent  *bool
		)

		handler := func(r *http.Request) *http.Response {
			close(started)
			<-r.Context().Done()
			cause = context.Cause(r.Context())

			return r.Respond().String("nobody listens").OnSent(func(ok bool) {
				sent = &ok
			})
		}

		conn := NewConn(config.Default(), pipeClient(server), http.HandlerFunc(handler), quietTelemetry(t))
		go func() {
			_, _ = client.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
			<-started
			_ = client.Close()
		}()

		require.ErrorIs(t, conn.Serve(context.Background()), http.ErrDisconnected)
		require.ErrorIs(t, cause, http.ErrDisconnected)
		require.NotNil(t, sent)
		require.False(t, *sent)
		require.Zero(t, conn.Exchanges())
	})

	t.Run("canceled with pending body", func(t *testing.T) {
		server, client := net.Pipe()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		handler := func(r *http.Request) *http.Response {
			cancel()
			return r.Respond().String("bye")
		}

		conn := NewConn(config.Default(), pipeClient(server), http.HandlerFunc(handler), quietTelemetry(t))
		responses := make(chan reply, 1)
		go func() {
			defer client.Close()
			if _, err := client.Write([]byte("POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\n")); err != nil {
				return
			}

			resp, err := stdhttp.ReadResponse(bufio.NewReader(client), nil)
			if err != nil {
				return
			}

			body, _ := io.ReadAll(resp.Body)
			responses <- reply{Code: resp.StatusCode, Close: resp.Close, Body: string(body)}
		}()

		require.NoError(t, conn.Serve(ctx))
		require.Equal(t, Closed, conn.State())
		require.Equal(t, 1, conn.Exchanges())

		resp := <-responses
		require.Equal(t, 200, resp.Code)
		require.Equal(t, "bye", resp.Body)
		require.True(t, resp.Close)
	})

	t.Run("canceled while idle", func(t *testing.T) {
		server, client := net.Pipe()
		defer client.Close()
		conn := NewConn(config.Default(), pipeClient(server), http.HandlerFunc(echoPath), quietTelemetry(t))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- conn.Serve(ctx)
		}()

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "connection didn't stop")
		}
	})
}

func TestConn_TCP(t *testing.T) {
	t.Run("half-closed client still gets the response", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer l.Close()

		responses := make(chan string, 1)
		go func() {
			c, err := net.Dial("tcp", l.Addr().String())
			if err != nil {
				close(responses)
				return
			}

			defer c.Close()
			_, _ = c.Write([]byte("GET /x HTTP/1.1\r\n\r\n"))
			_ = c.(*net.TCPConn).CloseWrite()
			raw, _ := io.ReadAll(c)
			responses <- string(raw)
		}()

		server, err := l.Accept()
		require.NoError(t, err)

		var (
			cause error
			sent  *bool
		)

		handler := func(r *http.Request) *http.Response {
			select {
			case <-r.Context().Done():
				cause = context.Cause(r.Context())
			case <-time.After(5 * time.Second):
			}

			return r.Respond().String("still here").OnSent(func(ok bool) {
				sent = &ok
			})
		}

		conn := NewConn(config.Default(), pipeClient(server), http.HandlerFunc(handler), quietTelemetry(t))
		require.NoError(t, conn.Serve(context.Background()))
		require.ErrorIs(t, cause, http.ErrDisconnected)
		require.NotNil(t, sent)
		require.True(t, *sent)
		require.Equal(t, 1, conn.Exchanges())

		rs := replies(t, <-responses)
		require.Len(t, rs, 1)
		require.Equal(t, "still here", rs[0].Body)
		require.True(t, rs[0].Close)
	})
}
