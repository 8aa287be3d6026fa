package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"code.hybscloud.com/iox"
)

// Conn is the byte stream a connection is served over. Anything duplex fits: TCP sockets,
// TLS streams or in-memory pipes. Read and Write may report iox.ErrWouldBlock when no
// progress is possible without waiting, the Client then waits according to its retry policy.
// If the stream additionally implements SetReadDeadline and SetWriteDeadline, timeouts are
// enforced and pending reads can be interrupted.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type remoteAddresser interface {
	RemoteAddr() net.Addr
}

// ErrInterrupted is returned by reads aborted via Client.Interrupt.
var ErrInterrupted = errors.New("read interrupted")

type Client interface {
	// Read returns data preserved via Pushback if any, otherwise reads a new piece of data from
	// the stream. The returned slice is valid until the next call to Read.
	Read() ([]byte, error)
	// Pushback preserves the data for the next Read.
	Pushback([]byte)
	// Pending returns the data preserved via Pushback without consuming it.
	Pending() []byte
	// Write writes the whole data into the stream.
	Write([]byte) (int, error)
	// SetTimeout changes the timeout applied to every following read. Zero disables it.
	SetTimeout(time.Duration)
	// Interrupt aborts a pending or any following read with ErrInterrupted, until Resume is
	// called. It's safe to call concurrently. False is returned if a read that already blocks
	// cannot be aborted, as the stream doesn't support deadlines.
	Interrupt() bool
	// Resume cancels the effect of Interrupt.
	Resume()
	Conn() Conn
	Remote() net.Addr
	Close() error
}

type client struct {
	conn         Conn
	deadlines    deadliner
	buff         []byte
	pending      []byte
	timeout      time.Duration
	writeTimeout time.Duration
	retry        time.Duration
	interrupted  atomic.Bool
}

// NewClient wraps the stream. The buffer is the memory every read is performed into, so its
// size bounds the size of a single piece of data returned by Read.
func NewClient(conn Conn, buff []byte, readTimeout, writeTimeout, wouldBlockRetry time.Duration) Client {
	d, _ := conn.(deadliner)

	return &client{
		conn:         conn,
		deadlines:    d,
		buff:         buff,
		timeout:      readTimeout,
		writeTimeout: writeTimeout,
		retry:        wouldBlockRetry,
	}
}

// Read reads data into the internal buffer and returns a piece of it back. Timeouts are also
// handled automatically.
func (c *client) Read() ([]byte, error) {
	if len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil

		return pending, nil
	}

	if c.deadlines != nil {
		if err := c.deadlines.SetReadDeadline(deadline(c.timeout)); err != nil {
			return nil, err
		}
	}

	for {
		// the flag is checked strictly after the deadline is set, so a concurrent Interrupt
		// either is noticed here or moves the deadline into the past afterwards.
		if c.interrupted.Load() {
			return nil, ErrInterrupted
		}

		n, err := c.conn.Read(c.buff)
		switch {
		case n > 0:
			return c.buff[:n], nil
		case err == nil:
			// broken readers returning (0, nil) would otherwise make us spin forever
			return nil, io.ErrNoProgress
		case errors.Is(err, iox.ErrWouldBlock):
			c.wait()
		case c.interrupted.Load() && errors.Is(err, os.ErrDeadlineExceeded):
			return nil, ErrInterrupted
		default:
			return nil, err
		}
	}
}

// Pushback preserves a chunk of data from previous read for the next read.
func (c *client) Pushback(b []byte) {
	c.pending = b
}

// Pending returns data (if any) preserved via Pushback.
func (c *client) Pending() []byte {
	return c.pending
}

// Write writes data into the underlying connection. Partial writes and would-block
// conditions are retried until everything is written or an error occurs.
func (c *client) Write(b []byte) (total int, err error) {
	if c.deadlines != nil {
		if err = c.deadlines.SetWriteDeadline(deadline(c.writeTimeout)); err != nil {
			return 0, err
		}
	}

	for total < len(b) {
		n, err := c.conn.Write(b[total:])
		total += n

		switch {
		case err == nil && n == 0:
			return total, io.ErrShortWrite
		case err == nil:
		case errors.Is(err, iox.ErrWouldBlock):
			c.wait()
		default:
			return total, err
		}
	}

	return total, nil
}

func (c *client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

func (c *client) Interrupt() bool {
	c.interrupted.Store(true)

	if c.deadlines == nil {
		return false
	}

	return c.deadlines.SetReadDeadline(time.Unix(1, 0)) == nil
}

func (c *client) Resume() {
	c.interrupted.Store(false)
}

// Conn unwraps the underlying stream.
func (c *client) Conn() Conn {
	return c.conn
}

// Remote returns the remote address of the connection, if known.
func (c *client) Remote() net.Addr {
	if r, ok := c.conn.(remoteAddresser); ok {
		return r.RemoteAddr()
	}

	return nil
}

// Close closes the connection.
func (c *client) Close() error {
	return c.conn.Close()
}

func (c *client) wait() {
	if c.retry <= 0 {
		runtime.Gosched()
		return
	}

	time.Sleep(c.retry)
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}

	return time.Now().Add(timeout)
}
