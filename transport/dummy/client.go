package dummy

import (
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/indigo-web/h1/transport"
)

var _ transport.Client = new(Client)

// Client returns the data it was initialised with piece by piece and io.EOF afterwards,
// unless set to loop. It also tracks all the written data, making it thereby a universal mock
// suitable for most of the tests.
type Client struct {
	closed      bool
	loop        bool
	journaling  bool
	interrupted atomic.Bool
	pointer     int
	pending     []byte
	written     []byte
	data        [][]byte
	timeouts    []time.Duration
}

func NewMockClient(data ...[]byte) *Client {
	return &Client{
		data:       data,
		journaling: true,
	}
}

// NewNopClient returns a client which has nothing to read and discards everything written.
func NewNopClient() *Client {
	return NewMockClient().Journaling(false)
}

func (c *Client) Read() (data []byte, err error) {
	if c.closed {
		return nil, io.EOF
	}

	if len(c.pending) > 0 {
		data, c.pending = c.pending, nil

		return data, nil
	}

	if c.interrupted.Load() {
		return nil, transport.ErrInterrupted
	}

	if c.pointer >= len(c.data) {
		if !c.loop || len(c.data) == 0 {
			return nil, io.EOF
		}

		c.pointer = 0
	}

	piece := c.data[c.pointer]
	c.pointer++

	return piece, nil
}

func (c *Client) Pushback(takeback []byte) {
	c.pending = takeback
}

func (c *Client) Pending() []byte {
	return c.pending
}

func (c *Client) Write(p []byte) (int, error) {
	if c.closed {
		return 0, io.ErrClosedPipe
	}

	if c.journaling {
		c.written = append(c.written, p...)
	}

	return len(p), nil
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeouts = append(c.timeouts, timeout)
}

// Timeouts returns every timeout set, in order.
func (c *Client) Timeouts() []time.Duration {
	return c.timeouts
}

// Interrupt makes following reads fail. As the mock isn't safe for concurrent reads, it
// reports that blocking reads can't be aborted.
func (c *Client) Interrupt() bool {
	c.interrupted.Store(true)
	return false
}

func (c *Client) Resume() {
	c.interrupted.Store(false)
}

func (c *Client) Conn() transport.Conn {
	return NewConn()
}

func (*Client) Remote() net.Addr {
	return remoteAddr
}

func (c *Client) Close() error {
	c.closed = true
	return nil
}

// Closed tells whether Close was called.
func (c *Client) Closed() bool {
	return c.closed
}

// LoopReads makes the client start over once all the data is returned.
func (c *Client) LoopReads() *Client {
	c.loop = true
	return c
}

func (c *Client) Journaling(flag bool) *Client {
	c.journaling = flag
	return c
}

func (c *Client) Written() string {
	if !c.journaling {
		panic("mock client: cannot access written data: journaling is disabled!")
	}

	return string(c.written)
}
