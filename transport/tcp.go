package transport

import (
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/indigo-web/h1/config"
)

// acceptBackoff is how long the accept loop sleeps after a transient failure.
const acceptBackoff = 50 * time.Millisecond

type listener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// TCP serves connections accepted from a TCP listener, each in its own goroutine. The accept
// loop wakes up every AcceptLoopInterruptPeriod in order to notice Stop.
type TCP struct {
	l      listener
	wg     *sync.WaitGroup
	stop   *atomic.Bool
	active *atomic.Int64
}

func NewTCP() *TCP {
	tcp := newTCP(nil)
	return &tcp
}

func newTCP(l listener) TCP {
	return TCP{
		l:      l,
		wg:     new(sync.WaitGroup),
		stop:   new(atomic.Bool),
		active: new(atomic.Int64),
	}
}

func bindTCP(addr string) (*net.TCPListener, error) {
	tcpaddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	return net.ListenTCP("tcp", tcpaddr)
}

func (t *TCP) Bind(addr string) (err error) {
	t.l, err = bindTCP(addr)
	return err
}

// Addr returns the address the transport is bound to.
func (t *TCP) Addr() net.Addr {
	return t.l.Addr()
}

// Active returns the number of connections currently served.
func (t *TCP) Active() int64 {
	return t.active.Load()
}

// Listen accepts connections until Stop is called. Connections exceeding cfg.MaxConnections
// are closed right away.
func (t *TCP) Listen(cfg config.NET, cb func(conn net.Conn)) error {
	for !t.stop.Load() {
		if err := t.l.SetDeadline(time.Now().Add(cfg.AcceptLoopInterruptPeriod)); err != nil {
			return err
		}

		conn, err := t.l.Accept()
		switch {
		case err == nil:
		case errors.Is(err, os.ErrDeadlineExceeded):
			continue
		case errors.Is(err, net.ErrClosed) && t.stop.Load():
			return nil
		case transient(err):
			time.Sleep(acceptBackoff)
			continue
		default:
			return err
		}

		if cfg.MaxConnections > 0 && t.active.Load() >= int64(cfg.MaxConnections) {
			_ = conn.Close()
			continue
		}

		t.serve(conn, cb)
	}

	return nil
}

func (t *TCP) serve(conn net.Conn, cb func(conn net.Conn)) {
	t.wg.Add(1)
	t.active.Add(1)

	go func() {
		defer t.wg.Done()
		defer t.active.Add(-1)
		defer conn.Close()

		cb(conn)
	}()
}

func (t *TCP) Stop() {
	t.stop.Store(true)
}

func (t *TCP) Close() {
	_ = t.l.Close()
}

// Wait blocks until all the served connections are done.
func (t *TCP) Wait() {
	t.wg.Wait()
}

// transient reports whether accepting may succeed later without any intervention, e.g. once
// some file descriptors are released.
func transient(err error) bool {
	return errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNABORTED)
}
