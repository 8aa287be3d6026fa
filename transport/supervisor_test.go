package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/indigo-web/h1/config"
	"github.com/stretchr/testify/require"
)

var errListen = errors.New("listener broke")

type transportMock struct {
	stopped     *atomic.Bool
	closed      bool
	bound       bool
	once        bool
	loop        time.Duration
	returnError error
}

func newMock(loop time.Duration, returnError error, once bool) *transportMock {
	return &transportMock{
		stopped:     new(atomic.Bool),
		once:        once,
		loop:        loop,
		returnError: returnError,
	}
}

func (t *transportMock) Bind(string) error {
	t.bound = true
	return nil
}

func (t *transportMock) Listen(config.NET, func(conn net.Conn)) error {
	for !t.stopped.Load() && !t.once {
		time.Sleep(t.loop)
	}

	return t.returnError
}

func (t *transportMock) Stop() {
	t.stopped.Store(true)
}

func (t *transportMock) Close() {
	t.closed = true
}

func (t *transportMock) Wait() {
	for !t.stopped.Load() {
		time.Sleep(1 * time.Millisecond)
	}
}

func runParallel(fn func() error) chan error {
	c := make(chan error)

	go func() {
		c <- fn()
	}()

	return c
}

func runAtMost(sup *Supervisor, timeout time.Duration) error {
	select {
	case err := <-runParallel(func() error {
		return sup.Run(context.Background(), config.Default().NET)
	}):
		return err
	case <-time.After(timeout):
		return fmt.Errorf("supervisor timeouted")
	}
}

func TestSupervisor(t *testing.T) {
	newSupervisor := func(ts ...*transportMock) (*Supervisor, error) {
		sup := NewSupervisor()
		for _, transport := range ts {
			if err := sup.Add("", transport, nil); err != nil {
				return nil, err
			}
		}

		return sup, nil
	}

	t.Run("die without error", func(t *testing.T) {
		sup, err := newSupervisor(
			newMock(100*time.Millisecond, nil, false),
			newMock(200*time.Millisecond, nil, true),
		)
		require.NoError(t, err)
		require.NoError(t, runAtMost(sup, 300*time.Millisecond))
	})

	t.Run("die with error", func(t *testing.T) {
		sup, err := newSupervisor(
			newMock(100*time.Millisecond, nil, false),
			newMock(200*time.Millisecond, errListen, true),
		)
		require.NoError(t, err)
		require.EqualError(t, runAtMost(sup, 300*time.Millisecond), errListen.Error())
	})

	t.Run("stop", func(t *testing.T) {
		sup, err := newSupervisor(
			newMock(100*time.Millisecond, nil, false),
			newMock(200*time.Millisecond, nil, false),
		)
		require.NoError(t, err)
		c := runParallel(func() error {
			return sup.Run(context.Background(), config.Default().NET)
		})
		time.Sleep(200 * time.Millisecond)
		c2 := runParallel(func() error {
			sup.Stop()
			return nil
		})

		select {
		case err = <-c2:
			require.NoError(t, err)
		case <-time.After(300 * time.Millisecond):
			require.Fail(t, "supervisor did not stop on time")
		}

		select {
		case err = <-c:
			require.NoError(t, err)
		case <-time.After(50 * time.Millisecond):
			require.Fail(t, "supervisor did not stop running on time")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		first, second := newMock(10*time.Millisecond, nil, false), newMock(10*time.Millisecond, nil, false)
		sup, err := newSupervisor(first, second)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		c := runParallel(func() error {
			return sup.Run(ctx, config.Default().NET)
		})
		cancel()

		select {
		case err = <-c:
			require.NoError(t, err)
			require.True(t, first.stopped.Load())
			require.True(t, second.stopped.Load())
		case <-time.After(300 * time.Millisecond):
			require.Fail(t, "supervisor ignored the context")
		}
	})

	t.Run("stop before run", func(t *testing.T) {
		mock := newMock(time.Millisecond, nil, false)
		sup, err := newSupervisor(mock)
		require.NoError(t, err)
		sup.Stop()
		require.True(t, mock.closed)
	})
}

func TestTCP(t *testing.T) {
	cfg := config.Default().NET
	cfg.AcceptLoopInterruptPeriod = 20 * time.Millisecond

	tcp := NewTCP()
	require.NoError(t, tcp.Bind("127.0.0.1:0"))

	accepted := make(chan struct{})
	sup := NewSupervisor()
	sup.ts = append(sup.ts, boundTransport{t: tcp, cb: func(conn net.Conn) {
		_, _ = conn.Write([]byte("hello"))
		close(accepted)
	}})

	done := runParallel(func() error {
		return sup.Run(context.Background(), cfg)
	})

	conn, err := net.Dial("tcp", tcp.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	buff := make([]byte, 5)
	_, err = io.ReadFull(conn, buff)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buff))
	<-accepted

	sup.Stop()
	require.NoError(t, <-done)
}
