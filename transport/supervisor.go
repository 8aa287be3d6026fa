package transport

import (
	"context"
	"net"
	"sync"

	"github.com/indigo-web/h1/config"
)

// Supervisor runs a group of bound transports. The first one failing brings the rest down,
// so does Stop and the cancellation of the context passed into Run.
type Supervisor struct {
	mu     sync.Mutex
	ts     []boundTransport
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSupervisor() *Supervisor {
	return &Supervisor{
		done: make(chan struct{}),
	}
}

// Add binds the transport to the address. Every connection it accepts is passed into the cb.
// If binding fails, all the previously added transports are closed.
func (s *Supervisor) Add(addr string, transport Transport, cb func(net.Conn)) error {
	if err := transport.Bind(addr); err != nil {
		s.close()
		return err
	}

	s.ts = append(s.ts, boundTransport{
		cb: cb,
		t:  transport,
	})

	return nil
}

// Run blocks until every transport stops. It returns the error of the first transport
// that failed, if any. Transports are waited for their connections to be completed.
func (s *Supervisor) Run(ctx context.Context, cfg config.NET) error {
	defer close(s.done)

	if len(s.ts) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	errch := make(chan error, len(s.ts))

	for _, t := range s.ts {
		go func(t boundTransport) {
			errch <- t.t.Listen(cfg, t.cb)
		}(t)
	}

	var err error

	select {
	case err = <-errch:
		s.stop()
		drain(errch, len(s.ts)-1)
	case <-ctx.Done():
		s.stop()
		drain(errch, len(s.ts))
	}

	return err
}

// Stop stops all the transports and waits until Run returns. Calling it before Run
// just closes the transports.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		s.close()
		return
	}

	cancel()
	<-s.done
}

func (s *Supervisor) stop() {
	for _, t := range s.ts {
		t.t.Stop()
	}

	for _, t := range s.ts {
		t.t.Wait()
		t.t.Close()
	}
}

func (s *Supervisor) close() {
	for _, t := range s.ts {
		t.t.Close()
	}
}

type boundTransport struct {
	cb func(conn net.Conn)
	t  Transport
}

func drain(ch <-chan error, n int) {
	for range n {
		<-ch
	}
}
