package http1

import (
	"context"
	"errors"

	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/transport"
)

// watcher detects the client going away while the handler runs. It blocks in a read, which
// normally either gets interrupted once the handler is done or returns the beginning of the
// next pipelined request. Anything else means the client won't send anything anymore: the
// exchange context is canceled, but the client may still be waiting for the response.
type watcher struct {
	client       transport.Client
	cancel       context.CancelCauseFunc
	done         chan struct{}
	disconnected bool
}

func (w *watcher) run() {
	defer close(w.done)

	data, err := w.client.Read()
	switch {
	case err == nil:
		w.client.Pushback(data)
	case errors.Is(err, transport.ErrInterrupted):
	default:
		w.disconnected = true
		w.cancel(http.ErrDisconnected)
	}
}

// watch starts watching the client, if possible. Nothing else may read from the client
// concurrently, so requests whose body is yet to be received aren't watched. The same goes
// for transports unable to abort a blocked read.
func (c *Conn) watch(request *http.Request, cancel context.CancelCauseFunc) *watcher {
	if !c.interruptible || !request.Framing.Bodiless() || len(c.client.Pending()) > 0 {
		return nil
	}

	w := &watcher{
		client: c.client,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// the handler may take arbitrarily long
	c.client.SetTimeout(0)
	go w.run()

	return w
}

// unwatch stops the watcher and reports whether the client stopped sending meanwhile.
func (c *Conn) unwatch(ctx context.Context, w *watcher) (disconnected bool) {
	if w == nil {
		return false
	}

	c.interrupt()
	<-w.done
	c.resume(ctx)
	c.client.SetTimeout(c.cfg.NET.ReadTimeout)

	return w.disconnected
}

func (c *Conn) interrupt() {
	c.mu.Lock()
	c.client.Interrupt()
	c.mu.Unlock()
}

// resume lifts the interruption, unless it's caused by the serving context being done.
func (c *Conn) resume(ctx context.Context) {
	c.mu.Lock()
	if ctx.Err() == nil {
		c.client.Resume()
	}
	c.mu.Unlock()
}
