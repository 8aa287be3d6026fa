package transport

import (
	"net"

	"github.com/indigo-web/h1/config"
)

// Transport is a source of connections. Every accepted connection is passed into the callback
// in its own goroutine and closed once the callback returns.
type Transport interface {
	Bind(addr string) error
	Listen(cfg config.NET, cb func(conn net.Conn)) error
	Stop()
	Close()
	Wait()
}
