package transport

import (
	"crypto/tls"
	"net"
)

// TLS accepts TCP connections and wraps them into TLS streams. The handshake is performed
// lazily by the first read or write of the connection.
type TLS struct {
	config *tls.Config
	TCP
}

func NewTLS(certs ...tls.Certificate) *TLS {
	return NewTLSWithConfig(&tls.Config{
		Certificates: certs,
		NextProtos:   []string{"http/1.1"},
	})
}

func NewTLSWithConfig(config *tls.Config) *TLS {
	return &TLS{config: config}
}

func (t *TLS) Bind(addr string) error {
	tcp, err := bindTCP(addr)
	if err != nil {
		return err
	}

	t.TCP = newTCP(tlsAdapter{tcp, tls.NewListener(tcp, t.config)})

	return nil
}

type tlsAdapter struct {
	*net.TCPListener
	tls net.Listener
}

func (t tlsAdapter) Accept() (net.Conn, error) {
	return t.tls.Accept()
}
