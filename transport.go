package h1

import (
	"crypto/tls"
	"errors"

	"github.com/indigo-web/h1/transport"
)

var (
	ErrBadCertificate = errors.New("one or more passed certificates are empty")
	ErrNoCertificates = errors.New("no certificates were passed")
)

type Transport struct {
	addr  string // must be left intact. Used by App entity only
	inner transport.Transport
	error error
}

func TCP() Transport {
	return Transport{
		inner: transport.NewTCP(),
	}
}

func TLS(cert, key string) Transport {
	c, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		// there's no way to report it at this point, so the error is deferred until
		// the App binds its listeners.
		return Transport{error: err}
	}

	return HTTPS(c)
}

func HTTPS(certs ...tls.Certificate) Transport {
	switch {
	case len(certs) == 0:
		return Transport{error: ErrNoCertificates}
	case !noEmptyCerts(certs):
		return Transport{error: ErrBadCertificate}
	}

	return Transport{
		inner: transport.NewTLS(certs...),
	}
}

// Cert loads the certificate. In case of an error an empty certificate is returned, which is
// reported as soon as the application starts.
func Cert(cert, key string) tls.Certificate {
	c, _ := tls.LoadX509KeyPair(cert, key)
	return c
}

func noEmptyCerts(certs []tls.Certificate) bool {
	for _, c := range certs {
		if c.Certificate == nil {
			return false
		}
	}

	return true
}
