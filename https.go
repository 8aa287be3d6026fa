package h1

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/indigo-web/h1/transport"
	"golang.org/x/crypto/acme/autocert"
)

// AutoHTTPS obtains certificates from Let's Encrypt on the fly. Certificates are cached in the
// directory, an empty one disables the cache. If no domains are passed, any host is accepted,
// which is generally not a good idea.
func AutoHTTPS(cache string, domains ...string) Transport {
	m := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
	}

	if len(domains) > 0 {
		m.HostPolicy = autocert.HostWhitelist(domains...)
	}

	if len(cache) > 0 {
		if err := os.MkdirAll(cache, 0700); err != nil {
			return Transport{error: err}
		}

		m.Cache = autocert.DirCache(cache)
	}

	cfg := m.TLSConfig()
	// HTTP/2 isn't served
	cfg.NextProtos = slices.DeleteFunc(cfg.NextProtos, func(proto string) bool {
		return proto == "h2"
	})

	return Transport{
		inner: transport.NewTLSWithConfig(cfg),
	}
}

// CacheDir returns the default directory for autocert certificates.
func CacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}

	return filepath.Join(base, "h1-autocert")
}
