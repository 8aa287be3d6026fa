package mime

import "strings"

type MIME = string

const (
	OctetStream    MIME = "application/octet-stream"
	Plain          MIME = "text/plain"
	HTML           MIME = "text/html"
	JSON           MIME = "application/json"
	FormUrlencoded MIME = "application/x-www-form-urlencoded"
)

// Complies returns whether two MIMEs are compatible. Empty MIME is
// considered compatible with any other MIME
func Complies(mime MIME, with string) bool {
	with, _ = cut(with)
	return len(with) == 0 || strings.EqualFold(with, mime)
}

// Charset returns the value of the charset parameter of the Content-Type value, or an empty
// string if there's none.
func Charset(contentType string) string {
	_, params := cut(contentType)

	for len(params) > 0 {
		var param string
		param, params, _ = strings.Cut(params, ";")
		key, value, found := strings.Cut(param, "=")
		if found && strings.EqualFold(strings.TrimSpace(key), "charset") {
			return strings.Trim(strings.TrimSpace(value), `"`)
		}
	}

	return ""
}

func cut(contentType string) (mime, params string) {
	mime, params, _ = strings.Cut(contentType, ";")
	return strings.TrimSpace(mime), params
}
