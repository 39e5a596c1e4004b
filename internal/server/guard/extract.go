package guard

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/videohub/internal/common"
)

// Extractor pulls a raw access token out of a request.
type Extractor func(r *http.Request) (string, bool)

func stripBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= len(common.BearerPrefix) && strings.EqualFold(v[:len(common.BearerPrefix)], common.BearerPrefix) {
		v = strings.TrimSpace(v[len(common.BearerPrefix):])
	}
	return v
}

// FromCookie reads the named cookie. The "Bearer " prefix is optional.
func FromCookie(name string) Extractor {
	return func(r *http.Request) (string, bool) {
		c, err := r.Cookie(name)
		if err != nil {
			return "", false
		}
		tok := stripBearer(c.Value)
		return tok, tok != ""
	}
}

// FromAuthorizationHeader reads "Authorization: Bearer <token>".
func FromAuthorizationHeader() Extractor {
	return func(r *http.Request) (string, bool) {
		h := r.Header.Get("Authorization")
		if h == "" {
			return "", false
		}
		tok := stripBearer(h)
		return tok, tok != ""
	}
}

// DefaultExtractors prefers the access cookie over the header.
func DefaultExtractors() []Extractor {
	return []Extractor{
		FromCookie(common.AccessTokenCookieName),
		FromAuthorizationHeader(),
	}
}
