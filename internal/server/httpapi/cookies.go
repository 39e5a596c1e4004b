package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/videohub/internal/common"
	"github.com/dmitrijs2005/videohub/internal/server/auth"
)

func (h *Handler) cookie(name, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl / time.Second)
	}
	return c
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, pair *auth.TokenPair) {
	http.SetCookie(w, h.cookie(common.AccessTokenCookieName, common.BearerPrefix+pair.AccessToken, h.opts.AccessTTL))
	http.SetCookie(w, h.cookie(common.RefreshTokenCookieName, pair.RefreshToken, h.opts.RefreshTTL))
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{common.AccessTokenCookieName, common.RefreshTokenCookieName} {
		c := h.cookie(name, "", 0)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}
