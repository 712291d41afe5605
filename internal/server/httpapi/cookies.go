package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/dmitrijs2005/erpkeeper/internal/server/auth"
)

// CookiePolicy holds the attributes of the token cookies. It is built once
// at startup and copied by value, so handlers cannot change it.
type CookiePolicy struct {
	secure     bool
	sameSite   http.SameSite
	domain     string
	path       string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewCookiePolicy(secure bool, sameSite, domain string, accessTTL, refreshTTL time.Duration) (CookiePolicy, error) {
	var mode http.SameSite
	switch strings.ToLower(sameSite) {
	case "", "lax":
		mode = http.SameSiteLaxMode
	case "strict":
		mode = http.SameSiteStrictMode
	case "none":
		mode = http.SameSiteNoneMode
	default:
		return CookiePolicy{}, fmt.Errorf("unknown same-site mode %q", sameSite)
	}
	return CookiePolicy{
		secure:     secure,
		sameSite:   mode,
		domain:     domain,
		path:       "/",
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

func (p CookiePolicy) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     p.path,
		Domain:   p.domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: p.sameSite,
	}
}

// SetTokens writes both token cookies.
func (p CookiePolicy) SetTokens(w http.ResponseWriter, pair auth.Pair) {
	http.SetCookie(w, p.cookie(common.AccessTokenCookieName, pair.AccessToken, p.accessTTL))
	http.SetCookie(w, p.cookie(common.RefreshTokenCookieName, pair.RefreshToken, p.refreshTTL))
}

// Clear expires both token cookies.
func (p CookiePolicy) Clear(w http.ResponseWriter) {
	for _, name := range []string{common.AccessTokenCookieName, common.RefreshTokenCookieName} {
		c := p.cookie(name, "", 0)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}
