package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// CookieConfig controls the attributes of every cookie the API sets.
type CookieConfig struct {
	Secure bool
}

// setCookie writes an HttpOnly cookie. crossSite cookies must survive a
// cross-site POST from the payment provider, which browsers only allow for
// SameSite=None on secure cookies.
func (cc CookieConfig) setCookie(c echo.Context, name, value, path string, expires time.Time, crossSite bool) {
	sameSite := http.SameSiteLaxMode
	if crossSite && cc.Secure {
		sameSite = http.SameSiteNoneMode
	}

	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: sameSite,
	})
}

func (cc CookieConfig) clearCookie(c echo.Context, name, path string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
