// Package cookies builds the HttpOnly cookies that carry the access and
// refresh tokens to browsers.
package cookies

import (
	"math"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

// Config controls attributes shared by every cookie.
type Config struct {
	Path   string
	Secure bool
}

// Factory is pure: it never reads requests or writes responses.
type Factory struct {
	path   string
	secure bool
	now    func() time.Time
}

type Option func(*Factory)

func WithClock(now func() time.Time) Option {
	return func(f *Factory) { f.now = now }
}

func NewFactory(cfg Config, opts ...Option) *Factory {
	f := &Factory{path: cfg.Path, secure: cfg.Secure, now: time.Now}
	if f.path == "" {
		f.path = "/"
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// AccessToken carries value for maxAge.
func (f *Factory) AccessToken(value string, maxAge time.Duration) *http.Cookie {
	return f.build(common.AccessTokenCookieName, value, seconds(maxAge))
}

// RefreshToken carries value until expiresAt.
func (f *Factory) RefreshToken(value string, expiresAt time.Time) *http.Cookie {
	return f.build(common.RefreshTokenCookieName, value, seconds(expiresAt.Sub(f.now())))
}

func (f *Factory) ClearAccessToken() *http.Cookie {
	return f.build(common.AccessTokenCookieName, "", -1)
}

func (f *Factory) ClearRefreshToken() *http.Cookie {
	return f.build(common.RefreshTokenCookieName, "", -1)
}

func (f *Factory) build(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     f.path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// seconds rounds d down to whole seconds. MaxAge 0 means "no Max-Age" to
// net/http, so a lifetime that already ran out becomes -1 (delete now).
func seconds(d time.Duration) int {
	s := math.Floor(d.Seconds())
	if s <= 0 {
		return -1
	}
	return int(s)
}
