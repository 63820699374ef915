// Package identity establishes which demo session a request belongs to.
//
// The edge middleware guarantees every request carries a session identifier,
// either from the visitor's cookie or freshly minted, and forwards it in a
// request header. The Resolver then turns that identifier into a stored
// Session, seeding default data the first time it sees one.
package identity

import (
	"net/http"
	"time"
)

const (
	DefaultCookieName = "demo_session_id"
	DefaultHeaderName = "X-Demo-Session-Id"
	DefaultMaxAge     = 7 * 24 * time.Hour

	maxIDLength = 128
)

// CookieConfig is shared by the edge middleware and the resolver so both agree
// on where the identifier lives
type CookieConfig struct {
	Name       string
	HeaderName string
	MaxAge     time.Duration
	Secure     bool
}

// DefaultCookieConfig returns the standard cookie settings
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:       DefaultCookieName,
		HeaderName: DefaultHeaderName,
		MaxAge:     DefaultMaxAge,
	}
}

// Identity is the raw identifier material found on a request
type Identity struct {
	Cookie string
	Header string
}

// ID returns the identifier to use, preferring the cookie
func (i Identity) ID() string {
	if i.Cookie != "" {
		return i.Cookie
	}
	return i.Header
}

// FromRequest collects the cookie and forwarded header values of r
func FromRequest(r *http.Request, cfg CookieConfig) Identity {
	var id Identity
	if c, err := r.Cookie(cfg.Name); err == nil && validID(c.Value) {
		id.Cookie = c.Value
	}
	if h := r.Header.Get(cfg.HeaderName); validID(h) {
		id.Header = h
	}
	return id
}

// validID accepts opaque, UUID-like tokens. Nothing is verified beyond shape.
func validID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func (cfg CookieConfig) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(cfg.MaxAge.Seconds()),
		Secure:   cfg.Secure,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	}
}
