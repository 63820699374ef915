package identity

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Edge makes sure every request carries a session identifier before anything
// else runs. An existing cookie is forwarded as-is; otherwise a new random id
// is minted. Either way the id is written into the forwarded request header
// (overwriting anything the client sent there) and the cookie is re-issued
// so its expiry slides forward.
func Edge(cfg CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ""
		if cookie, err := c.Request.Cookie(cfg.Name); err == nil && validID(cookie.Value) {
			id = cookie.Value
		}
		if id == "" {
			id = uuid.NewString()
		}

		c.Request.Header.Set(cfg.HeaderName, id)
		http.SetCookie(c.Writer, cfg.cookie(id))

		c.Next()
	}
}
