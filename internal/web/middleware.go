package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tgienger/taskdemo/internal/identity"
	"github.com/tgienger/taskdemo/internal/models"
)

const sessionKey = "session"

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		}
		if sess, ok := sessionFrom(c); ok {
			attrs = append(attrs, slog.String("session", sess.ID))
		}
		logger.Info("Request", attrs...)
	}
}

// resolveSession loads or creates the caller's session once per request and
// stores it on the gin context
func (s *Server) resolveSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := identity.WithRequestCache(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)

		sess, err := s.resolver.GetOrCreate(ctx, identity.FromRequest(c.Request, s.cookie))
		if err != nil {
			s.logger.Error("Resolve session failed", slog.String("error", err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "Failed to load session",
			})
			return
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) (*models.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*models.Session)
	return sess, ok
}

// sessionID returns the resolved session id. resolveSession guarantees it is
// set for every /api route.
func sessionID(c *gin.Context) string {
	sess, ok := sessionFrom(c)
	if !ok {
		return ""
	}
	return sess.ID
}
