package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/helyotools/dbsentinel/internal/auth"
	"github.com/helyotools/dbsentinel/internal/view"
)

const sessionKey = "session"

// session is the per-request view state decoded from the client's token.
type session struct {
	Username string
	View     view.State
	claims   *auth.Claims
}

// sessionFrom returns the session stored by viewMiddleware.
// Requests without a token are LoggedOut.
func sessionFrom(c *gin.Context) session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(session); ok {
			return s
		}
	}
	return session{View: view.LoggedOut}
}

// viewMiddleware decodes "Authorization: Bearer <token>" into a session.
// With required set, a missing, malformed, invalid or revoked token is
// rejected with 401; otherwise the request continues as LoggedOut.
func (s *Server) viewMiddleware(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "missing Authorization header",
					"view":  view.LoggedOut,
				})
				return
			}
			c.Set(sessionKey, session{View: view.LoggedOut})
			c.Next()
			return
		}

		parts := strings.SplitN(raw, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			if !required {
				c.Set(sessionKey, session{View: view.LoggedOut})
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid Authorization format, expected: Bearer <token>",
				"view":  view.LoggedOut,
			})
			return
		}

		claims, st, err := s.tokens.Parse(parts[1])
		if err != nil {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "invalid or expired token",
					"view":  view.LoggedOut,
				})
				return
			}
			st = view.LoggedOut
		}

		sess := session{View: st, claims: claims}
		if claims != nil {
			sess.Username = claims.Username
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

// requireDashboard lets only clients in the Dashboard state through.
func requireDashboard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if st := sessionFrom(c).View; st != view.Dashboard {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "dashboard is not open in this session",
				"view":  st,
			})
			return
		}
		c.Next()
	}
}
