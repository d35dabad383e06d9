package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/helyotools/dbsentinel/internal/auth"
	"github.com/helyotools/dbsentinel/internal/dashboard"
	"github.com/helyotools/dbsentinel/internal/diagnostic"
	"github.com/helyotools/dbsentinel/internal/view"
)

// ── Handlers ──────────────────────────────────────────────────────────────────

// handleLogin checks credentials and moves the client to the splash screen.
//
//	POST /api/login
//	Body: { "username": "ops@example.com", "password": "..." }
func (s *Server) handleLogin(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	if err := s.authn.Authenticate(c.Request.Context(), body.Username, body.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.metrics.logins.WithLabelValues("rejected").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		s.log.Error("authentication backend failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication unavailable"})
		return
	}
	s.metrics.logins.WithLabelValues("accepted").Inc()

	next, _ := view.Transition(view.LoggedOut, view.Login)
	s.respondWithToken(c, body.Username, next)
}

// handleStart leaves the splash screen for the dashboard.
func (s *Server) handleStart(c *gin.Context) {
	sess := sessionFrom(c)
	next, err := view.Transition(sess.View, view.Start)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "view": sess.View})
		return
	}
	s.respondWithToken(c, sess.Username, next)
}

// handleLogout ends the session. The presented token is revoked, so it no
// longer opens any protected route.
func (s *Server) handleLogout(c *gin.Context) {
	sess := sessionFrom(c)
	next, err := view.Transition(sess.View, view.Logout)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "view": sess.View})
		return
	}
	s.tokens.Revoke(sess.claims)
	s.log.Info("logout", zap.String("user", sess.Username))
	c.JSON(http.StatusOK, gin.H{"view": next})
}

// handleView reports where the client currently is.
func (s *Server) handleView(c *gin.Context) {
	sess := sessionFrom(c)
	c.JSON(http.StatusOK, gin.H{"view": sess.View, "username": sess.Username})
}

func (s *Server) respondWithToken(c *gin.Context, username string, st view.State) {
	token, exp, err := s.tokens.Issue(username, st)
	if err != nil {
		s.log.Error("issuing token failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"type":       "Bearer",
		"expires_at": exp.UTC(),
		"view":       st,
	})
}

// handleHealth reports process liveness and whether the store answers.
func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{"status": "ok", "time": time.Now().UTC(), "database": "ok"}
	if err := s.source.Ping(c.Request.Context()); err != nil {
		resp["database"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// handleDashboard runs one poll and returns the shaped page.
// A data access failure is reported in the page warning, not as an HTTP error.
func (s *Server) handleDashboard(c *gin.Context) {
	snap, err := s.source.FetchMetrics(c.Request.Context())
	s.observePoll(err)

	c.JSON(http.StatusOK, dashboard.Build(snap, err))
}

// handleDiagnostic polls, then asks for a diagnosis of the newest sample.
// Failures only affect the diagnostic panel: the response carries "error"
// and the client leaves the rest of the dashboard as it is.
func (s *Server) handleDiagnostic(c *gin.Context) {
	snap, err := s.source.FetchMetrics(c.Request.Context())
	s.observePoll(err)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	latest, ok := dashboard.Latest(snap.History)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": dashboard.NoDataMessage})
		return
	}

	report, err := s.diag.Diagnose(c.Request.Context(), latest)
	if err != nil {
		s.metrics.diagnostics.WithLabelValues("error").Inc()
		status := http.StatusBadGateway
		if errors.Is(err, diagnostic.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.metrics.diagnostics.WithLabelValues("ok").Inc()

	c.JSON(http.StatusOK, gin.H{
		"report":       report.Text,
		"model":        report.Model,
		"generated_at": report.GeneratedAt.UTC(),
		"sample":       latest,
	})
}

func (s *Server) observePoll(err error) {
	if err != nil {
		s.metrics.polls.WithLabelValues("error").Inc()
		return
	}
	s.metrics.polls.WithLabelValues("ok").Inc()
}
