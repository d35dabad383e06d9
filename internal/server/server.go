// Package server is the DB Sentinel presentation shell: a gin engine serving
// the embedded UI and a small JSON API that runs the poll pipeline once per
// request.
//
//	Public:              POST /api/login, GET /api/view, GET /api/health, GET /metrics
//	Splash or Dashboard: POST /api/start, POST /api/logout
//	Dashboard only:      GET /api/dashboard, POST /api/diagnostic
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helyotools/dbsentinel/internal/auth"
	"github.com/helyotools/dbsentinel/internal/models"
	"github.com/helyotools/dbsentinel/internal/telemetry"
)

// MetricsSource is the data access layer as seen by the shell.
type MetricsSource interface {
	FetchMetrics(ctx context.Context) (telemetry.Snapshot, error)
	Ping(ctx context.Context) error
}

// Diagnoser produces a diagnostic report for one sample.
type Diagnoser interface {
	Diagnose(ctx context.Context, sample models.MetricSample) (*models.DiagnosticReport, error)
}

// Deps are the collaborators the shell orchestrates.
type Deps struct {
	Source        MetricsSource
	Diagnostician Diagnoser
	Authenticator auth.Authenticator
	Tokens        *auth.TokenIssuer
	Logger        *zap.Logger
	// Registry receives the server's collectors; a fresh one is created when nil.
	Registry *prometheus.Registry
}

// Server wires HTTP routes to the pipeline.
type Server struct {
	source  MetricsSource
	diag    Diagnoser
	authn   auth.Authenticator
	tokens  *auth.TokenIssuer
	log     *zap.Logger
	reg     *prometheus.Registry
	metrics *metrics
}

// New returns a Server over d.
func New(d Deps) *Server {
	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		source:  d.Source,
		diag:    d.Diagnostician,
		authn:   d.Authenticator,
		tokens:  d.Tokens,
		log:     log,
		reg:     reg,
		metrics: newMetrics(reg),
	}
}

// Handler builds the gin engine with API routes, /metrics and the embedded UI.
func (s *Server) Handler() (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	s.registerRoutes(r)

	promHandler := promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
	r.GET("/metrics", func(c *gin.Context) {
		promHandler.ServeHTTP(c.Writer, c.Request)
	})

	if err := RegisterStaticFiles(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Server) registerRoutes(r *gin.Engine) {
	api := r.Group("/api")

	// ── Public ────────────────────────────────────────────────────────────────
	api.POST("/login", s.handleLogin)
	api.GET("/view", s.viewMiddleware(false), s.handleView)
	api.GET("/health", s.handleHealth)

	// ── Signed in ─────────────────────────────────────────────────────────────
	session := api.Group("/", s.viewMiddleware(true))
	{
		session.POST("/start", s.handleStart)
		session.POST("/logout", s.handleLogout)
	}

	dash := api.Group("/", s.viewMiddleware(true), requireDashboard())
	{
		dash.GET("/dashboard", s.handleDashboard)
		dash.POST("/diagnostic", s.handleDiagnostic)
	}
}

// HTTPServer returns an http.Server bound to addr serving Handler.
func (s *Server) HTTPServer(addr string) (*http.Server, error) {
	h, err := s.Handler()
	if err != nil {
		return nil, err
	}
	return &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}, nil
}
