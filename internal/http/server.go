// Package http serves the ledger UI. HTMX requests get partials and
// HX-Trigger events; plain form posts get a redirect and a flash.
package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/security"
	"tally/internal/middleware/trace"
	"tally/internal/services"
	"tally/internal/session"
	"tally/internal/storage"
	appweb "tally/web"
)

var errTemplatesNotLoaded = errors.New("templates not loaded")

// readinessTimeout bounds the backend probe of /readyz.
const readinessTimeout = 3 * time.Second

// ActivityReader lists journaled activity for the activity panel.
type ActivityReader interface {
	ListRecent(ctx context.Context, limit int) ([]core.Activity, error)
	OutcomeCounts(ctx context.Context) ([]storage.OutcomeCount, error)
}

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server. Ledger and Sessions are required.
type Options struct {
	Addr     string
	Ledger   *services.LedgerService
	Sessions *session.Store
	Metrics  *Metrics
	Logger   *log.Logger

	// Journal enables /ui/activity; nil disables it.
	Journal ActivityReader

	// Backend is probed by /readyz; nil skips the probe.
	Backend Pinger

	// Publisher is the activity broker probed by /readyz, if any.
	Publisher Pinger

	// TrustedProxies are CIDRs allowed to set forwarding headers, in
	// addition to loopback and private networks.
	TrustedProxies []string

	CookieName         string
	CookieSecure       bool
	RateLimitPerMinute int

	// NotificationDuration is used for toasts the web layer raises itself.
	NotificationDuration time.Duration
}

// Server is the ledger web server.
type Server struct {
	http.Server
	mux       *http.ServeMux
	templates *template.Template

	ledger    *services.LedgerService
	sessions  *session.Store
	journal   ActivityReader
	backend   Pinger
	publisher Pinger

	logger      *log.Logger
	structured  *log.StructuredLogger
	metrics     *Metrics
	detector    *security.Detector
	rateLimiter *ratelimit.Limiter
	tracer      *trace.Middleware

	cookieName   string
	cookieSecure bool
	notify       time.Duration

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates. A template parse
// failure is logged and reported by /readyz.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.CookieName == "" {
		opts.CookieName = "tally_session"
	}
	if opts.NotificationDuration <= 0 {
		opts.NotificationDuration = core.DefaultNotificationDuration
	}
	rlConfig := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		rlConfig.RequestsPerMinute = opts.RateLimitPerMinute
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		mux:          http.NewServeMux(),
		ledger:       opts.Ledger,
		sessions:     opts.Sessions,
		journal:      opts.Journal,
		backend:      opts.Backend,
		publisher:    opts.Publisher,
		logger:       logger,
		structured:   log.NewStructuredLogger(logger),
		metrics:      opts.Metrics,
		detector:     security.NewDetector(),
		rateLimiter:  ratelimit.NewLimiter(rlConfig),
		cookieName:   opts.CookieName,
		cookieSecure: opts.CookieSecure,
		notify:       opts.NotificationDuration,
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err, "cidr", cidr)
		}
	}
	s.tracer = trace.NewMiddleware(opts.Logger, s.detector.ExtractClientIP, s.observe)

	t, err := parseTemplates()
	if err != nil {
		logger.Error("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	s.registerGauges()
	s.routes()

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.middleware(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		s.mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /readyz", s.handleReady)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	s.mux.HandleFunc("GET /{$}", s.withSession(s.handleIndex))
	s.mux.HandleFunc("POST /login", s.withSession(s.handleLogin))
	s.mux.HandleFunc("POST /signup", s.withSession(s.handleSignup))

	s.mux.HandleFunc("POST /transactions", s.withSession(s.handleCreate))
	s.mux.HandleFunc("GET /transactions/{id}/edit", s.withSession(s.handleOpenEdit))
	s.mux.HandleFunc("PUT /transactions/{id}", s.withSession(s.handleUpdate))
	s.mux.HandleFunc("POST /transactions/{id}", s.withSession(s.handleUpdate))
	s.mux.HandleFunc("DELETE /transactions/{id}", s.withSession(s.handleDelete))
	s.mux.HandleFunc("POST /transactions/{id}/delete", s.withSession(s.handleDelete))

	s.mux.HandleFunc("POST /ui/edit/close", s.withSession(s.handleCloseEdit))
	s.mux.HandleFunc("GET /ui/transactions", s.withSession(s.handleTable))
	s.mux.HandleFunc("GET /ui/activity", s.handleActivity)
}

// middleware wraps h, outermost first: security headers, probe detection,
// tracing, no-store, and rate limiting of mutating requests.
func (s *Server) middleware(h http.Handler) http.Handler {
	h = s.rateLimiter.Middleware(s.detector.ExtractClientIP, ratelimit.Mutating, s.onRateLimited)(h)
	h = security.NoStore(h)
	h = s.tracer.Middleware(h)
	h = s.detector.Middleware(h)
	return security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError("Too many requests, try again shortly", s.notify).Write(w)
}

// observe feeds finished requests to Prometheus, labelled by route pattern so
// transaction ids do not explode the label space.
func (s *Server) observe(r *http.Request, status int, elapsed time.Duration) {
	_, pattern := s.mux.Handler(r)
	if pattern == "" {
		pattern = "unmatched"
	}
	s.metrics.ObserveRequest(r.Method, pattern, status, elapsed)
}

func (s *Server) registerGauges() {
	gauges := []struct {
		name, help string
		fn         func() float64
	}{
		{"sessions_active", "Live browser sessions.", func() float64 { return float64(s.sessions.Len()) }},
		{"ratelimit_clients", "Clients tracked by the rate limiter.", func() float64 { return float64(s.rateLimiter.ActiveClients()) }},
		{"ratelimit_hits_total", "Requests rejected by the rate limiter.", func() float64 { return float64(s.rateLimiter.Hits()) }},
		{"suspicious_requests_total", "Requests flagged as probes.", func() float64 { return float64(s.detector.Suspicious()) }},
		{"requests_in_flight", "Requests being served.", func() float64 { return float64(s.tracer.InFlight()) }},
	}
	for _, g := range gauges {
		if err := s.metrics.Gauge(g.name, g.help, g.fn); err != nil {
			s.logger.Warn("Metric not registered", log.FieldError, err)
		}
	}
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
