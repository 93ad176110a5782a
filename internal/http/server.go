package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	applog "ahorro/internal/log"
	"ahorro/internal/middleware/ratelimit"
	"ahorro/internal/middleware/security"
	"ahorro/internal/middleware/trace"
	"ahorro/internal/webhook"
)

// WebhookHandler is the action router behind POST /api/webhook.
type WebhookHandler interface {
	// Authorize reports whether apiKey is accepted. When it is not, the
	// returned response is sent as is.
	Authorize(ctx context.Context, apiKey string) (webhook.Response, bool)
	Handle(ctx context.Context, apiKey string, body []byte) webhook.Response
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the server. Zero values pick defaults.
type Options struct {
	RateLimitPerMinute int
	TrustedProxies     []string
	ReadyTimeout       time.Duration
	Logger             *applog.Logger
}

type Server struct {
	http.Server
	webhook  WebhookHandler
	store    Pinger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	ready    time.Duration

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, wh WebhookHandler, store Pinger, opts Options) (*Server, error) {
	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 2 * time.Second
	}

	limiterCfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limiterCfg.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		webhook:  wh,
		store:    store,
		limiter:  ratelimit.NewLimiter(limiterCfg),
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, opts.Logger),
		ready:    opts.ReadyTimeout,
	}

	mux := http.NewServeMux()
	api := s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, _ *http.Request) {
		TooManyRequestsError().Write(w)
	})
	mux.Handle("/api/webhook", api(http.HandlerFunc(s.handleWebhook)))
	mux.Handle("/api/webhook/n8n", api(http.HandlerFunc(s.handleWebhook)))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no route for " + r.URL.Path).Write(w)
	})

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Addr = addr
	s.Handler = handler
	s.ReadHeaderTimeout = 10 * time.Second
	s.ReadTimeout = 30 * time.Second
	s.WriteTimeout = 30 * time.Second
	s.IdleTimeout = 120 * time.Second
	return s, nil
}

// Shutdown gracefully shuts down the server and the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	apiKey := APIKey(r)
	if resp, ok := s.webhook.Authorize(r.Context(), apiKey); !ok {
		s.writeWebhook(w, resp)
		return
	}

	body, err := ReadBody(w, r, MaxBodyBytes)
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		RequestTooLargeError(err.Error()).Write(w)
		return
	case err != nil:
		BadRequestError(err.Error()).Write(w)
		return
	}

	s.writeWebhook(w, s.webhook.Handle(r.Context(), apiKey, body))
}

func (s *Server) writeWebhook(w http.ResponseWriter, resp webhook.Response) {
	NewJSONResponse().
		Status(resp.Status).
		Body(resp.Body).
		Write(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().
		Field("status", "ok").
		Field("requests", s.tracer.GetMetrics()).
		Field("rate_limit", s.limiter.GetMetrics()).
		Field("security", s.detector.GetMetrics()).
		Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.ready)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed",
			applog.FieldComponent, applog.ComponentHTTP,
			applog.FieldError, err.Error())
		ServiceUnavailableError("store unavailable").Write(w)
		return
	}
	NewJSONResponse().Field("status", "ready").Write(w)
}
