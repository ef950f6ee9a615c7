package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/bingwa/agent/contract"
	"github.com/tanpawarit/bingwa/domain/order"
)

// Config holds runtime options for the HTTP server.
type Config struct {
	Address         string
	RequestTimeout  time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
	ShutdownTimeout time.Duration
}

// Fulfillment applies provider-side status updates delivered by the webhook.
type Fulfillment interface {
	Advance(ctx context.Context, orderID string, target order.Status, note string) (order.Order, error)
	Cancel(ctx context.Context, orderID, reason string, refundRequired bool) (order.Order, error)
	Get(ctx context.Context, orderID string) (order.Order, error)
}

// SignatureVerifier checks inbound webhook signatures.
type SignatureVerifier interface {
	Verify(signature string, body []byte) error
}

type Deps struct {
	Orchestrator contractx.Orchestrator
	Tools        contractx.ToolGateway
	// Fulfillment and Verifier are both required for the webhook route to be mounted.
	Fulfillment  Fulfillment
	Verifier     SignatureVerifier
	NewSessionID func() string
}

type Server struct {
	cfg     Config
	handler http.Handler
}

func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Orchestrator == nil {
		return nil, errors.New("server: orchestrator is required")
	}
	if deps.Tools == nil {
		return nil, errors.New("server: tool gateway is required")
	}
	if deps.NewSessionID == nil {
		deps.NewSessionID = func() string { return uuid.NewString() }
	}
	if strings.TrimSpace(cfg.Address) == "" {
		cfg.Address = ":8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	return &Server{cfg: cfg, handler: newRouter(cfg, deps)}, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("component", "server").Str("addr", s.cfg.Address).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	log.Info().Str("component", "server").Msg("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg Config, deps Deps) http.Handler {
	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(requestLogger)
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(cfg.RequestTimeout))

	router.Get("/healthz", handleHealth)

	router.Route("/v1", func(r chi.Router) {
		r.Get("/operations", handleOperations(deps.Tools))

		r.Group(func(r chi.Router) {
			r.Use(newIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware)
			r.Post("/chat", handleChat(deps.Orchestrator, deps.NewSessionID))
		})

		if deps.Fulfillment != nil && deps.Verifier != nil {
			r.Post("/webhooks/fulfillment", handleFulfillment(deps.Fulfillment, deps.Verifier))
		}
	})

	return router
}
