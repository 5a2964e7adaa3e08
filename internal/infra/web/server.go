package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"crypto-paylink/internal/config"
	"crypto-paylink/internal/infra/redis"
	"crypto-paylink/internal/usecase"
)

var validate = validator.New()

// Deps bundles everything the HTTP layer calls into.
type Deps struct {
	Access        usecase.AccessUseCase
	Payments      usecase.PaymentUseCase
	Links         usecase.PayLinkUseCase
	Subscriptions usecase.SubscriptionUseCase
	Installments  usecase.InstallmentUseCase
	Referrals     usecase.ReferralUseCase
	Limiter       *redis.RateLimiter
}

// Server owns the public pay-link surface and the admin API.
type Server struct {
	cfg      *config.Config
	auth     *AuthManager
	limiter  *redis.RateLimiter
	access   usecase.AccessUseCase
	payments usecase.PaymentUseCase
	links    usecase.PayLinkUseCase
	subs     usecase.SubscriptionUseCase
	plans    usecase.InstallmentUseCase
	refs     usecase.ReferralUseCase
	log      *zerolog.Logger
	server   *http.Server
}

func NewServer(cfg *config.Config, deps Deps, logger *zerolog.Logger) *Server {
	compLog := logger.With().Str("component", "web").Logger()
	return &Server{
		cfg:      cfg,
		auth:     NewAuthManager(cfg.Admin),
		limiter:  deps.Limiter,
		access:   deps.Access,
		payments: deps.Payments,
		links:    deps.Links,
		subs:     deps.Subscriptions,
		plans:    deps.Installments,
		refs:     deps.Referrals,
		log:      &compLog,
	}
}

// Routes builds the full handler tree. Exposed so tests can drive it with
// httptest without binding a port.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/l/{linkID}", func(r chi.Router) {
		r.Get("/", s.handleAccess())
		r.Post("/confirm", s.handleConfirm())
		r.Get("/status", s.handleStatus())
		r.Post("/subscribe", s.handleSubscribe())
		r.Get("/qr", s.handleQR())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/token", s.handleAuthToken())

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin(s.auth))

			r.Post("/links", s.handleCreateLink())
			r.Get("/links", s.handleListLinks())
			r.Get("/links/{linkID}", s.handleGetLink())
			r.Post("/links/{linkID}/disable", s.handleDisableLink())

			r.Post("/links/{linkID}/referrals", s.handleCreateReferral())
			r.Get("/links/{linkID}/referrals/{code}", s.handleReferralStats())

			r.Post("/commissions/{commissionID}/confirm",
				s.handleCommissionTransition("confirmed", s.refs.ConfirmCommission))
			r.Post("/commissions/{commissionID}/pay",
				s.handleCommissionTransition("paid", s.refs.MarkCommissionPaid))
			r.Post("/commissions/{commissionID}/expire",
				s.handleCommissionTransition("expired", s.refs.ExpireCommission))

			r.Get("/subscriptions/{subscriptionID}", s.handleGetSubscription())
			r.Post("/subscriptions/{subscriptionID}/cancel", s.handleSubscriptionTransition(s.subs.Cancel))
			r.Post("/subscriptions/{subscriptionID}/pause", s.handleSubscriptionTransition(s.subs.Pause))
			r.Post("/subscriptions/{subscriptionID}/resume", s.handleSubscriptionTransition(s.subs.Resume))

			r.Get("/plans/{planID}", s.handleGetPlan())
			r.Post("/plans/{planID}/cancel", s.handleCancelPlan())
		})
	})

	return Chain(r,
		TraceID(),
		RequestLog(s.log),
		Recover(s.log),
		Timeout(60*time.Second),
	)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Int("port", s.cfg.Server.Port).Msg("HTTP server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
