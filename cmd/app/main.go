package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-paylink/internal/config"
	pg "crypto-paylink/internal/infra/db/postgres"
	"crypto-paylink/internal/infra/logging"
	"crypto-paylink/internal/infra/metrics"
	red "crypto-paylink/internal/infra/redis"
	"crypto-paylink/internal/infra/sched"
	"crypto-paylink/internal/infra/verifier"
	"crypto-paylink/internal/infra/web"
	"crypto-paylink/internal/infra/webhook"
	"crypto-paylink/internal/protocol"
	"crypto-paylink/internal/usecase"
)

// Overridden at link time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	nonces := red.NewNonceStore(redisClient, cfg.Redis.NonceTTL)
	limiter := red.NewRateLimiter(redisClient)

	// ---- Chain verifiers ----
	verifiers, err := verifier.NewRegistry(cfg.Chains, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("verifier registry")
	}

	// ---- Repositories ----
	linkRepo := pg.NewPayLinkRepo(pool)
	paymentRepo := pg.NewPaymentRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	planRepo := pg.NewInstallmentRepo(pool)
	refRepo := pg.NewReferralRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Webhook delivery ----
	hooks := webhook.NewDispatcher(cfg.Webhook, logger)
	go func() { _ = hooks.Run(ctx) }()

	// ---- Use cases ----
	subUC := usecase.NewSubscriptionUseCase(linkRepo, subRepo, tm, hooks, logger)
	instUC := usecase.NewInstallmentUseCase(linkRepo, planRepo, tm, hooks, logger)
	refUC := usecase.NewReferralUseCase(linkRepo, refRepo, tm, hooks, logger)
	linkUC := usecase.NewPayLinkUseCase(linkRepo, tm, logger)
	accessUC := usecase.NewAccessUseCase(
		linkRepo, paymentRepo, subRepo, planRepo, nonces,
		protocol.NewSigner(cfg.Protocol.SigningSecret),
		cfg.Server.PublicBaseURL, cfg.Protocol.PaymentTimeoutSeconds, logger,
	)
	paymentUC := usecase.NewPaymentUseCase(
		linkRepo, paymentRepo, subUC, instUC, refUC,
		verifiers, nonces, locker, tm, hooks, logger,
	)

	// ---- Background sweeps ----
	subSweeper := sched.NewSubscriptionSweeper(cfg.Sweep.SubscriptionInterval, cfg.Sweep.BatchSize, subUC, logger)
	go func() { _ = subSweeper.Run(ctx) }()
	instSweeper := sched.NewInstallmentSweeper(cfg.Sweep.InstallmentInterval, cfg.Sweep.BatchSize, instUC, logger)
	go func() { _ = instSweeper.Run(ctx) }()
	reconciler := sched.NewPaymentReconciler(paymentUC, paymentRepo, 0, 0, cfg.Sweep.BatchSize, logger)
	go func() { _ = reconciler.Run(ctx) }()

	// ---- HTTP ----
	srv := web.NewServer(cfg, web.Deps{
		Access:        accessUC,
		Payments:      paymentUC,
		Links:         linkUC,
		Subscriptions: subUC,
		Installments:  instUC,
		Referrals:     refUC,
		Limiter:       limiter,
	}, logger)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigc:
		logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
		}
	}
	cancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	logger.Info().Msg("bye")
}
