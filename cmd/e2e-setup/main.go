package main

import (
	"context"
	"log"
	"time"

	"crypto-paylink/internal/config"
	"crypto-paylink/internal/domain/model"
	"crypto-paylink/internal/domain/ports/adapter"
	pg "crypto-paylink/internal/infra/db/postgres"
	"crypto-paylink/internal/infra/logging"
	red "crypto-paylink/internal/infra/redis"
	"crypto-paylink/internal/usecase"
)

// Resets the database and Redis to a clean, predictable state for manual
// end-to-end runs, then seeds one link per payment mode with fixed targets.
func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()

	log.Println("--- E2E environment setup ---")

	log.Println("[1/3] flushing redis")
	if err := redisClient.FlushDB(ctx); err != nil {
		log.Fatalf("flush redis: %v", err)
	}

	log.Println("[2/3] truncating tables")
	_, err = pool.Exec(ctx, `
		TRUNCATE
			pay_links, payments, subscriptions,
			installment_plans, installment_payments,
			referrals, referral_commissions
		RESTART IDENTITY CASCADE;
	`)
	if err != nil {
		log.Fatalf("truncate tables: %v", err)
	}

	log.Println("[3/3] seeding fixture links")
	linkUC := usecase.NewPayLinkUseCase(pg.NewPayLinkRepo(pool), pg.NewTxManager(pool), logger)
	refUC := usecase.NewReferralUseCase(pg.NewPayLinkRepo(pool), pg.NewReferralRepo(pool), pg.NewTxManager(pool), adapter.NoopSink{}, logger)

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	single, err := linkUC.Create(cctx, usecase.CreatePayLinkInput{
		TargetURL:        "https://example.com/e2e/single",
		Description:      "E2E single-use link",
		RecipientAddress: "0xE2E0000000000000000000000000000000000001",
		Price:            model.PaymentOption{ChainID: firstChain(cfg), TokenSymbol: "ETH", Amount: "0.01"},
		MaxUses:          1,
	})
	if err != nil {
		log.Fatalf("seed single: %v", err)
	}

	sub, err := linkUC.Create(cctx, usecase.CreatePayLinkInput{
		TargetURL:        "https://example.com/e2e/subscription",
		Description:      "E2E subscription link",
		RecipientAddress: "0xE2E0000000000000000000000000000000000002",
		Price:            model.PaymentOption{ChainID: firstChain(cfg), TokenSymbol: "USDC", Amount: "10"},
		Subscription: &model.SubscriptionConfig{
			Interval:         model.BillingMonthly,
			IntervalCount:    1,
			GracePeriodHours: 24,
		},
	})
	if err != nil {
		log.Fatalf("seed subscription: %v", err)
	}

	referral, err := linkUC.Create(cctx, usecase.CreatePayLinkInput{
		TargetURL:        "https://example.com/e2e/referral",
		Description:      "E2E referral link",
		RecipientAddress: "0xE2E0000000000000000000000000000000000003",
		Price:            model.PaymentOption{ChainID: firstChain(cfg), TokenSymbol: "ETH", Amount: "0.02"},
		MultiUse:         true,
		Referral:         &model.ReferralConfig{Enabled: true, CommissionPercent: 10},
	})
	if err != nil {
		log.Fatalf("seed referral: %v", err)
	}
	if _, err := refUC.CreateReferral(cctx, referral.ID, "0xE2EReferrer", "E2ETEST1"); err != nil {
		log.Fatalf("seed referral code: %v", err)
	}

	log.Printf("single-use:   %s/l/%s", cfg.Server.PublicBaseURL, single.ID)
	log.Printf("subscription: %s/l/%s", cfg.Server.PublicBaseURL, sub.ID)
	log.Printf("referral:     %s/l/%s (confirm with referralCode E2ETEST1)", cfg.Server.PublicBaseURL, referral.ID)
	log.Println("--- setup complete ---")
}

func firstChain(cfg *config.Config) string {
	if len(cfg.Chains) > 0 {
		return cfg.Chains[0].ID
	}
	return "ethereum"
}
