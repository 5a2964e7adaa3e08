package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"crypto-paylink/internal/config"
	"crypto-paylink/internal/domain/model"
	pg "crypto-paylink/internal/infra/db/postgres"
	"crypto-paylink/internal/infra/logging"
	"crypto-paylink/internal/usecase"
)

// Seeds a handful of demo pay links for local testing. Re-running against
// a non-empty database changes nothing.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	linkUC := usecase.NewPayLinkUseCase(pg.NewPayLinkRepo(pool), pg.NewTxManager(pool), logger)

	existing, err := linkUC.List(ctx, 0, 1)
	if err != nil {
		log.Fatalf("list links: %v", err)
	}
	if len(existing) > 0 {
		fmt.Println("links already present, no changes")
		return
	}

	chain := "ethereum"
	if len(cfg.Chains) > 0 {
		chain = cfg.Chains[0].ID
	}

	seeds := []usecase.CreatePayLinkInput{
		{
			TargetURL:        "https://example.com/reports/q3.pdf",
			Description:      "Q3 market report",
			Preview:          "42 pages of on-chain flow analysis",
			RecipientAddress: "0x1111111111111111111111111111111111111111",
			Price:            model.PaymentOption{ChainID: chain, TokenSymbol: "ETH", Amount: "0.01"},
		},
		{
			TargetURL:        "https://example.com/newsletter",
			Description:      "Monthly alpha letter",
			RecipientAddress: "0x2222222222222222222222222222222222222222",
			Price:            model.PaymentOption{ChainID: chain, TokenSymbol: "USDC", Amount: "15"},
			Subscription: &model.SubscriptionConfig{
				Interval:         model.BillingMonthly,
				IntervalCount:    1,
				GracePeriodHours: 72,
				TrialDays:        7,
			},
		},
		{
			TargetURL:        "https://example.com/course",
			Description:      "Trading course, pay in four",
			RecipientAddress: "0x3333333333333333333333333333333333333333",
			Price:            model.PaymentOption{ChainID: chain, TokenSymbol: "USDC", Amount: "400"},
			Installment: &model.InstallmentConfig{
				TotalInstallments:  4,
				DownPaymentPercent: 25,
				IntervalDays:       30,
				GracePeriodDays:    5,
			},
		},
		{
			TargetURL:        "https://example.com/workshop",
			Description:      "Live workshop seat",
			RecipientAddress: "0x4444444444444444444444444444444444444444",
			Price:            model.PaymentOption{ChainID: chain, TokenSymbol: "ETH", Amount: "0.05"},
			MultiUse:         true,
			MaxUses:          50,
			Referral:         &model.ReferralConfig{Enabled: true, CommissionPercent: 10},
		},
	}

	for _, in := range seeds {
		link, err := linkUC.Create(ctx, in)
		if err != nil {
			log.Fatalf("create %q: %v", in.Description, err)
		}
		fmt.Printf("seeded %s  %s/l/%s\n", in.Description, cfg.Server.PublicBaseURL, link.ID)
	}
	fmt.Println("seeding complete")
}
