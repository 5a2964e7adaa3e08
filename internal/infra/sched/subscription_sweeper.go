package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"crypto-paylink/internal/infra/metrics"
	"crypto-paylink/internal/usecase"
)

// SubscriptionSweeper periodically moves lapsed subscriptions to past_due
// via the use case.
type SubscriptionSweeper struct {
	interval  time.Duration
	batchSize int
	subUC     usecase.SubscriptionUseCase
	log       *zerolog.Logger
}

func NewSubscriptionSweeper(interval time.Duration, batchSize int, subUC usecase.SubscriptionUseCase, logger *zerolog.Logger) *SubscriptionSweeper {
	compLog := logger.With().Str("component", "SubscriptionSweeper").Logger()
	return &SubscriptionSweeper{
		interval:  interval,
		batchSize: batchSize,
		subUC:     subUC,
		log:       &compLog,
	}
}

func (w *SubscriptionSweeper) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting subscription sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping subscription sweeper")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.subUC.SweepDue(ctx, time.Now(), w.batchSize)
			metrics.IncSweepRun("subscriptions", err)
			if err != nil {
				w.log.Error().Err(err).Msg("subscription sweep error")
			}
			if n > 0 {
				metrics.IncSubscriptionsPastDue(n)
				w.log.Info().Int("count", n).Msg("subscriptions moved to past_due")
			}
		}
	}
}
