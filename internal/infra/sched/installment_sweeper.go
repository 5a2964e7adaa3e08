package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"crypto-paylink/internal/infra/metrics"
	"crypto-paylink/internal/usecase"
)

// InstallmentSweeper periodically suspends plans whose next share slipped
// past its grace window.
type InstallmentSweeper struct {
	interval  time.Duration
	batchSize int
	instUC    usecase.InstallmentUseCase
	log       *zerolog.Logger
}

func NewInstallmentSweeper(interval time.Duration, batchSize int, instUC usecase.InstallmentUseCase, logger *zerolog.Logger) *InstallmentSweeper {
	compLog := logger.With().Str("component", "InstallmentSweeper").Logger()
	return &InstallmentSweeper{
		interval:  interval,
		batchSize: batchSize,
		instUC:    instUC,
		log:       &compLog,
	}
}

func (w *InstallmentSweeper) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting installment sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping installment sweeper")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.instUC.SweepOverdue(ctx, time.Now(), w.batchSize)
			metrics.IncSweepRun("installments", err)
			if err != nil {
				w.log.Error().Err(err).Msg("installment sweep error")
			}
			if n > 0 {
				metrics.IncInstallmentPlansSuspended(n)
				w.log.Info().Int("count", n).Msg("installment plans suspended")
			}
		}
	}
}
