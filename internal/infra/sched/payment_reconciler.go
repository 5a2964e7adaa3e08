package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"crypto-paylink/internal/domain/ports/repository"
	"crypto-paylink/internal/infra/metrics"
	"crypto-paylink/internal/usecase"
)

// PaymentReconciler periodically re-verifies stale pending payments. This
// covers payers who submitted a transaction and never polled again, and
// confirmations interrupted mid-flight by a crash.
type PaymentReconciler struct {
	payUC      usecase.PaymentUseCase
	payments   repository.PaymentRepository
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending payment must be to retry
	batchSize  int
	log        *zerolog.Logger
}

func NewPaymentReconciler(payUC usecase.PaymentUseCase, payments repository.PaymentRepository, interval, staleAfter time.Duration, batchSize int, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	compLog := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		payUC:      payUC,
		payments:   payments,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		log:        &compLog,
	}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting payment reconciler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.payments.ListPendingOlderThan(ctx, repository.NoTX, cutoff, w.batchSize)
	metrics.IncSweepRun("reconcile", err)
	if err != nil {
		w.log.Error().Err(err).Msg("reconciler: list pending failed")
		return
	}

	reconciled := 0
	for _, p := range pending {
		res, err := w.payUC.Confirm(ctx, p.PayLinkID, usecase.ConfirmInput{
			TxHash:  p.TxHash,
			ChainID: p.ChainID,
		})
		if err != nil {
			w.log.Warn().Err(err).Str("payment_id", p.ID).Str("tx_hash", p.TxHash).Msg("reconciler: confirm failed")
			continue
		}
		if res.Status == usecase.ConfirmStatusConfirmed {
			reconciled++
		}
	}
	if reconciled > 0 {
		w.log.Info().Int("count", reconciled).Msg("stale pending payments reconciled")
	}
}
