package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"crypto-paylink/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New creates a zerolog logger configured from config.
// Supports "trace" | "debug" | "info" | "warn" | "error" levels
// and "json" | "console" formats. Sampling can be enabled to reduce noise in prod.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, _ := zerolog.ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var base zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" || dev {
		out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		base = zerolog.New(out).With().Timestamp().Logger()
	} else {
		base = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	if cfg.Sampling && !dev {
		// Simple sampling: keep first 100, then 1 every 100 thereafter.
		sampled := base.Sample(&zerolog.BasicSampler{N: 100})
		return &sampled
	}
	return &base
}

// With attaches common context fields such as trace_id, link_id, payer etc.
type ctxKey string

const (
	ctxTraceID ctxKey = "trace_id"
	ctxLinkID  ctxKey = "link_id"
	ctxPayer   ctxKey = "payer"
	ctxTxHash  ctxKey = "tx_hash"
)

func With(ctx context.Context, base *zerolog.Logger, extra ...zerolog.Context) *zerolog.Logger {
	l := base.With()
	if v := ctx.Value(ctxTraceID); v != nil {
		l = l.Str("trace_id", v.(string))
	}
	if v := ctx.Value(ctxLinkID); v != nil {
		l = l.Str("link_id", v.(string))
	}
	if v := ctx.Value(ctxPayer); v != nil {
		l = l.Str("payer", v.(string))
	}
	if v := ctx.Value(ctxTxHash); v != nil {
		l = l.Str("tx_hash", v.(string))
	}
	logger := l.Logger()
	return &logger
}

// TraceDuration logs start and end with elapsed duration at TRACE level.
// Usage: defer logging.TraceDuration(logger, "PaymentUC.Confirm")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		elapsed := time.Since(start)
		logger.Trace().Str("method", name).Dur("duration", elapsed).Msg("finish")
	}
}

// Redact hides payer addresses and secrets when not in dev; keep a short
// preview so operators can still correlate.
func Redact(s string, dev bool) string {
	if dev {
		return s
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-2:]
}

// Helpers to put IDs into context.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}
func WithLinkID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxLinkID, id)
}
func WithPayer(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, ctxPayer, addr)
}
func WithTxHash(ctx context.Context, hash string) context.Context {
	return context.WithValue(ctx, ctxTxHash, hash)
}

// Expose global (optional). Prefer injection where possible.
var Global = log.Logger
