package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"crypto-paylink/internal/config"
	"crypto-paylink/internal/domain/model"
	"crypto-paylink/internal/domain/ports/adapter"
	"crypto-paylink/internal/infra/metrics"
)

// Compile-time check
var _ adapter.WebhookSink = (*Dispatcher)(nil)

// Envelope is the JSON body posted to the configured endpoint.
type Envelope struct {
	ID        string         `json:"id"`
	Event     string         `json:"event"`
	CreatedAt time.Time      `json:"createdAt"`
	Data      map[string]any `json:"data"`
}

// Dispatcher delivers domain events to one HTTP endpoint. Events are
// queued without blocking the caller and delivered in order by a single
// worker; a full queue drops the newest event. Delivery retries with
// exponential backoff up to MaxAttempts and then drops, so an endpoint
// outage can never fail or stall a payment confirmation.
type Dispatcher struct {
	url         string
	secret      []byte
	maxAttempts int
	backoff     time.Duration
	client      *http.Client
	queue       chan Envelope
	log         *zerolog.Logger
}

func NewDispatcher(cfg config.WebhookConfig, logger *zerolog.Logger) *Dispatcher {
	compLog := logger.With().Str("component", "WebhookDispatcher").Logger()
	d := &Dispatcher{
		url:         cfg.URL,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		client:      &http.Client{Timeout: 10 * time.Second},
		queue:       make(chan Envelope, cfg.QueueSize),
		log:         &compLog,
	}
	if cfg.Secret != "" {
		d.secret = []byte(cfg.Secret)
	}
	return d
}

// QueueEvent implements adapter.WebhookSink. It never blocks.
func (d *Dispatcher) QueueEvent(event string, payload map[string]any) {
	if d.url == "" {
		return
	}
	env := Envelope{
		ID:        model.NewID(),
		Event:     event,
		CreatedAt: time.Now().UTC(),
		Data:      payload,
	}
	select {
	case d.queue <- env:
		metrics.SetWebhookQueueDepth(len(d.queue))
	default:
		metrics.IncWebhookDelivery(event, "dropped")
		d.log.Warn().Str("event", event).Msg("webhook queue full, event dropped")
	}
}

// Run delivers queued events until the context ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.url == "" {
		d.log.Info().Msg("no webhook endpoint configured, dispatcher idle")
		<-ctx.Done()
		return ctx.Err()
	}
	d.log.Info().Str("url", d.url).Msg("Starting webhook dispatcher")
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("Stopping webhook dispatcher")
			return ctx.Err()
		case env := <-d.queue:
			metrics.SetWebhookQueueDepth(len(d.queue))
			d.deliver(ctx, env)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		d.log.Error().Err(err).Str("event", env.Event).Msg("webhook payload marshal failed")
		return
	}

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncWebhookDelivery(env.Event, "retried")
			wait := d.backoff << (attempt - 2)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
		if d.post(ctx, body, env.Event) {
			metrics.IncWebhookDelivery(env.Event, "delivered")
			return
		}
	}
	metrics.IncWebhookDelivery(env.Event, "dropped")
	d.log.Error().
		Str("event", env.Event).
		Str("event_id", env.ID).
		Int("attempts", d.maxAttempts).
		Msg("webhook delivery gave up")
}

func (d *Dispatcher) post(ctx context.Context, body []byte, event string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		d.log.Error().Err(err).Msg("webhook request build failed")
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Paylink-Event", event)
	if d.secret != nil {
		mac := hmac.New(sha256.New, d.secret)
		mac.Write(body)
		req.Header.Set("X-Paylink-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Warn().Err(err).Str("event", event).Msg("webhook post failed")
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true
	}
	d.log.Warn().Int("status", resp.StatusCode).Str("event", event).Msg("webhook endpoint refused delivery")
	return false
}
