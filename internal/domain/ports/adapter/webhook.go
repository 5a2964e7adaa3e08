package adapter

// Webhook event names emitted by the engine.
const (
	EventPaymentConfirmed      = "payment.confirmed"
	EventPaymentUnderpaid      = "payment.underpaid"
	EventSubscriptionRenewed   = "subscription.renewed"
	EventSubscriptionDue       = "subscription.payment_due"
	EventSubscriptionPastDue   = "subscription.past_due"
	EventSubscriptionExpired   = "subscription.expired"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventInstallmentConfirmed  = "installment.payment_confirmed"
	EventInstallmentCompleted  = "installment.completed"
	EventInstallmentSuspended  = "installment.plan_suspended"
	EventCommissionRecorded    = "referral.commission_recorded"
	EventCommissionPaid        = "referral.commission_paid"
)

// WebhookSink accepts domain events for out-of-band delivery. QueueEvent
// never blocks the caller; a saturated sink drops the event and logs it.
type WebhookSink interface {
	QueueEvent(event string, payload map[string]any)
}

// NoopSink discards every event. Used when no webhook endpoint is
// configured and as a default in tests.
type NoopSink struct{}

func (NoopSink) QueueEvent(string, map[string]any) {}
