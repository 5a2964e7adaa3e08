package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crypto-paylink/internal/domain"
	"crypto-paylink/internal/domain/model"
	"crypto-paylink/internal/domain/ports/repository"
	"crypto-paylink/internal/infra/logging"
	"crypto-paylink/internal/protocol"
)

// Compile-time check
var _ AccessUseCase = (*accessUC)(nil)

// AccessOutcome is one of the four terminal answers for a link request.
type AccessOutcome string

const (
	OutcomeRedirect        AccessOutcome = "redirect"
	OutcomePaymentRequired AccessOutcome = "payment_required"
	OutcomeForbidden       AccessOutcome = "forbidden"
	OutcomeNotFound        AccessOutcome = "not_found"
)

// AccessDecision carries the outcome plus whichever body goes with it.
type AccessDecision struct {
	Outcome     AccessOutcome
	RedirectURL string
	Challenge   *protocol.PaymentRequired
	Refusal     *protocol.Forbidden
}

// AccessUseCase answers "what should happen for this request": redirect
// the viewer, challenge them for payment, or refuse. The checks run in a
// fixed order and the first one that fires wins.
type AccessUseCase interface {
	// Evaluate decides for a link and an optional payer identity. Payer
	// identity is required to recognize subscription, multi-use and
	// installment entitlements; without it those modes fall back to a
	// payment challenge.
	Evaluate(ctx context.Context, linkID, payer string) (*AccessDecision, error)
}

type accessUC struct {
	links          repository.PayLinkRepository
	payments       repository.PaymentRepository
	subs           repository.SubscriptionRepository
	plans          repository.InstallmentRepository
	nonces         repository.NonceStore
	signer         *protocol.Signer
	publicBaseURL  string
	timeoutSeconds int
	log            *zerolog.Logger
}

func NewAccessUseCase(
	links repository.PayLinkRepository,
	payments repository.PaymentRepository,
	subs repository.SubscriptionRepository,
	plans repository.InstallmentRepository,
	nonces repository.NonceStore,
	signer *protocol.Signer,
	publicBaseURL string,
	timeoutSeconds int,
	logger *zerolog.Logger,
) *accessUC {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 900
	}
	return &accessUC{
		links:          links,
		payments:       payments,
		subs:           subs,
		plans:          plans,
		nonces:         nonces,
		signer:         signer,
		publicBaseURL:  publicBaseURL,
		timeoutSeconds: timeoutSeconds,
		log:            logger,
	}
}

func (u *accessUC) Evaluate(ctx context.Context, linkID, payer string) (*AccessDecision, error) {
	defer logging.TraceDuration(u.log, "AccessUC.Evaluate")()

	link, err := u.links.FindByID(ctx, repository.NoTX, linkID)
	if errors.Is(err, domain.ErrNotFound) {
		return refuse(linkID, OutcomeNotFound, protocol.ReasonLinkNotFound, ""), nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	// Disabled wins over expired when both hold.
	if link.Status == model.LinkStatusDisabled {
		return refuse(linkID, OutcomeForbidden, protocol.ReasonLinkDisabled, ""), nil
	}
	if link.Expired(now) {
		return refuse(linkID, OutcomeForbidden, protocol.ReasonLinkExpired, ""), nil
	}
	if link.Subscription == nil && !link.MultiUse && link.UsageExhausted() {
		return refuse(linkID, OutcomeForbidden, protocol.ReasonUsageLimitReached, ""), nil
	}

	switch {
	case link.Subscription != nil:
		return u.evaluateSubscription(ctx, link, payer, now)
	case link.Installment != nil:
		return u.evaluateInstallment(ctx, link, payer)
	case link.MultiUse:
		return u.evaluateMultiUse(ctx, link, payer)
	default:
		return u.evaluateSingleUse(ctx, link)
	}
}

func (u *accessUC) evaluateSubscription(ctx context.Context, link *model.PayLink, payer string, now time.Time) (*AccessDecision, error) {
	if payer == "" {
		return u.challenge(ctx, link, "", nil)
	}
	// The latest subscription decides, whatever its status: a subscriber
	// who cancelled gets the cancellation refusal, not a fresh quote.
	sub, err := u.subs.FindLatestByLinkAndSubscriber(ctx, repository.NoTX, link.ID, payer)
	if errors.Is(err, domain.ErrNotFound) {
		return u.challenge(ctx, link, "", nil)
	}
	if err != nil {
		return nil, err
	}

	cfg := link.Subscription
	acc := sub.AccessState(now, cfg.GracePeriodHours)
	if acc.HasAccess {
		return &AccessDecision{Outcome: OutcomeRedirect, RedirectURL: link.TargetURL}, nil
	}

	switch sub.Status {
	case model.SubscriptionCancelled:
		return refuse(link.ID, OutcomeForbidden, protocol.ReasonSubscriptionCancelled, ""), nil
	case model.SubscriptionPaused:
		return refuse(link.ID, OutcomeForbidden, protocol.ReasonSubscriptionPaused, ""), nil
	case model.SubscriptionExpired:
		code := protocol.ReasonSubscriptionExpired
		if cfg.MaxCycles > 0 && sub.CycleCount >= cfg.MaxCycles {
			code = protocol.ReasonMaxCyclesReached
		}
		return refuse(link.ID, OutcomeForbidden, code, ""), nil
	}

	// Past the grace window: access denied, but a renewal payment fixes
	// it, so answer with a challenge carrying the renewal context.
	info := &protocol.SubscriptionInfo{
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
		NextPaymentDue: sub.NextPaymentDue.Format(time.RFC3339),
		PastDue:        true,
	}
	return u.challenge(ctx, link, "", info)
}

func (u *accessUC) evaluateInstallment(ctx context.Context, link *model.PayLink, payer string) (*AccessDecision, error) {
	downPayment := func() (string, error) {
		amounts, err := model.InstallmentSchedule(link.Price.Amount, link.Installment.TotalInstallments, link.Installment.DownPaymentPercent)
		if err != nil {
			return "", err
		}
		return amounts[0], nil
	}

	if payer == "" {
		due, err := downPayment()
		if err != nil {
			return nil, err
		}
		return u.challenge(ctx, link, due, nil)
	}

	plan, err := u.plans.FindCurrentPlanByLinkAndBuyer(ctx, repository.NoTX, link.ID, payer)
	if errors.Is(err, domain.ErrNotFound) {
		due, derr := downPayment()
		if derr != nil {
			return nil, derr
		}
		return u.challenge(ctx, link, due, nil)
	}
	if err != nil {
		return nil, err
	}

	if plan.HasAccess() {
		return &AccessDecision{Outcome: OutcomeRedirect, RedirectURL: link.TargetURL}, nil
	}
	// Pending or suspended: the next share unlocks the plan again.
	due, err := plan.ExpectedAmountFor(plan.NextInstallmentNumber)
	if err != nil {
		return nil, err
	}
	return u.challenge(ctx, link, due, nil)
}

func (u *accessUC) evaluateMultiUse(ctx context.Context, link *model.PayLink, payer string) (*AccessDecision, error) {
	if payer == "" {
		return u.challenge(ctx, link, "", nil)
	}
	_, err := u.payments.FindConfirmedByLinkAndPayer(ctx, repository.NoTX, link.ID, payer)
	if errors.Is(err, domain.ErrNotFound) {
		return u.challenge(ctx, link, "", nil)
	}
	if err != nil {
		return nil, err
	}
	if link.UsageExhausted() {
		return refuse(link.ID, OutcomeForbidden, protocol.ReasonUsageLimitReached, ""), nil
	}
	if _, err := u.links.IncrementUsage(ctx, repository.NoTX, link.ID); err != nil {
		return nil, err
	}
	return &AccessDecision{Outcome: OutcomeRedirect, RedirectURL: link.TargetURL}, nil
}

func (u *accessUC) evaluateSingleUse(ctx context.Context, link *model.PayLink) (*AccessDecision, error) {
	_, err := u.payments.FindConfirmedByLink(ctx, repository.NoTX, link.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return u.challenge(ctx, link, "", nil)
	}
	if err != nil {
		return nil, err
	}
	if _, err := u.links.IncrementUsage(ctx, repository.NoTX, link.ID); err != nil {
		return nil, err
	}
	return &AccessDecision{Outcome: OutcomeRedirect, RedirectURL: link.TargetURL}, nil
}

// challenge builds the 402 body: terms, callbacks, a fresh single-use
// nonce, and a signature when signing is configured. amountOverride
// replaces the primary amount for installment shares; such challenges
// carry no alternate options because shares are quoted in the primary
// token only.
func (u *accessUC) challenge(ctx context.Context, link *model.PayLink, amountOverride string, subInfo *protocol.SubscriptionInfo) (*AccessDecision, error) {
	terms := protocol.PaymentTerms{
		ChainID:        link.Price.ChainID,
		TokenSymbol:    link.Price.TokenSymbol,
		Amount:         link.Price.Amount,
		Recipient:      link.RecipientAddress,
		TimeoutSeconds: u.timeoutSeconds,
	}
	var options []protocol.PaymentTerms
	if amountOverride != "" {
		terms.Amount = amountOverride
	} else {
		for _, o := range link.PaymentOptions {
			options = append(options, protocol.PaymentTerms{
				ChainID:        o.ChainID,
				TokenSymbol:    o.TokenSymbol,
				Amount:         o.Amount,
				Recipient:      link.RecipientAddress,
				TimeoutSeconds: u.timeoutSeconds,
			})
		}
	}

	nonce := uuid.NewString()
	ttl := time.Duration(u.timeoutSeconds) * time.Second
	if err := u.nonces.Issue(ctx, link.ID, nonce, ttl); err != nil {
		return nil, fmt.Errorf("issue nonce: %w", err)
	}

	body := &protocol.PaymentRequired{
		Protocol:  protocol.PaymentRequiredVersion,
		PayLinkID: link.ID,
		Resource: protocol.Resource{
			Description: link.Description,
			Preview:     link.Preview,
		},
		Payment:        terms,
		PaymentOptions: options,
		Callbacks: protocol.Callbacks{
			Status:  fmt.Sprintf("%s/l/%s/status", u.publicBaseURL, link.ID),
			Confirm: fmt.Sprintf("%s/l/%s/confirm", u.publicBaseURL, link.ID),
		},
		Nonce:        nonce,
		Subscription: subInfo,
	}
	if u.signer != nil {
		sig, err := u.signer.Sign(link.ID, terms, nonce)
		if err != nil {
			return nil, err
		}
		body.Signature = sig
	}
	return &AccessDecision{Outcome: OutcomePaymentRequired, Challenge: body}, nil
}

func refuse(linkID string, outcome AccessOutcome, code protocol.ReasonCode, message string) *AccessDecision {
	fb := protocol.NewForbidden(linkID, code, message)
	return &AccessDecision{Outcome: outcome, Refusal: &fb}
}
