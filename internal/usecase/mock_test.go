//go:build !integration

package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"crypto-paylink/internal/domain"
	"crypto-paylink/internal/domain/model"
	"crypto-paylink/internal/domain/ports/repository"
	"crypto-paylink/internal/infra/verifier"
	"crypto-paylink/internal/protocol"
)

// newTestLogger creates a silent logger for tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(nil)
	return &logger
}

// --- Mock Repositories (Ports) ---

type mockLinkRepo struct {
	repository.PayLinkRepository // Embed interface for forward compatibility
	mu                           sync.Mutex
	links                        []*model.PayLink
	SaveError                    error // To simulate errors
	FindError                    error
}

func (m *mockLinkRepo) Save(ctx context.Context, tx repository.Tx, l *model.PayLink) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.links {
		if existing.ID == l.ID {
			m.links[i] = l
			return nil
		}
	}
	m.links = append(m.links, l)
	return nil
}

func (m *mockLinkRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PayLink, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockLinkRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.PayLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := offset + limit
	if end > len(m.links) {
		end = len(m.links)
	}
	if offset >= len(m.links) {
		return []*model.PayLink{}, nil
	}
	return m.links[offset:end], nil
}

func (m *mockLinkRepo) IncrementUsage(ctx context.Context, tx repository.Tx, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.ID == id {
			l.UsedCount++
			return l.UsedCount, nil
		}
	}
	return 0, domain.ErrNotFound
}

func (m *mockLinkRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.LinkStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.ID == id {
			l.Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

type mockPaymentRepo struct {
	repository.PaymentRepository // Embed interface
	mu                           sync.Mutex
	payments                     []*model.Payment
	InsertError                  error
}

func (m *mockPaymentRepo) Insert(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payments {
		if existing.TxHash == p.TxHash {
			return domain.ErrAlreadyExists
		}
	}
	m.payments = append(m.payments, p)
	return nil
}

func (m *mockPaymentRepo) FindByTxHash(ctx context.Context, tx repository.Tx, txHash string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.TxHash == txHash {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockPaymentRepo) FindConfirmedByLink(ctx context.Context, tx repository.Tx, payLinkID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.PayLinkID == payLinkID && p.Confirmed {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockPaymentRepo) FindConfirmedByLinkAndPayer(ctx context.Context, tx repository.Tx, payLinkID, payerAddress string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.PayLinkID == payLinkID && p.Confirmed && strings.EqualFold(p.FromAddress, payerAddress) {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockPaymentRepo) MarkConfirmed(ctx context.Context, tx repository.Tx, id string, amount, fromAddress string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ID == id {
			if p.Confirmed {
				return false, nil
			}
			p.Confirmed = true
			p.Amount = amount
			p.FromAddress = fromAddress
			p.ConfirmedAt = &at
			return true, nil
		}
	}
	return false, domain.ErrNotFound
}

func (m *mockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.payments {
		if !p.Confirmed && !p.CreatedAt.After(cutoff) {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type mockSubRepo struct {
	repository.SubscriptionRepository // Embed interface
	mu                                sync.Mutex
	subs                              []*model.Subscription
	SaveError                         error
}

func subTerminal(s *model.Subscription) bool {
	return s.Status == model.SubscriptionCancelled || s.Status == model.SubscriptionExpired
}

func (m *mockSubRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.subs {
		if existing.ID == s.ID {
			m.subs[i] = s
			return nil
		}
	}
	// One live subscription per (link, subscriber), like the partial
	// unique index in Postgres.
	if !subTerminal(s) {
		for _, existing := range m.subs {
			if existing.PayLinkID == s.PayLinkID &&
				strings.EqualFold(existing.SubscriberAddress, s.SubscriberAddress) &&
				!subTerminal(existing) {
				return domain.ErrAlreadyExists
			}
		}
	}
	m.subs = append(m.subs, s)
	return nil
}

func (m *mockSubRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubRepo) FindCurrentByLinkAndSubscriber(ctx context.Context, tx repository.Tx, payLinkID, subscriber string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.PayLinkID == payLinkID && strings.EqualFold(s.SubscriberAddress, subscriber) && !subTerminal(s) {
			return s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubRepo) FindLatestByLinkAndSubscriber(ctx context.Context, tx repository.Tx, payLinkID, subscriber string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.Subscription
	for _, s := range m.subs {
		if s.PayLinkID == payLinkID && strings.EqualFold(s.SubscriberAddress, subscriber) {
			if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
				latest = s
			}
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest, nil
}

func (m *mockSubRepo) ListDue(ctx context.Context, tx repository.Tx, asOf time.Time, limit int) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.Status == model.SubscriptionActive && !s.NextPaymentDue.After(asOf) {
			out = append(out, s)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *mockSubRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, id string, from, to model.SubscriptionStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			if s.Status != from {
				return false, nil
			}
			s.Status = to
			s.UpdatedAt = at
			return true, nil
		}
	}
	return false, domain.ErrNotFound
}

type mockInstallmentRepo struct {
	repository.InstallmentRepository // Embed interface
	mu                               sync.Mutex
	plans                            []*model.InstallmentPlan
	installments                     []*model.InstallmentPayment
}

func (m *mockInstallmentRepo) SavePlan(ctx context.Context, tx repository.Tx, p *model.InstallmentPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.plans {
		if existing.ID == p.ID {
			m.plans[i] = p
			return nil
		}
	}
	if p.Status != model.PlanCancelled {
		for _, existing := range m.plans {
			if existing.PayLinkID == p.PayLinkID &&
				strings.EqualFold(existing.BuyerAddress, p.BuyerAddress) &&
				existing.Status != model.PlanCancelled {
				return domain.ErrAlreadyExists
			}
		}
	}
	m.plans = append(m.plans, p)
	return nil
}

func (m *mockInstallmentRepo) FindPlanByID(ctx context.Context, tx repository.Tx, id string) (*model.InstallmentPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockInstallmentRepo) FindCurrentPlanByLinkAndBuyer(ctx context.Context, tx repository.Tx, payLinkID, buyer string) (*model.InstallmentPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.PayLinkID == payLinkID && strings.EqualFold(p.BuyerAddress, buyer) && p.Status != model.PlanCancelled {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockInstallmentRepo) ListOverduePlans(ctx context.Context, tx repository.Tx, asOf time.Time, limit int) ([]*model.InstallmentPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.InstallmentPlan
	for _, p := range m.plans {
		grace := time.Duration(p.GracePeriodDays) * 24 * time.Hour
		if p.Status == model.PlanActive && !p.NextDueDate.Add(grace).After(asOf) {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *mockInstallmentRepo) SuspendIfActive(ctx context.Context, tx repository.Tx, id, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.ID == id {
			if p.Status != model.PlanActive {
				return false, nil
			}
			p.Status = model.PlanSuspended
			p.SuspendReason = reason
			p.SuspendedAt = &at
			p.UpdatedAt = at
			return true, nil
		}
	}
	return false, domain.ErrNotFound
}

func (m *mockInstallmentRepo) SavePayment(ctx context.Context, tx repository.Tx, p *model.InstallmentPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.installments {
		if existing.ID == p.ID {
			m.installments[i] = p
			return nil
		}
	}
	for _, existing := range m.installments {
		if existing.PlanID == p.PlanID && existing.InstallmentNumber == p.InstallmentNumber {
			return domain.ErrAlreadyExists
		}
	}
	m.installments = append(m.installments, p)
	return nil
}

func (m *mockInstallmentRepo) FindPaymentByPlanAndNumber(ctx context.Context, tx repository.Tx, planID string, number int) (*model.InstallmentPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.installments {
		if p.PlanID == planID && p.InstallmentNumber == number {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockInstallmentRepo) ListPaymentsByPlan(ctx context.Context, tx repository.Tx, planID string) ([]*model.InstallmentPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.InstallmentPayment
	for _, p := range m.installments {
		if p.PlanID == planID {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockReferralRepo struct {
	repository.ReferralRepository // Embed interface
	mu                            sync.Mutex
	referrals                     []*model.Referral
	commissions                   []*model.ReferralCommission
	ForceCodeTaken                int // fail the next N non-update saves with ErrCodeTaken
}

func (m *mockReferralRepo) Save(ctx context.Context, tx repository.Tx, r *model.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.referrals {
		if existing.ID == r.ID {
			m.referrals[i] = r
			return nil
		}
	}
	if m.ForceCodeTaken > 0 {
		m.ForceCodeTaken--
		return domain.ErrCodeTaken
	}
	for _, existing := range m.referrals {
		if strings.EqualFold(existing.Code, r.Code) {
			return domain.ErrCodeTaken
		}
		if existing.PayLinkID == r.PayLinkID && strings.EqualFold(existing.ReferrerAddress, r.ReferrerAddress) {
			return domain.ErrAlreadyExists
		}
	}
	m.referrals = append(m.referrals, r)
	return nil
}

func (m *mockReferralRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.referrals {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockReferralRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.referrals {
		if strings.EqualFold(r.Code, code) {
			return r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockReferralRepo) FindByLinkAndReferrer(ctx context.Context, tx repository.Tx, payLinkID, referrer string) (*model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.referrals {
		if r.PayLinkID == payLinkID && strings.EqualFold(r.ReferrerAddress, referrer) {
			return r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockReferralRepo) ListByLink(ctx context.Context, tx repository.Tx, payLinkID string) ([]*model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Referral
	for _, r := range m.referrals {
		if r.PayLinkID == payLinkID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockReferralRepo) SaveCommission(ctx context.Context, tx repository.Tx, c *model.ReferralCommission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.commissions {
		if existing.ID == c.ID {
			m.commissions[i] = c
			return nil
		}
	}
	for _, existing := range m.commissions {
		if existing.PaymentID == c.PaymentID {
			return domain.ErrAlreadyExists
		}
	}
	m.commissions = append(m.commissions, c)
	return nil
}

func (m *mockReferralRepo) FindCommissionByID(ctx context.Context, tx repository.Tx, id string) (*model.ReferralCommission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.commissions {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockReferralRepo) FindCommissionByPayment(ctx context.Context, tx repository.Tx, paymentID string) (*model.ReferralCommission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.commissions {
		if c.PaymentID == paymentID {
			return c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockReferralRepo) ListCommissionsByReferral(ctx context.Context, tx repository.Tx, referralID string) ([]*model.ReferralCommission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ReferralCommission
	for _, c := range m.commissions {
		if c.ReferralID == referralID {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- Mock Infra ---

type mockNonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
}

func newMockNonceStore() *mockNonceStore {
	return &mockNonceStore{nonces: make(map[string]time.Time)}
}

func (m *mockNonceStore) Issue(ctx context.Context, payLinkID, nonce string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonces[payLinkID+":"+nonce] = time.Now().Add(ttl)
	return nil
}

func (m *mockNonceStore) Consume(ctx context.Context, payLinkID, nonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := payLinkID + ":" + nonce
	exp, ok := m.nonces[key]
	if !ok || time.Now().After(exp) {
		return domain.ErrNonceSpent
	}
	delete(m.nonces, key)
	return nil
}

type mockLocker struct {
	mu     sync.Mutex
	held   map[string]string
	serial int
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[string]string)}
}

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return "", domain.ErrLockBusy
	}
	m.serial++
	token := fmt.Sprintf("token-%d", m.serial)
	m.held[key] = token
	return token, nil
}

func (m *mockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	return nil
}

type mockSink struct {
	mu     sync.Mutex
	events []string
}

func (m *mockSink) QueueEvent(event string, payload map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockSink) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	copy(out, m.events)
	return out
}

func (m *mockSink) Count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e == event {
			n++
		}
	}
	return n
}

type mockTxManager struct{}

func (m *mockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

// --- Fixture ---

// testEnv wires the full use case graph over mock storage.
type testEnv struct {
	linkRepo    *mockLinkRepo
	paymentRepo *mockPaymentRepo
	subRepo     *mockSubRepo
	planRepo    *mockInstallmentRepo
	refRepo     *mockReferralRepo
	nonces      *mockNonceStore
	locker      *mockLocker
	sink        *mockSink
	verifier    *verifier.MockVerifier

	accessUC *accessUC
	payUC    *paymentUC
	subUC    *subscriptionUC
	instUC   *installmentUC
	refUC    *referralUC
	linkUC   *payLinkUC
}

func newTestEnv() *testEnv {
	log := newTestLogger()
	env := &testEnv{
		linkRepo:    &mockLinkRepo{},
		paymentRepo: &mockPaymentRepo{},
		subRepo:     &mockSubRepo{},
		planRepo:    &mockInstallmentRepo{},
		refRepo:     &mockReferralRepo{},
		nonces:      newMockNonceStore(),
		locker:      newMockLocker(),
		sink:        &mockSink{},
		verifier:    verifier.NewMockVerifier("ethereum"),
	}
	tm := &mockTxManager{}

	env.subUC = NewSubscriptionUseCase(env.linkRepo, env.subRepo, tm, env.sink, log)
	env.instUC = NewInstallmentUseCase(env.linkRepo, env.planRepo, tm, env.sink, log)
	env.refUC = NewReferralUseCase(env.linkRepo, env.refRepo, tm, env.sink, log)
	env.linkUC = NewPayLinkUseCase(env.linkRepo, tm, log)
	env.accessUC = NewAccessUseCase(env.linkRepo, env.paymentRepo, env.subRepo, env.planRepo, env.nonces,
		protocol.NewSigner(""), "http://pay.test", 900, log)
	env.payUC = NewPaymentUseCase(env.linkRepo, env.paymentRepo, env.subUC, env.instUC, env.refUC,
		verifier.NewMockRegistry(env.verifier), env.nonces, env.locker, tm, env.sink, log)
	return env
}

// addLink seeds an active link priced 0.05 ETH on ethereum.
func (e *testEnv) addLink(t *testing.T, id string, mutate func(*model.PayLink)) *model.PayLink {
	t.Helper()
	link, err := model.NewPayLink(id, "https://content.example/"+id, "0xRecipient",
		model.PaymentOption{ChainID: "ethereum", TokenSymbol: "ETH", Amount: "0.05"})
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if mutate != nil {
		mutate(link)
	}
	if err := e.linkRepo.Save(context.Background(), repository.NoTX, link); err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	return link
}

// seedConfirmedPayment stores a confirmed 0.05 ETH payment for a link.
func (e *testEnv) seedConfirmedPayment(t *testing.T, linkID, txHash, from string) *model.Payment {
	t.Helper()
	p, err := model.NewPayment(model.NewID(), linkID, "ethereum", txHash, "ETH")
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if err := p.MarkConfirmed("0.05", from, time.Now()); err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if err := e.paymentRepo.Insert(context.Background(), repository.NoTX, p); err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	return p
}
