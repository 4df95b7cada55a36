package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linebroker/internal/config"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/engine/banned"
	"github.com/linebroker/internal/engine/ledger"
	"github.com/linebroker/internal/engine/pricing"
	"github.com/linebroker/internal/platform/provider"
	"github.com/linebroker/internal/testutil/memstore"
)

type fakeProvider struct {
	mu           sync.Mutex
	next         int
	lines        []*provider.Line
	acquireErr   error
	acquired     []provider.LineRequest
	code         string
	deliverAfter int // deliver once this many polls happened, 0 never
	pollErr      error
	polls        int
	cancelled    []string
	onAcquire    func()
}

func (p *fakeProvider) AcquireLine(_ context.Context, req provider.LineRequest) (*provider.Line, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquired = append(p.acquired, req)
	if p.onAcquire != nil {
		p.onAcquire()
	}
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	if len(p.lines) > 0 {
		line := p.lines[0]
		p.lines = p.lines[1:]
		return line, nil
	}
	p.next++
	phone := fmt.Sprintf("+1555000%04d", p.next)
	if req.PhoneNumber != "" {
		phone = req.PhoneNumber
	}
	return &provider.Line{Reference: fmt.Sprintf("line-%d", p.next), PhoneNumber: phone, AreaCode: "555", Carrier: "acme"}, nil
}

func (p *fakeProvider) PollCode(ctx context.Context, _ string) (*provider.CodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	if p.pollErr != nil {
		return nil, p.pollErr
	}
	if p.deliverAfter > 0 && p.polls >= p.deliverAfter {
		return &provider.CodeResult{Status: provider.CodeDelivered, Code: p.code}, nil
	}
	return &provider.CodeResult{Status: provider.CodePending}, nil
}

func (p *fakeProvider) Cancel(_ context.Context, reference string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, reference)
	return nil
}

func (p *fakeProvider) pollCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	o        *orchestrator
	store    *memstore.Store
	banned   *memstore.Banned
	provider *fakeProvider
	ledger   ledger.Service
	clock    *clock
}

var testConfig = config.OrchestratorConfig{
	DefaultExpiry:          10 * time.Minute,
	ServiceExpiry:          map[string]time.Duration{"telegram": 5 * time.Minute},
	PollInterval:           5 * time.Millisecond,
	SweepInterval:          time.Second,
	SweepBatchSize:         50,
	StaleProvisioningAfter: 5 * time.Minute,
	RefundFactorBps:        8000,
	BanThreshold:           3,
	MaxLineSwaps:           2,
	VolumeWindow:           30 * 24 * time.Hour,
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	bannedRepo := memstore.NewBanned()
	fake := &fakeProvider{code: "424242"}
	ledgerSvc := ledger.NewService(logger, store, store.Ledger())
	clk := &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}

	o := NewOrchestrator(logger, testConfig, Deps{
		DB:           store,
		Ledger:       ledgerSvc,
		Transactions: store.TransactionRepo(),
		Outbox:       store.OutboxRepo(),
		Provider:     fake,
		Pricing:      pricing.NewEngine(),
		Banned:       banned.NewTracker(logger, bannedRepo, testConfig.BanThreshold),
	}).(*orchestrator)
	o.now = clk.Now

	return &harness{o: o, store: store, banned: bannedRepo, provider: fake, ledger: ledgerSvc, clock: clk}
}

func (h *harness) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := h.ledger.Credit(context.Background(), userID, amount, "topup:seed-"+userID)
	require.NoError(t, err)
}

func (h *harness) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (h *harness) sumEntries(userID string) int64 {
	var sum int64
	for _, e := range h.store.Entries() {
		if e.UserID == userID {
			sum += e.Amount
		}
	}
	return sum
}

func whatsappSMS(userID string) CreateVerification {
	return CreateVerification{UserID: userID, ServiceID: "whatsapp", Capability: shared.CapabilitySMS}
}
