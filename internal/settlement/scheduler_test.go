package settlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uuzor/predictx/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu       sync.Mutex
	due      []domain.PredictionContract
	settled  map[string]domain.Settlement
	applyErr map[string]error
	listErr  error
}

func newFakeStore(due ...domain.PredictionContract) *fakeStore {
	return &fakeStore{
		due:      due,
		settled:  make(map[string]domain.Settlement),
		applyErr: make(map[string]error),
	}
}

func (f *fakeStore) Create(ctx context.Context, c domain.PredictionContract) error { return nil }

func (f *fakeStore) Get(ctx context.Context, id string) (domain.PredictionContract, error) {
	return domain.PredictionContract{}, domain.ErrNotFound
}

func (f *fakeStore) List(ctx context.Context, userID string, limit int) ([]domain.PredictionContract, error) {
	return nil, nil
}

func (f *fakeStore) ListDue(ctx context.Context, now time.Time) ([]domain.PredictionContract, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.due, nil
}

func (f *fakeStore) ApplySettlement(ctx context.Context, id string, s domain.Settlement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.applyErr[id]; err != nil {
		return err
	}
	f.settled[id] = s
	return nil
}

func (f *fakeStore) settledFor(id string) (domain.Settlement, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settled[id]
	return s, ok
}

type fakeOracle struct {
	prices map[string]float64
	errs   map[string]error
}

func (f *fakeOracle) CurrentPrice(ctx context.Context, assetID string) (float64, error) {
	if err := f.errs[assetID]; err != nil {
		return 0, err
	}
	price, ok := f.prices[assetID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return price, nil
}

type fakeSubmitter struct {
	mu      sync.Mutex
	ready   bool
	receipt string
	err     error
	calls   []domain.Settlement
}

func (f *fakeSubmitter) Ready() bool { return f.ready }

func (f *fakeSubmitter) SubmitSettlement(ctx context.Context, s domain.Settlement) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	if f.err != nil {
		return "", f.err
	}
	return f.receipt, nil
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeBus struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeBus) Publish(ctx context.Context, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeBus) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func dueContract(id, assetID string, target float64) domain.PredictionContract {
	return domain.PredictionContract{
		ID:          id,
		UserID:      "u1",
		AssetID:     assetID,
		Kind:        domain.KindPriceTarget,
		TargetPrice: target,
		ExpiresAt:   time.Now().Add(-time.Minute),
		Status:      domain.StatusPending,
	}
}

func TestTickSettlesDueContracts(t *testing.T) {
	store := newFakeStore(
		dueContract("c1", "btc", 100),
		dueContract("c2", "eth", 50),
	)
	oracle := &fakeOracle{prices: map[string]float64{"btc": 101, "eth": 60}}
	gw := &fakeSubmitter{ready: true, receipt: "r-1"}
	bus := &fakeBus{}

	sched := NewScheduler(store, oracle, gw, bus, Config{}, testLogger())
	sched.Tick(context.Background(), time.Now())

	s1, ok := store.settledFor("c1")
	require.True(t, ok)
	require.True(t, s1.IsCorrect) // 101 within 2% of 100
	require.Equal(t, "r-1", s1.Receipt)

	s2, ok := store.settledFor("c2")
	require.True(t, ok)
	require.False(t, s2.IsCorrect) // 60 far outside 2% of 50

	require.Equal(t, 2, gw.callCount())
	require.Equal(t, 2, bus.eventCount())
}

func TestTickOracleFailureDoesNotBlockOthers(t *testing.T) {
	store := newFakeStore(
		dueContract("c1", "btc", 100),
		dueContract("c2", "eth", 50),
	)
	oracle := &fakeOracle{
		prices: map[string]float64{"eth": 49},
		errs:   map[string]error{"btc": domain.ErrOracleUnavailable},
	}

	sched := NewScheduler(store, oracle, nil, nil, Config{}, testLogger())
	sched.Tick(context.Background(), time.Now())

	_, ok := store.settledFor("c1")
	require.False(t, ok, "contract with failing oracle must stay pending")

	_, ok = store.settledFor("c2")
	require.True(t, ok)
}

func TestTickDirectionWithoutEntryStaysPending(t *testing.T) {
	contract := domain.PredictionContract{
		ID:        "c1",
		AssetID:   "btc",
		Kind:      domain.KindDirection,
		Direction: domain.DirectionUp,
		ExpiresAt: time.Now().Add(-time.Minute),
		Status:    domain.StatusPending,
	}
	store := newFakeStore(contract)
	oracle := &fakeOracle{prices: map[string]float64{"btc": 100}}

	sched := NewScheduler(store, oracle, nil, nil, Config{}, testLogger())
	sched.Tick(context.Background(), time.Now())

	_, ok := store.settledFor("c1")
	require.False(t, ok)
}

func TestTickGatewayNotReadySettlesLocally(t *testing.T) {
	store := newFakeStore(dueContract("c1", "btc", 100))
	oracle := &fakeOracle{prices: map[string]float64{"btc": 100}}
	gw := &fakeSubmitter{ready: false, receipt: "r-1"}

	sched := NewScheduler(store, oracle, gw, nil, Config{}, testLogger())
	sched.Tick(context.Background(), time.Now())

	s, ok := store.settledFor("c1")
	require.True(t, ok)
	require.Empty(t, s.Receipt)
	require.Zero(t, gw.callCount())
}

func TestTickGatewayFailureStillCommits(t *testing.T) {
	store := newFakeStore(dueContract("c1", "btc", 100))
	oracle := &fakeOracle{prices: map[string]float64{"btc": 100}}
	gw := &fakeSubmitter{ready: true, err: domain.ErrNotConnected}

	sched := NewScheduler(store, oracle, gw, nil, Config{}, testLogger())
	sched.Tick(context.Background(), time.Now())

	s, ok := store.settledFor("c1")
	require.True(t, ok)
	require.Empty(t, s.Receipt)
	require.Equal(t, 1, gw.callCount())
}

func TestTickAlreadySettledIsSilentNoOp(t *testing.T) {
	store := newFakeStore(dueContract("c1", "btc", 100))
	store.applyErr["c1"] = domain.ErrAlreadySettled
	oracle := &fakeOracle{prices: map[string]float64{"btc": 100}}
	bus := &fakeBus{}

	sched := NewScheduler(store, oracle, nil, bus, Config{}, testLogger())
	sched.Tick(context.Background(), time.Now())

	require.Zero(t, bus.eventCount(), "already settled contracts must not broadcast")
}

func TestTickListFailureIsNonFatal(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("db down")
	oracle := &fakeOracle{}

	sched := NewScheduler(store, oracle, nil, nil, Config{}, testLogger())
	sched.Tick(context.Background(), time.Now()) // must not panic
}

func TestNewSchedulerAppliesDefaults(t *testing.T) {
	sched := NewScheduler(newFakeStore(), &fakeOracle{}, nil, nil, Config{}, testLogger())

	require.Equal(t, 60*time.Second, sched.cfg.TickInterval)
	require.Equal(t, 0.02, sched.cfg.PriceTolerance)
	require.Equal(t, 8, sched.cfg.MaxConcurrentJobs)
}
