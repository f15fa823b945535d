package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uuzor/predictx/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	contracts map[string]domain.PredictionContract
	createErr error
	getErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{contracts: make(map[string]domain.PredictionContract)}
}

func (f *fakeStore) Create(_ context.Context, c domain.PredictionContract) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.contracts[c.ID] = c
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (domain.PredictionContract, error) {
	if f.getErr != nil {
		return domain.PredictionContract{}, f.getErr
	}
	c, ok := f.contracts[id]
	if !ok {
		return domain.PredictionContract{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) List(_ context.Context, userID string, limit int) ([]domain.PredictionContract, error) {
	var out []domain.PredictionContract
	for _, c := range f.contracts {
		if userID == "" || c.UserID == userID {
			out = append(out, c)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ListDue(_ context.Context, _ time.Time) ([]domain.PredictionContract, error) {
	return nil, nil
}

func (f *fakeStore) ApplySettlement(_ context.Context, _ string, _ domain.Settlement) error {
	return nil
}

type fakeOracle struct {
	price float64
	err   error
}

func (f *fakeOracle) CurrentPrice(_ context.Context, _ string) (float64, error) {
	return f.price, f.err
}

type fakeGateway struct {
	ready   bool
	receipt string
	err     error
	calls   int
}

func (f *fakeGateway) Ready() bool { return f.ready }

func (f *fakeGateway) SubmitPrediction(_ context.Context, _ domain.PredictionContract) (string, error) {
	f.calls++
	return f.receipt, f.err
}

type fakeBus struct {
	events []string
}

func (f *fakeBus) Publish(_ context.Context, event string, _ any) error {
	f.events = append(f.events, event)
	return nil
}

func validRequest(kind domain.PredictionKind) CreatePredictionRequest {
	req := CreatePredictionRequest{
		UserID:    "user-1",
		AssetID:   "BTC",
		Kind:      kind,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	switch kind {
	case domain.KindPriceTarget:
		req.TargetPrice = 100
	case domain.KindAboveBelow:
		req.TargetPrice = 100
		req.Direction = domain.DirectionUp
	case domain.KindDirection:
		req.Direction = domain.DirectionDown
	}
	return req
}

func TestCreatePriceTarget(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{ready: true, receipt: "r-1"}
	bus := &fakeBus{}
	svc := NewPredictionService(store, &fakeOracle{price: 99}, gw, bus, testLogger())

	c, err := svc.Create(context.Background(), validRequest(domain.KindPriceTarget))
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)
	require.Equal(t, domain.StatusPending, c.Status)
	require.Equal(t, 100.0, c.TargetPrice)
	require.Nil(t, c.EntryPrice)

	require.Contains(t, store.contracts, c.ID)
	require.Equal(t, 1, gw.calls)
	require.Equal(t, []string{domain.EventPredictionCreated}, bus.events)
}

func TestCreateDirectionSnapshotsEntryPrice(t *testing.T) {
	store := newFakeStore()
	svc := NewPredictionService(store, &fakeOracle{price: 42.5}, nil, nil, testLogger())

	c, err := svc.Create(context.Background(), validRequest(domain.KindDirection))
	require.NoError(t, err)
	require.NotNil(t, c.EntryPrice)
	require.Equal(t, 42.5, *c.EntryPrice)
	require.Equal(t, domain.DirectionDown, c.Direction)
}

func TestCreateDirectionOracleFailureRejects(t *testing.T) {
	store := newFakeStore()
	svc := NewPredictionService(store, &fakeOracle{err: errors.New("oracle down")}, nil, nil, testLogger())

	_, err := svc.Create(context.Background(), validRequest(domain.KindDirection))
	require.Error(t, err)
	require.Empty(t, store.contracts)
}

func TestCreateGatewayNotReadySkipsSubmission(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{ready: false}
	svc := NewPredictionService(store, &fakeOracle{price: 10}, gw, nil, testLogger())

	c, err := svc.Create(context.Background(), validRequest(domain.KindPriceTarget))
	require.NoError(t, err)
	require.Zero(t, gw.calls)
	require.Contains(t, store.contracts, c.ID)
}

func TestCreateGatewayFailureDoesNotFailCreation(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{ready: true, err: errors.New("node rejected")}
	svc := NewPredictionService(store, &fakeOracle{price: 10}, gw, nil, testLogger())

	c, err := svc.Create(context.Background(), validRequest(domain.KindAboveBelow))
	require.NoError(t, err)
	require.Equal(t, 1, gw.calls)
	require.Contains(t, store.contracts, c.ID)
}

func TestCreateValidation(t *testing.T) {
	svc := NewPredictionService(newFakeStore(), &fakeOracle{price: 10}, nil, nil, testLogger())

	cases := []struct {
		name   string
		mutate func(*CreatePredictionRequest)
	}{
		{"missing user", func(r *CreatePredictionRequest) { r.UserID = "" }},
		{"missing asset", func(r *CreatePredictionRequest) { r.AssetID = "" }},
		{"expired", func(r *CreatePredictionRequest) { r.ExpiresAt = time.Now().Add(-time.Minute) }},
		{"zero target", func(r *CreatePredictionRequest) { r.TargetPrice = 0 }},
		{"unknown kind", func(r *CreatePredictionRequest) { r.Kind = "parlay" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest(domain.KindPriceTarget)
			tc.mutate(&req)
			_, err := svc.Create(context.Background(), req)
			require.ErrorIs(t, err, domain.ErrInvalidPrediction)
		})
	}
}

func TestCreateAboveBelowRequiresDirection(t *testing.T) {
	svc := NewPredictionService(newFakeStore(), &fakeOracle{price: 10}, nil, nil, testLogger())

	req := validRequest(domain.KindAboveBelow)
	req.Direction = "sideways"
	_, err := svc.Create(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidPrediction)
}

func TestGetPassesThroughNotFound(t *testing.T) {
	svc := NewPredictionService(newFakeStore(), &fakeOracle{}, nil, nil, testLogger())

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListFiltersByUser(t *testing.T) {
	store := newFakeStore()
	svc := NewPredictionService(store, &fakeOracle{price: 10}, nil, nil, testLogger())

	for _, user := range []string{"alice", "alice", "bob"} {
		req := validRequest(domain.KindPriceTarget)
		req.UserID = user
		_, err := svc.Create(context.Background(), req)
		require.NoError(t, err)
	}

	list, err := svc.List(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
}
