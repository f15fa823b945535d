// Package service holds the application services that sit between the HTTP
// handlers and the stores, oracle and gateway.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/uuzor/predictx/internal/domain"
)

// GatewaySubmitter forwards accepted predictions to the remote settlement
// node. Ready reports whether the underlying connection is usable.
type GatewaySubmitter interface {
	Ready() bool
	SubmitPrediction(ctx context.Context, c domain.PredictionContract) (string, error)
}

// CreatePredictionRequest is the validated input for a new contract.
type CreatePredictionRequest struct {
	UserID      string                `json:"user_id"`
	AssetID     string                `json:"asset_id"`
	Kind        domain.PredictionKind `json:"kind"`
	TargetPrice float64               `json:"target_price"`
	Direction   domain.Direction      `json:"direction"`
	ExpiresAt   time.Time             `json:"expires_at"`
}

// PredictionService handles the prediction lifecycle from submission to
// lookup. Settlement is the scheduler's job; this service only creates and
// reads contracts.
type PredictionService struct {
	store   domain.PredictionStore
	oracle  domain.PriceOracle
	gateway GatewaySubmitter
	bus     domain.Broadcaster
	logger  *slog.Logger
}

// NewPredictionService creates a PredictionService. The gateway and bus may
// be nil; creation then works in local-only mode.
func NewPredictionService(
	store domain.PredictionStore,
	oracle domain.PriceOracle,
	gateway GatewaySubmitter,
	bus domain.Broadcaster,
	logger *slog.Logger,
) *PredictionService {
	return &PredictionService{
		store:   store,
		oracle:  oracle,
		gateway: gateway,
		bus:     bus,
		logger:  logger.With(slog.String("component", "prediction_service")),
	}
}

// Create validates the request, snapshots the entry price for direction
// contracts, persists the contract, and forwards it to the settlement node.
// A gateway failure does not fail creation; the contract simply carries no
// receipt.
func (s *PredictionService) Create(ctx context.Context, req CreatePredictionRequest) (domain.PredictionContract, error) {
	if err := validate(req); err != nil {
		return domain.PredictionContract{}, err
	}

	now := time.Now().UTC()
	contract := domain.PredictionContract{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		AssetID:   req.AssetID,
		Kind:      req.Kind,
		CreatedAt: now,
		ExpiresAt: req.ExpiresAt.UTC(),
		Status:    domain.StatusPending,
	}

	switch req.Kind {
	case domain.KindPriceTarget:
		contract.TargetPrice = req.TargetPrice
	case domain.KindAboveBelow:
		contract.TargetPrice = req.TargetPrice
		contract.Direction = req.Direction
	case domain.KindDirection:
		contract.Direction = req.Direction
		// Without this snapshot the contract can never be settled, so a
		// missing spot price rejects the submission outright.
		price, err := s.oracle.CurrentPrice(ctx, req.AssetID)
		if err != nil {
			return domain.PredictionContract{}, fmt.Errorf("service: entry price for %s: %w", req.AssetID, err)
		}
		contract.EntryPrice = &price
	}

	if err := s.store.Create(ctx, contract); err != nil {
		return domain.PredictionContract{}, fmt.Errorf("service: create prediction: %w", err)
	}

	if s.gateway != nil && s.gateway.Ready() {
		receipt, err := s.gateway.SubmitPrediction(ctx, contract)
		if err != nil {
			s.logger.WarnContext(ctx, "remote prediction submission skipped",
				slog.String("contract_id", contract.ID),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.InfoContext(ctx, "prediction submitted to settlement node",
				slog.String("contract_id", contract.ID),
				slog.String("receipt_id", receipt),
			)
		}
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, domain.EventPredictionCreated, contract); err != nil {
			s.logger.WarnContext(ctx, "publish prediction_created failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return contract, nil
}

// Get returns a single contract by id.
func (s *PredictionService) Get(ctx context.Context, id string) (domain.PredictionContract, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PredictionContract{}, err
		}
		return domain.PredictionContract{}, fmt.Errorf("service: get prediction %s: %w", id, err)
	}
	return c, nil
}

// List returns contracts, optionally filtered by user, newest first.
func (s *PredictionService) List(ctx context.Context, userID string, limit int) ([]domain.PredictionContract, error) {
	list, err := s.store.List(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("service: list predictions: %w", err)
	}
	return list, nil
}

func validate(req CreatePredictionRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrInvalidPrediction)
	}
	if req.AssetID == "" {
		return fmt.Errorf("%w: asset_id is required", domain.ErrInvalidPrediction)
	}
	if req.ExpiresAt.IsZero() || !req.ExpiresAt.After(time.Now()) {
		return fmt.Errorf("%w: expires_at must be in the future", domain.ErrInvalidPrediction)
	}

	switch req.Kind {
	case domain.KindPriceTarget:
		if req.TargetPrice <= 0 {
			return fmt.Errorf("%w: target_price must be positive", domain.ErrInvalidPrediction)
		}
	case domain.KindAboveBelow:
		if req.TargetPrice <= 0 {
			return fmt.Errorf("%w: target_price must be positive", domain.ErrInvalidPrediction)
		}
		if err := validDirection(req.Direction); err != nil {
			return err
		}
	case domain.KindDirection:
		if err := validDirection(req.Direction); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidPrediction, req.Kind)
	}
	return nil
}

func validDirection(d domain.Direction) error {
	if d != domain.DirectionUp && d != domain.DirectionDown {
		return fmt.Errorf("%w: direction must be %q or %q", domain.ErrInvalidPrediction, domain.DirectionUp, domain.DirectionDown)
	}
	return nil
}
