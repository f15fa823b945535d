package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uuzor/predictx/internal/domain"
)

// PredictionStore implements domain.PredictionStore using PostgreSQL.
type PredictionStore struct {
	pool *pgxpool.Pool
}

// NewPredictionStore creates a PredictionStore backed by the given connection
// pool.
func NewPredictionStore(pool *pgxpool.Pool) *PredictionStore {
	return &PredictionStore{pool: pool}
}

const predictionSelectCols = `id, user_id, asset_id, kind, target_price, direction,
	entry_price, created_at, expires_at, settlement_status,
	actual_price, is_correct, settled_at, settlement_receipt`

func scanPredictionRow(row pgx.Row) (domain.PredictionContract, error) {
	var c domain.PredictionContract
	var kind, status string
	var targetPrice *float64
	var direction *string

	err := row.Scan(
		&c.ID, &c.UserID, &c.AssetID, &kind, &targetPrice, &direction,
		&c.EntryPrice, &c.CreatedAt, &c.ExpiresAt, &status,
		&c.ActualPrice, &c.IsCorrect, &c.SettledAt, &c.SettlementReceipt,
	)
	if err != nil {
		return domain.PredictionContract{}, err
	}
	c.Kind = domain.PredictionKind(kind)
	c.Status = domain.SettlementStatus(status)
	if targetPrice != nil {
		c.TargetPrice = *targetPrice
	}
	if direction != nil {
		c.Direction = domain.Direction(*direction)
	}
	return c, nil
}

func scanPredictionRows(rows pgx.Rows) ([]domain.PredictionContract, error) {
	var contracts []domain.PredictionContract
	for rows.Next() {
		c, err := scanPredictionRow(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// Create inserts a new prediction contract.
func (s *PredictionStore) Create(ctx context.Context, c domain.PredictionContract) error {
	const query = `
		INSERT INTO predictions (
			id, user_id, asset_id, kind, target_price, direction,
			entry_price, created_at, expires_at, settlement_status, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, NOW()
		)`

	var targetPrice *float64
	if c.TargetPrice != 0 {
		targetPrice = &c.TargetPrice
	}
	var direction *string
	if c.Direction != "" {
		d := string(c.Direction)
		direction = &d
	}

	_, err := s.pool.Exec(ctx, query,
		c.ID, c.UserID, c.AssetID, string(c.Kind), targetPrice, direction,
		c.EntryPrice, c.CreatedAt, c.ExpiresAt, string(domain.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("postgres: create prediction %s: %w", c.ID, err)
	}
	return nil
}

// Get returns a single prediction contract by id.
func (s *PredictionStore) Get(ctx context.Context, id string) (domain.PredictionContract, error) {
	query := `SELECT ` + predictionSelectCols + ` FROM predictions WHERE id = $1`

	c, err := scanPredictionRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PredictionContract{}, domain.ErrNotFound
		}
		return domain.PredictionContract{}, fmt.Errorf("postgres: get prediction %s: %w", id, err)
	}
	return c, nil
}

// List returns the most recent contracts, optionally filtered by user.
func (s *PredictionStore) List(ctx context.Context, userID string, limit int) ([]domain.PredictionContract, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows pgx.Rows
	var err error
	if userID == "" {
		query := `SELECT ` + predictionSelectCols + ` FROM predictions ORDER BY created_at DESC LIMIT $1`
		rows, err = s.pool.Query(ctx, query, limit)
	} else {
		query := `SELECT ` + predictionSelectCols + ` FROM predictions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
		rows, err = s.pool.Query(ctx, query, userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: list predictions: %w", err)
	}
	defer rows.Close()

	contracts, err := scanPredictionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan predictions: %w", err)
	}
	return contracts, nil
}

// ListDue returns contracts that expired at or before now and are still
// pending settlement, oldest first.
func (s *PredictionStore) ListDue(ctx context.Context, now time.Time) ([]domain.PredictionContract, error) {
	query := `SELECT ` + predictionSelectCols + `
		FROM predictions
		WHERE expires_at <= $1 AND settlement_status = $2
		ORDER BY expires_at ASC`

	rows, err := s.pool.Query(ctx, query, now, string(domain.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("postgres: list due predictions: %w", err)
	}
	defer rows.Close()

	contracts, err := scanPredictionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan due predictions: %w", err)
	}
	return contracts, nil
}

// ListSettledBefore returns contracts settled strictly before the given
// cutoff, oldest first. Used by the settlement archiver.
func (s *PredictionStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.PredictionContract, error) {
	query := `SELECT ` + predictionSelectCols + `
		FROM predictions
		WHERE settlement_status = $1 AND settled_at < $2
		ORDER BY settled_at ASC`

	rows, err := s.pool.Query(ctx, query, string(domain.StatusSettled), before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled predictions: %w", err)
	}
	defer rows.Close()

	contracts, err := scanPredictionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settled predictions: %w", err)
	}
	return contracts, nil
}

// ApplySettlement transitions a contract from Pending to Settled and records
// the outcome. The WHERE clause enforces the at-most-once transition: a
// second attempt matches zero rows and reports ErrAlreadySettled.
func (s *PredictionStore) ApplySettlement(ctx context.Context, id string, outcome domain.Settlement) error {
	const query = `
		UPDATE predictions SET
			settlement_status  = $2,
			actual_price       = $3,
			is_correct         = $4,
			settled_at         = $5,
			settlement_receipt = $6,
			updated_at         = NOW()
		WHERE id = $1 AND settlement_status = $7`

	tag, err := s.pool.Exec(ctx, query,
		id, string(domain.StatusSettled),
		outcome.ActualPrice, outcome.IsCorrect, outcome.SettledAt, outcome.Receipt,
		string(domain.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("postgres: settle prediction %s: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish an unknown id from an already-settled contract.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM predictions WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: settle prediction %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadySettled
	}
	return nil
}
