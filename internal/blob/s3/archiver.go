package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/uuzor/predictx/internal/domain"
)

// archiveInterval is how often the archive loop wakes up.
const archiveInterval = 24 * time.Hour

// SettledArchiveStore provides read access to settled contracts for archival.
// The archiver only needs this one query, not the full store interface; the
// Postgres prediction store satisfies it.
type SettledArchiveStore interface {
	// ListSettledBefore returns contracts settled strictly before the given
	// cutoff time.
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.PredictionContract, error)
}

// Archiver serializes settled prediction contracts older than the retention
// window to JSONL and uploads the result to S3. Deletion from the primary
// store is intentionally not performed here; that is a separate, explicit
// step once an archive has been verified.
type Archiver struct {
	writer        *Writer
	store         SettledArchiveStore
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates an Archiver with the given retention window in days.
func NewArchiver(writer *Writer, store SettledArchiveStore, retentionDays int, logger *slog.Logger) *Archiver {
	if retentionDays < 1 {
		retentionDays = 90
	}
	return &Archiver{
		writer:        writer,
		store:         store,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run executes one archive pass immediately and then daily until ctx is
// cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(archiveInterval)
	defer ticker.Stop()

	if err := a.ArchiveSettled(ctx, time.Now()); err != nil {
		a.logger.Error("archive pass failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := a.ArchiveSettled(ctx, now); err != nil {
				a.logger.Error("archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ArchiveSettled uploads every contract settled before now minus the
// retention window as one JSONL object keyed by the cutoff date.
func (a *Archiver) ArchiveSettled(ctx context.Context, now time.Time) error {
	cutoff := now.AddDate(0, 0, -a.retentionDays)

	contracts, err := a.store.ListSettledBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s3blob: list settled before %s: %w", cutoff.Format(time.DateOnly), err)
	}
	if len(contracts) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, c := range contracts {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("s3blob: encode contract %s: %w", c.ID, err)
		}
	}

	key := fmt.Sprintf("settlements/%s.jsonl", cutoff.Format(time.DateOnly))
	if err := a.writer.Put(ctx, key, &buf, "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: upload archive %s: %w", key, err)
	}

	a.logger.Info("archived settled contracts",
		slog.Int("count", len(contracts)),
		slog.String("key", key),
	)
	return nil
}
