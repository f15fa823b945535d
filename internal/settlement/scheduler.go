package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/uuzor/predictx/internal/domain"
)

// Submitter is the slice of the gateway the scheduler depends on: a readiness
// probe and the remote settlement submission path.
type Submitter interface {
	Ready() bool
	SubmitSettlement(ctx context.Context, s domain.Settlement) (string, error)
}

// Config holds the scheduler parameters.
type Config struct {
	// TickInterval is the cadence of the settlement loop.
	TickInterval time.Duration

	// JobTimeout bounds each per-contract job, including its oracle lookup.
	// One hanging lookup must not stall the rest of the tick.
	JobTimeout time.Duration

	// PriceTolerance is the relative band for price-target contracts.
	PriceTolerance float64

	// MaxConcurrentJobs caps how many contracts settle in parallel per tick.
	MaxConcurrentJobs int
}

// Scheduler periodically finds due prediction contracts, resolves them
// against the oracle price, commits the outcome locally, and submits it to
// the remote settlement node when the gateway session is available. Local
// settlement is authoritative: a missing or failing gateway degrades the loop
// to local settlement without remote acknowledgement.
type Scheduler struct {
	store   domain.PredictionStore
	oracle  domain.PriceOracle
	gateway Submitter
	bus     domain.Broadcaster
	cfg     Config
	logger  *slog.Logger
}

// NewScheduler creates a Scheduler. gateway and bus may be nil; the scheduler
// then settles locally without remote submission or broadcast events.
func NewScheduler(
	store domain.PredictionStore,
	oracle domain.PriceOracle,
	gateway Submitter,
	bus domain.Broadcaster,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 60 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 15 * time.Second
	}
	if cfg.PriceTolerance <= 0 {
		cfg.PriceTolerance = 0.02
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 8
	}
	return &Scheduler{
		store:   store,
		oracle:  oracle,
		gateway: gateway,
		bus:     bus,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "settlement")),
	}
}

// Run executes one tick immediately and then on every interval until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("settlement scheduler starting",
		slog.Duration("tick_interval", s.cfg.TickInterval),
		slog.Float64("price_tolerance", s.cfg.PriceTolerance),
	)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.Tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("settlement scheduler stopped")
			return ctx.Err()
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick settles every contract due at now. Contracts are settled concurrently
// and independently: one contract's oracle failure is logged and skipped (it
// stays Pending and reappears next tick) without blocking the rest of the
// batch.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		s.logger.Error("listing due contracts failed", slog.String("error", err.Error()))
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Info("settling due contracts", slog.Int("count", len(due)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentJobs)

	var settled atomic.Int64
	for _, contract := range due {
		g.Go(func() error {
			if s.settleOne(gctx, contract, now) {
				settled.Add(1)
			}
			// Per-job failures never cancel the group.
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("settlement tick complete",
		slog.Int("due", len(due)),
		slog.Int64("settled", settled.Load()),
	)
}

// settleOne resolves a single contract inside its own bounded context. It
// reports whether the contract transitioned to Settled on this tick.
func (s *Scheduler) settleOne(ctx context.Context, c domain.PredictionContract, now time.Time) bool {
	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	price, err := s.oracle.CurrentPrice(jobCtx, c.AssetID)
	if err != nil {
		s.logger.Warn("oracle lookup failed, contract stays pending",
			slog.String("contract_id", c.ID),
			slog.String("asset_id", c.AssetID),
			slog.String("error", err.Error()),
		)
		return false
	}

	correct, err := Evaluate(c, price, s.cfg.PriceTolerance)
	if err != nil {
		if errors.Is(err, domain.ErrNotSettleable) {
			s.logger.Debug("contract not yet settleable",
				slog.String("contract_id", c.ID),
				slog.String("kind", string(c.Kind)),
			)
		} else {
			s.logger.Warn("contract evaluation failed",
				slog.String("contract_id", c.ID),
				slog.String("error", err.Error()),
			)
		}
		return false
	}

	outcome := domain.Settlement{
		ContractID:  c.ID,
		ActualPrice: price,
		IsCorrect:   correct,
		SettledAt:   now,
	}

	// Remote submission is best-effort and happens once, at settlement time.
	// A Settled contract never reappears, so a failed submission is logged
	// and skipped, not retried.
	if s.gateway != nil && s.gateway.Ready() {
		receipt, err := s.gateway.SubmitSettlement(jobCtx, outcome)
		if err != nil {
			s.logger.Warn("remote settlement submission skipped",
				slog.String("contract_id", c.ID),
				slog.String("error", err.Error()),
			)
		} else {
			outcome.Receipt = receipt
		}
	}

	if err := s.store.ApplySettlement(jobCtx, c.ID, outcome); err != nil {
		if errors.Is(err, domain.ErrAlreadySettled) {
			// Settled concurrently; settlement is idempotent by id.
			return false
		}
		s.logger.Error("committing settlement failed",
			slog.String("contract_id", c.ID),
			slog.String("error", err.Error()),
		)
		return false
	}

	s.logger.Info("contract settled",
		slog.String("contract_id", c.ID),
		slog.String("asset_id", c.AssetID),
		slog.Float64("actual_price", price),
		slog.Bool("is_correct", correct),
		slog.String("receipt", outcome.Receipt),
	)

	if s.bus != nil {
		event := domain.SettledEvent{
			ContractID:  c.ID,
			AssetID:     c.AssetID,
			ActualPrice: price,
			IsCorrect:   correct,
			SettledAt:   now,
			Receipt:     outcome.Receipt,
		}
		if err := s.bus.Publish(ctx, domain.EventContractSettled, event); err != nil {
			s.logger.Warn("broadcast failed",
				slog.String("contract_id", c.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return true
}

// String implements fmt.Stringer for debug logging of the active config.
func (c Config) String() string {
	return fmt.Sprintf("tick=%s job_timeout=%s tolerance=%g max_jobs=%d",
		c.TickInterval, c.JobTimeout, c.PriceTolerance, c.MaxConcurrentJobs)
}
