package domain

import (
	"context"
	"time"
)

// PredictionStore is the persistence port for prediction contracts. The
// scheduler relies on ListDue as its retry ledger: an unsettled Pending
// contract reappears on every tick until ApplySettlement succeeds.
type PredictionStore interface {
	Create(ctx context.Context, c PredictionContract) error
	Get(ctx context.Context, id string) (PredictionContract, error)
	List(ctx context.Context, userID string, limit int) ([]PredictionContract, error)

	// ListDue returns contracts with expires_at <= now that are still
	// Pending, oldest first.
	ListDue(ctx context.Context, now time.Time) ([]PredictionContract, error)

	// ApplySettlement marks the contract Settled and records the outcome.
	// It returns ErrAlreadySettled when the contract was settled before, and
	// ErrNotFound when the id is unknown. The Pending -> Settled transition
	// happens at most once.
	ApplySettlement(ctx context.Context, id string, s Settlement) error
}

// PriceOracle resolves an asset identifier to its current spot price.
type PriceOracle interface {
	CurrentPrice(ctx context.Context, assetID string) (float64, error)
}

// Broadcaster is the fire-and-forget event channel to connected viewers.
type Broadcaster interface {
	Publish(ctx context.Context, event string, payload any) error
}

// RateLimiter provides distributed rate limiting for the HTTP surface.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under a sliding
	// window of limit requests per window. Allowed requests are counted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Signer is the pluggable signing capability used during the gateway
// handshake. Implementations must fail loudly when unconfigured instead of
// producing a placeholder signature.
type Signer interface {
	// Sign returns a hex-encoded signature over the challenge message.
	Sign(message string) (string, error)

	// Address returns the wallet address the signature verifies against.
	Address() string
}
