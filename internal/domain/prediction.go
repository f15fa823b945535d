// Package domain defines the core data model of the predictx backend:
// prediction contracts, settlement outcomes, and the ports through which the
// gateway and scheduler talk to their external collaborators.
package domain

import "time"

// PredictionKind identifies how a contract's correctness is evaluated at
// settlement time.
type PredictionKind string

const (
	// KindPriceTarget is correct when the settlement price lands within a
	// configured tolerance band around the target price.
	KindPriceTarget PredictionKind = "price-target"

	// KindAboveBelow is correct when the settlement price is strictly above
	// (direction up) or strictly below (direction down) the target price.
	KindAboveBelow PredictionKind = "above-below"

	// KindDirection is correct when the price moved in the predicted
	// direction relative to the price snapshot taken at submission time.
	KindDirection PredictionKind = "direction"
)

// Direction is the predicted price movement for above-below and direction
// contracts.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// SettlementStatus tracks whether a contract has been resolved.
type SettlementStatus string

const (
	StatusPending SettlementStatus = "pending"
	StatusSettled SettlementStatus = "settled"
)

// PredictionContract is a time-boxed prediction over an asset's price. A
// contract transitions Pending -> Settled at most once; the settlement fields
// are only meaningful once Status is StatusSettled.
type PredictionContract struct {
	ID      string         `json:"id"`
	UserID  string         `json:"user_id"`
	AssetID string         `json:"asset_id"`
	Kind    PredictionKind `json:"kind"`

	// TargetPrice is required for price-target and above-below contracts.
	TargetPrice float64 `json:"target_price,omitempty"`

	// Direction is required for above-below and direction contracts.
	Direction Direction `json:"direction,omitempty"`

	// EntryPrice is the asset's spot price snapshotted when the contract was
	// submitted. Direction contracts cannot be settled without it.
	EntryPrice *float64 `json:"entry_price,omitempty"`

	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	Status    SettlementStatus `json:"status"`

	// Settlement outcome, populated by the scheduler.
	ActualPrice       *float64   `json:"actual_price,omitempty"`
	IsCorrect         *bool      `json:"is_correct,omitempty"`
	SettledAt         *time.Time `json:"settled_at,omitempty"`
	SettlementReceipt string     `json:"settlement_receipt,omitempty"`
}

// Settlement carries the outcome of resolving one contract. It is what the
// scheduler writes back to the store and submits to the remote node.
type Settlement struct {
	ContractID  string    `json:"contract_id"`
	ActualPrice float64   `json:"actual_price"`
	IsCorrect   bool      `json:"is_correct"`
	SettledAt   time.Time `json:"settled_at"`

	// Receipt is the identifier returned by the remote settlement node, if
	// the remote submission succeeded. Empty when the submission was skipped
	// or failed; local settlement is authoritative either way.
	Receipt string `json:"receipt,omitempty"`
}
