// Package settlement resolves expired prediction contracts against an
// observed price and drives the periodic settlement loop.
package settlement

import (
	"fmt"
	"math"

	"github.com/uuzor/predictx/internal/domain"
)

// Evaluate computes whether a contract's prediction came true at the observed
// settlement price. tolerance is the relative band for price-target contracts
// (0.02 = 2%).
//
// Direction contracts compare against the price snapshotted when the contract
// was submitted; without that snapshot the contract is not settleable and
// Evaluate returns domain.ErrNotSettleable. Guessing (or a random outcome) is
// not a settlement rule.
func Evaluate(c domain.PredictionContract, actualPrice, tolerance float64) (bool, error) {
	switch c.Kind {
	case domain.KindPriceTarget:
		if c.TargetPrice <= 0 {
			return false, fmt.Errorf("settlement: contract %s: price-target requires a positive target price", c.ID)
		}
		return math.Abs(actualPrice-c.TargetPrice) <= tolerance*c.TargetPrice, nil

	case domain.KindAboveBelow:
		if c.TargetPrice <= 0 {
			return false, fmt.Errorf("settlement: contract %s: above-below requires a positive target price", c.ID)
		}
		switch c.Direction {
		case domain.DirectionUp:
			return actualPrice > c.TargetPrice, nil
		case domain.DirectionDown:
			return actualPrice < c.TargetPrice, nil
		default:
			return false, fmt.Errorf("settlement: contract %s: invalid direction %q", c.ID, c.Direction)
		}

	case domain.KindDirection:
		if c.EntryPrice == nil {
			return false, fmt.Errorf("settlement: contract %s: no entry price snapshot: %w", c.ID, domain.ErrNotSettleable)
		}
		switch c.Direction {
		case domain.DirectionUp:
			return actualPrice > *c.EntryPrice, nil
		case domain.DirectionDown:
			return actualPrice < *c.EntryPrice, nil
		default:
			return false, fmt.Errorf("settlement: contract %s: invalid direction %q", c.ID, c.Direction)
		}

	default:
		return false, fmt.Errorf("settlement: contract %s: unknown prediction kind %q", c.ID, c.Kind)
	}
}
