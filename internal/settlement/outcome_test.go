package settlement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uuzor/predictx/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }

func TestEvaluatePriceTarget(t *testing.T) {
	contract := domain.PredictionContract{
		ID:          "c1",
		Kind:        domain.KindPriceTarget,
		TargetPrice: 100,
	}

	tests := []struct {
		name    string
		actual  float64
		correct bool
	}{
		{"inside band above", 101.5, true},
		{"inside band below", 98.5, true},
		{"exactly on band edge", 102, true},
		{"outside band above", 103, false},
		{"outside band below", 97.9, false},
		{"exact hit", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			correct, err := Evaluate(contract, tt.actual, 0.02)
			require.NoError(t, err)
			require.Equal(t, tt.correct, correct)
		})
	}
}

func TestEvaluatePriceTargetRequiresPositiveTarget(t *testing.T) {
	contract := domain.PredictionContract{ID: "c1", Kind: domain.KindPriceTarget}

	_, err := Evaluate(contract, 100, 0.02)
	require.Error(t, err)
}

func TestEvaluateAboveBelow(t *testing.T) {
	tests := []struct {
		name      string
		direction domain.Direction
		actual    float64
		correct   bool
	}{
		{"up strictly above", domain.DirectionUp, 50.01, true},
		{"up exactly at target", domain.DirectionUp, 50, false},
		{"up below", domain.DirectionUp, 49.99, false},
		{"down strictly below", domain.DirectionDown, 49.99, true},
		{"down exactly at target", domain.DirectionDown, 50, false},
		{"down above", domain.DirectionDown, 50.01, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contract := domain.PredictionContract{
				ID:          "c1",
				Kind:        domain.KindAboveBelow,
				TargetPrice: 50,
				Direction:   tt.direction,
			}
			correct, err := Evaluate(contract, tt.actual, 0.02)
			require.NoError(t, err)
			require.Equal(t, tt.correct, correct)
		})
	}
}

func TestEvaluateDirection(t *testing.T) {
	tests := []struct {
		name      string
		direction domain.Direction
		entry     float64
		actual    float64
		correct   bool
	}{
		{"up moved up", domain.DirectionUp, 10, 10.5, true},
		{"up unchanged", domain.DirectionUp, 10, 10, false},
		{"up moved down", domain.DirectionUp, 10, 9.5, false},
		{"down moved down", domain.DirectionDown, 10, 9.5, true},
		{"down unchanged", domain.DirectionDown, 10, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contract := domain.PredictionContract{
				ID:         "c1",
				Kind:       domain.KindDirection,
				Direction:  tt.direction,
				EntryPrice: floatPtr(tt.entry),
			}
			correct, err := Evaluate(contract, tt.actual, 0.02)
			require.NoError(t, err)
			require.Equal(t, tt.correct, correct)
		})
	}
}

func TestEvaluateDirectionWithoutEntryPrice(t *testing.T) {
	contract := domain.PredictionContract{
		ID:        "c1",
		Kind:      domain.KindDirection,
		Direction: domain.DirectionUp,
	}

	_, err := Evaluate(contract, 10, 0.02)
	require.ErrorIs(t, err, domain.ErrNotSettleable)
}

func TestEvaluateInvalidDirection(t *testing.T) {
	contract := domain.PredictionContract{
		ID:          "c1",
		Kind:        domain.KindAboveBelow,
		TargetPrice: 50,
		Direction:   "sideways",
	}

	_, err := Evaluate(contract, 10, 0.02)
	require.Error(t, err)
}

func TestEvaluateUnknownKind(t *testing.T) {
	contract := domain.PredictionContract{ID: "c1", Kind: "parlay"}

	_, err := Evaluate(contract, 10, 0.02)
	require.Error(t, err)
}
