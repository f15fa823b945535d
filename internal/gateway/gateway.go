// Package gateway implements the persistent connection to the remote
// off-chain settlement node: the connection supervisor, the challenge/response
// handshake and application session, the call correlation layer, and the
// application-level submission paths built on top of them.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uuzor/predictx/internal/domain"
)

// SubmitPrediction sends a submit_prediction app_message for the given
// contract and returns the node's receipt id. The application session is
// established lazily when it is not already open.
func (c *Client) SubmitPrediction(ctx context.Context, contract domain.PredictionContract) (string, error) {
	if c.State() != Connected {
		return "", fmt.Errorf("gateway: submit prediction %s: %w", contract.ID, domain.ErrNotConnected)
	}
	if err := c.session.EnsureSession(ctx); err != nil {
		return "", fmt.Errorf("gateway: submit prediction %s: %w", contract.ID, err)
	}

	envelope := predictionEnvelope{
		ContractID:  contract.ID,
		AssetID:     contract.AssetID,
		Kind:        string(contract.Kind),
		TargetPrice: contract.TargetPrice,
		Direction:   string(contract.Direction),
		EntryPrice:  contract.EntryPrice,
		ExpiresAt:   contract.ExpiresAt.UnixMilli(),
	}
	receipt, err := c.appMessage(ctx, appTypeSubmitPrediction, envelope)
	if err != nil {
		return "", fmt.Errorf("gateway: submit prediction %s: %w", contract.ID, err)
	}
	return receipt, nil
}

// SubmitSettlement sends a settle_prediction app_message for the given
// settlement outcome and returns the node's receipt id. Local settlement is
// authoritative; callers treat failures here as a skipped remote
// acknowledgement, not as a settlement failure.
func (c *Client) SubmitSettlement(ctx context.Context, s domain.Settlement) (string, error) {
	if c.State() != Connected {
		return "", fmt.Errorf("gateway: submit settlement %s: %w", s.ContractID, domain.ErrNotConnected)
	}
	if err := c.session.EnsureSession(ctx); err != nil {
		return "", fmt.Errorf("gateway: submit settlement %s: %w", s.ContractID, err)
	}

	envelope := settlementEnvelope{
		ContractID:  s.ContractID,
		ActualPrice: s.ActualPrice,
		IsCorrect:   s.IsCorrect,
		SettledAt:   s.SettledAt.UnixMilli(),
	}
	receipt, err := c.appMessage(ctx, appTypeSettlePrediction, envelope)
	if err != nil {
		return "", fmt.Errorf("gateway: submit settlement %s: %w", s.ContractID, err)
	}
	return receipt, nil
}

// appMessage wraps a typed, versioned data envelope into an app_message call
// and extracts the receipt id from the response.
func (c *Client) appMessage(ctx context.Context, msgType string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}

	raw, err := c.router.Call(ctx, methodAppMessage, appMessageParams{
		Type:    msgType,
		Version: appMessageVersion,
		Data:    payload,
	})
	if err != nil {
		return "", err
	}

	var result appMessageResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode %s receipt: %w", msgType, err)
	}
	return result.ReceiptID, nil
}
