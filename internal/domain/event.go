package domain

import "time"

// Broadcast event names published on the signal bus and mirrored to
// WebSocket viewers.
const (
	EventPredictionCreated = "prediction_created"
	EventContractSettled   = "contract_settled"
	EventGatewayStatus     = "gateway_status"
)

// SettledEvent is the payload published under EventContractSettled.
type SettledEvent struct {
	ContractID  string    `json:"contract_id"`
	AssetID     string    `json:"asset_id"`
	ActualPrice float64   `json:"actual_price"`
	IsCorrect   bool      `json:"is_correct"`
	SettledAt   time.Time `json:"settled_at"`
	Receipt     string    `json:"receipt,omitempty"`
}

// GatewayStatusEvent is published when the gateway's connectivity or session
// state changes.
type GatewayStatusEvent struct {
	Connected    bool      `json:"connected"`
	SessionReady bool      `json:"session_ready"`
	At           time.Time `json:"at"`
}
