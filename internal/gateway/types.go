package gateway

import "encoding/json"

// Outbound call methods understood by the remote settlement node.
const (
	methodAuthChallenge = "auth_challenge_request"
	methodAuthVerify    = "auth_verify"
	methodSessionOpen   = "session_open"
	methodSessionClose  = "session_close"
	methodAppMessage    = "app_message"
)

// Application-level payload types carried inside an app_message call.
const (
	appTypeSubmitPrediction = "submit_prediction"
	appTypeSettlePrediction = "settle_prediction"

	appMessageVersion = "v1"
)

// requestFrame is the outbound wire envelope. Every call carries a unique
// correlation id; the node echoes it back on the matching response.
type requestFrame struct {
	ID        string          `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	Timestamp int64           `json:"ts"`
}

// responseFrame is the inbound wire envelope. Frames with an id correlate to
// a pending call; frames without one are unsolicited notifications identified
// by method.
type responseFrame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

// wireError is the error object the node attaches to failed calls.
type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *wireError) Error() string {
	return e.Message
}

// ---------------------------------------------------------------------------
// Call payloads
// ---------------------------------------------------------------------------

type authChallengeParams struct {
	Wallet      string `json:"wallet"`
	Participant string `json:"participant"`
	Application string `json:"application"`
	Scope       string `json:"scope"`
	ExpiresIn   int64  `json:"expires_in"`
}

type authChallengeResult struct {
	ChallengeMessage string `json:"challenge_message"`
}

type authVerifyParams struct {
	Wallet    string `json:"wallet"`
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

type authVerifyResult struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

type sessionOpenParams struct {
	Wallet      string `json:"wallet"`
	Participant string `json:"participant"`
	Application string `json:"application"`
	Nonce       string `json:"nonce"`
	Timestamp   int64  `json:"timestamp"`
}

type sessionOpenResult struct {
	SessionID string `json:"session_id"`
}

type sessionCloseParams struct {
	SessionID string `json:"session_id"`
}

// appMessageParams wraps an application-level payload. Type selects the
// handler on the node side; Version tags the data envelope schema.
type appMessageParams struct {
	Type    string          `json:"type"`
	Version string          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

type appMessageResult struct {
	ReceiptID string `json:"receipt_id"`
}

// predictionEnvelope is the v1 data envelope for submit_prediction.
type predictionEnvelope struct {
	ContractID  string   `json:"contract_id"`
	AssetID     string   `json:"asset_id"`
	Kind        string   `json:"kind"`
	TargetPrice float64  `json:"target_price,omitempty"`
	Direction   string   `json:"direction,omitempty"`
	EntryPrice  *float64 `json:"entry_price,omitempty"`
	ExpiresAt   int64    `json:"expires_at"`
}

// settlementEnvelope is the v1 data envelope for settle_prediction.
type settlementEnvelope struct {
	ContractID  string  `json:"contract_id"`
	ActualPrice float64 `json:"actual_price"`
	IsCorrect   bool    `json:"is_correct"`
	SettledAt   int64   `json:"settled_at"`
}
