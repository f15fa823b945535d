package handler

import (
	"net/http"
	"time"

	"github.com/uuzor/predictx/internal/gateway"
)

// GatewayStatus reports the connection and session state of the gateway.
type GatewayStatus interface {
	State() gateway.ConnState
	Ready() bool
}

// StatusHandler serves the backend status (mode, gateway state) for the
// dashboard.
type StatusHandler struct {
	mode      string
	gateway   GatewayStatus
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler. The gateway may be nil when the
// process runs without a settlement-node connection.
func NewStatusHandler(mode string, gateway GatewayStatus, startedAt time.Time) *StatusHandler {
	return &StatusHandler{mode: mode, gateway: gateway, startedAt: startedAt}
}

// GetStatus responds with the current backend mode and gateway state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	gatewayState := "disabled"
	gatewayReady := false
	if h.gateway != nil {
		gatewayState = h.gateway.State().String()
		gatewayReady = h.gateway.Ready()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"gateway_state":  gatewayState,
		"gateway_ready":  gatewayReady,
		"uptime_seconds": uptime,
	})
}
