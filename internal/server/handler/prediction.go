package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/uuzor/predictx/internal/domain"
	"github.com/uuzor/predictx/internal/service"
)

// PredictionLifecycle defines what the prediction handler requires from the
// service layer.
type PredictionLifecycle interface {
	Create(ctx context.Context, req service.CreatePredictionRequest) (domain.PredictionContract, error)
	Get(ctx context.Context, id string) (domain.PredictionContract, error)
	List(ctx context.Context, userID string, limit int) ([]domain.PredictionContract, error)
}

// PredictionHandler serves prediction-related HTTP endpoints.
type PredictionHandler struct {
	predictions PredictionLifecycle
	logger      *slog.Logger
}

// NewPredictionHandler creates a PredictionHandler with the given service.
func NewPredictionHandler(predictions PredictionLifecycle, logger *slog.Logger) *PredictionHandler {
	return &PredictionHandler{
		predictions: predictions,
		logger:      logger,
	}
}

type listPredictionsResponse struct {
	Predictions []domain.PredictionContract `json:"predictions"`
}

// ListPredictions returns contracts, optionally filtered by user.
// GET /api/predictions?user_id=...&limit=50
func (h *PredictionHandler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	limit := parseLimit(r)

	list, err := h.predictions.List(r.Context(), userID, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list predictions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list predictions")
		return
	}

	if list == nil {
		list = []domain.PredictionContract{}
	}
	writeJSON(w, http.StatusOK, listPredictionsResponse{Predictions: list})
}

// GetPrediction returns a single contract by its ID.
// GET /api/predictions/{id}
func (h *PredictionHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing prediction id")
		return
	}

	c, err := h.predictions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "prediction not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get prediction failed",
			slog.String("prediction_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get prediction")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// CreatePrediction accepts a new prediction contract.
// POST /api/predictions
func (h *PredictionHandler) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	var req service.CreatePredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	c, err := h.predictions.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPrediction) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create prediction failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create prediction")
		return
	}

	writeJSON(w, http.StatusCreated, c)
}
