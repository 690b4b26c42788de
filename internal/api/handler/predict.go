package handler

import (
	"net/http"
	"time"

	"github.com/commutetimely/leavetime/internal/api/response"
	"github.com/commutetimely/leavetime/internal/scoring"
)

// PredictHandler serves the scoring model that backs remote predictions.
type PredictHandler struct {
	now func() time.Time
}

// NewPredictHandler creates a new PredictHandler.
func NewPredictHandler() *PredictHandler {
	return &PredictHandler{now: time.Now}
}

// Predict handles POST /v1/predict.
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req scoring.PredictRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	result := scoring.Predict(req.Features(h.now()))
	response.JSON(w, r, http.StatusOK, scoring.NewPredictResponse(result))
}
