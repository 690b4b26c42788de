package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutetimely/leavetime/internal/api/models"
)

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(models.ProblemTypeConflict, "Conflict", http.StatusConflict, "req_test123").
		WithDetail("arrival time has passed").
		WithInstance("/v1/trips/trp_1/recommendation").
		WithErrors([]models.FieldError{{Field: "arrivalTime", Message: "must be in the future", Code: "in_past"}})

	assert.Equal(t, models.ProblemTypeConflict, p.Type)
	assert.Equal(t, http.StatusConflict, p.Status)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Equal(t, "arrival time has passed", p.Detail)
	assert.Equal(t, "/v1/trips/trp_1/recommendation", p.Instance)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "in_past", p.Errors[0].Code)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid trip", []models.FieldError{
		{Field: "destination.point.lat", Message: "must be between -90 and 90", Code: "out_of_range"},
	})
	p.Instance = "/v1/trips"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var got models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, *p, got)
}

func TestProblem_Constructors(t *testing.T) {
	tests := []struct {
		name   string
		p      *models.Problem
		typ    string
		status int
	}{
		{"bad request", models.NewBadRequest("t", "d", nil), models.ProblemTypeValidation, http.StatusBadRequest},
		{"unauthorized", models.NewUnauthorized("t", "d"), models.ProblemTypeUnauthorized, http.StatusUnauthorized},
		{"forbidden", models.NewForbidden("t", "d"), models.ProblemTypeForbidden, http.StatusForbidden},
		{"not found", models.NewNotFound("t", "d"), models.ProblemTypeNotFound, http.StatusNotFound},
		{"conflict", models.NewConflict("t", "d"), models.ProblemTypeConflict, http.StatusConflict},
		{"too many", models.NewTooManyRequests("t", "d"), models.ProblemTypeTooManyRequests, http.StatusTooManyRequests},
		{"internal", models.NewInternalError("t", "d"), models.ProblemTypeInternal, http.StatusInternalServerError},
		{"media type", models.NewUnsupportedMediaType("t", "d"), models.ProblemTypeUnsupportedType, http.StatusUnsupportedMediaType},
		{"unavailable", models.NewServiceUnavailable("t", "d"), models.ProblemTypeUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.p.Type)
			assert.Equal(t, tt.status, tt.p.Status)
			assert.Equal(t, "t", tt.p.TraceID)
			assert.Equal(t, "d", tt.p.Detail)
			assert.NotEmpty(t, tt.p.Title)
		})
	}
}
