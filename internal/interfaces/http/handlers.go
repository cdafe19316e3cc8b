package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/simplers/recsys/internal/domain"
)

// Recommender produces the final ranked list for one user.
type Recommender interface {
	Recommend(ctx context.Context, custNo int64) ([]domain.ScoredItem, bool, error)
}

// Handlers holds the HTTP endpoint implementations.
type Handlers struct {
	recommender Recommender
	startedAt   time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(recommender Recommender) *Handlers {
	return &Handlers{
		recommender: recommender,
		startedAt:   time.Now().UTC(),
	}
}

type recommendationsResponse struct {
	CustNo   int64               `json:"cust_no"`
	Count    int                 `json:"count"`
	Items    []domain.ScoredItem `json:"items"`
	Fallback bool                `json:"fallback"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Recommendations serves GET /v1/recommendations/{cust_no}.
func (h *Handlers) Recommendations(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["cust_no"]
	custNo, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || custNo <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cust_no must be a positive integer"})
		return
	}

	items, fallback, err := h.recommender.Recommend(r.Context(), custNo)
	if err != nil {
		log.Error().Err(err).Int64("cust_no", custNo).Msg("recommendation failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "recommendations temporarily unavailable"})
		return
	}
	if items == nil {
		items = []domain.ScoredItem{}
	}

	writeJSON(w, http.StatusOK, recommendationsResponse{
		CustNo:   custNo,
		Count:    len(items),
		Items:    items,
		Fallback: fallback,
	})
}

// Health serves GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"uptime_sec": int(time.Since(h.startedAt).Seconds()),
	})
}

// NotFound handles unknown routes with a JSON body.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("writing response body")
	}
}
