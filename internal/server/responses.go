package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/simulation"
	"github.com/go-chi/chi/v5"
)

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeData wraps data in the standard envelope
func (s *Server) writeData(w http.ResponseWriter, status int, data interface{}) {
	s.writeJSON(w, status, map[string]interface{}{
		"data":     data,
		"metadata": s.metadata(),
	})
}

func (s *Server) metadata() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}
}

// writeError maps engine errors onto HTTP statuses
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]interface{}{"error": err.Error()}

	if rej, ok := domain.AsRejection(err); ok {
		status = http.StatusUnprocessableEntity
		body["reason"] = rej.Reason
		body["symbol"] = rej.Symbol
	} else {
		switch {
		case errors.Is(err, domain.ErrPortfolioNotFound), errors.Is(err, simulation.ErrNoCursor):
			status = http.StatusNotFound
		case errors.Is(err, domain.ErrUnknownStrategy):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrMarketDataExhausted), errors.Is(err, domain.ErrMissingMarketData):
			status = http.StatusConflict
		case errors.Is(err, domain.ErrPersistence):
			s.log.Error().Err(err).Msg("Request failed on storage")
		default:
			s.log.Error().Err(err).Msg("Request failed")
		}
	}

	body["metadata"] = s.metadata()
	s.writeJSON(w, status, body)
}

// writeBadRequest reports a malformed request
func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":    msg,
		"metadata": s.metadata(),
	})
}

// portfolioID parses the {id} URL parameter
func portfolioID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
