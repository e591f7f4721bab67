package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/aristath/simtrader/internal/modules/simulation"
	"github.com/aristath/simtrader/internal/utils"
	"github.com/shopspring/decimal"
)

// CreatePortfolioRequest is the body of POST /api/portfolios. Policy fields
// left out keep their defaults.
type CreatePortfolioRequest struct {
	Name          string           `json:"name"`
	Policy        portfolio.Policy `json:"policy"`
	InitialCash   decimal.Decimal  `json:"initial_cash"`
	FirstDate     string           `json:"first_date,omitempty"` // YYYY-MM-DD, defaults to today
	RunLengthDays int              `json:"run_length_days,omitempty"`
}

// OrderRequest is the body of POST /api/portfolios/{id}/orders
type OrderRequest struct {
	Symbol   string          `json:"symbol"`
	Side     domain.Side     `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Date     string          `json:"date,omitempty"` // YYYY-MM-DD, defaults to today
}

// CashRequest is the body of deposit and withdrawal requests
type CashRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date,omitempty"`
}

// ActiveRequest toggles daily auto-stepping
type ActiveRequest struct {
	Active bool `json:"active"`
}

// handleListPortfolios handles GET /api/portfolios
func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := s.service.ListPortfolios(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, portfolios)
}

// handleCreatePortfolio handles POST /api/portfolios
func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	req := CreatePortfolioRequest{Policy: portfolio.DefaultPolicy("")}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "Invalid request body")
		return
	}

	if req.Name == "" {
		s.writeBadRequest(w, "name is required")
		return
	}
	if err := req.Policy.Validate(); err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}
	if req.InitialCash.IsNegative() {
		s.writeBadRequest(w, "initial_cash must not be negative")
		return
	}
	if req.RunLengthDays < 0 {
		s.writeBadRequest(w, "run_length_days must not be negative")
		return
	}

	var firstDate time.Time
	if req.FirstDate != "" {
		parsed, err := utils.ParseDate(req.FirstDate)
		if err != nil {
			s.writeBadRequest(w, err.Error())
			return
		}
		firstDate = parsed
	}

	created, err := s.service.CreatePortfolio(r.Context(), simulation.CreateRequest{
		Name:          req.Name,
		Policy:        req.Policy,
		InitialCash:   req.InitialCash,
		FirstDate:     firstDate,
		RunLengthDays: req.RunLengthDays,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeData(w, http.StatusCreated, created)
}

// handleGetPortfolio handles GET /api/portfolios/{id}
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(r)
	if !ok {
		s.writeBadRequest(w, "Invalid portfolio id")
		return
	}

	detail, err := s.service.Portfolio(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, detail)
}

// handleSetActive handles PUT /api/portfolios/{id}/active
func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(r)
	if !ok {
		s.writeBadRequest(w, "Invalid portfolio id")
		return
	}

	var req ActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "Invalid request body")
		return
	}

	if err := s.service.SetActive(r.Context(), id, req.Active); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, req)
}

// handleStep handles POST /api/portfolios/{id}/step
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(r)
	if !ok {
		s.writeBadRequest(w, "Invalid portfolio id")
		return
	}

	result, err := s.service.StepOnce(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, result)
}

// handleRun handles POST /api/portfolios/{id}/run. An interrupted run still
// reports its progress, with the cause in metadata.error.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(r)
	if !ok {
		s.writeBadRequest(w, "Invalid portfolio id")
		return
	}

	result, err := s.service.RunSimulation(r.Context(), id)
	if err != nil && result == nil {
		s.writeError(w, err)
		return
	}

	metadata := s.metadata()
	if err != nil {
		metadata["error"] = err.Error()
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     result,
		"metadata": metadata,
	})
}

// handleReset handles POST /api/portfolios/{id}/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(r)
	if !ok {
		s.writeBadRequest(w, "Invalid portfolio id")
		return
	}

	if err := s.service.ResetPortfolio(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"portfolio_id": id, "reset": true})
}

// handleRecommendations handles GET /api/portfolios/{id}/recommendations
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(r)
	if !ok {
		s.writeBadRequest(w, "Invalid portfolio id")
		return
	}

	recs, err := s.service.FavoredRecommendations(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, recs)
}

// handlePlaceOrder handles POST /api/portfolios/{id}/orders.
// Rejected orders answer 422 with the rejection reason.
func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(r)
	if !ok {
		s.writeBadRequest(w, "Invalid portfolio id")
		return
	}

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "Invalid request body")
		return
	}
	if req.Symbol == "" {
		s.writeBadRequest(w, "symbol is required")
		return
	}

	date, err := s.requestDate(req.Date)
	if err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}

	txn, err := s.service.PlaceManualOrder(r.Context(), id, simulation.ManualOrder{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    req.Price,
		Date:     date,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusCreated, txn)
}

// handleDeposit handles POST /api/portfolios/{id}/deposits
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleCash(w, r, s.service.Deposit)
}

// handleWithdraw handles POST /api/portfolios/{id}/withdrawals
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleCash(w, r, s.service.Withdraw)
}

type cashMove func(ctx context.Context, portfolioID int64, amount decimal.Decimal, date time.Time) (*portfolio.Portfolio, error)

func (s *Server) handleCash(w http.ResponseWriter, r *http.Request, move cashMove) {
	id, ok := portfolioID(r)
	if !ok {
		s.writeBadRequest(w, "Invalid portfolio id")
		return
	}

	var req CashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "Invalid request body")
		return
	}

	date, err := s.requestDate(req.Date)
	if err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}

	updated, err := move(r.Context(), id, req.Amount, date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, updated)
}

// handleMetrics handles GET /api/portfolios/{id}/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(r)
	if !ok {
		s.writeBadRequest(w, "Invalid portfolio id")
		return
	}

	metrics, err := s.service.Metrics(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, metrics)
}

// handleSnapshots handles GET /api/portfolios/{id}/snapshots
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(r)
	if !ok {
		s.writeBadRequest(w, "Invalid portfolio id")
		return
	}

	snapshots, err := s.service.Snapshots(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, snapshots)
}

// handleTransactions handles GET /api/portfolios/{id}/transactions
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(r)
	if !ok {
		s.writeBadRequest(w, "Invalid portfolio id")
		return
	}

	txns, err := s.service.Transactions(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, txns)
}

// handleWarnings handles GET /api/portfolios/{id}/warnings
func (s *Server) handleWarnings(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(r)
	if !ok {
		s.writeBadRequest(w, "Invalid portfolio id")
		return
	}

	warnings, err := s.service.Warnings(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, warnings)
}

// handleStrategyGrid handles GET /api/strategies/grid?symbols=A,B&date=YYYY-MM-DD
func (s *Server) handleStrategyGrid(w http.ResponseWriter, r *http.Request) {
	symbols := utils.ParseCSV(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		s.writeBadRequest(w, "symbols query parameter is required")
		return
	}

	var date time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := utils.ParseDate(raw)
		if err != nil {
			s.writeBadRequest(w, err.Error())
			return
		}
		date = parsed
	}

	grid, err := s.service.StrategyGrid(r.Context(), symbols, date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, grid)
}

// requestDate parses an optional YYYY-MM-DD date, defaulting to today
func (s *Server) requestDate(raw string) (time.Time, error) {
	if raw == "" {
		return utils.Day(s.now()), nil
	}
	return utils.ParseDate(raw)
}
