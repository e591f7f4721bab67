package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/simtrader/internal/domain"
	"github.com/aristath/simtrader/internal/modules/ledger"
	"github.com/aristath/simtrader/internal/modules/performance"
	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/aristath/simtrader/internal/modules/recommendations"
	"github.com/aristath/simtrader/internal/modules/simulation"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)

// fakeService records calls and answers with canned values
type fakeService struct {
	mu sync.Mutex

	err       error
	runResult *simulation.RunResult

	created   simulation.CreateRequest
	order     simulation.ManualOrder
	cashDate  time.Time
	gridSyms  []string
	gridDate  time.Time
	activeSet *bool
}

func (f *fakeService) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeService) CreatePortfolio(ctx context.Context, req simulation.CreateRequest) (*portfolio.Portfolio, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	f.created = req
	return &portfolio.Portfolio{ID: 1, Name: req.Name, Policy: req.Policy, Cash: req.InitialCash, Invested: req.InitialCash}, nil
}

func (f *fakeService) ListPortfolios(ctx context.Context) ([]*portfolio.Portfolio, error) {
	return []*portfolio.Portfolio{{ID: 1, Name: "one"}}, f.fail()
}

func (f *fakeService) Portfolio(ctx context.Context, id int64) (*simulation.Detail, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &simulation.Detail{Portfolio: &portfolio.Portfolio{ID: id}, Status: simulation.StatusNotStarted}, nil
}

func (f *fakeService) SetActive(ctx context.Context, id int64, active bool) error {
	f.activeSet = &active
	return f.fail()
}

func (f *fakeService) StepOnce(ctx context.Context, id int64) (*simulation.StepResult, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &simulation.StepResult{PortfolioID: id, Date: testNow, Trades: 1}, nil
}

func (f *fakeService) RunSimulation(ctx context.Context, id int64) (*simulation.RunResult, error) {
	return f.runResult, f.fail()
}

func (f *fakeService) ResetPortfolio(ctx context.Context, id int64) error {
	return f.fail()
}

func (f *fakeService) FavoredRecommendations(ctx context.Context, id int64) ([]recommendations.Recommendation, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return []recommendations.Recommendation{{Symbol: "SYM", Action: domain.ActionBuy, Strength: 0.5}}, nil
}

func (f *fakeService) StrategyGrid(ctx context.Context, symbols []string, date time.Time) (recommendations.Grid, error) {
	f.gridSyms = symbols
	f.gridDate = date
	grid := recommendations.Grid{}
	for _, s := range symbols {
		grid[s] = map[string]domain.Action{"rsi": domain.ActionHold}
	}
	return grid, f.fail()
}

func (f *fakeService) PlaceManualOrder(ctx context.Context, id int64, order simulation.ManualOrder) (*ledger.Transaction, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	f.order = order
	return &ledger.Transaction{ID: 9, PortfolioID: id, Symbol: order.Symbol, Side: order.Side, Quantity: order.Quantity, Price: order.Price, Date: order.Date, Source: domain.SourceManual}, nil
}

func (f *fakeService) Deposit(ctx context.Context, id int64, amount decimal.Decimal, date time.Time) (*portfolio.Portfolio, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	f.cashDate = date
	return &portfolio.Portfolio{ID: id, Cash: amount}, nil
}

func (f *fakeService) Withdraw(ctx context.Context, id int64, amount decimal.Decimal, date time.Time) (*portfolio.Portfolio, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	f.cashDate = date
	return &portfolio.Portfolio{ID: id, Cash: amount.Neg()}, nil
}

func (f *fakeService) Metrics(ctx context.Context, id int64) (performance.Metrics, error) {
	roi := 2.0
	return performance.Metrics{{Name: "roi", Value: &roi}, {Name: "sharpe_ratio"}}, f.fail()
}

func (f *fakeService) Snapshots(ctx context.Context, id int64) ([]*performance.Snapshot, error) {
	return []*performance.Snapshot{}, f.fail()
}

func (f *fakeService) Transactions(ctx context.Context, id int64) ([]*ledger.Transaction, error) {
	return []*ledger.Transaction{}, f.fail()
}

func (f *fakeService) Warnings(ctx context.Context, id int64) ([]simulation.Warning, error) {
	return []simulation.Warning{}, f.fail()
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(ctx context.Context) error { return f.err }

func newTestServer(t *testing.T, svc *fakeService, db HealthChecker) *Server {
	t.Helper()
	srv := New(Config{Log: zerolog.Nop(), Port: 0, DevMode: true, Service: svc, DB: db})
	srv.now = func() time.Time { return testNow }
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestCreatePortfolioKeepsPolicyDefaults(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc, nil)

	rec, out := do(t, srv, http.MethodPost, "/api/portfolios", `{
		"name": "growth",
		"initial_cash": "10000",
		"first_date": "2024-01-02",
		"policy": {"strategy": "rsi", "reserve_cash_percent": "20"}
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, "rsi", svc.created.Policy.Strategy)
	assert.Equal(t, "20", svc.created.Policy.ReserveCashPercent.String())
	assert.Equal(t, 1, svc.created.Policy.MinHoldingDays)
	assert.Equal(t, "20", svc.created.Policy.MaxExposurePercent.String())
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), svc.created.FirstDate)

	data := out["data"].(map[string]interface{})
	assert.Equal(t, "growth", data["name"])
	assert.Equal(t, "10000", data["cash"])
	metadata := out["metadata"].(map[string]interface{})
	assert.Equal(t, "2024-06-01T15:30:00Z", metadata["timestamp"])
}

func TestCreatePortfolioValidation(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, nil)

	cases := map[string]string{
		"malformed":      `{"name":`,
		"missing name":   `{"policy": {"strategy": "rsi"}}`,
		"no strategy":    `{"name": "x"}`,
		"bad percent":    `{"name": "x", "policy": {"strategy": "rsi", "reserve_cash_percent": "120"}}`,
		"negative cash":  `{"name": "x", "initial_cash": "-1", "policy": {"strategy": "rsi"}}`,
		"bad first date": `{"name": "x", "first_date": "01/02/2024", "policy": {"strategy": "rsi"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec, out := do(t, srv, http.MethodPost, "/api/portfolios", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("%w: 7", domain.ErrPortfolioNotFound), http.StatusNotFound},
		{"no cursor", simulation.ErrNoCursor, http.StatusNotFound},
		{"unknown strategy", fmt.Errorf("%w: astrology", domain.ErrUnknownStrategy), http.StatusBadRequest},
		{"exhausted", domain.ErrMarketDataExhausted, http.StatusConflict},
		{"missing data", domain.ErrMissingMarketData, http.StatusConflict},
		{"persistence", domain.NewPersistenceError("step", errors.New("disk I/O error")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeService{err: tc.err}, nil)
			rec, out := do(t, srv, http.MethodPost, "/api/portfolios/7/step", "")
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.err.Error(), out["error"])
		})
	}
}

func TestInvalidPortfolioID(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, nil)
	rec, _ := do(t, srv, http.MethodGet, "/api/portfolios/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrder(t *testing.T) {
	t.Run("filled", func(t *testing.T) {
		svc := &fakeService{}
		srv := newTestServer(t, svc, nil)

		rec, out := do(t, srv, http.MethodPost, "/api/portfolios/3/orders",
			`{"symbol": "SYM", "side": "BUY", "quantity": "10", "price": "100"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "SYM", svc.order.Symbol)
		assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), svc.order.Date)

		data := out["data"].(map[string]interface{})
		assert.Equal(t, "manual", data["source"])
	})

	t.Run("rejected", func(t *testing.T) {
		rej := domain.NewRejection(domain.ReasonInsufficientCash, "SYM", domain.SideBuy, "cash would fall below reserve")
		srv := newTestServer(t, &fakeService{err: rej}, nil)

		rec, out := do(t, srv, http.MethodPost, "/api/portfolios/3/orders",
			`{"symbol": "SYM", "side": "BUY", "quantity": "31", "price": "100", "date": "2024-03-04"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "InsufficientCash", out["reason"])
		assert.Equal(t, "SYM", out["symbol"])
	})

	t.Run("missing symbol", func(t *testing.T) {
		srv := newTestServer(t, &fakeService{}, nil)
		rec, _ := do(t, srv, http.MethodPost, "/api/portfolios/3/orders", `{"side": "BUY"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRunReportsInterruptedProgress(t *testing.T) {
	svc := &fakeService{
		err:       fmt.Errorf("%w on 2024-03-05", domain.ErrMissingMarketData),
		runResult: &simulation.RunResult{RunID: "r1", PortfolioID: 2, Status: simulation.StatusPaused, DaysStepped: 4},
	}
	srv := newTestServer(t, svc, nil)

	rec, out := do(t, srv, http.MethodPost, "/api/portfolios/2/run", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := out["data"].(map[string]interface{})
	assert.Equal(t, "Paused", data["status"])
	assert.Equal(t, float64(4), data["days_stepped"])
	metadata := out["metadata"].(map[string]interface{})
	assert.Contains(t, metadata["error"], "missing market data")
}

func TestDepositAndWithdraw(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc, nil)

	rec, out := do(t, srv, http.MethodPost, "/api/portfolios/1/deposits", `{"amount": "250", "date": "2024-02-01"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "250", out["data"].(map[string]interface{})["cash"])
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), svc.cashDate)

	rec, out = do(t, srv, http.MethodPost, "/api/portfolios/1/withdrawals", `{"amount": "50"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "-50", out["data"].(map[string]interface{})["cash"])
}

func TestSetActive(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc, nil)

	rec, _ := do(t, srv, http.MethodPut, "/api/portfolios/1/active", `{"active": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.activeSet)
	assert.True(t, *svc.activeSet)
}

func TestMetricsKeepOrderAndUnavailableValues(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, nil)

	rec, _ := do(t, srv, http.MethodGet, "/api/portfolios/1/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	roi := strings.Index(body, `"roi"`)
	sharpe := strings.Index(body, `"sharpe_ratio"`)
	require.True(t, roi >= 0 && sharpe >= 0, body)
	assert.Less(t, roi, sharpe)
	assert.Contains(t, body, `"sharpe_ratio":null`)
}

func TestStrategyGrid(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc, nil)

	rec, _ := do(t, srv, http.MethodGet, "/api/strategies/grid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out := do(t, srv, http.MethodGet, "/api/strategies/grid?symbols=AAA,%20BBB&date=2024-05-31", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"AAA", "BBB"}, svc.gridSyms)
	assert.Equal(t, time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), svc.gridDate)

	data := out["data"].(map[string]interface{})
	assert.Contains(t, data, "AAA")
	assert.Contains(t, data, "BBB")
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, fakeHealth{})
	rec, out := do(t, srv, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", out["data"].(map[string]interface{})["status"])

	srv = newTestServer(t, &fakeService{}, fakeHealth{err: errors.New("integrity check failed")})
	rec, out = do(t, srv, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", out["data"].(map[string]interface{})["status"])
}

func TestListPortfolios(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, nil)
	rec, out := do(t, srv, http.MethodGet, "/api/portfolios", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["data"], 1)
}
