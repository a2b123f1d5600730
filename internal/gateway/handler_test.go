package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/tour-orchestrator/internal/errs"
	"github.com/bizmatters/tour-orchestrator/internal/geometry"
	"github.com/bizmatters/tour-orchestrator/internal/history"
	"github.com/bizmatters/tour-orchestrator/internal/models"
	"github.com/bizmatters/tour-orchestrator/internal/orchestration"
	"github.com/bizmatters/tour-orchestrator/internal/solver"
	"github.com/bizmatters/tour-orchestrator/internal/testengine"
)

// MockRunLister returns canned run summaries
type MockRunLister struct {
	runs      []*history.Run
	err       error
	lastLimit int
}

func (m *MockRunLister) ListRecent(ctx context.Context, limit int) ([]*history.Run, error) {
	m.lastLimit = limit
	return m.runs, m.err
}

type routerOptions struct {
	timeout     time.Duration
	maxFailures uint32
	runs        RunLister
}

func newTestRouter(t *testing.T, script string, opts routerOptions) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if opts.timeout == 0 {
		opts.timeout = 10 * time.Second
	}
	path, args := testengine.Command(script)
	engine := solver.NewGateway(solver.Config{
		Path:                   path,
		Args:                   args,
		Timeout:                opts.timeout,
		MaxConsecutiveFailures: opts.maxFailures,
	})
	svc := orchestration.NewService(engine, geometry.NewSeededGenerator(3, 5), orchestration.Config{ScratchDir: t.TempDir()})

	router := gin.New()
	RegisterRoutes(router.Group("/api"), NewHandler(svc, opts.runs), NewTourStream(svc))
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandler_GenerateTour(t *testing.T) {
	router := newTestRouter(t, testengine.InOrder(t), routerOptions{})

	w := doJSON(t, router, http.MethodPost, "/api/tours/generate", models.GenerateTourRequest{
		Manifold:  "plane",
		Count:     4,
		Dimension: 2,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.TourResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "generate", resp.Mode)
	assert.Equal(t, "plane", resp.Manifold)
	assert.Equal(t, 2, resp.Dimension)
	require.Len(t, resp.Points, 5)
	assert.Equal(t, resp.Points[0], resp.Points[4])
	for _, p := range resp.Points {
		assert.Len(t, p, 2)
	}
	assert.Len(t, resp.Flat, 10)
	_, err := uuid.Parse(resp.RunID)
	assert.NoError(t, err)
}

func TestHandler_SolveTour(t *testing.T) {
	router := newTestRouter(t, testengine.Reversed(t), routerOptions{})

	w := doJSON(t, router, http.MethodPost, "/api/tours/solve", models.SolveTourRequest{
		Points: []float64{0, 0, 10, 0, 10, 10},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.TourResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "points", resp.Mode)
	assert.Equal(t, 2, resp.Dimension)
	assert.Equal(t, []float64{10, 10, 10, 0, 0, 0, 10, 10}, resp.Flat)
	assert.Equal(t, [][]float64{{10, 10}, {10, 0}, {0, 0}, {10, 10}}, resp.Points)
}

func TestHandler_SolveQuery(t *testing.T) {
	router := newTestRouter(t, testengine.InOrder(t), routerOptions{})

	t.Run("default_dimension", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/solve?cities="+url.QueryEscape("[0,0,3,4,6,0]"), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp models.TourResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, []float64{0, 0, 3, 4, 6, 0, 0, 0}, resp.Flat)
	})

	t.Run("three_dimensions", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/solve?dimension=3&cities="+url.QueryEscape("[0,0,0,1,1,1]"), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp models.TourResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Dimension)
		assert.Equal(t, []float64{0, 0, 0, 1, 1, 1, 0, 0, 0}, resp.Flat)
	})

	t.Run("cities_not_json", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/solve?cities=abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, models.ErrCodeInvalidRequest, decodeError(t, w).Code)
	})

	t.Run("dimension_not_integer", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/solve?dimension=two&cities="+url.QueryEscape("[0,0]"), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_Validation(t *testing.T) {
	engine, counter := testengine.Counting(t, 0)
	router := newTestRouter(t, engine, routerOptions{})

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"count_zero", http.MethodPost, "/api/tours/generate", models.GenerateTourRequest{Manifold: "plane", Count: 0}},
		{"count_above_limit", http.MethodPost, "/api/tours/generate", models.GenerateTourRequest{Manifold: "plane", Count: 3001}},
		{"dimension_four", http.MethodPost, "/api/tours/generate", models.GenerateTourRequest{Manifold: "plane", Count: 4, Dimension: 4}},
		{"unknown_manifold", http.MethodPost, "/api/tours/generate", models.GenerateTourRequest{Manifold: "klein-bottle", Count: 4}},
		{"odd_list", http.MethodPost, "/api/tours/solve", models.SolveTourRequest{Points: []float64{1, 2, 3}}},
		{"empty_list", http.MethodPost, "/api/tours/solve", models.SolveTourRequest{Points: []float64{}}},
		{"odd_query_list", http.MethodGet, "/api/solve?cities=" + url.QueryEscape("[1,2,3]"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, models.ErrCodeValidationFailed, decodeError(t, w).Code)
		})
	}

	assert.Equal(t, 0, testengine.Runs(t, counter), "invalid requests must not start the engine")
}

func TestHandler_MalformedBody(t *testing.T) {
	router := newTestRouter(t, testengine.InOrder(t), routerOptions{})

	req := httptest.NewRequest(http.MethodPost, "/api/tours/generate", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeInvalidRequest, decodeError(t, w).Code)
}

func TestHandler_EngineFailures(t *testing.T) {
	t.Run("solver_failed", func(t *testing.T) {
		router := newTestRouter(t, testengine.Failing(t), routerOptions{})
		w := doJSON(t, router, http.MethodPost, "/api/tours/generate", models.GenerateTourRequest{Manifold: "sphere", Count: 10})

		assert.Equal(t, http.StatusBadGateway, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, models.ErrCodeSolverFailed, resp.Code)
		assert.Equal(t, "1", resp.Details["exit_code"])
		assert.Equal(t, "solving", resp.Details["stage"])
	})

	t.Run("solver_timeout", func(t *testing.T) {
		router := newTestRouter(t, testengine.Sleeping(t), routerOptions{timeout: 300 * time.Millisecond})
		w := doJSON(t, router, http.MethodPost, "/api/tours/solve", models.SolveTourRequest{Points: []float64{0, 0, 1, 1}})

		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
		assert.Equal(t, models.ErrCodeSolverTimeout, decodeError(t, w).Code)
	})

	t.Run("decode_failed", func(t *testing.T) {
		router := newTestRouter(t, testengine.NoTour(t), routerOptions{})
		w := doJSON(t, router, http.MethodPost, "/api/tours/solve", models.SolveTourRequest{Points: []float64{0, 0, 1, 1}})

		assert.Equal(t, http.StatusBadGateway, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, models.ErrCodeDecodeFailed, resp.Code)
		assert.Equal(t, "decoding", resp.Details["stage"])
	})

	t.Run("breaker_open", func(t *testing.T) {
		engine, counter := testengine.Counting(t, 1)
		router := newTestRouter(t, engine, routerOptions{maxFailures: 1})
		req := models.SolveTourRequest{Points: []float64{0, 0, 1, 1}}

		first := doJSON(t, router, http.MethodPost, "/api/tours/solve", req)
		assert.Equal(t, http.StatusBadGateway, first.Code)

		second := doJSON(t, router, http.MethodPost, "/api/tours/solve", req)
		assert.Equal(t, http.StatusServiceUnavailable, second.Code)
		assert.Equal(t, models.ErrCodeSolverUnavailable, decodeError(t, second).Code)
		assert.Equal(t, 1, testengine.Runs(t, counter))
	})
}

func TestHandler_ListManifolds(t *testing.T) {
	router := newTestRouter(t, testengine.InOrder(t), routerOptions{})
	w := doJSON(t, router, http.MethodGet, "/api/manifolds", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ManifoldsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.ElementsMatch(t, []string{"helix", "mobius-band", "plane", "sphere", "torus", "trefoil-knot"}, resp.Manifolds)
	assert.Equal(t, 3000, resp.MaxPoints)
}

func TestHandler_ListRuns(t *testing.T) {
	t.Run("history_disabled", func(t *testing.T) {
		router := newTestRouter(t, testengine.InOrder(t), routerOptions{})
		w := doJSON(t, router, http.MethodGet, "/api/runs", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, models.ErrCodeHistoryDisabled, decodeError(t, w).Code)
	})

	t.Run("lists_runs", func(t *testing.T) {
		runID := uuid.New()
		lister := &MockRunLister{runs: []*history.Run{{ID: runID, Mode: "generate", Manifold: "torus", Dimension: 3, PointCount: 50, Status: "completed"}}}
		router := newTestRouter(t, testengine.InOrder(t), routerOptions{runs: lister})

		w := doJSON(t, router, http.MethodGet, "/api/runs?limit=5", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 5, lister.lastLimit)

		var runs []history.Run
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
		require.Len(t, runs, 1)
		assert.Equal(t, runID, runs[0].ID)
		assert.Equal(t, "torus", runs[0].Manifold)
	})

	t.Run("bad_limit", func(t *testing.T) {
		router := newTestRouter(t, testengine.InOrder(t), routerOptions{runs: &MockRunLister{}})
		w := doJSON(t, router, http.MethodGet, "/api/runs?limit=1000", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("store_error", func(t *testing.T) {
		router := newTestRouter(t, testengine.InOrder(t), routerOptions{runs: &MockRunLister{err: errors.New("connection refused")}})
		w := doJSON(t, router, http.MethodGet, "/api/runs", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", errs.Validation("op", "bad"), http.StatusBadRequest, models.ErrCodeValidationFailed},
		{"solver", errs.E(errs.KindSolver, "op", errors.New("exit 2")), http.StatusBadGateway, models.ErrCodeSolverFailed},
		{"timeout", errs.E(errs.KindTimeout, "op", errors.New("deadline")), http.StatusGatewayTimeout, models.ErrCodeSolverTimeout},
		{"unavailable", errs.E(errs.KindUnavailable, "op", errors.New("open")), http.StatusServiceUnavailable, models.ErrCodeSolverUnavailable},
		{"decode", errs.Decode("op", "empty"), http.StatusBadGateway, models.ErrCodeDecodeFailed},
		{"io", errs.E(errs.KindIO, "op", errors.New("disk full")), http.StatusInternalServerError, models.ErrCodeInternalError},
		{"untagged", errors.New("boom"), http.StatusInternalServerError, models.ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
			assert.Nil(t, body.Details)
		})
	}
}
