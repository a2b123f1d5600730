package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bizmatters/tour-orchestrator/internal/errs"
	"github.com/bizmatters/tour-orchestrator/internal/geometry"
	"github.com/bizmatters/tour-orchestrator/internal/history"
	"github.com/bizmatters/tour-orchestrator/internal/models"
	"github.com/bizmatters/tour-orchestrator/internal/orchestration"
	"github.com/bizmatters/tour-orchestrator/internal/solver"
)

const (
	defaultPointsDimension = 2
	defaultRunsLimit       = 20
	maxRunsLimit           = 100
)

// RunLister reads stored run summaries
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]*history.Run, error)
}

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	orchestrationService *orchestration.Service
	runs                 RunLister
}

// NewHandler creates a new gateway handler. runs may be nil when run history
// is disabled.
func NewHandler(orchestrationService *orchestration.Service, runs RunLister) *Handler {
	return &Handler{
		orchestrationService: orchestrationService,
		runs:                 runs,
	}
}

// GenerateTour godoc
// @Summary Generate and solve
// @Description Sample points on a manifold and return them as a closed tour
// @Tags tours
// @Accept json
// @Produce json
// @Param request body models.GenerateTourRequest true "Manifold, point count and dimension"
// @Success 200 {object} models.TourResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Failure 504 {object} models.ErrorResponse
// @Router /tours/generate [post]
func (h *Handler) GenerateTour(c *gin.Context) {
	var req models.GenerateTourRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	result, err := h.orchestrationService.GenerateAndSolve(c.Request.Context(), orchestration.GenerateRequest{
		Manifold:  req.Manifold,
		Count:     req.Count,
		Dimension: req.Dimension,
	}, nil)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, tourResponse(result))
}

// SolveTour godoc
// @Summary Solve points
// @Description Order caller-supplied points into a closed tour. Dimension defaults to 2.
// @Tags tours
// @Accept json
// @Produce json
// @Param request body models.SolveTourRequest true "Flattened coordinates and dimension"
// @Success 200 {object} models.TourResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Failure 504 {object} models.ErrorResponse
// @Router /tours/solve [post]
func (h *Handler) SolveTour(c *gin.Context) {
	var req models.SolveTourRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}
	if req.Dimension == 0 {
		req.Dimension = defaultPointsDimension
	}

	h.solvePoints(c, req.Points, req.Dimension)
}

// SolveQuery godoc
// @Summary Solve points from the query string
// @Description Same as POST /tours/solve with cities given as a JSON array
// @Tags tours
// @Produce json
// @Param cities query string true "JSON array of flattened coordinates"
// @Param dimension query int false "2 or 3" default(2)
// @Success 200 {object} models.TourResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /solve [get]
func (h *Handler) SolveQuery(c *gin.Context) {
	var cities []float64
	if err := json.Unmarshal([]byte(c.Query("cities")), &cities); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "cities must be a JSON array of numbers",
			Code:    models.ErrCodeInvalidRequest,
			Details: map[string]string{"cities": err.Error()},
		})
		return
	}

	dim := defaultPointsDimension
	if raw := c.Query("dimension"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "dimension must be an integer", Code: models.ErrCodeInvalidRequest})
			return
		}
		dim = d
	}

	h.solvePoints(c, cities, dim)
}

func (h *Handler) solvePoints(c *gin.Context, points []float64, dim int) {
	result, err := h.orchestrationService.SolveGivenPoints(c.Request.Context(), orchestration.PointsRequest{
		Points:    points,
		Dimension: dim,
	}, nil)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, tourResponse(result))
}

// ListManifolds godoc
// @Summary List manifolds
// @Description Manifold names accepted by the generate endpoints
// @Tags tours
// @Produce json
// @Success 200 {object} models.ManifoldsResponse
// @Router /manifolds [get]
func (h *Handler) ListManifolds(c *gin.Context) {
	kinds := geometry.Manifolds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	c.JSON(http.StatusOK, models.ManifoldsResponse{
		Manifolds: names,
		MaxPoints: h.orchestrationService.MaxPoints(),
	})
}

// ListRuns godoc
// @Summary List recent runs
// @Description Newest solve summaries first. Requires DATABASE_URL.
// @Tags runs
// @Produce json
// @Param limit query int false "Maximum number of runs" default(20)
// @Success 200 {array} history.Run
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /runs [get]
func (h *Handler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Run history is not enabled", Code: models.ErrCodeHistoryDisabled})
		return
	}

	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunsLimit {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "limit must be between 1 and 100", Code: models.ErrCodeInvalidRequest})
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		log.Printf(`{"level":"error","message":"Failed to list runs","error":%q}`, err.Error())
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list runs", Code: models.ErrCodeInternalError})
		return
	}

	c.JSON(http.StatusOK, runs)
}

func tourResponse(result *orchestration.Result) models.TourResponse {
	points := make([][]float64, len(result.Tour))
	for i, p := range result.Tour {
		points[i] = p.Coords()
	}
	return models.TourResponse{
		RunID:      result.RunID.String(),
		Mode:       result.Mode,
		Manifold:   result.Manifold,
		Dimension:  result.Dimension,
		Points:     points,
		Flat:       result.Tour.Flat(),
		DurationMS: result.Duration.Milliseconds(),
	}
}

// errorResponse maps a solve error to its HTTP status and body
func errorResponse(err error) (int, models.ErrorResponse) {
	status, body := classify(err)
	if len(body.Details) == 0 {
		body.Details = nil
	}
	return status, body
}

func classify(err error) (int, models.ErrorResponse) {
	details := map[string]string{}
	if stage := orchestration.StageOf(err); stage != "" {
		details["stage"] = string(stage)
	}

	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeValidationFailed, Details: details}
	case errs.KindSolver:
		var exitErr *solver.ExitError
		if errors.As(err, &exitErr) {
			details["exit_code"] = strconv.Itoa(exitErr.ExitCode)
		}
		return http.StatusBadGateway, models.ErrorResponse{Error: "Tour engine failed", Code: models.ErrCodeSolverFailed, Details: details}
	case errs.KindTimeout:
		return http.StatusGatewayTimeout, models.ErrorResponse{Error: "Tour engine timed out", Code: models.ErrCodeSolverTimeout, Details: details}
	case errs.KindUnavailable:
		return http.StatusServiceUnavailable, models.ErrorResponse{Error: "Tour engine unavailable", Code: models.ErrCodeSolverUnavailable, Details: details}
	case errs.KindDecode:
		return http.StatusBadGateway, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeDecodeFailed, Details: details}
	default:
		return http.StatusInternalServerError, models.ErrorResponse{Error: "Internal error", Code: models.ErrCodeInternalError, Details: details}
	}
}

func writeError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	_ = c.Error(err)
	c.JSON(status, body)
}
