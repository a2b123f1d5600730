package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/tour-orchestrator/internal/codec"
	"github.com/bizmatters/tour-orchestrator/internal/errs"
	"github.com/bizmatters/tour-orchestrator/internal/geometry"
	"github.com/bizmatters/tour-orchestrator/internal/history"
	"github.com/bizmatters/tour-orchestrator/internal/metrics"
	"github.com/bizmatters/tour-orchestrator/internal/solver"
)

const (
	// ModeGenerate marks runs over server-sampled manifold points
	ModeGenerate = "generate"
	// ModePoints marks runs over caller-supplied points
	ModePoints = "points"

	defaultDimension = 3
	recordTimeout    = 5 * time.Second
)

// Stage names a step of the solve pipeline
type Stage string

const (
	StageAccepting Stage = "generating_or_accepting"
	StageEncoding  Stage = "encoding"
	StageSolving   Stage = "solving"
	StageDecoding  Stage = "decoding"
	StageDone      Stage = "done"
)

// Engine runs the external tour engine
type Engine interface {
	Invoke(ctx context.Context, instancePath, tourPath string, dim int, sink solver.LineSink) error
}

// RunRecorder stores a summary of finished runs
type RunRecorder interface {
	RecordRun(ctx context.Context, run history.Run) error
}

// Config controls scratch files and request limits
type Config struct {
	ScratchDir  string
	KeepScratch bool
	MaxPoints   int
}

// GenerateRequest asks for count points sampled on a manifold
type GenerateRequest struct {
	Manifold string
	Count    int
	// Dimension defaults to 3; 2 projects the sampled points onto (x, y)
	Dimension int
}

// PointsRequest carries caller-supplied coordinates, flattened
type PointsRequest struct {
	Points    []float64
	Dimension int
}

// Request is either a GenerateRequest or a PointsRequest, never both
type Request struct {
	Manifold  string
	Count     int
	Points    []float64
	Dimension int
}

// Result is a solved, closed tour
type Result struct {
	RunID     uuid.UUID
	Mode      string
	Manifold  string
	Dimension int
	Tour      geometry.Tour
	Duration  time.Duration
}

// Service sequences point generation, instance encoding, the engine run and
// tour decoding. Runs share no mutable state apart from the generator.
type Service struct {
	engine    Engine
	generator *geometry.Generator
	cfg       Config
	metrics   *metrics.SolveMetrics
	recorder  RunRecorder
	tracer    trace.Tracer
}

// Option configures optional collaborators
type Option func(*Service)

// WithMetrics records solve metrics
func WithMetrics(m *metrics.SolveMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRecorder stores a run summary after each solve
func WithRecorder(r RunRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService creates a new orchestration service
func NewService(engine Engine, generator *geometry.Generator, cfg Config, opts ...Option) *Service {
	if cfg.MaxPoints <= 0 || cfg.MaxPoints > geometry.MaxPoints {
		cfg.MaxPoints = geometry.MaxPoints
	}
	if generator == nil {
		generator = geometry.NewGenerator()
	}
	s := &Service{
		engine:    engine,
		generator: generator,
		cfg:       cfg,
		tracer:    otel.Tracer("tour-orchestration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxPoints returns the effective point limit
func (s *Service) MaxPoints() int {
	return s.cfg.MaxPoints
}

// Solve dispatches req to GenerateAndSolve or SolveGivenPoints
func (s *Service) Solve(ctx context.Context, req Request, sink solver.LineSink) (*Result, error) {
	hasManifold := req.Manifold != ""
	hasPoints := len(req.Points) > 0
	switch {
	case hasManifold && hasPoints:
		return nil, errs.Validation("orchestration.solve", "request must carry either a manifold or points, not both")
	case hasManifold:
		return s.GenerateAndSolve(ctx, GenerateRequest{Manifold: req.Manifold, Count: req.Count, Dimension: req.Dimension}, sink)
	case hasPoints:
		return s.SolveGivenPoints(ctx, PointsRequest{Points: req.Points, Dimension: req.Dimension}, sink)
	default:
		return nil, errs.Validation("orchestration.solve", "request must carry a manifold or points")
	}
}

// GenerateAndSolve samples req.Count points on req.Manifold and returns them
// as a closed tour.
func (s *Service) GenerateAndSolve(ctx context.Context, req GenerateRequest, sink solver.LineSink) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "orchestration.generate_and_solve")
	defer span.End()

	dim := req.Dimension
	if dim == 0 {
		dim = defaultDimension
	}
	span.SetAttributes(
		attribute.String("manifold", req.Manifold),
		attribute.Int("count", req.Count),
		attribute.Int("dimension", dim),
	)

	if err := geometry.ValidateDimension(dim); err != nil {
		span.RecordError(err)
		return nil, err
	}
	kind, err := geometry.ParseManifold(req.Manifold)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if req.Count < 1 || req.Count > s.cfg.MaxPoints {
		err := errs.Validation("orchestration.generate_and_solve", "count %d out of range [1, %d]", req.Count, s.cfg.MaxPoints)
		span.RecordError(err)
		return nil, err
	}

	set, err := s.generator.Generate(kind, req.Count)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result, err := s.run(ctx, ModeGenerate, string(kind), set.Project(dim), codec.GeneratedScale, sink)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

// SolveGivenPoints orders caller-supplied points into a closed tour. The
// coordinates are passed to the engine unscaled.
func (s *Service) SolveGivenPoints(ctx context.Context, req PointsRequest, sink solver.LineSink) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "orchestration.solve_given_points")
	defer span.End()

	span.SetAttributes(
		attribute.Int("values", len(req.Points)),
		attribute.Int("dimension", req.Dimension),
	)

	set, err := geometry.FromFlat(req.Points, req.Dimension)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if set.Len() > s.cfg.MaxPoints {
		err := errs.Validation("orchestration.solve_given_points", "point list has %d points, maximum is %d", set.Len(), s.cfg.MaxPoints)
		span.RecordError(err)
		return nil, err
	}

	result, err := s.run(ctx, ModePoints, "", set, codec.VerbatimScale, sink)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

// run executes encoding, solving and decoding over a validated set. The first
// failing stage ends the run.
func (s *Service) run(ctx context.Context, mode, manifold string, set geometry.PointSet, scale float64, sink solver.LineSink) (*Result, error) {
	start := time.Now()
	runID := uuid.New()
	dim := set.Dim()
	if sink == nil {
		sink = solver.LogSink
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("run.id", runID.String()))

	if s.metrics != nil {
		s.metrics.RecordSolveStarted(ctx, mode, set.Len())
	}

	tour, stage, err := s.pipeline(ctx, runID, set, scale, sink)
	duration := time.Since(start)

	run := history.Run{
		ID:         runID,
		Mode:       mode,
		Manifold:   manifold,
		Dimension:  dim,
		PointCount: set.Len(),
		Status:     "completed",
		DurationMS: duration.Milliseconds(),
		CreatedAt:  start.UTC(),
	}

	if err != nil {
		kind := string(errs.KindOf(err))
		if kind == "" {
			kind = "unknown"
		}
		run.Status = "failed"
		run.ErrorKind = kind
		log.Printf(`{"level":"error","message":"solve failed","run_id":"%s","stage":"%s","error_kind":"%s","error":%q}`,
			runID, stage, kind, err.Error())
		if s.metrics != nil {
			s.metrics.RecordSolveFailed(ctx, mode, kind, duration)
		}
		s.record(ctx, run)
		return nil, &StageError{Stage: stage, Err: err}
	}

	log.Printf(`{"level":"info","message":"solve completed","run_id":"%s","mode":"%s","points":%d,"dimension":%d,"duration_ms":%d}`,
		runID, mode, set.Len(), dim, duration.Milliseconds())
	if s.metrics != nil {
		s.metrics.RecordSolveCompleted(ctx, mode, duration)
	}
	s.record(ctx, run)

	return &Result{
		RunID:     runID,
		Mode:      mode,
		Manifold:  manifold,
		Dimension: dim,
		Tour:      tour,
		Duration:  duration,
	}, nil
}

func (s *Service) pipeline(ctx context.Context, runID uuid.UUID, set geometry.PointSet, scale float64, sink solver.LineSink) (geometry.Tour, Stage, error) {
	files, err := acquireScratch(s.cfg.ScratchDir, runID, s.cfg.KeepScratch)
	if err != nil {
		return nil, StageEncoding, err
	}
	defer files.release()

	_, encodeSpan := s.tracer.Start(ctx, "codec.write_instance")
	err = codec.WriteInstanceFile(files.instance, set, set.Dim(), scale)
	encodeSpan.End()
	if err != nil {
		return nil, StageEncoding, err
	}

	if err := s.engine.Invoke(ctx, files.instance, files.tour, set.Dim(), sink); err != nil {
		return nil, StageSolving, err
	}

	_, decodeSpan := s.tracer.Start(ctx, "codec.read_tour")
	tour, err := codec.ReadTourFile(files.tour, set)
	decodeSpan.End()
	if err != nil {
		return nil, StageDecoding, err
	}
	return tour, StageDone, nil
}

// record stores run without letting a history failure fail the request
func (s *Service) record(ctx context.Context, run history.Run) {
	if s.recorder == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.recorder.RecordRun(recordCtx, run); err != nil {
		log.Printf(`{"level":"warn","message":"failed to record run","run_id":"%s","error":%q}`, run.ID, err.Error())
	}
}

// StageError records the pipeline stage a run failed in
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage a run error came from, or "" for errors raised
// before the pipeline started
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
