package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/bizmatters/tour-orchestrator/internal/config"
	"github.com/bizmatters/tour-orchestrator/internal/geometry"
	"github.com/bizmatters/tour-orchestrator/internal/orchestration"
	"github.com/bizmatters/tour-orchestrator/internal/solver"
)

// output is what the command prints on success
type output struct {
	RunID     string      `json:"run_id"`
	Manifold  string      `json:"manifold,omitempty"`
	Dimension int         `json:"dimension"`
	Points    [][]float64 `json:"points"`
	Flat      []float64   `json:"flat"`
}

func main() {
	// Parse command-line flags
	manifold := flag.String("manifold", "", "Manifold to sample (sphere, torus, mobius-band, trefoil-knot, helix, plane)")
	count := flag.Int("count", 100, "Number of points to sample")
	dimension := flag.Int("dimension", 0, "2 or 3 (default 3 for -manifold, 2 for -points)")
	pointsFile := flag.String("points", "", "JSON file holding a flat coordinate array, or - for stdin")
	verbose := flag.Bool("v", false, "Print engine output and traces to stderr")
	flag.Parse()

	if (*manifold == "") == (*pointsFile == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -manifold or -points is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *verbose {
		if err := initTracer(); err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
	}

	engine := solver.NewGateway(solver.Config{
		Path:    cfg.Solver.Path,
		Args:    cfg.Solver.Args,
		Timeout: cfg.Solver.Timeout,
	})
	svc := orchestration.NewService(engine, geometry.NewGenerator(), orchestration.Config{
		ScratchDir:  cfg.Scratch.Dir,
		KeepScratch: cfg.Scratch.Keep,
		MaxPoints:   cfg.MaxPoints,
	})

	sink := func(string) {}
	if *verbose {
		sink = func(line string) { fmt.Fprintln(os.Stderr, line) }
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result *orchestration.Result
	if *manifold != "" {
		result, err = svc.GenerateAndSolve(ctx, orchestration.GenerateRequest{
			Manifold:  *manifold,
			Count:     *count,
			Dimension: *dimension,
		}, sink)
	} else {
		var values []float64
		values, err = readPoints(*pointsFile)
		if err != nil {
			log.Fatalf("Failed to read points: %v", err)
		}
		dim := *dimension
		if dim == 0 {
			dim = 2
		}
		result, err = svc.SolveGivenPoints(ctx, orchestration.PointsRequest{Points: values, Dimension: dim}, sink)
	}
	if err != nil {
		log.Fatalf("Solve failed: %v", err)
	}

	tour := make([][]float64, len(result.Tour))
	for i, p := range result.Tour {
		tour[i] = p.Coords()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output{
		RunID:     result.RunID.String(),
		Manifold:  result.Manifold,
		Dimension: result.Dimension,
		Points:    tour,
		Flat:      result.Tour.Flat(),
	}); err != nil {
		log.Fatalf("Failed to write tour: %v", err)
	}
}

// readPoints loads a flat JSON number array from path
func readPoints(path string) ([]float64, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%s is not a JSON array of numbers: %w", path, err)
	}
	return values, nil
}

// initTracer initializes OpenTelemetry tracing
func initTracer() error {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)

	otel.SetTracerProvider(tp)

	return nil
}
