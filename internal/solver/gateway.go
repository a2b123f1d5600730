package solver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/tour-orchestrator/internal/errs"
	"github.com/bizmatters/tour-orchestrator/internal/geometry"
)

const (
	defaultTimeout     = 2 * time.Minute
	defaultMaxFailures = 5
	waitDelay          = 5 * time.Second
	stderrTailBytes    = 4096
	maxLineBytes       = 1 << 20
)

// LineSink receives engine stdout lines as they are produced. Sinks are
// called from the reader goroutine and must not block.
type LineSink func(line string)

// LogSink writes every engine line to the process log
func LogSink(line string) {
	log.Printf(`{"level":"debug","message":"engine output","line":%q}`, line)
}

// Config describes how to run the engine
type Config struct {
	// Path is the engine executable
	Path string
	// Args are passed before the output, dimension and instance arguments
	Args []string
	// Timeout bounds one invocation; zero means the package default
	Timeout time.Duration
	// MaxConsecutiveFailures trips the circuit breaker; zero means the package default
	MaxConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again
	OpenTimeout time.Duration
}

// ExitError reports a non-zero engine exit
type ExitError struct {
	ExitCode int
	Command  []string
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("engine exited with code %d: %s", e.ExitCode, strings.Join(e.Command, " "))
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

// Gateway runs the external tour engine as a subprocess
type Gateway struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
}

// NewGateway creates a gateway for the engine described by cfg
func NewGateway(cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = defaultMaxFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	maxFailures := cfg.MaxConsecutiveFailures

	settings := gobreaker.Settings{
		Name:        "tour-engine",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Only engine faults count against the breaker
		IsSuccessful: func(err error) bool {
			return err == nil || !(errs.Is(err, errs.KindSolver) || errs.Is(err, errs.KindTimeout))
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf(`{"level":"warn","message":"circuit breaker state change","breaker":"%s","from":"%s","to":"%s"}`, name, from, to)
		},
	}

	return &Gateway{
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(settings),
		tracer:  otel.Tracer("tour-engine-gateway"),
	}
}

// Command returns the argv used to solve instancePath into tourPath
func (g *Gateway) Command(instancePath, tourPath string, dim int) []string {
	argv := make([]string, 0, len(g.cfg.Args)+6)
	argv = append(argv, g.cfg.Path)
	argv = append(argv, g.cfg.Args...)
	return append(argv, "-o", tourPath, "-N", strconv.Itoa(dim), instancePath)
}

// Healthy reports whether the circuit breaker currently admits calls
func (g *Gateway) Healthy() bool {
	return g.breaker.State() != gobreaker.StateOpen
}

// Invoke runs the engine and blocks until it exits. Every stdout line is
// passed to sink while the engine runs. A nil error means the engine exited
// zero and has finished writing tourPath.
func (g *Gateway) Invoke(ctx context.Context, instancePath, tourPath string, dim int, sink LineSink) error {
	if err := geometry.ValidateDimension(dim); err != nil {
		return err
	}

	ctx, span := g.tracer.Start(ctx, "solver.invoke")
	defer span.End()

	argv := g.Command(instancePath, tourPath, dim)
	span.SetAttributes(
		attribute.String("engine.command", strings.Join(argv, " ")),
		attribute.Int("engine.dimension", dim),
	)

	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.run(ctx, argv, sink)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = errs.E(errs.KindUnavailable, "solver.invoke", fmt.Errorf("engine circuit breaker is open: %w", err))
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (g *Gateway) run(ctx context.Context, argv []string, sink LineSink) error {
	runCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.WaitDelay = waitDelay

	pr, pw := io.Pipe()
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stdout = pw
	cmd.Stderr = stderr

	log.Printf(`{"level":"info","message":"starting engine","command":%q}`, strings.Join(argv, " "))
	start := time.Now()
	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return errs.E(errs.KindSolver, "solver.start", fmt.Errorf("failed to start engine: %w", err))
	}

	streamed := make(chan error, 1)
	go func() {
		streamed <- streamLines(pr, sink)
	}()

	waitErr := cmd.Wait()
	pw.Close()
	streamErr := <-streamed

	log.Printf(`{"level":"info","message":"engine exited","command":%q,"duration_ms":%d}`,
		strings.Join(argv, " "), time.Since(start).Milliseconds())

	if runCtx.Err() != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("engine run cancelled: %w", ctx.Err())
		}
		return errs.E(errs.KindTimeout, "solver.invoke", fmt.Errorf("engine exceeded %s and was killed", g.cfg.Timeout))
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return errs.E(errs.KindSolver, "solver.invoke", &ExitError{
				ExitCode: exitErr.ExitCode(),
				Command:  argv,
				Stderr:   stderr.String(),
			})
		}
		return errs.E(errs.KindSolver, "solver.invoke", fmt.Errorf("engine wait failed: %w", waitErr))
	}

	if streamErr != nil {
		return errs.E(errs.KindIO, "solver.stream", fmt.Errorf("failed to read engine output: %w", streamErr))
	}
	return nil
}

// streamLines feeds r to sink line by line and always drains r to EOF so the
// engine never blocks on a full pipe.
func streamLines(r *io.PipeReader, sink LineSink) error {
	defer r.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if sink != nil {
			sink(scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		io.Copy(io.Discard, r)
		return err
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
