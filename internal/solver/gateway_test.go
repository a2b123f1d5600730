package solver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/tour-orchestrator/internal/errs"
	"github.com/bizmatters/tour-orchestrator/internal/testengine"
)

func newTestGateway(script string, mutate func(*Config)) *Gateway {
	path, args := testengine.Command(script)
	cfg := Config{Path: path, Args: args, Timeout: 10 * time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewGateway(cfg)
}

func writeInstance(t *testing.T, dir string, n int) string {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", n)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d %d\n", i, i)
	}
	b.WriteString("EOF\n")
	path := filepath.Join(dir, "instance.tsp")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

type lineCollector struct {
	mu    sync.Mutex
	lines []string
}

func (c *lineCollector) sink(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func TestGateway_Command(t *testing.T) {
	g := NewGateway(Config{Path: "./bin/linkern", Args: []string{"-Q"}})
	assert.Equal(t,
		[]string{"./bin/linkern", "-Q", "-o", "/tmp/a.tour", "-N", "3", "/tmp/a.tsp"},
		g.Command("/tmp/a.tsp", "/tmp/a.tour", 3))
}

func TestGateway_Invoke_Success(t *testing.T) {
	dir := t.TempDir()
	instance := writeInstance(t, dir, 4)
	tour := filepath.Join(dir, "out.tour")

	g := newTestGateway(testengine.InOrder(t), nil)
	collector := &lineCollector{}

	err := g.Invoke(context.Background(), instance, tour, 2, collector.sink)
	require.NoError(t, err)

	assert.Equal(t, []string{"solving 4 points in 2 dimensions", "tour written"}, collector.lines)

	data, err := os.ReadFile(tour)
	require.NoError(t, err)
	assert.Equal(t, "4 4\n0 1 1\n1 2 1\n2 3 1\n3 0 1\n", string(data))
}

func TestGateway_Invoke_NilSink(t *testing.T) {
	dir := t.TempDir()
	instance := writeInstance(t, dir, 3)
	g := newTestGateway(testengine.InOrder(t), nil)
	require.NoError(t, g.Invoke(context.Background(), instance, filepath.Join(dir, "out.tour"), 3, nil))
}

func TestGateway_Invoke_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	instance := writeInstance(t, dir, 3)
	tour := filepath.Join(dir, "out.tour")

	g := newTestGateway(testengine.Failing(t), nil)
	collector := &lineCollector{}

	err := g.Invoke(context.Background(), instance, tour, 3, collector.sink)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindSolver))

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.ExitCode)
	assert.Equal(t, g.Command(instance, tour, 3), exitErr.Command)
	assert.Contains(t, exitErr.Stderr, "engine crashed")
	assert.Equal(t, []string{"reading " + instance}, collector.lines)

	_, statErr := os.Stat(tour)
	assert.True(t, os.IsNotExist(statErr))
}

func TestGateway_Invoke_Timeout(t *testing.T) {
	dir := t.TempDir()
	instance := writeInstance(t, dir, 3)

	g := newTestGateway(testengine.Sleeping(t), func(c *Config) {
		c.Timeout = 300 * time.Millisecond
	})

	start := time.Now()
	err := g.Invoke(context.Background(), instance, filepath.Join(dir, "out.tour"), 3, nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindTimeout))
	assert.Less(t, time.Since(start), 10*time.Second, "engine must be killed at the deadline")
}

func TestGateway_Invoke_CallerCancel(t *testing.T) {
	dir := t.TempDir()
	instance := writeInstance(t, dir, 3)
	g := newTestGateway(testengine.Sleeping(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := g.Invoke(ctx, instance, filepath.Join(dir, "out.tour"), 3, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, errs.Kind(""), errs.KindOf(err))
}

func TestGateway_Invoke_MissingExecutable(t *testing.T) {
	g := NewGateway(Config{Path: filepath.Join(t.TempDir(), "no-such-engine")})
	err := g.Invoke(context.Background(), "in.tsp", "out.tour", 2, nil)
	assert.True(t, errs.Is(err, errs.KindSolver))
}

func TestGateway_Invoke_InvalidDimension(t *testing.T) {
	engine, counter := testengine.Counting(t, 0)
	g := newTestGateway(engine, nil)

	err := g.Invoke(context.Background(), "in.tsp", "out.tour", 4, nil)
	assert.True(t, errs.Is(err, errs.KindValidation))
	assert.Equal(t, 0, testengine.Runs(t, counter))
}

func TestGateway_CircuitBreaker(t *testing.T) {
	dir := t.TempDir()
	instance := writeInstance(t, dir, 3)
	engine, counter := testengine.Counting(t, 1)

	g := newTestGateway(engine, func(c *Config) {
		c.MaxConsecutiveFailures = 2
		c.OpenTimeout = time.Minute
	})

	for i := 0; i < 2; i++ {
		err := g.Invoke(context.Background(), instance, filepath.Join(dir, "out.tour"), 3, nil)
		require.True(t, errs.Is(err, errs.KindSolver))
	}
	assert.False(t, g.Healthy())

	err := g.Invoke(context.Background(), instance, filepath.Join(dir, "out.tour"), 3, nil)
	assert.True(t, errs.Is(err, errs.KindUnavailable))
	assert.Equal(t, 2, testengine.Runs(t, counter), "an open breaker must not spawn the engine")
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 4}
	b.Write([]byte("abc"))
	b.Write([]byte("defg"))
	assert.Equal(t, "defg", b.String())
}
