// Package testengine writes small shell-script stand-ins for the tour engine
// so tests can exercise the subprocess protocol without the real binary.
package testengine

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

const argParser = `#!/bin/sh
tour=""
dim=""
instance=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) tour="$2"; shift 2 ;;
    -N) dim="$2"; shift 2 ;;
    *) instance="$1"; shift ;;
  esac
done
`

// Write stores a script made of the shared argument parser
// followed by body, and returns its path.
func Write(t testing.TB, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(argParser+body), 0o755); err != nil {
		t.Fatalf("failed to write stub engine: %v", err)
	}
	return path
}

// InOrder visits the instance's points in input order and prints two
// progress lines around the tour write.
func InOrder(t testing.TB) string {
	return Write(t, "engine-in-order.sh", `n=$(head -n 1 "$instance")
echo "solving $n points in $dim dimensions"
echo "$n $n" > "$tour"
i=0
while [ "$i" -lt "$n" ]; do
  j=$(( (i + 1) % n ))
  echo "$i $j 1" >> "$tour"
  i=$((i + 1))
done
echo "tour written"
`)
}

// Reversed visits the instance's points from last to first
func Reversed(t testing.TB) string {
	return Write(t, "engine-reversed.sh", `n=$(head -n 1 "$instance")
echo "$n $n" > "$tour"
i=$((n - 1))
while [ "$i" -ge 0 ]; do
  echo "$i 0 1" >> "$tour"
  i=$((i - 1))
done
`)
}

// Failing prints a diagnostic on stderr and exits with code 1
func Failing(t testing.TB) string {
	return Write(t, "engine-failing.sh", `echo "reading $instance"
echo "engine crashed" >&2
exit 1
`)
}

// Sleeping never finishes within a test's timeout
func Sleeping(t testing.TB) string {
	return Write(t, "engine-sleeping.sh", `echo "starting"
exec sleep 30
`)
}

// NoTour exits zero without writing a tour file
func NoTour(t testing.TB) string {
	return Write(t, "engine-no-tour.sh", `echo "nothing to do"
`)
}

// Counting appends a line to the returned counter file on every run. With a
// non-zero exitCode it exits with that code, otherwise it writes a tour.
func Counting(t testing.TB, exitCode int) (engine, counter string) {
	t.Helper()
	counter = filepath.Join(t.TempDir(), "runs")
	engine = Write(t, "engine-counting.sh", `echo run >> "`+counter+`"
if [ `+strconv.Itoa(exitCode)+` -ne 0 ]; then
  exit `+strconv.Itoa(exitCode)+`
fi
n=$(head -n 1 "$instance")
echo "$n $n" > "$tour"
i=0
while [ "$i" -lt "$n" ]; do
  echo "$i 0 1" >> "$tour"
  i=$((i + 1))
done
`)
	return engine, counter
}

// Runs returns how many times a Counting engine was started
func Runs(t testing.TB, counter string) int {
	t.Helper()
	data, err := os.ReadFile(counter)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}

// Command returns an executable and leading arguments that run script through
// /bin/sh, so tests never exec a freshly written file directly.
func Command(script string) (path string, args []string) {
	return "/bin/sh", []string{script}
}
