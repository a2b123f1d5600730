package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/bizmatters/tour-orchestrator/internal/errs"
	"github.com/bizmatters/tour-orchestrator/internal/geometry"
)

// TourEdge is one traversal step of the engine's output. To is -1 when the
// record has no second field.
type TourEdge struct {
	From int
	To   int
}

// ParseTourEdges reads the edge records of a tour file, skipping its header
// and blank lines. Index ranges are not checked here.
func ParseTourEdges(r io.Reader) ([]TourEdge, error) {
	scanner := bufio.NewScanner(r)
	sawHeader := false
	var edges []TourEdge
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if !sawHeader {
			sawHeader = true
			continue
		}
		if len(fields) == 0 {
			continue
		}
		from, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, errs.Decode("codec.parse_tour", "line %d: invalid point index %q", line, fields[0])
		}
		edge := TourEdge{From: from, To: -1}
		if len(fields) > 1 {
			if to, err := strconv.Atoi(fields[1]); err == nil {
				edge.To = to
			}
		}
		edges = append(edges, edge)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.E(errs.KindIO, "codec.parse_tour", err)
	}
	if !sawHeader {
		return nil, errs.Decode("codec.parse_tour", "tour file is empty")
	}
	if len(edges) == 0 {
		return nil, errs.Decode("codec.parse_tour", "tour file has a header but no edges")
	}
	return edges, nil
}

// BuildTour maps edges back onto set in file order and closes the cycle by
// repeating the first point. It does not check that the edges form a
// Hamiltonian cycle.
func BuildTour(edges []TourEdge, set geometry.PointSet) (geometry.Tour, error) {
	if len(edges) == 0 {
		return nil, errs.Decode("codec.build_tour", "no edges to build a tour from")
	}
	tour := make(geometry.Tour, 0, len(edges)+1)
	for i, e := range edges {
		if e.From < 0 || e.From >= set.Len() {
			return nil, errs.Decode("codec.build_tour", "edge %d references point %d, point set has %d points", i, e.From, set.Len())
		}
		tour = append(tour, set.At(e.From))
	}
	return append(tour, tour[0]), nil
}

// DecodeTour parses a tour stream and reconstructs the closed tour over set
func DecodeTour(r io.Reader, set geometry.PointSet) (geometry.Tour, error) {
	edges, err := ParseTourEdges(r)
	if err != nil {
		return nil, err
	}
	return BuildTour(edges, set)
}

// ReadTourFile decodes the tour file at path
func ReadTourFile(path string, set geometry.PointSet) (geometry.Tour, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Decode("codec.read_tour", "tour file %s does not exist", path)
		}
		return nil, errs.E(errs.KindIO, "codec.read_tour", fmt.Errorf("failed to open tour file: %w", err))
	}
	defer f.Close()
	return DecodeTour(f, set)
}
