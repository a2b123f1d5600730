// Package codec reads and writes the engine's line-oriented file formats.
//
// Instance files (engine input):
//
//	<n>
//	<x1> <y1> [<z1>]
//	...
//	EOF
//
// Tour files (engine output) start with a header line followed by one record
// per traversal step whose first field is a 0-based point index.
package codec

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/bizmatters/tour-orchestrator/internal/errs"
	"github.com/bizmatters/tour-orchestrator/internal/geometry"
)

const (
	// GeneratedScale is applied to server-sampled coordinates so the engine
	// works with integer-range distances on unit-sized manifolds.
	GeneratedScale = 1000.0
	// VerbatimScale leaves caller-supplied coordinates untouched
	VerbatimScale = 1.0

	instanceTerminator = "EOF"
)

// EncodeInstance writes set to w in instance format, multiplying every
// coordinate by scale.
func EncodeInstance(w io.Writer, set geometry.PointSet, dim int, scale float64) error {
	if err := geometry.ValidateDimension(dim); err != nil {
		return err
	}
	if set.Dim() != dim {
		return errs.Validation("codec.encode_instance", "point set dimension %d does not match requested dimension %d", set.Dim(), dim)
	}

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%d\n", set.Len()); err != nil {
		return errs.E(errs.KindIO, "codec.encode_instance", err)
	}
	buf := make([]byte, 0, 64)
	for i := 0; i < set.Len(); i++ {
		buf = buf[:0]
		for j, c := range set.At(i).Coords() {
			if j > 0 {
				buf = append(buf, ' ')
			}
			buf = strconv.AppendFloat(buf, c*scale, 'f', -1, 64)
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return errs.E(errs.KindIO, "codec.encode_instance", err)
		}
	}
	if _, err := bw.WriteString(instanceTerminator + "\n"); err != nil {
		return errs.E(errs.KindIO, "codec.encode_instance", err)
	}
	if err := bw.Flush(); err != nil {
		return errs.E(errs.KindIO, "codec.encode_instance", err)
	}
	return nil
}

// WriteInstanceFile encodes set into a new file at path
func WriteInstanceFile(path string, set geometry.PointSet, dim int, scale float64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return errs.E(errs.KindIO, "codec.write_instance", fmt.Errorf("failed to create instance file: %w", err))
	}
	if err := EncodeInstance(f, set, dim, scale); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errs.E(errs.KindIO, "codec.write_instance", fmt.Errorf("failed to close instance file: %w", err))
	}
	return nil
}
