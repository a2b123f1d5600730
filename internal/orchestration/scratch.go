package orchestration

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/bizmatters/tour-orchestrator/internal/errs"
)

// scratch is the instance/tour file pair owned by one run
type scratch struct {
	instance string
	tour     string
	keep     bool
}

func acquireScratch(dir string, id uuid.UUID, keep bool) (*scratch, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errs.E(errs.KindIO, "orchestration.scratch", fmt.Errorf("failed to create scratch directory: %w", err))
	}
	name := id.String()
	return &scratch{
		instance: filepath.Join(dir, name+".tsp"),
		tour:     filepath.Join(dir, name+".tour"),
		keep:     keep,
	}, nil
}

// release removes both files. Missing files are fine: the engine may have
// failed before writing its tour.
func (s *scratch) release() {
	if s.keep {
		log.Printf(`{"level":"debug","message":"keeping scratch files","instance":%q,"tour":%q}`, s.instance, s.tour)
		return
	}
	for _, path := range []string{s.instance, s.tour} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf(`{"level":"warn","message":"failed to remove scratch file","path":%q,"error":%q}`, path, err.Error())
		}
	}
}
