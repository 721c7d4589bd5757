package stitch

import (
	"errors"
	"fmt"
	"os"

	"github.com/gwlsn/stitchray/internal/logger"
	"github.com/gwlsn/stitchray/internal/media"
)

// lifecycle owns everything a run has to give back: opened sources and the
// working directory remote downloads land in.
type lifecycle struct {
	sources  []media.Source
	tempDir  string
	released bool
}

func (l *lifecycle) track(src media.Source) {
	l.sources = append(l.sources, src)
}

// release closes sources newest first, then removes the working directory.
// Only the first call does anything.
func (l *lifecycle) release() error {
	if l.released {
		return nil
	}
	l.released = true

	var errs []error
	for i := len(l.sources) - 1; i >= 0; i-- {
		src := l.sources[i]
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", src.Path(), err))
		}
	}
	l.sources = nil

	if l.tempDir != "" {
		if err := os.RemoveAll(l.tempDir); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", l.tempDir, err))
		} else {
			logger.Debug("Removed working directory", "path", l.tempDir)
		}
	}

	return errors.Join(errs...)
}
