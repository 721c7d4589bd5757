package stitch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gwlsn/stitchray/internal/source"
	"github.com/gwlsn/stitchray/internal/timespec"
)

// Sentinel errors for a stitching run.
// These can be checked with errors.Is(). Every one of them ends the run.
var (
	ErrMalformedTimeSpec = timespec.ErrMalformed
	ErrSourceInvalid     = errors.New("invalid sources")
	ErrAcquisitionFailed = errors.New("acquisition failed")
	ErrSnippetOutOfRange = errors.New("snippet out of range")
	ErrRenderFailed      = errors.New("render failed")
)

// ValidationError reports every source that failed validation.
type ValidationError struct {
	Result source.ValidationResult
}

func (e *ValidationError) Error() string {
	lines := make([]string, 0, len(e.Result.Invalid))
	for _, s := range e.Result.Invalid {
		lines = append(lines, s.String())
	}
	return fmt.Sprintf("%s (%d): %s", ErrSourceInvalid, len(lines), strings.Join(lines, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrSourceInvalid
}

// acquisitionError wraps a download or open failure for task index.
func acquisitionError(index int, location string, err error) error {
	return fmt.Errorf("%w: task %d (%s): %w", ErrAcquisitionFailed, index, location, err)
}

// rangeError reports a snippet that does not fit inside its source.
func rangeError(task, snippet int, start, end, duration float64) error {
	return fmt.Errorf("%w: task %d snippet %d: %.3fs-%.3fs, source is %.3fs long",
		ErrSnippetOutOfRange, task, snippet, start, end, duration)
}

// renderError wraps an engine failure while building or encoding the timeline.
func renderError(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRenderFailed, stage, err)
}
