// Package source checks and fetches the videos a job draws from.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gwlsn/stitchray/internal/logger"
)

// Downloader resolves and fetches remote sources.
type Downloader interface {
	// Validate reports whether url resolves to a playable source without
	// transferring any media.
	Validate(ctx context.Context, url string) bool
	// Fetch downloads url to dest.
	Fetch(ctx context.Context, url, dest string) error
}

// IsRemote reports whether location should be fetched by the downloader
// rather than read from the filesystem.
func IsRemote(location string) bool {
	return strings.HasPrefix(strings.ToLower(location), "http")
}

// Kind classifies why a source failed validation.
type Kind string

const (
	KindLocalNotFound     Kind = "local-not-found"
	KindRemoteUnreachable Kind = "remote-unreachable"
)

// Describe returns a short human-readable label for the failure kind.
func (k Kind) Describe() string {
	switch k {
	case KindLocalNotFound:
		return "Local (File Not Found)"
	case KindRemoteUnreachable:
		return "Remote (Invalid/Private)"
	default:
		return string(k)
	}
}

// InvalidSource is a task location that failed validation.
type InvalidSource struct {
	Index    int    `json:"index"`
	Location string `json:"location"`
	Kind     Kind   `json:"kind"`
}

func (s InvalidSource) String() string {
	return fmt.Sprintf("%s: %s", s.Kind.Describe(), s.Location)
}

// ValidationResult lists every invalid source, in task order.
type ValidationResult struct {
	Invalid []InvalidSource `json:"invalid"`
}

// OK returns true if every source passed.
func (r ValidationResult) OK() bool {
	return len(r.Invalid) == 0
}

// Validator checks that every source of a job is reachable before any
// expensive work starts.
type Validator struct {
	downloader Downloader
}

// NewValidator creates a Validator. downloader may be nil when the job has no
// remote sources; any remote location is then reported invalid.
func NewValidator(downloader Downloader) *Validator {
	return &Validator{downloader: downloader}
}

// Validate checks all locations and returns every failure. It never stops at
// the first invalid source. If ctx is done it stops and returns ctx.Err(),
// since a cancelled dry run says nothing about the source.
func (v *Validator) Validate(ctx context.Context, locations []string) (ValidationResult, error) {
	var result ValidationResult

	for i, loc := range locations {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if IsRemote(loc) {
			logger.Info("Checking remote source", "index", i, "location", loc)
			if !v.remoteValid(ctx, loc) {
				if err := ctx.Err(); err != nil {
					return result, err
				}
				result.Invalid = append(result.Invalid, InvalidSource{Index: i, Location: loc, Kind: KindRemoteUnreachable})
			}
			continue
		}

		logger.Info("Checking local source", "index", i, "location", loc)
		if _, err := os.Stat(loc); err != nil {
			logger.Debug("Local source not usable", "location", loc, "error", err)
			result.Invalid = append(result.Invalid, InvalidSource{Index: i, Location: loc, Kind: KindLocalNotFound})
		}
	}

	return result, nil
}

// remoteValid runs the downloader's dry run. A misbehaving downloader counts
// as "invalid" and never aborts the validation loop.
func (v *Validator) remoteValid(ctx context.Context, url string) (ok bool) {
	if v.downloader == nil {
		logger.Warn("No downloader configured for remote source", "location", url)
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Downloader failed during validation", "location", url, "panic", r)
			ok = false
		}
	}()
	return v.downloader.Validate(ctx, url)
}

// RemotePath returns where the remote source of task index is stored inside
// the run's working directory.
func RemotePath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("remote_source_%d.mp4", index))
}

// Acquirer turns a task location into a local, playable path.
type Acquirer struct {
	downloader Downloader
	dir        string
}

// NewAcquirer creates an Acquirer that downloads remote sources into dir.
func NewAcquirer(downloader Downloader, dir string) *Acquirer {
	return &Acquirer{downloader: downloader, dir: dir}
}

// Acquire returns a local path for the source of task index. Local locations
// are returned unchanged; remote ones are downloaded first.
func (a *Acquirer) Acquire(ctx context.Context, index int, location string) (string, error) {
	if !IsRemote(location) {
		return location, nil
	}
	if a.downloader == nil {
		return "", fmt.Errorf("no downloader configured for %s", location)
	}

	dest := RemotePath(a.dir, index)
	logger.Info("Downloading remote source", "index", index, "location", location, "dest", dest)
	if err := a.downloader.Fetch(ctx, location, dest); err != nil {
		return "", fmt.Errorf("download %s: %w", location, err)
	}
	if _, err := os.Stat(dest); err != nil {
		return "", fmt.Errorf("download %s: no file at %s after fetch: %w", location, dest, err)
	}
	return dest, nil
}
