// Package ytdlp drives the yt-dlp executable to check and fetch remote videos.
package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/gwlsn/stitchray/internal/logger"
)

// Error is a failed yt-dlp invocation with the tail of its stderr.
type Error struct {
	Err    error
	Stderr string
}

func (e *Error) Error() string {
	if e.Stderr == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Stderr)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Downloader wraps yt-dlp
type Downloader struct {
	path   string
	format string
}

// New creates a Downloader using the yt-dlp binary at path and the given
// format selector.
func New(path, format string) *Downloader {
	return &Downloader{path: path, format: format}
}

// Available returns an error if the yt-dlp binary cannot be found.
func Available(path string) error {
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("yt-dlp not found (%s): %w", path, err)
	}
	return nil
}

// validateArgs resolves the URL and its formats without downloading media.
func (d *Downloader) validateArgs(url string) []string {
	return []string{
		"--simulate",
		"--quiet",
		"--no-warnings",
		"--no-playlist",
		url,
	}
}

func (d *Downloader) fetchArgs(url, dest string) []string {
	args := []string{}
	if d.format != "" {
		args = append(args, "-f", d.format)
	}
	args = append(args,
		"-o", dest,
		"--merge-output-format", "mp4",
		"--no-playlist",
		"--no-part",
		"--quiet",
		"--no-warnings",
		url,
	)
	return args
}

// Validate reports whether url resolves to something yt-dlp can download.
// Any failure, including a missing binary, counts as invalid.
func (d *Downloader) Validate(ctx context.Context, url string) bool {
	cmd := exec.CommandContext(ctx, d.path, d.validateArgs(url)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logger.Debug("yt-dlp dry run failed", "url", url, "error", err, "stderr", tail(stderr.String(), 3))
		return false
	}
	return true
}

// Fetch downloads url to dest.
func (d *Downloader) Fetch(ctx context.Context, url, dest string) error {
	args := d.fetchArgs(url, dest)
	logger.Debug("yt-dlp command", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, d.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Leave nothing half-written behind for the caller to trip over.
		os.Remove(dest)
		return &Error{
			Err:    fmt.Errorf("yt-dlp failed: %w", err),
			Stderr: tail(stderr.String(), 5),
		}
	}
	return nil
}

// tail returns the last n non-empty lines of output joined with " | ".
func tail(output string, n int) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return ""
	}
	lines := strings.Split(output, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
