package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/gwlsn/stitchray/internal/logger"
	"github.com/gwlsn/stitchray/internal/media"
)

// Progress represents the current encoding progress
type Progress struct {
	Frame   int64         `json:"frame"`
	FPS     float64       `json:"fps"`
	Size    int64         `json:"size"`    // Current output size in bytes
	Time    time.Duration `json:"time"`    // Current position in the output
	Bitrate float64       `json:"bitrate"` // Current bitrate in kbits/s
	Speed   float64       `json:"speed"`   // Encoding speed (1.0 = realtime)
	Percent float64       `json:"percent"` // Progress percentage (0-100)
	ETA     time.Duration `json:"eta"`     // Estimated time remaining
	Done    bool          `json:"done"`
}

// RenderError represents an encode failure with the ffmpeg output that explains it
type RenderError struct {
	Err    error
	Stderr string // Last lines of stderr
	Frames int64  // Frames written before failure
}

func (e *RenderError) Error() string {
	if e.Stderr == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Stderr)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Encode renders clip (a timeline or a single segment) to outputPath.
func (e *Engine) Encode(ctx context.Context, clip media.Clip, outputPath string, params media.RenderParams) error {
	var tl *timeline
	switch c := clip.(type) {
	case *timeline:
		tl = c
	case *segment:
		tl = &timeline{segments: []*segment{c}}
	default:
		return fmt.Errorf("encode: %w", ErrForeignClip)
	}
	if len(tl.segments) == 0 {
		return ErrEmptyTimeline
	}
	for _, seg := range tl.segments {
		if seg.src.closed {
			return fmt.Errorf("encode: %w: %s", ErrSourceClosed, seg.src.Path())
		}
	}

	args := buildEncodeArgs(tl, outputPath, params)
	logger.Debug("FFmpeg command", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	total := time.Duration(tl.Duration() * float64(time.Second))
	lastFrame := readProgress(stdout, total, startTime, e.OnProgress)

	if err := cmd.Wait(); err != nil {
		// Clean up partial output file
		os.Remove(outputPath)
		stderrTail := lastLines(stderr.String(), 5)
		logger.Error("FFmpeg failed", "error", err, "stderr", stderrTail)
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return &RenderError{
			Err:    fmt.Errorf("ffmpeg failed: %w", err),
			Stderr: stderrTail,
			Frames: lastFrame,
		}
	}

	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("ffmpeg reported success but output is missing: %w", err)
	}
	return nil
}

// buildEncodeArgs assembles the full ffmpeg command line after the binary name.
// Structure: ffmpeg [inputs] -filter_complex graph -map ... [outputArgs] output
func buildEncodeArgs(tl *timeline, outputPath string, params media.RenderParams) []string {
	graph, withAudio := buildFilterGraph(tl, params.FPS)

	args := []string{"-hide_banner", "-y"}
	args = append(args, inputArgs(tl)...)
	args = append(args, "-filter_complex", graph, "-map", "[outv]")
	if withAudio {
		args = append(args, "-map", "[outa]")
	}
	args = append(args, BuildOutputArgs(params, withAudio)...)
	args = append(args,
		"-progress", "pipe:1", // Output progress to stdout
		"-nostats",            // Disable default stats output
		outputPath,
	)
	return args
}

// readProgress consumes ffmpeg's -progress output until EOF, calling report
// at the end of each block. It returns the last frame count seen.
func readProgress(r io.Reader, total time.Duration, startTime time.Time, report func(Progress)) int64 {
	scanner := bufio.NewScanner(r)
	var current Progress

	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		if !applyProgressField(&current, key, value) {
			continue
		}

		// End of a progress block
		current.Percent, current.ETA = estimate(current, total, startTime)
		logger.Debug("FFmpeg progress",
			"frame", current.Frame,
			"time_us", current.Time.Microseconds(),
			"speed", current.Speed,
			"percent", current.Percent)
		if report != nil {
			report(current)
		}
	}
	return current.Frame
}

// applyProgressField stores one key=value pair and returns true when the
// pair closes a progress block.
func applyProgressField(p *Progress, key, value string) bool {
	switch key {
	case "frame":
		p.Frame, _ = strconv.ParseInt(value, 10, 64)
	case "fps":
		p.FPS, _ = strconv.ParseFloat(value, 64)
	case "total_size":
		p.Size, _ = strconv.ParseInt(value, 10, 64)
	case "out_time_us":
		if value != "N/A" {
			us, _ := strconv.ParseInt(value, 10, 64)
			p.Time = time.Duration(us) * time.Microsecond
		}
	case "bitrate":
		// Format: "1234.5kbits/s" or "N/A"
		if value != "N/A" {
			p.Bitrate, _ = strconv.ParseFloat(strings.TrimSuffix(value, "kbits/s"), 64)
		}
	case "speed":
		// Format: "1.5x" or "N/A"
		if value != "N/A" {
			p.Speed, _ = strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(value, "x")), 64)
		}
	case "progress":
		// "continue" or "end"
		p.Done = value == "end"
		return value == "continue" || value == "end"
	}
	return false
}

// estimate returns percent complete and time remaining.
func estimate(p Progress, total time.Duration, startTime time.Time) (float64, time.Duration) {
	if p.Done {
		return 100, 0
	}
	if total <= 0 || p.Time <= 0 {
		return 0, 0
	}

	percent := float64(p.Time) / float64(total) * 100
	if percent > 100 {
		percent = 100
	}

	var eta time.Duration
	remaining := total - p.Time
	if remaining < 0 {
		remaining = 0
	}
	if p.Speed > 0 {
		eta = time.Duration(float64(remaining) / p.Speed)
	} else if elapsed := time.Since(startTime); elapsed > 0 {
		eta = time.Duration(float64(elapsed) * float64(remaining) / float64(p.Time))
	}
	return percent, eta
}

// lastLines returns the last n non-empty lines from output joined with " | ".
func lastLines(output string, n int) string {
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
