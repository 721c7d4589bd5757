package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/gwlsn/stitchray/internal/logger"
)

var maxVolumePattern = regexp.MustCompile(`max_volume:\s*(-?inf|-?[0-9]+(?:\.[0-9]+)?) dB`)

// minGainDB is the smallest boost worth adding a filter for.
const minGainDB = 0.05

// measurePeak runs ffmpeg's volumedetect over the segment's audio and
// returns the peak level in dBFS (0 or negative). Silence reports -Inf.
func (e *Engine) measurePeak(ctx context.Context, seg *segment) (float64, error) {
	args := []string{
		"-hide_banner",
		"-nostats",
		"-ss", formatSeconds(seg.start),
		"-t", formatSeconds(seg.Duration()),
		"-i", seg.src.Path(),
		"-map", "0:a:0",
		"-af", "volumedetect",
		"-f", "null",
		"-",
	}
	logger.Debug("FFmpeg loudness command", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("volume analysis failed: %w (%s)", err, lastLines(stderr.String(), 3))
	}

	peak, err := parseMaxVolume(stderr.String())
	if err != nil {
		return 0, err
	}
	logger.Debug("Measured audio peak", "path", seg.src.Path(), "start", seg.start, "max_volume_db", peak)
	return peak, nil
}

// parseMaxVolume extracts max_volume from volumedetect output.
func parseMaxVolume(output string) (float64, error) {
	m := maxVolumePattern.FindStringSubmatch(output)
	if m == nil {
		return 0, fmt.Errorf("no max_volume in volumedetect output")
	}
	return strconv.ParseFloat(m[1], 64)
}

// gainFilter returns a volume filter that lifts peakDB to 0 dBFS, or "" when
// no boost is needed. Silent audio is left alone.
func gainFilter(peakDB float64) string {
	gain := -peakDB
	if gain < minGainDB || gain > 1000 {
		return ""
	}
	return fmt.Sprintf("volume=%.2fdB", gain)
}
