package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult contains metadata about a video file
type ProbeResult struct {
	Path       string        `json:"path"`
	Size       int64         `json:"size"`
	Duration   time.Duration `json:"duration"`
	Format     string        `json:"format"`
	VideoCodec string        `json:"video_codec"`
	AudioCodec string        `json:"audio_codec"` // empty when the file has no audio
	Width      int           `json:"width"`       // display width, after rotation
	Height     int           `json:"height"`      // display height, after rotation
	Rotation   int           `json:"rotation"`    // degrees, normalized to 0, 90, 180 or 270
	Bitrate    int64         `json:"bitrate"`     // bits per second
	FrameRate  float64       `json:"frame_rate"`
}

// HasAudio reports whether the file has at least one audio stream.
func (r *ProbeResult) HasAudio() bool {
	return r.AudioCodec != ""
}

// ffprobeOutput represents the JSON output from ffprobe
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	Index        int               `json:"index"`
	CodecType    string            `json:"codec_type"`
	CodecName    string            `json:"codec_name"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	RFrameRate   string            `json:"r_frame_rate"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	Duration     string            `json:"duration"`
	Tags         map[string]string `json:"tags"`
	SideDataList []ffprobeSideData `json:"side_data_list"`
}

type ffprobeSideData struct {
	SideDataType string  `json:"side_data_type"`
	Rotation     float64 `json:"rotation"`
}

// Prober wraps ffprobe functionality
type Prober struct {
	ffprobePath string
}

// NewProber creates a new Prober with the given ffprobe path
func NewProber(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

// Probe returns metadata about a video file
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("ffprobe failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeOutput(path, output)
}

func parseProbeOutput(path string, output []byte) (*ProbeResult, error) {
	var probeOutput ffprobeOutput
	if err := json.Unmarshal(output, &probeOutput); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	result := &ProbeResult{
		Path:   path,
		Format: probeOutput.Format.FormatName,
	}

	if probeOutput.Format.Size != "" {
		result.Size, _ = strconv.ParseInt(probeOutput.Format.Size, 10, 64)
	}
	if probeOutput.Format.BitRate != "" {
		result.Bitrate, _ = strconv.ParseInt(probeOutput.Format.BitRate, 10, 64)
	}
	result.Duration = parseSeconds(probeOutput.Format.Duration)

	for i := range probeOutput.Streams {
		stream := &probeOutput.Streams[i]
		switch stream.CodecType {
		case "video":
			if result.VideoCodec == "" { // Take first video stream
				result.VideoCodec = stream.CodecName
				result.Width = stream.Width
				result.Height = stream.Height
				result.FrameRate = parseFrameRate(stream.RFrameRate)
				if result.FrameRate == 0 {
					result.FrameRate = parseFrameRate(stream.AvgFrameRate)
				}
				result.Rotation = streamRotation(stream)
				// ffmpeg autorotates on decode, so quarter turns swap the
				// dimensions the filters will see.
				if result.Rotation == 90 || result.Rotation == 270 {
					result.Width, result.Height = result.Height, result.Width
				}
				// Some containers only report duration per stream
				if result.Duration == 0 {
					result.Duration = parseSeconds(stream.Duration)
				}
			}
		case "audio":
			if result.AudioCodec == "" { // Take first audio stream
				result.AudioCodec = stream.CodecName
			}
		}
	}

	return result, nil
}

func parseSeconds(s string) time.Duration {
	if s == "" || s == "N/A" {
		return 0
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}

// streamRotation returns the display rotation of a video stream in degrees,
// normalized to [0, 360). Newer ffprobe reports it as side data, older
// versions as a "rotate" tag.
func streamRotation(stream *ffprobeStream) int {
	var deg float64
	found := false
	for _, sd := range stream.SideDataList {
		if sd.SideDataType == "Display Matrix" {
			deg = sd.Rotation
			found = true
			break
		}
	}
	if !found {
		if tag, ok := stream.Tags["rotate"]; ok {
			deg, _ = strconv.ParseFloat(tag, 64)
		}
	}

	r := int(math.Round(deg)) % 360
	if r < 0 {
		r += 360
	}
	return r
}

// parseFrameRate parses a frame rate string like "30000/1001" or "30/1"
func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den == 0 {
		return 0
	}
	return num / den
}
