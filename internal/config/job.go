package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gwlsn/stitchray/internal/timespec"
)

// ErrInvalidJob is returned when a job file is structurally invalid.
var ErrInvalidJob = errors.New("invalid job")

// Job defaults
const (
	DefaultOutputFile     = "final_video.mp4"
	DefaultNormalizeAudio = true
	DefaultOutputFPS      = 30
	DefaultEncodingPreset = "medium"
	DefaultVideoBitrate   = "5000k"
	DefaultThreadCount    = 4
)

// EncodingPresets lists the accepted x264 presets, fastest first.
var EncodingPresets = []string{
	"ultrafast", "superfast", "veryfast", "faster", "fast",
	"medium", "slow", "slower", "veryslow",
}

var bitratePattern = regexp.MustCompile(`^[0-9]+[kKmM]?$`)

// Job is a fully resolved stitching job. Every optional field already holds
// its default.
type Job struct {
	OutputFile     string
	NormalizeAudio bool
	OutputFPS      float64
	OutputHeight   int // 0 = keep source resolution
	EncodingPreset string
	VideoBitrate   string
	ThreadCount    int // 0 = let the encoder decide
	VideoTasks     []VideoTask
}

// VideoTask is one source video and the snippets to cut from it, in order.
type VideoTask struct {
	Location string    `yaml:"location"`
	Snippets []Snippet `yaml:"snippets"`
}

// Snippet is a time range of a source with optional fades (seconds).
type Snippet struct {
	Start   timespec.Value `yaml:"start"`
	End     timespec.Value `yaml:"end"`
	FadeIn  float64        `yaml:"fade_in"`
	FadeOut float64        `yaml:"fade_out"`
}

// jobFile mirrors the YAML document. Pointers separate "absent" from an
// explicit zero so defaults only fill in what the user left out.
type jobFile struct {
	OutputFile     *string     `yaml:"output_file"`
	NormalizeAudio *bool       `yaml:"normalize_audio"`
	OutputFPS      *float64    `yaml:"output_fps"`
	OutputHeight   *int        `yaml:"output_height"`
	EncodingPreset *string     `yaml:"encoding_preset"`
	VideoBitrate   *string     `yaml:"video_bitrate"`
	ThreadCount    *int        `yaml:"thread_count"`
	VideoTasks     []VideoTask `yaml:"video_tasks"`
}

// LoadJob reads and validates a job file.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	return ParseJob(data)
}

// ParseJob decodes a YAML job document, resolves defaults and validates it.
// Every time value is parsed here so a malformed one stops the run before
// any source is touched.
func ParseJob(data []byte) (*Job, error) {
	var raw jobFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		if errors.Is(err, timespec.ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	job, err := raw.resolve()
	if err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

func (f *jobFile) resolve() (*Job, error) {
	job := &Job{
		OutputFile:     DefaultOutputFile,
		NormalizeAudio: DefaultNormalizeAudio,
		OutputFPS:      DefaultOutputFPS,
		EncodingPreset: DefaultEncodingPreset,
		VideoBitrate:   DefaultVideoBitrate,
		ThreadCount:    DefaultThreadCount,
		VideoTasks:     f.VideoTasks,
	}
	if f.OutputFile != nil && strings.TrimSpace(*f.OutputFile) != "" {
		job.OutputFile = strings.TrimSpace(*f.OutputFile)
	}
	if f.NormalizeAudio != nil {
		job.NormalizeAudio = *f.NormalizeAudio
	}
	if f.OutputFPS != nil {
		job.OutputFPS = *f.OutputFPS
	}
	if f.OutputHeight != nil {
		if *f.OutputHeight <= 0 {
			return nil, invalid("output_height must be a positive number of pixels, got %d", *f.OutputHeight)
		}
		job.OutputHeight = *f.OutputHeight
	}
	if f.EncodingPreset != nil && *f.EncodingPreset != "" {
		job.EncodingPreset = strings.ToLower(strings.TrimSpace(*f.EncodingPreset))
	}
	if f.VideoBitrate != nil && *f.VideoBitrate != "" {
		job.VideoBitrate = strings.TrimSpace(*f.VideoBitrate)
	}
	if f.ThreadCount != nil {
		job.ThreadCount = *f.ThreadCount
	}
	return job, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidJob, fmt.Sprintf(format, args...))
}

// Validate checks the job's structure. Source reachability and snippet ranges
// against the source duration are checked later, by the pipeline.
func (j *Job) Validate() error {
	if j.OutputFPS <= 0 {
		return invalid("output_fps must be positive, got %v", j.OutputFPS)
	}
	if j.OutputHeight < 0 {
		return invalid("output_height must be a positive number of pixels")
	}
	if !IsValidPreset(j.EncodingPreset) {
		return invalid("unknown encoding_preset %q (valid: %s)", j.EncodingPreset, strings.Join(EncodingPresets, ", "))
	}
	if !bitratePattern.MatchString(j.VideoBitrate) {
		return invalid("video_bitrate %q must look like 5000k", j.VideoBitrate)
	}
	if j.ThreadCount < 0 {
		return invalid("thread_count must not be negative, got %d", j.ThreadCount)
	}
	if len(j.VideoTasks) == 0 {
		return invalid("video_tasks is empty")
	}

	for i, task := range j.VideoTasks {
		if strings.TrimSpace(task.Location) == "" {
			return invalid("video_tasks[%d]: location is required", i)
		}
		if len(task.Snippets) == 0 {
			return invalid("video_tasks[%d] (%s): no snippets", i, task.Location)
		}
		for k, s := range task.Snippets {
			if _, err := s.Start.Seconds(); err != nil {
				return fmt.Errorf("video_tasks[%d].snippets[%d].start: %w", i, k, err)
			}
			if _, err := s.End.Seconds(); err != nil {
				return fmt.Errorf("video_tasks[%d].snippets[%d].end: %w", i, k, err)
			}
			if s.FadeIn < 0 || s.FadeOut < 0 {
				return invalid("video_tasks[%d].snippets[%d]: fades must not be negative", i, k)
			}
		}
	}
	return nil
}

// SnippetCount returns the number of snippets across all tasks.
func (j *Job) SnippetCount() int {
	n := 0
	for _, task := range j.VideoTasks {
		n += len(task.Snippets)
	}
	return n
}

// IsValidPreset returns true if preset is a known x264 preset.
func IsValidPreset(preset string) bool {
	for _, valid := range EncodingPresets {
		if preset == valid {
			return true
		}
	}
	return false
}
