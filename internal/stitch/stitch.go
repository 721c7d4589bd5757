// Package stitch cuts snippets out of source videos and joins them into one
// rendered output.
package stitch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gwlsn/stitchray/internal/config"
	"github.com/gwlsn/stitchray/internal/logger"
	"github.com/gwlsn/stitchray/internal/media"
	"github.com/gwlsn/stitchray/internal/source"
)

// Stitcher runs stitching jobs.
type Stitcher struct {
	engine     media.Engine
	downloader source.Downloader
	tempRoot   string
}

// New creates a Stitcher. downloader may be nil for jobs with only local
// sources. Working directories are created under tempRoot, or the system
// temp directory when it is empty.
func New(engine media.Engine, downloader source.Downloader, tempRoot string) *Stitcher {
	return &Stitcher{
		engine:     engine,
		downloader: downloader,
		tempRoot:   tempRoot,
	}
}

// ClipInfo describes one processed snippet.
type ClipInfo struct {
	Task     int
	Snippet  int
	Duration float64
	HasAudio bool
	Effects  []media.EffectKind
}

// Result summarizes a finished run.
type Result struct {
	OutputPath string
	Clips      []ClipInfo
	Duration   float64 // seconds of output
	Elapsed    time.Duration
}

// Validate checks every source of job and returns a *ValidationError listing
// all of the unusable ones, or nil. Cancellation is returned as ctx.Err(),
// never as invalid sources.
func (s *Stitcher) Validate(ctx context.Context, job *config.Job) error {
	locations := make([]string, len(job.VideoTasks))
	for i, task := range job.VideoTasks {
		locations[i] = task.Location
	}

	result, err := source.NewValidator(s.downloader).Validate(ctx, locations)
	if err != nil {
		return fmt.Errorf("validate sources: %w", err)
	}
	if !result.OK() {
		for _, bad := range result.Invalid {
			logger.Warn("Invalid source", "index", bad.Index, "location", bad.Location, "kind", bad.Kind)
		}
		return &ValidationError{Result: result}
	}
	return nil
}

// Run validates job and, if every source is usable, renders it to
// job.OutputFile. Opened sources and the working directory are released
// before Run returns, whatever the outcome.
func (s *Stitcher) Run(ctx context.Context, job *config.Job) (*Result, error) {
	startTime := time.Now()

	if err := s.Validate(ctx, job); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(s.tempRoot, "stitchray-*")
	if err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}
	lc := &lifecycle{tempDir: dir}
	defer func() {
		if err := lc.release(); err != nil {
			logger.Warn("Cleanup incomplete", "error", err)
		}
	}()
	logger.Debug("Created working directory", "path", dir)

	acquirer := source.NewAcquirer(s.downloader, dir)
	result := &Result{OutputPath: job.OutputFile}
	var clips []media.Clip

	for i, task := range job.VideoTasks {
		logger.Info("Processing task", "index", i, "location", task.Location, "snippets", len(task.Snippets))

		path, err := acquirer.Acquire(ctx, i, task.Location)
		if err != nil {
			return nil, acquisitionError(i, task.Location, err)
		}

		src, err := s.engine.Open(ctx, path)
		if err != nil {
			return nil, acquisitionError(i, task.Location, err)
		}
		lc.track(src)

		for k := range task.Snippets {
			clip, applied, err := extract(ctx, s.engine, src, job, i, k)
			if err != nil {
				return nil, err
			}
			logger.Debug("Extracted snippet", "task", i, "snippet", k, "duration", clip.Duration(), "effects", applied)

			clips = append(clips, clip)
			result.Clips = append(result.Clips, ClipInfo{
				Task:     i,
				Snippet:  k,
				Duration: clip.Duration(),
				HasAudio: clip.HasAudio(),
				Effects:  applied,
			})
		}
	}

	timeline, err := s.engine.Concatenate(clips)
	if err != nil {
		return nil, renderError("concatenate", err)
	}
	result.Duration = timeline.Duration()

	params := media.NewRenderParams(job.OutputFPS, job.VideoBitrate, job.EncodingPreset, job.ThreadCount)
	logger.Info("Rendering output",
		"path", job.OutputFile,
		"clips", len(clips),
		"duration", result.Duration,
		"fps", params.FPS,
		"preset", params.Preset,
		"bitrate", params.Bitrate,
		"threads", params.Threads)

	if err := s.engine.Encode(ctx, timeline, job.OutputFile, params); err != nil {
		return nil, renderError("encode "+job.OutputFile, err)
	}

	result.Elapsed = time.Since(startTime)
	logger.Info("Render complete", "path", job.OutputFile, "elapsed", result.Elapsed.Round(time.Millisecond).String())
	return result, nil
}
