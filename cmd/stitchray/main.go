package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	stitchray "github.com/gwlsn/stitchray"
	"github.com/gwlsn/stitchray/internal/config"
	"github.com/gwlsn/stitchray/internal/ffmpeg"
	"github.com/gwlsn/stitchray/internal/jobs"
	"github.com/gwlsn/stitchray/internal/logger"
	"github.com/gwlsn/stitchray/internal/source"
	"github.com/gwlsn/stitchray/internal/stitch"
	"github.com/gwlsn/stitchray/internal/store"
	"github.com/gwlsn/stitchray/internal/ytdlp"
)

// progressInterval throttles encode progress logging.
const progressInterval = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to tool config file (default: ./config/stitchray.yaml)")
	envFile := flag.String("env", ".env", "Path to .env file with tool overrides")
	showHistory := flag.Bool("history", false, "List recent runs and exit")
	historyLimit := flag.Int("limit", 20, "Number of runs listed by -history")
	showRunID := flag.String("show", "", "Show one run from the history by ID or ID prefix and exit")
	dryRun := flag.Bool("dry-run", false, "Validate the job and its sources without rendering")
	writeConfig := flag.Bool("write-config", false, "Write the effective tool config to the -config path and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <job.yaml>\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	// Determine config path
	cfgPath := *configPath
	if cfgPath == "" {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			cfgPath = envPath
		} else {
			cfgPath = "config/stitchray.yaml"
		}
	}

	// Load config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		// Initialize logger with default level for this warning
		logger.Init("info")
		logger.Warn("Could not load config", "path", cfgPath, "error", err)
		cfg = config.DefaultConfig()
	}
	if err := cfg.ApplyEnv(*envFile); err != nil {
		logger.Init("info")
		logger.Warn("Could not load env file", "path", *envFile, "error", err)
	}

	// Initialize logger with configured level
	logger.Init(cfg.LogLevel)

	if *writeConfig {
		if err := cfg.Save(cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "  Could not write config: %v\n", err)
			return 1
		}
		fmt.Printf("  Wrote %s\n", cfgPath)
		return 0
	}

	if *showHistory {
		return listHistory(cfg, *historyLimit)
	}
	if *showRunID != "" {
		return showRun(cfg, *showRunID)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		return 1
	}
	jobPath := flag.Arg(0)

	job, err := config.LoadJob(jobPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  Invalid job file %s: %v\n", jobPath, err)
		return 1
	}

	printBanner(cfg, cfgPath, jobPath, job)

	// Preflight: the external programs this job needs
	if err := ffmpeg.Available(cfg.FFmpegPath, cfg.FFprobePath); err != nil {
		fmt.Fprintf(os.Stderr, "  %v\n", err)
		return 1
	}
	var downloader source.Downloader
	if hasRemote(job) {
		if err := ytdlp.Available(cfg.YtDlpPath); err != nil {
			fmt.Fprintf(os.Stderr, "  Job has remote sources: %v\n", err)
			return 1
		}
		downloader = ytdlp.New(cfg.YtDlpPath, cfg.DownloadFormat)
	}

	engine := ffmpeg.NewEngine(cfg.FFmpegPath, cfg.FFprobePath)
	engine.OnProgress = progressLogger()

	// Cancel on Ctrl+C; the pipeline still releases everything it opened
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stitcher := stitch.New(engine, downloader, cfg.TempPath)

	fmt.Println("─────────────────────────────────────────────────────────────")
	fmt.Printf("  Logging started (level: %s)\n", cfg.LogLevel)
	fmt.Println("─────────────────────────────────────────────────────────────")
	logger.Info("Stitchray started", "version", stitchray.Version, "job", jobPath, "dry_run", *dryRun)

	if *dryRun {
		if err := stitcher.Validate(ctx, job); err != nil {
			reportFailure(err)
			return 1
		}
		fmt.Println()
		fmt.Println("  All sources are valid.")
		return 0
	}

	history, closeHistory := openHistory(cfg)
	defer closeHistory()

	absJob := absPath(jobPath)
	absOut := absPath(job.OutputFile)
	record := history.Start(absJob, absOut, len(job.VideoTasks), job.SnippetCount())

	result, err := stitcher.Run(ctx, job)
	if err != nil {
		history.Finish(record, 0, 0, err)
		reportFailure(err)
		return 1
	}

	var size int64
	if info, err := os.Stat(job.OutputFile); err == nil {
		size = info.Size()
	}
	history.Finish(record, size, result.Duration, nil)

	fmt.Println()
	fmt.Printf("  Output:       %s\n", absOut)
	fmt.Printf("  Clips:        %d\n", len(result.Clips))
	fmt.Printf("  Length:       %s\n", time.Duration(result.Duration*float64(time.Second)).Round(time.Millisecond))
	fmt.Printf("  Size:         %s\n", humanize.Bytes(uint64(size)))
	fmt.Printf("  Took:         %s\n", result.Elapsed.Round(time.Second))
	return 0
}

func printBanner(cfg *config.Config, cfgPath, jobPath string, job *config.Job) {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                         STITCHRAY                         ║")
	fmt.Println("║           Cut, join and render video snippets             ║")
	versionLine := fmt.Sprintf("v%s", stitchray.Version)
	padding := 59 - len(versionLine)
	fmt.Printf("║%*s%s%*s║\n", padding/2, "", versionLine, (padding+1)/2, "")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Job:          %s\n", jobPath)
	fmt.Printf("  Config:       %s\n", cfgPath)
	fmt.Printf("  Output:       %s\n", job.OutputFile)
	fmt.Printf("  Sources:      %d (%d snippets)\n", len(job.VideoTasks), job.SnippetCount())
	height := "source"
	if job.OutputHeight > 0 {
		height = fmt.Sprintf("%dp", job.OutputHeight)
	}
	fmt.Printf("  Video:        %s @ %g fps, %s, preset %s\n", height, job.OutputFPS, job.VideoBitrate, job.EncodingPreset)
	threads := "auto"
	if job.ThreadCount > 0 {
		threads = fmt.Sprint(job.ThreadCount)
	}
	fmt.Printf("  Threads:      %s\n", threads)
	fmt.Printf("  Normalize:    %t\n", job.NormalizeAudio)
	if cfg.TempPath != "" {
		fmt.Printf("  Temp path:    %s\n", cfg.TempPath)
	} else {
		fmt.Printf("  Temp path:    (system default)\n")
	}
	fmt.Printf("  FFmpeg:       %s\n", cfg.FFmpegPath)
	fmt.Printf("  FFprobe:      %s\n", cfg.FFprobePath)
	if hasRemote(job) {
		fmt.Printf("  yt-dlp:       %s\n", cfg.YtDlpPath)
	}
	fmt.Println()
}

// absPath returns the absolute form of p, or p itself if it cannot be
// resolved.
func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		logger.Debug("Could not resolve absolute path", "path", p, "error", err)
		return p
	}
	return abs
}

func hasRemote(job *config.Job) bool {
	for _, task := range job.VideoTasks {
		if source.IsRemote(task.Location) {
			return true
		}
	}
	return false
}

// progressLogger returns an encode progress callback that logs at most once
// per progressInterval, plus the final update.
func progressLogger() func(ffmpeg.Progress) {
	var last time.Time
	return func(p ffmpeg.Progress) {
		if !logger.Enabled(slog.LevelInfo) {
			return
		}
		if !p.Done && time.Since(last) < progressInterval {
			return
		}
		last = time.Now()
		logger.Info("Encoding",
			"percent", fmt.Sprintf("%.1f", p.Percent),
			"speed", fmt.Sprintf("%.2fx", p.Speed),
			"eta", p.ETA.Round(time.Second).String(),
			"size", humanize.Bytes(uint64(max(p.Size, 0))))
	}
}

// reportFailure prints a human-readable summary of why the run failed.
func reportFailure(err error) {
	fmt.Fprintln(os.Stderr)

	var verr *stitch.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintf(os.Stderr, "  %d invalid source(s), nothing was processed:\n", len(verr.Result.Invalid))
		for _, s := range verr.Result.Invalid {
			fmt.Fprintf(os.Stderr, "    - [%s] %s\n", s.Kind.Describe(), s.Location)
		}
		return
	}

	stage := "Run"
	switch {
	case errors.Is(err, context.Canceled):
		stage = "Interrupted"
	case errors.Is(err, stitch.ErrAcquisitionFailed):
		stage = "Acquisition failed"
	case errors.Is(err, stitch.ErrSnippetOutOfRange):
		stage = "Snippet out of range"
	case errors.Is(err, stitch.ErrRenderFailed):
		stage = "Render failed"
	}
	fmt.Fprintf(os.Stderr, "  %s: %v\n", stage, err)
}

// openHistory opens the run history database. History is best effort: when
// it cannot be opened the run proceeds unrecorded.
func openHistory(cfg *config.Config) (*jobs.History, func()) {
	if cfg.HistoryPath == "" {
		return jobs.NewHistory(nil), func() {}
	}

	db, err := store.NewSQLiteStore(cfg.HistoryPath)
	if err != nil {
		logger.Warn("Run history unavailable", "path", cfg.HistoryPath, "error", err)
		return jobs.NewHistory(nil), func() {}
	}
	if n, err := db.FailInterrupted(); err != nil {
		logger.Warn("Could not update interrupted runs", "error", err)
	} else if n > 0 {
		logger.Info("Marked interrupted runs as failed", "count", n)
	}
	return jobs.NewHistory(db), func() { db.Close() }
}

func listHistory(cfg *config.Config, limit int) int {
	if cfg.HistoryPath == "" {
		fmt.Fprintln(os.Stderr, "  Run history is disabled (history_path is empty)")
		return 1
	}

	db, err := store.NewSQLiteStore(cfg.HistoryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  Could not open run history: %v\n", err)
		return 1
	}
	defer db.Close()

	list, err := db.ListJobs(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  Could not read run history: %v\n", err)
		return 1
	}
	stats, err := db.Stats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "  Could not read run history: %v\n", err)
		return 1
	}

	fmt.Printf("  History:      %s\n", db.Path())
	fmt.Printf("  %d runs (%d complete, %d failed), %s written\n\n",
		stats.Total, stats.Complete, stats.Failed, humanize.Bytes(uint64(stats.TotalOutput)))
	for _, j := range list {
		fmt.Printf("  %s  %-8s  %-14s  %s\n", shortID(j.ID), j.Status, humanize.Time(j.CreatedAt), j.ConfigPath)
		switch j.Status {
		case jobs.StatusComplete:
			fmt.Printf("            -> %s (%s, %s)\n", j.OutputPath, humanize.Bytes(uint64(j.OutputSize)),
				time.Duration(j.RenderTime)*time.Second)
		case jobs.StatusFailed:
			fmt.Printf("            %s\n", firstLine(j.Error))
		}
	}
	return 0
}

func showRun(cfg *config.Config, id string) int {
	if cfg.HistoryPath == "" {
		fmt.Fprintln(os.Stderr, "  Run history is disabled (history_path is empty)")
		return 1
	}

	db, err := store.NewSQLiteStore(cfg.HistoryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  Could not open run history: %v\n", err)
		return 1
	}
	defer db.Close()

	j, err := findRun(db, id)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			fmt.Fprintf(os.Stderr, "  No run matching %q in %s\n", id, db.Path())
		} else {
			fmt.Fprintf(os.Stderr, "  Could not read run history: %v\n", err)
		}
		return 1
	}
	printRun(os.Stdout, j)
	return 0
}

// findRun looks a run up by its full ID, falling back to a unique ID prefix
// such as the short form printed by -history.
func findRun(db store.Store, id string) (*jobs.Job, error) {
	j, err := db.GetJob(id)
	if err == nil || !errors.Is(err, jobs.ErrJobNotFound) {
		return j, err
	}

	list, err := db.ListJobs(0)
	if err != nil {
		return nil, err
	}
	var match *jobs.Job
	for _, candidate := range list {
		if !strings.HasPrefix(candidate.ID, id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("ID prefix %q matches more than one run", id)
		}
		match = candidate
	}
	if match == nil {
		return nil, jobs.NotFoundError(id)
	}
	return match, nil
}

func printRun(w io.Writer, j *jobs.Job) {
	fmt.Fprintf(w, "  ID:           %s\n", j.ID)
	fmt.Fprintf(w, "  Status:       %s\n", j.Status)
	fmt.Fprintf(w, "  Job:          %s\n", j.ConfigPath)
	fmt.Fprintf(w, "  Output:       %s\n", j.OutputPath)
	fmt.Fprintf(w, "  Sources:      %d (%d snippets)\n", j.Tasks, j.Snippets)
	fmt.Fprintf(w, "  Started:      %s (%s)\n", j.CreatedAt.Local().Format(time.DateTime), humanize.Time(j.CreatedAt))
	if !j.CompletedAt.IsZero() {
		fmt.Fprintf(w, "  Finished:     %s\n", j.CompletedAt.Local().Format(time.DateTime))
		fmt.Fprintf(w, "  Took:         %s\n", time.Duration(j.RenderTime)*time.Second)
	}
	switch j.Status {
	case jobs.StatusComplete:
		fmt.Fprintf(w, "  Length:       %s\n", time.Duration(j.Duration*float64(time.Second)).Round(time.Millisecond))
		fmt.Fprintf(w, "  Size:         %s\n", humanize.Bytes(uint64(j.OutputSize)))
	case jobs.StatusFailed:
		fmt.Fprintf(w, "  Error:        %s\n", j.Error)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
