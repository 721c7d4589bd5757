package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"

	"github.com/gwlsn/stitchray/internal/logger"
	"github.com/gwlsn/stitchray/internal/media"
)

// Sentinel errors for clip operations.
var (
	ErrSourceClosed  = errors.New("source is closed")
	ErrForeignClip   = errors.New("clip was not created by this engine")
	ErrRangeInvalid  = errors.New("range outside source")
	ErrEmptyTimeline = errors.New("timeline has no clips")
)

// rangeTolerance absorbs float noise between probed and requested end times.
const rangeTolerance = 0.001

// Engine implements media.Engine on top of the ffmpeg and ffprobe binaries.
// Clips are lazy: Subrange and Apply only record what to do, and the whole
// timeline is rendered by a single ffmpeg invocation in Encode. The one
// exception is audio normalization, which has to measure the clip first.
type Engine struct {
	ffmpegPath string
	prober     *Prober

	// OnProgress, if set, receives encode progress updates.
	OnProgress func(Progress)
}

var _ media.Engine = (*Engine)(nil)

// NewEngine creates an Engine using the given ffmpeg and ffprobe binaries.
func NewEngine(ffmpegPath, ffprobePath string) *Engine {
	return &Engine{
		ffmpegPath: ffmpegPath,
		prober:     NewProber(ffprobePath),
	}
}

// Available returns an error if either binary cannot be found.
func Available(ffmpegPath, ffprobePath string) error {
	if _, err := exec.LookPath(ffmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found (%s): %w", ffmpegPath, err)
	}
	if _, err := exec.LookPath(ffprobePath); err != nil {
		return fmt.Errorf("ffprobe not found (%s): %w", ffprobePath, err)
	}
	return nil
}

// sourceFile is an opened, probed media file.
type sourceFile struct {
	probe  *ProbeResult
	closed bool
}

func (s *sourceFile) Duration() float64 { return s.probe.Duration.Seconds() }
func (s *sourceFile) HasAudio() bool    { return s.probe.HasAudio() }
func (s *sourceFile) Path() string      { return s.probe.Path }

// Close marks the source as released. Closing twice is an error so that
// lifecycle bugs surface instead of passing silently.
func (s *sourceFile) Close() error {
	if s.closed {
		return fmt.Errorf("%w: %s", ErrSourceClosed, s.probe.Path)
	}
	s.closed = true
	return nil
}

// segment is a time range of a source plus the filters to run over it.
type segment struct {
	src          *sourceFile
	start, end   float64
	width        int
	height       int
	videoFilters []string
	audioFilters []string
}

func (s *segment) Duration() float64 { return s.end - s.start }
func (s *segment) HasAudio() bool    { return s.src.HasAudio() }

func (s *segment) clone() *segment {
	c := *s
	c.videoFilters = append([]string(nil), s.videoFilters...)
	c.audioFilters = append([]string(nil), s.audioFilters...)
	return &c
}

// timeline is an ordered list of segments to be rendered back to back.
type timeline struct {
	segments []*segment
}

func (t *timeline) Duration() float64 {
	total := 0.0
	for _, s := range t.segments {
		total += s.Duration()
	}
	return total
}

func (t *timeline) HasAudio() bool {
	for _, s := range t.segments {
		if s.HasAudio() {
			return true
		}
	}
	return false
}

// canvas returns the largest width and height among the segments.
func (t *timeline) canvas() (int, int) {
	w, h := 0, 0
	for _, s := range t.segments {
		w = max(w, s.width)
		h = max(h, s.height)
	}
	return w, h
}

// Open probes path and returns a handle to it.
func (e *Engine) Open(ctx context.Context, path string) (media.Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	probe, err := e.prober.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if probe.VideoCodec == "" {
		return nil, fmt.Errorf("open %s: no video stream", path)
	}
	if probe.Duration <= 0 {
		return nil, fmt.Errorf("open %s: unknown duration", path)
	}

	logger.Debug("Opened source",
		"path", path,
		"duration", probe.Duration.String(),
		"size", fmt.Sprintf("%dx%d", probe.Width, probe.Height),
		"audio", probe.AudioCodec)

	return &sourceFile{probe: probe}, nil
}

// Subrange returns the [start, end) range of an opened source.
func (e *Engine) Subrange(clip media.Clip, start, end float64) (media.Clip, error) {
	src, ok := clip.(*sourceFile)
	if !ok {
		return nil, fmt.Errorf("subrange: %w", ErrForeignClip)
	}
	if src.closed {
		return nil, fmt.Errorf("subrange: %w: %s", ErrSourceClosed, src.Path())
	}
	if !(start >= 0 && end > start && end <= src.Duration()+rangeTolerance) {
		return nil, fmt.Errorf("%w: %.3f-%.3f of %.3fs", ErrRangeInvalid, start, end, src.Duration())
	}

	return &segment{
		src:    src,
		start:  start,
		end:    math.Min(end, src.Duration()),
		width:  src.probe.Width,
		height: src.probe.Height,
	}, nil
}

// Apply returns a new clip with effect added. The input clip is not modified.
func (e *Engine) Apply(ctx context.Context, clip media.Clip, effect media.Effect) (media.Clip, error) {
	seg, ok := clip.(*segment)
	if !ok {
		return nil, fmt.Errorf("apply %s: %w", effect, ErrForeignClip)
	}
	out := seg.clone()

	switch effect.Kind {
	case media.EffectResize:
		if effect.Height <= 0 {
			return nil, fmt.Errorf("apply %s: height must be positive", effect)
		}
		out.width = scaledWidth(seg.width, seg.height, effect.Height)
		out.height = effect.Height
		out.videoFilters = append(out.videoFilters, fmt.Sprintf("scale=%d:%d", out.width, out.height))

	case media.EffectEvenSize:
		w, h := evenDimension(seg.width), evenDimension(seg.height)
		if w != seg.width || h != seg.height {
			out.width, out.height = w, h
			out.videoFilters = append(out.videoFilters, fmt.Sprintf("crop=%d:%d:0:0", w, h))
		}

	case media.EffectAudioNormalize:
		if !seg.HasAudio() {
			return out, nil
		}
		peak, err := e.measurePeak(ctx, seg)
		if err != nil {
			return nil, fmt.Errorf("apply %s: %w", effect, err)
		}
		if f := gainFilter(peak); f != "" {
			out.audioFilters = append(out.audioFilters, f)
		}

	case media.EffectFadeIn:
		d := math.Min(effect.Duration, seg.Duration())
		if d > 0 {
			out.videoFilters = append(out.videoFilters, fmt.Sprintf("fade=t=in:st=0:d=%s", formatSeconds(d)))
		}

	case media.EffectFadeOut:
		d := math.Min(effect.Duration, seg.Duration())
		if d > 0 {
			st := seg.Duration() - d
			out.videoFilters = append(out.videoFilters, fmt.Sprintf("fade=t=out:st=%s:d=%s", formatSeconds(st), formatSeconds(d)))
		}

	default:
		return nil, fmt.Errorf("apply: unknown effect %q", effect.Kind)
	}

	return out, nil
}

// Concatenate joins clips in order into a timeline.
func (e *Engine) Concatenate(clips []media.Clip) (media.Clip, error) {
	if len(clips) == 0 {
		return nil, ErrEmptyTimeline
	}
	tl := &timeline{segments: make([]*segment, 0, len(clips))}
	for i, c := range clips {
		seg, ok := c.(*segment)
		if !ok {
			return nil, fmt.Errorf("concatenate clip %d: %w", i, ErrForeignClip)
		}
		tl.segments = append(tl.segments, seg)
	}
	return tl, nil
}

// scaledWidth keeps the aspect ratio of w x h at the new height, rounded to
// the nearest whole pixel.
func scaledWidth(w, h, newHeight int) int {
	if h <= 0 {
		return w
	}
	sw := int(math.Round(float64(w) * float64(newHeight) / float64(h)))
	if sw < 1 {
		sw = 1
	}
	return sw
}

// evenDimension rounds n down to an even number, never below 2.
func evenDimension(n int) int {
	even := n &^ 1
	if even < 2 {
		return n
	}
	return even
}
