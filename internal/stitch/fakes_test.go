package stitch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gwlsn/stitchray/internal/config"
	"github.com/gwlsn/stitchray/internal/media"
	"github.com/gwlsn/stitchray/internal/timespec"
)

// fakeMedia describes a file the fake engine knows how to open.
type fakeMedia struct {
	duration float64
	audio    bool
}

type fakeSource struct {
	name     string
	path     string
	duration float64
	audio    bool
	closes   int
	closeLog *[]string
}

func (s *fakeSource) Duration() float64 { return s.duration }
func (s *fakeSource) HasAudio() bool    { return s.audio }
func (s *fakeSource) Path() string      { return s.path }

func (s *fakeSource) Close() error {
	s.closes++
	if s.closeLog != nil {
		*s.closeLog = append(*s.closeLog, s.name)
	}
	return nil
}

type fakeClip struct {
	name     string
	duration float64
	audio    bool
}

func (c *fakeClip) Duration() float64 { return c.duration }
func (c *fakeClip) HasAudio() bool    { return c.audio }

// fakeEngine records every call. Files are looked up by base name so
// downloads into a random working directory still resolve.
type fakeEngine struct {
	media map[string]fakeMedia

	opened       []*fakeSource
	applied      []media.Effect
	concatenated []string
	encodes      int
	outputPath   string
	params       media.RenderParams
	closeLog     []string

	encodeErr error
	applyErr  error
	onOpen    func(path string)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{media: make(map[string]fakeMedia)}
}

func (e *fakeEngine) Open(ctx context.Context, path string) (media.Source, error) {
	if e.onOpen != nil {
		e.onOpen(path)
	}
	name := filepath.Base(path)
	m, ok := e.media[name]
	if !ok {
		return nil, fmt.Errorf("cannot decode %s", path)
	}
	src := &fakeSource{name: name, path: path, duration: m.duration, audio: m.audio, closeLog: &e.closeLog}
	e.opened = append(e.opened, src)
	return src, nil
}

func (e *fakeEngine) Subrange(clip media.Clip, start, end float64) (media.Clip, error) {
	src, ok := clip.(*fakeSource)
	if !ok {
		return nil, errors.New("not a source")
	}
	if src.closes > 0 {
		return nil, errors.New("source closed")
	}
	return &fakeClip{
		name:     fmt.Sprintf("%s[%g-%g]", src.name, start, end),
		duration: end - start,
		audio:    src.audio,
	}, nil
}

func (e *fakeEngine) Apply(ctx context.Context, clip media.Clip, effect media.Effect) (media.Clip, error) {
	if e.applyErr != nil {
		return nil, e.applyErr
	}
	e.applied = append(e.applied, effect)
	c := *clip.(*fakeClip)
	return &c, nil
}

func (e *fakeEngine) Concatenate(clips []media.Clip) (media.Clip, error) {
	total := 0.0
	audio := false
	for _, c := range clips {
		fc := c.(*fakeClip)
		e.concatenated = append(e.concatenated, fc.name)
		total += fc.duration
		audio = audio || fc.audio
	}
	return &fakeClip{name: "timeline", duration: total, audio: audio}, nil
}

func (e *fakeEngine) Encode(ctx context.Context, clip media.Clip, outputPath string, params media.RenderParams) error {
	e.encodes++
	e.outputPath = outputPath
	e.params = params
	return e.encodeErr
}

func (e *fakeEngine) appliedKinds() []media.EffectKind {
	kinds := make([]media.EffectKind, len(e.applied))
	for i, eff := range e.applied {
		kinds[i] = eff.Kind
	}
	return kinds
}

// fakeDownloader treats URLs in valid as resolvable and writes a placeholder
// file on Fetch unless fetchErr names the URL.
type fakeDownloader struct {
	valid      map[string]bool
	fetchErr   map[string]error
	onValidate func(url string)

	validateCalls int
	fetchCalls    int
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{valid: make(map[string]bool), fetchErr: make(map[string]error)}
}

func (d *fakeDownloader) Validate(ctx context.Context, url string) bool {
	d.validateCalls++
	if d.onValidate != nil {
		d.onValidate(url)
	}
	// A killed dry run fails like an unreachable URL.
	if ctx.Err() != nil {
		return false
	}
	return d.valid[url]
}

func (d *fakeDownloader) Fetch(ctx context.Context, url, dest string) error {
	d.fetchCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.fetchErr[url]; err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("video"), 0o644)
}

// localFile creates an empty file in dir and returns its path.
func localFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func snippet(start, end any, fades ...float64) config.Snippet {
	s := config.Snippet{Start: value(start), End: value(end)}
	if len(fades) > 0 {
		s.FadeIn = fades[0]
	}
	if len(fades) > 1 {
		s.FadeOut = fades[1]
	}
	return s
}

func value(v any) timespec.Value {
	switch v := v.(type) {
	case string:
		return timespec.FromString(v)
	case int:
		return timespec.FromSeconds(float64(v))
	case float64:
		return timespec.FromSeconds(v)
	default:
		panic(fmt.Sprintf("unsupported time %T", v))
	}
}

func testJob(output string, tasks ...config.VideoTask) *config.Job {
	return &config.Job{
		OutputFile:     output,
		NormalizeAudio: true,
		OutputFPS:      config.DefaultOutputFPS,
		EncodingPreset: config.DefaultEncodingPreset,
		VideoBitrate:   config.DefaultVideoBitrate,
		ThreadCount:    config.DefaultThreadCount,
		VideoTasks:     tasks,
	}
}

// assertEmptyDir fails if dir contains anything.
func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("expected %s to be empty, found %v", dir, names)
	}
}
