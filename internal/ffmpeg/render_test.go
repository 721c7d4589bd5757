package ffmpeg

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gwlsn/stitchray/internal/media"
)

const progressBlocks = `frame=30
fps=29.5
bitrate=1024.0kbits/s
total_size=131072
out_time_us=1000000
speed=2.0x
progress=continue
frame=60
fps=30.0
bitrate=N/A
total_size=262144
out_time_us=2000000
speed= 2.5x
progress=continue
garbage line
frame=120
out_time_us=N/A
progress=end
`

func TestReadProgress(t *testing.T) {
	var reports []Progress
	last := readProgress(strings.NewReader(progressBlocks), 4*time.Second, time.Now(), func(p Progress) {
		reports = append(reports, p)
	})

	if last != 120 {
		t.Errorf("expected last frame 120, got %d", last)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}

	first := reports[0]
	if first.Frame != 30 || first.Size != 131072 || first.Bitrate != 1024 || first.Speed != 2 {
		t.Errorf("unexpected first report: %+v", first)
	}
	if first.Percent != 25 {
		t.Errorf("expected 25%%, got %v", first.Percent)
	}
	if first.ETA != 1500*time.Millisecond {
		t.Errorf("expected ETA 1.5s at 2x, got %v", first.ETA)
	}

	second := reports[1]
	if second.Speed != 2.5 {
		t.Errorf("expected padded speed to parse, got %v", second.Speed)
	}
	if second.Bitrate != 1024 {
		t.Errorf("N/A bitrate should keep previous value, got %v", second.Bitrate)
	}

	final := reports[2]
	if !final.Done || final.Percent != 100 || final.ETA != 0 {
		t.Errorf("expected completed final report, got %+v", final)
	}
	if final.Time != 2*time.Second {
		t.Errorf("N/A out_time should keep previous value, got %v", final.Time)
	}
}

func TestReadProgressNilReporter(t *testing.T) {
	if last := readProgress(strings.NewReader(progressBlocks), 0, time.Now(), nil); last != 120 {
		t.Errorf("expected 120, got %d", last)
	}
}

func TestEstimate(t *testing.T) {
	start := time.Now()

	if pct, eta := estimate(Progress{Time: time.Second}, 0, start); pct != 0 || eta != 0 {
		t.Errorf("unknown total should give zero estimate, got %v %v", pct, eta)
	}
	if pct, _ := estimate(Progress{Time: 12 * time.Second, Speed: 1}, 10*time.Second, start); pct != 100 {
		t.Errorf("percent should cap at 100, got %v", pct)
	}
	if pct, eta := estimate(Progress{Time: 5 * time.Second, Speed: 1}, 10*time.Second, start); pct != 50 || eta != 5*time.Second {
		t.Errorf("expected 50%% with 5s left, got %v %v", pct, eta)
	}
}

func TestRenderErrorUnwrap(t *testing.T) {
	err := &RenderError{Err: context.Canceled, Stderr: "Conversion failed!"}
	if !errors.Is(err, context.Canceled) {
		t.Error("RenderError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "Conversion failed!") {
		t.Errorf("expected stderr in message, got %q", err.Error())
	}

	bare := &RenderError{Err: errors.New("boom")}
	if bare.Error() != "boom" {
		t.Errorf("expected bare message, got %q", bare.Error())
	}
}

func TestLastLines(t *testing.T) {
	out := "one\ntwo\nthree\nfour\n"
	if got := lastLines(out, 2); got != "three | four" {
		t.Errorf("got %q", got)
	}
	if got := lastLines("  \n", 3); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestEncodeRejectsClosedSource(t *testing.T) {
	e := NewEngine("/nonexistent/ffmpeg", "/nonexistent/ffprobe")
	src := newTestSource("/media/a.mp4", 10, 640, 360, "")
	seg := mustSubrange(t, e, src, 0, 5)
	src.Close()

	err := e.Encode(context.Background(), seg, t.TempDir()+"/out.mp4", media.NewRenderParams(30, "1000k", "fast", 1))
	if !errors.Is(err, ErrSourceClosed) {
		t.Errorf("expected ErrSourceClosed, got %v", err)
	}
}

func TestEncodeEmptyTimeline(t *testing.T) {
	e := NewEngine("/nonexistent/ffmpeg", "/nonexistent/ffprobe")
	err := e.Encode(context.Background(), &timeline{}, t.TempDir()+"/out.mp4", media.RenderParams{})
	if !errors.Is(err, ErrEmptyTimeline) {
		t.Errorf("expected ErrEmptyTimeline, got %v", err)
	}
}

func TestEncodeMissingBinary(t *testing.T) {
	e := NewEngine("/nonexistent/ffmpeg", "/nonexistent/ffprobe")
	seg := mustSubrange(t, e, newTestSource("/media/a.mp4", 10, 640, 360, ""), 0, 5)

	if err := e.Encode(context.Background(), seg, t.TempDir()+"/out.mp4", media.NewRenderParams(30, "1000k", "fast", 1)); err == nil {
		t.Error("expected error when ffmpeg cannot be started")
	}
}
