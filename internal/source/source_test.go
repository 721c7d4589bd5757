package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fakeDownloader validates URLs from a fixed set and writes placeholder files.
type fakeDownloader struct {
	valid         map[string]bool
	panicOn       string
	fetchErr      error
	skipWrite     bool
	onValidate    func(url string)
	validateCalls []string
	fetchCalls    []string
}

func (f *fakeDownloader) Validate(ctx context.Context, url string) bool {
	f.validateCalls = append(f.validateCalls, url)
	if url == f.panicOn {
		panic("extractor exploded")
	}
	if f.onValidate != nil {
		f.onValidate(url)
	}
	if ctx.Err() != nil {
		return false
	}
	return f.valid[url]
}

func (f *fakeDownloader) Fetch(ctx context.Context, url, dest string) error {
	f.fetchCalls = append(f.fetchCalls, url)
	if f.fetchErr != nil {
		return f.fetchErr
	}
	if f.skipWrite {
		return nil
	}
	return os.WriteFile(dest, []byte("video"), 0644)
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestIsRemote(t *testing.T) {
	tests := []struct {
		location string
		expected bool
	}{
		{"https://www.youtube.com/watch?v=abc", true},
		{"http://example.com/a.mp4", true},
		{"HTTPS://EXAMPLE.COM/A.MP4", true},
		{"/media/video.mp4", false},
		{"video.mp4", false},
		{"./http/video.mp4", false},
		{"httpfile.mp4", true},
	}

	for _, tt := range tests {
		if got := IsRemote(tt.location); got != tt.expected {
			t.Errorf("IsRemote(%q) = %v, expected %v", tt.location, got, tt.expected)
		}
	}
}

func TestValidateAggregatesAllFailures(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.mp4")
	writeFile(t, good)

	dl := &fakeDownloader{valid: map[string]bool{"https://ok.example/v": true}}
	v := NewValidator(dl)

	locations := []string{
		good,
		filepath.Join(dir, "missing.mp4"),
		"https://gone.example/v",
		"https://ok.example/v",
	}
	result, err := v.Validate(context.Background(), locations)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if result.OK() {
		t.Fatal("expected validation to fail")
	}
	if len(result.Invalid) != 2 {
		t.Fatalf("expected exactly 2 invalid sources, got %d: %+v", len(result.Invalid), result.Invalid)
	}

	if result.Invalid[0].Index != 1 || result.Invalid[0].Kind != KindLocalNotFound {
		t.Errorf("unexpected first entry %+v", result.Invalid[0])
	}
	if result.Invalid[1].Index != 2 || result.Invalid[1].Kind != KindRemoteUnreachable {
		t.Errorf("unexpected second entry %+v", result.Invalid[1])
	}
	if result.Invalid[1].Location != "https://gone.example/v" {
		t.Errorf("expected original location to be kept, got %q", result.Invalid[1].Location)
	}

	if len(dl.validateCalls) != 2 {
		t.Errorf("expected both remote sources to be dry-run, got %v", dl.validateCalls)
	}
	if len(dl.fetchCalls) != 0 {
		t.Errorf("validation must not download, got %v", dl.fetchCalls)
	}
}

func TestValidateRecoversFromDownloaderPanic(t *testing.T) {
	dl := &fakeDownloader{
		valid:   map[string]bool{"https://ok.example/v": true},
		panicOn: "https://boom.example/v",
	}
	v := NewValidator(dl)

	result, err := v.Validate(context.Background(), []string{"https://boom.example/v", "https://ok.example/v"})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if len(result.Invalid) != 1 || result.Invalid[0].Location != "https://boom.example/v" {
		t.Errorf("expected panicking source to be reported invalid, got %+v", result.Invalid)
	}
	if len(dl.validateCalls) != 2 {
		t.Errorf("validation should continue after a failure, got %v", dl.validateCalls)
	}
}

func TestValidateRemoteWithoutDownloader(t *testing.T) {
	result, err := NewValidator(nil).Validate(context.Background(), []string{"https://example.com/v"})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.OK() {
		t.Error("remote source without downloader should be invalid")
	}
}

func TestValidateCancelledIsNotInvalid(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dl := &fakeDownloader{
		valid: map[string]bool{
			"https://example.com/a": true,
			"https://example.com/b": true,
		},
		// Interrupt arrives while the first dry run is in flight.
		onValidate: func(string) { cancel() },
	}

	result, err := NewValidator(dl).Validate(ctx, []string{"https://example.com/a", "https://example.com/b"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(result.Invalid) != 0 {
		t.Errorf("cancelled dry runs must not be reported invalid, got %+v", result.Invalid)
	}
	if len(dl.validateCalls) != 1 {
		t.Errorf("expected validation to stop after cancellation, got %v", dl.validateCalls)
	}
}

func TestValidateAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dl := &fakeDownloader{}
	_, err := NewValidator(dl).Validate(ctx, []string{"https://example.com/a"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(dl.validateCalls) != 0 {
		t.Errorf("no dry run should start on a cancelled context, got %v", dl.validateCalls)
	}
}

func TestKindDescribe(t *testing.T) {
	s := InvalidSource{Location: "/x.mp4", Kind: KindLocalNotFound}
	if s.String() != "Local (File Not Found): /x.mp4" {
		t.Errorf("unexpected description %q", s.String())
	}
	if KindRemoteUnreachable.Describe() != "Remote (Invalid/Private)" {
		t.Errorf("unexpected remote description %q", KindRemoteUnreachable.Describe())
	}
}

func TestAcquireLocalIsPassthrough(t *testing.T) {
	dl := &fakeDownloader{}
	a := NewAcquirer(dl, t.TempDir())

	path, err := a.Acquire(context.Background(), 0, "/media/a.mp4")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if path != "/media/a.mp4" {
		t.Errorf("expected unchanged path, got %q", path)
	}
	if len(dl.fetchCalls) != 0 {
		t.Error("local source must not be fetched")
	}
}

func TestAcquireRemote(t *testing.T) {
	dir := t.TempDir()
	dl := &fakeDownloader{}
	a := NewAcquirer(dl, dir)

	path, err := a.Acquire(context.Background(), 3, "https://example.com/v")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if path != filepath.Join(dir, "remote_source_3.mp4") {
		t.Errorf("unexpected path %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected downloaded file: %v", err)
	}
}

func TestAcquireRemoteFailures(t *testing.T) {
	fetchErr := errors.New("format unavailable")

	tests := []struct {
		name string
		dl   Downloader
	}{
		{"fetch error", &fakeDownloader{fetchErr: fetchErr}},
		{"no file written", &fakeDownloader{skipWrite: true}},
		{"no downloader", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAcquirer(tt.dl, t.TempDir())
			if _, err := a.Acquire(context.Background(), 0, "https://example.com/v"); err == nil {
				t.Error("expected error")
			}
		})
	}

	a := NewAcquirer(&fakeDownloader{fetchErr: fetchErr}, t.TempDir())
	_, err := a.Acquire(context.Background(), 0, "https://example.com/v")
	if !errors.Is(err, fetchErr) {
		t.Errorf("expected fetch error to be wrapped, got %v", err)
	}
}
