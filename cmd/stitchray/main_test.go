package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gwlsn/stitchray/internal/config"
	"github.com/gwlsn/stitchray/internal/jobs"
	"github.com/gwlsn/stitchray/internal/store"
)

func TestHasRemote(t *testing.T) {
	local := &config.Job{VideoTasks: []config.VideoTask{{Location: "/media/a.mp4"}, {Location: "clips/b.mp4"}}}
	if hasRemote(local) {
		t.Error("local-only job reported as remote")
	}

	mixed := &config.Job{VideoTasks: []config.VideoTask{{Location: "/media/a.mp4"}, {Location: "HTTPS://example.com/v"}}}
	if !hasRemote(mixed) {
		t.Error("expected remote source to be detected")
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0f8fad5b-d9cb-469f-a165-70867728950e"); got != "0f8fad5b" {
		t.Errorf("got %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("got %q", got)
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("render failed: boom\nmore detail"); got != "render failed: boom" {
		t.Errorf("got %q", got)
	}
}

func TestAbsPath(t *testing.T) {
	dir := t.TempDir()
	if got := absPath(filepath.Join(dir, "out.mp4")); got != filepath.Join(dir, "out.mp4") {
		t.Errorf("absolute path changed to %q", got)
	}

	chdir(t, dir)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if got := absPath("out.mp4"); got != filepath.Join(wd, "out.mp4") {
		t.Errorf("got %q, expected %q", got, filepath.Join(wd, "out.mp4"))
	}
}

func TestAbsPathFallsBackToRawPath(t *testing.T) {
	gone := filepath.Join(t.TempDir(), "gone")
	if err := os.Mkdir(gone, 0o755); err != nil {
		t.Fatal(err)
	}
	chdir(t, gone)
	if err := os.Remove(gone); err != nil {
		t.Skipf("cannot remove working directory: %v", err)
	}
	if _, err := filepath.Abs("out.mp4"); err == nil {
		t.Skip("working directory still resolves after removal")
	}

	if got := absPath("out.mp4"); got != "out.mp4" {
		t.Errorf("expected raw path, got %q", got)
	}
}

func newHistory(t *testing.T, ids ...string) *store.SQLiteStore {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	for _, id := range ids {
		j := &jobs.Job{ID: id, ConfigPath: "/jobs/" + id + ".yaml", Status: jobs.StatusRunning, CreatedAt: time.Now()}
		if err := db.SaveJob(j); err != nil {
			t.Fatal(err)
		}
	}
	return db
}

func TestFindRun(t *testing.T) {
	db := newHistory(t,
		"0f8fad5b-d9cb-469f-a165-70867728950e",
		"7c9e6679-7425-40de-944b-e07fc1f90ae7",
		"7c9e1111-0000-40de-944b-e07fc1f90ae7",
	)

	j, err := findRun(db, "0f8fad5b-d9cb-469f-a165-70867728950e")
	if err != nil || j.ConfigPath != "/jobs/0f8fad5b-d9cb-469f-a165-70867728950e.yaml" {
		t.Errorf("full ID lookup = %+v, %v", j, err)
	}

	j, err = findRun(db, "0f8fad5b")
	if err != nil || j.ID != "0f8fad5b-d9cb-469f-a165-70867728950e" {
		t.Errorf("short ID lookup = %+v, %v", j, err)
	}

	if _, err := findRun(db, "7c9e"); err == nil || errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("expected ambiguous prefix error, got %v", err)
	}

	_, err = findRun(db, "deadbeef")
	if !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestPrintRun(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	printRun(&buf, &jobs.Job{
		ID:          "0f8fad5b-d9cb-469f-a165-70867728950e",
		ConfigPath:  "/jobs/reel.yaml",
		OutputPath:  "/out/reel.mp4",
		Status:      jobs.StatusComplete,
		Tasks:       2,
		Snippets:    3,
		OutputSize:  2_500_000,
		Duration:    37.5,
		RenderTime:  90,
		CreatedAt:   created,
		CompletedAt: created.Add(90 * time.Second),
	})
	out := buf.String()
	for _, want := range []string{
		"0f8fad5b-d9cb-469f-a165-70867728950e",
		"/out/reel.mp4",
		"2 (3 snippets)",
		"37.5s",
		"2.5 MB",
		"1m30s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Error:") {
		t.Errorf("complete run printed an error line:\n%s", out)
	}

	buf.Reset()
	printRun(&buf, &jobs.Job{ID: "x", Status: jobs.StatusFailed, Error: "render failed: boom", CreatedAt: created})
	if !strings.Contains(buf.String(), "Error:        render failed: boom") {
		t.Errorf("failed run missing error:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "Finished:") {
		t.Errorf("unfinished run printed a finish time:\n%s", buf.String())
	}
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(orig); err != nil {
			t.Fatal(err)
		}
	})
}
