package db

import (
	"bytes"
	"flag"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/post-capture/models"
	dbpkg "github.com/dtnitsch/post-capture/pkg/db"
)

func setupHistory(t *testing.T) (*dbpkg.DB, string) {
	t.Helper()
	database, err := dbpkg.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	runID, err := database.CreateRun(dbpkg.RunOptions{URLCount: 2, OutputDir: "captures", Variant: models.VariantBento})
	if err != nil {
		t.Fatal(err)
	}
	results := []models.CaptureResult{
		{Success: true, SourceURL: "https://bsky.app/profile/a/post/1", Platform: models.PlatformBluesky,
			CardFileName: "bluesky-a-card.png", MetadataFileName: "bluesky-a-metadata.json", AuthorLabel: "Jane (@jane)"},
		{SourceURL: "https://example.org/x", Platform: models.PlatformUnsupported,
			ErrorType: "classification_miss", ErrorMessage: "no capture strategy"},
	}
	for i, r := range results {
		if err := database.RecordCapture(runID, i, r.SourceURL, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := database.FinishRun(runID, 1, 1, 2.5); err != nil {
		t.Fatal(err)
	}
	return database, runID
}

func contextWithArgs(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	if err := set.Parse(args); err != nil {
		t.Fatal(err)
	}
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestPrintRuns(t *testing.T) {
	database, runID := setupHistory(t)
	runs, err := database.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	printRuns(&buf, runs)
	out := buf.String()

	for _, want := range []string{runID[:8], "bento", "2.5s", "Total: 1 runs"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printRuns(&buf, nil)
	if !strings.Contains(buf.String(), "No runs found") {
		t.Errorf("empty listing = %q", buf.String())
	}
}

func TestPrintRun(t *testing.T) {
	database, runID := setupHistory(t)
	run, err := database.GetRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	captures, err := database.GetRunCaptures(runID)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	printRun(&buf, run, captures)
	out := buf.String()

	for _, want := range []string{
		"Run " + runID,
		"2 total (1 success, 1 failed)",
		"[ok] https://bsky.app/profile/a/post/1",
		"Author: Jane (@jane)",
		"[failed] https://example.org/x",
		"Error: [classification_miss] no capture strategy",
		"--retry-run " + runID[:8],
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGetRunOrLatest(t *testing.T) {
	database, runID := setupHistory(t)

	run, err := GetRunOrLatest(contextWithArgs(t), database)
	if err != nil || run.RunID != runID {
		t.Errorf("latest run = %v, %v, want %s", run, err, runID)
	}

	run, err = GetRunOrLatest(contextWithArgs(t, runID[:6]), database)
	if err != nil || run.RunID != runID {
		t.Errorf("prefix lookup = %v, %v", run, err)
	}

	if _, err := GetRunOrLatest(contextWithArgs(t, "zzzz"), database); err == nil {
		t.Error("expected an error for an unknown run")
	}
}

func TestGetRunOrLatest_Empty(t *testing.T) {
	database, err := dbpkg.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if _, err := GetRunOrLatest(contextWithArgs(t), database); err == nil {
		t.Error("expected an error when no runs exist")
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortID() = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID() = %q", got)
	}
}
