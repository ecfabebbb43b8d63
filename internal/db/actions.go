package db

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	dbpkg "github.com/dtnitsch/post-capture/pkg/db"
	"github.com/urfave/cli/v2"
)

// RunsAction lists recent capture runs.
func RunsAction(c *cli.Context) error {
	database, err := openHistory(c)
	if err != nil {
		return err
	}
	defer database.Close()

	runs, err := database.ListRuns(c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	printRuns(os.Stdout, runs)
	return nil
}

func printRuns(w io.Writer, runs []dbpkg.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return
	}

	fmt.Fprintf(w, "%-10s %-20s %-6s %-8s %-8s %-9s %-10s %-30s\n",
		"Run", "Created", "URLs", "Success", "Failed", "Elapsed", "Variant", "Output Dir")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, r := range runs {
		elapsed := fmt.Sprintf("%.1fs", r.ElapsedSeconds)
		if !r.Finished {
			elapsed = "running"
		}
		fmt.Fprintf(w, "%-10s %-20s %-6d %-8d %-8d %-9s %-10s %-30s\n",
			shortID(r.RunID),
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.URLCount,
			r.SuccessCount,
			r.FailedCount,
			elapsed,
			r.Variant,
			r.OutputDir,
		)
	}

	fmt.Fprintf(w, "\nTotal: %d runs\n", len(runs))
	fmt.Fprintf(w, "\nTip: Use 'post-capture history show <run>' to see details\n")
}

// ShowAction prints one run and the outcome of every URL in it.
func ShowAction(c *cli.Context) error {
	database, err := openHistory(c)
	if err != nil {
		return err
	}
	defer database.Close()

	run, err := GetRunOrLatest(c, database)
	if err != nil {
		return err
	}

	captures, err := database.GetRunCaptures(run.RunID)
	if err != nil {
		return fmt.Errorf("failed to get run captures: %w", err)
	}
	printRun(os.Stdout, run, captures)
	return nil
}

func printRun(w io.Writer, run *dbpkg.Run, captures []dbpkg.CaptureRecord) {
	fmt.Fprintf(w, "Run %s\n", run.RunID)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Created:     %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Directory:   %s\n", run.OutputDir)
	fmt.Fprintf(w, "URLs:        %d total (%d success, %d failed)\n",
		run.URLCount, run.SuccessCount, run.FailedCount)
	fmt.Fprintf(w, "Variant:     %s\n", run.Variant)
	if run.RenderThread {
		fmt.Fprintf(w, "Threads:     rendered\n")
	}
	if run.RetryOf != "" {
		fmt.Fprintf(w, "Retry of:    %s\n", run.RetryOf)
	}
	if run.Finished {
		fmt.Fprintf(w, "Elapsed:     %.1fs\n", run.ElapsedSeconds)
	} else {
		fmt.Fprintf(w, "Elapsed:     (not finished)\n")
	}

	if len(captures) > 0 {
		fmt.Fprintf(w, "\nCaptures (%d):\n", len(captures))
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, cr := range captures {
			status := "ok"
			if !cr.Success {
				status = "failed"
			}
			fmt.Fprintf(w, "%2d. [%s] %s\n", cr.Position+1, status, cr.URL)
			if cr.InputURL != "" {
				fmt.Fprintf(w, "    Input: %s\n", cr.InputURL)
			}
			if cr.Success {
				fmt.Fprintf(w, "    Platform: %s | Author: %s | Media: %d\n", cr.Platform, cr.AuthorLabel, cr.MediaCount)
				fmt.Fprintf(w, "    Card: %s\n", filepath.Join(run.OutputDir, cr.CardFile))
			} else {
				fmt.Fprintf(w, "    Error: [%s] %s\n", cr.ErrorType, cr.ErrorMessage)
			}
		}
	}

	if run.FailedCount > 0 {
		fmt.Fprintf(w, "\nTip: Use 'post-capture capture --retry-run %s' to retry failed URLs\n", shortID(run.RunID))
	}
}
