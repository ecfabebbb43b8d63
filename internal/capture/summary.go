package capture

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/post-capture/models"
)

const FailedURLsFile = "failed.yaml"

// FailedURL represents a URL that failed during capture.
type FailedURL struct {
	URL          string          `yaml:"url"`
	Platform     models.Platform `yaml:"platform,omitempty"`
	ErrorType    string          `yaml:"error_type"`
	ErrorMessage string          `yaml:"error_message"`
}

// FailedURLs wraps the list of failed URLs for YAML output.
type FailedURLs struct {
	RunID      string      `yaml:"run_id,omitempty"`
	FailedURLs []FailedURL `yaml:"failed_urls"`
}

// ComputeTotals counts successes and failures.
func ComputeTotals(results []models.CaptureResult) models.Totals {
	totals := models.Totals{URLs: len(results)}
	for _, r := range results {
		if r.Success {
			totals.Successful++
		} else {
			totals.Failed++
		}
	}
	return totals
}

// collectFailedURLs extracts failed results in input order.
func collectFailedURLs(results []models.CaptureResult) []FailedURL {
	var failed []FailedURL
	for _, r := range results {
		if r.Success {
			continue
		}
		failed = append(failed, FailedURL{
			URL:          r.SourceURL,
			Platform:     r.Platform,
			ErrorType:    r.ErrorType,
			ErrorMessage: r.ErrorMessage,
		})
	}
	return failed
}

// WriteFailedURLs writes failed.yaml into dir. Nothing is written when every
// capture succeeded.
func WriteFailedURLs(dir, runID string, results []models.CaptureResult) (string, error) {
	failed := collectFailedURLs(results)
	if len(failed) == 0 {
		return "", nil
	}

	yamlBytes, err := yaml.Marshal(&FailedURLs{RunID: runID, FailedURLs: failed})
	if err != nil {
		return "", fmt.Errorf("failed to marshal failed URLs to YAML: %w", err)
	}

	outputPath := filepath.Join(dir, FailedURLsFile)
	if err := os.WriteFile(outputPath, yamlBytes, 0600); err != nil {
		return "", fmt.Errorf("failed to write failed URLs file: %w", err)
	}
	return outputPath, nil
}

// ExitCode is 0 when everything succeeded, 1 on partial failure and 2 when
// nothing succeeded or the run hit a fatal error.
func ExitCode(totals models.Totals, fatal error) int {
	switch {
	case fatal != nil, totals.URLs > 0 && totals.Failed == totals.URLs:
		return 2
	case totals.Failed > 0:
		return 1
	}
	return 0
}
