package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtnitsch/post-capture/models"
)

// ErrRunNotFound is returned when no run matches an id or id prefix.
var ErrRunNotFound = errors.New("run not found")

// Run represents one capture invocation
type Run struct {
	RunID          string
	CreatedAt      time.Time
	URLCount       int
	SuccessCount   int
	FailedCount    int
	ElapsedSeconds float64
	OutputDir      string
	Variant        string
	RenderThread   bool
	RetryOf        string
	Finished       bool
}

// RunOptions describes a run at creation time.
type RunOptions struct {
	URLCount     int
	OutputDir    string
	Variant      models.Variant
	RenderThread bool
	RetryOf      string
}

// CaptureRecord is one URL's outcome within a run
type CaptureRecord struct {
	Position     int
	URL          string
	InputURL     string
	Platform     string
	Success      bool
	CardFile     string
	MetadataFile string
	MediaCount   int
	AuthorLabel  string
	ErrorType    string
	ErrorMessage string
}

// CreateRun inserts a run and returns its generated id.
func (db *DB) CreateRun(opts RunOptions) (string, error) {
	runID := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO runs (run_id, created_at, url_count, output_dir, variant, render_thread, retry_of)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, time.Now().UTC(), opts.URLCount, opts.OutputDir, string(opts.Variant), opts.RenderThread, NewNullString(opts.RetryOf))
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return runID, nil
}

// RecordCapture stores the result for the URL at position in the run's input.
// inputURL is the URL before sanitization and is only kept when it differs.
func (db *DB) RecordCapture(runID string, position int, inputURL string, result models.CaptureResult) error {
	target := result.SourceURL
	if target == "" {
		target = inputURL
	}
	urlID, err := db.InsertURL(target, string(result.Platform))
	if err != nil {
		return err
	}

	var original sql.NullString
	if inputURL != target {
		original = NewNullString(inputURL)
	}

	_, err = db.Exec(`
		INSERT INTO captures (run_id, url_id, position, input_url, platform, success, card_file,
		                      metadata_file, media_count, author_label, error_type, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, urlID, position, original, NewNullString(string(result.Platform)), result.Success,
		NewNullString(result.CardFileName), NewNullString(result.MetadataFileName), len(result.MediaFileNames),
		NewNullString(result.AuthorLabel), NewNullString(result.ErrorType), NewNullString(result.ErrorMessage))
	if err != nil {
		return fmt.Errorf("failed to record capture: %w", err)
	}
	return nil
}

// FinishRun stores the final counts for a run
func (db *DB) FinishRun(runID string, successCount, failedCount int, elapsedSeconds float64) error {
	res, err := db.Exec(`
		UPDATE runs
		SET success_count = ?, failed_count = ?, elapsed_seconds = ?, finished = 1
		WHERE run_id = ?
	`, successCount, failedCount, elapsedSeconds, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `run_id, created_at, url_count, success_count, failed_count, elapsed_seconds,
	output_dir, COALESCE(variant, ''), render_thread, COALESCE(retry_of, ''), finished`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	err := row.Scan(&r.RunID, &r.CreatedAt, &r.URLCount, &r.SuccessCount, &r.FailedCount,
		&r.ElapsedSeconds, &r.OutputDir, &r.Variant, &r.RenderThread, &r.RetryOf, &r.Finished)
	return r, err
}

// GetRun retrieves a run by id. A unique id prefix is accepted too.
func (db *DB) GetRun(runID string) (*Run, error) {
	if runID == "" {
		return nil, ErrRunNotFound
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs WHERE run_id = ? OR run_id LIKE ? ORDER BY run_id = ? DESC LIMIT 2`,
		runID, runID+"%", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	case found[0].RunID == runID || len(found) == 1:
		return &found[0], nil
	}
	return nil, fmt.Errorf("run id prefix %q is ambiguous", runID)
}

// ListRuns retrieves runs ordered by most recent first
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRunCaptures retrieves all capture records for a run in input order
func (db *DB) GetRunCaptures(runID string) ([]CaptureRecord, error) {
	rows, err := db.Query(`
		SELECT c.position, u.original_url, COALESCE(c.input_url, ''), COALESCE(c.platform, ''), c.success,
		       COALESCE(c.card_file, ''), COALESCE(c.metadata_file, ''), c.media_count,
		       COALESCE(c.author_label, ''), COALESCE(c.error_type, ''), COALESCE(c.error_message, '')
		FROM captures c
		JOIN urls u ON c.url_id = u.url_id
		WHERE c.run_id = ?
		ORDER BY c.position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run captures: %w", err)
	}
	defer rows.Close()

	var records []CaptureRecord
	for rows.Next() {
		var c CaptureRecord
		if err := rows.Scan(&c.Position, &c.URL, &c.InputURL, &c.Platform, &c.Success, &c.CardFile,
			&c.MetadataFile, &c.MediaCount, &c.AuthorLabel, &c.ErrorType, &c.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		records = append(records, c)
	}
	return records, rows.Err()
}

// FailedURLs lists the URLs that failed in a run, in input order.
func (db *DB) FailedURLs(runID string) ([]string, error) {
	records, err := db.GetRunCaptures(runID)
	if err != nil {
		return nil, err
	}
	var urls []string
	for _, c := range records {
		if !c.Success {
			urls = append(urls, c.URL)
		}
	}
	return urls, nil
}
