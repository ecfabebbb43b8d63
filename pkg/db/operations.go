package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
)

// InsertURL records a URL, returning its url_id. An existing URL keeps its
// id and picks up the platform if it had none. URLs that do not parse are
// still stored so failed captures stay visible.
func (db *DB) InsertURL(rawURL, platform string) (int64, error) {
	var existingID int64
	err := db.QueryRow("SELECT url_id FROM urls WHERE original_url = ?", rawURL).Scan(&existingID)
	if err == nil {
		if platform != "" {
			if _, err := db.Exec("UPDATE urls SET platform = ? WHERE url_id = ? AND (platform IS NULL OR platform = '' OR platform = 'unsupported')", platform, existingID); err != nil {
				return 0, fmt.Errorf("failed to update URL platform: %w", err)
			}
		}
		return existingID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to check existing URL: %w", err)
	}

	var scheme, host, path, fragment, canonicalURL string
	if parsed, err := url.Parse(rawURL); err == nil {
		scheme, host, path, fragment = parsed.Scheme, parsed.Host, parsed.Path, parsed.Fragment
		if scheme != "" && host != "" {
			canonicalURL = fmt.Sprintf("%s://%s%s", scheme, host, path)
		}
	}

	result, err := db.Exec(`
		INSERT INTO urls (original_url, canonical_url, scheme, domain, path, fragment, platform)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rawURL, NewNullString(canonicalURL), scheme, host, path, fragment, NewNullString(platform))
	if err != nil {
		return 0, fmt.Errorf("failed to insert URL: %w", err)
	}

	urlID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get URL ID: %w", err)
	}
	return urlID, nil
}

// GetURLID retrieves the url_id for a URL
func (db *DB) GetURLID(originalURL string) (int64, error) {
	var urlID int64
	err := db.QueryRow("SELECT url_id FROM urls WHERE original_url = ?", originalURL).Scan(&urlID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("URL not found: %s", originalURL)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get URL ID: %w", err)
	}
	return urlID, nil
}

// NewNullString creates a sql.NullString from a string value.
func NewNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
