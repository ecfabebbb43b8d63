package db

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- URLs table: every URL ever captured, with its classification
CREATE TABLE IF NOT EXISTS urls (
    url_id INTEGER PRIMARY KEY AUTOINCREMENT,
    original_url TEXT NOT NULL UNIQUE,
    canonical_url TEXT,
    scheme TEXT NOT NULL,
    domain TEXT NOT NULL,
    path TEXT,
    fragment TEXT,
    platform TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_urls_domain ON urls(domain);
CREATE INDEX IF NOT EXISTS idx_urls_platform ON urls(platform);

-- Runs: one row per capture invocation
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    url_count INTEGER NOT NULL,
    success_count INTEGER DEFAULT 0,
    failed_count INTEGER DEFAULT 0,
    elapsed_seconds REAL DEFAULT 0,
    output_dir TEXT NOT NULL,
    variant TEXT,
    render_thread BOOLEAN DEFAULT 0,
    retry_of TEXT,
    finished BOOLEAN DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);

-- Captures: per-URL results within a run, in input order
CREATE TABLE IF NOT EXISTS captures (
    capture_id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    url_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    input_url TEXT,
    platform TEXT,
    success BOOLEAN NOT NULL,
    card_file TEXT,
    metadata_file TEXT,
    media_count INTEGER DEFAULT 0,
    author_label TEXT,
    error_type TEXT,
    error_message TEXT,
    captured_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE,
    FOREIGN KEY (url_id) REFERENCES urls(url_id),
    UNIQUE(run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_captures_run ON captures(run_id);
CREATE INDEX IF NOT EXISTS idx_captures_url ON captures(url_id);
CREATE INDEX IF NOT EXISTS idx_captures_success ON captures(success);
`
