package db

import (
	"fmt"

	dbpkg "github.com/dtnitsch/post-capture/pkg/db"
	"github.com/urfave/cli/v2"
)

func openHistory(c *cli.Context) (*dbpkg.DB, error) {
	database, err := dbpkg.Open(c.String("history-db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// GetRunOrLatest returns the run named by the first argument (a full id or a
// unique prefix), or the latest run if none was given.
func GetRunOrLatest(c *cli.Context, database *dbpkg.DB) (*dbpkg.Run, error) {
	if c.NArg() == 0 {
		runs, err := database.ListRuns(1)
		if err != nil {
			return nil, fmt.Errorf("failed to get latest run: %w", err)
		}
		if len(runs) == 0 {
			return nil, fmt.Errorf("no runs found. Run 'post-capture capture <url>' first")
		}
		return &runs[0], nil
	}
	return database.GetRun(c.Args().First())
}

func shortID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}
