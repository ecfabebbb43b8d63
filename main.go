package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/post-capture/internal/capture"
	"github.com/dtnitsch/post-capture/internal/db"
	"github.com/dtnitsch/post-capture/pkg/help"
)

var version = "dev"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "post-capture",
		Usage:   "Capture social posts and articles as shareable PNG cards",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:      "capture",
				Usage:     "Capture one or more post URLs",
				ArgsUsage: "[url...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "config",
						Value: "config.yaml",
						Usage: "YAML config file; missing files fall back to defaults",
					},
					&cli.StringFlag{
						Name:  "urls",
						Usage: "Comma-separated list of URLs to capture",
					},
					&cli.StringFlag{
						Name:  "retry-run",
						Usage: "Retry the failed URLs of an earlier run (id or unique prefix)",
					},
					&cli.StringFlag{
						Name:    "output-dir",
						Aliases: []string{"o"},
						Usage:   "Directory for cards, media and metadata",
					},
					&cli.IntFlag{
						Name:    "concurrency",
						Aliases: []string{"c"},
						Usage:   "Captures per wave",
					},
					&cli.BoolFlag{
						Name:  "thread",
						Usage: "Render Twitter/X conversations as a thread card",
					},
					&cli.StringFlag{
						Name:  "variant",
						Usage: "Card style: standard or bento",
					},
					&cli.StringFlag{
						Name:  "user-agent",
						Usage: "User-Agent for fetches and the browser",
					},
					&cli.IntFlag{
						Name:  "padding",
						Usage: "Pixels of padding around the card in the screenshot",
					},
					&cli.StringFlag{
						Name:  "chrome-path",
						Usage: "Chrome/Chromium executable (default: auto-detect)",
					},
					&cli.BoolFlag{
						Name:  "headful",
						Usage: "Show the browser window",
					},
					historyDBFlag(),
					&cli.BoolFlag{
						Name:  "no-history",
						Usage: "Do not record this run in the history database",
					},
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Only log errors",
					},
					&cli.BoolFlag{
						Name:  "verbose",
						Usage: "Log debug output",
					},
				},
				Action: capture.CaptureAction,
			},
			{
				Name:  "quickstart",
				Usage: "Print a quick start reference as YAML",
				Action: func(c *cli.Context) error {
					fmt.Print(help.ColdstartYAML)
					return nil
				},
			},
			{
				Name:  "history",
				Usage: "Inspect previous capture runs",
				Subcommands: []*cli.Command{
					{
						Name:  "runs",
						Usage: "List recent runs",
						Flags: []cli.Flag{
							historyDBFlag(),
							&cli.IntFlag{
								Name:  "limit",
								Value: 20,
								Usage: "Maximum number of runs to show (0 for all)",
							},
						},
						Action: db.RunsAction,
					},
					{
						Name:      "show",
						Usage:     "Show the captures of a run (default: latest)",
						ArgsUsage: "[run-id]",
						Flags:     []cli.Flag{historyDBFlag()},
						Action:    db.ShowAction,
					},
				},
			},
		},
	}
}

func historyDBFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "history-db",
		Usage: "Path to the history database (default: post-capture.db next to the binary)",
	}
}
