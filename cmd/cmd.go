// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// serveCommand runs the API server
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the streaming API server",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (overrides config)",
			},
		},
		Action: r.Serve,
	}
}

// setupCommand handles first-run setup
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "First-run setup",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize the database and run migrations",
				Flags: []cli.Flag{
					configFlag(),
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// recoverCommand re-acquires tracks from the failure ledger
func recoverCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "recover",
		Usage: "Re-acquire failed tracks and cache them under corrected metadata",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "batch",
				Usage: "Process every pending entry in the failure ledger",
			},
			&cli.StringFlag{
				Name:  "video-id",
				Usage: "Video ID or URL to recover (single mode)",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Corrected track title (single mode)",
			},
			&cli.StringFlag{
				Name:  "artist",
				Usage: "Corrected artist name (single mode)",
			},
			&cli.BoolFlag{
				Name:  "no-resolve",
				Usage: "Skip marking the ledger entry resolved",
			},
			&cli.StringFlag{
				Name:  "backend-url",
				Usage: "Base URL of the running server",
				Value: "http://localhost:8000",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output results as JSON",
			},
		},
		Action: r.Recover,
	}
}
