// Package cli provides the pkgindex command-line interface: updating,
// querying, validating and publishing Arduino board manager package indexes.
package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/spresense-arduino/pkgindex/internal/config"
	"github.com/spresense-arduino/pkgindex/internal/index"
	"github.com/spresense-arduino/pkgindex/internal/storage"
)

// NewApp creates and configures the main CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:     "pkgindex",
		Usage:    "Maintain Arduino board manager package indexes",
		Version:  "1.0.0",
		Compiled: time.Now(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				Usage:   "path to configuration file (optional unless given explicitly)",
				EnvVars: []string{"PKGINDEX_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level for structured output on stderr (debug, info, warn, error)",
				EnvVars: []string{"PKGINDEX_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "update",
				Usage: "Add a released version to a package index",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "archive",
						Aliases: []string{"a"},
						Usage:   "directory holding the built archives",
					},
					&cli.StringFlag{
						Name:    "url",
						Aliases: []string{"u"},
						Usage:   "download root URL (default: derived from the base platform URL)",
					},
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i", "input-json"},
						Value:   index.DefaultFilename,
						Usage:   "input package index path",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o", "output-json"},
						Value:   index.DefaultFilename,
						Usage:   "output package index path, - or empty for stdout",
					},
					&cli.StringFlag{
						Name:    "version",
						Aliases: []string{"v"},
						Usage:   "version number of the new release (x.y.z)",
					},
					&cli.StringFlag{
						Name:    "base-version",
						Aliases: []string{"b"},
						Usage:   "existing platform version to use as template (default: latest)",
					},
					&cli.StringFlag{
						Name:    "platform-name",
						Aliases: []string{"p"},
						Usage:   "display name of the new platform entry",
					},
					&cli.StringFlag{
						Name:    "maintainer",
						Aliases: []string{"m"},
						Usage:   "maintainer name of the package",
					},
					&cli.StringFlag{
						Name:    "suffix",
						Aliases: []string{"s", "package-suffix"},
						Usage:   "package suffix for local builds (e.g. _local)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "print a unified diff instead of writing the output",
					},
					&cli.BoolFlag{
						Name:  "validate",
						Usage: "validate input and output against the package index schema",
					},
					&cli.StringFlag{
						Name:    "keyring",
						Usage:   "directory of armored public keys; every stamped archive must be signed",
						EnvVars: []string{"PKGINDEX_KEYRING"},
					},
					&cli.StringFlag{
						Name:    "db",
						Usage:   "SQLite database recording update history",
						EnvVars: []string{"PKGINDEX_DB"},
					},
				},
				Action: updateCommand,
			},
			{
				Name:  "lookup",
				Usage: "Print a value of a tool a board depends on",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Value:   index.DefaultFilename,
						Usage:   "package index path",
					},
					&cli.StringFlag{
						Name:     "package",
						Aliases:  []string{"p"},
						Usage:    "package name (e.g. SPRESENSE)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "board",
						Aliases:  []string{"b"},
						Usage:    "platform architecture (e.g. spresense)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "tool",
						Aliases:  []string{"t"},
						Usage:    "tool name (e.g. spresense-sdk)",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "host",
						Aliases: []string{"H"},
						Usage:   "host alias (Windows, Linux32, Linux64, Mac) or triple (default: this machine)",
					},
					&cli.StringFlag{
						Name:     "key",
						Aliases:  []string{"k"},
						Usage:    "value to print: version, url, archiveFileName, checksum, size, host",
						Required: true,
					},
				},
				Action: lookupCommand,
			},
			{
				Name:      "validate",
				Usage:     "Check package index files against the schema",
				ArgsUsage: "[file...]",
				Action:    validateCommand,
			},
			{
				Name:  "history",
				Usage: "Print recorded updates or releases as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "db",
						Usage:   "SQLite database path",
						EnvVars: []string{"PKGINDEX_DB"},
					},
					&cli.StringFlag{
						Name:    "package",
						Aliases: []string{"p"},
						Usage:   "only show this package",
					},
					&cli.BoolFlag{
						Name:  "releases",
						Usage: "show published releases instead of index updates",
					},
					&cli.BoolFlag{
						Name:  "latest",
						Usage: "show only the newest written (not dry-run) update of --package",
					},
				},
				Action: historyCommand,
			},
			{
				Name:  "publish",
				Usage: "Create a GitHub release and upload the archives and index",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "archive",
						Aliases:  []string{"a"},
						Usage:    "directory holding the built archives",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "version",
						Aliases:  []string{"v"},
						Usage:    "version to publish (x.y.z)",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "index",
						Aliases: []string{"i"},
						Value:   index.DefaultFilename,
						Usage:   "package index to attach to the release",
					},
					&cli.StringFlag{
						Name:    "repo",
						Aliases: []string{"r"},
						Usage:   "GitHub repository in owner/repo format",
						EnvVars: []string{"GITHUB_REPOSITORY"},
					},
					&cli.BoolFlag{
						Name:  "draft",
						Usage: "create the release as a draft",
					},
					&cli.StringFlag{
						Name:    "db",
						Usage:   "SQLite database recording published releases",
						EnvVars: []string{"PKGINDEX_DB"},
					},
				},
				Action: publishCommand,
			},
			{
				Name:  "init",
				Usage: "Write a configuration file with default values",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "repo",
						Aliases: []string{"r"},
						Usage:   "GitHub repository (owner/repo) to publish to",
					},
					&cli.StringFlag{
						Name:  "db",
						Usage: "SQLite database recording update history",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "overwrite an existing configuration file",
					},
				},
				Action: initCommand,
			},
		},
	}
}

// runtimeEnv is what every command needs before doing its work.
type runtimeEnv struct {
	cfg    *config.Config
	stdout *slog.Logger
	stderr *slog.Logger
}

// setup loads the configuration and creates loggers. A missing default
// configuration file is not an error.
func setup(c *cli.Context) (*runtimeEnv, error) {
	cfg, err := config.LoadOptional(c.String("config"), c.IsSet("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := stringOption(c, "log-level", cfg.Log.Level)
	format := cfg.Log.Format
	if format == "" {
		format = "json"
	}

	stdout, stderr, err := NewLoggers(c.App.ErrWriter, level, format)
	if err != nil {
		return nil, fmt.Errorf("failed to create loggers: %w", err)
	}
	return &runtimeEnv{cfg: cfg, stdout: stdout, stderr: stderr}, nil
}

// stringOption returns the flag value when it was set explicitly, then the
// configured value, then the flag default.
func stringOption(c *cli.Context, name, configured string) string {
	if c.IsSet(name) || configured == "" {
		return c.String(name)
	}
	return configured
}

// initDB opens the history database. An empty path disables history.
func initDB(path string) (*storage.DB, error) {
	if path == "" {
		return nil, nil
	}
	return storage.InitDB(storage.Config{
		DatabasePath: path,
		LogLevel:     "warn",
	})
}

func closeDB(db *storage.DB, stderr *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		// cleanup path, the command already finished
		stderr.Warn("failed to close database", "error", err)
	}
}
