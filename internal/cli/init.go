package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/spresense-arduino/pkgindex/internal/config"
)

var ErrConfigExists = errors.New("configuration file already exists (use --force to overwrite)")

// initCommand writes the default configuration to the --config path.
func initCommand(c *cli.Context) error {
	stdout, stderr, err := NewLoggers(c.App.ErrWriter, c.String("log-level"), "json")
	if err != nil {
		return fmt.Errorf("failed to create loggers: %w", err)
	}

	path := c.String("config")
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s: %w", path, ErrConfigExists)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to check config file %s: %w", path, err)
	}

	cfg := config.DefaultConfig()
	cfg.Metadata.Name = "pkgindex"
	cfg.Release.GitHubRepository = c.String("repo")
	cfg.Storage.DatabasePath = c.String("db")
	if err := cfg.Validate(); err != nil {
		stderr.Error("refusing to write invalid configuration", "error", err)
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := config.SaveConfig(cfg, path); err != nil {
		return err
	}
	stdout.Info("wrote configuration", "path", path)
	return nil
}
