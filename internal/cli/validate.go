package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/spresense-arduino/pkgindex/internal/index"
	"github.com/spresense-arduino/pkgindex/internal/validate"
)

// validateCommand implements the validate command. Every file is checked
// even after a failure.
func validateCommand(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}

	paths := c.Args().Slice()
	if len(paths) == 0 {
		path := env.cfg.Index.Input
		if path == "" {
			path = index.DefaultFilename
		}
		paths = []string{path}
	}

	failed := 0
	for _, path := range paths {
		if err := validate.File(path); err != nil {
			logSchemaErrors(env.stderr, path, err)
			failed++
			continue
		}
		env.stdout.Info("package index is valid", "file", path)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d package index files failed validation", failed, len(paths))
	}
	return nil
}
