package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/spresense-arduino/pkgindex/internal/index"
	"github.com/spresense-arduino/pkgindex/internal/lookup"
)

// lookupCommand implements the lookup command. The value is printed on its
// own line so build scripts can capture it.
func lookupCommand(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}

	path := c.String("json")
	doc, err := index.Load(path)
	if err != nil {
		env.stderr.Error("failed to load package index", "file", path, "error", err)
		return err
	}

	q := lookup.Query{
		Package: c.String("package"),
		Board:   c.String("board"),
		Tool:    c.String("tool"),
		Host:    c.String("host"),
		Key:     c.String("key"),
	}
	value, err := lookup.Tool(doc, q)
	if err != nil {
		env.stderr.Error("lookup failed",
			"package", q.Package, "board", q.Board, "tool", q.Tool, "host", q.Host, "key", q.Key,
			"error", err)
		return err
	}

	env.stdout.Debug("lookup", "tool", q.Tool, "key", q.Key, "value", value)
	_, err = fmt.Fprintln(c.App.Writer, value)
	return err
}
