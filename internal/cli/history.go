package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/spresense-arduino/pkgindex/internal/storage"
)

var (
	ErrDatabaseRequired = errors.New("database path is required (--db or storage.database_path)")
	ErrPackageRequired  = errors.New("--latest needs --package")
)

// historyQuery selects what the history command prints.
type historyQuery struct {
	Package  string
	Releases bool
	Latest   bool
}

// historyCommand implements the history command.
func historyCommand(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}

	q := historyQuery{
		Package:  c.String("package"),
		Releases: c.Bool("releases"),
		Latest:   c.Bool("latest"),
	}
	if q.Latest && q.Package == "" {
		return ErrPackageRequired
	}

	path := stringOption(c, "db", env.cfg.Storage.DatabasePath)
	if path == "" {
		return ErrDatabaseRequired
	}
	db, err := initDB(path)
	if err != nil {
		env.stderr.Error("failed to initialize database", "error", err)
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeDB(db, env.stderr)

	return writeHistory(c.App.Writer, db, q)
}

func writeHistory(w io.Writer, store storage.Store, q historyQuery) error {
	var data []byte
	var err error
	switch {
	case q.Releases:
		data, err = store.ExportReleasesJSON(q.Package)
		if err != nil {
			return err
		}
	case q.Latest:
		update, err := store.GetLatestUpdate(q.Package)
		if err != nil {
			return fmt.Errorf("latest update of %s: %w", q.Package, err)
		}
		data, err = json.MarshalIndent(update, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal update to JSON: %w", err)
		}
	default:
		updates, err := store.ListUpdates(q.Package)
		if err != nil {
			return err
		}
		if updates == nil {
			updates = []*storage.IndexUpdate{}
		}
		data, err = json.MarshalIndent(updates, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal updates to JSON: %w", err)
		}
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
