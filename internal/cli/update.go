package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/spresense-arduino/pkgindex/internal/diff"
	"github.com/spresense-arduino/pkgindex/internal/gpg"
	"github.com/spresense-arduino/pkgindex/internal/index"
	"github.com/spresense-arduino/pkgindex/internal/storage"
	"github.com/spresense-arduino/pkgindex/internal/updater"
	"github.com/spresense-arduino/pkgindex/internal/validate"
)

// stdoutPath selects standard output as the update destination. An empty
// output path does the same.
const stdoutPath = "-"

// updateRequest is one invocation of the update command.
type updateRequest struct {
	Options  updater.Options
	Input    string
	Output   string
	DryRun   bool
	Validate bool
}

// updateCommand implements the update command.
func updateCommand(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	cfg := env.cfg

	req := updateRequest{
		Options: updater.Options{
			ArchiveDir:    c.String("archive"),
			Version:       c.String("version"),
			BaseVersion:   c.String("base-version"),
			DownloadURL:   stringOption(c, "url", cfg.Index.DownloadURL),
			PlatformName:  stringOption(c, "platform-name", cfg.Index.PlatformName),
			Maintainer:    stringOption(c, "maintainer", cfg.Index.Maintainer),
			PackageSuffix: stringOption(c, "suffix", cfg.Index.PackageSuffix),
		},
		Input:    stringOption(c, "input", cfg.Index.Input),
		Output:   stringOption(c, "output", cfg.Index.Output),
		DryRun:   c.Bool("dry-run"),
		Validate: c.Bool("validate"),
	}

	if dir := stringOption(c, "keyring", cfg.Signing.KeyringDir); dir != "" {
		keyRing, err := gpg.LoadKeyRingFromPath(dir)
		if err != nil {
			env.stderr.Error("failed to load keyring", "dir", dir, "error", err)
			return fmt.Errorf("failed to load keyring: %w", err)
		}
		env.stdout.Info("loaded keyring", "dir", dir, "keys", keyRing.CountKeys())
		req.Options.KeyRing = keyRing
	}

	db, err := initDB(stringOption(c, "db", cfg.Storage.DatabasePath))
	if err != nil {
		env.stderr.Error("failed to initialize database", "error", err)
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeDB(db, env.stderr)

	var recorder UpdateRecorder
	if db != nil {
		recorder = db
	}

	_, err = runUpdate(c.Context, c.App.Writer, req, recorder, env.stdout, env.stderr)
	return err
}

// runUpdate applies req and writes, prints or diffs the result. Nothing is
// written when any step fails.
func runUpdate(ctx context.Context, w io.Writer, req updateRequest, recorder UpdateRecorder, stdout, stderr *slog.Logger) (*updater.Result, error) {
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}

	var raw []byte
	if req.DryRun || req.Validate {
		var err error
		raw, err = os.ReadFile(req.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to read package index %s: %w", req.Input, err)
		}
	}
	if req.Validate {
		if err := validate.Bytes(raw); err != nil {
			logSchemaErrors(stderr, req.Input, err)
			return nil, fmt.Errorf("input %s: %w", req.Input, err)
		}
	}

	doc, result, err := updater.New(stdout, stderr).Run(req.Options, req.Input)
	if err != nil {
		stderr.Error("update failed", "input", req.Input, "error", err)
		return nil, err
	}

	out, err := index.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if req.Validate {
		if err := validate.Bytes(out); err != nil {
			logSchemaErrors(stderr, req.Output, err)
			return nil, fmt.Errorf("updated index: %w", err)
		}
	}

	switch {
	case req.DryRun:
		patch, err := diff.Unified("a/"+req.Input, "b/"+req.Output, raw, out, diff.DefaultContext)
		if err != nil {
			return nil, fmt.Errorf("failed to diff package index: %w", err)
		}
		if _, err := io.WriteString(w, patch); err != nil {
			return nil, err
		}
		stdout.Info("dry run, nothing written", "output", req.Output)
	case req.Output == stdoutPath || req.Output == "":
		if _, err := w.Write(out); err != nil {
			return nil, err
		}
	default:
		if err := index.WriteFile(ctx, req.Output, doc); err != nil {
			stderr.Error("failed to write package index", "output", req.Output, "error", err)
			return nil, err
		}
		stdout.Info("wrote package index", "output", req.Output, "digest", result.DigestAfter)
	}

	if recorder != nil {
		update := &storage.IndexUpdate{
			Package:         result.Package,
			Version:         result.Version,
			BaseVersion:     result.BaseVersion,
			BaseFallback:    result.BaseFallback,
			BaseURL:         result.BaseURL,
			PlatformArchive: result.PlatformArchive,
			Tools:           strings.Join(result.ToolNames(), ","),
			ArchiveCount:    len(result.Archives),
			InputPath:       req.Input,
			OutputPath:      req.Output,
			DigestBefore:    result.DigestBefore,
			DigestAfter:     result.DigestAfter,
			DryRun:          req.DryRun,
		}
		if err := recorder.RecordUpdate(update); err != nil {
			// the index is already written; history is best effort
			stderr.Warn("failed to record update", "error", err)
		} else {
			stdout.Debug("recorded update", "id", update.ID)
		}
	}

	return result, nil
}

func logSchemaErrors(stderr *slog.Logger, path string, err error) {
	details := validate.Details(err)
	if len(details) == 0 {
		stderr.Error("schema validation failed", "file", path, "error", err)
		return
	}
	for _, d := range details {
		stderr.Error("schema violation", "file", path, "detail", d)
	}
}
