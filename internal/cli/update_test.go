package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/kinbiko/jsonassert"

	"github.com/spresense-arduino/pkgindex/internal/archive"
	"github.com/spresense-arduino/pkgindex/internal/index"
	"github.com/spresense-arduino/pkgindex/internal/updater"
	"github.com/spresense-arduino/pkgindex/internal/validate"
)

const fixturePath = "../index/testdata/package_spresense_index.json"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// workspace copies the fixture index into a temp dir and creates an archive
// directory holding the named files; each file contains its own name.
func workspace(t *testing.T, archives ...string) (input, archiveDir string) {
	t.Helper()
	dir := t.TempDir()

	data, err := os.ReadFile(fixturePath)
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	input = filepath.Join(dir, "package_spresense_index.json")
	if err := os.WriteFile(input, data, 0644); err != nil {
		t.Fatal(err)
	}

	archiveDir = filepath.Join(dir, "out")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range archives {
		if err := os.WriteFile(filepath.Join(archiveDir, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return input, archiveDir
}

func newRequest(input, archiveDir, output string) updateRequest {
	return updateRequest{
		Options: updater.Options{ArchiveDir: archiveDir, Version: "2.0.0"},
		Input:   input,
		Output:  output,
	}
}

func TestRunUpdate_WritesOutput(t *testing.T) {
	input, dir := workspace(t, "spresense-v2.0.0.tar.gz", "spresense-sdk-v2.0.0.tar.gz", "README.txt")
	output := filepath.Join(filepath.Dir(input), "new_index.json")
	recorder := &mockUpdateRecorder{}

	var stdout bytes.Buffer
	result, err := runUpdate(context.Background(), &stdout, newRequest(input, dir, output), recorder, discardLogger(), discardLogger())
	if err != nil {
		t.Fatalf("runUpdate() error: %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("runUpdate() printed %q, want nothing on stdout", stdout.String())
	}

	doc, err := index.Load(output)
	if err != nil {
		t.Fatalf("output does not load: %v", err)
	}
	if err := validate.Document(doc); err != nil {
		t.Errorf("output fails schema: %v", validate.Details(err))
	}

	pkg := doc.FindPackage("SPRESENSE")
	latest := pkg.Platforms[len(pkg.Platforms)-1]
	if latest.Version != "2.0.0" || latest.ArchiveFileName != "spresense-v2.0.0.tar.gz" {
		t.Errorf("latest platform = %s %s", latest.Version, latest.ArchiveFileName)
	}
	wantURL := "https://github.com/sonydevworld/spresense-arduino-compatible/releases/download/v2.0.0/spresense-v2.0.0.tar.gz"
	if latest.URL != wantURL {
		t.Errorf("platform url = %q, want %q", latest.URL, wantURL)
	}
	info, _ := archive.Stat(filepath.Join(dir, "spresense-v2.0.0.tar.gz"))
	if latest.Checksum != info.Checksum || latest.Size.String() != "23" {
		t.Errorf("platform checksum/size = %s/%s, want %s/23", latest.Checksum, latest.Size, info.Checksum)
	}

	// input is untouched
	original, _ := os.ReadFile(fixturePath)
	current, _ := os.ReadFile(input)
	if !bytes.Equal(original, current) {
		t.Error("runUpdate() modified the input file")
	}

	if len(recorder.records) != 1 {
		t.Fatalf("recorded %d updates, want 1", len(recorder.records))
	}
	rec := recorder.records[0]
	if rec.Version != "2.0.0" || rec.BaseVersion != "1.10.0" || rec.Tools != "spresense-sdk" ||
		rec.ArchiveCount != 2 || rec.DigestAfter != result.DigestAfter || rec.DryRun {
		t.Errorf("recorded update = %+v", rec)
	}
}

func TestRunUpdate_Stdout(t *testing.T) {
	for _, output := range []string{stdoutPath, ""} {
		t.Run("output "+strconv.Quote(output), func(t *testing.T) {
			input, dir := workspace(t, "spresense-v2.0.0.tar.gz")

			var stdout bytes.Buffer
			if _, err := runUpdate(context.Background(), &stdout, newRequest(input, dir, output), nil, discardLogger(), discardLogger()); err != nil {
				t.Fatalf("runUpdate() error: %v", err)
			}

			doc, err := index.Parse(stdout.Bytes())
			if err != nil {
				t.Fatalf("stdout is not a package index: %v", err)
			}
			if pkg := doc.FindPackage("SPRESENSE"); pkg == nil || pkg.Platforms[len(pkg.Platforms)-1].Version != "2.0.0" {
				t.Errorf("stdout index has no 2.0.0 platform")
			}
			want, err := index.Marshal(doc)
			if err != nil {
				t.Fatal(err)
			}
			jsonassert.New(t).Assertf(stdout.String(), "%s", want)

			if _, err := os.Stat(filepath.Join(filepath.Dir(input), stdoutPath)); !errors.Is(err, os.ErrNotExist) {
				t.Error("runUpdate() created a file named -")
			}
		})
	}
}

func TestRunUpdate_DryRun(t *testing.T) {
	input, dir := workspace(t, "spresense-v2.0.0.tar.gz")
	recorder := &mockUpdateRecorder{}

	req := newRequest(input, dir, input)
	req.DryRun = true

	var stdout bytes.Buffer
	if _, err := runUpdate(context.Background(), &stdout, req, recorder, discardLogger(), discardLogger()); err != nil {
		t.Fatalf("runUpdate() error: %v", err)
	}

	patch := stdout.String()
	for _, want := range []string{"--- a/" + input, "+++ b/" + input} {
		if !strings.Contains(patch, want) {
			t.Errorf("dry-run diff missing header %q", want)
		}
	}
	added := addedLines(patch)
	for _, want := range []string{
		`"version": "2.0.0"`,
		`"archiveFileName": "spresense-v2.0.0.tar.gz"`,
	} {
		if !added[want] {
			t.Errorf("dry-run diff adds no %s line", want)
		}
	}

	original, _ := os.ReadFile(fixturePath)
	current, _ := os.ReadFile(input)
	if !bytes.Equal(original, current) {
		t.Error("dry run wrote the output file")
	}
	if len(recorder.records) != 1 || !recorder.records[0].DryRun {
		t.Errorf("dry run records = %+v", recorder.records)
	}
}

// addedLines returns the added lines of a unified diff with indentation and
// trailing commas removed.
func addedLines(patch string) map[string]bool {
	added := map[string]bool{}
	for _, line := range strings.Split(patch, "\n") {
		if !strings.HasPrefix(line, "+") || strings.HasPrefix(line, "+++") {
			continue
		}
		added[strings.TrimSuffix(strings.TrimSpace(line[1:]), ",")] = true
	}
	return added
}

func TestRunUpdate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		archives []string
		modify   func(req *updateRequest, input string)
		wantErr  error
	}{
		{
			name:     "missing archive dir",
			archives: []string{"x"},
			modify:   func(req *updateRequest, _ string) { req.Options.ArchiveDir = "" },
			wantErr:  updater.ErrArchiveDirRequired,
		},
		{
			name:     "missing version",
			archives: []string{"x"},
			modify:   func(req *updateRequest, _ string) { req.Options.Version = "" },
			wantErr:  updater.ErrVersionRequired,
		},
		{
			name:    "empty archive dir",
			wantErr: archive.ErrNoArchives,
		},
		{
			name:     "input fails schema",
			archives: []string{"spresense-v2.0.0.tar.gz"},
			modify: func(req *updateRequest, input string) {
				req.Validate = true
				_ = os.WriteFile(input, []byte(`{"packages": [{"name": "P"}]}`), 0644)
			},
			wantErr: validate.ErrInvalidIndex,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, dir := workspace(t, tt.archives...)
			output := filepath.Join(filepath.Dir(input), "new_index.json")
			req := newRequest(input, dir, output)
			if tt.modify != nil {
				tt.modify(&req, input)
			}

			recorder := &mockUpdateRecorder{}
			_, err := runUpdate(context.Background(), io.Discard, req, recorder, discardLogger(), discardLogger())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("runUpdate() error = %v, want %v", err, tt.wantErr)
			}
			if _, statErr := os.Stat(output); !errors.Is(statErr, os.ErrNotExist) {
				t.Error("output written despite error")
			}
			if len(recorder.records) != 0 {
				t.Error("update recorded despite error")
			}
		})
	}
}

func TestRunUpdate_RecorderFailureIsNotFatal(t *testing.T) {
	input, dir := workspace(t, "spresense-v2.0.0.tar.gz")
	output := filepath.Join(filepath.Dir(input), "new_index.json")
	recorder := &mockUpdateRecorder{err: errors.New("disk full")}

	if _, err := runUpdate(context.Background(), io.Discard, newRequest(input, dir, output), recorder, discardLogger(), discardLogger()); err != nil {
		t.Fatalf("runUpdate() error: %v", err)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("output not written: %v", err)
	}
}
