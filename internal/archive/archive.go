// Package archive inspects the directory of release archives produced by a
// build: which archives exist, what they are called, and their size and
// checksum as recorded in a package index.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

const (
	// Extension is the suffix of every release archive.
	Extension = ".tar.gz"
	// ChecksumAlgorithm prefixes checksums in the package index.
	ChecksumAlgorithm = "SHA-256"
)

var ErrNoArchives = errors.New("archive directory is empty")

// Name returns the file name of a component archive:
// <component>-v<version><suffix>.tar.gz.
func Name(component, version, suffix string) string {
	return component + "-v" + version + suffix + Extension
}

// Set is the listing of an archive directory.
type Set struct {
	dir   string
	names map[string]struct{}
}

// List enumerates the regular files in dir.
func List(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	// only a directory without any entry is empty; subdirectories are
	// never archives but still count
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoArchives, dir)
	}

	set := &Set{dir: dir, names: make(map[string]struct{}, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		set.names[entry.Name()] = struct{}{}
	}
	return set, nil
}

// Dir returns the listed directory.
func (s *Set) Dir() string {
	return s.dir
}

// Has reports whether name was present when the directory was listed.
func (s *Set) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Path returns the full path of name inside the directory.
func (s *Set) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Names returns the listed file names in lexical order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.names))
	for name := range s.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info describes one archive as it is recorded in the index.
type Info struct {
	Name     string
	Size     int64
	Checksum string
}

// Stat returns the size and checksum of the file at path. The checksum is
// computed over the full contents and formatted as SHA-256:<lowercase hex>.
func Stat(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	n, err := io.Copy(hash, file)
	if err != nil {
		return Info{}, fmt.Errorf("failed to hash archive %s: %w", filepath.Base(path), err)
	}

	return Info{
		Name:     filepath.Base(path),
		Size:     n,
		Checksum: ChecksumAlgorithm + ":" + hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// Stat returns the Info of a listed archive.
func (s *Set) Stat(name string) (Info, error) {
	return Stat(s.Path(name))
}
