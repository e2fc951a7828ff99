package index

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	cjson "github.com/gibson042/canonicaljson-go"
	"github.com/gofrs/flock"
)

const (
	// DefaultFilename is used for both input and output when no path is given.
	DefaultFilename = "package_index.json"

	defaultFilePermissions = 0644
	lockTimeout            = 5 * time.Second
	lockRetryDelay         = 13 * time.Millisecond
)

// Sentinel errors for index documents.
var (
	ErrNoPackages  = errors.New("package index has no packages")
	ErrIndexLocked = errors.New("package index is locked by another process")
)

// Parse decodes a package index document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse package index: %w", err)
	}
	return &doc, nil
}

// Load reads and parses the package index at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package index %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Marshal encodes the document with 2-space indentation and sorted keys,
// followed by a newline.
func Marshal(doc *Document) ([]byte, error) {
	compact, err := marshalNoEscape(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode package index: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to indent package index: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Write encodes the document to w.
func Write(w io.Writer, doc *Document) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Digest returns "sha256:<hex>" of the canonical JSON form of the document.
// Formatting and key order of the source file do not affect it.
func Digest(doc *Document) (string, error) {
	data, err := marshalNoEscape(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode package index: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", fmt.Errorf("failed to decode package index: %w", err)
	}
	canonical, err := cjson.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize package index: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// WriteFile writes the document to path atomically while holding
// path + ".lock". Either the whole new document is visible or the old file
// stays as it was. The lock file is removed again once the write is done.
func WriteFile(ctx context.Context, path string, doc *Document) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	unlock, err := lockFile(ctx, path)
	defer unlock()
	if err != nil {
		return err
	}

	if err := atomicWriteFile(path, data, defaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write package index %s: %w", path, err)
	}
	return nil
}

type unlockFunc func()

func lockFile(ctx context.Context, path string) (unlockFunc, error) {
	fl := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	unlock := func() {
		cancel()
		_ = fl.Unlock()
	}
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return unlock, fmt.Errorf("%w: %s", ErrIndexLocked, path)
		}
		return unlock, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		return unlock, fmt.Errorf("%w: %s", ErrIndexLocked, path)
	}
	return func() {
		// remove before releasing
		_ = os.Remove(fl.Path())
		unlock()
	}, nil
}

// FirstPackage returns the first package of the document.
func (d *Document) FirstPackage() (*Package, error) {
	if len(d.Packages) == 0 {
		return nil, ErrNoPackages
	}
	return d.Packages[0], nil
}

// FindPackage returns the package with the given name, or nil.
func (d *Document) FindPackage(name string) *Package {
	for _, p := range d.Packages {
		if p.Name == name {
			return p
		}
	}
	return nil
}
