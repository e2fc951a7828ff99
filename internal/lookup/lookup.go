// Package lookup answers build-script questions about a package index, such
// as "which version of spresense-sdk does the spresense board need" or "what
// is the download URL of that tool for Linux64".
package lookup

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spresense-arduino/pkgindex/internal/index"
	"github.com/spresense-arduino/pkgindex/internal/platform"
)

// VersionKey asks for the tool version the platform depends on.
const VersionKey = "version"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidQuery = errors.New("invalid query")
)

// Query addresses one value of a tool a board depends on.
type Query struct {
	Package string
	Board   string // platform architecture
	Tool    string
	Host    string // alias, triple, or empty for the current machine
	Key     string
}

// Validate checks that every required field is set.
func (q Query) Validate() error {
	switch {
	case q.Package == "":
		return fmt.Errorf("%w: package is required", ErrInvalidQuery)
	case q.Board == "":
		return fmt.Errorf("%w: board is required", ErrInvalidQuery)
	case q.Tool == "":
		return fmt.Errorf("%w: tool is required", ErrInvalidQuery)
	case q.Key == "":
		return fmt.Errorf("%w: key is required", ErrInvalidQuery)
	}
	return nil
}

// NotFoundError names the level of the index at which a lookup failed.
type NotFoundError struct {
	Level string
	Name  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Level, e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Tool resolves q against doc and returns the requested value as text.
func Tool(doc *index.Document, q Query) (string, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}

	pkg := doc.FindPackage(q.Package)
	if pkg == nil {
		return "", &NotFoundError{Level: "package", Name: q.Package}
	}

	plat := findPlatform(pkg, q.Board)
	if plat == nil {
		return "", &NotFoundError{Level: "board", Name: q.Board}
	}

	dep := findDependency(plat, q.Tool)
	if dep == nil {
		return "", &NotFoundError{Level: "tool dependency", Name: q.Tool}
	}
	if q.Key == VersionKey {
		return dep.Version, nil
	}

	tool := findTool(pkg, dep.Name, dep.Version)
	if tool == nil {
		return "", &NotFoundError{Level: "tool", Name: dep.Name + "@" + dep.Version}
	}

	host, err := platform.ResolveHost(q.Host)
	if err != nil {
		return "", err
	}

	sys := findSystem(tool, host.Triple)
	if sys == nil {
		return "", &NotFoundError{Level: "system", Name: host.Triple}
	}
	return systemValue(sys, q.Key)
}

func findPlatform(pkg *index.Package, architecture string) *index.Platform {
	for _, p := range pkg.Platforms {
		if p.Architecture == architecture {
			return p
		}
	}
	return nil
}

func findDependency(p *index.Platform, name string) *index.ToolDependency {
	for _, dep := range p.ToolsDependencies {
		if dep.Name == name {
			return dep
		}
	}
	return nil
}

func findTool(pkg *index.Package, name, version string) *index.Tool {
	for _, t := range pkg.Tools {
		if t.Name == name && t.Version == version {
			return t
		}
	}
	return nil
}

func findSystem(t *index.Tool, triple string) *index.System {
	for _, s := range t.Systems {
		if s.Host == triple {
			return s
		}
	}
	return nil
}

func systemValue(s *index.System, key string) (string, error) {
	switch key {
	case "host":
		return s.Host, nil
	case "url":
		return s.URL, nil
	case "archiveFileName":
		return s.ArchiveFileName, nil
	case "checksum":
		return s.Checksum, nil
	case "size":
		return s.Size.String(), nil
	}

	raw, ok := s.Extra(key)
	if !ok {
		return "", &NotFoundError{Level: "key", Name: key}
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}
	// numbers, objects and arrays are printed as JSON
	return string(raw), nil
}
