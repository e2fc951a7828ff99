// Package version provides ordering keys for dotted version strings and
// semantic version validation.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// String constants for operations (used in ErrVersionParseFailed)
const (
	OpParseTuple      = "parse_tuple"
	OpValidateVersion = "validate_version"
	OpCompareLeft     = "compare_left"
	OpCompareRight    = "compare_right"
)

var (
	ErrEmptyVersion = errors.New("version cannot be empty")
	ErrNotInteger   = errors.New("version component is not an integer")
)

// ErrVersionParseFailed represents a version parsing error
type ErrVersionParseFailed struct {
	Version string
	Op      string
	Cause   error
}

func (e ErrVersionParseFailed) Error() string {
	return fmt.Sprintf("failed to parse version %s in operation %s: %v", e.Version, e.Op, e.Cause)
}

func (e ErrVersionParseFailed) Unwrap() error {
	return e.Cause
}

func (e ErrVersionParseFailed) Is(target error) bool {
	var parseErr ErrVersionParseFailed
	return errors.As(target, &parseErr)
}

// Tuple is the comparable key of a dotted version string such as "1.10.0".
// It is only used for ordering and is never persisted.
type Tuple []int

// ParseTuple splits version on "." and parses every component as a base-10
// integer. "1.9.0" yields Tuple{1, 9, 0}.
func ParseTuple(version string) (Tuple, error) {
	if version == "" {
		return nil, ErrVersionParseFailed{Version: version, Op: OpParseTuple, Cause: ErrEmptyVersion}
	}

	parts := strings.Split(version, ".")
	tuple := make(Tuple, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, ErrVersionParseFailed{
				Version: version,
				Op:      OpParseTuple,
				Cause:   fmt.Errorf("%w: %q", ErrNotInteger, part),
			}
		}
		tuple = append(tuple, n)
	}
	return tuple, nil
}

// MustParseTuple is like ParseTuple but panics on error. Intended for tests
// and constants.
func MustParseTuple(version string) Tuple {
	t, err := ParseTuple(version)
	if err != nil {
		panic(err)
	}
	return t
}

// Compare returns -1, 0 or 1. Components are compared numerically from the
// left; when one tuple is a prefix of the other the shorter one sorts first.
func (t Tuple) Compare(other Tuple) int {
	for i := 0; i < len(t) && i < len(other); i++ {
		switch {
		case t[i] < other[i]:
			return -1
		case t[i] > other[i]:
			return 1
		}
	}
	switch {
	case len(t) < len(other):
		return -1
	case len(t) > len(other):
		return 1
	}
	return 0
}

// Less reports whether t sorts before other.
func (t Tuple) Less(other Tuple) bool {
	return t.Compare(other) < 0
}

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, n := range t {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Compare compares two dotted version strings (-1 if v1 < v2, 0 if equal, 1 if v1 > v2)
func Compare(v1, v2 string) (int, error) {
	t1, err := ParseTuple(v1)
	if err != nil {
		return 0, ErrVersionParseFailed{Version: v1, Op: OpCompareLeft, Cause: errors.Unwrap(err)}
	}
	t2, err := ParseTuple(v2)
	if err != nil {
		return 0, ErrVersionParseFailed{Version: v2, Op: OpCompareRight, Cause: errors.Unwrap(err)}
	}
	return t1.Compare(t2), nil
}

// Validator provides version validation using semver
type Validator interface {
	// ValidateVersion validates that a version string is valid semver
	ValidateVersion(version string) error

	// IsPrerelease reports whether version carries a pre-release suffix.
	// Example: "2.0.0-rc1" returns true.
	IsPrerelease(version string) (bool, error)
}

// semverValidator implements Validator using Masterminds/semver
type semverValidator struct{}

// New creates a new version validator
func New() Validator {
	return &semverValidator{}
}

// ValidateVersion validates that a version string is valid semver
func (v *semverValidator) ValidateVersion(version string) error {
	if _, err := semver.StrictNewVersion(version); err != nil {
		return ErrVersionParseFailed{
			Version: version,
			Op:      OpValidateVersion,
			Cause:   err,
		}
	}
	return nil
}

func (v *semverValidator) IsPrerelease(version string) (bool, error) {
	sv, err := semver.NewVersion(version)
	if err != nil {
		return false, ErrVersionParseFailed{
			Version: version,
			Op:      OpValidateVersion,
			Cause:   err,
		}
	}
	return sv.Prerelease() != "", nil
}

// IsSemver reports whether version is a strict major.minor.patch semantic version.
func IsSemver(version string) bool {
	return New().ValidateVersion(version) == nil
}
