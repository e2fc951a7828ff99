package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Sentinel errors for release operations.
var (
	ErrNilRelease      = errors.New("release cannot be nil")
	ErrReleaseNotFound = errors.New("release not found")
)

// CreateRelease inserts a new release record into the database.
// Returns an error if the release already exists (duplicate release_tag).
func (d *DB) CreateRelease(release *Release) error {
	if release == nil {
		return ErrNilRelease
	}

	if err := d.db.Create(release).Error; err != nil {
		return fmt.Errorf("failed to create release: %w", err)
	}

	return nil
}

// GetRelease retrieves a release by package and version.
// Returns ErrReleaseNotFound if no matching release exists.
func (d *DB) GetRelease(pkg, version string) (*Release, error) {
	if pkg == "" {
		return nil, fmt.Errorf("package cannot be empty")
	}
	if version == "" {
		return nil, fmt.Errorf("version cannot be empty")
	}

	var release Release
	if err := d.db.Where("package = ? AND version = ?", pkg, version).First(&release).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReleaseNotFound
		}
		return nil, fmt.Errorf("failed to get release: %w", err)
	}

	return &release, nil
}

// ListReleases retrieves the releases of pkg, newest first. An empty pkg
// lists every release.
func (d *DB) ListReleases(pkg string) ([]Release, error) {
	var releases []Release
	query := d.db.Order("created_at DESC")
	if pkg != "" {
		query = query.Where("package = ?", pkg)
	}
	if err := query.Find(&releases).Error; err != nil {
		return nil, fmt.Errorf("failed to list releases: %w", err)
	}

	return releases, nil
}

// ExportReleasesJSON exports the releases of pkg as indented JSON.
func (d *DB) ExportReleasesJSON(pkg string) ([]byte, error) {
	releases, err := d.ListReleases(pkg)
	if err != nil {
		return nil, err
	}
	if releases == nil {
		releases = []Release{}
	}

	data, err := json.MarshalIndent(releases, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal releases to JSON: %w", err)
	}

	return data, nil
}
