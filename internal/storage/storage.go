// Package storage keeps a local history of package index updates and
// published releases using GORM and SQLite.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sentinel errors following Dave Cheney's principle: define errors as values
var (
	ErrNilUpdate         = errors.New("index update cannot be nil")
	ErrNotFound          = errors.New("index update not found")
	ErrInvalidVersionFmt = errors.New("invalid version format: expected major.minor.patch")
)

const inMemory = ":memory:"

// IndexUpdate records one applied (or dry-run) package index update.
type IndexUpdate struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// What was released
	Package      string `gorm:"not null;index:idx_package_version" json:"package"`
	Version      string `gorm:"not null;index:idx_package_version" json:"version"`
	VersionMajor int    `gorm:"index" json:"version_major"`
	VersionMinor int    `json:"version_minor"`
	VersionPatch int    `json:"version_patch"`

	// Where it came from
	BaseVersion     string `gorm:"not null" json:"base_version"`
	BaseFallback    bool   `gorm:"not null;default:false" json:"base_fallback"`
	BaseURL         string `gorm:"not null" json:"base_url"`
	PlatformArchive string `json:"platform_archive,omitempty"`
	Tools           string `json:"tools,omitempty"` // comma separated tool names
	ArchiveCount    int    `json:"archive_count"`

	// Documents
	InputPath    string `json:"input_path"`
	OutputPath   string `json:"output_path"`
	DigestBefore string `gorm:"not null" json:"digest_before"`
	DigestAfter  string `gorm:"not null" json:"digest_after"`
	DryRun       bool   `gorm:"not null;default:false" json:"dry_run"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides the table name for GORM.
func (IndexUpdate) TableName() string {
	return "index_updates"
}

// Store defines the interface for update history operations
type Store interface {
	Close() error
	RecordUpdate(*IndexUpdate) error
	ListUpdates(pkg string) ([]*IndexUpdate, error)
	GetLatestUpdate(pkg string) (*IndexUpdate, error)
	ExportReleasesJSON(pkg string) ([]byte, error)
}

var _ Store = (*DB)(nil)

// DB wraps gorm.DB with our history operations
type DB struct {
	db *gorm.DB
}

// Config holds database configuration
type Config struct {
	DatabasePath string
	LogLevel     string // silent, error, warn, info
}

// InitDB opens the database, creating its directory if needed, and runs
// migrations.
func InitDB(cfg Config) (*DB, error) {
	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	logLevel := logger.Silent
	switch cfg.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	if cfg.DatabasePath != inMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&IndexUpdate{}, &Release{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// RecordUpdate inserts an update record. Version components are filled in
// from Version when it is major.minor.patch.
func (d *DB) RecordUpdate(update *IndexUpdate) error {
	if update == nil {
		return ErrNilUpdate
	}
	if major, minor, patch, err := ParseSemver(update.Version); err == nil {
		update.VersionMajor, update.VersionMinor, update.VersionPatch = major, minor, patch
	}
	if err := d.db.Create(update).Error; err != nil {
		return fmt.Errorf("failed to record index update: %w", err)
	}
	return nil
}

// ListUpdates returns the updates of pkg, newest first. An empty pkg lists
// every package.
func (d *DB) ListUpdates(pkg string) ([]*IndexUpdate, error) {
	var updates []*IndexUpdate
	query := d.db.Order("created_at DESC").Order("id DESC")
	if pkg != "" {
		query = query.Where("package = ?", pkg)
	}
	if err := query.Find(&updates).Error; err != nil {
		return nil, fmt.Errorf("failed to list index updates: %w", err)
	}
	return updates, nil
}

// GetLatestUpdate returns the newest non dry-run update of pkg.
func (d *DB) GetLatestUpdate(pkg string) (*IndexUpdate, error) {
	if pkg == "" {
		return nil, fmt.Errorf("package cannot be empty")
	}

	var update IndexUpdate
	err := d.db.Where("package = ? AND dry_run = ?", pkg, false).
		Order("created_at DESC").Order("id DESC").
		First(&update).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest index update: %w", err)
	}
	return &update, nil
}

// ParseSemver parses a semantic version string and returns major, minor, patch components.
// It expects versions in the format "major.minor.patch" (e.g., "1.2.3").
// Returns an error if the version string doesn't match the expected format.
func ParseSemver(version string) (major, minor, patch int, err error) {
	n, err := fmt.Sscanf(version, "%d.%d.%d", &major, &minor, &patch)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to parse version %q: %w", version, err)
	}
	if n != 3 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidVersionFmt, version)
	}
	return major, minor, patch, nil
}
