package storage

import "time"

// Release represents a GitHub release of a package version with the assets
// uploaded to it.
type Release struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Package     string    `gorm:"not null;index:idx_release_package_version" json:"package"`
	Version     string    `gorm:"not null;index:idx_release_package_version" json:"version"`
	SemverMajor int       `gorm:"not null" json:"semver_major"`
	SemverMinor int       `gorm:"not null" json:"semver_minor"`
	SemverPatch int       `gorm:"not null" json:"semver_patch"`
	ReleaseTag  string    `gorm:"not null;unique" json:"release_tag"`
	ReleaseURL  string    `gorm:"not null" json:"release_url"`
	Draft       bool      `gorm:"not null;default:false" json:"draft"`
	IndexDigest string    `json:"index_digest,omitempty"`
	Assets      string    `gorm:"type:json" json:"assets"` // JSON blob of ReleaseAssets
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

// TableName overrides the table name for GORM.
func (Release) TableName() string {
	return "releases"
}

// ReleaseAssets is stored as JSON in Release.Assets.
type ReleaseAssets struct {
	Archives []AssetFile     `json:"archives"`
	Index    *AssetFile      `json:"index,omitempty"`
	Metadata ReleaseMetadata `json:"metadata"`
}

// AssetFile is one uploaded file.
type AssetFile struct {
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum"` // SHA-256:<hex>
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ReleaseMetadata summarizes the uploaded assets.
type ReleaseMetadata struct {
	TotalAssets        int   `json:"total_assets"`
	TotalSizeBytes     int64 `json:"total_size_bytes"`
	UploadDurationSecs int   `json:"upload_duration_seconds"`
}
