package cli

import (
	"context"

	"github.com/google/go-github/v57/github"

	"github.com/spresense-arduino/pkgindex/internal/storage"
)

// ReleasePublisher abstracts GitHub release operations for testing.
// Following Dave Cheney's principle: "Accept interfaces, return structs"
type ReleasePublisher interface {
	// GetRelease returns the release tagged tag, or github.ErrReleaseNotFound.
	GetRelease(ctx context.Context, tag string) (*github.RepositoryRelease, error)

	// CreateRelease creates a new GitHub release with the given parameters.
	CreateRelease(ctx context.Context, tag, name, body string, draft, prerelease bool) (*github.RepositoryRelease, error)

	// ListAssets returns the files already attached to a release.
	ListAssets(ctx context.Context, releaseID int64) ([]*github.ReleaseAsset, error)

	// UploadAsset uploads a file to an existing GitHub release.
	UploadAsset(ctx context.Context, releaseID int64, filePath string) (*github.ReleaseAsset, error)

	GetAssetDownloadURL(asset *github.ReleaseAsset) string
	GetReleaseURL(release *github.RepositoryRelease) string
}

// ReleaseStore records published releases.
type ReleaseStore interface {
	CreateRelease(release *storage.Release) error
	// GetRelease returns the release of pkg at version, or
	// storage.ErrReleaseNotFound.
	GetRelease(pkg, version string) (*storage.Release, error)
}

// UpdateRecorder records applied package index updates.
type UpdateRecorder interface {
	RecordUpdate(update *storage.IndexUpdate) error
}
