package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/go-github/v57/github"

	gh "github.com/spresense-arduino/pkgindex/internal/github"
	"github.com/spresense-arduino/pkgindex/internal/storage"
)

// mockReleasePublisher implements ReleasePublisher for testing.
type mockReleasePublisher struct {
	getReleaseFn    func(tag string) (*github.RepositoryRelease, error)
	createReleaseFn func(tag, name, body string, draft, prerelease bool) (*github.RepositoryRelease, error)
	listAssetsFn    func(releaseID int64) ([]*github.ReleaseAsset, error)
	uploadAssetFn   func(releaseID int64, filePath string) (*github.ReleaseAsset, error)

	uploaded []string
}

// GetRelease implements ReleasePublisher. Releases do not exist by default.
func (m *mockReleasePublisher) GetRelease(_ context.Context, tag string) (*github.RepositoryRelease, error) {
	if m.getReleaseFn != nil {
		return m.getReleaseFn(tag)
	}
	return nil, gh.ErrReleaseNotFound
}

// CreateRelease implements ReleasePublisher.
func (m *mockReleasePublisher) CreateRelease(_ context.Context, tag, name, body string, draft, prerelease bool) (*github.RepositoryRelease, error) {
	if m.createReleaseFn != nil {
		return m.createReleaseFn(tag, name, body, draft, prerelease)
	}
	return &github.RepositoryRelease{
		ID:         github.Int64(123),
		TagName:    github.String(tag),
		Name:       github.String(name),
		Body:       github.String(body),
		Draft:      github.Bool(draft),
		Prerelease: github.Bool(prerelease),
		HTMLURL:    github.String(fmt.Sprintf("https://github.com/owner/repo/releases/tag/%s", tag)),
	}, nil
}

// ListAssets implements ReleasePublisher.
func (m *mockReleasePublisher) ListAssets(_ context.Context, releaseID int64) ([]*github.ReleaseAsset, error) {
	if m.listAssetsFn != nil {
		return m.listAssetsFn(releaseID)
	}
	return nil, nil
}

// UploadAsset implements ReleasePublisher.
func (m *mockReleasePublisher) UploadAsset(_ context.Context, releaseID int64, filePath string) (*github.ReleaseAsset, error) {
	if m.uploadAssetFn != nil {
		return m.uploadAssetFn(releaseID, filePath)
	}
	name := filepath.Base(filePath)
	m.uploaded = append(m.uploaded, name)
	return &github.ReleaseAsset{
		ID:                 github.Int64(456),
		Name:               github.String(name),
		BrowserDownloadURL: github.String("https://github.com/owner/repo/releases/download/v/" + name),
	}, nil
}

// GetAssetDownloadURL implements ReleasePublisher.
func (m *mockReleasePublisher) GetAssetDownloadURL(asset *github.ReleaseAsset) string {
	return asset.GetBrowserDownloadURL()
}

// GetReleaseURL implements ReleasePublisher.
func (m *mockReleasePublisher) GetReleaseURL(release *github.RepositoryRelease) string {
	return release.GetHTMLURL()
}

// mockReleaseStore implements ReleaseStore for testing.
type mockReleaseStore struct {
	createReleaseFn func(release *storage.Release) error
	getReleaseFn    func(pkg, version string) (*storage.Release, error)

	created []*storage.Release
}

// CreateRelease implements ReleaseStore.
func (m *mockReleaseStore) CreateRelease(release *storage.Release) error {
	if m.createReleaseFn != nil {
		return m.createReleaseFn(release)
	}
	m.created = append(m.created, release)
	return nil
}

// GetRelease implements ReleaseStore.
func (m *mockReleaseStore) GetRelease(pkg, version string) (*storage.Release, error) {
	if m.getReleaseFn != nil {
		return m.getReleaseFn(pkg, version)
	}
	return nil, storage.ErrReleaseNotFound
}

// mockUpdateRecorder implements UpdateRecorder for testing.
type mockUpdateRecorder struct {
	err     error
	records []*storage.IndexUpdate
}

// RecordUpdate implements UpdateRecorder.
func (m *mockUpdateRecorder) RecordUpdate(update *storage.IndexUpdate) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, update)
	return nil
}
