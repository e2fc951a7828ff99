package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/urfave/cli/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spresense-arduino/pkgindex/internal/archive"
	"github.com/spresense-arduino/pkgindex/internal/config"
	gh "github.com/spresense-arduino/pkgindex/internal/github"
	"github.com/spresense-arduino/pkgindex/internal/index"
	"github.com/spresense-arduino/pkgindex/internal/storage"
	"github.com/spresense-arduino/pkgindex/internal/version"
)

var (
	ErrRepositoryRequired = errors.New("github repository is required (--repo, GITHUB_REPOSITORY or release.github_repository)")
	ErrNothingToPublish   = errors.New("no archives match the version")
)

// PublishRequest describes one release to publish.
type PublishRequest struct {
	ArchiveDir string
	Version    string
	IndexPath  string
	Draft      bool
	Release    config.ReleaseConfig
}

// PublishManager uploads built archives and the package index to a GitHub
// release and records what was published.
// It accepts interfaces for testability (Dave Cheney's "accept interfaces, return structs").
type PublishManager struct {
	github ReleasePublisher
	store  ReleaseStore // optional
	stdout *slog.Logger
	stderr *slog.Logger
}

// NewPublishManager creates a publish manager. store may be nil, in which
// case releases are not recorded.
func NewPublishManager(publisher ReleasePublisher, store ReleaseStore, stdout, stderr *slog.Logger) (*PublishManager, error) {
	if publisher == nil {
		return nil, fmt.Errorf("github client is required")
	}
	return &PublishManager{
		github: publisher,
		store:  store,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// publishCommand implements the publish command.
func publishCommand(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	cfg := env.cfg

	repo := stringOption(c, "repo", cfg.Release.GitHubRepository)
	if repo == "" {
		return ErrRepositoryRequired
	}
	client, err := gh.NewClient(os.Getenv("GITHUB_TOKEN"), repo)
	if err != nil {
		env.stderr.Error("failed to create GitHub client", "repository", repo, "error", err)
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}

	db, err := initDB(stringOption(c, "db", cfg.Storage.DatabasePath))
	if err != nil {
		env.stderr.Error("failed to initialize database", "error", err)
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeDB(db, env.stderr)

	var store ReleaseStore
	if db != nil {
		store = db
	}

	pm, err := NewPublishManager(client, store, env.stdout, env.stderr)
	if err != nil {
		return err
	}

	_, err = pm.Publish(c.Context, PublishRequest{
		ArchiveDir: c.String("archive"),
		Version:    c.String("version"),
		IndexPath:  stringOption(c, "index", cfg.Index.Output),
		Draft:      c.Bool("draft") || cfg.Release.DraftRelease,
		Release:    cfg.Release,
	})
	return err
}

// Publish creates (or reuses) the release tagged v<version>, uploads every
// archive of that version plus the index file, and records the result.
// Assets already attached to a reused release are skipped.
func (pm *PublishManager) Publish(ctx context.Context, req PublishRequest) (*storage.Release, error) {
	if req.ArchiveDir == "" || req.Version == "" {
		return nil, fmt.Errorf("archive directory and version are required")
	}
	start := time.Now()

	doc, err := index.Load(req.IndexPath)
	if err != nil {
		return nil, err
	}
	pkg, err := doc.FirstPackage()
	if err != nil {
		return nil, err
	}
	digest, err := index.Digest(doc)
	if err != nil {
		return nil, err
	}

	files, err := collectAssetFiles(req.ArchiveDir, req.Version)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrNothingToPublish, req.Version, req.ArchiveDir)
	}

	tag := releaseTag(req.Version)
	name := req.Release.ReleaseName(titleCase(pkg.Name), req.Version)
	pm.stdout.Info("publishing release", "package", pkg.Name, "tag", tag, "name", name, "files", len(files))

	prerelease, err := version.New().IsPrerelease(req.Version)
	if err != nil {
		pm.stderr.Warn("version is not a semantic version", "version", req.Version, "error", err)
	}

	ghRelease, err := pm.findOrCreateRelease(ctx, tag, name, releaseBody(pkg.Name, req.Version, digest, files), req.Draft, prerelease)
	if err != nil {
		return nil, err
	}
	releaseURL := pm.github.GetReleaseURL(ghRelease)

	existing, err := pm.existingAssets(ctx, ghRelease.GetID())
	if err != nil {
		return nil, err
	}

	assets := storage.ReleaseAssets{Archives: []storage.AssetFile{}}
	for _, info := range files {
		asset, err := pm.upload(ctx, ghRelease.GetID(), filepath.Join(req.ArchiveDir, info.Name), info, existing)
		if err != nil {
			return nil, err
		}
		assets.Archives = append(assets.Archives, asset)
		assets.Metadata.TotalSizeBytes += asset.Size
	}

	indexInfo, err := archive.Stat(req.IndexPath)
	if err != nil {
		return nil, err
	}
	indexAsset, err := pm.upload(ctx, ghRelease.GetID(), req.IndexPath, indexInfo, existing)
	if err != nil {
		return nil, err
	}
	assets.Index = &indexAsset
	assets.Metadata.TotalSizeBytes += indexAsset.Size
	assets.Metadata.TotalAssets = len(assets.Archives) + 1
	assets.Metadata.UploadDurationSecs = int(time.Since(start).Seconds())

	assetsJSON, err := json.Marshal(assets)
	if err != nil {
		return nil, fmt.Errorf("failed to build assets JSON: %w", err)
	}

	major, minor, patch, err := storage.ParseSemver(req.Version)
	if err != nil || !version.IsSemver(req.Version) {
		pm.stderr.Warn("version is not major.minor.patch, semver columns may be incomplete", "version", req.Version)
	}

	release := &storage.Release{
		Package:     pkg.Name,
		Version:     req.Version,
		SemverMajor: major,
		SemverMinor: minor,
		SemverPatch: patch,
		ReleaseTag:  tag,
		ReleaseURL:  releaseURL,
		Draft:       req.Draft,
		IndexDigest: digest,
		Assets:      string(assetsJSON),
		CreatedAt:   time.Now(),
	}

	if pm.store != nil {
		prev, err := pm.store.GetRelease(pkg.Name, req.Version)
		if err == nil {
			pm.stdout.Info("release already recorded", "id", prev.ID, "tag", prev.ReleaseTag)
			return prev, nil
		}
		if !errors.Is(err, storage.ErrReleaseNotFound) {
			return nil, fmt.Errorf("failed to look up recorded release: %w", err)
		}
		if err := pm.store.CreateRelease(release); err != nil {
			return nil, fmt.Errorf("failed to record release in database: %w", err)
		}
		pm.stdout.Info("release recorded to database", "id", release.ID)
	}

	pm.stdout.Info("release published", "tag", tag, "url", releaseURL, "assets", assets.Metadata.TotalAssets)
	return release, nil
}

func (pm *PublishManager) findOrCreateRelease(ctx context.Context, tag, name, body string, draft, prerelease bool) (*github.RepositoryRelease, error) {
	ghRelease, err := pm.github.GetRelease(ctx, tag)
	if err == nil {
		pm.stdout.Info("reusing existing GitHub release", "tag", tag, "url", pm.github.GetReleaseURL(ghRelease))
		return ghRelease, nil
	}
	if !errors.Is(err, gh.ErrReleaseNotFound) {
		return nil, fmt.Errorf("failed to look up GitHub release: %w", err)
	}

	pm.stdout.Info("creating GitHub release", "tag", tag, "name", name, "prerelease", prerelease)
	ghRelease, err = pm.github.CreateRelease(ctx, tag, name, body, draft, prerelease)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub release: %w", err)
	}
	pm.stdout.Info("GitHub release created", "url", pm.github.GetReleaseURL(ghRelease))
	return ghRelease, nil
}

func (pm *PublishManager) existingAssets(ctx context.Context, releaseID int64) (map[string]*github.ReleaseAsset, error) {
	assets, err := pm.github.ListAssets(ctx, releaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list release assets: %w", err)
	}
	byName := make(map[string]*github.ReleaseAsset, len(assets))
	for _, a := range assets {
		byName[a.GetName()] = a
	}
	return byName, nil
}

func (pm *PublishManager) upload(ctx context.Context, releaseID int64, path string, info archive.Info, existing map[string]*github.ReleaseAsset) (storage.AssetFile, error) {
	asset, ok := existing[info.Name]
	if ok {
		pm.stdout.Info("asset already uploaded", "file", info.Name)
	} else {
		pm.stdout.Info("uploading asset", "file", info.Name, "size", info.Size)
		var err error
		asset, err = pm.github.UploadAsset(ctx, releaseID, path)
		if err != nil {
			return storage.AssetFile{}, fmt.Errorf("failed to upload %s: %w", info.Name, err)
		}
	}

	url := pm.github.GetAssetDownloadURL(asset)
	pm.stdout.Info("asset available", "file", info.Name, "url", url, "checksum", info.Checksum)
	return storage.AssetFile{
		Filename:   info.Name,
		Size:       info.Size,
		Checksum:   info.Checksum,
		URL:        url,
		UploadedAt: time.Now(),
	}, nil
}

// collectAssetFiles returns the archives and signatures in dir that belong
// to version, in name order.
func collectAssetFiles(dir, version string) ([]archive.Info, error) {
	set, err := archive.List(dir)
	if err != nil {
		return nil, err
	}

	marker := "-v" + version
	var infos []archive.Info
	for _, name := range set.Names() {
		if !belongsToVersion(name, marker) {
			continue
		}
		info, err := set.Stat(name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// belongsToVersion matches "<component>-v<version>[<suffix>].tar.gz" and its
// signatures, but not "-v<version>.1" or "-v<version>1".
func belongsToVersion(name, marker string) bool {
	i := strings.Index(name, marker)
	if i < 0 {
		return false
	}
	rest := name[i+len(marker):]
	switch {
	case rest == "", strings.HasPrefix(rest, archive.Extension):
		return true
	case rest[0] == '.', rest[0] >= '0' && rest[0] <= '9':
		return false
	}
	return true
}

func releaseTag(version string) string {
	return "v" + strings.TrimPrefix(version, "v")
}

func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// releaseBody lists the published archives with their checksums.
func releaseBody(pkg, version, digest string, files []archive.Info) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %s\n\n", titleCase(pkg), version)
	b.WriteString("Board manager archives for this release.\n\n")
	b.WriteString("## Archives\n\n")
	b.WriteString("| File | Size | Checksum |\n|------|------|----------|\n")
	for _, f := range files {
		fmt.Fprintf(&b, "| %s | %d | `%s` |\n", f.Name, f.Size, f.Checksum)
	}
	fmt.Fprintf(&b, "\nPackage index digest: `%s`\n", digest)
	return b.String()
}
