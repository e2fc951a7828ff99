// Package updater adds a new release to a package index: it clones an
// existing platform entry as a template, stamps it with the new version and
// the size, checksum and URL of the freshly built archives, and does the same
// for every tool archive the build produced.
package updater

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spresense-arduino/pkgindex/internal/archive"
	"github.com/spresense-arduino/pkgindex/internal/gpg"
	"github.com/spresense-arduino/pkgindex/internal/index"
	"github.com/spresense-arduino/pkgindex/internal/version"
)

var (
	ErrArchiveDirRequired = errors.New("updated archive path missing")
	ErrVersionRequired    = errors.New("version number missing")
	ErrNoPlatforms        = errors.New("package has no platforms to use as a base")
	ErrNoToolTemplate     = errors.New("package has no tools to use as a template")
)

// Options selects what Update adds to the index.
type Options struct {
	// ArchiveDir is the directory holding the freshly built archives.
	ArchiveDir string
	// Version is the version being released.
	Version string
	// BaseVersion picks the platform entry to clone. Empty or unknown
	// versions fall back to the highest existing entry.
	BaseVersion string
	// DownloadURL overrides the download root derived from the base
	// platform's URL.
	DownloadURL   string
	PlatformName  string
	Maintainer    string
	PackageSuffix string

	// KeyRing, when set, requires a valid detached signature for every
	// archive that gets stamped into the index.
	KeyRing gpg.KeyRing
}

// Validate checks the required options.
func (o Options) Validate() error {
	if o.ArchiveDir == "" {
		return ErrArchiveDirRequired
	}
	if o.Version == "" {
		return ErrVersionRequired
	}
	if _, err := version.ParseTuple(o.Version); err != nil {
		return fmt.Errorf("invalid target version: %w", err)
	}
	return nil
}

// Result describes what an update changed.
type Result struct {
	Package      string
	Version      string
	BaseVersion  string
	BaseFallback bool
	// NotNewer is set when the target version does not sort after the base.
	NotNewer bool
	BaseURL  string
	Platform *index.Platform
	Tools    []*index.Tool
	Archives []archive.Info
	// PlatformArchive is empty when the build produced no platform archive.
	PlatformArchive string
	DigestBefore    string
	DigestAfter     string
}

// ToolNames returns the names of the tools added by the update.
func (r *Result) ToolNames() []string {
	names := make([]string, 0, len(r.Tools))
	for _, t := range r.Tools {
		names = append(names, t.Name)
	}
	return names
}

// Updater applies releases to package index documents.
type Updater struct {
	stdout    *slog.Logger
	stderr    *slog.Logger
	validator version.Validator
}

// New creates an Updater that logs progress to stdout and problems to stderr.
func New(stdout, stderr *slog.Logger) *Updater {
	return &Updater{
		stdout:    stdout,
		stderr:    stderr,
		validator: version.New(),
	}
}

// Run validates opts, lists the archive directory and loads the index at
// inputPath, then applies the update. The returned document has not been
// written anywhere.
func (u *Updater) Run(opts Options, inputPath string) (*index.Document, *Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}

	archives, err := archive.List(opts.ArchiveDir)
	if err != nil {
		return nil, nil, err
	}
	u.stdout.Debug("listed archive directory", "dir", opts.ArchiveDir, "files", len(archives.Names()))

	doc, err := index.Load(inputPath)
	if err != nil {
		return nil, nil, err
	}

	result, err := u.Apply(doc, archives, opts)
	if err != nil {
		return nil, nil, err
	}
	return doc, result, nil
}

// Apply adds opts.Version to the first package of doc. doc is modified in
// place; on error its contents are unspecified and it must not be written.
func (u *Updater) Apply(doc *index.Document, archives *archive.Set, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := u.validator.ValidateVersion(opts.Version); err != nil {
		u.stderr.Warn("target version is not a semantic version", "version", opts.Version, "error", err)
	}

	before, err := index.Digest(doc)
	if err != nil {
		return nil, err
	}

	pkg, err := doc.FirstPackage()
	if err != nil {
		return nil, err
	}

	if opts.PackageSuffix != "" {
		pkg.Name += opts.PackageSuffix
	}
	if opts.Maintainer != "" {
		pkg.Maintainer = opts.Maintainer
	}

	if err := index.SortPlatforms(pkg.Platforms); err != nil {
		return nil, err
	}

	base, fallback, err := selectBase(pkg.Platforms, opts.BaseVersion)
	if err != nil {
		return nil, err
	}
	if fallback {
		u.stderr.Warn("base version not found, using latest platform",
			"requested", opts.BaseVersion, "using", base.Version)
	}
	cmp, err := version.Compare(opts.Version, base.Version)
	if err != nil {
		return nil, err
	}
	if cmp <= 0 {
		u.stderr.Warn("target version is not newer than the base platform",
			"version", opts.Version, "base", base.Version)
	}

	baseURL := opts.DownloadURL
	if baseURL == "" {
		baseURL = DeriveBaseURL(base.URL, opts.Version)
	}

	result := &Result{
		Package:      pkg.Name,
		Version:      opts.Version,
		BaseVersion:  base.Version,
		BaseFallback: fallback,
		NotNewer:     cmp <= 0,
		BaseURL:      baseURL,
		DigestBefore: before,
	}
	st := &stamper{archives: archives, keyRing: opts.KeyRing, infos: map[string]archive.Info{}}

	platform := DerivePlatform(base, opts.Version)
	platformArchive := archive.Name(platform.Architecture, opts.Version, opts.PackageSuffix)
	if archives.Has(platformArchive) {
		info, err := st.stat(platformArchive)
		if err != nil {
			return nil, err
		}
		stampPlatform(platform, info, baseURL)
		if opts.PlatformName != "" {
			platform.Name = opts.PlatformName
		}
		result.Archives = append(result.Archives, info)
		result.PlatformArchive = info.Name
		u.stdout.Info("stamped platform", "architecture", platform.Architecture,
			"version", platform.Version, "archive", info.Name, "size", info.Size)
	} else {
		u.stdout.Info("platform archive not found, entry left unstamped",
			"archive", platformArchive, "dir", archives.Dir())
	}

	for _, dep := range platform.ToolsDependencies {
		if archives.Has(archive.Name(dep.Name, opts.Version, opts.PackageSuffix)) {
			dep.Packager += opts.PackageSuffix
			dep.Version = opts.Version
		}
	}

	if opts.PackageSuffix != "" {
		pkg.Platforms = nil
	}
	pkg.Platforms = append(pkg.Platforms, platform)
	result.Platform = platform

	if err := index.SortToolsByVersion(pkg.Tools); err != nil {
		return nil, err
	}

	for _, name := range dependencyNames(base) {
		toolArchive := archive.Name(name, opts.Version, opts.PackageSuffix)
		if !archives.Has(toolArchive) {
			continue
		}
		if len(pkg.Tools) == 0 {
			return nil, fmt.Errorf("%w: cannot add %s", ErrNoToolTemplate, name)
		}

		info, err := st.stat(toolArchive)
		if err != nil {
			return nil, err
		}
		tool := DeriveTool(pkg.Tools[0], name, opts.Version)
		for _, sys := range tool.Systems {
			stampSystem(sys, info, baseURL)
		}
		pkg.Tools = append(pkg.Tools, tool)
		result.Tools = append(result.Tools, tool)
		result.Archives = append(result.Archives, info)
		u.stdout.Info("stamped tool", "name", name, "version", opts.Version,
			"archive", info.Name, "systems", len(tool.Systems))
	}

	if err := index.SortPlatforms(pkg.Platforms); err != nil {
		return nil, err
	}
	if err := index.SortTools(pkg.Tools); err != nil {
		return nil, err
	}

	after, err := index.Digest(doc)
	if err != nil {
		return nil, err
	}
	result.DigestAfter = after

	u.stdout.Info("package index updated",
		"package", pkg.Name,
		"version", opts.Version,
		"base_version", base.Version,
		"base_url", baseURL,
		"archives", len(result.Archives),
		"digest", after)
	return result, nil
}

// DerivePlatform returns a deep copy of base carrying version. All other
// members are inherited until the copy is stamped.
func DerivePlatform(base *index.Platform, version string) *index.Platform {
	p := base.Clone()
	p.Version = version
	return p
}

// DeriveTool returns a deep copy of template renamed to name at version.
func DeriveTool(template *index.Tool, name, version string) *index.Tool {
	t := template.Clone()
	t.Name = name
	t.Version = version
	return t
}

// DeriveBaseURL strips the file name and the version directory from a
// platform URL and appends v<version>:
// https://host/releases/download/v1.0.0/x.tar.gz -> https://host/releases/download/v2.0.0.
func DeriveBaseURL(platformURL, version string) string {
	return dirname(dirname(platformURL)) + "/v" + version
}

// dirname drops the last slash-separated element. path.Dir is not used as it
// would collapse the "//" of a URL scheme.
func dirname(s string) string {
	head := s[:strings.LastIndex(s, "/")+1]
	if strings.Trim(head, "/") == "" {
		return head
	}
	return strings.TrimRight(head, "/")
}

func selectBase(platforms []*index.Platform, baseVersion string) (*index.Platform, bool, error) {
	if len(platforms) == 0 {
		return nil, false, ErrNoPlatforms
	}
	if baseVersion != "" {
		for _, p := range platforms {
			if p.Version == baseVersion {
				return p, false, nil
			}
		}
	}
	return platforms[len(platforms)-1], baseVersion != "", nil
}

// dependencyNames returns the distinct tool names the platform depends on, in
// order of first appearance.
func dependencyNames(p *index.Platform) []string {
	seen := make(map[string]bool, len(p.ToolsDependencies))
	var names []string
	for _, dep := range p.ToolsDependencies {
		if seen[dep.Name] {
			continue
		}
		seen[dep.Name] = true
		names = append(names, dep.Name)
	}
	return names
}

func stampPlatform(p *index.Platform, info archive.Info, baseURL string) {
	p.ArchiveFileName = info.Name
	p.URL = baseURL + "/" + info.Name
	p.Size = index.NewSize(info.Size)
	p.Checksum = info.Checksum
}

func stampSystem(s *index.System, info archive.Info, baseURL string) {
	s.ArchiveFileName = info.Name
	s.URL = baseURL + "/" + info.Name
	s.Size = index.NewSize(info.Size)
	s.Checksum = info.Checksum
}

// stamper hashes each archive once and checks its signature when a keyring
// is configured.
type stamper struct {
	archives *archive.Set
	keyRing  gpg.KeyRing
	infos    map[string]archive.Info
}

func (s *stamper) stat(name string) (archive.Info, error) {
	if info, ok := s.infos[name]; ok {
		return info, nil
	}
	if s.keyRing != nil {
		if err := gpg.VerifyFile(s.keyRing, s.archives.Path(name)); err != nil {
			return archive.Info{}, err
		}
	}
	info, err := s.archives.Stat(name)
	if err != nil {
		return archive.Info{}, err
	}
	s.infos[name] = info
	return info, nil
}
