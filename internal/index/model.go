// Package index models an Arduino board-manager package index
// (package_<vendor>_index.json) and reads and writes it without losing
// members it does not know about.
package index

import "encoding/json"

// Document is the root of a package index.
type Document struct {
	Packages []*Package

	members object
}

// Package is one vendor package. Only its name, maintainer and website are
// modelled; help links and anything else ride along untouched.
type Package struct {
	Name       string
	Maintainer string
	WebsiteURL string
	Platforms  []*Platform
	Tools      []*Tool

	members object
}

// Platform is one released version of a board core.
type Platform struct {
	Architecture      string
	Name              string
	Version           string
	URL               string
	ArchiveFileName   string
	Size              Size
	Checksum          string
	Boards            []*Board
	ToolsDependencies []*ToolDependency

	members object
}

// Board names a board served by a platform.
type Board struct {
	Name string

	members object
}

// ToolDependency references a tool version required by a platform.
type ToolDependency struct {
	Packager string
	Name     string
	Version  string

	members object
}

// Tool is one released version of a host tool.
type Tool struct {
	Name    string
	Version string
	Systems []*System

	members object
}

// System is the archive of a tool for one host triple.
type System struct {
	Host            string
	URL             string
	ArchiveFileName string
	Size            Size
	Checksum        string

	members object
}

// Extra returns the raw value of a member that has no typed field, or of a
// typed member as it was read from the source document.
func (s *System) Extra(name string) (json.RawMessage, bool) {
	v, ok := s.members[name]
	return v, ok
}

func (d *Document) UnmarshalJSON(data []byte) error {
	members, err := decodeObject(data, map[string]any{
		"packages": &d.Packages,
	})
	if err != nil {
		return err
	}
	d.members = members
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	w := newObjectWriter(d.members)
	w.set("packages", d.Packages, d.Packages == nil)
	return w.bytes()
}

func (p *Package) UnmarshalJSON(data []byte) error {
	members, err := decodeObject(data, map[string]any{
		"name":       &p.Name,
		"maintainer": &p.Maintainer,
		"websiteURL": &p.WebsiteURL,
		"platforms":  &p.Platforms,
		"tools":      &p.Tools,
	})
	if err != nil {
		return err
	}
	p.members = members
	return nil
}

func (p Package) MarshalJSON() ([]byte, error) {
	w := newObjectWriter(p.members)
	w.str("name", p.Name)
	w.str("maintainer", p.Maintainer)
	w.str("websiteURL", p.WebsiteURL)
	w.set("platforms", p.Platforms, p.Platforms == nil)
	w.set("tools", p.Tools, p.Tools == nil)
	return w.bytes()
}

func (p *Platform) UnmarshalJSON(data []byte) error {
	members, err := decodeObject(data, map[string]any{
		"architecture":      &p.Architecture,
		"name":              &p.Name,
		"version":           &p.Version,
		"url":               &p.URL,
		"archiveFileName":   &p.ArchiveFileName,
		"size":              &p.Size,
		"checksum":          &p.Checksum,
		"boards":            &p.Boards,
		"toolsDependencies": &p.ToolsDependencies,
	})
	if err != nil {
		return err
	}
	p.members = members
	return nil
}

func (p Platform) MarshalJSON() ([]byte, error) {
	w := newObjectWriter(p.members)
	w.str("architecture", p.Architecture)
	w.str("name", p.Name)
	w.str("version", p.Version)
	w.str("url", p.URL)
	w.str("archiveFileName", p.ArchiveFileName)
	w.set("size", p.Size, p.Size.IsZero())
	w.str("checksum", p.Checksum)
	w.set("boards", p.Boards, p.Boards == nil)
	w.set("toolsDependencies", p.ToolsDependencies, p.ToolsDependencies == nil)
	return w.bytes()
}

// Clone returns a deep copy of the platform.
func (p *Platform) Clone() *Platform {
	c := *p
	c.members = p.members.clone()
	if p.Boards != nil {
		c.Boards = make([]*Board, len(p.Boards))
		for i, b := range p.Boards {
			bc := *b
			bc.members = b.members.clone()
			c.Boards[i] = &bc
		}
	}
	if p.ToolsDependencies != nil {
		c.ToolsDependencies = make([]*ToolDependency, len(p.ToolsDependencies))
		for i, dep := range p.ToolsDependencies {
			dc := *dep
			dc.members = dep.members.clone()
			c.ToolsDependencies[i] = &dc
		}
	}
	if p.Size.raw != nil {
		c.Size.raw = append(json.RawMessage(nil), p.Size.raw...)
	}
	return &c
}

func (b *Board) UnmarshalJSON(data []byte) error {
	members, err := decodeObject(data, map[string]any{
		"name": &b.Name,
	})
	if err != nil {
		return err
	}
	b.members = members
	return nil
}

func (b Board) MarshalJSON() ([]byte, error) {
	w := newObjectWriter(b.members)
	w.str("name", b.Name)
	return w.bytes()
}

func (t *ToolDependency) UnmarshalJSON(data []byte) error {
	members, err := decodeObject(data, map[string]any{
		"packager": &t.Packager,
		"name":     &t.Name,
		"version":  &t.Version,
	})
	if err != nil {
		return err
	}
	t.members = members
	return nil
}

func (t ToolDependency) MarshalJSON() ([]byte, error) {
	w := newObjectWriter(t.members)
	w.str("packager", t.Packager)
	w.str("name", t.Name)
	w.str("version", t.Version)
	return w.bytes()
}

func (t *Tool) UnmarshalJSON(data []byte) error {
	members, err := decodeObject(data, map[string]any{
		"name":    &t.Name,
		"version": &t.Version,
		"systems": &t.Systems,
	})
	if err != nil {
		return err
	}
	t.members = members
	return nil
}

func (t Tool) MarshalJSON() ([]byte, error) {
	w := newObjectWriter(t.members)
	w.str("name", t.Name)
	w.str("version", t.Version)
	w.set("systems", t.Systems, t.Systems == nil)
	return w.bytes()
}

// Clone returns a deep copy of the tool.
func (t *Tool) Clone() *Tool {
	c := *t
	c.members = t.members.clone()
	if t.Systems != nil {
		c.Systems = make([]*System, len(t.Systems))
		for i, s := range t.Systems {
			c.Systems[i] = s.clone()
		}
	}
	return &c
}

func (s *System) UnmarshalJSON(data []byte) error {
	members, err := decodeObject(data, map[string]any{
		"host":            &s.Host,
		"url":             &s.URL,
		"archiveFileName": &s.ArchiveFileName,
		"size":            &s.Size,
		"checksum":        &s.Checksum,
	})
	if err != nil {
		return err
	}
	s.members = members
	return nil
}

func (s System) MarshalJSON() ([]byte, error) {
	w := newObjectWriter(s.members)
	w.str("host", s.Host)
	w.str("url", s.URL)
	w.str("archiveFileName", s.ArchiveFileName)
	w.set("size", s.Size, s.Size.IsZero())
	w.str("checksum", s.Checksum)
	return w.bytes()
}

func (s *System) clone() *System {
	c := *s
	c.members = s.members.clone()
	if s.Size.raw != nil {
		c.Size.raw = append(json.RawMessage(nil), s.Size.raw...)
	}
	return &c
}
