package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/kinbiko/jsonassert"
)

const fixture = "testdata/package_spresense_index.json"

func loadFixture(t *testing.T) *Document {
	t.Helper()
	doc, err := Load(fixture)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return doc
}

func TestLoad(t *testing.T) {
	doc := loadFixture(t)

	pkg, err := doc.FirstPackage()
	if err != nil {
		t.Fatalf("FirstPackage() error: %v", err)
	}
	if pkg.Name != "SPRESENSE" {
		t.Errorf("Name = %q, want SPRESENSE", pkg.Name)
	}
	if pkg.Maintainer != "Sony Semiconductor Solutions" {
		t.Errorf("Maintainer = %q", pkg.Maintainer)
	}
	if len(pkg.Platforms) != 2 {
		t.Fatalf("len(Platforms) = %d, want 2", len(pkg.Platforms))
	}
	if len(pkg.Tools) != 3 {
		t.Fatalf("len(Tools) = %d, want 3", len(pkg.Tools))
	}

	p := pkg.Platforms[0]
	if p.Architecture != "spresense" || p.Version != "1.10.0" {
		t.Errorf("platform = %s %s, want spresense 1.10.0", p.Architecture, p.Version)
	}
	if n, ok := p.Size.Bytes(); !ok || n != 20418513 {
		t.Errorf("quoted size = %d, %v; want 20418513, true", n, ok)
	}
	if n, ok := pkg.Platforms[1].Size.Bytes(); !ok || n != 20400000 {
		t.Errorf("numeric size = %d, %v; want 20400000, true", n, ok)
	}
	if len(p.Boards) != 1 || p.Boards[0].Name != "Spresense" {
		t.Errorf("Boards = %+v", p.Boards)
	}
	if len(p.ToolsDependencies) != 2 || p.ToolsDependencies[0].Name != "spresense-sdk" {
		t.Errorf("ToolsDependencies = %+v", p.ToolsDependencies)
	}

	sys := pkg.Tools[0].Systems[0]
	if sys.Host != "i686-mingw32" {
		t.Errorf("Host = %q", sys.Host)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Load() of missing file expected error")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"packages": [`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("Load() of malformed JSON expected error")
	}

	wrongType := filepath.Join(dir, "wrong.json")
	if err := os.WriteFile(wrongType, []byte(`{"packages": [{"platforms": {}}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(wrongType); err == nil {
		t.Error("Load() with platforms object expected error")
	}
}

func TestFirstPackage_Empty(t *testing.T) {
	doc, err := Parse([]byte(`{"packages": []}`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if _, err := doc.FirstPackage(); !errors.Is(err, ErrNoPackages) {
		t.Errorf("FirstPackage() error = %v, want ErrNoPackages", err)
	}
}

func TestMarshal_RoundTripPreservesMembers(t *testing.T) {
	raw, err := os.ReadFile(fixture)
	if err != nil {
		t.Fatal(err)
	}
	doc := loadFixture(t)

	out, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	jsa := jsonassert.New(t)
	jsa.Assertf(string(out), "%s", raw)
}

func TestMarshal_Format(t *testing.T) {
	doc, err := Parse([]byte(`{"packages":[{"tools":[],"name":"P","platforms":[],"maintainer":"M"}]}`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	out, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	want := `{
  "packages": [
    {
      "maintainer": "M",
      "name": "P",
      "platforms": [],
      "tools": []
    }
  ]
}
`
	if string(out) != want {
		t.Errorf("Marshal() =\n%s\nwant\n%s", out, want)
	}
}

func TestMarshal_DoesNotEscapeURLs(t *testing.T) {
	doc, err := Parse([]byte(`{"packages":[{"name":"P","websiteURL":"https://example.com/?a=1&b=<2>"}]}`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	out, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if !strings.Contains(string(out), "https://example.com/?a=1&b=<2>") {
		t.Errorf("URL was escaped:\n%s", out)
	}
}

func TestMarshal_AbsentMembersStayAbsent(t *testing.T) {
	doc, err := Parse([]byte(`{"packages":[{"name":"P","platforms":[{"architecture":"a","version":"1.0.0"}]}]}`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	out, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	for _, member := range []string{"checksum", "size", "url", "boards", "tools", "maintainer"} {
		if strings.Contains(string(out), `"`+member+`"`) {
			t.Errorf("member %q appeared in output:\n%s", member, out)
		}
	}
}

func TestSize(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		want    int64
		wantOK  bool
		wantOut string
	}{
		{name: "number", json: `{"size": 42}`, want: 42, wantOK: true, wantOut: "42"},
		{name: "quoted", json: `{"size": "42"}`, want: 42, wantOK: true, wantOut: `"42"`},
		{name: "placeholder", json: `{"size": "<Size>"}`, wantOK: false, wantOut: `"<Size>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sys System
			if err := sys.UnmarshalJSON([]byte(tt.json)); err != nil {
				t.Fatalf("UnmarshalJSON() error: %v", err)
			}
			n, ok := sys.Size.Bytes()
			if ok != tt.wantOK || n != tt.want {
				t.Errorf("Bytes() = %d, %v; want %d, %v", n, ok, tt.want, tt.wantOK)
			}
			out, err := sys.Size.MarshalJSON()
			if err != nil {
				t.Fatalf("MarshalJSON() error: %v", err)
			}
			if string(out) != tt.wantOut {
				t.Errorf("MarshalJSON() = %s, want %s", out, tt.wantOut)
			}
		})
	}

	stamped := NewSize(1234)
	out, _ := stamped.MarshalJSON()
	if string(out) != "1234" {
		t.Errorf("stamped MarshalJSON() = %s, want 1234", out)
	}
	if stamped.String() != "1234" {
		t.Errorf("stamped String() = %q", stamped.String())
	}
	if !(Size{}).IsZero() {
		t.Error("zero Size should report IsZero")
	}
}

func TestSortPlatforms(t *testing.T) {
	platforms := []*Platform{
		{Architecture: "a", Version: "1.10.0"},
		{Architecture: "a", Version: "1.9.0"},
		{Architecture: "a", Version: "1.2.0"},
		{Architecture: "a", Version: "2.0.0"},
	}

	if err := SortPlatforms(platforms); err != nil {
		t.Fatalf("SortPlatforms() error: %v", err)
	}
	first := versionsOf(platforms)
	want := []string{"1.2.0", "1.9.0", "1.10.0", "2.0.0"}
	assertStrings(t, first, want)

	if err := SortPlatforms(platforms); err != nil {
		t.Fatalf("SortPlatforms() second pass error: %v", err)
	}
	assertStrings(t, versionsOf(platforms), first)
}

func TestSortPlatforms_InvalidVersion(t *testing.T) {
	platforms := []*Platform{{Architecture: "a", Version: "1.0.0"}, {Architecture: "a", Version: "latest"}}
	if err := SortPlatforms(platforms); err == nil {
		t.Error("SortPlatforms() expected error for non-numeric version")
	}
}

func TestSortTools(t *testing.T) {
	tools := []*Tool{
		{Name: "spresense-tools", Version: "1.1.0"},
		{Name: "spresense-sdk", Version: "1.10.0"},
		{Name: "spresense-sdk", Version: "1.9.0"},
		{Name: "spresense-tools", Version: "1.0.0"},
	}

	if err := SortToolsByVersion(tools); err != nil {
		t.Fatalf("SortToolsByVersion() error: %v", err)
	}
	if tools[0].Version != "1.0.0" || tools[3].Version != "1.10.0" {
		t.Errorf("SortToolsByVersion() order = %v", toolKeys(tools))
	}

	if err := SortTools(tools); err != nil {
		t.Fatalf("SortTools() error: %v", err)
	}
	want := []string{"spresense-sdk@1.9.0", "spresense-sdk@1.10.0", "spresense-tools@1.0.0", "spresense-tools@1.1.0"}
	assertStrings(t, toolKeys(tools), want)
}

func TestPlatformClone(t *testing.T) {
	doc := loadFixture(t)
	orig := doc.Packages[0].Platforms[0]

	c := orig.Clone()
	c.Version = "9.9.9"
	c.Boards[0].Name = "Other"
	c.ToolsDependencies[0].Version = "9.9.9"
	c.Size = NewSize(1)

	if orig.Version != "1.10.0" {
		t.Errorf("orig Version changed to %q", orig.Version)
	}
	if orig.Boards[0].Name != "Spresense" {
		t.Errorf("orig board changed to %q", orig.Boards[0].Name)
	}
	if orig.ToolsDependencies[0].Version != "1.10.0" {
		t.Errorf("orig dependency changed to %q", orig.ToolsDependencies[0].Version)
	}
	if n, _ := orig.Size.Bytes(); n != 20418513 {
		t.Errorf("orig size changed to %d", n)
	}
}

func TestToolClone(t *testing.T) {
	doc := loadFixture(t)
	orig := doc.Packages[0].Tools[0]

	c := orig.Clone()
	c.Systems[0].URL = "changed"
	c.Systems[0].Size = NewSize(1)

	if orig.Systems[0].URL == "changed" {
		t.Error("orig system URL changed")
	}
	if n, _ := orig.Systems[0].Size.Bytes(); n != 7093913 {
		t.Errorf("orig system size changed to %d", n)
	}
	if raw, ok := c.Systems[0].Extra("host"); !ok || string(raw) != `"i686-mingw32"` {
		t.Errorf("Extra(host) = %s, %v", raw, ok)
	}
}

func TestDigest(t *testing.T) {
	a, err := Parse([]byte(`{"packages":[{"name":"P","maintainer":"M"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse([]byte("{\n  \"packages\": [ { \"maintainer\": \"M\", \"name\": \"P\" } ]\n}"))
	if err != nil {
		t.Fatal(err)
	}

	da, err := Digest(a)
	if err != nil {
		t.Fatalf("Digest() error: %v", err)
	}
	db, err := Digest(b)
	if err != nil {
		t.Fatalf("Digest() error: %v", err)
	}
	if da != db {
		t.Errorf("digests differ: %s vs %s", da, db)
	}
	if !strings.HasPrefix(da, "sha256:") || len(da) != len("sha256:")+64 {
		t.Errorf("digest format = %q", da)
	}

	a.Packages[0].Name = "Q"
	dc, _ := Digest(a)
	if dc == da {
		t.Error("digest did not change after mutation")
	}
}

func TestWriteFile(t *testing.T) {
	doc := loadFixture(t)
	out := filepath.Join(t.TempDir(), "nested", "package_index.json")

	if err := WriteFile(context.Background(), out, doc); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	written, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	want, _ := Marshal(doc)
	if string(written) != string(want) {
		t.Error("written file differs from Marshal() output")
	}
	if _, err := os.Stat(out + ".lock"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("lock file left behind: %v", err)
	}

	// a second write takes and releases the lock again
	if err := WriteFile(context.Background(), out, doc); err != nil {
		t.Fatalf("second WriteFile() error: %v", err)
	}
	if _, err := os.Stat(out + ".lock"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("lock file left behind after second write: %v", err)
	}
}

func TestWriteFile_Locked(t *testing.T) {
	out := filepath.Join(t.TempDir(), "package_index.json")
	if err := os.WriteFile(out, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	held := flock.New(out + ".lock")
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock() = %v, %v", locked, err)
	}
	defer func() { _ = held.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = WriteFile(ctx, out, loadFixture(t))
	if !errors.Is(err, ErrIndexLocked) {
		t.Fatalf("WriteFile() error = %v, want ErrIndexLocked", err)
	}

	content, _ := os.ReadFile(out)
	if string(content) != "original" {
		t.Errorf("locked file was overwritten: %q", content)
	}
	if _, err := os.Stat(out + ".lock"); err != nil {
		t.Errorf("lock file of the other holder was removed: %v", err)
	}
}

func versionsOf(platforms []*Platform) []string {
	var out []string
	for _, p := range platforms {
		out = append(out, p.Version)
	}
	return out
}

func toolKeys(tools []*Tool) []string {
	var out []string
	for _, tool := range tools {
		out = append(out, tool.Name+"@"+tool.Version)
	}
	return out
}

func assertStrings(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
