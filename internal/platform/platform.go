// Package platform maps the host names used by build scripts (Windows,
// Linux64, ...) to the host triples that identify tool systems in a package
// index.
package platform

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

var ErrUnknownHost = errors.New("unknown host")

// Host is a machine a tool archive can be installed on.
type Host struct {
	Alias  string // short name accepted on the command line
	Triple string // host triple used in package index systems
	OS     string // GOOS
	Arch   string // GOARCH
}

// PredefinedHosts returns the known hosts.
func PredefinedHosts() []Host {
	return []Host{
		{Alias: "Windows", Triple: "i686-mingw32", OS: "windows", Arch: "386"},
		{Alias: "Linux32", Triple: "i686-pc-linux-gnu", OS: "linux", Arch: "386"},
		{Alias: "Linux64", Triple: "x86_64-pc-linux-gnu", OS: "linux", Arch: "amd64"},
		{Alias: "Mac", Triple: "i386-apple-darwin11", OS: "darwin", Arch: "amd64"},
		{Alias: "LinuxARM", Triple: "arm-linux-gnueabihf", OS: "linux", Arch: "arm"},
		{Alias: "LinuxARM64", Triple: "aarch64-linux-gnu", OS: "linux", Arch: "arm64"},
	}
}

// FindHost finds a host by alias (case-insensitive) or by triple.
func FindHost(name string) (Host, error) {
	for _, h := range PredefinedHosts() {
		if strings.EqualFold(h.Alias, name) || h.Triple == name {
			return h, nil
		}
	}
	return Host{}, fmt.Errorf("%w: %s", ErrUnknownHost, name)
}

// ResolveHost turns a command-line host value into a Host. An empty value
// means the current machine; an unknown value that looks like a triple is
// passed through so indexes with newer hosts can still be queried.
func ResolveHost(name string) (Host, error) {
	if name == "" {
		return CurrentHost()
	}
	if h, err := FindHost(name); err == nil {
		return h, nil
	}
	if strings.Count(name, "-") >= 1 {
		return Host{Triple: name}, nil
	}
	return Host{}, fmt.Errorf("%w: %s", ErrUnknownHost, name)
}

// CurrentHost returns the host of the running binary.
func CurrentHost() (Host, error) {
	return hostFor(runtime.GOOS, runtime.GOARCH)
}

func hostFor(goos, goarch string) (Host, error) {
	switch goos {
	case "windows":
		// 32-bit tools run on every Windows machine
		return FindHost("Windows")
	case "darwin":
		return FindHost("Mac")
	case "linux":
		for _, h := range PredefinedHosts() {
			if h.OS == goos && h.Arch == goarch {
				return h, nil
			}
		}
	}
	return Host{}, fmt.Errorf("%w: %s/%s", ErrUnknownHost, goos, goarch)
}
