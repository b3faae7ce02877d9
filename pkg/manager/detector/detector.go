// Package detector identifies the host operating system and decides which
// package managers are enabled on it by default.
package detector

import (
	"runtime"
	"slices"
)

// OSType represents the detected operating system type.
type OSType string

const (
	OSLinux   OSType = "linux"
	OSDarwin  OSType = "darwin"
	OSWindows OSType = "windows"
	OSUnknown OSType = "unknown"
)

// SystemInfo contains information about the detected system.
type SystemInfo struct {
	OS           OSType
	Arch         string
	Distribution string   // Linux distribution ID (e.g., "ubuntu", "fedora")
	DistroFamily []string // Related distributions (from ID_LIKE)
	PrettyName   string   // Human-readable name
	VersionID    string   // OS or distribution version
}

// Detect detects the current system's OS and distribution.
func Detect() (*SystemInfo, error) {
	info := &SystemInfo{
		OS:   CurrentOS(),
		Arch: runtime.GOARCH,
	}

	switch info.OS {
	case OSLinux:
		linuxInfo, err := DetectLinux()
		if err != nil {
			return info, err
		}
		info.Distribution = linuxInfo.ID
		info.DistroFamily = linuxInfo.IDLike
		info.PrettyName = linuxInfo.PrettyName
		info.VersionID = linuxInfo.VersionID
	case OSDarwin:
		d, _ := DetectDarwin()
		info.Distribution = "macos"
		info.PrettyName = d.Pretty()
		info.VersionID = d.ProductVersion
	case OSWindows:
		w, _ := DetectWindows()
		info.Distribution = "windows"
		info.PrettyName = w.ProductName
		info.VersionID = w.Version
	}

	return info, nil
}

// CurrentOS maps runtime.GOOS to an OSType.
func CurrentOS() OSType {
	switch runtime.GOOS {
	case "linux":
		return OSLinux
	case "darwin":
		return OSDarwin
	case "windows":
		return OSWindows
	}
	return OSUnknown
}

// platformManagers lists the managers each OS enables unless configured
// otherwise.
var platformManagers = map[OSType][]string{
	OSWindows: {"winget", "scoop", "chocolatey", "pip", "npm"},
	OSLinux:   {"flatpak", "snap", "pip", "npm"},
	OSDarwin:  {"pip", "npm"},
}

// DefaultManagers returns the managers enabled by default on os.
func DefaultManagers(os OSType) []string {
	return slices.Clone(platformManagers[os])
}

// EnabledByDefault reports whether a manager is enabled by default on os.
func EnabledByDefault(os OSType, manager string) bool {
	return slices.Contains(platformManagers[os], manager)
}

// MatchesDistro checks if the system matches any of the given distribution identifiers.
// It checks both the direct distribution ID and the ID_LIKE family.
func (s *SystemInfo) MatchesDistro(distros ...string) bool {
	for _, d := range distros {
		if s.Distribution == d || slices.Contains(s.DistroFamily, d) {
			return true
		}
	}
	return false
}

// IsLinux returns true if the system is running Linux.
func (s *SystemInfo) IsLinux() bool {
	return s.OS == OSLinux
}

// IsDarwin returns true if the system is running macOS.
func (s *SystemInfo) IsDarwin() bool {
	return s.OS == OSDarwin
}

// IsWindows returns true if the system is running Windows.
func (s *SystemInfo) IsWindows() bool {
	return s.OS == OSWindows
}
