package detector

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// LinuxInfo contains information parsed from /etc/os-release.
type LinuxInfo struct {
	ID         string   // Distribution ID (e.g., "ubuntu", "arch", "fedora")
	IDLike     []string // Related distributions
	VersionID  string   // Version number (e.g., "22.04", "39")
	PrettyName string   // Human-readable name
	Name       string   // Distribution name
}

var osReleasePaths = []string{"/etc/os-release", "/usr/lib/os-release"}

// DetectLinux detects the Linux distribution by reading os-release.
func DetectLinux() (*LinuxInfo, error) {
	for _, path := range osReleasePaths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		info, err := parseOSRelease(f)
		f.Close()
		if err == nil && info.ID != "" {
			return info, nil
		}
	}

	return &LinuxInfo{ID: "unknown", PrettyName: "Unknown Linux"}, nil
}

// parseOSRelease parses KEY=value lines in the os-release format.
func parseOSRelease(r io.Reader) (*LinuxInfo, error) {
	info := &LinuxInfo{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		switch strings.TrimSpace(key) {
		case "ID":
			info.ID = value
		case "ID_LIKE":
			info.IDLike = strings.Fields(value)
		case "VERSION_ID":
			info.VersionID = value
		case "PRETTY_NAME":
			info.PrettyName = value
		case "NAME":
			info.Name = value
		}
	}
	return info, scanner.Err()
}
