package detector

import (
	"bufio"
	"os/exec"
	"strings"
)

// DarwinInfo contains information about a macOS system.
type DarwinInfo struct {
	ProductName    string
	ProductVersion string
}

// Pretty joins the product name and version, e.g. "macOS 14.5".
func (d *DarwinInfo) Pretty() string {
	return strings.TrimSpace(d.ProductName + " " + d.ProductVersion)
}

// DetectDarwin reads the key/value report printed by a bare `sw_vers`.
func DetectDarwin() (*DarwinInfo, error) {
	out, err := exec.Command("sw_vers").Output()
	if err != nil {
		return &DarwinInfo{ProductName: "macOS"}, err
	}
	return parseSwVers(string(out)), nil
}

func parseSwVers(report string) *DarwinInfo {
	info := &DarwinInfo{ProductName: "macOS"}
	sc := bufio.NewScanner(strings.NewReader(report))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "ProductName":
			if value != "" {
				info.ProductName = value
			}
		case "ProductVersion":
			info.ProductVersion = value
		}
	}
	return info
}
