package detector

import (
	"os/exec"
	"regexp"
)

// WindowsInfo contains information about a Windows system.
type WindowsInfo struct {
	ProductName string
	Version     string
}

var verPattern = regexp.MustCompile(`\[Version ([0-9.]+)\]`)

// DetectWindows reads the version banner printed by `cmd /c ver`, e.g.
// "Microsoft Windows [Version 10.0.22631.3737]".
func DetectWindows() (*WindowsInfo, error) {
	info := &WindowsInfo{
		ProductName: "Windows",
	}

	out, err := exec.Command("cmd", "/c", "ver").Output()
	if err != nil {
		return info, err
	}
	info.Version = parseVer(string(out))
	return info, nil
}

func parseVer(banner string) string {
	if m := verPattern.FindStringSubmatch(banner); m != nil {
		return m[1]
	}
	return ""
}
