package native

import (
	"fmt"

	"omnipkg/pkg/manager"
)

// HRESULTs returned by winget, from the APPINSTALLER_CLI_ERROR range.
const (
	wingetInstallerHashMismatch   uint32 = 0x8A150011
	wingetNoApplicationsFound     uint32 = 0x8A150014
	wingetUpdateNotApplicable     uint32 = 0x8A15002B
	wingetPackageAlreadyInstalled uint32 = 0x8A150061
	wingetRebootRequiredToFinish  uint32 = 0x8A150109
	wingetRebootRequiredToInstall uint32 = 0x8A15010A
	wingetInstallAlreadyInstalled uint32 = 0x8A15010D

	accessDenied uint32 = 0x80070005
)

// ERROR_ELEVATION_REQUIRED, returned by installers started without admin
// rights.
const errorElevationRequired = 740

// Chocolatey passes through the MSI reboot codes.
const (
	msiSuccessRebootRequired  = 3010
	msiSuccessRebootInitiated = 1641
)

var wingetMessages = map[uint32]string{
	wingetInstallerHashMismatch:   "installer hash does not match the manifest",
	wingetNoApplicationsFound:     "no package found matching input criteria",
	wingetUpdateNotApplicable:     "no applicable update found",
	wingetPackageAlreadyInstalled: "package is already installed",
	wingetRebootRequiredToFinish:  "restart required to finish the installation",
	wingetRebootRequiredToInstall: "restart required before installing",
	wingetInstallAlreadyInstalled: "another version is already installed",
	accessDenied:                  "access is denied",
}

// describeWinget names a winget exit code, rendering unknown HRESULTs in
// the hexadecimal form winget's documentation uses.
func describeWinget(code int) (string, bool) {
	if code == errorElevationRequired {
		return "the installer requires elevation", true
	}
	u := uint32(int32(code))
	if msg, ok := wingetMessages[u]; ok {
		return fmt.Sprintf("%s (0x%08X)", msg, u), true
	}
	if code < 0 {
		return fmt.Sprintf("0x%08X", u), false
	}
	return "", false
}

var chocoMessages = map[int]string{
	msiSuccessRebootRequired:  "installed, restart required",
	msiSuccessRebootInitiated: "installed, restart initiated",
	1602:                      "cancelled by the user",
	1603:                      "fatal error during installation",
	1618:                      "another installation is already in progress",
}

func describeChoco(code int) (string, bool) {
	msg, ok := chocoMessages[code]
	return msg, ok
}

var _ manager.Describer = (*Winget)(nil)
var _ manager.Describer = (*Chocolatey)(nil)
