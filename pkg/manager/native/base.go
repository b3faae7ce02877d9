// Package native implements the Windows system installers: winget, scoop
// and chocolatey.
package native

import (
	"omnipkg/internal/config"
	"omnipkg/pkg/manager"
)

// All builds every native variant from the per-manager configuration.
func All(cfg *config.Config) ([]manager.Manager, error) {
	winget, err := NewWinget(cfg.GetManagerConfig("winget"))
	if err != nil {
		return nil, err
	}
	scoop, err := NewScoop(cfg.GetManagerConfig("scoop"))
	if err != nil {
		return nil, err
	}
	choco, err := NewChocolatey(cfg.GetManagerConfig("chocolatey"))
	if err != nil {
		return nil, err
	}
	return []manager.Manager{winget, scoop, choco}, nil
}

// appendOpt appends "flag value" when value is set.
func appendOpt(args []string, flag, value string) []string {
	if value == "" {
		return args
	}
	return append(args, flag, value)
}
