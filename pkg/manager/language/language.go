// Package language implements the language-ecosystem package tools: pip
// and npm. Both manage packages of one interpreter installation, so the
// packages they list are user-level libraries and command-line tools.
package language

import (
	"omnipkg/internal/config"
	"omnipkg/pkg/manager"
)

// All builds every language variant from the per-manager configuration.
func All(cfg *config.Config) ([]manager.Manager, error) {
	pip, err := NewPip(cfg.GetManagerConfig("pip"))
	if err != nil {
		return nil, err
	}
	npm, err := NewNpm(cfg.GetManagerConfig("npm"))
	if err != nil {
		return nil, err
	}
	return []manager.Manager{pip, npm}, nil
}
