package installer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sandevgo/ctxkeeper/internal/config"
	"github.com/sandevgo/ctxkeeper/pkg/env"
)

// State is what the wizard edits. Steps write straight into Config.
type State struct {
	Config   *config.AppConfig
	Profiles config.Profiles
	EnvPath  string
	Force    bool

	// Err is set when the final save failed
	Err error
}

func NewState(cfg *config.AppConfig, profiles config.Profiles, force bool) *State {
	return &State{
		Config:   cfg,
		Profiles: profiles,
		EnvPath:  filepath.Join(cfg.GetRuntimePath(), ".env"),
		Force:    force,
	}
}

// Save creates the runtime directories and writes Config to EnvPath. An
// existing file is only replaced when Force is set.
func (s *State) Save() error {
	if err := os.MkdirAll(s.Config.GetContextFilesPath(), 0755); err != nil {
		return fmt.Errorf("failed to create runtime directory: %w", err)
	}

	if _, err := os.Stat(s.EnvPath); err == nil && !s.Force {
		return fmt.Errorf("%s already exists, use --force to overwrite", s.EnvPath)
	}

	content, err := env.MarshalEnv(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(s.EnvPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.EnvPath, err)
	}
	return nil
}
