package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"gopkg.in/yaml.v3"
)

//go:embed default_profiles.yaml
var defaultProfiles []byte

// Profile is a named personality preset. Unset fields keep the base value.
type Profile struct {
	Name              string   `yaml:"name"`
	Description       string   `yaml:"description"`
	SystemPrompt      string   `yaml:"system_prompt"`
	Temperature       *float64 `yaml:"temperature"`
	TopP              *float64 `yaml:"top_p"`
	TopK              *int     `yaml:"top_k"`
	RepetitionPenalty *float64 `yaml:"repetition_penalty"`
	MaxTokens         *int     `yaml:"max_tokens"`
	ContextWindow     *int     `yaml:"context_window"`
}

func (p Profile) Apply(base core.GenerationParams) core.GenerationParams {
	if p.SystemPrompt != "" {
		base.SystemPrompt = p.SystemPrompt
	}
	if p.Temperature != nil {
		base.Temperature = *p.Temperature
	}
	if p.TopP != nil {
		base.TopP = *p.TopP
	}
	if p.TopK != nil {
		base.TopK = *p.TopK
	}
	if p.RepetitionPenalty != nil {
		base.RepetitionPenalty = *p.RepetitionPenalty
	}
	if p.MaxTokens != nil {
		base.MaxTokens = *p.MaxTokens
	}
	if p.ContextWindow != nil {
		base.ContextWindow = *p.ContextWindow
	}
	return base
}

type Profiles map[string]Profile

// LoadProfiles returns the built-in profiles merged with the ones in path.
// A missing file is not an error.
func LoadProfiles(path string) (Profiles, error) {
	profiles, err := parseProfiles(defaultProfiles)
	if err != nil {
		return nil, fmt.Errorf("failed to parse built-in profiles: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return profiles, nil
		}
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}

	custom, err := parseProfiles(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for key, p := range custom {
		profiles[key] = p
	}
	return profiles, nil
}

func parseProfiles(data []byte) (Profiles, error) {
	profiles := make(Profiles)
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (p Profiles) Get(key string) (Profile, error) {
	profile, ok := p[key]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q: %w", key, core.ErrNotFound)
	}
	return profile, nil
}

func (p Profiles) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
