package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSteps    = 10
	DefaultRounds   = 2
	DefaultProperty = "potential"
)

// Settings are the driver options that can be kept in a YAML file next to
// the XML input. Command-line flags override them.
type Settings struct {
	Config   string `yaml:"config"`
	Steps    int    `yaml:"steps"`
	Rounds   int    `yaml:"rounds"`
	Property string `yaml:"property"`
	Seed     int64  `yaml:"seed"`
	Quiet    bool   `yaml:"quiet"`
	Save     bool   `yaml:"save"`
	Log      string `yaml:"log"`
}

func DefaultSettings() *Settings {
	return &Settings{
		Config:   DefaultInput,
		Steps:    DefaultSteps,
		Rounds:   DefaultRounds,
		Property: DefaultProperty,
		Log:      "warn",
	}
}

func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

func SaveSettings(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
