package config

import (
	"embed"
	"path"
	"sort"
	"strings"
)

// DefaultInput is the file the bare command reads from the working directory.
const DefaultInput = "input-remd_direct.xml"

//go:embed presets/*.xml
var presetFS embed.FS

// GetPreset returns the XML text of a built-in configuration.
func GetPreset(name string) (string, bool) {
	data, err := presetFS.ReadFile(path.Join("presets", name+".xml"))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func ListPresets() []string {
	entries, err := presetFS.ReadDir("presets")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".xml"))
	}
	sort.Strings(names)
	return names
}
