// Package loader reads a scenario.Scenario from a YAML or TOML file on
// disk, dispatching on file extension: gopkg.in/yaml.v3 for the primary
// format and github.com/BurntSushi/toml as the alternate.
package loader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/lucaskim/ftsim/pkg/scenario"
	"github.com/lucaskim/ftsim/pkg/simerr"
)

// LoadFile reads and parses a scenario file, selecting the format by the
// file extension (.yaml/.yml or .toml), then validates it.
func LoadFile(path string) (*scenario.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &simerr.ConfigError{Kind: simerr.ConfigIO, Name: path, Message: err.Error(), Err: err}
	}

	var s scenario.Scenario
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, &simerr.ConfigError{Kind: simerr.ConfigParse, Name: path, Message: err.Error(), Err: err}
		}
	case ".toml":
		if err := toml.Unmarshal(data, &s); err != nil {
			return nil, &simerr.ConfigError{Kind: simerr.ConfigParse, Name: path, Message: err.Error(), Err: err}
		}
	default:
		return nil, &simerr.ConfigError{Kind: simerr.ConfigParse, Name: path, Message: "unrecognized scenario file extension: " + ext}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
