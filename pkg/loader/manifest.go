package loader

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type format int

const (
	formatNone format = iota
	formatYAML
	formatTOML
	formatJSON
)

func formatOf(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	case ".toml":
		return formatTOML
	case ".json":
		return formatJSON
	default:
		return formatNone
	}
}

// Manifest is the decoded header of a module source file. The full document
// stays available to the kind's constructor through Decode.
type Manifest struct {
	Kind     string `yaml:"kind" toml:"kind" json:"kind"`
	ID       string `yaml:"id" toml:"id" json:"id"`
	Category string `yaml:"category" toml:"category" json:"category"`

	// Path is the file the manifest was read from.
	Path string `yaml:"-" toml:"-" json:"-"`

	raw    []byte
	format format
}

func parseManifest(path string, raw []byte) (*Manifest, error) {
	m := &Manifest{Path: path, raw: raw, format: formatOf(path)}
	if err := m.Decode(m); err != nil {
		return nil, err
	}
	m.Kind = strings.TrimSpace(m.Kind)
	return m, nil
}

// Decode decodes the whole source document into v.
func (m *Manifest) Decode(v any) error {
	var err error
	switch m.format {
	case formatYAML:
		err = yaml.Unmarshal(m.raw, v)
	case formatTOML:
		err = toml.Unmarshal(m.raw, v)
	case formatJSON:
		err = json.Unmarshal(m.raw, v)
	default:
		return fmt.Errorf("decode %s: unsupported format", m.Path)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", m.Path, err)
	}
	return nil
}
