package scan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// A description is the input to a link: the source of every module keyed by
// id, plus the entry points. It's written in YAML (and JSON, since JSON is a
// subset of YAML):
//
//   entries:
//     - /entry.js
//     - {module: /other.js, name: other}
//   modules:
//     /entry.js: |
//       import {a} from './a'
//       console.log(a)
//     /a.js:
//       code: export const a = 1
//       side_effects: false
//     /data.json: '{"a": 1}'
//   external: [react, "node:*"]
//
type Description struct {
	Entries  []EntrySpec           `yaml:"entries"`
	Modules  map[string]ModuleSpec `yaml:"modules"`
	External []string              `yaml:"external"`
}

type EntrySpec struct {
	Module string `yaml:"module"`
	Name   string `yaml:"name"`

	// Emitted entries behave like user entries but don't keep their position
	Emitted bool `yaml:"emitted"`
}

type ModuleSpec struct {
	Code string `yaml:"code"`

	// The module is left out of the bundle and imported at run-time
	External bool `yaml:"external"`

	// Overrides the exports kind the scanner infers. One of "esm", "cjs" or
	// "none".
	ExportsKind string `yaml:"exports_kind"`

	// Overrides the side effects the scanner infers, like "sideEffects" in a
	// "package.json" file does
	SideEffects *bool `yaml:"side_effects"`

	NoTreeshake bool `yaml:"no_treeshake"`

	// The code is a JSON value whose top-level keys become the exports. This
	// is implied for ids ending in ".json".
	LazyExport bool `yaml:"lazy_export"`

	// Extra flags such as "execution-order-sensitive"
	Meta []string `yaml:"meta"`
}

var ErrInvalidDescription = errors.New("invalid description")

// A bare string is shorthand for the module id
func (e *EntrySpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		e.Module = value.Value
		return nil
	}
	type plain EntrySpec
	return value.Decode((*plain)(e))
}

// A bare string is shorthand for the module's code
func (m *ModuleSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		m.Code = value.Value
		return nil
	}
	type plain ModuleSpec
	return value.Decode((*plain)(m))
}

func LoadDescription(path string) (*Description, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading description: %w", err)
	}
	desc, err := ParseDescription(contents)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return desc, nil
}

func ParseDescription(contents []byte) (*Description, error) {
	desc := &Description{}
	decoder := yaml.NewDecoder(bytes.NewReader(contents))
	decoder.KnownFields(true)
	if err := decoder.Decode(desc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	if len(desc.Entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrInvalidDescription)
	}
	for _, entry := range desc.Entries {
		if entry.Module == "" {
			return nil, fmt.Errorf("%w: an entry has no module", ErrInvalidDescription)
		}
	}
	for id, module := range desc.Modules {
		switch module.ExportsKind {
		case "", "none", "esm", "cjs", "commonjs":
		default:
			return nil, fmt.Errorf("%w: module %q has unknown exports kind %q", ErrInvalidDescription, id, module.ExportsKind)
		}
		for _, meta := range module.Meta {
			if _, ok := moduleMetaFromString(meta); !ok {
				return nil, fmt.Errorf("%w: module %q has unknown meta %q", ErrInvalidDescription, id, meta)
			}
		}
	}
	return desc, nil
}
