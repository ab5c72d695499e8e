package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// This is the shape of a config file. Every format uses the same snake_case
// keys. Pointers distinguish "not set" from the zero value where a default
// from an outer level applies.
type fileOptions struct {
	Format                  string              `yaml:"format" toml:"format" json:"format"`
	Platform                string              `yaml:"platform" toml:"platform" json:"platform"`
	Treeshake               *fileTreeShake      `yaml:"treeshake" toml:"treeshake" json:"treeshake"`
	ShimMissingExports      bool                `yaml:"shim_missing_exports" toml:"shim_missing_exports" json:"shim_missing_exports"`
	InlineDynamicImports    bool                `yaml:"inline_dynamic_imports" toml:"inline_dynamic_imports" json:"inline_dynamic_imports"`
	KeepNames               bool                `yaml:"keep_names" toml:"keep_names" json:"keep_names"`
	ProfilerNames           bool                `yaml:"profiler_names" toml:"profiler_names" json:"profiler_names"`
	PreserveEntrySignatures string              `yaml:"preserve_entry_signatures" toml:"preserve_entry_signatures" json:"preserve_entry_signatures"`
	AdvancedChunks          *fileAdvancedChunks `yaml:"advanced_chunks" toml:"advanced_chunks" json:"advanced_chunks"`
	Optimization            *fileOptimization   `yaml:"optimization" toml:"optimization" json:"optimization"`
}

type fileTreeShake struct {
	Enabled             *bool    `yaml:"enabled" toml:"enabled" json:"enabled"`
	CommonJS            bool     `yaml:"commonjs" toml:"commonjs" json:"commonjs"`
	ManualPureFunctions []string `yaml:"manual_pure_functions" toml:"manual_pure_functions" json:"manual_pure_functions"`
}

type fileOptimization struct {
	PIFEForModuleWrappers bool `yaml:"pife_for_module_wrappers" toml:"pife_for_module_wrappers" json:"pife_for_module_wrappers"`
	InlineConst           bool `yaml:"inline_const" toml:"inline_const" json:"inline_const"`
	InlineConstSmartMode  bool `yaml:"inline_const_smart_mode" toml:"inline_const_smart_mode" json:"inline_const_smart_mode"`
}

type fileAdvancedChunks struct {
	MinSize                        int64       `yaml:"min_size" toml:"min_size" json:"min_size"`
	MaxSize                        int64       `yaml:"max_size" toml:"max_size" json:"max_size"`
	MinShareCount                  uint32      `yaml:"min_share_count" toml:"min_share_count" json:"min_share_count"`
	MinModuleSize                  int64       `yaml:"min_module_size" toml:"min_module_size" json:"min_module_size"`
	MaxModuleSize                  int64       `yaml:"max_module_size" toml:"max_module_size" json:"max_module_size"`
	IncludeDependenciesRecursively *bool       `yaml:"include_dependencies_recursively" toml:"include_dependencies_recursively" json:"include_dependencies_recursively"`
	Groups                         []fileGroup `yaml:"groups" toml:"groups" json:"groups"`
}

type fileGroup struct {
	Name                           string  `yaml:"name" toml:"name" json:"name"`
	Test                           string  `yaml:"test" toml:"test" json:"test"`
	Priority                       int     `yaml:"priority" toml:"priority" json:"priority"`
	MinSize                        int64  `yaml:"min_size" toml:"min_size" json:"min_size"`
	MaxSize                        int64  `yaml:"max_size" toml:"max_size" json:"max_size"`
	MinShareCount                  uint32 `yaml:"min_share_count" toml:"min_share_count" json:"min_share_count"`
	MinModuleSize                  int64  `yaml:"min_module_size" toml:"min_module_size" json:"min_module_size"`
	MaxModuleSize                  int64  `yaml:"max_module_size" toml:"max_module_size" json:"max_module_size"`
	EntriesAware                   bool   `yaml:"entries_aware" toml:"entries_aware" json:"entries_aware"`
	EntriesAwareMergeThreshold     int64  `yaml:"entries_aware_merge_threshold" toml:"entries_aware_merge_threshold" json:"entries_aware_merge_threshold"`
	IncludeDependenciesRecursively *bool  `yaml:"include_dependencies_recursively" toml:"include_dependencies_recursively" json:"include_dependencies_recursively"`
}

// Reads a config file. The format is picked by the file extension.
func Load(path string) (Options, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("reading config file: %w", err)
	}
	options, err := Parse(filepath.Ext(path), contents)
	if err != nil {
		return Options{}, fmt.Errorf("%s: %w", path, err)
	}
	return options, nil
}

// Parses config file contents. "ext" is one of ".yaml", ".yml", ".toml" or
// ".json". Unknown keys are an error so that typos don't go unnoticed.
func Parse(ext string, contents []byte) (Options, error) {
	var file fileOptions
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(contents))
		decoder.KnownFields(true)
		if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return Options{}, fmt.Errorf("%w: %v", ErrInvalidOption, err)
		}

	case ".toml":
		meta, err := toml.Decode(string(contents), &file)
		if err != nil {
			return Options{}, fmt.Errorf("%w: %v", ErrInvalidOption, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, key := range undecoded {
				keys[i] = key.String()
			}
			return Options{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidOption, strings.Join(keys, ", "))
		}

	case ".json":
		decoder := json.NewDecoder(bytes.NewReader(contents))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&file); err != nil {
			return Options{}, fmt.Errorf("%w: %v", ErrInvalidOption, err)
		}

	default:
		return Options{}, fmt.Errorf("%w: unsupported config file extension %q", ErrInvalidOption, ext)
	}
	return file.normalize()
}

func (file *fileOptions) normalize() (Options, error) {
	options := DefaultOptions()
	var ok bool

	if options.Format, ok = FormatFromString(file.Format); !ok {
		return Options{}, fmt.Errorf("%w: unknown format %q", ErrInvalidOption, file.Format)
	}
	if options.Platform, ok = PlatformFromString(file.Platform); !ok {
		return Options{}, fmt.Errorf("%w: unknown platform %q", ErrInvalidOption, file.Platform)
	}
	if options.PreserveEntrySignatures, ok = PreserveEntrySignaturesFromString(file.PreserveEntrySignatures); !ok {
		return Options{}, fmt.Errorf("%w: unknown preserve_entry_signatures value %q", ErrInvalidOption, file.PreserveEntrySignatures)
	}
	if file.Treeshake != nil {
		if file.Treeshake.Enabled != nil {
			options.TreeShake.Enabled = *file.Treeshake.Enabled
		}
		options.TreeShake.CommonJS = file.Treeshake.CommonJS
		options.TreeShake.ManualPureFunctions = NewPureFunctions(file.Treeshake.ManualPureFunctions)
	}
	if file.Optimization != nil {
		options.Optimization = OptimizationOptions{
			PIFEForModuleWrappers: file.Optimization.PIFEForModuleWrappers,
			InlineConst:           file.Optimization.InlineConst,
			InlineConstSmartMode:  file.Optimization.InlineConstSmartMode,
		}
	}
	options.ShimMissingExports = file.ShimMissingExports
	options.InlineDynamicImports = file.InlineDynamicImports
	options.KeepNames = file.KeepNames
	options.ProfilerNames = file.ProfilerNames

	if chunks := file.AdvancedChunks; chunks != nil {
		advanced := &AdvancedChunksOptions{
			MinSize:       chunks.MinSize,
			MaxSize:       chunks.MaxSize,
			MinShareCount: chunks.MinShareCount,
			MinModuleSize: chunks.MinModuleSize,
			MaxModuleSize: chunks.MaxModuleSize,

			IncludeDependenciesRecursively: true,
		}
		if chunks.IncludeDependenciesRecursively != nil {
			advanced.IncludeDependenciesRecursively = *chunks.IncludeDependenciesRecursively
		}
		for _, group := range chunks.Groups {
			matchGroup := MatchGroup{
				Name:                           group.Name,
				TestSource:                     group.Test,
				Priority:                       group.Priority,
				MinSize:                        group.MinSize,
				MaxSize:                        group.MaxSize,
				MinShareCount:                  group.MinShareCount,
				MinModuleSize:                  group.MinModuleSize,
				MaxModuleSize:                  group.MaxModuleSize,
				EntriesAware:                   group.EntriesAware,
				EntriesAwareMergeThreshold:     group.EntriesAwareMergeThreshold,
				IncludeDependenciesRecursively: orDefault(group.IncludeDependenciesRecursively, advanced.IncludeDependenciesRecursively),
			}
			if group.Test != "" {
				re, err := CompileGroupTest(group.Test)
				if err != nil {
					return Options{}, err
				}
				matchGroup.Test = re
			}
			advanced.Groups = append(advanced.Groups, matchGroup)
		}
		options.AdvancedChunks = advanced
	}
	return options, nil
}

func orDefault[T any](value *T, fallback T) T {
	if value != nil {
		return *value
	}
	return fallback
}
