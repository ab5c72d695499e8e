package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

var ErrInvalidOption = errors.New("invalid option")

type Platform uint8

const (
	PlatformBrowser Platform = iota
	PlatformNode
	PlatformNeutral
)

func PlatformFromString(text string) (Platform, bool) {
	switch text {
	case "", "browser":
		return PlatformBrowser, true
	case "node":
		return PlatformNode, true
	case "neutral":
		return PlatformNeutral, true
	}
	return 0, false
}

type Format uint8

const (
	// The ES module format looks like this:
	//
	//   ... bundled code ...
	//   export {...};
	//
	FormatESModule Format = iota

	// The CommonJS format looks like this:
	//
	//   ... bundled code ...
	//   module.exports = exports;
	//
	FormatCommonJS

	// IIFE stands for immediately-invoked function expression. That looks like
	// this:
	//
	//   (() => {
	//     ... bundled code ...
	//   })();
	//
	FormatIIFE

	// Like IIFE but also registers the exports with AMD and CommonJS loaders
	FormatUMD

	// Modules are registered with the dev runtime instead of being linked
	// statically. This behaves like ESM for linking purposes.
	FormatApp
)

func (f Format) String() string {
	switch f {
	case FormatESModule:
		return "esm"
	case FormatCommonJS:
		return "cjs"
	case FormatIIFE:
		return "iife"
	case FormatUMD:
		return "umd"
	case FormatApp:
		return "app"
	default:
		panic("Internal error")
	}
}

func FormatFromString(text string) (Format, bool) {
	switch text {
	case "", "esm", "es", "module":
		return FormatESModule, true
	case "cjs", "commonjs":
		return FormatCommonJS, true
	case "iife":
		return FormatIIFE, true
	case "umd":
		return FormatUMD, true
	case "app":
		return FormatApp, true
	}
	return 0, false
}

func (f Format) KeepESMImportExportSyntax() bool {
	return f == FormatESModule || f == FormatApp
}

// Formats that can only have a single entry chunk
func (f Format) IsSingleFile() bool {
	return f == FormatIIFE || f == FormatUMD
}

type PreserveEntrySignatures uint8

const (
	// Like "AllowExtension" unless the entry has no exports at all
	PreserveEntrySignaturesExportsOnly PreserveEntrySignatures = iota

	// The entry chunk exports exactly what the entry module exports
	PreserveEntrySignaturesStrict

	// The entry chunk may export additional names needed by other chunks
	PreserveEntrySignaturesAllowExtension

	// The entry chunk is not required to export anything
	PreserveEntrySignaturesFalse
)

func PreserveEntrySignaturesFromString(text string) (PreserveEntrySignatures, bool) {
	switch text {
	case "", "exports-only", "exportsOnly":
		return PreserveEntrySignaturesExportsOnly, true
	case "strict":
		return PreserveEntrySignaturesStrict, true
	case "allow-extension", "allowExtension":
		return PreserveEntrySignaturesAllowExtension, true
	case "false":
		return PreserveEntrySignaturesFalse, true
	}
	return 0, false
}

type TreeShakeOptions struct {
	Enabled bool

	// Statements that only assign to "exports" may be removed from modules the
	// scanner marked safe
	CommonJS bool

	ManualPureFunctions PureFunctions
}

type OptimizationOptions struct {
	// Annotate module wrapper functions as "possibly-invoked function
	// expressions" so engines compile them eagerly
	PIFEForModuleWrappers bool

	// Replace references to top-level constants with their literal value
	InlineConst bool

	// Only inline constants when the declaration can be removed as a result
	InlineConstSmartMode bool
}

// A manual code splitting rule. Modules matching "Test" are pulled out into a
// chunk named "Name". Sizes are in bytes of source text. Sizes and counts left
// at zero use the value from "AdvancedChunksOptions", and a zero maximum there
// means there is no limit.
type MatchGroup struct {
	Name string

	// The original pattern text, kept for error messages and metafiles
	TestSource string
	Test       *regexp2.Regexp

	Priority int

	MinSize       int64
	MaxSize       int64
	MinShareCount uint32
	MinModuleSize int64
	MaxModuleSize int64

	// Split the group further by which entries reach each module
	EntriesAware bool

	// Entries-aware subgroups smaller than this are merged into their nearest
	// sibling subgroup
	EntriesAwareMergeThreshold int64

	IncludeDependenciesRecursively bool
}

// Returns whether the module id matches this group. A group without a test
// matches every module.
func (g *MatchGroup) Matches(moduleID string) bool {
	if g.Test == nil {
		return true
	}
	ok, err := g.Test.MatchString(moduleID)
	return err == nil && ok
}

type AdvancedChunksOptions struct {
	// Defaults for every group
	MinSize       int64
	MaxSize       int64
	MinShareCount uint32
	MinModuleSize int64
	MaxModuleSize int64

	IncludeDependenciesRecursively bool

	Groups []MatchGroup
}

type Options struct {
	Format   Format
	Platform Platform

	TreeShake TreeShakeOptions

	// Replace missing-export errors with a facade "undefined" binding
	ShimMissingExports bool

	// Put every dynamic import in the chunk of its importer
	InlineDynamicImports bool

	KeepNames     bool
	ProfilerNames bool

	PreserveEntrySignatures PreserveEntrySignatures

	AdvancedChunks *AdvancedChunksOptions
	Optimization   OptimizationOptions
}

func DefaultOptions() Options {
	return Options{
		TreeShake:               TreeShakeOptions{Enabled: true},
		PreserveEntrySignatures: PreserveEntrySignaturesExportsOnly,
	}
}

// The group pattern syntax is a JavaScript regular expression literal, with
// or without the slashes. Patterns without slashes are matched as-is.
func CompileGroupTest(source string) (*regexp2.Regexp, error) {
	pattern := source
	var options regexp2.RegexOptions = regexp2.ECMAScript
	if len(source) > 1 && source[0] == '/' {
		end := strings.LastIndexByte(source, '/')
		if end <= 0 {
			return nil, fmt.Errorf("%w: unterminated regular expression %q", ErrInvalidOption, source)
		}
		for _, flag := range source[end+1:] {
			switch flag {
			case 'i':
				options |= regexp2.IgnoreCase
			case 'm':
				options |= regexp2.Multiline
			case 's':
				options |= regexp2.Singleline
			case 'g', 'u', 'y', 'd':
			default:
				return nil, fmt.Errorf("%w: unsupported regular expression flag %q in %q", ErrInvalidOption, flag, source)
			}
		}
		pattern = source[1:end]
	}
	re, err := regexp2.Compile(pattern, options)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid regular expression %q: %v", ErrInvalidOption, source, err)
	}
	return re, nil
}

// Checks the combinations of options that don't make sense. Every problem is
// reported, not just the first.
func (o *Options) Validate(entryCount int) error {
	var errs []error
	if o.Format.IsSingleFile() && entryCount > 1 && !o.InlineDynamicImports {
		errs = append(errs, fmt.Errorf("%w: the %q format does not support multiple entry points", ErrInvalidOption, o.Format.String()))
	}
	if o.Format.IsSingleFile() && o.AdvancedChunks != nil && len(o.AdvancedChunks.Groups) > 0 {
		errs = append(errs, fmt.Errorf("%w: the %q format does not support code splitting groups", ErrInvalidOption, o.Format.String()))
	}
	if chunks := o.AdvancedChunks; chunks != nil {
		errs = append(errs, validateSizes("advanced_chunks", chunks.MinSize, chunks.MaxSize, chunks.MinModuleSize, chunks.MaxModuleSize)...)
		names := make(map[string]bool)
		for i, group := range chunks.Groups {
			where := fmt.Sprintf("advanced_chunks.groups[%d]", i)
			if group.Name == "" {
				errs = append(errs, fmt.Errorf("%w: %s is missing a name", ErrInvalidOption, where))
			}
			if names[group.Name] && group.Name != "" {
				errs = append(errs, fmt.Errorf("%w: %s reuses the group name %q", ErrInvalidOption, where, group.Name))
			}
			names[group.Name] = true
			errs = append(errs, validateSizes(where, group.MinSize, group.MaxSize, group.MinModuleSize, group.MaxModuleSize)...)
			if group.EntriesAwareMergeThreshold < 0 {
				errs = append(errs, fmt.Errorf("%w: %s.entries_aware_merge_threshold must not be negative", ErrInvalidOption, where))
			}
		}
	}
	return errors.Join(errs...)
}

func validateSizes(where string, minSize int64, maxSize int64, minModuleSize int64, maxModuleSize int64) []error {
	var errs []error
	for _, size := range []struct {
		name  string
		value int64
	}{{"min_size", minSize}, {"max_size", maxSize}, {"min_module_size", minModuleSize}, {"max_module_size", maxModuleSize}} {
		if size.value < 0 {
			errs = append(errs, fmt.Errorf("%w: %s.%s must not be negative", ErrInvalidOption, where, size.name))
		}
	}
	if maxSize > 0 && minSize > maxSize {
		errs = append(errs, fmt.Errorf("%w: %s.min_size (%d) is larger than max_size (%d)", ErrInvalidOption, where, minSize, maxSize))
	}
	if maxModuleSize > 0 && minModuleSize > maxModuleSize {
		errs = append(errs, fmt.Errorf("%w: %s.min_module_size (%d) is larger than max_module_size (%d)", ErrInvalidOption, where, minModuleSize, maxModuleSize))
	}
	return errs
}
