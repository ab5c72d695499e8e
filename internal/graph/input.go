package graph

// The code in this file mainly represents data that passes from the scan phase
// to the link phase. The linker treats everything in "Module" as input and
// writes its own results into "LinkingMetadata" instead. There are a few
// exceptions that are documented on the fields themselves: the linker owns the
// execution order, the final exports kind and the statement table of each
// module since it synthesizes statements of its own.

import (
	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/js_ast"
	"github.com/bindery-js/bindery/internal/logger"
)

type ModuleKind uint8

const (
	ModuleNormal ModuleKind = iota
	ModuleExternal
)

type ExportsKind uint8

const (
	// The module doesn't use any module syntax at all. Whether it ends up as
	// ESM or CommonJS is decided by how other modules import it.
	ExportsNone ExportsKind = iota

	// "import" and "export" statements
	ExportsESM

	// "module.exports", "exports" or top-level "return"
	ExportsCommonJS
)

func (kind ExportsKind) String() string {
	switch kind {
	case ExportsNone:
		return "none"
	case ExportsESM:
		return "esm"
	case ExportsCommonJS:
		return "commonjs"
	default:
		panic("Internal error")
	}
}

func ExportsKindFromString(text string) (ExportsKind, bool) {
	switch text {
	case "", "none":
		return ExportsNone, true
	case "esm":
		return ExportsESM, true
	case "cjs", "commonjs":
		return ExportsCommonJS, true
	}
	return 0, false
}

type SideEffectsKind uint8

const (
	// The scanner looked at every top-level statement to decide
	SideEffectsAnalyzed SideEffectsKind = iota

	// A "sideEffects" field in "package.json" or a plugin decided
	SideEffectsUserDefined

	// This module must never be tree shaken, even if tree shaking is enabled
	SideEffectsNoTreeshake
)

type SideEffects struct {
	Kind  SideEffectsKind
	Value bool
}

func (s SideEffects) HasSideEffects() bool {
	return s.Kind == SideEffectsNoTreeshake || s.Value
}

func (s SideEffects) String() string {
	switch s.Kind {
	case SideEffectsNoTreeshake:
		return "no-treeshake"
	case SideEffectsUserDefined:
		if s.Value {
			return "user-defined(true)"
		}
		return "user-defined(false)"
	default:
		if s.Value {
			return "analyzed(true)"
		}
		return "analyzed(false)"
	}
}

// Which CommonJS-related globals the module uses
type AstUsage uint8

const (
	UsesModuleRef AstUsage = 1 << iota
	UsesExportsRef
	UsesRequire
	UsesEval
	UsesTopLevelAwait
)

func (usage AstUsage) Has(flag AstUsage) bool {
	return (usage & flag) != 0
}

type ModuleMeta uint8

const (
	// The exports of this module are inferred from its content (e.g. JSON)
	HasLazyExport ModuleMeta = 1 << iota

	// The scanner proved every "exports.foo = ..." in this module is a plain
	// assignment, so statements that only do that may be removed when CommonJS
	// tree shaking is enabled
	SafelyTreeshakeCommonJS

	// Direct "eval" is used somewhere, so every top-level declaration may be
	// referenced by name at run-time
	HasEval

	// Evaluation order of this module is observable by its importers
	ExecutionOrderSensitive

	// Every use of "exports" and "module" is a static property access such as
	// "exports.foo", so the module never gets an "__esModule" marker or a
	// "default" property behind the linker's back
	StaticCommonJSExports
)

func (meta ModuleMeta) Has(flag ModuleMeta) bool {
	return (meta & flag) != 0
}

// A module whose exports come from a data value instead of from statements:
//
//   // data.json
//   {"name": "pkg", "version": "1.0.0"}
//
// The linker turns each top-level key that is a valid identifier into a named
// export and the whole object into the default export.
type LazyExport struct {
	// The value as JSON source text
	Text   string
	Fields []LazyExportField
}

type LazyExportField struct {
	Key  string
	Text string
}

type ThisReplacement uint8

const (
	ThisKeep ThisReplacement = iota
	ThisWithExports
	ThisWithUndefined
)

type Module struct {
	// "Source.PrettyPath" is the stable id: a platform-independent path
	// relative to the working directory. "Source.IdentifierName" is the name
	// used to derive generated symbol names such as "require_foo".
	Source logger.Source

	// The resolved id, typically an absolute path. External modules use the
	// specifier as written.
	ID string

	ImportRecords []ast.ImportRecord
	NamedImports  map[ast.Ref]js_ast.NamedImport
	NamedExports  map[string]js_ast.NamedExport

	// Statement 0 is always the namespace object statement. The linker owns
	// this table after the scan phase: it replaces statement 0 and appends
	// wrapper and shim statements.
	StmtInfos js_ast.StmtInfos

	// Top-level "this" positions and what to replace each with
	ThisExprReplace map[logger.Loc]ThisReplacement

	LazyExport *LazyExport

	// Import records of "module.exports = require('./other')" statements
	CommonJSReExports []uint32

	// The modules that reference this one with "import()" and with anything else
	DynamicImporters []uint32
	Importers        []uint32

	NamespaceRef     ast.Ref
	DefaultExportRef ast.Ref

	// Assigned by the linker's module sort. This is the position of the module
	// in a depth-first post-order traversal from the entry points.
	ExecOrder uint32

	SideEffects SideEffects
	Kind        ModuleKind

	// The linker may promote "ExportsNone" to one of the other kinds
	ExportsKind ExportsKind

	AstUsage AstUsage
	Meta     ModuleMeta
}

const ExecOrderUnreached = ^uint32(0)

func (m *Module) StableID() string {
	return m.Source.PrettyPath
}

func (m *Module) Index() uint32 {
	return m.Source.Index
}

func (m *Module) IsExternal() bool {
	return m.Kind == ModuleExternal
}

func (m *Module) IsExecuted() bool {
	return m.ExecOrder != ExecOrderUnreached
}

// The modules that "export * from" targets which are external
func (m *Module) StarExportsFromExternalModules(modules []*Module) []uint32 {
	var records []uint32
	for i, record := range m.ImportRecords {
		if !record.Flags.Has(ast.IsExportStar) || !record.SourceIndex.IsValid() {
			continue
		}
		if modules[record.SourceIndex.GetIndex()].IsExternal() {
			records = append(records, uint32(i))
		}
	}
	return records
}

func (m *Module) HasStarExport() bool {
	for _, record := range m.ImportRecords {
		if record.Flags.Has(ast.IsExportStar) {
			return true
		}
	}
	return false
}

// Size is used by manual code splitting to enforce group size limits
func (m *Module) Size() int {
	return len(m.Source.Contents)
}
