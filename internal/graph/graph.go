package graph

import (
	"sort"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/js_ast"
)

type EntryPointKind uint8

const (
	// Specified by the user. Named user entries keep their declaration order.
	EntryPointUserDefined EntryPointKind = iota

	// Emitted by a plugin. These behave like user entries but are sorted.
	EntryPointEmittedUserDefined

	// The target of an "import()" expression
	EntryPointDynamicImport
)

func (kind EntryPointKind) String() string {
	switch kind {
	case EntryPointUserDefined:
		return "user-defined"
	case EntryPointEmittedUserDefined:
		return "emitted-user-defined"
	case EntryPointDynamicImport:
		return "dynamic-import"
	default:
		panic("Internal error")
	}
}

func (kind EntryPointKind) IsUserDefined() bool {
	return kind == EntryPointUserDefined || kind == EntryPointEmittedUserDefined
}

// A statement that makes an entry point reachable, such as the statement
// containing "import('./foo')" for the dynamic entry "./foo"
type RelatedStmt struct {
	SourceIndex uint32
	StmtIndex   uint32
}

type EntryPoint struct {
	Name             string
	RelatedStmtInfos []RelatedStmt
	SourceIndex      uint32
	Kind             EntryPointKind
}

type LinkerGraph struct {
	// Indexed by source index. The runtime module is always present.
	Modules []*Module
	Metas   []LinkingMetadata
	Symbols ast.SymbolMap
	Entries []EntryPoint

	// The modules in execution order. Set by the module sort and never changed
	// afterward. If you need to iterate over all modules in the linking
	// operation in a deterministic order, iterate over this array.
	SortedModules []uint32

	RuntimeSourceIndex uint32
}

// Clone the mutable parts of the modules so that linking the same scan output
// twice yields the same result. Symbols are copied too since linking merges
// them.
func MakeLinkerGraph(modules []*Module, symbols ast.SymbolMap, entries []EntryPoint, runtimeSourceIndex uint32) LinkerGraph {
	clonedSymbols := ast.NewSymbolMap(len(symbols.Outer))
	for sourceIndex, inner := range symbols.Outer {
		clonedSymbols.Outer[sourceIndex] = append([]ast.Symbol{}, inner...)
	}

	clones := make([]*Module, len(modules))
	for i, module := range modules {
		clone := *module
		clone.ImportRecords = append([]ast.ImportRecord{}, module.ImportRecords...)
		clone.StmtInfos = module.StmtInfos.Clone()
		clone.NamedExports = make(map[string]js_ast.NamedExport, len(module.NamedExports))
		for alias, export := range module.NamedExports {
			clone.NamedExports[alias] = export
		}
		clone.NamedImports = make(map[ast.Ref]js_ast.NamedImport, len(module.NamedImports))
		for ref, namedImport := range module.NamedImports {
			clone.NamedImports[ref] = namedImport
		}
		clone.ExecOrder = ExecOrderUnreached
		clones[i] = &clone
	}

	return LinkerGraph{
		Modules:            clones,
		Metas:              make([]LinkingMetadata, len(modules)),
		Symbols:            clonedSymbols,
		Entries:            append([]EntryPoint{}, entries...),
		RuntimeSourceIndex: runtimeSourceIndex,
	}
}

func (g *LinkerGraph) Module(sourceIndex uint32) *Module {
	return g.Modules[sourceIndex]
}

// Returns the module an import record points to, or nil if it was unresolved
func (g *LinkerGraph) Importee(record *ast.ImportRecord) *Module {
	if !record.SourceIndex.IsValid() {
		return nil
	}
	return g.Modules[record.SourceIndex.GetIndex()]
}

func (g *LinkerGraph) IsEntry(sourceIndex uint32) bool {
	for _, entry := range g.Entries {
		if entry.SourceIndex == sourceIndex {
			return true
		}
	}
	return false
}

func (g *LinkerGraph) IsUserDefinedEntry(sourceIndex uint32) bool {
	for _, entry := range g.Entries {
		if entry.SourceIndex == sourceIndex && entry.Kind.IsUserDefined() {
			return true
		}
	}
	return false
}

// The exports an entry chunk must expose, in sorted order. Exports that are
// CommonJS projections are excluded unless "includeCJS" is set since those
// are accessed through the wrapper instead.
func (g *LinkerGraph) CanonicalExports(sourceIndex uint32, includeCJS bool) []string {
	meta := &g.Metas[sourceIndex]
	aliases := make([]string, 0, len(meta.SortedAndNonAmbiguousResolvedExports))
	for _, alias := range meta.SortedAndNonAmbiguousResolvedExports {
		if !includeCJS && meta.ResolvedExports[alias].CameFromCJS {
			continue
		}
		aliases = append(aliases, alias)
	}
	return aliases
}

// An insertion-ordered set of source indices. Iteration order is the order
// in which indices were first added, which keeps everything that walks module
// dependencies deterministic.
type ModuleSet struct {
	order []uint32
	has   map[uint32]struct{}
}

func (s *ModuleSet) Add(sourceIndex uint32) bool {
	if s.has == nil {
		s.has = make(map[uint32]struct{})
	}
	if _, ok := s.has[sourceIndex]; ok {
		return false
	}
	s.has[sourceIndex] = struct{}{}
	s.order = append(s.order, sourceIndex)
	return true
}

func (s *ModuleSet) Has(sourceIndex uint32) bool {
	_, ok := s.has[sourceIndex]
	return ok
}

func (s *ModuleSet) Len() int {
	return len(s.order)
}

func (s *ModuleSet) Slice() []uint32 {
	return s.order
}

func (s *ModuleSet) Sorted() []uint32 {
	sorted := append([]uint32{}, s.order...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}
