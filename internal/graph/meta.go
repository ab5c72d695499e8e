package graph

import (
	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/logger"
	"github.com/bindery-js/bindery/internal/runtime"
)

type WrapKind uint8

const (
	WrapNone WrapKind = iota

	// The module will be bundled CommonJS-style like this:
	//
	//   // foo.ts
	//   var require_foo = __commonJS((exports, module) => {
	//     exports.foo = 123;
	//   });
	//
	//   // bar.ts
	//   var foo = flag ? require_foo() : null;
	//
	WrapCJS

	// The module will be bundled ESM-style like this:
	//
	//   // foo.ts
	//   var foo, foo_exports = {};
	//   __export(foo_exports, {
	//     foo: () => foo
	//   });
	//   var init_foo = __esm(() => {
	//     foo = 123;
	//   });
	//
	//   // bar.ts
	//   var foo = flag ? (init_foo(), __toCommonJS(foo_exports)) : null;
	//
	WrapESM
)

func (kind WrapKind) String() string {
	switch kind {
	case WrapNone:
		return "none"
	case WrapCJS:
		return "cjs"
	case WrapESM:
		return "esm"
	default:
		panic("Internal error")
	}
}

// This contains linker-specific metadata corresponding to a module from the
// scan phase. It's separated out because it's conceptually only used for a
// single linking operation. It's indexed by source index just like the module
// table, and parallel phases only ever write to the slot of the module they
// are working on.
type LinkingMetadata struct {
	// This includes both named exports and re-exports.
	//
	// Named exports come from explicit export statements in the original file,
	// and are copied from the "NamedExports" field of the module.
	//
	// Re-exports come from other files and are the result of resolving export
	// star statements (i.e. "export * from 'foo'").
	ResolvedExports map[string]ResolvedExport

	// Never iterate over "ResolvedExports" directly. Instead, iterate over this
	// array. Ambiguous exports in that map aren't meant to end up in generated
	// code. This array excludes these exports and is also sorted, which avoids
	// non-determinism due to random map iteration order.
	SortedAndNonAmbiguousResolvedExports []string

	// Imports are matched with exports before they are bound so that binding
	// failures for one import don't cascade into others. This holds the
	// successful matches until every module has been matched.
	ImportsToBind map[ast.Ref]ImportData

	// Missing imports from this module that were replaced with a shim because
	// "shim_missing_exports" is enabled, keyed by the export name
	ShimmedMissingExports map[string]ast.Ref

	// Property access chains through namespace objects, keyed by the span of
	// the member expression. See "MemberExprResolution".
	ResolvedMemberExprRefs map[logger.Range]MemberExprResolution

	// The modules this module depends on at run-time. This starts off as the
	// static import records and grows as the linker discovers that included
	// statements reference symbols owned by other modules.
	Dependencies ModuleSet

	// Records of "export * from" statements whose target is external
	StarExportsFromExternalModules []uint32

	// These symbols must be kept alive if this module is an entry point because
	// the entry chunk exports them
	ReferencedSymbolsByEntryPointChunk []EntryReferencedSymbol

	// One flag per statement, set by tree shaking
	StmtIncluded []bool

	// The symbol for "require_foo" or "init_foo"
	WrapperRef ast.Ref

	// The index of the automatically-generated statement used to represent the
	// CommonJS or ESM wrapper. This statement is empty and is only useful for
	// tree shaking and code splitting. The wrapper can't be inserted into the
	// statement because the wrapper contains other statements.
	WrapperStmtIndex ast.Index32

	DependedRuntimeHelper runtime.Helper

	Wrap WrapKind

	// This is true if the exports of this module can't be fully known at link
	// time. This happens when the module or anything it re-exports with
	// "export * from" is CommonJS or external.
	HasDynamicExports bool

	// True for CommonJS modules whose "module.exports" never has a "default"
	// property, so "__toESM" doesn't need to synthesize one
	SafeCJSToEliminateInteropDefault bool

	// The module has been marked as live by the tree shaking algorithm
	IsIncluded bool

	// Some importer uses this CommonJS module in a way that prevents tree
	// shaking its exports individually
	CJSTreeShakingBailout bool

	// Why the namespace object statement of this module was included
	NamespaceIncludedReason NamespaceIncludedReason
}

type NamespaceIncludedReason uint8

const (
	NamespaceIncludedUnknown NamespaceIncludedReason = 1 << iota

	// The module is an entry whose facade chunk was merged into another chunk.
	// The other chunk re-exports the namespace object on its behalf.
	NamespaceIncludedSimulateFacadeChunk

	// The module has "export * from" with an external target
	NamespaceIncludedReExportExternalModule
)

type EntryReferencedSymbol struct {
	Ref         ast.Ref
	CameFromCJS bool
}

type ImportData struct {
	// This is an array of intermediate symbols that re-exported this symbol in
	// a chain before getting to the final symbol. This can be done either with
	// "export * from" or "export {} from". Tree shaking keeps every statement
	// along the chain alive since the chain is what the importer sees.
	ReExports []ast.Ref

	NameLoc     logger.Range
	Ref         ast.Ref
	SourceIndex uint32
}

type ResolvedExport struct {
	Ref ast.Ref

	// Export star resolution happens first before import resolution. That means
	// it cannot yet determine if duplicate names from export star resolution are
	// ambiguous (point to different symbols) or not (point to the same symbol).
	// This issue can happen in the following scenario:
	//
	//   // entry.js
	//   export * from './a'
	//   export * from './b'
	//
	//   // a.js
	//   export * from './c'
	//
	//   // b.js
	//   export {x} from './c'
	//
	//   // c.js
	//   export let x = 1, y = 2
	//
	// In this case "entry.js" should have two exports "x" and "y", neither of
	// which are ambiguous. To handle this case, ambiguity resolution must be
	// deferred until import resolution time. That is done using this array.
	PotentiallyAmbiguousExportStarRefs []ImportData

	// This is the module that the named export above came from. This will be
	// different from the module that contains this object if this is a
	// re-export.
	NameLoc     logger.Range
	SourceIndex uint32

	// The symbol is a projection of a CommonJS module's exports
	CameFromCJS bool
}

// The result of walking a member expression chain like "ns.foo.bar" through
// namespace objects:
//
//   import * as ns from './foo'
//   ns.bar.baz
//
// If "bar" is itself a namespace re-exported by "./foo" then "baz" is looked
// up in there too. "Ref" is the symbol the walk ended at and "Props" holds the
// properties that are still accessed off of it. An invalid "Ref" means the
// walk hit a property that doesn't exist, and the expression is rewritten to
// "void 0" followed by the remaining properties.
type MemberExprResolution struct {
	Ref   ast.Ref
	Props []string

	// Namespace objects the walk went through. Their declarations don't need
	// to be included but their modules must still be evaluated.
	DependedRefs []ast.Ref
}

func (r MemberExprResolution) IsMissing() bool {
	return r.Ref == ast.InvalidRef
}
