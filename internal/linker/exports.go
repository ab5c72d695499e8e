package linker

import (
	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/js_ast"
	"github.com/bindery-js/bindery/internal/runtime"
)

// This synthesizes the statements that export things. None of them have any
// code of their own yet. They exist so tree shaking can see what they
// reference, and the finalizer fills in the code for whatever survives.
func (c *linkerContext) createExportsForModules() {
	for _, entry := range c.graph.Entries {
		c.createEntryPointExports(entry)
	}

	for _, sourceIndex := range c.graph.SortedModules {
		module := c.graph.Modules[sourceIndex]
		if module.IsExternal() || sourceIndex == c.graph.RuntimeSourceIndex {
			continue
		}
		c.createShimStmts(sourceIndex)
		if module.ExportsKind != graph.ExportsCommonJS {
			c.createNamespaceStmt(sourceIndex)
		}
	}
}

// The exports of an entry point must survive tree shaking. Whether they do
// depends on how strictly the entry signature must be preserved:
//
//   // entry.js
//   export let used = 1, unused = 2
//
// With "preserveEntrySignatures: false" both are gone unless something
// imports the entry with "import()".
func (c *linkerContext) createEntryPointExports(entry graph.EntryPoint) {
	module := c.graph.Modules[entry.SourceIndex]
	meta := &c.graph.Metas[entry.SourceIndex]
	if module.IsExternal() {
		return
	}

	if meta.WrapperRef != ast.InvalidRef {
		meta.ReferencedSymbolsByEntryPointChunk = append(meta.ReferencedSymbolsByEntryPointChunk,
			graph.EntryReferencedSymbol{Ref: meta.WrapperRef})
	}

	if c.options.PreserveEntrySignatures == config.PreserveEntrySignaturesFalse && len(module.DynamicImporters) == 0 {
		return
	}

	// Formats without "export" syntax expose the namespace object instead:
	//
	//   module.exports = __toCommonJS(entry_exports);
	//
	if !c.options.Format.KeepESMImportExportSyntax() && module.ExportsKind != graph.ExportsCommonJS {
		if len(meta.SortedAndNonAmbiguousResolvedExports) > 0 || meta.HasDynamicExports {
			meta.ReferencedSymbolsByEntryPointChunk = append(meta.ReferencedSymbolsByEntryPointChunk,
				graph.EntryReferencedSymbol{Ref: module.NamespaceRef},
				graph.EntryReferencedSymbol{Ref: c.runtimeRef(runtime.HelperToCommonJS)})
		}
		return
	}

	for _, alias := range meta.SortedAndNonAmbiguousResolvedExports {
		export := meta.ResolvedExports[alias]
		meta.ReferencedSymbolsByEntryPointChunk = append(meta.ReferencedSymbolsByEntryPointChunk,
			graph.EntryReferencedSymbol{Ref: export.Ref, CameFromCJS: export.CameFromCJS})
	}
}

// Imports of missing exports were bound to a shim when "shimMissingExports"
// is enabled. The shim is declared like this:
//
//   var missing$$ = void 0;
//
func (c *linkerContext) createShimStmts(sourceIndex uint32) {
	module := c.graph.Modules[sourceIndex]
	shims := c.graph.Metas[sourceIndex].ShimmedMissingExports
	for _, alias := range helpers.SortedKeys(shims) {
		ref := shims[alias]
		module.StmtInfos.Add(js_ast.StmtInfo{
			DeclaredSymbols: []ast.Ref{ref},
			Text:            "var " + c.graph.Symbols.NameFor(ref) + " = void 0",
			Kind:            js_ast.StmtVarDecl,
			SideEffect:      js_ast.StmtPure,
			DebugLabel:      "shim " + alias,
		})
	}
}

// Statement 0 of an ESM module creates its namespace object:
//
//   var foo_exports = {};
//   __export(foo_exports, {
//     bar: () => bar,
//     baz: () => baz
//   });
//
// It references every export so including the namespace keeps them alive.
func (c *linkerContext) createNamespaceStmt(sourceIndex uint32) {
	module := c.graph.Modules[sourceIndex]
	meta := &c.graph.Metas[sourceIndex]

	var refs []js_ast.SymbolOrMemberExprRef
	if len(meta.SortedAndNonAmbiguousResolvedExports) > 0 {
		refs = append(refs, js_ast.SymbolRef(c.runtimeRef(runtime.HelperExport)))
		for _, alias := range meta.SortedAndNonAmbiguousResolvedExports {
			refs = append(refs, js_ast.SymbolRef(meta.ResolvedExports[alias].Ref))
		}
	}

	// The namespace object of a module that re-exports an external module with
	// "export * from" copies the properties of the external namespace:
	//
	//   import * as ext from 'ext';
	//   __reExport(foo_exports, ext);
	//
	if len(meta.StarExportsFromExternalModules) > 0 {
		refs = append(refs, js_ast.SymbolRef(c.runtimeRef(runtime.HelperReExport)))
		if c.options.Format.KeepESMImportExportSyntax() {
			for _, recordIndex := range meta.StarExportsFromExternalModules {
				record := &module.ImportRecords[recordIndex]
				refs = append(refs, js_ast.SymbolRef(c.graph.Importee(record).NamespaceRef))
			}
		}
	}

	module.StmtInfos.ReplaceNamespaceStmtInfo(js_ast.StmtInfo{
		DeclaredSymbols:   []ast.Ref{module.NamespaceRef},
		ReferencedSymbols: refs,
		Kind:              js_ast.StmtVarDecl,
		SideEffect:        js_ast.StmtPure,
		DebugLabel:        "namespace",
	})
}
