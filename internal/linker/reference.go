package linker

import (
	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/js_ast"
	"github.com/bindery-js/bindery/internal/runtime"
)

// Interop between modules needs code that isn't in any of them. An import of
// a CommonJS module turns into a call to its wrapper for example:
//
//   import {foo} from './cjs'
//   // becomes
//   var import_cjs = __toESM(require_cjs());
//
// This adds the symbols that code will reference to the statement that needs
// it, so tree shaking keeps the wrapper and the runtime helpers alive exactly
// when that statement is alive. Each module only ever changes its own
// statements and import records so this runs in parallel.
func (c *linkerContext) referenceNeededSymbols() {
	c.forEachModuleInParallel(func(sourceIndex uint32) {
		module := c.graph.Modules[sourceIndex]
		if module.IsExternal() || sourceIndex == c.graph.RuntimeSourceIndex {
			return
		}

		stmts := module.StmtInfos.All()
		for stmtIndex := range stmts {
			stmt := &stmts[stmtIndex]
			for _, recordIndex := range stmt.ImportRecordIndices {
				record := &module.ImportRecords[recordIndex]
				importee := c.graph.Importee(record)
				if importee == nil {
					continue
				}

				switch record.Kind {
				case ast.ImportStmt:
					c.referenceForImportStmt(module, uint32(stmtIndex), record, importee)
				case ast.ImportRequire:
					c.referenceForRequire(stmt, record, importee)
				case ast.ImportDynamic:
					if c.options.InlineDynamicImports && !importee.IsExternal() {
						c.referenceForRequire(stmt, record, importee)
						if importee.ExportsKind == graph.ExportsCommonJS {
							record.Flags |= ast.WrapWithToESM
							c.addRuntimeRef(stmt, runtime.HelperToESM)
						}
					}
				}
			}

			if c.options.KeepNames && stmt.Meta.Has(js_ast.KeepNamesType) {
				c.addRuntimeRef(stmt, runtime.HelperName)
			}
		}
	})
}

func (c *linkerContext) referenceForImportStmt(module *graph.Module, stmtIndex uint32, record *ast.ImportRecord, importee *graph.Module) {
	stmt := module.StmtInfos.Get(stmtIndex)
	importeeMeta := &c.graph.Metas[importee.Index()]
	isExportStar := record.Flags.Has(ast.IsExportStar)

	switch {
	case importee.IsExternal():
		if c.options.Format.KeepESMImportExportSyntax() {
			// The chunk keeps an "import" statement for this
			return
		}

		// Formats without "import" turn this into a "require()" call:
		//
		//   var import_ext = __toESM(require('ext'));
		//
		stmt.SideEffect = js_ast.StmtUnknown
		if isExportStar {
			record.Flags |= ast.CallsRunTimeReExportFn
			c.addRuntimeRef(stmt, runtime.HelperReExport)
			addSymbolRef(stmt, module.NamespaceRef)
			return
		}
		module.StmtInfos.AddDeclaredSymbol(stmtIndex, record.NamespaceRef)
		if !record.Flags.Has(ast.IsPlainImport) {
			record.Flags |= ast.WrapWithToESM
			c.addRuntimeRef(stmt, runtime.HelperToESM)
		}

	case importee.ExportsKind == graph.ExportsCommonJS:
		// Importing a CommonJS module always evaluates it
		stmt.SideEffect = js_ast.StmtUnknown
		if importeeMeta.WrapperRef != ast.InvalidRef {
			addSymbolRef(stmt, importeeMeta.WrapperRef)
		}

		if isExportStar {
			// __reExport(foo_exports, __toESM(require_cjs()));
			record.Flags |= ast.CallsRunTimeReExportFn | ast.WrapWithToESM
			stmt.Meta |= js_ast.ReExportDynamicExports
			c.addRuntimeRef(stmt, runtime.HelperReExport)
			c.addRuntimeRef(stmt, runtime.HelperToESM)
			addSymbolRef(stmt, module.NamespaceRef)
			return
		}

		if record.Flags.Has(ast.IsPlainImport) {
			return
		}
		module.StmtInfos.AddDeclaredSymbol(stmtIndex, record.NamespaceRef)

		// The "default" property doesn't need any interop if the exports object
		// is known to never have one of its own
		if !importeeMeta.SafeCJSToEliminateInteropDefault ||
			record.Flags.Has(ast.ContainsDefaultAlias) || record.Flags.Has(ast.ContainsImportStar) {
			record.Flags |= ast.WrapWithToESM
			c.addRuntimeRef(stmt, runtime.HelperToESM)
		}

	case importeeMeta.Wrap == graph.WrapESM:
		// The wrapper is called where the import was. A plain import of a module
		// without side effects doesn't need to be kept around for that.
		addSymbolRef(stmt, importeeMeta.WrapperRef)
		if importee.SideEffects.HasSideEffects() || !record.Flags.Has(ast.IsPlainImport) {
			stmt.SideEffect = js_ast.StmtUnknown
		}
		if isExportStar && importeeMeta.HasDynamicExports {
			c.referenceReExport(module, stmt, record, importee)
		}

	case isExportStar && importeeMeta.HasDynamicExports:
		c.referenceReExport(module, stmt, record, importee)
	}
}

// An export star whose target has exports that can't be known statically
// copies them onto the namespace object at run-time:
//
//   __reExport(foo_exports, bar_exports);
//
func (c *linkerContext) referenceReExport(module *graph.Module, stmt *js_ast.StmtInfo, record *ast.ImportRecord, importee *graph.Module) {
	record.Flags |= ast.CallsRunTimeReExportFn
	stmt.Meta |= js_ast.ReExportDynamicExports
	stmt.SideEffect = js_ast.StmtUnknown
	c.addRuntimeRef(stmt, runtime.HelperReExport)
	addSymbolRef(stmt, module.NamespaceRef)
	addSymbolRef(stmt, importee.NamespaceRef)
}

// "require()" of a bundled module calls its wrapper. ESM modules need their
// namespace object turned into a CommonJS exports object too:
//
//   const foo = (init_foo(), __toCommonJS(foo_exports));
//
func (c *linkerContext) referenceForRequire(stmt *js_ast.StmtInfo, record *ast.ImportRecord, importee *graph.Module) {
	if importee.IsExternal() {
		// ESM output has no "require" so it goes through a shim
		if c.options.Format.KeepESMImportExportSyntax() && record.Kind == ast.ImportRequire {
			record.Flags |= ast.CallRuntimeRequire
			c.addRuntimeRef(stmt, runtime.HelperRequire)
		}
		return
	}

	importeeMeta := &c.graph.Metas[importee.Index()]
	if importeeMeta.WrapperRef != ast.InvalidRef {
		addSymbolRef(stmt, importeeMeta.WrapperRef)
	}
	if importeeMeta.Wrap == graph.WrapESM && !record.Flags.Has(ast.IsRequireUnused) {
		addSymbolRef(stmt, importee.NamespaceRef)
		if record.Kind == ast.ImportRequire {
			record.Flags |= ast.WrapWithToCJS
			c.addRuntimeRef(stmt, runtime.HelperToCommonJS)
		}
	}
}

func (c *linkerContext) addRuntimeRef(stmt *js_ast.StmtInfo, helper runtime.Helper) {
	addSymbolRef(stmt, c.runtimeRef(helper))
}

func addSymbolRef(stmt *js_ast.StmtInfo, ref ast.Ref) {
	for _, existing := range stmt.ReferencedSymbols {
		if !existing.IsMemberExpr() && existing.Ref == ref {
			return
		}
	}
	stmt.ReferencedSymbols = append(stmt.ReferencedSymbols, js_ast.SymbolRef(ref))
}
