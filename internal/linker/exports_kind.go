package linker

import (
	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/graph"
)

// A module that doesn't use any module syntax has the exports kind "none".
// How it gets imported decides what it becomes:
//
//   // importer.js
//   import './a'           // "a.js" becomes ESM
//   const b = require('./b')  // "b.js" becomes CommonJS
//
// Modules that are required always need a wrapper since "require()" can run
// them at any time, and CommonJS modules need one unless they are an entry
// point of a format where "module" and "exports" are available at the top
// level.
func (c *linkerContext) determineModuleExportsKind() {
	keepESM := c.options.Format.KeepESMImportExportSyntax()

	// Visit modules in source index order so the result doesn't depend on the
	// execution order, which isn't known to the scanner
	for sourceIndex, importer := range c.graph.Modules {
		if importer.IsExternal() || !c.isExecuted(uint32(sourceIndex)) {
			continue
		}

		for _, record := range importer.ImportRecords {
			importee := c.graph.Importee(&record)
			if importee == nil || importee.IsExternal() || importee.Index() == c.graph.RuntimeSourceIndex {
				continue
			}

			switch record.Kind {
			case ast.ImportStmt:
				if importee.ExportsKind == graph.ExportsNone && !importee.Meta.Has(graph.HasLazyExport) {
					importee.ExportsKind = graph.ExportsESM
				}

			case ast.ImportRequire:
				c.wrapForRequire(importee)

			case ast.ImportDynamic:
				if c.options.InlineDynamicImports {
					c.wrapForRequire(importee)
				}
			}
		}

		if importer.ExportsKind == graph.ExportsCommonJS && (!c.graph.IsEntry(uint32(sourceIndex)) || keepESM) {
			c.graph.Metas[sourceIndex].Wrap = graph.WrapCJS
		}
	}
}

func (c *linkerContext) wrapForRequire(importee *graph.Module) {
	meta := &c.graph.Metas[importee.Index()]
	switch importee.ExportsKind {
	case graph.ExportsESM:
		meta.Wrap = graph.WrapESM
	case graph.ExportsCommonJS:
		meta.Wrap = graph.WrapCJS
	case graph.ExportsNone:
		importee.ExportsKind = graph.ExportsCommonJS
		meta.Wrap = graph.WrapCJS
	}
}
