package linker

import (
	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/js_ast"
)

// A wrapped module is lazily evaluated the first time its wrapper is called.
// Everything it imports must then be lazily evaluated too, or else those
// modules would run before the wrapped module even though they come after it
// in the execution order:
//
//   // entry.js
//   console.log('entry')
//   require('./a')
//
//   // a.js
//   import './b'
//
//   // b.js
//   console.log('b')
//
// Here "b.js" must be wrapped as well so "entry" is printed before "b".
func (c *linkerContext) wrapModules() {
	visited := make([]bool, len(c.graph.Modules))
	for _, sourceIndex := range c.graph.SortedModules {
		if c.graph.Metas[sourceIndex].Wrap != graph.WrapNone {
			c.recursivelyWrapDependencies(sourceIndex, visited)
		}
	}

	for _, sourceIndex := range c.graph.SortedModules {
		if c.graph.Metas[sourceIndex].Wrap != graph.WrapNone {
			c.createWrapper(sourceIndex)
		}
	}
}

func (c *linkerContext) recursivelyWrapDependencies(sourceIndex uint32, visited []bool) {
	if visited[sourceIndex] {
		return
	}
	visited[sourceIndex] = true

	// Never wrap the runtime file since it always comes first
	module := c.graph.Modules[sourceIndex]
	if sourceIndex == c.graph.RuntimeSourceIndex || module.IsExternal() {
		return
	}

	// This module must be wrapped
	meta := &c.graph.Metas[sourceIndex]
	if meta.Wrap == graph.WrapNone {
		if module.ExportsKind == graph.ExportsCommonJS {
			meta.Wrap = graph.WrapCJS
		} else {
			meta.Wrap = graph.WrapESM
		}
	}

	// All dependencies must also be wrapped
	for _, record := range module.ImportRecords {
		if !record.SourceIndex.IsValid() || record.Kind == ast.ImportNewURL {
			continue
		}
		if record.Kind == ast.ImportDynamic && !c.options.InlineDynamicImports {
			continue
		}
		c.recursivelyWrapDependencies(record.SourceIndex.GetIndex(), visited)
	}
}

// The wrapper is represented by a statement of its own. It's empty and only
// exists so tree shaking and code splitting can track the wrapper like any
// other declaration. Importers reference the wrapper symbol, which pulls in
// this statement and the runtime helper it calls.
func (c *linkerContext) createWrapper(sourceIndex uint32) {
	module := c.graph.Modules[sourceIndex]
	meta := &c.graph.Metas[sourceIndex]

	var name string
	var helperRef ast.Ref
	switch meta.Wrap {
	case graph.WrapCJS:
		name = "require_" + module.Source.IdentifierName
		helperRef = c.cjsRuntimeRef
	case graph.WrapESM:
		name = "init_" + module.Source.IdentifierName
		helperRef = c.esmRuntimeRef
	default:
		return
	}

	meta.WrapperRef = c.graph.Symbols.NewSymbol(sourceIndex, ast.SymbolGenerated, name)
	stmtIndex := module.StmtInfos.Add(js_ast.StmtInfo{
		DeclaredSymbols:   []ast.Ref{meta.WrapperRef},
		ReferencedSymbols: []js_ast.SymbolOrMemberExprRef{js_ast.SymbolRef(helperRef)},
		Kind:              js_ast.StmtVarDecl,
		SideEffect:        js_ast.StmtPure,
		DebugLabel:        "wrapper",
	})
	meta.WrapperStmtIndex = ast.MakeIndex32(stmtIndex)
}
