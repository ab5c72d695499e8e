package linker

import (
	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/graph"
)

// After tree shaking a module depends on more than what it imports. Using a
// symbol that was bound across a re-export chain depends on the module that
// declares it, and so does using a runtime helper:
//
//   // entry.js
//   import {x} from './reexport'   // depends on "source.js" too
//
//   // reexport.js
//   export {x} from './source'
//
// Modules that didn't survive tree shaking are dropped from the set.
func (c *linkerContext) patchModuleDependencies() {
	c.forEachModuleInParallel(func(sourceIndex uint32) {
		module := c.graph.Modules[sourceIndex]
		meta := &c.graph.Metas[sourceIndex]
		if module.IsExternal() || !meta.IsIncluded || sourceIndex == c.graph.RuntimeSourceIndex {
			return
		}

		var dependencies graph.ModuleSet
		add := func(other uint32) {
			if other != sourceIndex && c.graph.Metas[other].IsIncluded {
				dependencies.Add(other)
			}
		}
		addSymbol := func(ref ast.Ref) {
			canonical := ast.CanonicalRefFor(c.graph.Symbols, ref)
			add(canonical.OuterIndex)
			if alias := c.graph.Symbols.Get(canonical).NamespaceAlias; alias != nil {
				add(ast.CanonicalRefFor(c.graph.Symbols, alias.NamespaceRef).OuterIndex)
			}
		}

		for _, other := range meta.Dependencies.Slice() {
			add(other)
		}

		for stmtIndex, stmt := range module.StmtInfos.All() {
			if !meta.StmtIncluded[stmtIndex] {
				continue
			}
			for _, reference := range stmt.ReferencedSymbols {
				if reference.IsMemberExpr() {
					if resolution, ok := meta.ResolvedMemberExprRefs[reference.MemberExpr.Span]; ok {
						for _, dependedRef := range resolution.DependedRefs {
							addSymbol(dependedRef)
						}
						if !resolution.IsMissing() {
							addSymbol(resolution.Ref)
						}
						continue
					}
				}
				addSymbol(reference.Ref)
			}
		}

		for _, symbol := range meta.ReferencedSymbolsByEntryPointChunk {
			addSymbol(symbol.Ref)
		}

		if !meta.DependedRuntimeHelper.IsEmpty() {
			add(c.graph.RuntimeSourceIndex)
		}

		meta.Dependencies = dependencies
	})
}
