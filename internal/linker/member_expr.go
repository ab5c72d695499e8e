package linker

import (
	"fmt"
	"sort"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/js_ast"
	"github.com/bindery-js/bindery/internal/logger"
)

// Property accesses off of namespace objects are resolved to the export they
// name so that tree shaking doesn't have to keep the whole namespace alive:
//
//   import * as ns from './foo'
//   console.log(ns.bar.baz)
//
// If "./foo" exports "bar" as a namespace too, the walk continues into it.
// Accessing an export that doesn't exist on a module with static exports is
// a warning and the access becomes "void 0".
func (c *linkerContext) resolveMemberExprRefs() {
	c.forEachModuleInParallel(func(sourceIndex uint32) {
		module := c.graph.Modules[sourceIndex]
		if module.IsExternal() {
			return
		}
		resolved := c.graph.Metas[sourceIndex].ResolvedMemberExprRefs

		for _, stmt := range module.StmtInfos.All() {
			for _, reference := range stmt.ReferencedSymbols {
				if !reference.IsMemberExpr() {
					continue
				}
				member := reference.MemberExpr
				if resolution, ok := c.resolveMemberExpr(module, member); ok {
					resolved[member.Span] = resolution
				}
			}
		}
	})
}

// Returns false if the property accesses couldn't be looked through at all
func (c *linkerContext) resolveMemberExpr(module *graph.Module, member *js_ast.MemberExprRef) (graph.MemberExprResolution, bool) {
	target := ast.CanonicalRefFor(c.graph.Symbols, member.ObjectRef)
	owner, ok := c.namespaceOwners[target]
	if !ok {
		return graph.MemberExprResolution{}, false
	}

	props := member.Props
	dependedRefs := []ast.Ref{member.ObjectRef}
	for len(props) > 0 {
		ownerModule := c.graph.Modules[owner]
		ownerMeta := &c.graph.Metas[owner]

		// The exports of these can't be known until run-time
		if ownerModule.IsExternal() || ownerModule.ExportsKind == graph.ExportsCommonJS || ownerMeta.HasDynamicExports {
			break
		}

		export, ok := ownerMeta.ResolvedExports[props[0]]
		if !ok {
			c.log.AddID(logger.MsgID_Link_ImportIsUndefined, logger.Warning, &module.Source, member.Span,
				fmt.Sprintf("Import %q will always be undefined because there is no matching export in %q",
					props[0], ownerModule.StableID()))
			return graph.MemberExprResolution{
				Ref:          ast.InvalidRef,
				Props:        props[1:],
				DependedRefs: dependedRefs,
			}, true
		}

		// Leave ambiguous exports alone. Accessing them yields whatever the
		// namespace object has at run-time.
		if len(export.PotentiallyAmbiguousExportStarRefs) > 0 && !containsString(ownerMeta.SortedAndNonAmbiguousResolvedExports, props[0]) {
			break
		}

		dependedRefs = append(dependedRefs, export.Ref)
		target = ast.CanonicalRefFor(c.graph.Symbols, export.Ref)
		props = props[1:]

		// Keep walking if the export is itself a namespace object
		next, ok := c.namespaceOwners[target]
		if !ok {
			break
		}
		owner = next
	}

	if len(props) == len(member.Props) {
		return graph.MemberExprResolution{}, false
	}
	return graph.MemberExprResolution{
		Ref:          target,
		Props:        props,
		DependedRefs: dependedRefs,
	}, true
}

func containsString(sorted []string, text string) bool {
	i := sort.SearchStrings(sorted, text)
	return i < len(sorted) && sorted[i] == text
}
