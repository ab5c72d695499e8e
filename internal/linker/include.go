package linker

import (
	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/js_ast"
	"github.com/bindery-js/bindery/internal/runtime"
)

type includeReason uint8

const (
	includeReasonNormal includeReason = iota

	// The symbol is exported by an entry chunk, so it must exist even if it
	// could be inlined everywhere else
	includeReasonEntryExport
)

// Tree shaking works on statements. Each user entry point marks the
// statements declaring its exports as live, and everything a live statement
// references is live too. Modules are included when anything in them is, and
// including a module includes the statements it can't do without (i.e. the
// ones with side effects).
func (c *linkerContext) includeStatements() {
	for i, module := range c.graph.Modules {
		c.graph.Metas[i].StmtIncluded = make([]bool, module.StmtInfos.Len())
	}

	for _, entry := range c.graph.Entries {
		if entry.Kind.IsUserDefined() {
			c.includeEntryPoint(entry.SourceIndex)
		}
	}

	c.includeDynamicEntryPoints()

	// Remember which runtime helpers each module ended up needing
	for _, sourceIndex := range c.graph.SortedModules {
		module := c.graph.Modules[sourceIndex]
		meta := &c.graph.Metas[sourceIndex]
		if sourceIndex == c.graph.RuntimeSourceIndex || !meta.IsIncluded {
			continue
		}
		for stmtIndex, stmt := range module.StmtInfos.All() {
			if !meta.StmtIncluded[stmtIndex] {
				continue
			}
			for _, reference := range stmt.ReferencedSymbols {
				if reference.Ref.OuterIndex != c.graph.RuntimeSourceIndex {
					continue
				}
				if helper, ok := runtime.HelperFromName(c.graph.Symbols.NameFor(reference.Ref)); ok {
					meta.DependedRuntimeHelper |= helper
				}
			}
		}
	}
}

func (c *linkerContext) includeEntryPoint(sourceIndex uint32) {
	meta := &c.graph.Metas[sourceIndex]
	for _, symbol := range meta.ReferencedSymbolsByEntryPointChunk {
		c.includeSymbol(symbol.Ref, includeReasonEntryExport)

		// The export epilogue calls helpers without a statement of its own
		if symbol.Ref.OuterIndex == c.graph.RuntimeSourceIndex {
			if helper, ok := runtime.HelperFromName(c.graph.Symbols.NameFor(symbol.Ref)); ok {
				meta.DependedRuntimeHelper |= helper
			}
		}
	}
	c.includeModule(sourceIndex)
}

// A dynamic entry point is only kept if the "import()" expression that loads
// it survived tree shaking and loading it does something observable. Keeping
// one can make another one reachable, so this iterates until nothing changes.
//
//   // entry.js
//   import('./polyfill')          // kept if "polyfill.js" has side effects
//   import('./lazy').then(run)    // kept since the exports are used
//
// The "import()" expressions of the ones that aren't kept are rewritten to
// resolve to an empty namespace object.
func (c *linkerContext) includeDynamicEntryPoints() {
	for _, entry := range c.graph.Entries {
		if entry.Kind == graph.EntryPointDynamicImport {
			c.dynamicImportExportsUsage[entry.SourceIndex] = c.dynamicImportUsage(entry.SourceIndex)
		}
	}

	alive := make(map[uint32]bool)
	for {
		changed := false
		for _, entry := range c.graph.Entries {
			if entry.Kind != graph.EntryPointDynamicImport || alive[entry.SourceIndex] || !c.isDynamicEntryAlive(entry) {
				continue
			}
			alive[entry.SourceIndex] = true
			changed = true
			if c.dynamicImportExportsUsage[entry.SourceIndex] == DynamicImportUsesNamespace {
				c.includeEntryPoint(entry.SourceIndex)
			} else {
				c.includeModule(entry.SourceIndex)
			}
		}
		if !changed {
			break
		}
	}

	// Drop the dead ones
	entries := c.graph.Entries[:0]
	for _, entry := range c.graph.Entries {
		if entry.Kind != graph.EntryPointDynamicImport || alive[entry.SourceIndex] {
			entries = append(entries, entry)
			continue
		}
		for _, importerIndex := range c.graph.Modules[entry.SourceIndex].DynamicImporters {
			importer := c.graph.Modules[importerIndex]
			for i := range importer.ImportRecords {
				record := &importer.ImportRecords[i]
				if record.Kind == ast.ImportDynamic && record.SourceIndex.IsValid() && record.SourceIndex.GetIndex() == entry.SourceIndex {
					record.Flags |= ast.DeadDynamicImport
				}
			}
		}
		delete(c.dynamicImportExportsUsage, entry.SourceIndex)
	}
	c.graph.Entries = entries
}

func (c *linkerContext) dynamicImportUsage(sourceIndex uint32) DynamicImportUsage {
	for _, importerIndex := range c.graph.Modules[sourceIndex].DynamicImporters {
		for _, record := range c.graph.Modules[importerIndex].ImportRecords {
			if record.Kind == ast.ImportDynamic && record.SourceIndex.IsValid() &&
				record.SourceIndex.GetIndex() == sourceIndex && !record.Flags.Has(ast.IsRequireUnused) {
				return DynamicImportUsesNamespace
			}
		}
	}
	return DynamicImportUnused
}

func (c *linkerContext) isDynamicEntryAlive(entry graph.EntryPoint) bool {
	module := c.graph.Modules[entry.SourceIndex]
	if !module.SideEffects.HasSideEffects() && c.dynamicImportExportsUsage[entry.SourceIndex] == DynamicImportUnused {
		return false
	}
	for _, related := range entry.RelatedStmtInfos {
		if c.graph.Metas[related.SourceIndex].StmtIncluded[related.StmtIndex] {
			return true
		}
	}
	return false
}

func (c *linkerContext) includeModule(sourceIndex uint32) {
	meta := &c.graph.Metas[sourceIndex]
	if meta.IsIncluded {
		return
	}
	meta.IsIncluded = true

	// The runtime only contributes the helpers something asked for
	module := c.graph.Modules[sourceIndex]
	if sourceIndex == c.graph.RuntimeSourceIndex || module.IsExternal() {
		return
	}

	treeShake := c.options.TreeShake.Enabled && module.SideEffects.Kind != graph.SideEffectsNoTreeshake
	for stmtIndex, stmt := range module.StmtInfos.All() {
		if stmtIndex == js_ast.NamespaceStmtIndex {
			continue
		}
		if treeShake {
			// Direct "eval" can reference any top-level declaration by name
			if c.stmtHasSideEffects(module, &stmt) || (module.Meta.Has(graph.HasEval) && len(stmt.DeclaredSymbols) > 0) {
				c.includeStatement(sourceIndex, uint32(stmtIndex))
			}
		} else if !stmt.ForceTreeShaking || stmt.SideEffect != js_ast.StmtPure {
			c.includeStatement(sourceIndex, uint32(stmtIndex))
		}
	}

	// Evaluating a module evaluates what it imports
	for _, dependency := range meta.Dependencies.Slice() {
		if !c.options.TreeShake.Enabled || c.graph.Modules[dependency].SideEffects.HasSideEffects() {
			c.includeModule(dependency)
		}
	}

	if meta.CJSTreeShakingBailout {
		c.includeCommonJSExports(sourceIndex)
	}
}

func (c *linkerContext) includeStatement(sourceIndex uint32, stmtIndex uint32) {
	meta := &c.graph.Metas[sourceIndex]
	if meta.StmtIncluded[stmtIndex] {
		return
	}
	meta.StmtIncluded[stmtIndex] = true
	c.includeModule(sourceIndex)

	module := c.graph.Modules[sourceIndex]
	stmt := module.StmtInfos.Get(stmtIndex)

	for _, recordIndex := range stmt.ImportRecordIndices {
		record := &module.ImportRecords[recordIndex]
		importee := c.graph.Importee(record)
		if importee == nil {
			continue
		}

		// Any use of a CommonJS module other than importing names from it
		// may touch every export
		if importee.ExportsKind == graph.ExportsCommonJS &&
			(record.Kind != ast.ImportStmt || record.Flags.Has(ast.ContainsImportStar)) {
			c.bailoutCommonJSTreeShaking(importee.Index())
		}

		if importee.IsExternal() && record.Kind != ast.ImportDynamic {
			c.includeModule(importee.Index())
		}
	}

	for _, reference := range stmt.ReferencedSymbols {
		if reference.IsMemberExpr() {
			if resolution, ok := meta.ResolvedMemberExprRefs[reference.MemberExpr.Span]; ok {
				for _, dependedRef := range resolution.DependedRefs {
					c.includeDeclaringStmts(dependedRef)
					if owner, ok := c.namespaceOwners[ast.CanonicalRefFor(c.graph.Symbols, dependedRef)]; ok {
						c.includeModule(owner)
					}
				}

				// A missing export is rewritten to "void 0" so nothing is included
				if !resolution.IsMissing() {
					c.includeSymbol(resolution.Ref, includeReasonNormal)
				}
				continue
			}
		}

		c.includeSymbol(reference.Ref, includeReasonNormal)

		// Keep every statement along a re-export chain alive
		if data, ok := c.graph.Metas[reference.Ref.OuterIndex].ImportsToBind[reference.Ref]; ok {
			for _, reExport := range data.ReExports {
				c.includeDeclaringStmts(reExport)
			}
		}
	}
}

func (c *linkerContext) includeSymbol(ref ast.Ref, reason includeReason) {
	canonical := ast.CanonicalRefFor(c.graph.Symbols, ref)
	symbol := c.graph.Symbols.Get(canonical)

	// Constants are inlined where they are used, so their declaration is only
	// needed if an entry chunk exports it
	if c.options.Optimization.InlineConst && symbol.Flags.Has(ast.IsConstValue) && reason != includeReasonEntryExport {
		return
	}

	if c.usedSymbols[canonical] {
		return
	}
	c.usedSymbols[canonical] = true

	// A property access on a namespace needs the namespace. If the namespace
	// belongs to a CommonJS module then the export is only known by name.
	if alias := symbol.NamespaceAlias; alias != nil {
		namespaceRef := ast.CanonicalRefFor(c.graph.Symbols, alias.NamespaceRef)
		if target, ok := c.recordNamespaceTargets[namespaceRef]; ok && c.graph.Modules[target].ExportsKind == graph.ExportsCommonJS {
			if alias.Alias == "default" {
				c.bailoutCommonJSTreeShaking(target)
			} else if export, ok := c.graph.Metas[target].ResolvedExports[alias.Alias]; ok && export.CameFromCJS {
				c.includeSymbol(export.Ref, includeReasonNormal)
			}
		}
		c.includeSymbol(alias.NamespaceRef, reason)
	}

	if owner, ok := c.namespaceOwners[canonical]; ok {
		ownerMeta := &c.graph.Metas[owner]
		ownerMeta.NamespaceIncludedReason |= graph.NamespaceIncludedUnknown
		if len(ownerMeta.StarExportsFromExternalModules) > 0 {
			ownerMeta.NamespaceIncludedReason |= graph.NamespaceIncludedReExportExternalModule
		}
	}

	c.includeModule(canonical.OuterIndex)
	c.includeDeclaringStmts(canonical)
}

func (c *linkerContext) includeDeclaringStmts(ref ast.Ref) {
	module := c.graph.Modules[ref.OuterIndex]
	for _, stmtIndex := range module.StmtInfos.DeclaredStmtsBySymbol(ref) {
		c.includeStatement(ref.OuterIndex, stmtIndex)
	}
}

// Some importer uses a CommonJS module in a way that could read any export,
// so every "exports.foo = ..." statement has to stay
func (c *linkerContext) bailoutCommonJSTreeShaking(sourceIndex uint32) {
	meta := &c.graph.Metas[sourceIndex]
	if meta.CJSTreeShakingBailout {
		return
	}
	meta.CJSTreeShakingBailout = true
	if meta.IsIncluded {
		c.includeCommonJSExports(sourceIndex)
	}
}

func (c *linkerContext) includeCommonJSExports(sourceIndex uint32) {
	meta := &c.graph.Metas[sourceIndex]
	for _, alias := range meta.SortedAndNonAmbiguousResolvedExports {
		if export := meta.ResolvedExports[alias]; export.CameFromCJS {
			c.includeSymbol(export.Ref, includeReasonNormal)
		}
	}
}
