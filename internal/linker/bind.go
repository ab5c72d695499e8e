package linker

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/js_ast"
	"github.com/bindery-js/bindery/internal/logger"
)

func (c *linkerContext) bindImportsAndExports() {
	// Step 1: Resolve "export * from" statements. This must be done before we
	// generate any namespace export code, and it must happen for every module
	// before any imports are matched since imports look at the exports of other
	// modules.
	c.forEachModuleInParallel(func(sourceIndex uint32) {
		module := c.graph.Modules[sourceIndex]
		if module.IsExternal() {
			return
		}
		resolvedExports := c.graph.Metas[sourceIndex].ResolvedExports
		isCJS := module.ExportsKind == graph.ExportsCommonJS

		// Expand the local exports first
		for alias, export := range module.NamedExports {
			resolvedExports[alias] = graph.ResolvedExport{
				Ref:         export.Ref,
				SourceIndex: sourceIndex,
				NameLoc:     export.AliasLoc,
				CameFromCJS: isCJS,
			}
		}

		// Then add in the re-exports
		if !isCJS && module.HasStarExport() {
			c.addExportsForExportStar(resolvedExports, sourceIndex, nil)
		}
	})

	// Step 2: Figure out which modules have exports that can't be known until
	// run-time. Importers of those fall back to a property access.
	visited := make(map[uint32]bool)
	for _, sourceIndex := range c.graph.SortedModules {
		if !c.isExternal(sourceIndex) {
			c.graph.Metas[sourceIndex].HasDynamicExports = c.hasDynamicExports(sourceIndex, visited)
		}
	}

	// Step 3: Match imports with exports. This must happen serially since it
	// creates facade and shim symbols.
	for _, sourceIndex := range c.graph.SortedModules {
		if !c.isExternal(sourceIndex) {
			c.matchImportsWithExportsForModule(sourceIndex)
		}
	}

	// Step 4: Bind imports to exports now that every match is known. Binding
	// is deferred so a failed match doesn't leave other imports half-bound.
	for _, sourceIndex := range c.graph.SortedModules {
		importsToBind := c.graph.Metas[sourceIndex].ImportsToBind
		refs := make([]ast.Ref, 0, len(importsToBind))
		for ref := range importsToBind {
			refs = append(refs, ref)
		}
		sort.Slice(refs, func(i, j int) bool { return refs[i].InnerIndex < refs[j].InnerIndex })
		for _, ref := range refs {
			ast.LinkSymbols(c.graph.Symbols, ref, importsToBind[ref].Ref)
		}
	}

	c.buildNamespaceTables()

	// Step 5: Decide which exports are unambiguous. This must happen after
	// binding since two export stars may lead to the same symbol through
	// different paths.
	for _, sourceIndex := range c.graph.SortedModules {
		if !c.isExternal(sourceIndex) {
			c.sortResolvedExports(sourceIndex)
		}
	}

	// Step 6: CommonJS interop
	safe := make(map[uint32]int8)
	for _, sourceIndex := range c.graph.SortedModules {
		if c.graph.Modules[sourceIndex].ExportsKind == graph.ExportsCommonJS {
			c.graph.Metas[sourceIndex].SafeCJSToEliminateInteropDefault = c.isSafeCJSToEliminateInteropDefault(sourceIndex, safe)
		}
	}

	// Step 7: Look through namespace objects in property accesses
	c.resolveMemberExprRefs()
}

// A module has dynamic exports if it's CommonJS or if it has an export star
// from something whose exports can only be known at run-time:
//
//   // entry.js
//   export * from './cjs'
//   export * from 'external'
//
func (c *linkerContext) hasDynamicExports(sourceIndex uint32, visited map[uint32]bool) bool {
	module := c.graph.Modules[sourceIndex]
	if module.ExportsKind == graph.ExportsCommonJS {
		return true
	}

	// Avoid infinite loops due to cycles in the export star graph
	if visited[sourceIndex] {
		return c.graph.Metas[sourceIndex].HasDynamicExports
	}
	visited[sourceIndex] = true

	for _, record := range module.ImportRecords {
		if !record.Flags.Has(ast.IsExportStar) || !record.SourceIndex.IsValid() {
			continue
		}
		otherSourceIndex := record.SourceIndex.GetIndex()
		if otherSourceIndex == sourceIndex {
			continue
		}

		// An entry point that keeps ESM syntax re-exports externals with an
		// "export * from" statement of its own
		if c.isExternal(otherSourceIndex) {
			if !c.graph.IsEntry(sourceIndex) || !c.options.Format.KeepESMImportExportSyntax() {
				c.graph.Metas[sourceIndex].HasDynamicExports = true
				return true
			}
			continue
		}

		if c.hasDynamicExports(otherSourceIndex, visited) {
			c.graph.Metas[sourceIndex].HasDynamicExports = true
			return true
		}
	}
	return false
}

func (c *linkerContext) addExportsForExportStar(
	resolvedExports map[string]graph.ResolvedExport,
	sourceIndex uint32,
	sourceIndexStack []uint32,
) {
	// Avoid infinite loops due to cycles in the export star graph
	for _, prevSourceIndex := range sourceIndexStack {
		if prevSourceIndex == sourceIndex {
			return
		}
	}
	sourceIndexStack = append(sourceIndexStack, sourceIndex)
	module := c.graph.Modules[sourceIndex]

	for _, record := range module.ImportRecords {
		if !record.Flags.Has(ast.IsExportStar) || !record.SourceIndex.IsValid() {
			continue
		}
		otherSourceIndex := record.SourceIndex.GetIndex()
		other := c.graph.Modules[otherSourceIndex]

		// Export stars from a CommonJS module don't work because they can't be
		// statically discovered. Just silently ignore them in this case. The
		// same goes for externals. All exports will be resolved at run time
		// instead.
		if other.IsExternal() || other.ExportsKind == graph.ExportsCommonJS {
			continue
		}

		// Accumulate this module's exports
	nextExport:
		for alias, export := range other.NamedExports {
			// ES6 export star statements ignore exports named "default"
			if alias == "default" {
				continue
			}

			// This export star is shadowed if any module in the stack has a
			// matching real named export
			for _, prevSourceIndex := range sourceIndexStack {
				if _, ok := c.graph.Modules[prevSourceIndex].NamedExports[alias]; ok {
					continue nextExport
				}
			}

			if existing, ok := resolvedExports[alias]; !ok {
				resolvedExports[alias] = graph.ResolvedExport{
					Ref:         export.Ref,
					SourceIndex: otherSourceIndex,
					NameLoc:     export.AliasLoc,
				}
			} else if existing.SourceIndex != otherSourceIndex {
				// Two different re-exports colliding makes it potentially ambiguous
				existing.PotentiallyAmbiguousExportStarRefs =
					append(existing.PotentiallyAmbiguousExportStarRefs, graph.ImportData{
						SourceIndex: otherSourceIndex,
						Ref:         export.Ref,
						NameLoc:     export.AliasLoc,
					})
				resolvedExports[alias] = existing
			}
		}

		// Search further through this module's export stars
		c.addExportsForExportStar(resolvedExports, otherSourceIndex, sourceIndexStack)
	}
}

type importTracker struct {
	sourceIndex uint32
	nameLoc     logger.Range // Optional, goes with sourceIndex, ignore if empty
	importRef   ast.Ref
}

type importStatus uint8

const (
	// The imported module has no matching export
	importNoMatch importStatus = iota

	// The imported module has a matching export
	importFound

	// The imported module is CommonJS and has unknown exports
	importCommonJS

	// The import is missing but there is a dynamic fallback object
	importDynamicFallback

	// The imported module is external and has unknown exports
	importExternal

	// The import record was never resolved. That was already reported.
	importDisabled
)

func (c *linkerContext) advanceImportTracker(tracker importTracker) (importTracker, importStatus, []graph.ImportData) {
	module := c.graph.Modules[tracker.sourceIndex]
	namedImport := module.NamedImports[tracker.importRef]
	record := &module.ImportRecords[namedImport.ImportRecordIndex]
	if !record.SourceIndex.IsValid() {
		return importTracker{importRef: ast.InvalidRef}, importDisabled, nil
	}
	otherSourceIndex := record.SourceIndex.GetIndex()
	other := c.graph.Modules[otherSourceIndex]

	// Is this an external module?
	if other.IsExternal() {
		return importTracker{sourceIndex: otherSourceIndex, importRef: other.NamespaceRef}, importExternal, nil
	}

	// Is this a CommonJS module?
	if other.ExportsKind == graph.ExportsCommonJS {
		return importTracker{sourceIndex: otherSourceIndex, importRef: ast.InvalidRef}, importCommonJS, nil
	}

	// An import star of an ESM module is its namespace object
	if namedImport.AliasIsStar {
		return importTracker{sourceIndex: otherSourceIndex, importRef: other.NamespaceRef}, importFound, nil
	}

	// Match this import up with an export from the imported module
	if matchingExport, ok := c.graph.Metas[otherSourceIndex].ResolvedExports[namedImport.Alias]; ok {
		return importTracker{
			sourceIndex: matchingExport.SourceIndex,
			importRef:   matchingExport.Ref,
			nameLoc:     matchingExport.NameLoc,
		}, importFound, matchingExport.PotentiallyAmbiguousExportStarRefs
	}

	// Is this a module with dynamic exports?
	if c.graph.Metas[otherSourceIndex].HasDynamicExports {
		return importTracker{sourceIndex: otherSourceIndex, importRef: other.NamespaceRef}, importDynamicFallback, nil
	}

	return importTracker{sourceIndex: otherSourceIndex}, importNoMatch, nil
}

type matchImportKind uint8

const (
	// The import is either a CommonJS star import or it failed
	matchImportIgnore matchImportKind = iota

	// "sourceIndex" and "ref" are in use
	matchImportNormal

	// "namespaceRef" and "alias" are in use
	matchImportNamespace

	// Both "matchImportNormal" and "matchImportNamespace"
	matchImportNormalAndNamespace

	// The import could not be evaluated due to a cycle
	matchImportCycle

	// The import resolved to multiple symbols via "export * from"
	matchImportAmbiguous
)

type matchImportResult struct {
	alias            string
	kind             matchImportKind
	namespaceRef     ast.Ref
	sourceIndex      uint32
	nameLoc          logger.Range // Optional, goes with sourceIndex, ignore if empty
	otherSourceIndex uint32
	otherNameLoc     logger.Range // Optional, goes with otherSourceIndex, ignore if empty
	ref              ast.Ref
}

func (c *linkerContext) matchImportsWithExportsForModule(sourceIndex uint32) {
	module := c.graph.Modules[sourceIndex]
	meta := &c.graph.Metas[sourceIndex]

	// Sort imports for determinism. Otherwise our unit tests will randomly
	// fail sometimes when error messages are reordered.
	sortedImportRefs := make([]int, 0, len(module.NamedImports))
	for ref := range module.NamedImports {
		sortedImportRefs = append(sortedImportRefs, int(ref.InnerIndex))
	}
	sort.Ints(sortedImportRefs)

	// Pair imports with their matching exports
	for _, innerIndex := range sortedImportRefs {
		// Re-use memory for the cycle detector
		c.cycleDetector = c.cycleDetector[:0]

		importRef := ast.Ref{OuterIndex: sourceIndex, InnerIndex: uint32(innerIndex)}
		namedImport := module.NamedImports[importRef]
		result, reExports := c.matchImportWithExport(importTracker{sourceIndex: sourceIndex, importRef: importRef}, nil)

		switch result.kind {
		case matchImportIgnore:

		case matchImportNormal:
			meta.ImportsToBind[importRef] = graph.ImportData{
				ReExports:   reExports,
				NameLoc:     result.nameLoc,
				SourceIndex: result.sourceIndex,
				Ref:         result.ref,
			}

		case matchImportNamespace:
			c.graph.Symbols.Get(importRef).NamespaceAlias = &ast.NamespaceAlias{
				NamespaceRef: result.namespaceRef,
				Alias:        result.alias,
			}

		case matchImportNormalAndNamespace:
			meta.ImportsToBind[importRef] = graph.ImportData{
				ReExports:   reExports,
				NameLoc:     result.nameLoc,
				SourceIndex: result.sourceIndex,
				Ref:         result.ref,
			}
			c.graph.Symbols.Get(importRef).NamespaceAlias = &ast.NamespaceAlias{
				NamespaceRef: result.namespaceRef,
				Alias:        result.alias,
			}

		case matchImportCycle:
			// The import stays unbound. Nothing is reported since a cycle is
			// valid code that just can't be resolved statically.
			c.zap.Debug("import cycle",
				zap.String("module", module.StableID()),
				zap.String("import", namedImport.ImportedName()))

		case matchImportAmbiguous:
			var notes []logger.MsgData

			// Provide the locations of both ambiguous exports if possible
			if result.nameLoc.Len != 0 && result.otherNameLoc.Len != 0 {
				a := c.graph.Modules[result.sourceIndex]
				b := c.graph.Modules[result.otherSourceIndex]
				notes = []logger.MsgData{
					logger.RangeData(&a.Source, result.nameLoc, "One matching export is here:"),
					logger.RangeData(&b.Source, result.otherNameLoc, "Another matching export is here:"),
				}
			}

			c.log.AddErrorWithNotes(&module.Source, namedImport.AliasLoc,
				fmt.Sprintf("Ambiguous import %q has multiple matching exports", namedImport.Alias), notes)
		}
	}
}

func (c *linkerContext) matchImportWithExport(
	tracker importTracker, reExportsIn []ast.Ref,
) (result matchImportResult, reExports []ast.Ref) {
	var ambiguousResults []matchImportResult
	reExports = reExportsIn

loop:
	for {
		// Make sure we avoid infinite loops trying to resolve cycles:
		//
		//   // foo.js
		//   export {a as b} from './foo.js'
		//   export {b as c} from './foo.js'
		//   export {c as a} from './foo.js'
		//
		// This uses a O(n^2) array scan instead of a O(n) map because the vast
		// majority of cases have one or two elements and Go arrays are cheap to
		// reuse without allocating.
		for _, previousTracker := range c.cycleDetector {
			if tracker == previousTracker {
				result = matchImportResult{kind: matchImportCycle}
				break loop
			}
		}
		c.cycleDetector = append(c.cycleDetector, tracker)

		// Resolve the import by one step
		nextTracker, status, potentiallyAmbiguousExportStarRefs := c.advanceImportTracker(tracker)
		trackerModule := c.graph.Modules[tracker.sourceIndex]
		namedImport := trackerModule.NamedImports[tracker.importRef]

		switch status {
		case importDisabled:
			result = matchImportResult{kind: matchImportIgnore}

		case importExternal:
			if c.options.Format.KeepESMImportExportSyntax() {
				// Imports from external modules stay imports when the output keeps
				// ESM syntax. Every import of the same name from the same external
				// module shares one symbol so the chunk imports it once.
				result = matchImportResult{
					kind:        matchImportNormal,
					sourceIndex: nextTracker.sourceIndex,
					ref:         c.externalImportFacade(nextTracker.sourceIndex, namedImport),
				}
				break
			}

			// Otherwise the external is "require()"d like a CommonJS module
			fallthrough

		case importCommonJS:
			// Rewrite the import to a property access. Don't do this for star
			// imports though since the import is the namespace itself.
			if namedImport.AliasIsStar {
				break
			}
			namespaceRef := trackerModule.ImportRecords[namedImport.ImportRecordIndex].NamespaceRef
			if result.kind == matchImportNormal {
				result.kind = matchImportNormalAndNamespace
				result.namespaceRef = namespaceRef
				result.alias = namedImport.Alias
			} else {
				result = matchImportResult{
					kind:         matchImportNamespace,
					namespaceRef: namespaceRef,
					alias:        namedImport.Alias,
				}
			}

		case importDynamicFallback:
			// If it's a module with dynamic export fallback, rewrite the import to
			// a property access on its namespace object
			if result.kind == matchImportNormal {
				result.kind = matchImportNormalAndNamespace
				result.namespaceRef = nextTracker.importRef
				result.alias = namedImport.Alias
			} else {
				result = matchImportResult{
					kind:         matchImportNamespace,
					namespaceRef: nextTracker.importRef,
					alias:        namedImport.Alias,
				}
			}

		case importNoMatch:
			nextModule := c.graph.Modules[nextTracker.sourceIndex]

			if c.options.ShimMissingExports {
				// Replace the missing export with "undefined" instead of failing
				shimRef := c.shimMissingExport(nextTracker.sourceIndex, namedImport.Alias)
				c.log.AddID(logger.MsgID_Link_ShimmedMissingExport, logger.Debug, &trackerModule.Source, namedImport.AliasLoc,
					fmt.Sprintf("Import %q was replaced with \"undefined\" because there is no matching export in %q",
						namedImport.Alias, nextModule.StableID()))
				result = matchImportResult{
					kind:        matchImportNormal,
					sourceIndex: nextTracker.sourceIndex,
					ref:         shimRef,
				}
				break
			}

			msg := logger.Msg{
				Kind: logger.Error,
				Data: logger.RangeData(&trackerModule.Source, namedImport.AliasLoc, fmt.Sprintf(
					"No matching export in %q for import %q", nextModule.StableID(), namedImport.Alias)),
			}
			c.maybeCorrectObviousTypo(nextTracker.sourceIndex, namedImport.Alias, &msg)
			c.log.AddMsg(msg)
			result = matchImportResult{kind: matchImportIgnore}

		case importFound:
			// If there are multiple ambiguous results due to use of "export * from"
			// statements, trace them all to see if they point to different things.
			for _, ambiguousTracker := range potentiallyAmbiguousExportStarRefs {
				// If this is a re-export of another import, follow the import
				if _, ok := c.graph.Modules[ambiguousTracker.SourceIndex].NamedImports[ambiguousTracker.Ref]; ok {
					// Save and restore the cycle detector to avoid mixing information
					oldCycleDetector := c.cycleDetector
					ambiguousResult, newReExports := c.matchImportWithExport(importTracker{
						sourceIndex: ambiguousTracker.SourceIndex,
						importRef:   ambiguousTracker.Ref,
					}, reExports)
					c.cycleDetector = oldCycleDetector
					ambiguousResults = append(ambiguousResults, ambiguousResult)
					reExports = newReExports
				} else {
					ambiguousResults = append(ambiguousResults, matchImportResult{
						kind:        matchImportNormal,
						sourceIndex: ambiguousTracker.SourceIndex,
						ref:         ambiguousTracker.Ref,
						nameLoc:     ambiguousTracker.NameLoc,
					})
				}
			}

			// Defer the actual binding of this import until every module has been
			// matched. This has to be done for all import-to-export matches, not
			// just the initial import to the final export, since all imports and
			// re-exports must be merged together for correctness.
			result = matchImportResult{
				kind:        matchImportNormal,
				sourceIndex: nextTracker.sourceIndex,
				ref:         nextTracker.importRef,
				nameLoc:     nextTracker.nameLoc,
			}

			// Depend on the statement(s) that declared this import symbol in the
			// original module
			reExports = append(reExports, tracker.importRef)

			// If this is a re-export of another import, continue for another
			// iteration of the loop to resolve that import as well
			if _, ok := c.graph.Modules[nextTracker.sourceIndex].NamedImports[nextTracker.importRef]; ok {
				tracker = nextTracker
				continue
			}

		default:
			panic("Internal error")
		}

		// Stop now if we didn't explicitly "continue" above
		break
	}

	// If there is a potential ambiguity, all results must be the same
	for _, ambiguousResult := range ambiguousResults {
		if ambiguousResult != result {
			if result.kind == matchImportNormal && ambiguousResult.kind == matchImportNormal &&
				result.nameLoc.Len != 0 && ambiguousResult.nameLoc.Len != 0 {
				return matchImportResult{
					kind:             matchImportAmbiguous,
					sourceIndex:      result.sourceIndex,
					nameLoc:          result.nameLoc,
					otherSourceIndex: ambiguousResult.sourceIndex,
					otherNameLoc:     ambiguousResult.nameLoc,
				}, nil
			}
			return matchImportResult{kind: matchImportAmbiguous}, nil
		}
	}

	return
}

// Returns the symbol shared by every import of "alias" from an external
// module. The symbol belongs to the external module.
func (c *linkerContext) externalImportFacade(sourceIndex uint32, namedImport js_ast.NamedImport) ast.Ref {
	external := c.graph.Modules[sourceIndex]
	if namedImport.AliasIsStar {
		return external.NamespaceRef
	}

	facades := c.externalImportFacades[sourceIndex]
	if facades == nil {
		facades = make(map[string]ast.Ref)
		c.externalImportFacades[sourceIndex] = facades
	}
	if ref, ok := facades[namedImport.Alias]; ok {
		return ref
	}

	name := js_ast.ForceValidIdentifier(namedImport.Alias)
	if namedImport.Alias == "default" {
		name = external.Source.IdentifierName + "_default"
	}
	ref := c.graph.Symbols.NewSymbol(sourceIndex, ast.SymbolImport, name)
	facades[namedImport.Alias] = ref
	return ref
}

// Returns the symbol that stands in for a missing export. The declaration is
// added to the module once every import has been matched.
func (c *linkerContext) shimMissingExport(sourceIndex uint32, alias string) ast.Ref {
	meta := &c.graph.Metas[sourceIndex]
	if ref, ok := meta.ShimmedMissingExports[alias]; ok {
		return ref
	}
	if meta.ShimmedMissingExports == nil {
		meta.ShimmedMissingExports = make(map[string]ast.Ref)
	}
	ref := c.graph.Symbols.NewSymbol(sourceIndex, ast.SymbolGenerated, js_ast.ForceValidIdentifier(alias)+"$$")
	meta.ShimmedMissingExports[alias] = ref
	return ref
}

// Attempt to correct an import name with a typo
func (c *linkerContext) maybeCorrectObviousTypo(sourceIndex uint32, name string, msg *logger.Msg) {
	typos, ok := c.exportTypos[sourceIndex]
	if !ok {
		valid := helpers.SortedKeys(c.graph.Metas[sourceIndex].ResolvedExports)
		detector := helpers.MakeTypoDetector(valid)
		typos = &detector
		c.exportTypos[sourceIndex] = typos
	}

	if corrected, ok := typos.MaybeCorrectTypo(name); ok {
		msg.Data.Location.Suggestion = corrected
		export := c.graph.Metas[sourceIndex].ResolvedExports[corrected]
		text := fmt.Sprintf("Did you mean to import %q instead?", corrected)
		var note logger.MsgData
		if export.NameLoc.Len == 0 {
			// Don't report a source location for definitions without one. This can
			// happen with automatically-generated exports such as those of JSON.
			note.Text = text
		} else {
			note = logger.RangeData(&c.graph.Modules[export.SourceIndex].Source, export.NameLoc, text)
		}
		msg.Notes = append(msg.Notes, note)
	}
}

// Fills in the tables that map namespace symbols back to their modules. The
// keys are canonical refs so lookups must canonicalize first.
func (c *linkerContext) buildNamespaceTables() {
	c.namespaceOwners = make(map[ast.Ref]uint32, len(c.graph.Modules))
	c.recordNamespaceTargets = make(map[ast.Ref]uint32)
	for _, module := range c.graph.Modules {
		c.namespaceOwners[ast.FollowSymbols(c.graph.Symbols, module.NamespaceRef)] = module.Index()
	}
	for _, module := range c.graph.Modules {
		for _, record := range module.ImportRecords {
			if !record.SourceIndex.IsValid() || record.NamespaceRef == ast.InvalidRef {
				continue
			}
			ref := ast.FollowSymbols(c.graph.Symbols, record.NamespaceRef)
			if _, ok := c.namespaceOwners[ref]; !ok {
				c.recordNamespaceTargets[ref] = record.SourceIndex.GetIndex()
			}
		}
	}
}

// What a symbol ultimately stands for. Two exports are the same if these are
// equal, which handles property accesses on the namespaces of CommonJS and
// external modules imported by different modules.
type exportTarget struct {
	alias string
	ref   ast.Ref
}

func (c *linkerContext) exportTargetFor(ref ast.Ref) exportTarget {
	canonical := ast.FollowSymbols(c.graph.Symbols, ref)
	if alias := c.graph.Symbols.Get(canonical).NamespaceAlias; alias != nil {
		namespaceRef := ast.FollowSymbols(c.graph.Symbols, alias.NamespaceRef)
		if target, ok := c.recordNamespaceTargets[namespaceRef]; ok {
			namespaceRef = c.graph.Modules[target].NamespaceRef
		}
		return exportTarget{ref: namespaceRef, alias: alias.Alias}
	}
	return exportTarget{ref: canonical}
}

func (c *linkerContext) sortResolvedExports(sourceIndex uint32) {
	meta := &c.graph.Metas[sourceIndex]
	aliases := make([]string, 0, len(meta.ResolvedExports))

nextAlias:
	for alias, export := range meta.ResolvedExports {
		// Re-exports with multiple matching targets are only ambiguous if they
		// actually end up at different symbols
		if len(export.PotentiallyAmbiguousExportStarRefs) > 0 {
			target := c.exportTargetFor(export.Ref)
			for _, other := range export.PotentiallyAmbiguousExportStarRefs {
				if c.exportTargetFor(other.Ref) != target {
					continue nextAlias
				}
			}
		}
		aliases = append(aliases, alias)
	}

	sort.Strings(aliases)
	meta.SortedAndNonAmbiguousResolvedExports = aliases
}

// A CommonJS module can skip the "default" interop helper when its exports
// object can never have a "default" property or an "__esModule" marker that
// the linker doesn't know about:
//
//   // safe.js
//   exports.foo = 1
//
//   // also-safe.js
//   module.exports = require('./safe')
//
// Modules that are still being visited count as unsafe, which is what ends
// recursion through cycles.
func (c *linkerContext) isSafeCJSToEliminateInteropDefault(sourceIndex uint32, memo map[uint32]int8) bool {
	const (
		seen int8 = iota + 1
		isSafe
		isUnsafe
	)
	switch memo[sourceIndex] {
	case seen, isUnsafe:
		return false
	case isSafe:
		return true
	}
	memo[sourceIndex] = seen

	module := c.graph.Modules[sourceIndex]
	safe := false
	if module.ExportsKind == graph.ExportsCommonJS {
		if len(module.CommonJSReExports) > 0 {
			safe = true
			for _, recordIndex := range module.CommonJSReExports {
				record := &module.ImportRecords[recordIndex]
				if !record.SourceIndex.IsValid() || c.isExternal(record.SourceIndex.GetIndex()) ||
					!c.isSafeCJSToEliminateInteropDefault(record.SourceIndex.GetIndex(), memo) {
					safe = false
					break
				}
			}
		} else {
			safe = module.Meta.Has(graph.StaticCommonJSExports)
		}
	}

	if safe {
		memo[sourceIndex] = isSafe
	} else {
		memo[sourceIndex] = isUnsafe
	}
	return safe
}
