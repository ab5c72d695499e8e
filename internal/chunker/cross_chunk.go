package chunker

import (
	"fmt"
	"sort"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/renamer"
	"github.com/bindery-js/bindery/internal/runtime"
)

// An insertion-ordered set of refs
type refSet struct {
	order []ast.Ref
	has   map[ast.Ref]bool
}

func (s *refSet) add(ref ast.Ref) {
	if s.has == nil {
		s.has = make(map[ast.Ref]bool)
	}
	if !s.has[ref] {
		s.has[ref] = true
		s.order = append(s.order, ref)
	}
}

type chunkMeta struct {
	dependedSymbols refSet
	imports         map[uint32]*refSet
	exports         refSet
	crossChunk      graph.ModuleSet
	dynamicImports  graph.ModuleSet
	externalOrder   []uint32
	externals       map[uint32]*ExternalImport
}

// Symbols declared in one chunk and used in another become an export of the
// first chunk and an import of the second:
//
//   // chunk for "a.js"
//   import {x} from './shared.js'
//
//   // chunk for "shared.js"
//   const x = 1
//   export {x}
//
// Each chunk also remembers the chunks it has to load first for their side
// effects, the chunks it loads with "import()", and what it needs from
// external modules.
func (c *chunkerContext) computeCrossChunkLinks() {
	c.assignSymbolsToChunks()

	live := c.liveChunksInOrder()
	metas := make(map[uint32]*chunkMeta, len(live))
	for _, chunkIndex := range live {
		meta := &chunkMeta{
			imports:   make(map[uint32]*refSet),
			externals: make(map[uint32]*ExternalImport),
		}
		metas[chunkIndex] = meta
		c.collectDependedSymbols(chunkIndex, meta)
		c.collectImportRecords(chunkIndex, meta)
	}

	externalAliases := c.externalAliases()
	for _, chunkIndex := range live {
		meta := metas[chunkIndex]
		for _, ref := range meta.dependedSymbols.order {
			owner := c.graph.Modules[ref.OuterIndex]
			if owner.IsExternal() {
				c.addExternalImport(meta, ref, externalAliases)
				continue
			}
			if !c.link.UsedSymbolRefs[ref] {
				continue
			}
			symbol := c.graph.Symbols.Get(ref)
			if !symbol.HasChunk() {
				// Inlined constants and globals
				continue
			}
			if other := symbol.Chunk(); other != chunkIndex {
				imported := meta.imports[other]
				if imported == nil {
					imported = &refSet{}
					meta.imports[other] = imported
				}
				imported.add(ref)
				metas[other].exports.add(ref)
			}
		}
	}

	for _, chunkIndex := range live {
		c.assignExportNames(chunkIndex, metas[chunkIndex])
	}
	for _, chunkIndex := range live {
		c.finishChunkLinks(chunkIndex, metas[chunkIndex])
	}
}

func (c *chunkerContext) liveChunksInOrder() []uint32 {
	var live []uint32
	for chunkIndex := range c.chunks {
		if !c.chunks[chunkIndex].IsRemoved {
			live = append(live, uint32(chunkIndex))
		}
	}
	sort.Slice(live, func(i, j int) bool { return c.chunks[live[i]].ExecOrder < c.chunks[live[j]].ExecOrder })
	return live
}

func (c *chunkerContext) assignSymbolsToChunks() {
	for chunkIndex := range c.chunks {
		chunk := &c.chunks[chunkIndex]
		if chunk.IsRemoved {
			continue
		}
		for _, sourceIndex := range chunk.Modules {
			module := c.graph.Modules[sourceIndex]
			meta := &c.graph.Metas[sourceIndex]
			for stmtIndex, stmt := range module.StmtInfos.All() {
				if !meta.StmtIncluded[stmtIndex] {
					continue
				}
				for _, ref := range stmt.DeclaredSymbols {
					symbol := c.graph.Symbols.Get(ref)
					if symbol.HasChunk() && symbol.Chunk() != uint32(chunkIndex) {
						panic(fmt.Sprintf("Internal error: symbol %q is declared in two chunks", symbol.OriginalName))
					}
					symbol.SetChunk(uint32(chunkIndex))
				}
			}
		}
	}
}

func (c *chunkerContext) collectDependedSymbols(chunkIndex uint32, meta *chunkMeta) {
	chunk := &c.chunks[chunkIndex]
	add := func(ref ast.Ref) {
		canonical := ast.CanonicalRefFor(c.graph.Symbols, ref)
		if alias := c.graph.Symbols.Get(canonical).NamespaceAlias; alias != nil {
			canonical = ast.CanonicalRefFor(c.graph.Symbols, alias.NamespaceRef)
		}
		meta.dependedSymbols.add(canonical)
	}

	for _, sourceIndex := range chunk.Modules {
		module := c.graph.Modules[sourceIndex]
		moduleMeta := &c.graph.Metas[sourceIndex]
		for stmtIndex, stmt := range module.StmtInfos.All() {
			if !moduleMeta.StmtIncluded[stmtIndex] {
				continue
			}
			for _, reference := range stmt.ReferencedSymbols {
				if reference.IsMemberExpr() {
					if resolution, ok := moduleMeta.ResolvedMemberExprRefs[reference.MemberExpr.Span]; ok {
						if !resolution.IsMissing() {
							add(resolution.Ref)
						}
						continue
					}
				}
				add(reference.Ref)
			}
		}
	}

	if chunk.Kind == ChunkEntryPoint {
		entryIndex := chunk.EntryModule.GetIndex()
		entryMeta := &c.graph.Metas[entryIndex]
		if entryMeta.Wrap != graph.WrapNone {
			add(entryMeta.WrapperRef)
		}
		if entryMeta.Wrap != graph.WrapCJS {
			for _, symbol := range entryMeta.ReferencedSymbolsByEntryPointChunk {
				if !symbol.CameFromCJS {
					add(symbol.Ref)
				}
			}
		}

		// "module.exports = __toCommonJS(entry_exports)"
		if !c.options.Format.KeepESMImportExportSyntax() && c.graph.Modules[entryIndex].ExportsKind == graph.ExportsESM {
			add(c.runtimeRef(runtime.HelperToCommonJS))
			add(c.graph.Modules[entryIndex].NamespaceRef)
		}
	}

	for _, helper := range chunk.DependedRuntimeHelper.Each() {
		add(c.runtimeRef(helper))
	}
	for _, ref := range chunk.ExtraExportedSymbols {
		add(ref)
	}
}

func (c *chunkerContext) runtimeRef(helper runtime.Helper) ast.Ref {
	export, ok := c.graph.Modules[c.graph.RuntimeSourceIndex].NamedExports[helper.Name()]
	if !ok {
		panic("Internal error: missing runtime helper " + helper.Name())
	}
	return ast.CanonicalRefFor(c.graph.Symbols, export.Ref)
}

// Static imports of modules in other chunks mean those chunks must be loaded
// first, even when no symbol crosses over
func (c *chunkerContext) collectImportRecords(chunkIndex uint32, meta *chunkMeta) {
	chunk := &c.chunks[chunkIndex]
	keepESM := c.options.Format.KeepESMImportExportSyntax()

	for _, sourceIndex := range chunk.Modules {
		module := c.graph.Modules[sourceIndex]
		moduleMeta := &c.graph.Metas[sourceIndex]

		for _, dependency := range moduleMeta.Dependencies.Slice() {
			if other := c.moduleToChunk[dependency]; other.IsValid() && other.GetIndex() != chunkIndex {
				meta.crossChunk.Add(other.GetIndex())
			}
		}

		for stmtIndex, stmt := range module.StmtInfos.All() {
			if !moduleMeta.StmtIncluded[stmtIndex] {
				continue
			}
			for _, recordIndex := range stmt.ImportRecordIndices {
				record := &module.ImportRecords[recordIndex]
				importee := c.graph.Importee(record)
				if importee == nil {
					continue
				}

				switch {
				case record.Kind == ast.ImportDynamic:
					if record.Flags.Has(ast.DeadDynamicImport) || importee.IsExternal() || c.options.InlineDynamicImports {
						continue
					}
					if target, ok := c.entryModuleToEntryChunk[importee.Index()]; ok && !c.chunks[target].IsRemoved {
						meta.dynamicImports.Add(target)
					}

				case record.Kind == ast.ImportStmt && importee.IsExternal() && keepESM:
					c.externalImportFor(meta, importee.Index())
				}
			}
		}
	}

	// An entry point loads every chunk that has code for it
	if chunk.Kind == ChunkEntryPoint {
		for otherIndex := range c.chunks {
			other := &c.chunks[otherIndex]
			if uint32(otherIndex) != chunkIndex && !other.IsRemoved && other.Kind == ChunkCommon &&
				other.Bits.HasBit(chunk.EntryBit) && c.hasSideEffects(other) {
				meta.crossChunk.Add(uint32(otherIndex))
			}
		}
	}
}

func (c *chunkerContext) hasSideEffects(chunk *Chunk) bool {
	for _, sourceIndex := range chunk.Modules {
		if c.graph.Modules[sourceIndex].SideEffects.HasSideEffects() {
			return true
		}
	}
	return false
}

func (c *chunkerContext) externalImportFor(meta *chunkMeta, sourceIndex uint32) *ExternalImport {
	external := meta.externals[sourceIndex]
	if external == nil {
		external = &ExternalImport{SourceIndex: sourceIndex, NamespaceRef: ast.InvalidRef}
		meta.externals[sourceIndex] = external
		meta.externalOrder = append(meta.externalOrder, sourceIndex)
	}
	return external
}

// Maps each facade symbol for a named import of an external module back to
// the import name
func (c *chunkerContext) externalAliases() map[ast.Ref]string {
	aliases := make(map[ast.Ref]string)
	for _, facades := range c.link.ExternalImportFacades {
		for alias, ref := range facades {
			aliases[ref] = alias
		}
	}
	return aliases
}

func (c *chunkerContext) addExternalImport(meta *chunkMeta, ref ast.Ref, aliases map[ast.Ref]string) {
	if !c.options.Format.KeepESMImportExportSyntax() {
		// These formats "require()" externals where they are imported
		return
	}
	external := c.externalImportFor(meta, ref.OuterIndex)
	if ref == c.graph.Modules[ref.OuterIndex].NamespaceRef {
		external.NamespaceRef = ref
		return
	}
	alias, ok := aliases[ref]
	if !ok {
		return
	}
	for _, name := range external.Names {
		if name.Ref == ref {
			return
		}
	}
	external.Names = append(external.Names, ExternalName{Alias: alias, Ref: ref})
}

// Exports of entry chunks keep their names. Everything else a chunk exports
// for other chunks is named after the symbol, made unique within the chunk.
func (c *chunkerContext) assignExportNames(chunkIndex uint32, meta *chunkMeta) {
	chunk := &c.chunks[chunkIndex]
	chunk.ExportsToOtherChunks = make(map[ast.Ref]string)
	r := renamer.ExportRenamer{}

	if chunk.Kind == ChunkEntryPoint && !c.isNonExporting(chunk) {
		entryIndex := chunk.EntryModule.GetIndex()
		entryMeta := &c.graph.Metas[entryIndex]
		for _, alias := range c.graph.CanonicalExports(entryIndex, false) {
			ref := ast.CanonicalRefFor(c.graph.Symbols, entryMeta.ResolvedExports[alias].Ref)
			r.Reserve(alias)
			if _, ok := chunk.ExportsToOtherChunks[ref]; !ok {
				chunk.ExportsToOtherChunks[ref] = alias
			}
		}
	}

	sorted := append([]ast.Ref{}, meta.exports.order...)
	for _, ref := range chunk.ExtraExportedSymbols {
		sorted = append(sorted, ast.CanonicalRefFor(c.graph.Symbols, ref))
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		orderA, orderB := c.graph.Modules[a.OuterIndex].ExecOrder, c.graph.Modules[b.OuterIndex].ExecOrder
		if orderA != orderB {
			return orderA < orderB
		}
		return a.InnerIndex < b.InnerIndex
	})

	for _, ref := range sorted {
		if _, ok := chunk.ExportsToOtherChunks[ref]; ok {
			continue
		}
		chunk.ExportsToOtherChunks[ref] = r.NextRenamedName(c.graph.Symbols.Get(ref).OriginalName)
	}

	chunk.SortedExports = make([]ChunkExport, 0, len(chunk.ExportsToOtherChunks))
	for ref, alias := range chunk.ExportsToOtherChunks {
		chunk.SortedExports = append(chunk.SortedExports, ChunkExport{Ref: ref, Alias: alias})
	}
	sort.Slice(chunk.SortedExports, func(i, j int) bool {
		return chunk.SortedExports[i].Alias < chunk.SortedExports[j].Alias
	})
}

// Entry points with a "false" signature don't export anything of their own
func (c *chunkerContext) isNonExporting(chunk *Chunk) bool {
	meta := &c.graph.Metas[chunk.EntryModule.GetIndex()]
	return len(meta.ReferencedSymbolsByEntryPointChunk) == 0 || meta.Wrap == graph.WrapCJS
}

func (c *chunkerContext) finishChunkLinks(chunkIndex uint32, meta *chunkMeta) {
	chunk := &c.chunks[chunkIndex]
	byExecOrder := func(chunks []uint32) []uint32 {
		sorted := append([]uint32{}, chunks...)
		sort.Slice(sorted, func(i, j int) bool { return c.chunks[sorted[i]].ExecOrder < c.chunks[sorted[j]].ExecOrder })
		return sorted
	}

	chunk.ImportsFromOtherChunks = nil
	for other, imported := range meta.imports {
		meta.crossChunk.Add(other)
		refs := append([]ast.Ref{}, imported.order...)
		exportNames := c.chunks[other].ExportsToOtherChunks
		sort.Slice(refs, func(i, j int) bool { return exportNames[refs[i]] < exportNames[refs[j]] })
		chunk.ImportsFromOtherChunks = append(chunk.ImportsFromOtherChunks, ChunkImport{ChunkIndex: other, Refs: refs})
	}
	sort.Slice(chunk.ImportsFromOtherChunks, func(i, j int) bool {
		return c.chunks[chunk.ImportsFromOtherChunks[i].ChunkIndex].ExecOrder <
			c.chunks[chunk.ImportsFromOtherChunks[j].ChunkIndex].ExecOrder
	})

	chunk.CrossChunkImports = byExecOrder(meta.crossChunk.Slice())
	chunk.CrossChunkDynamicImports = byExecOrder(meta.dynamicImports.Slice())

	chunk.ExternalImports = nil
	for _, sourceIndex := range meta.externalOrder {
		external := *meta.externals[sourceIndex]
		sort.Slice(external.Names, func(i, j int) bool { return external.Names[i].Alias < external.Names[j].Alias })
		chunk.ExternalImports = append(chunk.ExternalImports, external)
	}
}
