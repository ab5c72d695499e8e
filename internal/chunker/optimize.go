package chunker

import (
	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/js_ast"
	"github.com/bindery-js/bindery/internal/runtime"
	"go.uber.org/zap"
)

// A common chunk doesn't need to exist if one of the entry points that load
// it is always loaded whenever the others are:
//
//   // main.js
//   import './shared'
//   import('./lazy')
//
//   // lazy.js
//   import './shared'
//
// Here "lazy.js" can only run after "main.js" was loaded, so "shared.js" can
// live in the chunk for "main.js".
func (c *chunkerContext) pullSharedModulesIntoEntries() {
	for chunkIndex := range c.chunks {
		chunk := &c.chunks[chunkIndex]
		if chunk.IsRemoved || chunk.CreationReason != ReasonCommon || len(chunk.Modules) == 0 {
			continue
		}

		target, ok := c.findEntryToMergeInto(uint32(chunkIndex))
		if !ok {
			continue
		}

		for _, sourceIndex := range append([]uint32{}, chunk.Modules...) {
			c.assignModule(sourceIndex, target)
		}
		c.refreshChunk(target)
		c.debugf(target, "merged common chunk %q", chunk.Name)
		c.removeChunk(uint32(chunkIndex), OperationMergedIntoEntry, "merged into "+c.chunks[target].Name)
	}
}

func (c *chunkerContext) findEntryToMergeInto(chunkIndex uint32) (uint32, bool) {
	chunk := &c.chunks[chunkIndex]
	bits := chunk.Bits.Ones()

	for _, bit := range bits {
		entry := c.graph.Entries[bit]
		targetIndex, ok := c.entryModuleToEntryChunk[entry.SourceIndex]
		if !ok {
			continue
		}
		target := &c.chunks[targetIndex]
		if target.IsRemoved || target.EntryBit != bit || c.moduleToChunk[entry.SourceIndex] != ast.MakeIndex32(targetIndex) {
			continue
		}
		if !c.isAlwaysLoadedBefore(targetIndex, bits) {
			continue
		}
		if target.IsUserDefined && c.options.PreserveEntrySignatures == config.PreserveEntrySignaturesStrict &&
			!c.exportsAreCoveredBy(chunk.Modules, entry.SourceIndex) {
			continue
		}
		if c.wouldCreateCycle(targetIndex, chunkIndex) {
			c.zap.Debug("merge would create a cycle",
				zap.String("chunk", chunk.Name), zap.String("target", target.Name))
			continue
		}
		return targetIndex, true
	}

	return 0, false
}

// Every one of the other entry points either imports the target's entry
// module statically or can only be loaded from code in the target chunk
func (c *chunkerContext) isAlwaysLoadedBefore(targetIndex uint32, bits []uint) bool {
	target := &c.chunks[targetIndex]
	targetBits := c.moduleBits[target.EntryModule.GetIndex()]

	for _, bit := range bits {
		if bit == target.EntryBit || targetBits.HasBit(bit) {
			continue
		}
		entry := c.graph.Entries[bit]
		if entry.Kind != graph.EntryPointDynamicImport {
			return false
		}
		for _, importer := range c.graph.Modules[entry.SourceIndex].DynamicImporters {
			if !c.graph.Metas[importer].IsIncluded {
				continue
			}
			if c.moduleToChunk[importer] != ast.MakeIndex32(targetIndex) {
				return false
			}
		}
	}
	return true
}

// An entry point with a strict signature can't start exporting things it
// didn't export before. That happens if a merged module has a used export
// that other chunks would then have to import from the entry chunk.
func (c *chunkerContext) exportsAreCoveredBy(modules []uint32, entryIndex uint32) bool {
	covered := make(map[ast.Ref]bool)
	entryMeta := &c.graph.Metas[entryIndex]
	for _, alias := range entryMeta.SortedAndNonAmbiguousResolvedExports {
		covered[ast.CanonicalRefFor(c.graph.Symbols, entryMeta.ResolvedExports[alias].Ref)] = true
	}

	for _, sourceIndex := range modules {
		meta := &c.graph.Metas[sourceIndex]
		for _, alias := range meta.SortedAndNonAmbiguousResolvedExports {
			ref := ast.CanonicalRefFor(c.graph.Symbols, meta.ResolvedExports[alias].Ref)
			if c.link.UsedSymbolRefs[ref] && !covered[ref] {
				return false
			}
		}
	}
	return true
}

// The chunks a chunk imports from, given the current module assignment
func (c *chunkerContext) chunkDependencies(chunkIndex uint32) []uint32 {
	var deps graph.ModuleSet
	for _, sourceIndex := range c.chunks[chunkIndex].Modules {
		for _, dependency := range c.graph.Metas[sourceIndex].Dependencies.Slice() {
			if other := c.moduleToChunk[dependency]; other.IsValid() && other.GetIndex() != chunkIndex {
				deps.Add(other.GetIndex())
			}
		}
	}
	return deps.Slice()
}

// Merging "b" into "a" creates a cycle if some other chunk is both imported
// by the merged chunk and imports it
func (c *chunkerContext) wouldCreateCycle(a uint32, b uint32) bool {
	visited := map[uint32]bool{a: true, b: true}
	var stack []uint32
	for _, start := range []uint32{a, b} {
		for _, dep := range c.chunkDependencies(start) {
			if !visited[dep] {
				visited[dep] = true
				stack = append(stack, dep)
			}
		}
	}

	for len(stack) > 0 {
		chunkIndex := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range c.chunkDependencies(chunkIndex) {
			if dep == a || dep == b {
				return true
			}
			if !visited[dep] {
				visited[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	return false
}

func (c *chunkerContext) chunkReaches(from uint32, to uint32) bool {
	visited := map[uint32]bool{from: true}
	stack := []uint32{from}
	for len(stack) > 0 {
		chunkIndex := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range c.chunkDependencies(chunkIndex) {
			if dep == to {
				return true
			}
			if !visited[dep] {
				visited[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	return false
}

// A dynamic entry whose module ended up in another chunk would otherwise be
// a chunk that just re-exports things:
//
//   // lazy.js (facade)
//   export {lazy_exports as default} from './main.js'
//
// Instead "import()" loads the chunk with the module directly and reads the
// namespace object from its exports.
func (c *chunkerContext) eliminateFacadeChunks() {
	takenNames := make(map[uint32]map[string]bool)

	for chunkIndex := range c.chunks {
		chunk := &c.chunks[chunkIndex]
		if chunk.IsRemoved || chunk.Kind != ChunkEntryPoint || len(chunk.Modules) > 0 {
			continue
		}
		kind := c.entryKind(uint32(chunkIndex))
		if kind == graph.EntryPointUserDefined {
			continue
		}

		sourceIndex := chunk.EntryModule.GetIndex()
		location := c.moduleToChunk[sourceIndex]
		if !location.IsValid() {
			continue
		}
		targetIndex := location.GetIndex()
		target := &c.chunks[targetIndex]
		if target.Kind == ChunkEntryPoint && !target.IsUserDefined {
			continue
		}

		// Emitted entries export their names directly from the target, so the
		// names must not clash with what the target exports already
		if kind == graph.EntryPointEmittedUserDefined && target.IsUserDefined &&
			c.options.PreserveEntrySignatures == config.PreserveEntrySignaturesAllowExtension {
			taken := takenNames[targetIndex]
			if taken == nil {
				taken = make(map[string]bool)
				for _, alias := range c.graph.CanonicalExports(target.EntryModule.GetIndex(), false) {
					taken[alias] = true
				}
				takenNames[targetIndex] = taken
			}
			aliases := c.graph.CanonicalExports(sourceIndex, false)
			collides := false
			for _, alias := range aliases {
				if taken[alias] {
					collides = true
					break
				}
			}
			if collides {
				c.zap.Debug("kept facade chunk with colliding exports", zap.String("chunk", chunk.Name))
				continue
			}
			for _, alias := range aliases {
				taken[alias] = true
			}
		}

		if c.wouldCreateRuntimeCycle(targetIndex) {
			c.zap.Debug("kept facade chunk to avoid a runtime cycle", zap.String("chunk", chunk.Name))
			continue
		}

		c.entryModuleToEntryChunk[sourceIndex] = targetIndex
		module := c.graph.Modules[sourceIndex]
		meta := &c.graph.Metas[sourceIndex]
		if meta.Wrap == graph.WrapCJS {
			target.ExtraExportedSymbols = append(target.ExtraExportedSymbols, meta.WrapperRef)
		} else {
			target.ExtraExportedSymbols = append(target.ExtraExportedSymbols, module.NamespaceRef)
			target.DependedRuntimeHelper |= runtime.HelperExport
			meta.NamespaceIncludedReason |= graph.NamespaceIncludedSimulateFacadeChunk
			meta.StmtIncluded[js_ast.NamespaceStmtIndex] = true
			c.link.UsedSymbolRefs[ast.CanonicalRefFor(c.graph.Symbols, module.NamespaceRef)] = true
			c.includeRuntimeHelper(runtime.HelperExport)
		}
		c.facadeNamespaces[targetIndex] = append(c.facadeNamespaces[targetIndex], sourceIndex)
		c.debugf(targetIndex, "took over for facade chunk %q", chunk.Name)
		c.removeChunk(uint32(chunkIndex), OperationFacadeEliminated, "facade of "+module.StableID())
	}
}

// The target will need "__export" from the runtime. That's a problem if the
// chunk with the runtime imports the target.
func (c *chunkerContext) wouldCreateRuntimeCycle(targetIndex uint32) bool {
	location := c.moduleToChunk[c.graph.RuntimeSourceIndex]
	if !location.IsValid() || location.GetIndex() == targetIndex {
		return false
	}
	return c.chunkReaches(location.GetIndex(), targetIndex)
}

// Tree shaking is over by the time an optimization discovers it needs a
// helper, so this includes the helper's statement and the ones it uses
func (c *chunkerContext) includeRuntimeHelper(helper runtime.Helper) {
	runtimeIndex := c.graph.RuntimeSourceIndex
	module := c.graph.Modules[runtimeIndex]
	meta := &c.graph.Metas[runtimeIndex]
	meta.IsIncluded = true

	export, ok := module.NamedExports[helper.Name()]
	if !ok {
		panic("Internal error: missing runtime helper " + helper.Name())
	}

	stack := []ast.Ref{export.Ref}
	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c.link.UsedSymbolRefs[ast.CanonicalRefFor(c.graph.Symbols, ref)] = true
		for _, stmtIndex := range module.StmtInfos.DeclaredStmtsBySymbol(ref) {
			if meta.StmtIncluded[stmtIndex] {
				continue
			}
			meta.StmtIncluded[stmtIndex] = true
			for _, reference := range module.StmtInfos.Get(stmtIndex).ReferencedSymbols {
				stack = append(stack, reference.Ref)
			}
		}
	}
}

// The runtime normally lands in a chunk like any other module. It may still
// be homeless if only an optimization asked for a helper.
func (c *chunkerContext) assignRuntimeModule() {
	runtimeIndex := c.graph.RuntimeSourceIndex
	if c.moduleToChunk[runtimeIndex].IsValid() {
		return
	}

	var needing []uint32
	bits := helpers.NewBitSet(uint(len(c.graph.Entries)))
	for chunkIndex := range c.chunks {
		chunk := &c.chunks[chunkIndex]
		if !chunk.IsRemoved && !chunk.DependedRuntimeHelper.IsEmpty() {
			needing = append(needing, uint32(chunkIndex))
			bits.Union(chunk.Bits)
		}
	}
	if len(needing) == 0 {
		return
	}
	c.graph.Metas[runtimeIndex].IsIncluded = true
	c.moduleBits[runtimeIndex] = bits

	if len(needing) == 1 {
		c.assignModule(runtimeIndex, needing[0])
		return
	}

	// Reuse a chunk that is loaded by exactly the entry points that need it
	for chunkIndex := range c.chunks {
		chunk := &c.chunks[chunkIndex]
		if !chunk.IsRemoved && chunk.Kind == ChunkCommon && chunk.Bits.Equals(bits) {
			c.assignModule(runtimeIndex, uint32(chunkIndex))
			return
		}
	}

	chunkIndex := c.newChunk(Chunk{
		Name:           runtime.ChunkName,
		Bits:           bits.Clone(),
		Kind:           ChunkCommon,
		CreationReason: ReasonRuntime,
	})
	c.assignModule(runtimeIndex, chunkIndex)
	c.runtimeExtracted = true
}
