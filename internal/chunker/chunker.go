package chunker

// The chunker decides which output file each included module goes into. It
// starts with one chunk per entry point and one chunk per distinct set of
// entry points that can reach a module, then runs a few optimizations over
// that assignment:
//
//   1. Move modules that match a manual group into a chunk of their own
//   2. Move shared modules into an entry chunk that is always loaded anyway
//   3. Merge dynamic entry chunks that ended up empty into the chunk that
//      took their module
//   4. Find a home for the runtime if the optimizations made it necessary
//
// Finally it orders the chunks and the modules within them and computes the
// imports and exports between chunks.

import (
	"context"
	"fmt"
	"sort"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/linker"
	"github.com/bindery-js/bindery/internal/runtime"
	"go.uber.org/zap"
)

// Computes names for manual groups whose name depends on the module. This
// may call out to user code. Returning false leaves the module out of the
// group.
type GroupNamer interface {
	Name(ctx context.Context, moduleID string) (string, bool, error)
}

type chunkerContext struct {
	ctx     context.Context
	options *config.Options
	timer   *helpers.Timer
	zap     *zap.Logger
	link    *linker.Output
	graph   *graph.LinkerGraph

	// Keyed by the index of the manual group in the options
	namers map[int]GroupNamer

	// Indexed by source index. Only valid for included modules.
	moduleBits []helpers.BitSet

	chunks                  []Chunk
	moduleToChunk           []ast.Index32
	entryModuleToEntryChunk map[uint32]uint32
	bitsToChunk             map[string]uint32
	facadeNamespaces        map[uint32][]uint32
	operations              map[uint32]PostChunkOperation

	// Set once the runtime was moved into a chunk of its own
	runtimeExtracted bool
}

func ComputeChunks(
	ctx context.Context,
	options *config.Options,
	timer *helpers.Timer,
	zlog *zap.Logger,
	link *linker.Output,
	namers map[int]GroupNamer,
) (*ChunkGraph, error) {
	timer.Begin("Compute chunks")
	defer timer.End("Compute chunks")

	if zlog == nil {
		zlog = zap.NewNop()
	}

	c := &chunkerContext{
		ctx:                     ctx,
		options:                 options,
		timer:                   timer,
		zap:                     zlog,
		link:                    link,
		graph:                   &link.Graph,
		namers:                  namers,
		moduleToChunk:           make([]ast.Index32, len(link.Graph.Modules)),
		entryModuleToEntryChunk: make(map[uint32]uint32),
		bitsToChunk:             make(map[string]uint32),
		facadeNamespaces:        make(map[uint32][]uint32),
		operations:              make(map[uint32]PostChunkOperation),
	}

	phases := []struct {
		name string
		run  func() error
	}{
		{"Compute entry bits", noError(c.computeEntryBits)},
		{"Create base chunks", noError(c.createBaseChunks)},
		{"Apply manual groups", c.applyManualGroups},
		{"Pull shared modules into entries", noError(c.pullSharedModulesIntoEntries)},
		{"Eliminate facade chunks", noError(c.eliminateFacadeChunks)},
		{"Remove empty chunks", noError(c.removeEmptyCommonChunks)},
		{"Assign runtime module", noError(c.assignRuntimeModule)},
		{"Sort chunks", noError(c.sortChunks)},
		{"Compute cross-chunk links", noError(c.computeCrossChunkLinks)},
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.timer.Begin(phase.name)
		err := phase.run()
		c.timer.End(phase.name)
		if err != nil {
			return nil, err
		}
	}

	result := &ChunkGraph{
		Chunks:                              c.chunks,
		ModuleToChunk:                       c.moduleToChunk,
		EntryModuleToEntryChunk:             c.entryModuleToEntryChunk,
		CommonChunkExportedFacadeNamespaces: c.facadeNamespaces,
		PostChunkOptimizationOperations:     c.operations,
	}
	for chunkIndex := range c.chunks {
		if !c.chunks[chunkIndex].IsRemoved {
			result.SortedChunks = append(result.SortedChunks, uint32(chunkIndex))
		}
	}
	sort.SliceStable(result.SortedChunks, func(i, j int) bool {
		return c.chunks[result.SortedChunks[i]].ExecOrder < c.chunks[result.SortedChunks[j]].ExecOrder
	})

	c.zap.Debug("computed chunks",
		zap.Int("chunks", len(result.SortedChunks)),
		zap.Int("removed", len(c.chunks)-len(result.SortedChunks)),
		zap.Bool("runtimeChunk", c.runtimeExtracted))
	return result, nil
}

func noError(fn func()) func() error {
	return func() error {
		fn()
		return nil
	}
}

// Each entry point gets the bit of its index in the entry list. A module gets
// the bit of every entry point that reaches it without going through a
// dynamic import.
func (c *chunkerContext) computeEntryBits() {
	bitCount := uint(len(c.graph.Entries))
	c.moduleBits = make([]helpers.BitSet, len(c.graph.Modules))
	for _, sourceIndex := range c.graph.SortedModules {
		if c.isChunkable(sourceIndex) {
			c.moduleBits[sourceIndex] = helpers.NewBitSet(bitCount)
		}
	}

	for bit, entry := range c.graph.Entries {
		c.markModuleReachable(entry.SourceIndex, uint(bit))
	}
}

func (c *chunkerContext) markModuleReachable(sourceIndex uint32, bit uint) {
	if !c.isChunkable(sourceIndex) {
		return
	}
	bits := c.moduleBits[sourceIndex]

	// Don't mark this module more than once
	if bits.HasBit(bit) {
		return
	}
	bits.SetBit(bit)

	meta := &c.graph.Metas[sourceIndex]
	for _, dependency := range meta.Dependencies.Slice() {
		c.markModuleReachable(dependency, bit)
	}

	// The modules declaring the exports of an entry point are needed even if
	// it has no import that leads there
	for _, symbol := range meta.ReferencedSymbolsByEntryPointChunk {
		owner := ast.CanonicalRefFor(c.graph.Symbols, symbol.Ref).OuterIndex
		c.markModuleReachable(owner, bit)
	}
}

// Externals are never put into a chunk, and neither is anything that tree
// shaking removed
func (c *chunkerContext) isChunkable(sourceIndex uint32) bool {
	return c.graph.Metas[sourceIndex].IsIncluded && !c.graph.Modules[sourceIndex].IsExternal()
}

func (c *chunkerContext) createBaseChunks() {
	bitCount := uint(len(c.graph.Entries))

	// Entry chunks come first, in entry order
	for bit, entry := range c.graph.Entries {
		if _, ok := c.entryModuleToEntryChunk[entry.SourceIndex]; ok {
			continue
		}
		bits := helpers.NewBitSet(bitCount)
		bits.SetBit(uint(bit))
		chunkIndex := c.newChunk(Chunk{
			Name:           entry.Name,
			Bits:           bits,
			EntryModule:    ast.MakeIndex32(entry.SourceIndex),
			EntryBit:       uint(bit),
			Kind:           ChunkEntryPoint,
			CreationReason: ReasonEntry,
			IsUserDefined:  entry.Kind.IsUserDefined(),
		})
		c.entryModuleToEntryChunk[entry.SourceIndex] = chunkIndex
		c.bitsToChunk[bits.String()] = chunkIndex
	}

	// Modules of entry points the user asked for stay in their own chunk even
	// when another entry point imports them. Everything else goes wherever its
	// bits lead.
	for _, sourceIndex := range c.graph.SortedModules {
		if !c.isChunkable(sourceIndex) {
			continue
		}
		if c.isPinnedEntryModule(sourceIndex) {
			c.assignModule(sourceIndex, c.entryModuleToEntryChunk[sourceIndex])
			continue
		}

		bits := c.moduleBits[sourceIndex]
		if bits.IsEmpty() {
			// The runtime ends up here when only optimizations need it
			continue
		}
		key := bits.String()
		chunkIndex, ok := c.bitsToChunk[key]
		if !ok {
			chunkIndex = c.newChunk(Chunk{
				Name:           c.graph.Modules[sourceIndex].Source.IdentifierName,
				Bits:           bits.Clone(),
				Kind:           ChunkCommon,
				CreationReason: ReasonCommon,
			})
			c.bitsToChunk[key] = chunkIndex
		}
		c.assignModule(sourceIndex, chunkIndex)
	}
}

func (c *chunkerContext) isPinnedEntryModule(sourceIndex uint32) bool {
	chunkIndex, ok := c.entryModuleToEntryChunk[sourceIndex]
	return ok && c.entryKind(chunkIndex) == graph.EntryPointUserDefined
}

// Only valid for entry point chunks
func (c *chunkerContext) entryKind(chunkIndex uint32) graph.EntryPointKind {
	return c.graph.Entries[c.chunks[chunkIndex].EntryBit].Kind
}

func (c *chunkerContext) newChunk(chunk Chunk) uint32 {
	chunkIndex := uint32(len(c.chunks))
	c.chunks = append(c.chunks, chunk)
	return chunkIndex
}

// Moves a module into a chunk, taking it out of the chunk it was in before
func (c *chunkerContext) assignModule(sourceIndex uint32, chunkIndex uint32) {
	if previous := c.moduleToChunk[sourceIndex]; previous.IsValid() {
		if previous.GetIndex() == chunkIndex {
			return
		}
		old := &c.chunks[previous.GetIndex()]
		for i, other := range old.Modules {
			if other == sourceIndex {
				old.Modules = append(old.Modules[:i], old.Modules[i+1:]...)
				break
			}
		}
	}
	chunk := &c.chunks[chunkIndex]
	chunk.Modules = append(chunk.Modules, sourceIndex)
	chunk.DependedRuntimeHelper |= c.graph.Metas[sourceIndex].DependedRuntimeHelper
	c.moduleToChunk[sourceIndex] = ast.MakeIndex32(chunkIndex)
}

func (c *chunkerContext) removeChunk(chunkIndex uint32, op PostChunkOperation, reason string) {
	chunk := &c.chunks[chunkIndex]
	chunk.IsRemoved = true
	c.operations[chunkIndex] |= OperationRemoved | op
	c.zap.Debug("removed chunk", zap.String("chunk", chunk.Name), zap.String("reason", reason))
}

// Common chunks that lost all of their modules to an optimization are gone
func (c *chunkerContext) removeEmptyCommonChunks() {
	for chunkIndex := range c.chunks {
		chunk := &c.chunks[chunkIndex]
		if !chunk.IsRemoved && chunk.Kind == ChunkCommon && len(chunk.Modules) == 0 {
			c.removeChunk(uint32(chunkIndex), 0, "empty")
		}
	}
}

// Recomputes the derived fields of a chunk after its modules changed
func (c *chunkerContext) refreshChunk(chunkIndex uint32) {
	chunk := &c.chunks[chunkIndex]
	bits := helpers.NewBitSet(uint(len(c.graph.Entries)))
	if chunk.Kind == ChunkEntryPoint {
		bits.SetBit(chunk.EntryBit)
	}
	var helper runtime.Helper
	for _, sourceIndex := range chunk.Modules {
		bits.Union(c.moduleBits[sourceIndex])
		helper |= c.graph.Metas[sourceIndex].DependedRuntimeHelper
	}
	chunk.Bits = bits

	// Injected helpers stay
	chunk.DependedRuntimeHelper |= helper
}

func (c *chunkerContext) debugf(chunkIndex uint32, format string, args ...interface{}) {
	c.chunks[chunkIndex].Debug = append(c.chunks[chunkIndex].Debug, fmt.Sprintf(format, args...))
}
