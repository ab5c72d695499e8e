package chunker

import (
	"sort"

	"github.com/bindery-js/bindery/internal/graph"
)

// Chunks are ordered so that the entry points the user asked for come first
// and chunks that are only loaded with "import()" come last. Chunks of the
// same class go by the execution order of the code in them.
func (c *chunkerContext) sortChunks() {
	var live []uint32
	firstExecOrder := make(map[uint32]uint32)

	for chunkIndex := range c.chunks {
		chunk := &c.chunks[chunkIndex]
		if chunk.IsRemoved {
			continue
		}
		c.refreshChunk(uint32(chunkIndex))
		c.sortChunkModules(chunk)
		live = append(live, uint32(chunkIndex))

		order := graph.ExecOrderUnreached
		if chunk.Kind == ChunkEntryPoint {
			order = c.graph.Modules[chunk.EntryModule.GetIndex()].ExecOrder
		}
		for _, sourceIndex := range chunk.Modules {
			if execOrder := c.graph.Modules[sourceIndex].ExecOrder; execOrder < order && chunk.Kind != ChunkEntryPoint {
				order = execOrder
			}
		}
		firstExecOrder[uint32(chunkIndex)] = order
	}

	class := func(chunkIndex uint32) int {
		chunk := &c.chunks[chunkIndex]
		switch {
		case chunk.Kind == ChunkEntryPoint && chunk.IsUserDefined:
			return 0
		case chunk.Kind == ChunkCommon:
			return 1
		default:
			return 2
		}
	}

	sort.SliceStable(live, func(i, j int) bool {
		a, b := live[i], live[j]
		if classA, classB := class(a), class(b); classA != classB {
			return classA < classB
		}

		// User entry points keep their declaration order
		if class(a) == 0 {
			return c.chunks[a].EntryBit < c.chunks[b].EntryBit
		}
		return firstExecOrder[a] < firstExecOrder[b]
	})

	for order, chunkIndex := range live {
		c.chunks[chunkIndex].ExecOrder = uint32(order)
	}
}

// The runtime goes first since every other module may call into it. Leaf
// modules without side effects can go anywhere, so they're sorted by path
// which keeps the output stable when unrelated code moves around. Everything
// else must stay in execution order.
func (c *chunkerContext) sortChunkModules(chunk *Chunk) {
	rank := func(sourceIndex uint32) int {
		if sourceIndex == c.graph.RuntimeSourceIndex {
			return 0
		}
		module := c.graph.Modules[sourceIndex]
		if len(module.ImportRecords) == 0 && !module.SideEffects.HasSideEffects() &&
			!module.Meta.Has(graph.ExecutionOrderSensitive) {
			return 1
		}
		return 2
	}

	sort.SliceStable(chunk.Modules, func(i, j int) bool {
		a, b := chunk.Modules[i], chunk.Modules[j]
		rankA, rankB := rank(a), rank(b)
		if rankA != rankB {
			return rankA < rankB
		}
		if rankA == 1 {
			return c.graph.Modules[a].StableID() < c.graph.Modules[b].StableID()
		}
		return c.graph.Modules[a].ExecOrder < c.graph.Modules[b].ExecOrder
	})
}
