package chunker

import (
	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/runtime"
)

type ChunkKind uint8

const (
	ChunkCommon ChunkKind = iota
	ChunkEntryPoint
)

func (kind ChunkKind) String() string {
	switch kind {
	case ChunkCommon:
		return "common"
	case ChunkEntryPoint:
		return "entry-point"
	default:
		panic("Internal error")
	}
}

// How a chunk came to exist. This only goes into debug output.
type CreationReason uint8

const (
	ReasonEntry CreationReason = iota
	ReasonCommon
	ReasonManualGroup
	ReasonRuntime
)

func (reason CreationReason) String() string {
	switch reason {
	case ReasonEntry:
		return "entry"
	case ReasonCommon:
		return "common"
	case ReasonManualGroup:
		return "manual-group"
	case ReasonRuntime:
		return "runtime"
	default:
		panic("Internal error")
	}
}

type Chunk struct {
	Name string

	// Which entry points load this chunk. A chunk is loaded when any of the
	// entry points with a bit in here is.
	Bits helpers.BitSet

	// In the order they are rendered in
	Modules []uint32

	// Only valid for entry point chunks
	EntryModule ast.Index32
	EntryBit    uint

	Kind           ChunkKind
	CreationReason CreationReason
	IsUserDefined  bool

	// Set when the chunk was merged into another chunk after it was created.
	// Removed chunks stay in the table so chunk indices are stable.
	IsRemoved bool

	// Position among the chunks when ordered for output. See "sortChunks".
	ExecOrder uint32

	// Entries whose facade chunk was merged into this one. The namespace
	// object (or the CommonJS wrapper) of each of them is exported from here
	// on their behalf.
	ExtraExportedSymbols []ast.Ref

	DependedRuntimeHelper runtime.Helper

	// Notes about the optimizations applied to this chunk, for debug output
	Debug []string

	// These are filled in by the cross-chunk link computation
	ImportsFromOtherChunks   []ChunkImport
	ExportsToOtherChunks     map[ast.Ref]string
	SortedExports            []ChunkExport
	CrossChunkImports        []uint32
	CrossChunkDynamicImports []uint32
	ExternalImports          []ExternalImport
}

// The symbols a chunk imports from one other chunk, sorted by the name the
// other chunk exports them under
type ChunkImport struct {
	ChunkIndex uint32
	Refs       []ast.Ref
}

type ChunkExport struct {
	Ref   ast.Ref
	Alias string
}

// What a chunk imports from one external module. Imports without any names
// are kept for their side effects:
//
//   import 'polyfill'
//   import {readFile} from 'fs'
//   import * as path from 'path'
//
type ExternalImport struct {
	SourceIndex uint32

	// Sorted by import name
	Names []ExternalName

	// Set when the namespace object of the external module is used
	NamespaceRef ast.Ref
}

type ExternalName struct {
	Alias string
	Ref   ast.Ref
}

func (c *Chunk) IsEntryPoint() bool {
	return c.Kind == ChunkEntryPoint
}

func (c *Chunk) HasModule(sourceIndex uint32) bool {
	for _, other := range c.Modules {
		if other == sourceIndex {
			return true
		}
	}
	return false
}

type ChunkGraph struct {
	// Indexed by chunk index. Removed chunks are kept so indices stay valid.
	Chunks []Chunk

	// Live chunks in output order
	SortedChunks []uint32

	// Indexed by source index
	ModuleToChunk []ast.Index32

	// Entry modules whose facade chunk was merged away point to the chunk that
	// took over for them
	EntryModuleToEntryChunk map[uint32]uint32

	// Keyed by chunk index. The dynamic entries whose namespace object a
	// common or entry chunk exports on behalf of an eliminated facade.
	CommonChunkExportedFacadeNamespaces map[uint32][]uint32

	// Keyed by chunk index. Why a chunk was removed after it was created.
	PostChunkOptimizationOperations map[uint32]PostChunkOperation
}

type PostChunkOperation uint8

const (
	OperationRemoved PostChunkOperation = 1 << iota
	OperationFacadeEliminated
	OperationMergedIntoEntry
)

func (op PostChunkOperation) Has(flag PostChunkOperation) bool {
	return (op & flag) != 0
}

func (g *ChunkGraph) ChunkForModule(sourceIndex uint32) (uint32, bool) {
	if int(sourceIndex) >= len(g.ModuleToChunk) || !g.ModuleToChunk[sourceIndex].IsValid() {
		return 0, false
	}
	return g.ModuleToChunk[sourceIndex].GetIndex(), true
}

// Returns the chunk that stands for an entry module, following facade
// elimination
func (g *ChunkGraph) ChunkForEntry(sourceIndex uint32) (uint32, bool) {
	chunkIndex, ok := g.EntryModuleToEntryChunk[sourceIndex]
	return chunkIndex, ok
}

func (g *ChunkGraph) LiveChunks() []*Chunk {
	chunks := make([]*Chunk, 0, len(g.SortedChunks))
	for _, chunkIndex := range g.SortedChunks {
		chunks = append(chunks, &g.Chunks[chunkIndex])
	}
	return chunks
}
