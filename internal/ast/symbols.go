package ast

// Symbols are identified by a pair of indices. The outer index is the source
// index of the module that owns the symbol, and the inner index increments as
// the scanner generates new symbols for that module. A symbol map is then an
// array of arrays indexed first by outer index, then by inner index, which
// makes it trivial to merge per-module tables into one table for the link.
type Ref struct {
	OuterIndex uint32
	InnerIndex uint32
}

var InvalidRef = Ref{^uint32(0), ^uint32(0)}

func (r Ref) IsValid() bool {
	return r != InvalidRef
}

type SymbolKind uint8

const (
	// An unbound symbol is one that isn't declared in the module it's referenced
	// in. For example, using "window" without declaring it will be unbound.
	SymbolUnbound SymbolKind = iota

	// A local symbol declared with "var", "let", "const", "function" or "class"
	SymbolOther

	// An import item such as "x" in "import {x} from 'y'"
	SymbolImport

	// Generated by the linker, such as wrapper functions and shims
	SymbolGenerated

	// A property assigned with "exports.foo = ..." at the top level of a
	// CommonJS module. This only exists so tree shaking can track which of
	// these assignments are used. It never appears as an identifier.
	SymbolCommonJSExport
)

type SymbolFlags uint8

const (
	// Certain symbols must not be renamed. For example, the "arguments" variable
	// is declared by the runtime for every function.
	MustNotBeRenamed SymbolFlags = 1 << iota

	// The scanner proved this symbol holds a compile-time constant. Uses of it
	// can be inlined, so its declaration is only needed when something other
	// than an ordinary reference asks for it.
	IsConstValue

	// The function declaration for this symbol is hoisted out of wrappers
	IsHoistedFunction
)

func (flags SymbolFlags) Has(flag SymbolFlags) bool {
	return (flags & flag) != 0
}

// Import items from namespaces that can't be resolved statically are turned
// into a property access off of the namespace:
//
//   import * as ns from 'cjs'
//   ns.foo
//
// When "foo" lives behind a CommonJS module, the symbol for the import item
// "foo" gets a namespace alias and is printed as "ns.foo" instead of "foo".
type NamespaceAlias struct {
	NamespaceRef Ref
	Alias        string
}

// Note: the order of values in this struct matters to reduce struct size.
type Symbol struct {
	// This is the name that came from the scanner. Printed names may be renamed
	// to avoid name collisions. Do not use the original name during printing.
	OriginalName string

	// When this is present, the symbol must be printed as a property access off
	// the namespace instead of as a bare identifier.
	//
	// For correctness, this must be stored on the symbol instead of indirectly
	// associated with the Ref for the symbol somehow. Re-exported symbols are
	// collapsed using "Link" and renamed symbols from other modules that end up
	// at this symbol must be able to tell if it has a namespace alias.
	NamespaceAlias *NamespaceAlias

	// Symbols that have been linked form a forest. This is an invalid ref for a
	// root. If this isn't invalid, call "CanonicalRefFor" to get the real one.
	Link Ref

	// The compile-time value of an "IsConstValue" symbol as source text
	ConstValue string

	// This is for generating cross-chunk imports and exports for code splitting.
	// It's stored as one's complement so the zero value is invalid.
	ChunkIndex uint32

	Kind  SymbolKind
	Flags SymbolFlags
}

func (s *Symbol) HasChunk() bool {
	return s.ChunkIndex != 0
}

func (s *Symbol) Chunk() uint32 {
	return ^s.ChunkIndex
}

func (s *Symbol) SetChunk(chunkIndex uint32) {
	s.ChunkIndex = ^chunkIndex
}

type SymbolMap struct {
	// This could be represented as a "map[Ref]Symbol" but a two-level array is
	// more efficient since it doesn't involve a hash. See the comment on "Ref".
	Outer [][]Symbol
}

func NewSymbolMap(sourceCount int) SymbolMap {
	return SymbolMap{make([][]Symbol, sourceCount)}
}

func (sm SymbolMap) Get(ref Ref) *Symbol {
	return &sm.Outer[ref.OuterIndex][ref.InnerIndex]
}

func (sm SymbolMap) NameFor(ref Ref) string {
	return sm.Get(ref).OriginalName
}

// Creates a new symbol owned by the module with the provided source index.
// This mutates the inner array and must only be called from serial phases.
func (sm SymbolMap) NewSymbol(sourceIndex uint32, kind SymbolKind, name string) Ref {
	inner := sm.Outer[sourceIndex]
	ref := Ref{OuterIndex: sourceIndex, InnerIndex: uint32(len(inner))}
	sm.Outer[sourceIndex] = append(inner, Symbol{
		OriginalName: name,
		Link:         InvalidRef,
		Kind:         kind,
	})
	return ref
}

// Returns the canonical ref that represents the ref for the provided symbol.
// This never writes to the map so it's safe to call from many goroutines at
// once as long as nothing is being linked at the same time.
func CanonicalRefFor(symbols SymbolMap, ref Ref) Ref {
	for {
		link := symbols.Get(ref).Link
		if link == InvalidRef {
			return ref
		}
		ref = link
	}
}

// Like "CanonicalRefFor" but shortens every link on the path to point directly
// at the root. This mutates the map so only call it from serial phases.
func FollowSymbols(symbols SymbolMap, ref Ref) Ref {
	symbol := symbols.Get(ref)
	if symbol.Link == InvalidRef {
		return ref
	}

	link := FollowSymbols(symbols, symbol.Link)

	// Only write if needed to avoid concurrent map update hazards
	if symbol.Link != link {
		symbol.Link = link
	}

	return link
}

// Use this before calling "CanonicalRefFor" from separate goroutines. Once
// every path is compressed, canonicalization is a single hop.
func FollowAllSymbols(symbols SymbolMap) {
	for sourceIndex, inner := range symbols.Outer {
		for symbolIndex := range inner {
			FollowSymbols(symbols, Ref{uint32(sourceIndex), uint32(symbolIndex)})
		}
	}
}

// Makes the class of "base" point at the class of "target". Links always flow
// from the importing side to the exporting side, so the root of every class is
// the symbol that is actually declared somewhere. That's also why there is no
// union by rank here: the root must stay the declaring symbol.
func LinkSymbols(symbols SymbolMap, base Ref, target Ref) {
	baseRoot := FollowSymbols(symbols, base)
	targetRoot := FollowSymbols(symbols, target)
	if baseRoot == targetRoot {
		return
	}

	baseSymbol := symbols.Get(baseRoot)
	targetSymbol := symbols.Get(targetRoot)
	baseSymbol.Link = targetRoot
	if baseSymbol.Flags.Has(MustNotBeRenamed) {
		targetSymbol.Flags |= MustNotBeRenamed
	}
}

// Returns the name the symbol had in its declaring module
func CanonicalNameFor(symbols SymbolMap, ref Ref) string {
	return symbols.Get(CanonicalRefFor(symbols, ref)).OriginalName
}
