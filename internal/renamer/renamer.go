package renamer

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/js_ast"
)

// Names that must never be given to a renamed symbol in a chunk. The symbols
// passed in are the ones the chunk references without declaring them, such
// as globals.
func ComputeReservedNames(symbols ast.SymbolMap, refs []ast.Ref) map[string]uint32 {
	names := make(map[string]uint32)

	// All keywords and strict mode reserved words are reserved names
	for k := range js_ast.Keywords {
		names[k] = 1
	}

	// CommonJS wrappers declare these
	names["exports"] = 1
	names["module"] = 1
	names["require"] = 1

	// All unbound symbols must be reserved names
	for _, ref := range refs {
		symbol := symbols.Get(ref)
		if symbol.Kind == ast.SymbolUnbound || symbol.Flags.Has(ast.MustNotBeRenamed) {
			names[symbol.OriginalName] = 1
		}
	}

	return names
}

////////////////////////////////////////////////////////////////////////////////
// NumberRenamer

// Gives every top-level symbol of a chunk a unique name by appending a number
// on collision:
//
//   // a.js
//   const x = 1
//   // b.js
//   const x = 2
//
//   // chunk
//   const x = 1
//   const x$1 = 2
//
// Symbols declared inside a CommonJS wrapper go into a nested scope. They may
// reuse names from other wrappers but never shadow a top-level name.
type NumberRenamer struct {
	symbols ast.SymbolMap
	names   [][]string
	root    numberScope
}

func NewNumberRenamer(symbols ast.SymbolMap, reservedNames map[string]uint32) *NumberRenamer {
	return &NumberRenamer{
		symbols: symbols,
		names:   make([][]string, len(symbols.Outer)),
		root:    numberScope{nameCounts: reservedNames},
	}
}

func (r *NumberRenamer) NameForSymbol(ref ast.Ref) string {
	ref = ast.CanonicalRefFor(r.symbols, ref)
	if inner := r.names[ref.OuterIndex]; inner != nil {
		if name := inner[ref.InnerIndex]; name != "" {
			return name
		}
	}
	return r.symbols.Get(ref).OriginalName
}

func (r *NumberRenamer) AddTopLevelSymbol(ref ast.Ref) {
	r.assignName(&r.root, ref)
}

// Gives a name to a symbol that should keep its name if at all possible, such
// as an export of an entry chunk or an import from another chunk
func (r *NumberRenamer) ReserveName(name string) {
	if _, ok := r.root.nameCounts[name]; !ok {
		r.root.nameCounts[name] = 1
	}
}

func (r *NumberRenamer) assignName(scope *numberScope, ref ast.Ref) {
	ref = ast.CanonicalRefFor(r.symbols, ref)

	// Don't rename the same symbol more than once
	inner := r.names[ref.OuterIndex]
	if inner != nil && inner[ref.InnerIndex] != "" {
		return
	}

	// Don't rename unbound symbols or symbols marked as reserved names.
	// Exports of CommonJS modules are only ever accessed as properties.
	symbol := r.symbols.Get(ref)
	if symbol.Kind == ast.SymbolUnbound || symbol.Kind == ast.SymbolCommonJSExport || symbol.Flags.Has(ast.MustNotBeRenamed) {
		return
	}

	// Compute a new name
	name := scope.findUnusedName(symbol.OriginalName)

	// Store the new name
	if inner == nil {
		inner = make([]string, len(r.symbols.Outer[ref.OuterIndex]))
		r.names[ref.OuterIndex] = inner
	}
	inner[ref.InnerIndex] = name
}

// Names the symbols of one nested scope, in a deterministic order
func (r *NumberRenamer) AssignNestedNames(refs []ast.Ref) {
	s := &numberScope{parent: &r.root, nameCounts: make(map[string]uint32)}
	sorted := slices.Clone(refs)
	slices.SortFunc(sorted, func(a ast.Ref, b ast.Ref) int {
		if a.OuterIndex != b.OuterIndex {
			return cmp.Compare(a.OuterIndex, b.OuterIndex)
		}
		return cmp.Compare(a.InnerIndex, b.InnerIndex)
	})
	for _, ref := range sorted {
		r.assignName(s, ref)
	}
}

type numberScope struct {
	parent *numberScope

	// This is used as a set of used names in this scope. This also maps the name
	// to the number of times the name has experienced a collision. When a name
	// collides with an already-used name, we need to rename it. This is done by
	// incrementing a number at the end until the name is unused. We save the
	// count here so that subsequent collisions can start counting from where the
	// previous collision ended instead of having to start counting from 1.
	nameCounts map[string]uint32
}

type nameUse uint8

const (
	nameUnused nameUse = iota
	nameUsed
	nameUsedInSameScope
)

func (s *numberScope) findNameUse(name string) nameUse {
	original := s
	for {
		if _, ok := s.nameCounts[name]; ok {
			if s == original {
				return nameUsedInSameScope
			}
			return nameUsed
		}
		s = s.parent
		if s == nil {
			return nameUnused
		}
	}
}

func (s *numberScope) findUnusedName(name string) string {
	if use := s.findNameUse(name); use != nameUnused {
		// If the name is already in use, generate a new name by appending a number
		tries := uint32(0)
		if use == nameUsedInSameScope {
			// To avoid O(n^2) behavior, the number must start off being the number
			// that we used last time there was a collision with this name
			tries = s.nameCounts[name] - 1
		}
		prefix := name

		// Keep incrementing the number until the name is unused
		for {
			tries++
			name = prefix + "$" + strconv.Itoa(int(tries))

			// Make sure this new name is unused
			if s.findNameUse(name) == nameUnused {
				// Store the count so we can start here next time instead of starting
				// from 1. This means we avoid O(n^2) behavior.
				if use == nameUsedInSameScope {
					s.nameCounts[prefix] = tries + 1
				}
				break
			}
		}
	}

	// Each name starts off with a count of 1 so that the first collision with
	// "name" is called "name$1"
	s.nameCounts[name] = 1
	return name
}

////////////////////////////////////////////////////////////////////////////////
// ExportRenamer

// Picks the names a chunk exports symbols under for other chunks to import
type ExportRenamer struct {
	used map[string]uint32
}

// Claims a name up front, such as the export names of an entry point
func (r *ExportRenamer) Reserve(name string) {
	if r.used == nil {
		r.used = make(map[string]uint32)
	}
	if _, ok := r.used[name]; !ok {
		r.used[name] = 0
	}
}

func (r *ExportRenamer) NextRenamedName(name string) string {
	if r.used == nil {
		r.used = make(map[string]uint32)
	}
	if tries, ok := r.used[name]; ok {
		prefix := name
		for {
			tries++
			name = prefix + "$" + strconv.Itoa(int(tries))
			if _, ok := r.used[name]; !ok {
				break
			}
		}
		r.used[prefix] = tries
		r.used[name] = 0
	} else {
		r.used[name] = 0
	}
	return name
}
