package finalizer

import (
	"strconv"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/js_ast"
	"github.com/bindery-js/bindery/internal/renamer"
)

// Globals that rewritten code refers to
var generatedCodeGlobals = []string{"Promise", "Object", "__filename", "__dirname"}

// Every chunk is its own top-level scope. Symbols are named in a fixed order
// so the output doesn't depend on scheduling: imports from other chunks
// first, then the runtime, then each module in chunk order.
func (c *chunkContext) renameSymbolsInChunk(prepared []*preparedModule) {
	symbols := c.graph.Symbols

	// Names that are used without being declared must stay untouched
	var unboundRefs []ast.Ref
	for _, p := range prepared {
		for stmtIndex, stmt := range p.module.StmtInfos.All() {
			if !p.meta.StmtIncluded[stmtIndex] {
				continue
			}
			for _, reference := range stmt.ReferencedSymbols {
				unboundRefs = append(unboundRefs, reference.Ref)
			}
			unboundRefs = append(unboundRefs, stmt.DeclaredSymbols...)
		}
	}
	reserved := renamer.ComputeReservedNames(symbols, unboundRefs)
	for _, p := range prepared {
		for name := range p.unbound {
			reserved[name] = 1
		}
	}
	for _, name := range generatedCodeGlobals {
		reserved[name] = 1
	}

	// Formats without "import" hold each imported chunk in a variable
	if !c.keepESM {
		c.chunkBindings = make(map[uint32]string)
		for _, other := range c.chunk.CrossChunkImports {
			base := "require_" + js_ast.ForceValidIdentifier(c.chunks.Chunks[other].Name)
			name := base
			for n := 1; reserved[name] != 0; n++ {
				name = base + "$" + strconv.Itoa(n)
			}
			reserved[name] = 1
			c.chunkBindings[other] = name
		}
	}

	r := renamer.NewNumberRenamer(symbols, reserved)
	c.r = r

	if c.keepESM {
		for _, imported := range c.chunk.ImportsFromOtherChunks {
			for _, ref := range imported.Refs {
				r.AddTopLevelSymbol(ref)
			}
		}
		for _, external := range c.chunk.ExternalImports {
			if external.NamespaceRef != ast.InvalidRef {
				r.AddTopLevelSymbol(external.NamespaceRef)
			}
			for _, name := range external.Names {
				r.AddTopLevelSymbol(name.Ref)
			}
		}
	}

	// Symbols inside CommonJS wrappers are nested and may reuse names
	var nested [][]ast.Ref
	for _, p := range prepared {
		for stmtIndex, stmt := range p.module.StmtInfos.All() {
			if !p.meta.StmtIncluded[stmtIndex] {
				continue
			}
			isWrapper := p.meta.WrapperStmtIndex.IsValid() && p.meta.WrapperStmtIndex.GetIndex() == uint32(stmtIndex)
			if p.wrap == graph.WrapCJS && !isWrapper {
				continue
			}
			for _, ref := range stmt.DeclaredSymbols {
				r.AddTopLevelSymbol(ref)
			}
		}
		if p.wrap == graph.WrapCJS {
			var refs []ast.Ref
			for stmtIndex, stmt := range p.module.StmtInfos.All() {
				isWrapper := p.meta.WrapperStmtIndex.IsValid() && p.meta.WrapperStmtIndex.GetIndex() == uint32(stmtIndex)
				if p.meta.StmtIncluded[stmtIndex] && !isWrapper {
					refs = append(refs, stmt.DeclaredSymbols...)
				}
			}
			nested = append(nested, refs)
		}
	}
	for _, refs := range nested {
		r.AssignNestedNames(refs)
	}
}
