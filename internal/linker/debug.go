package linker

import (
	"fmt"
	"strings"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/js_ast"
)

// Returns a JSON fragment describing every statement of a module and what
// tree shaking decided about it. This goes into the verbose metafile, which
// is meant for debugging the linker and not for general consumption:
//
//   ,"stmts":[{"label":"namespace","included":false,...},...]
//
func (o *Output) StmtsJSON(sourceIndex uint32) string {
	module := o.Graph.Modules[sourceIndex]
	meta := &o.Graph.Metas[sourceIndex]
	sb := strings.Builder{}

	quoteSym := func(ref ast.Ref) string {
		name := fmt.Sprintf("%d:%d [%s]", ref.OuterIndex, ref.InnerIndex, o.Graph.Symbols.Get(ref).OriginalName)
		return helpers.QuoteForJSON(name)
	}

	sb.WriteString(`,"stmts":[`)
	for stmtIndex, stmt := range module.StmtInfos.All() {
		if stmtIndex > 0 {
			sb.WriteByte(',')
		}
		var isFirst bool

		included := len(meta.StmtIncluded) > stmtIndex && meta.StmtIncluded[stmtIndex]
		sb.WriteString(fmt.Sprintf(`{"label":%s,"included":%v`, helpers.QuoteForJSON(stmt.DebugLabel), included))
		sb.WriteString(fmt.Sprintf(`,"sideEffects":%v`, stmt.SideEffect != js_ast.StmtPure))

		if stmtIndex == js_ast.NamespaceStmtIndex {
			sb.WriteString(`,"namespace":true`)
		} else if ast.MakeIndex32(uint32(stmtIndex)) == meta.WrapperStmtIndex {
			sb.WriteString(`,"wrapper":true`)
		}

		// importRecords
		sb.WriteString(`,"importRecords":[`)
		isFirst = true
		for _, recordIndex := range stmt.ImportRecordIndices {
			record := module.ImportRecords[recordIndex]
			if !record.SourceIndex.IsValid() {
				continue
			}
			if isFirst {
				isFirst = false
			} else {
				sb.WriteByte(',')
			}
			path := o.Graph.Modules[record.SourceIndex.GetIndex()].StableID()
			sb.WriteString(fmt.Sprintf(`{"source":%s,"kind":%s}`,
				helpers.QuoteForJSON(path), helpers.QuoteForJSON(record.Kind.StringForMetafile())))
		}
		sb.WriteByte(']')

		// declaredSymbols
		sb.WriteString(`,"declaredSymbols":[`)
		for i, ref := range stmt.DeclaredSymbols {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(fmt.Sprintf(`{"name":%s}`, quoteSym(ref)))
		}
		sb.WriteByte(']')

		// referencedSymbols
		sb.WriteString(`,"referencedSymbols":[`)
		for i, reference := range stmt.ReferencedSymbols {
			if i > 0 {
				sb.WriteByte(',')
			}
			if reference.IsMemberExpr() {
				sb.WriteString(fmt.Sprintf(`{"name":%s,"props":%s}`, quoteSym(reference.Ref),
					helpers.QuoteForJSON(strings.Join(reference.MemberExpr.Props, "."))))
			} else {
				sb.WriteString(fmt.Sprintf(`{"name":%s}`, quoteSym(reference.Ref)))
			}
		}
		sb.WriteByte(']')

		// code
		sb.WriteString(`,"code":`)
		sb.WriteString(helpers.QuoteForJSON(stmt.Text))

		sb.WriteByte('}')
	}
	sb.WriteString(`]`)

	return sb.String()
}
