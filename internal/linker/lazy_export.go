package linker

import (
	"strings"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/js_ast"
)

// Modules with lazy exports (i.e. JSON files) don't have any statements until
// now because how they export their value depends on how they are imported.
// A CommonJS module just assigns the value:
//
//   module.exports = {"name": "pkg", "version": "1.0.0"};
//
// Otherwise every top-level key that is a valid identifier becomes its own
// export so unused keys can be tree shaken:
//
//   var name = "pkg";
//   var version = "1.0.0";
//   var data_default = {"name": name, "version": version};
//
func (c *linkerContext) generateLazyExports() {
	for _, sourceIndex := range c.graph.SortedModules {
		module := c.graph.Modules[sourceIndex]
		if !module.Meta.Has(graph.HasLazyExport) || module.LazyExport == nil {
			continue
		}
		lazy := module.LazyExport

		if module.ExportsKind == graph.ExportsCommonJS {
			module.AstUsage |= graph.UsesModuleRef
			module.StmtInfos.Add(js_ast.StmtInfo{
				Text:       "module.exports = " + lazy.Text,
				Kind:       js_ast.StmtOther,
				SideEffect: js_ast.StmtUnknown,
				DebugLabel: "lazy export",
			})
			continue
		}

		module.ExportsKind = graph.ExportsESM
		var defaultRefs []js_ast.SymbolOrMemberExprRef
		var defaultText string

		if strings.HasPrefix(lazy.Text, "{") {
			sb := strings.Builder{}
			sb.WriteByte('{')
			for i, field := range lazy.Fields {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(helpers.QuoteForJSON(field.Key))
				sb.WriteString(": ")

				// Keys that can't be bindings stay inline in the default export
				if field.Key == "default" || !js_ast.IsIdentifier(field.Key) || js_ast.Keywords[field.Key] {
					sb.WriteString(field.Text)
					continue
				}
				if _, ok := module.NamedExports[field.Key]; ok {
					continue
				}

				ref := c.graph.Symbols.NewSymbol(sourceIndex, ast.SymbolOther, field.Key)
				module.StmtInfos.Add(js_ast.StmtInfo{
					DeclaredSymbols: []ast.Ref{ref},
					Text:            "var " + field.Key + " = " + field.Text,
					Kind:            js_ast.StmtVarDecl,
					SideEffect:      js_ast.StmtPure,
					DebugLabel:      field.Key,
				})
				module.NamedExports[field.Key] = js_ast.NamedExport{Ref: ref}
				defaultRefs = append(defaultRefs, js_ast.SymbolRef(ref))
				sb.WriteString(field.Key)
			}
			sb.WriteByte('}')
			defaultText = sb.String()
		} else {
			defaultText = lazy.Text
		}

		name := module.Source.IdentifierName + "_default"
		defaultRef := c.graph.Symbols.NewSymbol(sourceIndex, ast.SymbolOther, name)
		module.StmtInfos.Add(js_ast.StmtInfo{
			DeclaredSymbols:   []ast.Ref{defaultRef},
			ReferencedSymbols: defaultRefs,
			Text:              "var " + name + " = " + defaultText,
			Kind:              js_ast.StmtVarDecl,
			SideEffect:        js_ast.StmtPure,
			DebugLabel:        "default",
		})
		module.DefaultExportRef = defaultRef
		module.NamedExports["default"] = js_ast.NamedExport{Ref: defaultRef}
	}
}
