package scan

import (
	"strings"
	"testing"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/js_ast"
	"github.com/bindery-js/bindery/internal/logger"
	"github.com/bindery-js/bindery/internal/test"
)

type scanned struct {
	module  *graph.Module
	symbols []ast.Symbol
	msgs    []logger.Msg
}

func scanForTest(t *testing.T, contents string, pureFunctions ...string) scanned {
	t.Helper()
	log := logger.NewDeferLog(logger.LevelInfo, nil)
	module := &graph.Module{Source: test.SourceForTest(contents), DefaultExportRef: ast.InvalidRef}
	symbols := scanJS(log, module, config.NewPureFunctions(pureFunctions))
	return scanned{module: module, symbols: symbols, msgs: log.Done()}
}

func (s scanned) name(ref ast.Ref) string {
	return s.symbols[ref.InnerIndex].OriginalName
}

func (s scanned) stmt(index uint32) *js_ast.StmtInfo {
	return s.module.StmtInfos.Get(index)
}

func (s scanned) referencedNames(index uint32) string {
	var names []string
	for _, ref := range s.stmt(index).ReferencedSymbols {
		if ref.IsMemberExpr() {
			names = append(names, s.name(ref.Ref)+"."+strings.Join(ref.MemberExpr.Props, "."))
		} else {
			names = append(names, s.name(ref.Ref))
		}
	}
	return strings.Join(names, ",")
}

func (s scanned) warnings() string {
	var texts []string
	for _, msg := range s.msgs {
		if msg.Kind == logger.Warning {
			texts = append(texts, msg.Data.Location.File+": "+msg.Data.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func (s scanned) errors() string {
	var texts []string
	for _, msg := range s.msgs {
		if msg.Kind == logger.Error {
			texts = append(texts, msg.Data.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func TestScanImportsAndExports(t *testing.T) {
	s := scanForTest(t, `import def, {a as b, c} from './foo'
import * as ns from './bar'
export {b as x}
export const y = 1, {z} = obj
export default function () {}
`)
	test.AssertEqual(t, s.errors(), "")
	test.AssertEqual(t, s.module.StmtInfos.Len(), 6)
	test.AssertEqual(t, s.module.ExportsKind, graph.ExportsESM)

	records := s.module.ImportRecords
	test.AssertEqual(t, len(records), 2)
	test.AssertEqual(t, records[0].Path, "./foo")
	test.AssertEqual(t, records[0].Flags.Has(ast.ContainsDefaultAlias), true)
	test.AssertEqual(t, records[1].Flags.Has(ast.ContainsImportStar), true)
	test.AssertEqual(t, s.name(records[1].NamespaceRef), "ns")
	test.AssertEqual(t, s.name(records[0].NamespaceRef), "import_foo")

	test.AssertEqual(t, len(s.module.NamedImports), 4)
	for ref, namedImport := range s.module.NamedImports {
		switch s.name(ref) {
		case "def":
			test.AssertEqual(t, namedImport.Alias, "default")
		case "b":
			test.AssertEqual(t, namedImport.Alias, "a")
		case "c":
			test.AssertEqual(t, namedImport.Alias, "c")
		case "ns":
			test.AssertEqual(t, namedImport.AliasIsStar, true)
			test.AssertEqual(t, namedImport.ImportRecordIndex, uint32(1))
		default:
			t.Fatalf("Unexpected import %q", s.name(ref))
		}
	}

	test.AssertEqual(t, strings.Join(helpers.SortedKeys(s.module.NamedExports), ","), "default,x,y,z")
	test.AssertEqual(t, s.name(s.module.NamedExports["x"].Ref), "b")
	test.AssertEqual(t, s.name(s.module.DefaultExportRef), "stdin_default")
	test.AssertEqual(t, s.module.NamedExports["default"].Ref, s.module.DefaultExportRef)

	test.AssertEqual(t, s.stmt(1).Kind, js_ast.StmtImportDecl)
	test.AssertEqual(t, s.stmt(3).Kind, js_ast.StmtExportClause)
	test.AssertEqual(t, s.referencedNames(3), "b")
	test.AssertEqual(t, s.stmt(4).Kind, js_ast.StmtExportDecl)
	test.AssertEqual(t, s.referencedNames(4), "")
	test.AssertEqual(t, s.stmt(5).Kind, js_ast.StmtExportDefaultFunction)
	for i := uint32(1); i < 6; i++ {
		test.AssertEqual(t, s.stmt(i).SideEffect, js_ast.StmtPure)
	}
}

func TestScanReExports(t *testing.T) {
	s := scanForTest(t, `export {a, b as c} from './foo'
export * from './bar'
export * as ns from './baz'
`)
	test.AssertEqual(t, s.errors(), "")
	test.AssertEqual(t, len(s.module.ImportRecords), 3)
	test.AssertEqual(t, s.module.ImportRecords[1].Flags.Has(ast.IsExportStar), true)
	test.AssertEqual(t, strings.Join(helpers.SortedKeys(s.module.NamedExports), ","), "a,c,ns")

	// Re-exported names aren't visible to the rest of the module
	test.AssertEqual(t, len(s.module.NamedImports), 3)
	for _, namedImport := range s.module.NamedImports {
		test.AssertEqual(t, namedImport.IsExported, true)
	}
	test.AssertEqual(t, s.stmt(1).Kind, js_ast.StmtExportFrom)
	test.AssertEqual(t, s.stmt(2).Kind, js_ast.StmtExportStar)
	test.AssertEqual(t, s.stmt(3).Kind, js_ast.StmtExportStar)
}

func TestStatementSplitting(t *testing.T) {
	s := scanForTest(t, `let a = 1
let b = a
  + 2
foo()
(bar)
if (a) {
  b()
} else {
  c()
};;
do {} while (a)
x = y; z = w
`)
	var texts []string
	for _, stmt := range s.module.StmtInfos.All()[1:] {
		texts = append(texts, stmt.Text)
	}
	test.AssertEqualWithDiff(t, strings.Join(texts, "\n---\n"), `let a = 1
---
let b = a
  + 2
---
foo()
(bar)
---
if (a) {
  b()
} else {
  c()
};
---
do {} while (a)
---
x = y;
---
z = w`)
}

func TestReferences(t *testing.T) {
	s := scanForTest(t, `import {x} from './x'
const obj = {x: 1, y: x}
function f() { return obj.x + this.y }
f()
`)
	test.AssertEqual(t, s.errors(), "")
	test.AssertEqual(t, s.referencedNames(2), "x")
	test.AssertEqual(t, s.referencedNames(3), "obj")
	test.AssertEqual(t, s.referencedNames(4), "f")
	test.AssertEqual(t, s.stmt(2).SideEffect, js_ast.StmtPure)
	test.AssertEqual(t, s.stmt(3).SideEffect, js_ast.StmtPure)
	test.AssertEqual(t, s.stmt(4).SideEffect, js_ast.StmtUnknown)
	test.AssertEqual(t, s.stmt(3).Meta.Has(js_ast.HasTopLevelThis), false)
	test.AssertEqual(t, len(s.module.ThisExprReplace), 0)
}

func TestReferencesInTemplates(t *testing.T) {
	s := scanForTest(t, "const a = 1\nconst b = `${a}-${`${a}`}`\n")
	test.AssertEqual(t, s.errors(), "")
	test.AssertEqual(t, s.referencedNames(2), "a")
}

func TestMemberExpressionChains(t *testing.T) {
	s := scanForTest(t, `import * as ns from './foo'
console.log(ns.a.b, ns)
`)
	test.AssertEqual(t, s.errors(), "")
	test.AssertEqual(t, s.referencedNames(2), "ns.a.b,ns")

	member := s.stmt(2).ReferencedSymbols[0].MemberExpr
	test.AssertEqual(t, s.module.Source.TextForRange(member.Span), "ns.a.b")
}

func TestImportRecordsInStatements(t *testing.T) {
	s := scanForTest(t, `const a = require('./a')
require('./b')
import('./c').then(() => {})
const u = new URL('./d.png', import.meta.url)
`)
	test.AssertEqual(t, s.errors(), "")
	records := s.module.ImportRecords
	test.AssertEqual(t, len(records), 4)

	test.AssertEqual(t, records[0].Kind, ast.ImportRequire)
	test.AssertEqual(t, s.module.Source.TextForRange(records[0].Range), "require('./a')")
	test.AssertEqual(t, records[0].Flags.Has(ast.IsRequireUnused), false)
	test.AssertEqual(t, records[1].Flags.Has(ast.IsRequireUnused), true)
	test.AssertEqual(t, records[2].Kind, ast.ImportDynamic)
	test.AssertEqual(t, records[2].Path, "./c")
	test.AssertEqual(t, records[3].Kind, ast.ImportNewURL)
	test.AssertEqual(t, records[3].Path, "./d.png")

	test.AssertEqual(t, s.stmt(1).SideEffect, js_ast.StmtUnknown)
	test.AssertEqual(t, s.stmt(4).Meta.Has(js_ast.HasImportMeta), true)
	test.AssertEqual(t, s.module.AstUsage.Has(graph.UsesRequire), true)
	test.AssertEqual(t, s.module.ExportsKind, graph.ExportsNone)
}

func TestCommonJSDetection(t *testing.T) {
	s := scanForTest(t, `exports.a = 1
exports.b = function () {}
module.exports.c = 2
`)
	test.AssertEqual(t, s.module.ExportsKind, graph.ExportsCommonJS)
	test.AssertEqual(t, s.module.Meta.Has(graph.StaticCommonJSExports), true)
	test.AssertEqual(t, s.module.Meta.Has(graph.SafelyTreeshakeCommonJS), true)
	for i := uint32(1); i < 4; i++ {
		test.AssertEqual(t, s.stmt(i).SideEffect, js_ast.StmtUnknownCommonJS)
	}
	test.AssertEqual(t, strings.Join(helpers.SortedKeys(s.module.NamedExports), ","), "a,b,c")
	b := s.module.NamedExports["b"].Ref
	test.AssertEqual(t, s.symbols[b.InnerIndex].Kind, ast.SymbolCommonJSExport)
	test.AssertDeepEqual(t, s.module.StmtInfos.DeclaredStmtsBySymbol(b), []uint32{2})

	s = scanForTest(t, `exports.a = foo()
exports.b = 2
`)
	test.AssertEqual(t, s.module.Meta.Has(graph.StaticCommonJSExports), true)
	test.AssertEqual(t, s.module.Meta.Has(graph.SafelyTreeshakeCommonJS), false)
	test.AssertEqual(t, s.stmt(1).SideEffect, js_ast.StmtUnknown)

	s = scanForTest(t, `module.exports = {a: 1}
`)
	test.AssertEqual(t, s.module.ExportsKind, graph.ExportsCommonJS)
	test.AssertEqual(t, s.module.Meta.Has(graph.StaticCommonJSExports), false)
	test.AssertEqual(t, s.module.AstUsage.Has(graph.UsesModuleRef), true)

	s = scanForTest(t, `Object.defineProperty(exports, '__esModule', {value: true})
`)
	test.AssertEqual(t, s.module.Meta.Has(graph.StaticCommonJSExports), false)
}

func TestCommonJSReExport(t *testing.T) {
	s := scanForTest(t, `module.exports = require('./other')
`)
	test.AssertEqual(t, s.module.ExportsKind, graph.ExportsCommonJS)
	test.AssertDeepEqual(t, s.module.CommonJSReExports, []uint32{0})
	test.AssertEqual(t, s.module.Meta.Has(graph.StaticCommonJSExports), true)
}

func TestTopLevelThis(t *testing.T) {
	s := scanForTest(t, `export const a = this
export function f() { return this }
`)
	test.AssertEqual(t, len(s.module.ThisExprReplace), 1)
	for _, replacement := range s.module.ThisExprReplace {
		test.AssertEqual(t, replacement, graph.ThisWithUndefined)
	}
	test.AssertEqual(t, s.stmt(1).Meta.Has(js_ast.HasTopLevelThis), true)

	s = scanForTest(t, `exports.a = this
`)
	test.AssertEqual(t, len(s.module.ThisExprReplace), 1)
	for _, replacement := range s.module.ThisExprReplace {
		test.AssertEqual(t, replacement, graph.ThisWithExports)
	}
}

func TestTopLevelAwaitAndEval(t *testing.T) {
	s := scanForTest(t, `const a = await fetch()
async function f() { await g() }
`)
	test.AssertEqual(t, s.module.AstUsage.Has(graph.UsesTopLevelAwait), true)

	s = scanForTest(t, `async function f() { await g() }
`)
	test.AssertEqual(t, s.module.AstUsage.Has(graph.UsesTopLevelAwait), false)

	s = scanForTest(t, `const a = 1
eval('a')
`)
	test.AssertEqual(t, s.module.Meta.Has(graph.HasEval), true)
	test.AssertEqual(t, s.warnings(), "<stdin>: Using direct eval with a bundler is not recommended and may cause problems")
}

func TestCommonJSVariableInESM(t *testing.T) {
	s := scanForTest(t, `export const a = 1
exports.b = 2
`)
	test.AssertEqual(t, s.module.ExportsKind, graph.ExportsESM)
	test.AssertEqual(t, s.warnings(), "<stdin>: The CommonJS \"exports\" variable is treated as a global variable in an ECMAScript module and may not work as expected")
}

func TestSideEffects(t *testing.T) {
	expectSideEffect := func(contents string, expected js_ast.StmtSideEffect) {
		t.Helper()
		t.Run(contents, func(t *testing.T) {
			t.Helper()
			s := scanForTest(t, contents)
			test.AssertEqual(t, s.errors(), "")
			test.AssertEqual(t, s.stmt(1).SideEffect, expected)
		})
	}

	expectSideEffect("const a = 1", js_ast.StmtPure)
	expectSideEffect("const a = b.c", js_ast.StmtPure)
	expectSideEffect("const a = foo()", js_ast.StmtUnknown)
	expectSideEffect("const a = /* @__PURE__ */ foo()", js_ast.StmtPure)
	expectSideEffect("const a = /* #__PURE__ */ new Foo()", js_ast.StmtPure)
	expectSideEffect("const a = new Foo()", js_ast.StmtUnknown)
	expectSideEffect("const a = () => foo()", js_ast.StmtPure)
	expectSideEffect("const a = (x) => { foo(x) }", js_ast.StmtPure)
	expectSideEffect("const a = function () { foo() }", js_ast.StmtPure)
	expectSideEffect("const a = {b() { foo() }}", js_ast.StmtPure)
	expectSideEffect("const a = `x${foo()}`", js_ast.StmtUnknown)
	expectSideEffect("const a = tag`x`", js_ast.StmtUnknown)
	expectSideEffect("const {a = foo()} = b", js_ast.StmtUnknown)
	expectSideEffect("const [a, b = 1] = c", js_ast.StmtPure)
	expectSideEffect("let a = b = 1", js_ast.StmtUnknown)
	expectSideEffect("a = 1", js_ast.StmtUnknown)
	expectSideEffect("function f() { foo() }", js_ast.StmtPure)
	expectSideEffect("class A extends B {}", js_ast.StmtPure)
	expectSideEffect("class A extends mixin(B) {}", js_ast.StmtUnknown)
	expectSideEffect("class A { static x = foo() }", js_ast.StmtUnknown)
	expectSideEffect("export default foo()", js_ast.StmtUnknown)
	expectSideEffect("export default 123", js_ast.StmtPure)
	expectSideEffect("export default class {}", js_ast.StmtPure)
	expectSideEffect("import './foo'", js_ast.StmtPure)
}

func TestManualPureFunctions(t *testing.T) {
	expectSideEffect := func(contents string, expected js_ast.StmtSideEffect) {
		t.Helper()
		t.Run(contents, func(t *testing.T) {
			t.Helper()
			s := scanForTest(t, contents, "styled", "Math.max")
			test.AssertEqual(t, s.errors(), "")
			test.AssertEqual(t, s.stmt(1).SideEffect, expected)
		})
	}

	expectSideEffect("const a = styled()", js_ast.StmtPure)
	expectSideEffect("const a = styled.div({color: 'red'})", js_ast.StmtPure)
	expectSideEffect("const a = styled?.div()", js_ast.StmtPure)
	expectSideEffect("const a = styled.div(foo())", js_ast.StmtUnknown)
	expectSideEffect("const a = Math.max(1, 2)", js_ast.StmtPure)
	expectSideEffect("const a = Math.random()", js_ast.StmtUnknown)
	expectSideEffect("const a = x.styled()", js_ast.StmtUnknown)
	expectSideEffect("const a = foo().styled()", js_ast.StmtUnknown)
	expectSideEffect("const a = new styled()", js_ast.StmtUnknown)
}

func TestDestructuringDeclarations(t *testing.T) {
	s := scanForTest(t, `const {a, b: [c, ...d], [e]: f = g, ...h} = obj
`)
	test.AssertEqual(t, s.errors(), "")
	var names []string
	for _, ref := range s.stmt(1).DeclaredSymbols {
		names = append(names, s.name(ref))
	}
	test.AssertEqual(t, strings.Join(names, ","), "a,c,d,f,h")
}

func TestScanErrors(t *testing.T) {
	expectError := func(contents string, expected string) {
		t.Helper()
		t.Run(contents, func(t *testing.T) {
			t.Helper()
			test.AssertEqual(t, scanForTest(t, contents).errors(), expected)
		})
	}

	expectError("import {a} from", "Expected string")
	expectError("import {a} './foo'", "Expected \"from\"")
	expectError("export {missing}", "\"missing\" is not declared in this file")
	expectError("export const a = 1\nexport {a}", "Multiple exports with the same name \"a\"")
	expectError("import {a} from './a'\nimport {a} from './b'", "The symbol \"a\" has already been declared")
	expectError("export + 1", "Unexpected \"+\" after \"export\"")
}

func TestConstValues(t *testing.T) {
	s := scanForTest(t, `const a = 1
export const b = 'text'
const c = 1, d = 2
let e = 3
const f = -1
import('./g')
`)
	test.AssertEqual(t, s.errors(), "")
	flags := func(name string) string {
		for _, symbol := range s.symbols {
			if symbol.OriginalName == name {
				if symbol.Flags.Has(ast.IsConstValue) {
					return symbol.ConstValue
				}
				return "<not const>"
			}
		}
		return "<missing>"
	}
	test.AssertEqual(t, flags("a"), "1")
	test.AssertEqual(t, flags("b"), "'text'")
	test.AssertEqual(t, flags("c"), "<not const>")
	test.AssertEqual(t, flags("e"), "<not const>")
	test.AssertEqual(t, flags("f"), "<not const>")
	test.AssertEqual(t, s.module.ImportRecords[0].Flags.Has(ast.IsRequireUnused), true)
}
