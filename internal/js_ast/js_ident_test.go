package js_ast

import (
	"testing"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/test"
)

func TestGenerateNonUniqueNameFromPath(t *testing.T) {
	test.AssertEqual(t, GenerateNonUniqueNameFromPath("<stdin>"), "stdin")
	test.AssertEqual(t, GenerateNonUniqueNameFromPath("foo/bar"), "bar")
	test.AssertEqual(t, GenerateNonUniqueNameFromPath("foo/bar.js"), "bar")
	test.AssertEqual(t, GenerateNonUniqueNameFromPath("foo/bar.min.js"), "bar_min")
	test.AssertEqual(t, GenerateNonUniqueNameFromPath("trailing//slashes//"), "slashes")
	test.AssertEqual(t, GenerateNonUniqueNameFromPath("path/with/spaces in name.js"), "spaces_in_name")
	test.AssertEqual(t, GenerateNonUniqueNameFromPath("path\\on\\windows.js"), "windows")
	test.AssertEqual(t, GenerateNonUniqueNameFromPath("node_modules/demo-pkg/index.js"), "demo_pkg")
	test.AssertEqual(t, GenerateNonUniqueNameFromPath("node_modules\\demo-pkg\\index.js"), "demo_pkg")
	test.AssertEqual(t, GenerateNonUniqueNameFromPath("123_invalid_identifier.js"), "invalid_identifier")
	test.AssertEqual(t, GenerateNonUniqueNameFromPath("emoji 🍕 name.js"), "emoji_name")
}

func TestForceValidIdentifier(t *testing.T) {
	test.AssertEqual(t, ForceValidIdentifier("foo"), "foo")
	test.AssertEqual(t, ForceValidIdentifier("1foo"), "_foo")
	test.AssertEqual(t, ForceValidIdentifier("foo-bar"), "foo_bar")
	test.AssertEqual(t, IsIdentifier("$valid_1"), true)
	test.AssertEqual(t, IsIdentifier("not valid"), false)
	test.AssertEqual(t, IsIdentifier(""), false)
}

func TestStmtInfos(t *testing.T) {
	infos := NewStmtInfos()
	test.AssertEqual(t, infos.Len(), 1)

	x := ast.Ref{OuterIndex: 0, InnerIndex: 1}
	ns := ast.Ref{OuterIndex: 0, InnerIndex: 0}
	index := infos.Add(StmtInfo{DeclaredSymbols: []ast.Ref{x}})
	test.AssertEqual(t, index, uint32(1))
	test.AssertEqual(t, len(infos.DeclaredStmtsBySymbol(x)), 1)

	infos.ReplaceNamespaceStmtInfo(StmtInfo{DeclaredSymbols: []ast.Ref{ns}})
	test.AssertEqual(t, infos.DeclaredStmtsBySymbol(ns)[0], uint32(NamespaceStmtIndex))
	infos.ReplaceNamespaceStmtInfo(StmtInfo{DeclaredSymbols: []ast.Ref{ns}})
	test.AssertEqual(t, len(infos.DeclaredStmtsBySymbol(ns)), 1)
}
