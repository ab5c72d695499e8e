package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/logger"
	"github.com/bindery-js/bindery/internal/runtime"
)

func scanDescriptionForTest(t *testing.T, yaml string, options config.Options) (*Result, []logger.Msg, error) {
	t.Helper()
	desc, err := ParseDescription([]byte(yaml))
	require.NoError(t, err)
	log := logger.NewDeferLog(logger.LevelInfo, nil)
	result, err := Scan(context.Background(), log, desc, &options, NewDescriptionResolver(desc))
	return result, log.Done(), err
}

func TestScanGraph(t *testing.T) {
	result, msgs, err := scanDescriptionForTest(t, `
entries:
  - /entry.js
  - {module: /other.js, name: main2}
modules:
  /entry.js: |
    import {a} from './a'
    import('./lazy')
    console.log(a)
  /other.js:
    code: export {a} from './a'
  /a.js:
    code: export const a = 1
    side_effects: true
  /lazy.js: export default 1
`, config.DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, msgs)

	var ids []string
	for _, module := range result.Modules {
		ids = append(ids, module.StableID())
	}
	require.Equal(t, []string{runtime.StableID, "entry.js", "other.js", "a.js", "lazy.js"}, ids)
	require.Equal(t, uint32(0), result.RuntimeSourceIndex)
	require.Len(t, result.Symbols.Outer, 5)

	require.Len(t, result.Entries, 3)
	require.Equal(t, graph.EntryPoint{Name: "entry", SourceIndex: 1, Kind: graph.EntryPointUserDefined}, result.Entries[0])
	require.Equal(t, graph.EntryPoint{Name: "main2", SourceIndex: 2, Kind: graph.EntryPointUserDefined}, result.Entries[1])
	require.Equal(t, graph.EntryPoint{
		Name:             "lazy",
		RelatedStmtInfos: []graph.RelatedStmt{{SourceIndex: 1, StmtIndex: 2}},
		SourceIndex:      4,
		Kind:             graph.EntryPointDynamicImport,
	}, result.Entries[2])

	a := result.Modules[3]
	require.Equal(t, []uint32{1, 2}, a.Importers)
	require.Equal(t, graph.SideEffects{Kind: graph.SideEffectsUserDefined, Value: true}, a.SideEffects)
	require.Equal(t, []uint32{1}, result.Modules[4].DynamicImporters)
	require.Equal(t, graph.SideEffects{Kind: graph.SideEffectsAnalyzed, Value: false}, result.Modules[4].SideEffects)
	require.Equal(t, graph.SideEffects{Kind: graph.SideEffectsAnalyzed, Value: true}, result.Modules[1].SideEffects)

	entry := result.Modules[1]
	require.Equal(t, ast.MakeIndex32(3), entry.ImportRecords[0].SourceIndex)
	require.Equal(t, ast.MakeIndex32(4), entry.ImportRecords[1].SourceIndex)
}

func TestScanInlineDynamicImports(t *testing.T) {
	options := config.DefaultOptions()
	options.InlineDynamicImports = true
	result, _, err := scanDescriptionForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: import('./lazy')
  /lazy.js: export default 1
`, options)
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	require.Equal(t, []uint32{1}, result.Modules[2].DynamicImporters)
}

func TestScanRuntimeModule(t *testing.T) {
	result, _, err := scanDescriptionForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: let x
`, config.DefaultOptions())
	require.NoError(t, err)

	module := result.Modules[result.RuntimeSourceIndex]
	require.Equal(t, runtime.StableID, module.StableID())
	require.Equal(t, graph.ExportsESM, module.ExportsKind)
	require.False(t, module.SideEffects.HasSideEffects())
	require.Equal(t, len(runtime.Stmts)+1, module.StmtInfos.Len())

	export, ok := module.NamedExports["__toESM"]
	require.True(t, ok)
	stmts := module.StmtInfos.DeclaredStmtsBySymbol(export.Ref)
	require.Len(t, stmts, 1)
	info := module.StmtInfos.Get(stmts[0])
	require.Contains(t, info.Text, "var __toESM")
	require.Equal(t, info.Text, module.Source.TextForRange(info.Range))

	var referenced []string
	for _, ref := range info.ReferencedSymbols {
		referenced = append(referenced, result.Symbols.NameFor(ref.Ref))
	}
	require.Equal(t, []string{"__create", "__getProtoOf", "__copyProps", "__defProp"}, referenced)
}

func TestScanLazyExport(t *testing.T) {
	result, msgs, err := scanDescriptionForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: import data from './data.json'
  /data.json: '{"b": 2, "a": [1, "x"], "not-an-id": {"c": true}}'
  /config.js:
    code: '[1, 2]'
    lazy_export: true
`, config.DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, msgs)

	data := result.Modules[2]
	require.True(t, data.Meta.Has(graph.HasLazyExport))
	require.False(t, data.SideEffects.HasSideEffects())
	require.Equal(t, `{"b":2,"a":[1,"x"],"not-an-id":{"c":true}}`, data.LazyExport.Text)
	require.Equal(t, []graph.LazyExportField{
		{Key: "b", Text: "2"},
		{Key: "a", Text: `[1,"x"]`},
		{Key: "not-an-id", Text: `{"c":true}`},
	}, data.LazyExport.Fields)
}

func TestScanExternals(t *testing.T) {
	result, msgs, err := scanDescriptionForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: |
    import React from 'react'
    import {jsx} from 'react/jsx-runtime'
    import fs from 'node:fs'
    import 'ext'
  /node_modules/ext/index.js:
    external: true
external: [react, "node:*"]
`, config.DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, msgs)

	var ids []string
	for _, module := range result.Modules[2:] {
		require.True(t, module.IsExternal())
		require.True(t, module.SideEffects.HasSideEffects())
		ids = append(ids, module.StableID())
	}
	require.Equal(t, []string{"react", "react/jsx-runtime", "node:fs", "ext"}, ids)
}

func TestScanUnresolved(t *testing.T) {
	result, msgs, err := scanDescriptionForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: import './missing'
`, config.DefaultOptions())
	require.Nil(t, result)
	require.True(t, errors.Is(err, ErrInvalidGraph))
	require.Len(t, msgs, 1)
	require.Equal(t, `Could not resolve "./missing"`, msgs[0].Data.Text)
	require.Equal(t, "entry.js", msgs[0].Data.Location.File)
}

func TestScanMissingEntry(t *testing.T) {
	_, msgs, err := scanDescriptionForTest(t, `
entries: [/nope.js]
modules:
  /entry.js: let x
`, config.DefaultOptions())
	require.True(t, errors.Is(err, ErrInvalidGraph))
	require.Len(t, msgs, 1)
	require.Equal(t, `Could not resolve entry point "/nope.js"`, msgs[0].Data.Text)
}

func TestScanOverrides(t *testing.T) {
	result, _, err := scanDescriptionForTest(t, `
entries: [/entry.js]
modules:
  /entry.js:
    code: console.log(1)
    exports_kind: cjs
    no_treeshake: true
    meta: [execution-order-sensitive]
`, config.DefaultOptions())
	require.NoError(t, err)
	module := result.Modules[1]
	require.Equal(t, graph.ExportsCommonJS, module.ExportsKind)
	require.Equal(t, graph.SideEffectsNoTreeshake, module.SideEffects.Kind)
	require.True(t, module.Meta.Has(graph.ExecutionOrderSensitive))
}

func TestCommonJSTreeShakingAffectsSideEffects(t *testing.T) {
	yaml := `
entries: [/entry.js]
modules:
  /entry.js: exports.a = 1
`
	result, _, err := scanDescriptionForTest(t, yaml, config.DefaultOptions())
	require.NoError(t, err)
	require.True(t, result.Modules[1].SideEffects.HasSideEffects())

	options := config.DefaultOptions()
	options.TreeShake.CommonJS = true
	result, _, err = scanDescriptionForTest(t, yaml, options)
	require.NoError(t, err)
	require.False(t, result.Modules[1].SideEffects.HasSideEffects())
}

func TestResolver(t *testing.T) {
	desc := &Description{
		Modules: map[string]ModuleSpec{
			"/src/a.js":                  {},
			"/src/b.mjs":                 {},
			"/src/dir/index.js":          {},
			"/node_modules/pkg/index.js": {},
			"/node_modules/ext/index.js": {External: true},
			"/src/data.json":             {},
		},
		External: []string{"@scope/*"},
	}
	resolver := NewDescriptionResolver(desc)

	expect := func(importer string, specifier string, expected ResolveResult, expectedOK bool) {
		t.Helper()
		result, ok := resolver.Resolve(importer, specifier, ast.ImportStmt)
		require.Equal(t, expectedOK, ok, specifier)
		require.Equal(t, expected, result, specifier)
	}

	expect("/src/entry.js", "./a", ResolveResult{ID: "/src/a.js"}, true)
	expect("/src/entry.js", "./a.js", ResolveResult{ID: "/src/a.js"}, true)
	expect("/src/entry.js", "./b", ResolveResult{ID: "/src/b.mjs"}, true)
	expect("/src/entry.js", "./dir", ResolveResult{ID: "/src/dir/index.js"}, true)
	expect("/src/dir/index.js", "../data.json", ResolveResult{ID: "/src/data.json"}, true)
	expect("/src/entry.js", "/src/a.js", ResolveResult{ID: "/src/a.js"}, true)
	expect("/src/entry.js", "pkg", ResolveResult{ID: "/node_modules/pkg/index.js"}, true)
	expect("/src/entry.js", "ext", ResolveResult{ID: "ext", External: true}, true)
	expect("/src/entry.js", "@scope/thing", ResolveResult{ID: "@scope/thing", External: true}, true)
	expect("/src/entry.js", "./missing", ResolveResult{}, false)
	expect("/src/entry.js", "missing", ResolveResult{}, false)
}

func TestParseDescriptionErrors(t *testing.T) {
	expectError := func(contents string, expected string) {
		t.Helper()
		_, err := ParseDescription([]byte(contents))
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrInvalidDescription))
		require.Contains(t, err.Error(), expected)
	}

	expectError(`modules: {}`, "no entries")
	expectError(`entries: [{name: x}]`, "an entry has no module")
	expectError("entries: [a]\nbogus: 1", "field bogus not found")
	expectError("entries: [a]\nmodules:\n  a: {exports_kind: amd}", `unknown exports kind "amd"`)
	expectError("entries: [a]\nmodules:\n  a: {meta: [fast]}", `unknown meta "fast"`)
}
