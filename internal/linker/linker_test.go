package linker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/logger"
	"github.com/bindery-js/bindery/internal/runtime"
	"github.com/bindery-js/bindery/internal/scan"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func linkForTest(t *testing.T, yaml string, options config.Options) (*Output, []logger.Msg, error) {
	t.Helper()
	desc, err := scan.ParseDescription([]byte(yaml))
	require.NoError(t, err)
	log := logger.NewDeferLog(logger.LevelInfo, nil)
	result, err := scan.Scan(context.Background(), log, desc, &options, scan.NewDescriptionResolver(desc))
	require.NoError(t, err)
	out, err := Link(context.Background(), &options, &helpers.Timer{}, log, nil,
		result.Modules, result.Symbols, result.Entries, result.RuntimeSourceIndex)
	return out, log.Done(), err
}

func moduleByID(t *testing.T, out *Output, id string) *graph.Module {
	t.Helper()
	for _, module := range out.Graph.Modules {
		if module.StableID() == id {
			return module
		}
	}
	t.Fatalf("no module %q", id)
	return nil
}

func importRefFor(t *testing.T, module *graph.Module, alias string) ast.Ref {
	t.Helper()
	for ref, namedImport := range module.NamedImports {
		if namedImport.ImportedName() == alias && !namedImport.IsExported {
			return ref
		}
	}
	t.Fatalf("no import %q in %q", alias, module.StableID())
	return ast.InvalidRef
}

// Returns whether the statements declaring "ref" in its module were kept
func isDeclarationIncluded(t *testing.T, out *Output, ref ast.Ref) bool {
	t.Helper()
	stmts := out.Graph.Modules[ref.OuterIndex].StmtInfos.DeclaredStmtsBySymbol(ref)
	require.NotEmpty(t, stmts)
	for _, stmtIndex := range stmts {
		if !out.Graph.Metas[ref.OuterIndex].StmtIncluded[stmtIndex] {
			return false
		}
	}
	return true
}

func msgsWithID(msgs []logger.Msg, id logger.MsgID) []logger.Msg {
	var result []logger.Msg
	for _, msg := range msgs {
		if msg.ID == id {
			result = append(result, msg)
		}
	}
	return result
}

func errorTexts(msgs []logger.Msg) []string {
	var texts []string
	for _, msg := range msgs {
		if msg.Kind == logger.Error {
			texts = append(texts, msg.Data.Text)
		}
	}
	return texts
}

func TestLinkSharedImportBindsToOneSymbol(t *testing.T) {
	out, msgs, err := linkForTest(t, `
entries: [/a.js, /b.js]
modules:
  /a.js: |
    import {util} from './util'
    console.log(util)
  /b.js: |
    import {util} from './util'
    console.log(util)
  /util.js: export function util() {}
`, config.DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, errorTexts(msgs))

	util := moduleByID(t, out, "util.js")
	exportRef := util.NamedExports["util"].Ref
	for _, id := range []string{"a.js", "b.js"} {
		ref := importRefFor(t, moduleByID(t, out, id), "util")
		require.Equal(t, exportRef, ast.CanonicalRefFor(out.Graph.Symbols, ref), id)
	}

	require.True(t, out.Graph.Metas[util.Index()].IsIncluded)
	require.True(t, isDeclarationIncluded(t, out, exportRef))
	require.True(t, out.UsedSymbolRefs[exportRef])
	require.Equal(t, graph.WrapNone, out.Graph.Metas[util.Index()].Wrap)

	// Nothing asked for the namespace object
	require.False(t, out.Graph.Metas[util.Index()].StmtIncluded[0])

	// Both entries depend on the module declaring the symbol
	for _, id := range []string{"a.js", "b.js"} {
		require.True(t, out.Graph.Metas[moduleByID(t, out, id).Index()].Dependencies.Has(util.Index()), id)
	}
}

func TestLinkReExportChain(t *testing.T) {
	out, msgs, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: |
    import {x} from './reexport'
    console.log(x)
  /reexport.js: export {x} from './source'
  /source.js: export const x = 1
`, config.DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, errorTexts(msgs))

	entry := moduleByID(t, out, "entry.js")
	source := moduleByID(t, out, "source.js")
	ref := importRefFor(t, entry, "x")
	require.Equal(t, source.NamedExports["x"].Ref, ast.CanonicalRefFor(out.Graph.Symbols, ref))

	data, ok := out.Graph.Metas[entry.Index()].ImportsToBind[ref]
	require.True(t, ok)
	require.Equal(t, source.Index(), data.SourceIndex)

	// Every import along the way is kept, starting with the entry's own
	reexport := moduleByID(t, out, "reexport.js")
	require.Len(t, data.ReExports, 2)
	require.Equal(t, ref, data.ReExports[0])
	require.Equal(t, reexport.Index(), data.ReExports[1].OuterIndex)

	// The entry now depends on the declaring module directly
	require.True(t, out.Graph.Metas[entry.Index()].Dependencies.Has(source.Index()))
}

func TestLinkTreeShakingDropsUnusedExports(t *testing.T) {
	yaml := `
entries: [/entry.js]
modules:
  /entry.js: |
    import {used} from './lib'
    console.log(used)
  /lib.js: |
    export const used = 1
    export const unused = 2
`

	out, _, err := linkForTest(t, yaml, config.DefaultOptions())
	require.NoError(t, err)
	lib := moduleByID(t, out, "lib.js")
	require.True(t, isDeclarationIncluded(t, out, lib.NamedExports["used"].Ref))
	require.False(t, isDeclarationIncluded(t, out, lib.NamedExports["unused"].Ref))

	options := config.DefaultOptions()
	options.TreeShake.Enabled = false
	out, _, err = linkForTest(t, yaml, options)
	require.NoError(t, err)
	lib = moduleByID(t, out, "lib.js")
	require.True(t, isDeclarationIncluded(t, out, lib.NamedExports["used"].Ref))
	require.True(t, isDeclarationIncluded(t, out, lib.NamedExports["unused"].Ref))
}

func TestLinkSideEffectsPropagateThroughImports(t *testing.T) {
	out, _, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: import './a'
  /a.js: import './b'
  /b.js: console.log('b')
  /pure.js: export const unused = 1
`, config.DefaultOptions())
	require.NoError(t, err)

	a := moduleByID(t, out, "a.js")
	b := moduleByID(t, out, "b.js")
	require.True(t, a.SideEffects.HasSideEffects())
	require.True(t, b.SideEffects.HasSideEffects())
	require.True(t, out.Graph.Metas[a.Index()].IsIncluded)
	require.True(t, out.Graph.Metas[b.Index()].IsIncluded)
	require.True(t, out.Graph.Metas[b.Index()].StmtIncluded[1])
}

func TestLinkRequireOfESMWrapsTheModule(t *testing.T) {
	out, msgs, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: |
    const e = require('./e')
    console.log(e)
  /e.js: export const x = 1
`, config.DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, errorTexts(msgs))

	entry := moduleByID(t, out, "entry.js")
	e := moduleByID(t, out, "e.js")
	eMeta := &out.Graph.Metas[e.Index()]
	require.Equal(t, graph.ExportsESM, e.ExportsKind)
	require.Equal(t, graph.WrapESM, eMeta.Wrap)
	require.Equal(t, "init_e", out.Graph.Symbols.NameFor(eMeta.WrapperRef))
	require.True(t, eMeta.WrapperStmtIndex.IsValid())
	require.True(t, eMeta.StmtIncluded[eMeta.WrapperStmtIndex.GetIndex()])

	// "require()" of the module needs the whole namespace object
	require.True(t, eMeta.StmtIncluded[0])
	require.True(t, isDeclarationIncluded(t, out, e.NamedExports["x"].Ref))

	require.True(t, entry.ImportRecords[0].Flags.Has(ast.WrapWithToCJS))
	require.True(t, out.Graph.Metas[entry.Index()].DependedRuntimeHelper.Has(runtime.HelperToCommonJS))
	require.True(t, eMeta.DependedRuntimeHelper.Has(runtime.HelperESMMin))
	require.True(t, eMeta.DependedRuntimeHelper.Has(runtime.HelperExport))
	require.True(t, out.Graph.Metas[entry.Index()].Dependencies.Has(out.Graph.RuntimeSourceIndex))
}

func TestLinkImportFromCommonJS(t *testing.T) {
	yaml := `
entries: [/entry.js]
modules:
  /entry.js: |
    import {foo} from './cjs'
    console.log(foo)
  /cjs.js: |
    exports.foo = 1
    exports.bar = 2
`
	options := config.DefaultOptions()
	options.TreeShake.CommonJS = true
	out, msgs, err := linkForTest(t, yaml, options)
	require.NoError(t, err)
	require.Empty(t, errorTexts(msgs))

	entry := moduleByID(t, out, "entry.js")
	cjs := moduleByID(t, out, "cjs.js")
	cjsMeta := &out.Graph.Metas[cjs.Index()]
	require.Equal(t, graph.ExportsCommonJS, cjs.ExportsKind)
	require.Equal(t, graph.WrapCJS, cjsMeta.Wrap)
	require.Equal(t, "require_cjs", out.Graph.Symbols.NameFor(cjsMeta.WrapperRef))
	require.True(t, cjsMeta.DependedRuntimeHelper.Has(runtime.HelperCommonJSMin))

	// The import becomes a property access on the imported exports object
	ref := importRefFor(t, entry, "foo")
	alias := out.Graph.Symbols.Get(ref).NamespaceAlias
	require.NotNil(t, alias)
	require.Equal(t, "foo", alias.Alias)
	require.Equal(t, entry.ImportRecords[0].NamespaceRef, alias.NamespaceRef)

	// Only the assignment that is read survives
	require.False(t, cjsMeta.CJSTreeShakingBailout)
	require.True(t, isDeclarationIncluded(t, out, cjs.NamedExports["foo"].Ref))
	require.False(t, isDeclarationIncluded(t, out, cjs.NamedExports["bar"].Ref))

	// Without CommonJS tree shaking every assignment counts as a side effect
	out, _, err = linkForTest(t, yaml, config.DefaultOptions())
	require.NoError(t, err)
	cjs = moduleByID(t, out, "cjs.js")
	require.True(t, isDeclarationIncluded(t, out, cjs.NamedExports["foo"].Ref))
	require.True(t, isDeclarationIncluded(t, out, cjs.NamedExports["bar"].Ref))
}

func TestLinkNamespaceImportOfCommonJSBailsOut(t *testing.T) {
	out, _, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: |
    import * as ns from './cjs'
    console.log(ns)
  /cjs.js: |
    exports.foo = 1
    exports.bar = 2
`, config.DefaultOptions())
	require.NoError(t, err)

	cjs := moduleByID(t, out, "cjs.js")
	require.True(t, out.Graph.Metas[cjs.Index()].CJSTreeShakingBailout)
	require.True(t, isDeclarationIncluded(t, out, cjs.NamedExports["foo"].Ref))
	require.True(t, isDeclarationIncluded(t, out, cjs.NamedExports["bar"].Ref))
}

func TestLinkAmbiguousStarExport(t *testing.T) {
	out, msgs, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: |
    import {x} from './reexport'
    console.log(x)
  /reexport.js: |
    export * from './a'
    export * from './b'
  /a.js: export const x = 1
  /b.js: export const x = 2
`, config.DefaultOptions())
	require.True(t, errors.Is(err, ErrLinkFailed))
	require.Nil(t, out)
	require.Equal(t, []string{`Ambiguous import "x" has multiple matching exports`}, errorTexts(msgs))
}

func TestLinkAmbiguousStarExportIsHiddenFromNamespace(t *testing.T) {
	out, msgs, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: |
    import * as ns from './reexport'
    console.log(ns)
  /reexport.js: |
    export * from './a'
    export * from './b'
  /a.js: |
    export const x = 1
    export const y = 1
  /b.js: export const x = 2
`, config.DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, errorTexts(msgs))

	reexport := moduleByID(t, out, "reexport.js")
	require.Equal(t, []string{"y"}, out.Graph.Metas[reexport.Index()].SortedAndNonAmbiguousResolvedExports)
}

func TestLinkLocalExportShadowsStarExport(t *testing.T) {
	out, msgs, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: |
    import {x} from './reexport'
    console.log(x)
  /reexport.js: |
    export * from './a'
    export const x = 'local'
  /a.js: export const x = 1
`, config.DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, errorTexts(msgs))

	reexport := moduleByID(t, out, "reexport.js")
	ref := importRefFor(t, moduleByID(t, out, "entry.js"), "x")
	require.Equal(t, reexport.NamedExports["x"].Ref, ast.CanonicalRefFor(out.Graph.Symbols, ref))
}

func TestLinkMissingExport(t *testing.T) {
	out, msgs, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: |
    import {presnt} from './lib'
    console.log(presnt)
  /lib.js: export const present = 1
`, config.DefaultOptions())
	require.True(t, errors.Is(err, ErrLinkFailed))
	require.Nil(t, out)
	require.Equal(t, []string{`No matching export in "lib.js" for import "presnt"`}, errorTexts(msgs))

	var notes []string
	for _, msg := range msgs {
		for _, note := range msg.Notes {
			notes = append(notes, note.Text)
		}
	}
	require.Equal(t, []string{`Did you mean to import "present" instead?`}, notes)
}

func TestLinkShimMissingExport(t *testing.T) {
	options := config.DefaultOptions()
	options.ShimMissingExports = true
	out, msgs, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: |
    import {missing} from './lib'
    console.log(missing)
  /lib.js: export const present = 1
`, options)
	require.NoError(t, err)
	require.Empty(t, errorTexts(msgs))
	require.Len(t, msgsWithID(msgs, logger.MsgID_Link_ShimmedMissingExport), 1)

	lib := moduleByID(t, out, "lib.js")
	shimRef, ok := out.Graph.Metas[lib.Index()].ShimmedMissingExports["missing"]
	require.True(t, ok)
	require.Equal(t, "missing$$", out.Graph.Symbols.NameFor(shimRef))

	ref := importRefFor(t, moduleByID(t, out, "entry.js"), "missing")
	require.Equal(t, shimRef, ast.CanonicalRefFor(out.Graph.Symbols, ref))
	require.True(t, isDeclarationIncluded(t, out, shimRef))
}

func TestLinkCircularReExport(t *testing.T) {
	options := config.DefaultOptions()
	desc, err := scan.ParseDescription([]byte(`
entries: [/entry.js]
modules:
  /entry.js: |
    import {x} from './a'
    console.log(x)
  /a.js: export {x} from './b'
  /b.js: export {x} from './a'
`))
	require.NoError(t, err)
	log := logger.NewDeferLog(logger.LevelInfo, nil)
	result, err := scan.Scan(context.Background(), log, desc, &options, scan.NewDescriptionResolver(desc))
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	out, err := Link(context.Background(), &options, nil, log, zap.New(core),
		result.Modules, result.Symbols, result.Entries, result.RuntimeSourceIndex)
	require.NoError(t, err)

	// The import is left unbound without a diagnostic
	require.Empty(t, log.Done())
	entry := moduleByID(t, out, "entry.js")
	_, ok := out.Graph.Metas[entry.Index()].ImportsToBind[importRefFor(t, entry, "x")]
	require.False(t, ok)
	require.NotZero(t, logs.FilterMessage("import cycle").FilterField(zap.String("module", "entry.js")).Len())
}

func TestLinkMemberExpressions(t *testing.T) {
	out, msgs, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: |
    import * as lib from './lib'
    console.log(lib.present, lib.absent)
  /lib.js: |
    export const present = 1
    export const other = 2
`, config.DefaultOptions())
	require.NoError(t, err)

	undefinedImports := msgsWithID(msgs, logger.MsgID_Link_ImportIsUndefined)
	require.Len(t, undefinedImports, 1)
	require.Equal(t, `Import "absent" will always be undefined because there is no matching export in "lib.js"`,
		undefinedImports[0].Data.Text)

	entry := moduleByID(t, out, "entry.js")
	lib := moduleByID(t, out, "lib.js")
	resolutions := out.Graph.Metas[entry.Index()].ResolvedMemberExprRefs
	require.Len(t, resolutions, 2)

	var found, missing int
	for _, resolution := range resolutions {
		if resolution.IsMissing() {
			missing++
			require.Empty(t, resolution.Props)
		} else {
			found++
			require.Equal(t, lib.NamedExports["present"].Ref, resolution.Ref)
		}
	}
	require.Equal(t, 1, found)
	require.Equal(t, 1, missing)

	// Property accesses don't need the namespace object
	require.False(t, out.Graph.Metas[lib.Index()].StmtIncluded[0])
	require.True(t, isDeclarationIncluded(t, out, lib.NamedExports["present"].Ref))
	require.False(t, isDeclarationIncluded(t, out, lib.NamedExports["other"].Ref))
}

func TestLinkNamespaceUsedAsValue(t *testing.T) {
	out, _, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: |
    import * as lib from './lib'
    console.log(lib)
  /lib.js: |
    export const a = 1
    export const b = 2
`, config.DefaultOptions())
	require.NoError(t, err)

	lib := moduleByID(t, out, "lib.js")
	meta := &out.Graph.Metas[lib.Index()]
	require.True(t, meta.StmtIncluded[0])
	require.NotZero(t, meta.NamespaceIncludedReason&graph.NamespaceIncludedUnknown)
	require.True(t, isDeclarationIncluded(t, out, lib.NamedExports["a"].Ref))
	require.True(t, isDeclarationIncluded(t, out, lib.NamedExports["b"].Ref))
	require.True(t, meta.DependedRuntimeHelper.Has(runtime.HelperExport))
}

func TestLinkDeadDynamicImport(t *testing.T) {
	out, _, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: import('./dyn')
  /dyn.js: export const unused = 1
`, config.DefaultOptions())
	require.NoError(t, err)

	entry := moduleByID(t, out, "entry.js")
	dyn := moduleByID(t, out, "dyn.js")
	require.Len(t, out.Graph.Entries, 1)
	require.True(t, entry.ImportRecords[0].Flags.Has(ast.DeadDynamicImport))
	require.False(t, out.Graph.Metas[dyn.Index()].IsIncluded)
	require.NotContains(t, out.DynamicImportExportsUsage, dyn.Index())
}

func TestLinkLiveDynamicImport(t *testing.T) {
	out, _, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: import('./dyn').then(ns => console.log(ns))
  /dyn.js: |
    export const a = 1
    console.log('loaded')
`, config.DefaultOptions())
	require.NoError(t, err)

	dyn := moduleByID(t, out, "dyn.js")
	require.Len(t, out.Graph.Entries, 2)
	require.Equal(t, graph.EntryPointDynamicImport, out.Graph.Entries[1].Kind)
	require.Equal(t, DynamicImportUsesNamespace, out.DynamicImportExportsUsage[dyn.Index()])
	require.True(t, out.Graph.Metas[dyn.Index()].IsIncluded)
	require.True(t, isDeclarationIncluded(t, out, dyn.NamedExports["a"].Ref))
}

func TestLinkInlinedDynamicImport(t *testing.T) {
	options := config.DefaultOptions()
	options.InlineDynamicImports = true
	out, msgs, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: import('./dyn').then(ns => console.log(ns))
  /dyn.js: |
    import './leaf'
    export const a = 1
  /leaf.js: console.log('leaf')
`, options)
	require.NoError(t, err)
	require.Empty(t, errorTexts(msgs))
	require.Len(t, out.Graph.Entries, 1)

	entry := moduleByID(t, out, "entry.js")
	dyn := moduleByID(t, out, "dyn.js")
	leaf := moduleByID(t, out, "leaf.js")
	require.NotEqual(t, graph.ExecOrderUnreached, dyn.ExecOrder)
	require.NotEqual(t, graph.ExecOrderUnreached, leaf.ExecOrder)
	require.Less(t, leaf.ExecOrder, dyn.ExecOrder)
	require.Less(t, dyn.ExecOrder, entry.ExecOrder)
	require.True(t, out.Graph.Metas[dyn.Index()].IsIncluded)
	require.True(t, out.Graph.Metas[leaf.Index()].IsIncluded)
}

func TestLinkLazyExportJSON(t *testing.T) {
	out, msgs, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: |
    import {name} from './data.json'
    console.log(name)
  /data.json: '{"name": "bindery", "if": 1}'
`, config.DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, errorTexts(msgs))

	data := moduleByID(t, out, "data.json")
	require.Equal(t, graph.ExportsESM, data.ExportsKind)
	require.Contains(t, data.NamedExports, "name")
	require.Contains(t, data.NamedExports, "default")
	require.NotContains(t, data.NamedExports, "if")
	require.Equal(t, "data_default", out.Graph.Symbols.NameFor(data.NamedExports["default"].Ref))

	ref := importRefFor(t, moduleByID(t, out, "entry.js"), "name")
	require.Equal(t, data.NamedExports["name"].Ref, ast.CanonicalRefFor(out.Graph.Symbols, ref))
	require.True(t, isDeclarationIncluded(t, out, data.NamedExports["name"].Ref))
	require.False(t, isDeclarationIncluded(t, out, data.NamedExports["default"].Ref))
}

func TestLinkEntryExports(t *testing.T) {
	yaml := `
entries: [/entry.js]
modules:
  /entry.js: |
    export const a = 1
    export const b = 2
`

	out, _, err := linkForTest(t, yaml, config.DefaultOptions())
	require.NoError(t, err)
	entry := moduleByID(t, out, "entry.js")
	require.True(t, isDeclarationIncluded(t, out, entry.NamedExports["a"].Ref))
	require.True(t, isDeclarationIncluded(t, out, entry.NamedExports["b"].Ref))

	options := config.DefaultOptions()
	options.PreserveEntrySignatures = config.PreserveEntrySignaturesFalse
	out, _, err = linkForTest(t, yaml, options)
	require.NoError(t, err)
	entry = moduleByID(t, out, "entry.js")
	require.False(t, isDeclarationIncluded(t, out, entry.NamedExports["a"].Ref))
	require.False(t, isDeclarationIncluded(t, out, entry.NamedExports["b"].Ref))

	// CommonJS output exposes the namespace object instead
	options = config.DefaultOptions()
	options.Format = config.FormatCommonJS
	out, _, err = linkForTest(t, yaml, options)
	require.NoError(t, err)
	entry = moduleByID(t, out, "entry.js")
	require.True(t, out.Graph.Metas[entry.Index()].StmtIncluded[0])
	require.True(t, out.Graph.Metas[entry.Index()].DependedRuntimeHelper.Has(runtime.HelperToCommonJS))
}

func TestLinkExternalImports(t *testing.T) {
	out, msgs, err := linkForTest(t, `
entries: [/a.js, /b.js]
modules:
  /a.js: |
    import {readFile} from 'fs'
    readFile()
  /b.js: |
    import {readFile as read} from 'fs'
    read()
  fs: {external: true}
`, config.DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, errorTexts(msgs))

	fs := moduleByID(t, out, "fs")
	facade, ok := out.ExternalImportFacades[fs.Index()]["readFile"]
	require.True(t, ok)
	require.Equal(t, "readFile", out.Graph.Symbols.NameFor(facade))

	a := importRefFor(t, moduleByID(t, out, "a.js"), "readFile")
	b := importRefFor(t, moduleByID(t, out, "b.js"), "readFile")
	require.Equal(t, facade, ast.CanonicalRefFor(out.Graph.Symbols, a))
	require.Equal(t, facade, ast.CanonicalRefFor(out.Graph.Symbols, b))
	require.True(t, out.Graph.Metas[fs.Index()].IsIncluded)
}

func TestLinkCancelled(t *testing.T) {
	options := config.DefaultOptions()
	desc, err := scan.ParseDescription([]byte(`
entries: [/entry.js]
modules:
  /entry.js: console.log(1)
`))
	require.NoError(t, err)
	log := logger.NewDeferLog(logger.LevelInfo, nil)
	result, err := scan.Scan(context.Background(), log, desc, &options, scan.NewDescriptionResolver(desc))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Link(ctx, &options, nil, log, nil, result.Modules, result.Symbols, result.Entries, result.RuntimeSourceIndex)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStmtsJSON(t *testing.T) {
	out, _, err := linkForTest(t, `
entries: [/entry.js]
modules:
  /entry.js: |
    import {used} from './lib'
    console.log(used)
  /lib.js: export const used = 1
`, config.DefaultOptions())
	require.NoError(t, err)

	text := out.StmtsJSON(moduleByID(t, out, "lib.js").Index())
	require.True(t, strings.HasPrefix(text, `,"stmts":[{"label":"namespace","included":false`), text)
	require.Contains(t, text, `"code":"export const used = 1"`)
}
