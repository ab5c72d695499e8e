package linker

// The linker takes the module graph produced by the scan phase and decides
// how the modules fit together. It doesn't generate any code itself. Each
// phase writes its results into the "LinkingMetadata" of the graph, which is
// what the chunker and the finalizer read:
//
//   1. Sort the modules into execution order
//   2. Decide the exports kind of each module (ESM or CommonJS)
//   3. Decide which modules must be wrapped in a closure
//   4. Turn lazy exports (i.e. JSON) into statements
//   5. Propagate side effects through the import graph
//   6. Bind imports to exports
//   7. Synthesize the statements that export things
//   8. Add the references implied by cross-module interop
//   9. Tree shaking
//  10. Compute the dependencies of each included module
//
// The phases run one after another. A few of them are data-parallel over the
// modules, in which case each goroutine only ever writes to the metadata of
// its own module.

import (
	"context"
	"errors"
	"sort"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/js_ast"
	"github.com/bindery-js/bindery/internal/logger"
	"github.com/bindery-js/bindery/internal/runtime"
	"go.uber.org/zap"
)

// Returned when a phase reported an error. The errors themselves are in the log.
var ErrLinkFailed = errors.New("link failed")

type linkerContext struct {
	options *config.Options
	timer   *helpers.Timer
	log     logger.Log
	zap     *zap.Logger
	graph   graph.LinkerGraph

	// This helps avoid an infinite loop when matching imports to exports
	cycleDetector []importTracker

	// Import symbols from external modules are merged into one symbol per
	// external module and import name when the output keeps ESM syntax
	externalImportFacades map[uint32]map[string]ast.Ref

	// Lazily-built typo detectors over the resolved exports of each module
	exportTypos map[uint32]*helpers.TypoDetector

	// The module whose namespace object each canonical namespace ref is
	namespaceOwners map[ast.Ref]uint32

	// The module each import record namespace ref points at
	recordNamespaceTargets map[ast.Ref]uint32

	usedSymbols               map[ast.Ref]bool
	dynamicImportExportsUsage map[uint32]DynamicImportUsage

	// We may need to refer to the "__esm" and/or "__commonJS" runtime symbols
	cjsRuntimeRef ast.Ref
	esmRuntimeRef ast.Ref
}

// What the importers of a dynamic entry do with the namespace object that
// "import()" resolves to
type DynamicImportUsage uint8

const (
	// Every "import()" of the module is a statement of its own:
	//
	//   import('./polyfill')
	//
	DynamicImportUnused DynamicImportUsage = iota

	// Something reads the result, so any export may be used
	DynamicImportUsesNamespace
)

type Output struct {
	Graph graph.LinkerGraph

	// Canonical refs of every symbol that tree shaking kept alive
	UsedSymbolRefs map[ast.Ref]bool

	// Keyed by the source index of each dynamic entry
	DynamicImportExportsUsage map[uint32]DynamicImportUsage

	// The symbols that stand for named imports from external modules when the
	// output keeps ESM syntax, keyed by external source index and import name
	ExternalImportFacades map[uint32]map[string]ast.Ref
}

func Link(
	ctx context.Context,
	options *config.Options,
	timer *helpers.Timer,
	log logger.Log,
	zlog *zap.Logger,
	modules []*graph.Module,
	symbols ast.SymbolMap,
	entries []graph.EntryPoint,
	runtimeSourceIndex uint32,
) (*Output, error) {
	timer.Begin("Link")
	defer timer.End("Link")

	if zlog == nil {
		zlog = zap.NewNop()
	}

	timer.Begin("Clone linker graph")
	c := linkerContext{
		options:                   options,
		timer:                     timer,
		log:                       log,
		zap:                       zlog,
		graph:                     graph.MakeLinkerGraph(modules, symbols, entries, runtimeSourceIndex),
		externalImportFacades:     make(map[uint32]map[string]ast.Ref),
		exportTypos:               make(map[uint32]*helpers.TypoDetector),
		usedSymbols:               make(map[ast.Ref]bool),
		dynamicImportExportsUsage: make(map[uint32]DynamicImportUsage),
	}
	c.initMetadata()
	c.sortEntries()
	timer.End("Clone linker graph")

	// Use a smaller version of these functions if we don't need profiler names
	if c.options.ProfilerNames {
		c.cjsRuntimeRef = c.runtimeRef(runtime.HelperCommonJS)
		c.esmRuntimeRef = c.runtimeRef(runtime.HelperESM)
	} else {
		c.cjsRuntimeRef = c.runtimeRef(runtime.HelperCommonJSMin)
		c.esmRuntimeRef = c.runtimeRef(runtime.HelperESMMin)
	}

	phases := []struct {
		name string
		run  func()
	}{
		{"Sort modules", c.sortModules},
		{"Determine exports kind", c.determineModuleExportsKind},
		{"Wrap modules", c.wrapModules},
		{"Generate lazy exports", c.generateLazyExports},
		{"Determine side effects", c.determineSideEffects},
		{"Bind imports and exports", c.bindImportsAndExports},
		{"Create exports", c.createExportsForModules},
		{"Reference needed symbols", c.referenceNeededSymbols},
		{"Tree shaking", c.includeStatements},
		{"Patch module dependencies", c.patchModuleDependencies},
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.timer.Begin(phase.name)
		phase.run()
		c.timer.End(phase.name)

		// Stop now if there were errors
		if c.log.HasErrors() {
			c.zap.Debug("link stopped after errors", zap.String("phase", phase.name))
			return nil, ErrLinkFailed
		}
	}

	// Make sure calls to "ast.CanonicalRefFor()" from parallel goroutines after
	// this are a single hop
	ast.FollowAllSymbols(c.graph.Symbols)

	c.zap.Debug("linked",
		zap.Int("modules", len(c.graph.SortedModules)),
		zap.Int("entries", len(c.graph.Entries)),
		zap.Int("usedSymbols", len(c.usedSymbols)))

	return &Output{
		Graph:                     c.graph,
		UsedSymbolRefs:            c.usedSymbols,
		DynamicImportExportsUsage: c.dynamicImportExportsUsage,
		ExternalImportFacades:     c.externalImportFacades,
	}, nil
}

func (c *linkerContext) initMetadata() {
	for i := range c.graph.Metas {
		module := c.graph.Modules[i]
		meta := &c.graph.Metas[i]
		meta.ResolvedExports = make(map[string]graph.ResolvedExport)
		meta.ImportsToBind = make(map[ast.Ref]graph.ImportData)
		meta.ResolvedMemberExprRefs = make(map[logger.Range]graph.MemberExprResolution)
		meta.WrapperRef = ast.InvalidRef
		meta.StarExportsFromExternalModules = module.StarExportsFromExternalModules(c.graph.Modules)
	}
}

// User-defined entries keep the order they were declared in. Everything else
// is sorted so the order doesn't depend on the order of discovery.
func (c *linkerContext) sortEntries() {
	entries := c.graph.Entries
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Kind == graph.EntryPointUserDefined || b.Kind == graph.EntryPointUserDefined {
			return a.Kind == graph.EntryPointUserDefined && b.Kind != graph.EntryPointUserDefined
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return c.graph.Modules[a.SourceIndex].StableID() < c.graph.Modules[b.SourceIndex].StableID()
	})
}

func (c *linkerContext) runtimeModule() *graph.Module {
	return c.graph.Modules[c.graph.RuntimeSourceIndex]
}

func (c *linkerContext) runtimeRef(helper runtime.Helper) ast.Ref {
	export, ok := c.runtimeModule().NamedExports[helper.Name()]
	if !ok {
		panic("Internal error: missing runtime helper " + helper.Name())
	}
	return export.Ref
}

func (c *linkerContext) isExternal(sourceIndex uint32) bool {
	return c.graph.Modules[sourceIndex].IsExternal()
}

func (c *linkerContext) stmtHasSideEffects(module *graph.Module, stmt *js_ast.StmtInfo) bool {
	switch stmt.SideEffect {
	case js_ast.StmtUnknown:
		return true
	case js_ast.StmtUnknownCommonJS:
		return !c.options.TreeShake.CommonJS || !module.Meta.Has(graph.SafelyTreeshakeCommonJS)
	}
	return false
}

// Runs "fn" for every sorted module in parallel
func (c *linkerContext) forEachModuleInParallel(fn func(sourceIndex uint32)) {
	helpers.ForEachInParallel(c.graph.SortedModules, func(sourceIndex uint32) error {
		fn(sourceIndex)
		return nil
	})
}
