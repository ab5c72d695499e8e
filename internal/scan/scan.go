package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/js_ast"
	"github.com/bindery-js/bindery/internal/logger"
	"github.com/bindery-js/bindery/internal/runtime"
)

// Returned when the module graph can't be built. The details are in the log.
var ErrInvalidGraph = errors.New("invalid module graph")

type Result struct {
	Modules            []*graph.Module
	Symbols            ast.SymbolMap
	Entries            []graph.EntryPoint
	RuntimeSourceIndex uint32
}

type scanner struct {
	log      logger.Log
	desc     *Description
	options  *config.Options
	resolver Resolver

	modules []*graph.Module
	symbols [][]ast.Symbol
	byID    map[string]uint32
	entries []graph.EntryPoint
}

// Builds the module graph for a description. Modules are discovered breadth
// first from the entry points and each wave of newly discovered modules is
// scanned in parallel. Source indices are assigned in discovery order so the
// result is deterministic.
func Scan(ctx context.Context, log logger.Log, desc *Description, options *config.Options, resolver Resolver) (*Result, error) {
	s := &scanner{
		log:      log,
		desc:     desc,
		options:  options,
		resolver: resolver,
		byID:     make(map[string]uint32),
	}

	runtimeModule, runtimeSymbols := makeRuntimeModule()
	s.modules = append(s.modules, runtimeModule)
	s.symbols = append(s.symbols, runtimeSymbols)

	var wave []uint32
	for _, entry := range desc.Entries {
		result, ok := s.resolveEntry(entry.Module)
		if !ok {
			log.AddError(nil, logger.Range{}, fmt.Sprintf("Could not resolve entry point %q", entry.Module))
			continue
		}
		if result.External {
			log.AddError(nil, logger.Range{}, fmt.Sprintf("The entry point %q cannot be marked as external", entry.Module))
			continue
		}
		sourceIndex, isNew := s.addModule(result)
		if isNew {
			wave = append(wave, sourceIndex)
		}
		kind := graph.EntryPointUserDefined
		if entry.Emitted {
			kind = graph.EntryPointEmittedUserDefined
		}
		name := entry.Name
		if name == "" {
			_, name, _ = js_ast.PlatformIndependentPathDirBaseExt(s.modules[sourceIndex].StableID())
		}
		s.entries = append(s.entries, graph.EntryPoint{Name: name, SourceIndex: sourceIndex, Kind: kind})
	}

	for len(wave) > 0 {
		group, groupCtx := errgroup.WithContext(ctx)
		for _, sourceIndex := range wave {
			sourceIndex := sourceIndex
			group.Go(func() error {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				s.symbols[sourceIndex] = s.scanModule(s.modules[sourceIndex])
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}

		var next []uint32
		for _, sourceIndex := range wave {
			next = append(next, s.resolveImportRecords(s.modules[sourceIndex])...)
		}
		wave = next
	}

	if log.HasErrors() {
		return nil, ErrInvalidGraph
	}

	symbols := ast.NewSymbolMap(len(s.modules))
	copy(symbols.Outer, s.symbols)
	return &Result{
		Modules:            s.modules,
		Symbols:            symbols,
		Entries:            s.entries,
		RuntimeSourceIndex: runtimeModule.Index(),
	}, nil
}

func (s *scanner) resolveEntry(specifier string) (ResolveResult, bool) {
	if _, ok := s.desc.Modules[specifier]; ok {
		return s.resolver.Resolve("/", specifier, ast.ImportEntryPoint)
	}
	if !strings.HasPrefix(specifier, "/") && !strings.HasPrefix(specifier, ".") {
		if result, ok := s.resolver.Resolve("/", "./"+specifier, ast.ImportEntryPoint); ok {
			return result, true
		}
	}
	return s.resolver.Resolve("/", specifier, ast.ImportEntryPoint)
}

// Must only be called from the serial part of the scan
func (s *scanner) addModule(result ResolveResult) (uint32, bool) {
	key := result.ID
	if result.External {
		key = "external:" + key
	}
	if sourceIndex, ok := s.byID[key]; ok {
		return sourceIndex, false
	}

	sourceIndex := uint32(len(s.modules))
	stableID := strings.TrimPrefix(result.ID, "/")
	module := &graph.Module{
		Source: logger.Source{
			PrettyPath:     stableID,
			IdentifierName: js_ast.GenerateNonUniqueNameFromPath(stableID),
			Index:          sourceIndex,
		},
		ID: result.ID,
	}
	if result.External {
		module.Kind = graph.ModuleExternal
	} else {
		module.Source.Contents = s.desc.Modules[result.ID].Code
	}
	s.byID[key] = sourceIndex
	s.modules = append(s.modules, module)
	s.symbols = append(s.symbols, nil)
	return sourceIndex, true
}

func (s *scanner) scanModule(module *graph.Module) []ast.Symbol {
	var symbols []ast.Symbol
	spec := s.desc.Modules[module.ID]

	switch {
	case module.IsExternal():
		symbols = []ast.Symbol{{OriginalName: module.Source.IdentifierName, Link: ast.InvalidRef, Kind: ast.SymbolOther}}
		module.NamespaceRef = ast.Ref{OuterIndex: module.Index(), InnerIndex: 0}
		module.DefaultExportRef = ast.InvalidRef
		module.NamedImports = map[ast.Ref]js_ast.NamedImport{}
		module.NamedExports = map[string]js_ast.NamedExport{}
		module.StmtInfos = js_ast.NewStmtInfos()
		module.SideEffects = graph.SideEffects{Kind: graph.SideEffectsAnalyzed, Value: true}
		return symbols

	case spec.LazyExport || path.Ext(module.ID) == ".json":
		symbols = []ast.Symbol{{OriginalName: module.Source.IdentifierName + "_exports", Link: ast.InvalidRef, Kind: ast.SymbolOther}}
		module.NamespaceRef = ast.Ref{OuterIndex: module.Index(), InnerIndex: 0}
		module.DefaultExportRef = ast.InvalidRef
		module.NamedImports = map[ast.Ref]js_ast.NamedImport{}
		module.NamedExports = map[string]js_ast.NamedExport{}
		module.StmtInfos = js_ast.NewStmtInfos()
		module.StmtInfos.ReplaceNamespaceStmtInfo(js_ast.StmtInfo{
			DeclaredSymbols: []ast.Ref{module.NamespaceRef},
			DebugLabel:      "namespace",
		})
		module.LazyExport = parseLazyExport(s.log, &module.Source)
		module.Meta |= graph.HasLazyExport

	default:
		symbols = scanJS(s.log, module, s.options.TreeShake.ManualPureFunctions)
	}

	if kind, ok := graph.ExportsKindFromString(spec.ExportsKind); ok && spec.ExportsKind != "" {
		module.ExportsKind = kind
	}
	for _, text := range spec.Meta {
		if meta, ok := moduleMetaFromString(text); ok {
			module.Meta |= meta
		}
	}

	switch {
	case spec.NoTreeshake:
		module.SideEffects = graph.SideEffects{Kind: graph.SideEffectsNoTreeshake, Value: true}
	case spec.SideEffects != nil:
		module.SideEffects = graph.SideEffects{Kind: graph.SideEffectsUserDefined, Value: *spec.SideEffects}
	default:
		module.SideEffects = graph.SideEffects{Kind: graph.SideEffectsAnalyzed, Value: s.hasStmtSideEffects(module)}
	}
	return symbols
}

func (s *scanner) hasStmtSideEffects(module *graph.Module) bool {
	for _, stmt := range module.StmtInfos.All()[1:] {
		switch stmt.SideEffect {
		case js_ast.StmtUnknown:
			return true
		case js_ast.StmtUnknownCommonJS:
			if !s.options.TreeShake.CommonJS || !module.Meta.Has(graph.SafelyTreeshakeCommonJS) {
				return true
			}
		}
	}
	return false
}

// Resolves the import records of a scanned module and returns the source
// indices of modules seen for the first time. Must only be called from the
// serial part of the scan.
func (s *scanner) resolveImportRecords(module *graph.Module) []uint32 {
	var discovered []uint32
	for i := range module.ImportRecords {
		record := &module.ImportRecords[i]
		result, ok := s.resolver.Resolve(module.ID, record.Path, record.Kind)
		if !ok {
			s.log.AddError(&module.Source, record.Range, fmt.Sprintf("Could not resolve %q", record.Path))
			continue
		}
		sourceIndex, isNew := s.addModule(result)
		if isNew {
			discovered = append(discovered, sourceIndex)
		}
		record.SourceIndex = ast.MakeIndex32(sourceIndex)
		importee := s.modules[sourceIndex]

		if record.Kind == ast.ImportDynamic {
			importee.DynamicImporters = appendUnique(importee.DynamicImporters, module.Index())
			if !s.options.InlineDynamicImports && !importee.IsExternal() {
				s.addDynamicEntry(sourceIndex, graph.RelatedStmt{SourceIndex: module.Index(), StmtIndex: stmtIndexForRecord(module, uint32(i))})
			}
		} else {
			importee.Importers = appendUnique(importee.Importers, module.Index())
		}
	}
	return discovered
}

func (s *scanner) addDynamicEntry(sourceIndex uint32, related graph.RelatedStmt) {
	for i := range s.entries {
		entry := &s.entries[i]
		if entry.SourceIndex != sourceIndex {
			continue
		}
		if entry.Kind == graph.EntryPointDynamicImport {
			entry.RelatedStmtInfos = append(entry.RelatedStmtInfos, related)
		}
		return
	}
	_, name, _ := js_ast.PlatformIndependentPathDirBaseExt(s.modules[sourceIndex].StableID())
	s.entries = append(s.entries, graph.EntryPoint{
		Name:             name,
		RelatedStmtInfos: []graph.RelatedStmt{related},
		SourceIndex:      sourceIndex,
		Kind:             graph.EntryPointDynamicImport,
	})
}

func stmtIndexForRecord(module *graph.Module, recordIndex uint32) uint32 {
	for stmtIndex, stmt := range module.StmtInfos.All() {
		for _, index := range stmt.ImportRecordIndices {
			if index == recordIndex {
				return uint32(stmtIndex)
			}
		}
	}
	return js_ast.NamespaceStmtIndex
}

func appendUnique(list []uint32, value uint32) []uint32 {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}

func moduleMetaFromString(text string) (graph.ModuleMeta, bool) {
	switch text {
	case "execution-order-sensitive":
		return graph.ExecutionOrderSensitive, true
	case "safely-treeshake-commonjs":
		return graph.SafelyTreeshakeCommonJS, true
	case "has-eval":
		return graph.HasEval, true
	}
	return 0, false
}

// JSON is a subset of YAML, and the YAML decoder keeps the order of keys
// which becomes the order of the generated exports
func parseLazyExport(log logger.Log, source *logger.Source) *graph.LazyExport {
	var document yaml.Node
	if err := yaml.Unmarshal([]byte(source.Contents), &document); err != nil {
		log.AddError(source, logger.Range{}, fmt.Sprintf("Invalid JSON: %v", err))
		return &graph.LazyExport{Text: "null"}
	}
	if len(document.Content) == 0 {
		return &graph.LazyExport{Text: "null"}
	}
	root := document.Content[0]

	if root.Kind != yaml.MappingNode {
		return &graph.LazyExport{Text: jsonText(log, source, root)}
	}

	lazy := &graph.LazyExport{}
	sb := strings.Builder{}
	sb.WriteByte('{')
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		text := jsonText(log, source, root.Content[i+1])
		lazy.Fields = append(lazy.Fields, graph.LazyExportField{Key: key, Text: text})
		if i > 0 {
			sb.WriteByte(',')
		}
		quoted, _ := json.Marshal(key)
		sb.Write(quoted)
		sb.WriteByte(':')
		sb.WriteString(text)
	}
	sb.WriteByte('}')
	lazy.Text = sb.String()
	return lazy
}

func jsonText(log logger.Log, source *logger.Source, node *yaml.Node) string {
	var value interface{}
	if err := node.Decode(&value); err != nil {
		log.AddError(source, logger.Range{}, fmt.Sprintf("Invalid JSON: %v", err))
		return "null"
	}
	bytes, err := json.Marshal(value)
	if err != nil {
		log.AddError(source, logger.Range{}, fmt.Sprintf("Invalid JSON: %v", err))
		return "null"
	}
	return string(bytes)
}

// The runtime module declares each helper in its own statement. It's an ESM
// module that exports every helper, and none of its statements have side
// effects, so tree shaking only keeps the helpers something asked for.
func makeRuntimeModule() (*graph.Module, []ast.Symbol) {
	const sourceIndex = 0
	module := &graph.Module{
		Source: logger.Source{
			PrettyPath:     runtime.StableID,
			IdentifierName: "runtime",
			Index:          sourceIndex,
		},
		ID:               runtime.StableID,
		NamedImports:     map[ast.Ref]js_ast.NamedImport{},
		NamedExports:     map[string]js_ast.NamedExport{},
		StmtInfos:        js_ast.NewStmtInfos(),
		DefaultExportRef: ast.InvalidRef,
		ExportsKind:      graph.ExportsESM,
		SideEffects:      graph.SideEffects{Kind: graph.SideEffectsAnalyzed, Value: false},
	}

	symbols := []ast.Symbol{{OriginalName: "runtime_exports", Link: ast.InvalidRef, Kind: ast.SymbolOther}}
	module.NamespaceRef = ast.Ref{OuterIndex: sourceIndex, InnerIndex: 0}
	module.StmtInfos.ReplaceNamespaceStmtInfo(js_ast.StmtInfo{
		DeclaredSymbols: []ast.Ref{module.NamespaceRef},
		DebugLabel:      "namespace",
	})

	refs := make(map[string]ast.Ref, len(runtime.Stmts))
	for _, stmt := range runtime.Stmts {
		refs[stmt.Declares] = ast.Ref{OuterIndex: sourceIndex, InnerIndex: uint32(len(symbols))}
		symbols = append(symbols, ast.Symbol{OriginalName: stmt.Declares, Link: ast.InvalidRef, Kind: ast.SymbolOther})
	}

	sb := strings.Builder{}
	for _, stmt := range runtime.Stmts {
		ref := refs[stmt.Declares]
		info := js_ast.StmtInfo{
			DeclaredSymbols: []ast.Ref{ref},
			Text:            stmt.Code,
			Range:           logger.Range{Loc: logger.Loc{Start: int32(sb.Len())}, Len: int32(len(stmt.Code))},
			DebugLabel:      stmt.Declares,
			Kind:            js_ast.StmtVarDecl,
			SideEffect:      js_ast.StmtPure,
		}
		for _, name := range stmt.References {
			info.ReferencedSymbols = append(info.ReferencedSymbols, js_ast.SymbolRef(refs[name]))
		}
		module.StmtInfos.Add(info)
		module.NamedExports[stmt.Declares] = js_ast.NamedExport{Ref: ref}
		sb.WriteString(stmt.Code)
		sb.WriteByte('\n')
	}
	module.Source.Contents = sb.String()
	return module, symbols
}
