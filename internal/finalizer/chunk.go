package finalizer

import (
	"fmt"
	"strings"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/chunker"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/logger"
	"github.com/bindery-js/bindery/internal/renamer"
	"github.com/bindery-js/bindery/internal/runtime"
)

type chunkContext struct {
	*finalizerContext
	chunkIndex uint32
	chunk      *chunker.Chunk
	keepESM    bool
	log        logger.Log
	r          *renamer.NumberRenamer

	// The variable holding each imported chunk for formats without "import"
	chunkBindings map[uint32]string
}

func (f *finalizerContext) renderChunk(chunkIndex uint32) (RenderedChunk, error) {
	chunk := &f.chunks.Chunks[chunkIndex]
	c := &chunkContext{
		finalizerContext: f,
		chunkIndex:       chunkIndex,
		chunk:            chunk,
		keepESM:          f.options.Format.KeepESMImportExportSyntax(),
		log:              logger.NewDeferLog(logger.LevelSilent, nil),
	}

	var modules []uint32
	for _, sourceIndex := range chunk.Modules {
		if !f.graph.Modules[sourceIndex].IsExternal() {
			modules = append(modules, sourceIndex)
		}
	}
	indices := make([]int, len(modules))
	for i := range indices {
		indices[i] = i
	}

	prepared := make([]*preparedModule, len(modules))
	err := helpers.ForEachInParallel(indices, func(i int) (err error) {
		defer recoverRenderPanic(&err, f.graph.Modules[modules[i]].StableID())
		prepared[i] = c.prepareModule(modules[i])
		return nil
	})
	if err != nil {
		return RenderedChunk{}, err
	}

	c.renameSymbolsInChunk(prepared)

	codes := make([]string, len(modules))
	err = helpers.ForEachInParallel(indices, func(i int) (err error) {
		defer recoverRenderPanic(&err, f.graph.Modules[modules[i]].StableID())
		codes[i] = c.renderModule(prepared[i])
		return nil
	})
	if err != nil {
		return RenderedChunk{}, err
	}

	j := helpers.Joiner{}
	c.addImports(&j)
	for i, code := range codes {
		if strings.TrimSpace(code) == "" {
			continue
		}
		if j.Length() > 0 {
			j.EnsureNewlineAtEnd()
			j.AddString("\n")
		}
		if modules[i] != f.graph.RuntimeSourceIndex {
			j.AddString("// " + f.graph.Modules[modules[i]].StableID() + "\n")
		}
		j.AddString(code)
	}
	c.addEntryTail(&j)
	code := c.wrapSingleFile(j.Done())

	result := RenderedChunk{
		Name:     chunk.Name,
		FileName: f.fileNames[chunkIndex],
		Code:     code,
		IsEntry:  chunk.IsEntryPoint(),
	}
	for _, sourceIndex := range modules {
		result.Modules = append(result.Modules, f.graph.Modules[sourceIndex].StableID())
	}
	for _, export := range chunk.SortedExports {
		result.Exports = append(result.Exports, export.Alias)
	}
	for _, other := range chunk.CrossChunkImports {
		result.Imports = append(result.Imports, f.fileNames[other])
	}
	for _, other := range chunk.CrossChunkDynamicImports {
		result.DynamicImports = append(result.DynamicImports, f.fileNames[other])
	}
	return result, nil
}

func recoverRenderPanic(err *error, stableID string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: module %q: %v\n%s", ErrRenderFailed, stableID, r, helpers.PrettyPrintedStack())
	}
}

// Static imports of other chunks and of external modules:
//
//   import { x, y as y$1 } from "./shared.js";
//   import * as ext from "ext";
//
// Formats without "import" load other chunks with "require()" instead and
// access their exports as properties.
func (c *chunkContext) addImports(j *helpers.Joiner) {
	importedRefs := make(map[uint32][]ast.Ref)
	for _, imported := range c.chunk.ImportsFromOtherChunks {
		importedRefs[imported.ChunkIndex] = imported.Refs
	}

	for _, other := range c.chunk.CrossChunkImports {
		path := helpers.QuoteForJSON(c.importPath(other))
		refs := importedRefs[other]
		switch {
		case !c.keepESM && len(refs) > 0:
			j.AddString("var " + c.chunkBindings[other] + " = require(" + path + ");\n")
		case !c.keepESM:
			j.AddString("require(" + path + ");\n")
		case len(refs) > 0:
			exportNames := c.chunks.Chunks[other].ExportsToOtherChunks
			items := make([]string, 0, len(refs))
			for _, ref := range refs {
				items = append(items, importItem(exportNames[ref], c.r.NameForSymbol(ref)))
			}
			j.AddString("import { " + strings.Join(items, ", ") + " } from " + path + ";\n")
		default:
			j.AddString("import " + path + ";\n")
		}
	}

	for _, external := range c.chunk.ExternalImports {
		path := helpers.QuoteForJSON(c.graph.Modules[external.SourceIndex].ID)
		if external.NamespaceRef != ast.InvalidRef {
			j.AddString("import * as " + c.r.NameForSymbol(external.NamespaceRef) + " from " + path + ";\n")
		}
		if len(external.Names) > 0 {
			items := make([]string, 0, len(external.Names))
			for _, name := range external.Names {
				items = append(items, importItem(name.Alias, c.r.NameForSymbol(name.Ref)))
			}
			j.AddString("import { " + strings.Join(items, ", ") + " } from " + path + ";\n")
		}
		if external.NamespaceRef == ast.InvalidRef && len(external.Names) == 0 {
			j.AddString("import " + path + ";\n")
		}
	}
}

func importItem(alias string, local string) string {
	if alias == local {
		return alias
	}
	return propertyKey(alias) + " as " + local
}

// The end of an entry chunk runs the entry point if it's wrapped and exposes
// its exports. Every chunk also exposes the symbols other chunks import
// from it.
func (c *chunkContext) addEntryTail(j *helpers.Joiner) {
	var lines []string
	entryExports := make(map[string]bool)

	if c.chunk.Kind == chunker.ChunkEntryPoint {
		entryIndex := c.chunk.EntryModule.GetIndex()
		entry := c.graph.Modules[entryIndex]
		entryMeta := &c.graph.Metas[entryIndex]
		wrapper := ""
		if entryMeta.Wrap != graph.WrapNone && entryMeta.WrapperRef != ast.InvalidRef {
			wrapper, _ = c.exprForRef(entryMeta.WrapperRef, false)
		}

		switch {
		case entryMeta.Wrap == graph.WrapCJS && wrapper != "":
			switch c.options.Format {
			case config.FormatESModule, config.FormatApp:
				lines = append(lines, "export default "+wrapper+"();")
			case config.FormatCommonJS:
				lines = append(lines, "module.exports = "+wrapper+"();")
			case config.FormatUMD:
				lines = append(lines, "return "+wrapper+"();")
			default:
				lines = append(lines, wrapper+"();")
			}

		default:
			if entryMeta.Wrap == graph.WrapESM && wrapper != "" {
				lines = append(lines, wrapper+"();")
			}
			if !c.keepESM && c.exposesNamespace(entry, entryMeta) {
				ns, _ := c.exprForRef(entry.NamespaceRef, false)
				value := c.helper(runtime.HelperToCommonJS) + "(" + ns + ")"
				switch c.options.Format {
				case config.FormatCommonJS:
					lines = append(lines, "module.exports = "+value+";")
					for _, alias := range c.graph.CanonicalExports(entryIndex, true) {
						entryExports[alias] = true
					}
				case config.FormatUMD:
					lines = append(lines, "return "+value+";")
				}
			}
		}
	}

	if len(c.chunk.SortedExports) > 0 {
		if c.keepESM {
			items := make([]string, 0, len(c.chunk.SortedExports))
			for _, export := range c.chunk.SortedExports {
				items = append(items, "  "+importItem(export.Alias, c.r.NameForSymbol(export.Ref)))
			}
			lines = append(lines, "export {\n"+strings.Join(items, ",\n")+"\n};")
		} else if c.options.Format == config.FormatCommonJS {
			for _, export := range c.chunk.SortedExports {
				if entryExports[export.Alias] {
					continue
				}
				lines = append(lines, "Object.defineProperty(module.exports, "+helpers.QuoteForJSON(export.Alias)+
					", { enumerable: true, get: () => "+c.r.NameForSymbol(export.Ref)+" });")
			}
		}
	}

	if len(lines) > 0 {
		j.EnsureNewlineAtEnd()
		if j.Length() > 0 {
			j.AddString("\n")
		}
		j.AddString(strings.Join(lines, "\n"))
		j.AddString("\n")
	}
}

func (c *chunkContext) exposesNamespace(entry *graph.Module, entryMeta *graph.LinkingMetadata) bool {
	if entry.ExportsKind == graph.ExportsCommonJS {
		return false
	}
	for _, symbol := range entryMeta.ReferencedSymbolsByEntryPointChunk {
		if symbol.Ref == entry.NamespaceRef {
			return true
		}
	}
	return false
}

// Single-file formats run the whole chunk in a closure
func (c *chunkContext) wrapSingleFile(code string) string {
	j := helpers.Joiner{}
	switch c.options.Format {
	case config.FormatIIFE:
		j.AddString("(() => {\n")
		j.AddIndented(code, "  ")
		j.EnsureNewlineAtEnd()
		j.AddString("})();\n")

	case config.FormatUMD:
		j.AddString("(function(factory) {\n")
		j.AddString("  if (typeof module === \"object\" && typeof module.exports === \"object\") module.exports = factory();\n")
		j.AddString("  else if (typeof define === \"function\" && define.amd) define([], factory);\n")
		j.AddString("  else factory();\n")
		j.AddString("})(function() {\n")
		j.AddIndented(code, "  ")
		j.EnsureNewlineAtEnd()
		j.AddString("});\n")

	default:
		return code
	}
	return j.Done()
}

// Returns the expression that reads a symbol from the current chunk and
// whether that expression is a property access
func (c *chunkContext) exprForRef(ref ast.Ref, allowInline bool) (string, bool) {
	symbols := c.graph.Symbols
	canonical := ast.CanonicalRefFor(symbols, ref)
	symbol := symbols.Get(canonical)

	// "import {foo} from './cjs'" is a property of the CommonJS exports object
	if alias := symbol.NamespaceAlias; alias != nil {
		object, _ := c.exprForRef(alias.NamespaceRef, false)
		return object + propertyAccess(alias.Alias), true
	}

	if allowInline {
		if value, ok := c.inlinedConst(canonical); ok {
			return value, false
		}
	}

	if !c.keepESM && symbol.HasChunk() && symbol.Chunk() != c.chunkIndex {
		other := symbol.Chunk()
		if binding, ok := c.chunkBindings[other]; ok {
			if alias, ok := c.chunks.Chunks[other].ExportsToOtherChunks[canonical]; ok {
				return binding + propertyAccess(alias), true
			}
		}
	}

	return c.r.NameForSymbol(canonical), false
}

// Constants are replaced with their value. In smart mode that only happens
// when nothing kept the declaration alive anyway.
func (c *chunkContext) inlinedConst(ref ast.Ref) (string, bool) {
	if !c.options.Optimization.InlineConst {
		return "", false
	}
	symbol := c.graph.Symbols.Get(ref)
	if !symbol.Flags.Has(ast.IsConstValue) {
		return "", false
	}
	if c.options.Optimization.InlineConstSmartMode {
		owner := c.graph.Modules[ref.OuterIndex]
		meta := &c.graph.Metas[ref.OuterIndex]
		for _, stmtIndex := range owner.StmtInfos.DeclaredStmtsBySymbol(ref) {
			if meta.StmtIncluded[stmtIndex] {
				return "", false
			}
		}
	}
	return symbol.ConstValue, true
}

func (c *chunkContext) helper(helper runtime.Helper) string {
	name, _ := c.exprForRef(c.runtimeRef(helper), false)
	return name
}

// Rewrites "require()", "import()" and "new URL()" expressions
func (c *chunkContext) rewriteRecord(record *ast.ImportRecord) (string, bool) {
	importee := c.graph.Importee(record)

	switch record.Kind {
	case ast.ImportRequire:
		if importee == nil {
			return "", false
		}
		if importee.IsExternal() {
			if record.Flags.Has(ast.CallRuntimeRequire) {
				return c.helper(runtime.HelperRequire) + "(" + helpers.QuoteForJSON(record.Path) + ")", true
			}
			return "", false
		}
		meta := &c.graph.Metas[importee.Index()]
		if meta.WrapperRef == ast.InvalidRef {
			return "", false
		}
		wrapper, _ := c.exprForRef(meta.WrapperRef, false)
		if meta.Wrap == graph.WrapESM && record.Flags.Has(ast.WrapWithToCJS) {
			ns, _ := c.exprForRef(importee.NamespaceRef, false)
			return "(" + wrapper + "(), " + c.helper(runtime.HelperToCommonJS) + "(" + ns + "))", true
		}
		return wrapper + "()", true

	case ast.ImportDynamic:
		if record.Flags.Has(ast.DeadDynamicImport) {
			return "Promise.resolve().then(() => Object.freeze({}))", true
		}
		if importee == nil {
			return "", false
		}
		if importee.IsExternal() {
			if c.keepESM {
				return "", false
			}
			return "Promise.resolve().then(() => require(" + helpers.QuoteForJSON(record.Path) + "))", true
		}
		if c.options.InlineDynamicImports {
			return c.inlinedDynamicImport(record, importee), true
		}
		target, ok := c.chunks.EntryModuleToEntryChunk[importee.Index()]
		if !ok {
			return "", false
		}
		if target == c.chunkIndex {
			return c.inlinedDynamicImport(record, importee), true
		}

		path := helpers.QuoteForJSON(c.importPath(target))
		expr := "import(" + path + ")"
		if !c.keepESM {
			expr = "Promise.resolve().then(() => require(" + path + "))"
		}

		// The chunk was merged into another one, which exports the namespace
		// under some other name
		targetChunk := &c.chunks.Chunks[target]
		if !targetChunk.EntryModule.IsValid() || targetChunk.EntryModule.GetIndex() != importee.Index() {
			meta := &c.graph.Metas[importee.Index()]
			ref, call := importee.NamespaceRef, ""
			if meta.Wrap == graph.WrapCJS {
				ref, call = meta.WrapperRef, "()"
			}
			if alias, ok := targetChunk.ExportsToOtherChunks[ast.CanonicalRefFor(c.graph.Symbols, ref)]; ok {
				expr += ".then((m) => m" + propertyAccess(alias) + call + ")"
			}
		}
		return expr, true

	case ast.ImportNewURL:
		if importee == nil {
			return "", false
		}
		if chunkIndex, ok := c.chunks.ChunkForModule(importee.Index()); ok {
			return helpers.QuoteForJSON(c.importPath(chunkIndex)), true
		}
	}

	return "", false
}

// "import()" of a module in the same chunk resolves to its namespace object
// right away:
//
//   Promise.resolve().then(() => (init_foo(), foo_exports))
//
func (c *chunkContext) inlinedDynamicImport(record *ast.ImportRecord, importee *graph.Module) string {
	meta := &c.graph.Metas[importee.Index()]
	if meta.Wrap == graph.WrapCJS && meta.WrapperRef != ast.InvalidRef {
		wrapper, _ := c.exprForRef(meta.WrapperRef, false)
		value := wrapper + "()"
		if record.Flags.Has(ast.WrapWithToESM) {
			value = c.helper(runtime.HelperToESM) + "(" + value + ")"
		}
		return "Promise.resolve().then(() => " + value + ")"
	}
	ns, _ := c.exprForRef(importee.NamespaceRef, false)
	if meta.Wrap == graph.WrapESM && meta.WrapperRef != ast.InvalidRef {
		wrapper, _ := c.exprForRef(meta.WrapperRef, false)
		return "Promise.resolve().then(() => (" + wrapper + "(), " + ns + "))"
	}
	return "Promise.resolve().then(() => " + ns + ")"
}
