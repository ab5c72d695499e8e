package finalizer

import (
	"strings"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/js_ast"
	"github.com/bindery-js/bindery/internal/js_lexer"
	"github.com/bindery-js/bindery/internal/logger"
	"github.com/bindery-js/bindery/internal/runtime"
)

// Everything about a module that renaming and rendering both need. This is
// computed once per module, in parallel with the other modules of the chunk.
type preparedModule struct {
	module *graph.Module
	meta   *graph.LinkingMetadata

	// Top-level names of the module and the symbols they stand for
	scope map[string]ast.Ref

	// Tokens of each included statement that is re-emitted from its text
	tokens  map[uint32][]js_lexer.Token
	sources map[uint32]*logger.Source

	// Identifiers that don't resolve to a top-level symbol. These are globals
	// or nested variables, and no renamed symbol may take their name.
	unbound map[string]bool

	// The wrapper is only emitted when something kept its statement alive
	wrap graph.WrapKind
}

func (c *chunkContext) prepareModule(sourceIndex uint32) *preparedModule {
	module := c.graph.Modules[sourceIndex]
	meta := &c.graph.Metas[sourceIndex]
	p := &preparedModule{
		module:  module,
		meta:    meta,
		scope:   moduleScope(module, meta, c.graph.Symbols),
		tokens:  make(map[uint32][]js_lexer.Token),
		sources: make(map[uint32]*logger.Source),
		unbound: make(map[string]bool),
	}
	if meta.Wrap != graph.WrapNone && meta.WrapperStmtIndex.IsValid() && meta.StmtIncluded[meta.WrapperStmtIndex.GetIndex()] {
		p.wrap = meta.Wrap
	}

	for stmtIndex, stmt := range module.StmtInfos.All() {
		if !meta.StmtIncluded[stmtIndex] || !hasOwnText(meta, uint32(stmtIndex), &stmt) {
			continue
		}
		source := &logger.Source{
			Index:          sourceIndex,
			PrettyPath:     module.StableID(),
			IdentifierName: module.Source.IdentifierName,
			Contents:       stmt.Text,
		}
		tokens := js_lexer.Tokenize(c.log, source)
		if n := len(tokens); n > 0 && tokens[n-1].Kind == js_lexer.TEndOfFile {
			tokens = tokens[:n-1]
		}
		p.tokens[uint32(stmtIndex)] = tokens
		p.sources[uint32(stmtIndex)] = source
		forEachIdentifier(c.log, source, tokens, func(tokens []js_lexer.Token, i int, shorthand bool) {
			if _, ok := p.scope[tokens[i].Text]; !ok {
				p.unbound[tokens[i].Text] = true
			}
		})
	}
	return p
}

// The namespace, the wrapper and module syntax statements are generated
// from linking metadata instead of from their text
func hasOwnText(meta *graph.LinkingMetadata, stmtIndex uint32, stmt *js_ast.StmtInfo) bool {
	if stmtIndex == js_ast.NamespaceStmtIndex {
		return false
	}
	if meta.WrapperStmtIndex.IsValid() && meta.WrapperStmtIndex.GetIndex() == stmtIndex {
		return false
	}
	switch stmt.Kind {
	case js_ast.StmtImportDecl, js_ast.StmtExportFrom, js_ast.StmtExportStar, js_ast.StmtExportClause:
		return false
	}
	return true
}

// Maps each top-level name to its symbol. Generated symbols such as shims
// only get a name if no declaration in the source has it already.
func moduleScope(module *graph.Module, meta *graph.LinkingMetadata, symbols ast.SymbolMap) map[string]ast.Ref {
	scope := make(map[string]ast.Ref)
	var generated []ast.Ref
	for stmtIndex, stmt := range module.StmtInfos.All() {
		if uint32(stmtIndex) == js_ast.NamespaceStmtIndex ||
			(meta.WrapperStmtIndex.IsValid() && meta.WrapperStmtIndex.GetIndex() == uint32(stmtIndex)) ||
			stmt.Kind == js_ast.StmtExportFrom || stmt.Kind == js_ast.StmtExportStar {
			continue
		}
		for _, ref := range stmt.DeclaredSymbols {
			symbol := symbols.Get(ref)
			switch symbol.Kind {
			case ast.SymbolCommonJSExport:
				continue
			case ast.SymbolGenerated:
				generated = append(generated, ref)
				continue
			}
			if _, ok := scope[symbol.OriginalName]; !ok {
				scope[symbol.OriginalName] = ref
			}
		}
	}
	for _, ref := range generated {
		name := symbols.Get(ref).OriginalName
		if _, ok := scope[name]; !ok {
			scope[name] = ref
		}
	}
	return scope
}

type convertedStmt struct {
	// Empty when the statement is removed
	text string

	// Variables declared outside of an ESM wrapper and assigned inside it
	hoisted []ast.Ref

	// Function declarations are hoisted out of ESM wrappers entirely
	outside bool
}

func (c *chunkContext) renderModule(p *preparedModule) string {
	var hoisted []ast.Ref
	var outside, inside []string

	for stmtIndex, stmt := range p.module.StmtInfos.All() {
		if !p.meta.StmtIncluded[stmtIndex] {
			continue
		}
		if p.meta.WrapperStmtIndex.IsValid() && p.meta.WrapperStmtIndex.GetIndex() == uint32(stmtIndex) {
			continue
		}
		if stmtIndex == js_ast.NamespaceStmtIndex {
			if p.module.ExportsKind == graph.ExportsCommonJS || p.module.Index() == c.graph.RuntimeSourceIndex {
				continue
			}
			if text := c.renderNamespace(p); p.wrap == graph.WrapESM {
				outside = append(outside, text)
			} else {
				inside = append(inside, text)
			}
			continue
		}

		converted := c.convertStmt(p, uint32(stmtIndex), &stmt)
		hoisted = append(hoisted, converted.hoisted...)
		if converted.text == "" {
			continue
		}
		if converted.outside {
			outside = append(outside, converted.text)
		} else {
			inside = append(inside, converted.text)
		}
	}

	j := helpers.Joiner{}
	if p.wrap == graph.WrapESM && len(hoisted) > 0 {
		var names []string
		seen := make(map[string]bool)
		for _, ref := range hoisted {
			if name := c.r.NameForSymbol(ref); !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		j.AddString("var " + strings.Join(names, ", ") + ";\n")
	}
	for _, text := range outside {
		j.AddString(text)
		j.AddString("\n")
	}

	body := strings.Join(inside, "\n")
	if p.wrap == graph.WrapNone {
		j.AddString(body)
		j.EnsureNewlineAtEnd()
		return j.Done()
	}
	c.addWrapper(&j, p, body)
	return j.Done()
}

// Lazily-evaluated modules are wrapped in a closure:
//
//   var init_foo = __esmMin(() => {
//     foo = 123;
//   });
//
//   var require_bar = __commonJSMin((exports, module) => {
//     exports.bar = 123;
//   });
//
// With profiler names, the closure is a method named after the module so it
// shows up in stack traces.
func (c *chunkContext) addWrapper(j *helpers.Joiner, p *preparedModule, body string) {
	name := c.r.NameForSymbol(p.meta.WrapperRef)
	args := "()"
	helper := runtime.HelperESMMin
	if p.wrap == graph.WrapCJS {
		args = "(exports, module)"
		helper = runtime.HelperCommonJSMin
	}

	if c.options.ProfilerNames {
		helper = runtime.HelperESM
		if p.wrap == graph.WrapCJS {
			helper = runtime.HelperCommonJS
		}
		j.AddString("var " + name + " = " + c.helper(helper) + "({\n")
		j.AddString("  " + helpers.QuoteForJSON(p.module.StableID()) + args + " {\n")
		j.AddIndented(strings.TrimSuffix(body, "\n")+"\n", "    ")
		j.AddString("  }\n});\n")
		return
	}

	pifeOpen, pifeClose := "", ""
	if c.options.Optimization.PIFEForModuleWrappers {
		pifeOpen, pifeClose = "(", ")"
	}
	j.AddString("var " + name + " = " + c.helper(helper) + "(" + pifeOpen + args + " => {\n")
	if body != "" {
		j.AddIndented(strings.TrimSuffix(body, "\n")+"\n", "  ")
	}
	j.AddString("}" + pifeClose + ");\n")
}

// Statement 0 of an ESM module:
//
//   var foo_exports = {};
//   __export(foo_exports, {
//     bar: () => bar
//   });
//
// Only exports that survived tree shaking get a getter.
func (c *chunkContext) renderNamespace(p *preparedModule) string {
	ns := c.r.NameForSymbol(p.module.NamespaceRef)
	sb := strings.Builder{}
	sb.WriteString("var " + ns + " = {};")

	var getters []string
	for _, alias := range p.meta.SortedAndNonAmbiguousResolvedExports {
		ref := p.meta.ResolvedExports[alias].Ref
		canonical := ast.CanonicalRefFor(c.graph.Symbols, ref)
		if c.graph.Symbols.Get(canonical).NamespaceAlias == nil && !c.link.UsedSymbolRefs[canonical] {
			if _, ok := c.inlinedConst(canonical); !ok {
				continue
			}
		}
		value, _ := c.exprForRef(ref, true)
		getters = append(getters, "  "+propertyKey(alias)+": () => "+value)
	}
	if len(getters) > 0 {
		sb.WriteString("\n" + c.helper(runtime.HelperExport) + "(" + ns + ", {\n")
		sb.WriteString(strings.Join(getters, ",\n"))
		sb.WriteString("\n});")
	}

	// "export * from 'ext'" copies the properties of the external namespace
	if c.keepESM {
		for _, recordIndex := range p.meta.StarExportsFromExternalModules {
			importee := c.graph.Importee(&p.module.ImportRecords[recordIndex])
			other, _ := c.exprForRef(importee.NamespaceRef, false)
			sb.WriteString("\n" + c.helper(runtime.HelperReExport) + "(" + ns + ", " + other + ");")
		}
	}
	return sb.String()
}

func (c *chunkContext) convertStmt(p *preparedModule, stmtIndex uint32, stmt *js_ast.StmtInfo) convertedStmt {
	switch stmt.Kind {
	case js_ast.StmtImportDecl, js_ast.StmtExportFrom, js_ast.StmtExportStar:
		return c.convertImportStmt(p, stmt)
	case js_ast.StmtExportClause:
		return convertedStmt{}
	}

	tokens := p.tokens[stmtIndex]
	end := len(tokens)
	if end > 0 && tokens[end-1].Is(";") {
		end--
	}
	if end == 0 {
		return convertedStmt{}
	}

	edits := &editList{}
	c.identifierEdits(p, stmtIndex, stmt, edits)
	c.memberExprEdits(p, stmt, edits)
	c.recordEdits(p, stmt, edits)

	text := stmt.Text
	to := tokens[end-1].Range.End()
	wrapESM := p.wrap == graph.WrapESM
	i := 0
	var result convertedStmt

	switch stmt.Kind {
	case js_ast.StmtExportDecl:
		i = 1

	case js_ast.StmtExportDefaultExpr:
		// export default <expr>
		name := c.r.NameForSymbol(p.module.DefaultExportRef)
		value := edits.apply(text, tokens[2].Range.Loc.Start, to)
		if wrapESM {
			result.hoisted = []ast.Ref{p.module.DefaultExportRef}
			result.text = name + " = " + value + ";"
		} else {
			result.text = "var " + name + " = " + value + ";"
		}
		return result

	case js_ast.StmtExportDefaultFunction, js_ast.StmtExportDefaultClass:
		i = 2
		c.nameAnonymousDefault(p, tokens[:end], i, edits)
	}
	if i >= end {
		return convertedStmt{}
	}

	first := tokens[i]
	from := first.Range.Loc.Start
	switch {
	case first.IsIdentifier("var") || first.IsIdentifier("let") || first.IsIdentifier("const"):
		if wrapESM {
			return hoistVarDecl(stmt, tokens[i+1:end], edits)
		}
		result.text = edits.apply(text, from, to) + ";"

	case first.IsIdentifier("function") || (first.IsIdentifier("async") && i+1 < end && tokens[i+1].IsIdentifier("function")):
		result.text = edits.apply(text, from, to) + c.keepNameCall(p, stmt)
		result.outside = wrapESM

	case first.IsIdentifier("class"):
		body := edits.apply(text, from, to)
		if ref := declaredRef(p, stmt); wrapESM && ref != ast.InvalidRef {
			result.hoisted = []ast.Ref{ref}
			body = c.r.NameForSymbol(ref) + " = " + body + ";"
		}
		result.text = body + c.keepNameCall(p, stmt)

	default:
		result.text = edits.apply(text, from, to) + ";"
	}
	return result
}

// Inside an ESM wrapper, declarations turn into assignments to variables
// declared outside of it. Declarators without a value disappear:
//
//   let a, b = 1, {c} = d
//   // becomes
//   b = 1, {c} = d
//
func hoistVarDecl(stmt *js_ast.StmtInfo, tokens []js_lexer.Token, edits *editList) convertedStmt {
	result := convertedStmt{hoisted: append([]ast.Ref{}, stmt.DeclaredSymbols...)}

	var parts []string
	flush := func(decl []js_lexer.Token) {
		depth := 0
		for _, token := range decl {
			switch {
			case token.Is("(") || token.Is("[") || token.Is("{"):
				depth++
			case token.Is(")") || token.Is("]") || token.Is("}"):
				depth--
			case token.Is("=") && depth == 0:
				parts = append(parts, edits.apply(stmt.Text, decl[0].Range.Loc.Start, decl[len(decl)-1].Range.End()))
				return
			}
		}
	}

	start, depth := 0, 0
	for k, token := range tokens {
		switch {
		case token.Is("(") || token.Is("[") || token.Is("{"):
			depth++
		case token.Is(")") || token.Is("]") || token.Is("}"):
			depth--
		case token.Is(",") && depth == 0:
			flush(tokens[start:k])
			start = k + 1
		}
	}
	if start < len(tokens) {
		flush(tokens[start:])
	}

	if len(parts) > 0 {
		joined := strings.Join(parts, ", ")
		if strings.HasPrefix(joined, "{") {
			joined = "(" + joined + ")"
		}
		result.text = joined + ";"
	}
	return result
}

// "export default function() {}" needs a name once "export default" is gone
func (c *chunkContext) nameAnonymousDefault(p *preparedModule, tokens []js_lexer.Token, i int, edits *editList) {
	j := i
	if j < len(tokens) && tokens[j].IsIdentifier("async") {
		j++
	}
	j++
	if j < len(tokens) && tokens[j].Is("*") {
		j++
	}
	if j < len(tokens) && tokens[j].Kind == js_lexer.TIdentifier && !tokens[j].IsIdentifier("extends") {
		return
	}
	edits.insert(tokens[j-1].Range.End(), " "+c.r.NameForSymbol(p.module.DefaultExportRef))
}

func declaredRef(p *preparedModule, stmt *js_ast.StmtInfo) ast.Ref {
	switch stmt.Kind {
	case js_ast.StmtExportDefaultFunction, js_ast.StmtExportDefaultClass:
		return p.module.DefaultExportRef
	}
	if len(stmt.DeclaredSymbols) > 0 {
		return stmt.DeclaredSymbols[0]
	}
	return ast.InvalidRef
}

// Renaming a function or class changes its "name" property unless the
// original name is put back:
//
//   function foo$1() {}
//   __name(foo$1, "foo");
//
func (c *chunkContext) keepNameCall(p *preparedModule, stmt *js_ast.StmtInfo) string {
	if !c.options.KeepNames || !stmt.Meta.Has(js_ast.KeepNamesType) {
		return ""
	}
	ref := declaredRef(p, stmt)
	if ref == ast.InvalidRef {
		return ""
	}
	original := c.graph.Symbols.Get(ref).OriginalName
	if ref == p.module.DefaultExportRef && original == p.module.Source.IdentifierName+"_default" {
		original = "default"
	}
	name := c.r.NameForSymbol(ref)
	if name == original {
		return ""
	}
	return "\n" + c.helper(runtime.HelperName) + "(" + name + ", " + helpers.QuoteForJSON(original) + ");"
}

func (c *chunkContext) identifierEdits(p *preparedModule, stmtIndex uint32, stmt *js_ast.StmtInfo, edits *editList) {
	hasRange := stmt.Range.Len > 0
	base := stmt.Range.Loc.Start
	declares := func(ref ast.Ref) bool {
		for _, declared := range stmt.DeclaredSymbols {
			if declared == ref {
				return true
			}
		}
		return false
	}

	forEachIdentifier(c.log, p.sources[stmtIndex], p.tokens[stmtIndex], func(tokens []js_lexer.Token, i int, shorthand bool) {
		token := tokens[i]
		switch token.Text {
		case "this":
			if !hasRange {
				return
			}
			switch p.module.ThisExprReplace[logger.Loc{Start: base + token.Range.Loc.Start}] {
			case graph.ThisWithExports:
				edits.replaceRange(token.Range, "exports")
			case graph.ThisWithUndefined:
				edits.replaceRange(token.Range, "void 0")
			}
			return

		case "import":
			c.importMetaEdit(tokens, i, edits)
			return
		}

		ref, ok := p.scope[token.Text]
		if !ok {
			return
		}
		replacement, isMember := c.exprForRef(ref, !declares(ref))
		if shorthand {
			if replacement != token.Text {
				edits.replaceRange(token.Range, token.Text+": "+replacement)
			}
			return
		}
		if replacement == token.Text {
			return
		}
		if isMember && isCalledAt(stmt.Text, token.Range.End()) {
			replacement = "(0, " + replacement + ")"
		}
		edits.replaceRange(token.Range, replacement)
	})
}

// Node's CommonJS loader has no "import.meta" so its properties are
// rebuilt from the CommonJS globals
func (c *chunkContext) importMetaEdit(tokens []js_lexer.Token, i int, edits *editList) {
	if c.options.Platform != config.PlatformNode || c.options.Format != config.FormatCommonJS {
		return
	}
	if i+2 >= len(tokens) || !tokens[i+1].Is(".") || !tokens[i+2].IsIdentifier("meta") {
		return
	}

	const url = `require("url").pathToFileURL(__filename).href`
	end := tokens[i+2].Range.End()
	replacement := "{ url: " + url + ", dirname: __dirname, filename: __filename }"
	if i+4 < len(tokens) && tokens[i+3].Is(".") {
		switch tokens[i+4].Text {
		case "url":
			replacement = url
			end = tokens[i+4].Range.End()
		case "dirname":
			replacement = "__dirname"
			end = tokens[i+4].Range.End()
		case "filename":
			replacement = "__filename"
			end = tokens[i+4].Range.End()
		}
	}
	edits.replace(tokens[i].Range.Loc.Start, end, replacement)
}

// Member expressions through namespace objects were resolved by the linker:
//
//   import * as ns from './foo'
//   ns.bar.baz
//   // becomes
//   bar.baz
//
func (c *chunkContext) memberExprEdits(p *preparedModule, stmt *js_ast.StmtInfo, edits *editList) {
	if stmt.Range.Len == 0 {
		return
	}
	base := stmt.Range.Loc.Start
	for _, reference := range stmt.ReferencedSymbols {
		if !reference.IsMemberExpr() {
			continue
		}
		span := reference.MemberExpr.Span
		resolution, ok := p.meta.ResolvedMemberExprRefs[span]
		if !ok {
			continue
		}
		start, end := span.Loc.Start-base, span.End()-base
		if start < 0 || end > int32(len(stmt.Text)) {
			continue
		}

		var replacement string
		isMember := len(resolution.Props) > 0
		if resolution.IsMissing() {
			replacement = "void 0"
			if isMember {
				replacement = "(void 0)"
			}
		} else {
			var isAlias bool
			replacement, isAlias = c.exprForRef(resolution.Ref, true)
			isMember = isMember || isAlias
		}
		for _, prop := range resolution.Props {
			replacement += propertyAccess(prop)
		}
		if isMember && isCalledAt(stmt.Text, end) {
			replacement = "(0, " + replacement + ")"
		}
		edits.replace(start, end, replacement)
	}
}

func (c *chunkContext) recordEdits(p *preparedModule, stmt *js_ast.StmtInfo, edits *editList) {
	if stmt.Range.Len == 0 {
		return
	}
	base := stmt.Range.Loc.Start
	for _, recordIndex := range stmt.ImportRecordIndices {
		record := &p.module.ImportRecords[recordIndex]
		if replacement, ok := c.rewriteRecord(record); ok {
			edits.replace(record.Range.Loc.Start-base, record.Range.End()-base, replacement)
		}
	}
}

// Import statements never survive as written. Module syntax that the chunk
// keeps is generated for the whole chunk instead, and interop with wrapped
// and CommonJS modules turns into calls:
//
//   import {a} from './cjs'     // var import_cjs = __toESM(require_cjs());
//   import './esm'              // init_esm();
//   export * from './cjs'       // __reExport(foo_exports, __toESM(require_cjs()));
//
func (c *chunkContext) convertImportStmt(p *preparedModule, stmt *js_ast.StmtInfo) convertedStmt {
	if len(stmt.ImportRecordIndices) == 0 {
		return convertedStmt{}
	}
	record := &p.module.ImportRecords[stmt.ImportRecordIndices[0]]
	importee := c.graph.Importee(record)
	if importee == nil {
		return convertedStmt{}
	}
	importeeMeta := &c.graph.Metas[importee.Index()]
	isStar := record.Flags.Has(ast.IsExportStar)

	var result convertedStmt
	var parts []string
	declare := func(value string) {
		name := c.r.NameForSymbol(record.NamespaceRef)
		if p.wrap == graph.WrapESM {
			result.hoisted = append(result.hoisted, record.NamespaceRef)
			parts = append(parts, name+" = "+value)
		} else {
			parts = append(parts, "var "+name+" = "+value)
		}
	}
	reExport := func(value string) {
		ns, _ := c.exprForRef(p.module.NamespaceRef, false)
		parts = append(parts, c.helper(runtime.HelperReExport)+"("+ns+", "+value+")")
	}
	toESM := func(value string) string {
		if record.Flags.Has(ast.WrapWithToESM) {
			return c.helper(runtime.HelperToESM) + "(" + value + ")"
		}
		return value
	}

	switch {
	case importee.IsExternal():
		if c.keepESM {
			return result
		}
		call := "require(" + helpers.QuoteForJSON(record.Path) + ")"
		switch {
		case isStar:
			if record.Flags.Has(ast.CallsRunTimeReExportFn) {
				reExport(call)
			}
		case record.Flags.Has(ast.IsPlainImport):
			parts = append(parts, call)
		default:
			declare(toESM(call))
		}

	case importee.ExportsKind == graph.ExportsCommonJS:
		if importeeMeta.WrapperRef == ast.InvalidRef {
			return result
		}
		wrapper, _ := c.exprForRef(importeeMeta.WrapperRef, false)
		call := wrapper + "()"
		switch {
		case isStar:
			reExport(toESM(call))
		case record.Flags.Has(ast.IsPlainImport):
			parts = append(parts, call)
		default:
			declare(toESM(call))
		}

	case importeeMeta.Wrap == graph.WrapESM:
		wrapper, _ := c.exprForRef(importeeMeta.WrapperRef, false)
		parts = append(parts, wrapper+"()")
		if isStar && record.Flags.Has(ast.CallsRunTimeReExportFn) {
			other, _ := c.exprForRef(importee.NamespaceRef, false)
			reExport(other)
		}

	case isStar && record.Flags.Has(ast.CallsRunTimeReExportFn):
		other, _ := c.exprForRef(importee.NamespaceRef, false)
		reExport(other)
	}

	if len(parts) > 0 {
		result.text = strings.Join(parts, ";\n") + ";"
	}
	return result
}

func propertyAccess(name string) string {
	if js_ast.IsIdentifier(name) {
		return "." + name
	}
	return "[" + helpers.QuoteForJSON(name) + "]"
}

func propertyKey(name string) string {
	if js_ast.IsIdentifier(name) {
		return name
	}
	return helpers.QuoteForJSON(name)
}
