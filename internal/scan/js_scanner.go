package scan

// This is the upstream half of the link stage: it turns module source text
// into the summaries the linker works with. It does not build an AST. It
// splits a module into top-level statements and then only looks closely at
// module syntax, top-level declarations, identifiers and a few call shapes
// ("require()", "import()" and "new URL()"). Everything else about a
// statement is reduced to the identifiers it mentions and whether it might
// have side effects.

import (
	"fmt"
	"strings"

	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/js_ast"
	"github.com/bindery-js/bindery/internal/js_lexer"
	"github.com/bindery-js/bindery/internal/logger"
)

type exportClauseItem struct {
	local    js_lexer.Token
	alias    string
	aliasLoc logger.Range
}

type pendingStmt struct {
	info   js_ast.StmtInfo
	tokens []js_lexer.Token

	// Token index ranges that contain expressions. Identifiers in these are
	// candidate references and they decide the side effects of declarations.
	exprRanges [][2]int

	// Identifiers in these positions are declarations, not references
	bindingTokens map[int]bool

	// "export {a as b}" can refer to declarations that come later
	exportClause []exportClauseItem

	// If true, side effects are decided by the expression ranges
	checkExprSideEffects bool

	// If the statement is "exports.foo = <expr>", this is where "<expr>" starts
	commonJSExportValue int
}

type cjsUsage struct {
	isUsed      bool
	isDynamic   bool
	usesModule  bool
	usesExports bool
}

type jsScanner struct {
	log     logger.Log
	source  *logger.Source
	tokens  []js_lexer.Token
	symbols []ast.Symbol
	module  *graph.Module
	stmts   []*pendingStmt
	pure    config.PureFunctions

	// Top-level names visible to references in this module
	scope map[string]ast.Ref

	hasModuleSyntax bool
	cjs             cjsUsage

	// The first use of each, for warnings
	firstEval          js_lexer.Token
	firstCommonJSUsage js_lexer.Token
}

// Scans a single JavaScript module. The module's "Source" must already be
// filled in. The returned symbols belong to the module's source index.
func scanJS(log logger.Log, module *graph.Module, pure config.PureFunctions) []ast.Symbol {
	s := &jsScanner{
		log:    log,
		source: &module.Source,
		module: module,
		scope:  make(map[string]ast.Ref),
		pure:   pure,
	}
	s.tokens = js_lexer.Tokenize(log, s.source)

	module.NamedImports = make(map[ast.Ref]js_ast.NamedImport)
	module.NamedExports = make(map[string]js_ast.NamedExport)
	module.StmtInfos = js_ast.NewStmtInfos()
	module.NamespaceRef = s.newSymbol(ast.SymbolOther, module.Source.IdentifierName+"_exports")
	module.DefaultExportRef = ast.InvalidRef
	module.StmtInfos.ReplaceNamespaceStmtInfo(js_ast.StmtInfo{
		DeclaredSymbols: []ast.Ref{module.NamespaceRef},
		DebugLabel:      "namespace",
	})

	for _, r := range splitStatements(s.tokens) {
		s.parseStmt(s.tokens[r[0] : r[1]+1])
	}
	s.resolveExportClauses()
	s.resolveReferences()
	s.finish()
	return s.symbols
}

func (s *jsScanner) newSymbol(kind ast.SymbolKind, name string) ast.Ref {
	ref := ast.Ref{OuterIndex: s.module.Source.Index, InnerIndex: uint32(len(s.symbols))}
	s.symbols = append(s.symbols, ast.Symbol{OriginalName: name, Link: ast.InvalidRef, Kind: kind})
	return ref
}

func (s *jsScanner) declare(stmt *pendingStmt, kind ast.SymbolKind, token js_lexer.Token) ast.Ref {
	if ref, ok := s.scope[token.Text]; ok && kind != ast.SymbolImport {
		// "var" can be redeclared. Everything refers to the same symbol then.
		stmt.info.DeclaredSymbols = append(stmt.info.DeclaredSymbols, ref)
		return ref
	} else if ok {
		s.log.AddError(s.source, token.Range, fmt.Sprintf("The symbol %q has already been declared", token.Text))
		return ref
	}
	ref := s.newSymbol(kind, token.Text)
	s.scope[token.Text] = ref
	stmt.info.DeclaredSymbols = append(stmt.info.DeclaredSymbols, ref)
	return ref
}

func (s *jsScanner) addRecord(stmt *pendingStmt, kind ast.ImportKind, path string, r logger.Range, namespaceRef ast.Ref) uint32 {
	if namespaceRef == ast.InvalidRef {
		namespaceRef = s.newSymbol(ast.SymbolGenerated, "import_"+js_ast.GenerateNonUniqueNameFromPath(path))
	}
	index := uint32(len(s.module.ImportRecords))
	s.module.ImportRecords = append(s.module.ImportRecords, ast.ImportRecord{
		Path:         path,
		Range:        r,
		NamespaceRef: namespaceRef,
		Kind:         kind,
	})
	stmt.info.ImportRecordIndices = append(stmt.info.ImportRecordIndices, index)
	return index
}

// Splits the token stream into top-level statements. Statements end at a
// semicolon or at a line break where automatic semicolon insertion would
// apply, which is when the previous token can end an expression and the next
// one can't continue it.
func splitStatements(tokens []js_lexer.Token) [][2]int {
	var ranges [][2]int
	depth := 0
	start := -1
	for i, token := range tokens {
		if token.Kind == js_lexer.TEndOfFile {
			break
		}
		if start < 0 {
			if depth == 0 && token.Is(";") {
				continue
			}
			start = i
		} else if depth == 0 && token.HasNewlineBefore && canEndStatement(tokens[i-1]) && canStartStatement(tokens[i-1], token) {
			ranges = append(ranges, [2]int{start, i - 1})
			start = i
		}
		switch {
		case token.Is("(") || token.Is("[") || token.Is("{"):
			depth++
		case token.Is(")") || token.Is("]") || token.Is("}"):
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 && token.Is(";") {
			ranges = append(ranges, [2]int{start, i})
			start = -1
		}
	}
	if start >= 0 {
		end := len(tokens) - 1
		if tokens[end].Kind == js_lexer.TEndOfFile {
			end--
		}
		if end >= start {
			ranges = append(ranges, [2]int{start, end})
		}
	}
	return ranges
}

var continuationKeywords = map[string]bool{
	"typeof": true, "void": true, "delete": true, "new": true, "in": true,
	"of": true, "instanceof": true, "extends": true, "else": true, "case": true,
	"await": true, "yield": true, "async": true, "as": true, "from": true,
	"function": true, "class": true, "const": true, "let": true, "var": true,
	"import": true, "export": true, "default": true, "do": true,
}

func canEndStatement(prev js_lexer.Token) bool {
	switch prev.Kind {
	case js_lexer.TIdentifier:
		return !continuationKeywords[prev.Text]
	case js_lexer.TPunctuation:
		return prev.Text == ")" || prev.Text == "]" || prev.Text == "}" || prev.Text == "++" || prev.Text == "--"
	default:
		return true
	}
}

func canStartStatement(prev js_lexer.Token, next js_lexer.Token) bool {
	switch next.Kind {
	case js_lexer.TIdentifier:
		switch next.Text {
		case "in", "of", "instanceof", "as", "from":
			return false
		case "else", "catch", "finally":
			return !prev.Is("}")
		case "while":
			// The end of "do {} while (x)"
			return !prev.Is("}")
		}
		return true
	case js_lexer.TPunctuation:
		return next.Text == "{" || next.Text == "!" || next.Text == "~" || next.Text == "++" ||
			next.Text == "--" || next.Text == "@"
	default:
		return true
	}
}

func (s *jsScanner) parseStmt(tokens []js_lexer.Token) {
	first, last := tokens[0], tokens[len(tokens)-1]
	stmt := &pendingStmt{
		tokens:        tokens,
		bindingTokens: make(map[int]bool),
	}
	start, end := first.Range.Loc.Start, last.Range.End()
	stmt.info.Range = logger.Range{Loc: logger.Loc{Start: start}, Len: end - start}
	stmt.info.Text = s.source.Contents[start:end]
	s.stmts = append(s.stmts, stmt)

	switch {
	case first.IsIdentifier("import") && len(tokens) > 1 && !tokens[1].Is("(") && !tokens[1].Is("."):
		s.hasModuleSyntax = true
		stmt.info.Kind = js_ast.StmtImportDecl
		stmt.info.SideEffect = js_ast.StmtPure
		s.parseImport(stmt)
		return

	case first.IsIdentifier("export"):
		s.hasModuleSyntax = true
		s.parseExport(stmt)
		return

	case first.IsIdentifier("var") || first.IsIdentifier("let") || first.IsIdentifier("const"):
		stmt.info.Kind = js_ast.StmtVarDecl
		stmt.checkExprSideEffects = true
		names := s.parseDeclarators(stmt, 1, len(tokens))
		if first.IsIdentifier("const") && len(names) == 1 {
			s.maybeMarkConstValue(tokens[1:])
		}
		return

	case first.IsIdentifier("function") || (first.IsIdentifier("async") && len(tokens) > 1 && tokens[1].IsIdentifier("function")):
		stmt.info.Kind = js_ast.StmtFunctionDecl
		s.parseFunctionOrClass(stmt, 0, graph.ExportsNone, "")
		return

	case first.IsIdentifier("class"):
		stmt.info.Kind = js_ast.StmtOther
		s.parseFunctionOrClass(stmt, 0, graph.ExportsNone, "")
		return
	}

	// Anything else is an expression or a control flow statement
	stmt.info.Kind = js_ast.StmtOther
	stmt.info.SideEffect = js_ast.StmtUnknown
	stmt.exprRanges = append(stmt.exprRanges, [2]int{0, len(tokens)})
	s.scanCalls(stmt, 0, len(tokens))

	// "exports.foo = <expr>" and "module.exports.foo = <expr>"
	if value := commonJSExportAssignLength(tokens); value > 0 {
		stmt.commonJSExportValue = value
	}
}

// Records the value of "const x = <literal>" so uses of "x" can be inlined
func (s *jsScanner) maybeMarkConstValue(tokens []js_lexer.Token) {
	if len(tokens) > 3 && tokens[3].Is(";") {
		tokens = tokens[:3]
	}
	if len(tokens) != 3 || tokens[0].Kind != js_lexer.TIdentifier || !tokens[1].Is("=") {
		return
	}
	value := tokens[2]
	switch {
	case value.Kind == js_lexer.TNumericLiteral, value.Kind == js_lexer.TStringLiteral,
		value.IsIdentifier("true"), value.IsIdentifier("false"), value.IsIdentifier("null"):
	default:
		return
	}
	ref := s.scope[tokens[0].Text]
	symbol := &s.symbols[ref.InnerIndex]
	symbol.Flags |= ast.IsConstValue
	symbol.ConstValue = value.Text
}

// Returns the index of the first token of the right-hand side if these
// tokens are "exports.IDENT = ..." or "module.exports.IDENT = ..."
func commonJSExportAssignLength(tokens []js_lexer.Token) int {
	i := 0
	if len(tokens) > 2 && tokens[0].IsIdentifier("module") && tokens[1].Is(".") && tokens[2].IsIdentifier("exports") {
		i = 2
	} else if len(tokens) > 0 && tokens[0].IsIdentifier("exports") {
		i = 0
	} else {
		return 0
	}
	if i+3 < len(tokens) && tokens[i+1].Is(".") && tokens[i+2].Kind == js_lexer.TIdentifier && tokens[i+3].Is("=") {
		return i + 4
	}
	return 0
}

func (s *jsScanner) expectString(stmt *pendingStmt, i int) (js_lexer.Token, bool) {
	if i < len(stmt.tokens) && stmt.tokens[i].Kind == js_lexer.TStringLiteral {
		return stmt.tokens[i], true
	}
	r := stmt.info.Range
	if i < len(stmt.tokens) {
		r = stmt.tokens[i].Range
	}
	s.log.AddError(s.source, r, "Expected string")
	return js_lexer.Token{}, false
}

// Handles these forms:
//
//   import 'path'
//   import def from 'path'
//   import * as ns from 'path'
//   import {a, b as c, 'd-e' as f} from 'path'
//   import def, * as ns from 'path'
//   import def, {a} from 'path'
//
func (s *jsScanner) parseImport(stmt *pendingStmt) {
	tokens := stmt.tokens
	type item struct {
		local    js_lexer.Token
		alias    string
		aliasLoc logger.Range
		isStar   bool
	}
	var items []item
	i := 1

	if tokens[i].Kind == js_lexer.TStringLiteral {
		index := s.addRecord(stmt, ast.ImportStmt, tokens[i].StringValue, tokens[i].Range, ast.InvalidRef)
		s.module.ImportRecords[index].Flags |= ast.IsPlainImport
		return
	}

	if tokens[i].Kind == js_lexer.TIdentifier && !tokens[i].IsIdentifier("from") || (tokens[i].IsIdentifier("from") && i+1 < len(tokens) && tokens[i+1].IsIdentifier("from")) {
		items = append(items, item{local: tokens[i], alias: "default", aliasLoc: tokens[i].Range})
		stmt.bindingTokens[i] = true
		i++
		if i < len(tokens) && tokens[i].Is(",") {
			i++
		}
	}

	if i < len(tokens) && tokens[i].Is("*") {
		if i+2 >= len(tokens) || !tokens[i+1].IsIdentifier("as") || tokens[i+2].Kind != js_lexer.TIdentifier {
			s.log.AddError(s.source, tokens[i].Range, "Expected \"as\" after \"*\"")
			return
		}
		items = append(items, item{local: tokens[i+2], aliasLoc: tokens[i].Range, isStar: true})
		stmt.bindingTokens[i+2] = true
		i += 3
	} else if i < len(tokens) && tokens[i].Is("{") {
		i++
		for i < len(tokens) && !tokens[i].Is("}") {
			name := tokens[i]
			alias := name.Text
			if name.Kind == js_lexer.TStringLiteral {
				alias = name.StringValue
			}
			local := name
			localIndex := i
			if i+2 < len(tokens) && tokens[i+1].IsIdentifier("as") {
				local = tokens[i+2]
				localIndex = i + 2
				i += 2
			}
			if local.Kind != js_lexer.TIdentifier {
				s.log.AddError(s.source, local.Range, "Expected identifier")
				return
			}
			items = append(items, item{local: local, alias: alias, aliasLoc: name.Range})
			stmt.bindingTokens[localIndex] = true
			i++
			if i < len(tokens) && tokens[i].Is(",") {
				i++
			}
		}
		i++
	}

	if i >= len(tokens) || !tokens[i].IsIdentifier("from") {
		s.log.AddError(s.source, stmt.info.Range, "Expected \"from\"")
		return
	}
	path, ok := s.expectString(stmt, i+1)
	if !ok {
		return
	}

	// The namespace of a star import is the local itself
	namespaceRef := ast.InvalidRef
	for _, item := range items {
		if item.isStar {
			namespaceRef = s.declare(stmt, ast.SymbolImport, item.local)
		}
	}
	index := s.addRecord(stmt, ast.ImportStmt, path.StringValue, path.Range, namespaceRef)
	record := &s.module.ImportRecords[index]

	for _, item := range items {
		if item.isStar {
			record.Flags |= ast.ContainsImportStar
			s.module.NamedImports[namespaceRef] = js_ast.NamedImport{
				AliasLoc:          item.aliasLoc,
				ImportRecordIndex: index,
				AliasIsStar:       true,
			}
			continue
		}
		if item.alias == "default" {
			record.Flags |= ast.ContainsDefaultAlias
		}
		ref := s.declare(stmt, ast.SymbolImport, item.local)
		s.module.NamedImports[ref] = js_ast.NamedImport{
			Alias:             item.alias,
			AliasLoc:          item.aliasLoc,
			ImportRecordIndex: index,
		}
	}
}

// Handles every form of "export". Re-exports get their own import symbols,
// which are not visible to the rest of the module.
func (s *jsScanner) parseExport(stmt *pendingStmt) {
	tokens := stmt.tokens
	if len(tokens) < 2 {
		s.log.AddError(s.source, stmt.info.Range, "Unexpected end of export statement")
		return
	}
	second := tokens[1]

	switch {
	case second.Is("*"):
		// export * from 'path'
		// export * as ns from 'path'
		stmt.info.Kind = js_ast.StmtExportStar
		stmt.info.SideEffect = js_ast.StmtPure
		i := 2
		var alias js_lexer.Token
		if i+1 < len(tokens) && tokens[i].IsIdentifier("as") {
			alias = tokens[i+1]
			i += 2
		}
		if i >= len(tokens) || !tokens[i].IsIdentifier("from") {
			s.log.AddError(s.source, stmt.info.Range, "Expected \"from\"")
			return
		}
		path, ok := s.expectString(stmt, i+1)
		if !ok {
			return
		}
		if alias.Text == "" {
			index := s.addRecord(stmt, ast.ImportStmt, path.StringValue, path.Range, ast.InvalidRef)
			s.module.ImportRecords[index].Flags |= ast.IsExportStar
			return
		}
		name := alias.Text
		if alias.Kind == js_lexer.TStringLiteral {
			name = alias.StringValue
		}
		ref := s.newSymbol(ast.SymbolImport, js_ast.ForceValidIdentifier(name))
		stmt.info.DeclaredSymbols = append(stmt.info.DeclaredSymbols, ref)
		index := s.addRecord(stmt, ast.ImportStmt, path.StringValue, path.Range, ref)
		s.module.ImportRecords[index].Flags |= ast.ContainsImportStar
		s.module.NamedImports[ref] = js_ast.NamedImport{
			AliasLoc:          second.Range,
			ImportRecordIndex: index,
			AliasIsStar:       true,
			IsExported:        true,
		}
		s.addExport(name, alias.Range, ref)

	case second.Is("{"):
		// export {a, b as c}
		// export {a, b as c} from 'path'
		stmt.info.SideEffect = js_ast.StmtPure
		var items []exportClauseItem
		i := 2
		for i < len(tokens) && !tokens[i].Is("}") {
			local := tokens[i]
			alias, aliasLoc := local.Text, local.Range
			if local.Kind == js_lexer.TStringLiteral {
				alias = local.StringValue
			}
			if i+2 < len(tokens) && tokens[i+1].IsIdentifier("as") {
				aliasToken := tokens[i+2]
				alias, aliasLoc = aliasToken.Text, aliasToken.Range
				if aliasToken.Kind == js_lexer.TStringLiteral {
					alias = aliasToken.StringValue
				}
				i += 2
			}
			items = append(items, exportClauseItem{local: local, alias: alias, aliasLoc: aliasLoc})
			i++
			if i < len(tokens) && tokens[i].Is(",") {
				i++
			}
		}
		i++

		if i < len(tokens) && tokens[i].IsIdentifier("from") {
			stmt.info.Kind = js_ast.StmtExportFrom
			path, ok := s.expectString(stmt, i+1)
			if !ok {
				return
			}
			index := s.addRecord(stmt, ast.ImportStmt, path.StringValue, path.Range, ast.InvalidRef)
			for _, item := range items {
				imported := item.local.Text
				if item.local.Kind == js_lexer.TStringLiteral {
					imported = item.local.StringValue
				}
				if imported == "default" {
					s.module.ImportRecords[index].Flags |= ast.ContainsDefaultAlias
				}
				ref := s.newSymbol(ast.SymbolImport, js_ast.ForceValidIdentifier(imported))
				stmt.info.DeclaredSymbols = append(stmt.info.DeclaredSymbols, ref)
				s.module.NamedImports[ref] = js_ast.NamedImport{
					Alias:             imported,
					AliasLoc:          item.local.Range,
					ImportRecordIndex: index,
					IsExported:        true,
				}
				s.addExport(item.alias, item.aliasLoc, ref)
			}
			return
		}

		stmt.info.Kind = js_ast.StmtExportClause
		stmt.exportClause = items

	case second.IsIdentifier("default"):
		s.parseExportDefault(stmt)

	case second.IsIdentifier("var") || second.IsIdentifier("let") || second.IsIdentifier("const"):
		stmt.info.Kind = js_ast.StmtExportDecl
		stmt.checkExprSideEffects = true
		names := s.parseDeclarators(stmt, 2, len(tokens))
		for _, token := range names {
			s.addExport(token.Text, token.Range, s.scope[token.Text])
		}
		if second.IsIdentifier("const") && len(names) == 1 {
			s.maybeMarkConstValue(tokens[2:])
		}

	case second.IsIdentifier("function") || second.IsIdentifier("async") || second.IsIdentifier("class"):
		stmt.info.Kind = js_ast.StmtExportDecl
		s.parseFunctionOrClass(stmt, 1, graph.ExportsESM, "")

	default:
		s.log.AddError(s.source, second.Range, fmt.Sprintf("Unexpected %q after \"export\"", second.Text))
	}
}

func (s *jsScanner) parseExportDefault(stmt *pendingStmt) {
	tokens := stmt.tokens
	i := 2
	if i < len(tokens) && tokens[i].IsIdentifier("async") && i+1 < len(tokens) && tokens[i+1].IsIdentifier("function") {
		i++
	}
	if i < len(tokens) && (tokens[i].IsIdentifier("function") || tokens[i].IsIdentifier("class")) {
		if tokens[i].IsIdentifier("function") {
			stmt.info.Kind = js_ast.StmtExportDefaultFunction
		} else {
			stmt.info.Kind = js_ast.StmtExportDefaultClass
		}
		s.parseFunctionOrClass(stmt, 2, graph.ExportsESM, "default")
		return
	}

	// export default <expr>
	stmt.info.Kind = js_ast.StmtExportDefaultExpr
	stmt.checkExprSideEffects = true
	ref := s.newSymbol(ast.SymbolOther, s.module.Source.IdentifierName+"_default")
	stmt.info.DeclaredSymbols = append(stmt.info.DeclaredSymbols, ref)
	s.module.DefaultExportRef = ref
	s.addExport("default", tokens[1].Range, ref)
	stmt.exprRanges = append(stmt.exprRanges, [2]int{2, len(tokens)})
	s.scanCalls(stmt, 2, len(tokens))
}

// Parses "function f() {}", "async function f() {}", "function* f() {}" and
// "class C {}" starting at token "i". If "exportAs" is "default", the name
// is optional and the declaration becomes the default export.
func (s *jsScanner) parseFunctionOrClass(stmt *pendingStmt, i int, exports graph.ExportsKind, exportAs string) {
	tokens := stmt.tokens
	isClass := false
	if tokens[i].IsIdentifier("async") {
		i++
	}
	if i < len(tokens) && tokens[i].IsIdentifier("class") {
		isClass = true
	}
	i++
	if i < len(tokens) && tokens[i].Is("*") {
		i++
	}

	var ref ast.Ref
	if i < len(tokens) && tokens[i].Kind == js_lexer.TIdentifier && !tokens[i].IsIdentifier("extends") {
		ref = s.declare(stmt, ast.SymbolOther, tokens[i])
		stmt.bindingTokens[i] = true
		if exports == graph.ExportsESM && exportAs == "" {
			s.addExport(tokens[i].Text, tokens[i].Range, ref)
		}
		i++
	} else if exportAs == "default" {
		ref = s.newSymbol(ast.SymbolOther, s.module.Source.IdentifierName+"_default")
		stmt.info.DeclaredSymbols = append(stmt.info.DeclaredSymbols, ref)
	} else {
		s.log.AddError(s.source, stmt.info.Range, "Expected identifier")
		return
	}
	if !isClass {
		s.symbols[ref.InnerIndex].Flags |= ast.IsHoistedFunction
	}
	if exportAs == "default" {
		s.module.DefaultExportRef = ref
		s.addExport("default", tokens[1].Range, ref)
	}

	stmt.exprRanges = append(stmt.exprRanges, [2]int{i, len(tokens)})
	s.scanCalls(stmt, i, len(tokens))
	stmt.info.SideEffect = js_ast.StmtPure
	if isClass {
		// Decorators and static blocks run code when the class is evaluated
		for _, token := range tokens[i:] {
			if token.Is("@") || token.IsIdentifier("static") {
				stmt.info.SideEffect = js_ast.StmtUnknown
				break
			}
		}
		if stmt.info.SideEffect == js_ast.StmtPure {
			if end := matchingBrace(tokens, i); end > i && !isPureExpr(tokens[i:end], s.pure) {
				stmt.info.SideEffect = js_ast.StmtUnknown
			}
		}
	}
	stmt.info.Meta |= js_ast.KeepNamesType
}

// Returns the index of the first "{" at depth zero, which is the start of a
// class body after an optional "extends" clause
func matchingBrace(tokens []js_lexer.Token, i int) int {
	depth := 0
	for ; i < len(tokens); i++ {
		switch {
		case tokens[i].Is("(") || tokens[i].Is("["):
			depth++
		case tokens[i].Is(")") || tokens[i].Is("]"):
			depth--
		case tokens[i].Is("{") && depth == 0:
			return i
		}
	}
	return -1
}

func (s *jsScanner) addExport(alias string, aliasLoc logger.Range, ref ast.Ref) {
	if _, ok := s.module.NamedExports[alias]; ok {
		s.log.AddError(s.source, aliasLoc, fmt.Sprintf("Multiple exports with the same name %q", alias))
		return
	}
	s.module.NamedExports[alias] = js_ast.NamedExport{Ref: ref, AliasLoc: aliasLoc}
}

// Parses a declarator list such as "a = 1, {b, c: [d]} = e" between token
// indices "i" and "end". Returns the tokens of every bound name.
func (s *jsScanner) parseDeclarators(stmt *pendingStmt, i int, end int) []js_lexer.Token {
	tokens := stmt.tokens
	var names []js_lexer.Token
	if end > 0 && tokens[end-1].Is(";") {
		end--
	}

	bind := func(index int) {
		stmt.bindingTokens[index] = true
		s.declare(stmt, ast.SymbolOther, tokens[index])
		names = append(names, tokens[index])
	}

	// Skips an expression and returns the index of the token that stops it
	skipExpr := func(i int, stops ...string) int {
		start := i
		depth := 0
	loop:
		for ; i < end; i++ {
			token := tokens[i]
			if depth == 0 {
				for _, stop := range stops {
					if token.Is(stop) {
						break loop
					}
				}
			}
			switch {
			case token.Is("(") || token.Is("[") || token.Is("{"):
				depth++
			case token.Is(")") || token.Is("]") || token.Is("}"):
				depth--
			}
		}
		stmt.exprRanges = append(stmt.exprRanges, [2]int{start, i})
		s.scanCalls(stmt, start, i)
		return i
	}

	var walkPattern func(i int) int
	walkPattern = func(i int) int {
		if i >= end {
			return i
		}
		switch {
		case tokens[i].Kind == js_lexer.TIdentifier:
			bind(i)
			return i + 1

		case tokens[i].Is("["):
			i++
			for i < end && !tokens[i].Is("]") {
				if tokens[i].Is(",") {
					i++
					continue
				}
				if tokens[i].Is("...") {
					i++
				}
				i = walkPattern(i)
				if i < end && tokens[i].Is("=") {
					i = skipExpr(i+1, ",", "]")
				}
			}
			return i + 1

		case tokens[i].Is("{"):
			i++
			for i < end && !tokens[i].Is("}") {
				switch {
				case tokens[i].Is(","):
					i++
					continue
				case tokens[i].Is("..."):
					i = walkPattern(i + 1)
				case tokens[i].Is("["):
					// Computed key
					i = skipExpr(i+1, "]") + 1
					if i < end && tokens[i].Is(":") {
						i = walkPattern(i + 1)
					}
				case i+1 < end && tokens[i+1].Is(":"):
					i = walkPattern(i + 2)
				default:
					i = walkPattern(i)
				}
				if i < end && tokens[i].Is("=") {
					i = skipExpr(i+1, ",", "}")
				}
			}
			return i + 1
		}

		s.log.AddError(s.source, tokens[i].Range, fmt.Sprintf("Unexpected %q in declaration", tokens[i].Text))
		return end
	}

	for i < end {
		i = walkPattern(i)
		if i < end && tokens[i].Is("=") {
			i = skipExpr(i+1, ",")
		}
		if i < end && tokens[i].Is(",") {
			i++
			continue
		}
		if i < end {
			s.log.AddError(s.source, tokens[i].Range, fmt.Sprintf("Unexpected %q in declaration", tokens[i].Text))
		}
		break
	}
	return names
}

// Finds "require('path')", "import('path')" and "new URL('path',
// import.meta.url)" in the given token range and records them
func (s *jsScanner) scanCalls(stmt *pendingStmt, start int, end int) {
	tokens := stmt.tokens
	for i := start; i < end; i++ {
		token := tokens[i]

		if token.Kind == js_lexer.TTemplateLiteral {
			for _, r := range token.Substitutions {
				sub := &pendingStmt{tokens: js_lexer.TokenizeRange(s.log, s.source, r), bindingTokens: map[int]bool{}}
				s.scanCalls(sub, 0, len(sub.tokens))
				stmt.info.ImportRecordIndices = append(stmt.info.ImportRecordIndices, sub.info.ImportRecordIndices...)
				stmt.info.Meta |= sub.info.Meta
			}
			continue
		}

		if token.Kind != js_lexer.TIdentifier || (i > 0 && (tokens[i-1].Is(".") || tokens[i-1].Is("?."))) {
			continue
		}

		switch token.Text {
		case "require", "import":
			if i+3 < len(tokens) && tokens[i+1].Is("(") && tokens[i+2].Kind == js_lexer.TStringLiteral && tokens[i+3].Is(")") {
				kind := ast.ImportRequire
				if token.Text == "import" {
					kind = ast.ImportDynamic
				}
				r := logger.Range{Loc: token.Range.Loc, Len: tokens[i+3].Range.End() - token.Range.Loc.Start}
				index := s.addRecord(stmt, kind, tokens[i+2].StringValue, r, ast.InvalidRef)

				// A bare "require('x')" or "import('x')" statement doesn't use the
				// return value
				if i == 0 && (len(tokens) == 4 || (len(tokens) == 5 && tokens[4].Is(";"))) {
					s.module.ImportRecords[index].Flags |= ast.IsRequireUnused
				}
				i += 3
			} else if token.Text == "import" && i+2 < len(tokens) && tokens[i+1].Is(".") && tokens[i+2].IsIdentifier("meta") {
				stmt.info.Meta |= js_ast.HasImportMeta
			}

		case "new":
			if i+5 < len(tokens) && tokens[i+1].IsIdentifier("URL") && tokens[i+2].Is("(") &&
				tokens[i+3].Kind == js_lexer.TStringLiteral && tokens[i+4].Is(",") &&
				tokens[i+5].IsIdentifier("import") {
				s.addRecord(stmt, ast.ImportNewURL, tokens[i+3].StringValue, tokens[i+3].Range, ast.InvalidRef)
			}
		}
	}
}

// Every "export {a as b}" clause is resolved once all declarations are known
func (s *jsScanner) resolveExportClauses() {
	for _, stmt := range s.stmts {
		for _, item := range stmt.exportClause {
			ref, ok := s.scope[item.local.Text]
			if !ok || item.local.Kind != js_lexer.TIdentifier {
				s.log.AddError(s.source, item.local.Range, fmt.Sprintf("%q is not declared in this file", item.local.Text))
				continue
			}
			s.addExport(item.alias, item.aliasLoc, ref)
			stmt.info.ReferencedSymbols = append(stmt.info.ReferencedSymbols, js_ast.SymbolRef(ref))
		}
	}
}

func (s *jsScanner) resolveReferences() {
	for _, stmt := range s.stmts {
		seen := make(map[ast.Ref]bool)
		for _, r := range stmt.exprRanges {
			s.resolveReferencesInRange(stmt, stmt.tokens, r[0], r[1], seen, 0)
		}
	}
}

// Collects the references in a token range. "thisDepth" counts the function
// and class bodies around the range, since "this" inside those isn't the
// top-level "this".
func (s *jsScanner) resolveReferencesInRange(stmt *pendingStmt, tokens []js_lexer.Token, start int, end int, seen map[ast.Ref]bool, thisDepth int) {
	isTopLevelTokens := len(stmt.tokens) > 0 && len(tokens) > 0 && &tokens[0] == &stmt.tokens[0]

	type brace struct {
		isBody bool
	}
	var braces []brace
	var parenOpeners []int
	lastParenOpener := -1
	classPending := false
	bodyDepth := thisDepth

	for i := start; i < end; i++ {
		token := tokens[i]

		switch {
		case token.Is("("):
			parenOpeners = append(parenOpeners, i)
		case token.Is(")"):
			if len(parenOpeners) > 0 {
				lastParenOpener = parenOpeners[len(parenOpeners)-1]
				parenOpeners = parenOpeners[:len(parenOpeners)-1]
			}
		case token.Is("{"):
			isBody := false
			if classPending {
				isBody = true
				classPending = false
			} else if i > 0 && tokens[i-1].Is("=>") {
				isBody = true
			} else if i > 0 && tokens[i-1].Is(")") && lastParenOpener > 0 {
				before := tokens[lastParenOpener-1]
				isBody = !(before.IsIdentifier("if") || before.IsIdentifier("for") || before.IsIdentifier("while") ||
					before.IsIdentifier("switch") || before.IsIdentifier("catch") || before.IsIdentifier("with"))
			}
			braces = append(braces, brace{isBody: isBody})
			if isBody {
				bodyDepth++
			}
		case token.Is("}"):
			if len(braces) > 0 {
				if braces[len(braces)-1].isBody {
					bodyDepth--
				}
				braces = braces[:len(braces)-1]
			}
		case token.IsIdentifier("class"):
			classPending = true
		}

		if token.Kind == js_lexer.TTemplateLiteral {
			for _, r := range token.Substitutions {
				sub := js_lexer.TokenizeRange(s.log, s.source, r)
				s.resolveReferencesInRange(stmt, sub, 0, len(sub), seen, bodyDepth)
			}
			continue
		}

		if token.Kind != js_lexer.TIdentifier {
			continue
		}
		if isTopLevelTokens && stmt.bindingTokens[i] {
			continue
		}
		if i > 0 && (tokens[i-1].Is(".") || tokens[i-1].Is("?.")) {
			continue
		}

		// Object literal keys such as "{a: 1}"
		if i+1 < end && tokens[i+1].Is(":") && i > 0 && (tokens[i-1].Is("{") || tokens[i-1].Is(",")) {
			continue
		}

		if token.Text == "this" {
			if bodyDepth == 0 {
				stmt.info.Meta |= js_ast.HasTopLevelThis
				if s.module.ThisExprReplace == nil {
					s.module.ThisExprReplace = make(map[logger.Loc]graph.ThisReplacement)
				}
				s.module.ThisExprReplace[token.Range.Loc] = graph.ThisKeep
			}
			continue
		}

		if token.Text == "await" && bodyDepth == 0 {
			s.module.AstUsage |= graph.UsesTopLevelAwait
			continue
		}

		ref, ok := s.scope[token.Text]
		if !ok {
			s.noteGlobal(stmt, tokens, i, end)
			continue
		}

		// "ns.a.b" where "ns" is a star import is a member expression chain
		if namedImport, isImport := s.module.NamedImports[ref]; isImport && namedImport.AliasIsStar {
			var props []string
			j := i
			for j+2 < end && tokens[j+1].Is(".") && tokens[j+2].Kind == js_lexer.TIdentifier {
				props = append(props, tokens[j+2].Text)
				j += 2
			}
			if len(props) > 0 {
				span := logger.Range{Loc: token.Range.Loc, Len: tokens[j].Range.End() - token.Range.Loc.Start}
				stmt.info.ReferencedSymbols = append(stmt.info.ReferencedSymbols, js_ast.MemberExpr(js_ast.MemberExprRef{
					ObjectRef: ref,
					Props:     props,
					Span:      span,
				}))
				i = j
				continue
			}
		}

		if !seen[ref] {
			seen[ref] = true
			stmt.info.ReferencedSymbols = append(stmt.info.ReferencedSymbols, js_ast.SymbolRef(ref))
		}
	}
}

// Tracks how the module uses the CommonJS globals
func (s *jsScanner) noteGlobal(stmt *pendingStmt, tokens []js_lexer.Token, i int, end int) {
	token := tokens[i]
	next := func(offset int) js_lexer.Token {
		if i+offset < len(tokens) {
			return tokens[i+offset]
		}
		return js_lexer.Token{}
	}

	if (token.Text == "exports" || token.Text == "module") && s.firstCommonJSUsage.Text == "" {
		s.firstCommonJSUsage = token
	}

	switch token.Text {
	case "exports":
		s.module.AstUsage |= graph.UsesExportsRef
		s.cjs.isUsed = true
		s.cjs.usesExports = true
		if !next(1).Is(".") || next(2).Kind != js_lexer.TIdentifier {
			s.cjs.isDynamic = true
		} else if name := next(2).Text; name == "__esModule" || name == "default" {
			s.cjs.isDynamic = true
		}

	case "module":
		s.module.AstUsage |= graph.UsesModuleRef
		s.cjs.isUsed = true
		s.cjs.usesModule = true
		if !next(1).Is(".") || !next(2).IsIdentifier("exports") {
			s.cjs.isDynamic = true
		} else if next(3).Is(".") && next(4).Kind == js_lexer.TIdentifier {
			if name := next(4).Text; name == "__esModule" || name == "default" {
				s.cjs.isDynamic = true
			}
		} else if next(3).Is("=") && next(4).IsIdentifier("require") && next(5).Is("(") &&
			next(6).Kind == js_lexer.TStringLiteral && next(7).Is(")") && i == 0 {
			for _, index := range stmt.info.ImportRecordIndices {
				if s.module.ImportRecords[index].Kind == ast.ImportRequire && s.module.ImportRecords[index].Range.Loc == next(4).Range.Loc {
					s.module.CommonJSReExports = append(s.module.CommonJSReExports, index)
				}
			}
		} else {
			s.cjs.isDynamic = true
		}

	case "require":
		s.module.AstUsage |= graph.UsesRequire

	case "eval":
		if next(1).Is("(") {
			s.module.AstUsage |= graph.UsesEval
			s.module.Meta |= graph.HasEval
			if s.firstEval.Text == "" {
				s.firstEval = token
			}
		}

	}
}

func (s *jsScanner) finish() {
	module := s.module

	if module.ExportsKind == graph.ExportsNone {
		if s.hasModuleSyntax {
			module.ExportsKind = graph.ExportsESM
		} else if s.cjs.isUsed {
			module.ExportsKind = graph.ExportsCommonJS
		}
	}

	if module.ExportsKind == graph.ExportsESM && s.firstCommonJSUsage.Text != "" {
		s.log.AddID(logger.MsgID_Link_CommonJSVariableInESM, logger.Warning, s.source, s.firstCommonJSUsage.Range,
			fmt.Sprintf("The CommonJS %q variable is treated as a global variable in an ECMAScript module and may not work as expected",
				s.firstCommonJSUsage.Text))
	}
	if s.firstEval.Text != "" {
		s.log.AddID(logger.MsgID_Link_EvalUsage, logger.Warning, s.source, s.firstEval.Range,
			"Using direct eval with a bundler is not recommended and may cause problems")
	}

	if module.ExportsKind == graph.ExportsCommonJS && !s.cjs.isDynamic {
		module.Meta |= graph.StaticCommonJSExports
	}

	safelyTreeshakeCommonJS := module.ExportsKind == graph.ExportsCommonJS && !s.cjs.isDynamic
	for _, stmt := range s.stmts {
		if stmt.checkExprSideEffects {
			stmt.info.SideEffect = js_ast.StmtPure
			for _, r := range stmt.exprRanges {
				if !isPureExpr(stmt.tokens[r[0]:r[1]], s.pure) {
					stmt.info.SideEffect = js_ast.StmtUnknown
					break
				}
			}
		} else if stmt.commonJSExportValue > 0 && isPureExpr(stmt.tokens[stmt.commonJSExportValue:], s.pure) {
			stmt.info.SideEffect = js_ast.StmtUnknownCommonJS
		}
		if stmt.info.SideEffect == js_ast.StmtUnknown && usesCommonJSGlobals(stmt.tokens) {
			safelyTreeshakeCommonJS = false
		}
	}
	if safelyTreeshakeCommonJS {
		module.Meta |= graph.SafelyTreeshakeCommonJS
	}

	// Top-level "this" is "undefined" in ESM and "exports" in CommonJS
	for loc := range module.ThisExprReplace {
		if module.ExportsKind == graph.ExportsESM {
			module.ThisExprReplace[loc] = graph.ThisWithUndefined
		} else {
			module.ThisExprReplace[loc] = graph.ThisWithExports
		}
	}

	// Each "exports.foo = ..." property gets a symbol declared by every
	// statement that assigns it
	if module.ExportsKind == graph.ExportsCommonJS {
		for _, stmt := range s.stmts {
			if stmt.commonJSExportValue == 0 {
				continue
			}
			name := stmt.tokens[stmt.commonJSExportValue-2]
			export, ok := module.NamedExports[name.Text]
			if !ok {
				export = js_ast.NamedExport{Ref: s.newSymbol(ast.SymbolCommonJSExport, name.Text), AliasLoc: name.Range}
				module.NamedExports[name.Text] = export
			}
			stmt.info.DeclaredSymbols = append(stmt.info.DeclaredSymbols, export.Ref)
		}
	}

	for i, stmt := range s.stmts {
		stmt.info.DebugLabel = fmt.Sprintf("stmt %d", i+1)
		if stmt.info.Kind == js_ast.StmtImportDecl || stmt.info.Kind == js_ast.StmtExportFrom || stmt.info.Kind == js_ast.StmtExportStar {
			stmt.info.DebugLabel = strings.Fields(stmt.info.Text)[0]
		}
		module.StmtInfos.Add(stmt.info)
	}
}

func usesCommonJSGlobals(tokens []js_lexer.Token) bool {
	for i, token := range tokens {
		if (token.IsIdentifier("exports") || token.IsIdentifier("module")) && (i == 0 || !tokens[i-1].Is(".")) {
			return true
		}
	}
	return false
}

var impureKeywords = map[string]bool{
	"delete": true, "await": true, "yield": true, "throw": true, "import": true, "super": true,
}

var assignmentOperators = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true, "**=": true,
	"<<=": true, ">>=": true, ">>>=": true, "&=": true, "|=": true, "^=": true,
	"&&=": true, "||=": true, "??=": true, "++": true, "--": true,
}

// Returns true if evaluating this expression is known to have no side
// effects. Function bodies aren't evaluated, so they are skipped. Calls and
// "new" are side effects unless they are annotated with "/* @__PURE__ */".
// Calls to functions listed in "pure" are treated like annotated calls.
func isPureExpr(tokens []js_lexer.Token, pure config.PureFunctions) bool {
	pureCallDepth := -1
	depth := 0
	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		if token.HasPureCommentBefore && pureCallDepth < 0 {
			pureCallDepth = depth
		}

		switch token.Kind {
		case js_lexer.TIdentifier:
			if token.Text == "function" || token.Text == "class" {
				// Skip to the body and then over it
				if j := matchingBrace(tokens, i+1); j >= 0 {
					if token.Text == "class" && !isPureExpr(tokens[i+1:j], pure) {
						return false
					}
					i = skipBalanced(tokens, j) - 1
					continue
				}
				return false
			}
			if token.Text == "new" {
				if pureCallDepth == depth {
					continue
				}
				return false
			}
			if impureKeywords[token.Text] && (i == 0 || !tokens[i-1].Is(".")) {
				return false
			}
			if i+1 < len(tokens) && tokens[i+1].Kind == js_lexer.TTemplateLiteral {
				// Tagged template
				return false
			}

		case js_lexer.TTemplateLiteral:
			if len(token.Substitutions) > 0 {
				// Substitutions are checked by the caller when needed. Being
				// conservative here keeps this simple.
				return false
			}

		case js_lexer.TPunctuation:
			switch {
			case assignmentOperators[token.Text]:
				return false

			case token.Text == "(":
				end := skipBalanced(tokens, i)
				isCall := i > 0 && (tokens[i-1].Kind == js_lexer.TIdentifier && !js_ast.Keywords[tokens[i-1].Text] ||
					tokens[i-1].Is(")") || tokens[i-1].Is("]") || tokens[i-1].Is("?."))
				if end < len(tokens) && tokens[end].Is("=>") {
					// Arrow function parameters
					i = end - 1
					continue
				}
				if isCall && end < len(tokens) && tokens[end].Is("{") {
					// A method definition in an object literal
					i = skipBalanced(tokens, end) - 1
					continue
				}
				if isCall {
					if pureCallDepth != depth && !pure.IsPure(calleePath(tokens, i)) {
						return false
					}
					pureCallDepth = -1
				}
				depth++

			case token.Text == "[" || token.Text == "{":
				depth++

			case token.Text == ")" || token.Text == "]" || token.Text == "}":
				depth--

			case token.Text == "=>":
				if i+1 < len(tokens) && tokens[i+1].Is("{") {
					i = skipBalanced(tokens, i+1) - 1
				} else {
					i = skipArrowBody(tokens, i+1) - 1
				}
			}
		}
	}
	return true
}

// Returns the dotted name of the callee of the call whose "(" is at "i", or
// nil if the callee isn't a plain member chain:
//
//   styled.div(...)   => ["styled", "div"]
//   a?.b(...)         => ["a", "b"]
//   f()(...)          => nil
//   g().h(...)        => nil
//
func calleePath(tokens []js_lexer.Token, i int) []string {
	j := i - 1
	if j < 0 || tokens[j].Kind != js_lexer.TIdentifier {
		return nil
	}
	for j >= 2 && (tokens[j-1].Is(".") || tokens[j-1].Is("?.")) && tokens[j-2].Kind == js_lexer.TIdentifier {
		j -= 2
	}
	if j > 0 && (tokens[j-1].Is(".") || tokens[j-1].Is("?.")) {
		return nil
	}
	path := make([]string, 0, (i-j+1)/2)
	for k := j; k < i; k += 2 {
		path = append(path, tokens[k].Text)
	}
	return path
}

// Returns the index after the bracket that closes the one at "i"
func skipBalanced(tokens []js_lexer.Token, i int) int {
	depth := 0
	for ; i < len(tokens); i++ {
		switch {
		case tokens[i].Is("(") || tokens[i].Is("[") || tokens[i].Is("{"):
			depth++
		case tokens[i].Is(")") || tokens[i].Is("]") || tokens[i].Is("}"):
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(tokens)
}

// Returns the index of the token that ends an arrow function's expression body
func skipArrowBody(tokens []js_lexer.Token, i int) int {
	depth := 0
	for ; i < len(tokens); i++ {
		switch {
		case tokens[i].Is("(") || tokens[i].Is("[") || tokens[i].Is("{"):
			depth++
		case tokens[i].Is(")") || tokens[i].Is("]") || tokens[i].Is("}"):
			if depth == 0 {
				return i
			}
			depth--
		case tokens[i].Is(",") && depth == 0:
			return i
		}
	}
	return len(tokens)
}
