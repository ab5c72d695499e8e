package js_ast

import (
	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/logger"
)

// This is the import clause item for a single local binding. The map from the
// local symbol to this struct lives on the module.
//
//   import {foo as bar} from 'path'   // Alias "foo", local "bar"
//   import * as ns from 'path'        // AliasIsStar, local "ns"
//   import def from 'path'            // Alias "default", local "def"
//
type NamedImport struct {
	Alias             string
	AliasLoc          logger.Range
	ImportRecordIndex uint32

	// If true, the alias refers to the entire export namespace object of a
	// module. This is no longer represented as an alias called "*" because of
	// the upcoming "Arbitrary module namespace identifier names" feature:
	// https://github.com/tc39/ecma262/pull/2154
	AliasIsStar bool

	// It's useful to flag exported imports because if they are in a TypeScript
	// file, we can't tell if they are a type or a value.
	IsExported bool
}

func (ni NamedImport) ImportedName() string {
	if ni.AliasIsStar {
		return "*"
	}
	return ni.Alias
}

type NamedExport struct {
	Ref      ast.Ref
	AliasLoc logger.Range
}

// This is a property access chain rooted at a symbol:
//
//   import * as ns from './foo'
//   ns.bar.baz
//
// The object is "ns" and the props are ["bar", "baz"]. Keeping the chain lets
// the linker see through namespace objects instead of keeping the whole
// namespace alive, and rewrite accesses to missing exports into "void 0".
type MemberExprRef struct {
	ObjectRef ast.Ref
	Props     []string

	// The span of the whole member expression. This is the key of the
	// resolution table so it must be unique within the module.
	Span logger.Range
}

// A statement references either a plain symbol or a member expression chain
type SymbolOrMemberExprRef struct {
	MemberExpr *MemberExprRef
	Ref        ast.Ref
}

func SymbolRef(ref ast.Ref) SymbolOrMemberExprRef {
	return SymbolOrMemberExprRef{Ref: ref}
}

func MemberExpr(member MemberExprRef) SymbolOrMemberExprRef {
	return SymbolOrMemberExprRef{Ref: member.ObjectRef, MemberExpr: &member}
}

func (r SymbolOrMemberExprRef) IsMemberExpr() bool {
	return r.MemberExpr != nil
}

type StmtSideEffect uint8

const (
	// The scanner proved evaluating this statement does nothing observable
	StmtPure StmtSideEffect = iota

	// The statement may do something observable
	StmtUnknown

	// The statement may do something observable but only through CommonJS
	// export assignments. This is treated as "StmtUnknown" unless CommonJS
	// tree shaking is enabled and the module is safe to tree shake.
	StmtUnknownCommonJS
)

type StmtKind uint8

const (
	StmtOther StmtKind = iota

	// import ... from 'path'
	StmtImportDecl

	// export {a, b} from 'path'
	StmtExportFrom

	// export * from 'path' or export * as ns from 'path'
	StmtExportStar

	// export {a, b}
	StmtExportClause

	// export const a = 1, export function f() {}, export class C {}
	StmtExportDecl

	// export default <expr>
	StmtExportDefaultExpr

	// export default function() {}
	StmtExportDefaultFunction

	// export default class {}
	StmtExportDefaultClass

	// function f() {} at the top level, hoisted out of ESM wrappers
	StmtFunctionDecl

	// var/let/const declarations at the top level
	StmtVarDecl
)

func (kind StmtKind) IsImportOrExportFrom() bool {
	return kind == StmtImportDecl || kind == StmtExportFrom || kind == StmtExportStar
}

func (kind StmtKind) IsExportDefault() bool {
	return kind == StmtExportDefaultExpr || kind == StmtExportDefaultFunction || kind == StmtExportDefaultClass
}

type StmtInfoMeta uint8

const (
	// The statement declares a function or class whose ".name" must survive
	// renaming when "keep_names" is enabled
	KeepNamesType StmtInfoMeta = 1 << iota

	// The statement is an "export * from" whose target has dynamic exports.
	// The finalizer emits a "__reExport()" call for it.
	ReExportDynamicExports

	// Top-level "this" is used in this statement
	HasTopLevelThis

	// "import.meta" is used in this statement
	HasImportMeta
)

func (meta StmtInfoMeta) Has(flag StmtInfoMeta) bool {
	return (meta & flag) != 0
}

// Each top-level statement of a module is summarized by one of these. The
// linker only ever works with these summaries. The source text is carried
// along so the finalizer can produce output without a printer.
type StmtInfo struct {
	DeclaredSymbols   []ast.Ref
	ReferencedSymbols []SymbolOrMemberExprRef

	// Indices into the module's import records used by this statement
	ImportRecordIndices []uint32

	Text  string
	Range logger.Range

	// Used in verbose metafile output only
	DebugLabel string

	SideEffect StmtSideEffect
	Kind       StmtKind
	Meta       StmtInfoMeta

	// If true, this statement is always subject to tree shaking even when
	// tree shaking is disabled for the module
	ForceTreeShaking bool
}

// Statement 0 of every module is reserved for the namespace object. The
// scanner leaves it empty and the linker fills it in.
const NamespaceStmtIndex = 0

type StmtInfos struct {
	infos                 []StmtInfo
	declaredStmtsBySymbol map[ast.Ref][]uint32
}

func NewStmtInfos() StmtInfos {
	return StmtInfos{
		infos:                 []StmtInfo{{DebugLabel: "namespace"}},
		declaredStmtsBySymbol: make(map[ast.Ref][]uint32),
	}
}

func (s *StmtInfos) Len() int {
	return len(s.infos)
}

func (s *StmtInfos) Get(index uint32) *StmtInfo {
	return &s.infos[index]
}

func (s *StmtInfos) All() []StmtInfo {
	return s.infos
}

func (s *StmtInfos) Add(info StmtInfo) uint32 {
	if s.declaredStmtsBySymbol == nil {
		s.declaredStmtsBySymbol = make(map[ast.Ref][]uint32)
	}
	index := uint32(len(s.infos))
	s.infos = append(s.infos, info)
	for _, ref := range info.DeclaredSymbols {
		s.declaredStmtsBySymbol[ref] = append(s.declaredStmtsBySymbol[ref], index)
	}
	return index
}

// Adds a declaration to an existing statement. Declaring a symbol twice in
// the same statement does nothing.
func (s *StmtInfos) AddDeclaredSymbol(index uint32, ref ast.Ref) {
	for _, existing := range s.infos[index].DeclaredSymbols {
		if existing == ref {
			return
		}
	}
	if s.declaredStmtsBySymbol == nil {
		s.declaredStmtsBySymbol = make(map[ast.Ref][]uint32)
	}
	s.infos[index].DeclaredSymbols = append(s.infos[index].DeclaredSymbols, ref)
	s.declaredStmtsBySymbol[ref] = append(s.declaredStmtsBySymbol[ref], index)
}

func (s *StmtInfos) ReplaceNamespaceStmtInfo(info StmtInfo) {
	if s.declaredStmtsBySymbol == nil {
		s.declaredStmtsBySymbol = make(map[ast.Ref][]uint32)
	}
	for _, ref := range s.infos[NamespaceStmtIndex].DeclaredSymbols {
		stmts := s.declaredStmtsBySymbol[ref][:0]
		for _, index := range s.declaredStmtsBySymbol[ref] {
			if index != NamespaceStmtIndex {
				stmts = append(stmts, index)
			}
		}
		s.declaredStmtsBySymbol[ref] = stmts
	}
	s.infos[NamespaceStmtIndex] = info
	for _, ref := range info.DeclaredSymbols {
		s.declaredStmtsBySymbol[ref] = append(s.declaredStmtsBySymbol[ref], NamespaceStmtIndex)
	}
}

func (s *StmtInfos) DeclaredStmtsBySymbol(ref ast.Ref) []uint32 {
	return s.declaredStmtsBySymbol[ref]
}

func (s *StmtInfos) Clone() StmtInfos {
	clone := StmtInfos{
		infos:                 make([]StmtInfo, len(s.infos)),
		declaredStmtsBySymbol: make(map[ast.Ref][]uint32, len(s.declaredStmtsBySymbol)),
	}
	for i, info := range s.infos {
		info.DeclaredSymbols = append([]ast.Ref{}, info.DeclaredSymbols...)
		info.ReferencedSymbols = append([]SymbolOrMemberExprRef{}, info.ReferencedSymbols...)
		info.ImportRecordIndices = append([]uint32{}, info.ImportRecordIndices...)
		clone.infos[i] = info
	}
	for ref, stmts := range s.declaredStmtsBySymbol {
		clone.declaredStmtsBySymbol[ref] = append([]uint32{}, stmts...)
	}
	return clone
}
