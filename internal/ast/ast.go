package ast

// This file contains data structures that are shared by every stage of the
// link pipeline. The scanner produces them and the linker only ever reads the
// scanner's fields, writing its own results into separate metadata.

import (
	"github.com/bindery-js/bindery/internal/logger"
)

type ImportKind uint8

const (
	// An ES6 import or re-export statement
	ImportStmt ImportKind = iota

	// A call to "require()"
	ImportRequire

	// An "import()" expression with a string argument
	ImportDynamic

	// A "new URL('./path', import.meta.url)" expression
	ImportNewURL

	// A CSS "@import" rule
	ImportAt

	// A CSS "url(...)" token
	ImportURL

	// An entry point named in the description. This has no import record.
	ImportEntryPoint
)

func (kind ImportKind) StringForMetafile() string {
	switch kind {
	case ImportStmt:
		return "import-statement"
	case ImportRequire:
		return "require-call"
	case ImportDynamic:
		return "dynamic-import"
	case ImportNewURL:
		return "new-url"
	case ImportAt:
		return "import-rule"
	case ImportURL:
		return "url-token"
	case ImportEntryPoint:
		return "entry-point"
	default:
		panic("Internal error")
	}
}

// Both the scan description and the metafile refer to kinds by these names
func ImportKindFromString(text string) (ImportKind, bool) {
	switch text {
	case "import", "import-statement":
		return ImportStmt, true
	case "require", "require-call":
		return ImportRequire, true
	case "dynamic-import", "import()":
		return ImportDynamic, true
	case "new-url":
		return ImportNewURL, true
	case "at-import", "import-rule":
		return ImportAt, true
	case "url-import", "url-token":
		return ImportURL, true
	case "entry-point":
		return ImportEntryPoint, true
	}
	return 0, false
}

func (kind ImportKind) IsStatic() bool {
	return kind == ImportStmt || kind == ImportAt
}

func (kind ImportKind) IsFromCSS() bool {
	return kind == ImportAt || kind == ImportURL
}

type ImportRecordFlags uint16

const (
	// If true, this was originally written as a bare "import 'file'" statement
	// without any bindings
	IsPlainImport ImportRecordFlags = 1 << iota

	// If true, this is an "export * from 'path'" statement
	IsExportStar

	// If true, the value returned by this "require()" call is never used
	IsRequireUnused

	// Tell the finalizer to use the runtime "__require()" instead of "require()"
	CallRuntimeRequire

	// Set by tree shaking when the target of this "import()" turned out to be
	// dead. The expression is rewritten to an inert frozen empty namespace.
	DeadDynamicImport

	// If true, the import contains syntax like "* as ns". This is used to
	// determine whether an external namespace needs to be materialized.
	ContainsImportStar

	// If true, the import contains an import for the alias "default"
	ContainsDefaultAlias

	// If true, this "export * from 'path'" statement is evaluated at run-time by
	// calling the "__reExport()" helper function
	CallsRunTimeReExportFn

	// Tell the finalizer to wrap this call to "require()" in "__toESM(...)"
	WrapWithToESM

	// Tell the finalizer to wrap this ESM exports object in "__toCommonJS(...)"
	WrapWithToCJS

	// True for "try { require('x') } catch {}" and friends. Resolution failures
	// for these are not reported.
	HandlesImportErrors
)

func (flags ImportRecordFlags) Has(flag ImportRecordFlags) bool {
	return (flags & flag) != 0
}

var importRecordFlagNames = []struct {
	flag ImportRecordFlags
	name string
}{
	{IsPlainImport, "plain-import"},
	{IsExportStar, "export-star"},
	{IsRequireUnused, "require-unused"},
	{CallRuntimeRequire, "call-runtime-require"},
	{DeadDynamicImport, "dead-dynamic-import"},
	{ContainsImportStar, "import-star"},
	{ContainsDefaultAlias, "default-alias"},
	{CallsRunTimeReExportFn, "runtime-re-export"},
	{WrapWithToESM, "to-esm"},
	{WrapWithToCJS, "to-cjs"},
	{HandlesImportErrors, "handles-import-errors"},
}

func ImportRecordFlagFromString(text string) (ImportRecordFlags, bool) {
	for _, item := range importRecordFlagNames {
		if item.name == text {
			return item.flag, true
		}
	}
	return 0, false
}

func (flags ImportRecordFlags) Strings() []string {
	var names []string
	for _, item := range importRecordFlagNames {
		if flags.Has(item.flag) {
			names = append(names, item.name)
		}
	}
	return names
}

type ImportRecord struct {
	// The import specifier exactly as written in the source code
	Path string

	// The range of the path string for import statements. For "require()" and
	// "import()" this covers the whole call so it can be replaced.
	Range logger.Range

	// The resolved source index of the importee. Externals are modules too, so
	// an invalid index means the specifier could not be resolved at all.
	SourceIndex Index32

	// The symbol standing for "import * as ns" of this record. Every record has
	// one even if the syntax never mentions a namespace, because export stars
	// and CommonJS interop need something to bind to.
	NamespaceRef Ref

	Flags ImportRecordFlags
	Kind  ImportKind
}

type ImportRecordIdx = uint32

// This stores a 32-bit index where the zero value is an invalid index. This is
// a better alternative to storing the index as a pointer since that has the
// same properties but takes up more space and costs an extra pointer traversal.
type Index32 struct {
	flippedBits uint32
}

func MakeIndex32(index uint32) Index32 {
	return Index32{flippedBits: ^index}
}

func (i Index32) IsValid() bool {
	return i.flippedBits != 0
}

func (i Index32) GetIndex() uint32 {
	return ^i.flippedBits
}
