package ast

import "testing"

func assertEqual(t *testing.T, a interface{}, b interface{}) {
	t.Helper()
	if a != b {
		t.Fatalf("%v != %v", a, b)
	}
}

func TestIndex32(t *testing.T) {
	assertEqual(t, Index32{}.IsValid(), false)
	assertEqual(t, MakeIndex32(0).IsValid(), true)
	assertEqual(t, MakeIndex32(0).GetIndex(), uint32(0))
	assertEqual(t, MakeIndex32(123).GetIndex(), uint32(123))
}

func TestImportRecordFlagNames(t *testing.T) {
	flags := IsExportStar | DeadDynamicImport
	names := flags.Strings()
	assertEqual(t, len(names), 2)
	assertEqual(t, names[0], "export-star")
	assertEqual(t, names[1], "dead-dynamic-import")

	for _, name := range names {
		flag, ok := ImportRecordFlagFromString(name)
		assertEqual(t, ok, true)
		assertEqual(t, flags.Has(flag), true)
	}
	_, ok := ImportRecordFlagFromString("nope")
	assertEqual(t, ok, false)
}

func TestLinkSymbols(t *testing.T) {
	symbols := NewSymbolMap(3)
	a := symbols.NewSymbol(0, SymbolImport, "x")
	b := symbols.NewSymbol(1, SymbolImport, "x")
	c := symbols.NewSymbol(2, SymbolOther, "x")

	// Links flow from the importer to the exporter
	LinkSymbols(symbols, a, b)
	LinkSymbols(symbols, b, c)
	assertEqual(t, CanonicalRefFor(symbols, a), c)
	assertEqual(t, CanonicalRefFor(symbols, b), c)
	assertEqual(t, CanonicalRefFor(symbols, c), c)

	// Linking twice is a no-op
	LinkSymbols(symbols, a, c)
	assertEqual(t, CanonicalRefFor(symbols, a), c)

	// Path compression leaves every ref one hop away from the root
	FollowAllSymbols(symbols)
	assertEqual(t, symbols.Get(a).Link, c)
	assertEqual(t, symbols.Get(c).Link, InvalidRef)
}

func TestLinkSymbolsPropagatesPinnedNames(t *testing.T) {
	symbols := NewSymbolMap(2)
	a := symbols.NewSymbol(0, SymbolImport, "require")
	b := symbols.NewSymbol(1, SymbolOther, "require")
	symbols.Get(a).Flags |= MustNotBeRenamed
	LinkSymbols(symbols, a, b)
	assertEqual(t, symbols.Get(b).Flags.Has(MustNotBeRenamed), true)
}

func TestChunkIndex(t *testing.T) {
	var symbol Symbol
	assertEqual(t, symbol.HasChunk(), false)
	symbol.SetChunk(0)
	assertEqual(t, symbol.HasChunk(), true)
	assertEqual(t, symbol.Chunk(), uint32(0))
}
