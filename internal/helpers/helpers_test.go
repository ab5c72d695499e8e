package helpers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitSet(t *testing.T) {
	a := NewBitSet(10)
	a.SetBit(0)
	a.SetBit(9)
	require.True(t, a.HasBit(9))
	require.False(t, a.HasBit(1))
	require.Equal(t, []uint{0, 9}, a.Ones())
	require.Equal(t, 2, a.Count())
	require.Equal(t, "1000000001000000", a.Bits())

	b := NewBitSet(10)
	require.True(t, b.IsEmpty())
	b.SetBit(1)
	require.Equal(t, 3, a.SymmetricDifferenceCount(b))

	c := a.Clone()
	c.Union(b)
	require.Equal(t, []uint{0, 1, 9}, c.Ones())
	require.Equal(t, []uint{0, 9}, a.Ones())
	require.False(t, a.Equals(c))
	require.Equal(t, a.String(), a.Clone().String())
}

func TestTypoDetector(t *testing.T) {
	detector := MakeTypoDetector([]string{"default", "render", "abc"})

	corrected, ok := detector.MaybeCorrectTypo("rendr")
	require.True(t, ok)
	require.Equal(t, "render", corrected)

	corrected, ok = detector.MaybeCorrectTypo("renderr")
	require.True(t, ok)
	require.Equal(t, "render", corrected)

	corrected, ok = detector.MaybeCorrectTypo("defualt")
	require.True(t, ok)
	require.Equal(t, "default", corrected)

	corrected, ok = detector.MaybeCorrectTypo("abcc")
	require.True(t, ok)
	require.Equal(t, "abc", corrected)

	// Short names are too easy to confuse
	_, ok = detector.MaybeCorrectTypo("ab")
	require.False(t, ok)
	_, ok = detector.MaybeCorrectTypo("abd")
	require.False(t, ok)

	// An exact match isn't a typo
	_, ok = detector.MaybeCorrectTypo("render")
	require.False(t, ok)
}

func TestTimerEntries(t *testing.T) {
	timer := &Timer{}
	timer.Begin("link")
	timer.Begin("bind")
	timer.End("bind")
	timer.End("link")

	entries := timer.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "link", entries[0].Name)
	require.Equal(t, 0, entries[0].Depth)
	require.Equal(t, "bind", entries[1].Name)
	require.Equal(t, 1, entries[1].Depth)

	var nilTimer *Timer
	nilTimer.Begin("ignored")
	require.Nil(t, nilTimer.Entries())
}

func TestQuote(t *testing.T) {
	require.Equal(t, `"./a.js"`, QuoteForJSON("./a.js"))
	require.Equal(t, `"say \"hi\""`, QuoteForJSON(`say "hi"`))
	require.Equal(t, `"a\nb"`, QuoteForJSON("a\nb"))
	require.Equal(t, `"it's"`, QuoteForJSON("it's"))

	// These are valid in JSON strings but end a line in older JavaScript
	require.Equal(t, `"\u2028\u2029"`, QuoteForJSON("\u2028\u2029"))
	require.Equal(t, `"\u0001"`, QuoteForJSON("\x01"))
	require.Equal(t, "\"\U0001F600\"", QuoteForJSON("\U0001F600"))
}

func TestJoiner(t *testing.T) {
	j := Joiner{}
	j.AddString("var x = 1;")
	j.EnsureNewlineAtEnd()
	j.AddIndented("a();\n\nb();\n", "  ")
	require.Equal(t, "var x = 1;\n  a();\n\n  b();\n", j.Done())
	require.Equal(t, len("var x = 1;\n  a();\n\n  b();\n"), j.Length())
}

func TestHashBase36(t *testing.T) {
	require.Equal(t, HashBase36("vendor"), HashBase36("vendor"))
	require.NotEqual(t, HashBase36("vendor"), HashBase36("vendors"))
	for _, c := range HashBase36("vendor") {
		require.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z'))
	}
}

func TestForEachInParallel(t *testing.T) {
	results := make([]int, 100)
	indices := make([]int, len(results))
	for i := range indices {
		indices[i] = i
	}
	err := ForEachInParallel(indices, func(i int) error {
		results[i] = i * 2
		return nil
	})
	require.NoError(t, err)
	for i, result := range results {
		require.Equal(t, i*2, result)
	}

	errOdd := errors.New("odd")
	err = ForEachInParallel([]int{1, 2, 3}, func(i int) error {
		if i%2 == 1 {
			return errOdd
		}
		return nil
	})
	require.ErrorIs(t, err, errOdd)
}

func TestPrettyPrintStack(t *testing.T) {
	stack := "goroutine 1 [running]:\n" +
		"runtime/debug.Stack()\n" +
		"\t/usr/local/go/src/runtime/debug/stack.go:26 +0x5e\n" +
		"github.com/bindery-js/bindery/internal/helpers.PrettyPrintedStack()\n" +
		"\t/src/bindery/internal/helpers/stack.go:12 +0x1d\n" +
		"panic({0x6a2b40?, 0x81c5d0?})\n" +
		"\t/usr/local/go/src/runtime/panic.go:770 +0x132\n" +
		"github.com/bindery-js/bindery/internal/linker.(*linker).bindImports(0xc000120000)\n" +
		"\t/src/bindery/internal/linker/bind.go:88 +0x2a4\n"

	require.Equal(t, "linker.(*linker).bindImports (internal/linker/bind.go:88)", prettyPrintStack(stack))
	require.NotEmpty(t, PrettyPrintedStack())
}
