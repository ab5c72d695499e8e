//go:build go1.18

package js_lexer

import (
	"testing"

	"github.com/bindery-js/bindery/internal/logger"
	"github.com/bindery-js/bindery/internal/test"
)

func FuzzTokenize(f *testing.F) {
	f.Add([]byte(`var x = 1;`))
	f.Add([]byte(`/regex/gimsuvy`))
	f.Add([]byte(`/(?<=x)(?<!y)[^]*/g`))
	f.Add([]byte("const x = `hello ${world}`"))
	f.Add([]byte("const x = `${`nested`}`"))
	f.Add([]byte(`'A\u{42}\x43\n\t'`))
	f.Add([]byte(`0x1F + 0o17 + 0b1010`))
	f.Add([]byte(`123_456_789n`))
	f.Add([]byte(`1.5e10`))
	f.Add([]byte(`#!/usr/bin/env node`))
	f.Add([]byte(`// comment
/* block comment */`))
	f.Add([]byte(`"\\""`))

	f.Fuzz(func(t *testing.T, data []byte) {
		log := logger.NewDeferLog(logger.LevelNone, nil)
		source := test.SourceForTest(string(data))
		tokens := Tokenize(log, &source)
		if len(tokens) == 0 || tokens[len(tokens)-1].Kind != TEndOfFile {
			t.Fatal("missing end of file token")
		}
		for _, token := range tokens {
			if token.Range.Loc.Start < 0 || int(token.Range.End()) > len(data) {
				t.Fatalf("token range %v is out of bounds", token.Range)
			}
		}
	})
}
