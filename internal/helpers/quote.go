package helpers

import (
	"fmt"
	"unicode/utf8"
)

const firstASCII = 0x20
const lastASCII = 0x7E

func canPrintWithoutEscape(c rune, quoteChar byte) bool {
	if c <= lastASCII {
		return c >= firstASCII && c != '\\' && c != rune(quoteChar)
	}
	return c != '\uFEFF' && c != '\u2028' && c != '\u2029' && c != utf8.RuneError
}

// Quotes a string for use as a JavaScript string literal, such as an import
// path or an export name that isn't a valid identifier. The result is valid
// JSON too.
func QuoteForJSON(text string) string {
	return internalQuote(text, '"')
}

func internalQuote(text string, quoteChar byte) string {
	bytes := make([]byte, 0, len(text)+2)
	bytes = append(bytes, quoteChar)

	for _, c := range text {
		if canPrintWithoutEscape(c, quoteChar) {
			bytes = utf8.AppendRune(bytes, c)
			continue
		}

		switch c {
		case '\b':
			bytes = append(bytes, "\\b"...)
		case '\f':
			bytes = append(bytes, "\\f"...)
		case '\n':
			bytes = append(bytes, "\\n"...)
		case '\r':
			bytes = append(bytes, "\\r"...)
		case '\t':
			bytes = append(bytes, "\\t"...)
		case '\\':
			bytes = append(bytes, "\\\\"...)
		case rune(quoteChar):
			bytes = append(bytes, '\\', quoteChar)
		default:
			if c <= 0xFFFF {
				bytes = append(bytes, fmt.Sprintf("\\u%04X", c)...)
			} else {
				bytes = append(bytes, fmt.Sprintf("\\u{%X}", c)...)
			}
		}
	}

	return string(append(bytes, quoteChar))
}
