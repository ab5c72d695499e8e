package finalizer

import (
	"sort"
	"strings"

	"github.com/bindery-js/bindery/internal/js_lexer"
	"github.com/bindery-js/bindery/internal/logger"
)

// A replacement of the statement text in [start, end). Positions are relative
// to the start of the statement. An empty range is an insertion.
type edit struct {
	start int32
	end   int32
	text  string
}

type editList struct {
	edits  []edit
	sorted bool
}

func (l *editList) replace(start int32, end int32, text string) {
	l.edits = append(l.edits, edit{start: start, end: end, text: text})
	l.sorted = false
}

func (l *editList) replaceRange(r logger.Range, text string) {
	l.replace(r.Loc.Start, r.End(), text)
}

func (l *editList) insert(pos int32, text string) {
	l.replace(pos, pos, text)
}

// Returns text[from:to] with every edit inside that range applied. When two
// edits overlap, the one that starts first wins. For edits that start at the
// same position, insertions come first and then the longest replacement.
func (l *editList) apply(text string, from int32, to int32) string {
	if !l.sorted {
		sort.SliceStable(l.edits, func(i, j int) bool {
			a, b := l.edits[i], l.edits[j]
			if a.start != b.start {
				return a.start < b.start
			}
			if (a.start == a.end) != (b.start == b.end) {
				return a.start == a.end
			}
			return a.end > b.end
		})
		l.sorted = true
	}

	sb := strings.Builder{}
	cursor := from
	for _, e := range l.edits {
		if e.start < cursor || e.end > to {
			continue
		}
		sb.WriteString(text[cursor:e.start])
		sb.WriteString(e.text)
		cursor = e.end
	}
	sb.WriteString(text[cursor:to])
	return sb.String()
}

type braceKind uint8

const (
	braceBlock braceKind = iota
	braceObject
	braceClass
	braceOther
)

// Calls "visit" for each identifier token that may refer to a variable.
// Property accesses, object keys, method names and class members are
// skipped. Shorthand properties such as "{a}" are reported with "shorthand"
// set since renaming one needs the key spelled out. The tokens inside
// template literal substitutions are visited too.
func forEachIdentifier(
	log logger.Log,
	source *logger.Source,
	tokens []js_lexer.Token,
	visit func(tokens []js_lexer.Token, i int, shorthand bool),
) {
	var stack []braceKind
	classDepth := -1

	for i, token := range tokens {
		var prev, next js_lexer.Token
		if i > 0 {
			prev = tokens[i-1]
		}
		if i+1 < len(tokens) {
			next = tokens[i+1]
		}

		switch token.Kind {
		case js_lexer.TPunctuation:
			switch token.Text {
			case "{":
				kind := braceBlock
				if classDepth == len(stack) {
					kind = braceClass
					classDepth = -1
				} else if i > 0 && opensObjectLiteral(prev) {
					kind = braceObject
				}
				stack = append(stack, kind)
			case "(", "[":
				stack = append(stack, braceOther)
			case "}", ")", "]":
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
			}
			continue

		case js_lexer.TTemplateLiteral:
			for _, r := range token.Substitutions {
				forEachIdentifier(log, source, js_lexer.TokenizeRange(log, source, r), visit)
			}
			continue

		case js_lexer.TIdentifier:

		default:
			continue
		}

		if token.Text == "class" {
			classDepth = len(stack)
		}
		if prev.Is(".") || prev.Is("?.") {
			continue
		}

		top := braceBlock
		if len(stack) > 0 {
			top = stack[len(stack)-1]
		}
		switch top {
		case braceObject:
			if isObjectMemberStart(tokens, i) {
				if next.Is(":") || next.Is("(") || isModifierBefore(token, next) {
					continue
				}
				if (prev.Is("{") || prev.Is(",")) && (next.Is(",") || next.Is("}") || next.Is("=")) {
					visit(tokens, i, true)
					continue
				}
			}

		case braceClass:
			if isClassMemberStart(tokens, i) {
				continue
			}
		}
		visit(tokens, i, false)
	}
}

// Whether a "{" after this token starts an object literal instead of a block
func opensObjectLiteral(prev js_lexer.Token) bool {
	switch prev.Kind {
	case js_lexer.TPunctuation:
		switch prev.Text {
		case ")", "]", "}", ";", "=>":
			return false
		}
		return true
	case js_lexer.TIdentifier:
		switch prev.Text {
		case "return", "yield", "await", "typeof", "void", "delete", "in", "of", "case", "throw",
			"new", "var", "let", "const", "instanceof", "default", "extends":
			return true
		}
	}
	return false
}

var memberModifiers = map[string]bool{
	"get": true, "set": true, "async": true, "static": true, "accessor": true,
}

func isObjectMemberStart(tokens []js_lexer.Token, i int) bool {
	prev := tokens[i-1]
	if prev.Is("{") || prev.Is(",") {
		return true
	}
	if prev.Is("*") || (prev.Kind == js_lexer.TIdentifier && memberModifiers[prev.Text]) {
		if i < 2 {
			return false
		}
		before := tokens[i-2]
		return before.Is("{") || before.Is(",") || (before.Kind == js_lexer.TIdentifier && memberModifiers[before.Text])
	}
	return false
}

// "get" in "{ get foo() {} }"
func isModifierBefore(token js_lexer.Token, next js_lexer.Token) bool {
	if !memberModifiers[token.Text] {
		return false
	}
	return next.Kind == js_lexer.TIdentifier || next.Kind == js_lexer.TStringLiteral ||
		next.Kind == js_lexer.TNumericLiteral || next.Is("[") || next.Is("*")
}

// Class bodies contain member names, not expressions. A member starts after
// "{", "}", ";" or a modifier, or on a new line after a complete field.
func isClassMemberStart(tokens []js_lexer.Token, i int) bool {
	prev := tokens[i-1]
	switch {
	case prev.Is("{") || prev.Is("}") || prev.Is(";") || prev.Is("*"):
		return true
	case prev.Kind == js_lexer.TIdentifier && memberModifiers[prev.Text]:
		return true
	case tokens[i].HasNewlineBefore:
		switch prev.Kind {
		case js_lexer.TIdentifier, js_lexer.TNumericLiteral, js_lexer.TStringLiteral,
			js_lexer.TTemplateLiteral, js_lexer.TRegExpLiteral:
			return true
		}
		return prev.Is(")") || prev.Is("]")
	}
	return false
}

// Calling "ns.foo()" would pass "ns" as "this" to "foo", which is not what
// the original "foo()" did
func isCalledAt(text string, end int32) bool {
	rest := strings.TrimLeft(text[end:], " \t\r\n")
	return strings.HasPrefix(rest, "(") || strings.HasPrefix(rest, "?.(") || strings.HasPrefix(rest, "`")
}
