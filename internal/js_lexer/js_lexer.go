package js_lexer

// The lexer converts a source file to a stream of tokens. This is not a full
// JavaScript lexer. It knows just enough to find top-level statements, module
// syntax, identifiers and call sites, which is all the link stage ever looks
// at. Comments are dropped except for "/* @__PURE__ */" annotations, which
// are recorded on the token that follows them.
//
// Regular expression literals are context-sensitive. Without a parser the
// lexer uses the previous token to decide, which is right for all code where
// a "/" after an expression would be division.

import (
	"strings"
	"unicode/utf8"

	"github.com/bindery-js/bindery/internal/js_ast"
	"github.com/bindery-js/bindery/internal/logger"
)

type T uint8

const (
	TEndOfFile T = iota
	TIdentifier
	TPrivateIdentifier
	TStringLiteral
	TNumericLiteral
	TTemplateLiteral
	TRegExpLiteral
	TPunctuation
)

func (t T) String() string {
	switch t {
	case TEndOfFile:
		return "end of file"
	case TIdentifier:
		return "identifier"
	case TPrivateIdentifier:
		return "private identifier"
	case TStringLiteral:
		return "string"
	case TNumericLiteral:
		return "number"
	case TTemplateLiteral:
		return "template literal"
	case TRegExpLiteral:
		return "regular expression"
	case TPunctuation:
		return "punctuation"
	default:
		panic("Internal error")
	}
}

type Token struct {
	// The raw source text of the token
	Text string

	// The decoded value of a string literal
	StringValue string

	// The "${...}" parts of a template literal, without the delimiters. Use
	// "TokenizeRange" to get at the tokens inside.
	Substitutions []logger.Range

	Range logger.Range
	Kind  T

	HasNewlineBefore     bool
	HasPureCommentBefore bool
}

func (t Token) Is(text string) bool {
	return t.Kind == TPunctuation && t.Text == text
}

func (t Token) IsIdentifier(name string) bool {
	return t.Kind == TIdentifier && t.Text == name
}

// Punctuation is matched longest first
var punctuators = []string{
	">>>=", "...", "===", "!==", "**=", "<<=", ">>=", ">>>", "&&=", "||=", "??=",
	"=>", "==", "!=", "<=", ">=", "&&", "||", "??", "?.", "++", "--", "+=", "-=",
	"*=", "/=", "%=", "&=", "|=", "^=", "**", "<<", ">>",
	"{", "}", "(", ")", "[", "]", ";", ",", "<", ">", "+", "-", "*", "/", "%",
	"&", "|", "^", "!", "~", "?", ":", "=", ".", "@", "#",
}

// Keywords after which a "/" starts a regular expression
var regExpAfterKeyword = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true,
	"new": true, "delete": true, "void": true, "throw": true, "case": true,
	"do": true, "else": true, "yield": true, "await": true,
}

type lexer struct {
	log    logger.Log
	source *logger.Source
	tokens []Token
	i      int
	end    int

	substitutions []logger.Range

	hasNewlineBefore     bool
	hasPureCommentBefore bool
}

// Returns every token in the source, followed by a "TEndOfFile" token.
// Problems such as an unterminated string are reported to the log and the
// rest of the line is skipped.
func Tokenize(log logger.Log, source *logger.Source) []Token {
	lexer := lexer{log: log, source: source, end: len(source.Contents)}

	// Skip a hashbang
	if strings.HasPrefix(source.Contents, "#!") {
		for lexer.i < lexer.end && source.Contents[lexer.i] != '\n' {
			lexer.i++
		}
	}

	lexer.run()
	return lexer.tokens
}

// Like "Tokenize" but only for part of the source, such as a template literal
// substitution. Token ranges are still relative to the whole source.
func TokenizeRange(log logger.Log, source *logger.Source, r logger.Range) []Token {
	lexer := lexer{log: log, source: source, i: int(r.Loc.Start), end: int(r.End())}
	lexer.run()
	return lexer.tokens
}

func (lexer *lexer) run() {
	text := lexer.source.Contents[:lexer.end]

	for {
		lexer.skipWhitespaceAndComments()
		if lexer.i >= len(text) {
			lexer.add(TEndOfFile, lexer.i, lexer.i)
			return
		}

		start := lexer.i
		c := text[start]

		switch {
		case c == '"' || c == '\'':
			lexer.lexString(c)

		case c == '`':
			lexer.lexTemplate()

		case c >= '0' && c <= '9' || (c == '.' && start+1 < len(text) && text[start+1] >= '0' && text[start+1] <= '9'):
			lexer.i++
			for lexer.i < len(text) && (isIdentifierByte(text[lexer.i]) || text[lexer.i] == '.' ||
				((text[lexer.i] == '+' || text[lexer.i] == '-') && (text[lexer.i-1] == 'e' || text[lexer.i-1] == 'E') && !strings.HasPrefix(text[start:], "0x"))) {
				lexer.i++
			}
			lexer.add(TNumericLiteral, start, lexer.i)

		case c == '#' && start+1 < len(text) && js_ast.IsIdentifierStart(rune(text[start+1])):
			lexer.i++
			lexer.lexIdentifierTail()
			lexer.add(TPrivateIdentifier, start, lexer.i)

		case c == '/' && lexer.regExpAllowed():
			lexer.lexRegExp()

		case c >= 0x80 || js_ast.IsIdentifierStart(rune(c)) || c == '\\':
			lexer.lexIdentifierTail()
			if lexer.i == start {
				// Not an identifier after all
				lexer.i++
				lexer.log.AddError(lexer.source, logger.Range{Loc: logger.Loc{Start: int32(start)}, Len: 1}, "Unexpected character")
				continue
			}
			lexer.add(TIdentifier, start, lexer.i)

		default:
			matched := false
			for _, punct := range punctuators {
				if strings.HasPrefix(text[start:], punct) {
					lexer.i += len(punct)
					lexer.add(TPunctuation, start, lexer.i)
					matched = true
					break
				}
			}
			if !matched {
				lexer.i++
				lexer.log.AddError(lexer.source, logger.Range{Loc: logger.Loc{Start: int32(start)}, Len: 1}, "Unexpected character")
			}
		}
	}
}

func (lexer *lexer) add(kind T, start int, end int) {
	lexer.tokens = append(lexer.tokens, Token{
		Kind:                 kind,
		Text:                 lexer.source.Contents[start:end],
		Range:                logger.Range{Loc: logger.Loc{Start: int32(start)}, Len: int32(end - start)},
		Substitutions:        lexer.substitutions,
		HasNewlineBefore:     lexer.hasNewlineBefore,
		HasPureCommentBefore: lexer.hasPureCommentBefore,
	})
	lexer.substitutions = nil
	lexer.hasNewlineBefore = false
	lexer.hasPureCommentBefore = false
}

func (lexer *lexer) skipWhitespaceAndComments() {
	text := lexer.source.Contents[:lexer.end]
	for lexer.i < len(text) {
		switch c := text[lexer.i]; {
		case c == '\n':
			lexer.hasNewlineBefore = true
			lexer.i++

		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			lexer.i++

		case strings.HasPrefix(text[lexer.i:], "//"):
			for lexer.i < len(text) && text[lexer.i] != '\n' {
				lexer.i++
			}

		case strings.HasPrefix(text[lexer.i:], "/*"):
			end := strings.Index(text[lexer.i+2:], "*/")
			if end < 0 {
				lexer.log.AddError(lexer.source, logger.Range{Loc: logger.Loc{Start: int32(lexer.i)}, Len: 2}, "Expected \"*/\" to terminate multi-line comment")
				lexer.i = len(text)
				return
			}
			comment := text[lexer.i+2 : lexer.i+2+end]
			if trimmed := strings.TrimSpace(comment); trimmed == "@__PURE__" || trimmed == "#__PURE__" {
				lexer.hasPureCommentBefore = true
			}
			if strings.ContainsRune(comment, '\n') {
				lexer.hasNewlineBefore = true
			}
			lexer.i += end + 4

		default:
			return
		}
	}
}

func (lexer *lexer) lexString(quote byte) {
	text := lexer.source.Contents[:lexer.end]
	start := lexer.i
	sb := strings.Builder{}
	lexer.i++
	for {
		if lexer.i >= len(text) || text[lexer.i] == '\n' {
			lexer.log.AddError(lexer.source, logger.Range{Loc: logger.Loc{Start: int32(start)}, Len: int32(lexer.i - start)}, "Unterminated string literal")
			lexer.add(TStringLiteral, start, lexer.i)
			return
		}
		c := text[lexer.i]
		if c == quote {
			lexer.i++
			break
		}
		if c == '\\' && lexer.i+1 < len(text) {
			lexer.i++
			switch escaped := text[lexer.i]; escaped {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '0':
				sb.WriteByte(0)
			case '\n':
			default:
				sb.WriteByte(escaped)
			}
			lexer.i++
			continue
		}
		sb.WriteByte(c)
		lexer.i++
	}
	lexer.add(TStringLiteral, start, lexer.i)
	lexer.tokens[len(lexer.tokens)-1].StringValue = sb.String()
}

// Templates are returned as a single token. Substitutions are skipped by
// counting braces, including braces inside nested strings and templates.
func (lexer *lexer) lexTemplate() {
	text := lexer.source.Contents[:lexer.end]
	start := lexer.i
	lexer.i++
	if !lexer.skipTemplateBody(true) {
		lexer.log.AddError(lexer.source, logger.Range{Loc: logger.Loc{Start: int32(start)}, Len: 1}, "Unterminated template literal")
		lexer.i = len(text)
	}
	lexer.add(TTemplateLiteral, start, lexer.i)
}

func (lexer *lexer) skipTemplateBody(isOutermost bool) bool {
	text := lexer.source.Contents[:lexer.end]
	for lexer.i < len(text) {
		switch text[lexer.i] {
		case '\\':
			lexer.i += 2
		case '`':
			lexer.i++
			return true
		case '$':
			if lexer.i+1 < len(text) && text[lexer.i+1] == '{' {
				lexer.i += 2
				substitutionStart := lexer.i
				depth := 1
				for depth > 0 {
					if lexer.i >= len(text) {
						return false
					}
					switch c := text[lexer.i]; c {
					case '{':
						depth++
						lexer.i++
					case '}':
						depth--
						lexer.i++
					case '`':
						lexer.i++
						if !lexer.skipTemplateBody(false) {
							return false
						}
					case '"', '\'':
						lexer.i++
						for lexer.i < len(text) && text[lexer.i] != c && text[lexer.i] != '\n' {
							if text[lexer.i] == '\\' {
								lexer.i++
							}
							lexer.i++
						}
						lexer.i++
					default:
						lexer.i++
					}
				}
				if isOutermost {
					lexer.substitutions = append(lexer.substitutions, logger.Range{
						Loc: logger.Loc{Start: int32(substitutionStart)},
						Len: int32(lexer.i - 1 - substitutionStart),
					})
				}
			} else {
				lexer.i++
			}
		default:
			lexer.i++
		}
	}
	return false
}

func (lexer *lexer) regExpAllowed() bool {
	if len(lexer.tokens) == 0 {
		return true
	}
	prev := lexer.tokens[len(lexer.tokens)-1]
	switch prev.Kind {
	case TIdentifier:
		return regExpAfterKeyword[prev.Text]
	case TPunctuation:
		return prev.Text != ")" && prev.Text != "]" && prev.Text != "}" && prev.Text != "++" && prev.Text != "--"
	default:
		return false
	}
}

func (lexer *lexer) lexRegExp() {
	text := lexer.source.Contents[:lexer.end]
	start := lexer.i
	lexer.i++
	inClass := false
	for {
		if lexer.i >= len(text) || text[lexer.i] == '\n' {
			lexer.log.AddError(lexer.source, logger.Range{Loc: logger.Loc{Start: int32(start)}, Len: int32(lexer.i - start)}, "Unterminated regular expression")
			break
		}
		c := text[lexer.i]
		lexer.i++
		if c == '\\' {
			lexer.i++
		} else if c == '[' {
			inClass = true
		} else if c == ']' {
			inClass = false
		} else if c == '/' && !inClass {
			for lexer.i < len(text) && isIdentifierByte(text[lexer.i]) {
				lexer.i++
			}
			break
		}
	}
	lexer.add(TRegExpLiteral, start, lexer.i)
}

func (lexer *lexer) lexIdentifierTail() {
	text := lexer.source.Contents[:lexer.end]
	for lexer.i < len(text) {
		c := text[lexer.i]
		if c < 0x80 {
			if !isIdentifierByte(c) {
				return
			}
			lexer.i++
			continue
		}
		r, width := utf8.DecodeRuneInString(text[lexer.i:])
		if !js_ast.IsIdentifierContinue(r) {
			return
		}
		lexer.i += width
	}
}

func isIdentifierByte(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
