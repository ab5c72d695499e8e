package logger

// Diagnostics are designed to look and feel like clang's error format. The
// linker runs phases in parallel, so messages are buffered as they happen and
// then sorted when the log is done. That keeps the final report identical
// between runs no matter how goroutines were scheduled.

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

type Log struct {
	AddMsg    func(Msg)
	HasErrors func() bool
	Done      func() []Msg

	Level     LogLevel
	Overrides map[MsgID]LogLevel
}

type LogLevel int8

const (
	LevelNone LogLevel = iota
	LevelVerbose
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelSilent
)

type MsgKind uint8

const (
	Error MsgKind = iota
	Warning
	Info
	Note
	Debug
	Verbose
)

func (kind MsgKind) String() string {
	switch kind {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	case Note:
		return "note"
	case Debug:
		return "debug"
	case Verbose:
		return "verbose"
	default:
		panic("Internal error")
	}
}

func (kind MsgKind) Icon() string {
	switch kind {
	case Error:
		return "✘"
	case Warning:
		return "▲"
	default:
		return "●"
	}
}

type Msg struct {
	Notes []MsgData
	Data  MsgData
	Kind  MsgKind
	ID    MsgID
}

type MsgData struct {
	// Optional user-specified data that is passed through unmodified
	UserDetail interface{}

	Location *MsgLocation
	Text     string
}

type MsgLocation struct {
	File       string
	LineText   string
	Suggestion string
	Line       int // 1-based
	Column     int // 0-based, in bytes
	Length     int // in bytes
}

type Loc struct {
	// This is the 0-based index of this location from the start of the file, in bytes
	Start int32
}

type Range struct {
	Loc Loc
	Len int32
}

func (r Range) End() int32 {
	return r.Loc.Start + r.Len
}

func (a Range) Less(b Range) bool {
	return a.Loc.Start < b.Loc.Start || (a.Loc.Start == b.Loc.Start && a.Len < b.Len)
}

// This type is just so we can use Go's native sort function
type SortableMsgs []Msg

func (a SortableMsgs) Len() int          { return len(a) }
func (a SortableMsgs) Swap(i int, j int) { a[i], a[j] = a[j], a[i] }

func (a SortableMsgs) Less(i int, j int) bool {
	ai := a[i]
	aj := a[j]
	aiLoc := ai.Data.Location
	ajLoc := aj.Data.Location
	if aiLoc == nil || ajLoc == nil {
		return aiLoc == nil && ajLoc != nil
	}
	if aiLoc.File != ajLoc.File {
		return aiLoc.File < ajLoc.File
	}
	if aiLoc.Line != ajLoc.Line {
		return aiLoc.Line < ajLoc.Line
	}
	if aiLoc.Column != ajLoc.Column {
		return aiLoc.Column < ajLoc.Column
	}
	if aiLoc.Length != ajLoc.Length {
		return aiLoc.Length < ajLoc.Length
	}
	if ai.Kind != aj.Kind {
		return ai.Kind < aj.Kind
	}
	if ai.Data.Text != aj.Data.Text {
		return ai.Data.Text < aj.Data.Text
	}
	return len(ai.Notes) < len(aj.Notes)
}

// A source file as far as diagnostics are concerned. The linker never sees the
// original file contents. The scanner hands over statement text instead, so
// "Contents" is the concatenation of a module's statements when available.
type Source struct {
	// This is used for error messages and the metafile. It's the module's
	// stable id, which is relative to the working directory and always uses
	// forward slashes.
	PrettyPath string

	// An identifier that is mixed in to automatically-generated symbol names to
	// improve readability. For example, if the identifier is "util" then the
	// wrapper for a CommonJS module will be called "require_util".
	IdentifierName string

	Contents string
	Index    uint32
}

func (s *Source) TextForRange(r Range) string {
	if r.Loc.Start < 0 || int(r.End()) > len(s.Contents) {
		return ""
	}
	return s.Contents[r.Loc.Start:r.End()]
}

func (s *Source) RangeOfString(loc Loc) Range {
	if loc.Start < 0 || int(loc.Start) >= len(s.Contents) {
		return Range{Loc: loc}
	}
	text := s.Contents[loc.Start:]
	quote := text[0]
	if quote == '"' || quote == '\'' || quote == '`' {
		// Search for the matching quote character
		for i := 1; i < len(text); i++ {
			c := text[i]
			if c == quote {
				return Range{Loc: loc, Len: int32(i + 1)}
			} else if c == '\\' {
				i += 1
			}
		}
	}
	return Range{Loc: loc}
}

func plural(prefix string, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, prefix)
	}
	return fmt.Sprintf("%d %ss", count, prefix)
}

func errorAndWarningSummary(errors int, warnings int) string {
	switch {
	case errors == 0:
		return plural("warning", warnings)
	case warnings == 0:
		return plural("error", errors)
	default:
		return fmt.Sprintf("%s and %s",
			plural("warning", warnings),
			plural("error", errors))
	}
}

type TerminalInfo struct {
	IsTTY           bool
	UseColorEscapes bool
	Width           int
	Height          int
}

type StderrColor uint8

const (
	ColorIfTerminal StderrColor = iota
	ColorNever
	ColorAlways
)

type OutputOptions struct {
	MessageLimit  int
	IncludeSource bool
	Color         StderrColor
	LogLevel      LogLevel
}

func (msg Msg) shouldPrint(options OutputOptions, overrides map[MsgID]LogLevel) bool {
	level := options.LogLevel
	if override, ok := overrides[msg.ID]; ok && msg.Kind != Error {
		if override == LevelSilent {
			return false
		}
		return true
	}
	switch msg.Kind {
	case Error:
		return level <= LevelError
	case Warning:
		return level <= LevelWarning
	case Info:
		return level <= LevelInfo
	case Debug:
		return level <= LevelDebug
	case Verbose:
		return level <= LevelVerbose
	}
	return false
}

func NewStderrLog(options OutputOptions, overrides map[MsgID]LogLevel) Log {
	var mutex sync.Mutex
	var msgs SortableMsgs
	terminalInfo := GetTerminalInfo(os.Stderr)
	errors := 0
	warnings := 0
	shownErrors := 0
	shownWarnings := 0
	limitWasHit := false

	switch options.Color {
	case ColorNever:
		terminalInfo.UseColorEscapes = false
	case ColorAlways:
		terminalInfo.UseColorEscapes = SupportsColorEscapes
	}

	return Log{
		Level:     options.LogLevel,
		Overrides: overrides,

		AddMsg: func(msg Msg) {
			mutex.Lock()
			defer mutex.Unlock()
			msgs = append(msgs, msg)

			switch msg.Kind {
			case Error:
				errors++
			case Warning:
				warnings++
			}

			if limitWasHit || !msg.shouldPrint(options, overrides) {
				return
			}
			switch msg.Kind {
			case Error:
				shownErrors++
			case Warning:
				shownWarnings++
			}
			writeStringWithColor(os.Stderr, msg.String(options, terminalInfo))

			// Silence further output if we reached the message limit
			if options.MessageLimit != 0 && shownErrors+shownWarnings >= options.MessageLimit {
				limitWasHit = true
				writeStringWithColor(os.Stderr, fmt.Sprintf(
					"%s shown (disable the message limit with --log-limit=0)\n",
					errorAndWarningSummary(shownErrors, shownWarnings)))
			}
		},

		HasErrors: func() bool {
			mutex.Lock()
			defer mutex.Unlock()
			return errors > 0
		},

		Done: func() []Msg {
			mutex.Lock()
			defer mutex.Unlock()

			// Print out a summary if the message limit wasn't hit
			if !limitWasHit && options.LogLevel <= LevelInfo && (warnings != 0 || errors != 0) {
				writeStringWithColor(os.Stderr, fmt.Sprintf("%s\n", errorAndWarningSummary(errors, warnings)))
			}

			sort.Stable(msgs)
			return msgs
		},
	}
}

func PrintErrorToStderr(osArgs []string, text string) {
	PrintMessageToStderr(osArgs, Msg{Kind: Error, Data: MsgData{Text: text}})
}

func PrintMessageToStderr(osArgs []string, msg Msg) {
	options := OutputOptions{IncludeSource: true}

	// Implement a mini argument parser so these options always work even if we
	// haven't yet gotten to the general-purpose argument parsing code
	for _, arg := range osArgs {
		switch arg {
		case "--color=false":
			options.Color = ColorNever
		case "--color=true", "--color":
			options.Color = ColorAlways
		case "--log-level=info":
			options.LogLevel = LevelInfo
		case "--log-level=warning":
			options.LogLevel = LevelWarning
		case "--log-level=error":
			options.LogLevel = LevelError
		case "--log-level=silent":
			options.LogLevel = LevelSilent
		}
	}

	log := NewStderrLog(options, nil)
	log.AddMsg(msg)
	log.Done()
}

func NewDeferLog(level LogLevel, overrides map[MsgID]LogLevel) Log {
	var msgs SortableMsgs
	var mutex sync.Mutex
	var hasErrors bool

	return Log{
		Level:     level,
		Overrides: overrides,

		AddMsg: func(msg Msg) {
			mutex.Lock()
			defer mutex.Unlock()
			if msg.Kind == Error {
				hasErrors = true
			}
			msgs = append(msgs, msg)
		},

		HasErrors: func() bool {
			mutex.Lock()
			defer mutex.Unlock()
			return hasErrors
		},

		Done: func() []Msg {
			mutex.Lock()
			defer mutex.Unlock()
			sort.Stable(msgs)
			return msgs
		},
	}
}

type Colors struct {
	Reset     string
	Bold      string
	Dim       string
	Underline string

	Red     string
	Green   string
	Blue    string
	Cyan    string
	Magenta string
	Yellow  string
}

var TerminalColors = Colors{
	Reset:     "\033[0m",
	Bold:      "\033[1m",
	Dim:       "\033[37m",
	Underline: "\033[4m",

	Red:     "\033[31m",
	Green:   "\033[32m",
	Blue:    "\033[34m",
	Cyan:    "\033[36m",
	Magenta: "\033[35m",
	Yellow:  "\033[33m",
}

func (msg Msg) String(options OutputOptions, terminalInfo TerminalInfo) string {
	var colors Colors
	if terminalInfo.UseColorEscapes {
		colors = TerminalColors
	}

	kindColor := colors.Red
	switch msg.Kind {
	case Warning:
		kindColor = colors.Yellow
	case Info, Note, Debug, Verbose:
		kindColor = colors.Green
	}

	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("%s%s %s[%s]%s %s%s\n",
		kindColor, msg.Kind.Icon(),
		colors.Bold, strings.ToUpper(msg.Kind.String()), colors.Reset,
		msg.Data.Text, colors.Reset))

	if msg.Data.Location != nil {
		sb.WriteString(msgLocationString(msg.Data.Location, options, colors, kindColor))
	}

	for _, note := range msg.Notes {
		sb.WriteString(fmt.Sprintf("  %s\n", note.Text))
		if note.Location != nil {
			sb.WriteString(msgLocationString(note.Location, options, colors, colors.Green))
		}
	}

	sb.WriteString("\n")
	return sb.String()
}

func msgLocationString(loc *MsgLocation, options OutputOptions, colors Colors, markerColor string) string {
	if !options.IncludeSource || loc.LineText == "" {
		return fmt.Sprintf("    %s%s:%d:%d:%s\n", colors.Dim, loc.File, loc.Line, loc.Column, colors.Reset)
	}

	d := detailStruct(loc)
	gutter := fmt.Sprintf("%d", d.Line)
	pad := strings.Repeat(" ", len(gutter))
	text := fmt.Sprintf("    %s%s:%d:%d:%s\n", colors.Dim, d.Path, d.Line, d.Column, colors.Reset)
	text += fmt.Sprintf("    %s %s│ %s%s%s%s%s\n", gutter, colors.Dim, colors.Reset,
		d.SourceBefore, markerColor+d.SourceMarked, colors.Reset, d.SourceAfter)
	text += fmt.Sprintf("    %s %s╵ %s%s%s%s\n", pad, colors.Dim, markerColor, d.Indent, d.Marker, colors.Reset)
	if loc.Suggestion != "" {
		text += fmt.Sprintf("    %s %s╵ %s%s%s%s\n", pad, colors.Dim, markerColor, d.Indent, loc.Suggestion, colors.Reset)
	}
	return text
}

type MsgDetail struct {
	Path   string
	Line   int
	Column int

	SourceBefore string
	SourceMarked string
	SourceAfter  string

	Indent string
	Marker string
}

func detailStruct(loc *MsgLocation) MsgDetail {
	// Only highlight the first line of the line text
	lineText := loc.LineText
	if i := strings.IndexAny(lineText, "\r\n"); i >= 0 {
		lineText = lineText[:i]
	}
	lineText = strings.ReplaceAll(lineText, "\t", "  ")

	// Clamp values in range
	column := loc.Column
	if column < 0 {
		column = 0
	}
	if column > len(lineText) {
		column = len(lineText)
	}
	length := loc.Length
	if length < 0 {
		length = 0
	}
	if length > len(lineText)-column {
		length = len(lineText) - column
	}

	marker := "^"
	if length > 1 {
		marker = strings.Repeat("~", length)
	}

	return MsgDetail{
		Path:   loc.File,
		Line:   loc.Line,
		Column: loc.Column,

		SourceBefore: lineText[:column],
		SourceMarked: lineText[column : column+length],
		SourceAfter:  lineText[column+length:],

		Indent: strings.Repeat(" ", column),
		Marker: marker,
	}
}

func computeLineAndColumn(contents string, offset int) (lineCount int, columnCount int, lineStart int, lineEnd int) {
	if offset > len(contents) {
		offset = len(contents)
	}

	// Scan up to the offset and count lines
	for i, codePoint := range contents[:offset] {
		if codePoint == '\n' {
			lineStart = i + 1
			lineCount++
		}
	}

	// Scan to the end of the line (or end of file if this is the last line)
	lineEnd = len(contents)
	if i := strings.IndexByte(contents[offset:], '\n'); i >= 0 {
		lineEnd = offset + i
	}

	columnCount = offset - lineStart
	return
}

func LocationOrNil(source *Source, r Range) *MsgLocation {
	if source == nil {
		return nil
	}

	// Convert the index into a line and column number
	lineCount, columnCount, lineStart, lineEnd := computeLineAndColumn(source.Contents, int(r.Loc.Start))

	return &MsgLocation{
		File:     source.PrettyPath,
		Line:     lineCount + 1, // 0-based to 1-based
		Column:   columnCount,
		Length:   int(r.Len),
		LineText: source.Contents[lineStart:lineEnd],
	}
}

func (log Log) AddError(source *Source, r Range, text string) {
	log.AddMsg(Msg{
		Kind: Error,
		Data: RangeData(source, r, text),
	})
}

func (log Log) AddErrorWithNotes(source *Source, r Range, text string, notes []MsgData) {
	log.AddMsg(Msg{
		Kind:  Error,
		Data:  RangeData(source, r, text),
		Notes: notes,
	})
}

func (log Log) AddID(id MsgID, kind MsgKind, source *Source, r Range, text string) {
	log.AddIDWithNotes(id, kind, source, r, text, nil)
}

// Messages with an ID can be silenced or promoted by the user. An override
// never turns anything into an error because that would make a successful
// link fail after the fact.
func (log Log) AddIDWithNotes(id MsgID, kind MsgKind, source *Source, r Range, text string, notes []MsgData) {
	if override, ok := log.Overrides[id]; ok {
		switch override {
		case LevelSilent:
			return
		case LevelWarning:
			kind = Warning
		case LevelInfo:
			kind = Info
		case LevelDebug:
			kind = Debug
		case LevelVerbose:
			kind = Verbose
		}
	}
	log.AddMsg(Msg{
		ID:    id,
		Kind:  kind,
		Data:  RangeData(source, r, text),
		Notes: notes,
	})
}

func RangeData(source *Source, r Range, text string) MsgData {
	return MsgData{
		Text:     text,
		Location: LocationOrNil(source, r),
	}
}
