package helpers

import (
	"runtime/debug"
	"strings"
)

// Formats the current goroutine's stack as one "function (file:line)" per
// line, innermost first. Frames from the runtime and from this function are
// left out since they are the same for every panic.
func PrettyPrintedStack() string {
	return prettyPrintStack(string(debug.Stack()))
}

func prettyPrintStack(stack string) string {
	lines := strings.Split(strings.TrimSpace(stack), "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "goroutine ") {
		lines = lines[1:]
	}

	sb := strings.Builder{}
	for i := 0; i+1 < len(lines); i += 2 {
		call, location := lines[i], strings.TrimSpace(lines[i+1])
		if strings.HasPrefix(call, "runtime/debug.") || strings.HasPrefix(call, "runtime.") || strings.HasPrefix(call, "panic(") ||
			strings.Contains(call, "helpers.PrettyPrintedStack") || strings.Contains(call, "helpers.prettyPrintStack") {
			continue
		}

		// Drop the argument list and the package path
		if strings.HasSuffix(call, ")") {
			if paren := strings.LastIndexByte(call, '('); paren != -1 {
				call = call[:paren]
			}
		}
		if slash := strings.LastIndexByte(call, '/'); slash != -1 {
			call = call[slash+1:]
		}

		// Drop the program counter offset and make paths in this module relative
		if offset := strings.LastIndex(location, " +0x"); offset != -1 {
			location = location[:offset]
		}
		if index := strings.Index(location, "/bindery/"); index != -1 {
			location = location[index+len("/bindery/"):]
		}

		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(call)
		sb.WriteString(" (")
		sb.WriteString(location)
		sb.WriteString(")")
	}
	return sb.String()
}
