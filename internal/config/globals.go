package config

import (
	"strings"
)

// Global functions whose calls are free of side effects. A call is only
// removable if its arguments are free of side effects too. Listing a name
// also covers its members:
//
//   "styled"     => styled(), styled.div(), styled.div.attrs()
//   "Math.max"   => Math.max(), but not Math.random()
//
type PureFunctions struct {
	names map[string]bool
}

func NewPureFunctions(names []string) PureFunctions {
	if len(names) == 0 {
		return PureFunctions{}
	}
	pure := PureFunctions{names: make(map[string]bool, len(names))}
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			pure.names[name] = true
		}
	}
	return pure
}

func (pure PureFunctions) Len() int {
	return len(pure.names)
}

// "callee" is the dotted path of the called expression, e.g. ["styled",
// "div"] for "styled.div()"
func (pure PureFunctions) IsPure(callee []string) bool {
	if len(pure.names) == 0 || len(callee) == 0 {
		return false
	}
	path := callee[0]
	if pure.names[path] {
		return true
	}
	for _, part := range callee[1:] {
		path += "." + part
		if pure.names[path] {
			return true
		}
	}
	return false
}
