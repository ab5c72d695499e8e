package runtime

// The runtime module is a regular module from the linker's point of view. It's
// added to every link with a fixed source index and its statements are tree
// shaken like everything else, so only the helpers that are actually used end
// up in the output. Each helper is its own top-level statement.

import (
	"strings"
)

type Helper uint16

const (
	HelperCommonJS Helper = 1 << iota
	HelperCommonJSMin
	HelperESM
	HelperESMMin
	HelperToESM
	HelperToCommonJS
	HelperReExport
	HelperExport
	HelperName
	HelperRequire

	helperEnd
)

var helperNames = map[Helper]string{
	HelperCommonJS:    "__commonJS",
	HelperCommonJSMin: "__commonJSMin",
	HelperESM:         "__esm",
	HelperESMMin:      "__esmMin",
	HelperToESM:       "__toESM",
	HelperToCommonJS:  "__toCommonJS",
	HelperReExport:    "__reExport",
	HelperExport:      "__export",
	HelperName:        "__name",
	HelperRequire:     "__require",
}

func (h Helper) Has(flag Helper) bool {
	return (h & flag) != 0
}

func (h Helper) IsEmpty() bool {
	return h == 0
}

// Returns the name of a single helper
func (h Helper) Name() string {
	if name, ok := helperNames[h]; ok {
		return name
	}
	panic("Internal error: not a single runtime helper")
}

// Returns each helper in the set, in declaration order
func (h Helper) Each() []Helper {
	var helpers []Helper
	for flag := Helper(1); flag < helperEnd; flag <<= 1 {
		if h.Has(flag) {
			helpers = append(helpers, flag)
		}
	}
	return helpers
}

func (h Helper) Names() []string {
	var names []string
	for _, flag := range h.Each() {
		names = append(names, flag.Name())
	}
	return names
}

func HelperFromName(name string) (Helper, bool) {
	for flag, helperName := range helperNames {
		if helperName == name {
			return flag, true
		}
	}
	return 0, false
}

const StableID = "bindery:runtime"

// The name of the chunk that holds the runtime when no single chunk can
const ChunkName = "bindery-runtime"

type Stmt struct {
	Code string

	// The top-level name this statement declares
	Declares string

	// Other runtime names this statement uses
	References []string
}

var Stmts = parseStmts([]string{
	`var __create = Object.create`,
	`var __defProp = Object.defineProperty`,
	`var __getOwnPropDesc = Object.getOwnPropertyDescriptor`,
	`var __getOwnPropNames = Object.getOwnPropertyNames`,
	`var __getProtoOf = Object.getPrototypeOf`,
	`var __hasOwnProp = Object.prototype.hasOwnProperty`,
	`var __name = (target, value) => __defProp(target, 'name', { value, configurable: true })`,
	`var __esm = (fn, res) => function () {
  return fn && (res = (0, fn[__getOwnPropNames(fn)[0]])(fn = 0)), res
}`,
	`var __esmMin = (fn, res) => () => (fn && (res = fn(fn = 0)), res)`,
	`var __commonJS = (cb, mod) => function () {
  return mod || (0, cb[__getOwnPropNames(cb)[0]])((mod = { exports: {} }).exports, mod), mod.exports
}`,
	`var __commonJSMin = (cb, mod) => () => (mod || cb((mod = { exports: {} }).exports, mod), mod.exports)`,
	`var __export = (target, all) => {
  for (var name in all)
    __defProp(target, name, { get: all[name], enumerable: true })
}`,
	`var __copyProps = (to, from, except, desc) => {
  if (from && typeof from === 'object' || typeof from === 'function')
    for (var keys = __getOwnPropNames(from), i = 0, n = keys.length, key; i < n; i++) {
      key = keys[i]
      if (!__hasOwnProp.call(to, key) && key !== except)
        __defProp(to, key, { get: (k => from[k]).bind(null, key), enumerable: !(desc = __getOwnPropDesc(from, key)) || desc.enumerable })
    }
  return to
}`,
	`var __reExport = (target, mod, secondTarget) => (
  __copyProps(target, mod, 'default'),
  secondTarget && __copyProps(secondTarget, mod, 'default')
)`,
	`var __toESM = (mod, isNodeMode, target) => (
  target = mod != null ? __create(__getProtoOf(mod)) : {},
  __copyProps(
    isNodeMode || !mod || !mod.__esModule
      ? __defProp(target, 'default', { value: mod, enumerable: true })
      : target,
    mod)
)`,
	`var __toCommonJS = mod => __copyProps(__defProp({}, '__esModule', { value: true }), mod)`,
	`var __require = /* @__PURE__ */ (x =>
  typeof require !== 'undefined' ? require :
  typeof Proxy !== 'undefined' ? new Proxy(x, {
    get: (a, b) => (typeof require !== 'undefined' ? require : a)[b]
  }) : x
)(function (x) {
  if (typeof require !== 'undefined') return require.apply(this, arguments)
  throw Error('Calling ` + "`require`" + ` for "' + x + '" in an environment that doesn\'t expose the ` + "`require`" + ` function.')
})`,
})

// Everything in here is trusted input, so a simple scan for "__" identifiers
// is enough to find the references between helpers.
func parseStmts(codes []string) []Stmt {
	stmts := make([]Stmt, len(codes))
	declared := make(map[string]bool, len(codes))
	for i, code := range codes {
		name := strings.TrimPrefix(code, "var ")
		name = name[:strings.IndexAny(name, " =")]
		stmts[i] = Stmt{Code: code, Declares: name}
		declared[name] = true
	}
	for i := range stmts {
		seen := map[string]bool{stmts[i].Declares: true}
		for _, word := range identifiers(stmts[i].Code) {
			if declared[word] && !seen[word] {
				seen[word] = true
				stmts[i].References = append(stmts[i].References, word)
			}
		}
	}
	return stmts
}

func identifiers(code string) []string {
	var words []string
	start := -1
	for i := 0; i <= len(code); i++ {
		isWord := i < len(code) && (code[i] == '_' || code[i] == '$' ||
			(code[i] >= 'a' && code[i] <= 'z') || (code[i] >= 'A' && code[i] <= 'Z') || (code[i] >= '0' && code[i] <= '9'))
		if isWord && start < 0 {
			start = i
		} else if !isWord && start >= 0 {
			words = append(words, code[start:i])
			start = -1
		}
	}
	return words
}
