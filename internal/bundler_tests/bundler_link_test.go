package bundler_tests

import (
	"testing"

	"github.com/bindery-js/bindery/internal/config"
)

var link_suite = suite{
	name: "link",
}

func TestLinkRequireOfESM(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/main.js": `
const m = require('./e')
console.log(m.foo)
`,
			"/e.js": `export const foo = 2`,
		},
		entryPaths:     []string{"/main.js"},
		expectedChunks: []string{"main.js"},
		expectedOutput: map[string][]string{
			"main.js": {
				"var init_e = __esmMin(() => {",
				"__export(e_exports, {\n  foo: () => foo\n});",
				"const m = (init_e(), __toCommonJS(e_exports));",
				"console.log(m.foo);",
			},
		},
	})
}

func TestLinkStarExportAmbiguity(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/idx.js": `
export * from './a'
export * from './b'
`,
			"/a.js": `export const x = 1`,
			"/b.js": `export const x = 2`,
			"/c.js": `
import {x} from './idx'
console.log(x)
`,
		},
		entryPaths: []string{"/c.js"},
		expectedLogContains: []string{
			"✘ [ERROR] Ambiguous import \"x\" has multiple matching exports\n    c.js:2:8:\n",
			"  One matching export is here:\n",
			"  Another matching export is here:\n",
		},
	})
}

func TestLinkStarExportNamesAreNotAmbiguousWhenEqual(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/idx.js": `
export * from './a'
export * from './b'
`,
			"/a.js": `export {x} from './x'`,
			"/b.js": `export {x} from './x'`,
			"/x.js": `export const x = 1`,
			"/c.js": `
import {x} from './idx'
console.log(x)
`,
		},
		entryPaths: []string{"/c.js"},
		expectedOutput: map[string][]string{
			"c.js": {"const x = 1;", "console.log(x);"},
		},
	})
}

func TestLinkMissingExport(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/main.js": `import {missing} from './x'
console.log(missing)
`,
			"/x.js": `export const other = 1`,
		},
		entryPaths: []string{"/main.js"},
		expectedLog: `✘ [ERROR] No matching export in "x.js" for import "missing"
    main.js:1:8:

`,
	})
}

func TestLinkMissingExportTypo(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/main.js": `import {fooo} from './x'
console.log(fooo)
`,
			"/x.js": `export const foo = 1`,
		},
		entryPaths: []string{"/main.js"},
		expectedLogContains: []string{
			"✘ [ERROR] No matching export in \"x.js\" for import \"fooo\"\n",
			"  Did you mean to import \"foo\" instead?\n",
		},
	})
}

func TestLinkMissingExportShimmed(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/main.js": `
import {missing} from './x'
console.log(missing)
`,
			"/x.js": `export const other = 1`,
		},
		entryPaths: []string{"/main.js"},
		options: config.Options{
			ShimMissingExports: true,
		},
		expectedOutput: map[string][]string{
			"main.js": {
				"var missing$$ = void 0;",
				"console.log(missing$$);",
			},
		},
		unexpectedOutput: map[string][]string{
			"main.js": {"other"},
		},
	})
}

func TestLinkImportCycle(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/a.js": `
import {b} from './b'
export function a() { return b() }
console.log(a())
`,
			"/b.js": `
import {a} from './a'
export function b() { return typeof a }
`,
		},
		entryPaths: []string{"/a.js"},
		expectedOutput: map[string][]string{
			"a.js": {
				"function b() { return typeof a }",
				"function a() { return b() }",
				"console.log(a());",
			},
		},
	})
}

func TestLinkCommonJSEntryUnderESM(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/main.js": `module.exports = {a: 1}`,
		},
		entryPaths: []string{"/main.js"},
		expectedOutput: map[string][]string{
			"main.js": {
				"var require_main = __commonJSMin((exports, module) => {\n  module.exports = {a: 1};\n});",
				"export default require_main();",
			},
		},
	})
}

func TestLinkImportFromCommonJS(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/main.js": `
import {foo} from './lib'
console.log(foo)
`,
			"/lib.js": `exports.foo = 123`,
		},
		entryPaths: []string{"/main.js"},
		expectedOutput: map[string][]string{
			"main.js": {
				"var require_lib = __commonJSMin((exports, module) => {",
				"console.log(import_lib.foo);",
			},
		},
	})
}

func TestLinkNamespaceMemberAccess(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/main.js": `
import * as ns from './lib'
console.log(ns.foo, ns.nope)
`,
			"/lib.js": `export const foo = 1`,
		},
		entryPaths: []string{"/main.js"},
		expectedLogContains: []string{
			"▲ [WARNING] Import \"nope\" will always be undefined because there is no matching export in \"lib.js\"\n",
		},
		expectedOutput: map[string][]string{
			"main.js": {"console.log(foo, void 0);"},
		},
		unexpectedOutput: map[string][]string{
			"main.js": {"lib_exports"},
		},
	})
}

func TestLinkTreeShakingRemovesUnusedExports(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/main.js": `
import {used} from './lib'
console.log(used)
`,
			"/lib.js": `
export const used = 1
export const unused = 2
`,
		},
		entryPaths: []string{"/main.js"},
		expectedOutput: map[string][]string{
			"main.js": {"const used = 1;"},
		},
		unexpectedOutput: map[string][]string{
			"main.js": {"unused"},
		},
	})
}

func TestLinkTreeShakingDisabled(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/main.js": `
import {used} from './lib'
console.log(used)
`,
			"/lib.js": `
export const used = 1
export const unused = 2
`,
		},
		entryPaths:  []string{"/main.js"},
		noTreeShake: true,
		expectedOutput: map[string][]string{
			"main.js": {"const used = 1;", "const unused = 2;"},
		},
	})
}

func TestLinkExportStarFromExternalESM(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/main.js": `
import * as lib from './lib'
console.log(lib)
`,
			"/lib.js": `
export * from 'ext'
export const a = 1
`,
		},
		entryPaths: []string{"/main.js"},
		external:   []string{"ext"},
		expectedOutput: map[string][]string{
			"main.js": {
				"import * as ",
				"__reExport(lib_exports, ",
				"console.log(lib_exports);",
			},
		},
	})
}

func TestLinkExportStarFromExternalCommonJS(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/main.js": `
import * as lib from './lib'
console.log(lib)
`,
			"/lib.js": `
export * from 'ext'
export const a = 1
`,
		},
		entryPaths: []string{"/main.js"},
		external:   []string{"ext"},
		options: config.Options{
			Format: config.FormatCommonJS,
		},
		expectedOutput: map[string][]string{
			"main.js": {`__reExport(lib_exports, require("ext"))`},
		},
		unexpectedOutput: map[string][]string{
			"main.js": {"import * as"},
		},
	})
}

func TestLinkInlineConst(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/main.js": `
import {answer} from './const'
console.log(answer)
`,
			"/const.js": `export const answer = 42`,
		},
		entryPaths: []string{"/main.js"},
		options: config.Options{
			Optimization: config.OptimizationOptions{InlineConst: true},
		},
		expectedOutput: map[string][]string{
			"main.js": {"console.log(42);"},
		},
		unexpectedOutput: map[string][]string{
			"main.js": {"answer"},
		},
	})
}

func TestLinkKeepNames(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/main.js": `
import {helper as a} from './a'
import {helper as b} from './b'
console.log(a, b)
`,
			"/a.js": `export function helper() {}`,
			"/b.js": `export function helper() {}`,
		},
		entryPaths: []string{"/main.js"},
		options: config.Options{
			KeepNames: true,
		},
		expectedOutput: map[string][]string{
			"main.js": {
				"function helper$1() {}\n__name(helper$1, \"helper\");",
				"console.log(helper, helper$1);",
			},
		},
	})
}

func TestLinkImportMetaUnderNode(t *testing.T) {
	link_suite.expectLinked(t, linked{
		files: map[string]string{
			"/main.js": `console.log(import.meta.url)`,
		},
		entryPaths: []string{"/main.js"},
		options: config.Options{
			Format:   config.FormatCommonJS,
			Platform: config.PlatformNode,
		},
		expectedOutput: map[string][]string{
			"main.js": {`console.log(require("url").pathToFileURL(__filename).href);`},
		},
	})
}
