package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bindery-js/bindery/internal/exitcode"
)

const twoEntries = `
entries: [/a.js, /b.js]
modules:
  /a.js: |
    import {x} from './u'
    console.log(x)
  /b.js: |
    import {x} from './u'
    console.log(x)
  /u.js: export let x = 1
`

func writeFile(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--color=never"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRenderPrintsEveryChunk(t *testing.T) {
	desc := writeFile(t, "app.yaml", twoEntries)
	out, err := execute(t, "render", desc)
	require.NoError(t, err)
	require.Contains(t, out, "---------- a.js ----------\n")
	require.Contains(t, out, "---------- b.js ----------\n")
	require.Contains(t, out, "---------- u.js ----------\n")
	require.Contains(t, out, `import { x } from "./u.js";`)
}

func TestOptionPrecedence(t *testing.T) {
	desc := writeFile(t, "app.yaml", twoEntries)
	cjsConfig := writeFile(t, "bindery.toml", "format = \"cjs\"\n")

	t.Run("config file", func(t *testing.T) {
		out, err := execute(t, "render", desc, "--config", cjsConfig)
		require.NoError(t, err)
		require.Contains(t, out, `require("./u.js")`)
	})

	t.Run("flag beats config file", func(t *testing.T) {
		out, err := execute(t, "render", desc, "--config", cjsConfig, "--format", "esm")
		require.NoError(t, err)
		require.Contains(t, out, `import { x } from "./u.js";`)
	})

	t.Run("environment beats config file", func(t *testing.T) {
		esmConfig := writeFile(t, "bindery.yaml", "format: esm\n")
		t.Setenv("BINDERY_FORMAT", "cjs")
		out, err := execute(t, "render", desc, "--config", esmConfig)
		require.NoError(t, err)
		require.Contains(t, out, `require("./u.js")`)
	})

	t.Run("flag beats environment", func(t *testing.T) {
		t.Setenv("BINDERY_FORMAT", "cjs")
		out, err := execute(t, "render", desc, "--format=esm")
		require.NoError(t, err)
		require.NotContains(t, out, `require(`)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("BINDERY_TREESHAKE", "false")
		unused := writeFile(t, "unused.yaml", `
entries: [/main.js]
modules:
  /main.js: |
    import {used} from './lib'
    console.log(used)
  /lib.js: |
    export const used = 1
    export const unused = 2
`)
		out, err := execute(t, "render", unused)
		require.NoError(t, err)
		require.Contains(t, out, "const unused = 2;")
	})

	t.Run("dashes become underscores", func(t *testing.T) {
		t.Setenv("BINDERY_SHIM_MISSING_EXPORTS", "true")
		missing := writeFile(t, "missing.yaml", `
entries: [/main.js]
modules:
  /main.js: |
    import {missing} from './x'
    console.log(missing)
  /x.js: export const other = 1
`)
		out, err := execute(t, "render", missing)
		require.NoError(t, err)
		require.Contains(t, out, "void 0")
	})
}

func TestManualPureFunctionsFlag(t *testing.T) {
	desc := writeFile(t, "app.yaml", `
entries: [/main.js]
modules:
  /main.js: |
    import './styles'
    console.log(1)
  /styles.js: |
    const button = styled.button({color: 'red'})
`)

	out, err := execute(t, "render", desc)
	require.NoError(t, err)
	require.Contains(t, out, "styled.button")

	out, err = execute(t, "render", desc, "--manual-pure-functions=styled")
	require.NoError(t, err)
	require.NotContains(t, out, "styled.button")
}

func TestRenderWritesOutdir(t *testing.T) {
	desc := writeFile(t, "app.yaml", twoEntries)
	outdir := t.TempDir()
	metafile := filepath.Join(t.TempDir(), "meta.json")

	out, err := execute(t, "render", desc, "--outdir", outdir, "--metafile", metafile)
	require.NoError(t, err)
	require.Empty(t, out)

	for _, name := range []string{"a.js", "b.js", "u.js"} {
		contents, err := os.ReadFile(filepath.Join(outdir, name))
		require.NoError(t, err, name)
		require.NotEmpty(t, contents, name)
	}
	meta, err := os.ReadFile(metafile)
	require.NoError(t, err)
	require.Contains(t, string(meta), "\"outputs\": {")
}

func TestLinkSummary(t *testing.T) {
	desc := writeFile(t, "app.yaml", twoEntries)
	out, err := execute(t, "link", desc)
	require.NoError(t, err)
	require.Contains(t, out, "MODULE")
	require.Regexp(t, `(?m)^u\.js\s+esm\s+none\s+`, out)
	require.NotContains(t, out, "runtime")
}

func TestChunkSummary(t *testing.T) {
	desc := writeFile(t, "app.yaml", twoEntries)
	out, err := execute(t, "chunks", desc)
	require.NoError(t, err)
	require.Contains(t, out, "CHUNK")
	require.Regexp(t, `(?m)^u\s+common\s+`, out)
}

func TestMetafileCommand(t *testing.T) {
	desc := writeFile(t, "app.yaml", twoEntries)
	out, err := execute(t, "metafile", desc)
	require.NoError(t, err)
	require.Contains(t, out, "\"inputs\": {")
	require.Contains(t, out, "\"u.js\": {")
}

func TestExitCodes(t *testing.T) {
	desc := writeFile(t, "app.yaml", twoEntries)
	missing := writeFile(t, "missing.yaml", `
entries: [/main.js]
modules:
  /main.js: |
    import {missing} from './x'
    console.log(missing)
  /x.js: export const other = 1
`)

	testCases := map[string]struct {
		args []string
		code int
	}{
		"ok":                {[]string{"render", desc}, exitcode.Success},
		"unknown format":    {[]string{"render", desc, "--format=amd"}, exitcode.Usage},
		"unknown flag":      {[]string{"render", desc, "--nope"}, exitcode.Usage},
		"missing argument":  {[]string{"render"}, exitcode.Usage},
		"too many entries":  {[]string{"render", desc, "--format=iife"}, exitcode.Usage},
		"bad log override":  {[]string{"render", desc, "--log-override=x"}, exitcode.Usage},
		"link error":        {[]string{"render", missing}, exitcode.BuildFailed},
		"missing file":      {[]string{"render", filepath.Join(t.TempDir(), "nope.yaml")}, exitcode.BuildFailed},
		"shimmed link":      {[]string{"render", missing, "--shim-missing-exports"}, exitcode.Success},
		"missing config":    {[]string{"render", desc, "--config", filepath.Join(t.TempDir(), "nope.json")}, exitcode.BuildFailed},
		"bad config suffix": {[]string{"render", desc, "--config", writeFile(t, "bindery.ini", "")}, exitcode.Usage},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			require.Equal(t, tc.code, exitcode.Get(reportError(err)), "%v", err)
		})
	}
}
