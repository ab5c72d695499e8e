package bundler_tests

// Each test links a small module graph from memory and checks the log and the
// rendered chunks. Expected output is given as fragments rather than whole
// files so that unrelated changes to the runtime helpers don't touch every
// test.

import (
	"context"
	"sort"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/bindery-js/bindery/internal/bundler"
	"github.com/bindery-js/bindery/internal/chunker"
	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/logger"
	"github.com/bindery-js/bindery/internal/scan"
	"github.com/bindery-js/bindery/internal/test"
)

func assertLog(t *testing.T, msgs []logger.Msg, expected string) {
	t.Helper()
	var text strings.Builder
	for _, msg := range msgs {
		if msg.Kind == logger.Error || msg.Kind == logger.Warning {
			text.WriteString(msg.String(logger.OutputOptions{}, logger.TerminalInfo{}))
		}
	}
	test.AssertEqualWithDiff(t, text.String(), expected)
}

func hasErrors(msgs []logger.Msg) bool {
	for _, msg := range msgs {
		if msg.Kind == logger.Error {
			return true
		}
	}
	return false
}

type linked struct {
	files      map[string]string
	entryPaths []string

	// Overrides for modules that need more than code
	specs    map[string]scan.ModuleSpec
	external []string

	options     config.Options
	noTreeShake bool
	groupNamers map[int]chunker.GroupNamer

	expectedLog string

	// Fragments of the log, for messages whose exact notes don't matter
	expectedLogContains []string

	// File names of the rendered chunks
	expectedChunks []string

	// Fragments that must (or must not) appear in each chunk, by file name
	expectedOutput   map[string][]string
	unexpectedOutput map[string][]string
}

type suite struct {
	name string
}

func (s *suite) expectLinked(t *testing.T, args linked) {
	t.Helper()

	desc := &scan.Description{
		Modules:  make(map[string]scan.ModuleSpec),
		External: args.external,
	}
	for path, code := range args.files {
		desc.Modules[path] = scan.ModuleSpec{Code: code}
	}
	for path, spec := range args.specs {
		desc.Modules[path] = spec
	}
	for _, path := range args.entryPaths {
		desc.Entries = append(desc.Entries, scan.EntrySpec{Module: path})
	}

	// Apply this default to all tests since almost all of them want it
	if !args.noTreeShake {
		args.options.TreeShake.Enabled = true
	}

	log := logger.NewDeferLog(logger.LevelInfo, nil)
	result, err := bundler.Bundle(context.Background(), log, desc, bundler.BuildOptions{
		Options:     args.options,
		GroupNamers: args.groupNamers,
		BuildID:     s.name + "/" + t.Name(),
	})
	msgs := log.Done()

	if args.expectedLogContains != nil {
		var text strings.Builder
		for _, msg := range msgs {
			text.WriteString(msg.String(logger.OutputOptions{}, logger.TerminalInfo{}))
		}
		for _, fragment := range args.expectedLogContains {
			if !strings.Contains(text.String(), fragment) {
				t.Fatalf("Expected the log to contain %q:\n%s", fragment, text.String())
			}
		}
	} else {
		assertLog(t, msgs, args.expectedLog)
	}

	// Stop now if there were any errors
	if hasErrors(msgs) {
		if err == nil {
			t.Fatal("Expected the build to fail")
		}
		return
	}
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	files := make(map[string]string)
	var names []string
	for _, file := range result.Files {
		files[file.FileName] = file.Code
		names = append(names, file.FileName)
	}

	if args.expectedChunks != nil {
		expected := append([]string{}, args.expectedChunks...)
		sort.Strings(expected)
		sort.Strings(names)
		test.AssertDeepEqual(t, names, expected)
	}

	for fileName, fragments := range args.expectedOutput {
		code, ok := files[fileName]
		if !ok {
			t.Fatalf("No chunk named %q in %v", fileName, names)
		}
		for _, fragment := range fragments {
			if !strings.Contains(code, fragment) {
				t.Fatalf("Expected %q to contain:\n%s\n---------- %s ----------\n%s", fileName, fragment, fileName, code)
			}
		}
	}
	for fileName, fragments := range args.unexpectedOutput {
		code := files[fileName]
		for _, fragment := range fragments {
			if strings.Contains(code, fragment) {
				t.Fatalf("Expected %q not to contain:\n%s\n---------- %s ----------\n%s", fileName, fragment, fileName, code)
			}
		}
	}
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
