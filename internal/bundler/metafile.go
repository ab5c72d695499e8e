package bundler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bindery-js/bindery/internal/graph"
	"github.com/bindery-js/bindery/internal/helpers"
)

// The metafile describes what linking decided about every module and, once
// chunks exist, what went where:
//
//   {
//     "build": "...",
//     "inputs": {
//       "a.js": { "exportsKind": "esm", "wrap": "none", ... }
//     },
//     "outputs": {
//       "a.js": { "entryPoint": "a.js", "modules": ["u.js", "a.js"], ... }
//     }
//   }
//
// Everything is written in a fixed order so the same build always produces
// the same text apart from the build id.
func generateMetafileJSON(result *Result) string {
	g := &result.Link.Graph

	// Sort modules by stable id for determinism
	sorted := make([]uint32, 0, len(g.Modules))
	for sourceIndex := range g.Modules {
		if uint32(sourceIndex) != g.RuntimeSourceIndex {
			sorted = append(sorted, uint32(sourceIndex))
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return g.Modules[sorted[i]].StableID() < g.Modules[sorted[j]].StableID()
	})

	j := helpers.Joiner{}
	j.AddString("{\n  \"build\": " + helpers.QuoteForJSON(result.BuildID) + ",\n  \"inputs\": {")
	for i, sourceIndex := range sorted {
		if i > 0 {
			j.AddString(",")
		}
		j.AddString("\n    " + helpers.QuoteForJSON(g.Modules[sourceIndex].StableID()) + ": ")
		j.AddString(inputJSON(g, sourceIndex))
	}
	j.AddString("\n  }")

	if result.Chunks != nil {
		j.AddString(",\n  \"outputs\": {")
		for i, chunkIndex := range result.Chunks.SortedChunks {
			if i > 0 {
				j.AddString(",")
			}
			key := result.Chunks.Chunks[chunkIndex].Name
			if result.Files != nil {
				key = result.Files[i].FileName
			}
			j.AddString("\n    " + helpers.QuoteForJSON(key) + ": ")
			j.AddString(outputJSON(result, i, chunkIndex))
		}
		j.AddString("\n  }")
	}

	j.AddString("\n}\n")
	return j.Done()
}

func inputJSON(g *graph.LinkerGraph, sourceIndex uint32) string {
	module := g.Modules[sourceIndex]
	meta := &g.Metas[sourceIndex]
	sb := strings.Builder{}

	if module.IsExternal() {
		sb.WriteString("{ \"external\": true, \"id\": " + helpers.QuoteForJSON(module.ID) + " }")
		return sb.String()
	}

	sb.WriteString("{\n")
	sb.WriteString(fmt.Sprintf("      \"exportsKind\": %q,\n", module.ExportsKind.String()))
	sb.WriteString(fmt.Sprintf("      \"wrap\": %q,\n", meta.Wrap.String()))
	sb.WriteString(fmt.Sprintf("      \"sideEffects\": %q,\n", module.SideEffects.String()))
	sb.WriteString("      \"exports\": " + stringArrayJSON(meta.SortedAndNonAmbiguousResolvedExports) + ",\n")

	var included []string
	for stmtIndex, isIncluded := range meta.StmtIncluded {
		if isIncluded {
			included = append(included, fmt.Sprintf("%d", stmtIndex))
		}
	}
	sb.WriteString("      \"includedStmts\": [" + strings.Join(included, ", ") + "],\n")

	sb.WriteString("      \"imports\": [")
	for i, record := range module.ImportRecords {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("\n        { \"path\": " + helpers.QuoteForJSON(record.Path))
		sb.WriteString(", \"kind\": " + helpers.QuoteForJSON(record.Kind.StringForMetafile()))
		if record.SourceIndex.IsValid() {
			sb.WriteString(", \"resolved\": " + helpers.QuoteForJSON(g.Modules[record.SourceIndex.GetIndex()].StableID()))
		}
		if flags := record.Flags.Strings(); len(flags) > 0 {
			sb.WriteString(", \"flags\": " + stringArrayJSON(flags))
		}
		sb.WriteString(" }")
	}
	if len(module.ImportRecords) > 0 {
		sb.WriteString("\n      ")
	}
	sb.WriteString("]\n    }")
	return sb.String()
}

func outputJSON(result *Result, sortedIndex int, chunkIndex uint32) string {
	g := &result.Link.Graph
	chunk := &result.Chunks.Chunks[chunkIndex]
	sb := strings.Builder{}

	sb.WriteString("{\n")
	sb.WriteString(fmt.Sprintf("      \"kind\": %q,\n", chunk.Kind.String()))
	sb.WriteString(fmt.Sprintf("      \"reason\": %q,\n", chunk.CreationReason.String()))
	if chunk.IsEntryPoint() {
		sb.WriteString("      \"entryPoint\": " + helpers.QuoteForJSON(g.Modules[chunk.EntryModule.GetIndex()].StableID()) + ",\n")
	}

	var modules []string
	for _, sourceIndex := range chunk.Modules {
		if sourceIndex == g.RuntimeSourceIndex {
			modules = append(modules, "<runtime>")
		} else {
			modules = append(modules, g.Modules[sourceIndex].StableID())
		}
	}
	sb.WriteString("      \"modules\": " + stringArrayJSON(modules) + ",\n")

	var exports []string
	for _, export := range chunk.SortedExports {
		exports = append(exports, export.Alias)
	}
	sb.WriteString("      \"exports\": " + stringArrayJSON(exports) + ",\n")
	sb.WriteString("      \"imports\": " + stringArrayJSON(chunkNames(result, chunk.CrossChunkImports)) + ",\n")
	sb.WriteString("      \"dynamicImports\": " + stringArrayJSON(chunkNames(result, chunk.CrossChunkDynamicImports)))

	if len(chunk.Debug) > 0 {
		sb.WriteString(",\n      \"notes\": " + stringArrayJSON(chunk.Debug))
	}
	if result.Files != nil {
		sb.WriteString(fmt.Sprintf(",\n      \"bytes\": %d", len(result.Files[sortedIndex].Code)))
	}
	sb.WriteString("\n    }")
	return sb.String()
}

func chunkNames(result *Result, chunkIndices []uint32) []string {
	names := make([]string, 0, len(chunkIndices))
	for _, chunkIndex := range chunkIndices {
		names = append(names, chunkName(result, chunkIndex))
	}
	return names
}

// File names only exist after rendering. Before that chunks go by name.
func chunkName(result *Result, chunkIndex uint32) string {
	if result.Files != nil {
		for i, other := range result.Chunks.SortedChunks {
			if other == chunkIndex {
				return result.Files[i].FileName
			}
		}
	}
	return result.Chunks.Chunks[chunkIndex].Name
}

func stringArrayJSON(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = helpers.QuoteForJSON(item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
