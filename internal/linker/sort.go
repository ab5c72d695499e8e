package linker

import (
	"github.com/bindery-js/bindery/internal/ast"
	"github.com/bindery-js/bindery/internal/graph"
)

// Modules are assigned an execution order using a depth-first post-order
// traversal, starting at the runtime and then at each entry point in order.
// This is the order in which module bodies would run if every module was
// evaluated eagerly:
//
//   // entry.js
//   import './a'
//   import './b'
//
//   // a.js
//   import './b'
//
// This gives "b.js", "a.js", "entry.js". Only static imports and "require()"
// calls are followed. Dynamic imports run later and their targets are entry
// points of their own, so they are reached from there instead. The exception
// is when dynamic imports are inlined: their targets are not entry points then
// and are only reachable through the import.
func (c *linkerContext) sortModules() {
	type visit struct {
		sourceIndex uint32
		isExit      bool
	}

	visited := make([]bool, len(c.graph.Modules))
	sorted := make([]uint32, 0, len(c.graph.Modules))
	starts := make([]uint32, 0, len(c.graph.Entries)+1)
	starts = append(starts, c.graph.RuntimeSourceIndex)
	for _, entry := range c.graph.Entries {
		starts = append(starts, entry.SourceIndex)
	}

	var stack []visit
	for _, start := range starts {
		stack = append(stack, visit{sourceIndex: start})
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			module := c.graph.Modules[top.sourceIndex]

			if top.isExit {
				module.ExecOrder = uint32(len(sorted))
				sorted = append(sorted, top.sourceIndex)
				continue
			}
			if visited[top.sourceIndex] {
				continue
			}
			visited[top.sourceIndex] = true
			stack = append(stack, visit{sourceIndex: top.sourceIndex, isExit: true})

			// Push in reverse so the first import is visited first
			for i := len(module.ImportRecords) - 1; i >= 0; i-- {
				record := &module.ImportRecords[i]
				if !record.SourceIndex.IsValid() || !c.isEvaluationEdge(record.Kind) {
					continue
				}
				if other := record.SourceIndex.GetIndex(); !visited[other] {
					stack = append(stack, visit{sourceIndex: other})
				}
			}
		}
	}
	c.graph.SortedModules = sorted

	// Each module starts off depending on what it imports statically. Modules
	// reached with "require()" are only depended on if the call is included,
	// which is discovered later when dependencies are patched.
	for _, sourceIndex := range sorted {
		module := c.graph.Modules[sourceIndex]
		meta := &c.graph.Metas[sourceIndex]
		for _, record := range module.ImportRecords {
			if record.SourceIndex.IsValid() && record.Kind == ast.ImportStmt && record.SourceIndex.GetIndex() != sourceIndex {
				meta.Dependencies.Add(record.SourceIndex.GetIndex())
			}
		}
	}
}

func (c *linkerContext) isEvaluationEdge(kind ast.ImportKind) bool {
	switch kind {
	case ast.ImportStmt, ast.ImportRequire:
		return true
	case ast.ImportDynamic:
		return c.options.InlineDynamicImports
	}
	return false
}

func (c *linkerContext) isExecuted(sourceIndex uint32) bool {
	return c.graph.Modules[sourceIndex].ExecOrder != graph.ExecOrderUnreached
}
