package linker

import (
	"github.com/bindery-js/bindery/internal/graph"
)

// A module that has no side effects of its own still has them if it imports
// a module that does, since including it means evaluating its dependencies.
// Only modules whose side effects came from analysis are updated. A value the
// user decided on is never overridden.
func (c *linkerContext) determineSideEffects() {
	const (
		unvisited uint8 = iota
		visiting
		visited
	)
	state := make([]uint8, len(c.graph.Modules))

	var visit func(sourceIndex uint32) bool
	visit = func(sourceIndex uint32) bool {
		module := c.graph.Modules[sourceIndex]
		switch state[sourceIndex] {
		case visiting:
			// Assume no side effects for now. Whatever is on the stack will
			// pick up the result of the rest of the cycle.
			return module.SideEffects.HasSideEffects()
		case visited:
			return module.SideEffects.HasSideEffects()
		}
		state[sourceIndex] = visiting

		if module.SideEffects.Kind == graph.SideEffectsAnalyzed && !module.SideEffects.Value {
			for _, record := range module.ImportRecords {
				if !record.SourceIndex.IsValid() || !record.Kind.IsStatic() {
					continue
				}
				otherIndex := record.SourceIndex.GetIndex()
				if otherIndex == sourceIndex || c.isExternal(otherIndex) {
					continue
				}
				if visit(otherIndex) {
					module.SideEffects.Value = true
					break
				}
			}
		}

		state[sourceIndex] = visited
		return module.SideEffects.HasSideEffects()
	}

	for _, sourceIndex := range c.graph.SortedModules {
		visit(sourceIndex)
	}
}
