package chunker

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"

	"github.com/bindery-js/bindery/internal/config"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/runtime"
	"go.uber.org/zap"
)

// Modules matching the same manual group (and, for entries-aware groups,
// reached by the same entry points) are collected here before they become a
// chunk. Modules can be in many groups at once until one of them wins.
type moduleGroup struct {
	name       string
	groupIndex int
	priority   int
	modules    map[uint32]bool
	size       int64

	// Only present for entries-aware groups
	bits       helpers.BitSet
	isAware    bool
	isRemoved  bool
	mergeOrder int
}

type moduleGroupID struct {
	groupIndex int
	name       string
	bits       string
}

func (g *moduleGroup) addModule(sourceIndex uint32, size int) {
	if !g.modules[sourceIndex] {
		g.modules[sourceIndex] = true
		g.size += int64(size)
	}
}

func (g *moduleGroup) removeModule(sourceIndex uint32, size int) {
	if g.modules[sourceIndex] {
		delete(g.modules, sourceIndex)
		g.size -= int64(size)
	}
}

func (g *moduleGroup) sortedModules() []uint32 {
	modules := make([]uint32, 0, len(g.modules))
	for sourceIndex := range g.modules {
		modules = append(modules, sourceIndex)
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i] < modules[j] })
	return modules
}

// Manual groups take the modules they match out of the chunks the bits put
// them in. The runtime gets a chunk of its own first so no group can swallow
// it.
func (c *chunkerContext) applyManualGroups() error {
	advanced := c.options.AdvancedChunks
	if advanced == nil || len(advanced.Groups) == 0 {
		return nil
	}

	matchGroups := withGroupDefaults(advanced)
	groups, err := c.buildModuleGroups(matchGroups)
	if err != nil {
		return err
	}
	hasModules := false
	for _, group := range groups {
		if len(group.modules) > 0 {
			hasModules = true
			break
		}
	}
	if !hasModules {
		return nil
	}

	c.extractRuntimeChunk(groups)
	mergeEntriesAwareSubgroups(groups, matchGroups, c.moduleSize)

	// Higher priority goes first, then declaration order, then the name. The
	// list is consumed from the end.
	var pending []*moduleGroup
	for _, group := range groups {
		if !group.isRemoved && len(group.modules) > 0 {
			pending = append(pending, group)
		}
	}
	sortGroupsForPopping(pending)

	for len(pending) > 0 {
		group := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if len(group.modules) == 0 {
			continue
		}

		matchGroup := &matchGroups[group.groupIndex]
		if group.size < matchGroup.MinSize {
			c.zap.Debug("dropped manual group below the minimum size",
				zap.String("group", group.name), zap.Int64("size", group.size))
			continue
		}

		if matchGroup.MaxSize > 0 && group.size > matchGroup.MaxSize {
			if left, right, ok := c.splitOversizedGroup(group, matchGroup.MinSize, matchGroup.MaxSize); ok {
				pending = append(pending, left, right)
				continue
			}
		}

		c.emitChunkFromGroup(group, matchGroup, pending)
	}

	c.removeEmptyCommonChunks()
	return nil
}

func sortGroupsForPopping(groups []*moduleGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.groupIndex != b.groupIndex {
			return a.groupIndex > b.groupIndex
		}
		return a.name > b.name
	})
}

func (c *chunkerContext) moduleSize(sourceIndex uint32) int {
	return c.graph.Modules[sourceIndex].Size()
}

// Sizes and counts a group leaves at zero come from the defaults for every
// group. The groups in the options are not modified.
func withGroupDefaults(advanced *config.AdvancedChunksOptions) []config.MatchGroup {
	inherit64 := func(value int64, fallback int64) int64 {
		if value == 0 {
			return fallback
		}
		return value
	}

	matchGroups := make([]config.MatchGroup, len(advanced.Groups))
	for i, group := range advanced.Groups {
		group.MinSize = inherit64(group.MinSize, advanced.MinSize)
		group.MaxSize = inherit64(group.MaxSize, advanced.MaxSize)
		group.MinModuleSize = inherit64(group.MinModuleSize, advanced.MinModuleSize)
		group.MaxModuleSize = inherit64(group.MaxModuleSize, advanced.MaxModuleSize)
		if group.MinShareCount == 0 {
			group.MinShareCount = advanced.MinShareCount
		}
		matchGroups[i] = group
	}
	return matchGroups
}

func (c *chunkerContext) buildModuleGroups(matchGroups []config.MatchGroup) ([]*moduleGroup, error) {
	var groups []*moduleGroup
	groupByID := make(map[moduleGroupID]*moduleGroup)

	for _, sourceIndex := range c.graph.SortedModules {
		if !c.isChunkable(sourceIndex) || sourceIndex == c.graph.RuntimeSourceIndex || c.isPinnedEntryModule(sourceIndex) {
			continue
		}
		module := c.graph.Modules[sourceIndex]
		bits := c.moduleBits[sourceIndex]
		size := int64(module.Size())

		for groupIndex := range matchGroups {
			matchGroup := &matchGroups[groupIndex]
			if !matchGroup.Matches(module.ID) {
				continue
			}
			if size < matchGroup.MinModuleSize || (matchGroup.MaxModuleSize > 0 && size > matchGroup.MaxModuleSize) {
				continue
			}
			if uint32(bits.Count()) < matchGroup.MinShareCount {
				continue
			}

			name := matchGroup.Name
			if namer := c.namers[groupIndex]; namer != nil {
				custom, ok, err := namer.Name(c.ctx, module.ID)
				if err != nil {
					return nil, fmt.Errorf("naming manual group %d for %q: %w", groupIndex, module.ID, err)
				}
				if !ok {
					continue
				}
				name = custom
			}

			id := moduleGroupID{groupIndex: groupIndex, name: name}
			if matchGroup.EntriesAware {
				id.bits = bits.String()
			}
			group, ok := groupByID[id]
			if !ok {
				group = &moduleGroup{
					name:       name,
					groupIndex: groupIndex,
					priority:   matchGroup.Priority,
					modules:    make(map[uint32]bool),
					isAware:    matchGroup.EntriesAware,
					mergeOrder: len(groups),
				}
				if matchGroup.EntriesAware {
					group.bits = bits.Clone()
				}
				groupByID[id] = group
				groups = append(groups, group)
			}

			c.addModuleToGroup(group, sourceIndex, matchGroup.IncludeDependenciesRecursively, make(map[uint32]bool))
		}
	}

	return groups, nil
}

func (c *chunkerContext) addModuleToGroup(group *moduleGroup, sourceIndex uint32, recursively bool, visited map[uint32]bool) {
	if visited[sourceIndex] {
		return
	}
	visited[sourceIndex] = true
	if !c.isChunkable(sourceIndex) || sourceIndex == c.graph.RuntimeSourceIndex || c.isPinnedEntryModule(sourceIndex) {
		return
	}

	group.addModule(sourceIndex, c.moduleSize(sourceIndex))
	if recursively {
		for _, dependency := range c.graph.Metas[sourceIndex].Dependencies.Slice() {
			c.addModuleToGroup(group, dependency, recursively, visited)
		}
	}
}

func (c *chunkerContext) extractRuntimeChunk(groups []*moduleGroup) {
	runtimeIndex := c.graph.RuntimeSourceIndex
	if !c.graph.Metas[runtimeIndex].IsIncluded || c.moduleBits[runtimeIndex].IsEmpty() {
		return
	}
	chunkIndex := c.newChunk(Chunk{
		Name:           runtime.ChunkName,
		Bits:           c.moduleBits[runtimeIndex].Clone(),
		Kind:           ChunkCommon,
		CreationReason: ReasonRuntime,
	})
	for _, group := range groups {
		group.removeModule(runtimeIndex, c.moduleSize(runtimeIndex))
	}
	c.assignModule(runtimeIndex, chunkIndex)
	c.runtimeExtracted = true
}

func (c *chunkerContext) emitChunkFromGroup(group *moduleGroup, matchGroup *config.MatchGroup, remaining []*moduleGroup) {
	modules := group.sortedModules()

	bits := group.bits
	if !group.isAware {
		bits = c.moduleBits[modules[0]]
	}
	name := group.name
	if group.isAware {
		name = c.entriesAwareChunkName(group.name, bits)
	}

	chunkIndex := c.newChunk(Chunk{
		Name:           name,
		Bits:           bits.Clone(),
		Kind:           ChunkCommon,
		CreationReason: ReasonManualGroup,
	})
	c.debugf(chunkIndex, "manual group %q (index %d)", group.name, group.groupIndex)

	// Keep the chunk's modules in execution order
	sort.Slice(modules, func(i, j int) bool {
		return c.graph.Modules[modules[i]].ExecOrder < c.graph.Modules[modules[j]].ExecOrder
	})
	for _, sourceIndex := range modules {
		for _, other := range remaining {
			other.removeModule(sourceIndex, c.moduleSize(sourceIndex))
		}
		c.assignModule(sourceIndex, chunkIndex)
		c.chunks[chunkIndex].Bits.Union(c.moduleBits[sourceIndex])
	}

	c.zap.Debug("emitted manual chunk",
		zap.String("chunk", name),
		zap.Int("modules", len(modules)),
		zap.Int64("size", group.size))
}

// Entries-aware chunks are named after the entry points that load them:
//
//   vendor~main~admin
//
// Names that get too long are cut short and made unique with a hash
func (c *chunkerContext) entriesAwareChunkName(groupName string, bits helpers.BitSet) string {
	const maxNameLen = 100
	const hashLen = 8

	var names []string
	for _, bit := range bits.Ones() {
		names = append(names, c.graph.Entries[bit].Name)
	}
	return truncateChunkName(groupName, names, maxNameLen, hashLen)
}

func truncateChunkName(groupName string, entryNames []string, maxNameLen int, hashLen int) string {
	name := groupName
	if len(entryNames) > 0 {
		name += "~" + strings.Join(entryNames, "~")
	}
	if len(name) <= maxNameLen {
		return name
	}

	hash := helpers.HashBase36(name)
	for len(hash) < hashLen {
		hash = "0" + hash
	}
	cut := maxNameLen - hashLen - 1
	for cut > 0 && !isRuneStart(name[cut]) {
		cut--
	}
	return name[:cut] + "~" + hash[:hashLen]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func (c *chunkerContext) splitOversizedGroup(group *moduleGroup, minSize int64, maxSize int64) (*moduleGroup, *moduleGroup, bool) {
	modules := group.sortedModules()

	// Modules next to each other by path tend to belong together
	sort.Slice(modules, func(i, j int) bool {
		a, b := c.graph.Modules[modules[i]], c.graph.Modules[modules[j]]
		if a.StableID() != b.StableID() {
			return a.StableID() < b.StableID()
		}
		return a.ExecOrder < b.ExecOrder
	})

	keys := make([]string, len(modules))
	sizes := make([]int64, len(modules))
	for i, sourceIndex := range modules {
		keys[i] = c.graph.Modules[sourceIndex].StableID()
		sizes[i] = int64(c.moduleSize(sourceIndex))
	}

	split, ok := relevanceSplitIndex(keys, sizes, minSize, maxSize)
	if !ok {
		c.zap.Debug("dropped oversized manual group",
			zap.String("group", group.name), zap.Int64("size", group.size))
		return nil, nil, false
	}

	makeHalf := func(modules []uint32) *moduleGroup {
		half := &moduleGroup{
			name:       group.name,
			groupIndex: group.groupIndex,
			priority:   group.priority,
			modules:    make(map[uint32]bool),
			bits:       group.bits,
			isAware:    group.isAware,
		}
		for _, sourceIndex := range modules {
			half.addModule(sourceIndex, c.moduleSize(sourceIndex))
		}
		return half
	}
	return makeHalf(modules[:split]), makeHalf(modules[split:]), true
}

// Similarity differences up to this are noise, such as neighboring digits
const similaritySignificanceThreshold = 10

// Each byte position contributes up to 10 depending on how close the two
// bytes are, so paths sharing a long prefix score high
func stableIDSimilarity(a string, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	similarity := 0
	for i := 0; i < n; i++ {
		delta := int(a[i]) - int(b[i])
		if delta < 0 {
			delta = -delta
		}
		if delta < 10 {
			similarity += 10 - delta
		}
	}
	return similarity
}

// Picks where to cut a list of modules sorted by stable id. The cut goes
// where neighbors are least similar. When that doesn't clearly decide, fewer
// oversized halves win, then the smaller larger half. Both halves must be at
// least "minSize" big. Returns the index of the first module of the right
// half.
func relevanceSplitIndex(keys []string, sizes []int64, minSize int64, maxSize int64) (int, bool) {
	if len(keys) < 2 || len(keys) != len(sizes) {
		return 0, false
	}

	prefix := make([]int64, len(sizes)+1)
	for i, size := range sizes {
		prefix[i+1] = prefix[i] + size
	}
	total := prefix[len(sizes)]

	leftBound := 1
	for leftBound < len(sizes) && prefix[leftBound] < minSize {
		leftBound++
	}
	rightBound := len(sizes) - 1
	for rightBound > 0 && total-prefix[rightBound] < minSize {
		rightBound--
	}
	if leftBound > rightBound {
		return 0, false
	}

	best := -1
	bestSimilarity := 0
	bestOversized := 0
	var bestMaxSide int64

	for split := leftBound; split <= rightBound; split++ {
		left := prefix[split]
		right := total - left
		if left < minSize || right < minSize {
			continue
		}

		similarity := stableIDSimilarity(keys[split-1], keys[split])
		oversized := 0
		if left > maxSize {
			oversized++
		}
		if right > maxSize {
			oversized++
		}
		maxSide := left
		if right > maxSide {
			maxSide = right
		}

		var isBetter bool
		switch {
		case best == -1:
			isBetter = true
		case abs(bestSimilarity-similarity) > similaritySignificanceThreshold:
			isBetter = similarity < bestSimilarity
		case oversized != bestOversized:
			isBetter = oversized < bestOversized
		default:
			isBetter = maxSide < bestMaxSide
		}

		if isBetter {
			best = split
			bestSimilarity = similarity
			bestOversized = oversized
			bestMaxSide = maxSide
		}
	}

	return best, best != -1
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Entries-aware groups can shatter into many tiny subgroups, one per
// combination of entry points. Subgroups below the merge threshold are merged
// into the sibling whose entry points differ the least, smallest first.
func mergeEntriesAwareSubgroups(groups []*moduleGroup, matchGroups []config.MatchGroup, moduleSize func(uint32) int) {
	type origin struct {
		groupIndex int
		name       string
	}
	var origins []origin
	byOrigin := make(map[origin][]*moduleGroup)
	for _, group := range groups {
		if !group.isAware || matchGroups[group.groupIndex].EntriesAwareMergeThreshold <= 0 {
			continue
		}
		key := origin{group.groupIndex, group.name}
		if _, ok := byOrigin[key]; !ok {
			origins = append(origins, key)
		}
		byOrigin[key] = append(byOrigin[key], group)
	}

	for _, key := range origins {
		siblings := byOrigin[key]
		threshold := matchGroups[key.groupIndex].EntriesAwareMergeThreshold
		isBelow := func(group *moduleGroup) bool {
			return !group.isRemoved && len(group.modules) > 0 && group.size > 0 && group.size < threshold
		}

		versions := make(map[*moduleGroup]int)
		queue := &subgroupHeap{}
		for _, group := range siblings {
			if isBelow(group) {
				heap.Push(queue, subgroupHeapItem{group: group, size: group.size})
			}
		}

		for queue.Len() > 0 {
			item := heap.Pop(queue).(subgroupHeapItem)
			candidate := item.group
			if item.version != versions[candidate] || !isBelow(candidate) {
				continue
			}

			var target *moduleGroup
			var bestDiff int
			for _, other := range siblings {
				if other == candidate || other.isRemoved || len(other.modules) == 0 {
					continue
				}
				diff := candidate.bits.SymmetricDifferenceCount(other.bits)
				if target == nil || diff < bestDiff ||
					(diff == bestDiff && (other.size < target.size ||
						(other.size == target.size && other.mergeOrder < target.mergeOrder))) {
					target = other
					bestDiff = diff
				}
			}
			if target == nil {
				continue
			}

			for sourceIndex := range candidate.modules {
				target.addModule(sourceIndex, moduleSize(sourceIndex))
			}
			target.bits.Union(candidate.bits)
			candidate.modules = make(map[uint32]bool)
			candidate.size = 0
			candidate.isRemoved = true
			versions[candidate]++
			versions[target]++

			if isBelow(target) {
				heap.Push(queue, subgroupHeapItem{group: target, size: target.size, version: versions[target]})
			}
		}
	}
}

type subgroupHeapItem struct {
	group   *moduleGroup
	size    int64
	version int
}

// A min-heap by size. Stale items are detected with the version number.
type subgroupHeap []subgroupHeapItem

func (h subgroupHeap) Len() int { return len(h) }
func (h subgroupHeap) Less(i, j int) bool {
	if h[i].size != h[j].size {
		return h[i].size < h[j].size
	}
	return h[i].group.mergeOrder < h[j].group.mergeOrder
}
func (h subgroupHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *subgroupHeap) Push(x interface{}) { *h = append(*h, x.(subgroupHeapItem)) }
func (h *subgroupHeap) Pop() interface{} {
	old := *h
	item := old[len(old)-1]
	*h = old[:len(old)-1]
	return item
}
