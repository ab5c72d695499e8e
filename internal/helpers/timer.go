package helpers

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase timings are operational data, not diagnostics, so they go to zap
// instead of the message log. A nil timer is valid and does nothing.
type Timer struct {
	data  []timerData
	mutex sync.Mutex
}

type timerData struct {
	time  time.Time
	name  string
	isEnd bool
}

func (t *Timer) Begin(name string) {
	if t != nil {
		t.mutex.Lock()
		defer t.mutex.Unlock()
		t.data = append(t.data, timerData{
			name: name,
			time: time.Now(),
		})
	}
}

func (t *Timer) End(name string) {
	if t != nil {
		t.mutex.Lock()
		defer t.mutex.Unlock()
		t.data = append(t.data, timerData{
			name:  name,
			time:  time.Now(),
			isEnd: true,
		})
	}
}

type TimerEntry struct {
	Name     string
	Depth    int
	Duration time.Duration
}

// Pairs up each "Begin" with its "End". Entries are returned in the order
// their phases began.
func (t *Timer) Entries() []TimerEntry {
	if t == nil {
		return nil
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()

	type pair struct {
		timerData
		index int
	}

	var entries []TimerEntry
	var stack []pair

	for _, item := range t.data {
		if !item.isEnd {
			stack = append(stack, pair{timerData: item, index: len(entries)})
			entries = append(entries, TimerEntry{Name: item.name, Depth: len(stack) - 1})
		} else {
			last := len(stack) - 1
			top := stack[last]
			stack = stack[:last]
			if item.name != top.name {
				panic("Internal error: timer \"" + item.name + "\" ended inside \"" + top.name + "\"")
			}
			entries[top.index].Duration = item.time.Sub(top.time)
		}
	}

	return entries
}

func (t *Timer) Log(log *zap.Logger) {
	if t == nil || log == nil {
		return
	}
	for _, entry := range t.Entries() {
		log.Debug("phase timing",
			zap.String("phase", strings.Repeat("  ", entry.Depth)+entry.Name),
			zap.Duration("duration", entry.Duration))
	}
}
