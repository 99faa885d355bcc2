// Package journal provides the append-only action log the Coordinator
// writes on every committed transition. This package has no dependencies
// on sim/: it stores pure data records, keeps a bounded in-memory tail
// for GetRecentLogs, and optionally streams each entry as one JSON line
// to a sink.
package journal

import (
	"encoding/json"
	"io"
	"sync"
)

// Entry is one committed (or rejected) transition.
type Entry struct {
	Tick       int64  `json:"tick"`
	Entity     string `json:"entity"`
	ID         string `json:"id"`
	Transition string `json:"transition"`
	Result     string `json:"result"`
}

// DefaultCapacity bounds the in-memory tail when no explicit capacity is
// given.
const DefaultCapacity = 1000

// Journal records transition entries. Safe for concurrent use.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
	sink    io.Writer
	dropped int64
}

// New creates a Journal keeping at most capacity entries in memory.
// sink may be nil; when set, every entry is also written as a JSON line.
func New(capacity int, sink io.Writer) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{cap: capacity, sink: sink}
}

// Record appends an entry, evicting the oldest in-memory entry past
// capacity. Sink write failures are silently dropped: the journal must
// never fail a commit.
func (j *Journal) Record(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	if len(j.entries) > j.cap {
		j.entries = j.entries[len(j.entries)-j.cap:]
		j.dropped++
	}
	if j.sink != nil {
		if b, err := json.Marshal(e); err == nil {
			j.sink.Write(append(b, '\n'))
		}
	}
}

// Tail returns the most recent n entries, oldest first. n larger than the
// retained tail returns everything retained.
func (j *Journal) Tail(n int) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n <= 0 || len(j.entries) == 0 {
		return nil
	}
	if n > len(j.entries) {
		n = len(j.entries)
	}
	out := make([]Entry, n)
	copy(out, j.entries[len(j.entries)-n:])
	return out
}

// Len returns the number of retained entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Dropped returns how many times the tail was trimmed to capacity.
func (j *Journal) Dropped() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}
