package stats

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Totals maps "op:outcome" to the number of times it was recorded.
type Totals map[string]int64

// Recorder counts reservation operation outcomes. Record is best-effort and
// never fails the operation being counted.
type Recorder interface {
	Record(ctx context.Context, op, outcome string)
	Totals(ctx context.Context) (Totals, error)
}

func field(op, outcome string) string {
	return strings.TrimSpace(op) + ":" + strings.TrimSpace(outcome)
}

// Keys returns the recorded fields in a stable order.
func (t Totals) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MemoryRecorder keeps counters in process. It does not expire anything and
// is meant for single-instance runs and tests.
type MemoryRecorder struct {
	mu     sync.Mutex
	totals Totals
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{totals: make(Totals)}
}

func (m *MemoryRecorder) Record(_ context.Context, op, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[field(op, outcome)]++
}

func (m *MemoryRecorder) Totals(_ context.Context) (Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(Totals, len(m.totals))
	for k, v := range m.totals {
		out[k] = v
	}
	return out, nil
}
