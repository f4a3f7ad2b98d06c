package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *Debouncer, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(timeout):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

func expectNothing(t *testing.T, d *Debouncer, wait time.Duration) {
	t.Helper()
	select {
	case events := <-d.Output():
		t.Fatalf("unexpected batch: %+v", events)
	case <-time.After(wait):
	}
}

func TestDebouncer_SingleEventPassesThrough(t *testing.T) {
	// Given: a debouncer with a short window
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	// When: one event is added
	d.Add(FileEvent{Path: "u1/a.pdf", Operation: OpCreate, Timestamp: time.Now()})

	// Then: it is delivered after the window
	events := receive(t, d, 500*time.Millisecond)
	require.Len(t, events, 1)
	assert.Equal(t, "u1/a.pdf", events[0].Path)
	assert.Equal(t, OpCreate, events[0].Operation)
}

func TestDebouncer_Coalescing(t *testing.T) {
	tests := []struct {
		name   string
		ops    []Operation
		want   Operation
		cancel bool
	}{
		{"modify burst", []Operation{OpModify, OpModify, OpModify}, OpModify, false},
		{"create then modify", []Operation{OpCreate, OpModify}, OpCreate, false},
		{"create then delete", []Operation{OpCreate, OpDelete}, 0, true},
		{"modify then delete", []Operation{OpModify, OpDelete}, OpDelete, false},
		{"delete then create", []Operation{OpDelete, OpCreate}, OpModify, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(40 * time.Millisecond)
			defer d.Stop()

			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "u1/doc.txt", Operation: op, Timestamp: time.Now()})
			}

			if tt.cancel {
				expectNothing(t, d, 150*time.Millisecond)
				return
			}
			events := receive(t, d, 500*time.Millisecond)
			require.Len(t, events, 1)
			assert.Equal(t, tt.want, events[0].Operation)
		})
	}
}

func TestDebouncer_BatchSortedByPath(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	for _, p := range []string{"u1/c", "u1/a", "u2/b"} {
		d.Add(FileEvent{Path: p, Operation: OpModify})
	}

	events := receive(t, d, 500*time.Millisecond)
	require.Len(t, events, 3)
	assert.Equal(t, "u1/a", events[0].Path)
	assert.Equal(t, "u1/c", events[1].Path)
	assert.Equal(t, "u2/b", events[2].Path)
}

func TestDebouncer_SlowConsumerLosesNothing(t *testing.T) {
	// Given: more batches than the output buffer holds, nobody reading
	d := NewDebouncer(time.Millisecond)
	defer d.Stop()

	const batches = 40
	for i := 0; i < batches; i++ {
		d.Add(FileEvent{Path: "u1/f" + string(rune('A'+i)), Operation: OpCreate})
		time.Sleep(5 * time.Millisecond)
	}

	// When: the consumer catches up
	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < batches {
		select {
		case events := <-d.Output():
			for _, e := range events {
				seen[e.Path] = true
			}
		case <-deadline:
			t.Fatalf("received %d of %d paths", len(seen), batches)
		}
	}

	// Then: every path was delivered
	assert.Len(t, seen, batches)
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Path: "u1/a", Operation: OpCreate})

	d.Stop()
	d.Stop()

	_, ok := <-d.Output()
	assert.False(t, ok)

	// Adding after stop is ignored
	d.Add(FileEvent{Path: "u1/b", Operation: OpCreate})
}
