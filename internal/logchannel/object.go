package logchannel

import "sync"

// ProcessTable is a lifetime-anchored Object: an id-to-name lookup the rest
// of the service can query to annotate log entries with a human-readable
// process name, populated independently of the entry-processing path.
type ProcessTable struct {
	mu    sync.RWMutex
	names map[int]string
}

// NewProcessTable returns an empty table ready to attach.
func NewProcessTable() *ProcessTable {
	return &ProcessTable{names: make(map[int]string)}
}

func (t *ProcessTable) Name() string { return "process-table" }

// Anchor has no behavior; it exists solely so ProcessTable satisfies Object
// and nothing else.
func (t *ProcessTable) Anchor() {}

// Record associates pid with name, overwriting any prior entry.
func (t *ProcessTable) Record(pid int, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names[pid] = name
}

// Lookup returns the recorded name for pid, if any.
func (t *ProcessTable) Lookup(pid int) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.names[pid]
	return name, ok
}

// Forget removes pid from the table, called when a process exits.
func (t *ProcessTable) Forget(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.names, pid)
}
