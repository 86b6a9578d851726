package vault

import "time"

// maxHistoryEntries bounds per-entry history so a frequently-edited entry
// cannot grow the vault unboundedly.
const maxHistoryEntries = 20

// EntrySnapshot is a point-in-time copy of an entry's mutable state, taken
// before an update overwrites it, spec §4.1 "push_history(entry) must
// snapshot the entry atomically before its fields are overwritten".
type EntrySnapshot struct {
	Fields       map[string]Field
	Tags         []string
	LastModTime  time.Time
}

func snapshotEntry(e *Entry) EntrySnapshot {
	fields := make(map[string]Field, len(e.Fields))
	for k, v := range e.Fields {
		fields[k] = cloneField(v)
	}
	tags := make([]string, len(e.Tags))
	copy(tags, e.Tags)

	return EntrySnapshot{
		Fields:      fields,
		Tags:        tags,
		LastModTime: e.LastModTime,
	}
}

func cloneField(f Field) Field {
	if mf, ok := f.(MaskedField); ok {
		return mf.clone()
	}
	return f
}

// pushHistory snapshots e's current state into its history, trimming the
// oldest entries once the bound is exceeded.
func pushHistory(e *Entry) {
	e.History = append(e.History, snapshotEntry(e))
	if len(e.History) > maxHistoryEntries {
		e.History = e.History[len(e.History)-maxHistoryEntries:]
	}
}
