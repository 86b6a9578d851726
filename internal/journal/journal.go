// Package journal tracks atomic operations across their begin/complete/
// rollback lifecycle so an unclean shutdown of the host process can be
// detected and resolved the next time it starts.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kdbxkeeper/keeper/internal/store"
	"github.com/kdbxkeeper/keeper/internal/token"
)

// maxJournalEntries caps state_journal at 500 rows, oldest first by
// timestamp — spec §4.5 "Pruning".
const maxJournalEntries = 500

// maxRetryAttempts bounds how many times an incomplete operation is retried
// before startup recovery gives up on it.
const maxRetryAttempts = 3

// Status is the lifecycle state of a journal record.
type Status string

const (
	StatusStarted    Status = "started"
	StatusCompleted  Status = "completed"
	StatusRolledBack Status = "rolled_back"
)

// Record is a single state_journal / incomplete_operations entry.
type Record struct {
	OpID             string `json:"opId"`
	Type             string `json:"type"`
	Payload          any    `json:"payload,omitempty"`
	Status           Status `json:"status"`
	DatabaseChecksum string `json:"databaseChecksum"`
	ResultChecksum   string `json:"resultChecksum,omitempty"`
	Error            string `json:"error,omitempty"`
	Attempts         int    `json:"attempts"`
	StartedAt        string `json:"startedAt"`
	CompletedAt      string `json:"completedAt,omitempty"`
}

// RecoverySummary is returned by Recover for observability.
type RecoverySummary struct {
	Incomplete int
	Failed     int
	Recovered  int
	RolledBack int
}

// Journal persists operation records into the secondary store's
// state_journal and incomplete_operations logical stores.
type Journal struct {
	secondary *store.SecondaryStore
}

// New wires a Journal over an already-opened secondary store.
func New(secondary *store.SecondaryStore) *Journal {
	return &Journal{secondary: secondary}
}

// Begin records the start of an atomic operation and returns its opId —
// spec §4.5 "begin".
func (j *Journal) Begin(opType string, payload any, currentChecksum string, now time.Time) (string, error) {
	opID := token.OpID(now)
	if currentChecksum == "" {
		currentChecksum = "unknown"
	}

	rec := Record{
		OpID: opID, Type: opType, Payload: payload,
		Status: StatusStarted, DatabaseChecksum: currentChecksum,
		StartedAt: now.UTC().Format(time.RFC3339Nano),
	}
	if err := j.putJournal(rec, now); err != nil {
		return "", err
	}
	if err := j.putIncomplete(rec, now); err != nil {
		return "", err
	}
	if err := j.prune(); err != nil {
		return "", err
	}
	return opID, nil
}

// Complete marks opID as completed with resultChecksum — spec §4.5
// "complete".
func (j *Journal) Complete(opID, resultChecksum string, now time.Time) error {
	rec, err := j.get(opID)
	if err != nil {
		return err
	}
	rec.Status = StatusCompleted
	rec.ResultChecksum = resultChecksum
	rec.CompletedAt = now.UTC().Format(time.RFC3339Nano)

	if err := j.putJournal(*rec, now); err != nil {
		return err
	}
	return j.secondary.Delete(store.StoreIncompleteOperations, opID)
}

// Rollback marks opID as rolled back with the given error — spec §4.5
// "rollback".
func (j *Journal) Rollback(opID string, cause error, now time.Time) error {
	rec, err := j.get(opID)
	if err != nil {
		return err
	}
	rec.Status = StatusRolledBack
	if cause != nil {
		rec.Error = cause.Error()
	}
	rec.CompletedAt = now.UTC().Format(time.RFC3339Nano)

	if err := j.putJournal(*rec, now); err != nil {
		return err
	}
	return j.secondary.Delete(store.StoreIncompleteOperations, opID)
}

// Recover scans incomplete_operations at startup, resolving each against
// the on-disk blob's current checksum — spec §4.5 "Startup recovery".
func (j *Journal) Recover(currentBlobChecksum string, now time.Time) (RecoverySummary, error) {
	var summary RecoverySummary

	objs, err := j.secondary.ListByTSDesc(store.StoreIncompleteOperations)
	if err != nil {
		return summary, fmt.Errorf("journal: list incomplete operations: %w", err)
	}
	summary.Incomplete = len(objs)

	for _, obj := range objs {
		var rec Record
		if err := json.Unmarshal(obj.Value, &rec); err != nil {
			return summary, fmt.Errorf("journal: decode incomplete op %s: %w", obj.Key, err)
		}

		if rec.ResultChecksum != "" && rec.ResultChecksum == currentBlobChecksum {
			rec.Status = StatusCompleted
			rec.CompletedAt = now.UTC().Format(time.RFC3339Nano)
			if err := j.putJournal(rec, now); err != nil {
				return summary, err
			}
			if err := j.secondary.Delete(store.StoreIncompleteOperations, rec.OpID); err != nil {
				return summary, err
			}
			summary.Recovered++
			continue
		}

		rec.Attempts++
		if rec.Attempts < maxRetryAttempts {
			if err := j.putIncomplete(rec, now); err != nil {
				return summary, err
			}
			summary.Failed++
			continue
		}

		rec.Status = StatusRolledBack
		rec.Error = "exceeded_retries"
		rec.CompletedAt = now.UTC().Format(time.RFC3339Nano)
		if err := j.putJournal(rec, now); err != nil {
			return summary, err
		}
		if err := j.secondary.Delete(store.StoreIncompleteOperations, rec.OpID); err != nil {
			return summary, err
		}
		summary.RolledBack++
	}

	return summary, nil
}

// Clear empties both the journal and the incomplete-operations stores —
// spec §4.5 "clear()".
func (j *Journal) Clear() error {
	if err := j.secondary.ClearStore(store.StoreJournal); err != nil {
		return err
	}
	return j.secondary.ClearStore(store.StoreIncompleteOperations)
}

func (j *Journal) get(opID string) (*Record, error) {
	obj, err := j.secondary.Get(store.StoreJournal, opID)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, fmt.Errorf("journal: no record for opId %s", opID)
		}
		return nil, fmt.Errorf("journal: read opId %s: %w", opID, err)
	}
	var rec Record
	if err := json.Unmarshal(obj.Value, &rec); err != nil {
		return nil, fmt.Errorf("journal: decode opId %s: %w", opID, err)
	}
	return &rec, nil
}

func (j *Journal) putJournal(rec Record, now time.Time) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: encode record %s: %w", rec.OpID, err)
	}
	return j.secondary.Put(store.StoreJournal, rec.OpID, data, 0, rec.StartedAt)
}

func (j *Journal) putIncomplete(rec Record, now time.Time) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: encode incomplete record %s: %w", rec.OpID, err)
	}
	return j.secondary.Put(store.StoreIncompleteOperations, rec.OpID, data, 0, rec.StartedAt)
}

// prune caps state_journal at maxJournalEntries rows, oldest first by
// timestamp.
func (j *Journal) prune() error {
	objs, err := j.secondary.ListByTSDesc(store.StoreJournal)
	if err != nil {
		return fmt.Errorf("journal: prune: list: %w", err)
	}
	if len(objs) <= maxJournalEntries {
		return nil
	}
	// objs is newest-first; the excess tail is the oldest entries.
	for _, obj := range objs[maxJournalEntries:] {
		if err := j.secondary.Delete(store.StoreJournal, obj.Key); err != nil {
			return fmt.Errorf("journal: prune: delete %s: %w", obj.Key, err)
		}
	}
	return nil
}
