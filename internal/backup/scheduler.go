// Package backup implements scheduled and threshold-triggered vault
// snapshots, independent of the user-initiated persist path.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kdbxkeeper/keeper/internal/kdbx"
	"github.com/kdbxkeeper/keeper/internal/store"
	"github.com/kdbxkeeper/keeper/internal/vault"
	"github.com/kdbxkeeper/keeper/krypto"
)

// hourlyInterval and editThreshold are the two automatic snapshot triggers —
// spec §4.6 "Policies".
const (
	hourlyInterval = time.Hour
	editThreshold  = 10
)

// retentionCount and retentionWindow together define snapshot retention: a
// snapshot survives if it satisfies either — spec §4.6 "Storage".
const (
	retentionCount  = 10
	retentionWindow = 30 * 24 * time.Hour
)

// Reason enumerates why a snapshot was taken.
type Reason string

const (
	ReasonHourly        Reason = "hourly"
	ReasonEditThreshold Reason = "edit_threshold"
	ReasonManual        Reason = "manual"
)

type snapshotRecord struct {
	Timestamp  string `json:"timestamp"`
	Version    int64  `json:"version"`
	Reason     Reason `json:"reason"`
	Size       int    `json:"size"`
	EditCount  int    `json:"editCount"`
	Blob       []byte `json:"blob"`
}

// HistoryEntry is a single row returned by History.
type HistoryEntry struct {
	Timestamp time.Time
	Version   int64
	Reason    Reason
	Size      int
}

// Scheduler owns the hourly timer and edit counter, and snapshots the
// current vault into backup_snapshots — spec §4.6.
type Scheduler struct {
	secondary *store.SecondaryStore
	dual      *store.DualStore

	editCounter  int
	nextHourlyAt time.Time
}

// New wires a Scheduler and recomputes the hourly timer's next fire time
// from the newest existing snapshot, so a host restart doesn't reset the
// hour — spec §4.6 "must be robust to host restart". The caller is expected
// to invoke NoteEdit after every successful persist with reason=edit — the
// dual store deliberately has no notion of vault/passphrase/KDF, which
// NoteEdit's own snapshot path needs, so the counting can't live behind its
// OnPersist hook.
func New(secondary *store.SecondaryStore, dual *store.DualStore, now time.Time) (*Scheduler, error) {
	s := &Scheduler{secondary: secondary, dual: dual}

	latest, err := s.latestSnapshotTime()
	if err != nil {
		return nil, err
	}
	if latest.IsZero() {
		s.nextHourlyAt = now.Add(hourlyInterval)
	} else {
		s.nextHourlyAt = latest.Add(hourlyInterval)
	}

	return s, nil
}

// Tick fires the hourly snapshot if its time has come. It runs only when a
// caller invokes it; neither the dispatcher nor cmd/keeper-host calls it.
func (s *Scheduler) Tick(v *vault.Vault, passphrase string, argon2Func krypto.Argon2Func, now time.Time) error {
	if now.Before(s.nextHourlyAt) {
		return nil
	}
	if err := s.Snapshot(v, passphrase, argon2Func, ReasonHourly, now); err != nil {
		return err
	}
	s.nextHourlyAt = now.Add(hourlyInterval)
	return nil
}

// NoteEdit increments the edit counter and, once it reaches editThreshold,
// takes a snapshot and resets it — spec §4.6 "Edit-threshold snapshot".
func (s *Scheduler) NoteEdit(v *vault.Vault, passphrase string, argon2Func krypto.Argon2Func, now time.Time) error {
	s.editCounter++
	if s.editCounter < editThreshold {
		return nil
	}
	if err := s.Snapshot(v, passphrase, argon2Func, ReasonEditThreshold, now); err != nil {
		return err
	}
	s.editCounter = 0
	return nil
}

// Snapshot serializes v and stores it under backup_snapshots, then enforces
// retention.
func (s *Scheduler) Snapshot(v *vault.Vault, passphrase string, argon2Func krypto.Argon2Func, reason Reason, now time.Time) error {
	blob, err := kdbx.Save(v, passphrase, argon2Func)
	if err != nil {
		return fmt.Errorf("backup: serialize vault: %w", err)
	}

	ts := now.UTC().Format(time.RFC3339Nano)
	rec := snapshotRecord{
		Timestamp: ts, Reason: reason, Size: len(blob),
		EditCount: s.editCounter, Blob: blob,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("backup: encode snapshot: %w", err)
	}
	if err := s.secondary.Put(store.StoreBackupSnapshots, ts, data, now.Unix(), ts); err != nil {
		return fmt.Errorf("backup: store snapshot: %w", err)
	}

	return s.applyRetention(now)
}

// History returns up to limit snapshots, newest first — spec §4.6 "History
// query".
func (s *Scheduler) History(limit int) ([]HistoryEntry, error) {
	objs, err := s.secondary.ListByTSDesc(store.StoreBackupSnapshots)
	if err != nil {
		return nil, fmt.Errorf("backup: list snapshots: %w", err)
	}
	if limit > 0 && limit < len(objs) {
		objs = objs[:limit]
	}

	out := make([]HistoryEntry, 0, len(objs))
	for _, obj := range objs {
		var rec snapshotRecord
		if err := json.Unmarshal(obj.Value, &rec); err != nil {
			return nil, fmt.Errorf("backup: decode snapshot %s: %w", obj.Key, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("backup: parse timestamp %s: %w", obj.Key, err)
		}
		out = append(out, HistoryEntry{Timestamp: ts, Version: rec.Version, Reason: rec.Reason, Size: rec.Size})
	}
	return out, nil
}

// ErrSnapshotNotFound indicates no snapshot exists at the requested
// timestamp.
var ErrSnapshotNotFound = errors.New("backup: snapshot not found")

// Restore locates the snapshot at timestamp, decrypts it with passphrase,
// and persists it back through the dual store with reason=recovery — spec
// §4.6 "Restore".
func (s *Scheduler) Restore(timestamp time.Time, passphrase string, argon2Func krypto.Argon2Func, now time.Time) (*vault.Vault, error) {
	key := timestamp.UTC().Format(time.RFC3339Nano)
	obj, err := s.secondary.Get(store.StoreBackupSnapshots, key)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("backup: read snapshot: %w", err)
	}

	var rec snapshotRecord
	if err := json.Unmarshal(obj.Value, &rec); err != nil {
		return nil, fmt.Errorf("backup: decode snapshot: %w", err)
	}

	v, err := kdbx.Load(rec.Blob, passphrase, argon2Func)
	if err != nil {
		return nil, fmt.Errorf("backup: load snapshot: %w", err)
	}

	if _, err := s.dual.Persist(rec.Blob, map[string]any{"name": v.Meta.Name}, "recovery", now); err != nil {
		return nil, fmt.Errorf("backup: persist restored snapshot: %w", err)
	}

	return v, nil
}

func (s *Scheduler) latestSnapshotTime() (time.Time, error) {
	objs, err := s.secondary.ListByTSDesc(store.StoreBackupSnapshots)
	if err != nil {
		return time.Time{}, fmt.Errorf("backup: list snapshots: %w", err)
	}
	if len(objs) == 0 {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, objs[0].TS)
}

// applyRetention keeps a snapshot if it's among the newest retentionCount,
// or younger than retentionWindow — whichever is more generous — pruning
// everything else.
func (s *Scheduler) applyRetention(now time.Time) error {
	objs, err := s.secondary.ListByTSDesc(store.StoreBackupSnapshots)
	if err != nil {
		return fmt.Errorf("backup: retention: list: %w", err)
	}

	cutoff := now.Add(-retentionWindow)
	for i, obj := range objs {
		if i < retentionCount {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, obj.TS)
		if err != nil {
			return fmt.Errorf("backup: retention: parse timestamp: %w", err)
		}
		if ts.After(cutoff) {
			continue
		}
		if err := s.secondary.Delete(store.StoreBackupSnapshots, obj.Key); err != nil {
			return fmt.Errorf("backup: retention: delete %s: %w", obj.Key, err)
		}
	}
	return nil
}
