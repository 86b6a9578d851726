package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kdbxkeeper/keeper/internal/token"
)

// maxVersionHistory caps how many database_versions rows survive a persist
// — spec §4.4 step 8.
const maxVersionHistory = 5

const currentKey = "db:current"
const syncStatusKey = "sync:status"
const recoveryCodesKey = "recovery:current"

// ErrNotFound is returned by Recover when neither the requested version nor
// a primary fallback is available.
var ErrNotFound = errors.New("dual store: version not found")

// IntegrityStatus mirrors the sync_status.integrity enum spec §3 names.
type IntegrityStatus string

const (
	IntegrityHealthy   IntegrityStatus = "healthy"
	IntegrityDegraded  IntegrityStatus = "degraded"
	IntegrityCorrupted IntegrityStatus = "corrupted"
)

// databaseRecord is the JSON shape stored at databases["db:current"] and at
// each database_versions[v] entry.
type databaseRecord struct {
	Blob      []byte         `json:"blob"`
	Checksum  string         `json:"checksum"`
	Timestamp string         `json:"timestamp"`
	Version   int64          `json:"version"`
	Metadata  map[string]any `json:"metadata"`
	Source    string         `json:"source,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

type syncStatusRecord struct {
	LastSync  string `json:"lastSync"`
	Checksum  string `json:"checksum"`
	Integrity string `json:"integrity"`
}

// recoveryCodesRecord is the JSON shape stored at recovery_codes["recovery:current"]
// — spec §3. Only the checksums are retained; the plaintext codes are shown to the
// caller once, at generation time, and never written to either store.
type recoveryCodesRecord struct {
	Hashes    []string `json:"hashes"`
	CreatedAt string   `json:"createdAt"`
}

// PersistResult enumerates what happened to each leg of a persist call —
// spec §4.4 step 9.
type PersistResult struct {
	PrimaryOK     bool
	SecondaryOK   bool
	ChecksumMatch bool
	Version       int64
	Warnings      []string
}

// Success reports whether both legs of the write succeeded.
func (r PersistResult) Success() bool { return r.PrimaryOK && r.SecondaryOK }

// LoadResult is what DualStore.Load returns on a hit.
type LoadResult struct {
	Blob     []byte
	Metadata map[string]any
	Source   string
	Version  int64
	Checksum string
}

// HealthReport surfaces the durability posture of the store for diagnostics.
type HealthReport struct {
	PrimaryBytes    int64
	SecondaryBytes  int64
	LastSyncTime    string
	LastChecksum    string
	VersionCount    int
	LatestVersion   int64
	Integrity       IntegrityStatus
	Warnings        []string
}

// DualStore orchestrates the primary flat-file store and the secondary
// sqlite-backed indexed store behind the single persist/load/recover API
// spec §4.4 describes.
type DualStore struct {
	primary   *PrimaryStore
	secondary *SecondaryStore

	// onPersist, if set, is invoked after every successful persist with the
	// reason that was supplied. Nothing registers it in production today —
	// the backup scheduler (C6) tracks edits via NoteEdit called directly
	// from the dispatcher's persistEdit instead (see scheduler.go) — but the
	// hook stays so a future persist-driven consumer doesn't need a new
	// extension point.
	onPersist func(reason string)
}

// New wires a DualStore over an already-opened primary and secondary store.
func New(primary *PrimaryStore, secondary *SecondaryStore) *DualStore {
	return &DualStore{primary: primary, secondary: secondary}
}

// OnPersist registers a hook invoked with the reason string after each
// successful Persist call.
func (d *DualStore) OnPersist(fn func(reason string)) {
	d.onPersist = fn
}

// Persist writes blob through both stores, verifies the primary read-back,
// updates sync_status, and prunes old versions — spec §4.4 "persist".
func (d *DualStore) Persist(blob []byte, metadata map[string]any, reason string, now time.Time) (PersistResult, error) {
	var result PersistResult
	nowStr := now.UTC().Format(time.RFC3339Nano)
	checksum := token.Checksum(blob)

	current, err := d.currentRecord()
	if err != nil {
		return result, fmt.Errorf("dual store: read current version: %w", err)
	}
	version := int64(1)
	if current != nil {
		version = current.Version + 1
	}
	result.Version = version

	enriched := cloneMetadata(metadata)
	enriched["version"] = version
	enriched["timestamp"] = nowStr

	dbRecord := databaseRecord{
		Blob: blob, Checksum: checksum, Timestamp: nowStr,
		Version: version, Metadata: enriched, Source: reason,
	}
	if err := d.putRecord(StoreDatabases, currentKey, dbRecord, version, nowStr); err != nil {
		result.Warnings = append(result.Warnings, err.Error())
	} else {
		result.SecondaryOK = true
	}

	versionRecord := databaseRecord{
		Blob: blob, Checksum: checksum, Timestamp: nowStr,
		Version: version, Metadata: enriched, Reason: "current",
	}
	if err := d.putRecord(StoreDatabaseVersions, strconv.FormatInt(version, 10), versionRecord, version, nowStr); err != nil {
		result.Warnings = append(result.Warnings, err.Error())
		result.SecondaryOK = false
	}

	if err := d.primary.Write(blob, enriched); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("primary write failed: %v", err))
	} else {
		result.PrimaryOK = true
	}

	readBack, _, err := d.primary.Read()
	result.ChecksumMatch = err == nil && token.Checksum(readBack) == checksum
	if !result.ChecksumMatch {
		// Retry the read-back once before reporting a mismatch.
		readBack, _, err = d.primary.Read()
		result.ChecksumMatch = err == nil && token.Checksum(readBack) == checksum
	}
	if !result.ChecksumMatch {
		result.Warnings = append(result.Warnings, "primary read-back checksum mismatch")
	}

	integrity := IntegrityHealthy
	if !result.ChecksumMatch {
		integrity = IntegrityDegraded
	}
	status := syncStatusRecord{LastSync: nowStr, Checksum: checksum, Integrity: string(integrity)}
	if err := d.putRecord(StoreSyncStatus, syncStatusKey, status, version, nowStr); err != nil {
		result.Warnings = append(result.Warnings, err.Error())
	}

	if err := d.pruneVersions(); err != nil {
		result.Warnings = append(result.Warnings, err.Error())
	}

	if result.SecondaryOK && d.onPersist != nil {
		d.onPersist(reason)
	}

	return result, nil
}

// Load returns the current record, preferring the primary store and falling
// back to the secondary — spec §4.4 "load".
func (d *DualStore) Load() (*LoadResult, error) {
	if blob, metadata, err := d.primary.Read(); err == nil {
		return &LoadResult{
			Blob: blob, Metadata: metadata, Source: "primary",
			Version:  versionFromMetadata(metadata),
			Checksum: token.Checksum(blob),
		}, nil
	} else if !errors.Is(err, ErrNotExist) {
		return nil, fmt.Errorf("dual store: read primary: %w", err)
	}

	current, err := d.currentRecord()
	if err != nil {
		return nil, fmt.Errorf("dual store: read secondary: %w", err)
	}
	if current == nil {
		return nil, nil
	}
	return &LoadResult{
		Blob: current.Blob, Metadata: current.Metadata, Source: "secondary",
		Version: current.Version, Checksum: current.Checksum,
	}, nil
}

// Recover returns the blob stored at versionID, falling back to the primary
// "current" envelope if that version is missing, and failing with
// ErrNotFound if neither is available — spec §4.4 "Version recovery".
func (d *DualStore) Recover(versionID int64) ([]byte, error) {
	obj, err := d.secondary.Get(StoreDatabaseVersions, strconv.FormatInt(versionID, 10))
	if err == nil {
		var rec databaseRecord
		if err := json.Unmarshal(obj.Value, &rec); err != nil {
			return nil, fmt.Errorf("dual store: decode version %d: %w", versionID, err)
		}
		return rec.Blob, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, fmt.Errorf("dual store: read version %d: %w", versionID, err)
	}

	blob, _, perr := d.primary.Read()
	if perr == nil {
		return blob, nil
	}
	return nil, ErrNotFound
}

// PutRecoveryCodes replaces the stored recovery-code checksums — spec §3
// "recovery_codes", keyed "recovery:current". Only hashes are persisted; the
// plaintext codes must already have been shown to the caller by this point.
func (d *DualStore) PutRecoveryCodes(hashes []string, now time.Time) error {
	rec := recoveryCodesRecord{Hashes: hashes, CreatedAt: now.UTC().Format(time.RFC3339Nano)}
	nowStr := rec.CreatedAt
	return d.putRecord(StoreRecoveryCodes, recoveryCodesKey, rec, 0, nowStr)
}

// HasRecoveryCodes reports whether recovery codes have been generated for the
// current database.
func (d *DualStore) HasRecoveryCodes() (bool, error) {
	_, err := d.secondary.Get(StoreRecoveryCodes, recoveryCodesKey)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Health reports the durability posture of the store — spec §4.4 "Health
// report".
func (d *DualStore) Health() (HealthReport, error) {
	var report HealthReport

	primaryBytes, err := d.primary.Size()
	if err != nil {
		return report, err
	}
	report.PrimaryBytes = primaryBytes

	secondaryBytes, err := d.secondary.Size()
	if err != nil {
		return report, err
	}
	report.SecondaryBytes = secondaryBytes

	versions, err := d.secondary.ListByVersionAsc(StoreDatabaseVersions)
	if err != nil {
		return report, err
	}
	report.VersionCount = len(versions)
	if len(versions) > 0 {
		report.LatestVersion = versions[len(versions)-1].Version
	}

	statusObj, err := d.secondary.Get(StoreSyncStatus, syncStatusKey)
	switch {
	case err == nil:
		var status syncStatusRecord
		if err := json.Unmarshal(statusObj.Value, &status); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("decode sync status: %v", err))
		} else {
			report.LastSyncTime = status.LastSync
			report.LastChecksum = status.Checksum
			report.Integrity = IntegrityStatus(status.Integrity)
		}
	case errors.Is(err, ErrKeyNotFound):
		report.Integrity = IntegrityHealthy
	default:
		return report, err
	}

	return report, nil
}

// CompleteDeletion empties every logical secondary store and clears the
// primary envelope — spec §4.4 "Complete deletion".
func (d *DualStore) CompleteDeletion() error {
	if err := d.secondary.ClearAll(); err != nil {
		return err
	}
	return d.primary.Clear()
}

func (d *DualStore) currentRecord() (*databaseRecord, error) {
	obj, err := d.secondary.Get(StoreDatabases, currentKey)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec databaseRecord
	if err := json.Unmarshal(obj.Value, &rec); err != nil {
		return nil, fmt.Errorf("decode current record: %w", err)
	}
	return &rec, nil
}

func (d *DualStore) putRecord(storeName, key string, v any, version int64, ts string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", storeName, key, err)
	}
	return d.secondary.Put(storeName, key, data, version, ts)
}

func (d *DualStore) pruneVersions() error {
	versions, err := d.secondary.ListByVersionAsc(StoreDatabaseVersions)
	if err != nil {
		return fmt.Errorf("prune versions: list: %w", err)
	}
	excess := len(versions) - maxVersionHistory
	for i := 0; i < excess; i++ {
		if err := d.secondary.Delete(StoreDatabaseVersions, versions[i].Key); err != nil {
			return fmt.Errorf("prune versions: delete %s: %w", versions[i].Key, err)
		}
	}
	return nil
}

func cloneMetadata(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

func versionFromMetadata(metadata map[string]any) int64 {
	raw, ok := metadata["version"]
	if !ok {
		return 0
	}
	switch n := raw.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
