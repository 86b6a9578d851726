package keeper

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kdbxkeeper/keeper/auth"
	"github.com/kdbxkeeper/keeper/internal/backup"
	"github.com/kdbxkeeper/keeper/internal/journal"
	"github.com/kdbxkeeper/keeper/internal/kdbx"
	"github.com/kdbxkeeper/keeper/internal/session"
	"github.com/kdbxkeeper/keeper/internal/store"
	"github.com/kdbxkeeper/keeper/internal/token"
	"github.com/kdbxkeeper/keeper/internal/vault"
	"github.com/kdbxkeeper/keeper/krypto"
)

// InitReport is returned by the storage-init barrier — spec §4.8
// "Storage-init barrier ... returns a report".
type InitReport struct {
	Recovery journal.RecoverySummary
	Health   store.HealthReport
}

// Dispatcher is the sole ingress described by spec §4.8: it routes typed
// requests to the session manager, vault model, dual store, journal, and
// backup scheduler, wrapping every mutation in journal begin/complete/
// rollback and enforcing the Unlocked guard with auto-unlock fallback.
//
// Grounded on the teacher's native-host/main.go handleRequest switch-on-
// type dispatch; unlike the teacher, there is no mutex here — spec §5's
// single task loop means Dispatch is never called concurrently with
// itself.
type Dispatcher struct {
	session    *session.Manager
	dual       *store.DualStore
	journal    *journal.Journal
	backup     *backup.Scheduler
	argon2Func krypto.Argon2Func
	policy     auth.ValidateOptions

	initialized bool
	initReport  InitReport
}

// New wires a Dispatcher over its already-constructed components. cfg
// supplies the master-passphrase validation policy CREATE_DATABASE applies;
// callers that don't care can pass keeper.DefaultConfig().
func New(sess *session.Manager, dual *store.DualStore, j *journal.Journal, sched *backup.Scheduler, argon2Func krypto.Argon2Func, cfg Config) *Dispatcher {
	return &Dispatcher{
		session:    sess,
		dual:       dual,
		journal:    j,
		backup:     sched,
		argon2Func: argon2Func,
		policy:     cfg.MasterPassphrasePolicy,
	}
}

// Dispatch routes req to its handler and renders the result into the wire
// envelope. ctx bounds how long the caller is willing to wait; the keeper
// itself enforces no internal per-request timeout beyond the single
// storage read-back retry named in spec §7.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	now := time.Now()

	if err := d.ensureInitialized(now); err != nil {
		return failure(err)
	}
	select {
	case <-ctx.Done():
		return failure(newError(KindIo, ctx.Err()))
	default:
	}

	data, err := d.route(req, now)
	if err != nil {
		return failure(err)
	}
	return success(data)
}

func (d *Dispatcher) route(req Request, now time.Time) (any, error) {
	switch req.Type {
	case TypeGetState:
		return d.handleGetState(), nil
	case TypeCreateDatabase:
		return d.handleCreateDatabase(req.Payload, now)
	case TypeImportDatabase:
		return d.handleImportDatabase(req.Payload, now)
	case TypeUnlock:
		return d.handleUnlock(req.Payload, now)
	case TypeLock:
		return d.handleLock(now), nil
	case TypeGetEntries:
		return d.handleGetEntries(req.Payload, now)
	case TypeGetEntry:
		return d.handleGetEntry(req.Payload, now)
	case TypeCreateEntry:
		return d.handleCreateEntry(req.Payload, now)
	case TypeUpdateEntry:
		return d.handleUpdateEntry(req.Payload, now)
	case TypeDeleteEntry:
		return d.handleDeleteEntry(req.Payload, now)
	case TypeGetGroups:
		return d.handleGetGroups(now)
	case TypeGeneratePassword:
		return d.handleGeneratePassword(req.Payload)
	case TypeCopyToClipboard:
		return d.handleCopyToClipboard(req.Payload, now)
	case TypeExportDatabase:
		return d.handleExportDatabase(now)
	case TypeGetEntriesForURL:
		return d.handleGetEntriesForURL(req.Payload, now)
	case TypeFillInTab:
		return d.handleFillInTab(req.Payload, now)
	case TypeGetBackupHistory:
		return d.handleGetBackupHistory(req.Payload, now)
	case TypeRestoreFromBackup:
		return d.handleRestoreFromBackup(req.Payload, now)
	case TypeGetStorageHealth:
		return d.handleGetStorageHealth()
	case TypeGetRecoveryStatus:
		return d.handleGetRecoveryStatus()
	case TypeDeleteDatabase:
		return d.handleDeleteDatabase(now)
	case TypeDownloadExport:
		return d.handleDownloadExport(now)
	default:
		return nil, fmt.Errorf("%w: unknown request type %q", ErrBadRequest, req.Type)
	}
}

func (d *Dispatcher) ensureInitialized(now time.Time) error {
	if d.initialized {
		return nil
	}
	summary, err := d.journal.Recover(d.currentChecksum(), now)
	if err != nil {
		return newError(KindIo, err)
	}
	health, err := d.dual.Health()
	if err != nil {
		return newError(KindIo, err)
	}
	d.initReport = InitReport{Recovery: summary, Health: health}
	d.initialized = true
	return nil
}

func (d *Dispatcher) currentChecksum() string {
	loaded, err := d.dual.Load()
	if err != nil || loaded == nil {
		return ""
	}
	return loaded.Checksum
}

// requireUnlocked enforces the Unlocked guard named in spec §4.8,
// attempting transparent auto-unlock first.
func (d *Dispatcher) requireUnlocked(now time.Time) error {
	if err := d.session.EnsureUnlocked(now); err != nil {
		return newError(KindNotUnlocked, err)
	}
	return nil
}

// mutate brackets body with journal.Begin/Complete/Rollback — spec §4.8
// "Atomicity wrapping" and §5's strict checksum→secondary→primary→
// read-back→complete ordering, which body's own dual.Persist call (via
// persistEdit or the session manager) already honors internally.
func (d *Dispatcher) mutate(opType string, payload any, now time.Time, body func() (resultChecksum string, err error)) error {
	opID, err := d.journal.Begin(opType, payload, d.currentChecksum(), now)
	if err != nil {
		return newError(KindIo, err)
	}

	resultChecksum, err := body()
	if err != nil {
		_ = d.journal.Rollback(opID, err, now)
		return err
	}
	if err := d.journal.Complete(opID, resultChecksum, now); err != nil {
		return newError(KindIo, err)
	}
	return nil
}

// persistEdit re-serializes the currently unlocked vault, persists it with
// reason "edit", notes the edit against the backup scheduler's threshold
// counter, and rearms the idle timer — the common tail of every entry-level
// mutation.
func (d *Dispatcher) persistEdit(now time.Time) (string, error) {
	v, ok := d.session.Vault()
	if !ok {
		return "", newError(KindNotUnlocked, session.ErrNotUnlocked)
	}
	blob, err := kdbx.Save(v, d.session.Passphrase(), d.argon2Func)
	if err != nil {
		return "", newError(kdbxKind(err), err)
	}
	if _, err := d.dual.Persist(blob, map[string]any{"name": v.Meta.Name}, "edit", now); err != nil {
		return "", newError(KindStorageSyncFailed, err)
	}
	if err := d.backup.NoteEdit(v, d.session.Passphrase(), d.argon2Func, now); err != nil {
		return "", newError(KindIo, err)
	}
	d.session.TouchIdle(now)
	return token.Checksum(blob), nil
}

func kdbxKind(err error) Kind {
	switch {
	case kdbx.IsInvalidKey(err):
		return KindInvalidKey
	case kdbx.IsCorrupt(err):
		return KindCorrupt
	case kdbx.IsUnsupported(err):
		return KindUnsupported
	default:
		return KindIo
	}
}

func exportFilename(databaseName string, now time.Time) string {
	date := now.UTC().Format("2006-01-02")
	if databaseName == "" {
		return fmt.Sprintf("keepass-export-%s.kdbx", date)
	}
	return fmt.Sprintf("%s-%s.kdbx", databaseName, date)
}

// --- GET_STATE / CREATE_DATABASE / IMPORT_DATABASE / UNLOCK / LOCK ---

func (d *Dispatcher) handleGetState() any {
	return map[string]any{"state": d.session.State().String()}
}

type createDatabasePayload struct {
	Name       string `json:"name"`
	Passphrase string `json:"passphrase"`
}

func (d *Dispatcher) handleCreateDatabase(payload json.RawMessage, now time.Time) (any, error) {
	var p createDatabasePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Name == "" || p.Passphrase == "" {
		return nil, fmt.Errorf("%w: name and passphrase are required", ErrBadRequest)
	}
	if err := auth.ValidateMasterPasswordAdvanced(context.Background(), p.Passphrase, d.policy); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	err := d.mutate(TypeCreateDatabase, createDatabasePayload{Name: p.Name}, now, func() (string, error) {
		if err := d.session.CreateDatabase(p.Name, p.Passphrase, now); err != nil {
			return "", newError(kdbxKind(err), err)
		}
		loaded, err := d.dual.Load()
		if err != nil || loaded == nil {
			return "", newError(KindIo, fmt.Errorf("keeper: load after create_database"))
		}
		return loaded.Checksum, nil
	})
	if err != nil {
		return nil, err
	}
	codes := d.session.ConsumeGeneratedRecoveryCodes()
	return map[string]any{
		"state":         d.session.State().String(),
		"recoveryCodes": codes,
	}, nil
}

type importDatabasePayload struct {
	BlobBase64 string `json:"blobBase64"`
	Passphrase string `json:"passphrase"`
}

func (d *Dispatcher) handleImportDatabase(payload json.RawMessage, now time.Time) (any, error) {
	var p importDatabasePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.BlobBase64 == "" || p.Passphrase == "" {
		return nil, fmt.Errorf("%w: blobBase64 and passphrase are required", ErrBadRequest)
	}
	blob, err := base64.StdEncoding.DecodeString(p.BlobBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: blobBase64 is not valid base64", ErrBadRequest)
	}

	err = d.mutate(TypeImportDatabase, nil, now, func() (string, error) {
		if err := d.session.ImportDatabase(blob, p.Passphrase, now); err != nil {
			return "", newError(kdbxKind(err), err)
		}
		loaded, err := d.dual.Load()
		if err != nil || loaded == nil {
			return "", newError(KindIo, fmt.Errorf("keeper: load after import_database"))
		}
		return loaded.Checksum, nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"state": d.session.State().String()}, nil
}

type unlockPayload struct {
	Passphrase string `json:"passphrase"`
}

func (d *Dispatcher) handleUnlock(payload json.RawMessage, now time.Time) (any, error) {
	var p unlockPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Passphrase == "" {
		return nil, fmt.Errorf("%w: passphrase is required", ErrBadRequest)
	}
	if err := d.session.Unlock(p.Passphrase, now); err != nil {
		if errors.Is(err, session.ErrNoDatabase) {
			return nil, newError(KindNotFound, err)
		}
		return nil, newError(kdbxKind(err), err)
	}
	return map[string]any{"state": d.session.State().String()}, nil
}

func (d *Dispatcher) handleLock(now time.Time) any {
	d.session.Lock(now)
	return map[string]any{"state": d.session.State().String()}
}

// --- Entry / group CRUD ---

type getEntriesPayload struct {
	GroupID string `json:"groupId"`
	Search  string `json:"search"`
}

func (d *Dispatcher) handleGetEntries(payload json.RawMessage, now time.Time) (any, error) {
	if err := d.requireUnlocked(now); err != nil {
		return nil, err
	}
	var p getEntriesPayload
	_ = json.Unmarshal(payload, &p)

	v, _ := d.session.Vault()
	views, err := v.ListEntries(vault.ListEntriesOptions{GroupID: p.GroupID, Search: p.Search})
	if err != nil {
		return nil, newError(KindIo, err)
	}
	if views == nil {
		views = []vault.EntryView{}
	}
	return map[string]any{"entries": views}, nil
}

type getEntryPayload struct {
	ID string `json:"id"`
}

func (d *Dispatcher) handleGetEntry(payload json.RawMessage, now time.Time) (any, error) {
	if err := d.requireUnlocked(now); err != nil {
		return nil, err
	}
	var p getEntryPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrBadRequest)
	}

	v, _ := d.session.Vault()
	view, ok, err := v.GetEntry(p.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id", ErrBadRequest)
	}
	if !ok {
		return nil, newError(KindNotFound, fmt.Errorf("entry %s not found", p.ID))
	}
	return map[string]any{"entry": view}, nil
}

type createEntryPayload struct {
	GroupID  string   `json:"groupId"`
	Title    string   `json:"title"`
	UserName string   `json:"userName"`
	Password string   `json:"password"`
	URL      string   `json:"url"`
	Notes    string   `json:"notes"`
	Tags     []string `json:"tags"`
}

func (d *Dispatcher) handleCreateEntry(payload json.RawMessage, now time.Time) (any, error) {
	if err := d.requireUnlocked(now); err != nil {
		return nil, err
	}
	var p createEntryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	var view vault.EntryView
	err := d.mutate(TypeCreateEntry, p, now, func() (string, error) {
		v, _ := d.session.Vault()
		created, cerr := v.CreateEntry(vault.CreateEntryData{
			GroupID: p.GroupID, Title: p.Title, UserName: p.UserName,
			Password: p.Password, URL: p.URL, Notes: p.Notes, Tags: p.Tags,
		}, now)
		if cerr != nil {
			return "", newError(KindIo, cerr)
		}
		view = created
		return d.persistEdit(now)
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"entry": view}, nil
}

type updateEntryPayload struct {
	ID       string   `json:"id"`
	Title    *string  `json:"title"`
	UserName *string  `json:"userName"`
	Password *string  `json:"password"`
	URL      *string  `json:"url"`
	Notes    *string  `json:"notes"`
	Tags     []string `json:"tags"`
}

func (d *Dispatcher) handleUpdateEntry(payload json.RawMessage, now time.Time) (any, error) {
	if err := d.requireUnlocked(now); err != nil {
		return nil, err
	}
	var p updateEntryPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrBadRequest)
	}

	var view vault.EntryView
	var found bool
	err := d.mutate(TypeUpdateEntry, p, now, func() (string, error) {
		v, _ := d.session.Vault()
		updated, ok, uerr := v.UpdateEntry(vault.UpdateEntryData{
			ID: p.ID, Title: p.Title, UserName: p.UserName,
			Password: p.Password, URL: p.URL, Notes: p.Notes, Tags: p.Tags,
		}, now)
		if uerr != nil {
			return "", fmt.Errorf("%w: invalid id", ErrBadRequest)
		}
		if !ok {
			return "", newError(KindNotFound, fmt.Errorf("entry %s not found", p.ID))
		}
		view, found = updated, true
		return d.persistEdit(now)
	})
	if err != nil {
		return nil, err
	}
	_ = found
	return map[string]any{"entry": view}, nil
}

type deleteEntryPayload struct {
	ID string `json:"id"`
}

func (d *Dispatcher) handleDeleteEntry(payload json.RawMessage, now time.Time) (any, error) {
	if err := d.requireUnlocked(now); err != nil {
		return nil, err
	}
	var p deleteEntryPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrBadRequest)
	}

	var deleted bool
	err := d.mutate(TypeDeleteEntry, p, now, func() (string, error) {
		v, _ := d.session.Vault()
		ok, derr := v.DeleteEntry(p.ID, now)
		if derr != nil {
			return "", fmt.Errorf("%w: invalid id", ErrBadRequest)
		}
		if !ok {
			return "", newError(KindNotFound, fmt.Errorf("entry %s not found", p.ID))
		}
		deleted = true
		return d.persistEdit(now)
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": deleted}, nil
}

func (d *Dispatcher) handleGetGroups(now time.Time) (any, error) {
	if err := d.requireUnlocked(now); err != nil {
		return nil, err
	}
	v, _ := d.session.Vault()
	return map[string]any{"groups": v.ListGroups()}, nil
}

// --- Utilities: password generation, clipboard, export ---

type generatePasswordPayload struct {
	Length           int  `json:"length"`
	IncludeUpper     bool `json:"includeUpper"`
	IncludeLower     bool `json:"includeLower"`
	IncludeDigits    bool `json:"includeDigits"`
	IncludeSpecial   bool `json:"includeSpecial"`
	ExcludeAmbiguous bool `json:"excludeAmbiguous"`
}

func (d *Dispatcher) handleGeneratePassword(payload json.RawMessage) (any, error) {
	opts := token.DefaultGenerateOptions()
	if len(payload) > 0 {
		var p generatePasswordPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		if p.Length > 0 {
			opts = token.GenerateOptions{
				Length: p.Length, IncludeUpper: p.IncludeUpper, IncludeLower: p.IncludeLower,
				IncludeDigits: p.IncludeDigits, IncludeSpecial: p.IncludeSpecial,
				ExcludeAmbiguous: p.ExcludeAmbiguous,
			}
		}
	}

	pw, err := token.GeneratePassphrase(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return map[string]any{"password": pw, "strength": token.Strength(pw)}, nil
}

type copyToClipboardPayload struct {
	Text string `json:"text"`
}

func (d *Dispatcher) handleCopyToClipboard(payload json.RawMessage, now time.Time) (any, error) {
	var p copyToClipboardPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	d.session.CopyToClipboard(p.Text, now)
	return map[string]any{"copied": true}, nil
}

func (d *Dispatcher) handleExportDatabase(now time.Time) (any, error) {
	if err := d.requireUnlocked(now); err != nil {
		return nil, err
	}
	v, _ := d.session.Vault()
	blob, err := kdbx.Save(v, d.session.Passphrase(), d.argon2Func)
	if err != nil {
		return nil, newError(kdbxKind(err), err)
	}
	return map[string]any{
		"filename":   exportFilename(v.Meta.Name, now),
		"blobBase64": base64.StdEncoding.EncodeToString(blob),
	}, nil
}

// handleDownloadExport downloads the durable blob as it sits at rest,
// without requiring Unlocked: it never decrypts anything, so — unlike
// EXPORT_DATABASE — it is not in spec §4.8's guard list.
func (d *Dispatcher) handleDownloadExport(now time.Time) (any, error) {
	loaded, err := d.dual.Load()
	if err != nil {
		return nil, newError(KindIo, err)
	}
	if loaded == nil {
		return nil, newError(KindNotFound, errors.New("no database found"))
	}
	name, _ := loaded.Metadata["name"].(string)
	return map[string]any{
		"filename":   exportFilename(name, now),
		"blobBase64": base64.StdEncoding.EncodeToString(loaded.Blob),
	}, nil
}

// --- Autofill helpers (best-effort, never surface NOT_UNLOCKED) ---

type urlPayload struct {
	URL string `json:"url"`
}

func (d *Dispatcher) handleGetEntriesForURL(payload json.RawMessage, now time.Time) (any, error) {
	var p urlPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := d.session.EnsureUnlocked(now); err != nil {
		return map[string]any{"entries": []vault.EntryView{}}, nil
	}

	v, _ := d.session.Vault()
	views, err := v.EntriesForHost(p.URL)
	if err != nil {
		return nil, newError(KindIo, err)
	}
	if views == nil {
		views = []vault.EntryView{}
	}
	return map[string]any{"entries": views}, nil
}

type fillInTabPayload struct {
	URL     string `json:"url"`
	EntryID string `json:"entryId"`
}

func (d *Dispatcher) handleFillInTab(payload json.RawMessage, now time.Time) (any, error) {
	var p fillInTabPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := d.session.EnsureUnlocked(now); err != nil {
		return map[string]any{"entry": nil}, nil
	}
	v, _ := d.session.Vault()

	if p.EntryID != "" {
		if view, ok, err := v.GetEntry(p.EntryID); err == nil && ok {
			return map[string]any{"entry": view}, nil
		}
	}

	matches, err := v.EntriesForHost(p.URL)
	if err != nil {
		return nil, newError(KindIo, err)
	}
	if len(matches) == 0 {
		return map[string]any{"entry": nil}, nil
	}
	return map[string]any{"entry": matches[0]}, nil
}

// --- Backup / storage diagnostics ---

type getBackupHistoryPayload struct {
	Limit int `json:"limit"`
}

func (d *Dispatcher) handleGetBackupHistory(payload json.RawMessage, now time.Time) (any, error) {
	if err := d.requireUnlocked(now); err != nil {
		return nil, err
	}
	var p getBackupHistoryPayload
	_ = json.Unmarshal(payload, &p)

	history, err := d.backup.History(p.Limit)
	if err != nil {
		return nil, newError(KindIo, err)
	}
	return map[string]any{"history": history}, nil
}

type restoreFromBackupPayload struct {
	Timestamp  string `json:"timestamp"`
	Passphrase string `json:"passphrase"`
}

func (d *Dispatcher) handleRestoreFromBackup(payload json.RawMessage, now time.Time) (any, error) {
	var p restoreFromBackupPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Timestamp == "" || p.Passphrase == "" {
		return nil, fmt.Errorf("%w: timestamp and passphrase are required", ErrBadRequest)
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp must be RFC3339", ErrBadRequest)
	}

	var restored *vault.Vault
	mutateErr := d.mutate(TypeRestoreFromBackup, restoreFromBackupPayload{Timestamp: p.Timestamp}, now, func() (string, error) {
		v, rerr := d.backup.Restore(ts, p.Passphrase, d.argon2Func, now)
		if rerr != nil {
			if errors.Is(rerr, backup.ErrSnapshotNotFound) {
				return "", newError(KindNotFound, rerr)
			}
			return "", newError(kdbxKind(rerr), rerr)
		}
		restored = v

		loaded, lerr := d.dual.Load()
		if lerr != nil || loaded == nil {
			return "", newError(KindIo, fmt.Errorf("keeper: load after restore_from_backup"))
		}
		return loaded.Checksum, nil
	})
	if mutateErr != nil {
		return nil, mutateErr
	}

	d.session.AdoptUnlocked(restored, p.Passphrase, now)
	return map[string]any{"state": d.session.State().String()}, nil
}

func (d *Dispatcher) handleGetStorageHealth() (any, error) {
	health, err := d.dual.Health()
	if err != nil {
		return nil, newError(KindIo, err)
	}
	return map[string]any{"health": health}, nil
}

func (d *Dispatcher) handleGetRecoveryStatus() (any, error) {
	hasCodes, err := d.dual.HasRecoveryCodes()
	if err != nil {
		return nil, newError(KindIo, err)
	}
	return map[string]any{
		"recovery":                d.initReport.Recovery,
		"recoveryCodesConfigured": hasCodes,
	}, nil
}

// handleDeleteDatabase is deliberately NOT wrapped by mutate: DeleteDatabase
// calls dual.CompleteDeletion, which wipes every logical secondary store —
// including the journal's own state_journal/incomplete_operations rows —
// so there is nothing left for a subsequent journal.Complete to attach to.
func (d *Dispatcher) handleDeleteDatabase(now time.Time) (any, error) {
	if err := d.session.DeleteDatabase(now); err != nil {
		return nil, newError(KindIo, err)
	}
	return map[string]any{"state": d.session.State().String()}, nil
}
