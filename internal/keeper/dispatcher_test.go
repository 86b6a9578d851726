package keeper_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/kdbxkeeper/keeper/internal/backup"
	"github.com/kdbxkeeper/keeper/internal/journal"
	"github.com/kdbxkeeper/keeper/internal/keeper"
	"github.com/kdbxkeeper/keeper/internal/session"
	"github.com/kdbxkeeper/keeper/internal/store"
	"github.com/kdbxkeeper/keeper/internal/vault"
	"github.com/kdbxkeeper/keeper/krypto"
)

func newTestDispatcher(t *testing.T) (*keeper.Dispatcher, *session.Manager) {
	t.Helper()
	dir := t.TempDir()

	primary, err := store.NewPrimaryStore(filepath.Join(dir, "vault.primary"))
	if err != nil {
		t.Fatalf("NewPrimaryStore: %v", err)
	}
	secondary, err := store.OpenSecondaryStore(filepath.Join(dir, "vault.sqlite"))
	if err != nil {
		t.Fatalf("OpenSecondaryStore: %v", err)
	}
	t.Cleanup(func() { secondary.Close() })
	dual := store.New(primary, secondary)

	tokenStore, err := store.NewPrimaryStore(filepath.Join(dir, "unlock-token"))
	if err != nil {
		t.Fatalf("NewPrimaryStore (token): %v", err)
	}
	keyStore, err := store.NewPrimaryStore(filepath.Join(dir, "unlock-key"))
	if err != nil {
		t.Fatalf("NewPrimaryStore (key): %v", err)
	}

	sess, err := session.New(dual, tokenStore, keyStore, krypto.DefaultArgon2Func, false)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	j := journal.New(secondary)
	now := time.Now()
	sched, err := backup.New(secondary, dual, now)
	if err != nil {
		t.Fatalf("backup.New: %v", err)
	}

	return keeper.New(sess, dual, j, sched, krypto.DefaultArgon2Func, keeper.DefaultConfig()), sess
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return raw
}

func TestGetStateReportsNoDatabaseInitially(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), keeper.Request{Type: keeper.TypeGetState})
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok || data["state"] != "NoDatabase" {
		t.Fatalf("expected state=NoDatabase, got %#v", resp.Data)
	}
}

func TestCreateDatabaseThenCreateGetAndDeleteEntry(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	resp := d.Dispatch(ctx, keeper.Request{
		Type:    keeper.TypeCreateDatabase,
		Payload: mustJSON(t, map[string]string{"name": "My Vault", "passphrase": "Xk9!mQ2vBt7$Lp4z"}),
	})
	if !resp.Success {
		t.Fatalf("CREATE_DATABASE failed: %s", resp.Error)
	}
	createData, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map data, got %#v", resp.Data)
	}
	codes, ok := createData["recoveryCodes"].([]string)
	if !ok || len(codes) == 0 {
		t.Fatalf("expected recovery codes in CREATE_DATABASE response, got %#v", createData["recoveryCodes"])
	}

	createResp := d.Dispatch(ctx, keeper.Request{
		Type: keeper.TypeCreateEntry,
		Payload: mustJSON(t, map[string]any{
			"title": "example.com", "userName": "alice", "password": "s3cret", "url": "https://example.com",
		}),
	})
	if !createResp.Success {
		t.Fatalf("CREATE_ENTRY failed: %s", createResp.Error)
	}
	entryData, ok := createResp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map data, got %#v", createResp.Data)
	}
	entry, ok := entryData["entry"].(vault.EntryView)
	if !ok {
		t.Fatalf("expected entry in response, got %#v", entryData)
	}
	id := entry.ID
	if id == "" {
		t.Fatalf("expected entry id, got %#v", entry)
	}

	listResp := d.Dispatch(ctx, keeper.Request{Type: keeper.TypeGetEntries})
	if !listResp.Success {
		t.Fatalf("GET_ENTRIES failed: %s", listResp.Error)
	}

	deleteResp := d.Dispatch(ctx, keeper.Request{
		Type:    keeper.TypeDeleteEntry,
		Payload: mustJSON(t, map[string]string{"id": id}),
	})
	if !deleteResp.Success {
		t.Fatalf("DELETE_ENTRY failed: %s", deleteResp.Error)
	}
}

func TestGetEntriesWithoutUnlockReturnsNotUnlocked(t *testing.T) {
	d, sess := newTestDispatcher(t)
	ctx := context.Background()

	if err := sess.CreateDatabase("My Vault", "hunter2", time.Now()); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	sess.Lock(time.Now())

	sess.SetUnlockTokenTTL(0)
	resp := d.Dispatch(ctx, keeper.Request{Type: keeper.TypeGetEntries})
	if resp.Success {
		t.Fatalf("expected failure once Lock has cleared the auto-unlock token")
	}
	if resp.Error != "NOT_UNLOCKED" {
		t.Fatalf("expected NOT_UNLOCKED sentinel, got %q", resp.Error)
	}
}

func TestGetEntriesForURLNeverSurfacesNotUnlocked(t *testing.T) {
	d, sess := newTestDispatcher(t)
	ctx := context.Background()

	if err := sess.CreateDatabase("My Vault", "hunter2", time.Now()); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	sess.Lock(time.Now())
	sess.SetUnlockTokenTTL(0)

	resp := d.Dispatch(ctx, keeper.Request{
		Type:    keeper.TypeGetEntriesForURL,
		Payload: mustJSON(t, map[string]string{"url": "https://example.com"}),
	})
	if !resp.Success {
		t.Fatalf("GET_ENTRIES_FOR_URL must never surface NOT_UNLOCKED, got %q", resp.Error)
	}
}

func TestUnknownRequestTypeFails(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), keeper.Request{Type: "NOT_A_REAL_TYPE"})
	if resp.Success {
		t.Fatalf("expected failure for unknown request type")
	}
}

func TestDeleteDatabaseReturnsToNoDatabase(t *testing.T) {
	d, sess := newTestDispatcher(t)
	ctx := context.Background()

	if err := sess.CreateDatabase("My Vault", "hunter2", time.Now()); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}

	resp := d.Dispatch(ctx, keeper.Request{Type: keeper.TypeDeleteDatabase})
	if !resp.Success {
		t.Fatalf("DELETE_DATABASE failed: %s", resp.Error)
	}

	state := d.Dispatch(ctx, keeper.Request{Type: keeper.TypeGetState})
	data, _ := state.Data.(map[string]any)
	if data["state"] != "NoDatabase" {
		t.Fatalf("expected state=NoDatabase after deletion, got %#v", state.Data)
	}
}

func TestCreateDatabaseRejectsWeakPassphrase(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), keeper.Request{
		Type:    keeper.TypeCreateDatabase,
		Payload: mustJSON(t, map[string]string{"name": "My Vault", "passphrase": "alllowercase"}),
	})
	if resp.Success {
		t.Fatalf("expected CREATE_DATABASE to reject a passphrase failing the LUDS policy")
	}
}

func TestGeneratePasswordHonorsLength(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), keeper.Request{
		Type:    keeper.TypeGeneratePassword,
		Payload: mustJSON(t, map[string]int{"length": 24}),
	})
	if !resp.Success {
		t.Fatalf("GENERATE_PASSWORD failed: %s", resp.Error)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map data, got %#v", resp.Data)
	}
	pw, _ := data["password"].(string)
	if len(pw) != 24 {
		t.Fatalf("expected 24-character password, got %d: %q", len(pw), pw)
	}
}
