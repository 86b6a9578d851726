package kdbx_test

import (
	"testing"
	"time"

	"github.com/kdbxkeeper/keeper/internal/kdbx"
	"github.com/kdbxkeeper/keeper/internal/vault"
	"github.com/kdbxkeeper/keeper/krypto"
)

func TestRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	v := kdbx.Create("My Work Passwords", now)
	if _, err := v.CreateEntry(vault.CreateEntryData{
		Title:    "Gmail",
		UserName: "u@x",
		Password: "p",
		URL:      "gmail.com",
		Tags:     []string{"mail"},
	}, now); err != nil {
		t.Fatalf("CreateEntry returned error: %v", err)
	}

	blob, err := kdbx.Save(v, "s3cret-pass", krypto.DefaultArgon2Func)
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := kdbx.Load(blob, "s3cret-pass", krypto.DefaultArgon2Func)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if loaded.Meta.Name != "My Work Passwords" {
		t.Fatalf("expected name %q, got %q", "My Work Passwords", loaded.Meta.Name)
	}

	entries, err := loaded.ListEntries(vault.ListEntriesOptions{})
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after round trip, got %d", len(entries))
	}
	e := entries[0]
	if e.Title != "Gmail" || e.UserName != "u@x" || e.Password != "p" || e.URL != "gmail.com" {
		t.Fatalf("unexpected entry after round trip: %+v", e)
	}
	if len(e.Tags) != 1 || e.Tags[0] != "mail" {
		t.Fatalf("unexpected tags after round trip: %+v", e.Tags)
	}
}

func TestWrongKeyRejection(t *testing.T) {
	now := time.Now()
	v := kdbx.Create("Vault", now)

	blob, err := kdbx.Save(v, "correct-horse-battery", krypto.DefaultArgon2Func)
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	_, err = kdbx.Load(blob, "wrong-password", krypto.DefaultArgon2Func)
	if err == nil {
		t.Fatalf("expected Load with wrong passphrase to fail")
	}
	if !kdbx.IsInvalidKey(err) {
		t.Fatalf("expected InvalidKey error, got %v", err)
	}
}

func TestLoadRejectsGarbageBytes(t *testing.T) {
	_, err := kdbx.Load([]byte("not a kdbx file"), "whatever", krypto.DefaultArgon2Func)
	if err == nil {
		t.Fatalf("expected Load to reject non-container bytes")
	}
	if !kdbx.IsCorrupt(err) {
		t.Fatalf("expected Corrupt error, got %v", err)
	}
}
