// Package keeper implements the sole ingress into the vault: typed request
// routing, the Unlocked guard with transparent auto-unlock, and atomicity
// wrapping around every mutation — spec §4.8.
package keeper

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Request is the inbound envelope — spec §6 "Wire format":
// {type: string, payload: object}.
type Request struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Response is the outbound envelope — spec §6: {success: true, data?} |
// {success: false, error: string}.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Request types — spec §4.8 "Request set", exhaustive.
const (
	TypeGetState          = "GET_STATE"
	TypeCreateDatabase    = "CREATE_DATABASE"
	TypeImportDatabase    = "IMPORT_DATABASE"
	TypeUnlock            = "UNLOCK"
	TypeLock              = "LOCK"
	TypeGetEntries        = "GET_ENTRIES"
	TypeGetEntry          = "GET_ENTRY"
	TypeCreateEntry       = "CREATE_ENTRY"
	TypeUpdateEntry       = "UPDATE_ENTRY"
	TypeDeleteEntry       = "DELETE_ENTRY"
	TypeGetGroups         = "GET_GROUPS"
	TypeGeneratePassword  = "GENERATE_PASSWORD"
	TypeCopyToClipboard   = "COPY_TO_CLIPBOARD"
	TypeExportDatabase    = "EXPORT_DATABASE"
	TypeGetEntriesForURL  = "GET_ENTRIES_FOR_URL"
	TypeFillInTab         = "FILL_IN_TAB"
	TypeGetBackupHistory  = "GET_BACKUP_HISTORY"
	TypeRestoreFromBackup = "RESTORE_FROM_BACKUP"
	TypeGetStorageHealth  = "GET_STORAGE_HEALTH"
	TypeGetRecoveryStatus = "GET_RECOVERY_STATUS"
	TypeDeleteDatabase    = "DELETE_DATABASE"
	TypeDownloadExport    = "DOWNLOAD_EXPORT"
)

// Kind tags a dispatcher-level error so it can be rendered to the wire
// error strings named in spec §7 without string-matching messages.
type Kind int

const (
	KindIo Kind = iota
	KindInvalidKey
	KindCorrupt
	KindUnsupported
	KindNotFound
	KindStorageSyncFailed
	KindChecksumMismatch
	KindNotUnlocked
)

func (k Kind) wireString() string {
	switch k {
	case KindInvalidKey:
		return "INVALID_KEY"
	case KindCorrupt:
		return "CORRUPT"
	case KindUnsupported:
		return "UNSUPPORTED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindStorageSyncFailed:
		return "STORAGE_SYNC_FAILED"
	case KindChecksumMismatch:
		return "CHECKSUM_MISMATCH"
	case KindNotUnlocked:
		return "NOT_UNLOCKED"
	default:
		return "IO"
	}
}

// Error is a tagged dispatcher error, rendered at the wire boundary only.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind.wireString(), e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// ErrBadRequest is returned for malformed/missing payload fields.
var ErrBadRequest = errors.New("keeper: bad request")

// errorString renders err to the wire error string spec §6/§7 expects: the
// sentinel "NOT_UNLOCKED" verbatim for that kind, the user-visible "Wrong
// password. Try again." for InvalidKey (spec §7's mandated copy, exercised
// by the wrong-passphrase scenario in §8), "<wire tag>: <message>" for other
// tagged errors, and the raw message otherwise.
func errorString(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindNotUnlocked:
			return "NOT_UNLOCKED"
		case KindInvalidKey:
			return "Wrong password. Try again."
		}
		return e.Kind.wireString() + ": " + e.Err.Error()
	}
	return err.Error()
}

func success(data any) Response  { return Response{Success: true, Data: data} }
func failure(err error) Response { return Response{Success: false, Error: errorString(err)} }
