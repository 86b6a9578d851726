package vault

import (
	"time"

	"github.com/kdbxkeeper/keeper/internal/token"
)

// Standard field keys, spec §3 "Entry ... field map (keys: Title,
// UserName, Password, URL, Notes, plus free-form custom)".
const (
	FieldTitle    = "Title"
	FieldUserName = "UserName"
	FieldPassword = "Password"
	FieldURL      = "URL"
	FieldNotes    = "Notes"
)

// Field is a single entry field value: either cleartext or masked behind a
// ProtectedValue. Reveal always returns the plaintext string, zeroing any
// intermediate buffer before returning.
type Field interface {
	Reveal() (string, error)
	IsProtected() bool
}

// PlainField is an ordinary, unmasked field value.
type PlainField string

func (f PlainField) Reveal() (string, error) { return string(f), nil }
func (f PlainField) IsProtected() bool        { return false }

// MaskedField wraps a ProtectedValue, spec §4.1 "set_protected_field wraps a
// cleartext passphrase in a Protected Value before storage".
type MaskedField struct {
	value *ProtectedValue
}

// NewMaskedField masks plaintext immediately.
func NewMaskedField(plaintext string) (MaskedField, error) {
	pv, err := NewProtectedValue(plaintext)
	if err != nil {
		return MaskedField{}, err
	}
	return MaskedField{value: pv}, nil
}

func (f MaskedField) Reveal() (string, error) {
	ct, err := f.value.Reveal()
	if err != nil {
		return "", err
	}
	defer ct.Zero()
	return ct.String(), nil
}

func (f MaskedField) IsProtected() bool { return true }

func (f MaskedField) clone() MaskedField {
	return MaskedField{value: f.value.Clone()}
}

// Entry is a single vault record: a UUID, a parent group, a field map, tags,
// timestamps, and a bounded history of prior versions.
type Entry struct {
	ID           token.ID
	GroupID      token.ID
	Fields       map[string]Field
	CustomFields map[string]Field
	Tags         []string
	CreationTime time.Time
	LastModTime  time.Time
	History      []EntrySnapshot
}

func newEntry(groupID token.ID, now time.Time) *Entry {
	return &Entry{
		ID:           token.NewID(),
		GroupID:      groupID,
		Fields:       make(map[string]Field),
		CustomFields: make(map[string]Field),
		CreationTime: now,
		LastModTime:  now,
	}
}

// field returns the standard-key field value or "" if unset.
func (e *Entry) field(key string) (string, error) {
	f, ok := e.Fields[key]
	if !ok {
		return "", nil
	}
	return f.Reveal()
}

// setField sets a standard-key field as cleartext.
func (e *Entry) setField(key, value string) {
	e.Fields[key] = PlainField(value)
}

// setProtectedField sets a standard-key field masked behind a ProtectedValue.
func (e *Entry) setProtectedField(key, value string) error {
	mf, err := NewMaskedField(value)
	if err != nil {
		return err
	}
	e.Fields[key] = mf
	return nil
}
