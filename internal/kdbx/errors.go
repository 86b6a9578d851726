package kdbx

import (
	"errors"
	"fmt"
)

// Kind tags a codec error so callers can distinguish "wrong password" from
// structural corruption without parsing message strings, spec §4.1 "Error
// semantics".
type Kind int

const (
	KindIo Kind = iota
	KindInvalidKey
	KindCorrupt
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindInvalidKey:
		return "InvalidKey"
	case KindCorrupt:
		return "Corrupt"
	case KindUnsupported:
		return "Unsupported"
	default:
		return "Io"
	}
}

// Error is a tagged codec error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func wrapf(kind Kind, format string, args ...any) error {
	return wrap(kind, fmt.Errorf(format, args...))
}

// IsInvalidKey reports whether err is (or wraps) a wrong-key codec error.
func IsInvalidKey(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindInvalidKey
}

// IsCorrupt reports whether err is (or wraps) a structural-corruption codec error.
func IsCorrupt(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindCorrupt
}

// IsUnsupported reports whether err is (or wraps) an unsupported-format codec error.
func IsUnsupported(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindUnsupported
}
