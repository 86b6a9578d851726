package kdbx

import "github.com/kdbxkeeper/keeper/internal/token"

// parseIDOrNil parses s as a UUID, treating the empty string as the nil ID
// (used for "no parent"/"no recycle bin" fields serialized as "").
func parseIDOrNil(s string) (token.ID, error) {
	if s == "" {
		return token.NilID, nil
	}
	return token.ParseID(s)
}
