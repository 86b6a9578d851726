package vault

import (
	"time"

	"github.com/kdbxkeeper/keeper/internal/token"
	"github.com/kdbxkeeper/keeper/krypto"
)

// RecycleBinName is the display name given to the lazily-created recycle
// bin group, spec §9 "Open questions ... move to recycle bin if present".
const RecycleBinName = "Recycle Bin"

// Metadata is the vault's database-level metadata, spec §3 "Database
// metadata".
type Metadata struct {
	Name         string
	LastModified time.Time
}

// Vault is the decrypted, in-memory KeePass-compatible database: a group
// tree plus the cipher/KDF parameters it was (or will be) serialized with.
type Vault struct {
	Meta Metadata

	Groups *GroupArena
	Entries *EntryArena

	RootGroupID   token.ID
	RecycleBinID  token.ID
	hasRecycleBin bool

	Cipher    krypto.PayloadCipher
	KDFParams krypto.Argon2Params
}

// New constructs a fresh empty vault with a freshly generated root group,
// spec §4.1 "create(name, passphrase) -> Vault".
func New(name string, now time.Time) *Vault {
	v := &Vault{
		Meta:    Metadata{Name: name, LastModified: now},
		Groups:  newGroupArena(),
		Entries: newEntryArena(),
	}

	root := newGroup(name, token.NilID, false)
	v.Groups.put(root)
	v.RootGroupID = root.ID

	v.KDFParams = krypto.DefaultKDFParams()
	v.Cipher = krypto.CipherChaCha20

	return v
}

// Restore reconstructs a Vault shell from its on-disk representation: empty
// arenas ready for the codec to Add groups and entries into, with the
// metadata, tree anchors, and cipher/KDF parameters already attached.
func Restore(meta Metadata, rootGroupID, recycleBinID token.ID, hasRecycleBin bool, cipher krypto.PayloadCipher, kdfParams krypto.Argon2Params) *Vault {
	return &Vault{
		Meta:          meta,
		Groups:        newGroupArena(),
		Entries:       newEntryArena(),
		RootGroupID:   rootGroupID,
		RecycleBinID:  recycleBinID,
		hasRecycleBin: hasRecycleBin,
		Cipher:        cipher,
		KDFParams:     kdfParams,
	}
}

// EntryCount returns the number of entries currently owned by the vault,
// including any inside the recycle bin — spec §3 "entry count (computed)".
func (v *Vault) EntryCount() int {
	return v.Entries.Count()
}

// HasRecycleBin reports whether a recycle bin has been created in this
// vault, and RecycleBinID is only meaningful when it returns true.
func (v *Vault) HasRecycleBin() bool {
	return v.hasRecycleBin
}

// recycleBin returns the recycle-bin group, lazily creating it under the
// root group the first time an entry needs to be soft-deleted.
func (v *Vault) recycleBin(now time.Time) *Group {
	if v.hasRecycleBin {
		if g := v.Groups.Get(v.RecycleBinID); g != nil {
			return g
		}
	}

	root := v.Groups.Get(v.RootGroupID)
	bin := newGroup(RecycleBinName, v.RootGroupID, true)
	bin.IsRecycleBin = true
	v.Groups.put(bin)
	root.addChildGroup(bin.ID)

	v.RecycleBinID = bin.ID
	v.hasRecycleBin = true
	v.Meta.LastModified = now
	return bin
}

// inRecycleBin reports whether id's ancestor chain passes through the
// recycle bin group, spec invariant 3.
func (v *Vault) inRecycleBin(id token.ID) bool {
	for {
		g := v.Groups.Get(id)
		if g == nil {
			return false
		}
		if g.IsRecycleBin {
			return true
		}
		if !g.HasParent {
			return false
		}
		id = g.ParentID
	}
}
