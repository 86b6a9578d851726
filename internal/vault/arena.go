package vault

import "github.com/kdbxkeeper/keeper/internal/token"

// GroupArena owns every Group in a vault by value, addressed by ID, so the
// group tree's parent/child links are plain IDs rather than pointers — spec
// §9 "Cyclic references in the vault tree": no Group ever points directly at
// another Group.
type GroupArena struct {
	byID map[token.ID]*Group
}

func newGroupArena() *GroupArena {
	return &GroupArena{byID: make(map[token.ID]*Group)}
}

func (a *GroupArena) put(g *Group) {
	a.byID[g.ID] = g
}

// Add inserts or replaces a group, keyed by its ID. Used by the codec to
// reconstruct a vault's group tree from its on-disk representation.
func (a *GroupArena) Add(g *Group) {
	a.put(g)
}

// Get returns the group with id, or nil if it doesn't exist.
func (a *GroupArena) Get(id token.ID) *Group {
	return a.byID[id]
}

func (a *GroupArena) remove(id token.ID) {
	delete(a.byID, id)
}

// Count returns the number of live groups in the arena.
func (a *GroupArena) Count() int {
	return len(a.byID)
}

// All returns every group in the arena, in no particular order.
func (a *GroupArena) All() []*Group {
	out := make([]*Group, 0, len(a.byID))
	for _, g := range a.byID {
		out = append(out, g)
	}
	return out
}

// EntryArena owns every Entry in a vault by value, addressed by ID.
type EntryArena struct {
	byID map[token.ID]*Entry
}

func newEntryArena() *EntryArena {
	return &EntryArena{byID: make(map[token.ID]*Entry)}
}

func (a *EntryArena) put(e *Entry) {
	a.byID[e.ID] = e
}

// Add inserts or replaces an entry, keyed by its ID. Used by the codec to
// reconstruct a vault's entries from its on-disk representation.
func (a *EntryArena) Add(e *Entry) {
	a.put(e)
}

// Get returns the entry with id, or nil if it doesn't exist.
func (a *EntryArena) Get(id token.ID) *Entry {
	return a.byID[id]
}

func (a *EntryArena) remove(id token.ID) {
	delete(a.byID, id)
}

// Count returns the number of live entries in the arena.
func (a *EntryArena) Count() int {
	return len(a.byID)
}

// All returns every entry in the arena, in no particular order.
func (a *EntryArena) All() []*Entry {
	out := make([]*Entry, 0, len(a.byID))
	for _, e := range a.byID {
		out = append(out, e)
	}
	return out
}
