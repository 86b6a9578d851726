package vault

import "github.com/kdbxkeeper/keeper/internal/token"

// Group is a node in the vault tree. Children and Entries are ordered ID
// lists resolved through the owning Vault's arenas; Group itself never holds
// a pointer to another Group.
type Group struct {
	ID           token.ID
	Name         string
	ParentID     token.ID
	HasParent    bool
	IconIndex    int
	Children     []token.ID
	Entries      []token.ID
	IsRecycleBin bool
}

func newGroup(name string, parent token.ID, hasParent bool) *Group {
	return &Group{
		ID:        token.NewID(),
		Name:      name,
		ParentID:  parent,
		HasParent: hasParent,
		Children:  nil,
		Entries:   nil,
	}
}

func (g *Group) addChildGroup(id token.ID) {
	g.Children = append(g.Children, id)
}

func (g *Group) addEntry(id token.ID) {
	g.Entries = append(g.Entries, id)
}

func (g *Group) removeEntry(id token.ID) {
	for i, e := range g.Entries {
		if e == id {
			g.Entries = append(g.Entries[:i], g.Entries[i+1:]...)
			return
		}
	}
}
