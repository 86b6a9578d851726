package vault

import (
	"net/url"
	"strings"
	"time"

	"github.com/kdbxkeeper/keeper/internal/token"
)

// EntryView is a read-only, fully-revealed projection of an Entry, handed
// out across the dispatcher boundary — spec §4.2 "exposes fields as
// cleartext strings (the caller is inside the trust boundary once
// Unlocked)".
type EntryView struct {
	ID           string
	GroupID      string
	Title        string
	UserName     string
	Password     string
	URL          string
	Notes        string
	CustomFields map[string]string
	Tags         []string
	CreationTime time.Time
	LastModTime  time.Time
	HistoryLen   int
}

// GroupView is a read-only projection of a Group, with its entry count
// resolved for display.
type GroupView struct {
	ID         string
	Name       string
	ParentID   string
	EntryCount int
}

func (v *Vault) view(e *Entry) (EntryView, error) {
	title, err := e.field(FieldTitle)
	if err != nil {
		return EntryView{}, err
	}
	user, err := e.field(FieldUserName)
	if err != nil {
		return EntryView{}, err
	}
	pass, err := e.field(FieldPassword)
	if err != nil {
		return EntryView{}, err
	}
	rawURL, err := e.field(FieldURL)
	if err != nil {
		return EntryView{}, err
	}
	notes, err := e.field(FieldNotes)
	if err != nil {
		return EntryView{}, err
	}

	custom := make(map[string]string, len(e.CustomFields))
	for k, f := range e.CustomFields {
		val, err := f.Reveal()
		if err != nil {
			return EntryView{}, err
		}
		custom[k] = val
	}

	tags := make([]string, len(e.Tags))
	copy(tags, e.Tags)

	return EntryView{
		ID:           e.ID.String(),
		GroupID:      e.GroupID.String(),
		Title:        title,
		UserName:     user,
		Password:     pass,
		URL:          rawURL,
		Notes:        notes,
		CustomFields: custom,
		Tags:         tags,
		CreationTime: e.CreationTime,
		LastModTime:  e.LastModTime,
		HistoryLen:   len(e.History),
	}, nil
}

// ListEntriesOptions filters ListEntries.
type ListEntriesOptions struct {
	GroupID string
	Search  string
}

// ListEntries returns every entry outside the recycle bin, in no particular
// order, optionally restricted to the entries directly inside one group
// (entries of its subgroups are not included) and filtered by a
// case-insensitive substring search over title/username/URL/notes/tags —
// spec §4.2.
func (v *Vault) ListEntries(opts ListEntriesOptions) ([]EntryView, error) {
	var groupFilter token.ID
	filterByGroup := opts.GroupID != ""
	if filterByGroup {
		id, err := token.ParseID(opts.GroupID)
		if err != nil {
			return nil, err
		}
		groupFilter = id
	}

	needle := strings.ToLower(opts.Search)

	var out []EntryView
	for id, e := range v.Entries.byID {
		if v.inRecycleBin(e.GroupID) {
			continue
		}
		if filterByGroup && e.GroupID != groupFilter {
			continue
		}

		view, err := v.view(e)
		if err != nil {
			return nil, err
		}
		if needle != "" && !matchesSearch(view, needle) {
			continue
		}
		_ = id
		out = append(out, view)
	}
	return out, nil
}

func matchesSearch(v EntryView, needle string) bool {
	if strings.Contains(strings.ToLower(v.Title), needle) ||
		strings.Contains(strings.ToLower(v.UserName), needle) ||
		strings.Contains(strings.ToLower(v.URL), needle) ||
		strings.Contains(strings.ToLower(v.Notes), needle) {
		return true
	}
	for _, tag := range v.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// GetEntry returns the entry view for id, or (EntryView{}, false, nil) if it
// does not exist.
func (v *Vault) GetEntry(id string) (EntryView, bool, error) {
	parsed, err := token.ParseID(id)
	if err != nil {
		return EntryView{}, false, err
	}
	e := v.Entries.Get(parsed)
	if e == nil {
		return EntryView{}, false, nil
	}
	view, err := v.view(e)
	if err != nil {
		return EntryView{}, false, err
	}
	return view, true, nil
}

// EntriesForHost returns entries whose stored URL matches rawURL's host,
// spec §4.2: "extracted (scheme+path stripped); an entry matches when
// either its stored URL, parsed as a URL, has the same host, or its stored
// URL string textually contains the host (substring fallback for
// host-only storage)".
func (v *Vault) EntriesForHost(rawURL string) ([]EntryView, error) {
	host := extractHost(rawURL)
	if host == "" {
		return nil, nil
	}

	var out []EntryView
	for _, e := range v.Entries.byID {
		if v.inRecycleBin(e.GroupID) {
			continue
		}
		stored, err := e.field(FieldURL)
		if err != nil {
			return nil, err
		}
		if stored == "" {
			continue
		}
		storedHost := extractHost(stored)
		if storedHost == host || strings.Contains(storedHost, host) {
			view, err := v.view(e)
			if err != nil {
				return nil, err
			}
			out = append(out, view)
		}
	}
	return out, nil
}

func extractHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	host := raw
	if u, err := url.Parse(candidate); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	return stripWWW(strings.ToLower(host))
}

// stripWWW normalizes a "www." subdomain to its registered host, since
// §4.2's host-matching rule needs "www.italki.com" and "italki.com" to be
// the same entity without pulling in a full public-suffix list.
func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

// CreateEntryData is the input to CreateEntry.
type CreateEntryData struct {
	GroupID  string
	Title    string
	UserName string
	Password string
	URL      string
	Notes    string
	Tags     []string
}

// CreateEntry assigns a fresh UUID, appends the entry to the designated
// group (the root group if absent), and sets both timestamps to now — spec
// §4.2 "create_entry(data) -> EntryView".
func (v *Vault) CreateEntry(data CreateEntryData, now time.Time) (EntryView, error) {
	groupID := v.RootGroupID
	if data.GroupID != "" {
		id, err := token.ParseID(data.GroupID)
		if err != nil {
			return EntryView{}, err
		}
		if v.Groups.Get(id) != nil {
			groupID = id
		}
	}

	e := newEntry(groupID, now)
	e.setField(FieldTitle, data.Title)
	e.setField(FieldUserName, data.UserName)
	if err := e.setProtectedField(FieldPassword, data.Password); err != nil {
		return EntryView{}, err
	}
	e.setField(FieldURL, data.URL)
	e.setField(FieldNotes, data.Notes)
	e.Tags = append(e.Tags, data.Tags...)

	v.Entries.put(e)
	if g := v.Groups.Get(groupID); g != nil {
		g.addEntry(e.ID)
	}
	v.Meta.LastModified = now

	return v.view(e)
}

// UpdateEntryData is the input to UpdateEntry; zero-value string fields
// leave the existing value untouched, a nil Tags leaves tags untouched.
type UpdateEntryData struct {
	ID       string
	Title    *string
	UserName *string
	Password *string
	URL      *string
	Notes    *string
	Tags     []string
}

// UpdateEntry pushes the entry's current state to history, overwrites the
// provided fields, and bumps lastModTime — spec §4.2.
func (v *Vault) UpdateEntry(data UpdateEntryData, now time.Time) (EntryView, bool, error) {
	id, err := token.ParseID(data.ID)
	if err != nil {
		return EntryView{}, false, err
	}
	e := v.Entries.Get(id)
	if e == nil {
		return EntryView{}, false, nil
	}

	pushHistory(e)

	if data.Title != nil {
		e.setField(FieldTitle, *data.Title)
	}
	if data.UserName != nil {
		e.setField(FieldUserName, *data.UserName)
	}
	if data.Password != nil {
		if err := e.setProtectedField(FieldPassword, *data.Password); err != nil {
			return EntryView{}, false, err
		}
	}
	if data.URL != nil {
		e.setField(FieldURL, *data.URL)
	}
	if data.Notes != nil {
		e.setField(FieldNotes, *data.Notes)
	}
	if data.Tags != nil {
		e.Tags = append([]string{}, data.Tags...)
	}
	e.LastModTime = now
	v.Meta.LastModified = now

	view, err := v.view(e)
	return view, true, err
}

// DeleteEntry moves the entry to the recycle bin, creating it lazily if
// necessary; if the entry is already inside the recycle bin, it is removed
// outright — spec §9 open-question resolution (see DESIGN.md).
func (v *Vault) DeleteEntry(id string, now time.Time) (bool, error) {
	parsed, err := token.ParseID(id)
	if err != nil {
		return false, err
	}
	e := v.Entries.Get(parsed)
	if e == nil {
		return false, nil
	}

	if g := v.Groups.Get(e.GroupID); g != nil {
		g.removeEntry(e.ID)
	}

	if v.inRecycleBin(e.GroupID) {
		v.Entries.remove(e.ID)
	} else {
		bin := v.recycleBin(now)
		e.GroupID = bin.ID
		bin.addEntry(e.ID)
	}

	v.Meta.LastModified = now
	return true, nil
}

// ListGroups returns every group except the recycle bin, depth-first from
// the root — spec §4.2 "list_groups() -> [GroupView] ... orders are
// depth-first".
func (v *Vault) ListGroups() []GroupView {
	var out []GroupView
	var walk func(id token.ID)
	walk = func(id token.ID) {
		g := v.Groups.Get(id)
		if g == nil || g.IsRecycleBin {
			return
		}
		out = append(out, GroupView{
			ID:         g.ID.String(),
			Name:       g.Name,
			ParentID:   parentIDString(g),
			EntryCount: len(g.Entries),
		})
		for _, child := range g.Children {
			walk(child)
		}
	}
	walk(v.RootGroupID)
	return out
}

func parentIDString(g *Group) string {
	if !g.HasParent {
		return ""
	}
	return g.ParentID.String()
}
