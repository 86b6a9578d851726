package kdbx

import (
	"encoding/base64"
	"sort"
	"time"

	"github.com/kdbxkeeper/keeper/internal/token"
	"github.com/kdbxkeeper/keeper/internal/vault"
	"github.com/kdbxkeeper/keeper/krypto"
)

// wireVault is the JSON shape of the serialized tree that gets
// gzip-compressed and then encrypted as the container payload — standing in
// for the original format's inner XML body (see DESIGN.md).
type wireVault struct {
	Name          string
	LastModified  time.Time
	RootGroupID   string
	RecycleBinID  string
	HasRecycleBin bool
	Groups        []wireGroup
	Entries       []wireEntry
}

type wireGroup struct {
	ID           string
	Name         string
	ParentID     string
	HasParent    bool
	IconIndex    int
	Children     []string
	Entries      []string
	IsRecycleBin bool
}

type wireField struct {
	Value     string
	Protected bool
}

type wireEntry struct {
	ID           string
	GroupID      string
	Fields       map[string]wireField
	CustomFields map[string]wireField
	Tags         []string
	CreationTime time.Time
	LastModTime  time.Time
	History      []wireSnapshot
}

type wireSnapshot struct {
	Fields      map[string]wireField
	Tags        []string
	LastModTime time.Time
}

// toWire flattens v's arenas into the JSON-serializable shape, with
// protected field values still in cleartext — maskProtectedFields applies
// the inner-stream keystream afterwards, in a second deterministic pass.
func toWire(v *vault.Vault) (wireVault, error) {
	w := wireVault{
		Name:          v.Meta.Name,
		LastModified:  v.Meta.LastModified,
		RootGroupID:   v.RootGroupID.String(),
		HasRecycleBin: v.HasRecycleBin(),
	}
	if w.HasRecycleBin {
		w.RecycleBinID = v.RecycleBinID.String()
	}

	for _, g := range v.Groups.All() {
		wg := wireGroup{
			ID:           g.ID.String(),
			Name:         g.Name,
			HasParent:    g.HasParent,
			IconIndex:    g.IconIndex,
			IsRecycleBin: g.IsRecycleBin,
		}
		if g.HasParent {
			wg.ParentID = g.ParentID.String()
		}
		for _, c := range g.Children {
			wg.Children = append(wg.Children, c.String())
		}
		for _, e := range g.Entries {
			wg.Entries = append(wg.Entries, e.String())
		}
		w.Groups = append(w.Groups, wg)
	}

	entries := v.Entries.All()
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID.String() < entries[j].ID.String() })

	for _, e := range entries {
		we := wireEntry{
			ID:           e.ID.String(),
			GroupID:      e.GroupID.String(),
			Tags:         append([]string{}, e.Tags...),
			CreationTime: e.CreationTime,
			LastModTime:  e.LastModTime,
		}
		fields, err := wireFieldsFromLive(e.Fields)
		if err != nil {
			return wireVault{}, err
		}
		we.Fields = fields
		custom, err := wireFieldsFromLive(e.CustomFields)
		if err != nil {
			return wireVault{}, err
		}
		we.CustomFields = custom

		for _, h := range e.History {
			hf, err := wireFieldsFromLive(h.Fields)
			if err != nil {
				return wireVault{}, err
			}
			we.History = append(we.History, wireSnapshot{
				Fields:      hf,
				Tags:        append([]string{}, h.Tags...),
				LastModTime: h.LastModTime,
			})
		}
		w.Entries = append(w.Entries, we)
	}

	return w, nil
}

func wireFieldsFromLive(fields map[string]vault.Field) (map[string]wireField, error) {
	out := make(map[string]wireField, len(fields))
	for k, f := range fields {
		val, err := f.Reveal()
		if err != nil {
			return nil, err
		}
		out[k] = wireField{Value: val, Protected: f.IsProtected()}
	}
	return out, nil
}

// fromWire rebuilds a Vault's arenas from the decoded JSON tree, with
// protected field values already unmasked back to cleartext by the caller.
func fromWire(w wireVault, cipher krypto.PayloadCipher, kdfParams krypto.Argon2Params) (*vault.Vault, error) {
	rootID, err := parseIDOrNil(w.RootGroupID)
	if err != nil {
		return nil, err
	}
	recycleID := token.NilID
	if w.HasRecycleBin {
		recycleID, err = parseIDOrNil(w.RecycleBinID)
		if err != nil {
			return nil, err
		}
	}

	v := vault.Restore(vault.Metadata{Name: w.Name, LastModified: w.LastModified}, rootID, recycleID, w.HasRecycleBin, cipher, kdfParams)

	for _, wg := range w.Groups {
		id, err := parseIDOrNil(wg.ID)
		if err != nil {
			return nil, err
		}
		g := &vault.Group{
			ID:           id,
			Name:         wg.Name,
			HasParent:    wg.HasParent,
			IconIndex:    wg.IconIndex,
			IsRecycleBin: wg.IsRecycleBin,
		}
		if wg.HasParent {
			pid, err := parseIDOrNil(wg.ParentID)
			if err != nil {
				return nil, err
			}
			g.ParentID = pid
		}
		for _, c := range wg.Children {
			cid, err := parseIDOrNil(c)
			if err != nil {
				return nil, err
			}
			g.Children = append(g.Children, cid)
		}
		for _, e := range wg.Entries {
			eid, err := parseIDOrNil(e)
			if err != nil {
				return nil, err
			}
			g.Entries = append(g.Entries, eid)
		}
		v.Groups.Add(g)
	}

	for _, we := range w.Entries {
		id, err := parseIDOrNil(we.ID)
		if err != nil {
			return nil, err
		}
		groupID, err := parseIDOrNil(we.GroupID)
		if err != nil {
			return nil, err
		}
		fields, err := liveFieldsFromWire(we.Fields)
		if err != nil {
			return nil, err
		}
		custom, err := liveFieldsFromWire(we.CustomFields)
		if err != nil {
			return nil, err
		}

		e := &vault.Entry{
			ID:           id,
			GroupID:      groupID,
			Fields:       fields,
			CustomFields: custom,
			Tags:         append([]string{}, we.Tags...),
			CreationTime: we.CreationTime,
			LastModTime:  we.LastModTime,
		}
		for _, wh := range we.History {
			hf, err := liveFieldsFromWire(wh.Fields)
			if err != nil {
				return nil, err
			}
			e.History = append(e.History, vault.EntrySnapshot{
				Fields:      hf,
				Tags:        append([]string{}, wh.Tags...),
				LastModTime: wh.LastModTime,
			})
		}
		v.Entries.Add(e)
	}

	return v, nil
}

func liveFieldsFromWire(fields map[string]wireField) (map[string]vault.Field, error) {
	out := make(map[string]vault.Field, len(fields))
	for k, wf := range fields {
		if wf.Protected {
			mf, err := vault.NewMaskedField(wf.Value)
			if err != nil {
				return nil, err
			}
			out[k] = mf
			continue
		}
		out[k] = vault.PlainField(wf.Value)
	}
	return out, nil
}

// maskProtectedFields walks w's protected field values in a fixed,
// deterministic order and replaces each cleartext Value with
// base64(keystream-masked bytes), advancing stream once per call.
func maskProtectedFields(w *wireVault, stream *krypto.InnerStream) {
	walkProtectedFields(w, func(wf *wireField) {
		wf.Value = base64.StdEncoding.EncodeToString(stream.Mask([]byte(wf.Value)))
	})
}

// unmaskProtectedFields reverses maskProtectedFields; it must be called on a
// freshly-seeded stream walking fields in the exact same order.
func unmaskProtectedFields(w *wireVault, stream *krypto.InnerStream) error {
	var firstErr error
	walkProtectedFields(w, func(wf *wireField) {
		if firstErr != nil {
			return
		}
		raw, err := base64.StdEncoding.DecodeString(wf.Value)
		if err != nil {
			firstErr = err
			return
		}
		wf.Value = string(stream.Mask(raw))
	})
	return firstErr
}

func walkProtectedFields(w *wireVault, visit func(*wireField)) {
	sortedEntries := w.Entries
	sort.Slice(sortedEntries, func(i, j int) bool { return sortedEntries[i].ID < sortedEntries[j].ID })

	for i := range sortedEntries {
		visitProtectedMap(sortedEntries[i].Fields, visit)
		visitProtectedMap(sortedEntries[i].CustomFields, visit)
		for j := range sortedEntries[i].History {
			visitProtectedMap(sortedEntries[i].History[j].Fields, visit)
		}
	}
}

func visitProtectedMap(fields map[string]wireField, visit func(*wireField)) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		wf := fields[k]
		if !wf.Protected {
			continue
		}
		visit(&wf)
		fields[k] = wf
	}
}
