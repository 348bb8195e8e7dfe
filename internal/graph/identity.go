package graph

import "strconv"

// GlobalID namespaces an extraction-local id under its entry. Local ids are
// never empty and entry ids are numeric, so the split point is always the
// first underscore and distinct (entry, local) pairs never collide.
func GlobalID(entryID uint64, localID string) string {
	return strconv.FormatUint(entryID, 10) + "_" + localID
}

// IDMap resolves local entity ids of one extraction to global ids.
type IDMap map[string]string

func NewIDMap(entryID uint64, localIDs []string) IDMap {
	m := make(IDMap, len(localIDs))
	for _, id := range localIDs {
		m[id] = GlobalID(entryID, id)
	}
	return m
}

// Resolve maps ids of this extraction; ids it does not know pass through
// unchanged.
func (m IDMap) Resolve(id string) string {
	if g, ok := m[id]; ok {
		return g
	}
	return id
}

func (m IDMap) ResolveAll(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.Resolve(id))
	}
	return out
}
