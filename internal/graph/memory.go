package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type edgeID struct {
	from NodeRef
	typ  EdgeType
	to   NodeRef
	key  string
}

// MemoryStore is an in-process Store. It backs GRAPH_BACKEND=memory and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[NodeRef]Props
	edges map[edgeID]Props
	order []edgeID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: map[NodeRef]Props{},
		edges: map[edgeID]Props{},
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, label Label, id string, props Props) error {
	if !label.valid() {
		return fmt.Errorf("graph: invalid label %q", label)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := NodeRef{Label: label, ID: id}
	if _, ok := s.nodes[ref]; ok {
		return nil
	}
	s.nodes[ref] = copyProps(props)
	return nil
}

func (s *MemoryStore) Merge(_ context.Context, label Label, id string, props Props) error {
	if !label.valid() {
		return fmt.Errorf("graph: invalid label %q", label)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := NodeRef{Label: label, ID: id}
	cur, ok := s.nodes[ref]
	if !ok {
		cur = Props{}
		s.nodes[ref] = cur
	}
	for k, v := range props {
		if v == nil {
			delete(cur, k)
			continue
		}
		cur[k] = v
	}
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, label Label, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[NodeRef{Label: label, ID: id}]
	return ok, nil
}

func (s *MemoryStore) Connect(_ context.Context, e Edge) error {
	if !e.Type.valid() {
		return fmt.Errorf("graph: invalid edge type %q", e.Type)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[e.From]; !ok {
		return ErrNodeNotFound
	}
	if _, ok := s.nodes[e.To]; !ok {
		return ErrNodeNotFound
	}

	id := edgeID{from: e.From, typ: e.Type, to: e.To, key: e.Key}
	cur, ok := s.edges[id]
	if !ok {
		cur = Props{}
		s.edges[id] = cur
		s.order = append(s.order, id)
	}
	for k, v := range e.Props {
		cur[k] = v
	}
	return nil
}

func (s *MemoryStore) Snapshot(_ context.Context, userID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{Nodes: []Node{}, Edges: []EdgeView{}}
	owned := map[NodeRef]bool{}
	for ref, props := range s.nodes {
		if props["user_id"] != userID {
			continue
		}
		owned[ref] = true
		snap.Nodes = append(snap.Nodes, Node{ID: ref.ID, Label: ref.Label, Props: copyProps(props)})
	}
	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].ID < snap.Nodes[j].ID })

	for _, id := range s.order {
		if !owned[id.from] || !owned[id.to] {
			continue
		}
		snap.Edges = append(snap.Edges, EdgeView{
			Source: id.from.ID,
			Target: id.to.ID,
			Type:   id.typ,
			Props:  copyProps(s.edges[id]),
		})
	}
	return snap, nil
}

func (s *MemoryStore) SearchEntities(_ context.Context, userID string, terms []string, limit int) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Node
	for ref, props := range s.nodes {
		if ref.Label != LabelEntity || props["user_id"] != userID {
			continue
		}
		name, _ := props["name"].(string)
		norm, _ := props["normalized_name"].(string)
		hay := strings.ToLower(name + " " + norm)
		for _, t := range terms {
			if strings.Contains(hay, t) {
				out = append(out, Node{ID: ref.ID, Label: ref.Label, Props: copyProps(props)})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// NodeCount returns the number of nodes with the label, or all nodes when label is empty.
func (s *MemoryStore) NodeCount(label Label) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for ref := range s.nodes {
		if label == "" || ref.Label == label {
			n++
		}
	}
	return n
}

// EdgeCount returns the number of edges of the type, or all edges when typ is empty.
func (s *MemoryStore) EdgeCount(typ EdgeType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for id := range s.edges {
		if typ == "" || id.typ == typ {
			n++
		}
	}
	return n
}

// Node returns a copy of the node's props.
func (s *MemoryStore) Node(label Label, id string) (Props, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.nodes[NodeRef{Label: label, ID: id}]
	return copyProps(p), ok
}

func copyProps(p Props) Props {
	if p == nil {
		return Props{}
	}
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
