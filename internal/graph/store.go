package graph

import (
	"context"
	"errors"
)

var ErrNodeNotFound = errors.New("graph: node not found")

type Label string

const (
	LabelJournalEntry Label = "JournalEntry"
	LabelEntity       Label = "Entity"
	LabelTodo         Label = "Todo"
	LabelEvent        Label = "Event"
)

type EdgeType string

const (
	EdgeHasEntity     EdgeType = "HAS_ENTITY"
	EdgeHasTodo       EdgeType = "HAS_TODO"
	EdgeHasEvent      EdgeType = "HAS_EVENT"
	EdgeRelatedTo     EdgeType = "RELATED_TO"
	EdgeRelatedEntity EdgeType = "RELATED_ENTITY"
)

func (l Label) valid() bool {
	switch l {
	case LabelJournalEntry, LabelEntity, LabelTodo, LabelEvent:
		return true
	}
	return false
}

func (t EdgeType) valid() bool {
	switch t {
	case EdgeHasEntity, EdgeHasTodo, EdgeHasEvent, EdgeRelatedTo, EdgeRelatedEntity:
		return true
	}
	return false
}

// Props are flat node/edge properties. Values must be scalars or slices of
// scalars; nested maps are stored JSON-encoded.
type Props map[string]any

type NodeRef struct {
	Label Label
	ID    string
}

// Edge is identified by (From, Type, To, Key). Connecting the same identity
// twice updates Props instead of adding a second edge.
type Edge struct {
	From  NodeRef
	Type  EdgeType
	To    NodeRef
	Key   string
	Props Props
}

type Node struct {
	ID    string `json:"id"`
	Label Label  `json:"label"`
	Props Props  `json:"metadata"`
}

type EdgeView struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
	Props  Props    `json:"properties"`
}

type Snapshot struct {
	Nodes []Node     `json:"nodes"`
	Edges []EdgeView `json:"edges"`
}

// Store is the graph persistence contract. Every write is a merge.
type Store interface {
	// GetOrCreate creates the node with props if absent and leaves it untouched otherwise.
	GetOrCreate(ctx context.Context, label Label, id string, props Props) error
	// Merge creates the node if absent, else overwrites the given props.
	Merge(ctx context.Context, label Label, id string, props Props) error
	Exists(ctx context.Context, label Label, id string) (bool, error)
	// Connect returns ErrNodeNotFound when either endpoint is missing.
	Connect(ctx context.Context, e Edge) error

	Snapshot(ctx context.Context, userID string) (*Snapshot, error)
	// SearchEntities matches entity names of the user against lowercase terms.
	SearchEntities(ctx context.Context, userID string, terms []string, limit int) ([]Node, error)
}
