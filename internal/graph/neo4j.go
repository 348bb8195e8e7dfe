package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore keys every node by a node_id property under its label.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	db := cfg.Database
	if db == "" {
		db = "neo4j"
	}
	return &Neo4jStore{driver: driver, database: db}, nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// EnsureConstraints makes node_id unique per label so concurrent MERGEs of
// the same node cannot race into duplicates.
func (s *Neo4jStore) EnsureConstraints(ctx context.Context) error {
	stmts := []string{}
	for _, l := range []Label{LabelJournalEntry, LabelEntity, LabelTodo, LabelEvent} {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE CONSTRAINT %s_node_id IF NOT EXISTS FOR (n:%s) REQUIRE n.node_id IS UNIQUE", l, l))
	}
	stmts = append(stmts, "CREATE INDEX entity_user_id IF NOT EXISTS FOR (n:Entity) ON (n.user_id)")

	for _, q := range stmts {
		if _, err := s.write(ctx, q, nil); err != nil {
			return fmt.Errorf("ensure constraints: %w", err)
		}
	}
	return nil
}

func (s *Neo4jStore) GetOrCreate(ctx context.Context, label Label, id string, props Props) error {
	if !label.valid() {
		return fmt.Errorf("graph: invalid label %q", label)
	}
	q := fmt.Sprintf(`MERGE (n:%s {node_id: $id}) ON CREATE SET n += $props`, label)
	_, err := s.write(ctx, q, map[string]any{"id": id, "props": toNeo4jProps(props)})
	return err
}

func (s *Neo4jStore) Merge(ctx context.Context, label Label, id string, props Props) error {
	if !label.valid() {
		return fmt.Errorf("graph: invalid label %q", label)
	}
	q := fmt.Sprintf(`MERGE (n:%s {node_id: $id}) SET n += $props`, label)
	_, err := s.write(ctx, q, map[string]any{"id": id, "props": toNeo4jProps(props)})
	return err
}

func (s *Neo4jStore) Exists(ctx context.Context, label Label, id string) (bool, error) {
	if !label.valid() {
		return false, fmt.Errorf("graph: invalid label %q", label)
	}
	q := fmt.Sprintf(`MATCH (n:%s {node_id: $id}) RETURN count(n) AS c`, label)
	c, err := s.readCount(ctx, q, map[string]any{"id": id})
	return c > 0, err
}

func (s *Neo4jStore) Connect(ctx context.Context, e Edge) error {
	if !e.From.Label.valid() || !e.To.Label.valid() || !e.Type.valid() {
		return fmt.Errorf("graph: invalid edge %s-[%s]->%s", e.From.Label, e.Type, e.To.Label)
	}
	q := fmt.Sprintf(`
		MATCH (a:%s {node_id: $from}), (b:%s {node_id: $to})
		MERGE (a)-[r:%s {key: $key}]->(b)
		SET r += $props
		RETURN count(r) AS c
	`, e.From.Label, e.To.Label, e.Type)

	res, err := s.write(ctx, q, map[string]any{
		"from":  e.From.ID,
		"to":    e.To.ID,
		"key":   e.Key,
		"props": toNeo4jProps(e.Props),
	})
	if err != nil {
		return err
	}
	if c, _ := res.(int64); c == 0 {
		return ErrNodeNotFound
	}
	return nil
}

func (s *Neo4jStore) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		snap := &Snapshot{Nodes: []Node{}, Edges: []EdgeView{}}

		result, err := tx.Run(ctx, `
			MATCH (n) WHERE n.user_id = $user_id AND n.node_id IS NOT NULL
			RETURN n.node_id AS id, labels(n) AS labels, properties(n) AS props
			ORDER BY id
		`, map[string]any{"user_id": userID})
		if err != nil {
			return nil, err
		}
		for result.Next(ctx) {
			rec := result.Record()
			id, _ := rec.Get("id")
			labels, _ := rec.Get("labels")
			props, _ := rec.Get("props")
			snap.Nodes = append(snap.Nodes, Node{
				ID:    asString(id),
				Label: firstLabel(labels),
				Props: fromNeo4jProps(props),
			})
		}
		if err := result.Err(); err != nil {
			return nil, err
		}

		result, err = tx.Run(ctx, `
			MATCH (a)-[r]->(b)
			WHERE a.user_id = $user_id AND b.user_id = $user_id
			RETURN a.node_id AS source, type(r) AS type, properties(r) AS props, b.node_id AS target
		`, map[string]any{"user_id": userID})
		if err != nil {
			return nil, err
		}
		for result.Next(ctx) {
			rec := result.Record()
			src, _ := rec.Get("source")
			typ, _ := rec.Get("type")
			props, _ := rec.Get("props")
			tgt, _ := rec.Get("target")
			snap.Edges = append(snap.Edges, EdgeView{
				Source: asString(src),
				Target: asString(tgt),
				Type:   EdgeType(asString(typ)),
				Props:  fromNeo4jProps(props),
			})
		}
		return snap, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph snapshot: %w", err)
	}
	return out.(*Snapshot), nil
}

func (s *Neo4jStore) SearchEntities(ctx context.Context, userID string, terms []string, limit int) ([]Node, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (e:Entity {user_id: $user_id})
			WHERE any(t IN $terms WHERE toLower(e.name) CONTAINS t
				OR toLower(coalesce(e.normalized_name, '')) CONTAINS t)
			RETURN e.node_id AS id, properties(e) AS props
			ORDER BY id
			LIMIT $limit
		`, map[string]any{"user_id": userID, "terms": terms, "limit": int64(limit)})
		if err != nil {
			return nil, err
		}

		var nodes []Node
		for result.Next(ctx) {
			rec := result.Record()
			id, _ := rec.Get("id")
			props, _ := rec.Get("props")
			nodes = append(nodes, Node{ID: asString(id), Label: LabelEntity, Props: fromNeo4jProps(props)})
		}
		return nodes, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph entity search: %w", err)
	}
	return out.([]Node), nil
}

// write runs q in a write transaction and returns the "c" column of the
// single result row, if the query has one.
func (s *Neo4jStore) write(ctx context.Context, q string, params map[string]any) (any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	return session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, q, params)
		if err != nil {
			return nil, err
		}
		if result.Next(ctx) {
			c, _ := result.Record().Get("c")
			return c, nil
		}
		return nil, result.Err()
	})
}

func (s *Neo4jStore) readCount(ctx context.Context, q string, params map[string]any) (int64, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, q, params)
		if err != nil {
			return nil, err
		}
		rec, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		c, _ := rec.Get("c")
		return c, nil
	})
	if err != nil {
		return 0, err
	}
	c, _ := out.(int64)
	return c, nil
}

// toNeo4jProps converts values Neo4j cannot hold (maps, mixed slices) to JSON strings.
func toNeo4jProps(p Props) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		switch tv := v.(type) {
		case map[string]any:
			b, err := json.Marshal(tv)
			if err != nil {
				continue
			}
			out[k] = string(b)
		case []any:
			b, err := json.Marshal(tv)
			if err != nil {
				continue
			}
			out[k] = string(b)
		default:
			out[k] = v
		}
	}
	return out
}

func fromNeo4jProps(v any) Props {
	m, ok := v.(map[string]any)
	if !ok {
		return Props{}
	}
	out := make(Props, len(m))
	for k, val := range m {
		if k == "node_id" {
			continue
		}
		out[k] = val
	}
	return out
}

func firstLabel(v any) Label {
	if ls, ok := v.([]any); ok && len(ls) > 0 {
		return Label(asString(ls[0]))
	}
	return ""
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
