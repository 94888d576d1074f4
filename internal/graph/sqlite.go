package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLStore persists the directed labeled graph in three SQLite tables:
// nodes, node_labels and edges. Edge rows are unique per
// (alias, source_id, target_id), which makes AddEdge create-if-absent and
// RemoveEdges delete-if-present.
type SQLStore struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db, Now: time.Now}
}

func (s *SQLStore) now() string {
	if s.Now != nil {
		return s.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func (s *SQLStore) NodeExists(ctx context.Context, nodeType, id string) (bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id=? AND node_type=?`, id, nodeType)
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStore) CreateNode(ctx context.Context, nodeType, id string, labels []string, attrs Attrs, initial []Edge) error {
	payload, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshal attrs: %w", err)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now()
	if _, err := tx.ExecContext(ctx, `INSERT INTO nodes(id,node_type,attrs_json,created_at) VALUES (?,?,?,?)`,
		id, nodeType, string(payload), now); err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	for i, label := range labels {
		if _, err := tx.ExecContext(ctx, `INSERT INTO node_labels(node_id,label,ordinal) VALUES (?,?,?)`,
			id, label, i); err != nil {
			return fmt.Errorf("insert label %s: %w", label, err)
		}
	}
	for _, e := range initial {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO edges(alias,source_id,target_id) VALUES (?,?,?)`,
			string(e.Alias), id, e.TargetID); err != nil {
			return fmt.Errorf("insert edge %s: %w", e.Alias, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) UpdateNode(ctx context.Context, nodeType, id string, attrs Attrs) error {
	current, err := s.FindByID(ctx, nodeType, id, nil)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrNotFound
	}
	merged := current.Attrs
	if merged == nil {
		merged = Attrs{}
	}
	for k, v := range attrs {
		merged[k] = v
	}
	payload, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal attrs: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE nodes SET attrs_json=?, updated_at=? WHERE id=? AND node_type=?`,
		string(payload), s.now(), id, nodeType)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteNode(ctx context.Context, nodeType, id string, detach bool) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if detach {
		if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE source_id=? OR target_id=?`, id, id); err != nil {
			return false, err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM node_labels WHERE node_id=?`, id); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id=? AND node_type=?`, id, nodeType)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) FindByID(ctx context.Context, nodeType, id string, include []Alias) (*Node, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id,node_type,attrs_json,created_at,COALESCE(updated_at,'') FROM nodes WHERE id=? AND node_type=?`,
		id, nodeType)
	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if node.Labels, err = s.labels(ctx, id); err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, node, include); err != nil {
		return nil, err
	}
	return node, nil
}

func (s *SQLStore) FindByRelated(ctx context.Context, nodeType string, alias Alias, relatedID string, include []Alias) ([]*Node, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT n.id,n.node_type,n.attrs_json,n.created_at,COALESCE(n.updated_at,'')
FROM nodes n JOIN edges e ON e.source_id=n.id
WHERE n.node_type=? AND e.alias=? AND e.target_id=?
ORDER BY n.created_at ASC, n.id ASC`, nodeType, string(alias), relatedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, node := range res {
		if node.Labels, err = s.labels(ctx, node.ID); err != nil {
			return nil, err
		}
		if err := s.hydrate(ctx, node, include); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *SQLStore) FindByType(ctx context.Context, nodeType string, include []Alias) ([]*Node, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,node_type,attrs_json,created_at,COALESCE(updated_at,'') FROM nodes
WHERE node_type=? ORDER BY created_at ASC, id ASC`, nodeType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, node := range res {
		if node.Labels, err = s.labels(ctx, node.ID); err != nil {
			return nil, err
		}
		if err := s.hydrate(ctx, node, include); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *SQLStore) AddEdge(ctx context.Context, alias Alias, sourceID, targetID string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT OR IGNORE INTO edges(alias,source_id,target_id) VALUES (?,?,?)`,
		string(alias), sourceID, targetID)
	return err
}

func (s *SQLStore) RemoveEdges(ctx context.Context, alias Alias, sourceID, targetID string) (int, error) {
	var (
		res sql.Result
		err error
	)
	if targetID == "" {
		res, err = s.DB.ExecContext(ctx, `DELETE FROM edges WHERE alias=? AND source_id=?`, string(alias), sourceID)
	} else {
		res, err = s.DB.ExecContext(ctx, `DELETE FROM edges WHERE alias=? AND source_id=? AND target_id=?`,
			string(alias), sourceID, targetID)
	}
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLStore) LabelsOf(ctx context.Context, id string) ([]string, error) {
	labels, err := s.labels(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		row := s.DB.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id=?`, id)
		var one int
		if err := row.Scan(&one); err == sql.ErrNoRows {
			return nil, ErrNotFound
		} else if err != nil {
			return nil, err
		}
	}
	return labels, nil
}

func (s *SQLStore) labels(ctx context.Context, id string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT label FROM node_labels WHERE node_id=? ORDER BY ordinal ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

func (s *SQLStore) hydrate(ctx context.Context, node *Node, include []Alias) error {
	if len(include) == 0 {
		return nil
	}
	node.Out = make(map[Alias][]string, len(include))
	for _, alias := range include {
		rows, err := s.DB.QueryContext(ctx, `SELECT target_id FROM edges WHERE alias=? AND source_id=? ORDER BY id ASC`,
			string(alias), node.ID)
		if err != nil {
			return err
		}
		var targets []string
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				rows.Close()
				return err
			}
			targets = append(targets, t)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		if len(targets) > 0 {
			node.Out[alias] = targets
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var (
		node      Node
		attrsJSON string
	)
	if err := row.Scan(&node.ID, &node.Type, &attrsJSON, &node.CreatedAt, &node.UpdatedAt); err != nil {
		return nil, err
	}
	if attrsJSON != "" {
		if err := json.Unmarshal([]byte(attrsJSON), &node.Attrs); err != nil {
			return nil, fmt.Errorf("decode attrs for %s: %w", node.ID, err)
		}
	}
	return &node, nil
}
