package graph

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memEdge struct {
	alias  Alias
	source string
	target string
}

// MemStore is an in-memory Store used by tests. It preserves edge insertion
// order and records node deletions so cascade ordering can be asserted.
type MemStore struct {
	mu    sync.Mutex
	nodes map[string]*Node
	edges []memEdge
	now   func() time.Time

	// Deleted lists node ids in the order DeleteNode removed them.
	Deleted []string

	// FailNextWrite, when set, makes the next mutating call return the error
	// once. Used to exercise mid-sequence failure handling.
	FailNextWrite error
}

func NewMemStore() *MemStore {
	return &MemStore{
		nodes: make(map[string]*Node),
		now:   time.Now,
	}
}

func (m *MemStore) takeFailure() error {
	err := m.FailNextWrite
	m.FailNextWrite = nil
	return err
}

func (m *MemStore) NodeExists(_ context.Context, nodeType, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	return ok && n.Type == nodeType, nil
}

func (m *MemStore) CreateNode(_ context.Context, nodeType, id string, labels []string, attrs Attrs, initial []Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	copied := make(Attrs, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	m.nodes[id] = &Node{
		ID:        id,
		Type:      nodeType,
		Labels:    append([]string(nil), labels...),
		Attrs:     copied,
		CreatedAt: m.now().UTC().Format(time.RFC3339),
	}
	for _, e := range initial {
		m.addEdgeLocked(e.Alias, id, e.TargetID)
	}
	return nil
}

func (m *MemStore) UpdateNode(_ context.Context, nodeType, id string, attrs Attrs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	n, ok := m.nodes[id]
	if !ok || n.Type != nodeType {
		return ErrNotFound
	}
	if n.Attrs == nil {
		n.Attrs = Attrs{}
	}
	for k, v := range attrs {
		n.Attrs[k] = v
	}
	n.UpdatedAt = m.now().UTC().Format(time.RFC3339)
	return nil
}

func (m *MemStore) DeleteNode(_ context.Context, nodeType, id string, detach bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return false, err
	}
	n, ok := m.nodes[id]
	if !ok || n.Type != nodeType {
		return false, nil
	}
	if detach {
		kept := m.edges[:0]
		for _, e := range m.edges {
			if e.source != id && e.target != id {
				kept = append(kept, e)
			}
		}
		m.edges = kept
	}
	delete(m.nodes, id)
	m.Deleted = append(m.Deleted, id)
	return true, nil
}

func (m *MemStore) FindByID(_ context.Context, nodeType, id string, include []Alias) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok || n.Type != nodeType {
		return nil, nil
	}
	return m.viewLocked(n, include), nil
}

func (m *MemStore) FindByRelated(_ context.Context, nodeType string, alias Alias, relatedID string, include []Alias) ([]*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*Node
	for _, e := range m.edges {
		if e.alias != alias || e.target != relatedID {
			continue
		}
		n, ok := m.nodes[e.source]
		if !ok || n.Type != nodeType {
			continue
		}
		res = append(res, m.viewLocked(n, include))
	}
	return res, nil
}

func (m *MemStore) FindByType(_ context.Context, nodeType string, include []Alias) ([]*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*Node
	for _, n := range m.nodes {
		if n.Type == nodeType {
			res = append(res, m.viewLocked(n, include))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt != res[j].CreatedAt {
			return res[i].CreatedAt < res[j].CreatedAt
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (m *MemStore) AddEdge(_ context.Context, alias Alias, sourceID, targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.addEdgeLocked(alias, sourceID, targetID)
	return nil
}

func (m *MemStore) addEdgeLocked(alias Alias, sourceID, targetID string) {
	for _, e := range m.edges {
		if e.alias == alias && e.source == sourceID && e.target == targetID {
			return
		}
	}
	m.edges = append(m.edges, memEdge{alias: alias, source: sourceID, target: targetID})
}

func (m *MemStore) RemoveEdges(_ context.Context, alias Alias, sourceID, targetID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return 0, err
	}
	removed := 0
	kept := m.edges[:0]
	for _, e := range m.edges {
		if e.alias == alias && e.source == sourceID && (targetID == "" || e.target == targetID) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.edges = kept
	return removed, nil
}

func (m *MemStore) LabelsOf(_ context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), n.Labels...), nil
}

func (m *MemStore) viewLocked(n *Node, include []Alias) *Node {
	view := &Node{
		ID:        n.ID,
		Type:      n.Type,
		Labels:    append([]string(nil), n.Labels...),
		Attrs:     make(Attrs, len(n.Attrs)),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
	for k, v := range n.Attrs {
		view.Attrs[k] = v
	}
	if len(include) > 0 {
		view.Out = make(map[Alias][]string, len(include))
		for _, alias := range include {
			for _, e := range m.edges {
				if e.alias == alias && e.source == n.ID {
					view.Out[alias] = append(view.Out[alias], e.target)
				}
			}
		}
	}
	return view
}
