package graph

import (
	"context"
	"errors"
)

// Node types stored in the graph.
const (
	TypeProject     = "Project"
	TypeActor       = "Actor"
	TypeUseCase     = "UseCase"
	TypeRequirement = "Requirement"
)

// Alias names a typed, directed relationship.
type Alias string

const (
	AliasActors           Alias = "ACTORS"
	AliasRequirement      Alias = "REQUIREMENT"
	AliasUseCase          Alias = "USE_CASE"
	AliasMain             Alias = "MAIN"
	AliasDetails          Alias = "DETAILS"
	AliasPrimaryCondition Alias = "PRIMARY_CONDITION"
	AliasAlternatives     Alias = "ALTERNATIVES"
	AliasFallback         Alias = "FALLBACK"
	AliasSimpleParts      Alias = "SIMPLE_PARTS"
	AliasHandles          Alias = "HANDLES"
	AliasNested           Alias = "NESTED"
	AliasExceptionAt      Alias = "EXCEPTION_AT"
	AliasBelongsTo        Alias = "BELONGS_TO"
	AliasOwnedBy          Alias = "OWNED_BY"
)

// ErrNotFound is returned by store operations that require an existing node.
var ErrNotFound = errors.New("not found")

// Attrs holds a node's scalar attributes. Non-string values are encoded by
// the caller (the only one today is depth, stored as its decimal string).
type Attrs map[string]string

// Edge is one outgoing relationship, used for atomic create-with-edges.
type Edge struct {
	Alias    Alias
	TargetID string
}

// Node is the store's view of a vertex: attributes, label lattice
// (most-specific last) and any outgoing edges resolved per the include set.
type Node struct {
	ID        string
	Type      string
	Labels    []string
	Attrs     Attrs
	Out       map[Alias][]string
	CreatedAt string
	UpdatedAt string
}

// Label returns the node's most-specific type label, or "" when unlabeled.
func (n *Node) Label() string {
	if n == nil || len(n.Labels) == 0 {
		return ""
	}
	return n.Labels[len(n.Labels)-1]
}

// First returns the first target of an alias, or "" when the alias is empty.
func (n *Node) First(alias Alias) string {
	if n == nil || len(n.Out[alias]) == 0 {
		return ""
	}
	return n.Out[alias][0]
}

// Store is the only persistence surface the core depends on. Every call is a
// single round trip: the engine holds no cross-call transaction handle, so
// multi-step procedures rely on idempotent edge writes instead of rollback.
type Store interface {
	// NodeExists reports whether a node of the given type exists.
	NodeExists(ctx context.Context, nodeType, id string) (bool, error)

	// CreateNode writes the node, its label lattice, and any initial edges
	// atomically.
	CreateNode(ctx context.Context, nodeType, id string, labels []string, attrs Attrs, initial []Edge) error

	// UpdateNode merges attrs into the node and stamps updated_at.
	// Returns ErrNotFound if the node is absent.
	UpdateNode(ctx context.Context, nodeType, id string, attrs Attrs) error

	// DeleteNode removes the node; with detach it removes all incident edges
	// first. Reports whether a node was actually removed (idempotent).
	DeleteNode(ctx context.Context, nodeType, id string, detach bool) (bool, error)

	// FindByID returns the node with the given include aliases resolved
	// eagerly, or nil when absent.
	FindByID(ctx context.Context, nodeType, id string, include []Alias) (*Node, error)

	// FindByRelated returns all nodes of nodeType holding an alias edge
	// pointing at relatedID, hydrated per include.
	FindByRelated(ctx context.Context, nodeType string, alias Alias, relatedID string, include []Alias) ([]*Node, error)

	// FindByType lists every node of a type, oldest first.
	FindByType(ctx context.Context, nodeType string, include []Alias) ([]*Node, error)

	// AddEdge creates the edge if absent (idempotent by alias+source+target).
	AddEdge(ctx context.Context, alias Alias, sourceID, targetID string) error

	// RemoveEdges deletes matching edges; empty targetID matches every target.
	// Returns the number of edges removed.
	RemoveEdges(ctx context.Context, alias Alias, sourceID, targetID string) (int, error)

	// LabelsOf returns the node's full label lattice, most-specific last.
	// Returns ErrNotFound for unknown ids.
	LabelsOf(ctx context.Context, id string) ([]string, error)
}
