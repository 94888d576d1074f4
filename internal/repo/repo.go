// Package repo maps requirement variants onto graph writes and reads. Writes
// dispatch through Resolve to a schema-driven handler; reads are
// variant-agnostic because the stored label lattice identifies the variant.
package repo

import (
	"context"
	"errors"
	"strconv"

	"reqline/internal/domain"
	"reqline/internal/graph"
	"reqline/internal/registry"
)

type Dispatch struct {
	Store graph.Store
}

func NewDispatch(store graph.Store) Dispatch {
	return Dispatch{Store: store}
}

// Resolve returns the write handler for a variant.
func (d Dispatch) Resolve(v domain.Variant) (Handler, error) {
	schema, err := registry.Describe(v)
	if err != nil {
		return Handler{}, err
	}
	return Handler{Schema: schema, Store: d.Store}, nil
}

// Handler performs writes for one variant. The schema tells it which
// attributes and aliases the variant owns; there is no per-variant code.
type Handler struct {
	Schema registry.Schema
	Store  graph.Store
}

// Create writes the node, its label lattice, the variant's payload edges and
// the ownership edges in one atomic store call, then reads the node back.
func (h Handler) Create(ctx context.Context, req *domain.Requirement, projectID string) (*domain.Requirement, error) {
	attrs := graph.Attrs{"depth": strconv.Itoa(req.Depth)}
	for _, rule := range h.Schema.Attributes {
		if v := attrOf(req, rule.Name); v != "" {
			attrs[rule.Name] = v
		}
	}
	var initial []graph.Edge
	for _, rule := range h.Schema.Edges {
		for _, target := range targetsOf(req, rule.Alias) {
			initial = append(initial, graph.Edge{Alias: rule.Alias, TargetID: target})
		}
	}
	initial = append(initial, graph.Edge{Alias: graph.AliasBelongsTo, TargetID: req.UseCaseID})
	initial = append(initial, graph.Edge{Alias: graph.AliasOwnedBy, TargetID: projectID})

	if err := h.Store.CreateNode(ctx, graph.TypeRequirement, req.ID, h.Schema.Labels, attrs, initial); err != nil {
		return nil, domain.Internalf("create requirement", err)
	}
	return Dispatch{Store: h.Store}.GetByID(ctx, req.ID, nil)
}

// Update applies only the supplied attributes and replaces only the supplied
// edge sets. An empty attribute patch still stamps updated_at.
func (h Handler) Update(ctx context.Context, id string, patch domain.RequirementPatch) (*domain.Requirement, error) {
	attrs := graph.Attrs{}
	if patch.Depth != nil {
		attrs["depth"] = strconv.Itoa(*patch.Depth)
	}
	for _, rule := range h.Schema.Attributes {
		if v := patchAttrOf(patch, rule.Name); v != nil {
			attrs[rule.Name] = *v
		}
	}
	if err := h.Store.UpdateNode(ctx, graph.TypeRequirement, id, attrs); err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return nil, domain.NotFoundError{Entity: "Requirement", ID: id}
		}
		return nil, domain.Internalf("update requirement", err)
	}
	for _, rule := range h.Schema.Edges {
		targets, supplied := patchTargetsOf(patch, rule.Alias)
		if !supplied {
			continue
		}
		if _, err := h.Store.RemoveEdges(ctx, rule.Alias, id, ""); err != nil {
			return nil, domain.Internalf("replace edges", err)
		}
		for _, target := range targets {
			if err := h.Store.AddEdge(ctx, rule.Alias, id, target); err != nil {
				return nil, domain.Internalf("replace edges", err)
			}
		}
	}
	return Dispatch{Store: h.Store}.GetByID(ctx, id, nil)
}

// Delete detach-deletes the node. Deleting a missing node reports false.
func (h Handler) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := h.Store.DeleteNode(ctx, graph.TypeRequirement, id, true)
	if err != nil {
		return false, domain.Internalf("delete requirement", err)
	}
	return removed, nil
}

// payloadAliases are always hydrated on reads; include adds to them.
var payloadAliases = []graph.Alias{
	graph.AliasActors,
	graph.AliasRequirement,
	graph.AliasUseCase,
	graph.AliasMain,
	graph.AliasDetails,
	graph.AliasPrimaryCondition,
	graph.AliasAlternatives,
	graph.AliasFallback,
	graph.AliasSimpleParts,
	graph.AliasHandles,
	graph.AliasBelongsTo,
}

func withPayload(include []graph.Alias) []graph.Alias {
	out := make([]graph.Alias, 0, len(payloadAliases)+len(include))
	out = append(out, payloadAliases...)
	out = append(out, include...)
	return out
}

// GetByID returns the hydrated requirement, or NotFound.
func (d Dispatch) GetByID(ctx context.Context, id string, include []graph.Alias) (*domain.Requirement, error) {
	node, err := d.Store.FindByID(ctx, graph.TypeRequirement, id, withPayload(include))
	if err != nil {
		return nil, domain.Internalf("load requirement", err)
	}
	if node == nil {
		return nil, domain.NotFoundError{Entity: "Requirement", ID: id}
	}
	return FromNode(node)
}

// GetByUseCase lists every requirement belonging to the use case. An unknown
// use case yields an empty list, not an error.
func (d Dispatch) GetByUseCase(ctx context.Context, useCaseID string, include []graph.Alias) ([]*domain.Requirement, error) {
	return d.listByRelated(ctx, graph.AliasBelongsTo, useCaseID, include)
}

// GetByProject lists every requirement owned by the project.
func (d Dispatch) GetByProject(ctx context.Context, projectID string, include []graph.Alias) ([]*domain.Requirement, error) {
	return d.listByRelated(ctx, graph.AliasOwnedBy, projectID, include)
}

func (d Dispatch) listByRelated(ctx context.Context, alias graph.Alias, relatedID string, include []graph.Alias) ([]*domain.Requirement, error) {
	nodes, err := d.Store.FindByRelated(ctx, graph.TypeRequirement, alias, relatedID, withPayload(include))
	if err != nil {
		return nil, domain.Internalf("list requirements", err)
	}
	res := make([]*domain.Requirement, 0, len(nodes))
	for _, node := range nodes {
		req, err := FromNode(node)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, nil
}

// FromNode maps a hydrated graph node to the domain view. The variant comes
// from the node's most-specific label.
func FromNode(n *graph.Node) (*domain.Requirement, error) {
	variant, err := registry.VariantOf(n.Labels)
	if err != nil {
		return nil, err
	}
	depth := 0
	if raw, ok := n.Attrs["depth"]; ok {
		if d, err := strconv.Atoi(raw); err == nil {
			depth = d
		}
	}
	req := &domain.Requirement{
		ID:        n.ID,
		Variant:   variant,
		UseCaseID: n.First(graph.AliasBelongsTo),
		Depth:     depth,

		Operation:             n.Attrs["operation"],
		Condition:             n.Attrs["condition"],
		ConditionalValue:      n.Attrs["conditional_value"],
		Exception:             n.Attrs["exception"],
		CommunicationInfo:     n.Attrs["communication_info"],
		CommunicationFacility: n.Attrs["communication_facility"],

		ActorIDs:                n.Out[graph.AliasActors],
		RequirementID:           ptrOf(n.First(graph.AliasRequirement)),
		ReferencedUseCaseID:     ptrOf(n.First(graph.AliasUseCase)),
		MainRequirementID:       ptrOf(n.First(graph.AliasMain)),
		DetailRequirementIDs:    n.Out[graph.AliasDetails],
		PrimaryConditionID:      ptrOf(n.First(graph.AliasPrimaryCondition)),
		AlternativeConditionIDs: n.Out[graph.AliasAlternatives],
		FallbackConditionID:     ptrOf(n.First(graph.AliasFallback)),
		SimpleRequirementIDs:    n.Out[graph.AliasSimpleParts],
		HandledRequirementIDs:   n.Out[graph.AliasHandles],

		NestedRequirementIDs: n.Out[graph.AliasNested],
		ExceptionIDs:         n.Out[graph.AliasExceptionAt],

		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
	return req, nil
}

func ptrOf(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func attrOf(req *domain.Requirement, name string) string {
	switch name {
	case "operation":
		return req.Operation
	case "condition":
		return req.Condition
	case "conditional_value":
		return req.ConditionalValue
	case "exception":
		return req.Exception
	case "communication_info":
		return req.CommunicationInfo
	case "communication_facility":
		return req.CommunicationFacility
	default:
		return ""
	}
}

func patchAttrOf(p domain.RequirementPatch, name string) *string {
	switch name {
	case "operation":
		return p.Operation
	case "condition":
		return p.Condition
	case "conditional_value":
		return p.ConditionalValue
	case "exception":
		return p.Exception
	case "communication_info":
		return p.CommunicationInfo
	case "communication_facility":
		return p.CommunicationFacility
	default:
		return nil
	}
}

func targetsOf(req *domain.Requirement, alias graph.Alias) []string {
	switch alias {
	case graph.AliasActors:
		return req.ActorIDs
	case graph.AliasRequirement:
		return fromPtr(req.RequirementID)
	case graph.AliasUseCase:
		return fromPtr(req.ReferencedUseCaseID)
	case graph.AliasMain:
		return fromPtr(req.MainRequirementID)
	case graph.AliasDetails:
		return req.DetailRequirementIDs
	case graph.AliasPrimaryCondition:
		return fromPtr(req.PrimaryConditionID)
	case graph.AliasAlternatives:
		return req.AlternativeConditionIDs
	case graph.AliasFallback:
		return fromPtr(req.FallbackConditionID)
	case graph.AliasSimpleParts:
		return req.SimpleRequirementIDs
	case graph.AliasHandles:
		return req.HandledRequirementIDs
	default:
		return nil
	}
}

func patchTargetsOf(p domain.RequirementPatch, alias graph.Alias) ([]string, bool) {
	switch alias {
	case graph.AliasActors:
		return p.ActorIDs, p.ActorIDs != nil
	case graph.AliasRequirement:
		return fromPtr(p.RequirementID), p.RequirementID != nil
	case graph.AliasUseCase:
		return fromPtr(p.ReferencedUseCaseID), p.ReferencedUseCaseID != nil
	case graph.AliasMain:
		return fromPtr(p.MainRequirementID), p.MainRequirementID != nil
	case graph.AliasDetails:
		return p.DetailRequirementIDs, p.DetailRequirementIDs != nil
	case graph.AliasPrimaryCondition:
		return fromPtr(p.PrimaryConditionID), p.PrimaryConditionID != nil
	case graph.AliasAlternatives:
		return p.AlternativeConditionIDs, p.AlternativeConditionIDs != nil
	case graph.AliasFallback:
		return fromPtr(p.FallbackConditionID), p.FallbackConditionID != nil
	case graph.AliasSimpleParts:
		return p.SimpleRequirementIDs, p.SimpleRequirementIDs != nil
	case graph.AliasHandles:
		return p.HandledRequirementIDs, p.HandledRequirementIDs != nil
	default:
		return nil, false
	}
}

func fromPtr(p *string) []string {
	if p == nil || *p == "" {
		return nil
	}
	return []string{*p}
}
