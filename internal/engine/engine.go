// Package engine orchestrates requirement operations: validation first, then
// dispatch to the schema-driven handler, then containment and audit writes.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"reqline/internal/config"
	"reqline/internal/domain"
	"reqline/internal/events"
	"reqline/internal/graph"
	"reqline/internal/registry"
	"reqline/internal/repo"
	"reqline/internal/validate"
)

type Engine struct {
	DB       *sql.DB
	Store    graph.Store
	Dispatch repo.Dispatch
	Check    validate.Engine
	Events   events.Writer
	Config   *config.Config
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	store := graph.NewSQLStore(db)
	return Engine{
		DB:       db,
		Store:    store,
		Dispatch: repo.NewDispatch(store),
		Check:    validate.New(store),
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Now:      time.Now,
	}
}

// NewWithStore builds an engine over an arbitrary store. Audit events and
// project configs need a DB and are skipped without one; tests use this with
// the in-memory store.
func NewWithStore(store graph.Store) Engine {
	return Engine{
		Store:    store,
		Dispatch: repo.NewDispatch(store),
		Check:    validate.New(store),
		Now:      time.Now,
	}
}

func variantName(v domain.Variant) string {
	return strings.ReplaceAll(string(v), "_", " ")
}

func article(noun string) string {
	if noun != "" && strings.ContainsRune("aeiou", rune(noun[0])) {
		return "an"
	}
	return "a"
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// audit appends an event row. Best-effort: a failed append never fails the
// operation that produced it.
func (e Engine) audit(ctx context.Context, evtType, projectID, entityKind, entityID string, payload events.EventPayload) {
	if e.Events.DB == nil {
		return
	}
	_ = e.Events.Append(ctx, evtType, projectID, entityKind, entityID, payload)
}

// CreateRequirementOptions carries one requirement to create plus its
// optional containment. At most one of ParentRequirementID and ExceptionID
// may be set.
type CreateRequirementOptions struct {
	ProjectID           string
	Requirement         domain.Requirement
	ParentRequirementID string
	ExceptionID         string
}

func (e Engine) CreateRequirement(ctx context.Context, opts CreateRequirementOptions) (*domain.Requirement, error) {
	req := opts.Requirement
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if opts.ParentRequirementID != "" && opts.ExceptionID != "" {
		return nil, domain.BadRequestf("a requirement may be nested under a parent or attached to an exception, not both")
	}
	if err := e.Check.CommonParams(ctx, req.UseCaseID, opts.ProjectID, req.Depth); err != nil {
		return nil, err
	}
	if err := e.Check.TypeSpecificParams(ctx, &req); err != nil {
		return nil, err
	}
	if opts.ParentRequirementID != "" {
		if err := e.Check.RequirementID(ctx, opts.ParentRequirementID); err != nil {
			return nil, err
		}
	}
	if opts.ExceptionID != "" {
		if err := e.checkExceptionContainer(ctx, opts.ExceptionID, req.Variant); err != nil {
			return nil, err
		}
	}
	handler, err := e.Dispatch.Resolve(req.Variant)
	if err != nil {
		return nil, err
	}
	created, err := handler.Create(ctx, &req, opts.ProjectID)
	if err != nil {
		return nil, err
	}
	if opts.ParentRequirementID != "" {
		if err := e.Store.AddEdge(ctx, graph.AliasNested, opts.ParentRequirementID, req.ID); err != nil {
			return nil, domain.Internalf("link nested requirement", err)
		}
	}
	if opts.ExceptionID != "" {
		if err := e.Store.AddEdge(ctx, graph.AliasHandles, opts.ExceptionID, req.ID); err != nil {
			return nil, domain.Internalf("link handled requirement", err)
		}
	}
	e.audit(ctx, "requirement.create", opts.ProjectID, "requirement", req.ID,
		events.EventPayload{"variant": string(req.Variant), "use_case_id": req.UseCaseID})
	return created, nil
}

// checkExceptionContainer verifies the container exists, is exceptional, and
// may handle a requirement of the given variant.
func (e Engine) checkExceptionContainer(ctx context.Context, exceptionID string, member domain.Variant) error {
	labels, err := e.Store.LabelsOf(ctx, exceptionID)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return domain.NotFoundError{Entity: "Requirement", ID: exceptionID}
		}
		return domain.Internalf("read labels", err)
	}
	variant, err := registry.VariantOf(labels)
	if err != nil {
		return err
	}
	if variant != domain.VariantExceptional {
		return domain.BadRequestf("requirement %s is not an exceptional requirement", exceptionID)
	}
	disallowed, err := registry.DisallowedTargets(domain.VariantExceptional, graph.AliasHandles)
	if err != nil {
		return err
	}
	for _, d := range disallowed {
		if d == member {
			name := variantName(member)
			return domain.BadRequestf("an exceptional requirement may not handle %s %s requirement", article(name), name)
		}
	}
	return nil
}

func (e Engine) UpdateRequirement(ctx context.Context, id string, patch domain.RequirementPatch) (*domain.Requirement, error) {
	existing, err := e.Dispatch.GetByID(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return existing, nil
	}
	if err := e.Check.PatchParams(ctx, existing.Variant, id, patch); err != nil {
		return nil, err
	}
	handler, err := e.Dispatch.Resolve(existing.Variant)
	if err != nil {
		return nil, err
	}
	updated, err := handler.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	e.audit(ctx, "requirement.update", "", "requirement", id, nil)
	return updated, nil
}

// RemoveRequirement deletes the requirement and its owned subtree: nested
// children first, then attached exceptional requirements with their handled
// sets, then the node itself. Cross-references held by other requirements are
// detached, never cascaded. Removing an unknown id reports false.
func (e Engine) RemoveRequirement(ctx context.Context, id string) (bool, error) {
	removed, err := e.removeCascade(ctx, id, map[string]bool{})
	if err != nil {
		return false, err
	}
	if removed {
		e.audit(ctx, "requirement.remove", "", "requirement", id, nil)
	}
	return removed, nil
}

func (e Engine) removeCascade(ctx context.Context, id string, visited map[string]bool) (bool, error) {
	if visited[id] {
		return false, nil
	}
	visited[id] = true
	req, err := e.Dispatch.GetByID(ctx, id, []graph.Alias{graph.AliasNested, graph.AliasExceptionAt})
	if err != nil {
		var nf domain.NotFoundError
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	for _, child := range req.NestedRequirementIDs {
		if _, err := e.removeCascade(ctx, child, visited); err != nil {
			return false, err
		}
	}
	if req.Variant == domain.VariantExceptional {
		for _, handled := range req.HandledRequirementIDs {
			if _, err := e.removeCascade(ctx, handled, visited); err != nil {
				return false, err
			}
		}
	}
	for _, excID := range req.ExceptionIDs {
		if _, err := e.removeCascade(ctx, excID, visited); err != nil {
			return false, err
		}
	}
	removed, err := e.Store.DeleteNode(ctx, graph.TypeRequirement, id, true)
	if err != nil {
		return false, domain.Internalf("delete requirement", err)
	}
	return removed, nil
}

func (e Engine) GetRequirement(ctx context.Context, id string) (*domain.Requirement, error) {
	return e.Dispatch.GetByID(ctx, id, []graph.Alias{graph.AliasNested, graph.AliasExceptionAt})
}

func (e Engine) RequirementsByUseCase(ctx context.Context, useCaseID string) ([]*domain.Requirement, error) {
	return e.Dispatch.GetByUseCase(ctx, useCaseID, []graph.Alias{graph.AliasNested, graph.AliasExceptionAt})
}

func (e Engine) RequirementsByProject(ctx context.Context, projectID string) ([]*domain.Requirement, error) {
	return e.Dispatch.GetByProject(ctx, projectID, []graph.Alias{graph.AliasNested, graph.AliasExceptionAt})
}

// AddNestedRequirement links child under parent. Both must exist; a
// requirement cannot nest itself, and a link that would close a reference
// cycle is rejected. Re-adding an existing link is a no-op.
func (e Engine) AddNestedRequirement(ctx context.Context, parentID, childID string) error {
	if parentID == childID {
		return domain.BadRequestf("a requirement may not nest itself")
	}
	if err := e.Check.RequirementID(ctx, parentID); err != nil {
		return err
	}
	if err := e.Check.RequirementID(ctx, childID); err != nil {
		return err
	}
	cyclic, err := e.Check.CreatesCycle(ctx, parentID, childID)
	if err != nil {
		return err
	}
	if cyclic {
		return domain.BadRequestf("nesting requirement %s under %s would create a reference cycle", childID, parentID)
	}
	if err := e.Store.AddEdge(ctx, graph.AliasNested, parentID, childID); err != nil {
		return domain.Internalf("link nested requirement", err)
	}
	e.audit(ctx, "requirement.nest", "", "requirement", childID, events.EventPayload{"parent_id": parentID})
	return nil
}

func (e Engine) RemoveNestedRequirement(ctx context.Context, parentID, childID string) error {
	if err := e.Check.RequirementID(ctx, parentID); err != nil {
		return err
	}
	if err := e.Check.RequirementID(ctx, childID); err != nil {
		return err
	}
	if _, err := e.Store.RemoveEdges(ctx, graph.AliasNested, parentID, childID); err != nil {
		return domain.Internalf("unlink nested requirement", err)
	}
	e.audit(ctx, "requirement.unnest", "", "requirement", childID, events.EventPayload{"parent_id": parentID})
	return nil
}

// AddException marks the exceptional requirement as raised at the given
// requirement.
func (e Engine) AddException(ctx context.Context, requirementID, exceptionalID string) error {
	if err := e.Check.RequirementID(ctx, requirementID); err != nil {
		return err
	}
	labels, err := e.Store.LabelsOf(ctx, exceptionalID)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return domain.NotFoundError{Entity: "Requirement", ID: exceptionalID}
		}
		return domain.Internalf("read labels", err)
	}
	variant, err := registry.VariantOf(labels)
	if err != nil {
		return err
	}
	if variant != domain.VariantExceptional {
		return domain.BadRequestf("requirement %s is not an exceptional requirement", exceptionalID)
	}
	if err := e.Store.AddEdge(ctx, graph.AliasExceptionAt, requirementID, exceptionalID); err != nil {
		return domain.Internalf("link exception", err)
	}
	e.audit(ctx, "requirement.exception.add", "", "requirement", requirementID,
		events.EventPayload{"exceptional_id": exceptionalID})
	return nil
}

// RemoveException unlinks the exceptional requirement from the given
// requirement. When the last link is gone the exceptional node is deleted
// together with its handled set.
func (e Engine) RemoveException(ctx context.Context, requirementID, exceptionalID string) error {
	if err := e.Check.RequirementID(ctx, requirementID); err != nil {
		return err
	}
	if err := e.Check.RequirementID(ctx, exceptionalID); err != nil {
		return err
	}
	if _, err := e.Store.RemoveEdges(ctx, graph.AliasExceptionAt, requirementID, exceptionalID); err != nil {
		return domain.Internalf("unlink exception", err)
	}
	remaining, err := e.Store.FindByRelated(ctx, graph.TypeRequirement, graph.AliasExceptionAt, exceptionalID, nil)
	if err != nil {
		return domain.Internalf("list exception links", err)
	}
	if len(remaining) == 0 {
		if _, err := e.removeCascade(ctx, exceptionalID, map[string]bool{}); err != nil {
			return err
		}
	}
	e.audit(ctx, "requirement.exception.remove", "", "requirement", requirementID,
		events.EventPayload{"exceptional_id": exceptionalID})
	return nil
}

// SetToSecondaryUseCase moves a container's member requirements, and the
// container itself, to another use case. Members are the nested children, or
// the handled set for an exceptional container. Returns how many member
// requirements moved.
func (e Engine) SetToSecondaryUseCase(ctx context.Context, containerID, targetUseCaseID string) (int, error) {
	ok, err := e.Store.NodeExists(ctx, graph.TypeUseCase, targetUseCaseID)
	if err != nil {
		return 0, domain.Internalf("check use case", err)
	}
	if !ok {
		return 0, domain.NotFoundError{Entity: "UseCase", ID: targetUseCaseID}
	}
	container, err := e.Dispatch.GetByID(ctx, containerID, []graph.Alias{graph.AliasNested})
	if err != nil {
		return 0, err
	}
	members := container.NestedRequirementIDs
	if container.Variant == domain.VariantExceptional {
		members = container.HandledRequirementIDs
	}
	if len(members) == 0 {
		return 0, domain.BadRequestf("requirement %s has no member requirements to move", containerID)
	}
	moved := 0
	for _, member := range members {
		if err := e.rebelong(ctx, member, targetUseCaseID); err != nil {
			return moved, err
		}
		moved++
	}
	if err := e.rebelong(ctx, containerID, targetUseCaseID); err != nil {
		return moved, err
	}
	e.audit(ctx, "requirement.transfer", "", "requirement", containerID,
		events.EventPayload{"use_case_id": targetUseCaseID, "moved": moved})
	return moved, nil
}

func (e Engine) rebelong(ctx context.Context, requirementID, useCaseID string) error {
	if _, err := e.Store.RemoveEdges(ctx, graph.AliasBelongsTo, requirementID, ""); err != nil {
		return domain.Internalf("move requirement", err)
	}
	if err := e.Store.AddEdge(ctx, graph.AliasBelongsTo, requirementID, useCaseID); err != nil {
		return domain.Internalf("move requirement", err)
	}
	return nil
}

// ValidateRequirementDependency is the pre-flight check: may a requirement of
// sourceVariant reference targetID through its requirement-typed edge.
func (e Engine) ValidateRequirementDependency(ctx context.Context, sourceVariant domain.Variant, targetID string) error {
	schema, err := registry.Describe(sourceVariant)
	if err != nil {
		return err
	}
	for _, rule := range schema.Edges {
		if rule.TargetType != graph.TypeRequirement {
			continue
		}
		return e.Check.ReferenceAllowed(ctx, sourceVariant, rule.Alias, targetID)
	}
	return e.Check.RequirementID(ctx, targetID)
}
