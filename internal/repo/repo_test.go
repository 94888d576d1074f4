package repo_test

import (
	"context"
	"errors"
	"testing"

	"reqline/internal/domain"
	"reqline/internal/graph"
	"reqline/internal/registry"
	"reqline/internal/repo"
)

func newStore(t *testing.T) (*graph.MemStore, context.Context) {
	t.Helper()
	store := graph.NewMemStore()
	ctx := context.Background()
	if err := store.CreateNode(ctx, graph.TypeProject, "p1", []string{graph.TypeProject}, graph.Attrs{"name": "demo"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateNode(ctx, graph.TypeUseCase, "uc1", []string{graph.TypeUseCase}, graph.Attrs{"name": "main"}, nil); err != nil {
		t.Fatal(err)
	}
	return store, ctx
}

func seedRequirement(t *testing.T, store *graph.MemStore, ctx context.Context, id string, variant domain.Variant) {
	t.Helper()
	labels, err := registry.Labels(variant)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.CreateNode(ctx, graph.TypeRequirement, id, labels, graph.Attrs{"depth": "0"}, nil); err != nil {
		t.Fatal(err)
	}
}

func TestHandlerCreateWritesPayloadAndOwnershipEdges(t *testing.T) {
	store, ctx := newStore(t)
	d := repo.NewDispatch(store)
	seedRequirement(t, store, ctx, "cond-1", domain.VariantConditional)

	handler, err := d.Resolve(domain.VariantConditionalGroup)
	if err != nil {
		t.Fatal(err)
	}
	primary := "cond-1"
	created, err := handler.Create(ctx, &domain.Requirement{
		ID:                      "grp-1",
		Variant:                 domain.VariantConditionalGroup,
		UseCaseID:               "uc1",
		Depth:                   2,
		ConditionalValue:        "payment method",
		PrimaryConditionID:      &primary,
		AlternativeConditionIDs: []string{"cond-1"},
	}, "p1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Variant != domain.VariantConditionalGroup {
		t.Fatalf("variant %s", created.Variant)
	}
	if created.Depth != 2 {
		t.Fatalf("depth %d", created.Depth)
	}
	if created.ConditionalValue != "payment method" {
		t.Fatalf("attr lost: %q", created.ConditionalValue)
	}
	if created.UseCaseID != "uc1" {
		t.Fatalf("use case %q", created.UseCaseID)
	}
	if created.PrimaryConditionID == nil || *created.PrimaryConditionID != "cond-1" {
		t.Fatalf("primary condition %v", created.PrimaryConditionID)
	}

	// Ownership travels on an edge so project-wide listings work.
	owned, err := d.GetByProject(ctx, "p1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(owned) != 1 || owned[0].ID != "grp-1" {
		t.Fatalf("project listing %v", owned)
	}
}

func TestHandlerUpdateReplacesOnlySuppliedEdges(t *testing.T) {
	store, ctx := newStore(t)
	d := repo.NewDispatch(store)
	seedRequirement(t, store, ctx, "sys-1", domain.VariantSystem)
	seedRequirement(t, store, ctx, "sys-2", domain.VariantSystem)
	seedRequirement(t, store, ctx, "sys-3", domain.VariantSystem)

	handler, err := d.Resolve(domain.VariantLogicalGroup)
	if err != nil {
		t.Fatal(err)
	}
	main := "sys-1"
	if _, err := handler.Create(ctx, &domain.Requirement{
		ID:                   "grp-1",
		Variant:              domain.VariantLogicalGroup,
		UseCaseID:            "uc1",
		MainRequirementID:    &main,
		DetailRequirementIDs: []string{"sys-2", "sys-3"},
	}, "p1"); err != nil {
		t.Fatal(err)
	}

	updated, err := handler.Update(ctx, "grp-1", domain.RequirementPatch{
		DetailRequirementIDs: []string{"sys-3"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.DetailRequirementIDs) != 1 || updated.DetailRequirementIDs[0] != "sys-3" {
		t.Fatalf("details not replaced: %v", updated.DetailRequirementIDs)
	}
	if updated.MainRequirementID == nil || *updated.MainRequirementID != "sys-1" {
		t.Fatalf("untouched edge lost: %v", updated.MainRequirementID)
	}
	if updated.UpdatedAt == "" {
		t.Fatal("updated_at not stamped")
	}
}

func TestHandlerUpdateMissingRequirement(t *testing.T) {
	store, ctx := newStore(t)
	d := repo.NewDispatch(store)

	handler, err := d.Resolve(domain.VariantSystem)
	if err != nil {
		t.Fatal(err)
	}
	op := "New operation"
	_, err = handler.Update(ctx, "ghost", domain.RequirementPatch{Operation: &op})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestResolveUnknownVariant(t *testing.T) {
	d := repo.NewDispatch(graph.NewMemStore())
	_, err := d.Resolve(domain.Variant("bogus"))
	var uv domain.UnknownVariantError
	if !errors.As(err, &uv) {
		t.Fatalf("expected UnknownVariantError, got %v", err)
	}
}

func TestGetByUseCase(t *testing.T) {
	store, ctx := newStore(t)
	d := repo.NewDispatch(store)

	handler, err := d.Resolve(domain.VariantSystem)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"r1", "r2"} {
		if _, err := handler.Create(ctx, &domain.Requirement{
			ID: id, Variant: domain.VariantSystem, UseCaseID: "uc1", Operation: "Do " + id,
		}, "p1"); err != nil {
			t.Fatal(err)
		}
	}

	reqs, err := d.GetByUseCase(ctx, "uc1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 2 {
		t.Fatalf("got %d requirements", len(reqs))
	}

	reqs, err = d.GetByUseCase(ctx, "ghost", nil)
	if err != nil || len(reqs) != 0 {
		t.Fatalf("unknown use case must yield empty list: %v %v", reqs, err)
	}
}

func TestFromNodeMapsEveryField(t *testing.T) {
	store, ctx := newStore(t)
	labels, _ := registry.Labels(domain.VariantExceptional)
	if err := store.CreateNode(ctx, graph.TypeRequirement, "exc-1", labels,
		graph.Attrs{"depth": "3", "exception": "card declined"},
		[]graph.Edge{
			{Alias: graph.AliasHandles, TargetID: "h1"},
			{Alias: graph.AliasHandles, TargetID: "h2"},
			{Alias: graph.AliasBelongsTo, TargetID: "uc1"},
		}); err != nil {
		t.Fatal(err)
	}

	req, err := repo.NewDispatch(store).GetByID(ctx, "exc-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if req.Variant != domain.VariantExceptional {
		t.Fatalf("variant %s", req.Variant)
	}
	if req.Depth != 3 {
		t.Fatalf("depth %d", req.Depth)
	}
	if req.Exception != "card declined" {
		t.Fatalf("exception %q", req.Exception)
	}
	if len(req.HandledRequirementIDs) != 2 {
		t.Fatalf("handled set %v", req.HandledRequirementIDs)
	}
	if req.UseCaseID != "uc1" {
		t.Fatalf("use case %q", req.UseCaseID)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, ctx := newStore(t)
	d := repo.NewDispatch(store)
	seedRequirement(t, store, ctx, "r1", domain.VariantSystem)

	handler, err := d.Resolve(domain.VariantSystem)
	if err != nil {
		t.Fatal(err)
	}
	removed, err := handler.Delete(ctx, "r1")
	if err != nil || !removed {
		t.Fatalf("first delete: removed=%v err=%v", removed, err)
	}
	removed, err = handler.Delete(ctx, "r1")
	if err != nil || removed {
		t.Fatalf("second delete: removed=%v err=%v", removed, err)
	}
}
