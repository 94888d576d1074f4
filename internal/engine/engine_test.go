package engine_test

import (
	"context"
	"errors"
	"testing"

	"reqline/internal/domain"
	"reqline/internal/engine"
	"reqline/internal/graph"
)

type memEnv struct {
	Store *graph.MemStore
	Eng   engine.Engine
	Ctx   context.Context
}

func newMemEnv(t *testing.T) memEnv {
	t.Helper()
	store := graph.NewMemStore()
	ctx := context.Background()
	if err := store.CreateNode(ctx, graph.TypeProject, "p1", []string{graph.TypeProject}, graph.Attrs{"name": "demo"}, nil); err != nil {
		t.Fatal(err)
	}
	for _, uc := range []string{"uc1", "uc2"} {
		if err := store.CreateNode(ctx, graph.TypeUseCase, uc, []string{graph.TypeUseCase}, graph.Attrs{"name": uc, "kind": "PRIMARY"}, nil); err != nil {
			t.Fatal(err)
		}
	}
	return memEnv{Store: store, Eng: engine.NewWithStore(store), Ctx: ctx}
}

func (e memEnv) createSystem(t *testing.T, id string) *domain.Requirement {
	t.Helper()
	req, err := e.Eng.CreateRequirement(e.Ctx, engine.CreateRequirementOptions{
		ProjectID: "p1",
		Requirement: domain.Requirement{
			ID: id, Variant: domain.VariantSystem, UseCaseID: "uc1", Operation: "Do " + id,
		},
	})
	if err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
	return req
}

func (e memEnv) createExceptional(t *testing.T, id string, handled ...string) *domain.Requirement {
	t.Helper()
	req, err := e.Eng.CreateRequirement(e.Ctx, engine.CreateRequirementOptions{
		ProjectID: "p1",
		Requirement: domain.Requirement{
			ID: id, Variant: domain.VariantExceptional, UseCaseID: "uc1",
			Exception: "something failed", HandledRequirementIDs: handled,
		},
	})
	if err != nil {
		t.Fatalf("create exceptional %s: %v", id, err)
	}
	return req
}

func TestCreateRequirementRejectsDoubleContainment(t *testing.T) {
	env := newMemEnv(t)
	env.createSystem(t, "parent")
	h := env.createSystem(t, "h1")
	env.createExceptional(t, "exc", h.ID)

	_, err := env.Eng.CreateRequirement(env.Ctx, engine.CreateRequirementOptions{
		ProjectID: "p1",
		Requirement: domain.Requirement{
			Variant: domain.VariantSystem, UseCaseID: "uc1", Operation: "Orphan",
		},
		ParentRequirementID: "parent",
		ExceptionID:         "exc",
	})
	var br domain.BadRequestError
	if !errors.As(err, &br) {
		t.Fatalf("expected BadRequestError, got %v", err)
	}
	if br.Reason != "a requirement may be nested under a parent or attached to an exception, not both" {
		t.Fatalf("message %q", br.Reason)
	}
}

func TestCreateRequirementWithParentLinksNested(t *testing.T) {
	env := newMemEnv(t)
	env.createSystem(t, "parent")

	child, err := env.Eng.CreateRequirement(env.Ctx, engine.CreateRequirementOptions{
		ProjectID: "p1",
		Requirement: domain.Requirement{
			Variant: domain.VariantSystem, UseCaseID: "uc1", Operation: "Child step",
		},
		ParentRequirementID: "parent",
	})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if child.ID == "" {
		t.Fatal("missing id was not generated")
	}
	parent, err := env.Eng.GetRequirement(env.Ctx, "parent")
	if err != nil {
		t.Fatal(err)
	}
	if len(parent.NestedRequirementIDs) != 1 || parent.NestedRequirementIDs[0] != child.ID {
		t.Fatalf("nested link missing: %v", parent.NestedRequirementIDs)
	}
}

func TestCreateRequirementIntoExceptionContainer(t *testing.T) {
	env := newMemEnv(t)
	h := env.createSystem(t, "h1")
	env.createExceptional(t, "exc", h.ID)

	member, err := env.Eng.CreateRequirement(env.Ctx, engine.CreateRequirementOptions{
		ProjectID: "p1",
		Requirement: domain.Requirement{
			Variant: domain.VariantSystem, UseCaseID: "uc1", Operation: "Recover state",
		},
		ExceptionID: "exc",
	})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	exc, err := env.Eng.GetRequirement(env.Ctx, "exc")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, id := range exc.HandledRequirementIDs {
		if id == member.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("member not in handled set: %v", exc.HandledRequirementIDs)
	}

	// A non-exceptional container is rejected.
	_, err = env.Eng.CreateRequirement(env.Ctx, engine.CreateRequirementOptions{
		ProjectID: "p1",
		Requirement: domain.Requirement{
			Variant: domain.VariantSystem, UseCaseID: "uc1", Operation: "Another step",
		},
		ExceptionID: "h1",
	})
	var br domain.BadRequestError
	if !errors.As(err, &br) || br.Reason != "requirement h1 is not an exceptional requirement" {
		t.Fatalf("expected container rejection, got %v", err)
	}
}

func TestCreateIntoExceptionRejectsUnhandleableVariant(t *testing.T) {
	env := newMemEnv(t)
	env.createSystem(t, "a")
	env.createSystem(t, "b")
	env.createSystem(t, "c")
	h := env.createSystem(t, "h1")
	env.createExceptional(t, "exc", h.ID)

	main := "a"
	_, err := env.Eng.CreateRequirement(env.Ctx, engine.CreateRequirementOptions{
		ProjectID: "p1",
		Requirement: domain.Requirement{
			Variant: domain.VariantLogicalGroup, UseCaseID: "uc1",
			MainRequirementID:    &main,
			DetailRequirementIDs: []string{"b", "c"},
		},
		ExceptionID: "exc",
	})
	var br domain.BadRequestError
	if !errors.As(err, &br) {
		t.Fatalf("expected BadRequestError, got %v", err)
	}
	if br.Reason != "an exceptional requirement may not handle a logical group requirement" {
		t.Fatalf("message %q", br.Reason)
	}
}

func TestRemoveRequirementCascadesDepthFirst(t *testing.T) {
	env := newMemEnv(t)
	env.createSystem(t, "parent")
	env.createSystem(t, "c1")
	env.createSystem(t, "c2")
	h := env.createSystem(t, "h1")
	env.createExceptional(t, "exc", h.ID)

	if err := env.Eng.AddNestedRequirement(env.Ctx, "parent", "c1"); err != nil {
		t.Fatal(err)
	}
	if err := env.Eng.AddNestedRequirement(env.Ctx, "parent", "c2"); err != nil {
		t.Fatal(err)
	}
	if err := env.Eng.AddException(env.Ctx, "parent", "exc"); err != nil {
		t.Fatal(err)
	}

	removed, err := env.Eng.RemoveRequirement(env.Ctx, "parent")
	if err != nil || !removed {
		t.Fatalf("remove: removed=%v err=%v", removed, err)
	}
	want := []string{"c1", "c2", "h1", "exc", "parent"}
	if len(env.Store.Deleted) != len(want) {
		t.Fatalf("deleted %v, want %v", env.Store.Deleted, want)
	}
	for i, id := range want {
		if env.Store.Deleted[i] != id {
			t.Fatalf("deleted %v, want %v", env.Store.Deleted, want)
		}
	}

	removed, err = env.Eng.RemoveRequirement(env.Ctx, "parent")
	if err != nil || removed {
		t.Fatalf("second remove must report false: removed=%v err=%v", removed, err)
	}
}

func TestAddNestedRequirementRejectsCycle(t *testing.T) {
	env := newMemEnv(t)
	env.createSystem(t, "a")
	env.createSystem(t, "b")
	env.createSystem(t, "c")
	if err := env.Eng.AddNestedRequirement(env.Ctx, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := env.Eng.AddNestedRequirement(env.Ctx, "b", "c"); err != nil {
		t.Fatal(err)
	}

	var br domain.BadRequestError
	err := env.Eng.AddNestedRequirement(env.Ctx, "b", "a")
	if !errors.As(err, &br) || br.Reason != "nesting requirement a under b would create a reference cycle" {
		t.Fatalf("direct cycle: %v", err)
	}
	err = env.Eng.AddNestedRequirement(env.Ctx, "c", "a")
	if !errors.As(err, &br) || br.Reason != "nesting requirement a under c would create a reference cycle" {
		t.Fatalf("transitive cycle: %v", err)
	}
	node, err := env.Store.FindByID(env.Ctx, graph.TypeRequirement, "b", []graph.Alias{graph.AliasNested})
	if err != nil {
		t.Fatal(err)
	}
	if got := node.Out[graph.AliasNested]; len(got) != 1 || got[0] != "c" {
		t.Fatalf("rejected link must not be written: %v", got)
	}
}

func TestUpdateRequirementRejectsReferenceCycle(t *testing.T) {
	env := newMemEnv(t)
	base := env.createSystem(t, "base")

	createRecursive := func(id, target string) {
		t.Helper()
		_, err := env.Eng.CreateRequirement(env.Ctx, engine.CreateRequirementOptions{
			ProjectID: "p1",
			Requirement: domain.Requirement{
				ID: id, Variant: domain.VariantRecursive, UseCaseID: "uc1", RequirementID: &target,
			},
		})
		if err != nil {
			t.Fatalf("create recursive %s: %v", id, err)
		}
	}
	createRecursive("rec-b", base.ID)
	createRecursive("rec-a", "rec-b")

	recA := "rec-a"
	_, err := env.Eng.UpdateRequirement(env.Ctx, "rec-b", domain.RequirementPatch{RequirementID: &recA})
	var br domain.BadRequestError
	if !errors.As(err, &br) || br.Reason != "referenced requirement rec-a would create a reference cycle" {
		t.Fatalf("cycle patch: %v", err)
	}
	node, err := env.Eng.GetRequirement(env.Ctx, "rec-b")
	if err != nil || node.RequirementID == nil || *node.RequirementID != base.ID {
		t.Fatalf("rejected patch must not change the reference: %+v %v", node, err)
	}
}

func TestRemoveRequirementTerminatesOnStoredCycle(t *testing.T) {
	env := newMemEnv(t)
	env.createSystem(t, "a")
	env.createSystem(t, "b")
	// Cycle written directly to the store, bypassing the engine's guards.
	if err := env.Store.AddEdge(env.Ctx, graph.AliasNested, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := env.Store.AddEdge(env.Ctx, graph.AliasNested, "b", "a"); err != nil {
		t.Fatal(err)
	}

	removed, err := env.Eng.RemoveRequirement(env.Ctx, "a")
	if err != nil || !removed {
		t.Fatalf("cyclic remove: removed=%v err=%v", removed, err)
	}
	if _, err := env.Eng.GetRequirement(env.Ctx, "b"); err == nil {
		t.Fatal("nested member of the cycle should be gone")
	}
}

func TestRemoveExceptionDeletesOrphanedExceptional(t *testing.T) {
	env := newMemEnv(t)
	env.createSystem(t, "r1")
	env.createSystem(t, "r2")
	h := env.createSystem(t, "h1")
	env.createExceptional(t, "exc", h.ID)

	if err := env.Eng.AddException(env.Ctx, "r1", "exc"); err != nil {
		t.Fatal(err)
	}
	if err := env.Eng.AddException(env.Ctx, "r2", "exc"); err != nil {
		t.Fatal(err)
	}

	// Still referenced by r2, so the exceptional stays.
	if err := env.Eng.RemoveException(env.Ctx, "r1", "exc"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Eng.GetRequirement(env.Ctx, "exc"); err != nil {
		t.Fatalf("exceptional deleted too early: %v", err)
	}

	// Last link gone: the exceptional and its handled set follow.
	if err := env.Eng.RemoveException(env.Ctx, "r2", "exc"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Eng.GetRequirement(env.Ctx, "exc"); err == nil {
		t.Fatal("orphaned exceptional survived")
	}
	if _, err := env.Eng.GetRequirement(env.Ctx, "h1"); err == nil {
		t.Fatal("handled member of orphaned exceptional survived")
	}
}

func TestAddExceptionRejectsNonExceptional(t *testing.T) {
	env := newMemEnv(t)
	env.createSystem(t, "r1")
	env.createSystem(t, "r2")

	err := env.Eng.AddException(env.Ctx, "r1", "r2")
	var br domain.BadRequestError
	if !errors.As(err, &br) || br.Reason != "requirement r2 is not an exceptional requirement" {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestAddNestedRequirementRejectsSelf(t *testing.T) {
	env := newMemEnv(t)
	env.createSystem(t, "r1")

	err := env.Eng.AddNestedRequirement(env.Ctx, "r1", "r1")
	var br domain.BadRequestError
	if !errors.As(err, &br) || br.Reason != "a requirement may not nest itself" {
		t.Fatalf("expected self-nest rejection, got %v", err)
	}
}

func TestSetToSecondaryUseCase(t *testing.T) {
	env := newMemEnv(t)
	env.createSystem(t, "parent")
	env.createSystem(t, "c1")
	env.createSystem(t, "c2")
	if err := env.Eng.AddNestedRequirement(env.Ctx, "parent", "c1"); err != nil {
		t.Fatal(err)
	}
	if err := env.Eng.AddNestedRequirement(env.Ctx, "parent", "c2"); err != nil {
		t.Fatal(err)
	}

	moved, err := env.Eng.SetToSecondaryUseCase(env.Ctx, "parent", "uc2")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if moved != 2 {
		t.Fatalf("moved %d, want 2", moved)
	}
	for _, id := range []string{"parent", "c1", "c2"} {
		req, err := env.Eng.GetRequirement(env.Ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if req.UseCaseID != "uc2" {
			t.Fatalf("%s still belongs to %s", id, req.UseCaseID)
		}
	}
}

func TestSetToSecondaryUseCaseMovesHandledSet(t *testing.T) {
	env := newMemEnv(t)
	h := env.createSystem(t, "h1")
	env.createExceptional(t, "exc", h.ID)

	moved, err := env.Eng.SetToSecondaryUseCase(env.Ctx, "exc", "uc2")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if moved != 1 {
		t.Fatalf("moved %d, want 1", moved)
	}
	req, err := env.Eng.GetRequirement(env.Ctx, "h1")
	if err != nil {
		t.Fatal(err)
	}
	if req.UseCaseID != "uc2" {
		t.Fatalf("handled member still belongs to %s", req.UseCaseID)
	}
}

func TestSetToSecondaryUseCaseRejectsEmptyContainer(t *testing.T) {
	env := newMemEnv(t)
	env.createSystem(t, "lone")

	_, err := env.Eng.SetToSecondaryUseCase(env.Ctx, "lone", "uc2")
	var br domain.BadRequestError
	if !errors.As(err, &br) || br.Reason != "requirement lone has no member requirements to move" {
		t.Fatalf("expected empty-container rejection, got %v", err)
	}

	_, err = env.Eng.SetToSecondaryUseCase(env.Ctx, "lone", "ghost")
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != "UseCase" {
		t.Fatalf("expected use case NotFound, got %v", err)
	}
}

func TestUpdateRequirement(t *testing.T) {
	env := newMemEnv(t)
	env.createSystem(t, "r1")

	op := "Changed operation"
	updated, err := env.Eng.UpdateRequirement(env.Ctx, "r1", domain.RequirementPatch{Operation: &op})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Operation != "Changed operation" {
		t.Fatalf("operation %q", updated.Operation)
	}

	// An empty patch is a read.
	same, err := env.Eng.UpdateRequirement(env.Ctx, "r1", domain.RequirementPatch{})
	if err != nil {
		t.Fatal(err)
	}
	if same.Operation != "Changed operation" {
		t.Fatalf("empty patch changed state: %q", same.Operation)
	}

	bad := "9 starts with a digit"
	if _, err := env.Eng.UpdateRequirement(env.Ctx, "r1", domain.RequirementPatch{Operation: &bad}); err == nil {
		t.Fatal("invalid patch accepted")
	}
}

func TestCreateRequirementStoreFailure(t *testing.T) {
	env := newMemEnv(t)
	env.Store.FailNextWrite = errors.New("disk full")

	_, err := env.Eng.CreateRequirement(env.Ctx, engine.CreateRequirementOptions{
		ProjectID: "p1",
		Requirement: domain.Requirement{
			Variant: domain.VariantSystem, UseCaseID: "uc1", Operation: "Doomed",
		},
	})
	var ie domain.InternalError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InternalError, got %v", err)
	}
}

func TestValidateRequirementDependency(t *testing.T) {
	env := newMemEnv(t)
	env.createSystem(t, "sys-1")
	h := env.createSystem(t, "h1")
	env.createExceptional(t, "exc", h.ID)

	if err := env.Eng.ValidateRequirementDependency(env.Ctx, domain.VariantConditional, "sys-1"); err != nil {
		t.Fatalf("allowed dependency rejected: %v", err)
	}
	err := env.Eng.ValidateRequirementDependency(env.Ctx, domain.VariantConditional, "exc")
	var br domain.BadRequestError
	if !errors.As(err, &br) {
		t.Fatalf("expected BadRequestError, got %v", err)
	}

	// Variants without a requirement edge fall back to an existence check.
	if err := env.Eng.ValidateRequirementDependency(env.Ctx, domain.VariantSystem, "sys-1"); err != nil {
		t.Fatalf("existence check failed: %v", err)
	}
	err = env.Eng.ValidateRequirementDependency(env.Ctx, domain.VariantSystem, "ghost")
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	err = env.Eng.ValidateRequirementDependency(env.Ctx, domain.Variant("bogus"), "sys-1")
	var uv domain.UnknownVariantError
	if !errors.As(err, &uv) {
		t.Fatalf("expected UnknownVariantError, got %v", err)
	}
}
