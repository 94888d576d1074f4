package graph_test

import (
	"context"
	"errors"
	"testing"

	"reqline/internal/graph"
)

func TestMemStoreTracksDeletionOrder(t *testing.T) {
	store := graph.NewMemStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.CreateNode(ctx, graph.TypeRequirement, id, []string{"Requirement"}, nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range []string{"b", "a", "c"} {
		if _, err := store.DeleteNode(ctx, graph.TypeRequirement, id, true); err != nil {
			t.Fatal(err)
		}
	}
	if len(store.Deleted) != 3 || store.Deleted[0] != "b" || store.Deleted[1] != "a" || store.Deleted[2] != "c" {
		t.Fatalf("deletion order %v", store.Deleted)
	}
}

func TestMemStoreDetachRemovesIncidentEdges(t *testing.T) {
	store := graph.NewMemStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := store.CreateNode(ctx, graph.TypeRequirement, id, []string{"Requirement"}, nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.AddEdge(ctx, graph.AliasNested, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.DeleteNode(ctx, graph.TypeRequirement, "b", true); err != nil {
		t.Fatal(err)
	}
	a, err := store.FindByID(ctx, graph.TypeRequirement, "a", []graph.Alias{graph.AliasNested})
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Out[graph.AliasNested]) != 0 {
		t.Fatalf("dangling edge survived: %v", a.Out)
	}
}

func TestMemStoreFailNextWriteFiresOnce(t *testing.T) {
	store := graph.NewMemStore()
	ctx := context.Background()
	boom := errors.New("disk full")

	store.FailNextWrite = boom
	if err := store.CreateNode(ctx, graph.TypeRequirement, "a", []string{"Requirement"}, nil, nil); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if err := store.CreateNode(ctx, graph.TypeRequirement, "a", []string{"Requirement"}, nil, nil); err != nil {
		t.Fatalf("failure must not persist: %v", err)
	}
}

func TestMemStoreEdgeSemanticsMatchSQL(t *testing.T) {
	store := graph.NewMemStore()
	ctx := context.Background()

	if err := store.CreateNode(ctx, graph.TypeRequirement, "src", []string{"Requirement"}, nil, nil); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := store.AddEdge(ctx, graph.AliasDetails, "src", "d1"); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.AddEdge(ctx, graph.AliasDetails, "src", "d2"); err != nil {
		t.Fatal(err)
	}
	node, err := store.FindByID(ctx, graph.TypeRequirement, "src", []graph.Alias{graph.AliasDetails})
	if err != nil {
		t.Fatal(err)
	}
	if got := node.Out[graph.AliasDetails]; len(got) != 2 || got[0] != "d1" || got[1] != "d2" {
		t.Fatalf("edges %v, want [d1 d2]", got)
	}
	n, err := store.RemoveEdges(ctx, graph.AliasDetails, "src", "")
	if err != nil || n != 2 {
		t.Fatalf("wildcard removal: n=%d err=%v", n, err)
	}

	if _, err := store.LabelsOf(ctx, "ghost"); !errors.Is(err, graph.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
