package sessions

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreMatchesStoreContract(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	first := sampleSession()
	second := sampleSession()
	second.Task = "Review PR"
	second.Date = "2026-03-03"

	firstID, err := store.Add(ctx, first)
	if err != nil {
		t.Fatalf("Add(first): %v", err)
	}
	secondID, err := store.Add(ctx, second)
	if err != nil {
		t.Fatalf("Add(second): %v", err)
	}
	if firstID == secondID {
		t.Fatalf("expected distinct ids, both got %d", firstID)
	}

	unsynced, err := store.Unsynced(ctx)
	if err != nil {
		t.Fatalf("Unsynced: %v", err)
	}
	if len(unsynced) != 2 || unsynced[0].ID >= unsynced[1].ID {
		t.Fatalf("expected 2 unsynced id-ascending, got %+v", unsynced)
	}

	updated, err := store.MarkSynced(ctx, firstID)
	if err != nil || !updated {
		t.Fatalf("MarkSynced: updated=%v err=%v", updated, err)
	}
	updatedAgain, err := store.MarkSynced(ctx, firstID)
	if err != nil || updatedAgain {
		t.Fatalf("expected idempotent second MarkSynced, updated=%v err=%v", updatedAgain, err)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 || all[0].Date != "2026-03-03" {
		t.Fatalf("expected newest date first, got %+v", all)
	}
}

func TestMemoryStoreValidatesBeforeFailHook(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	hookCalled := false
	store.FailNext = func(string) error {
		hookCalled = true
		return nil
	}

	invalid := sampleSession()
	invalid.Task = ""
	if _, err := store.Add(context.Background(), invalid); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if hookCalled {
		t.Fatalf("validation must reject the session before any store interaction")
	}
}

func TestMemoryStoreFailHookSurfacesErrors(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	store.FailNext = func(op string) error {
		if op == "add" {
			return ErrStoreBusy
		}
		return nil
	}

	if _, err := store.Add(context.Background(), sampleSession()); !errors.Is(err, ErrStoreBusy) {
		t.Fatalf("expected injected busy error, got %v", err)
	}
}
