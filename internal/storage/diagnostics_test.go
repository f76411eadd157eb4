package storage

import (
	"context"
	"fmt"
	"testing"
)

func TestRecordDiagnostic_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, msg := range []string{"first", "second"} {
		if err := store.RecordDiagnostic(ctx, Diagnostic{Message: msg, Path: "/api/x"}); err != nil {
			t.Fatalf("RecordDiagnostic(%q) error: %v", msg, err)
		}
	}

	got, err := store.Diagnostics(ctx)
	if err != nil {
		t.Fatalf("Diagnostics() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Message != "second" || got[1].Message != "first" {
		t.Errorf("order = [%q %q], want [second first]", got[0].Message, got[1].Message)
	}
	if got[0].Path != "/api/x" {
		t.Errorf("Path = %q, want %q", got[0].Path, "/api/x")
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not populated")
	}
}

func TestRecordDiagnostic_KeepsTenNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= MaxDiagnostics+5; i++ {
		if err := store.RecordDiagnostic(ctx, Diagnostic{Message: fmt.Sprintf("crash %d", i)}); err != nil {
			t.Fatalf("RecordDiagnostic(%d) error: %v", i, err)
		}
	}

	got, err := store.Diagnostics(ctx)
	if err != nil {
		t.Fatalf("Diagnostics() error: %v", err)
	}
	if len(got) != MaxDiagnostics {
		t.Fatalf("got %d entries, want %d", len(got), MaxDiagnostics)
	}
	if got[0].Message != "crash 15" {
		t.Errorf("newest = %q, want %q", got[0].Message, "crash 15")
	}
	if got[len(got)-1].Message != "crash 6" {
		t.Errorf("oldest kept = %q, want %q", got[len(got)-1].Message, "crash 6")
	}
}

func TestClearDiagnostics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordDiagnostic(ctx, Diagnostic{Message: "boom"}); err != nil {
		t.Fatalf("RecordDiagnostic() error: %v", err)
	}
	if err := store.ClearDiagnostics(ctx); err != nil {
		t.Fatalf("ClearDiagnostics() error: %v", err)
	}
	got, err := store.Diagnostics(ctx)
	if err != nil {
		t.Fatalf("Diagnostics() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d entries after clear, want 0", len(got))
	}
}
