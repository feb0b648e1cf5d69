package memory

import (
	"context"
	"testing"

	"cashback/internal/core"
)

func TestMirrorAppendAndRemove(t *testing.T) {
	m := New()
	ctx := context.Background()
	tx := core.Transaction{ID: "a", Date: core.NewDate(2024, 1, 1), Description: "t", Category: "Food", Amount: 1.23}

	ref, err := m.AppendTransaction(ctx, tx)
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	ref, err = m.AppendTransaction(ctx, tx)
	if err != nil || ref != "mem:1" {
		t.Fatalf("duplicate append should reuse the row: ref=%q err=%v", ref, err)
	}
	if got := len(m.Rows()); got != 1 {
		t.Fatalf("rows = %d, want 1", got)
	}

	if err := m.RemoveTransaction(ctx, "missing"); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	if err := m.RemoveTransaction(ctx, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := len(m.Rows()); got != 0 {
		t.Fatalf("rows = %d, want 0", got)
	}
}

func TestMirrorRejectsInvalid(t *testing.T) {
	m := New()
	if _, err := m.AppendTransaction(context.Background(), core.Transaction{ID: "x"}); err == nil {
		t.Fatal("expected validation error")
	}
}
