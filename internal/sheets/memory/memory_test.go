package memory

import (
	"context"
	"testing"

	"ahorro/internal/core"
)

func TestWriterAppendTransaction(t *testing.T) {
	w := New()

	ref, err := w.AppendTransaction(context.Background(), core.Transaction{
		ID:          "tx-1",
		UserID:      "u1",
		Type:        core.Expense,
		Amount:      core.Money{Cents: 1550},
		Description: "Lunch",
		Category:    "Food",
		Date:        core.NewDate(2025, 4, 2),
	})
	if err != nil || ref != "mem:2" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	rows := w.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d", len(rows))
	}
	if rows[0][0] != "Date" {
		t.Errorf("expected header first, got %v", rows[0])
	}
	row := rows[1]
	if row[0] != "2025-04-02" || row[1] != "expense" || row[3] != 15.5 || row[6] != "tx-1" {
		t.Errorf("unexpected row: %v", row)
	}
}

func TestWriterRejectsInvalid(t *testing.T) {
	w := New()
	if _, err := w.AppendTransaction(context.Background(), core.Transaction{Type: core.Income}); err == nil {
		t.Fatal("expected validation error")
	}
	if len(w.Rows()) != 0 {
		t.Error("nothing should be written")
	}
}
