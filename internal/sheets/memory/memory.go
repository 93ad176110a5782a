// Package memory is a LedgerWriter that keeps rows in process. The worker
// uses it when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"ahorro/internal/core"
	"ahorro/internal/sheets"
)

type Writer struct {
	mu   sync.Mutex
	rows [][]any
}

var _ sheets.LedgerWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{}
}

// AppendTransaction stores the row and returns a synthetic row reference.
func (w *Writer) AppendTransaction(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.rows) == 0 {
		w.rows = append(w.rows, sheets.Header)
	}
	w.rows = append(w.rows, sheets.Row(tx))
	return fmt.Sprintf("mem:%d", len(w.rows)), nil
}

// Rows returns a copy of everything written so far, header included.
func (w *Writer) Rows() [][]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]any(nil), w.rows...)
}
