package sheets

import (
	"context"

	"ahorro/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter mirrors stored transactions into an external spreadsheet.
	LedgerWriter interface {
		AppendTransaction(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}
)

// Header is the column layout written by every LedgerWriter.
var Header = []any{"Date", "Type", "Description", "Amount", "Category", "User", "Transaction ID"}

// Row renders tx in Header order. Amounts are written as numbers so the
// spreadsheet can total them.
func Row(tx core.Transaction) []any {
	return []any{
		tx.Date.String(),
		string(tx.Type),
		tx.Description,
		tx.Amount.Decimal().InexactFloat64(),
		tx.Category,
		tx.UserID,
		tx.ID,
	}
}
