package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ahorro/internal/amqp"
	"ahorro/internal/core"
	"ahorro/internal/ports"
	"ahorro/internal/sheets"
)

// Store is what the worker needs from the backend.
type Store interface {
	GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
	ports.SyncTracker
}

// SyncWorker mirrors stored transactions into the ledger spreadsheet.
type SyncWorker struct {
	store     Store
	sheets    sheets.LedgerWriter
	batchSize int
}

func NewSyncWorker(store Store, writer sheets.LedgerWriter, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		store:     store,
		sheets:    writer,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single transaction sync message from AMQP
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"version", msg.Version)

	tx, err := w.store.GetTransaction(ctx, msg.UserID, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		// Requeueing cannot help; drop the message.
		w.retire(ctx, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	if err := w.syncTransaction(ctx, tx); err != nil {
		return fmt.Errorf("sync transaction to sheets: %w", err)
	}
	return nil
}

// ProcessPendingTransactions exports transactions that never reached the
// sheet. It is the fallback for lost AMQP messages.
func (w *SyncWorker) ProcessPendingTransactions(ctx context.Context) (synced, failed int, err error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger pending sweep when the worker starts, to
// recover from downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if synced+failed == 0 {
		slog.InfoContext(ctx, "No pending transactions found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed",
		"synced", synced,
		"errors", failed)
	return nil
}

// Run sweeps pending transactions every interval until ctx is done.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			synced, failed, err := w.ProcessPendingTransactions(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "Pending sync sweep failed", "error", err)
				continue
			}
			if synced+failed > 0 {
				slog.InfoContext(ctx, "Pending sync sweep done", "synced", synced, "errors", failed)
			}
		}
	}
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.store.GetPendingSync(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending transactions: %w", err)
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}

		tx, err := w.store.GetTransaction(ctx, p.UserID, p.ID)
		if errors.Is(err, core.ErrNotFound) {
			w.retire(ctx, p.ID)
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to get transaction", "id", p.ID, "error", err)
			w.markError(ctx, p.ID)
			failed++
			continue
		}

		if err := w.syncTransaction(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction", "id", p.ID, "error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

func (w *SyncWorker) syncTransaction(ctx context.Context, tx core.Transaction) error {
	ref, err := w.sheets.AppendTransaction(ctx, tx)
	if err != nil {
		w.markError(ctx, tx.ID)
		return err
	}

	if err := w.store.MarkSynced(ctx, tx.ID); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}

	slog.InfoContext(ctx, "Transaction synced to sheet",
		"id", tx.ID,
		"row_ref", ref)
	return nil
}

// retire takes a transaction that no longer exists out of the pending set.
func (w *SyncWorker) retire(ctx context.Context, id string) {
	slog.WarnContext(ctx, "Transaction no longer exists, skipping sync", "id", id)
	if err := w.store.MarkSynced(ctx, id); err != nil && !errors.Is(err, core.ErrNotFound) {
		slog.ErrorContext(ctx, "Failed to retire missing transaction", "id", id, "error", err)
	}
}

func (w *SyncWorker) markError(ctx context.Context, id string) {
	if err := w.store.MarkSyncError(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync error", "id", id, "error", err)
	}
}
