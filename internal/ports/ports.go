// Package ports declares the persistence boundaries the ledger depends on.
// Implementations live under internal/storage.
package ports

import (
	"context"
	"time"

	"ahorro/internal/core"
)

type (
	// TransactionFilter narrows ListTransactions. A zero Period means no date
	// bound and a zero Limit means no limit. Results are newest first.
	TransactionFilter struct {
		Period core.Period
		Limit  int
	}

	TransactionStore interface {
		CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
		ListTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]core.Transaction, error)
		DeleteTransaction(ctx context.Context, userID, id string) error
	}

	GoalStore interface {
		CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error)
		GetGoal(ctx context.Context, userID, id string) (core.SavingsGoal, error)
		// FindGoalByName matches the name case-insensitively.
		FindGoalByName(ctx context.Context, userID, name string) (core.SavingsGoal, error)
		ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error)
		// AdjustGoal adds delta to the goal balance, clamped to [0, target],
		// as one atomic step with respect to other adjustments.
		AdjustGoal(ctx context.Context, userID, id string, delta core.Money) (core.SavingsGoal, error)
		DeleteGoal(ctx context.Context, userID, id string) error
	}

	UserDirectory interface {
		GetProfile(ctx context.Context, id string) (core.Profile, error)
		// FindProfileByEmail matches the stored email exactly.
		FindProfileByEmail(ctx context.Context, email string) (core.Profile, error)
		ListUsers(ctx context.Context) ([]core.Profile, error)
	}

	// PendingSync is a transaction that has not reached the export sheet yet.
	PendingSync struct {
		ID        string
		UserID    string
		Version   int64
		CreatedAt time.Time
	}

	// SyncTracker records the export state of transactions.
	SyncTracker interface {
		GetPendingSync(ctx context.Context, limit int) ([]PendingSync, error)
		MarkSynced(ctx context.Context, id string) error
		MarkSyncError(ctx context.Context, id string) error
	}

	// Store is everything a backend provides.
	Store interface {
		TransactionStore
		GoalStore
		UserDirectory
		SyncTracker
		Ping(ctx context.Context) error
		Close() error
	}
)
