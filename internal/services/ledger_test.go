package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ahorro/internal/core"
	"ahorro/internal/ports"
	"ahorro/internal/storage/memory"
)

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *recordingPublisher) PublishTransactionSync(_ context.Context, id, _ string, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return p.err
}

// failingStore fails every goal listing, everything else is delegated.
type failingStore struct {
	*memory.Store
	err error
}

func (f failingStore) ListGoals(context.Context, string) ([]core.SavingsGoal, error) {
	return nil, f.err
}

func (f failingStore) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if tx.Description == "boom" {
		return core.Transaction{}, f.err
	}
	return f.Store.CreateTransaction(ctx, tx)
}

// brokenWriteStore fails transaction inserts or goal adjustments on demand.
type brokenWriteStore struct {
	*memory.Store
	createErr error
	adjustErr error
}

func (b brokenWriteStore) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if b.createErr != nil {
		return core.Transaction{}, b.createErr
	}
	return b.Store.CreateTransaction(ctx, tx)
}

func (b brokenWriteStore) AdjustGoal(ctx context.Context, userID, id string, delta core.Money) (core.SavingsGoal, error) {
	if b.adjustErr != nil {
		return core.SavingsGoal{}, b.adjustErr
	}
	return b.Store.AdjustGoal(ctx, userID, id, delta)
}

var fixedNow = time.Date(2025, 4, 10, 15, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T, store LedgerStore, pub SyncPublisher) *Ledger {
	t.Helper()
	l := NewLedger(store, pub)
	l.now = func() time.Time { return fixedNow }
	return l
}

func TestLedger_RecordTransaction_Defaults(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	pub := &recordingPublisher{}
	l := newTestLedger(t, store, pub)

	rec, err := l.RecordTransaction(ctx, "u1", TransactionInput{Type: core.Expense, Amount: core.Money{Cents: 1250}})
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	tx := rec.Transaction
	if tx.Category != core.DefaultCategory || tx.Description != core.DefaultDescription {
		t.Errorf("defaults not applied: %+v", tx)
	}
	if tx.Date.String() != "2025-04-10" {
		t.Errorf("date = %s, want 2025-04-10", tx.Date)
	}
	if rec.Goal != nil {
		t.Errorf("expected no goal update, got %+v", rec.Goal)
	}
	if len(pub.ids) != 1 || pub.ids[0] != tx.ID {
		t.Errorf("expected one sync message for %s, got %v", tx.ID, pub.ids)
	}
}

func TestLedger_RecordTransaction_Invalid(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		in    TransactionInput
		field string
	}{
		{"zero amount", TransactionInput{Type: core.Expense, Amount: core.Money{Cents: 0}}, "amount"},
		{"negative amount", TransactionInput{Type: core.Income, Amount: core.Money{Cents: -500}}, "amount"},
		{"bad type", TransactionInput{Type: "transfer", Amount: core.Money{Cents: 500}}, "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			l := newTestLedger(t, store, nil)

			_, err := l.RecordTransaction(ctx, "u1", tt.in)
			var ve *core.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(ve.Fields) != 1 || ve.Fields[0] != tt.field {
				t.Errorf("fields = %v, want [%s]", ve.Fields, tt.field)
			}

			txs, _ := store.ListTransactions(ctx, "u1", ports.TransactionFilter{})
			if len(txs) != 0 {
				t.Errorf("expected nothing persisted, got %d", len(txs))
			}
		})
	}
}

func TestLedger_RecordTransaction_ReconcilesGoal(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := newTestLedger(t, store, nil)

	goal, err := l.CreateGoal(ctx, "u1", GoalInput{Name: "Vacation", Target: core.Money{Cents: 100000}})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	rec, err := l.RecordTransaction(ctx, "u1", TransactionInput{
		Type: core.Income, Amount: core.Money{Cents: 30000}, Description: "  vacation ",
	})
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	if rec.Goal == nil || rec.Goal.ID != goal.ID || rec.Goal.Current.Cents != 30000 {
		t.Fatalf("expected goal deposit of 30000, got %+v", rec.Goal)
	}

	rec, err = l.RecordTransaction(ctx, "u1", TransactionInput{
		Type: core.Expense, Amount: core.Money{Cents: 50000}, Description: "Vacation",
	})
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	if rec.Goal == nil || rec.Goal.Current.Cents != 0 {
		t.Fatalf("expected withdrawal clamped to 0, got %+v", rec.Goal)
	}

	rec, err = l.RecordTransaction(ctx, "u1", TransactionInput{
		Type: core.Income, Amount: core.Money{Cents: 1000}, Description: "Vacation Fund",
	})
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	if rec.Goal != nil {
		t.Errorf("substring description must not match, got %+v", rec.Goal)
	}
}

func TestLedger_RecordTransaction_GoalFailureKeepsTransaction(t *testing.T) {
	ctx := context.Background()
	store := failingStore{Store: memory.New(), err: errors.New("disk full")}
	l := newTestLedger(t, store, nil)

	rec, err := l.RecordTransaction(ctx, "u1", TransactionInput{Type: core.Income, Amount: core.Money{Cents: 100}, Description: "Car"})
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	if rec.GoalError == "" {
		t.Error("expected goal error to be reported")
	}
	if rec.Transaction.ID == "" {
		t.Error("expected transaction to be saved")
	}
}

func TestLedger_RecordTransaction_StoreError(t *testing.T) {
	ctx := context.Background()
	store := failingStore{Store: memory.New(), err: errors.New("connection reset")}
	l := newTestLedger(t, store, nil)

	_, err := l.RecordTransaction(ctx, "u1", TransactionInput{Type: core.Expense, Amount: core.Money{Cents: 100}, Description: "boom"})
	var se *core.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if se.Op != "create transaction" {
		t.Errorf("op = %q", se.Op)
	}
}

func TestLedger_DepositToGoal(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	pub := &recordingPublisher{}
	l := newTestLedger(t, store, pub)

	goal, err := l.CreateGoal(ctx, "u1", GoalInput{Name: "Emergency", Target: core.Money{Cents: 50000}})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	res, err := l.DepositToGoal(ctx, "u1", GoalRef{Name: "EMERGENCY"}, core.Money{Cents: 20000}, true)
	if err != nil {
		t.Fatalf("DepositToGoal: %v", err)
	}
	if res.Goal.Current.Cents != 20000 {
		t.Errorf("current = %d, want 20000", res.Goal.Current.Cents)
	}
	if res.Transaction == nil {
		t.Fatal("expected linked expense")
	}
	if res.Transaction.Type != core.Expense || res.Transaction.Category != core.SavingsCategory ||
		res.Transaction.Description != "Deposit to Emergency" || res.Transaction.Amount.Cents != 20000 {
		t.Errorf("unexpected linked expense: %+v", res.Transaction)
	}
	if len(pub.ids) != 1 {
		t.Errorf("expected linked expense to be published, got %v", pub.ids)
	}

	res, err = l.DepositToGoal(ctx, "u1", GoalRef{ID: goal.ID}, core.Money{Cents: 90000}, false)
	if err != nil {
		t.Fatalf("DepositToGoal: %v", err)
	}
	if res.Goal.Current.Cents != 50000 || !res.Goal.Completed() {
		t.Errorf("expected clamp to target, got %+v", res.Goal)
	}
	if res.Transaction != nil {
		t.Error("expected no linked expense when not funded from income")
	}
}

func TestLedger_DepositToGoal_Errors(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := newTestLedger(t, store, nil)

	goal, err := l.CreateGoal(ctx, "u1", GoalInput{Name: "Bike", Target: core.Money{Cents: 30000}})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	_, err = l.DepositToGoal(ctx, "u1", GoalRef{Name: "Boat"}, core.Money{Cents: 100}, true)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	_, err = l.DepositToGoal(ctx, "u1", GoalRef{}, core.Money{Cents: 100}, true)
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected validation error for missing goal, got %v", err)
	}

	_, err = l.DepositToGoal(ctx, "u1", GoalRef{ID: goal.ID}, core.Money{Cents: 0}, true)
	if !errors.As(err, &ve) || ve.Fields[0] != "amount" {
		t.Errorf("expected amount validation error, got %v", err)
	}

	after, _ := store.GetGoal(ctx, "u1", goal.ID)
	if after.Current.Cents != 0 {
		t.Errorf("goal mutated by failed deposits: %+v", after)
	}
	txs, _ := store.ListTransactions(ctx, "u1", ports.TransactionFilter{})
	if len(txs) != 0 {
		t.Errorf("expected no transactions, got %d", len(txs))
	}
}

func TestLedger_ConcurrentDeposits(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := newTestLedger(t, store, nil)

	goal, err := store.CreateGoal(ctx, core.SavingsGoal{UserID: "u1", Name: "House", Target: core.Money{Cents: 100000}, Current: core.Money{Cents: 40000}})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	var wg sync.WaitGroup
	for _, amount := range []int64{25000, 35000} {
		wg.Add(1)
		go func(cents int64) {
			defer wg.Done()
			if _, err := l.DepositToGoal(ctx, "u1", GoalRef{ID: goal.ID}, core.Money{Cents: cents}, false); err != nil {
				t.Errorf("DepositToGoal: %v", err)
			}
		}(amount)
	}
	wg.Wait()

	final, _ := store.GetGoal(ctx, "u1", goal.ID)
	if final.Current.Cents != final.Target.Cents {
		t.Errorf("current = %d, want %d", final.Current.Cents, final.Target.Cents)
	}
}

func TestLedger_CreateGoal_Validation(t *testing.T) {
	l := newTestLedger(t, memory.New(), nil)

	_, err := l.CreateGoal(context.Background(), "u1", GoalInput{Name: "  ", Target: core.Money{Cents: 0}})
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Fields) != 2 || ve.Fields[0] != "name" || ve.Fields[1] != "target_amount" {
		t.Errorf("fields = %v", ve.Fields)
	}
}

func TestLedger_ListAndDeleteGoals(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := newTestLedger(t, store, nil)

	if _, err := l.CreateGoal(ctx, "u1", GoalInput{Name: "Laptop", Target: core.Money{Cents: 200000}}); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	if _, err := l.DepositToGoal(ctx, "u1", GoalRef{Name: "laptop"}, core.Money{Cents: 50000}, false); err != nil {
		t.Fatalf("DepositToGoal: %v", err)
	}

	goals, err := l.ListGoals(ctx, "u1")
	if err != nil {
		t.Fatalf("ListGoals: %v", err)
	}
	if len(goals) != 1 || goals[0].Progress != 25 || goals[0].Remaining.Cents != 150000 || goals[0].Completed {
		t.Errorf("unexpected goal status: %+v", goals)
	}

	deleted, err := l.DeleteGoal(ctx, "u1", GoalRef{Name: "Laptop"})
	if err != nil {
		t.Fatalf("DeleteGoal: %v", err)
	}
	if deleted.Name != "Laptop" {
		t.Errorf("deleted = %+v", deleted)
	}
	if _, err := l.DeleteGoal(ctx, "u1", GoalRef{Name: "Laptop"}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestLedger_PublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("circuit breaker is open")}
	l := newTestLedger(t, memory.New(), pub)

	if _, err := l.RecordTransaction(context.Background(), "u1", TransactionInput{Type: core.Income, Amount: core.Money{Cents: 100}}); err != nil {
		t.Fatalf("RecordTransaction should ignore publish errors: %v", err)
	}
}

func TestLedger_DepositToGoal_FailureLeavesNoMutation(t *testing.T) {
	ctx := context.Background()

	t.Run("expense insert fails", func(t *testing.T) {
		mem := memory.New()
		goal, err := mem.CreateGoal(ctx, core.SavingsGoal{UserID: "u1", Name: "Trip", Target: core.Money{Cents: 100000}})
		if err != nil {
			t.Fatalf("CreateGoal: %v", err)
		}
		pub := &recordingPublisher{}
		l := newTestLedger(t, brokenWriteStore{Store: mem, createErr: errors.New("insert failed")}, pub)

		_, err = l.DepositToGoal(ctx, "u1", GoalRef{ID: goal.ID}, core.Money{Cents: 3000}, true)
		var se *core.StoreError
		if !errors.As(err, &se) {
			t.Fatalf("expected StoreError, got %v", err)
		}
		after, _ := mem.GetGoal(ctx, "u1", goal.ID)
		if after.Current.Cents != 0 {
			t.Errorf("goal current = %d after failed deposit, want 0", after.Current.Cents)
		}
		if len(pub.ids) != 0 {
			t.Errorf("published %v for a failed deposit", pub.ids)
		}
	})

	t.Run("goal update fails", func(t *testing.T) {
		mem := memory.New()
		goal, err := mem.CreateGoal(ctx, core.SavingsGoal{UserID: "u1", Name: "Trip", Target: core.Money{Cents: 100000}})
		if err != nil {
			t.Fatalf("CreateGoal: %v", err)
		}
		pub := &recordingPublisher{}
		l := newTestLedger(t, brokenWriteStore{Store: mem, adjustErr: errors.New("update failed")}, pub)

		if _, err := l.DepositToGoal(ctx, "u1", GoalRef{ID: goal.ID}, core.Money{Cents: 3000}, true); err == nil {
			t.Fatal("expected error")
		}
		txs, _ := mem.ListTransactions(ctx, "u1", ports.TransactionFilter{})
		if len(txs) != 0 {
			t.Errorf("linked expense kept after failed goal update: %+v", txs)
		}
		if len(pub.ids) != 0 {
			t.Errorf("published %v for a failed deposit", pub.ids)
		}
	})
}
