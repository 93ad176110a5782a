package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ahorro/internal/core"
	applog "ahorro/internal/log"
	"ahorro/internal/ports"
)

// SyncPublisher announces new transactions to the export worker.
type SyncPublisher interface {
	PublishTransactionSync(ctx context.Context, id, userID string, version int64) error
}

type LedgerStore interface {
	ports.TransactionStore
	ports.GoalStore
}

// Ledger records transactions and keeps savings goals in step with them.
type Ledger struct {
	store     LedgerStore
	publisher SyncPublisher
	logger    *applog.StructuredLogger
	now       func() time.Time
}

// NewLedger builds a Ledger. publisher may be nil, in which case no sync
// messages are sent and the worker's pending sweep picks transactions up.
func NewLedger(store LedgerStore, publisher SyncPublisher) *Ledger {
	return &Ledger{
		store:     store,
		publisher: publisher,
		logger:    applog.NewStructuredLogger(applog.Default(applog.ComponentLedger)),
		now:       time.Now,
	}
}

// TransactionInput is a transaction as received from a caller, before
// defaults are applied.
type TransactionInput struct {
	Type        core.TransactionType
	Amount      core.Money
	Category    string
	Description string
	Date        core.Date
}

// RecordedTransaction is the outcome of RecordTransaction. Goal is set when
// the description matched a savings goal.
type RecordedTransaction struct {
	Transaction core.Transaction  `json:"transaction"`
	Goal        *core.SavingsGoal `json:"goal_updated,omitempty"`
	GoalError   string            `json:"goal_error,omitempty"`
}

// RecordTransaction validates and persists a transaction, then applies it to
// the savings goal whose name equals the description. A failure while
// updating the goal does not undo the transaction; it is reported in
// GoalError instead.
func (l *Ledger) RecordTransaction(ctx context.Context, userID string, in TransactionInput) (RecordedTransaction, error) {
	tx := core.Transaction{
		UserID:      userID,
		Type:        in.Type,
		Amount:      in.Amount,
		Category:    strings.TrimSpace(in.Category),
		Description: strings.TrimSpace(in.Description),
		Date:        in.Date,
	}
	if tx.Category == "" {
		tx.Category = core.DefaultCategory
	}
	if tx.Description == "" {
		tx.Description = core.DefaultDescription
	}
	if tx.Date.IsZero() {
		tx.Date = core.DateOf(l.now())
	}
	if err := tx.Validate(); err != nil {
		return RecordedTransaction{}, asValidationError(err)
	}

	saved, err := l.store.CreateTransaction(ctx, tx)
	if err != nil {
		return RecordedTransaction{}, storeError("create transaction", err)
	}
	l.logger.LogTransactionCreated(ctx, saved.ID, userID, string(saved.Type), saved.Amount.Cents, saved.Category)
	l.publish(ctx, saved)

	out := RecordedTransaction{Transaction: saved}
	goal, err := l.reconcile(ctx, saved)
	if err != nil {
		slog.ErrorContext(ctx, "Goal reconciliation failed",
			"transaction_id", saved.ID,
			"user_id", userID,
			"error", err)
		out.GoalError = err.Error()
		return out, nil
	}
	out.Goal = goal
	return out, nil
}

func (l *Ledger) reconcile(ctx context.Context, tx core.Transaction) (*core.SavingsGoal, error) {
	goals, err := l.store.ListGoals(ctx, tx.UserID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	match, ok := core.FindMatch(tx.Description, goals)
	if !ok {
		return nil, nil
	}

	delta := core.GoalDelta(tx.Amount, tx.Type)
	updated, err := l.store.AdjustGoal(ctx, tx.UserID, match.ID, delta)
	if err != nil {
		return nil, fmt.Errorf("adjust goal %s: %w", match.ID, err)
	}
	l.logger.LogGoalAdjusted(ctx, updated.ID, updated.Name, delta.Cents, updated.Current.Cents, updated.Target.Cents)
	return &updated, nil
}

// GoalRef identifies a goal by ID or, when ID is empty, by name.
type GoalRef struct {
	ID   string
	Name string
}

func (r GoalRef) validate() error {
	if strings.TrimSpace(r.ID) == "" && strings.TrimSpace(r.Name) == "" {
		return core.NewValidationError("goal_id or goal_name is required", "goal_id", "goal_name")
	}
	return nil
}

func (l *Ledger) resolveGoal(ctx context.Context, userID string, ref GoalRef) (core.SavingsGoal, error) {
	var (
		g   core.SavingsGoal
		err error
	)
	if id := strings.TrimSpace(ref.ID); id != "" {
		g, err = l.store.GetGoal(ctx, userID, id)
	} else {
		g, err = l.store.FindGoalByName(ctx, userID, ref.Name)
	}
	if err != nil {
		return core.SavingsGoal{}, storeError("resolve goal", err)
	}
	return g, nil
}

type DepositResult struct {
	Goal        core.SavingsGoal  `json:"goal"`
	Transaction *core.Transaction `json:"transaction,omitempty"`
}

// DepositToGoal adds amount to a goal, clamped at its target. When
// fromIncome is set the money is leaving disposable cash flow, so a Savings
// expense is recorded alongside. Either both changes are kept or neither.
func (l *Ledger) DepositToGoal(ctx context.Context, userID string, ref GoalRef, amount core.Money, fromIncome bool) (DepositResult, error) {
	if err := ref.validate(); err != nil {
		return DepositResult{}, err
	}
	if amount.Cents <= 0 {
		return DepositResult{}, core.NewValidationError("amount must be greater than zero", "amount")
	}

	goal, err := l.resolveGoal(ctx, userID, ref)
	if err != nil {
		return DepositResult{}, err
	}

	var linked *core.Transaction
	if fromIncome {
		tx, err := l.store.CreateTransaction(ctx, core.Transaction{
			UserID:      userID,
			Type:        core.Expense,
			Amount:      amount,
			Category:    core.SavingsCategory,
			Description: core.DepositDescription(goal.Name),
			Date:        core.DateOf(l.now()),
		})
		if err != nil {
			return DepositResult{}, storeError("create deposit transaction", err)
		}
		linked = &tx
	}

	updated, err := l.store.AdjustGoal(ctx, userID, goal.ID, amount)
	if err != nil {
		if linked != nil {
			l.discard(ctx, *linked)
		}
		return DepositResult{}, storeError("adjust goal", err)
	}
	l.logger.LogGoalAdjusted(ctx, updated.ID, updated.Name, amount.Cents, updated.Current.Cents, updated.Target.Cents)

	if linked != nil {
		l.logger.LogTransactionCreated(ctx, linked.ID, userID, string(linked.Type), linked.Amount.Cents, linked.Category)
		l.publish(ctx, *linked)
	}
	return DepositResult{Goal: updated, Transaction: linked}, nil
}

// discard removes a linked expense whose goal update failed.
func (l *Ledger) discard(ctx context.Context, tx core.Transaction) {
	if err := l.store.DeleteTransaction(context.WithoutCancel(ctx), tx.UserID, tx.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to remove deposit transaction after goal update failed",
			"transaction_id", tx.ID,
			"user_id", tx.UserID,
			"error", err)
	}
}

// GoalInput describes a new savings goal.
type GoalInput struct {
	Name       string
	Target     core.Money
	TargetDate core.Date
}

func (l *Ledger) CreateGoal(ctx context.Context, userID string, in GoalInput) (core.SavingsGoal, error) {
	g := core.SavingsGoal{
		UserID:     userID,
		Name:       strings.TrimSpace(in.Name),
		Target:     in.Target,
		TargetDate: in.TargetDate,
	}
	var missing []string
	if g.Name == "" {
		missing = append(missing, "name")
	}
	if g.Target.Cents <= 0 {
		missing = append(missing, "target_amount")
	}
	if len(missing) > 0 {
		return core.SavingsGoal{}, core.NewValidationError("goal needs a name and a target_amount greater than zero", missing...)
	}
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, asValidationError(err)
	}

	saved, err := l.store.CreateGoal(ctx, g)
	if err != nil {
		return core.SavingsGoal{}, storeError("create goal", err)
	}
	slog.InfoContext(ctx, "Savings goal created",
		"goal_id", saved.ID,
		"user_id", userID,
		"target_cents", saved.Target.Cents)
	return saved, nil
}

// GoalStatus is a goal with its derived progress figures.
type GoalStatus struct {
	core.SavingsGoal
	Progress  float64    `json:"progress_percent"`
	Remaining core.Money `json:"remaining_amount"`
	Completed bool       `json:"completed"`
}

func NewGoalStatus(g core.SavingsGoal) GoalStatus {
	progress, _ := g.Progress().Float64()
	return GoalStatus{
		SavingsGoal: g,
		Progress:    progress,
		Remaining:   g.Remaining(),
		Completed:   g.Completed(),
	}
}

func (l *Ledger) ListGoals(ctx context.Context, userID string) ([]GoalStatus, error) {
	goals, err := l.store.ListGoals(ctx, userID)
	if err != nil {
		return nil, storeError("list goals", err)
	}
	out := make([]GoalStatus, 0, len(goals))
	for _, g := range goals {
		out = append(out, NewGoalStatus(g))
	}
	return out, nil
}

func (l *Ledger) DeleteGoal(ctx context.Context, userID string, ref GoalRef) (core.SavingsGoal, error) {
	if err := ref.validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	goal, err := l.resolveGoal(ctx, userID, ref)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	if err := l.store.DeleteGoal(ctx, userID, goal.ID); err != nil {
		return core.SavingsGoal{}, storeError("delete goal", err)
	}
	slog.InfoContext(ctx, "Savings goal deleted", "goal_id", goal.ID, "user_id", userID)
	return goal, nil
}

// publish is best effort: the transaction is already stored and the
// worker's pending sweep will export it if the message is lost.
func (l *Ledger) publish(ctx context.Context, tx core.Transaction) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishTransactionSync(ctx, tx.ID, tx.UserID, 1); err != nil {
		slog.WarnContext(ctx, "Failed to publish sync message",
			"transaction_id", tx.ID,
			"error", err)
	}
}

var fieldForError = map[error]string{
	core.ErrInvalidAmount:    "amount",
	core.ErrInvalidType:      "type",
	core.ErrEmptyDescription: "description",
	core.ErrLongDescription:  "description",
	core.ErrEmptyCategory:    "category",
	core.ErrInvalidDay:       "date",
	core.ErrInvalidMonth:     "date",
	core.ErrEmptyGoalName:    "name",
	core.ErrGoalOutOfBounds:  "current_amount",
}

// asValidationError turns a domain validation failure into a
// ValidationError naming the offending field.
func asValidationError(err error) error {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return err
	}
	for sentinel, field := range fieldForError {
		if errors.Is(err, sentinel) {
			return core.NewValidationError(err.Error(), field)
		}
	}
	return core.NewValidationError(err.Error())
}

// storeError keeps not-found and validation errors as they are and wraps
// anything else as a StoreError.
func storeError(op string, err error) error {
	var ve *core.ValidationError
	if errors.Is(err, core.ErrNotFound) || errors.As(err, &ve) {
		return err
	}
	var se *core.StoreError
	if errors.As(err, &se) {
		return err
	}
	return &core.StoreError{Op: op, Err: err}
}
