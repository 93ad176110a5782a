package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"ahorro/internal/core"
	"ahorro/internal/ports"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type ReportingStore interface {
	ports.TransactionStore
	ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error)
}

// Reporting loads a user's transactions for a period and hands them to the
// aggregation functions in core. Nothing is cached.
type Reporting struct {
	store ReportingStore
	now   func() time.Time
}

func NewReporting(store ReportingStore) *Reporting {
	return &Reporting{store: store, now: time.Now}
}

// CurrentMonth is the default reporting period.
func (r *Reporting) CurrentMonth() core.Period {
	return core.CurrentMonth(r.now())
}

func (r *Reporting) load(ctx context.Context, userID string, p core.Period) ([]core.Transaction, error) {
	txs, err := r.store.ListTransactions(ctx, userID, ports.TransactionFilter{Period: p})
	if err != nil {
		return nil, storeError("list transactions", err)
	}
	return txs, nil
}

// ListTransactions returns up to limit transactions in p, newest first.
// limit <= 0 means DefaultListLimit; larger values are capped at MaxListLimit.
func (r *Reporting) ListTransactions(ctx context.Context, userID string, p core.Period, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	txs, err := r.store.ListTransactions(ctx, userID, ports.TransactionFilter{Period: p, Limit: limit})
	if err != nil {
		return nil, storeError("list transactions", err)
	}
	return txs, nil
}

type MonthSummary struct {
	Period     core.Period          `json:"period"`
	Summary    core.Summary         `json:"summary"`
	Categories []core.CategoryShare `json:"categories"`
}

func (r *Reporting) MonthSummary(ctx context.Context, userID string, p core.Period) (MonthSummary, error) {
	txs, err := r.load(ctx, userID, p)
	if err != nil {
		return MonthSummary{}, err
	}
	return MonthSummary{
		Period:     p,
		Summary:    core.Summarize(txs, p),
		Categories: core.CategoryBreakdown(txs, p),
	}, nil
}

type Balance struct {
	Period      core.Period  `json:"period"`
	Income      core.Money   `json:"income"`
	Expenses    core.Money   `json:"expenses"`
	Balance     core.Money   `json:"balance"`
	GoalsSaved  core.Money   `json:"goals_saved"`
	GoalsTarget core.Money   `json:"goals_target"`
	Goals       []GoalStatus `json:"goals"`
}

// Balance returns the current month totals together with savings goal
// progress. The two reads run concurrently.
func (r *Reporting) Balance(ctx context.Context, userID string) (Balance, error) {
	p := r.CurrentMonth()

	var (
		txs   []core.Transaction
		goals []core.SavingsGoal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = r.load(gctx, userID, p)
		return err
	})
	g.Go(func() error {
		var err error
		goals, err = r.store.ListGoals(gctx, userID)
		if err != nil {
			return storeError("list goals", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Balance{}, err
	}

	s := core.Summarize(txs, p)
	out := Balance{
		Period:   p,
		Income:   s.Income,
		Expenses: s.Expenses,
		Balance:  s.Balance,
		Goals:    make([]GoalStatus, 0, len(goals)),
	}
	for _, goal := range goals {
		out.GoalsSaved = out.GoalsSaved.Add(goal.Current)
		out.GoalsTarget = out.GoalsTarget.Add(goal.Target)
		out.Goals = append(out.Goals, NewGoalStatus(goal))
	}
	return out, nil
}

func (r *Reporting) SpendingAlerts(ctx context.Context, userID string) (core.AlertReport, error) {
	p := r.CurrentMonth()
	txs, err := r.load(ctx, userID, p)
	if err != nil {
		return core.AlertReport{}, err
	}
	return core.SpendingAlerts(txs, p), nil
}

func (r *Reporting) AdviseExpense(ctx context.Context, userID string, amount core.Money, category string) (core.Advice, error) {
	if amount.Cents <= 0 {
		return core.Advice{}, core.NewValidationError("amount must be greater than zero", "amount")
	}
	p := r.CurrentMonth()
	txs, err := r.load(ctx, userID, p)
	if err != nil {
		return core.Advice{}, err
	}
	return core.Advise(txs, p, amount, category), nil
}

type SavingsSuggestions struct {
	Income  core.Money          `json:"income"`
	Methods []core.SavingMethod `json:"methods"`
}

func (r *Reporting) SavingMethods(ctx context.Context, userID string) (SavingsSuggestions, error) {
	p := r.CurrentMonth()
	txs, err := r.load(ctx, userID, p)
	if err != nil {
		return SavingsSuggestions{}, err
	}
	income := core.Summarize(txs, p).Income
	return SavingsSuggestions{Income: income, Methods: core.SavingMethods(income)}, nil
}

func (r *Reporting) Forecast(ctx context.Context, userID string) (core.Forecast, error) {
	now := r.now()
	p := core.CurrentMonth(now)
	txs, err := r.load(ctx, userID, p)
	if err != nil {
		return core.Forecast{}, err
	}
	return core.ForecastPeriod(txs, p, now), nil
}
