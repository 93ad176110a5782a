package webhook

import (
	"context"
	"net/http"

	"ahorro/internal/services"
)

func (r *Router) addTransaction(ctx context.Context, userID string, req *addTransactionRequest) (int, payload, error) {
	rec, err := r.ledger.RecordTransaction(ctx, userID, req.input)
	if err != nil {
		return 0, nil, err
	}
	out := payload{"transaction": rec.Transaction}
	if req.parsed != nil {
		out["parsed"] = req.parsed
		out["type_detected"] = req.parsed.TypeDetected
	}
	if rec.Goal != nil {
		out["goal_updated"] = services.NewGoalStatus(*rec.Goal)
	}
	if rec.GoalError != "" {
		out["goal_error"] = rec.GoalError
	}
	return http.StatusCreated, out, nil
}

func (r *Router) createGoal(ctx context.Context, userID string, req *createGoalRequest) (int, payload, error) {
	g, err := r.ledger.CreateGoal(ctx, userID, services.GoalInput{
		Name:       req.Name,
		Target:     req.TargetAmount,
		TargetDate: req.TargetDate,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, payload{"goal": services.NewGoalStatus(g)}, nil
}

func (r *Router) depositToGoal(ctx context.Context, userID string, req *depositRequest) (int, payload, error) {
	res, err := r.ledger.DepositToGoal(ctx, userID, req.ref(), req.Amount, req.fromIncome())
	if err != nil {
		return 0, nil, err
	}
	out := payload{"goal": services.NewGoalStatus(res.Goal)}
	if res.Transaction != nil {
		out["transaction"] = res.Transaction
	}
	return http.StatusOK, out, nil
}

func (r *Router) listGoals(ctx context.Context, userID string, _ *emptyRequest) (int, payload, error) {
	goals, err := r.ledger.ListGoals(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, payload{"goals": goals, "count": len(goals)}, nil
}

func (r *Router) deleteGoal(ctx context.Context, userID string, req *goalRefRequest) (int, payload, error) {
	g, err := r.ledger.DeleteGoal(ctx, userID, req.ref())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, payload{"deleted": g}, nil
}

func (r *Router) listTransactions(ctx context.Context, userID string, req *listTransactionsRequest) (int, payload, error) {
	p := req.period(r.reports.CurrentMonth())
	txs, err := r.reports.ListTransactions(ctx, userID, p, req.Limit)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, payload{
		"period":       p,
		"count":        len(txs),
		"transactions": txs,
	}, nil
}

func (r *Router) getBalance(ctx context.Context, userID string, _ *emptyRequest) (int, payload, error) {
	b, err := r.reports.Balance(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, payload{
		"period":       b.Period,
		"income":       b.Income,
		"expenses":     b.Expenses,
		"balance":      b.Balance,
		"goals_saved":  b.GoalsSaved,
		"goals_target": b.GoalsTarget,
		"goals":        b.Goals,
	}, nil
}

func (r *Router) getMonthSummary(ctx context.Context, userID string, req *monthRequest) (int, payload, error) {
	s, err := r.reports.MonthSummary(ctx, userID, req.period(r.reports.CurrentMonth()))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, payload{
		"period":     s.Period,
		"summary":    s.Summary,
		"categories": s.Categories,
	}, nil
}

func (r *Router) checkSpendingAlerts(ctx context.Context, userID string, _ *emptyRequest) (int, payload, error) {
	report, err := r.reports.SpendingAlerts(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, payload{"report": report}, nil
}

func (r *Router) adviseExpense(ctx context.Context, userID string, req *adviseRequest) (int, payload, error) {
	advice, err := r.reports.AdviseExpense(ctx, userID, req.Amount, req.Category)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, payload{"advice": advice}, nil
}

func (r *Router) suggestSavingMethods(ctx context.Context, userID string, _ *emptyRequest) (int, payload, error) {
	s, err := r.reports.SavingMethods(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, payload{"income": s.Income, "methods": s.Methods}, nil
}

func (r *Router) forecastCashflow(ctx context.Context, userID string, _ *emptyRequest) (int, payload, error) {
	f, err := r.reports.Forecast(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, payload{"forecast": f}, nil
}
