// Package webhook dispatches the single JSON webhook endpoint to ledger and
// reporting actions.
package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ahorro/internal/core"
	applog "ahorro/internal/log"
	"ahorro/internal/ports"
	"ahorro/internal/services"
)

const DefaultAction = "add_transaction"

// Ledger is the write side used by the router.
type Ledger interface {
	RecordTransaction(ctx context.Context, userID string, in services.TransactionInput) (services.RecordedTransaction, error)
	CreateGoal(ctx context.Context, userID string, in services.GoalInput) (core.SavingsGoal, error)
	DepositToGoal(ctx context.Context, userID string, ref services.GoalRef, amount core.Money, fromIncome bool) (services.DepositResult, error)
	ListGoals(ctx context.Context, userID string) ([]services.GoalStatus, error)
	DeleteGoal(ctx context.Context, userID string, ref services.GoalRef) (core.SavingsGoal, error)
}

// Reporter is the read side used by the router.
type Reporter interface {
	CurrentMonth() core.Period
	ListTransactions(ctx context.Context, userID string, p core.Period, limit int) ([]core.Transaction, error)
	MonthSummary(ctx context.Context, userID string, p core.Period) (services.MonthSummary, error)
	Balance(ctx context.Context, userID string) (services.Balance, error)
	SpendingAlerts(ctx context.Context, userID string) (core.AlertReport, error)
	AdviseExpense(ctx context.Context, userID string, amount core.Money, category string) (core.Advice, error)
	SavingMethods(ctx context.Context, userID string) (services.SavingsSuggestions, error)
	Forecast(ctx context.Context, userID string) (core.Forecast, error)
}

// Response is the status and JSON body of one webhook call. Body always
// carries an "ok" key.
type Response struct {
	Status int
	Body   map[string]any
}

type payload = map[string]any

// action couples a request decoder with its handler.
type action struct {
	decode func(body []byte) (request, error)
	handle func(ctx context.Context, userID string, req request) (int, payload, error)
}

// bind builds an action for request type T. The handler receives the
// decoded and validated request.
func bind[T any, P interface {
	*T
	request
}](h func(ctx context.Context, userID string, req P) (int, payload, error)) action {
	return action{
		decode: func(body []byte) (request, error) {
			req := P(new(T))
			if err := json.Unmarshal(body, req); err != nil {
				return nil, core.NewValidationError("invalid request body: " + err.Error())
			}
			if err := req.Validate(); err != nil {
				return nil, err
			}
			return req, nil
		},
		handle: func(ctx context.Context, userID string, req request) (int, payload, error) {
			return h(ctx, userID, req.(P))
		},
	}
}

type Router struct {
	secret  string
	users   ports.UserDirectory
	ledger  Ledger
	reports Reporter
	actions map[string]action
	logger  *applog.StructuredLogger
}

// NewRouter builds a Router. An empty secret rejects every request.
func NewRouter(secret string, users ports.UserDirectory, ledger Ledger, reports Reporter) *Router {
	r := &Router{
		secret:  secret,
		users:   users,
		ledger:  ledger,
		reports: reports,
		logger:  applog.NewStructuredLogger(applog.Default(applog.ComponentWebhook)),
	}
	r.actions = map[string]action{
		"add_transaction":        bind(r.addTransaction),
		"create_goal":            bind(r.createGoal),
		"deposit_to_goal":        bind(r.depositToGoal),
		"list_goals":             bind(r.listGoals),
		"delete_goal":            bind(r.deleteGoal),
		"list_transactions":      bind(r.listTransactions),
		"get_balance":            bind(r.getBalance),
		"get_month_summary":      bind(r.getMonthSummary),
		"check_spending_alerts":  bind(r.checkSpendingAlerts),
		"advise_expense":         bind(r.adviseExpense),
		"suggest_saving_methods": bind(r.suggestSavingMethods),
		"forecast_cashflow":      bind(r.forecastCashflow),
	}
	return r
}

// Actions lists the supported action names.
func (r *Router) Actions() []string {
	out := make([]string, 0, len(r.actions))
	for name := range r.actions {
		out = append(out, name)
	}
	return out
}

// Handle authenticates, decodes and dispatches one webhook body.
func (r *Router) Handle(ctx context.Context, apiKey string, body []byte) Response {
	if !r.authorized(apiKey) {
		return r.fail(ctx, "", "", core.ErrUnauthorized)
	}

	var env envelope
	if err := json.Unmarshal(bytes.TrimSpace(body), &env); err != nil {
		return r.fail(ctx, "", "", core.NewValidationError("invalid JSON body: "+err.Error()))
	}
	name := strings.TrimSpace(env.Action)
	if name == "" {
		name = DefaultAction
	}
	act, ok := r.actions[name]
	if !ok {
		return r.fail(ctx, name, env.UserID, &core.UnsupportedActionError{Action: name})
	}

	req, err := act.decode(body)
	if err != nil {
		return r.fail(ctx, name, env.UserID, err)
	}

	user, err := r.resolveUser(ctx, env)
	if err != nil {
		return r.fail(ctx, name, env.UserID, err)
	}

	status, out, err := act.handle(ctx, user.ID, req)
	if err != nil {
		return r.fail(ctx, name, user.ID, err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Webhook action completed",
		applog.FieldAction, name,
		applog.FieldUserID, user.ID,
		applog.FieldStatusCode, status)

	if out == nil {
		out = payload{}
	}
	out["ok"] = true
	return Response{Status: status, Body: out}
}

// Authorize checks apiKey ahead of reading the body. A rejected key gets
// the same 401 response Handle would produce.
func (r *Router) Authorize(ctx context.Context, apiKey string) (Response, bool) {
	if !r.authorized(apiKey) {
		return r.fail(ctx, "", "", core.ErrUnauthorized), false
	}
	return Response{}, true
}

func (r *Router) authorized(apiKey string) bool {
	if r.secret == "" || apiKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(apiKey), []byte(r.secret)) == 1
}

// resolveUser tries the explicit user id, then the stored email, then a
// case-insensitive scan over every profile.
func (r *Router) resolveUser(ctx context.Context, env envelope) (core.Profile, error) {
	if id := strings.TrimSpace(env.UserID); id != "" {
		p, err := r.users.GetProfile(ctx, id)
		if err != nil {
			return core.Profile{}, lookupError("get profile", err)
		}
		return p, nil
	}

	email := strings.TrimSpace(env.Email)
	if email == "" {
		return core.Profile{}, core.NewValidationError("user_id or email is required", "user_id", "email")
	}

	p, err := r.users.FindProfileByEmail(ctx, email)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Profile{}, lookupError("find profile by email", err)
	}

	users, err := r.users.ListUsers(ctx)
	if err != nil {
		return core.Profile{}, lookupError("list users", err)
	}
	for _, u := range users {
		if strings.EqualFold(strings.TrimSpace(u.Email), email) {
			return u, nil
		}
	}
	return core.Profile{}, &core.NotFoundError{Resource: "user", Key: email}
}

func lookupError(op string, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return &core.NotFoundError{Resource: "user"}
	}
	return &core.StoreError{Op: op, Err: err}
}

// fail maps err to its status code and error body and logs the rejection.
func (r *Router) fail(ctx context.Context, action, userID string, err error) Response {
	status, errorType := classify(err)
	body := payload{"ok": false, "error": err.Error()}

	var (
		ve *core.ValidationError
		ue *core.UnsupportedActionError
		se *core.StoreError
	)
	switch {
	case errors.As(err, &ve):
		body["error"] = ve.Message
		if len(ve.Fields) > 0 {
			body["fields"] = ve.Fields
		}
	case errors.As(err, &ue):
		body["action"] = ue.Action
	case errors.As(err, &se):
		body["error"] = "storage failure"
		body["detail"] = se.Error()
	case status == http.StatusInternalServerError:
		body["error"] = "internal error"
		body["detail"] = err.Error()
	}

	r.logger.LogWebhookRejected(ctx, action, userID, status, errorType, err)
	return Response{Status: status, Body: body}
}

func classify(err error) (int, string) {
	var (
		ve *core.ValidationError
		ue *core.UnsupportedActionError
		se *core.StoreError
	)
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized, applog.ErrorTypeAuth
	case errors.As(err, &ve):
		return http.StatusBadRequest, applog.ErrorTypeValidation
	case errors.As(err, &ue):
		return http.StatusBadRequest, applog.ErrorTypeUnsupported
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, applog.ErrorTypeNotFound
	case errors.As(err, &se):
		return http.StatusInternalServerError, applog.ErrorTypeDatabase
	default:
		return http.StatusInternalServerError, applog.ErrorTypeInternal
	}
}
