package webhook

import (
	"strings"
	"time"

	"ahorro/internal/core"
	"ahorro/internal/services"
)

// envelope is the part of the body shared by every action.
type envelope struct {
	Action string `json:"action"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// request is an action payload. Validate runs before the user is resolved,
// so it must only look at the payload itself.
type request interface {
	Validate() error
}

type addTransactionRequest struct {
	Type        string      `json:"type"`
	Amount      *core.Money `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Date        core.Date   `json:"date"`
	Text        string      `json:"text"`

	parsed *core.ParsedTransaction
	input  services.TransactionInput
}

// Validate fills structured fields from Text when no amount was sent, then
// checks the result. Explicit fields win over what the parser found.
func (r *addTransactionRequest) Validate() error {
	amount := r.Amount
	typ, category, description := r.Type, r.Category, r.Description

	if text := strings.TrimSpace(r.Text); text != "" && amount == nil {
		p := core.ParseText(text)
		r.parsed = &p
		amount = &p.Amount
		if strings.TrimSpace(typ) == "" {
			typ = string(p.Type)
		}
		if strings.TrimSpace(category) == "" {
			category = p.Category
		}
		if strings.TrimSpace(description) == "" {
			description = p.Description
		}
	}

	var bad []string
	if amount == nil || amount.Cents <= 0 {
		bad = append(bad, "amount")
	}
	txType := core.Expense
	if strings.TrimSpace(typ) != "" {
		parsed, err := core.ParseTransactionType(typ)
		if err != nil {
			bad = append(bad, "type")
		}
		txType = parsed
	}
	if len(bad) > 0 {
		return core.NewValidationError("amount must be greater than zero and type must be income or expense", bad...)
	}

	r.input = services.TransactionInput{
		Type:        txType,
		Amount:      *amount,
		Category:    category,
		Description: description,
		Date:        r.Date,
	}
	return nil
}

type createGoalRequest struct {
	Name         string     `json:"name"`
	TargetAmount core.Money `json:"target_amount"`
	TargetDate   core.Date  `json:"target_date"`
}

func (r *createGoalRequest) Validate() error {
	var bad []string
	if strings.TrimSpace(r.Name) == "" {
		bad = append(bad, "name")
	}
	if r.TargetAmount.Cents <= 0 {
		bad = append(bad, "target_amount")
	}
	if len(bad) > 0 {
		return core.NewValidationError("goal needs a name and a target_amount greater than zero", bad...)
	}
	return nil
}

type goalRefRequest struct {
	GoalID   string `json:"goal_id"`
	GoalName string `json:"goal_name"`
}

func (r *goalRefRequest) Validate() error {
	if strings.TrimSpace(r.GoalID) == "" && strings.TrimSpace(r.GoalName) == "" {
		return core.NewValidationError("goal_id or goal_name is required", "goal_id", "goal_name")
	}
	return nil
}

func (r *goalRefRequest) ref() services.GoalRef {
	return services.GoalRef{ID: r.GoalID, Name: r.GoalName}
}

type depositRequest struct {
	goalRefRequest
	Amount core.Money `json:"amount"`
	// CreateExpenseTx defaults to true when absent.
	CreateExpenseTx *bool `json:"create_expense_tx"`
}

func (r *depositRequest) Validate() error {
	if err := r.goalRefRequest.Validate(); err != nil {
		return err
	}
	if r.Amount.Cents <= 0 {
		return core.NewValidationError("amount must be greater than zero", "amount")
	}
	return nil
}

func (r *depositRequest) fromIncome() bool {
	return r.CreateExpenseTx == nil || *r.CreateExpenseTx
}

// monthRequest selects a calendar month; zero fields mean the current one.
type monthRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (r *monthRequest) Validate() error {
	var bad []string
	if r.Month != 0 && (r.Month < 1 || r.Month > 12) {
		bad = append(bad, "month")
	}
	if r.Year != 0 && (r.Year < 1970 || r.Year > 9999) {
		bad = append(bad, "year")
	}
	if len(bad) > 0 {
		return core.NewValidationError("month must be 1-12 and year a four digit year", bad...)
	}
	return nil
}

func (r *monthRequest) period(current core.Period) core.Period {
	year, month := current.Start.Year(), current.Start.Month()
	if r.Year != 0 {
		year = r.Year
	}
	if r.Month != 0 {
		month = time.Month(r.Month)
	}
	return core.MonthPeriod(year, month)
}

type listTransactionsRequest struct {
	monthRequest
	Limit int `json:"limit"`
}

func (r *listTransactionsRequest) Validate() error {
	if err := r.monthRequest.Validate(); err != nil {
		return err
	}
	if r.Limit < 0 {
		return core.NewValidationError("limit cannot be negative", "limit")
	}
	return nil
}

type adviseRequest struct {
	Amount   core.Money `json:"amount"`
	Category string     `json:"category"`
}

func (r *adviseRequest) Validate() error {
	if r.Amount.Cents <= 0 {
		return core.NewValidationError("amount must be greater than zero", "amount")
	}
	return nil
}

// emptyRequest is used by actions that take no parameters.
type emptyRequest struct{}

func (*emptyRequest) Validate() error { return nil }
