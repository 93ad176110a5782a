package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type AlertLevel string

const (
	AlertWarning AlertLevel = "warning"
	AlertUrgent  AlertLevel = "urgent"
)

// Share of month income (percent) at which a category raises an alert.
const (
	WarningSharePct = 20
	UrgentSharePct  = 30
)

type SpendingAlert struct {
	Category string     `json:"category"`
	Level    AlertLevel `json:"level"`
	Amount   Money      `json:"amount"`
	Share    Percent    `json:"percent_of_income"`
	Message  string     `json:"message"`
}

type AlertReport struct {
	Income   Money           `json:"income"`
	Expenses Money           `json:"expenses"`
	Ranking  []CategoryShare `json:"ranking"`
	Alerts   []SpendingAlert `json:"alerts"`
}

// SpendingAlerts ranks expense categories in p and flags those consuming at
// least WarningSharePct of income (UrgentSharePct for urgent). Spending with
// no income at all produces a single urgent alert.
func SpendingAlerts(txs []Transaction, p Period) AlertReport {
	summary := Summarize(txs, p)
	report := AlertReport{
		Income:   summary.Income,
		Expenses: summary.Expenses,
		Ranking:  CategoryBreakdown(txs, p),
		Alerts:   []SpendingAlert{},
	}

	if summary.Income.Cents <= 0 {
		if summary.Expenses.Cents > 0 {
			report.Alerts = append(report.Alerts, SpendingAlert{
				Level:   AlertUrgent,
				Amount:  summary.Expenses,
				Share:   Percent{},
				Message: fmt.Sprintf("%s spent with no income recorded this period", summary.Expenses),
			})
		}
		return report
	}

	urgent := decimal.NewFromInt(UrgentSharePct)
	warning := decimal.NewFromInt(WarningSharePct)
	for _, share := range report.Ranking {
		var level AlertLevel
		switch {
		case share.PercentOfIncome.GreaterThanOrEqual(urgent):
			level = AlertUrgent
		case share.PercentOfIncome.GreaterThanOrEqual(warning):
			level = AlertWarning
		default:
			continue
		}
		report.Alerts = append(report.Alerts, SpendingAlert{
			Category: share.Category,
			Level:    level,
			Amount:   share.Amount,
			Share:    share.PercentOfIncome,
			Message: fmt.Sprintf("%s has taken %s%% of this month's income",
				share.Category, share.PercentOfIncome.StringFixed(1)),
		})
	}
	return report
}

// Forecast projects month-end totals from the month-to-date run rate.
type Forecast struct {
	Period            Period `json:"period"`
	AsOf              Date   `json:"as_of"`
	DaysElapsed       int    `json:"days_elapsed"`
	DaysInPeriod      int    `json:"days_in_period"`
	IncomeToDate      Money  `json:"income_to_date"`
	ExpensesToDate    Money  `json:"expenses_to_date"`
	DailyIncome       Money  `json:"daily_income"`
	DailyExpenses     Money  `json:"daily_expenses"`
	ProjectedIncome   Money  `json:"projected_income"`
	ProjectedExpenses Money  `json:"projected_expenses"`
	ProjectedBalance  Money  `json:"projected_balance"`
}

// ForecastPeriod linearly extrapolates income and expenses recorded up to
// asOf (inclusive) across the whole period. Elapsed days are clamped to
// [1, p.Days()], so a finished period projects its actual totals.
func ForecastPeriod(txs []Transaction, p Period, asOf time.Time) Forecast {
	days := p.Days()
	today := DateOf(asOf)

	elapsed := int(today.Sub(p.Start.Time).Hours()/24) + 1
	if elapsed < 1 {
		elapsed = 1
	}
	if elapsed > days {
		elapsed = days
	}

	toDate := Period{Start: p.Start, End: Date{Time: p.Start.AddDate(0, 0, elapsed)}}
	summary := Summarize(txs, toDate)

	f := Forecast{
		Period:         p,
		AsOf:           today,
		DaysElapsed:    elapsed,
		DaysInPeriod:   days,
		IncomeToDate:   summary.Income,
		ExpensesToDate: summary.Expenses,
	}

	el := decimal.NewFromInt(int64(elapsed))
	total := decimal.NewFromInt(int64(days))
	f.DailyIncome = MoneyFromDecimal(summary.Income.Decimal().Div(el))
	f.DailyExpenses = MoneyFromDecimal(summary.Expenses.Decimal().Div(el))
	f.ProjectedIncome = MoneyFromDecimal(summary.Income.Decimal().Mul(total).Div(el))
	f.ProjectedExpenses = MoneyFromDecimal(summary.Expenses.Decimal().Mul(total).Div(el))
	f.ProjectedBalance = f.ProjectedIncome.Sub(f.ProjectedExpenses)
	return f
}

type SavingMethod struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	SuggestedAmount Money  `json:"suggested_amount"`
}

// SavingMethods returns the standard strategies with amounts derived from
// the month-to-date income.
func SavingMethods(income Money) []SavingMethod {
	needs, wants, savings := income.Percent(50), income.Percent(30), income.Percent(20)
	return []SavingMethod{
		{
			Name: "50/30/20 rule",
			Description: fmt.Sprintf("Spend up to %s on needs and %s on wants, and move %s to savings.",
				needs, wants, savings),
			SuggestedAmount: savings,
		},
		{
			Name: "Pay yourself first",
			Description: fmt.Sprintf("As soon as income arrives, transfer %s (10%%) to a savings goal before any spending.",
				income.Percent(10)),
			SuggestedAmount: income.Percent(10),
		},
		{
			Name: "Envelope budgeting",
			Description: fmt.Sprintf("Split the %s available for wants into weekly envelopes of %s and stop when an envelope is empty.",
				wants, MoneyFromDecimal(wants.Decimal().Div(decimal.NewFromInt(4)))),
			SuggestedAmount: wants,
		},
		{
			Name: "48-hour rule",
			Description: fmt.Sprintf("Wait 48 hours before any non-essential purchase above %s.",
				CautionThreshold(income)),
			SuggestedAmount: CautionThreshold(income),
		},
	}
}
