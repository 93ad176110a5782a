package core

import (
	"errors"
	"sort"
	"time"
)

// Period is a half-open calendar range [Start, End) in UTC.
type Period struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// MonthPeriod covers the given month from the 1st inclusive to the 1st of
// the next month exclusive.
func MonthPeriod(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: Date{Time: start}, End: Date{Time: start.AddDate(0, 1, 0)}}
}

// CurrentMonth is the month containing now.
func CurrentMonth(now time.Time) Period {
	now = now.UTC()
	return MonthPeriod(now.Year(), now.Month())
}

func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return errors.New("period bounds cannot be zero")
	}
	if !p.Start.Before(p.End.Time) {
		return errors.New("period start must be before end")
	}
	return nil
}

func (p Period) Contains(d Date) bool {
	return !d.Before(p.Start.Time) && d.Before(p.End.Time)
}

// Days is the number of calendar days in the period.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start.Time).Hours() / 24)
}

// Summary holds income, expense and balance totals for a period.
type Summary struct {
	Income   Money `json:"income"`
	Expenses Money `json:"expenses"`
	Balance  Money `json:"balance"`
	Count    int   `json:"count"`
}

// CategoryShare is the expense total of one category.
type CategoryShare struct {
	Category        string  `json:"category"`
	Amount          Money   `json:"amount"`
	Count           int     `json:"count"`
	PercentOfIncome Percent `json:"percent_of_income"`
}

// Summarize totals the transactions that fall inside p. Anything outside
// the period is ignored, so callers may pass a wider slice.
func Summarize(txs []Transaction, p Period) Summary {
	var s Summary
	for _, tx := range txs {
		if !p.Contains(tx.Date) {
			continue
		}
		s.Count++
		switch tx.Type {
		case Income:
			s.Income = s.Income.Add(tx.Amount)
		case Expense:
			s.Expenses = s.Expenses.Add(tx.Amount)
		}
	}
	s.Balance = s.Income.Sub(s.Expenses)
	return s
}

// CategoryBreakdown groups expenses inside p by category, largest first.
func CategoryBreakdown(txs []Transaction, p Period) []CategoryShare {
	income := Summarize(txs, p).Income

	byCategory := make(map[string]*CategoryShare)
	for _, tx := range txs {
		if tx.Type != Expense || !p.Contains(tx.Date) {
			continue
		}
		share, ok := byCategory[tx.Category]
		if !ok {
			share = &CategoryShare{Category: tx.Category}
			byCategory[tx.Category] = share
		}
		share.Amount = share.Amount.Add(tx.Amount)
		share.Count++
	}

	out := make([]CategoryShare, 0, len(byCategory))
	for _, share := range byCategory {
		share.PercentOfIncome = PercentOf(share.Amount, income)
		out = append(out, *share)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Category < out[j].Category
	})
	return out
}
