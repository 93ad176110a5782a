package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Recommendation string

const (
	Approve Recommendation = "approve"
	Caution Recommendation = "caution"
	Deny    Recommendation = "deny"
)

const (
	cautionBalancePct     = 50
	cautionIncomePct      = 5
	categoryEscalationPct = 30
	cautionFloorCents     = 5000
)

// Advice is the outcome of evaluating a proposed expense.
type Advice struct {
	Recommendation     Recommendation `json:"recommendation"`
	Amount             Money          `json:"amount"`
	Category           string         `json:"category"`
	Income             Money          `json:"income"`
	Balance            Money          `json:"balance"`
	CategorySpent      Money          `json:"category_spent"`
	CategoryShareAfter Percent        `json:"category_share_after"`
	Reasons            []string       `json:"reasons"`
}

// CautionThreshold is 5% of income with a floor of 50.
func CautionThreshold(income Money) Money {
	t := income.Percent(cautionIncomePct)
	if t.Cents < cautionFloorCents {
		return Money{Cents: cautionFloorCents}
	}
	return t
}

func severity(r Recommendation) int {
	switch r {
	case Deny:
		return 2
	case Caution:
		return 1
	}
	return 0
}

func escalate(r Recommendation) Recommendation {
	if r == Approve {
		return Caution
	}
	return Deny
}

// Advise evaluates spending amount in category against the transactions in p.
//
//   - deny when the balance is not positive or the amount exceeds it
//   - caution when the amount is above half the balance or above
//     CautionThreshold(income)
//   - a category share of income above 30% after the purchase escalates the
//     result by one level
//
// Deny always takes precedence over caution.
func Advise(txs []Transaction, p Period, amount Money, category string) Advice {
	summary := Summarize(txs, p)
	if category == "" {
		category = DefaultCategory
	}

	var spent Money
	for _, share := range CategoryBreakdown(txs, p) {
		if strings.EqualFold(share.Category, category) {
			category = share.Category
			spent = share.Amount
			break
		}
	}

	a := Advice{
		Recommendation:     Approve,
		Amount:             amount,
		Category:           category,
		Income:             summary.Income,
		Balance:            summary.Balance,
		CategorySpent:      spent,
		CategoryShareAfter: PercentOf(spent.Add(amount), summary.Income),
		Reasons:            []string{},
	}

	raise := func(r Recommendation, reason string) {
		if severity(r) > severity(a.Recommendation) {
			a.Recommendation = r
		}
		a.Reasons = append(a.Reasons, reason)
	}

	switch {
	case summary.Balance.Cents <= 0:
		raise(Deny, fmt.Sprintf("balance for the period is %s", summary.Balance))
	case amount.Cents > summary.Balance.Cents:
		raise(Deny, fmt.Sprintf("%s exceeds the remaining balance of %s", amount, summary.Balance))
	case amount.Cents > summary.Balance.Percent(cautionBalancePct).Cents:
		raise(Caution, fmt.Sprintf("%s is more than half of the remaining balance of %s", amount, summary.Balance))
	}

	if threshold := CautionThreshold(summary.Income); amount.Cents > threshold.Cents {
		raise(Caution, fmt.Sprintf("%s is above %s, 5%% of income", amount, threshold))
	}

	if summary.Income.Cents > 0 && a.CategoryShareAfter.GreaterThan(decimal.NewFromInt(categoryEscalationPct)) {
		next := escalate(a.Recommendation)
		a.Reasons = append(a.Reasons, fmt.Sprintf("%s would reach %s%% of income", category, a.CategoryShareAfter.StringFixed(1)))
		a.Recommendation = next
	}

	if len(a.Reasons) == 0 {
		a.Reasons = append(a.Reasons, "the expense fits within balance and income limits")
	}
	return a
}
