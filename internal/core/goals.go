package core

import (
	"fmt"
	"strings"
)

// NormalizeGoalName is the matching key for goal names and descriptions.
func NormalizeGoalName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FindMatch returns the first goal whose normalized name equals the
// normalized description. Matching is exact; "Vacation Fund" does not
// match a goal named "Vacation".
func FindMatch(description string, goals []SavingsGoal) (SavingsGoal, bool) {
	key := NormalizeGoalName(description)
	if key == "" {
		return SavingsGoal{}, false
	}
	for _, g := range goals {
		if NormalizeGoalName(g.Name) == key {
			return g, true
		}
	}
	return SavingsGoal{}, false
}

// GoalDelta is the signed balance change a transaction applies to a goal:
// income deposits, expense withdraws.
func GoalDelta(amount Money, t TransactionType) Money {
	if t == Expense {
		return amount.Neg()
	}
	return amount
}

// ClampBalance applies delta to current and bounds the result to [0, target].
// Excess over the target is absorbed, never carried over.
func ClampBalance(current, target, delta Money) Money {
	// Compare against the headroom so current+delta is only computed when
	// it lands inside [0, target] and cannot overflow.
	switch {
	case delta.Cents >= 0 && delta.Cents >= target.Cents-current.Cents:
		return target
	case delta.Cents < 0 && delta.Cents <= -current.Cents:
		return Money{}
	}
	next := current.Cents + delta.Cents
	if next > target.Cents {
		next = target.Cents
	}
	if next < 0 {
		next = 0
	}
	return Money{Cents: next}
}

// Apply returns the goal after a clamped deposit or withdrawal.
// Stores must perform the same computation atomically; see AdjustGoal.
func (g SavingsGoal) Apply(amount Money, t TransactionType) SavingsGoal {
	g.Current = ClampBalance(g.Current, g.Target, GoalDelta(amount, t))
	return g
}

// Progress returns the current balance as a percentage of the target.
func (g SavingsGoal) Progress() Percent {
	return PercentOf(g.Current, g.Target)
}

// DepositDescription labels the expense recorded when a deposit is funded
// from current income.
func DepositDescription(goalName string) string {
	return fmt.Sprintf("Deposit to %s", goalName)
}
