package core

import (
	"regexp"
	"strings"
)

// ParsedTransaction is what ParseText extracts from a free-form message.
type ParsedTransaction struct {
	Type        TransactionType `json:"type"`
	Amount      Money           `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`

	// TypeDetected is false when no income or expense keyword was found
	// and Type fell back to Expense.
	TypeDetected bool `json:"type_detected"`
}

type categoryRule struct {
	category string
	pattern  *regexp.Regexp
}

var (
	incomePattern  = regexp.MustCompile(`ingres|recib[íi]|cobr[éeoó]|salari|sueldo|receiv|income|\bearn|collect|salary`)
	expensePattern = regexp.MustCompile(`gast[éeoó]|compr[éeoóa]|pag[uóoéa]|spent|spend|bought|\bbuy|paid|\bpay`)
	amountPattern  = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

	// Order matters: the first matching rule decides the category.
	categoryRules = []categoryRule{
		{"Food", regexp.MustCompile(`comida|restaurant|alimenta|almuerzo|cena|desayuno|supermercado|mercado|food|lunch|dinner|breakfast|grocer`)},
		{"Transport", regexp.MustCompile(`transport|uber|taxi|\bbus\b|metro|gasolina|nafta|combustible|\bfuel|train|tren`)},
		{"Entertainment", regexp.MustCompile(`entreten|\bcine\b|pel[íi]cula|diversi|netflix|spotify|concierto|cinema|movie|concert`)},
		{"Utilities", regexp.MustCompile(`servicios|\bluz\b|\bagua\b|internet|electric|tel[ée]fono|water|utilit|phone bill`)},
		{"Health", regexp.MustCompile(`salud|m[ée]dic|farmacia|doctor|hospital|dentist|health|pharmac`)},
		{"Clothing", regexp.MustCompile(`ropa|vestid|zapat|camisa|cloth|shoes|shirt`)},
		{"Home", regexp.MustCompile(`hogar|\bcasa\b|mueble|alquiler|furniture|\bhome\b|\brent\b`)},
		{SavingsCategory, regexp.MustCompile(`ahorr|inversi|saving|invest`)},
	}
)

// ParseText turns a short message such as "Gasté 1500 en comida" into a
// transaction draft. It never fails: text without a recognisable amount
// yields a zero amount, which callers must reject before persisting.
//
// An income keyword wins over an expense keyword; text with neither is an
// expense.
func ParseText(text string) ParsedTransaction {
	lower := strings.ToLower(text)

	typ, detected := classifyType(lower)
	out := ParsedTransaction{
		Type:         typ,
		Category:     classifyCategory(lower),
		Description:  strings.TrimSpace(text),
		TypeDetected: detected,
	}

	if raw := amountPattern.FindString(text); raw != "" {
		if cents, err := ParseDecimalToCents(raw); err == nil {
			out.Amount = Money{Cents: cents}
		}
	}
	return out
}

func classifyType(lower string) (TransactionType, bool) {
	if incomePattern.MatchString(lower) {
		return Income, true
	}
	return Expense, expensePattern.MatchString(lower)
}

func classifyCategory(lower string) string {
	for _, rule := range categoryRules {
		if rule.pattern.MatchString(lower) {
			return rule.category
		}
	}
	return DefaultCategory
}
