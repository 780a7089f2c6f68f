package analytics

import (
	"time"

	"envelopes/internal/core"
)

func money(cents int64) core.Money { return core.Money{Cents: cents} }

func day(month core.MonthKey, d int) time.Time {
	return month.Start(time.UTC).AddDate(0, 0, d-1)
}

func expenseTx(id string, on time.Time, cents int64, categoryID string) core.Transaction {
	return core.Transaction{
		ID:         id,
		OccurredOn: on,
		Amount:     money(cents),
		Type:       core.TypeExpense,
		Merchant:   "Merchant " + id,
		CategoryID: categoryID,
	}
}

func incomeTx(id string, on time.Time, cents int64) core.Transaction {
	return core.Transaction{
		ID:          id,
		OccurredOn:  on,
		Amount:      money(cents),
		Type:        core.TypeIncome,
		Description: "Income " + id,
	}
}

func alloc(categoryID string, section core.Section, plannedCents, spentCents int64) core.Allocation {
	return core.Allocation{
		CategoryID: categoryID,
		Section:    section,
		Planned:    money(plannedCents),
		Spent:      money(spentCents),
	}
}

func testCategories() map[string]core.Category {
	return map[string]core.Category{
		"groceries": {ID: "groceries", Name: "Groceries", Emoji: "🛒", Section: core.SectionExpenses},
		"rent":      {ID: "rent", Name: "Rent", Emoji: "🏠", Section: core.SectionRecurring},
		"savings":   {ID: "savings", Name: "Emergency Fund", Emoji: "🏦", Section: core.SectionSavings},
		"loan":      {ID: "loan", Name: "Car Loan", Emoji: "🚗", Section: core.SectionDebt},
	}
}
