package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"ahorro/internal/core"
	"ahorro/internal/services"
)

// ProfileWriter creates directory entries. The SQL stores and the memory
// store all implement it.
type ProfileWriter interface {
	UpsertProfile(ctx context.Context, p core.Profile) (core.Profile, error)
}

type Options struct {
	Users        int
	Transactions int // per user
	Goals        int // per user
	Months       int // how far back transactions go
}

type Summary struct {
	Users        []core.Profile
	Transactions int
	Goals        int
}

var (
	expenseCategories = []string{"Food", "Transport", "Entertainment", "Utilities", "Health", "Clothing", "Home"}
	incomeSources     = []string{"Salary", "Freelance", "Bonus", "Refund"}
	goalNames         = []string{"Vacation", "Emergency fund", "New laptop", "Car", "Wedding", "House deposit"}
)

// Seeder fills a backend with plausible demo data. Transactions go through
// the ledger so goal reconciliation and sync publishing behave as in
// production.
type Seeder struct {
	faker    *gofakeit.Faker
	ledger   *services.Ledger
	profiles ProfileWriter
	now      time.Time
}

func NewSeeder(seed int64, ledger *services.Ledger, profiles ProfileWriter, now time.Time) *Seeder {
	return &Seeder{
		faker:    gofakeit.New(seed),
		ledger:   ledger,
		profiles: profiles,
		now:      now.UTC(),
	}
}

func (s *Seeder) Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Months < 1 {
		opts.Months = 1
	}

	var sum Summary
	for i := 0; i < opts.Users; i++ {
		p, err := s.profiles.UpsertProfile(ctx, core.Profile{
			ID:    s.faker.UUID(),
			Email: s.faker.Email(),
			Name:  s.faker.Name(),
		})
		if err != nil {
			return sum, fmt.Errorf("create profile: %w", err)
		}
		sum.Users = append(sum.Users, p)

		goals, err := s.seedGoals(ctx, p.ID, opts.Goals)
		sum.Goals += goals
		if err != nil {
			return sum, err
		}

		txs, err := s.seedTransactions(ctx, p.ID, opts)
		sum.Transactions += txs
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (s *Seeder) seedGoals(ctx context.Context, userID string, n int) (int, error) {
	names := append([]string(nil), goalNames...)
	s.faker.ShuffleStrings(names)

	created := 0
	for i := 0; i < n && i < len(names); i++ {
		target := core.Money{Cents: int64(s.faker.Number(50, 500)) * 10000}
		in := services.GoalInput{Name: names[i], Target: target}
		if s.faker.Bool() {
			in.TargetDate = core.DateOf(s.now.AddDate(0, s.faker.Number(3, 24), 0))
		}
		g, err := s.ledger.CreateGoal(ctx, userID, in)
		if err != nil {
			return created, fmt.Errorf("create goal: %w", err)
		}
		created++

		deposit := core.Money{Cents: target.Cents * int64(s.faker.Number(0, 60)) / 100}
		if deposit.Cents > 0 {
			if _, err := s.ledger.DepositToGoal(ctx, userID, services.GoalRef{ID: g.ID}, deposit, false); err != nil {
				return created, fmt.Errorf("deposit to goal: %w", err)
			}
		}
	}
	return created, nil
}

func (s *Seeder) seedTransactions(ctx context.Context, userID string, opts Options) (int, error) {
	start := s.now.AddDate(0, -opts.Months, 0)
	created := 0
	for i := 0; i < opts.Transactions; i++ {
		in := services.TransactionInput{
			Date: core.DateOf(s.faker.DateRange(start, s.now)),
		}
		// Roughly one income for every five expenses.
		if s.faker.Number(1, 6) == 1 {
			in.Type = core.Income
			in.Category = core.DefaultCategory
			in.Description = s.faker.RandomString(incomeSources)
			in.Amount = core.Money{Cents: int64(s.faker.Number(800, 4000)) * 100}
		} else {
			in.Type = core.Expense
			in.Category = s.faker.RandomString(expenseCategories)
			in.Description = s.faker.Company()
			in.Amount = core.Money{Cents: int64(s.faker.Number(300, 30000))}
		}

		if _, err := s.ledger.RecordTransaction(ctx, userID, in); err != nil {
			return created, fmt.Errorf("record transaction: %w", err)
		}
		created++
	}
	return created, nil
}
