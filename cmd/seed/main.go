package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"ahorro/internal/backend"
	"ahorro/internal/cli"
	"ahorro/internal/services"
)

func main() {
	var opts Options
	flag.IntVar(&opts.Users, "users", 3, "number of demo users")
	flag.IntVar(&opts.Transactions, "transactions", 60, "transactions per user")
	flag.IntVar(&opts.Goals, "goals", 2, "savings goals per user")
	flag.IntVar(&opts.Months, "months", 3, "spread transactions over this many months")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	cfg, logger := cli.LoadAndValidateConfig()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	// Seeding does not need to wake the export worker; its sweep will
	// pick the rows up.
	backendCfg.AMQPURL = ""

	ctx := context.Background()
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer res.Cleanup()

	profiles, ok := res.Store.(ProfileWriter)
	if !ok {
		logger.Error("Backend cannot create profiles", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	seeder := NewSeeder(*seed, services.NewLedger(res.Store, nil), profiles, time.Now())
	sum, err := seeder.Run(ctx, opts)
	if err != nil {
		logger.Error("Seeding failed", "error", err)
		os.Exit(1)
	}

	// The memory backend forgets everything on exit; keep the users so the
	// server can resolve them.
	if backendCfg.Type == backend.MemoryBackend {
		path := filepath.Join(cfg.DataDir, "seed_profiles.txt")
		if err := WriteProfilesFile(path, sum.Users); err != nil {
			logger.Error("Failed to write seed profiles", "error", err, "path", path)
			os.Exit(1)
		}
		logger.Warn("Memory backend: only profiles were kept", "path", path)
	}

	for _, u := range sum.Users {
		logger.Info("Seeded user", "user_id", u.ID, "email", u.Email)
	}
	logger.Info("Seeding complete",
		"backend", cfg.DataBackend,
		"seed", *seed,
		"users", len(sum.Users),
		"transactions", sum.Transactions,
		"goals", sum.Goals)
}
