// Package postgres is the PostgreSQL Store, built on pgxpool with queries
// assembled by squirrel.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ahorro/internal/core"
	"ahorro/internal/ports"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	transactionColumns = []string{"id", "user_id", "type", "amount_cents", "description", "category", "date", "created_at"}
	goalColumns        = []string{"id", "user_id", "name", "target_amount_cents", "current_amount_cents", "target_date", "created_at"}
)

type Store struct {
	pool *pgxpool.Pool
}

var _ ports.Store = (*Store)(nil)

// New connects to dsn, applies migrations and verifies the pool.
func New(ctx context.Context, dsn string) (*Store, error) {
	if err := RunMigrations(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connection established",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database)

	return &Store{pool: pool}, nil
}

// RunMigrations applies the embedded schema through database/sql, which is
// what the migrate pgx driver expects.
func RunMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("create pgx driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	query, args, err := insertTransactionQuery(tx).ToSql()
	if err != nil {
		return core.Transaction{}, err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	query, args, err := psql.Select(transactionColumns...).
		From("transactions").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return core.Transaction{}, err
	}

	tx, err := scanTransaction(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, &core.NotFoundError{Resource: "transaction", Key: id}
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id string) error {
	query, args, err := psql.Delete("transactions").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &core.NotFoundError{Resource: "transaction", Key: id}
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string, filter ports.TransactionFilter) ([]core.Transaction, error) {
	query, args, err := listTransactionsQuery(userID, filter).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	var targetDate *time.Time
	if !g.TargetDate.IsZero() {
		targetDate = &g.TargetDate.Time
	}

	query, args, err := psql.Insert("savings_goals").
		Columns(goalColumns...).
		Values(g.ID, g.UserID, g.Name, g.Target.Cents, g.Current.Cents, targetDate, g.CreatedAt).
		ToSql()
	if err != nil {
		return core.SavingsGoal{}, err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("create goal: %w", err)
	}
	return g, nil
}

func (s *Store) GetGoal(ctx context.Context, userID, id string) (core.SavingsGoal, error) {
	return s.goalWhere(ctx, squirrel.Eq{"id": id, "user_id": userID}, id)
}

func (s *Store) FindGoalByName(ctx context.Context, userID, name string) (core.SavingsGoal, error) {
	return s.goalWhere(ctx, goalNameCondition(userID, name), name)
}

func (s *Store) goalWhere(ctx context.Context, cond squirrel.Sqlizer, key string) (core.SavingsGoal, error) {
	query, args, err := psql.Select(goalColumns...).
		From("savings_goals").
		Where(cond).
		OrderBy("created_at", "id").
		Limit(1).
		ToSql()
	if err != nil {
		return core.SavingsGoal{}, err
	}

	g, err := scanGoal(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.SavingsGoal{}, &core.NotFoundError{Resource: "goal", Key: key}
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (s *Store) ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error) {
	query, args, err := psql.Select(goalColumns...).
		From("savings_goals").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	out := make([]core.SavingsGoal, 0)
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// AdjustGoal relies on the row lock taken by UPDATE, so the clamp and the
// write happen as one step.
func (s *Store) AdjustGoal(ctx context.Context, userID, id string, delta core.Money) (core.SavingsGoal, error) {
	query, args, err := adjustGoalQuery(userID, id, delta).ToSql()
	if err != nil {
		return core.SavingsGoal{}, err
	}

	g, err := scanGoal(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.SavingsGoal{}, &core.NotFoundError{Resource: "goal", Key: id}
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("adjust goal: %w", err)
	}
	return g, nil
}

func (s *Store) DeleteGoal(ctx context.Context, userID, id string) error {
	query, args, err := psql.Delete("savings_goals").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &core.NotFoundError{Resource: "goal", Key: id}
	}
	return nil
}

// UpsertProfile inserts or replaces a directory entry.
func (s *Store) UpsertProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query, args, err := upsertProfileQuery(p).ToSql()
	if err != nil {
		return core.Profile{}, err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return core.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return p, nil
}

func upsertProfileQuery(p core.Profile) squirrel.InsertBuilder {
	return psql.Insert("profiles").
		Columns("id", "email", "name").
		Values(p.ID, p.Email, p.Name).
		Suffix("ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name")
}

func (s *Store) GetProfile(ctx context.Context, id string) (core.Profile, error) {
	return s.profileWhere(ctx, squirrel.Eq{"id": id}, id)
}

func (s *Store) FindProfileByEmail(ctx context.Context, email string) (core.Profile, error) {
	return s.profileWhere(ctx, squirrel.Eq{"email": email}, email)
}

func (s *Store) profileWhere(ctx context.Context, cond squirrel.Sqlizer, key string) (core.Profile, error) {
	query, args, err := psql.Select("id", "email", "name").
		From("profiles").
		Where(cond).
		Limit(1).
		ToSql()
	if err != nil {
		return core.Profile{}, err
	}

	var p core.Profile
	err = s.pool.QueryRow(ctx, query, args...).Scan(&p.ID, &p.Email, &p.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Profile{}, &core.NotFoundError{Resource: "user", Key: key}
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]core.Profile, error) {
	query, args, err := psql.Select("id", "email", "name").
		From("profiles").
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []core.Profile
	for rows.Next() {
		var p core.Profile
		if err := rows.Scan(&p.ID, &p.Email, &p.Name); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPendingSync(ctx context.Context, limit int) ([]ports.PendingSync, error) {
	query, args, err := pendingSyncQuery(limit).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	defer rows.Close()

	var out []ports.PendingSync
	for rows.Next() {
		var p ports.PendingSync
		if err := rows.Scan(&p.ID, &p.UserID, &p.Version, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) MarkSynced(ctx context.Context, id string) error {
	return s.setSyncStatus(ctx, id, "synced")
}

func (s *Store) MarkSyncError(ctx context.Context, id string) error {
	return s.setSyncStatus(ctx, id, "error")
}

func (s *Store) setSyncStatus(ctx context.Context, id, status string) error {
	query, args, err := psql.Update("transactions").
		Set("sync_status", status).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set sync status %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return &core.NotFoundError{Resource: "transaction", Key: id}
	}
	return nil
}

func insertTransactionQuery(tx core.Transaction) squirrel.InsertBuilder {
	return psql.Insert("transactions").
		Columns(transactionColumns...).
		Values(tx.ID, tx.UserID, string(tx.Type), tx.Amount.Cents, tx.Description, tx.Category, tx.Date.Time, tx.CreatedAt)
}

func listTransactionsQuery(userID string, filter ports.TransactionFilter) squirrel.SelectBuilder {
	q := psql.Select(transactionColumns...).
		From("transactions").
		Where(squirrel.Eq{"user_id": userID})
	if !filter.Period.Start.IsZero() {
		q = q.Where(squirrel.GtOrEq{"date": filter.Period.Start.Time}).
			Where(squirrel.Lt{"date": filter.Period.End.Time})
	}
	q = q.OrderBy("date DESC", "created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	return q
}

func goalNameCondition(userID, name string) squirrel.Sqlizer {
	return squirrel.And{
		squirrel.Eq{"user_id": userID},
		squirrel.Expr("lower(btrim(name)) = ?", core.NormalizeGoalName(name)),
	}
}

func adjustGoalQuery(userID, id string, delta core.Money) squirrel.UpdateBuilder {
	return psql.Update("savings_goals").
		Set("current_amount_cents",
			squirrel.Expr("GREATEST(0, LEAST(target_amount_cents, current_amount_cents + ?))", delta.Cents)).
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		Suffix("RETURNING " + strings.Join(goalColumns, ", "))
}

func pendingSyncQuery(limit int) squirrel.SelectBuilder {
	return psql.Select("id", "user_id", "version", "created_at").
		From("transactions").
		Where(squirrel.Eq{"sync_status": []string{"pending", "error"}}).
		OrderBy("created_at").
		Limit(uint64(limit))
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		tx   core.Transaction
		typ  string
		date time.Time
	)
	if err := row.Scan(&tx.ID, &tx.UserID, &typ, &tx.Amount.Cents, &tx.Description, &tx.Category, &date, &tx.CreatedAt); err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TransactionType(typ)
	tx.Date = core.DateOf(date)
	return tx, nil
}

func scanGoal(row pgx.Row) (core.SavingsGoal, error) {
	var (
		g          core.SavingsGoal
		targetDate *time.Time
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.Target.Cents, &g.Current.Cents, &targetDate, &g.CreatedAt); err != nil {
		return core.SavingsGoal{}, err
	}
	if targetDate != nil {
		g.TargetDate = core.DateOf(*targetDate)
	}
	return g, nil
}
