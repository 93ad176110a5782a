package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"ahorro/internal/core"
	"ahorro/internal/ports"

	_ "modernc.org/sqlite"
)

const (
	transactionColumns = "id, user_id, type, amount_cents, description, category, date, created_at"
	goalColumns        = "id, user_id, name, target_amount_cents, current_amount_cents, target_date, created_at"
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ ports.Store = (*SQLiteRepository)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

// DSN adds the pragmas the repository relies on to a database path.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// UpsertProfile inserts or replaces a directory entry.
func (r *SQLiteRepository) UpsertProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, email, name) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET email = excluded.email, name = excluded.name`,
		p.ID, p.Email, p.Name)
	if err != nil {
		return core.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, string(tx.Type), tx.Amount.Cents, tx.Description, tx.Category,
		tx.Date.String(), tx.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"user_id", tx.UserID,
		"type", tx.Type,
		"amount_cents", tx.Amount.Cents,
		"category", tx.Category)

	return tx, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, &core.NotFoundError{Resource: "transaction", Key: id}
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &core.NotFoundError{Resource: "transaction", Key: id}
	}
	return nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, filter ports.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ?`
	args := []any{userID}
	if !filter.Period.Start.IsZero() {
		query += ` AND date >= ? AND date < ?`
		args = append(args, filter.Period.Start.String(), filter.Period.End.String())
	}
	query += ` ORDER BY date DESC, created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
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

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO savings_goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, g.Target.Cents, g.Current.Cents, nullableDate(g.TargetDate),
		g.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("create goal: %w", err)
	}
	return g, nil
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, userID, id string) (core.SavingsGoal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE id = ? AND user_id = ?`, id, userID)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsGoal{}, &core.NotFoundError{Resource: "goal", Key: id}
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

// FindGoalByName compares in Go because SQLite's lower() only folds ASCII.
func (r *SQLiteRepository) FindGoalByName(ctx context.Context, userID, name string) (core.SavingsGoal, error) {
	goals, err := r.ListGoals(ctx, userID)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	key := core.NormalizeGoalName(name)
	for _, g := range goals {
		if core.NormalizeGoalName(g.Name) == key {
			return g, nil
		}
	}
	return core.SavingsGoal{}, &core.NotFoundError{Resource: "goal", Key: name}
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE user_id = ? ORDER BY created_at, rowid`, userID)
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

// AdjustGoal clamps inside a single UPDATE so concurrent adjustments never
// lose an update or leave [0, target].
func (r *SQLiteRepository) AdjustGoal(ctx context.Context, userID, id string, delta core.Money) (core.SavingsGoal, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE savings_goals
		 SET current_amount_cents = MAX(0, MIN(target_amount_cents, current_amount_cents + ?))
		 WHERE id = ? AND user_id = ?
		 RETURNING `+goalColumns,
		delta.Cents, id, userID)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsGoal{}, &core.NotFoundError{Resource: "goal", Key: id}
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("adjust goal: %w", err)
	}

	slog.InfoContext(ctx, "Goal balance adjusted",
		"id", g.ID,
		"delta_cents", delta.Cents,
		"current_cents", g.Current.Cents,
		"target_cents", g.Target.Cents)
	return g, nil
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM savings_goals WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &core.NotFoundError{Resource: "goal", Key: id}
	}
	return nil
}

func (r *SQLiteRepository) GetProfile(ctx context.Context, id string) (core.Profile, error) {
	return r.profileWhere(ctx, "id = ?", id)
}

func (r *SQLiteRepository) FindProfileByEmail(ctx context.Context, email string) (core.Profile, error) {
	return r.profileWhere(ctx, "email = ?", email)
}

func (r *SQLiteRepository) profileWhere(ctx context.Context, cond, arg string) (core.Profile, error) {
	var p core.Profile
	err := r.db.QueryRowContext(ctx, `SELECT id, email, name FROM profiles WHERE `+cond+` LIMIT 1`, arg).
		Scan(&p.ID, &p.Email, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Profile{}, &core.NotFoundError{Resource: "user", Key: arg}
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.Profile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, email, name FROM profiles ORDER BY created_at, id`)
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

// GetPendingSync returns transactions that still need to reach the export sheet.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]ports.PendingSync, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, version, created_at FROM transactions
		 WHERE sync_status IN ('pending', 'error')
		 ORDER BY created_at
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	defer rows.Close()

	var out []ports.PendingSync
	for rows.Next() {
		var (
			p       ports.PendingSync
			created string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Version, &created); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced marks a transaction as successfully exported
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if err := r.setSyncStatus(ctx, id, "synced"); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

// MarkSyncError marks a transaction as having failed to export
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if err := r.setSyncStatus(ctx, id, "error"); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET sync_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &core.NotFoundError{Resource: "transaction", Key: id}
	}
	return nil
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		tx              core.Transaction
		typ, date, crAt string
	)
	if err := s.Scan(&tx.ID, &tx.UserID, &typ, &tx.Amount.Cents, &tx.Description, &tx.Category, &date, &crAt); err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TransactionType(typ)
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	tx.Date = d
	tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, crAt)
	return tx, nil
}

func scanGoal(s rowScanner) (core.SavingsGoal, error) {
	var (
		g          core.SavingsGoal
		targetDate sql.NullString
		crAt       string
	)
	if err := s.Scan(&g.ID, &g.UserID, &g.Name, &g.Target.Cents, &g.Current.Cents, &targetDate, &crAt); err != nil {
		return core.SavingsGoal{}, err
	}
	if targetDate.Valid && strings.TrimSpace(targetDate.String) != "" {
		d, err := core.ParseDate(targetDate.String)
		if err != nil {
			return core.SavingsGoal{}, fmt.Errorf("parse target date %q: %w", targetDate.String, err)
		}
		g.TargetDate = d
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339Nano, crAt)
	return g, nil
}

func nullableDate(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}
