// Package memory is an in-process Store used for tests and demo mode.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ahorro/internal/core"
	"ahorro/internal/ports"
)

type syncState struct {
	status  string
	version int64
}

type Store struct {
	mu       sync.Mutex
	profiles []core.Profile
	txs      []core.Transaction
	goals    map[string]core.SavingsGoal
	goalSeq  []string // creation order
	sync     map[string]syncState
	now      func() time.Time
}

var _ ports.Store = (*Store)(nil)

func New(profiles ...core.Profile) *Store {
	s := &Store{
		goals: make(map[string]core.SavingsGoal),
		sync:  make(map[string]syncState),
		now:   time.Now,
	}
	for _, p := range profiles {
		s.AddProfile(p)
	}
	return s
}

// NewFromFiles seeds profiles from <base>/seed_profiles.txt, one
// "id,email,name" per line. Blank lines and # comments are skipped.
func NewFromFiles(base string) *Store {
	s := New()
	for _, line := range readLines(filepath.Join(base, "seed_profiles.txt")) {
		parts := strings.SplitN(line, ",", 3)
		p := core.Profile{ID: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			p.Email = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			p.Name = strings.TrimSpace(parts[2])
		}
		s.AddProfile(p)
	}
	return s
}

// AddProfile registers a user. An empty ID gets a fresh UUID.
func (s *Store) AddProfile(p core.Profile) core.Profile {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.profiles {
		if existing.ID == p.ID {
			s.profiles[i] = p
			return p
		}
	}
	s.profiles = append(s.profiles, p)
	return p
}

// UpsertProfile is AddProfile behind the context-aware signature the SQL
// stores share.
func (s *Store) UpsertProfile(_ context.Context, p core.Profile) (core.Profile, error) {
	return s.AddProfile(p), nil
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now().UTC()
	}
	s.txs = append(s.txs, tx)
	s.sync[tx.ID] = syncState{status: "pending", version: 1}
	return tx, nil
}

func (s *Store) GetTransaction(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if tx.ID == id && tx.UserID == userID {
			return tx, nil
		}
	}
	return core.Transaction{}, &core.NotFoundError{Resource: "transaction", Key: id}
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tx := range s.txs {
		if tx.ID == id && tx.UserID == userID {
			s.txs = append(s.txs[:i], s.txs[i+1:]...)
			delete(s.sync, id)
			return nil
		}
	}
	return &core.NotFoundError{Resource: "transaction", Key: id}
}

func (s *Store) ListTransactions(_ context.Context, userID string, filter ports.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	out := make([]core.Transaction, 0)
	for _, tx := range s.txs {
		if tx.UserID != userID {
			continue
		}
		if !filter.Period.Start.IsZero() && !filter.Period.Contains(tx.Date) {
			continue
		}
		out = append(out, tx)
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) CreateGoal(_ context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.now().UTC()
	}
	if _, exists := s.goals[g.ID]; exists {
		return core.SavingsGoal{}, fmt.Errorf("goal %s already exists", g.ID)
	}
	s.goals[g.ID] = g
	s.goalSeq = append(s.goalSeq, g.ID)
	return g, nil
}

func (s *Store) GetGoal(_ context.Context, userID, id string) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok || g.UserID != userID {
		return core.SavingsGoal{}, &core.NotFoundError{Resource: "goal", Key: id}
	}
	return g, nil
}

func (s *Store) FindGoalByName(_ context.Context, userID, name string) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := core.NormalizeGoalName(name)
	for _, id := range s.goalSeq {
		g := s.goals[id]
		if g.UserID == userID && core.NormalizeGoalName(g.Name) == key {
			return g, nil
		}
	}
	return core.SavingsGoal{}, &core.NotFoundError{Resource: "goal", Key: name}
}

func (s *Store) ListGoals(_ context.Context, userID string) ([]core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.SavingsGoal, 0)
	for _, id := range s.goalSeq {
		if g := s.goals[id]; g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

// AdjustGoal performs the clamped read-modify-write under the store lock.
func (s *Store) AdjustGoal(_ context.Context, userID, id string, delta core.Money) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok || g.UserID != userID {
		return core.SavingsGoal{}, &core.NotFoundError{Resource: "goal", Key: id}
	}
	g.Current = core.ClampBalance(g.Current, g.Target, delta)
	s.goals[id] = g
	return g, nil
}

func (s *Store) DeleteGoal(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok || g.UserID != userID {
		return &core.NotFoundError{Resource: "goal", Key: id}
	}
	delete(s.goals, id)
	for i, seqID := range s.goalSeq {
		if seqID == id {
			s.goalSeq = append(s.goalSeq[:i], s.goalSeq[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) GetProfile(_ context.Context, id string) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return core.Profile{}, &core.NotFoundError{Resource: "user", Key: id}
}

func (s *Store) FindProfileByEmail(_ context.Context, email string) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return core.Profile{}, &core.NotFoundError{Resource: "user", Key: email}
}

func (s *Store) ListUsers(context.Context) ([]core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Profile(nil), s.profiles...), nil
}

func (s *Store) GetPendingSync(_ context.Context, limit int) ([]ports.PendingSync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.PendingSync
	for _, tx := range s.txs {
		st := s.sync[tx.ID]
		if st.status != "pending" && st.status != "error" {
			continue
		}
		out = append(out, ports.PendingSync{ID: tx.ID, UserID: tx.UserID, Version: st.version, CreatedAt: tx.CreatedAt})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkSynced(_ context.Context, id string) error {
	return s.setSync(id, "synced")
}

func (s *Store) MarkSyncError(_ context.Context, id string) error {
	return s.setSync(id, "error")
}

func (s *Store) setSync(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sync[id]
	if !ok {
		return &core.NotFoundError{Resource: "transaction", Key: id}
	}
	st.status = status
	s.sync[id] = st
	return nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
