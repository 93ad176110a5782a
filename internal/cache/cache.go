// Package cache keeps short-lived copies of user directory lookups so the
// webhook does not hit the store for the same caller on every request.
package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ahorro/internal/core"
	"ahorro/internal/ports"
)

// Cleaner is a cache that can drop its expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically cleans registered caches.
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     atomic.Bool
	startOnce   sync.Once
	stopOnce    sync.Once
}

func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache. Call it before StartCleanup.
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

func (m *Manager) StartCleanup(interval time.Duration) {
	m.startOnce.Do(func() {
		m.started.Store(true)
		go m.cleanup(interval)
	})
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			total := 0
			for _, c := range m.caches {
				total += c.CleanExpired()
			}
			if total > 0 {
				slog.Debug("Cache cleanup", "component", "cache", "removed", total)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop ends the cleanup loop and waits for it. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCleanup)
		if m.started.Load() {
			<-m.cleanupDone
		}
	})
}

// Directory is a ports.UserDirectory that remembers profiles found by ID or
// email. Misses and errors are never cached, so a newly created user is
// visible at once. ListUsers always goes to the store.
type Directory struct {
	inner   ports.UserDirectory
	byID    *LRUCache[core.Profile]
	byEmail *LRUCache[core.Profile]
}

var _ ports.UserDirectory = (*Directory)(nil)

func NewDirectory(inner ports.UserDirectory, maxSize int, ttl time.Duration) *Directory {
	return &Directory{
		inner:   inner,
		byID:    NewLRUCache[core.Profile](maxSize, ttl),
		byEmail: NewLRUCache[core.Profile](maxSize, ttl),
	}
}

func (d *Directory) GetProfile(ctx context.Context, id string) (core.Profile, error) {
	if p, ok := d.byID.Get(id); ok {
		return p, nil
	}
	p, err := d.inner.GetProfile(ctx, id)
	if err != nil {
		return core.Profile{}, err
	}
	d.remember(p)
	return p, nil
}

// FindProfileByEmail keeps the store's exact-match semantics: the cache key
// is the email as given.
func (d *Directory) FindProfileByEmail(ctx context.Context, email string) (core.Profile, error) {
	if p, ok := d.byEmail.Get(email); ok {
		return p, nil
	}
	p, err := d.inner.FindProfileByEmail(ctx, email)
	if err != nil {
		return core.Profile{}, err
	}
	d.remember(p)
	return p, nil
}

func (d *Directory) ListUsers(ctx context.Context) ([]core.Profile, error) {
	return d.inner.ListUsers(ctx)
}

func (d *Directory) remember(p core.Profile) {
	d.byID.Set(p.ID, p)
	if email := strings.TrimSpace(p.Email); email != "" {
		d.byEmail.Set(p.Email, p)
	}
}

// Caches returns the underlying caches for registration with a Manager.
func (d *Directory) Caches() []Cleaner {
	return []Cleaner{d.byID, d.byEmail}
}

func (d *Directory) Stats() map[string]Stats {
	return map[string]Stats{
		"by_id":    d.byID.Stats(),
		"by_email": d.byEmail.Stats(),
	}
}
