package app

import (
	"context"
	"sync"
	"time"

	"github.com/Skotchmaster/shiken_shop/internal/events"
	"github.com/Skotchmaster/shiken_shop/internal/notify"
	"github.com/Skotchmaster/shiken_shop/internal/repo"
	"github.com/Skotchmaster/shiken_shop/internal/search"
	"github.com/Skotchmaster/shiken_shop/internal/service"
	"github.com/Skotchmaster/shiken_shop/internal/storage"
	"github.com/Skotchmaster/shiken_shop/pkg/logging"
)

type Options struct {
	Backend       storage.Backend
	Events        events.Publisher
	Search        search.Index
	Lockout       service.LockoutTracker
	AutoLogin     bool
	CheckoutDelay time.Duration
	ToastTTL      time.Duration
	Now           func() time.Time
}

// Manager owns every live Session. Do runs one operation at a time across
// all sessions.
type Manager struct {
	opts     Options
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(opts Options) *Manager {
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Lockout == nil {
		opts.Lockout = service.NewMemoryLockout(service.DefaultMaxAttempts, service.DefaultLockoutWindow)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{opts: opts, sessions: make(map[string]*Session)}
}

func (m *Manager) newSession(id string) *Session {
	r := repo.New(m.opts.Backend.Scope(storage.SharedNamespace), m.opts.Backend.Scope(storage.SessionNamespace(id)))
	n := notify.New(m.opts.ToastTTL)
	deps := service.Deps{Repo: r, Notifier: n, Events: m.opts.Events, Now: m.opts.Now}

	cart := &service.CartService{Deps: deps}
	return &Session{
		ID:       id,
		Repo:     r,
		Notifier: n,
		Auth:     &service.AuthService{Deps: deps, Lockout: m.opts.Lockout, AutoLogin: m.opts.AutoLogin},
		Catalog:  &service.CatalogService{Deps: deps, Index: m.opts.Search},
		Cart:     cart,
		Orders:   &service.OrderService{Deps: deps, Cart: cart, CheckoutDelay: m.opts.CheckoutDelay},
	}
}

func (m *Manager) session(ctx context.Context, id string) (*Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s := m.newSession(id)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	m.sessions[id] = s
	logging.FromContext(ctx).Debug("session_opened", "sid", id)
	return s, nil
}

func (m *Manager) Do(ctx context.Context, id string, fn func(ctx context.Context, s *Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.session(ctx, id)
	if err != nil {
		return err
	}
	s.lastSeen = m.opts.Now()
	return fn(ctx, s)
}

// End closes the session and forgets it.
func (m *Manager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.session(ctx, id)
	if err != nil {
		return err
	}
	delete(m.sessions, id)
	return s.Close(ctx)
}

// Sweep drops sessions idle for longer than idle from memory. Their
// persisted cart and user survive and are reloaded on the next request.
func (m *Manager) Sweep(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.opts.Now().Add(-idle)
	n := 0
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Bootstrap seeds the configured administrator and pushes the catalog to
// the search index. It runs outside any browser session.
func (m *Manager) Bootstrap(ctx context.Context, adminEmail, adminPassword, adminName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := logging.FromContext(ctx).With("svc", "bootstrap")
	s := m.newSession("bootstrap")

	if adminEmail != "" {
		created, err := s.Auth.EnsureAdmin(ctx, adminEmail, adminPassword, adminName)
		if err != nil {
			return err
		}
		l.Info("bootstrap_admin", "email", adminEmail, "changed", created)
	}

	n, err := s.Catalog.Reindex(ctx)
	if err != nil {
		l.Warn("bootstrap_reindex_error", "error", err)
		return nil
	}
	if n > 0 {
		l.Info("bootstrap_reindex", "products", n)
	}
	return nil
}
