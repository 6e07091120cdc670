package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/shiken_shop/internal/models"
	"github.com/Skotchmaster/shiken_shop/internal/notify"
	"github.com/Skotchmaster/shiken_shop/internal/repo"
	"github.com/Skotchmaster/shiken_shop/internal/storage"
	"github.com/Skotchmaster/shiken_shop/pkg/hash"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type recordedEvent struct {
	Topic string
	Key   string
	Event map[string]any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, _ := event.(map[string]any)
	p.events = append(p.events, recordedEvent{Topic: topic, Key: key, Event: m})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event["type"].(string))
	}
	return out
}

type testEnv struct {
	backend  *storage.MemoryBackend
	deps     Deps
	events   *recordingPublisher
	lockout  *MemoryLockout
	auth     *AuthService
	catalog  *CatalogService
	cart     *CartService
	orders   *OrderService
	notifier *notify.Notifier
}

func seedProducts() []models.Product {
	day := func(n int) time.Time { return testNow.AddDate(0, 0, -30+n) }
	return []models.Product{
		{ID: "rpg-1", Name: "Elden Ring", Category: "rpg", Price: 59.99, Stock: 5, Rating: 4.8, CreatedAt: day(1)},
		{ID: "rpg-2", Name: "Baldur's Gate 3", Category: "rpg", Price: 69.99, Discount: 10, Stock: 3, Rating: 4.9, CreatedAt: day(3)},
		{ID: "accion-1", Name: "Doom Eternal", Category: "accion", Price: 39.99, Discount: 50, Stock: 0, Rating: 4.5, CreatedAt: day(2)},
		{ID: "estrategia-1", Name: "Civilization VI", Category: "estrategia", Price: 29.99, Stock: 10, Rating: 4.2, CreatedAt: day(4)},
		{ID: "aventura-1", Name: "Zelda: Tears of the Kingdom", Category: "aventura", Price: 41990, Stock: 2, Rating: 4.8, CreatedAt: day(5)},
		{ID: "rpg-3", Name: "Old Demo", Category: "rpg", Price: 5, Stock: 9, Disabled: true, CreatedAt: day(0)},
	}
}

const (
	adminEmail = "admin@shiken.shop"
	buyerEmail = "buyer@test.com"
	otherEmail = "other@test.com"
	testPass   = "Passw0rd"
)

func seedUsers(t *testing.T) []models.User {
	t.Helper()
	h, err := hash.HashPassword(testPass)
	require.NoError(t, err)
	return []models.User{
		{Email: adminEmail, Name: "Admin", PasswordHash: h, Role: models.RoleAdmin, RegisteredAt: testNow},
		{Email: buyerEmail, Name: "Buyer", PasswordHash: h, Role: models.RoleBuyer, RegisteredAt: testNow},
		{Email: otherEmail, Name: "Other", PasswordHash: h, Role: models.RoleBuyer, RegisteredAt: testNow},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newSessionEnv(t, storage.NewMemoryBackend(), "s1", true)
}

// newSessionEnv builds services for one session on a shared backend; seed
// controls whether users and products are written.
func newSessionEnv(t *testing.T, b *storage.MemoryBackend, sid string, seed bool) *testEnv {
	t.Helper()
	ctx := context.Background()

	r := repo.New(b.Scope(storage.SharedNamespace), b.Scope(storage.SessionNamespace(sid)))
	if seed {
		require.NoError(t, r.SaveUsers(ctx, seedUsers(t)))
		require.NoError(t, r.SaveProducts(ctx, seedProducts()))
	}

	pub := &recordingPublisher{}
	n := notify.New(time.Hour)
	deps := Deps{Repo: r, Notifier: n, Events: pub, Now: func() time.Time { return testNow }}

	lock := NewMemoryLockout(DefaultMaxAttempts, DefaultLockoutWindow)
	lock.Now = func() time.Time { return testNow }

	cart := &CartService{Deps: deps}
	return &testEnv{
		backend:  b,
		deps:     deps,
		events:   pub,
		lockout:  lock,
		auth:     &AuthService{Deps: deps, Lockout: lock, AutoLogin: true},
		catalog:  &CatalogService{Deps: deps},
		cart:     cart,
		orders:   &OrderService{Deps: deps, Cart: cart},
		notifier: n,
	}
}

func (e *testEnv) loginAs(t *testing.T, email string) {
	t.Helper()
	ctx := context.Background()
	users, err := e.deps.Repo.Users(ctx)
	require.NoError(t, err)
	i := findUser(users, email)
	require.GreaterOrEqual(t, i, 0, "unknown user %s", email)
	require.NoError(t, e.deps.Repo.SaveCurrentUser(ctx, users[i]))
}

func (e *testEnv) logout(t *testing.T) {
	t.Helper()
	require.NoError(t, e.deps.Repo.ClearCurrentUser(context.Background()))
}

func (e *testEnv) product(t *testing.T, id string) models.Product {
	t.Helper()
	products, err := e.deps.Repo.Products(context.Background())
	require.NoError(t, err)
	i := findProduct(products, id)
	require.GreaterOrEqual(t, i, 0, "unknown product %s", id)
	return products[i]
}

func (e *testEnv) rawProducts(t *testing.T) []byte {
	t.Helper()
	raw, err := e.deps.Repo.Shared.Get(context.Background(), repo.KeyProducts)
	require.NoError(t, err)
	return raw
}

func (e *testEnv) toastLevels() []notify.Level {
	out := []notify.Level{}
	for _, n := range e.notifier.Active() {
		out = append(out, n.Level)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
