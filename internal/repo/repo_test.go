package repo

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/shiken_shop/internal/models"
	"github.com/Skotchmaster/shiken_shop/internal/storage"
	"github.com/Skotchmaster/shiken_shop/pkg/hash"
)

func newRepo() (*Repo, *storage.MemoryBackend) {
	b := storage.NewMemoryBackend()
	return New(b.Scope(storage.SharedNamespace), b.Scope(storage.SessionNamespace("s1"))), b
}

func TestUsers_NormalizesLegacyRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _ := newRepo()

	legacy := `[
		{"email":"Ann@Test.com","fullName":"Ann Lee","password":"Secret1","role":"buyer"},
		{"email":"bob@test.com","username":"bobby","password":"Secret2"},
		{"email":"root@test.com","name":"Root","passwordHash":"$2a$10$abcdefghijklmnopqrstuu5cVxVQfXbT1X1q4JrU6QmX7b0Kp0i1G","role":"admin"}
	]`
	require.NoError(t, r.Shared.Put(ctx, KeyUsers, []byte(legacy)))

	users, err := r.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)

	assert.Equal(t, "ann@test.com", users[0].Email)
	assert.Equal(t, "Ann Lee", users[0].Name)
	assert.True(t, hash.CheckPassword(users[0].PasswordHash, "Secret1"))

	assert.Equal(t, "bobby", users[1].Name)
	assert.Equal(t, models.RoleBuyer, users[1].Role)
	assert.True(t, hash.CheckPassword(users[1].PasswordHash, "Secret2"))

	assert.Equal(t, models.RoleAdmin, users[2].Role)

	raw, err := r.Shared.Get(ctx, KeyUsers)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"password":`)
	assert.NotContains(t, string(raw), "fullName")

	var stored []models.User
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, users, stored)
}

func TestUsers_CanonicalRecordsAreNotRewritten(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _ := newRepo()

	h, err := hash.HashPassword("Passw0rd")
	require.NoError(t, err)
	want := []models.User{{Email: "a@b.c", Name: "A", PasswordHash: h, Role: models.RoleBuyer}}
	require.NoError(t, r.SaveUsers(ctx, want))

	before, err := r.Shared.Get(ctx, KeyUsers)
	require.NoError(t, err)

	got, err := r.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	after, err := r.Shared.Get(ctx, KeyUsers)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCollections_EmptyDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _ := newRepo()

	users, err := r.Users(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	products, err := r.Products(ctx)
	require.NoError(t, err)
	assert.NotNil(t, products)

	cart, err := r.Cart(ctx)
	require.NoError(t, err)
	assert.NotNil(t, cart)

	cur, err := r.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestCurrentUser_StoresPublicView(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _ := newRepo()

	require.NoError(t, r.SaveCurrentUser(ctx, models.User{Email: "a@b.c", PasswordHash: "secret", Role: models.RoleBuyer}))

	cur, err := r.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, "a@b.c", cur.Email)
	assert.Empty(t, cur.PasswordHash)

	require.NoError(t, r.ClearCurrentUser(ctx))
	cur, err = r.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestCart_IsPerSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r1, b := newRepo()
	r2 := New(b.Scope(storage.SharedNamespace), b.Scope(storage.SessionNamespace("s2")))

	require.NoError(t, r1.SaveCart(ctx, []models.CartItem{{ProductID: "rpg-1", Quantity: 1}}))

	c2, err := r2.Cart(ctx)
	require.NoError(t, err)
	assert.Empty(t, c2)

	require.NoError(t, r1.SaveCart(ctx, nil))
	raw, err := r1.Local.Get(ctx, KeyCart)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}
