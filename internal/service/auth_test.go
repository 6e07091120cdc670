package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/shiken_shop/internal/models"
	"github.com/Skotchmaster/shiken_shop/internal/storage"
)

func validInput() RegisterInput {
	return RegisterInput{Email: "alice@test.com", Name: "Alice", Password: "Passw0rd", BirthDate: "2000-01-01"}
}

func TestAuthService_Register_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(in *RegisterInput)
	}{
		{name: "bad email", mutate: func(in *RegisterInput) { in.Email = "alice-at-test" }},
		{name: "empty email", mutate: func(in *RegisterInput) { in.Email = "" }},
		{name: "short name", mutate: func(in *RegisterInput) { in.Name = "A" }},
		{name: "short password", mutate: func(in *RegisterInput) { in.Password = "Pa0" }},
		{name: "long password", mutate: func(in *RegisterInput) { in.Password = "Passw0rdPassw0rdPassw0rd" }},
		{name: "no upper", mutate: func(in *RegisterInput) { in.Password = "passw0rd" }},
		{name: "no lower", mutate: func(in *RegisterInput) { in.Password = "PASSW0RD" }},
		{name: "no digit", mutate: func(in *RegisterInput) { in.Password = "Password" }},
		{name: "too young", mutate: func(in *RegisterInput) { in.BirthDate = "2011-06-02" }},
		{name: "future birth date", mutate: func(in *RegisterInput) { in.BirthDate = "2030-01-01" }},
		{name: "bad date format", mutate: func(in *RegisterInput) { in.BirthDate = "01/01/2000" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			in := validInput()
			tt.mutate(&in)

			_, err := env.auth.Register(context.Background(), in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)

			users, err := env.deps.Repo.Users(context.Background())
			require.NoError(t, err)
			assert.Len(t, users, 3)
		})
	}
}

func TestAuthService_Register_ExactlyThirteen(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	in := validInput()
	in.BirthDate = "2011-06-01"
	_, err := env.auth.Register(context.Background(), in)
	require.NoError(t, err)
}

func TestAuthService_RegisterThenLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.auth.AutoLogin = false

	u, err := env.auth.Register(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, models.RoleBuyer, u.Role)
	assert.Empty(t, u.PasswordHash)

	ok, err := env.auth.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := env.auth.Login(ctx, "alice@test.com", "Passw0rd")
	require.NoError(t, err)
	assert.Equal(t, "alice@test.com", got.Email)

	cur, err := env.auth.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, models.RoleBuyer, cur.Role)

	users, err := env.deps.Repo.Users(ctx)
	require.NoError(t, err)
	stored := users[findUser(users, "alice@test.com")]
	assert.NotEqual(t, "Passw0rd", stored.PasswordHash)
	assert.Equal(t, testNow, stored.RegisteredAt)

	assert.Contains(t, env.events.types(), "user_registered")
	assert.Contains(t, env.events.types(), "user_logged_in")
}

func TestAuthService_Register_AutoLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.auth.Register(ctx, validInput())
	require.NoError(t, err)

	cur, err := env.auth.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, "alice@test.com", cur.Email)
}

func TestAuthService_Register_Duplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name  string
		email string
		uname string
	}{
		{name: "same email", email: "BUYER@test.com", uname: "Someone"},
		{name: "same name different case", email: "new@test.com", uname: "buyer"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			in := validInput()
			in.Email, in.Name = tt.email, tt.uname

			_, err := env.auth.Register(ctx, in)
			assert.ErrorIs(t, err, ErrDuplicateUser)
		})
	}
}

func TestAuthService_Login_Lockout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	for i := 0; i < DefaultMaxAttempts; i++ {
		_, err := env.auth.Login(ctx, buyerEmail, "Wrong0ne")
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i+1)
	}

	_, err := env.auth.Login(ctx, buyerEmail, testPass)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockedOut)

	var le *LockedOutError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, DefaultLockoutWindow, le.RetryAfter)

	cur, err := env.auth.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)

	env.lockout.Now = func() time.Time { return testNow.Add(DefaultLockoutWindow) }
	_, err = env.auth.Login(ctx, buyerEmail, testPass)
	require.NoError(t, err)
}

func TestAuthService_Login_SuccessResetsCounter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	for i := 0; i < DefaultMaxAttempts-1; i++ {
		_, err := env.auth.Login(ctx, buyerEmail, "Wrong0ne")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := env.auth.Login(ctx, " Buyer@Test.com ", testPass)
	require.NoError(t, err)

	_, err = env.auth.Login(ctx, buyerEmail, "Wrong0ne")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, buyerEmail, testPass)
	require.NoError(t, err)
}

func TestAuthService_Login_UnknownUserAndEmptyInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.auth.Login(ctx, "ghost@test.com", testPass)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.auth.Login(ctx, "", testPass)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAuthService_LogoutKeepsCart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.loginAs(t, buyerEmail)

	_, err := env.cart.AddToCart(ctx, "rpg-1", 1)
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(ctx))

	ok, err := env.auth.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	view, err := env.cart.Cart(ctx)
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)
}

func TestAuthService_RoleChecks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	assert.ErrorIs(t, env.auth.RequireRole(ctx, models.RoleBuyer), ErrUnauthenticated)

	env.loginAs(t, buyerEmail)
	isAdmin, err := env.auth.IsAdmin(ctx)
	require.NoError(t, err)
	assert.False(t, isAdmin)
	assert.NoError(t, env.auth.RequireRole(ctx, models.RoleBuyer))
	assert.ErrorIs(t, env.auth.RequireRole(ctx, models.RoleAdmin), ErrAuthorization)

	env.loginAs(t, adminEmail)
	isAdmin, err = env.auth.IsAdmin(ctx)
	require.NoError(t, err)
	assert.True(t, isAdmin)
}

func TestAuthService_ChangeRole(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("buyer is rejected and users unchanged", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.loginAs(t, buyerEmail)

		before, err := env.deps.Repo.Shared.Get(ctx, "users")
		require.NoError(t, err)

		_, err = env.auth.ChangeRole(ctx, otherEmail, models.RoleAdmin)
		assert.ErrorIs(t, err, ErrAuthorization)

		after, err := env.deps.Repo.Shared.Get(ctx, "users")
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("admin cannot change own role", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.loginAs(t, adminEmail)

		_, err := env.auth.ChangeRole(ctx, adminEmail, models.RoleBuyer)
		assert.ErrorIs(t, err, ErrAuthorization)
	})

	t.Run("unknown role and user", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.loginAs(t, adminEmail)

		_, err := env.auth.ChangeRole(ctx, otherEmail, "superuser")
		assert.ErrorIs(t, err, ErrValidation)

		_, err = env.auth.ChangeRole(ctx, "ghost@test.com", models.RoleAdmin)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("promotion applies to the next request", func(t *testing.T) {
		t.Parallel()
		b := storage.NewMemoryBackend()
		adminEnv := newSessionEnv(t, b, "admin", true)
		buyerEnv := newSessionEnv(t, b, "buyer", false)
		adminEnv.loginAs(t, adminEmail)
		buyerEnv.loginAs(t, otherEmail)

		u, err := adminEnv.auth.ChangeRole(ctx, otherEmail, models.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, u.Role)

		isAdmin, err := buyerEnv.auth.IsAdmin(ctx)
		require.NoError(t, err)
		assert.True(t, isAdmin)
	})
}

func TestAuthService_ListUsersHidesHashes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.auth.ListUsers(ctx)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	env.loginAs(t, adminEmail)
	users, err := env.auth.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	for _, u := range users {
		assert.Empty(t, u.PasswordHash)
	}
}

func TestAuthService_UpdateProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.auth.UpdateProfile(ctx, ProfileInput{Name: "New"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	env.loginAs(t, buyerEmail)

	_, err = env.auth.UpdateProfile(ctx, ProfileInput{Name: "OTHER"})
	assert.ErrorIs(t, err, ErrDuplicateUser)

	_, err = env.auth.UpdateProfile(ctx, ProfileInput{Password: "weakpass"})
	assert.ErrorIs(t, err, ErrValidation)

	u, err := env.auth.UpdateProfile(ctx, ProfileInput{Name: "Renamed", Password: "N3wPassword"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", u.Name)

	env.logout(t)
	_, err = env.auth.Login(ctx, buyerEmail, "N3wPassword")
	require.NoError(t, err)
}

func TestAuthService_EnsureAdmin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	created, err := env.auth.EnsureAdmin(ctx, "Root@Shiken.shop", "R00tPass", "Admin")
	require.NoError(t, err)
	assert.True(t, created)

	users, err := env.deps.Repo.Users(ctx)
	require.NoError(t, err)
	i := findUser(users, "root@shiken.shop")
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, models.RoleAdmin, users[i].Role)
	assert.Equal(t, "root", users[i].Name)

	created, err = env.auth.EnsureAdmin(ctx, "root@shiken.shop", "R00tPass", "Admin")
	require.NoError(t, err)
	assert.False(t, created)

	created, err = env.auth.EnsureAdmin(ctx, buyerEmail, "x", "")
	require.NoError(t, err)
	assert.True(t, created)

	_, err = env.auth.EnsureAdmin(ctx, "", "", "")
	assert.ErrorIs(t, err, ErrValidation)
}
