package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Skotchmaster/shiken_shop/internal/events"
	"github.com/Skotchmaster/shiken_shop/internal/models"
	"github.com/Skotchmaster/shiken_shop/internal/notify"
	"github.com/Skotchmaster/shiken_shop/pkg/hash"
	"github.com/Skotchmaster/shiken_shop/pkg/logging"
)

type AuthService struct {
	Deps
	Lockout   LockoutTracker
	AutoLogin bool
}

func nameTaken(users []models.User, name, exceptEmail string) bool {
	for _, u := range users {
		if u.Email != exceptEmail && strings.EqualFold(u.Name, name) {
			return true
		}
	}
	return false
}

func findUser(users []models.User, email string) int {
	for i := range users {
		if users[i].Email == email {
			return i
		}
	}
	return -1
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.BirthDate = strings.TrimSpace(in.BirthDate)

	if err := validate.Struct(in); err != nil {
		err = validationError(err)
		l.Warn("register_error", "status", 400, "reason", err.Error())
		return models.User{}, err
	}
	if err := checkPasswordStrength(in.Password); err != nil {
		l.Warn("register_error", "status", 400, "reason", "weak password")
		return models.User{}, err
	}
	now := s.now()
	if err := checkAge(in.BirthDate, now); err != nil {
		l.Warn("register_error", "status", 400, "reason", err.Error())
		return models.User{}, err
	}

	users, err := s.Repo.Users(ctx)
	if err != nil {
		l.Error("register_error", "status", 500, "error", err)
		return models.User{}, err
	}
	if findUser(users, in.Email) >= 0 {
		l.Warn("register_error", "status", 409, "reason", "email already registered")
		s.toast(notify.Error, "This email is already registered")
		return models.User{}, fmt.Errorf("email %s: %w", in.Email, ErrDuplicateUser)
	}
	if nameTaken(users, in.Name, "") {
		l.Warn("register_error", "status", 409, "reason", "name already taken")
		s.toast(notify.Error, "This name is already taken")
		return models.User{}, fmt.Errorf("name %s: %w", in.Name, ErrDuplicateUser)
	}

	pwHash, err := hash.HashPassword(in.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return models.User{}, err
	}

	user := models.User{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: pwHash,
		Role:         models.RoleBuyer,
		BirthDate:    in.BirthDate,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
	users = append(users, user)
	if err := s.Repo.SaveUsers(ctx, users); err != nil {
		l.Error("register_error", "status", 500, "error", err)
		return models.User{}, err
	}

	if s.AutoLogin {
		if err := s.Repo.SaveCurrentUser(ctx, user); err != nil {
			l.Error("register_error", "status", 500, "reason", "auto login failed", "error", err)
			return models.User{}, err
		}
	}

	s.publish(ctx, events.TopicUser, user.Email, map[string]any{
		"type":  "user_registered",
		"email": user.Email,
		"role":  user.Role,
	})
	s.toast(notify.Success, "Welcome to ShikenShop, "+user.Name+"!")
	l.Info("register_success", "email", user.Email)
	return user.Public(), nil
}

func (s *AuthService) Login(ctx context.Context, identifier, password string) (models.User, error) {
	email := normalizeEmail(identifier)
	l := logging.FromContext(ctx).With("svc", "auth.login", "email", email)

	if email == "" || password == "" {
		l.Warn("login_error", "status", 400, "reason", "email and password required")
		return models.User{}, fmt.Errorf("email and password required: %w", ErrValidation)
	}

	if s.Lockout != nil {
		retry, locked, err := s.Lockout.Locked(ctx, email)
		if err != nil {
			l.Error("login_error", "status", 500, "error", err)
			return models.User{}, err
		}
		if locked {
			l.Warn("login_error", "status", 429, "reason", "locked out", "retry_after", retry.String())
			s.toast(notify.Error, "Too many failed attempts, try again later")
			return models.User{}, &LockedOutError{Identifier: email, RetryAfter: retry}
		}
	}

	users, err := s.Repo.Users(ctx)
	if err != nil {
		l.Error("login_error", "status", 500, "error", err)
		return models.User{}, err
	}

	i := findUser(users, email)
	if i < 0 || !hash.CheckPassword(users[i].PasswordHash, password) {
		if s.Lockout != nil {
			if err := s.Lockout.Fail(ctx, email); err != nil {
				l.Error("login_error", "status", 500, "reason", "cannot record failure", "error", err)
			}
		}
		l.Warn("login_error", "status", 401, "reason", "invalid email or password")
		s.toast(notify.Error, "Invalid email or password")
		return models.User{}, ErrInvalidCredentials
	}

	if s.Lockout != nil {
		if err := s.Lockout.Reset(ctx, email); err != nil {
			l.Error("login_error", "status", 500, "reason", "cannot reset lockout", "error", err)
		}
	}

	user := users[i]
	if err := s.Repo.SaveCurrentUser(ctx, user); err != nil {
		l.Error("login_error", "status", 500, "error", err)
		return models.User{}, err
	}

	s.publish(ctx, events.TopicUser, user.Email, map[string]any{
		"type":  "user_logged_in",
		"email": user.Email,
	})
	s.toast(notify.Success, "Welcome back, "+user.Name+"!")
	l.Info("login_success", "role", user.Role)
	return user.Public(), nil
}

// Logout forgets the current user. The session cart is kept.
func (s *AuthService) Logout(ctx context.Context) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	cur, err := s.Repo.CurrentUser(ctx)
	if err != nil {
		l.Error("logout_error", "status", 500, "error", err)
		return err
	}
	if err := s.Repo.ClearCurrentUser(ctx); err != nil {
		l.Error("logout_error", "status", 500, "error", err)
		return err
	}
	if cur != nil {
		s.publish(ctx, events.TopicUser, cur.Email, map[string]any{
			"type":  "user_logged_out",
			"email": cur.Email,
		})
		s.toast(notify.Info, "You have been logged out")
	}
	l.Info("logout_success")
	return nil
}

// CurrentUser returns nil when nobody is logged in.
func (s *AuthService) CurrentUser(ctx context.Context) (*models.User, error) {
	u, err := s.currentUser(ctx)
	if err != nil || u == nil {
		return nil, err
	}
	pub := u.Public()
	return &pub, nil
}

func (s *AuthService) IsAuthenticated(ctx context.Context) (bool, error) {
	u, err := s.currentUser(ctx)
	return u != nil, err
}

func (s *AuthService) IsAdmin(ctx context.Context) (bool, error) {
	u, err := s.currentUser(ctx)
	return u != nil && u.Role == models.RoleAdmin, err
}

func (s *AuthService) RequireRole(ctx context.Context, role string) error {
	_, err := s.requireRole(ctx, role)
	return err
}

func (s *AuthService) UpdateProfile(ctx context.Context, in ProfileInput) (models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.update_profile")

	me, err := s.requireUser(ctx)
	if err != nil {
		l.Warn("update_profile_error", "status", 401, "reason", "not logged in")
		return models.User{}, err
	}

	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		err = validationError(err)
		l.Warn("update_profile_error", "status", 400, "reason", err.Error())
		return models.User{}, err
	}
	if in.Password != "" {
		if err := checkPasswordStrength(in.Password); err != nil {
			l.Warn("update_profile_error", "status", 400, "reason", "weak password")
			return models.User{}, err
		}
	}

	users, err := s.Repo.Users(ctx)
	if err != nil {
		l.Error("update_profile_error", "status", 500, "error", err)
		return models.User{}, err
	}
	i := findUser(users, me.Email)
	if i < 0 {
		return models.User{}, fmt.Errorf("user %s: %w", me.Email, ErrNotFound)
	}

	if in.Name != "" && !strings.EqualFold(in.Name, users[i].Name) {
		if nameTaken(users, in.Name, me.Email) {
			l.Warn("update_profile_error", "status", 409, "reason", "name already taken")
			return models.User{}, fmt.Errorf("name %s: %w", in.Name, ErrDuplicateUser)
		}
	}
	if in.Name != "" {
		users[i].Name = in.Name
	}
	if in.Password != "" {
		pwHash, err := hash.HashPassword(in.Password)
		if err != nil {
			l.Error("update_profile_error", "status", 500, "reason", "cannot hash the password", "error", err)
			return models.User{}, err
		}
		users[i].PasswordHash = pwHash
	}
	users[i].UpdatedAt = s.now()

	if err := s.Repo.SaveUsers(ctx, users); err != nil {
		l.Error("update_profile_error", "status", 500, "error", err)
		return models.User{}, err
	}
	if err := s.Repo.SaveCurrentUser(ctx, users[i]); err != nil {
		l.Error("update_profile_error", "status", 500, "error", err)
		return models.User{}, err
	}

	s.toast(notify.Success, "Profile updated")
	l.Info("update_profile_success")
	return users[i].Public(), nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]models.User, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	users, err := s.Repo.Users(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

func (s *AuthService) ChangeRole(ctx context.Context, email, role string) (models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.change_role")

	admin, err := s.requireAdmin(ctx)
	if err != nil {
		l.Warn("change_role_error", "status", 403, "reason", err.Error())
		return models.User{}, err
	}
	if !models.ValidRole(role) {
		return models.User{}, fmt.Errorf("unknown role %q: %w", role, ErrValidation)
	}

	email = normalizeEmail(email)
	if email == admin.Email {
		l.Warn("change_role_error", "status", 403, "reason", "cannot change own role")
		return models.User{}, fmt.Errorf("cannot change your own role: %w", ErrAuthorization)
	}

	users, err := s.Repo.Users(ctx)
	if err != nil {
		l.Error("change_role_error", "status", 500, "error", err)
		return models.User{}, err
	}
	i := findUser(users, email)
	if i < 0 {
		return models.User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}

	users[i].Role = role
	users[i].UpdatedAt = s.now()
	if err := s.Repo.SaveUsers(ctx, users); err != nil {
		l.Error("change_role_error", "status", 500, "error", err)
		return models.User{}, err
	}

	s.publish(ctx, events.TopicUser, email, map[string]any{
		"type":  "user_role_changed",
		"email": email,
		"role":  role,
		"by":    admin.Email,
	})
	s.toast(notify.Success, "Role updated")
	l.Info("change_role_success", "email", email, "role", role)
	return users[i].Public(), nil
}

// EnsureAdmin creates the configured administrator, or promotes the account
// if it already exists. It reports whether the collection changed.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password, name string) (bool, error) {
	l := logging.FromContext(ctx).With("svc", "auth.ensure_admin")

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return false, fmt.Errorf("admin email and password required: %w", ErrValidation)
	}
	if err := validate.Var(email, "email"); err != nil {
		return false, fmt.Errorf("invalid admin email: %w", ErrValidation)
	}

	users, err := s.Repo.Users(ctx)
	if err != nil {
		return false, err
	}

	if i := findUser(users, email); i >= 0 {
		if users[i].Role == models.RoleAdmin {
			return false, nil
		}
		users[i].Role = models.RoleAdmin
		users[i].UpdatedAt = s.now()
		l.Info("ensure_admin_promoted", "email", email)
		return true, s.Repo.SaveUsers(ctx, users)
	}

	name = strings.TrimSpace(name)
	if name == "" || nameTaken(users, name, "") {
		name = strings.SplitN(email, "@", 2)[0]
	}
	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return false, err
	}
	now := s.now()
	users = append(users, models.User{
		Email:        email,
		Name:         name,
		PasswordHash: pwHash,
		Role:         models.RoleAdmin,
		RegisteredAt: now,
		UpdatedAt:    now,
	})
	if err := s.Repo.SaveUsers(ctx, users); err != nil {
		return false, err
	}
	l.Info("ensure_admin_created", "email", email)
	return true, nil
}

// IsLockedOut unwraps the retry delay of a lockout error.
func IsLockedOut(err error) (*LockedOutError, bool) {
	var le *LockedOutError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
