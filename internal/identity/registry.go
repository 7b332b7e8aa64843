// Package identity is the local identity provider: a user registry kept in
// the record store and signed session tokens carrying the caller's Principal.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/recordstore"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	maxNameLength     = 100
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
)

// User is a registered account. PasswordHash never leaves the package
// through JSON responses; use Public for that.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Role         core.Role `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PublicUser is the view of a User safe to return to clients.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      core.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

func (u User) Principal() core.Principal {
	return core.Principal{ID: u.ID, DisplayName: u.Name, Role: u.Role}
}

// Registry stores users under recordstore.KeyUsers.
type Registry struct {
	store recordstore.Store

	mu    sync.RWMutex
	users []User

	cost   int
	now    func() time.Time
	logger *slog.Logger

	// dummyHash keeps Authenticate timing similar for unknown emails.
	dummyHash []byte
}

type RegistryOption func(*Registry)

// WithBcryptCost overrides bcrypt.DefaultCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) RegistryOption {
	return func(r *Registry) { r.cost = cost }
}

func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

func NewRegistry(ctx context.Context, store recordstore.Store, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		store:  store,
		cost:   bcrypt.DefaultCost,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(log.FieldComponent, log.ComponentIdentity)

	blob, err := store.Get(ctx, recordstore.KeyUsers)
	switch {
	case errors.Is(err, recordstore.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("%w: load users: %w", core.ErrPersistence, err)
	default:
		if err := json.Unmarshal(blob, &r.users); err != nil {
			return nil, fmt.Errorf("%w: decode users: %w", core.ErrPersistence, err)
		}
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), r.cost)
	if err != nil {
		return nil, fmt.Errorf("prepare password hasher: %w", err)
	}
	r.dummyHash = dummy
	return r, nil
}

// Signup registers a regular user.
func (r *Registry) Signup(ctx context.Context, name, email, password string) (User, error) {
	return r.Register(ctx, name, email, password, core.RoleUser)
}

// Register creates a user with an explicit role.
func (r *Registry) Register(ctx context.Context, name, email, password string, role core.Role) (User, error) {
	name, email, err := normalizeProfile(name, email)
	if err != nil {
		return User{}, err
	}
	if _, err := core.ParseRole(string(role)); err != nil {
		return User{}, err
	}
	hash, err := r.hash(password)
	if err != nil {
		return User{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexByEmail(email) >= 0 {
		return User{}, ErrEmailTaken
	}

	u := User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    r.now(),
	}
	next := append(append([]User(nil), r.users...), u)
	if err := r.commit(ctx, next); err != nil {
		return User{}, err
	}

	r.logger.InfoContext(ctx, "User registered", log.FieldOperation, log.OpSignup,
		log.FieldPrincipalID, u.ID, log.FieldRole, u.Role)
	return u, nil
}

// Authenticate returns the user for a matching email and password.
func (r *Registry) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	r.mu.RLock()
	i := r.indexByEmail(email)
	var u User
	if i >= 0 {
		u = r.users[i]
	}
	r.mu.RUnlock()

	if i < 0 {
		_ = bcrypt.CompareHashAndPassword(r.dummyHash, []byte(password))
		r.logger.WarnContext(ctx, "Login failed", log.FieldOperation, log.OpLogin, log.FieldErrorType, log.ErrorTypeAuth)
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		r.logger.WarnContext(ctx, "Login failed", log.FieldOperation, log.OpLogin,
			log.FieldPrincipalID, u.ID, log.FieldErrorType, log.ErrorTypeAuth)
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Lookup returns the user with the given id.
func (r *Registry) Lookup(id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

// UpdateProfile changes the caller's own name and email. Roles are not
// editable here. Expenses keep the display name they were created with.
func (r *Registry) UpdateProfile(ctx context.Context, p *core.Principal, name, email string) (User, error) {
	if p == nil || p.ID == "" {
		return User{}, core.ErrNotAuthenticated
	}
	name, email, err := normalizeProfile(name, email)
	if err != nil {
		return User{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexByID(p.ID)
	if i < 0 {
		return User{}, ErrUserNotFound
	}
	if j := r.indexByEmail(email); j >= 0 && j != i {
		return User{}, ErrEmailTaken
	}

	next := append([]User(nil), r.users...)
	next[i].Name = name
	next[i].Email = email
	if err := r.commit(ctx, next); err != nil {
		return User{}, err
	}
	return next[i], nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (r *Registry) ChangePassword(ctx context.Context, p *core.Principal, current, replacement string) error {
	if p == nil || p.ID == "" {
		return core.ErrNotAuthenticated
	}
	hash, err := r.hash(replacement)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexByID(p.ID)
	if i < 0 {
		return ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(r.users[i].PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	return r.setHash(ctx, i, hash)
}

// ResetPassword lets an admin set another user's password.
func (r *Registry) ResetPassword(ctx context.Context, p *core.Principal, email, replacement string) error {
	if p == nil || p.ID == "" {
		return core.ErrNotAuthenticated
	}
	if !p.IsAdmin() {
		r.logger.WarnContext(ctx, "Password reset denied", log.FieldPrincipalID, p.ID, log.FieldErrorType, log.ErrorTypeForbidden)
		return core.ErrForbidden
	}
	hash, err := r.hash(replacement)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexByEmail(strings.ToLower(strings.TrimSpace(email)))
	if i < 0 {
		return ErrUserNotFound
	}
	if err := r.setHash(ctx, i, hash); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "Password reset by admin", log.FieldPrincipalID, p.ID, log.FieldTargetUserID, r.users[i].ID)
	return nil
}

// ListUsers returns every account. Admin only.
func (r *Registry) ListUsers(p *core.Principal) ([]PublicUser, error) {
	if p == nil || p.ID == "" {
		return nil, core.ErrNotAuthenticated
	}
	if !p.IsAdmin() {
		return nil, core.ErrForbidden
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PublicUser, len(r.users))
	for i, u := range r.users {
		out[i] = u.Public()
	}
	return out, nil
}

// EnsureAdmin creates an admin account unless one already exists.
func (r *Registry) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	r.mu.RLock()
	for _, u := range r.users {
		if u.Role == core.RoleAdmin {
			r.mu.RUnlock()
			return false, nil
		}
	}
	r.mu.RUnlock()

	if _, err := r.Register(ctx, name, email, password, core.RoleAdmin); err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	return true, nil
}

func (r *Registry) hash(password string) ([]byte, error) {
	if len(password) < MinPasswordLength {
		return nil, core.NewValidationError("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		// bcrypt rejects passwords longer than 72 bytes.
		return nil, core.NewValidationError("password", err.Error())
	}
	return hash, nil
}

// setHash persists a new password hash for user i. Callers hold r.mu.
func (r *Registry) setHash(ctx context.Context, i int, hash []byte) error {
	next := append([]User(nil), r.users...)
	next[i].PasswordHash = string(hash)
	return r.commit(ctx, next)
}

// commit persists next before making it live. Callers hold r.mu.
func (r *Registry) commit(ctx context.Context, next []User) error {
	blob, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("%w: encode users: %w", core.ErrPersistence, err)
	}
	if err := r.store.Set(ctx, recordstore.KeyUsers, blob); err != nil {
		return fmt.Errorf("%w: save users: %w", core.ErrPersistence, err)
	}
	r.users = next
	return nil
}

func (r *Registry) indexByEmail(email string) int {
	for i := range r.users {
		if r.users[i].Email == email {
			return i
		}
	}
	return -1
}

func (r *Registry) indexByID(id string) int {
	for i := range r.users {
		if r.users[i].ID == id {
			return i
		}
	}
	return -1
}

func normalizeProfile(name, email string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", core.NewValidationError("name", "is required")
	}
	if len(name) > maxNameLength {
		return "", "", core.NewValidationError("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if err := checkmail.ValidateFormat(email); err != nil {
		return "", "", core.NewValidationError("email", "is not a valid address")
	}
	return name, email, nil
}
