package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MikeMC777/inventario/internal/user"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrBadCredentials  = errors.New("incorrect username or password")
	ErrUsernameMissing = errors.New("username is required")
	ErrWeakPassword    = fmt.Errorf("password must be at least %d characters", user.MinPasswordLength)
)

// Principal is the authenticated caller.
type Principal struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Role     user.Role `json:"role"`
}

func (p Principal) IsAdmin() bool { return p.Role == user.RoleAdmin }

// OwnerFilter is the created_by restriction for listings; empty means no restriction.
func (p Principal) OwnerFilter() string {
	if p.IsAdmin() {
		return ""
	}
	return p.ID
}

// Authorize grants admins everything and everyone else only what they own.
func Authorize(p Principal, ownerID string) error {
	if p.IsAdmin() || (ownerID != "" && ownerID == p.ID) {
		return nil
	}
	return ErrForbidden
}

// Guard resolves credentials into principals.
type Guard struct {
	users  user.Repository
	tokens *TokenManager
	logger *zap.Logger

	bootstrapAdmin string
}

func NewGuard(users user.Repository, tokens *TokenManager, logger *zap.Logger) *Guard {
	return &Guard{users: users, tokens: tokens, logger: logger}
}

// Authenticate accepts a raw token or an "Authorization: Bearer" header value.
func (g *Guard) Authenticate(ctx context.Context, credential string) (Principal, error) {
	token := strings.TrimSpace(credential)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}
	claims, err := g.tokens.Validate(token)
	if err != nil {
		g.logger.Debug("token rejected", zap.Error(err))
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	u, err := g.users.GetByID(ctx, claims.Subject)
	if errors.Is(err, user.ErrNotFound) {
		return Principal{}, fmt.Errorf("%w: unknown user", ErrUnauthenticated)
	}
	if err != nil {
		return Principal{}, err
	}
	return Principal{ID: u.ID, Username: u.Username, Role: u.Role}, nil
}

// WithBootstrapAdmin lets the named user register itself as an admin while no
// admin exists to create one.
func (g *Guard) WithBootstrapAdmin(username string) *Guard {
	g.bootstrapAdmin = strings.TrimSpace(username)
	return g
}

// Register creates a user with a hashed password. caller is nil for anonymous
// sign-ups; only an admin caller or the bootstrap username may create an admin.
func (g *Guard) Register(ctx context.Context, caller *Principal, in user.RegisterRequest) (*user.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return nil, ErrUsernameMissing
	}
	role := user.ParseRole(in.Role)
	if role == user.RoleAdmin && !g.mayCreateAdmin(caller, in.Username) {
		return nil, ErrForbidden
	}
	if len(in.Password) < user.MinPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := user.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &user.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Role:         role,
		PasswordHash: hash,
	}
	if err := g.users.Create(ctx, u); err != nil {
		return nil, err
	}
	g.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("role", u.Role.String()))
	return u, nil
}

func (g *Guard) mayCreateAdmin(caller *Principal, username string) bool {
	if caller != nil && caller.IsAdmin() {
		return true
	}
	return g.bootstrapAdmin != "" && username == g.bootstrapAdmin
}

// Login verifies the password and issues an access token.
func (g *Guard) Login(ctx context.Context, username, password string) (string, error) {
	u, err := g.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, user.ErrNotFound) {
		return "", ErrBadCredentials
	}
	if err != nil {
		return "", err
	}
	if !user.CheckPassword(u.PasswordHash, password) {
		return "", ErrBadCredentials
	}
	token, _, err := g.tokens.Generate(u)
	return token, err
}

// ChangePassword replaces the caller's password after verifying the old one.
func (g *Guard) ChangePassword(ctx context.Context, p Principal, oldPassword, newPassword string) error {
	if len(newPassword) < user.MinPasswordLength {
		return ErrWeakPassword
	}
	u, err := g.users.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if !user.CheckPassword(u.PasswordHash, oldPassword) {
		return ErrBadCredentials
	}
	hash, err := user.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return g.users.UpdatePassword(ctx, p.ID, hash)
}
