package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MikeMC777/inventario/internal/user"
)

func newGuard(t *testing.T) (*Guard, *TokenManager) {
	t.Helper()
	tm := NewTokenManager("test-secret", time.Minute, zap.NewNop())
	return NewGuard(user.NewMemoryRepo(), tm, zap.NewNop()).WithBootstrapAdmin("alice"), tm
}

func TestAuthorize(t *testing.T) {
	admin := Principal{ID: "a", Role: user.RoleAdmin}
	alice := Principal{ID: "alice", Role: user.RoleStandard}

	assert.NoError(t, Authorize(admin, "bob"))
	assert.NoError(t, Authorize(admin, ""))
	assert.NoError(t, Authorize(alice, "alice"))
	assert.ErrorIs(t, Authorize(alice, "bob"), ErrForbidden)
	assert.ErrorIs(t, Authorize(alice, ""), ErrForbidden)
}

func TestOwnerFilter(t *testing.T) {
	assert.Equal(t, "", Principal{ID: "a", Role: user.RoleAdmin}.OwnerFilter())
	assert.Equal(t, "b", Principal{ID: "b"}.OwnerFilter())
}

func TestRegisterLoginAuthenticate(t *testing.T) {
	ctx := context.Background()
	g, _ := newGuard(t)

	u, err := g.Register(ctx, nil, user.RegisterRequest{Username: " alice ", Password: "correct-horse", Role: "Admin"})
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, user.RoleAdmin, u.Role)

	_, err = g.Register(ctx, nil, user.RegisterRequest{Username: "alice", Password: "correct-horse"})
	assert.ErrorIs(t, err, user.ErrAlreadyExist)

	_, err = g.Login(ctx, "alice", "wrong-horse")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = g.Login(ctx, "nobody", "correct-horse")
	assert.ErrorIs(t, err, ErrBadCredentials)

	token, err := g.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	p, err := g.Authenticate(ctx, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.ID)
	assert.True(t, p.IsAdmin())

	p, err = g.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.ID)
}

func TestRegister_AdminRoleNeedsAdminCaller(t *testing.T) {
	ctx := context.Background()
	g, _ := newGuard(t)

	_, err := g.Register(ctx, nil, user.RegisterRequest{Username: "mallory", Password: "correct-horse", Role: "admin"})
	assert.ErrorIs(t, err, ErrForbidden)

	bob := &Principal{ID: "bob", Role: user.RoleStandard}
	_, err = g.Register(ctx, bob, user.RegisterRequest{Username: "mallory", Password: "correct-horse", Role: "admin"})
	assert.ErrorIs(t, err, ErrForbidden)

	root := &Principal{ID: "root", Role: user.RoleAdmin}
	u, err := g.Register(ctx, root, user.RegisterRequest{Username: "carol", Password: "correct-horse", Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, u.Role)

	u, err = g.Register(ctx, nil, user.RegisterRequest{Username: "dave", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleStandard, u.Role)
}

func TestRegister_Validation(t *testing.T) {
	g, _ := newGuard(t)
	_, err := g.Register(context.Background(), nil, user.RegisterRequest{Username: "", Password: "longenough"})
	assert.ErrorIs(t, err, ErrUsernameMissing)
	_, err = g.Register(context.Background(), nil, user.RegisterRequest{Username: "bob", Password: "short"})
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestAuthenticate_Rejects(t *testing.T) {
	ctx := context.Background()
	g, tm := newGuard(t)

	_, err := g.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = g.Authenticate(ctx, "Bearer not-a-jwt")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// valid signature, unknown user
	ghost, _, err := tm.Generate(&user.User{ID: "ghost", Username: "ghost"})
	require.NoError(t, err)
	_, err = g.Authenticate(ctx, ghost)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// foreign secret
	other := NewTokenManager("other-secret", time.Minute, zap.NewNop())
	forged, _, err := other.Generate(&user.User{ID: "ghost"})
	require.NoError(t, err)
	_, err = g.Authenticate(ctx, forged)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokenManager_Expired(t *testing.T) {
	tm := NewTokenManager("s", time.Minute, zap.NewNop())
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := tm.Generate(&user.User{ID: "u1", Username: "u"})
	require.NoError(t, err)

	_, err = tm.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	g, _ := newGuard(t)
	u, err := g.Register(ctx, nil, user.RegisterRequest{Username: "bob", Password: "first-pass"})
	require.NoError(t, err)
	p := Principal{ID: u.ID, Username: u.Username}

	assert.ErrorIs(t, g.ChangePassword(ctx, p, "wrong-pass", "second-pass"), ErrBadCredentials)
	assert.ErrorIs(t, g.ChangePassword(ctx, p, "first-pass", "short"), ErrWeakPassword)
	require.NoError(t, g.ChangePassword(ctx, p, "first-pass", "second-pass"))

	_, err = g.Login(ctx, "bob", "first-pass")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = g.Login(ctx, "bob", "second-pass")
	assert.NoError(t, err)
}
