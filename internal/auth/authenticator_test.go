package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"opsdash/internal/db"
	"opsdash/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]model.User // keyed by ID
}

func newFakeUserStore(users ...model.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]model.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetUserByID(ctx context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, db.ErrNoRows
	}
	return u, nil
}

func (s *fakeUserStore) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, db.ErrNoRows
}

func (s *fakeUserStore) CreateUser(ctx context.Context, p db.CreateUserParams) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := model.User{
		ID:           p.ID,
		Username:     p.Username,
		Email:        p.Email,
		FullName:     p.FullName,
		Role:         p.Role,
		PasswordHash: p.PasswordHash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[p.ID] = u
	return u, nil
}

func (s *fakeUserStore) UpdateUser(ctx context.Context, id string, patch model.UserPatch, passwordHash *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return false, nil
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.FullName != nil {
		u.FullName = *patch.FullName
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.IsActive != nil {
		u.IsActive = *patch.IsActive
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	s.users[id] = u
	return true, nil
}

func (s *fakeUserStore) UpdateLastLogin(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		now := time.Now().UTC()
		u.LastLogin = &now
		s.users[id] = u
	}
	return nil
}

func seedUser(t *testing.T, password string, mutate func(*model.User)) model.User {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	u := model.User{
		ID:           "u-1",
		Username:     "alice",
		Email:        "alice@example.com",
		Role:         model.RoleMember,
		IsActive:     true,
		PasswordHash: hash,
	}
	if mutate != nil {
		mutate(&u)
	}
	return u
}

func TestLocalAuthenticate(t *testing.T) {
	user := seedUser(t, "s3cret", nil)
	store := newFakeUserStore(user)
	a := NewLocalAuthenticator(store)

	got, err := a.Authenticate(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)
	assert.Empty(t, got.PasswordHash)

	stored, _ := store.GetUserByID(context.Background(), "u-1")
	assert.NotNil(t, stored.LastLogin)
}

func TestLocalAuthenticate_WrongPassword(t *testing.T) {
	store := newFakeUserStore(seedUser(t, "s3cret", nil))
	a := NewLocalAuthenticator(store)

	_, err := a.Authenticate(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestLocalAuthenticate_UnknownUser(t *testing.T) {
	store := newFakeUserStore()
	a := NewLocalAuthenticator(store)

	_, err := a.Authenticate(context.Background(), "nobody", "pw")
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestLocalAuthenticate_DisabledAccount(t *testing.T) {
	store := newFakeUserStore(seedUser(t, "s3cret", func(u *model.User) { u.IsActive = false }))
	a := NewLocalAuthenticator(store)

	_, err := a.Authenticate(context.Background(), "alice", "s3cret")
	assert.ErrorIs(t, err, model.ErrAccountDisabled)
}

func TestGuardResolve_PicksUpRoleChange(t *testing.T) {
	user := seedUser(t, "s3cret", nil)
	store := newFakeUserStore(user)
	tokens := NewTokens("test-secret", time.Minute)
	guard := NewGuard(tokens, store)

	token, err := tokens.Issue(user)
	require.NoError(t, err)

	promoted := model.RoleAdmin
	_, err = store.UpdateUser(context.Background(), user.ID, model.UserPatch{Role: &promoted}, nil)
	require.NoError(t, err)

	resolved, err := guard.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, resolved.Role)
}

func TestGuardResolve_DeactivatedDenied(t *testing.T) {
	user := seedUser(t, "s3cret", nil)
	store := newFakeUserStore(user)
	tokens := NewTokens("test-secret", time.Minute)
	guard := NewGuard(tokens, store)

	token, err := tokens.Issue(user)
	require.NoError(t, err)

	inactive := false
	_, err = store.UpdateUser(context.Background(), user.ID, model.UserPatch{IsActive: &inactive}, nil)
	require.NoError(t, err)

	_, err = guard.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, model.ErrAccountDisabled)
}

func TestGuardResolve_DeletedUserDenied(t *testing.T) {
	user := seedUser(t, "s3cret", nil)
	store := newFakeUserStore(user)
	tokens := NewTokens("test-secret", time.Minute)
	guard := NewGuard(tokens, store)

	token, err := tokens.Issue(user)
	require.NoError(t, err)

	store.mu.Lock()
	delete(store.users, user.ID)
	store.mu.Unlock()

	_, err = guard.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestMiddleware(t *testing.T) {
	user := seedUser(t, "s3cret", nil)
	store := newFakeUserStore(user)
	tokens := NewTokens("test-secret", time.Minute)
	guard := NewGuard(tokens, store)

	handler := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := Identity(r.Context())
		require.True(t, ok)
		assert.Equal(t, "alice", actor.Username)
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := tokens.Issue(user)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// No token
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Token in query parameter
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?token="+token, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRoleMiddleware(t *testing.T) {
	tokens := NewTokens("test-secret", time.Minute)
	guard := NewGuard(tokens, newFakeUserStore())

	handler := guard.RoleMiddleware(model.RoleLeader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	run := func(role model.Role) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithIdentity(req.Context(), model.User{ID: "u", Role: role}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, run(model.RoleAdmin))
	assert.Equal(t, http.StatusNoContent, run(model.RoleLeader))
	assert.Equal(t, http.StatusForbidden, run(model.RoleMember))
}
