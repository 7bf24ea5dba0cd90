package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"opsdash/internal/db"
	"opsdash/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFunctionStore struct {
	mu        sync.Mutex
	functions map[string]model.Function
}

func newFakeFunctionStore() *fakeFunctionStore {
	return &fakeFunctionStore{functions: make(map[string]model.Function)}
}

func (s *fakeFunctionStore) GetFunctionByID(ctx context.Context, id string) (model.Function, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn, ok := s.functions[id]
	if !ok {
		return model.Function{}, db.ErrNoRows
	}
	return fn, nil
}

func (s *fakeFunctionStore) GetFunctionByName(ctx context.Context, name string) (model.Function, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fn := range s.functions {
		if fn.Name == name {
			return fn, nil
		}
	}
	return model.Function{}, db.ErrNoRows
}

func (s *fakeFunctionStore) CreateFunction(ctx context.Context, p db.CreateFunctionParams) (model.Function, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	fn := model.Function{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		APIEndpoint:    p.APIEndpoint,
		HTTPMethod:     p.HTTPMethod,
		MinRole:        p.MinRole,
		RequiredFields: p.RequiredFields,
		URLParameters:  p.URLParameters,
		RequestHeaders: p.RequestHeaders,
		Timeout:        p.Timeout,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.functions[p.ID] = fn
	return fn, nil
}

func (s *fakeFunctionStore) UpdateFunction(ctx context.Context, id string, patch model.FunctionPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn, ok := s.functions[id]
	if !ok {
		return false, nil
	}
	if patch.Name != nil {
		fn.Name = *patch.Name
	}
	if patch.APIEndpoint != nil {
		fn.APIEndpoint = *patch.APIEndpoint
	}
	if patch.HTTPMethod != nil {
		fn.HTTPMethod = *patch.HTTPMethod
	}
	if patch.MinRole != nil {
		fn.MinRole = *patch.MinRole
	}
	if patch.Timeout != nil {
		fn.Timeout = *patch.Timeout
	}
	if patch.IsActive != nil {
		fn.IsActive = *patch.IsActive
	}
	fn.UpdatedAt = time.Now().UTC()
	s.functions[id] = fn
	return true, nil
}

func (s *fakeFunctionStore) DeactivateFunction(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn, ok := s.functions[id]
	if !ok || !fn.IsActive {
		return false, nil
	}
	fn.IsActive = false
	s.functions[id] = fn
	return true, nil
}

func (s *fakeFunctionStore) ListFunctions(ctx context.Context, p db.ListFunctionsParams) ([]model.Function, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Function
	for _, fn := range s.functions {
		if p.ActiveOnly && !fn.IsActive {
			continue
		}
		if p.MinRole != "" && fn.MinRole != p.MinRole {
			continue
		}
		out = append(out, fn)
	}
	return out, nil
}

func (s *fakeFunctionStore) ListFunctionsForRole(ctx context.Context, role model.Role, limit int) ([]model.Function, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Function
	for _, fn := range s.functions {
		if fn.IsActive && role.CanAccess(fn.MinRole) {
			out = append(out, fn)
		}
	}
	return out, nil
}

func TestFunctionCreate_Defaults(t *testing.T) {
	svc := NewFunctionService(newFakeFunctionStore())

	fn, err := svc.Create(context.Background(), CreateFunctionInput{
		Name:        "Restart Service",
		APIEndpoint: "https://internal/restart",
	})
	require.NoError(t, err)
	assert.Equal(t, "POST", fn.HTTPMethod)
	assert.Equal(t, model.RoleMember, fn.MinRole)
	assert.Equal(t, 30, fn.Timeout)
	assert.True(t, fn.IsActive)
}

func TestFunctionCreate_Invalid(t *testing.T) {
	svc := NewFunctionService(newFakeFunctionStore())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateFunctionInput{Name: "x"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.Create(ctx, CreateFunctionInput{Name: "x", APIEndpoint: "https://e", HTTPMethod: "FETCH"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.Create(ctx, CreateFunctionInput{Name: "x", APIEndpoint: "https://e", Timeout: 500})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.Create(ctx, CreateFunctionInput{Name: "x", APIEndpoint: "https://e", MinRole: "root"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestFunctionList_CanExecuteAnnotation(t *testing.T) {
	store := newFakeFunctionStore()
	svc := NewFunctionService(store)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateFunctionInput{Name: "member-fn", APIEndpoint: "https://e", MinRole: model.RoleMember})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateFunctionInput{Name: "admin-fn", APIEndpoint: "https://e", MinRole: model.RoleAdmin})
	require.NoError(t, err)

	list, err := svc.List(ctx, member, db.ListFunctionsParams{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, fn := range list {
		require.NotNil(t, fn.CanExecute)
		if fn.MinRole == model.RoleAdmin {
			assert.False(t, *fn.CanExecute)
		} else {
			assert.True(t, *fn.CanExecute)
		}
	}
}

func TestFunctionList_HidesInactive(t *testing.T) {
	store := newFakeFunctionStore()
	svc := NewFunctionService(store)
	ctx := context.Background()

	fn, err := svc.Create(ctx, CreateFunctionInput{Name: "fn", APIEndpoint: "https://e"})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, fn.ID))

	list, err := svc.List(ctx, admin, db.ListFunctionsParams{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFunctionListForActor(t *testing.T) {
	store := newFakeFunctionStore()
	svc := NewFunctionService(store)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateFunctionInput{Name: "member-fn", APIEndpoint: "https://e", MinRole: model.RoleMember})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateFunctionInput{Name: "leader-fn", APIEndpoint: "https://e", MinRole: model.RoleLeader})
	require.NoError(t, err)

	list, err := svc.ListForActor(ctx, member, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "member-fn", list[0].Name)

	list, err = svc.ListForActor(ctx, admin, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestFunctionDeactivate_NotFound(t *testing.T) {
	svc := NewFunctionService(newFakeFunctionStore())

	err := svc.Deactivate(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSeedSamples_Idempotent(t *testing.T) {
	store := newFakeFunctionStore()
	svc := NewFunctionService(store)
	ctx := context.Background()

	require.NoError(t, svc.SeedSamples(ctx))
	assert.Len(t, store.functions, 3)

	require.NoError(t, svc.SeedSamples(ctx))
	assert.Len(t, store.functions, 3)
}
