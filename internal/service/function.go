package service

import (
	"context"
	"fmt"

	"opsdash/internal/db"
	"opsdash/internal/model"

	"github.com/oklog/ulid/v2"
)

// FunctionAdminStore extends the engine's lookup capability with the
// catalog management queries.
type FunctionAdminStore interface {
	FunctionStore
	GetFunctionByName(ctx context.Context, name string) (model.Function, error)
	CreateFunction(ctx context.Context, p db.CreateFunctionParams) (model.Function, error)
	UpdateFunction(ctx context.Context, id string, patch model.FunctionPatch) (bool, error)
	DeactivateFunction(ctx context.Context, id string) (bool, error)
	ListFunctions(ctx context.Context, p db.ListFunctionsParams) ([]model.Function, error)
	ListFunctionsForRole(ctx context.Context, role model.Role, limit int) ([]model.Function, error)
}

type FunctionService struct {
	functions FunctionAdminStore
}

func NewFunctionService(functions FunctionAdminStore) *FunctionService {
	return &FunctionService{functions: functions}
}

type CreateFunctionInput struct {
	Name           string
	Description    string
	APIEndpoint    string
	HTTPMethod     string
	MinRole        model.Role
	RequiredFields []model.RequiredField
	URLParameters  []string
	RequestHeaders map[string]string
	Timeout        int
}

func validHTTPMethod(m string) bool {
	switch m {
	case "GET", "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

func (s *FunctionService) Create(ctx context.Context, in CreateFunctionInput) (model.Function, error) {
	if in.Name == "" || in.APIEndpoint == "" {
		return model.Function{}, fmt.Errorf("%w: name and api_endpoint are required", model.ErrValidation)
	}
	if in.HTTPMethod == "" {
		in.HTTPMethod = "POST"
	}
	if !validHTTPMethod(in.HTTPMethod) {
		return model.Function{}, fmt.Errorf("%w: unsupported HTTP method %q", model.ErrValidation, in.HTTPMethod)
	}
	if in.MinRole == "" {
		in.MinRole = model.RoleMember
	}
	if !in.MinRole.Valid() {
		return model.Function{}, fmt.Errorf("%w: unknown role %q", model.ErrValidation, in.MinRole)
	}
	if in.Timeout == 0 {
		in.Timeout = 30
	}
	if in.Timeout < 1 || in.Timeout > 300 {
		return model.Function{}, fmt.Errorf("%w: timeout must be between 1 and 300 seconds", model.ErrValidation)
	}

	fn, err := s.functions.CreateFunction(ctx, db.CreateFunctionParams{
		ID:             ulid.Make().String(),
		Name:           in.Name,
		Description:    in.Description,
		APIEndpoint:    in.APIEndpoint,
		HTTPMethod:     in.HTTPMethod,
		MinRole:        in.MinRole,
		RequiredFields: in.RequiredFields,
		URLParameters:  in.URLParameters,
		RequestHeaders: in.RequestHeaders,
		Timeout:        in.Timeout,
	})
	if err != nil {
		return model.Function{}, fmt.Errorf("failed to create function: %w", err)
	}
	return fn, nil
}

// Get returns one function, annotated with whether the actor may
// execute it.
func (s *FunctionService) Get(ctx context.Context, actor model.User, id string) (model.Function, error) {
	fn, err := s.functions.GetFunctionByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Function{}, fmt.Errorf("%w: function %s", model.ErrNotFound, id)
		}
		return model.Function{}, fmt.Errorf("failed to load function: %w", err)
	}
	canExec := actor.Role.CanAccess(fn.MinRole)
	fn.CanExecute = &canExec
	return fn, nil
}

// List returns active functions matching the filter, each annotated
// with can_execute for the actor.
func (s *FunctionService) List(ctx context.Context, actor model.User, p db.ListFunctionsParams) ([]model.Function, error) {
	if p.Limit < 1 {
		p.Limit = 100
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	p.ActiveOnly = true

	functions, err := s.functions.ListFunctions(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list functions: %w", err)
	}
	for i := range functions {
		canExec := actor.Role.CanAccess(functions[i].MinRole)
		functions[i].CanExecute = &canExec
	}
	return functions, nil
}

// ListForActor returns only the functions the actor's role can execute.
func (s *FunctionService) ListForActor(ctx context.Context, actor model.User, limit int) ([]model.Function, error) {
	if limit < 1 {
		limit = 10
	}
	functions, err := s.functions.ListFunctionsForRole(ctx, actor.Role, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list functions: %w", err)
	}
	canExec := true
	for i := range functions {
		functions[i].CanExecute = &canExec
	}
	return functions, nil
}

func (s *FunctionService) Update(ctx context.Context, id string, patch model.FunctionPatch) (model.Function, error) {
	if patch.MinRole != nil && !patch.MinRole.Valid() {
		return model.Function{}, fmt.Errorf("%w: unknown role %q", model.ErrValidation, *patch.MinRole)
	}
	if patch.HTTPMethod != nil && !validHTTPMethod(*patch.HTTPMethod) {
		return model.Function{}, fmt.Errorf("%w: unsupported HTTP method %q", model.ErrValidation, *patch.HTTPMethod)
	}
	if patch.Timeout != nil && (*patch.Timeout < 1 || *patch.Timeout > 300) {
		return model.Function{}, fmt.Errorf("%w: timeout must be between 1 and 300 seconds", model.ErrValidation)
	}

	ok, err := s.functions.UpdateFunction(ctx, id, patch)
	if err != nil {
		return model.Function{}, fmt.Errorf("failed to update function: %w", err)
	}
	if !ok {
		return model.Function{}, fmt.Errorf("%w: function %s", model.ErrNotFound, id)
	}

	fn, err := s.functions.GetFunctionByID(ctx, id)
	if err != nil {
		return model.Function{}, fmt.Errorf("failed to load function: %w", err)
	}
	return fn, nil
}

// Deactivate soft-deletes so historical requests keep a valid reference.
func (s *FunctionService) Deactivate(ctx context.Context, id string) error {
	ok, err := s.functions.DeactivateFunction(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate function: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: function %s", model.ErrNotFound, id)
	}
	return nil
}

// SeedSamples creates the bundled demo functions when absent.
func (s *FunctionService) SeedSamples(ctx context.Context) error {
	samples := []CreateFunctionInput{
		{
			Name:        "System Health Check",
			Description: "Check the overall health of the system",
			APIEndpoint: "http://localhost:8000/health",
			HTTPMethod:  "GET",
			MinRole:     model.RoleMember,
			Timeout:     10,
		},
		{
			Name:        "User Count Report",
			Description: "Generate a report of total users in the system",
			APIEndpoint: "http://localhost:8000/api/reports/users",
			HTTPMethod:  "GET",
			MinRole:     model.RoleLeader,
			Timeout:     30,
		},
		{
			Name:        "System Backup",
			Description: "Initiate a system backup process",
			APIEndpoint: "http://localhost:8000/api/admin/backup",
			HTTPMethod:  "POST",
			MinRole:     model.RoleAdmin,
			RequiredFields: []model.RequiredField{
				{Name: "backup_type", Type: "string", Required: true, Description: "Type of backup (full, incremental)"},
			},
			Timeout: 300,
		},
	}

	for _, sample := range samples {
		_, err := s.functions.GetFunctionByName(ctx, sample.Name)
		if err == nil {
			continue
		}
		if !db.IsNoRows(err) {
			return fmt.Errorf("failed to check sample function: %w", err)
		}
		if _, err := s.Create(ctx, sample); err != nil {
			return err
		}
	}
	return nil
}
