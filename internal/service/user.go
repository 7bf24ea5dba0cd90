package service

import (
	"context"
	"fmt"

	"opsdash/internal/auth"
	"opsdash/internal/db"
	"opsdash/internal/model"

	"github.com/oklog/ulid/v2"
)

// UserStore is the persistence surface of the user service.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	CreateUser(ctx context.Context, p db.CreateUserParams) (model.User, error)
	UpdateUser(ctx context.Context, id string, patch model.UserPatch, passwordHash *string) (bool, error)
	DeleteUser(ctx context.Context, id string) (bool, error)
	ListUsers(ctx context.Context, p db.ListUsersParams) ([]model.User, error)
	CountUsersByRole(ctx context.Context, role model.Role) (int64, error)
}

type UserService struct {
	users UserStore
}

func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Role     model.Role
	FullName string
}

func (s *UserService) Create(ctx context.Context, in CreateUserInput) (model.User, error) {
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return model.User{}, fmt.Errorf("%w: username, email and password are required", model.ErrValidation)
	}
	if in.Role == "" {
		in.Role = model.RoleMember
	}
	if !in.Role.Valid() {
		return model.User{}, fmt.Errorf("%w: unknown role %q", model.ErrValidation, in.Role)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return model.User{}, err
	}

	user, err := s.users.CreateUser(ctx, db.CreateUserParams{
		ID:           ulid.Make().String(),
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		Role:         in.Role,
		PasswordHash: hash,
	})
	if err != nil {
		return model.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return model.User{}, fmt.Errorf("%w: user %s", model.ErrNotFound, id)
		}
		return model.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *UserService) List(ctx context.Context, p db.ListUsersParams) ([]model.User, error) {
	if p.Limit < 1 {
		p.Limit = 100
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Skip < 0 {
		p.Skip = 0
	}

	users, err := s.users.ListUsers(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// Update applies a patch. Role strings are validated; a password, when
// present, is re-hashed.
func (s *UserService) Update(ctx context.Context, id string, patch model.UserPatch) (model.User, error) {
	if patch.Role != nil && !patch.Role.Valid() {
		return model.User{}, fmt.Errorf("%w: unknown role %q", model.ErrValidation, *patch.Role)
	}

	var passwordHash *string
	if patch.Password != nil {
		if *patch.Password == "" {
			return model.User{}, fmt.Errorf("%w: password must not be empty", model.ErrValidation)
		}
		hash, err := auth.HashPassword(*patch.Password)
		if err != nil {
			return model.User{}, err
		}
		passwordHash = &hash
	}

	ok, err := s.users.UpdateUser(ctx, id, patch, passwordHash)
	if err != nil {
		return model.User{}, err
	}
	if !ok {
		return model.User{}, fmt.Errorf("%w: user %s", model.ErrNotFound, id)
	}
	return s.Get(ctx, id)
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	ok, err := s.users.DeleteUser(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: user %s", model.ErrNotFound, id)
	}
	return nil
}

// EnsureDefaultAdmin creates the bootstrap admin account when no admin
// exists yet.
func (s *UserService) EnsureDefaultAdmin(ctx context.Context) (bool, error) {
	n, err := s.users.CountUsersByRole(ctx, model.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("failed to count admins: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	_, err = s.Create(ctx, CreateUserInput{
		Username: "admin",
		Email:    "admin@dashboard.local",
		Password: "admin123",
		Role:     model.RoleAdmin,
		FullName: "System Administrator",
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
