package auth

import (
	"context"
	"fmt"

	"opsdash/internal/db"
	"opsdash/internal/model"

	"golang.org/x/crypto/bcrypt"
)

// UserStore is the slice of the persistence layer the auth package needs.
// *db.Queries satisfies it.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	CreateUser(ctx context.Context, p db.CreateUserParams) (model.User, error)
	UpdateUser(ctx context.Context, id string, patch model.UserPatch, passwordHash *string) (bool, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

// Authenticator validates credentials and returns the matching identity.
// The two implementations (local password check, directory bind) fail
// with the same error set so callers cannot distinguish strategy
// internals.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (model.User, error)
}

// LocalAuthenticator checks credentials against bcrypt hashes in the
// user store.
type LocalAuthenticator struct {
	users UserStore
}

func NewLocalAuthenticator(users UserStore) *LocalAuthenticator {
	return &LocalAuthenticator{users: users}
}

func (a *LocalAuthenticator) Authenticate(ctx context.Context, username, password string) (model.User, error) {
	user, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		if db.IsNoRows(err) {
			return model.User{}, model.ErrInvalidCredentials
		}
		return model.User{}, fmt.Errorf("%w: %v", model.ErrAuthProvider, err)
	}

	if !user.IsActive {
		return model.User{}, model.ErrAccountDisabled
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.User{}, model.ErrInvalidCredentials
	}

	if err := a.users.UpdateLastLogin(ctx, user.ID); err != nil {
		return model.User{}, fmt.Errorf("%w: %v", model.ErrAuthProvider, err)
	}

	user.PasswordHash = ""
	return user, nil
}

// HashPassword produces a bcrypt hash at the default cost.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}
