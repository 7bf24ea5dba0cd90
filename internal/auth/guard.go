package auth

import (
	"context"
	"fmt"

	"opsdash/internal/db"
	"opsdash/internal/model"
)

// Guard derives allow/deny decisions from a token, a required role and
// optionally a target user.
type Guard struct {
	tokens *Tokens
	users  UserStore
}

func NewGuard(tokens *Tokens, users UserStore) *Guard {
	return &Guard{tokens: tokens, users: users}
}

// Resolve verifies the token and re-fetches the identity from the user
// store. The re-fetch is mandatory: it is what lets a role or
// active-status change take effect before token expiry without a
// revocation list.
func (g *Guard) Resolve(ctx context.Context, tokenString string) (model.User, error) {
	claims, err := g.tokens.Verify(tokenString)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %v", model.ErrUnauthenticated, err)
	}

	user, err := g.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if db.IsNoRows(err) {
			return model.User{}, model.ErrUnauthenticated
		}
		return model.User{}, err
	}

	if !user.IsActive {
		return model.User{}, model.ErrAccountDisabled
	}

	user.PasswordHash = ""
	return user, nil
}

// RequireRole denies unless the actor's role clears the required role.
func (g *Guard) RequireRole(actor model.User, required model.Role) error {
	if !actor.Role.CanAccess(required) {
		return fmt.Errorf("%w: %s role required", model.ErrForbidden, required)
	}
	return nil
}

// CanModify reports whether the actor may modify the target: admin
// always, self always, leader only member-role targets.
func (g *Guard) CanModify(actor, target model.User) bool {
	if actor.Role == model.RoleAdmin || actor.ID == target.ID {
		return true
	}
	return actor.Role.CanModifyRole(target.Role)
}

// CanView reports whether the actor may view the target: admin always,
// self always, leader only member-role targets.
func (g *Guard) CanView(actor, target model.User) bool {
	if actor.Role == model.RoleAdmin || actor.ID == target.ID {
		return true
	}
	return actor.Role == model.RoleLeader && target.Role == model.RoleMember
}
