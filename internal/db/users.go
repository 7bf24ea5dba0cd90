package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"opsdash/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, username, email, full_name, role, is_active, password_hash, created_at, last_login`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	var fullName *string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &fullName, &u.Role, &u.IsActive,
		&u.PasswordHash, &u.CreatedAt, &u.LastLogin)
	if fullName != nil {
		u.FullName = *fullName
	}
	return u, err
}

func (q *Queries) GetUserByID(ctx context.Context, id string) (model.User, error) {
	return scanUser(q.Pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return scanUser(q.Pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1", username))
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(q.Pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", email))
}

type CreateUserParams struct {
	ID           string
	Username     string
	Email        string
	FullName     string
	Role         model.Role
	PasswordHash string
}

func (q *Queries) CreateUser(ctx context.Context, p CreateUserParams) (model.User, error) {
	u, err := scanUser(q.Pool.QueryRow(ctx,
		`INSERT INTO users (id, username, email, full_name, role, is_active, password_hash)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING `+userColumns,
		p.ID, p.Username, p.Email, nullIfEmpty(p.FullName), p.Role, p.PasswordHash,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			field := "user"
			if strings.Contains(pgErr.ConstraintName, "username") {
				field = "username"
			} else if strings.Contains(pgErr.ConstraintName, "email") {
				field = "email"
			}
			return model.User{}, fmt.Errorf("%w: %s already exists", model.ErrValidation, field)
		}
		return model.User{}, err
	}
	return u, nil
}

// UpdateUser applies a patch built from pointer fields; nil fields are
// left untouched. Returns the affected row count.
func (q *Queries) UpdateUser(ctx context.Context, id string, patch model.UserPatch, passwordHash *string) (bool, error) {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}

	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.FullName != nil {
		add("full_name", nullIfEmpty(*patch.FullName))
	}
	if patch.Role != nil {
		add("role", *patch.Role)
	}
	if patch.IsActive != nil {
		add("is_active", *patch.IsActive)
	}
	if passwordHash != nil {
		add("password_hash", *passwordHash)
	}

	tag, err := q.Pool.Exec(ctx,
		"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = $1", args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, fmt.Errorf("%w: email already exists", model.ErrValidation)
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := q.Pool.Exec(ctx,
		"UPDATE users SET last_login = NOW() WHERE id = $1", id)
	return err
}

func (q *Queries) DeleteUser(ctx context.Context, id string) (bool, error) {
	tag, err := q.Pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type ListUsersParams struct {
	Role     model.Role // empty means all
	IsActive *bool
	Search   string
	Skip     int
	Limit    int
}

func (q *Queries) ListUsers(ctx context.Context, p ListUsersParams) ([]model.User, error) {
	where := []string{"TRUE"}
	args := []interface{}{}

	if p.Role != "" {
		args = append(args, p.Role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if p.IsActive != nil {
		args = append(args, *p.IsActive)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if p.Search != "" {
		args = append(args, "%"+p.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(username ILIKE $%d OR email ILIKE $%d OR COALESCE(full_name, '') ILIKE $%d)", n, n, n))
	}

	args = append(args, p.Limit, p.Skip)
	query := fmt.Sprintf(
		"SELECT "+userColumns+` FROM users
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := q.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := q.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}

func (q *Queries) CountUsersByRole(ctx context.Context, role model.Role) (int64, error) {
	var n int64
	err := q.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE role = $1", role).Scan(&n)
	return n, err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var ErrNoRows = pgx.ErrNoRows

// IsNoRows reports whether err is the pgx no-rows sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
