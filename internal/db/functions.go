package db

import (
	"context"
	"fmt"
	"strings"

	"opsdash/internal/model"

	"github.com/jackc/pgx/v5"
)

const functionColumns = `id, name, description, api_endpoint, http_method, min_role,
	required_fields, url_parameters, request_headers, timeout, is_active, created_at, updated_at`

func scanFunction(row pgx.Row) (model.Function, error) {
	var f model.Function
	var description *string
	err := row.Scan(&f.ID, &f.Name, &description, &f.APIEndpoint, &f.HTTPMethod, &f.MinRole,
		&f.RequiredFields, &f.URLParameters, &f.RequestHeaders, &f.Timeout, &f.IsActive,
		&f.CreatedAt, &f.UpdatedAt)
	if description != nil {
		f.Description = *description
	}
	if f.RequiredFields == nil {
		f.RequiredFields = []model.RequiredField{}
	}
	if f.URLParameters == nil {
		f.URLParameters = []string{}
	}
	if f.RequestHeaders == nil {
		f.RequestHeaders = map[string]string{}
	}
	return f, err
}

func (q *Queries) GetFunctionByID(ctx context.Context, id string) (model.Function, error) {
	return scanFunction(q.Pool.QueryRow(ctx,
		"SELECT "+functionColumns+" FROM functions WHERE id = $1", id))
}

type CreateFunctionParams struct {
	ID             string
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

func (q *Queries) CreateFunction(ctx context.Context, p CreateFunctionParams) (model.Function, error) {
	return scanFunction(q.Pool.QueryRow(ctx,
		`INSERT INTO functions (
			id, name, description, api_endpoint, http_method, min_role,
			required_fields, url_parameters, request_headers, timeout, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
		RETURNING `+functionColumns,
		p.ID, p.Name, nullIfEmpty(p.Description), p.APIEndpoint, p.HTTPMethod, p.MinRole,
		p.RequiredFields, p.URLParameters, p.RequestHeaders, p.Timeout,
	))
}

func (q *Queries) GetFunctionByName(ctx context.Context, name string) (model.Function, error) {
	return scanFunction(q.Pool.QueryRow(ctx,
		"SELECT "+functionColumns+" FROM functions WHERE name = $1", name))
}

// UpdateFunction applies a patch; nil fields stay untouched.
func (q *Queries) UpdateFunction(ctx context.Context, id string, patch model.FunctionPatch) (bool, error) {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}

	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Description != nil {
		add("description", nullIfEmpty(*patch.Description))
	}
	if patch.APIEndpoint != nil {
		add("api_endpoint", *patch.APIEndpoint)
	}
	if patch.HTTPMethod != nil {
		add("http_method", *patch.HTTPMethod)
	}
	if patch.MinRole != nil {
		add("min_role", *patch.MinRole)
	}
	if patch.RequiredFields != nil {
		add("required_fields", *patch.RequiredFields)
	}
	if patch.URLParameters != nil {
		add("url_parameters", *patch.URLParameters)
	}
	if patch.RequestHeaders != nil {
		add("request_headers", *patch.RequestHeaders)
	}
	if patch.Timeout != nil {
		add("timeout", *patch.Timeout)
	}
	if patch.IsActive != nil {
		add("is_active", *patch.IsActive)
	}

	tag, err := q.Pool.Exec(ctx,
		"UPDATE functions SET "+strings.Join(sets, ", ")+" WHERE id = $1", args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeactivateFunction soft-deletes: historical requests keep a valid
// reference, the function just stops being offered.
func (q *Queries) DeactivateFunction(ctx context.Context, id string) (bool, error) {
	tag, err := q.Pool.Exec(ctx,
		"UPDATE functions SET is_active = FALSE, updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type ListFunctionsParams struct {
	MinRole    model.Role // filter on the declared min_role; empty means all
	HTTPMethod string
	Search     string
	ActiveOnly bool
	Skip       int
	Limit      int
}

func (q *Queries) ListFunctions(ctx context.Context, p ListFunctionsParams) ([]model.Function, error) {
	where := []string{"TRUE"}
	args := []interface{}{}

	if p.ActiveOnly {
		where = append(where, "is_active = TRUE")
	}
	if p.MinRole != "" {
		args = append(args, p.MinRole)
		where = append(where, fmt.Sprintf("min_role = $%d", len(args)))
	}
	if p.HTTPMethod != "" {
		args = append(args, p.HTTPMethod)
		where = append(where, fmt.Sprintf("http_method = $%d", len(args)))
	}
	if p.Search != "" {
		args = append(args, "%"+p.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(name ILIKE $%d OR COALESCE(description, '') ILIKE $%d)", n, n))
	}

	args = append(args, p.Limit, p.Skip)
	query := fmt.Sprintf(
		"SELECT "+functionColumns+` FROM functions
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := q.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	functions := make([]model.Function, 0)
	for rows.Next() {
		f, err := scanFunction(rows)
		if err != nil {
			return nil, err
		}
		functions = append(functions, f)
	}
	return functions, rows.Err()
}

// ListFunctionsForRole returns active functions whose min_role the given
// role clears, newest first.
func (q *Queries) ListFunctionsForRole(ctx context.Context, role model.Role, limit int) ([]model.Function, error) {
	accessible := make([]string, 0, 3)
	for _, r := range []model.Role{model.RoleAdmin, model.RoleLeader, model.RoleMember} {
		if role.CanAccess(r) {
			accessible = append(accessible, string(r))
		}
	}
	if len(accessible) == 0 {
		return []model.Function{}, nil
	}

	rows, err := q.Pool.Query(ctx,
		"SELECT "+functionColumns+` FROM functions
		WHERE is_active = TRUE AND min_role = ANY($1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		accessible, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	functions := make([]model.Function, 0)
	for rows.Next() {
		f, err := scanFunction(rows)
		if err != nil {
			return nil, err
		}
		functions = append(functions, f)
	}
	return functions, rows.Err()
}

func (q *Queries) CountActiveFunctions(ctx context.Context) (int64, error) {
	var n int64
	err := q.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM functions WHERE is_active = TRUE").Scan(&n)
	return n, err
}
