package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"opsdash/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const requestColumns = `r.id, r.user_id, r.function_id, r.parameters, r.status,
	r.reviewed_by, r.reviewed_at, r.rejection_reason,
	r.execution_result, r.execution_time_ms, r.error_message,
	r.created_at, r.updated_at`

const requestReturning = `id, user_id, function_id, parameters, status,
	reviewed_by, reviewed_at, rejection_reason,
	execution_result, execution_time_ms, error_message,
	created_at, updated_at`

// detailColumns adds best-effort joins against users and functions. A
// dangling reference resolves to a placeholder instead of failing the row.
const detailColumns = requestColumns + `,
	COALESCE(u.username, 'Unknown') AS user_username,
	COALESCE(u.email, '') AS user_email,
	COALESCE(f.name, 'Unknown Function') AS function_name,
	COALESCE(f.description, '') AS function_description,
	COALESCE(rev.username, '') AS reviewer_username`

const detailJoins = `
	LEFT JOIN users u ON u.id = r.user_id
	LEFT JOIN functions f ON f.id = r.function_id
	LEFT JOIN users rev ON rev.id = r.reviewed_by`

func scanRequest(row pgx.Row) (model.Request, error) {
	var r model.Request
	err := row.Scan(&r.ID, &r.UserID, &r.FunctionID, &r.Parameters, &r.Status,
		&r.ReviewedBy, &r.ReviewedAt, &r.RejectionReason,
		&r.ExecutionResult, &r.ExecutionTimeMS, &r.ErrorMessage,
		&r.CreatedAt, &r.UpdatedAt)
	if r.Parameters == nil {
		r.Parameters = map[string]interface{}{}
	}
	return r, err
}

func scanRequestDetail(row pgx.Row) (model.RequestDetail, error) {
	var d model.RequestDetail
	err := row.Scan(&d.ID, &d.UserID, &d.FunctionID, &d.Parameters, &d.Status,
		&d.ReviewedBy, &d.ReviewedAt, &d.RejectionReason,
		&d.ExecutionResult, &d.ExecutionTimeMS, &d.ErrorMessage,
		&d.CreatedAt, &d.UpdatedAt,
		&d.UserUsername, &d.UserEmail, &d.FunctionName, &d.FunctionDescription,
		&d.ReviewerUsername)
	if d.Parameters == nil {
		d.Parameters = map[string]interface{}{}
	}
	return d, err
}

type CreateRequestParams struct {
	ID         string
	UserID     string
	FunctionID string
	Parameters map[string]interface{}
}

func (q *Queries) CreateRequest(ctx context.Context, p CreateRequestParams) (model.Request, error) {
	params := p.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	return scanRequest(q.Pool.QueryRow(ctx,
		`INSERT INTO requests (id, user_id, function_id, parameters, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING `+requestReturning,
		p.ID, p.UserID, p.FunctionID, params,
	))
}

func (q *Queries) GetRequestByID(ctx context.Context, id string) (model.Request, error) {
	return scanRequest(q.Pool.QueryRow(ctx,
		"SELECT "+requestColumns+" FROM requests r WHERE r.id = $1", id))
}

func (q *Queries) GetRequestDetailByID(ctx context.Context, id string) (model.RequestDetail, error) {
	return scanRequestDetail(q.Pool.QueryRow(ctx,
		"SELECT "+detailColumns+" FROM requests r"+detailJoins+" WHERE r.id = $1", id))
}

// ApproveRequest transitions pending → approved. The status predicate is
// the concurrency guard: of two racing approvals exactly one sees
// RowsAffected() == 1.
func (q *Queries) ApproveRequest(ctx context.Context, id, reviewerID string) (bool, error) {
	tag, err := q.Pool.Exec(ctx,
		`UPDATE requests
		SET status = 'approved', reviewed_by = $2, reviewed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, reviewerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RejectRequest transitions pending → rejected with a reason.
func (q *Queries) RejectRequest(ctx context.Context, id, reviewerID, reason string) (bool, error) {
	tag, err := q.Pool.Exec(ctx,
		`UPDATE requests
		SET status = 'rejected', reviewed_by = $2, reviewed_at = NOW(),
			rejection_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, reviewerID, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteRequest transitions approved → completed with the execution
// outcome.
func (q *Queries) CompleteRequest(ctx context.Context, id string, result map[string]interface{}, elapsedMS int64) (bool, error) {
	tag, err := q.Pool.Exec(ctx,
		`UPDATE requests
		SET status = 'completed', execution_result = $2, execution_time_ms = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'approved'`,
		id, result, elapsedMS)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FailRequest transitions approved → failed with an error message.
func (q *Queries) FailRequest(ctx context.Context, id, errorMessage string) (bool, error) {
	tag, err := q.Pool.Exec(ctx,
		`UPDATE requests
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'approved'`,
		id, errorMessage)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteRequest physically removes a request while it is still pending.
// A non-empty ownerID additionally constrains deletion to that owner.
func (q *Queries) DeleteRequest(ctx context.Context, id, ownerID string) (bool, error) {
	var tag pgconn.CommandTag
	var err error
	if ownerID != "" {
		tag, err = q.Pool.Exec(ctx,
			"DELETE FROM requests WHERE id = $1 AND status = 'pending' AND user_id = $2",
			id, ownerID)
	} else {
		tag, err = q.Pool.Exec(ctx,
			"DELETE FROM requests WHERE id = $1 AND status = 'pending'", id)
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) ListRequests(ctx context.Context, f model.RequestFilter) ([]model.RequestDetail, error) {
	where := []string{"TRUE"}
	args := []interface{}{}

	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("r.user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if f.DateFrom != nil {
		args = append(args, *f.DateFrom)
		where = append(where, fmt.Sprintf("r.created_at >= $%d", len(args)))
	}
	if f.DateTo != nil {
		args = append(args, *f.DateTo)
		where = append(where, fmt.Sprintf("r.created_at <= $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(COALESCE(u.username, 'Unknown') ILIKE $%d OR COALESCE(f.name, 'Unknown Function') ILIKE $%d)", n, n))
	}

	args = append(args, f.Limit, f.Skip)
	query := fmt.Sprintf(
		"SELECT "+detailColumns+" FROM requests r"+detailJoins+`
		WHERE %s
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := q.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]model.RequestDetail, 0)
	for rows.Next() {
		d, err := scanRequestDetail(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, d)
	}
	return requests, rows.Err()
}

type RequestStats struct {
	TotalRequests   int64
	PendingRequests int64
	CompletedToday  int64
	MyPending       int64
}

// GetRequestStats aggregates the dashboard counters in one round trip.
func (q *Queries) GetRequestStats(ctx context.Context, userID string) (RequestStats, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	var s RequestStats
	err := q.Pool.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'completed' AND updated_at >= $2),
			COUNT(*) FILTER (WHERE status = 'pending' AND user_id = $1)
		FROM requests`,
		userID, today,
	).Scan(&s.TotalRequests, &s.PendingRequests, &s.CompletedToday, &s.MyPending)
	return s, err
}

func (q *Queries) CountRequestsByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := q.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM requests WHERE user_id = $1", userID).Scan(&n)
	return n, err
}
