package service

import (
	"context"
	"fmt"
	"strings"

	"opsdash/internal/db"
	"opsdash/internal/model"
	"opsdash/internal/schema"

	"github.com/oklog/ulid/v2"
)

// RequestStore is the persistence surface of the workflow engine.
// *db.Queries satisfies it; tests use an in-memory fake with the same
// check-and-set semantics.
type RequestStore interface {
	CreateRequest(ctx context.Context, p db.CreateRequestParams) (model.Request, error)
	GetRequestByID(ctx context.Context, id string) (model.Request, error)
	GetRequestDetailByID(ctx context.Context, id string) (model.RequestDetail, error)
	ApproveRequest(ctx context.Context, id, reviewerID string) (bool, error)
	RejectRequest(ctx context.Context, id, reviewerID, reason string) (bool, error)
	CompleteRequest(ctx context.Context, id string, result map[string]interface{}, elapsedMS int64) (bool, error)
	FailRequest(ctx context.Context, id, errorMessage string) (bool, error)
	DeleteRequest(ctx context.Context, id, ownerID string) (bool, error)
	ListRequests(ctx context.Context, f model.RequestFilter) ([]model.RequestDetail, error)
}

// FunctionStore is the function-lookup capability the engine consumes.
type FunctionStore interface {
	GetFunctionByID(ctx context.Context, id string) (model.Function, error)
}

// EventBus publishes request lifecycle events. Publishing is
// best-effort; a bus failure never fails the workflow operation.
type EventBus interface {
	PublishRequest(requestID string, event map[string]interface{}) error
	PublishActivity(event map[string]interface{}) error
}

// ExecutionQueue schedules background execution of an approved request.
type ExecutionQueue interface {
	EnqueueExecution(requestID string) error
}

// RequestService is the workflow engine governing a function-execution
// request from creation through approval, rejection, execution and
// cancellation. Status transitions are monotonic; the store's
// check-and-set queries arbitrate concurrent transitions.
type RequestService struct {
	requests  RequestStore
	functions FunctionStore
	checker   *schema.Checker
	bus       EventBus
	exec      ExecutionQueue
}

func NewRequestService(requests RequestStore, functions FunctionStore, checker *schema.Checker, bus EventBus) *RequestService {
	return &RequestService{
		requests:  requests,
		functions: functions,
		checker:   checker,
		bus:       bus,
	}
}

// SetExecutionQueue wires the background executor, when one is running.
func (s *RequestService) SetExecutionQueue(q ExecutionQueue) {
	s.exec = q
}

// Create submits a new request in pending status. The function must
// exist, be active, and the actor's role must clear its min_role;
// parameters must satisfy the function's declared fields.
func (s *RequestService) Create(ctx context.Context, actor model.User, functionID string, parameters map[string]interface{}) (model.Request, error) {
	fn, err := s.functions.GetFunctionByID(ctx, functionID)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Request{}, fmt.Errorf("%w: function %s", model.ErrNotFound, functionID)
		}
		return model.Request{}, fmt.Errorf("failed to load function: %w", err)
	}

	if !fn.IsActive {
		return model.Request{}, fmt.Errorf("%w: function is not active", model.ErrValidation)
	}
	if !actor.Role.CanAccess(fn.MinRole) {
		return model.Request{}, fmt.Errorf("%w: insufficient permissions to execute this function", model.ErrForbidden)
	}
	if err := s.checker.Validate(fn, parameters); err != nil {
		return model.Request{}, err
	}

	req, err := s.requests.CreateRequest(ctx, db.CreateRequestParams{
		ID:         ulid.Make().String(),
		UserID:     actor.ID,
		FunctionID: functionID,
		Parameters: parameters,
	})
	if err != nil {
		return model.Request{}, fmt.Errorf("failed to create request: %w", err)
	}

	_ = s.bus.PublishRequest(req.ID, map[string]interface{}{
		"type":      "request.created",
		"requestId": req.ID,
		"userId":    actor.ID,
	})
	_ = s.bus.PublishActivity(map[string]interface{}{
		"type":         "request.created",
		"requestId":    req.ID,
		"functionName": fn.Name,
		"username":     actor.Username,
	})

	return req, nil
}

// Approve transitions a pending request to approved and schedules its
// execution. Exactly one of two concurrent approvals succeeds; the loser
// gets ErrInvalidStateTransition with the current status.
func (s *RequestService) Approve(ctx context.Context, requestID, reviewerID string) (model.RequestDetail, error) {
	ok, err := s.requests.ApproveRequest(ctx, requestID, reviewerID)
	if err != nil {
		return model.RequestDetail{}, fmt.Errorf("failed to approve request: %w", err)
	}
	if !ok {
		return model.RequestDetail{}, s.transitionConflict(ctx, requestID, "approve")
	}

	if s.exec != nil {
		_ = s.exec.EnqueueExecution(requestID)
	}

	_ = s.bus.PublishRequest(requestID, map[string]interface{}{
		"type":      "request.approved",
		"requestId": requestID,
		"reviewer":  reviewerID,
	})
	_ = s.bus.PublishActivity(map[string]interface{}{
		"type":      "request.approved",
		"requestId": requestID,
	})

	return s.detail(ctx, requestID)
}

// Reject transitions a pending request to rejected. A non-empty reason
// is required.
func (s *RequestService) Reject(ctx context.Context, requestID, reviewerID, reason string) (model.RequestDetail, error) {
	if strings.TrimSpace(reason) == "" {
		return model.RequestDetail{}, fmt.Errorf("%w: rejection reason is required", model.ErrValidation)
	}

	ok, err := s.requests.RejectRequest(ctx, requestID, reviewerID, reason)
	if err != nil {
		return model.RequestDetail{}, fmt.Errorf("failed to reject request: %w", err)
	}
	if !ok {
		return model.RequestDetail{}, s.transitionConflict(ctx, requestID, "reject")
	}

	_ = s.bus.PublishRequest(requestID, map[string]interface{}{
		"type":      "request.rejected",
		"requestId": requestID,
		"reviewer":  reviewerID,
	})

	return s.detail(ctx, requestID)
}

// Complete records a successful execution outcome on an approved request.
func (s *RequestService) Complete(ctx context.Context, requestID string, result map[string]interface{}, elapsedMS int64) error {
	ok, err := s.requests.CompleteRequest(ctx, requestID, result, elapsedMS)
	if err != nil {
		return fmt.Errorf("failed to complete request: %w", err)
	}
	if !ok {
		return s.transitionConflict(ctx, requestID, "complete")
	}

	_ = s.bus.PublishRequest(requestID, map[string]interface{}{
		"type":      "request.completed",
		"requestId": requestID,
	})
	return nil
}

// Fail records a failed execution outcome on an approved request.
func (s *RequestService) Fail(ctx context.Context, requestID, errorMessage string) error {
	ok, err := s.requests.FailRequest(ctx, requestID, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to fail request: %w", err)
	}
	if !ok {
		return s.transitionConflict(ctx, requestID, "fail")
	}

	_ = s.bus.PublishRequest(requestID, map[string]interface{}{
		"type":      "request.failed",
		"requestId": requestID,
		"error":     errorMessage,
	})
	return nil
}

// Delete cancels a request by physical removal. Only pending requests
// can be deleted; non-admin actors may only delete their own.
func (s *RequestService) Delete(ctx context.Context, actor model.User, requestID string) error {
	req, err := s.requests.GetRequestByID(ctx, requestID)
	if err != nil {
		if db.IsNoRows(err) {
			return fmt.Errorf("%w: request %s", model.ErrNotFound, requestID)
		}
		return fmt.Errorf("failed to load request: %w", err)
	}

	if actor.Role != model.RoleAdmin && req.UserID != actor.ID {
		return fmt.Errorf("%w: you can only cancel your own requests", model.ErrForbidden)
	}

	ownerConstraint := ""
	if actor.Role != model.RoleAdmin {
		ownerConstraint = actor.ID
	}

	ok, err := s.requests.DeleteRequest(ctx, requestID, ownerConstraint)
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	if !ok {
		return s.transitionConflict(ctx, requestID, "cancel")
	}

	_ = s.bus.PublishRequest(requestID, map[string]interface{}{
		"type":      "request.cancelled",
		"requestId": requestID,
	})
	return nil
}

// Get returns one enriched request. Members may only view their own.
func (s *RequestService) Get(ctx context.Context, actor model.User, requestID string) (model.RequestDetail, error) {
	detail, err := s.detail(ctx, requestID)
	if err != nil {
		return model.RequestDetail{}, err
	}
	if actor.Role == model.RoleMember && detail.UserID != actor.ID {
		return model.RequestDetail{}, fmt.Errorf("%w: you can only view your own requests", model.ErrForbidden)
	}
	return detail, nil
}

// List returns enriched requests the actor may enumerate: members see
// only their own, leaders and admins see all. Limit is clamped to
// [1, 100].
func (s *RequestService) List(ctx context.Context, actor model.User, filter model.RequestFilter) ([]model.RequestDetail, error) {
	if actor.Role == model.RoleMember {
		filter.UserID = actor.ID
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Skip < 0 {
		filter.Skip = 0
	}

	requests, err := s.requests.ListRequests(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return requests, nil
}

func (s *RequestService) detail(ctx context.Context, requestID string) (model.RequestDetail, error) {
	detail, err := s.requests.GetRequestDetailByID(ctx, requestID)
	if err != nil {
		if db.IsNoRows(err) {
			return model.RequestDetail{}, fmt.Errorf("%w: request %s", model.ErrNotFound, requestID)
		}
		return model.RequestDetail{}, fmt.Errorf("failed to load request: %w", err)
	}
	return detail, nil
}

// transitionConflict classifies a failed check-and-set: the request is
// either gone or in a status the operation does not accept. The current
// status is included so callers can report a meaningful conflict.
func (s *RequestService) transitionConflict(ctx context.Context, requestID, op string) error {
	req, err := s.requests.GetRequestByID(ctx, requestID)
	if err != nil {
		if db.IsNoRows(err) {
			return fmt.Errorf("%w: request %s", model.ErrNotFound, requestID)
		}
		return fmt.Errorf("failed to load request: %w", err)
	}
	return fmt.Errorf("%w: cannot %s request with status %q", model.ErrInvalidStateTransition, op, req.Status)
}
