package service

import (
	"context"
	"fmt"

	"opsdash/internal/db"
	"opsdash/internal/model"
)

// DashboardStore aggregates the counters and recent-activity queries.
type DashboardStore interface {
	CountActiveFunctions(ctx context.Context) (int64, error)
	CountUsers(ctx context.Context) (int64, error)
	GetRequestStats(ctx context.Context, userID string) (db.RequestStats, error)
	ListFunctions(ctx context.Context, p db.ListFunctionsParams) ([]model.Function, error)
	ListRequests(ctx context.Context, f model.RequestFilter) ([]model.RequestDetail, error)
}

type DashboardService struct {
	store DashboardStore
}

func NewDashboardService(store DashboardStore) *DashboardService {
	return &DashboardService{store: store}
}

type DashboardStats struct {
	TotalFunctions         int64 `json:"total_functions"`
	TotalUsers             int64 `json:"total_users"`
	PendingRequests        int64 `json:"pending_requests"`
	CompletedRequestsToday int64 `json:"completed_requests_today"`
	MyPendingRequests      int64 `json:"my_pending_requests"`
}

func (s *DashboardService) Stats(ctx context.Context, actor model.User) (DashboardStats, error) {
	functions, err := s.store.CountActiveFunctions(ctx)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("failed to count functions: %w", err)
	}
	users, err := s.store.CountUsers(ctx)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("failed to count users: %w", err)
	}
	requests, err := s.store.GetRequestStats(ctx, actor.ID)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("failed to count requests: %w", err)
	}

	return DashboardStats{
		TotalFunctions:         functions,
		TotalUsers:             users,
		PendingRequests:        requests.PendingRequests,
		CompletedRequestsToday: requests.CompletedToday,
		MyPendingRequests:      requests.MyPending,
	}, nil
}

type RecentActivity struct {
	RecentFunctions []model.Function      `json:"recent_functions"`
	RecentRequests  []model.RequestDetail `json:"recent_requests"`
}

func (s *DashboardService) Recent(ctx context.Context) (RecentActivity, error) {
	functions, err := s.store.ListFunctions(ctx, db.ListFunctionsParams{Limit: 10})
	if err != nil {
		return RecentActivity{}, fmt.Errorf("failed to list recent functions: %w", err)
	}
	requests, err := s.store.ListRequests(ctx, model.RequestFilter{Limit: 10})
	if err != nil {
		return RecentActivity{}, fmt.Errorf("failed to list recent requests: %w", err)
	}
	return RecentActivity{
		RecentFunctions: functions,
		RecentRequests:  requests,
	}, nil
}
