package model

import "time"

// Status represents request status
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further workflow transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// User is an authenticated principal. PasswordHash is never serialized.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name,omitempty"`
	Role         Role       `json:"role"`
	IsActive     bool       `json:"is_active"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// RequiredField describes one declared parameter of a function.
type RequiredField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Function is a role-gated descriptor of an external API call.
type Function struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	APIEndpoint    string            `json:"api_endpoint"`
	HTTPMethod     string            `json:"http_method"`
	MinRole        Role              `json:"min_role"`
	RequiredFields []RequiredField   `json:"required_fields"`
	URLParameters  []string          `json:"url_parameters"`
	RequestHeaders map[string]string `json:"request_headers"`
	Timeout        int               `json:"timeout"`
	IsActive       bool              `json:"is_active"`
	CanExecute     *bool             `json:"can_execute,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Request tracks one function-execution attempt from submission to a
// terminal outcome. Everything besides the status field group is
// write-once at creation.
type Request struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	FunctionID      string                 `json:"function_id"`
	Parameters      map[string]interface{} `json:"parameters"`
	Status          Status                 `json:"status"`
	ReviewedBy      *string                `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time             `json:"reviewed_at,omitempty"`
	RejectionReason *string                `json:"rejection_reason,omitempty"`
	ExecutionResult map[string]interface{} `json:"execution_result,omitempty"`
	ExecutionTimeMS *int64                 `json:"execution_time_ms,omitempty"`
	ErrorMessage    *string                `json:"error_message,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// RequestDetail is a request enriched with denormalized user, function
// and reviewer display data. Joins are best-effort: a missing referenced
// user or function yields a placeholder, never an error.
type RequestDetail struct {
	Request
	UserUsername        string `json:"user_username"`
	UserEmail           string `json:"user_email"`
	FunctionName        string `json:"function_name"`
	FunctionDescription string `json:"function_description,omitempty"`
	ReviewerUsername    string `json:"reviewer_username,omitempty"`
}

// UserPatch holds optional user updates. A nil field means "leave as is",
// so clearing and omitting a value are distinguishable.
type UserPatch struct {
	Email    *string `json:"email,omitempty"`
	FullName *string `json:"full_name,omitempty"`
	Role     *Role   `json:"role,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
	Password *string `json:"password,omitempty"`
}

// FunctionPatch holds optional function updates.
type FunctionPatch struct {
	Name           *string            `json:"name,omitempty"`
	Description    *string            `json:"description,omitempty"`
	APIEndpoint    *string            `json:"api_endpoint,omitempty"`
	HTTPMethod     *string            `json:"http_method,omitempty"`
	MinRole        *Role              `json:"min_role,omitempty"`
	RequiredFields *[]RequiredField   `json:"required_fields,omitempty"`
	URLParameters  *[]string          `json:"url_parameters,omitempty"`
	RequestHeaders *map[string]string `json:"request_headers,omitempty"`
	Timeout        *int               `json:"timeout,omitempty"`
	IsActive       *bool              `json:"is_active,omitempty"`
}

// RequestFilter narrows a request listing.
type RequestFilter struct {
	UserID   string // restrict to one owner; empty means all
	Status   Status
	Search   string // case-insensitive substring over user/function names
	DateFrom *time.Time
	DateTo   *time.Time
	Skip     int
	Limit    int
}
