/*
Package civic defines the canonical domain model for the CivicVoice
reporting system.

The REST API, the managed data service, and the bridge between them all
produce and consume these types, so callers never have to branch on which
backend served a request.
*/
package civic

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// issue lifecycle states
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusRejected   = "rejected"
)

// issue priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Categories lists the accepted issue categories.
var Categories = []string{
	"Infrastructure",
	"Environment",
	"Safety",
	"Transportation",
	"Utilities",
	"Public Services",
	"Other",
}

// Coordinates is a geographic point in WGS84.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Author is the public summary of the citizen who created an issue
// or a comment.
type Author struct {
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Profile holds all citizen-editable account data.
type Profile struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Comment is a citizen comment on an issue.
type Comment struct {
	ID        uuid.UUID `json:"id"`
	IssueID   uuid.UUID `json:"issue_id"`
	UserID    uuid.UUID `json:"user_id"`
	Content   string    `json:"content"`
	Author    *Author   `json:"profiles,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Issue is a reported civic issue.
type Issue struct {
	ID                  uuid.UUID    `json:"id"`
	UserID              uuid.UUID    `json:"user_id"`
	Title               string       `json:"title"`
	Description         string       `json:"description"`
	Category            string       `json:"category"`
	Status              string       `json:"status"`
	Priority            string       `json:"priority"`
	LocationDescription string       `json:"location_description,omitempty"`
	LocationCoordinates *Coordinates `json:"location_coordinates,omitempty"`
	ImageURL            string       `json:"image_url,omitempty"`
	Upvotes             int          `json:"upvotes"`
	CommentsCount       int          `json:"comments_count"`
	UserHasUpvoted      bool         `json:"user_has_upvoted"`
	Author              *Author      `json:"profiles,omitempty"`
	Comments            []Comment    `json:"issue_comments,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// User is the authenticated account identity.
type User struct {
	ID      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	Profile *Profile  `json:"profile,omitempty"`
}

// Session is an authenticated session as issued by the auth provider.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// AuthResult is the combined result of register, login and refresh.
type AuthResult struct {
	User    *User    `json:"user,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// Stats summarizes a citizen's reporting activity.
type Stats struct {
	TotalIssues      int `json:"total_issues"`
	PendingIssues    int `json:"pending_issues"`
	InProgressIssues int `json:"in_progress_issues"`
	ResolvedIssues   int `json:"resolved_issues"`
	RejectedIssues   int `json:"rejected_issues"`
	TotalUpvotes     int `json:"total_upvotes"`
	TotalComments    int `json:"total_comments"`
}

// CreateIssueRequest is the payload for reporting a new issue.
type CreateIssueRequest struct {
	Title               string       `json:"title"`
	Description         string       `json:"description"`
	Category            string       `json:"category"`
	Priority            string       `json:"priority,omitempty"`
	LocationDescription string       `json:"location_description,omitempty"`
	LocationCoordinates *Coordinates `json:"location_coordinates,omitempty"`
	ImageURL            string       `json:"image_url,omitempty"`
}

// UpdateIssueRequest is a partial update; nil fields are left untouched.
type UpdateIssueRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
}

// CreateCommentRequest is the payload for commenting on an issue.
type CreateCommentRequest struct {
	Content string `json:"content"`
}

// UpdateProfileRequest is the payload for profile upserts.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// RegisterRequest is the payload for account creation.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// LoginRequest is the payload for password sign-in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ListQuery selects and orders a slice of the issue collection. Both data
// paths interpret it with identical semantics.
type ListQuery struct {
	Status    string
	Category  string
	Priority  string
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// DefaultLimit applies when a list query does not specify one.
const DefaultLimit = 20

// MaxLimit caps page sizes on every list operation.
const MaxLimit = 100

// Normalize fills in the query defaults.
func (q ListQuery) Normalize() ListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.SortBy == "" {
		q.SortBy = "created_at"
	}
	if q.SortOrder != "asc" {
		q.SortOrder = "desc"
	}
	return q
}

// Pagination describes the slice of the collection a list result covers.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// IssuePage is one page of the issue collection.
type IssuePage struct {
	Issues     []Issue
	Pagination Pagination
}

// UpvoteResult reports the outcome of an upvote toggle.
type UpvoteResult struct {
	Upvoted bool `json:"upvoted"`
	Upvotes int  `json:"upvotes"`
}

// Response is the envelope every primary API endpoint produces.
type Response struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	Message    string          `json:"message,omitempty"`
	Details    []FieldError    `json:"details,omitempty"`
	Pagination *Pagination     `json:"pagination,omitempty"`
}

// DecodeData unmarshals the envelope's data into result.
func (r Response) DecodeData(result interface{}) error {
	if r.Data == nil || result == nil {
		return nil
	}
	return json.Unmarshal(r.Data, result)
}
