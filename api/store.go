package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
)

// Store is the resource storage behind the REST API. There are two
// drivers: postgres for production and an in-memory implementation for
// unit tests.
//
// List results come back enriched with author display names and comment
// counts; the caller's upvote flags are resolved separately because they
// depend on the authenticated identity.
type Store interface {
	// CreateIssue stores a new issue. A non-empty marker makes the call
	// idempotent: re-submitting the same marker must not create a second
	// row.
	CreateIssue(ctx context.Context, issue *civic.Issue, marker string) error

	// IssueByMarker returns the issue previously created with the given
	// idempotency marker, or nil when the marker is unknown.
	IssueByMarker(ctx context.Context, marker string) (*civic.Issue, error)

	// Issue returns one issue with its comments embedded, or nil when it
	// does not exist.
	Issue(ctx context.Context, id uuid.UUID) (*civic.Issue, error)

	// Issues returns one page of the collection plus the total count of
	// the unpaginated result. A non-nil owner restricts the result to that
	// user's issues.
	Issues(ctx context.Context, query civic.ListQuery, owner uuid.UUID) ([]civic.Issue, int, error)

	UpdateIssue(ctx context.Context, id uuid.UUID, update civic.UpdateIssueRequest) (*civic.Issue, error)
	DeleteIssue(ctx context.Context, id uuid.UUID) error

	Comments(ctx context.Context, issueID uuid.UUID) ([]civic.Comment, error)
	CreateComment(ctx context.Context, comment *civic.Comment) error

	// HasUpvoted reports whether the user currently upvotes the issue.
	HasUpvoted(ctx context.Context, issueID, userID uuid.UUID) (bool, error)
	// AddUpvote records an upvote and returns the issue's new counter.
	AddUpvote(ctx context.Context, issueID, userID uuid.UUID) (int, error)
	// RemoveUpvote withdraws an upvote and returns the issue's new counter.
	RemoveUpvote(ctx context.Context, issueID, userID uuid.UUID) (int, error)
	// UpvotedIDs returns which of the given issues the user has upvoted.
	UpvotedIDs(ctx context.Context, userID uuid.UUID, issueIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	// UpvotedIssues returns the issues the user has upvoted, most recent
	// upvote first, plus the total count.
	UpvotedIssues(ctx context.Context, userID uuid.UUID, limit, offset int) ([]civic.Issue, int, error)

	// Profile returns the user's profile, or nil when none exists yet.
	Profile(ctx context.Context, userID uuid.UUID) (*civic.Profile, error)
	UpsertProfile(ctx context.Context, profile *civic.Profile) error

	Stats(ctx context.Context, userID uuid.UUID) (*civic.Stats, error)

	Ping(ctx context.Context) error
}
