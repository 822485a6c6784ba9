/*
Package bridge gives the CivicVoice frontend a single data access
layer over two interchangeable paths: the primary REST API and the
secondary managed data service.

Every operation is expressed as an intent, classified by kind. The
selector runs the intent against the kind's preferred path and falls
back to the other path at most once, so no intent ever costs more than
two upstream calls. Sessions remember which path issued them.
*/
package bridge

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
	"github.com/KripanshSrivastava/CivicVoice-report/core/logger"
)

// Backend is one data path. Both the primary REST API and the
// secondary data service implement it with identical semantics.
type Backend interface {
	Name() Path

	SignUp(ctx context.Context, request civic.RegisterRequest) (*civic.AuthResult, error)
	SignIn(ctx context.Context, request civic.LoginRequest) (*civic.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*civic.AuthResult, error)
	SignOut(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*civic.User, error)

	ListIssues(ctx context.Context, token string, userID uuid.UUID, query civic.ListQuery) (*civic.IssuePage, error)
	GetIssue(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID) (*civic.Issue, error)
	CreateIssue(ctx context.Context, token string, userID uuid.UUID, request civic.CreateIssueRequest, marker string) (*civic.Issue, error)
	UpdateIssue(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID, request civic.UpdateIssueRequest) (*civic.Issue, error)
	DeleteIssue(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID) error
	ToggleUpvote(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID) (*civic.UpvoteResult, error)
	UploadIssueImage(ctx context.Context, token string, userID uuid.UUID, data []byte, contentType string) (string, error)
	Comments(ctx context.Context, id uuid.UUID) ([]civic.Comment, error)
	CreateComment(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID, request civic.CreateCommentRequest) (*civic.Comment, error)

	Profile(ctx context.Context, token string, userID uuid.UUID) (*civic.Profile, error)
	UpsertProfile(ctx context.Context, token string, userID uuid.UUID, request civic.UpdateProfileRequest) (*civic.Profile, error)
	UserIssues(ctx context.Context, token string, userID uuid.UUID, query civic.ListQuery) (*civic.IssuePage, error)
	UpvotedIssues(ctx context.Context, token string, userID uuid.UUID, limit, offset int) (*civic.IssuePage, error)
	Stats(ctx context.Context, token string, userID uuid.UUID) (*civic.Stats, error)

	Health(ctx context.Context) error
}

// Bridge is the dual-path data access layer.
type Bridge struct {
	backends map[Path]Backend
	selector *selector
	sessions *SessionStore
}

// Builder is a builder helper for the Bridge
type Builder struct {
	// Primary is the REST API path. This is mandatory.
	Primary Backend
	// Secondary is the managed data service path. This is mandatory.
	Secondary Backend
	// Sessions holds the current credential. This is mandatory.
	Sessions *SessionStore
	// InitialPath is the preferred path for every operation kind at
	// startup. Defaults to the primary path.
	InitialPath Path
}

// New realizes the bridge.
func New(b *Builder) *Bridge {
	if b.Primary == nil || b.Secondary == nil {
		panic("both backends are mandatory")
	}
	if b.Sessions == nil {
		panic("Sessions is missing")
	}
	initial := b.InitialPath
	if initial != PathSecondary {
		initial = PathPrimary
	}
	// a restored session pulls auth traffic to the path that issued it
	if credential := b.Sessions.Get(); credential != nil {
		initial = credential.Provenance
	}
	return &Bridge{
		backends: map[Path]Backend{
			PathPrimary:   b.Primary,
			PathSecondary: b.Secondary,
		},
		selector: newSelector(initial),
		sessions: b.Sessions,
	}
}

// Session returns the current credential, or nil when signed out.
func (b *Bridge) Session() *Credential {
	return b.sessions.Get()
}

func (b *Bridge) credential() (token string, userID uuid.UUID) {
	if c := b.sessions.Get(); c != nil {
		token = c.AccessToken
		if c.User != nil {
			userID = c.User.ID
		}
	}
	return
}

func (b *Bridge) storeResult(result *civic.AuthResult, path Path) error {
	if result == nil || result.Session == nil {
		return nil
	}
	user := result.User
	if user == nil {
		user = result.Session.User
	}
	return b.sessions.Set(Credential{
		AccessToken:  result.Session.AccessToken,
		RefreshToken: result.Session.RefreshToken,
		Provenance:   path,
		User:         user,
	})
}

// SignUp registers a new account. A session is only stored when the
// provider signs the account in right away; providers that require
// email confirmation return a bare user instead.
func (b *Bridge) SignUp(ctx context.Context, request civic.RegisterRequest) (*civic.AuthResult, error) {
	if request.Email == "" || request.Password == "" {
		return nil, civic.NewValidationError("email and password are required")
	}
	var result *civic.AuthResult
	err := b.selector.do(ctx, Intent{Kind: KindAuth, Name: "sign-up"}, func(ctx context.Context, path Path) error {
		var err error
		result, err = b.backends[path].SignUp(ctx, request)
		if err != nil {
			return err
		}
		return b.storeResult(result, path)
	})
	return result, err
}

// SignIn signs in with email and password.
func (b *Bridge) SignIn(ctx context.Context, request civic.LoginRequest) (*civic.AuthResult, error) {
	if request.Email == "" || request.Password == "" {
		return nil, civic.NewValidationError("email and password are required")
	}
	var result *civic.AuthResult
	err := b.selector.do(ctx, Intent{Kind: KindAuth, Name: "sign-in"}, func(ctx context.Context, path Path) error {
		var err error
		result, err = b.backends[path].SignIn(ctx, request)
		if err != nil {
			return err
		}
		return b.storeResult(result, path)
	})
	return result, err
}

// Refresh exchanges the stored refresh token for a fresh session.
func (b *Bridge) Refresh(ctx context.Context) (*civic.AuthResult, error) {
	credential := b.sessions.Get()
	if credential == nil || credential.RefreshToken == "" {
		return nil, civic.ErrorFromStatus(http.StatusUnauthorized, "no session to refresh")
	}
	var result *civic.AuthResult
	err := b.selector.do(ctx, Intent{Kind: KindAuth, Name: "refresh"}, func(ctx context.Context, path Path) error {
		var err error
		result, err = b.backends[path].Refresh(ctx, credential.RefreshToken)
		if err != nil {
			return err
		}
		return b.storeResult(result, path)
	})
	return result, err
}

// SignOut ends the session. Revocation is best effort: the local
// credential is cleared even when the upstream call fails.
func (b *Bridge) SignOut(ctx context.Context) {
	credential := b.sessions.Get()
	if credential != nil && credential.AccessToken != "" {
		backend := b.backends[credential.Provenance]
		if err := backend.SignOut(ctx, credential.AccessToken); err != nil {
			logger.FromContext(ctx).WithError(err).Warnln("session revocation failed")
		}
	}
	b.sessions.Clear()
}

// Me returns the signed-in user with their profile.
func (b *Bridge) Me(ctx context.Context) (*civic.User, error) {
	token, _ := b.credential()
	if token == "" {
		return nil, civic.ErrorFromStatus(http.StatusUnauthorized, "not signed in")
	}
	var user *civic.User
	err := b.selector.do(ctx, Intent{Kind: KindAuth, Name: "me"}, func(ctx context.Context, path Path) error {
		var err error
		user, err = b.backends[path].Me(ctx, token)
		return err
	})
	return user, err
}

// ListIssues returns one page of the issue collection.
func (b *Bridge) ListIssues(ctx context.Context, query civic.ListQuery) (*civic.IssuePage, error) {
	token, userID := b.credential()
	var page *civic.IssuePage
	err := b.selector.do(ctx, Intent{Kind: KindList, Name: "list-issues"}, func(ctx context.Context, path Path) error {
		var err error
		page, err = b.backends[path].ListIssues(ctx, token, userID, query.Normalize())
		return err
	})
	return page, err
}

// GetIssue returns one issue with its comments.
func (b *Bridge) GetIssue(ctx context.Context, id uuid.UUID) (*civic.Issue, error) {
	token, userID := b.credential()
	var issue *civic.Issue
	err := b.selector.do(ctx, Intent{Kind: KindRead, Name: "get-issue"}, func(ctx context.Context, path Path) error {
		var err error
		issue, err = b.backends[path].GetIssue(ctx, token, userID, id)
		return err
	})
	return issue, err
}

// CreateIssue reports a new issue. The generated idempotency marker
// makes the mutation safe to replay on the other path.
func (b *Bridge) CreateIssue(ctx context.Context, request civic.CreateIssueRequest) (*civic.Issue, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	token, userID := b.credential()
	if token == "" {
		return nil, civic.ErrorFromStatus(http.StatusUnauthorized, "not signed in")
	}
	marker := uuid.New().String()
	var issue *civic.Issue
	err := b.selector.do(ctx, Intent{Kind: KindMutate, Name: "create-issue", Marker: marker}, func(ctx context.Context, path Path) error {
		var err error
		issue, err = b.backends[path].CreateIssue(ctx, token, userID, request, marker)
		return err
	})
	return issue, err
}

// UpdateIssue patches the caller's own issue.
func (b *Bridge) UpdateIssue(ctx context.Context, id uuid.UUID, request civic.UpdateIssueRequest) (*civic.Issue, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	token, userID := b.credential()
	if token == "" {
		return nil, civic.ErrorFromStatus(http.StatusUnauthorized, "not signed in")
	}
	// updates overwrite the same fields on replay, so a replay converges
	marker := uuid.New().String()
	var issue *civic.Issue
	err := b.selector.do(ctx, Intent{Kind: KindMutate, Name: "update-issue", Marker: marker}, func(ctx context.Context, path Path) error {
		var err error
		issue, err = b.backends[path].UpdateIssue(ctx, token, userID, id, request)
		return err
	})
	return issue, err
}

// DeleteIssue deletes the caller's own issue.
func (b *Bridge) DeleteIssue(ctx context.Context, id uuid.UUID) error {
	token, userID := b.credential()
	if token == "" {
		return civic.ErrorFromStatus(http.StatusUnauthorized, "not signed in")
	}
	// deleting twice deletes once, replay is always safe
	marker := uuid.New().String()
	return b.selector.do(ctx, Intent{Kind: KindMutate, Name: "delete-issue", Marker: marker}, func(ctx context.Context, path Path) error {
		return b.backends[path].DeleteIssue(ctx, token, userID, id)
	})
}

// ToggleUpvote flips the caller's upvote on an issue. The toggle is
// not replay-safe, so it never falls back to the other path.
func (b *Bridge) ToggleUpvote(ctx context.Context, id uuid.UUID) (*civic.UpvoteResult, error) {
	token, userID := b.credential()
	if token == "" {
		return nil, civic.ErrorFromStatus(http.StatusUnauthorized, "not signed in")
	}
	var result *civic.UpvoteResult
	err := b.selector.do(ctx, Intent{Kind: KindMutate, Name: "toggle-upvote"}, func(ctx context.Context, path Path) error {
		var err error
		result, err = b.backends[path].ToggleUpvote(ctx, token, userID, id)
		return err
	})
	return result, err
}

// UploadIssueImage stores an image and returns the URL to put into an
// issue's image_url. The two paths produce different keys, so the
// upload never falls back.
func (b *Bridge) UploadIssueImage(ctx context.Context, data []byte, contentType string) (string, error) {
	token, userID := b.credential()
	if token == "" {
		return "", civic.ErrorFromStatus(http.StatusUnauthorized, "not signed in")
	}
	var imageURL string
	err := b.selector.do(ctx, Intent{Kind: KindMutate, Name: "upload-image"}, func(ctx context.Context, path Path) error {
		var err error
		imageURL, err = b.backends[path].UploadIssueImage(ctx, token, userID, data, contentType)
		return err
	})
	return imageURL, err
}

// Comments returns the comments of an issue, oldest first.
func (b *Bridge) Comments(ctx context.Context, id uuid.UUID) ([]civic.Comment, error) {
	var comments []civic.Comment
	err := b.selector.do(ctx, Intent{Kind: KindList, Name: "list-comments"}, func(ctx context.Context, path Path) error {
		var err error
		comments, err = b.backends[path].Comments(ctx, id)
		return err
	})
	return comments, err
}

// CreateComment comments on an issue. Replaying a comment would post
// it twice, so the mutation never falls back.
func (b *Bridge) CreateComment(ctx context.Context, id uuid.UUID, request civic.CreateCommentRequest) (*civic.Comment, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	token, userID := b.credential()
	if token == "" {
		return nil, civic.ErrorFromStatus(http.StatusUnauthorized, "not signed in")
	}
	var comment *civic.Comment
	err := b.selector.do(ctx, Intent{Kind: KindMutate, Name: "create-comment"}, func(ctx context.Context, path Path) error {
		var err error
		comment, err = b.backends[path].CreateComment(ctx, token, userID, id, request)
		return err
	})
	return comment, err
}

// Profile returns the caller's profile.
func (b *Bridge) Profile(ctx context.Context) (*civic.Profile, error) {
	token, userID := b.credential()
	if token == "" {
		return nil, civic.ErrorFromStatus(http.StatusUnauthorized, "not signed in")
	}
	var profile *civic.Profile
	err := b.selector.do(ctx, Intent{Kind: KindRead, Name: "get-profile"}, func(ctx context.Context, path Path) error {
		var err error
		profile, err = b.backends[path].Profile(ctx, token, userID)
		return err
	})
	return profile, err
}

// UpsertProfile creates or replaces the caller's profile. The upsert
// converges on replay, so it may fall back.
func (b *Bridge) UpsertProfile(ctx context.Context, request civic.UpdateProfileRequest) (*civic.Profile, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	token, userID := b.credential()
	if token == "" {
		return nil, civic.ErrorFromStatus(http.StatusUnauthorized, "not signed in")
	}
	marker := uuid.New().String()
	var profile *civic.Profile
	err := b.selector.do(ctx, Intent{Kind: KindMutate, Name: "upsert-profile", Marker: marker}, func(ctx context.Context, path Path) error {
		var err error
		profile, err = b.backends[path].UpsertProfile(ctx, token, userID, request)
		return err
	})
	return profile, err
}

// UserIssues returns one page of the caller's own issues.
func (b *Bridge) UserIssues(ctx context.Context, query civic.ListQuery) (*civic.IssuePage, error) {
	token, userID := b.credential()
	if token == "" {
		return nil, civic.ErrorFromStatus(http.StatusUnauthorized, "not signed in")
	}
	var page *civic.IssuePage
	err := b.selector.do(ctx, Intent{Kind: KindList, Name: "user-issues"}, func(ctx context.Context, path Path) error {
		var err error
		page, err = b.backends[path].UserIssues(ctx, token, userID, query.Normalize())
		return err
	})
	return page, err
}

// UpvotedIssues returns one page of the issues the caller upvoted.
func (b *Bridge) UpvotedIssues(ctx context.Context, limit, offset int) (*civic.IssuePage, error) {
	token, userID := b.credential()
	if token == "" {
		return nil, civic.ErrorFromStatus(http.StatusUnauthorized, "not signed in")
	}
	var page *civic.IssuePage
	err := b.selector.do(ctx, Intent{Kind: KindList, Name: "upvoted-issues"}, func(ctx context.Context, path Path) error {
		var err error
		page, err = b.backends[path].UpvotedIssues(ctx, token, userID, limit, offset)
		return err
	})
	return page, err
}

// Stats summarizes the caller's reporting activity.
func (b *Bridge) Stats(ctx context.Context) (*civic.Stats, error) {
	token, userID := b.credential()
	if token == "" {
		return nil, civic.ErrorFromStatus(http.StatusUnauthorized, "not signed in")
	}
	var stats *civic.Stats
	err := b.selector.do(ctx, Intent{Kind: KindRead, Name: "user-stats"}, func(ctx context.Context, path Path) error {
		var err error
		stats, err = b.backends[path].Stats(ctx, token, userID)
		return err
	})
	return stats, err
}

// Health checks the read path.
func (b *Bridge) Health(ctx context.Context) error {
	return b.selector.do(ctx, Intent{Kind: KindRead, Name: "health"}, func(ctx context.Context, path Path) error {
		return b.backends[path].Health(ctx)
	})
}
