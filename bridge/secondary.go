package bridge

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/KripanshSrivastava/CivicVoice-report/authn"
	"github.com/KripanshSrivastava/CivicVoice-report/civic"
	"github.com/KripanshSrivastava/CivicVoice-report/core/logger"
	"github.com/KripanshSrivastava/CivicVoice-report/dataservice"
)

// SecondaryBackend talks directly to the managed service: the auth
// provider for sessions and the data service for tables and RPCs. The
// list enrichment the primary API does server side (authors, comment
// counts, upvote flags) happens client side here.
type SecondaryBackend struct {
	authn authn.Client
	data  dataservice.Client
}

// NewSecondary creates the secondary backend.
func NewSecondary(authnClient authn.Client, dataClient dataservice.Client) *SecondaryBackend {
	return &SecondaryBackend{authn: authnClient, data: dataClient}
}

// Name implements Backend.
func (s *SecondaryBackend) Name() Path {
	return PathSecondary
}

func (s *SecondaryBackend) table(token string) dataservice.Client {
	if token == "" {
		return s.data
	}
	return s.data.WithToken(token)
}

// issueRow is the writable subset of the issues table.
type issueRow struct {
	ID                  *uuid.UUID         `json:"id,omitempty"`
	UserID              uuid.UUID          `json:"user_id"`
	Title               string             `json:"title"`
	Description         string             `json:"description"`
	Category            string             `json:"category"`
	Status              string             `json:"status"`
	Priority            string             `json:"priority"`
	LocationDescription string             `json:"location_description,omitempty"`
	LocationCoordinates *civic.Coordinates `json:"location_coordinates,omitempty"`
	ImageURL            string             `json:"image_url,omitempty"`
}

// SignUp implements Backend.
func (s *SecondaryBackend) SignUp(ctx context.Context, request civic.RegisterRequest) (*civic.AuthResult, error) {
	result, err := s.authn.SignUp(ctx, request.Email, request.Password, request.DisplayName)
	if err != nil {
		return nil, err
	}
	// seed the profile so display names show up on issues right away
	if result.User != nil && request.DisplayName != "" && result.Session != nil {
		profile := map[string]interface{}{
			"user_id":      result.User.ID,
			"display_name": request.DisplayName,
		}
		if err := s.table(result.Session.AccessToken).From("profiles").Upsert(ctx, profile, nil); err != nil {
			logger.FromContext(ctx).WithError(err).Errorln("cannot seed profile after registration")
		}
	}
	return result, nil
}

// SignIn implements Backend.
func (s *SecondaryBackend) SignIn(ctx context.Context, request civic.LoginRequest) (*civic.AuthResult, error) {
	return s.authn.SignInWithPassword(ctx, request.Email, request.Password)
}

// Refresh implements Backend.
func (s *SecondaryBackend) Refresh(ctx context.Context, refreshToken string) (*civic.AuthResult, error) {
	return s.authn.RefreshSession(ctx, refreshToken)
}

// SignOut implements Backend.
func (s *SecondaryBackend) SignOut(ctx context.Context, token string) error {
	return s.authn.SignOut(ctx, token)
}

// Me implements Backend.
func (s *SecondaryBackend) Me(ctx context.Context, token string) (*civic.User, error) {
	user, err := s.authn.GetUser(ctx, token)
	if err != nil {
		return nil, err
	}
	var profiles []civic.Profile
	err = s.table(token).From("profiles").
		Eq("user_id", user.ID.String()).
		Get(ctx, &profiles)
	if err == nil && len(profiles) > 0 {
		user.Profile = &profiles[0]
	}
	return user, nil
}

// commentCounts resolves the number of comments per issue.
func (s *SecondaryBackend) commentCounts(ctx context.Context, token string, issueIDs []string) (map[uuid.UUID]int, error) {
	counts := map[uuid.UUID]int{}
	if len(issueIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		IssueID uuid.UUID `json:"issue_id"`
	}
	err := s.table(token).From("issue_comments").
		Select("issue_id").
		In("issue_id", issueIDs).
		Get(ctx, &rows)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.IssueID]++
	}
	return counts, nil
}

// upvoteFlags resolves which of the issues the user has upvoted.
func (s *SecondaryBackend) upvoteFlags(ctx context.Context, token string, userID uuid.UUID, issueIDs []string) (map[uuid.UUID]bool, error) {
	flags := map[uuid.UUID]bool{}
	if userID == uuid.Nil || len(issueIDs) == 0 {
		return flags, nil
	}
	var rows []struct {
		IssueID uuid.UUID `json:"issue_id"`
	}
	err := s.table(token).From("issue_upvotes").
		Select("issue_id").
		Eq("user_id", userID.String()).
		In("issue_id", issueIDs).
		Get(ctx, &rows)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		flags[row.IssueID] = true
	}
	return flags, nil
}

func (s *SecondaryBackend) enrichIssues(ctx context.Context, token string, userID uuid.UUID, issues []civic.Issue) error {
	ids := make([]string, len(issues))
	for i := range issues {
		ids[i] = issues[i].ID.String()
	}
	counts, err := s.commentCounts(ctx, token, ids)
	if err != nil {
		return err
	}
	flags, err := s.upvoteFlags(ctx, token, userID, ids)
	if err != nil {
		return err
	}
	for i := range issues {
		issues[i].CommentsCount = counts[issues[i].ID]
		issues[i].UserHasUpvoted = flags[issues[i].ID]
	}
	return nil
}

func (s *SecondaryBackend) issuesQuery(token string, query civic.ListQuery) dataservice.Query {
	q := s.table(token).From("civic_issues").
		Select("*,profiles(display_name,avatar_url)")
	if query.Status != "" && query.Status != "all" {
		q = q.Eq("status", query.Status)
	}
	if query.Category != "" {
		q = q.Eq("category", query.Category)
	}
	if query.Priority != "" {
		q = q.Eq("priority", query.Priority)
	}
	return q.
		Order(query.SortBy, query.SortOrder == "asc").
		Range(query.Offset, query.Offset+query.Limit-1)
}

// ListIssues implements Backend.
func (s *SecondaryBackend) ListIssues(ctx context.Context, token string, userID uuid.UUID, query civic.ListQuery) (*civic.IssuePage, error) {
	var issues []civic.Issue
	total, err := s.issuesQuery(token, query).GetWithCount(ctx, &issues)
	if err != nil {
		return nil, err
	}
	if err := s.enrichIssues(ctx, token, userID, issues); err != nil {
		return nil, err
	}
	return &civic.IssuePage{
		Issues:     issues,
		Pagination: civic.Pagination{Limit: query.Limit, Offset: query.Offset, Total: total},
	}, nil
}

// GetIssue implements Backend.
func (s *SecondaryBackend) GetIssue(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID) (*civic.Issue, error) {
	var issue civic.Issue
	err := s.table(token).From("civic_issues").
		Select("*,profiles(display_name,avatar_url),issue_comments(*,profiles(display_name,avatar_url))").
		Eq("id", id.String()).
		Single(ctx, &issue)
	if err != nil {
		return nil, err
	}
	issue.CommentsCount = len(issue.Comments)
	if userID != uuid.Nil {
		flags, err := s.upvoteFlags(ctx, token, userID, []string{id.String()})
		if err != nil {
			return nil, err
		}
		issue.UserHasUpvoted = flags[id]
	}
	return &issue, nil
}

// CreateIssue implements Backend. The marker deterministically becomes
// the row id, so a replayed create merges into the row the first
// attempt stored instead of inserting a duplicate.
func (s *SecondaryBackend) CreateIssue(ctx context.Context, token string, userID uuid.UUID, request civic.CreateIssueRequest, marker string) (*civic.Issue, error) {
	priority := request.Priority
	if priority == "" {
		priority = civic.PriorityMedium
	}
	row := issueRow{
		UserID:              userID,
		Title:               request.Title,
		Description:         request.Description,
		Category:            request.Category,
		Status:              civic.StatusPending,
		Priority:            priority,
		LocationDescription: request.LocationDescription,
		LocationCoordinates: request.LocationCoordinates,
		ImageURL:            request.ImageURL,
	}

	// representation results always come back as an array
	var created []civic.Issue
	if marker != "" {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(marker))
		row.ID = &id
		err := s.table(token).From("civic_issues").Upsert(ctx, row, &created)
		if err != nil {
			return nil, err
		}
	} else {
		err := s.table(token).From("civic_issues").Insert(ctx, row, &created)
		if err != nil {
			return nil, err
		}
	}
	if len(created) == 0 {
		return nil, civic.ErrorFromStatus(http.StatusBadGateway, "issue was not created")
	}
	return &created[0], nil
}

// ownIssue loads the issue and checks it belongs to userID.
func (s *SecondaryBackend) ownIssue(ctx context.Context, token string, userID, id uuid.UUID) (*civic.Issue, error) {
	var issue civic.Issue
	err := s.table(token).From("civic_issues").
		Select("*").
		Eq("id", id.String()).
		Single(ctx, &issue)
	if err != nil {
		return nil, err
	}
	if issue.UserID != userID {
		return nil, civic.ErrorFromStatus(http.StatusForbidden, "you can only modify your own issues")
	}
	return &issue, nil
}

// UpdateIssue implements Backend.
func (s *SecondaryBackend) UpdateIssue(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID, request civic.UpdateIssueRequest) (*civic.Issue, error) {
	if _, err := s.ownIssue(ctx, token, userID, id); err != nil {
		return nil, err
	}
	var updated []civic.Issue
	err := s.table(token).From("civic_issues").
		Eq("id", id.String()).
		Update(ctx, request, &updated)
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, civic.ErrorFromStatus(http.StatusNotFound, "issue not found")
	}
	return &updated[0], nil
}

// DeleteIssue implements Backend.
func (s *SecondaryBackend) DeleteIssue(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID) error {
	if _, err := s.ownIssue(ctx, token, userID, id); err != nil {
		return err
	}
	return s.table(token).From("civic_issues").
		Eq("id", id.String()).
		Delete(ctx)
}

// ToggleUpvote implements Backend. The table row tracks who upvoted;
// the counter on the issue moves through the increment and decrement
// RPCs, exactly like the primary API keeps the two in step.
func (s *SecondaryBackend) ToggleUpvote(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID) (*civic.UpvoteResult, error) {
	var existing []struct {
		IssueID uuid.UUID `json:"issue_id"`
	}
	err := s.table(token).From("issue_upvotes").
		Select("issue_id").
		Eq("issue_id", id.String()).
		Eq("user_id", userID.String()).
		Get(ctx, &existing)
	if err != nil {
		return nil, err
	}

	upvoted := len(existing) == 0
	args := map[string]string{"issue_id": id.String()}
	if upvoted {
		row := map[string]string{"issue_id": id.String(), "user_id": userID.String()}
		if err := s.table(token).From("issue_upvotes").Insert(ctx, row, nil); err != nil {
			return nil, err
		}
		if err := s.table(token).Rpc(ctx, "increment_upvotes", args); err != nil {
			return nil, err
		}
	} else {
		err := s.table(token).From("issue_upvotes").
			Eq("issue_id", id.String()).
			Eq("user_id", userID.String()).
			Delete(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.table(token).Rpc(ctx, "decrement_upvotes", args); err != nil {
			return nil, err
		}
	}

	var issue struct {
		Upvotes int `json:"upvotes"`
	}
	err = s.table(token).From("civic_issues").
		Select("upvotes").
		Eq("id", id.String()).
		Single(ctx, &issue)
	if err != nil {
		return nil, err
	}
	return &civic.UpvoteResult{Upvoted: upvoted, Upvotes: issue.Upvotes}, nil
}

// UploadIssueImage implements Backend. The image lands in the managed
// storage bucket and the public URL goes into the issue.
func (s *SecondaryBackend) UploadIssueImage(ctx context.Context, token string, userID uuid.UUID, data []byte, contentType string) (string, error) {
	key := userID.String() + "/" + uuid.New().String()
	bucket := s.table(token).Storage("issue-images")
	if err := bucket.Upload(ctx, key, data, contentType); err != nil {
		return "", err
	}
	return bucket.PublicURL(key), nil
}

// Comments implements Backend.
func (s *SecondaryBackend) Comments(ctx context.Context, id uuid.UUID) ([]civic.Comment, error) {
	comments := []civic.Comment{}
	err := s.table("").From("issue_comments").
		Select("*,profiles(display_name,avatar_url)").
		Eq("issue_id", id.String()).
		Order("created_at", true).
		Get(ctx, &comments)
	if err != nil {
		return nil, err
	}
	return comments, nil
}

// CreateComment implements Backend.
func (s *SecondaryBackend) CreateComment(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID, request civic.CreateCommentRequest) (*civic.Comment, error) {
	row := map[string]string{
		"issue_id": id.String(),
		"user_id":  userID.String(),
		"content":  request.Content,
	}
	var comments []civic.Comment
	err := s.table(token).From("issue_comments").Insert(ctx, row, &comments)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, civic.ErrorFromStatus(http.StatusBadGateway, "comment was not created")
	}
	return &comments[0], nil
}

// Profile implements Backend.
func (s *SecondaryBackend) Profile(ctx context.Context, token string, userID uuid.UUID) (*civic.Profile, error) {
	var profile civic.Profile
	err := s.table(token).From("profiles").
		Eq("user_id", userID.String()).
		Single(ctx, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpsertProfile implements Backend.
func (s *SecondaryBackend) UpsertProfile(ctx context.Context, token string, userID uuid.UUID, request civic.UpdateProfileRequest) (*civic.Profile, error) {
	row := map[string]string{
		"user_id":      userID.String(),
		"display_name": request.DisplayName,
		"avatar_url":   request.AvatarURL,
		"phone":        request.Phone,
	}
	var profiles []civic.Profile
	err := s.table(token).From("profiles").Upsert(ctx, row, &profiles)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, civic.ErrorFromStatus(http.StatusBadGateway, "profile was not stored")
	}
	return &profiles[0], nil
}

// UserIssues implements Backend.
func (s *SecondaryBackend) UserIssues(ctx context.Context, token string, userID uuid.UUID, query civic.ListQuery) (*civic.IssuePage, error) {
	var issues []civic.Issue
	total, err := s.issuesQuery(token, query).
		Eq("user_id", userID.String()).
		GetWithCount(ctx, &issues)
	if err != nil {
		return nil, err
	}
	if err := s.enrichIssues(ctx, token, userID, issues); err != nil {
		return nil, err
	}
	return &civic.IssuePage{
		Issues:     issues,
		Pagination: civic.Pagination{Limit: query.Limit, Offset: query.Offset, Total: total},
	}, nil
}

// UpvotedIssues implements Backend.
func (s *SecondaryBackend) UpvotedIssues(ctx context.Context, token string, userID uuid.UUID, limit, offset int) (*civic.IssuePage, error) {
	query := civic.ListQuery{Limit: limit, Offset: offset}.Normalize()
	var rows []struct {
		Issue civic.Issue `json:"civic_issues"`
	}
	total, err := s.table(token).From("issue_upvotes").
		Select("created_at,civic_issues(*,profiles(display_name,avatar_url))").
		Eq("user_id", userID.String()).
		Order("created_at", false).
		Range(query.Offset, query.Offset+query.Limit-1).
		GetWithCount(ctx, &rows)
	if err != nil {
		return nil, err
	}
	issues := make([]civic.Issue, 0, len(rows))
	for _, row := range rows {
		issue := row.Issue
		issue.UserHasUpvoted = true
		issues = append(issues, issue)
	}
	ids := make([]string, len(issues))
	for i := range issues {
		ids[i] = issues[i].ID.String()
	}
	counts, err := s.commentCounts(ctx, token, ids)
	if err != nil {
		return nil, err
	}
	for i := range issues {
		issues[i].CommentsCount = counts[issues[i].ID]
	}
	return &civic.IssuePage{
		Issues:     issues,
		Pagination: civic.Pagination{Limit: query.Limit, Offset: query.Offset, Total: total},
	}, nil
}

// Stats implements Backend. The managed service has no stats endpoint,
// so the summary is computed from three table reads.
func (s *SecondaryBackend) Stats(ctx context.Context, token string, userID uuid.UUID) (*civic.Stats, error) {
	var rows []struct {
		Status string `json:"status"`
	}
	err := s.table(token).From("civic_issues").
		Select("status").
		Eq("user_id", userID.String()).
		Get(ctx, &rows)
	if err != nil {
		return nil, err
	}
	stats := civic.Stats{TotalIssues: len(rows)}
	for _, row := range rows {
		switch row.Status {
		case civic.StatusPending:
			stats.PendingIssues++
		case civic.StatusInProgress:
			stats.InProgressIssues++
		case civic.StatusResolved:
			stats.ResolvedIssues++
		case civic.StatusRejected:
			stats.RejectedIssues++
		}
	}

	var ignored []struct{}
	stats.TotalUpvotes, err = s.table(token).From("issue_upvotes").
		Select("issue_id").
		Eq("user_id", userID.String()).
		Range(0, 0).
		GetWithCount(ctx, &ignored)
	if err != nil {
		return nil, err
	}
	stats.TotalComments, err = s.table(token).From("issue_comments").
		Select("id").
		Eq("user_id", userID.String()).
		Range(0, 0).
		GetWithCount(ctx, &ignored)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health implements Backend.
func (s *SecondaryBackend) Health(ctx context.Context) error {
	var ignored []struct{}
	return s.table("").From("civic_issues").
		Select("id").
		Range(0, 0).
		Get(ctx, &ignored)
}
