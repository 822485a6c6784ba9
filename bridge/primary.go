package bridge

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
	"github.com/KripanshSrivastava/CivicVoice-report/core/client"
)

// PrimaryBackend talks to the CivicVoice REST API. Every response is
// wrapped in the API's envelope; upstream error envelopes are mapped
// back onto the error taxonomy.
type PrimaryBackend struct {
	client client.Client
}

// NewPrimary creates the primary backend for a base URL.
func NewPrimary(baseURL string) *PrimaryBackend {
	return &PrimaryBackend{client: client.NewWithURL(baseURL)}
}

// NewPrimaryWithRouter creates the primary backend talking directly
// to a mux router, without HTTP on the wire.
func NewPrimaryWithRouter(router *mux.Router) *PrimaryBackend {
	return &PrimaryBackend{client: client.NewWithRouter(router)}
}

// Name implements Backend.
func (p *PrimaryBackend) Name() Path {
	return PathPrimary
}

func (p *PrimaryBackend) call(ctx context.Context, token, method, path string, headers map[string]string, body, result interface{}) (*civic.Response, error) {
	c := p.client.WithContext(ctx)
	if token != "" {
		c = c.WithToken(token)
	}
	var envelope civic.Response
	status, err := c.RawRequest(method, path, headers, body, &envelope)
	if err != nil {
		if status == 0 {
			return nil, civic.NewNetworkError(err)
		}
		// reached the server, but no parseable envelope came back
		return nil, civic.ErrorFromStatus(status, err.Error())
	}
	if status >= http.StatusBadRequest || !envelope.Success {
		message := envelope.Message
		if message == "" {
			message = envelope.Error
		}
		civicErr := civic.ErrorFromStatus(status, message)
		if envelope.Error != "" {
			civicErr.Kind = civic.Kind(envelope.Error)
		}
		civicErr.Details = envelope.Details
		return nil, civicErr
	}
	if result != nil {
		if err := envelope.DecodeData(result); err != nil {
			return nil, civic.NewNetworkError(err)
		}
	}
	return &envelope, nil
}

// SignUp implements Backend.
func (p *PrimaryBackend) SignUp(ctx context.Context, request civic.RegisterRequest) (*civic.AuthResult, error) {
	var result civic.AuthResult
	_, err := p.call(ctx, "", http.MethodPost, "/api/auth/register", nil, request, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SignIn implements Backend.
func (p *PrimaryBackend) SignIn(ctx context.Context, request civic.LoginRequest) (*civic.AuthResult, error) {
	var result civic.AuthResult
	_, err := p.call(ctx, "", http.MethodPost, "/api/auth/login", nil, request, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Refresh implements Backend.
func (p *PrimaryBackend) Refresh(ctx context.Context, refreshToken string) (*civic.AuthResult, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var result civic.AuthResult
	_, err := p.call(ctx, "", http.MethodPost, "/api/auth/refresh", nil, body, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SignOut implements Backend.
func (p *PrimaryBackend) SignOut(ctx context.Context, token string) error {
	_, err := p.call(ctx, token, http.MethodPost, "/api/auth/logout", nil, nil, nil)
	return err
}

// Me implements Backend.
func (p *PrimaryBackend) Me(ctx context.Context, token string) (*civic.User, error) {
	var user civic.User
	_, err := p.call(ctx, token, http.MethodGet, "/api/auth/me", nil, nil, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func listQueryValues(query civic.ListQuery) url.Values {
	v := url.Values{}
	if query.Status != "" {
		v.Set("status", query.Status)
	}
	if query.Category != "" {
		v.Set("category", query.Category)
	}
	if query.Priority != "" {
		v.Set("priority", query.Priority)
	}
	v.Set("limit", strconv.Itoa(query.Limit))
	v.Set("offset", strconv.Itoa(query.Offset))
	v.Set("sort_by", query.SortBy)
	v.Set("sort_order", query.SortOrder)
	return v
}

func pageFromEnvelope(issues []civic.Issue, envelope *civic.Response, query civic.ListQuery) *civic.IssuePage {
	page := civic.IssuePage{
		Issues:     issues,
		Pagination: civic.Pagination{Limit: query.Limit, Offset: query.Offset, Total: len(issues)},
	}
	if envelope.Pagination != nil {
		page.Pagination = *envelope.Pagination
	}
	return &page
}

// ListIssues implements Backend. The API already flags the caller's
// upvotes when a token is sent along.
func (p *PrimaryBackend) ListIssues(ctx context.Context, token string, userID uuid.UUID, query civic.ListQuery) (*civic.IssuePage, error) {
	var issues []civic.Issue
	envelope, err := p.call(ctx, token, http.MethodGet, "/api/issues?"+listQueryValues(query).Encode(), nil, nil, &issues)
	if err != nil {
		return nil, err
	}
	return pageFromEnvelope(issues, envelope, query), nil
}

// GetIssue implements Backend.
func (p *PrimaryBackend) GetIssue(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID) (*civic.Issue, error) {
	var issue civic.Issue
	_, err := p.call(ctx, token, http.MethodGet, "/api/issues/"+id.String(), nil, nil, &issue)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// CreateIssue implements Backend. The marker travels as the
// Idempotency-Key header; a replayed create returns the issue the
// first attempt stored.
func (p *PrimaryBackend) CreateIssue(ctx context.Context, token string, userID uuid.UUID, request civic.CreateIssueRequest, marker string) (*civic.Issue, error) {
	var headers map[string]string
	if marker != "" {
		headers = map[string]string{"Idempotency-Key": marker}
	}
	var issue civic.Issue
	_, err := p.call(ctx, token, http.MethodPost, "/api/issues", headers, request, &issue)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// UpdateIssue implements Backend.
func (p *PrimaryBackend) UpdateIssue(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID, request civic.UpdateIssueRequest) (*civic.Issue, error) {
	var issue civic.Issue
	_, err := p.call(ctx, token, http.MethodPatch, "/api/issues/"+id.String(), nil, request, &issue)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// DeleteIssue implements Backend.
func (p *PrimaryBackend) DeleteIssue(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID) error {
	_, err := p.call(ctx, token, http.MethodDelete, "/api/issues/"+id.String(), nil, nil, nil)
	return err
}

// ToggleUpvote implements Backend.
func (p *PrimaryBackend) ToggleUpvote(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID) (*civic.UpvoteResult, error) {
	var result civic.UpvoteResult
	_, err := p.call(ctx, token, http.MethodPost, "/api/issues/"+id.String()+"/upvote", nil, nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UploadIssueImage implements Backend. The API hands out a pre-signed
// PUT URL; the image goes straight to the storage backend.
func (p *PrimaryBackend) UploadIssueImage(ctx context.Context, token string, userID uuid.UUID, data []byte, contentType string) (string, error) {
	var signed struct {
		Key         string `json:"key"`
		UploadURL   string `json:"upload_url"`
		DownloadURL string `json:"download_url"`
	}
	_, err := p.call(ctx, token, http.MethodGet, "/api/issues/image-upload", nil, nil, &signed)
	if err != nil {
		return "", err
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodPut, signed.UploadURL, bytes.NewReader(data))
	if err != nil {
		return "", civic.NewNetworkError(err)
	}
	r.Header.Set("Content-Type", contentType)
	httpClient := &http.Client{Timeout: 60 * time.Second}
	res, err := httpClient.Do(r)
	if err != nil {
		return "", civic.NewNetworkError(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNoContent {
		return "", civic.ErrorFromStatus(res.StatusCode, "image upload failed")
	}
	return signed.DownloadURL, nil
}

// Comments implements Backend.
func (p *PrimaryBackend) Comments(ctx context.Context, id uuid.UUID) ([]civic.Comment, error) {
	var comments []civic.Comment
	_, err := p.call(ctx, "", http.MethodGet, "/api/issues/"+id.String()+"/comments", nil, nil, &comments)
	if err != nil {
		return nil, err
	}
	return comments, nil
}

// CreateComment implements Backend.
func (p *PrimaryBackend) CreateComment(ctx context.Context, token string, userID uuid.UUID, id uuid.UUID, request civic.CreateCommentRequest) (*civic.Comment, error) {
	var comment civic.Comment
	_, err := p.call(ctx, token, http.MethodPost, "/api/issues/"+id.String()+"/comments", nil, request, &comment)
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// Profile implements Backend.
func (p *PrimaryBackend) Profile(ctx context.Context, token string, userID uuid.UUID) (*civic.Profile, error) {
	var profile civic.Profile
	_, err := p.call(ctx, token, http.MethodGet, "/api/users/profile", nil, nil, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpsertProfile implements Backend.
func (p *PrimaryBackend) UpsertProfile(ctx context.Context, token string, userID uuid.UUID, request civic.UpdateProfileRequest) (*civic.Profile, error) {
	var profile civic.Profile
	_, err := p.call(ctx, token, http.MethodPut, "/api/users/profile", nil, request, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UserIssues implements Backend.
func (p *PrimaryBackend) UserIssues(ctx context.Context, token string, userID uuid.UUID, query civic.ListQuery) (*civic.IssuePage, error) {
	var issues []civic.Issue
	envelope, err := p.call(ctx, token, http.MethodGet, "/api/users/issues?"+listQueryValues(query).Encode(), nil, nil, &issues)
	if err != nil {
		return nil, err
	}
	return pageFromEnvelope(issues, envelope, query), nil
}

// UpvotedIssues implements Backend.
func (p *PrimaryBackend) UpvotedIssues(ctx context.Context, token string, userID uuid.UUID, limit, offset int) (*civic.IssuePage, error) {
	query := civic.ListQuery{Limit: limit, Offset: offset}.Normalize()
	v := url.Values{}
	v.Set("limit", strconv.Itoa(query.Limit))
	v.Set("offset", strconv.Itoa(query.Offset))
	var issues []civic.Issue
	envelope, err := p.call(ctx, token, http.MethodGet, "/api/users/upvoted?"+v.Encode(), nil, nil, &issues)
	if err != nil {
		return nil, err
	}
	return pageFromEnvelope(issues, envelope, query), nil
}

// Stats implements Backend.
func (p *PrimaryBackend) Stats(ctx context.Context, token string, userID uuid.UUID) (*civic.Stats, error) {
	var stats civic.Stats
	_, err := p.call(ctx, token, http.MethodGet, "/api/users/stats", nil, nil, &stats)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health implements Backend.
func (p *PrimaryBackend) Health(ctx context.Context) error {
	_, err := p.call(ctx, "", http.MethodGet, "/api/health", nil, nil, nil)
	return err
}
