package api_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KripanshSrivastava/CivicVoice-report/api"
	"github.com/KripanshSrivastava/CivicVoice-report/api/kss"
	"github.com/KripanshSrivastava/CivicVoice-report/authn"
	"github.com/KripanshSrivastava/CivicVoice-report/civic"
	"github.com/KripanshSrivastava/CivicVoice-report/core/client"
)

const testJWTSecret = "test-jwt-secret"

type testAccount struct {
	id       uuid.UUID
	password string
}

// testAuthServer fakes the managed auth provider: sign-up, password and
// refresh grants, user-info and logout, issuing HS256 tokens with the
// shared test secret.
type testAuthServer struct {
	server *httptest.Server

	mutex                sync.Mutex
	accounts             map[string]*testAccount
	refreshTokens        map[string]string // refresh token -> email
	confirmationRequired bool
}

func mintToken(userID uuid.UUID, email string) string {
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		panic(err)
	}
	return token
}

func newTestAuthServer(t *testing.T) *testAuthServer {
	t.Helper()
	a := &testAuthServer{
		accounts:      map[string]*testAccount{},
		refreshTokens: map[string]string{},
	}
	a.server = httptest.NewServer(http.HandlerFunc(a.handle))
	t.Cleanup(a.server.Close)
	return a
}

func (a *testAuthServer) session(email string, account *testAccount) map[string]interface{} {
	refreshToken := uuid.New().String()
	a.refreshTokens[refreshToken] = email
	return map[string]interface{}{
		"access_token":  mintToken(account.id, email),
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": refreshToken,
		"user":          map[string]string{"id": account.id.String(), "email": email},
	}
}

func (a *testAuthServer) handle(w http.ResponseWriter, r *http.Request) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	w.Header().Set("Content-Type", "application/json")

	writeBody := func(status int, body interface{}) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}

	switch {
	case r.URL.Path == "/auth/v1/signup":
		var request struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&request)
		if _, ok := a.accounts[request.Email]; ok {
			writeBody(http.StatusUnprocessableEntity, map[string]string{"msg": "User already registered"})
			return
		}
		account := &testAccount{id: uuid.New(), password: request.Password}
		a.accounts[request.Email] = account
		if a.confirmationRequired {
			writeBody(http.StatusOK, map[string]interface{}{
				"user": map[string]string{"id": account.id.String(), "email": request.Email},
			})
			return
		}
		writeBody(http.StatusOK, a.session(request.Email, account))

	case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "password":
		var request struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&request)
		account, ok := a.accounts[request.Email]
		if !ok || account.password != request.Password {
			writeBody(http.StatusBadRequest, map[string]string{"error_description": "Invalid login credentials"})
			return
		}
		writeBody(http.StatusOK, a.session(request.Email, account))

	case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "refresh_token":
		var request struct {
			RefreshToken string `json:"refresh_token"`
		}
		json.NewDecoder(r.Body).Decode(&request)
		email, ok := a.refreshTokens[request.RefreshToken]
		if !ok {
			writeBody(http.StatusBadRequest, map[string]string{"error_description": "Invalid Refresh Token"})
			return
		}
		delete(a.refreshTokens, request.RefreshToken)
		writeBody(http.StatusOK, a.session(email, a.accounts[email]))

	case r.URL.Path == "/auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)

	case r.URL.Path == "/auth/v1/resend" || r.URL.Path == "/auth/v1/recover":
		writeBody(http.StatusOK, map[string]string{})

	default:
		writeBody(http.StatusNotFound, map[string]string{"msg": "unknown route"})
	}
}

type testService struct {
	client     client.Client
	store      *api.MemoryStore
	authServer *testAuthServer
}

func createTestService(t *testing.T) *testService {
	t.Helper()
	authServer := newTestAuthServer(t)
	router := mux.NewRouter()
	store := api.NewMemoryStore()
	api.New(&api.Builder{
		Store:     store,
		Router:    router,
		Authn:     authn.New(authServer.server.URL, "test-api-key"),
		JWTSecret: testJWTSecret,
	})
	return &testService{
		client:     client.NewWithRouter(router),
		store:      store,
		authServer: authServer,
	}
}

// createTestServiceWithImages additionally wires a local file storage
// driver so the image-upload route is registered.
func createTestServiceWithImages(t *testing.T) *testService {
	t.Helper()
	authServer := newTestAuthServer(t)
	router := mux.NewRouter()
	store := api.NewMemoryStore()
	publicURL, err := url.Parse("http://localhost:3000")
	require.NoError(t, err)
	driver, err := kss.NewLocalFilesystem(router, t.TempDir(), *publicURL, nil)
	require.NoError(t, err)
	api.New(&api.Builder{
		Store:     store,
		Router:    router,
		Authn:     authn.New(authServer.server.URL, "test-api-key"),
		JWTSecret: testJWTSecret,
		Kss:       driver,
	})
	return &testService{
		client:     client.NewWithRouter(router),
		store:      store,
		authServer: authServer,
	}
}

// signedIn mints an identity without a provider round trip; bearer
// tokens are verified locally against the shared secret.
func (ts *testService) signedIn(t *testing.T, email string) (client.Client, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	return ts.client.WithToken(mintToken(userID, email)), userID
}

func (ts *testService) createIssue(t *testing.T, c client.Client, title string) civic.Issue {
	t.Helper()
	var response civic.Response
	status, err := c.RawPost("/api/issues", civic.CreateIssueRequest{
		Title:       title,
		Description: "something in the neighborhood needs fixing",
		Category:    "Infrastructure",
	}, &response)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)
	var issue civic.Issue
	require.NoError(t, response.DecodeData(&issue))
	return issue
}

func TestRegisterLoginFlow(t *testing.T) {
	ts := createTestService(t)

	var response civic.Response
	status, err := ts.client.RawPost("/api/auth/register", civic.RegisterRequest{
		Email:       "alice@example.com",
		Password:    "secret123",
		DisplayName: "Alice",
	}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.True(t, response.Success)

	var result civic.AuthResult
	require.NoError(t, response.DecodeData(&result))
	require.NotNil(t, result.Session)
	require.NotNil(t, result.User)
	assert.Equal(t, "alice@example.com", result.User.Email)

	// registration seeded the profile with the display name
	profile, err := ts.store.Profile(ts.client.Context(), result.User.ID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Alice", profile.DisplayName)

	response = civic.Response{}
	status, err = ts.client.RawPost("/api/auth/login", civic.LoginRequest{
		Email:    "alice@example.com",
		Password: "secret123",
	}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	result = civic.AuthResult{}
	require.NoError(t, response.DecodeData(&result))
	require.NotNil(t, result.Session)
	assert.NotEmpty(t, result.Session.AccessToken)

	response = civic.Response{}
	status, err = ts.client.RawRequest(http.MethodPost, "/api/auth/login", nil, civic.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong",
	}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, response.Success)
	assert.Equal(t, "Invalid login credentials", response.Message)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	ts := createTestService(t)

	var response civic.Response
	status, err := ts.client.RawRequest(http.MethodPost, "/api/auth/register", nil, civic.RegisterRequest{
		Email:    "alice@example.com",
		Password: "short",
	}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, response.Success)
	require.Len(t, response.Details, 1)
	assert.Equal(t, "password", response.Details[0].Field)
}

func TestRegisterConfirmationPending(t *testing.T) {
	ts := createTestService(t)
	ts.authServer.confirmationRequired = true

	var response civic.Response
	status, err := ts.client.RawPost("/api/auth/register", civic.RegisterRequest{
		Email:    "alice@example.com",
		Password: "secret123",
	}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.Contains(t, response.Message, "confirm")

	var result civic.AuthResult
	require.NoError(t, response.DecodeData(&result))
	assert.Nil(t, result.Session)
}

func TestRefreshSession(t *testing.T) {
	ts := createTestService(t)

	var response civic.Response
	_, err := ts.client.RawPost("/api/auth/register", civic.RegisterRequest{
		Email:    "alice@example.com",
		Password: "secret123",
	}, &response)
	require.NoError(t, err)
	var result civic.AuthResult
	require.NoError(t, response.DecodeData(&result))

	response = civic.Response{}
	status, err := ts.client.RawPost("/api/auth/refresh",
		map[string]string{"refresh_token": result.Session.RefreshToken}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	refreshed := civic.AuthResult{}
	require.NoError(t, response.DecodeData(&refreshed))
	require.NotNil(t, refreshed.Session)
	assert.NotEqual(t, result.Session.RefreshToken, refreshed.Session.RefreshToken)
}

func TestAuthMe(t *testing.T) {
	ts := createTestService(t)

	var response civic.Response
	status, err := ts.client.RawRequest(http.MethodGet, "/api/auth/me", nil, nil, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, response.Success)

	c, userID := ts.signedIn(t, "alice@example.com")
	response = civic.Response{}
	status, err = c.RawGet("/api/auth/me", &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	var user civic.User
	require.NoError(t, response.DecodeData(&user))
	assert.Equal(t, userID, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	ts := createTestService(t)

	var response civic.Response
	status, err := ts.client.RawPost("/api/auth/logout", map[string]string{}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "logged out", response.Message)
}

func TestCreateIssueRequiresAuthentication(t *testing.T) {
	ts := createTestService(t)

	var response civic.Response
	status, err := ts.client.RawRequest(http.MethodPost, "/api/issues", nil, civic.CreateIssueRequest{
		Title:       "Broken streetlight",
		Description: "the light at 5th and Main has been out for a week",
		Category:    "Infrastructure",
	}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, response.Success)
	assert.Equal(t, string(civic.KindAuth), response.Error)
}

func TestCreateIssueValidation(t *testing.T) {
	ts := createTestService(t)
	c, _ := ts.signedIn(t, "alice@example.com")

	var response civic.Response
	status, err := c.RawRequest(http.MethodPost, "/api/issues", nil, civic.CreateIssueRequest{
		Title:       "Pot",
		Description: "the description is long enough",
		Category:    "Infrastructure",
	}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, response.Success)
	assert.Equal(t, string(civic.KindValidation), response.Error)
	var fields []string
	for _, d := range response.Details {
		fields = append(fields, d.Field)
	}
	assert.Contains(t, fields, "title")
}

func TestIssueLifecycle(t *testing.T) {
	ts := createTestService(t)
	alice, aliceID := ts.signedIn(t, "alice@example.com")

	issue := ts.createIssue(t, alice, "Broken streetlight")
	assert.Equal(t, aliceID, issue.UserID)
	assert.Equal(t, civic.StatusPending, issue.Status)
	assert.Equal(t, civic.PriorityMedium, issue.Priority)

	var response civic.Response
	status, err := ts.client.RawGet("/api/issues/"+issue.ID.String(), &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	var fetched civic.Issue
	require.NoError(t, response.DecodeData(&fetched))
	assert.Equal(t, issue.ID, fetched.ID)
	assert.Equal(t, "Broken streetlight", fetched.Title)

	title := "Broken streetlight on Main"
	response = civic.Response{}
	status, err = alice.RawPatch("/api/issues/"+issue.ID.String(),
		civic.UpdateIssueRequest{Title: &title}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	fetched = civic.Issue{}
	require.NoError(t, response.DecodeData(&fetched))
	assert.Equal(t, title, fetched.Title)

	status, err = alice.RawDelete("/api/issues/"+issue.ID.String(), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	response = civic.Response{}
	status, err = ts.client.RawRequest(http.MethodGet, "/api/issues/"+issue.ID.String(), nil, nil, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(civic.KindNotFound), response.Error)
}

func TestIssueOwnership(t *testing.T) {
	ts := createTestService(t)
	alice, _ := ts.signedIn(t, "alice@example.com")
	bob, _ := ts.signedIn(t, "bob@example.com")

	issue := ts.createIssue(t, alice, "Broken streetlight")

	title := "Hijacked"
	var response civic.Response
	status, err := bob.RawRequest(http.MethodPatch, "/api/issues/"+issue.ID.String(), nil,
		civic.UpdateIssueRequest{Title: &title}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, string(civic.KindForbidden), response.Error)

	response = civic.Response{}
	status, err = bob.RawRequest(http.MethodDelete, "/api/issues/"+issue.ID.String(), nil, nil, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, status)

	// the issue is untouched
	issues, total, err := ts.store.Issues(ts.client.Context(), civic.ListQuery{}, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Broken streetlight", issues[0].Title)
}

func TestCreateIssueIdempotency(t *testing.T) {
	ts := createTestService(t)
	alice, _ := ts.signedIn(t, "alice@example.com")

	headers := map[string]string{"Idempotency-Key": uuid.New().String()}
	request := civic.CreateIssueRequest{
		Title:       "Broken streetlight",
		Description: "the light at 5th and Main has been out for a week",
		Category:    "Infrastructure",
	}

	var first civic.Response
	status, err := alice.RawPostWithHeader("/api/issues", headers, request, &first)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)
	var firstIssue civic.Issue
	require.NoError(t, first.DecodeData(&firstIssue))

	var second civic.Response
	status, err = alice.RawPostWithHeader("/api/issues", headers, request, &second)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)
	var secondIssue civic.Issue
	require.NoError(t, second.DecodeData(&secondIssue))

	assert.Equal(t, firstIssue.ID, secondIssue.ID)
	_, total, err := ts.store.Issues(ts.client.Context(), civic.ListQuery{}, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestListIssuesPagination(t *testing.T) {
	ts := createTestService(t)
	alice, _ := ts.signedIn(t, "alice@example.com")
	for i := 0; i < 5; i++ {
		ts.createIssue(t, alice, "Issue number "+string(rune('A'+i)))
	}

	seen := map[uuid.UUID]bool{}
	for offset := 0; offset < 6; offset += 2 {
		var response civic.Response
		status, header, err := ts.client.RawGetWithHeader(
			"/api/issues?limit=2&offset="+strconv.Itoa(offset)+"&sort_by=title&sort_order=asc", nil, &response)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "5", header.Get("Pagination-Total-Count"))
		assert.Equal(t, "2", header.Get("Pagination-Limit"))
		require.NotNil(t, response.Pagination)
		assert.Equal(t, 5, response.Pagination.Total)

		var issues []civic.Issue
		require.NoError(t, response.DecodeData(&issues))
		for _, issue := range issues {
			assert.False(t, seen[issue.ID], "pages must be disjoint")
			seen[issue.ID] = true
		}
	}
	assert.Len(t, seen, 5)
}

func TestListIssuesFilters(t *testing.T) {
	ts := createTestService(t)
	alice, _ := ts.signedIn(t, "alice@example.com")

	issue := ts.createIssue(t, alice, "Broken streetlight")
	ts.createIssue(t, alice, "Overflowing trash can")

	status := civic.StatusResolved
	_, err := alice.RawPatch("/api/issues/"+issue.ID.String(),
		civic.UpdateIssueRequest{Status: &status}, nil)
	require.NoError(t, err)

	var response civic.Response
	_, err = ts.client.RawGet("/api/issues?status=resolved", &response)
	require.NoError(t, err)
	var issues []civic.Issue
	require.NoError(t, response.DecodeData(&issues))
	require.Len(t, issues, 1)
	assert.Equal(t, issue.ID, issues[0].ID)

	// "all" disables the status filter
	response = civic.Response{}
	_, err = ts.client.RawGet("/api/issues?status=all", &response)
	require.NoError(t, err)
	issues = nil
	require.NoError(t, response.DecodeData(&issues))
	assert.Len(t, issues, 2)
}

func TestToggleUpvoteInvolution(t *testing.T) {
	ts := createTestService(t)
	alice, _ := ts.signedIn(t, "alice@example.com")
	bob, _ := ts.signedIn(t, "bob@example.com")

	issue := ts.createIssue(t, alice, "Broken streetlight")

	var response civic.Response
	_, err := bob.RawPost("/api/issues/"+issue.ID.String()+"/upvote", nil, &response)
	require.NoError(t, err)
	var result civic.UpvoteResult
	require.NoError(t, response.DecodeData(&result))
	assert.True(t, result.Upvoted)
	assert.Equal(t, 1, result.Upvotes)

	// the flag shows up on the single-issue read
	response = civic.Response{}
	_, err = bob.RawGet("/api/issues/"+issue.ID.String(), &response)
	require.NoError(t, err)
	var fetched civic.Issue
	require.NoError(t, response.DecodeData(&fetched))
	assert.True(t, fetched.UserHasUpvoted)

	// toggling again restores the original state
	response = civic.Response{}
	_, err = bob.RawPost("/api/issues/"+issue.ID.String()+"/upvote", nil, &response)
	require.NoError(t, err)
	result = civic.UpvoteResult{}
	require.NoError(t, response.DecodeData(&result))
	assert.False(t, result.Upvoted)
	assert.Equal(t, 0, result.Upvotes)
}

func TestComments(t *testing.T) {
	ts := createTestService(t)
	alice, _ := ts.signedIn(t, "alice@example.com")
	bob, bobID := ts.signedIn(t, "bob@example.com")

	issue := ts.createIssue(t, alice, "Broken streetlight")

	var response civic.Response
	status, err := bob.RawPost("/api/issues/"+issue.ID.String()+"/comments",
		civic.CreateCommentRequest{Content: "same on my street"}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	var comment civic.Comment
	require.NoError(t, response.DecodeData(&comment))
	assert.Equal(t, bobID, comment.UserID)

	response = civic.Response{}
	_, err = ts.client.RawGet("/api/issues/"+issue.ID.String()+"/comments", &response)
	require.NoError(t, err)
	var comments []civic.Comment
	require.NoError(t, response.DecodeData(&comments))
	require.Len(t, comments, 1)
	assert.Equal(t, "same on my street", comments[0].Content)

	// the comment count rides on the issue
	response = civic.Response{}
	_, err = ts.client.RawGet("/api/issues/"+issue.ID.String(), &response)
	require.NoError(t, err)
	var fetched civic.Issue
	require.NoError(t, response.DecodeData(&fetched))
	assert.Equal(t, 1, fetched.CommentsCount)

	// commenting on a missing issue fails
	response = civic.Response{}
	status, err = bob.RawRequest(http.MethodPost, "/api/issues/"+uuid.New().String()+"/comments", nil,
		civic.CreateCommentRequest{Content: "into the void"}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestProfileRoundTrip(t *testing.T) {
	ts := createTestService(t)
	alice, aliceID := ts.signedIn(t, "alice@example.com")

	var response civic.Response
	status, err := alice.RawRequest(http.MethodGet, "/api/users/profile", nil, nil, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)

	response = civic.Response{}
	status, err = alice.RawPut("/api/users/profile",
		civic.UpdateProfileRequest{DisplayName: "Alice", Phone: "+49 30 1234567"}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	response = civic.Response{}
	_, err = alice.RawGet("/api/users/profile", &response)
	require.NoError(t, err)
	var profile civic.Profile
	require.NoError(t, response.DecodeData(&profile))
	assert.Equal(t, aliceID, profile.UserID)
	assert.Equal(t, "Alice", profile.DisplayName)
	assert.Equal(t, "+49 30 1234567", profile.Phone)

	// issues now carry the author's display name
	issue := ts.createIssue(t, alice, "Broken streetlight")
	require.NotNil(t, issue.Author)
	assert.Equal(t, "Alice", issue.Author.DisplayName)
}

func TestUserIssuesAndStats(t *testing.T) {
	ts := createTestService(t)
	alice, _ := ts.signedIn(t, "alice@example.com")
	bob, _ := ts.signedIn(t, "bob@example.com")

	first := ts.createIssue(t, alice, "Broken streetlight")
	ts.createIssue(t, alice, "Overflowing trash can")
	bobsIssue := ts.createIssue(t, bob, "Pothole on Elm Street")

	resolved := civic.StatusResolved
	_, err := alice.RawPatch("/api/issues/"+first.ID.String(),
		civic.UpdateIssueRequest{Status: &resolved}, nil)
	require.NoError(t, err)

	_, err = alice.RawPost("/api/issues/"+bobsIssue.ID.String()+"/upvote", nil, nil)
	require.NoError(t, err)
	_, err = alice.RawPost("/api/issues/"+bobsIssue.ID.String()+"/comments",
		civic.CreateCommentRequest{Content: "hit that one with my bike"}, nil)
	require.NoError(t, err)

	var response civic.Response
	_, err = alice.RawGet("/api/users/issues", &response)
	require.NoError(t, err)
	var issues []civic.Issue
	require.NoError(t, response.DecodeData(&issues))
	assert.Len(t, issues, 2)
	for _, issue := range issues {
		assert.NotEqual(t, bobsIssue.ID, issue.ID)
	}

	response = civic.Response{}
	_, err = alice.RawGet("/api/users/stats", &response)
	require.NoError(t, err)
	var stats civic.Stats
	require.NoError(t, response.DecodeData(&stats))
	assert.Equal(t, 2, stats.TotalIssues)
	assert.Equal(t, 1, stats.PendingIssues)
	assert.Equal(t, 1, stats.ResolvedIssues)
	assert.Equal(t, 1, stats.TotalUpvotes)
	assert.Equal(t, 1, stats.TotalComments)
}

func TestUserUpvotedIssues(t *testing.T) {
	ts := createTestService(t)
	alice, _ := ts.signedIn(t, "alice@example.com")
	bob, _ := ts.signedIn(t, "bob@example.com")

	first := ts.createIssue(t, alice, "Broken streetlight")
	second := ts.createIssue(t, alice, "Overflowing trash can")

	_, err := bob.RawPost("/api/issues/"+first.ID.String()+"/upvote", nil, nil)
	require.NoError(t, err)
	_, err = bob.RawPost("/api/issues/"+second.ID.String()+"/upvote", nil, nil)
	require.NoError(t, err)

	var response civic.Response
	_, err = bob.RawGet("/api/users/upvoted", &response)
	require.NoError(t, err)
	var issues []civic.Issue
	require.NoError(t, response.DecodeData(&issues))
	require.Len(t, issues, 2)
	for _, issue := range issues {
		assert.True(t, issue.UserHasUpvoted)
	}
}

func TestInvalidToken(t *testing.T) {
	ts := createTestService(t)

	forged := strings.Join([]string{"eyJhbGciOiJIUzI1NiJ9", "e30", "bm90LWEtc2lnbmF0dXJl"}, ".")
	var response civic.Response
	status, err := ts.client.WithToken(forged).RawRequest(http.MethodGet, "/api/auth/me", nil, nil, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, string(civic.KindAuth), response.Error)
}

func TestHealth(t *testing.T) {
	ts := createTestService(t)

	var response civic.Response
	status, err := ts.client.RawGet("/api/health", &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, response.Success)
}

func TestRejectsUnexpectedSigningMethod(t *testing.T) {
	ts := createTestService(t)

	claims := jwt.MapClaims{
		"sub":   uuid.New().String(),
		"email": "eve@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	var response civic.Response
	status, err := ts.client.WithToken(unsigned).RawRequest(http.MethodGet, "/api/auth/me", nil, nil, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, string(civic.KindAuth), response.Error)
}

func TestImageUploadURLRoute(t *testing.T) {
	ts := createTestServiceWithImages(t)

	// the literal route must win over /issues/{issue_id}
	var response civic.Response
	status, err := ts.client.RawRequest(http.MethodGet, "/api/issues/image-upload", nil, nil, &response)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, string(civic.KindAuth), response.Error)

	c, _ := ts.signedIn(t, "photographer@example.com")
	status, err = c.RawGet("/api/issues/image-upload", &response)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	var urls map[string]string
	require.NoError(t, response.DecodeData(&urls))
	assert.True(t, strings.HasPrefix(urls["key"], "issues/"))
	assert.NotEmpty(t, urls["upload_url"])
	assert.NotEmpty(t, urls["download_url"])
}
