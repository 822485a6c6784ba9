package bridge_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KripanshSrivastava/CivicVoice-report/api"
	"github.com/KripanshSrivastava/CivicVoice-report/authn"
	"github.com/KripanshSrivastava/CivicVoice-report/bridge"
	"github.com/KripanshSrivastava/CivicVoice-report/civic"
)

const testJWTSecret = "test-jwt-secret"

// createPrimary wires the primary backend straight into the REST
// handlers, no sockets involved. Tokens are verified locally, so no
// auth provider is needed for the resource operations.
func createPrimary(t *testing.T) (*bridge.PrimaryBackend, *api.MemoryStore) {
	t.Helper()
	router := mux.NewRouter()
	store := api.NewMemoryStore()
	api.New(&api.Builder{
		Store:     store,
		Router:    router,
		Authn:     authn.New("http://auth.invalid", "test-api-key"),
		JWTSecret: testJWTSecret,
	})
	return bridge.NewPrimaryWithRouter(router), store
}

func mintToken(t *testing.T, userID uuid.UUID, email string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func TestPrimaryIssueRoundTrip(t *testing.T) {
	primary, _ := createPrimary(t)
	userID := uuid.New()
	token := mintToken(t, userID, "alice@example.com")
	ctx := context.Background()

	created, err := primary.CreateIssue(ctx, token, userID, civic.CreateIssueRequest{
		Title:       "Broken streetlight",
		Description: "the light at 5th and Main has been out for a week",
		Category:    "Infrastructure",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, userID, created.UserID)
	assert.Equal(t, civic.StatusPending, created.Status)

	fetched, err := primary.GetIssue(ctx, token, userID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)

	page, err := primary.ListIssues(ctx, "", uuid.Nil, civic.ListQuery{}.Normalize())
	require.NoError(t, err)
	require.Len(t, page.Issues, 1)
	assert.Equal(t, 1, page.Pagination.Total)

	require.NoError(t, primary.DeleteIssue(ctx, token, userID, created.ID))
	_, err = primary.GetIssue(ctx, token, userID, created.ID)
	require.Error(t, err)
	assert.Equal(t, civic.KindNotFound, civic.AsError(err).Kind)
}

func TestPrimaryCreateIssueMarkerIsIdempotent(t *testing.T) {
	primary, store := createPrimary(t)
	userID := uuid.New()
	token := mintToken(t, userID, "alice@example.com")
	ctx := context.Background()
	marker := uuid.New().String()

	request := civic.CreateIssueRequest{
		Title:       "Broken streetlight",
		Description: "the light at 5th and Main has been out for a week",
		Category:    "Infrastructure",
	}
	first, err := primary.CreateIssue(ctx, token, userID, request, marker)
	require.NoError(t, err)
	second, err := primary.CreateIssue(ctx, token, userID, request, marker)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	_, total, err := store.Issues(ctx, civic.ListQuery{}, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestPrimaryErrorKindsSurviveTheEnvelope(t *testing.T) {
	primary, _ := createPrimary(t)
	ctx := context.Background()
	userID := uuid.New()
	token := mintToken(t, userID, "alice@example.com")

	// unauthenticated mutation
	_, err := primary.CreateIssue(ctx, "", uuid.Nil, civic.CreateIssueRequest{
		Title:       "Broken streetlight",
		Description: "the light at 5th and Main has been out for a week",
		Category:    "Infrastructure",
	}, "")
	require.Error(t, err)
	assert.Equal(t, civic.KindAuth, civic.AsError(err).Kind)

	// server-side validation, with field details
	_, err = primary.CreateIssue(ctx, token, userID, civic.CreateIssueRequest{
		Title:       "Pot",
		Description: "the description is long enough",
		Category:    "Infrastructure",
	}, "")
	require.Error(t, err)
	civicErr := civic.AsError(err)
	assert.Equal(t, civic.KindValidation, civicErr.Kind)
	assert.NotEmpty(t, civicErr.Details)

	// missing resource
	_, err = primary.GetIssue(ctx, "", uuid.Nil, uuid.New())
	require.Error(t, err)
	assert.Equal(t, civic.KindNotFound, civic.AsError(err).Kind)
	assert.False(t, civic.AsError(err).Retryable())
}

func TestPrimaryToggleUpvoteAndStats(t *testing.T) {
	primary, _ := createPrimary(t)
	ctx := context.Background()
	alice := uuid.New()
	aliceToken := mintToken(t, alice, "alice@example.com")
	bob := uuid.New()
	bobToken := mintToken(t, bob, "bob@example.com")

	issue, err := primary.CreateIssue(ctx, aliceToken, alice, civic.CreateIssueRequest{
		Title:       "Broken streetlight",
		Description: "the light at 5th and Main has been out for a week",
		Category:    "Infrastructure",
	}, "")
	require.NoError(t, err)

	result, err := primary.ToggleUpvote(ctx, bobToken, bob, issue.ID)
	require.NoError(t, err)
	assert.True(t, result.Upvoted)
	assert.Equal(t, 1, result.Upvotes)

	upvoted, err := primary.UpvotedIssues(ctx, bobToken, bob, 20, 0)
	require.NoError(t, err)
	require.Len(t, upvoted.Issues, 1)
	assert.True(t, upvoted.Issues[0].UserHasUpvoted)

	stats, err := primary.Stats(ctx, aliceToken, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalIssues)
	assert.Equal(t, 1, stats.PendingIssues)
}

func TestPrimaryProfileRoundTrip(t *testing.T) {
	primary, _ := createPrimary(t)
	ctx := context.Background()
	userID := uuid.New()
	token := mintToken(t, userID, "alice@example.com")

	_, err := primary.Profile(ctx, token, userID)
	require.Error(t, err)
	assert.Equal(t, civic.KindNotFound, civic.AsError(err).Kind)

	profile, err := primary.UpsertProfile(ctx, token, userID, civic.UpdateProfileRequest{
		DisplayName: "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.DisplayName)

	fetched, err := primary.Profile(ctx, token, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, fetched.UserID)
}

func TestPrimaryHealth(t *testing.T) {
	primary, _ := createPrimary(t)
	require.NoError(t, primary.Health(context.Background()))
}
