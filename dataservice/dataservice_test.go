package dataservice_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
	"github.com/KripanshSrivastava/CivicVoice-report/dataservice"
)

type issueRow struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestQueryPathAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/issues", r.URL.Path)
		assert.Contains(t, r.URL.RawQuery, "select=%2A%2Cprofiles%28display_name%29")
		assert.Contains(t, r.URL.RawQuery, "status=eq.pending")
		assert.Contains(t, r.URL.RawQuery, "order=created_at.desc")
		assert.Equal(t, "0-19", r.Header.Get("Range"))
		assert.Equal(t, "items", r.Header.Get("Range-Unit"))
		assert.Equal(t, "test-api-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode([]issueRow{{ID: "1", Title: "Broken streetlight"}})
	}))
	defer server.Close()

	client := dataservice.New(server.URL, "test-api-key").WithToken("user-token")
	rows := []issueRow{}
	err := client.From("issues").
		Select("*,profiles(display_name)").
		Eq("status", "pending").
		Order("created_at", false).
		Range(0, 19).
		Get(context.Background(), &rows)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Broken streetlight", rows[0].Title)
}

func TestGetWithCountParsesContentRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Prefer"), "count=exact")
		w.Header().Set("Content-Range", "0-1/42")
		json.NewEncoder(w).Encode([]issueRow{{ID: "1"}, {ID: "2"}})
	}))
	defer server.Close()

	client := dataservice.New(server.URL, "test-api-key")
	rows := []issueRow{}
	total, err := client.From("issues").Range(0, 1).GetWithCount(context.Background(), &rows)
	require.NoError(t, err)
	assert.Equal(t, 42, total)
	assert.Len(t, rows, 2)
}

func TestSingleNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.pgrst.object+json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusNotAcceptable)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "PGRST116",
			"message": "JSON object requested, multiple (or no) rows returned",
		})
	}))
	defer server.Close()

	client := dataservice.New(server.URL, "test-api-key")
	var row issueRow
	err := client.From("issues").Eq("id", "missing").Single(context.Background(), &row)
	require.Error(t, err)
	civicErr := civic.AsError(err)
	assert.Equal(t, civic.KindNotFound, civicErr.Kind)
	assert.Equal(t, http.StatusNotFound, civicErr.Status)
}

func TestInsertReturnsRepresentation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Prefer"), "return=representation")

		var rows []issueRow
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rows))
		require.Len(t, rows, 1)
		rows[0].ID = "created"
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	client := dataservice.New(server.URL, "test-api-key")
	created := []issueRow{}
	err := client.From("issues").Insert(context.Background(),
		[]issueRow{{Title: "Broken streetlight"}}, &created)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "created", created[0].ID)
}

func TestUpsertMergesDuplicates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefer := r.Header.Get("Prefer")
		assert.Contains(t, prefer, "resolution=merge-duplicates")
		assert.Contains(t, prefer, "return=representation")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]issueRow{{ID: "fixed-id"}})
	}))
	defer server.Close()

	client := dataservice.New(server.URL, "test-api-key")
	rows := []issueRow{}
	err := client.From("issues").Upsert(context.Background(),
		[]issueRow{{ID: "fixed-id", Title: "Broken streetlight"}}, &rows)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestUpdateAndDelete(t *testing.T) {
	methods := []string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		assert.Contains(t, r.URL.RawQuery, "id=eq.42")
		if r.Method == http.MethodPatch {
			json.NewEncoder(w).Encode([]issueRow{{ID: "42", Title: "patched"}})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := dataservice.New(server.URL, "test-api-key")
	rows := []issueRow{}
	err := client.From("issues").Eq("id", "42").Update(context.Background(),
		map[string]string{"title": "patched"}, &rows)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "patched", rows[0].Title)

	err = client.From("issues").Eq("id", "42").Delete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{http.MethodPatch, http.MethodDelete}, methods)
}

func TestRpc(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/increment_upvotes", r.URL.Path)
		var args map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
		assert.Equal(t, "42", args["issue_id"])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := dataservice.New(server.URL, "test-api-key")
	err := client.Rpc(context.Background(), "increment_upvotes", map[string]string{"issue_id": "42"})
	require.NoError(t, err)
}

func TestErrorMessageFromWireError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "42501",
			"message": "new row violates row-level security policy",
		})
	}))
	defer server.Close()

	client := dataservice.New(server.URL, "test-api-key")
	err := client.From("issues").Insert(context.Background(), []issueRow{{Title: "x"}}, nil)
	require.Error(t, err)
	civicErr := civic.AsError(err)
	assert.Equal(t, civic.KindForbidden, civicErr.Kind)
	assert.Contains(t, civicErr.Message, "row-level security")
}

func TestStorageUploadAndPublicURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/v1/object/issue-images/user/image.png", r.URL.Path)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte("png bytes"), data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := dataservice.New(server.URL, "test-api-key").WithToken("user-token")
	bucket := client.Storage("issue-images")
	err := bucket.Upload(context.Background(), "user/image.png", []byte("png bytes"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/storage/v1/object/public/issue-images/user/image.png",
		bucket.PublicURL("user/image.png"))
}
