package kss_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KripanshSrivastava/CivicVoice-report/api/kss"
)

func createLocalDriver(t *testing.T) (*kss.LocalFilesystem, *httptest.Server) {
	t.Helper()
	router := mux.NewRouter()
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	publicURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	driver, err := kss.NewLocalFilesystem(router, t.TempDir(), *publicURL, nil)
	require.NoError(t, err)
	return driver, server
}

func TestLocalFilesystemRoundTrip(t *testing.T) {
	driver, _ := createLocalDriver(t)
	key := "issues/user-1/image-1"
	content := []byte("png bytes")

	uploadURL, err := driver.GetPreSignedURL(http.MethodPut, key, time.Minute)
	require.NoError(t, err)

	request, err := http.NewRequest(http.MethodPut, uploadURL, bytes.NewReader(content))
	require.NoError(t, err)
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)

	downloadURL, err := driver.GetPreSignedURL(http.MethodGet, key, time.Minute)
	require.NoError(t, err)
	response, err = http.Get(downloadURL)
	require.NoError(t, err)
	defer response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)
	downloaded, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	assert.Equal(t, content, downloaded)
}

func TestLocalFilesystemRejectsExpiredURL(t *testing.T) {
	driver, _ := createLocalDriver(t)

	staleURL, err := driver.GetPreSignedURL(http.MethodGet, "issues/user-1/image-1", -time.Minute)
	require.NoError(t, err)
	response, err := http.Get(staleURL)
	require.NoError(t, err)
	response.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
}

func TestLocalFilesystemRejectsTamperedURL(t *testing.T) {
	driver, _ := createLocalDriver(t)

	signedURL, err := driver.GetPreSignedURL(http.MethodGet, "issues/user-1/image-1", time.Minute)
	require.NoError(t, err)
	tampered := strings.Replace(signedURL, "image-1", "image-2", 1)
	response, err := http.Get(tampered)
	require.NoError(t, err)
	response.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
}

func TestLocalFilesystemRejectsMethodMismatch(t *testing.T) {
	driver, _ := createLocalDriver(t)

	downloadURL, err := driver.GetPreSignedURL(http.MethodGet, "issues/user-1/image-1", time.Minute)
	require.NoError(t, err)
	request, err := http.NewRequest(http.MethodPut, downloadURL, bytes.NewReader([]byte("sneaky")))
	require.NoError(t, err)
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	response.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
}

func TestLocalFilesystemRejectsPathTraversal(t *testing.T) {
	driver, _ := createLocalDriver(t)

	_, err := driver.GetPreSignedURL(http.MethodGet, "../etc/passwd", time.Minute)
	require.Error(t, err)
}

func TestLocalFilesystemDeleteAllWithPrefix(t *testing.T) {
	driver, _ := createLocalDriver(t)
	key := "issues/user-1/image-1"
	content := []byte("png bytes")

	uploadURL, err := driver.GetPreSignedURL(http.MethodPut, key, time.Minute)
	require.NoError(t, err)
	request, err := http.NewRequest(http.MethodPut, uploadURL, bytes.NewReader(content))
	require.NoError(t, err)
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	response.Body.Close()

	require.NoError(t, driver.DeleteAllWithPrefix("issues/user-1"))

	downloadURL, err := driver.GetPreSignedURL(http.MethodGet, key, time.Minute)
	require.NoError(t, err)
	response, err = http.Get(downloadURL)
	require.NoError(t, err)
	response.Body.Close()
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}
