package forge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orcherrors "github.com/jordanhubbard/codeopen-orchestrator/internal/errors"
)

func TestGetCurrentUser_SendsTokenHeaderAndParsesUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v1/user", r.URL.Path)
		json.NewEncoder(w).Encode(User{ID: 1, Login: "orchestrator-bot"})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-token")
	user, err := c.GetCurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "orchestrator-bot", user.Login)
}

func TestCreateRepo_Conflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	_, err := c.CreateRepo(context.Background(), "taken-name", "", true, true, "main")
	require.Error(t, err)
	assert.True(t, orcherrors.Is(err, orcherrors.KindConflict))
}

func TestRepoExists_TrueWhenFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Repo{Name: "my-project"})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	ok, err := c.RepoExists(context.Background(), "acme", "my-project")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepoExists_FalseWhenNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	ok, err := c.RepoExists(context.Background(), "acme", "missing-project")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepoExists_PropagatesOtherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	_, err := c.RepoExists(context.Background(), "acme", "my-project")
	assert.Error(t, err)
	assert.True(t, orcherrors.Is(err, orcherrors.KindUpstream))
}

func TestDo_RateLimitedCarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	_, err := c.GetCurrentUser(context.Background())
	require.Error(t, err)
	ms, ok := orcherrors.RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, int64(5000), ms)
}

func TestListContents_SingleFileWrappedInSlice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Content{Name: "README.md", Type: "file"})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	list, err := c.ListContents(context.Background(), "acme", "my-project", "README.md", "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "README.md", list[0].Name)
}

func TestListContents_DirectoryListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Content{{Name: "a.go", Type: "file"}, {Name: "b.go", Type: "file"}})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	list, err := c.ListContents(context.Background(), "acme", "my-project", "", "")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDo_AuthErrorOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "bad-token")
	_, err := c.GetCurrentUser(context.Background())
	require.Error(t, err)
	assert.True(t, orcherrors.Is(err, orcherrors.KindAuth))
}
