package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hum-tech/tsoam/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method string
	path   string
	auth   string
	body   string
}

func newServer(t *testing.T, status int, response string, seen *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*seen = captured{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization"), body: string(body)}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCreate(t *testing.T) {
	var seen captured
	srv := newServer(t, http.StatusCreated, `{"id": 17, "name": "Kofi"}`, &seen)
	c := NewClient(srv.URL+"/api/", StaticToken("secret"), 0, nil)

	got, err := c.Create(context.Background(), "members", json.RawMessage(`{"name":"Kofi"}`))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, seen.method)
	assert.Equal(t, "/api/members", seen.path)
	assert.Equal(t, "Bearer secret", seen.auth)
	assert.JSONEq(t, `{"name":"Kofi"}`, seen.body)
	assert.JSONEq(t, `{"id": 17, "name": "Kofi"}`, string(got))
}

func TestUpdateAndDeletePaths(t *testing.T) {
	var seen captured
	srv := newServer(t, http.StatusOK, `{"id": 3}`, &seen)
	c := NewClient(srv.URL, nil, 0, nil)

	_, err := c.Update(context.Background(), "hr/employees", "3", json.RawMessage(`{"id":3}`))
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, seen.method)
	assert.Equal(t, "/hr/employees/3", seen.path)
	assert.Empty(t, seen.auth)

	require.NoError(t, c.Delete(context.Background(), "finance/transactions", "9"))
	assert.Equal(t, http.MethodDelete, seen.method)
	assert.Equal(t, "/finance/transactions/9", seen.path)
}

func TestNonSuccessStatusIsRemoteError(t *testing.T) {
	var seen captured
	srv := newServer(t, http.StatusInternalServerError, `{"detail":"boom"}`, &seen)
	c := NewClient(srv.URL, nil, 0, nil)

	_, err := c.Create(context.Background(), "members", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRemoteRejected)

	var remoteErr *domain.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, 500, remoteErr.Status)
	assert.Equal(t, "Internal Server Error", remoteErr.StatusText)
	assert.Contains(t, remoteErr.Body, "boom")
}

func TestUnreachableServerIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, nil, 0, nil)
	_, err := c.Create(context.Background(), "members", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrOffline)

	assert.ErrorIs(t, c.Ping(context.Background(), "/health"), domain.ErrOffline)
}

func TestPingAcceptsAnyStatus(t *testing.T) {
	var seen captured
	srv := newServer(t, http.StatusNotFound, ``, &seen)
	c := NewClient(srv.URL, nil, 0, nil)

	require.NoError(t, c.Ping(context.Background(), "/health"))
	assert.Equal(t, "/health", seen.path)
}

func TestFileTokenRereadsEachRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	src := FileToken{Path: path}

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tok, "missing file means not logged in")

	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0600))
	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", tok)

	require.NoError(t, os.WriteFile(path, []byte("second"), 0600))
	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", tok)
}
