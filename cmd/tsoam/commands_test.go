package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiRequest struct {
	Method string
	Path   string
	Body   string
}

// fakeAPI answers every GET with an empty list and echoes POSTs with an id.
type fakeAPI struct {
	mu       sync.Mutex
	requests []apiRequest
	nextID   int
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(srv.Close)
	return api, srv
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodGet {
		_, _ = w.Write([]byte(`[]`))
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, apiRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	obj["id"] = id
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(obj)
}

func (f *fakeAPI) Requests() []apiRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]apiRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// writeConfig points the CLI at baseURL with the given store and keeps the
// log file inside the test directory.
func writeConfig(t *testing.T, baseURL, driver string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`api:
  base_url: %s
store:
  driver: %s
  path: %s
logging:
  file: %s
`, baseURL, driver, filepath.Join(dir, "offline.db"), filepath.Join(dir, "tsoam.log"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// runCLI executes one command line against rootCmd and returns its output.
// Flag variables outlive Execute, so they are reset first.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, forceOffline, debugLog = "", false, false
	queueSyncNow, statusJSON, statusPending = false, false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func statusJSONOutput(t *testing.T, cfgPath string) map[string]any {
	t.Helper()
	out, err := runCLI(t, "--config", cfgPath, "status", "--json")
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &status), out)
	return status
}

func TestQueueWithSyncReplaysAgainstAPI(t *testing.T) {
	api, srv := newFakeAPI(t)
	cfgPath := writeConfig(t, srv.URL, "memory")

	out, err := runCLI(t, "--config", cfgPath, "queue", "members", "create", `{"name":"Grace Wanjiru"}`, "--sync")
	require.NoError(t, err, out)

	assert.Contains(t, out, "Queued members CREATE")
	assert.Contains(t, out, "Complete: Synced 1 operations")
	assert.Contains(t, out, "Succeeded: 1  Dropped: 0")

	reqs := api.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/members", reqs[0].Path)
	assert.JSONEq(t, `{"name":"Grace Wanjiru"}`, reqs[0].Body)
}

func TestQueueOfflineThenSync(t *testing.T) {
	api, srv := newFakeAPI(t)
	cfgPath := writeConfig(t, srv.URL, "bolt")

	out, err := runCLI(t, "--config", cfgPath, "--offline", "queue", "events", "create", `{"title":"Harvest Sunday"}`)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Queued events CREATE")

	out, err = runCLI(t, "--config", cfgPath, "--offline", "sync")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Offline: 1 operation(s) stay queued")
	assert.Empty(t, api.Requests())

	status := statusJSONOutput(t, cfgPath)
	assert.EqualValues(t, 1, status["pendingOperations"])
	assert.NotContains(t, status, "lastSync")

	out, err = runCLI(t, "--config", cfgPath, "sync")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Succeeded: 1")

	reqs := api.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/events", reqs[0].Path)
	assert.JSONEq(t, `{"title":"Harvest Sunday"}`, reqs[0].Body)

	status = statusJSONOutput(t, cfgPath)
	assert.EqualValues(t, 0, status["pendingOperations"])
	assert.Contains(t, status, "lastSync")
}

func TestQueueRejectsUnknownModule(t *testing.T) {
	_, srv := newFakeAPI(t)
	cfgPath := writeConfig(t, srv.URL, "memory")

	_, err := runCLI(t, "--config", cfgPath, "queue", "memebrs", "create", `{}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "members"`)
}
