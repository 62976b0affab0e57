package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/portfolio-content/pkg/portfolio"
	"github.com/tendant/portfolio-content/pkg/portfolio/auth"
	"github.com/tendant/portfolio-content/pkg/portfolio/purge"
	"github.com/tendant/portfolio-content/pkg/portfolio/repo/memory"
	memorystorage "github.com/tendant/portfolio-content/pkg/portfolio/storage/memory"
	"github.com/tendant/portfolio-content/pkg/portfolio/viewcache"
)

const (
	adminIdentifier = "admin@example.com"
	adminPassword   = "correct horse"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	t       *testing.T
	server  *httptest.Server
	repo    *memory.Repository
	objects *memorystorage.Backend
	clock   *testClock

	mu      sync.Mutex
	purged  [][]string
	purgeFn func(keys []string) (string, error)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		t:       t,
		repo:    memory.New(),
		objects: memorystorage.New(nil),
		clock:   &testClock{now: time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)},
		purgeFn: func([]string) (string, error) { return "Deleted selected sections", nil },
	}

	views, err := viewcache.New(16)
	require.NoError(t, err)
	activity := portfolio.NewActivityLog(ts.repo, nil)

	svc, err := portfolio.New(
		portfolio.WithRepository(ts.repo),
		portfolio.WithActivityStore(ts.repo),
		portfolio.WithActivityLogger(activity),
		portfolio.WithObjectStore(ts.objects),
		portfolio.WithViewCache(views),
	)
	require.NoError(t, err)

	hash, err := auth.HashCredential(adminPassword)
	require.NoError(t, err)
	authenticator, err := auth.NewStatic(adminIdentifier, hash)
	require.NoError(t, err)

	invoker := purge.InvokerFunc(func(ctx context.Context, keys []string) (string, error) {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		ts.purged = append(ts.purged, keys)
		return ts.purgeFn(keys)
	})
	purges := purge.NewManager(func() (*purge.Protocol, error) {
		return purge.New(svc.Registry(), authenticator, invoker,
			purge.WithClock(ts.clock.Now),
			purge.WithActivityLogger(activity),
			purge.WithViewInvalidator(views),
		)
	})

	h := NewHandler(svc, purges, authenticator, jwtauth.New("HS256", []byte("test-secret"), nil),
		WithActivityLogger(activity),
		WithSessionTTL(time.Hour),
	)
	ts.server = httptest.NewServer(h.Routes())
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) do(method, path, token string, body io.Reader, contentType string) *http.Response {
	ts.t.Helper()
	req, err := http.NewRequest(method, ts.server.URL+path, body)
	require.NoError(ts.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := ts.server.Client().Do(req)
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) doJSON(method, path, token string, payload interface{}) *http.Response {
	ts.t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(ts.t, err)
		body = bytes.NewReader(data)
	}
	return ts.do(method, path, token, body, "application/json")
}

func (ts *testServer) login() string {
	ts.t.Helper()
	resp := ts.doJSON(http.MethodPost, "/auth/login", "", LoginRequest{Identifier: adminIdentifier, Password: adminPassword})
	require.Equal(ts.t, http.StatusOK, resp.StatusCode)
	var out LoginResponse
	decode(ts.t, resp, &out)
	require.NotEmpty(ts.t, out.Token)
	return out.Token
}

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var out ErrorResponse
	decode(t, resp, &out)
	return out.Error.Code
}

func multipartBody(t *testing.T, fields map[string]interface{}, fileName string, extra map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fields != nil {
		data, err := json.Marshal(fields)
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("fields", string(data)))
	}
	for k, v := range extra {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write([]byte("image bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.doJSON(http.MethodPost, "/auth/login", "", LoginRequest{Identifier: adminIdentifier, Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, portfolio.KindAuthentication, errorCode(t, resp))

	resp = ts.doJSON(http.MethodPost, "/auth/login", "", LoginRequest{Identifier: adminIdentifier})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	token := ts.login()
	entries, err := ts.repo.ListActivity(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, portfolio.ActionAdminLogin, entries[0].ActionType)
	assert.Equal(t, adminIdentifier, entries[0].UserIdentifier)

	resp = ts.doJSON(http.MethodGet, "/groups", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var groups []portfolio.ResourceGroup
	decode(t, resp, &groups)
	assert.Equal(t, "hero", groups[0].Key)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/groups", "/records/projects", "/deletion", "/activity"} {
		resp := ts.doJSON(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		assert.Equal(t, portfolio.KindNotAuthenticated, errorCode(t, resp), path)
	}

	resp := ts.doJSON(http.MethodGet, "/groups", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRecordAssetLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login()

	body, ct := multipartBody(t, map[string]interface{}{"title": "Portfolio CMS"}, "screenshot.png", nil)
	resp := ts.do(http.MethodPost, "/records/projects", token, body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created RecordResponse
	decode(t, resp, &created)

	firstURL, _ := created.Fields["image_url"].(string)
	firstKey, ok := portfolio.ResolvePath(firstURL, "project-images")
	require.True(t, ok, firstURL)
	assert.True(t, ts.objects.Exists("project-images", firstKey))

	// replace
	body, ct = multipartBody(t, map[string]interface{}{"title": "Portfolio CMS v2"}, "new.png", nil)
	resp = ts.do(http.MethodPut, "/records/projects/"+created.ID, token, body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var replaced RecordResponse
	decode(t, resp, &replaced)
	secondURL, _ := replaced.Fields["image_url"].(string)
	assert.NotEqual(t, firstURL, secondURL)
	assert.False(t, ts.objects.Exists("project-images", firstKey))
	assert.Len(t, ts.objects.Keys("project-images"), 1)

	// clear
	resp = ts.doJSON(http.MethodPut, "/records/projects/"+created.ID, token, SaveRecordBody{
		Fields: map[string]interface{}{"title": "Portfolio CMS v2"},
		Clear:  true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cleared RecordResponse
	decode(t, resp, &cleared)
	assert.Nil(t, cleared.Fields["image_url"])
	assert.Empty(t, ts.objects.Keys("project-images"))

	// delete
	resp = ts.doJSON(http.MethodDelete, "/records/projects/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = ts.doJSON(http.MethodGet, "/records/projects/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, portfolio.KindRecordNotFound, errorCode(t, resp))
}

func TestRecordValidation(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login()

	resp := ts.doJSON(http.MethodPost, "/records/blog_posts", token, SaveRecordBody{Fields: map[string]interface{}{"title": "x"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, portfolio.KindValidation, errorCode(t, resp))

	resp = ts.doJSON(http.MethodGet, "/records/projects/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, ct := multipartBody(t, nil, "", map[string]string{"clear": "maybe"})
	resp = ts.do(http.MethodPost, "/records/projects", token, body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.doJSON(http.MethodGet, "/activity?limit=-1", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPublicListing(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login()

	resp := ts.doJSON(http.MethodPost, "/records/skills", token, SaveRecordBody{Fields: map[string]interface{}{"name": "Go"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.doJSON(http.MethodGet, "/public/skills", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []RecordResponse
	decode(t, resp, &records)
	require.Len(t, records, 1)
	assert.Equal(t, "Go", records[0].Fields["name"])

	resp = ts.doJSON(http.MethodGet, "/public/admin_activity_log", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeletionFlow(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login()

	resp := ts.doJSON(http.MethodPost, "/deletion/initiate", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, portfolio.KindNoSelection, errorCode(t, resp))

	resp = ts.doJSON(http.MethodPut, "/deletion/selection", token, SelectionRequest{GroupKeys: []string{"blog"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, portfolio.KindUnknownGroup, errorCode(t, resp))

	resp = ts.doJSON(http.MethodPut, "/deletion/selection", token, SelectionRequest{GroupKeys: []string{"skills", "projects"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status purge.Status
	decode(t, resp, &status)
	assert.Equal(t, []string{"projects", "skills"}, status.SelectedGroupKeys)

	resp = ts.doJSON(http.MethodPost, "/deletion/initiate", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &status)
	assert.Equal(t, purge.StateAwaitingPassword, status.State)

	resp = ts.doJSON(http.MethodPut, "/deletion/selection", token, SelectionRequest{GroupKeys: []string{"hero"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, purge.CodeSelectionLocked, errorCode(t, resp))

	resp = ts.doJSON(http.MethodPost, "/deletion/reauthenticate", token, ReauthenticateRequest{Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.doJSON(http.MethodPost, "/deletion/reauthenticate", token, ReauthenticateRequest{Identifier: adminIdentifier, Password: adminPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &status)
	assert.Equal(t, purge.StateCountdownArmed, status.State)
	assert.False(t, status.ConfirmEnabled)

	resp = ts.doJSON(http.MethodPost, "/deletion/confirm", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, portfolio.KindCountdownActive, errorCode(t, resp))
	assert.Empty(t, ts.purged)

	ts.clock.Advance(purge.DefaultCountdown)

	resp = ts.doJSON(http.MethodGet, "/deletion/countdown", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	stream, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(stream), "data: 0\n\n")

	resp = ts.doJSON(http.MethodPost, "/deletion/confirm", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var confirmed ConfirmResponse
	decode(t, resp, &confirmed)
	assert.Equal(t, "Deleted selected sections", confirmed.Message)
	assert.Equal(t, purge.StateCompleted, confirmed.Status.State)
	assert.Equal(t, [][]string{{"projects", "skills"}}, ts.purged)

	resp = ts.doJSON(http.MethodPost, "/deletion/dismiss", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &status)
	assert.Equal(t, purge.StateIdle, status.State)

	entries, err := ts.repo.ListActivity(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, portfolio.ActionDataDeletionSelective, entries[0].ActionType)
}

func TestDeletionRemoteFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.purgeFn = func([]string) (string, error) {
		return "", &portfolio.PurgeError{Remote: true, Message: "Failed to delete rows from skills"}
	}
	token := ts.login()

	for _, step := range []struct {
		method, path string
		payload      interface{}
	}{
		{http.MethodPut, "/deletion/selection", SelectionRequest{GroupKeys: []string{"skills"}}},
		{http.MethodPost, "/deletion/initiate", nil},
		{http.MethodPost, "/deletion/reauthenticate", ReauthenticateRequest{Password: adminPassword}},
	} {
		resp := ts.doJSON(step.method, step.path, token, step.payload)
		require.Equal(t, http.StatusOK, resp.StatusCode, step.path)
	}
	ts.clock.Advance(purge.DefaultCountdown)

	resp := ts.doJSON(http.MethodPost, "/deletion/confirm", token, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var out ErrorResponse
	decode(t, resp, &out)
	assert.Equal(t, portfolio.KindRemoteDeletion, out.Error.Code)
	assert.Equal(t, "Failed to delete rows from skills", out.Error.Message)

	resp = ts.doJSON(http.MethodGet, "/deletion", token, nil)
	var status purge.Status
	decode(t, resp, &status)
	assert.Equal(t, purge.StateFailed, status.State)
	assert.Equal(t, []string{"skills"}, status.SelectedGroupKeys)
}

func TestCancelAndLogout(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login()

	resp := ts.doJSON(http.MethodPut, "/deletion/selection", token, SelectionRequest{GroupKeys: []string{"hero"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = ts.doJSON(http.MethodPost, "/deletion/initiate", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.doJSON(http.MethodPost, "/deletion/cancel", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status purge.Status
	decode(t, resp, &status)
	assert.Equal(t, purge.StateIdle, status.State)
	assert.Empty(t, status.SelectedGroupKeys)

	resp = ts.doJSON(http.MethodGet, "/deletion/countdown", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.doJSON(http.MethodPost, "/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{portfolio.Validationf("bad"), http.StatusBadRequest},
		{&portfolio.UnknownResourceGroupError{Keys: []string{"x"}}, http.StatusBadRequest},
		{portfolio.ErrRecordNotFound, http.StatusNotFound},
		{&portfolio.AuthError{Identifier: "a"}, http.StatusUnauthorized},
		{&purge.TransitionError{Code: purge.CodeInvalidTransition}, http.StatusConflict},
		{&portfolio.PurgeError{Message: "boom"}, http.StatusBadGateway},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(w, r, newDiscardLogger(), io.ErrUnexpectedEOF)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"message":"internal server error"`))
}
