package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"cdr.dev/slog/v3/sloggers/slogtest"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"example.com/exercisetracker/internal/domain"
	"example.com/exercisetracker/internal/persistence/memory"
)

var fixedNow = time.Date(2023, time.June, 15, 18, 30, 0, 0, time.UTC)

func newTestRouter(t *testing.T, repo domain.Repository) http.Handler {
	t.Helper()
	seq := 0
	nextID := func() string {
		seq++
		return fmt.Sprintf("user-%d", seq)
	}
	service := domain.NewService(repo, nextID, domain.WithClock(func() time.Time { return fixedNow }))
	handler := NewHandler(service, slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}))
	return handler.Router(RouterConfig{Metrics: promhttp.Handler()})
}

func postForm(t *testing.T, router http.Handler, path string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func createUser(t *testing.T, router http.Handler, username string) UserView {
	t.Helper()
	rr := postForm(t, router, "/api/exercise/new-user", url.Values{"username": {username}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var view UserView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	return view
}

func addExercise(t *testing.T, router http.Handler, values url.Values) LogView {
	t.Helper()
	rr := postForm(t, router, "/api/exercise/add", values)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var view LogView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	return view
}

func TestCreateUser(t *testing.T) {
	router := newTestRouter(t, memory.NewRepository())

	rr := postForm(t, router, "/api/exercise/new-user", url.Values{"username": {"alice"}})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"username":"alice","id":"user-1"}`, rr.Body.String())
}

func TestCreateUserRequiresUsername(t *testing.T) {
	router := newTestRouter(t, memory.NewRepository())

	for _, username := range []string{"", "   "} {
		rr := postForm(t, router, "/api/exercise/new-user", url.Values{"username": {username}})
		require.Equal(t, http.StatusBadRequest, rr.Code)
		require.Equal(t, "Username required.", rr.Body.String())
		require.Contains(t, rr.Header().Get("Content-Type"), "text/plain")
	}

	rr := get(t, router, "/api/exercise/users")
	require.JSONEq(t, `[]`, rr.Body.String())
}

func TestListUsers(t *testing.T) {
	router := newTestRouter(t, memory.NewRepository())
	createUser(t, router, "alice")
	createUser(t, router, "bob")

	rr := get(t, router, "/api/exercise/users")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[{"username":"alice","id":"user-1"},{"username":"bob","id":"user-2"}]`, rr.Body.String())
}

func TestAddExercise(t *testing.T) {
	router := newTestRouter(t, memory.NewRepository())
	user := createUser(t, router, "alice")

	view := addExercise(t, router, url.Values{
		"userId":      {user.ID},
		"description": {"run"},
		"duration":    {"30"},
		"date":        {"2023-01-01"},
	})

	require.Equal(t, LogView{
		ID:       user.ID,
		Username: "alice",
		Count:    1,
		Log:      []EntryView{{Description: "run", Duration: 30, Date: "Sunday, Jan 1, 2023"}},
	}, view)
}

func TestAddExerciseDefaultsToToday(t *testing.T) {
	router := newTestRouter(t, memory.NewRepository())
	user := createUser(t, router, "alice")

	view := addExercise(t, router, url.Values{
		"userId":      {user.ID},
		"description": {"swim"},
		"duration":    {"0"},
	})
	require.Len(t, view.Log, 1)
	require.Equal(t, "Thursday, Jun 15, 2023", view.Log[0].Date)
	require.Equal(t, 0, view.Log[0].Duration)
}

func TestAddExerciseAcceptsJSON(t *testing.T) {
	router := newTestRouter(t, memory.NewRepository())
	user := createUser(t, router, "alice")

	body := fmt.Sprintf(`{"userId":%q,"description":"row","duration":45,"date":"2023-03-04"}`, user.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/exercise/add", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.JSONEq(t,
		fmt.Sprintf(`{"id":%q,"username":"alice","count":1,"log":[{"description":"row","duration":45,"date":"Saturday, Mar 4, 2023"}]}`, user.ID),
		rr.Body.String())
}

func TestAddExerciseAcceptsMultipart(t *testing.T) {
	router := newTestRouter(t, memory.NewRepository())
	user := createUser(t, router, "alice")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("userId", user.ID))
	require.NoError(t, mw.WriteField("description", "yoga"))
	require.NoError(t, mw.WriteField("duration", "20"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/exercise/add", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"description":"yoga"`)
}

func TestAddExerciseRejectsMalformedJSON(t *testing.T) {
	router := newTestRouter(t, memory.NewRepository())

	req := httptest.NewRequest(http.MethodPost, "/api/exercise/add", strings.NewReader(`{"userId":`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, errMalformedBody.Error(), rr.Body.String())
}

func TestAddExerciseFailures(t *testing.T) {
	router := newTestRouter(t, memory.NewRepository())
	user := createUser(t, router, "alice")

	tests := []struct {
		name   string
		values url.Values
		status int
		body   string
	}{
		{
			name:   "missing userId",
			values: url.Values{"description": {"run"}, "duration": {"30"}},
			status: http.StatusBadRequest,
			body:   `"userId" field required!`,
		},
		{
			name:   "missing description",
			values: url.Values{"userId": {user.ID}, "duration": {"30"}},
			status: http.StatusBadRequest,
			body:   `"description" field required!`,
		},
		{
			name:   "missing duration",
			values: url.Values{"userId": {user.ID}, "description": {"run"}},
			status: http.StatusBadRequest,
			body:   `"duration" field required!`,
		},
		{
			name:   "unknown user",
			values: url.Values{"userId": {"nobody"}, "description": {"run"}, "duration": {"30"}},
			status: http.StatusNotFound,
			body:   "Invalid _id!",
		},
		{
			name:   "invalid date",
			values: url.Values{"userId": {user.ID}, "description": {"run"}, "duration": {"30"}, "date": {"2023-02-30"}},
			status: http.StatusBadRequest,
			body:   "Invalid Date!",
		},
		{
			name:   "invalid duration",
			values: url.Values{"userId": {user.ID}, "description": {"run"}, "duration": {"thirty"}},
			status: http.StatusBadRequest,
			body:   "Invalid duration!",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := postForm(t, router, "/api/exercise/add", tc.values)
			require.Equal(t, tc.status, rr.Code)
			require.Equal(t, tc.body, rr.Body.String())
		})
	}

	rr := get(t, router, "/api/exercise/log?userId="+user.ID)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"count":0`)
}

func TestQueryLog(t *testing.T) {
	router := newTestRouter(t, memory.NewRepository())
	user := createUser(t, router, "alice")

	for _, date := range []string{"2023-01-01", "2023-01-05", "2023-01-10"} {
		addExercise(t, router, url.Values{
			"userId":      {user.ID},
			"description": {"run " + date},
			"duration":    {"10"},
			"date":        {date},
		})
	}

	decode := func(rr *httptest.ResponseRecorder) LogView {
		t.Helper()
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var view LogView
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
		return view
	}

	full := decode(get(t, router, "/api/exercise/log?userId="+user.ID))
	require.Equal(t, 3, full.Count)
	require.Len(t, full.Log, 3)

	windowed := decode(get(t, router, "/api/exercise/log?userId="+user.ID+"&from=2023-01-02&to=2023-01-10"))
	require.Equal(t, 3, windowed.Count)
	require.Equal(t, []EntryView{{Description: "run 2023-01-05", Duration: 10, Date: "Thursday, Jan 5, 2023"}}, windowed.Log)

	limited := decode(get(t, router, "/api/exercise/log?userId="+user.ID+"&limit=2"))
	require.Len(t, limited.Log, 2)
	require.Equal(t, "run 2023-01-01", limited.Log[0].Description)

	none := decode(get(t, router, "/api/exercise/log?userId="+user.ID+"&limit=0"))
	require.Empty(t, none.Log)
	require.Equal(t, 3, none.Count)
}

func TestQueryLogFailures(t *testing.T) {
	router := newTestRouter(t, memory.NewRepository())
	user := createUser(t, router, "alice")

	tests := []struct {
		target string
		status int
		body   string
	}{
		{"/api/exercise/log", http.StatusBadRequest, "userId not specified"},
		{"/api/exercise/log?userId=ghost", http.StatusNotFound, "Invalid userId"},
		{"/api/exercise/log?userId=" + user.ID + "&from=yesterday", http.StatusBadRequest, "Invalid query value: from"},
		{"/api/exercise/log?userId=" + user.ID + "&to=soon", http.StatusBadRequest, "Invalid query value: to"},
		{"/api/exercise/log?userId=" + user.ID + "&limit=abc", http.StatusBadRequest, "Invalid query value: limit"},
	}

	for _, tc := range tests {
		rr := get(t, router, tc.target)
		require.Equal(t, tc.status, rr.Code, tc.target)
		require.Equal(t, tc.body, rr.Body.String(), tc.target)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	router := newTestRouter(t, memory.NewRepository())

	rr := get(t, router, "/api/exercise/nope")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "not found", rr.Body.String())

	rr = get(t, router, "/api/exercise/add")
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.Equal(t, "method not allowed", rr.Body.String())
}

func TestStoreFailureIsInternalError(t *testing.T) {
	router := newTestRouter(t, brokenRepo{})

	rr := get(t, router, "/api/exercise/users")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "Internal Server Error", rr.Body.String())

	rr = postForm(t, router, "/api/exercise/new-user", url.Values{"username": {"alice"}})
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestIndexHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, memory.NewRepository())

	rr := get(t, router, "/")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rr.Body.String(), "/api/exercise/new-user")

	rr = get(t, router, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())

	rr = get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "exercise_tracker_http_request_duration_seconds")
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, memory.NewRepository())

	req := httptest.NewRequest(http.MethodOptions, "/api/exercise/add", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

type brokenRepo struct{}

var errStoreDown = errors.New("store unavailable")

func (brokenRepo) CreateUser(context.Context, domain.User) error { return errStoreDown }

func (brokenRepo) ListUsers(context.Context) ([]domain.UserSummary, error) {
	return nil, errStoreDown
}

func (brokenRepo) GetUser(context.Context, string) (*domain.User, error) {
	return nil, errStoreDown
}

func (brokenRepo) AppendExercise(context.Context, string, domain.ExerciseEntry) (*domain.User, error) {
	return nil, errStoreDown
}

func TestRateLimitPerClient(t *testing.T) {
	service := domain.NewService(memory.NewRepository(), func() string { return "user-1" })
	handler := NewHandler(service, slogtest.Make(t, nil))
	router := handler.Router(RouterConfig{RateLimit: 2, RateWindow: time.Minute})

	for i := 0; i < 2; i++ {
		rr := get(t, router, "/api/exercise/users")
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := get(t, router, "/api/exercise/users")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "Too many requests, please try again later.", rr.Body.String())

	rr = get(t, router, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
}
