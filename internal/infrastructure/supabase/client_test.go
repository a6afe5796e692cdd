package supabase

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/orbito-profiles/internal/domain/profile"
	"github.com/riskibarqy/orbito-profiles/internal/platform/resilience"
	"github.com/riskibarqy/orbito-profiles/internal/usecase"
)

const testAPIKey = "test-anon-key"

func newTestClient(t *testing.T, srv *httptest.Server, breaker resilience.CircuitBreakerConfig) *Client {
	t.Helper()

	client, err := NewClient(ClientConfig{
		HTTPClient:     srv.Client(),
		BaseURL:        srv.URL + "/",
		APIKey:         testAPIKey,
		CircuitBreaker: breaker,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, payload any) {
	t.Helper()

	raw, err := sonic.Marshal(payload)
	if err != nil {
		t.Errorf("marshal payload: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func TestClientGetByID_SendsCredentialsAndParsesRow(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/rest/v1/profiles" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("apikey"); got != testAPIKey {
			t.Errorf("unexpected apikey header: %s", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer "+testAPIKey {
			t.Errorf("unexpected authorization header: %s", got)
		}
		query := r.URL.Query()
		if query.Get("id") != "eq.u1" || query.Get("select") != "*" || query.Get("limit") != "1" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}

		writeJSON(t, w, http.StatusOK, []map[string]any{{
			"id":         "u1",
			"email":      "a@b.com",
			"full_name":  "A B",
			"role":       "admin",
			"department": "Eng",
			"position":   nil,
			"created_at": "2025-10-01T12:00:00.123456",
			"updated_at": "2025-10-01T12:00:00.123456+00:00",
			"avatar_url": "ignored",
		}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, resilience.CircuitBreakerConfig{Enabled: false})
	got, found, err := client.GetByID(t.Context(), "u1")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if !found {
		t.Fatalf("expected profile to be found")
	}

	want := time.Date(2025, 10, 1, 12, 0, 0, 123456000, time.UTC)
	if got.ID != "u1" || got.Email != "a@b.com" || got.Role != "admin" || got.Position != "" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.CreatedAt.Equal(want) || !got.UpdatedAt.Equal(want) {
		t.Fatalf("unexpected timestamps: %s %s", got.CreatedAt, got.UpdatedAt)
	}
}

func TestClientGetByID_EmptyResultIsNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, []any{})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, resilience.CircuitBreakerConfig{Enabled: false})
	_, found, err := client.GetByID(t.Context(), "missing")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if found {
		t.Fatalf("expected not found")
	}
}

func TestClientInsert_PostsRowAndReturnsEcho(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 18, 8, 0, 0, 5000, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("Prefer"); got != "return=representation" {
			t.Errorf("unexpected Prefer header: %s", got)
		}
		if r.URL.Query().Has("on_conflict") {
			t.Errorf("strict insert must not set on_conflict")
		}

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		var body map[string]any
		if err := sonic.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["id"] != "u1" || body["email"] != "a@b.com" || body["full_name"] != "A B" {
			t.Errorf("unexpected body: %s", raw)
		}
		if body["created_at"] != "2026-10-18T08:00:00.000005Z" || body["created_at"] != body["updated_at"] {
			t.Errorf("unexpected timestamps in body: %s", raw)
		}

		body["full_name"] = "A B (trimmed by trigger)"
		writeJSON(t, w, http.StatusCreated, []map[string]any{body})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, resilience.CircuitBreakerConfig{Enabled: false})
	rec := profile.NewRecord("u1", profile.Fields{Email: "a@b.com", FullName: "A B", Role: "admin"}, now)

	got, echoed, err := client.Insert(t.Context(), rec, profile.InsertModeStrict)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !echoed {
		t.Fatalf("expected echoed row")
	}
	if got.FullName != "A B (trimmed by trigger)" {
		t.Fatalf("expected server echo to win, got %q", got.FullName)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected created_at: %s", got.CreatedAt)
	}
}

func TestClientInsert_IgnoreDuplicatesEmptyEcho(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("on_conflict"); got != "id" {
			t.Errorf("unexpected on_conflict: %q", got)
		}
		if got := r.Header.Get("Prefer"); got != "resolution=ignore-duplicates,return=representation" {
			t.Errorf("unexpected Prefer header: %s", got)
		}
		writeJSON(t, w, http.StatusCreated, []any{})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, resilience.CircuitBreakerConfig{Enabled: false})
	_, echoed, err := client.Insert(t.Context(), profile.Record{ID: "u1", Email: "a@b.com"}, profile.InsertModeIgnoreDuplicates)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if echoed {
		t.Fatalf("expected empty echo")
	}
}

func TestClientInsert_StrictEmptyEchoIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("on_conflict") {
			t.Errorf("strict insert must not set on_conflict")
		}
		writeJSON(t, w, http.StatusCreated, []any{})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, resilience.CircuitBreakerConfig{Enabled: false})
	got, echoed, err := client.Insert(t.Context(), profile.Record{ID: "u1", Email: "a@b.com"}, profile.InsertModeStrict)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if echoed {
		t.Fatalf("expected no echo, got %+v", got)
	}
	if got != (profile.Record{}) {
		t.Fatalf("expected zero record without echo, got %+v", got)
	}
}

func TestClientInsert_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   map[string]any
		want   error
	}{
		{
			name:   "duplicate key",
			status: http.StatusConflict,
			body: map[string]any{
				"code":    "23505",
				"message": `duplicate key value violates unique constraint "profiles_pkey"`,
				"details": "Key (id)=(u1) already exists.",
				"hint":    nil,
			},
			want: usecase.ErrConflict,
		},
		{
			name:   "invalid key",
			status: http.StatusUnauthorized,
			body:   map[string]any{"message": "Invalid API key"},
			want:   usecase.ErrUnauthorized,
		},
		{
			name:   "row level security",
			status: http.StatusForbidden,
			body:   map[string]any{"code": "42501", "message": `new row violates row-level security policy for table "profiles"`},
			want:   usecase.ErrUnauthorized,
		},
		{
			name:   "gateway down",
			status: http.StatusBadGateway,
			body:   map[string]any{"message": "upstream unavailable"},
			want:   usecase.ErrDependencyUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, tc.status, tc.body)
			}))
			defer srv.Close()

			client := newTestClient(t, srv, resilience.CircuitBreakerConfig{Enabled: false})
			_, _, err := client.Insert(t.Context(), profile.Record{ID: "u1", Email: "a@b.com"}, profile.InsertModeStrict)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if msg, _ := tc.body["message"].(string); !strings.Contains(err.Error(), msg) {
				t.Fatalf("expected underlying message %q in %q", msg, err.Error())
			}
			if strings.Contains(err.Error(), testAPIKey) {
				t.Fatalf("api key leaked into error: %s", err.Error())
			}
		})
	}
}

func TestClientGetByID_MalformedResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"not":"an array"`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv, resilience.CircuitBreakerConfig{Enabled: false})
	if _, _, err := client.GetByID(t.Context(), "u1"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestClient_CircuitBreakerOpensOnTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusServiceUnavailable, map[string]any{"message": "maintenance"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, resilience.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
		HalfOpenMaxReq:   1,
	})

	if _, _, err := client.GetByID(t.Context(), "u1"); !errors.Is(err, usecase.ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
	_, _, err := client.Insert(t.Context(), profile.Record{ID: "u1", Email: "a@b.com"}, profile.InsertModeStrict)
	if !errors.Is(err, usecase.ErrDependencyUnavailable) {
		t.Fatalf("expected breaker rejection, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected the open breaker to skip the second call, got %d calls", calls.Load())
	}
}

func TestClient_NonPublicSchemaSetsProfileHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if got := r.Header.Get("Accept-Profile"); got != "app" {
				t.Errorf("unexpected Accept-Profile: %q", got)
			}
		case http.MethodPost:
			if got := r.Header.Get("Content-Profile"); got != "app" {
				t.Errorf("unexpected Content-Profile: %q", got)
			}
		}
		writeJSON(t, w, http.StatusOK, []any{})
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{
		HTTPClient: srv.Client(),
		BaseURL:    srv.URL,
		APIKey:     testAPIKey,
		Schema:     "app",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, _, err := client.GetByID(t.Context(), "u1"); err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if _, _, err := client.Insert(t.Context(), profile.Record{ID: "u1"}, profile.InsertModeStrict); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(ClientConfig{BaseURL: "ftp://example.com", APIKey: "k"}); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "https://abc.supabase.co", APIKey: " "}); err == nil {
		t.Fatalf("expected missing api key error")
	}
}

func TestBuildCurlPreview_MasksCredentials(t *testing.T) {
	t.Parallel()

	preview := buildCurlPreview(http.MethodPost, "https://abc.supabase.co/rest/v1/profiles", map[string]string{"Prefer": "return=representation"}, []byte(`{"id":"o'k"}`))
	if strings.Contains(preview, testAPIKey) {
		t.Fatalf("preview leaked key: %s", preview)
	}
	for _, want := range []string{"curl -X POST", "'apikey: ***'", "'Prefer: return=representation'", `'{"id":"o'"'"'k"}'`} {
		if !strings.Contains(preview, want) {
			t.Fatalf("expected %s in preview %s", want, preview)
		}
	}
}

func profileRowHandler(t *testing.T, calls *atomic.Int32, started chan<- struct{}, release <-chan struct{}) http.HandlerFunc {
	var once sync.Once
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		writeJSON(t, w, http.StatusOK, []map[string]any{{"id": "u1", "email": "a@b.com"}})
	}
}

func getByIDConcurrently(t *testing.T, client *Client, callers int) []error {
	t.Helper()

	errs := make([]error, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			got, found, err := client.GetByID(t.Context(), "u1")
			if err == nil && (!found || got.Email != "a@b.com") {
				err = fmt.Errorf("unexpected lookup result: found=%v record=%+v", found, got)
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()
	return errs
}

func TestClientGetByID_DeduplicatesConcurrentReads(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(profileRowHandler(t, &calls, started, release))
	defer srv.Close()

	client := newTestClient(t, srv, resilience.CircuitBreakerConfig{Enabled: false})

	go func() {
		<-started
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	for i, err := range getByIDConcurrently(t, client, 10) {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one shared request, got %d", got)
	}
}

func TestClient_HalfOpenAdmitsSharedReadOnce(t *testing.T) {
	t.Parallel()

	var (
		calls   atomic.Int32
		healthy atomic.Bool
	)
	started := make(chan struct{})
	release := make(chan struct{})
	rows := profileRowHandler(t, &calls, started, release)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			calls.Add(1)
			writeJSON(t, w, http.StatusServiceUnavailable, map[string]any{"message": "maintenance"})
			return
		}
		rows(w, r)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, resilience.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 1,
		OpenTimeout:      100 * time.Millisecond,
		HalfOpenMaxReq:   1,
	})

	if _, _, err := client.GetByID(t.Context(), "u1"); !errors.Is(err, usecase.ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
	if got := client.breaker.State(); got != resilience.CircuitStateOpen {
		t.Fatalf("expected open breaker, got %s", got)
	}

	healthy.Store(true)
	time.Sleep(150 * time.Millisecond)
	go func() {
		<-started
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	for i, err := range getByIDConcurrently(t, client, 5) {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}

	if got := client.breaker.State(); got != resilience.CircuitStateClosed {
		t.Fatalf("expected closed breaker after the shared read, got %s", got)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected one failing and one shared request, got %d", got)
	}
}
