package chi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gochi "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/occdex"
	"github.com/kailas-cloud/occdex/internal/db/memory"
	dompost "github.com/kailas-cloud/occdex/internal/domain/post"
	healthuc "github.com/kailas-cloud/occdex/internal/usecase/health"
	postuc "github.com/kailas-cloud/occdex/internal/usecase/post"
)

func newTestServer(t *testing.T, logger *zap.Logger) (*Server, *memory.Store) {
	t.Helper()
	reg := occdex.NewRegistry()
	if err := dompost.Register(reg); err != nil {
		t.Fatal(err)
	}
	store := memory.NewStore()
	repo, err := occdex.NewRepository[*dompost.Post](store, reg)
	if err != nil {
		t.Fatal(err)
	}

	posts := postuc.New(repo, occdex.NewExecutor(store, 10)).
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }).
		WithMaxBulkSize(3)
	health := healthuc.New(store, store, dompost.Index)

	return NewServer(posts, health, logger), store
}

func newTestRouter(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	srv, store := newTestServer(t, zap.NewNop())
	r := gochi.NewRouter()
	srv.Routes(r)
	return r, store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body == "" {
		rdr = bytes.NewReader(nil)
	} else {
		rdr = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rdr)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}

func TestCreateGetUpdate(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/posts", `{"id":"p1","title":"first","content":"draft","author":"alice"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d, body %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Location") != "/posts/p1" {
		t.Errorf("Location = %q", rr.Header().Get("Location"))
	}
	if rr.Header().Get("ETag") != `"0/1"` {
		t.Errorf("ETag = %q", rr.Header().Get("ETag"))
	}
	created := decode[postResponse](t, rr)
	if created.SeqNo != 0 || created.PrimaryTerm != 1 {
		t.Errorf("created version = %d/%d", created.SeqNo, created.PrimaryTerm)
	}

	rr = do(t, h, http.MethodPut, "/posts/p1", `{"content":"published","seq_no":0,"primary_term":1}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: got %d, body %s", rr.Code, rr.Body.String())
	}
	updated := decode[postResponse](t, rr)
	if updated.SeqNo != 1 || updated.Content != "published" {
		t.Errorf("unexpected update %+v", updated)
	}

	rr = do(t, h, http.MethodGet, "/posts/p1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: got %d", rr.Code)
	}
	got := decode[postResponse](t, rr)
	if got.SeqNo != 1 || got.Title != "first" {
		t.Errorf("unexpected get %+v", got)
	}
}

func TestUpdate_StaleTokenIs409(t *testing.T) {
	h, _ := newTestRouter(t)

	if rr := do(t, h, http.MethodPost, "/posts", `{"id":"p1","title":"t","author":"alice"}`); rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPut, "/posts/p1", `{"title":"a","seq_no":0,"primary_term":1}`); rr.Code != http.StatusOK {
		t.Fatalf("first update: got %d", rr.Code)
	}

	rr := do(t, h, http.MethodPut, "/posts/p1", `{"title":"b","seq_no":0,"primary_term":1}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("stale update: got %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decode[conflictResponse](t, rr)
	if resp.Code != CodeVersionConflict || resp.ID != "p1" || resp.SeqNo != 0 || resp.PrimaryTerm != 1 {
		t.Errorf("unexpected conflict body %+v", resp)
	}
}

func TestUpdate_MissingToken(t *testing.T) {
	h, _ := newTestRouter(t)
	rr := do(t, h, http.MethodPut, "/posts/p1", `{"title":"b"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rr.Code)
	}
}

func TestCreate_Errors(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name string
		body string
		want int
		code ErrorCode
	}{
		{"malformed", `{`, http.StatusBadRequest, CodeBadRequest},
		{"unknown field", `{"title":"t","author":"a","vector":[1]}`, http.StatusBadRequest, CodeBadRequest},
		{"missing author", `{"title":"t"}`, http.StatusBadRequest, CodeValidationFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/posts", tc.body)
			if rr.Code != tc.want {
				t.Fatalf("got %d, want %d", rr.Code, tc.want)
			}
			if resp := decode[ErrorResponse](t, rr); resp.Code != tc.code {
				t.Errorf("code = %q, want %q", resp.Code, tc.code)
			}
		})
	}
}

func TestGet_Errors(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := do(t, h, http.MethodGet, "/posts/p1", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("missing index: got %d, want 503", rr.Code)
	}

	if rr := do(t, h, http.MethodPost, "/posts", `{"id":"p1","title":"t","author":"a"}`); rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/posts/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing post: got %d, want 404", rr.Code)
	}
}

func TestSearchPosts(t *testing.T) {
	h, _ := newTestRouter(t)

	for _, body := range []string{
		`{"id":"1","title":"Go generics","author":"alice"}`,
		`{"id":"2","title":"Rust","author":"bob"}`,
	} {
		if rr := do(t, h, http.MethodPost, "/posts", body); rr.Code != http.StatusCreated {
			t.Fatalf("create: got %d", rr.Code)
		}
	}

	rr := do(t, h, http.MethodGet, "/posts?author=alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("search: got %d", rr.Code)
	}
	resp := decode[postListResponse](t, rr)
	if resp.Count != 1 || resp.Items[0].ID != "1" || resp.Items[0].SeqNo != 0 {
		t.Errorf("unexpected result %+v", resp)
	}

	rr = do(t, h, http.MethodGet, "/posts?q=nothing", "")
	resp = decode[postListResponse](t, rr)
	if resp.Count != 0 || resp.Items == nil {
		t.Errorf("expected empty items array, got %+v", resp)
	}
}

func TestBulkImport(t *testing.T) {
	h, _ := newTestRouter(t)

	if rr := do(t, h, http.MethodPost, "/posts", `{"id":"taken","title":"t","author":"a"}`); rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d", rr.Code)
	}

	rr := do(t, h, http.MethodPost, "/posts/_bulk",
		`{"items":[{"id":"n1","title":"a","author":"x"},{"id":"taken","title":"b","author":"y"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("bulk: got %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decode[bulkImportResponse](t, rr)
	if !resp.Errors || resp.Succeeded != 1 || resp.Failed != 1 {
		t.Fatalf("unexpected summary %+v", resp)
	}
	if resp.Items[0].SeqNo == nil || *resp.Items[0].SeqNo != 0 {
		t.Errorf("unexpected success item %+v", resp.Items[0])
	}
	if resp.Items[1].Error == nil || resp.Items[1].Error.Code != CodeVersionConflict || resp.Items[1].Status != http.StatusConflict {
		t.Errorf("unexpected failure item %+v", resp.Items[1])
	}
}

func TestBulkImport_TooMany(t *testing.T) {
	h, _ := newTestRouter(t)
	body := `{"items":[` + strings.Repeat(`{"title":"a","author":"x"},`, 3) + `{"title":"a","author":"x"}]}`
	rr := do(t, h, http.MethodPost, "/posts/_bulk", body)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("got %d, want 413", rr.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	h, store := newTestRouter(t)

	rr := do(t, h, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("without index: got %d, want 503", rr.Code)
	}

	if rr := do(t, h, http.MethodPost, "/posts", `{"title":"t","author":"a"}`); rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Errorf("healthy: got %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decode[healthResponse](t, rr)
	if resp.Status != "ok" || resp.Checks["index:post"] != "ok" {
		t.Errorf("unexpected health %+v", resp)
	}

	store.Close()
	rr = do(t, h, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("closed store: got %d, want 503", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	rr := do(t, h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Errorf("got %d, want 200", rr.Code)
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := JSONRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := do(t, h, http.MethodGet, "/", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500", rr.Code)
	}
	if resp := decode[ErrorResponse](t, rr); resp.Code != CodeInternalError {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestWideEventMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := chiMiddleware.RequestID(WideEventMiddleware(zap.New(core))(okHandler()))

	rr := do(t, h, http.MethodGet, "/posts", "")
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log line, got %d", len(entries))
	}
	if entries[0].ContextMap()["status"] != int64(http.StatusOK) {
		t.Errorf("unexpected context %v", entries[0].ContextMap())
	}
}

func TestErrorLogsCarryRequestID(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.DebugLevel)
	srv, store := newTestServer(t, zap.New(fallbackCore))

	core, logs := observer.New(zapcore.DebugLevel)
	r := gochi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(zap.New(core)))
	srv.Routes(r)

	store.Close()
	rr := do(t, r, http.MethodGet, "/posts/p1", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500", rr.Code)
	}

	entries := logs.FilterMessage("internal error").All()
	if len(entries) != 1 {
		t.Fatalf("expected one internal error entry, got %v", logs.All())
	}
	reqID, _ := entries[0].ContextMap()["request_id"].(string)
	if reqID == "" || reqID != rr.Header().Get("X-Request-ID") {
		t.Errorf("request_id = %q, header = %q", reqID, rr.Header().Get("X-Request-ID"))
	}
	if fallbackLogs.Len() != 0 {
		t.Errorf("server logger used despite request logger: %v", fallbackLogs.All())
	}
}

func TestErrorLogsFallBackToServerLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	srv, store := newTestServer(t, zap.New(core))
	r := gochi.NewRouter()
	srv.Routes(r)

	store.Close()
	if rr := do(t, r, http.MethodGet, "/posts/p1", ""); rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500", rr.Code)
	}
	if logs.FilterMessage("internal error").Len() != 1 {
		t.Errorf("expected the server logger to record the error, got %v", logs.All())
	}
}
