package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"flipbook-app/config"
	"flipbook-app/internal/auth"
	"flipbook-app/internal/blob"
	"flipbook-app/internal/dispatcher"
	"flipbook-app/internal/flipbook"
	"flipbook-app/internal/leaf"
	"flipbook-app/internal/pdf"
	"flipbook-app/internal/pdftest"
	"flipbook-app/internal/pipeline"
	"flipbook-app/internal/store"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T, cfg config.ServerConfig, loginRate int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	s, err := store.Open(ctx, "sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(ctx); err != nil {
		t.Fatal(err)
	}
	blobs, err := blob.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	p := pipeline.New(pdf.NewScanRasterizer(), pipeline.Options{Scale: 1, Workers: 2})
	books := flipbook.NewService(s, blobs, p, flipbook.Options{BaseURL: "http://api.test"})

	jobs := dispatcher.New(books, config.DispatcherConfig{WorkerCount: 1, QueueSize: 4}, nil)
	jobCtx, cancel := context.WithCancel(ctx)
	jobs.Start(jobCtx)
	t.Cleanup(func() {
		jobs.Stop()
		cancel()
	})

	srv := New(Deps{
		Auth:      auth.NewService(s, config.AuthConfig{SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost}, nil),
		Flipbooks: books,
		Jobs:      jobs,
		Config:    cfg,
		LoginRate: loginRate,
	})
	return &testServer{t: t, router: srv.Router()}
}

func defaultConfig() config.ServerConfig {
	return config.ServerConfig{MaxFileBytes: 256 << 10, MaxBodyBytes: 1 << 20}
}

func (ts *testServer) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) json(method, path string, body any, token string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return ts.do(req, token)
}

// upload posts a multipart form with the given fields and files.
func (ts *testServer) upload(path string, fields map[string]string, field string, files [][]byte, token string) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			ts.t.Fatal(err)
		}
	}
	for i, data := range files {
		fw, err := mw.CreateFormFile(field, "upload-"+string(rune('a'+i)))
		if err != nil {
			ts.t.Fatal(err)
		}
		fw.Write(data)
	}
	if err := mw.Close(); err != nil {
		ts.t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return ts.do(req, token)
}

// login registers email and returns a session token.
func (ts *testServer) login(email string) string {
	ts.t.Helper()
	creds := map[string]string{"email": email, "password": "correct horse"}
	if w := ts.json(http.MethodPost, "/auth/register", creds, ""); w.Code != http.StatusCreated {
		ts.t.Fatalf("register: %d %s", w.Code, w.Body)
	}
	w := ts.json(http.MethodPost, "/auth/login", creds, "")
	if w.Code != http.StatusOK {
		ts.t.Fatalf("login: %d %s", w.Code, w.Body)
	}
	var resp struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	decode(ts.t, w, &resp)
	return resp.Session.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func book(t *testing.T, title string, pages int, blank ...int) []byte {
	t.Helper()
	data, err := pdftest.Book(title, pages, blank...)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func pageURI(t *testing.T, w, h int) string {
	t.Helper()
	data, err := leaf.Encode(pdftest.Spread(w, h))
	if err != nil {
		t.Fatal(err)
	}
	return leaf.Leaf{Data: data}.DataURI()
}

type createResponse struct {
	Flipbook flipbookJSON `json:"flipbook"`
	Report   reportBody   `json:"report"`
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t, defaultConfig(), 0)

	if w := ts.json(http.MethodGet, "/flipbooks", nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list: %d", w.Code)
	}
	token := ts.login("alice@example.com")
	if len(token) != auth.TokenLength {
		t.Errorf("token length = %d", len(token))
	}

	creds := map[string]string{"email": "Alice@Example.com", "password": "x"}
	if w := ts.json(http.MethodPost, "/auth/register", creds, ""); w.Code != http.StatusConflict {
		t.Errorf("duplicate register: %d", w.Code)
	}
	if w := ts.json(http.MethodPost, "/auth/login", creds, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: %d", w.Code)
	}
	if w := ts.json(http.MethodPost, "/auth/login", map[string]string{}, ""); w.Code != http.StatusBadRequest {
		t.Errorf("empty login: %d", w.Code)
	}

	if w := ts.json(http.MethodGet, "/flipbooks", nil, token); w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body)
	}
	if w := ts.json(http.MethodPost, "/auth/logout", nil, token); w.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", w.Code)
	}
	if w := ts.json(http.MethodGet, "/flipbooks", nil, token); w.Code != http.StatusUnauthorized {
		t.Errorf("list after logout: %d", w.Code)
	}
}

func TestLoginSetsCookie(t *testing.T) {
	ts := newTestServer(t, defaultConfig(), 0)
	creds := map[string]string{"email": "carol@example.com", "password": "pw"}
	ts.json(http.MethodPost, "/auth/register", creds, "")
	w := ts.json(http.MethodPost, "/auth/login", creds, "")

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly || cookie.Value == "" {
		t.Fatalf("session cookie = %+v", cookie)
	}

	req := httptest.NewRequest(http.MethodGet, "/flipbooks", nil)
	req.AddCookie(cookie)
	if w := ts.do(req, ""); w.Code != http.StatusOK {
		t.Errorf("cookie auth: %d", w.Code)
	}
}

func TestUploadPDF(t *testing.T) {
	ts := newTestServer(t, defaultConfig(), 0)
	token := ts.login("alice@example.com")

	w := ts.upload("/flipbooks", map[string]string{"kind": "story"}, "file",
		[][]byte{book(t, "Tide Pools", 3, 2)}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", w.Code, w.Body)
	}
	var resp createResponse
	decode(t, w, &resp)

	fb := resp.Flipbook
	if fb.Title != "Tide Pools" || fb.Kind != store.KindStory {
		t.Errorf("title, kind = %q, %q", fb.Title, fb.Kind)
	}
	if fb.PageCount != 4 || len(fb.PageURLs) != 4 {
		t.Errorf("pages = %d, urls = %d", fb.PageCount, len(fb.PageURLs))
	}
	if want := "http://api.test/flipbooks/" + fb.ID + "/pages/1"; fb.PageURLs[0] != want {
		t.Errorf("page url = %q, want %q", fb.PageURLs[0], want)
	}
	r := resp.Report
	if r.PagesAttempted != 3 || r.PagesRendered != 2 || r.LeafCount != 4 || !r.Partial {
		t.Errorf("report = %+v", r)
	}
	if len(r.Warnings) != 1 || r.Warnings[0].Page != 2 {
		t.Errorf("warnings = %+v", r.Warnings)
	}
}

func TestUploadRejections(t *testing.T) {
	ts := newTestServer(t, defaultConfig(), 0)
	token := ts.login("alice@example.com")

	tests := []struct {
		name   string
		field  string
		file   []byte
		status int
	}{
		{"garbage", "file", []byte("definitely not a pdf"), http.StatusUnprocessableEntity},
		{"too large", "file", bytes.Repeat([]byte{'%'}, 300<<10), http.StatusRequestEntityTooLarge},
		{"not an image", "pages", []byte("nope"), http.StatusBadRequest},
		{"wrong field", "attachment", []byte("x"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.upload("/flipbooks", nil, tt.field, [][]byte{tt.file}, token)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.status, w.Body)
			}
		})
	}

	if w := ts.json(http.MethodPost, "/flipbooks", map[string]any{"pages": []string{"https://evil.example/x.png"}}, token); w.Code != http.StatusBadRequest {
		t.Errorf("url page: %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/flipbooks", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	if w := ts.do(req, token); w.Code != http.StatusBadRequest {
		t.Errorf("malformed json: %d", w.Code)
	}
}

func TestFlipbookLifecycle(t *testing.T) {
	ts := newTestServer(t, defaultConfig(), 0)
	alice := ts.login("alice@example.com")
	bob := ts.login("bob@example.com")

	w := ts.json(http.MethodPost, "/flipbooks", map[string]any{
		"title": "Sketches",
		"pages": []string{pageURI(t, 40, 60), pageURI(t, 40, 60)},
	}, alice)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body)
	}
	var resp createResponse
	decode(t, w, &resp)
	id := resp.Flipbook.ID
	base := "/flipbooks/" + id

	foreign := ts.json(http.MethodGet, base, nil, bob)
	if foreign.Code != http.StatusNotFound {
		t.Errorf("bob get: %d", foreign.Code)
	}
	if missing := ts.json(http.MethodGet, "/flipbooks/nope", nil, bob); missing.Body.String() != foreign.Body.String() {
		t.Errorf("another user's flipbook should look missing: %s vs %s", foreign.Body, missing.Body)
	}
	if w := ts.json(http.MethodGet, "/flipbooks/nope", nil, alice); w.Code != http.StatusNotFound {
		t.Errorf("missing: %d", w.Code)
	}

	var list []flipbookJSON
	decode(t, ts.json(http.MethodGet, "/flipbooks", nil, alice), &list)
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("alice list = %+v", list)
	}
	decode(t, ts.json(http.MethodGet, "/flipbooks", nil, bob), &list)
	if len(list) != 0 {
		t.Errorf("bob list = %+v", list)
	}

	w = ts.json(http.MethodGet, base+"/pages/2", nil, alice)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != leaf.MIMEType {
		t.Fatalf("page: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	cfg, _, err := image.DecodeConfig(w.Body)
	if err != nil || cfg.Width != 40 || cfg.Height != 60 {
		t.Errorf("page image = %+v, %v", cfg, err)
	}
	for _, n := range []string{"0", "3", "x"} {
		if w := ts.json(http.MethodGet, base+"/pages/"+n, nil, alice); w.Code == http.StatusOK {
			t.Errorf("page %s served", n)
		}
	}

	title := "Renamed"
	w = ts.json(http.MethodPut, base, map[string]any{"title": title, "pages": []string{pageURI(t, 10, 10)}}, alice)
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body)
	}
	var updated flipbookJSON
	decode(t, w, &updated)
	if updated.Title != title || updated.PageCount != 1 {
		t.Errorf("updated = %+v", updated.Flipbook)
	}
	if w := ts.json(http.MethodPut, base, map[string]any{"title": "x"}, bob); w.Code != http.StatusNotFound {
		t.Errorf("bob update: %d", w.Code)
	}

	if w := ts.json(http.MethodDelete, base, nil, bob); w.Code != http.StatusNotFound {
		t.Errorf("bob delete: %d", w.Code)
	}
	if w := ts.json(http.MethodDelete, base, nil, alice); w.Code != http.StatusNoContent {
		t.Errorf("delete: %d", w.Code)
	}
	if w := ts.json(http.MethodGet, base, nil, alice); w.Code != http.StatusNotFound {
		t.Errorf("get deleted: %d", w.Code)
	}
}

func TestViewAndExport(t *testing.T) {
	ts := newTestServer(t, defaultConfig(), 0)
	token := ts.login("alice@example.com")

	w := ts.upload("/flipbooks", map[string]string{"title": "Atlas"}, "file", [][]byte{book(t, "", 2)}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", w.Code, w.Body)
	}
	var resp createResponse
	decode(t, w, &resp)
	base := "/flipbooks/" + resp.Flipbook.ID

	w = ts.json(http.MethodGet, base+"/view?page=2", nil, token)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("view: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if body := w.Body.String(); !strings.Contains(body, "Atlas") || !strings.Contains(body, resp.Flipbook.PageURLs[3]) {
		t.Errorf("view is missing the title or pages")
	}
	if w := ts.json(http.MethodGet, base+"/view?page=two", nil, token); w.Code != http.StatusBadRequest {
		t.Errorf("bad page query: %d", w.Code)
	}

	w = ts.json(http.MethodGet, base+"/export.html", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("export html: %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, ".html") {
		t.Errorf("disposition = %q", cd)
	}
	if n := strings.Count(w.Body.String(), "data:image/png;base64,"); n != 4 {
		t.Errorf("export html embeds %d leaves", n)
	}

	w = ts.json(http.MethodGet, base+"/export.pdf", nil, token)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("export pdf: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	info, err := pdf.Inspect(w.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if info.PageCount != 4 {
		t.Errorf("exported pages = %d", info.PageCount)
	}
}

func TestJobs(t *testing.T) {
	ts := newTestServer(t, defaultConfig(), 0)
	alice := ts.login("alice@example.com")
	bob := ts.login("bob@example.com")

	w := ts.upload("/jobs", map[string]string{"title": "Queued"}, "file", [][]byte{book(t, "", 2)}, alice)
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit: %d %s", w.Code, w.Body)
	}
	var job dispatcher.Job
	decode(t, w, &job)
	if job.ID == "" || w.Header().Get("Location") != "/jobs/"+job.ID {
		t.Fatalf("job = %+v, location %q", job, w.Header().Get("Location"))
	}

	if w := ts.json(http.MethodGet, "/jobs/"+job.ID, nil, bob); w.Code != http.StatusNotFound {
		t.Errorf("bob job: %d", w.Code)
	}

	deadline := time.Now().Add(10 * time.Second)
	for !job.Done() {
		if time.Now().After(deadline) {
			t.Fatalf("job still %s", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
		decode(t, ts.json(http.MethodGet, "/jobs/"+job.ID, nil, alice), &job)
	}
	if job.Status != dispatcher.StatusCompleted || job.FlipbookID == "" {
		t.Fatalf("job = %+v", job)
	}
	if job.Report == nil || job.Report.LeafCount != 4 {
		t.Errorf("report = %+v", job.Report)
	}
	if w := ts.json(http.MethodGet, "/flipbooks/"+job.FlipbookID, nil, alice); w.Code != http.StatusOK {
		t.Errorf("job flipbook: %d", w.Code)
	}

	if w := ts.upload("/jobs", nil, "file", nil, alice); w.Code != http.StatusBadRequest {
		t.Errorf("empty job: %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.UploadPerMinute = 1
	ts := newTestServer(t, cfg, 3)
	token := ts.login("alice@example.com")

	body := map[string]any{"pages": []string{pageURI(t, 4, 4)}}
	if w := ts.json(http.MethodPost, "/flipbooks", body, token); w.Code != http.StatusCreated {
		t.Fatalf("first upload: %d %s", w.Code, w.Body)
	}
	if w := ts.json(http.MethodPost, "/flipbooks", body, token); w.Code != http.StatusTooManyRequests {
		t.Errorf("second upload: %d", w.Code)
	}
	// register and login used two of three login tokens
	creds := map[string]string{"email": "alice@example.com", "password": "correct horse"}
	if w := ts.json(http.MethodPost, "/auth/login", creds, ""); w.Code != http.StatusOK {
		t.Errorf("third login: %d", w.Code)
	}
	if w := ts.json(http.MethodPost, "/auth/login", creds, ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("fourth login: %d", w.Code)
	}
}

func TestLimiter(t *testing.T) {
	l := newLimiter(2)
	now := time.Now()
	if !l.allow("a", now) || !l.allow("a", now) {
		t.Fatal("burst refused")
	}
	if l.allow("a", now) {
		t.Error("third request allowed")
	}
	if !l.allow("b", now) {
		t.Error("clients share a bucket")
	}
	if !l.allow("a", now.Add(30*time.Second)) {
		t.Error("bucket did not refill")
	}

	l.allow("c", now)
	l.allow("d", now.Add(idleClient+time.Minute))
	if _, ok := l.clients["c"]; ok {
		t.Error("idle client kept")
	}

	if unlimited := newLimiter(0); !unlimited.allow("a", now) {
		t.Error("zero limit refused")
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := defaultConfig()
	cfg.CORSOrigin = "https://app.example"
	ts := newTestServer(t, cfg, 0)

	w := ts.do(httptest.NewRequest(http.MethodOptions, "/flipbooks", nil), "")
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight: %d", w.Code)
	}
	h := w.Header()
	if h.Get("Access-Control-Allow-Origin") != "https://app.example" || h.Get("Access-Control-Allow-Credentials") != "true" {
		t.Errorf("headers = %v", h)
	}

	if w := ts.json(http.MethodGet, "/health", nil, ""); w.Code != http.StatusOK {
		t.Errorf("health: %d", w.Code)
	}
}
