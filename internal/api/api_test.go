package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/noteservice"
	"github.com/starford/raido/internal/testutil"
)

// testEnv sets up a temp vault, SQLite DB, service, and router for testing.
// An empty token means auth-disabled mode.
func testEnv(t *testing.T, authToken string) (*noteservice.Service, http.Handler) {
	t.Helper()
	svc, router, _ := testEnvWithVault(t, authToken != "", authToken)
	return svc, router
}

func testEnvWithVault(t *testing.T, authEnabled bool, authToken string) (*noteservice.Service, http.Handler, string) {
	t.Helper()
	vaultDir, store, db, ix := testutil.TestIndexer(t)
	svc := noteservice.NewService(store, db, ix)
	router := NewRouter(svc, authEnabled, authToken, nil, vaultDir)
	return svc, router, vaultDir
}

// do issues a request with an optional JSON body and extra headers, returning
// the recorder for assertions.
func do(t *testing.T, router http.Handler, method, target string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func postNote(t *testing.T, router http.Handler, path, content string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, router, http.MethodPost, "/notes", map[string]string{"path": path, "content": content}, nil)
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	if w := postNote(t, router, "intro.md", "# Intro\nWelcome"); w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}

	w := do(t, router, http.MethodGet, "/notes/intro.md", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	note := decodeBody[NoteDetail](t, w)
	if note.Path != "intro.md" {
		t.Errorf("path = %q", note.Path)
	}
	if note.Title != "Intro" {
		t.Errorf("title = %q, want Intro", note.Title)
	}
}

func TestCreateDuplicate(t *testing.T) {
	_, router := testEnv(t, "")

	if w := postNote(t, router, "dup.md", "a"); w.Code != http.StatusCreated {
		t.Fatalf("first create = %d", w.Code)
	}
	if w := postNote(t, router, "dup.md", "a"); w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestCreateMalformedFrontmatter(t *testing.T) {
	_, router := testEnv(t, "")

	w := postNote(t, router, "bad.md", "---\ntitle: Broken\n")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("malformed create = %d, want 422, body = %s", w.Code, w.Body.String())
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")

	w := postNote(t, router, "lock.md", "v1")
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	created := decodeBody[NoteDetail](t, w)

	update := map[string]string{"content": "v2"}
	match := map[string]string{"If-Match": created.Checksum}

	if w := do(t, router, http.MethodPut, "/notes/lock.md", update, match); w.Code != http.StatusOK {
		t.Fatalf("update with correct checksum = %d, body = %s", w.Code, w.Body.String())
	}

	// The same checksum is stale after the successful write.
	if w := do(t, router, http.MethodPut, "/notes/lock.md", update, match); w.Code != http.StatusConflict {
		t.Errorf("update with stale checksum = %d, want 409", w.Code)
	}
}

func TestUpdateWithoutIfMatch(t *testing.T) {
	_, router := testEnv(t, "")

	postNote(t, router, "nolock.md", "v1")

	// Without If-Match the write is unconditional.
	w := do(t, router, http.MethodPut, "/notes/nolock.md", map[string]string{"content": "v2"}, nil)
	if w.Code != http.StatusOK {
		t.Errorf("update without If-Match = %d, want 200", w.Code)
	}
}

func TestPatchNoteFrontmatter(t *testing.T) {
	_, router := testEnv(t, "")

	postNote(t, router, "meta.md", "---\ntitle: Meta\nstatus: wip\n---\n\nBody.\n")

	patch := map[string]any{"frontmatter": map[string]any{"status": "done", "owner": "ana"}}
	w := do(t, router, http.MethodPatch, "/notes/meta.md", patch, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d, body = %s", w.Code, w.Body.String())
	}
	note := decodeBody[NoteDetail](t, w)
	if note.Frontmatter["status"] != "done" || note.Frontmatter["owner"] != "ana" {
		t.Errorf("frontmatter = %+v", note.Frontmatter)
	}
	if note.Title != "Meta" {
		t.Errorf("title = %q, untouched keys must survive the merge", note.Title)
	}
}

func TestPatchNote_StaleChecksum(t *testing.T) {
	_, router := testEnv(t, "")

	postNote(t, router, "meta.md", "# Meta\n")

	patch := map[string]any{"frontmatter": map[string]any{"status": "done"}}
	w := do(t, router, http.MethodPatch, "/notes/meta.md", patch, map[string]string{"If-Match": "stale"})
	if w.Code != http.StatusConflict {
		t.Errorf("stale patch = %d, want 409", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")

	postNote(t, router, "bye.md", "gone")

	if w := do(t, router, http.MethodDelete, "/notes/bye.md", nil, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/notes/bye.md", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestListNotes(t *testing.T) {
	_, router := testEnv(t, "")

	for _, name := range []string{"a.md", "b.md"} {
		postNote(t, router, name, "# "+name)
	}

	w := do(t, router, http.MethodGet, "/notes?limit=10", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	resp := decodeBody[map[string]any](t, w)
	if notes := resp["notes"].([]any); len(notes) != 2 {
		t.Errorf("len(notes) = %d, want 2", len(notes))
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	postNote(t, router, "find.md", "uniquetoken here")

	w := do(t, router, http.MethodGet, "/search?q=uniquetoken", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeBody[map[string]any](t, w)
	if results := resp["results"].([]any); len(results) != 1 {
		t.Errorf("search results = %d, want 1", len(results))
	}
}

func TestGraphEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	postNote(t, router, "a.md", "links to [[b]]")
	postNote(t, router, "b.md", "links to [[a]]")

	w := do(t, router, http.MethodGet, "/graph", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("graph = %d", w.Code)
	}
	resp := decodeBody[map[string]any](t, w)
	if nodes := resp["nodes"].([]any); len(nodes) != 2 {
		t.Errorf("nodes = %d, want 2", len(nodes))
	}
	if links := resp["links"].([]any); len(links) != 2 {
		t.Errorf("links = %d, want 2", len(links))
	}
}

func TestBacklinksEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	postNote(t, router, "a.md", "# Alpha\n\nSee [[Beta]].")
	postNote(t, router, "b.md", "# Beta\n")

	w := do(t, router, http.MethodGet, "/backlinks?path=b.md", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("backlinks = %d", w.Code)
	}
	resp := decodeBody[map[string]any](t, w)
	if bl := resp["backlinks"].([]any); len(bl) != 1 || bl[0] != "a.md" {
		t.Errorf("backlinks = %v, want [a.md]", bl)
	}

	if w := do(t, router, http.MethodGet, "/backlinks", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("no path = %d, want 400", w.Code)
	}
}

func TestDanglingEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	postNote(t, router, "a.md", "# Alpha\n\nSee [[Ghost]].")

	w := do(t, router, http.MethodGet, "/dangling", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dangling = %d", w.Code)
	}
	resp := decodeBody[struct {
		Dangling []DanglingLink `json:"dangling"`
		Count    int            `json:"count"`
	}](t, w)
	if resp.Count != 1 || len(resp.Dangling) != 1 {
		t.Fatalf("resp = %+v, want one dangling reference", resp)
	}
	if resp.Dangling[0].Source != "a.md" || resp.Dangling[0].Raw != "Ghost" {
		t.Errorf("dangling[0] = %+v", resp.Dangling[0])
	}
}

func TestTagsEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	postNote(t, router, "a.md", "---\ntags: [go, notes]\n---\n\n# A\n")
	postNote(t, router, "b.md", "---\ntags: [go]\n---\n\n# B\n")

	w := do(t, router, http.MethodGet, "/tags", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tags = %d", w.Code)
	}
	resp := decodeBody[struct {
		Tags []TagCount `json:"tags"`
	}](t, w)
	if len(resp.Tags) != 2 || resp.Tags[0].Name != "go" || resp.Tags[0].Count != 2 {
		t.Errorf("tags = %+v", resp.Tags)
	}
}

func TestReindexEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	postNote(t, router, "a.md", "# A\n")

	w := do(t, router, http.MethodPost, "/reindex", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reindex = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeBody[struct {
		Summary index.Summary `json:"summary"`
	}](t, w)
	if resp.Summary.Reused != 1 {
		t.Errorf("summary = %+v, want the unchanged note reused", resp.Summary)
	}
}

func TestParseErrorsEndpoint(t *testing.T) {
	_, router, vaultDir := testEnvWithVault(t, false, "")

	w := do(t, router, http.MethodGet, "/parse-errors", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("parse-errors = %d", w.Code)
	}
	empty := decodeBody[struct {
		Errors []ParseError `json:"errors"`
		Count  int          `json:"count"`
	}](t, w)
	if empty.Count != 0 || empty.Errors == nil {
		t.Fatalf("empty vault resp = %+v, want zero recorded failures", empty)
	}

	// Unterminated frontmatter only surfaces through a pass over the vault
	// dir; the create endpoint rejects it before anything reaches disk.
	bad := filepath.Join(vaultDir, "broken.md")
	if err := os.WriteFile(bad, []byte("---\ntitle: Broken\n\n# no closing delimiter\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if w := do(t, router, http.MethodPost, "/reindex", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("reindex = %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/parse-errors", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("parse-errors = %d", w.Code)
	}
	resp := decodeBody[struct {
		Errors []ParseError `json:"errors"`
		Count  int          `json:"count"`
	}](t, w)
	if resp.Count != 1 || len(resp.Errors) != 1 {
		t.Fatalf("resp = %+v, want one recorded failure", resp)
	}
	if resp.Errors[0].Path != "broken.md" || resp.Errors[0].Error == "" {
		t.Errorf("errors[0] = %+v", resp.Errors[0])
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodPost, "/notes",
		map[string]string{"path": "auth.md", "content": "test"},
		map[string]string{"Authorization": "Bearer secret123"})
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	if w := do(t, router, http.MethodGet, "/notes", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/notes", nil, map[string]string{"Authorization": "Bearer wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/notes", nil, nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/notes/nope.md", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestUpdateNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/notes/ghost.md", map[string]string{"content": "x"}, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/search", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret")

	if w := do(t, router, http.MethodGet, "/events", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	_, router := testEnvWithSSE(t, false, "")

	// The SSE handler writes 200 and blocks, so cancel the request context
	// shortly after it is served.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// testEnvWithSSE creates a router with a stub SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) (*noteservice.Service, http.Handler) {
	t.Helper()
	vaultDir, store, db, ix := testutil.TestIndexer(t)
	svc := noteservice.NewService(store, db, ix)

	// Writes headers, then blocks until the client goes away.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	router := NewRouter(svc, authEnabled, token, sseHandler, vaultDir)
	return svc, router
}

// Attachment tests.

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// attachmentRouter mounts ServeFile the way the top-level server does, so
// tests can exercise the public GET route with chi URL params.
func attachmentRouter(root string) http.Handler {
	r := chi.NewRouter()
	r.Get("/attachments/{filename}", NewAttachmentHandler(root).ServeFile)
	return r
}

func TestUploadAndServeAttachment(t *testing.T) {
	_, router, vaultDir := testEnvWithVault(t, false, "")

	w := uploadFile(t, router, "chart.png", []byte("fake-png-data"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeBody[map[string]any](t, w)
	if resp["filename"] != "chart.png" {
		t.Errorf("filename = %v", resp["filename"])
	}

	data, err := os.ReadFile(filepath.Join(vaultDir, "attachments", "chart.png"))
	if err != nil {
		t.Fatalf("file not on disk: %v", err)
	}
	if string(data) != "fake-png-data" {
		t.Errorf("content mismatch")
	}

	// Serve it back through the public route.
	req := httptest.NewRequest(http.MethodGet, "/attachments/chart.png", nil)
	got := httptest.NewRecorder()
	attachmentRouter(vaultDir).ServeHTTP(got, req)
	if got.Code != http.StatusOK {
		t.Fatalf("serve = %d", got.Code)
	}
	if got.Body.String() != "fake-png-data" {
		t.Errorf("served content mismatch")
	}
}

func TestServeAttachment_NotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/attachments/nope.png", nil)
	w := httptest.NewRecorder()
	attachmentRouter(t.TempDir()).ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing attachment = %d, want 404", w.Code)
	}
}

func TestServeAttachment_TraversalBlocked(t *testing.T) {
	router := attachmentRouter(t.TempDir())

	for _, name := range []string{"../secret.md", "../../etc/passwd"} {
		req := httptest.NewRequest(http.MethodGet, "/attachments/"+name, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		// chi may refuse to route the traversal path at all (404), or the
		// handler rejects it (400); either way it must not be served.
		if w.Code == http.StatusOK {
			t.Errorf("traversal %q should not return 200", name)
		}
	}
}

func TestUploadAttachment_InvalidFilename(t *testing.T) {
	_, router, vaultDir := testEnvWithVault(t, false, "")

	// multipart headers may clean "../" on the way in, so also verify nothing
	// lands outside the vault.
	w := uploadFile(t, router, "../escape.txt", []byte("bad"))
	if w.Code == http.StatusCreated {
		if _, err := os.Stat(filepath.Join(vaultDir, "..", "escape.txt")); err == nil {
			t.Error("file escaped vault directory")
		}
	}
}

func TestUploadAttachment_AuthProtected(t *testing.T) {
	_, router, _ := testEnvWithVault(t, true, "secret")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "x.png")
	_, _ = part.Write([]byte("data"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("upload no auth = %d, want 401", w.Code)
	}
}

func TestUploadAttachment_MissingFileField(t *testing.T) {
	_, router := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}
