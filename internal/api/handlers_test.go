package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hyperengineering/simtracker/internal/chat"
	"github.com/hyperengineering/simtracker/internal/config"
	"github.com/hyperengineering/simtracker/internal/dispatch"
	"github.com/hyperengineering/simtracker/internal/generate"
	"github.com/hyperengineering/simtracker/internal/host"
	"github.com/hyperengineering/simtracker/internal/migrate"
	"github.com/hyperengineering/simtracker/internal/store"
)

// --- Test doubles ---

// direct runs closures on the calling goroutine.
type direct struct{}

func (direct) Do(ctx context.Context, fn func()) error {
	fn()
	return nil
}

// stopped behaves like a dispatcher that has shut down.
type stopped struct{}

func (stopped) Do(ctx context.Context, fn func()) error {
	return dispatch.ErrStopped
}

// Compile-time interface checks
var (
	_ Runner = direct{}
	_ Runner = (*dispatch.Dispatcher)(nil)
)

type memStore struct {
	mu   sync.Mutex
	msgs []chat.Message
}

func (m *memStore) Load(ctx context.Context) ([]chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.Message(nil), m.msgs...), nil
}

func (m *memStore) SaveText(ctx context.Context, id int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.msgs) {
		return chat.ErrMessageNotFound
	}
	m.msgs[id].Text = text
	return nil
}

func (m *memStore) Close() error { return nil }

type mockGenerator struct {
	result *generate.Result
	err    error
	calls  int
}

func (m *mockGenerator) Regenerate(ctx context.Context, id int) (*generate.Result, error) {
	m.calls++
	return m.result, m.err
}

const modernBlock = "```sim\n{\"worldData\":{},\"characters\":[{\"name\":\"Alice\",\"ap\":40},{\"name\":\"Bob\",\"ap\":5}]}\n```"
const legacyBlock = "```sim\n{\"current_date\":\"2025-08-10\",\"Alice\":{\"ap\":40}}\n```"

type testAPI struct {
	store   *memStore
	host    *host.Host
	live    *config.Live
	gen     *mockGenerator
	handler *Handler
	router  http.Handler
}

func newTestAPI(t *testing.T, texts ...string) *testAPI {
	t.Helper()
	ms := &memStore{}
	for i, s := range texts {
		ms.msgs = append(ms.msgs, chat.Message{ID: i, Author: "Narrator", Text: s})
	}
	h, err := host.New(ms, &dispatch.Manual{}, config.DefaultTracker())
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	a := &testAPI{store: ms, host: h, live: config.NewLive(config.DefaultTracker()), gen: &mockGenerator{}}
	a.handler = NewHandler(direct{}, h, a.live, a.gen, nil, "1.2.3")
	a.router = NewRouter(a.handler)
	return a
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) Problem {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("problem body: %v", err)
	}
	return p
}

// --- Tests ---

func TestHealth(t *testing.T) {
	a := newTestAPI(t, "hi", modernBlock)

	w := a.do(http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.Version != "1.2.3" || resp.Messages != 2 || resp.Position != "BOTTOM" {
		t.Errorf("health = %+v", resp)
	}
}

func TestHealth_DispatcherStopped(t *testing.T) {
	a := newTestAPI(t)
	a.handler.runner = stopped{}

	w := a.do(http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestPage(t *testing.T) {
	a := newTestAPI(t, modernBlock)

	w := a.do(http.MethodGet, "/", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "<!DOCTYPE html>") || !strings.Contains(body, `data-character="Alice"`) {
		t.Errorf("page missing rendered card: %.200s", body)
	}
}

func TestRender(t *testing.T) {
	a := newTestAPI(t, "hi")
	a.store.msgs[0].Text = "now\n\n" + modernBlock

	if w := a.do(http.MethodPost, "/api/v1/render/0", ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if a.host.Page().Content(0).Find(".sim-tracker-card").Length() != 2 {
		t.Error("render did not mount cards")
	}

	if w := a.do(http.MethodPost, "/api/v1/render/5", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown message status = %d, want 404", w.Code)
	}
	w := a.do(http.MethodPost, "/api/v1/render/x", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
	decodeProblem(t, w)
}

func TestRefresh(t *testing.T) {
	a := newTestAPI(t, modernBlock)
	a.store.msgs = append(a.store.msgs, chat.Message{ID: 1, Author: "You", IsUser: true, Text: "more"})

	if w := a.do(http.MethodPost, "/api/v1/refresh", ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if got := len(a.host.Page().MessageIDs()); got != 2 {
		t.Errorf("message nodes = %d, want 2", got)
	}
}

func TestMigrate(t *testing.T) {
	// Given: a transcript with one legacy and one modern block
	a := newTestAPI(t, legacyBlock, modernBlock)

	// When: dry run
	w := a.do(http.MethodPost, "/api/v1/migrate?dry_run=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res migrate.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}

	// Then: one message would change and nothing is written
	if res.MigratedCount != 1 {
		t.Errorf("MigratedCount = %d, want 1", res.MigratedCount)
	}
	if a.store.msgs[0].Text != legacyBlock {
		t.Error("dry run wrote to the store")
	}

	// When: migrating for real, twice
	a.do(http.MethodPost, "/api/v1/migrate", "")
	w = a.do(http.MethodPost, "/api/v1/migrate", "")
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}

	// Then: the second run finds nothing left
	if res.MigratedCount != 0 {
		t.Errorf("second MigratedCount = %d, want 0", res.MigratedCount)
	}
	if !strings.Contains(a.store.msgs[0].Text, `"characters"`) {
		t.Errorf("message not migrated: %q", a.store.msgs[0].Text)
	}
}

func TestSettings_GetAndPut(t *testing.T) {
	a := newTestAPI(t, modernBlock)

	w := a.do(http.MethodGet, "/api/v1/settings", "")
	var got config.TrackerConfig
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Identifier != "sim" {
		t.Errorf("Identifier = %q", got.Identifier)
	}

	// Partial update keeps the other fields
	w = a.do(http.MethodPut, "/api/v1/settings", `{"position":"LEFT"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Position != "LEFT" || got.Identifier != "sim" {
		t.Errorf("settings = %+v", got)
	}
	if a.live.Version() != 1 {
		t.Errorf("Version() = %d, want 1", a.live.Version())
	}
	if !a.host.Sidebars().Exists("left") {
		t.Error("left sidebar not mounted after settings change")
	}
}

func TestSettings_PutRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "malformed json", body: `{"position":`, want: http.StatusBadRequest},
		{name: "invalid position", body: `{"position":"UP"}`, want: http.StatusUnprocessableEntity},
		{name: "missing template", body: `{"template_path":"` + filepath.Join(t.TempDir(), "x.json") + `"}`, want: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t)
			w := a.do(http.MethodPut, "/api/v1/settings", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			decodeProblem(t, w)
			if a.live.Version() != 0 {
				t.Error("rejected settings were stored")
			}
		})
	}
}

func TestClickTab(t *testing.T) {
	a := newTestAPI(t, modernBlock)
	tc := config.DefaultTracker()
	tc.Position = "RIGHT"
	tc.TemplatePath = "tabbed"
	if err := a.host.UpdateSettings(context.Background(), tc); err != nil {
		t.Fatal(err)
	}

	if w := a.do(http.MethodPost, "/api/v1/sidebar/right/tabs/1", ""); w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204: %s", w.Code, w.Body.String())
	}
	if w := a.do(http.MethodPost, "/api/v1/sidebar/right/tabs/9", ""); w.Code != http.StatusNotFound {
		t.Errorf("out of range status = %d, want 404", w.Code)
	}
	if w := a.do(http.MethodPost, "/api/v1/sidebar/top/tabs/0", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown side status = %d, want 400", w.Code)
	}
}

func TestGenerate(t *testing.T) {
	a := newTestAPI(t, "hi")
	a.gen.result = &generate.Result{MessageID: 0, Text: "hi\n\n" + modernBlock}

	w := a.do(http.MethodPost, "/api/v1/generate/0", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if a.gen.calls != 1 {
		t.Errorf("calls = %d", a.gen.calls)
	}

	a.gen.err = generate.ErrGenerationInProgress
	if w := a.do(http.MethodPost, "/api/v1/generate/0", ""); w.Code != http.StatusConflict {
		t.Errorf("in progress status = %d, want 409", w.Code)
	}
	a.gen.err = generate.ErrInvalidResponse
	if w := a.do(http.MethodPost, "/api/v1/generate/0", ""); w.Code != http.StatusBadGateway {
		t.Errorf("invalid response status = %d, want 502", w.Code)
	}
}

func TestGenerate_Disabled(t *testing.T) {
	a := newTestAPI(t, "hi")
	a.handler.generator = nil

	w := a.do(http.MethodPost, "/api/v1/generate/0", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestChats(t *testing.T) {
	// Given: a chat database with one imported chat
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "chats.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	info, err := db.ImportChat(context.Background(), store.ChatInfo{Name: "evening"}, []chat.Message{{ID: 0, Text: "a"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SaveText(context.Background(), info.ID, 0, "b"); err != nil {
		t.Fatal(err)
	}

	a := newTestAPI(t)
	a.handler.chats = db
	a.router = NewRouter(a.handler)

	// When/Then: listing
	w := a.do(http.MethodGet, "/api/v1/chats", "")
	var chats []store.ChatInfo
	if err := json.Unmarshal(w.Body.Bytes(), &chats); err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].ID != info.ID {
		t.Errorf("chats = %+v", chats)
	}

	// When/Then: revisions
	w = a.do(http.MethodGet, "/api/v1/chats/"+info.ID+"/messages/0/revisions", "")
	var revs []store.Revision
	if err := json.Unmarshal(w.Body.Bytes(), &revs); err != nil {
		t.Fatal(err)
	}
	if len(revs) != 1 || revs[0].Text != "a" {
		t.Errorf("revisions = %+v", revs)
	}

	// When/Then: unknown chat
	if w := a.do(http.MethodGet, "/api/v1/chats/01ARZ3NDEKTSV4RRFFQ69G5FAV", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown chat status = %d, want 404", w.Code)
	}

	// When/Then: malformed chat id
	if w := a.do(http.MethodGet, "/api/v1/chats/nope", ""); w.Code != http.StatusBadRequest {
		t.Errorf("malformed chat id status = %d, want 400", w.Code)
	}
}

func TestSettings_PutListsFieldErrors(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(http.MethodPut, "/api/v1/settings", `{"position":"UP","identifier":""}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", w.Code, w.Body.String())
	}

	var p ProblemWithErrors
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	fields := map[string]bool{}
	for _, e := range p.Errors {
		fields[e.Field] = true
	}
	if !fields["position"] || !fields["identifier"] {
		t.Errorf("errors = %+v, want position and identifier", p.Errors)
	}
}

func TestChats_NoDatabase(t *testing.T) {
	a := newTestAPI(t)
	if w := a.do(http.MethodGet, "/api/v1/chats", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if w := a.do(http.MethodGet, "/api/v1/chats/x", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestMapError_Internal(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil)

	MapError(w, r, errors.New("disk on fire"))

	p := decodeProblem(t, w)
	if p.Status != http.StatusInternalServerError || strings.Contains(p.Detail, "disk") {
		t.Errorf("problem = %+v", p)
	}
}
