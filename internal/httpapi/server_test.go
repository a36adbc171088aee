package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/stash/internal/auth"
	"horse.fit/stash/internal/catalog"
	"horse.fit/stash/internal/db"
	"horse.fit/stash/internal/save"
	payloadschema "horse.fit/stash/schema"
)

type fakeSaver struct {
	lastPayload *payloadschema.SaveItem
	result      *save.Result
}

func (f *fakeSaver) Save(_ context.Context, payload *payloadschema.SaveItem) (*save.Result, error) {
	f.lastPayload = payload
	if f.result != nil {
		return f.result, nil
	}
	return &save.Result{ContentID: "youtube-test", Merged: false}, nil
}

type fakeCatalog struct {
	items map[string]catalog.ContentItem
}

func (f *fakeCatalog) GetItem(_ context.Context, id string) (*catalog.ContentItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (f *fakeCatalog) ListItems(_ context.Context, opts db.ContentListOptions) ([]catalog.ContentItem, error) {
	var out []catalog.ContentItem
	for _, item := range f.items {
		if opts.Platform != "" && item.Platform != opts.Platform {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

type fakeCreators struct{}

func (fakeCreators) ListCreators(_ context.Context) ([]catalog.Creator, error) {
	return []catalog.Creator{{ID: "youtube:someone", Name: "Someone"}}, nil
}

type fakeStats struct{}

func (fakeStats) CatalogStats(_ context.Context) (*db.CatalogStats, error) {
	return &db.CatalogStats{TotalItems: 3, ItemsByPlatform: map[string]int64{"youtube": 3}}, nil
}

func newTestServer(t *testing.T, opts Options) (*Server, *fakeSaver) {
	t.Helper()
	saver := &fakeSaver{}
	contents := &fakeCatalog{items: map[string]catalog.ContentItem{
		"youtube-abc": {ID: "youtube-abc", Platform: "youtube", ExternalID: "abc", Title: "A Video"},
	}}
	server := NewServer(saver, contents, fakeCreators{}, fakeStats{}, zerolog.Nop(), opts)
	return server, saver
}

func doRequest(server *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	server.router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, Options{})
	rec := doRequest(server, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"service":"stash"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestSaveEndpointAcceptsValidPayload(t *testing.T) {
	t.Parallel()

	server, saver := newTestServer(t, Options{})
	body := `{"payload_version":"v1","url":"https://youtu.be/abc12345","user_id":"user-1","title":"A Video"}`
	rec := doRequest(server, http.MethodPost, "/api/v1/saves", body, nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body: %s", rec.Code, rec.Body.String())
	}
	if saver.lastPayload == nil || saver.lastPayload.UserID != "user-1" {
		t.Fatalf("expected payload to reach the saver, got %+v", saver.lastPayload)
	}
}

func TestSaveEndpointRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	server, saver := newTestServer(t, Options{})
	body := `{"payload_version":"v2","url":"https://youtu.be/abc12345","user_id":"user-1"}`
	rec := doRequest(server, http.MethodPost, "/api/v1/saves", body, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if saver.lastPayload != nil {
		t.Fatalf("invalid payload must not reach the saver")
	}
}

func TestSaveEndpointMergedReturnsOK(t *testing.T) {
	t.Parallel()

	server, saver := newTestServer(t, Options{})
	saver.result = &save.Result{ContentID: "youtube-abc", Merged: true}

	body := `{"payload_version":"v1","url":"https://youtu.be/abc12345","user_id":"user-1"}`
	rec := doRequest(server, http.MethodPost, "/api/v1/saves", body, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status for merged save: %d", rec.Code)
	}
}

func TestSaveEndpointRequiresTokenWhenConfigured(t *testing.T) {
	t.Parallel()

	hash, err := auth.HashToken("secret-token")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	server, _ := newTestServer(t, Options{APITokenHash: hash})

	body := `{"payload_version":"v1","url":"https://youtu.be/abc12345","user_id":"user-1"}`

	rec := doRequest(server, http.MethodPost, "/api/v1/saves", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doRequest(server, http.MethodPost, "/api/v1/saves", body, map[string]string{
		"Authorization": "Bearer wrong-token",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}

	rec = doRequest(server, http.MethodPost, "/api/v1/saves", body, map[string]string{
		"Authorization": "Bearer secret-token",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with valid token, got %d body: %s", rec.Code, rec.Body.String())
	}
}

func TestCanonicalizeEndpoint(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, Options{})
	body := `{"url":"https://youtu.be/dQw4w9WgXcQ?si=tracking"}`
	rec := doRequest(server, http.MethodPost, "/api/v1/canonicalize", body, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var resp struct {
		Data struct {
			Canonical string `json:"canonical"`
			Platform  string `json:"platform"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Canonical != "https://youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("unexpected canonical url: %q", resp.Data.Canonical)
	}
	if resp.Data.Platform != "youtube" {
		t.Fatalf("unexpected platform: %q", resp.Data.Platform)
	}
}

func TestItemDetailNotFound(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, Options{})
	rec := doRequest(server, http.MethodGet, "/api/v1/items/unknown-id", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestItemsRejectsUnknownPlatform(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, Options{})
	rec := doRequest(server, http.MethodGet, "/api/v1/items?platform=myspace", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
