package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-content-cache/internal/convert"
	"go-content-cache/internal/logger"
	"go-content-cache/internal/pubcache"
	"go-content-cache/internal/service"
)

var testDate = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type mockNotifier struct {
	content     []service.ContentChange
	types       []int
	errToReturn error
}

var _ Notifier = (*mockNotifier)(nil)

func (m *mockNotifier) NotifyContent(ctx context.Context, changes ...service.ContentChange) error {
	m.content = append(m.content, changes...)
	return m.errToReturn
}

func (m *mockNotifier) NotifyContentTypes(ctx context.Context, ids ...int) error {
	m.types = append(m.types, ids...)
	return nil
}

type testServer struct {
	store    *pubcache.ContentStore
	notifier *mockNotifier
	handler  http.Handler
}

// newTestServer builds a store holding Home > (About > Team, Secret) where
// Home has a pending draft and Secret was never published.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, RouterOptions{MetricsPath: "/metrics"})
}

func newTestServerWith(t *testing.T, opts RouterOptions) *testServer {
	t.Helper()
	registry := convert.NewRegistry()
	page := pubcache.NewContentType(1, "page", []*pubcache.PropertyType{
		{ID: 10, Alias: "title", EditorAlias: convert.EditorText, Converter: registry.For(convert.EditorText)},
		{ID: 11, Alias: "body", EditorAlias: convert.EditorMarkdown, Converter: registry.For(convert.EditorMarkdown)},
	})
	types := pubcache.ContentTypeLookupFunc(func(ctx context.Context, id int) (*pubcache.ContentType, error) {
		if id != 1 {
			return nil, errors.New("unknown content type")
		}
		return page, nil
	})
	store := pubcache.NewContentStore(types, logger.Nop())

	node := func(id, parentID int) pubcache.NodeInfo {
		return pubcache.NodeInfo{ID: id, ParentID: parentID, Level: 1, CreateDate: testDate}
	}
	kits := []pubcache.ContentNodeKit{
		{
			Node:          node(1, pubcache.RootID),
			ContentTypeID: 1,
			DraftData:     pubcache.NewContentData("Home draft", 2, testDate, false),
			PublishedData: pubcache.NewContentData("Home", 1, testDate, true,
				pubcache.WithTemplate(5),
				pubcache.WithProperty(10, "Welcome"),
				pubcache.WithProperty(11, "**hi**"),
			),
		},
		{Node: node(2, 1), ContentTypeID: 1, PublishedData: pubcache.NewContentData("About", 3, testDate, true)},
		{Node: node(3, 1), ContentTypeID: 1, DraftData: pubcache.NewContentData("Secret", 4, testDate, false)},
		{Node: node(4, 2), ContentTypeID: 1, PublishedData: pubcache.NewContentData("Team", 5, testDate, true)},
	}
	for _, k := range kits {
		if err := store.ApplyKit(context.Background(), k); err != nil {
			t.Fatalf("failed to seed kit %d: %v", k.Node.ID, err)
		}
	}

	notifier := &mockNotifier{}
	log := logger.Nop()
	router := NewRouter(
		NewContentHandler(store, notifier, log),
		NewSeoHandler(store, "https://example.com/"),
		store, opts, log,
	)
	return &testServer{store: store, notifier: notifier, handler: router}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) []string {
	t.Helper()
	var items []ContentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
		t.Fatalf("failed to decode list: %v: %s", err, rr.Body.String())
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	return names
}

func TestContentHandler_Get(t *testing.T) {
	srv := newTestServer(t)

	testCases := []struct {
		name       string
		target     string
		wantStatus int
		wantName   string
		wantDraft  bool
	}{
		{"published", "/content/1", http.StatusOK, "Home", false},
		{"preview prefers draft", "/content/1?preview=true", http.StatusOK, "Home draft", true},
		{"draft only hidden", "/content/3", http.StatusNotFound, "", false},
		{"draft only in preview", "/content/3?preview=true", http.StatusOK, "Secret", true},
		{"preview falls back to published", "/content/2?preview=true", http.StatusOK, "About", false},
		{"unknown", "/content/404", http.StatusNotFound, "", false},
		{"bad id", "/content/abc", http.StatusBadRequest, "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := srv.do(t, http.MethodGet, tc.target, "")
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				var body struct {
					Status  int    `json:"status"`
					Message string `json:"message"`
				}
				if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body.Status != tc.wantStatus || body.Message == "" {
					t.Errorf("expected a JSON error body, got %s", rr.Body.String())
				}
				return
			}
			var got ContentResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if got.Name != tc.wantName || got.IsDraft != tc.wantDraft {
				t.Errorf("expected %q (draft %v), got %q (draft %v)", tc.wantName, tc.wantDraft, got.Name, got.IsDraft)
			}
		})
	}
}

func TestContentHandler_Properties(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodGet, "/content/1", "")
	var got ContentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if got.Properties["title"] != "Welcome" {
		t.Errorf("expected title Welcome, got %v", got.Properties["title"])
	}
	if body, _ := got.Properties["body"].(string); !strings.Contains(body, "<strong>hi</strong>") {
		t.Errorf("expected rendered markdown, got %q", body)
	}
	if got.TemplateID == nil || *got.TemplateID != 5 {
		t.Errorf("expected template 5, got %v", got.TemplateID)
	}
	if got.ContentType != "page" {
		t.Errorf("expected content type page, got %q", got.ContentType)
	}

	rr = srv.do(t, http.MethodGet, "/content/1/properties/title", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var prop PropertyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &prop); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !prop.HasValue || prop.Value != "Welcome" || prop.Editor != convert.EditorText {
		t.Errorf("unexpected property %+v", prop)
	}

	rr = srv.do(t, http.MethodGet, "/content/2/properties/title", "")
	if err := json.Unmarshal(rr.Body.Bytes(), &prop); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if prop.HasValue {
		t.Error("About stores no title")
	}

	rr = srv.do(t, http.MethodGet, "/content/1/properties/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestContentHandler_Navigation(t *testing.T) {
	srv := newTestServer(t)

	testCases := []struct {
		name   string
		target string
		want   []string
	}{
		{"roots", "/content/roots", []string{"Home"}},
		{"published children", "/content/1/children", []string{"About"}},
		{"preview children", "/content/1/children?preview=true", []string{"About", "Secret"}},
		{"ancestors", "/content/4/ancestors", []string{"About", "Home"}},
		{"preview of published content stays published", "/content/4/ancestors?preview=true", []string{"About", "Home"}},
		{"draft navigates in preview", "/content/3/ancestors?preview=true", []string{"Home draft"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := srv.do(t, http.MethodGet, tc.target, "")
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			got := decodeList(t, rr)
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestContentHandler_Notify(t *testing.T) {
	t.Run("forwards changes", func(t *testing.T) {
		srv := newTestServer(t)
		rr := srv.do(t, http.MethodPost, "/cache/notify",
			`{"content":[{"id":2,"kind":"refresh-node"},{"id":1,"kind":"refresh-branch"}],"contentTypes":[1]}`)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		want := []service.ContentChange{{ID: 2, Kind: service.RefreshNode}, {ID: 1, Kind: service.RefreshBranch}}
		if len(srv.notifier.content) != 2 || srv.notifier.content[0] != want[0] || srv.notifier.content[1] != want[1] {
			t.Errorf("expected %v, got %v", want, srv.notifier.content)
		}
		if len(srv.notifier.types) != 1 || srv.notifier.types[0] != 1 {
			t.Errorf("expected content type 1, got %v", srv.notifier.types)
		}
		var resp NotifyResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if resp.Nodes != 4 || resp.Generation != srv.store.Generation() {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("rejects bad bodies", func(t *testing.T) {
		srv := newTestServer(t)
		for _, body := range []string{`{"content":[{"id":1,"kind":"explode"}]}`, `{}`, `not json`} {
			rr := srv.do(t, http.MethodPost, "/cache/notify", body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("body %s: expected 400, got %d", body, rr.Code)
			}
		}
		if len(srv.notifier.content) != 0 {
			t.Error("nothing should have been forwarded")
		}
	})

	t.Run("reports failures", func(t *testing.T) {
		srv := newTestServer(t)
		srv.notifier.errToReturn = errors.New("db down")
		rr := srv.do(t, http.MethodPost, "/cache/notify", `{"content":[{"id":1,"kind":"refresh-all"}]}`)
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rr.Code)
		}
	})
}

func TestContentHandler_NotifyGuard(t *testing.T) {
	srv := newTestServerWith(t, RouterOptions{NotifyPath: "/internal/notify", NotifyToken: "s3cret"})
	body := `{"content":[{"id":2,"kind":"refresh-node"}]}`

	post := func(target, auth string) int {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rr := httptest.NewRecorder()
		srv.handler.ServeHTTP(rr, req)
		return rr.Code
	}

	testCases := []struct {
		name       string
		target     string
		auth       string
		wantStatus int
	}{
		{"default path is not mounted", "/cache/notify", "Bearer s3cret", http.StatusNotFound},
		{"missing token", "/internal/notify", "", http.StatusUnauthorized},
		{"wrong token", "/internal/notify", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "/internal/notify", "Basic s3cret", http.StatusUnauthorized},
		{"valid token", "/internal/notify", "Bearer s3cret", http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := post(tc.target, tc.auth); got != tc.wantStatus {
				t.Errorf("expected %d, got %d", tc.wantStatus, got)
			}
		})
	}
	if len(srv.notifier.content) != 1 {
		t.Errorf("expected one forwarded change, got %v", srv.notifier.content)
	}
}

func TestSeoHandler(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodGet, "/sitemap.xml", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"<loc>https://example.com/content/1</loc>",
		"<loc>https://example.com/content/2</loc>",
		"<loc>https://example.com/content/4</loc>",
		"<lastmod>2024-03-01</lastmod>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("sitemap missing %s:\n%s", want, body)
		}
	}
	if strings.Contains(body, "/content/3<") {
		t.Error("unpublished content must not be listed")
	}

	rr = srv.do(t, http.MethodGet, "/robots.txt", "")
	if !strings.Contains(rr.Body.String(), "Sitemap: https://example.com/sitemap.xml") {
		t.Errorf("unexpected robots.txt: %s", rr.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	srv := newTestServer(t)
	rr := srv.do(t, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["status"] != "ok" || body["nodes"] != float64(4) {
		t.Errorf("unexpected health %v", body)
	}
}
