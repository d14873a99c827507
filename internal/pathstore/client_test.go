package pathstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dgallion1/docanchor/internal/selector"
)

// fakeStore is a minimal in-memory pathstore.
type fakeStore struct {
	mu    sync.Mutex
	nodes map[string]json.RawMessage
	auth  []string
}

func newFakeStore(t *testing.T) (*fakeStore, *Client) {
	t.Helper()
	fs := &fakeStore{nodes: make(map[string]json.RawMessage)}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "secret")
	t.Cleanup(c.Close)
	return fs, c
}

func (fs *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.auth = append(fs.auth, r.Header.Get("Authorization"))

	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	switch {
	case r.Method == http.MethodPut:
		var req struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fs.nodes[key] = req.Value
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodGet && strings.HasSuffix(key, "/*"):
		prefix := strings.TrimSuffix(key, "*")
		var nodes []NodeResponse
		for k, v := range fs.nodes {
			if strings.HasPrefix(k, prefix) {
				nodes = append(nodes, NodeResponse{Key: k, Value: v})
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"nodes": nodes})
	case r.Method == http.MethodGet:
		v, ok := fs.nodes[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(NodeResponse{Key: key, Value: v})
	case r.Method == http.MethodDelete:
		for k := range fs.nodes {
			if k == key || (r.URL.Query().Get("children") == "true" && strings.HasPrefix(k, key+"/")) {
				delete(fs.nodes, k)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestAnnotationLifecycle(t *testing.T) {
	fs, c := newFakeStore(t)
	ctx := context.Background()

	a := &Annotation{
		DocumentID: "doc-1",
		Quote:      "cat sat on",
		Selectors: selector.Set{
			selector.FromQuote(selector.TextQuoteSelector{Exact: "cat sat on", Prefix: "Then the ", Suffix: " the hat."}),
			selector.FromPosition(selector.TextPositionSelector{Start: 32, End: 42}),
		},
	}
	if err := c.PutAnnotation(ctx, a); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	if a.ID == "" {
		t.Fatal("expected generated annotation id")
	}
	if a.Status != StatusPending {
		t.Errorf("expected status %s, got %s", StatusPending, a.Status)
	}

	got, err := c.GetAnnotation(ctx, "doc-1", a.ID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored annotation")
	}
	q, ok := got.Selectors.Quote()
	if !ok || q.Prefix != "Then the " {
		t.Errorf("expected quote selector with prefix, got %+v", got.Selectors)
	}
	if p, ok := got.Selectors.Position(); !ok || p.Start != 32 || p.End != 42 {
		t.Errorf("expected position [32,42), got %+v", p)
	}

	second := &Annotation{DocumentID: "doc-1", Quote: "mat"}
	if err := c.PutAnnotation(ctx, second); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	other := &Annotation{DocumentID: "doc-2", Quote: "elsewhere"}
	if err := c.PutAnnotation(ctx, other); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	list, err := c.ListAnnotations(ctx, "doc-1")
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 annotations for doc-1, got %d", len(list))
	}

	if err := c.DeleteAnnotation(ctx, "doc-1", a.ID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	got, err = c.GetAnnotation(ctx, "doc-1", a.ID)
	if err != nil || got != nil {
		t.Errorf("expected deleted annotation to be missing, got %+v err %v", got, err)
	}

	if err := c.DeleteAnnotations(ctx, "doc-1"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if list, _ := c.ListAnnotations(ctx, "doc-1"); len(list) != 0 {
		t.Errorf("expected no annotations after bulk delete, got %d", len(list))
	}
	if list, _ := c.ListAnnotations(ctx, "doc-2"); len(list) != 1 {
		t.Errorf("expected doc-2 untouched, got %d", len(list))
	}

	for _, h := range fs.auth {
		if h != "Bearer secret" {
			t.Fatalf("expected bearer auth, got %q", h)
		}
	}
}

func TestPutAnnotationRequiresDocument(t *testing.T) {
	_, c := newFakeStore(t)
	if err := c.PutAnnotation(context.Background(), &Annotation{Quote: "x"}); err == nil {
		t.Error("expected error for missing document id")
	}
}

func TestStatusErrorRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "k")

	err := c.PutNode(context.Background(), "a/b", NodeRequest{Value: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRetryable(err) {
		t.Errorf("expected 503 to be retryable, got %v", err)
	}
	if IsRetryable(&StatusError{Code: http.StatusBadRequest}) {
		t.Error("expected 400 not to be retryable")
	}
}
