package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docanchor/internal/config"
	"github.com/dgallion1/docanchor/internal/doctree"
	"github.com/dgallion1/docanchor/internal/matcher"
	"github.com/dgallion1/docanchor/internal/pathstore"
	"github.com/dgallion1/docanchor/internal/selector"
	"github.com/dgallion1/docanchor/internal/session"
)

type memStore struct {
	mu          sync.Mutex
	annotations map[string]pathstore.Annotation
	putFailures int
	puts        int
}

func (m *memStore) ListAnnotations(_ context.Context, docID string) ([]pathstore.Annotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pathstore.Annotation
	for _, a := range m.annotations {
		if a.DocumentID == docID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) PutAnnotation(_ context.Context, a *pathstore.Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putFailures > 0 {
		m.putFailures--
		return &pathstore.StatusError{Op: "put node", Key: a.ID, Code: http.StatusServiceUnavailable}
	}
	m.annotations[a.ID] = *a
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T, src string) (*session.Store, *session.Document, *memStore) {
	t.Helper()
	sessions := session.NewStore(session.Config{
		Matcher: matcher.Config{MaxPatternLength: 32, MatchThreshold: 0.5},
	}, quietLogger())
	doc, err := sessions.Open("doc.html", strings.NewReader(src), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return sessions, doc, &memStore{annotations: make(map[string]pathstore.Annotation)}
}

func quoteAnnotation(docID, id, exact string) pathstore.Annotation {
	return pathstore.Annotation{
		ID:         id,
		DocumentID: docID,
		Quote:      exact,
		Selectors:  selector.Set{selector.FromQuote(selector.TextQuoteSelector{Exact: exact})},
		Status:     pathstore.StatusPending,
	}
}

func newTestWorker(sessions *session.Store, store AnnotationStore) *Worker {
	w := NewWorker(sessions, store, quietLogger(), 2)
	w.backoff = func(int) time.Duration { return time.Millisecond }
	return w
}

func TestWorker_ReanchorsAndHighlights(t *testing.T) {
	sessions, doc, store := setup(t, `<p>The quick brown fox jumps over the lazy dog</p><p>A second paragraph.</p>`)
	store.annotations["a1"] = quoteAnnotation(doc.ID, "a1", "brown fox")
	store.annotations["a2"] = quoteAnnotation(doc.ID, "a2", "The qick brown fox")
	store.annotations["a3"] = quoteAnnotation(doc.ID, "a3", "0000-1111-2222-3333")
	store.annotations["other"] = quoteAnnotation("another-doc", "other", "brown fox")

	job, _ := NewJob(doc.ID, true, "")
	newTestWorker(sessions, store).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (errors %v)", snap.Status, snap.Progress.Errors)
	}
	p := snap.Progress
	if p.TotalAnnotations != 3 || p.Anchored != 2 || p.Changed != 1 || p.Orphaned != 1 || p.Stored != 3 {
		t.Errorf("unexpected progress %+v", p)
	}

	a1 := store.annotations["a1"]
	if a1.Status != pathstore.StatusAnchored || a1.Start != 10 || a1.End != 19 {
		t.Errorf("unexpected a1 %+v", a1)
	}
	a2 := store.annotations["a2"]
	if !a2.QuoteChanged || a2.Strategy != "quote" {
		t.Errorf("expected a2 anchored by quote with change, got %+v", a2)
	}
	if a3 := store.annotations["a3"]; a3.Status != pathstore.StatusOrphaned || a3.Error == "" {
		t.Errorf("expected a3 orphaned, got %+v", a3)
	}
	if store.annotations["other"].Status != pathstore.StatusPending {
		t.Error("expected annotations of other documents untouched")
	}

	doc.Do(func(c *session.Core) error {
		if n := len(c.Highlights.List()); n != 2 {
			t.Errorf("expected 2 highlights, got %d", n)
		}
		if c.Index.Corpus() != "The quick brown fox jumps over the lazy dogA second paragraph." {
			t.Errorf("expected corpus unchanged, got %q", c.Index.Corpus())
		}
		var sb strings.Builder
		doctree.Render(&sb, c.Root)
		if !strings.Contains(sb.String(), "<mark") {
			t.Errorf("expected marks in rendered document, got %s", sb.String())
		}
		return nil
	})
}

func TestWorker_RetriesStoreErrors(t *testing.T) {
	sessions, doc, store := setup(t, `<p>alpha beta gamma</p>`)
	store.annotations["a1"] = quoteAnnotation(doc.ID, "a1", "beta")
	store.putFailures = 2

	job, _ := NewJob(doc.ID, false, "")
	newTestWorker(sessions, store).Process(context.Background(), job)

	if snap := job.Snapshot(); snap.Status != StatusCompleted {
		t.Fatalf("expected completed after retries, got %s (%v)", snap.Status, snap.Progress.Errors)
	}
	if store.puts != 3 {
		t.Errorf("expected 3 put attempts, got %d", store.puts)
	}
}

func TestWorker_StoreFailureFailsJob(t *testing.T) {
	sessions, doc, store := setup(t, `<p>alpha beta gamma</p>`)
	store.annotations["a1"] = quoteAnnotation(doc.ID, "a1", "beta")
	store.putFailures = MaxRetries

	job, _ := NewJob(doc.ID, false, "")
	newTestWorker(sessions, store).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed {
		t.Errorf("expected failed, got %s", snap.Status)
	}
	if len(snap.Progress.Errors) != 1 {
		t.Errorf("expected 1 error, got %v", snap.Progress.Errors)
	}
}

func TestWorker_UnknownDocument(t *testing.T) {
	sessions, _, store := setup(t, `<p>x</p>`)
	job, _ := NewJob("missing", false, "")
	newTestWorker(sessions, store).Process(context.Background(), job)
	if snap := job.Snapshot(); snap.Status != StatusFailed || snap.Phase != "loading" {
		t.Errorf("expected failure while loading, got %s/%s", snap.Status, snap.Phase)
	}
}

func TestOrchestrator_SubmitAndComplete(t *testing.T) {
	sessions, doc, store := setup(t, `<p>alpha beta gamma</p>`)
	store.annotations["a1"] = quoteAnnotation(doc.ID, "a1", "gamma")

	cfg := config.Config{WorkerCount: 1, MaxQueueSize: 2, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, sessions, store, quietLogger())
	o.Start(context.Background())
	defer o.Stop()

	job, _ := NewJob(doc.ID, false, "")
	if err := o.Submit(job); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if o.GetJob(job.ID) != job {
		t.Fatal("expected submitted job to be registered")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job.Snapshot().Status == StatusCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if snap := job.Snapshot(); snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if a := store.annotations["a1"]; a.Start != 11 || a.End != 16 {
		t.Errorf("expected [11,16), got [%d,%d)", a.Start, a.End)
	}
}
