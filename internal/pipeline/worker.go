package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docanchor/internal/anchor"
	"github.com/dgallion1/docanchor/internal/pathstore"
	"github.com/dgallion1/docanchor/internal/session"
)

// AnnotationStore is the subset of the pathstore client the worker needs.
type AnnotationStore interface {
	ListAnnotations(ctx context.Context, docID string) ([]pathstore.Annotation, error)
	PutAnnotation(ctx context.Context, a *pathstore.Annotation) error
}

// Worker processes a single re-anchoring job.
type Worker struct {
	sessions *session.Store
	store    AnnotationStore
	log      *slog.Logger

	maxConcurrentStore int
	backoff            func(int) time.Duration
}

func NewWorker(sessions *session.Store, store AnnotationStore, log *slog.Logger, maxStore int) *Worker {
	if maxStore <= 0 {
		maxStore = 1
	}
	return &Worker{
		sessions:           sessions,
		store:              store,
		log:                log,
		maxConcurrentStore: maxStore,
		backoff:            Backoff,
	}
}

// Process resolves every stored annotation of the job's document against the
// loaded document and writes the outcome back to the store.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)

	// Phase 1: Load
	job.SetStatus(StatusLoading, "loading")
	doc, err := w.sessions.Get(job.DocID)
	if err != nil {
		log.Error("document not loaded", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "loading")
		return
	}

	var annotations []pathstore.Annotation
	err = retry(ctx, log, w.backoff, "list annotations", func() error {
		var listErr error
		annotations, listErr = w.store.ListAnnotations(ctx, job.DocID)
		return listErr
	})
	if err != nil && len(annotations) == 0 {
		log.Error("list annotations failed", "error", err)
		job.AddError(fmt.Sprintf("list: %s", err))
		job.SetStatus(StatusFailed, "loading")
		return
	}
	if err != nil {
		log.Warn("some annotations could not be decoded", "error", err)
		job.AddError(fmt.Sprintf("list: %s", err))
	}
	job.SetTotal(len(annotations))
	log.Info("loaded annotations", "count", len(annotations))

	if len(annotations) == 0 {
		job.SetStatus(StatusCompleted, "done")
		return
	}

	// Phase 2: Resolve. The document's core is single threaded, so
	// annotations are resolved one at a time under its lock.
	job.SetStatus(StatusResolving, "resolving")
	hadErrors := false
	for i := range annotations {
		if ctx.Err() != nil {
			job.AddError(ctx.Err().Error())
			job.SetStatus(StatusFailed, "resolving")
			return
		}
		a := &annotations[i]
		outcome := w.resolve(doc, job, a)
		job.Record(outcome)
		if outcome == OutcomeError {
			hadErrors = true
			job.AddError(fmt.Sprintf("annotation %s: %s", a.ID, a.Error))
		}
	}

	// Phase 3: Store outcomes with bounded concurrency.
	job.SetStatus(StatusStoring, "storing")
	sem := make(chan struct{}, w.maxConcurrentStore)
	type storeResult struct {
		id  string
		err error
	}
	results := make(chan storeResult, len(annotations))
	for i := range annotations {
		sem <- struct{}{}
		go func(a *pathstore.Annotation) {
			defer func() { <-sem }()
			err := retry(ctx, log, w.backoff, "put annotation", func() error {
				return w.store.PutAnnotation(ctx, a)
			})
			results <- storeResult{id: a.ID, err: err}
		}(&annotations[i])
	}

	stored := 0
	for range annotations {
		r := <-results
		if r.err != nil {
			log.Error("store failed", "annotation_id", r.id, "error", r.err)
			job.AddError(fmt.Sprintf("store %s: %s", r.id, r.err))
			hadErrors = true
			continue
		}
		stored++
		job.IncrStored()
	}

	snap := job.Snapshot()
	log.Info("re-anchoring complete",
		"anchored", snap.Progress.Anchored,
		"changed", snap.Progress.Changed,
		"orphaned", snap.Progress.Orphaned,
		"stored", stored,
	)

	if hadErrors && stored > 0 {
		job.SetStatus(StatusPartial, "done")
	} else if hadErrors {
		job.SetStatus(StatusFailed, "storing")
	} else {
		job.SetStatus(StatusCompleted, "done")
	}
}

// resolve anchors a in doc and records the outcome on a.
func (w *Worker) resolve(doc *session.Document, job *Job, a *pathstore.Annotation) Outcome {
	outcome := OutcomeError
	err := doc.Do(func(c *session.Core) error {
		res, err := c.Resolver.Resolve(a.Selectors, a.Quote)
		if err != nil {
			return err
		}
		a.Status = pathstore.StatusAnchored
		a.Strategy = string(res.Strategy)
		a.Start, a.End = res.Start, res.End
		a.QuoteChanged = res.QuoteChanged
		a.Error = ""
		outcome = OutcomeAnchored
		if res.QuoteChanged {
			outcome = OutcomeChanged
		}

		if !job.Highlight {
			return nil
		}
		class := job.Class
		if class == "" {
			class = a.Class
		}
		if class == "" {
			class = c.Class
		}
		// Highlighting earlier annotations leaves corpus offsets intact but
		// splits nodes, so the live range is re-derived from offsets.
		m, err := c.Index.MapRange(res.Start, res.End)
		if err != nil {
			return err
		}
		if _, err := c.Highlights.Highlight(m.Range, class); err != nil {
			w.log.Warn("highlight failed", "annotation_id", a.ID, "error", err)
		}
		return nil
	})

	var aerr *anchor.AnchoringError
	switch {
	case err == nil:
	case errors.As(err, &aerr):
		a.Status = pathstore.StatusOrphaned
		a.Strategy = ""
		a.Error = err.Error()
		outcome = OutcomeOrphaned
	default:
		a.Error = err.Error()
		outcome = OutcomeError
	}
	return outcome
}
