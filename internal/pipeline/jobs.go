package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a re-anchoring job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusLoading   JobStatus = "loading"
	StatusResolving JobStatus = "resolving"
	StatusStoring   JobStatus = "storing"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusPartial   JobStatus = "partial"
)

// Job tracks the re-anchoring of every stored annotation of one document.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	DocID string `json:"doc_id"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	// Highlight wraps every anchored annotation in a marker.
	Highlight bool   `json:"highlight"`
	Class     string `json:"class,omitempty"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	errors []string
}

// Progress tracks processing progress.
type Progress struct {
	TotalAnnotations int      `json:"total_annotations"`
	Processed        int      `json:"processed"`
	Anchored         int      `json:"anchored"`
	Changed          int      `json:"changed"`
	Orphaned         int      `json:"orphaned"`
	Stored           int      `json:"stored"`
	Errors           []string `json:"errors"`
}

// NewJob creates a queued job for docID.
func NewJob(docID string, highlight bool, class string) (*Job, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}
	now := time.Now()
	return &Job{
		ID:        id.String(),
		DocID:     docID,
		Status:    StatusQueued,
		Phase:     "queued",
		Highlight: highlight,
		Class:     class,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetTotal records how many annotations the job will process.
func (j *Job) SetTotal(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalAnnotations = n
	j.UpdatedAt = time.Now()
}

// Outcome is the result of resolving one annotation.
type Outcome int

const (
	OutcomeAnchored Outcome = iota
	OutcomeChanged
	OutcomeOrphaned
	OutcomeError
)

// Record counts one processed annotation.
func (j *Job) Record(o Outcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Processed++
	switch o {
	case OutcomeAnchored:
		j.Progress.Anchored++
	case OutcomeChanged:
		j.Progress.Anchored++
		j.Progress.Changed++
	case OutcomeOrphaned:
		j.Progress.Orphaned++
	}
	j.UpdatedAt = time.Now()
}

// IncrStored counts one annotation written back to the store.
func (j *Job) IncrStored() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Stored++
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	DocID     string    `json:"doc_id"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Highlight bool      `json:"highlight"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.errors))
	copy(errs, j.errors)
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:        j.ID,
		DocID:     j.DocID,
		Status:    j.Status,
		Phase:     j.Phase,
		Highlight: j.Highlight,
		Progress:  p,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
