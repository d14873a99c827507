package pathstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgallion1/docanchor/internal/selector"
	"github.com/google/uuid"
)

// Annotation status values.
const (
	StatusPending  = "pending"
	StatusAnchored = "anchored"
	StatusOrphaned = "orphaned"
)

// Annotation is a saved selector set plus the outcome of its last re-anchoring.
type Annotation struct {
	ID           string       `json:"id"`
	DocumentID   string       `json:"document_id"`
	Selectors    selector.Set `json:"selectors"`
	Quote        string       `json:"quote"`
	Class        string       `json:"class,omitempty"`
	Note         string       `json:"note,omitempty"`
	Status       string       `json:"status"`
	Strategy     string       `json:"strategy,omitempty"`
	Start        int          `json:"start"`
	End          int          `json:"end"`
	QuoteChanged bool         `json:"quote_changed,omitempty"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func annotationsKey(docID string) string {
	return fmt.Sprintf("docanchor/documents/%s/annotations", docID)
}

func annotationKey(docID, id string) string {
	return annotationsKey(docID) + "/" + id
}

// NewAnnotationID returns a time-ordered annotation ID.
func NewAnnotationID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate annotation id: %w", err)
	}
	return id.String(), nil
}

// PutAnnotation stores a. A missing ID is generated and written back to a.
func (c *Client) PutAnnotation(ctx context.Context, a *Annotation) error {
	if a.DocumentID == "" {
		return fmt.Errorf("put annotation: document id is required")
	}
	if a.ID == "" {
		id, err := NewAnnotationID()
		if err != nil {
			return err
		}
		a.ID = id
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusPending
	}

	return c.PutNode(ctx, annotationKey(a.DocumentID, a.ID), NodeRequest{
		Value:  a,
		Source: "docanchor:" + a.DocumentID,
	})
}

// GetAnnotation loads one annotation. A missing annotation returns nil, nil.
func (c *Client) GetAnnotation(ctx context.Context, docID, id string) (*Annotation, error) {
	node, err := c.GetNode(ctx, annotationKey(docID, id))
	if err != nil || node == nil {
		return nil, err
	}
	var a Annotation
	if err := json.Unmarshal(node.Value, &a); err != nil {
		return nil, fmt.Errorf("decode annotation %s: %w", id, err)
	}
	return &a, nil
}

// ListAnnotations returns every annotation stored for docID. Nodes that do
// not decode are reported in the error but do not hide the others.
func (c *Client) ListAnnotations(ctx context.Context, docID string) ([]Annotation, error) {
	nodes, err := c.ListChildren(ctx, annotationsKey(docID), 0)
	if err != nil {
		return nil, err
	}
	out := make([]Annotation, 0, len(nodes))
	var firstErr error
	for _, n := range nodes {
		var a Annotation
		if err := json.Unmarshal(n.Value, &a); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("decode annotation %s: %w", n.Key, err)
			}
			continue
		}
		out = append(out, a)
	}
	return out, firstErr
}

// DeleteAnnotation removes one annotation.
func (c *Client) DeleteAnnotation(ctx context.Context, docID, id string) error {
	return c.DeleteNode(ctx, annotationKey(docID, id), false)
}

// DeleteAnnotations removes every annotation stored for docID.
func (c *Client) DeleteAnnotations(ctx context.Context, docID string) error {
	return c.DeleteNode(ctx, annotationsKey(docID), true)
}
