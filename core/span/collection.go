package span

import (
	"github.com/google/uuid"

	"github.com/hanlabel/kdpii/core/errors"
	"github.com/hanlabel/kdpii/core/taxonomy"
)

// Collection is one document's caller-owned span set with validation.
//
// A Collection is not safe for concurrent mutation of the same document; the
// collaborator store holds a per-document lock around Insert/Update/Delete.
// Independent documents may be mutated from concurrent callers freely.
type Collection struct {
	doc       *Document
	catalog   *taxonomy.Catalog
	projectID string
	spans     []*Span
	byID      map[string]*Span
}

// NewCollection creates a span collection for one document, validating
// against the labels visible to projectID in catalog.
func NewCollection(doc *Document, catalog *taxonomy.Catalog, projectID string) *Collection {
	return &Collection{
		doc:       doc,
		catalog:   catalog,
		projectID: projectID,
		byID:      make(map[string]*Span),
	}
}

// Document returns the collection's document.
func (c *Collection) Document() *Document {
	return c.doc
}

// validate applies the three structural checks in their fixed order:
// range, label existence, duplicate. First failure wins. exclude is the ID
// of a span to skip in the duplicate check (used by Update), or empty.
func (c *Collection) validate(start, end int, labelCode, exclude string) error {
	if err := c.doc.CheckRange(start, end); err != nil {
		return err
	}
	if _, err := c.catalog.Resolve(labelCode, c.projectID); err != nil {
		return err
	}
	candidate := &Span{Start: start, End: end, LabelCode: labelCode}
	for _, s := range c.spans {
		// Imported spans may carry no ID; exclusion only applies to Update.
		if exclude != "" && s.ID == exclude {
			continue
		}
		if s.sameTriple(candidate) {
			return errors.NewDuplicate(start, end, labelCode)
		}
	}
	return nil
}

// Insert validates and adds a new span. Overlapping spans are permitted
// (nested PII is legitimate); only an identical (start, end, label) triple
// is rejected as a duplicate.
func (c *Collection) Insert(start, end int, labelCode, note string) (*Span, error) {
	if err := c.validate(start, end, labelCode, ""); err != nil {
		return nil, err
	}
	s := &Span{
		ID:         uuid.NewString(),
		DocumentID: c.doc.ID,
		Start:      start,
		End:        end,
		LabelCode:  labelCode,
		Note:       note,
	}
	c.spans = append(c.spans, s)
	c.byID[s.ID] = s
	return s, nil
}

// Update atomically replaces a span's range and label. It validates first
// and commits only on success, so a failed update leaves the original span
// unchanged. The span being updated is excluded from the duplicate check.
func (c *Collection) Update(spanID string, start, end int, labelCode string) (*Span, error) {
	s, ok := c.byID[spanID]
	if !ok {
		return nil, errors.NewNotFound("span", spanID)
	}
	if err := c.validate(start, end, labelCode, spanID); err != nil {
		return nil, err
	}
	s.Start = start
	s.End = end
	s.LabelCode = labelCode
	return s, nil
}

// Delete removes a span by ID.
func (c *Collection) Delete(spanID string) error {
	if _, ok := c.byID[spanID]; !ok {
		return errors.NewNotFound("span", spanID)
	}
	delete(c.byID, spanID)
	for i, s := range c.spans {
		if s.ID == spanID {
			c.spans = append(c.spans[:i], c.spans[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a span by ID.
func (c *Collection) Get(spanID string) (*Span, error) {
	s, ok := c.byID[spanID]
	if !ok {
		return nil, errors.NewNotFound("span", spanID)
	}
	return s, nil
}

// List returns the spans in insertion order.
func (c *Collection) List() []*Span {
	out := make([]*Span, len(c.spans))
	copy(out, c.spans)
	return out
}

// Len returns the number of spans in the collection.
func (c *Collection) Len() int {
	return len(c.spans)
}

// Overlapping returns the spans that overlap at least one other span, in
// insertion order. The engine never auto-merges; the UI collaborator uses
// this to prompt cleanup.
func (c *Collection) Overlapping() []*Span {
	seen := make(map[string]bool)
	var out []*Span
	for i, a := range c.spans {
		for _, b := range c.spans[i+1:] {
			if a.Overlaps(b) {
				if !seen[a.ID] {
					seen[a.ID] = true
					out = append(out, a)
				}
				if !seen[b.ID] {
					seen[b.ID] = true
					out = append(out, b)
				}
			}
		}
	}
	return out
}

// Task assembles the collection into an AnnotatedTask with the given status.
func (c *Collection) Task(taskID string, status Status) *AnnotatedTask {
	return &AnnotatedTask{
		ID:       taskID,
		Document: c.doc,
		Spans:    c.List(),
		Status:   status,
	}
}

// ValidateTask re-validates an entire task through the same three checks the
// interactive path uses. Imported tasks that fail any check are rejected
// wholesale, never partially applied. Returns the first failure.
func ValidateTask(t *AnnotatedTask, catalog *taxonomy.Catalog, projectID string) error {
	if t.Document == nil {
		return errors.NewFormat("task", 0, "missing document")
	}
	if t.Status != "" && !t.Status.IsValid() {
		return errors.NewFormat("task", 0, "invalid status "+string(t.Status))
	}
	c := NewCollection(t.Document, catalog, projectID)
	for _, s := range t.Spans {
		if err := c.validate(s.Start, s.End, s.LabelCode, ""); err != nil {
			return err
		}
		// Track accepted spans so later duplicates in the same task are caught.
		c.spans = append(c.spans, s)
	}
	return nil
}
