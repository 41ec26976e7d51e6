// Package span implements the annotation span model and its structural
// validation: labeled half-open rune ranges over immutable documents,
// insert/update/delete with deterministic validation order, and the
// AnnotatedTask unit consumed by the format codecs.
package span

import (
	"encoding/json"
	"sort"
)

// Span is one annotation: a labeled half-open rune range within a document.
type Span struct {
	// ID is the unique span identifier (a UUID).
	ID string `json:"id,omitempty"`

	// DocumentID is the owning document.
	DocumentID string `json:"document_id,omitempty"`

	// Start is the inclusive 0-based rune offset.
	Start int `json:"start"`

	// End is the exclusive rune offset; always > Start.
	End int `json:"end"`

	// LabelCode is the taxonomy code assigned to the range.
	LabelCode string `json:"label"`

	// Note is optional free-text annotator commentary.
	Note string `json:"note,omitempty"`

	// Extra holds foreign fields carried through the Label Studio codec.
	// It is opaque to the engine and excluded from structural equality.
	Extra map[string]json.RawMessage `json:"-"`
}

// Length returns the span length in runes.
func (s *Span) Length() int {
	return s.End - s.Start
}

// Overlaps reports whether two spans share at least one rune.
func (s *Span) Overlaps(other *Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// Contains reports whether s completely contains other.
func (s *Span) Contains(other *Span) bool {
	return s.Start <= other.Start && s.End >= other.End
}

// sameTriple reports whether two spans are duplicates under the
// (start, end, label) identity.
func (s *Span) sameTriple(other *Span) bool {
	return s.Start == other.Start && s.End == other.End && s.LabelCode == other.LabelCode
}

// Status is the task-level completion state.
type Status string

// Status constants.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// validStatuses is the set of valid task statuses.
var validStatuses = map[Status]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
}

// IsValid returns true if the status is valid.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// AnnotatedTask is the export/import unit: one document, its span set, and
// the task status.
type AnnotatedTask struct {
	// ID is the stable task identifier (a UUID).
	ID string `json:"id,omitempty"`

	// Document is the annotated text.
	Document *Document `json:"document"`

	// Spans is the span set, in insertion order.
	Spans []*Span `json:"spans"`

	// Status is the task completion state.
	Status Status `json:"status"`

	// Extra holds foreign top-level fields carried through the Label Studio
	// codec. Opaque, excluded from structural equality.
	Extra map[string]json.RawMessage `json:"-"`
}

// SortedSpans returns the spans in export order: start ascending, then end
// ascending, then label code ascending. Insertion order is preserved in
// Spans itself; only exports re-sort.
func (t *AnnotatedTask) SortedSpans() []*Span {
	out := make([]*Span, len(t.Spans))
	copy(out, t.Spans)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		if out[i].End != out[j].End {
			return out[i].End < out[j].End
		}
		return out[i].LabelCode < out[j].LabelCode
	})
	return out
}

// SpanSetEqual reports whether two tasks carry the same span set, ignoring
// insertion order, span IDs, and passthrough metadata.
func SpanSetEqual(a, b *AnnotatedTask) bool {
	if len(a.Spans) != len(b.Spans) {
		return false
	}
	as, bs := a.SortedSpans(), b.SortedSpans()
	for i := range as {
		if !as[i].sameTriple(bs[i]) || as[i].Note != bs[i].Note {
			return false
		}
	}
	return true
}
