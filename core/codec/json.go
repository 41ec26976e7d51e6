package codec

import (
	"encoding/json"

	"github.com/hanlabel/kdpii/core/errors"
	"github.com/hanlabel/kdpii/core/span"
)

// JSONCodec is the direct structural mapping of AnnotatedTask. Lossless in
// both directions; unknown fields in input are ignored, not errors.
type JSONCodec struct{}

// jsonTask is the wire shape of an annotated task.
type jsonTask struct {
	Document jsonDocument `json:"document"`
	Spans    []jsonSpan   `json:"spans"`
	Status   span.Status  `json:"status"`
}

type jsonDocument struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type jsonSpan struct {
	ID    string `json:"id,omitempty"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
	Note  string `json:"note,omitempty"`
}

// Format returns "json".
func (c *JSONCodec) Format() string {
	return FormatJSON
}

// Encode serializes the task, spans in export order.
func (c *JSONCodec) Encode(t *span.AnnotatedTask) ([]byte, error) {
	out := jsonTask{
		Document: jsonDocument{ID: t.Document.ID, Content: t.Document.Content},
		Spans:    make([]jsonSpan, 0, len(t.Spans)),
		Status:   t.Status,
	}
	if out.Status == "" {
		out.Status = span.StatusPending
	}
	for _, s := range t.SortedSpans() {
		out.Spans = append(out.Spans, jsonSpan{
			ID:    s.ID,
			Start: s.Start,
			End:   s.End,
			Label: s.LabelCode,
			Note:  s.Note,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

// Decode parses the wire shape back into a task.
func (c *JSONCodec) Decode(data []byte) (*span.AnnotatedTask, error) {
	var in jsonTask
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, &errors.FormatError{Format: FormatJSON, Message: "invalid JSON", Err: err}
	}
	if in.Document.ID == "" {
		return nil, errors.NewFormat(FormatJSON, 0, "missing document.id")
	}
	status, err := statusOrDefault(in.Status)
	if err != nil {
		return nil, errors.NewFormat(FormatJSON, 0, err.Error())
	}

	doc := span.NewDocument(in.Document.ID, in.Document.Content)
	task := &span.AnnotatedTask{
		Document: doc,
		Spans:    make([]*span.Span, 0, len(in.Spans)),
		Status:   status,
	}
	for _, js := range in.Spans {
		task.Spans = append(task.Spans, &span.Span{
			ID:         js.ID,
			DocumentID: doc.ID,
			Start:      js.Start,
			End:        js.End,
			LabelCode:  js.Label,
			Note:       js.Note,
		})
	}
	return task, nil
}
