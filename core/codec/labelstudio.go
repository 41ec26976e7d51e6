package codec

import (
	"encoding/json"
	"fmt"

	"github.com/hanlabel/kdpii/core/errors"
	"github.com/hanlabel/kdpii/core/span"
)

// LabelStudioCodec maps tasks to the Label Studio task schema: text under
// data.text, one result item per span with value.{start,end,text,labels}.
//
// Fields outside the engine's model are preserved verbatim: unknown
// top-level keys land in AnnotatedTask.Extra, annotation-level keys besides
// result (completed_by, lead_time, ...) are kept per annotation, and unknown
// result-item and value keys land in Span.Extra; all of them are written
// back on encode. A read-modify-write cycle through this engine therefore
// does not destroy foreign annotations it does not understand.
//
// Two shape normalizations apply: a result item carrying several labels
// decodes to one span per label (the engine's spans are single-label), and
// result items collected from several annotations are re-emitted under the
// first annotation; the remaining annotations keep their foreign keys with
// empty result lists.
type LabelStudioCodec struct{}

// Known Label Studio keys handled structurally; everything else is passthrough.
var (
	lsTaskKeys  = map[string]bool{"id": true, "data": true, "annotations": true, "predictions": true, "status": true}
	lsItemKeys  = map[string]bool{"from_name": true, "to_name": true, "type": true, "value": true, "note": true}
	lsValueKeys = map[string]bool{"start": true, "end": true, "text": true, "labels": true}
)

// Format returns "labelstudio".
func (c *LabelStudioCodec) Format() string {
	return FormatLabelStudio
}

// Encode serializes the task, spans in export order, merging any passthrough
// metadata captured by a previous Decode back into place.
func (c *LabelStudioCodec) Encode(t *span.AnnotatedTask) ([]byte, error) {
	doc := t.Document

	results := make([]map[string]json.RawMessage, 0, len(t.Spans))
	for _, s := range t.SortedSpans() {
		value := map[string]json.RawMessage{}
		if raw, ok := s.Extra["value"]; ok {
			if err := json.Unmarshal(raw, &value); err != nil {
				return nil, errors.NewFormat(FormatLabelStudio, 0,
					fmt.Sprintf("span %s: corrupt passthrough value", s.ID))
			}
		}
		value["start"] = mustJSON(s.Start)
		value["end"] = mustJSON(s.End)
		value["text"] = mustJSON(doc.Slice(s.Start, s.End))
		value["labels"] = mustJSON([]string{s.LabelCode})

		item := map[string]json.RawMessage{}
		for k, raw := range s.Extra {
			if k != "value" {
				item[k] = raw
			}
		}
		item["from_name"] = mustJSON("label")
		item["to_name"] = mustJSON("text")
		item["type"] = mustJSON("labels")
		item["value"] = mustJSON(value)
		if s.Note != "" {
			item["note"] = mustJSON(s.Note)
		}
		results = append(results, item)
	}

	out := map[string]json.RawMessage{}
	for k, raw := range t.Extra {
		if k != "data" && k != "annotations" {
			out[k] = raw
		}
	}
	data := map[string]json.RawMessage{}
	if raw, ok := t.Extra["data"]; ok {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, errors.NewFormat(FormatLabelStudio, 0, "corrupt passthrough data object")
		}
	}
	data["text"] = mustJSON(doc.Content)
	data["document_id"] = mustJSON(doc.ID)

	// Annotation-level foreign keys captured by Decode come back in order;
	// all result items land in the first annotation.
	var annMeta []map[string]json.RawMessage
	if raw, ok := t.Extra["annotations"]; ok {
		if err := json.Unmarshal(raw, &annMeta); err != nil {
			return nil, errors.NewFormat(FormatLabelStudio, 0, "corrupt passthrough annotations metadata")
		}
	}
	if len(annMeta) == 0 {
		annMeta = []map[string]json.RawMessage{{}}
	}
	anns := make([]map[string]json.RawMessage, len(annMeta))
	for i, meta := range annMeta {
		ann := map[string]json.RawMessage{}
		for k, raw := range meta {
			ann[k] = raw
		}
		if i == 0 {
			ann["result"] = mustJSON(results)
		} else {
			ann["result"] = mustJSON([]interface{}{})
		}
		anns[i] = ann
	}

	status := t.Status
	if status == "" {
		status = span.StatusPending
	}
	out["id"] = mustJSON(t.ID)
	out["data"] = mustJSON(data)
	out["annotations"] = mustJSON(anns)
	if _, ok := out["predictions"]; !ok {
		out["predictions"] = mustJSON([]interface{}{})
	}
	out["status"] = mustJSON(status)

	return json.MarshalIndent(out, "", "  ")
}

// Decode parses a Label Studio task object, flattening every annotation's
// result items into the span set and capturing foreign fields as
// passthrough metadata.
func (c *LabelStudioCodec) Decode(data []byte) (*span.AnnotatedTask, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &errors.FormatError{Format: FormatLabelStudio, Message: "invalid JSON", Err: err}
	}

	rawData, ok := top["data"]
	if !ok {
		return nil, errors.NewFormat(FormatLabelStudio, 0, "missing data object")
	}
	var dataObj map[string]json.RawMessage
	if err := json.Unmarshal(rawData, &dataObj); err != nil {
		return nil, errors.NewFormat(FormatLabelStudio, 0, "data is not an object")
	}
	var text string
	if raw, ok := dataObj["text"]; !ok {
		return nil, errors.NewFormat(FormatLabelStudio, 0, "missing data.text")
	} else if err := json.Unmarshal(raw, &text); err != nil {
		return nil, errors.NewFormat(FormatLabelStudio, 0, "data.text is not a string")
	}

	taskID := decodeFlexibleID(top["id"])
	docID := taskID
	if raw, ok := dataObj["document_id"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			docID = s
		}
	}
	if docID == "" {
		docID = "labelstudio"
	}

	status := span.StatusPending
	if raw, ok := top["status"]; ok {
		var s span.Status
		if err := json.Unmarshal(raw, &s); err != nil || !s.IsValid() {
			return nil, errors.NewFormat(FormatLabelStudio, 0, fmt.Sprintf("invalid status %s", raw))
		}
		status = s
	}

	task := &span.AnnotatedTask{
		ID:       taskID,
		Document: span.NewDocument(docID, text),
		Status:   status,
		Extra:    map[string]json.RawMessage{},
	}

	// Preserve foreign top-level keys and foreign data keys. Predictions are
	// opaque to the engine and carried through whole.
	for k, raw := range top {
		if !lsTaskKeys[k] {
			task.Extra[k] = raw
		}
	}
	if raw, ok := top["predictions"]; ok {
		task.Extra["predictions"] = raw
	}
	dataExtra := map[string]json.RawMessage{}
	for k, raw := range dataObj {
		if k != "text" && k != "document_id" {
			dataExtra[k] = raw
		}
	}
	if len(dataExtra) > 0 {
		task.Extra["data"] = mustJSON(dataExtra)
	}

	if rawAnns, ok := top["annotations"]; ok {
		var anns []map[string]json.RawMessage
		if err := json.Unmarshal(rawAnns, &anns); err != nil {
			return nil, errors.NewFormat(FormatLabelStudio, 0, "annotations is not a list")
		}
		annMeta := make([]map[string]json.RawMessage, len(anns))
		keepMeta := false
		for ai, ann := range anns {
			// Annotation-level keys besides result are passthrough.
			annMeta[ai] = map[string]json.RawMessage{}
			for k, raw := range ann {
				if k != "result" {
					annMeta[ai][k] = raw
					keepMeta = true
				}
			}

			rawResult, ok := ann["result"]
			if !ok {
				continue
			}
			var items []map[string]json.RawMessage
			if err := json.Unmarshal(rawResult, &items); err != nil {
				return nil, errors.NewFormat(FormatLabelStudio, 0,
					fmt.Sprintf("annotations[%d].result is not a list", ai))
			}
			for ii, item := range items {
				spans, err := decodeResultItem(item, docID, ai, ii)
				if err != nil {
					return nil, err
				}
				task.Spans = append(task.Spans, spans...)
			}
		}
		if keepMeta {
			task.Extra["annotations"] = mustJSON(annMeta)
		}
	}
	if len(task.Extra) == 0 {
		task.Extra = nil
	}
	return task, nil
}

// decodeResultItem parses one result entry into spans, keeping foreign keys.
// An item carrying several labels produces one span per label over the same
// range; the first span carries the item's note and passthrough metadata.
func decodeResultItem(item map[string]json.RawMessage, docID string, ai, ii int) ([]*span.Span, error) {
	where := fmt.Sprintf("annotations[%d].result[%d]", ai, ii)

	rawValue, ok := item["value"]
	if !ok {
		return nil, errors.NewFormat(FormatLabelStudio, 0, where+": missing value")
	}
	var valueObj map[string]json.RawMessage
	if err := json.Unmarshal(rawValue, &valueObj); err != nil {
		return nil, errors.NewFormat(FormatLabelStudio, 0, where+": value is not an object")
	}

	var value struct {
		Start  int      `json:"start"`
		End    int      `json:"end"`
		Labels []string `json:"labels"`
	}
	if err := json.Unmarshal(rawValue, &value); err != nil {
		return nil, errors.NewFormat(FormatLabelStudio, 0, where+": malformed value")
	}
	if len(value.Labels) == 0 {
		return nil, errors.NewFormat(FormatLabelStudio, 0, where+": value.labels is empty")
	}

	var note string
	if raw, ok := item["note"]; ok {
		if err := json.Unmarshal(raw, &note); err != nil {
			return nil, errors.NewFormat(FormatLabelStudio, 0, where+": note is not a string")
		}
	}

	extra := map[string]json.RawMessage{}
	for k, raw := range item {
		if !lsItemKeys[k] {
			extra[k] = raw
		}
	}
	valueExtra := map[string]json.RawMessage{}
	for k, raw := range valueObj {
		if !lsValueKeys[k] {
			valueExtra[k] = raw
		}
	}
	if len(valueExtra) > 0 {
		extra["value"] = mustJSON(valueExtra)
	}

	spans := make([]*span.Span, 0, len(value.Labels))
	for li, label := range value.Labels {
		s := &span.Span{
			DocumentID: docID,
			Start:      value.Start,
			End:        value.End,
			LabelCode:  label,
		}
		if li == 0 {
			s.Note = note
			if len(extra) > 0 {
				s.Extra = extra
			}
		}
		spans = append(spans, s)
	}
	return spans, nil
}

// decodeFlexibleID accepts Label Studio ids as either strings or numbers.
func decodeFlexibleID(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// mustJSON marshals a value that cannot fail (plain data, no cycles).
func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("codec: marshal of plain value failed: " + err.Error())
	}
	return data
}
