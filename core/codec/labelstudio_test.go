package codec

import (
	"encoding/json"
	"errors"
	"testing"

	kerrors "github.com/hanlabel/kdpii/core/errors"
	"github.com/hanlabel/kdpii/core/span"
)

func TestLabelStudioEncodeShape(t *testing.T) {
	c := &LabelStudioCodec{}
	data, err := c.Encode(sampleTask())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var out struct {
		Data struct {
			Text       string `json:"text"`
			DocumentID string `json:"document_id"`
		} `json:"data"`
		Annotations []struct {
			Result []struct {
				FromName string `json:"from_name"`
				ToName   string `json:"to_name"`
				Type     string `json:"type"`
				Value    struct {
					Start  int      `json:"start"`
					End    int      `json:"end"`
					Text   string   `json:"text"`
					Labels []string `json:"labels"`
				} `json:"value"`
			} `json:"result"`
		} `json:"annotations"`
		Predictions []interface{} `json:"predictions"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if out.Data.Text != sampleText || out.Data.DocumentID != "doc-1" {
		t.Errorf("data = %+v", out.Data)
	}
	if len(out.Annotations) != 1 || len(out.Annotations[0].Result) != 2 {
		t.Fatalf("annotations = %+v", out.Annotations)
	}

	first := out.Annotations[0].Result[0]
	if first.FromName != "label" || first.ToName != "text" || first.Type != "labels" {
		t.Errorf("result item header = %+v", first)
	}
	if first.Value.Start != 0 || first.Value.End != 3 || first.Value.Text != "홍길동" {
		t.Errorf("value = %+v", first.Value)
	}
	if len(first.Value.Labels) != 1 || first.Value.Labels[0] != "PS_NAME" {
		t.Errorf("labels = %v", first.Value.Labels)
	}
	if out.Predictions == nil {
		t.Error("predictions missing")
	}
}

func TestLabelStudioPassthroughPreserved(t *testing.T) {
	// Foreign fields at task, result-item, and value level survive a
	// decode -> encode cycle verbatim.
	input := `{
		"id": 42,
		"meta": {"source": "relabel-batch-7"},
		"data": {"text": "홍길동은 서울 거주", "document_id": "doc-9", "audio": "s3://bucket/a.wav"},
		"annotations": [{
			"result": [{
				"id": "ls-abc",
				"origin": "manual",
				"from_name": "label",
				"to_name": "text",
				"type": "labels",
				"value": {"start": 0, "end": 3, "text": "홍길동", "labels": ["PS_NAME"], "score": 0.93}
			}]
		}],
		"predictions": []
	}`

	c := &LabelStudioCodec{}
	task, err := c.Decode([]byte(input))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if task.ID != "42" {
		t.Errorf("task ID = %q, want 42", task.ID)
	}
	if task.Document.ID != "doc-9" {
		t.Errorf("document ID = %q, want doc-9", task.Document.ID)
	}
	if len(task.Spans) != 1 || task.Spans[0].LabelCode != "PS_NAME" {
		t.Fatalf("spans = %+v", task.Spans)
	}

	reencoded, err := c.Encode(task)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(reencoded, &out); err != nil {
		t.Fatalf("re-encoded output invalid: %v", err)
	}
	var meta struct {
		Source string `json:"source"`
	}
	if err := json.Unmarshal(out["meta"], &meta); err != nil || meta.Source != "relabel-batch-7" {
		t.Errorf("task-level passthrough lost: %s", out["meta"])
	}

	var dataObj map[string]json.RawMessage
	if err := json.Unmarshal(out["data"], &dataObj); err != nil {
		t.Fatal(err)
	}
	if string(dataObj["audio"]) != `"s3://bucket/a.wav"` {
		t.Errorf("data-level passthrough lost: %s", dataObj["audio"])
	}

	var anns []struct {
		Result []map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(out["annotations"], &anns); err != nil {
		t.Fatal(err)
	}
	item := anns[0].Result[0]
	if string(item["id"]) != `"ls-abc"` {
		t.Errorf("item-level passthrough lost: %s", item["id"])
	}
	if string(item["origin"]) != `"manual"` {
		t.Errorf("item-level passthrough lost: %s", item["origin"])
	}
	var value map[string]json.RawMessage
	if err := json.Unmarshal(item["value"], &value); err != nil {
		t.Fatal(err)
	}
	if string(value["score"]) != "0.93" {
		t.Errorf("value-level passthrough lost: %s", value["score"])
	}
}

func TestLabelStudioFlattensMultipleAnnotations(t *testing.T) {
	input := `{
		"id": "t1",
		"data": {"text": "홍길동은 서울 거주"},
		"annotations": [
			{"result": [{"value": {"start": 0, "end": 3, "labels": ["PS_NAME"]}}]},
			{"result": [{"value": {"start": 5, "end": 7, "labels": ["LC_PLACE"]}}]}
		]
	}`
	c := &LabelStudioCodec{}
	task, err := c.Decode([]byte(input))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(task.Spans) != 2 {
		t.Fatalf("len(spans) = %d, want 2", len(task.Spans))
	}
}

func TestLabelStudioAnnotationLevelPassthrough(t *testing.T) {
	// Keys beside result on each annotation (completed_by, lead_time, ...)
	// survive a decode -> encode cycle; result items are re-emitted under
	// the first annotation, the rest keep their keys with empty results.
	input := `{
		"id": "t1",
		"data": {"text": "홍길동은 서울 거주"},
		"annotations": [
			{"completed_by": 7, "lead_time": 12.5,
				"result": [{"value": {"start": 0, "end": 3, "labels": ["PS_NAME"]}}]},
			{"completed_by": 9,
				"result": [{"value": {"start": 5, "end": 7, "labels": ["LC_PLACE"]}}]}
		]
	}`
	c := &LabelStudioCodec{}
	task, err := c.Decode([]byte(input))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(task.Spans) != 2 {
		t.Fatalf("len(spans) = %d, want 2", len(task.Spans))
	}

	reencoded, err := c.Encode(task)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var out struct {
		Annotations []struct {
			CompletedBy int               `json:"completed_by"`
			LeadTime    float64           `json:"lead_time"`
			Result      []json.RawMessage `json:"result"`
		} `json:"annotations"`
	}
	if err := json.Unmarshal(reencoded, &out); err != nil {
		t.Fatalf("re-encoded output invalid: %v", err)
	}
	if len(out.Annotations) != 2 {
		t.Fatalf("len(annotations) = %d, want 2", len(out.Annotations))
	}
	if out.Annotations[0].CompletedBy != 7 || out.Annotations[0].LeadTime != 12.5 {
		t.Errorf("annotation[0] passthrough lost: %+v", out.Annotations[0])
	}
	if out.Annotations[1].CompletedBy != 9 {
		t.Errorf("annotation[1] passthrough lost: %+v", out.Annotations[1])
	}
	if len(out.Annotations[0].Result) != 2 || len(out.Annotations[1].Result) != 0 {
		t.Errorf("result distribution = %d, %d, want 2, 0",
			len(out.Annotations[0].Result), len(out.Annotations[1].Result))
	}
}

func TestLabelStudioMultiLabelValue(t *testing.T) {
	// A result item carrying several labels decodes to one span per label
	// over the same range, so no label is dropped.
	input := `{
		"id": "t1",
		"data": {"text": "홍길동은 서울 거주"},
		"annotations": [{
			"result": [{
				"note": "중의적",
				"value": {"start": 0, "end": 3, "labels": ["PS_NAME", "PS_NICKNAME"]}
			}]
		}]
	}`
	c := &LabelStudioCodec{}
	task, err := c.Decode([]byte(input))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(task.Spans) != 2 {
		t.Fatalf("len(spans) = %d, want 2", len(task.Spans))
	}
	for i, want := range []string{"PS_NAME", "PS_NICKNAME"} {
		s := task.Spans[i]
		if s.LabelCode != want || s.Start != 0 || s.End != 3 {
			t.Errorf("spans[%d] = %+v, want [0, 3) %s", i, s, want)
		}
	}
	if task.Spans[0].Note != "중의적" {
		t.Errorf("note = %q, want on the first split span", task.Spans[0].Note)
	}

	// Re-encode emits one single-label item per span.
	reencoded, err := c.Encode(task)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := c.Decode(reencoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !span.SpanSetEqual(decoded, task) {
		t.Errorf("span set changed across re-encode: %+v", decoded.Spans)
	}
}

func TestLabelStudioDecodeErrors(t *testing.T) {
	c := &LabelStudioCodec{}

	tests := []struct {
		name  string
		input string
	}{
		{"not json", "["},
		{"missing data", `{"id": "t1"}`},
		{"missing data.text", `{"data": {"document_id": "d"}}`},
		{"result item without value", `{"data": {"text": "가"}, "annotations": [{"result": [{"type": "labels"}]}]}`},
		{"empty labels", `{"data": {"text": "가나다"}, "annotations": [{"result": [{"value": {"start": 0, "end": 1, "labels": []}}]}]}`},
		{"invalid status", `{"data": {"text": "가"}, "status": "finished"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Decode([]byte(tt.input)); !errors.Is(err, kerrors.ErrFormat) {
				t.Errorf("Decode = %v, want ErrFormat", err)
			}
		})
	}
}

func TestLabelStudioNoteRoundTrip(t *testing.T) {
	c := &LabelStudioCodec{}
	task := sampleTask()
	task.Spans[0].Note = "재확인"

	data, err := c.Encode(task)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !span.SpanSetEqual(decoded, task) {
		t.Error("note lost in round trip")
	}
}
