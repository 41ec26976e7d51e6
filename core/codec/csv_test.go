package codec

import (
	"errors"
	"strings"
	"testing"

	kerrors "github.com/hanlabel/kdpii/core/errors"
	"github.com/hanlabel/kdpii/core/span"
)

func TestCSVEncodeMatchedText(t *testing.T) {
	c := &CSVCodec{}
	data, err := c.Encode(sampleTask())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), data)
	}
	if lines[0] != "document_id,start,end,label_code,note,matched_text" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], ",홍길동") {
		t.Errorf("row 1 matched_text: %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], ",010-1234-5678") {
		t.Errorf("row 2 matched_text: %q", lines[2])
	}
}

func TestCSVDecodeWithDocumentVerifiesText(t *testing.T) {
	c := &CSVCodec{}
	task := sampleTask()
	data, err := c.Encode(task)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := c.DecodeWithDocument(data, task.Document)
	if err != nil {
		t.Fatalf("DecodeWithDocument failed: %v", err)
	}
	if !span.SpanSetEqual(decoded, task) {
		t.Errorf("span set mismatch: %+v", decoded.Spans)
	}

	// Drifted offsets surface as a TextMismatch, not silent corruption.
	drifted := strings.Replace(string(data), "0,3,PS_NAME", "1,4,PS_NAME", 1)
	if _, err := c.DecodeWithDocument([]byte(drifted), task.Document); err == nil {
		t.Fatal("DecodeWithDocument(drifted) succeeded, want TextMismatch")
	} else {
		var tm *kerrors.TextMismatchError
		if !errors.As(err, &tm) {
			t.Fatalf("error type = %T (%v), want *TextMismatchError", err, err)
		}
		if tm.Line != 2 {
			t.Errorf("mismatch line = %d, want 2", tm.Line)
		}
	}
}

func TestCSVDecodeErrors(t *testing.T) {
	c := &CSVCodec{}

	tests := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"wrong header", "a,b,c,d,e,f\n"},
		{"non-numeric start", "document_id,start,end,label_code,note,matched_text\ndoc-1,x,3,PS_NAME,,홍길동\n"},
		{"non-numeric end", "document_id,start,end,label_code,note,matched_text\ndoc-1,0,y,PS_NAME,,홍길동\n"},
		{"no rows", "document_id,start,end,label_code,note,matched_text\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Decode([]byte(tt.input)); !errors.Is(err, kerrors.ErrFormat) {
				t.Errorf("Decode = %v, want ErrFormat", err)
			}
		})
	}
}

func TestCSVDecodeRejectsMixedDocuments(t *testing.T) {
	c := &CSVCodec{}
	input := "document_id,start,end,label_code,note,matched_text\n" +
		"doc-1,0,3,PS_NAME,,홍길동\n" +
		"doc-2,0,3,PS_NAME,,김철수\n"
	if _, err := c.Decode([]byte(input)); !errors.Is(err, kerrors.ErrFormat) {
		t.Errorf("Decode(mixed) = %v, want ErrFormat", err)
	}
}

func TestCSVDecodeAllGroupsByDocument(t *testing.T) {
	c := &CSVCodec{}
	docs := map[string]*span.Document{
		"doc-1": span.NewDocument("doc-1", sampleText),
		"doc-2": span.NewDocument("doc-2", "김철수는 서울에 산다"),
	}
	resolve := func(id string) (*span.Document, error) {
		d, ok := docs[id]
		if !ok {
			return nil, kerrors.NewNotFound("document", id)
		}
		return d, nil
	}

	input := "document_id,start,end,label_code,note,matched_text\n" +
		"doc-1,0,3,PS_NAME,,홍길동\n" +
		"doc-2,0,3,PS_NAME,,김철수\n" +
		"doc-2,5,7,LC_PLACE,,서울\n"

	tasks, err := c.DecodeAll([]byte(input), resolve)
	if err != nil {
		t.Fatalf("DecodeAll failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len(tasks) = %d, want 2", len(tasks))
	}
	if tasks[0].Document.ID != "doc-1" || len(tasks[0].Spans) != 1 {
		t.Errorf("tasks[0] = %s with %d spans", tasks[0].Document.ID, len(tasks[0].Spans))
	}
	if tasks[1].Document.ID != "doc-2" || len(tasks[1].Spans) != 2 {
		t.Errorf("tasks[1] = %s with %d spans", tasks[1].Document.ID, len(tasks[1].Spans))
	}

	// Unresolvable document ids abort the whole decode.
	badInput := input + "doc-3,0,1,PS_NAME,,김\n"
	if _, err := c.DecodeAll([]byte(badInput), resolve); !errors.Is(err, kerrors.ErrNotFound) {
		t.Errorf("DecodeAll(unknown doc) = %v, want ErrNotFound", err)
	}
}

func TestCSVNotePreserved(t *testing.T) {
	c := &CSVCodec{}
	task := sampleTask()
	task.Spans[0].Note = "확인 필요"
	data, err := c.Encode(task)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := c.DecodeWithDocument(data, task.Document)
	if err != nil {
		t.Fatalf("DecodeWithDocument failed: %v", err)
	}
	if !span.SpanSetEqual(decoded, task) {
		t.Error("note lost in round trip")
	}
}
