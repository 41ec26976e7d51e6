package codec

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/hanlabel/kdpii/core/errors"
	"github.com/hanlabel/kdpii/core/span"
)

// csvHeader is the fixed column layout: one row per span. matched_text is
// derived and redundant; decode recomputes it from the document content and
// rejects the row on drift.
var csvHeader = []string{"document_id", "start", "end", "label_code", "note", "matched_text"}

// CSVCodec encodes one row per span. Lossless for a single document; a CSV
// spanning multiple documents decodes via DecodeAll, grouped by document_id.
type CSVCodec struct{}

// Format returns "csv".
func (c *CSVCodec) Format() string {
	return FormatCSV
}

// Encode writes the header plus one row per span in export order.
func (c *CSVCodec) Encode(t *span.AnnotatedTask) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, errors.Wrap(err, "csv: write header")
	}
	for _, s := range t.SortedSpans() {
		row := []string{
			t.Document.ID,
			strconv.Itoa(s.Start),
			strconv.Itoa(s.End),
			s.LabelCode,
			s.Note,
			t.Document.Slice(s.Start, s.End),
		}
		if err := w.Write(row); err != nil {
			return nil, errors.Wrap(err, "csv: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "csv: flush")
	}
	return buf.Bytes(), nil
}

// csvRow is one parsed span row.
type csvRow struct {
	line        int
	documentID  string
	start, end  int
	labelCode   string
	note        string
	matchedText string
}

// parseRows reads and validates the record stream.
func (c *CSVCodec) parseRows(data []byte) ([]csvRow, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(csvHeader)

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.NewFormat(FormatCSV, 0, "empty input")
	}
	if err != nil {
		return nil, &errors.FormatError{Format: FormatCSV, Line: 1, Message: "invalid header", Err: err}
	}
	for i, col := range csvHeader {
		if header[i] != col {
			return nil, errors.NewFormat(FormatCSV, 1,
				fmt.Sprintf("header column %d is %q, want %q", i, header[i], col))
		}
	}

	var rows []csvRow
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &errors.FormatError{Format: FormatCSV, Line: line, Message: "malformed row", Err: err}
		}
		start, err := strconv.Atoi(record[1])
		if err != nil {
			return nil, errors.NewFormat(FormatCSV, line, fmt.Sprintf("invalid start %q", record[1]))
		}
		end, err := strconv.Atoi(record[2])
		if err != nil {
			return nil, errors.NewFormat(FormatCSV, line, fmt.Sprintf("invalid end %q", record[2]))
		}
		rows = append(rows, csvRow{
			line:        line,
			documentID:  record[0],
			start:       start,
			end:         end,
			labelCode:   record[3],
			note:        record[4],
			matchedText: record[5],
		})
	}
	return rows, nil
}

// Decode parses a single-document CSV. The format does not carry document
// content, so the returned task's document has only its ID; callers that
// know the content should use DecodeWithDocument, which also re-verifies
// matched_text against it.
func (c *CSVCodec) Decode(data []byte) (*span.AnnotatedTask, error) {
	rows, err := c.parseRows(data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.NewFormat(FormatCSV, 0, "no span rows")
	}
	docID := rows[0].documentID
	for _, row := range rows {
		if row.documentID != docID {
			return nil, errors.NewFormat(FormatCSV, row.line,
				fmt.Sprintf("multiple documents in input (%q and %q); use DecodeAll", docID, row.documentID))
		}
	}
	task := &span.AnnotatedTask{
		Document: &span.Document{ID: docID},
		Status:   span.StatusPending,
	}
	for _, row := range rows {
		task.Spans = append(task.Spans, &span.Span{
			DocumentID: docID,
			Start:      row.start,
			End:        row.end,
			LabelCode:  row.labelCode,
			Note:       row.note,
		})
	}
	return task, nil
}

// DecodeWithDocument parses a single-document CSV against known document
// content, recomputing matched_text for every row and failing with a
// TextMismatch on any drift between offsets and text.
func (c *CSVCodec) DecodeWithDocument(data []byte, doc *span.Document) (*span.AnnotatedTask, error) {
	rows, err := c.parseRows(data)
	if err != nil {
		return nil, err
	}
	task := &span.AnnotatedTask{Document: doc, Status: span.StatusPending}
	for _, row := range rows {
		if row.documentID != doc.ID {
			return nil, errors.NewFormat(FormatCSV, row.line,
				fmt.Sprintf("row document %q does not match %q", row.documentID, doc.ID))
		}
		if err := doc.CheckRange(row.start, row.end); err != nil {
			return nil, &errors.FormatError{Format: FormatCSV, Line: row.line, Message: "invalid span range", Err: err}
		}
		if got := doc.Slice(row.start, row.end); got != row.matchedText {
			return nil, errors.NewTextMismatch(row.line, got, row.matchedText)
		}
		task.Spans = append(task.Spans, &span.Span{
			DocumentID: doc.ID,
			Start:      row.start,
			End:        row.end,
			LabelCode:  row.labelCode,
			Note:       row.note,
		})
	}
	return task, nil
}

// DecodeAll parses a CSV spanning multiple documents, grouping rows by
// document_id. resolve maps a document id to its content; matched_text is
// verified per row. Tasks are returned in first-appearance order.
func (c *CSVCodec) DecodeAll(data []byte, resolve func(documentID string) (*span.Document, error)) ([]*span.AnnotatedTask, error) {
	rows, err := c.parseRows(data)
	if err != nil {
		return nil, err
	}
	tasks := make(map[string]*span.AnnotatedTask)
	var order []string
	for _, row := range rows {
		task, ok := tasks[row.documentID]
		if !ok {
			doc, err := resolve(row.documentID)
			if err != nil {
				return nil, errors.Wrapf(err, "csv: line %d: resolve document %q", row.line, row.documentID)
			}
			task = &span.AnnotatedTask{Document: doc, Status: span.StatusPending}
			tasks[row.documentID] = task
			order = append(order, row.documentID)
		}
		doc := task.Document
		if err := doc.CheckRange(row.start, row.end); err != nil {
			return nil, &errors.FormatError{Format: FormatCSV, Line: row.line, Message: "invalid span range", Err: err}
		}
		if got := doc.Slice(row.start, row.end); got != row.matchedText {
			return nil, errors.NewTextMismatch(row.line, got, row.matchedText)
		}
		task.Spans = append(task.Spans, &span.Span{
			DocumentID: doc.ID,
			Start:      row.start,
			End:        row.end,
			LabelCode:  row.labelCode,
			Note:       row.note,
		})
	}
	out := make([]*span.AnnotatedTask, 0, len(order))
	for _, id := range order {
		out = append(out, tasks[id])
	}
	return out, nil
}
