// Package codec implements the four interchange codecs for annotated tasks:
// JSON, CSV, CoNLL/BIO, and Label Studio.
//
// JSON, CSV, and Label Studio are lossless: decode(encode(task)) reproduces
// the task's document content and span set up to insertion order. CoNLL is
// lossy by design (BIO cannot represent nested labels); its encoder reports
// the loss explicitly instead of dropping spans silently.
package codec

import (
	"fmt"
	"sort"

	"github.com/hanlabel/kdpii/core/errors"
	"github.com/hanlabel/kdpii/core/span"
	"github.com/hanlabel/kdpii/core/taxonomy"
)

// Format name constants.
const (
	FormatJSON        = "json"
	FormatCSV         = "csv"
	FormatCoNLL       = "conll"
	FormatLabelStudio = "labelstudio"
)

// Codec translates between AnnotatedTask and one external byte format.
type Codec interface {
	// Format returns the codec's format name.
	Format() string

	// Encode serializes a task.
	Encode(t *span.AnnotatedTask) ([]byte, error)

	// Decode parses external bytes into a task. Structural problems in the
	// input surface as FormatError.
	Decode(data []byte) (*span.AnnotatedTask, error)
}

// registry maps format names to codecs. Populated at init; read-only after.
var registry = map[string]Codec{}

// register adds a codec to the registry.
func register(c Codec) {
	registry[c.Format()] = c
}

func init() {
	register(&JSONCodec{})
	register(&CSVCodec{})
	register(&CoNLLCodec{})
	register(&LabelStudioCodec{})
}

// Lookup returns the codec for a format name.
func Lookup(format string) (Codec, error) {
	c, ok := registry[format]
	if !ok {
		return nil, errors.NewFormat(format, 0, "unsupported format")
	}
	return c, nil
}

// Formats returns the registered format names, sorted.
func Formats() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Encode serializes a task in the named format. CoNLL callers that need
// real tokenizer boundaries should use CoNLLCodec.EncodeTokens directly;
// this dispatcher falls back to whitespace tokens for CoNLL.
func Encode(t *span.AnnotatedTask, format string) ([]byte, error) {
	c, err := Lookup(format)
	if err != nil {
		return nil, err
	}
	return c.Encode(t)
}

// Decode parses bytes in the named format.
func Decode(data []byte, format string) (*span.AnnotatedTask, error) {
	c, err := Lookup(format)
	if err != nil {
		return nil, err
	}
	return c.Decode(data)
}

// DocumentResolver maps a document ID to its stored document, for formats
// that do not carry the document text themselves (CSV).
type DocumentResolver func(documentID string) (*span.Document, error)

// DecodeValidated parses bytes and re-validates the result through the span
// engine before accepting it. An import with an invalid range, unknown
// label, or duplicate span is rejected wholesale.
//
// CSV input carries no document content, so without a resolver its offsets
// can only be checked structurally; use DecodeValidatedWith to verify them
// against the stored document.
func DecodeValidated(data []byte, format string, catalog *taxonomy.Catalog, projectID string) (*span.AnnotatedTask, error) {
	return DecodeValidatedWith(data, format, catalog, projectID, nil)
}

// DecodeValidatedWith is DecodeValidated with a document resolver. When the
// input is CSV and a resolver is given, the document is resolved by ID and
// the input re-decoded against it, restoring full range and matched_text
// verification. Without a resolver, CSV offsets are checked structurally
// (0 <= start < end) and the label and duplicate checks run in full.
func DecodeValidatedWith(data []byte, format string, catalog *taxonomy.Catalog, projectID string, resolve DocumentResolver) (*span.AnnotatedTask, error) {
	t, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	if csvc, ok := registry[format].(*CSVCodec); ok && t.Document != nil && t.Document.Content == "" {
		if resolve == nil {
			if err := validateStructural(t, catalog, projectID); err != nil {
				return nil, errors.Wrapf(err, "import rejected (%s)", format)
			}
			return t, nil
		}
		doc, err := resolve(t.Document.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve document %q", t.Document.ID)
		}
		if t, err = csvc.DecodeWithDocument(data, doc); err != nil {
			return nil, err
		}
	}
	if err := span.ValidateTask(t, catalog, projectID); err != nil {
		return nil, errors.Wrapf(err, "import rejected (%s)", format)
	}
	return t, nil
}

// validateStructural applies the import checks that do not need the document
// content: well-formed offsets, label visibility, and the duplicate triple.
func validateStructural(t *span.AnnotatedTask, catalog *taxonomy.Catalog, projectID string) error {
	seen := make([]*span.Span, 0, len(t.Spans))
	for _, s := range t.Spans {
		if s.Start < 0 || s.End <= s.Start {
			return errors.NewRange(t.Document.ID, s.Start, s.End, 0)
		}
		if _, err := catalog.Resolve(s.LabelCode, projectID); err != nil {
			return err
		}
		for _, prev := range seen {
			if prev.Start == s.Start && prev.End == s.End && prev.LabelCode == s.LabelCode {
				return errors.NewDuplicate(s.Start, s.End, s.LabelCode)
			}
		}
		seen = append(seen, s)
	}
	return nil
}

// statusOrDefault normalizes an absent status to pending.
func statusOrDefault(s span.Status) (span.Status, error) {
	if s == "" {
		return span.StatusPending, nil
	}
	if !s.IsValid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return s, nil
}
