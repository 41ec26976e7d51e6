package codec

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/hanlabel/kdpii/core/errors"
	"github.com/hanlabel/kdpii/core/span"
)

// Token is one caller-supplied tokenizer boundary, as a half-open rune range.
// The engine does not tokenize; CoNLL export requires the caller's boundary
// list (WhitespaceTokens is the fallback matching the legacy export path).
type Token struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// CoNLLResult is the outcome of a CoNLL/BIO encode.
type CoNLLResult struct {
	// Data is the encoded token/tag lines.
	Data []byte

	// Lossy is true when decoding Data cannot reproduce the original span
	// set: nested or partially-overlapping spans collapsed to a single tag
	// per token, or span boundaries that fall inside a token.
	Lossy bool

	// Report lists each span the BIO projection lost.
	Report *LossReport
}

// CoNLLCodec encodes tasks to BIO-tagged token lines. Encode-only in full
// fidelity; Decode reconstructs the non-nested case only.
type CoNLLCodec struct{}

// Format returns "conll".
func (c *CoNLLCodec) Format() string {
	return FormatCoNLL
}

// WhitespaceTokens derives token boundaries by splitting on Unicode
// whitespace, in rune offsets.
func WhitespaceTokens(content string) []Token {
	var tokens []Token
	start := -1
	i := 0
	for _, r := range content {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, Token{Start: start, End: i})
				start = -1
			}
		} else if start < 0 {
			start = i
		}
		i++
	}
	if start >= 0 {
		tokens = append(tokens, Token{Start: start, End: i})
	}
	return tokens
}

// pickSpan chooses the span a token is tagged with. Largest overlap wins;
// on an exact overlap tie, a token fully covered by several spans takes the
// innermost (smallest range) span, otherwise the span with the lowest start.
func pickSpan(tok Token, spans []*span.Span) *span.Span {
	var best *span.Span
	bestOverlap := 0
	for _, s := range spans {
		lo, hi := max(tok.Start, s.Start), min(tok.End, s.End)
		overlap := hi - lo
		if overlap <= 0 {
			continue
		}
		if best == nil || overlap > bestOverlap {
			best, bestOverlap = s, overlap
			continue
		}
		if overlap < bestOverlap {
			continue
		}
		// Exact tie.
		bothCover := s.Start <= tok.Start && s.End >= tok.End &&
			best.Start <= tok.Start && best.End >= tok.End
		if bothCover {
			if s.Length() < best.Length() ||
				(s.Length() == best.Length() && s.Start < best.Start) {
				best = s
			}
		} else if s.Start < best.Start {
			best = s
		}
	}
	return best
}

// EncodeTokens encodes the task against the caller's token boundaries.
// Every token must be a valid range within the document; tokens must be
// ordered and non-overlapping.
func (c *CoNLLCodec) EncodeTokens(t *span.AnnotatedTask, tokens []Token) (*CoNLLResult, error) {
	doc := t.Document
	prev := 0
	for i, tok := range tokens {
		if err := doc.CheckRange(tok.Start, tok.End); err != nil {
			return nil, errors.Wrapf(err, "conll: token %d", i)
		}
		if tok.Start < prev {
			return nil, errors.NewFormat(FormatCoNLL, 0,
				fmt.Sprintf("token %d overlaps or precedes its predecessor", i))
		}
		prev = tok.End
	}

	spans := t.SortedSpans()
	assigned := make([]*span.Span, len(tokens))
	for i, tok := range tokens {
		assigned[i] = pickSpan(tok, spans)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# document_id = %s\n", doc.ID)
	for i, tok := range tokens {
		text := doc.Slice(tok.Start, tok.End)
		s := assigned[i]
		switch {
		case s == nil:
			fmt.Fprintf(&buf, "%s\tO\n", text)
		case i == 0 || assigned[i-1] != s:
			fmt.Fprintf(&buf, "%s\tB-%s\n", text, s.LabelCode)
		default:
			fmt.Fprintf(&buf, "%s\tI-%s\n", text, s.LabelCode)
		}
	}

	result := &CoNLLResult{
		Data: buf.Bytes(),
		Report: &LossReport{
			SourceFormat: "task",
			TargetFormat: FormatCoNLL,
		},
	}

	// A span survives only if the tokens assigned to it reproduce its exact
	// range. Everything else is declared, irrecoverable loss.
	for _, s := range spans {
		first, last := -1, -1
		for i, a := range assigned {
			if a == s {
				if first < 0 {
					first = i
				}
				last = i
			}
		}
		switch {
		case first < 0:
			result.Report.AddLostSpan(s.Start, s.End, s.LabelCode,
				"no token tagged with this span (shadowed by an overlapping span)")
		case tokens[first].Start != s.Start || tokens[last].End != s.End:
			result.Report.AddLostSpan(s.Start, s.End, s.LabelCode,
				"span boundaries do not align with token boundaries")
		default:
			// A decode reads one span per contiguous B-/I- run. A nested span
			// claiming a token in the middle splits the run, so the outer span
			// reads back as two spans.
			for i := first; i <= last; i++ {
				if assigned[i] != s {
					result.Report.AddLostSpan(s.Start, s.End, s.LabelCode,
						"token run split by a nested span")
					break
				}
			}
		}
	}
	result.Lossy = result.Report.HasLoss()
	return result, nil
}

// Encode satisfies the Codec interface using whitespace token boundaries.
// Callers with a real tokenizer should use EncodeTokens.
func (c *CoNLLCodec) Encode(t *span.AnnotatedTask) ([]byte, error) {
	result, err := c.EncodeTokens(t, WhitespaceTokens(t.Document.Content))
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

// Decode reconstructs a task from BIO lines. Only the non-nested case is
// supported: the document content is rebuilt by joining tokens with single
// spaces, and each maximal B-/I- run becomes one span. Nested
// reconstructions are not attempted.
func (c *CoNLLCodec) Decode(data []byte) (*span.AnnotatedTask, error) {
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	docID := ""
	var words []string
	var tags []string
	for i, line := range lines {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			meta := strings.TrimSpace(strings.TrimPrefix(line, "#"))
			if v, ok := strings.CutPrefix(meta, "document_id ="); ok {
				docID = strings.TrimSpace(v)
			}
			continue
		}
		word, tag, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, errors.NewFormat(FormatCoNLL, i+1, "expected token<TAB>tag")
		}
		if tag != "O" && !strings.HasPrefix(tag, "B-") && !strings.HasPrefix(tag, "I-") {
			return nil, errors.NewFormat(FormatCoNLL, i+1, fmt.Sprintf("invalid tag %q", tag))
		}
		words = append(words, word)
		tags = append(tags, tag)
	}
	if len(words) == 0 {
		return nil, errors.NewFormat(FormatCoNLL, 0, "no token lines")
	}
	if docID == "" {
		docID = "conll"
	}

	doc := span.NewDocument(docID, strings.Join(words, " "))
	task := &span.AnnotatedTask{Document: doc, Status: span.StatusPending}

	// Rune offset of each token in the reconstructed content.
	offset := 0
	var open *span.Span
	for i, word := range words {
		wlen := len([]rune(word))
		tag := tags[i]
		switch {
		case tag == "O":
			open = nil
		case strings.HasPrefix(tag, "B-"):
			open = &span.Span{
				DocumentID: docID,
				Start:      offset,
				End:        offset + wlen,
				LabelCode:  strings.TrimPrefix(tag, "B-"),
			}
			task.Spans = append(task.Spans, open)
		default: // I-
			label := strings.TrimPrefix(tag, "I-")
			if open == nil || open.LabelCode != label {
				return nil, errors.NewFormat(FormatCoNLL, 0,
					fmt.Sprintf("I-%s tag without matching B-%s run", label, label))
			}
			open.End = offset + wlen
		}
		offset += wlen + 1
	}
	return task, nil
}
