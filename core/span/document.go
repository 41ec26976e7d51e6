package span

import (
	"unicode/utf8"

	"github.com/hanlabel/kdpii/core/errors"
)

// Document is an immutable unit of annotated text.
//
// Content is never mutated after creation; editing text under live
// annotations would silently desynchronize span offsets, so edits create a
// new document instead. All offsets into Content are Unicode code point
// (rune) offsets, the single offset unit used across the whole engine.
type Document struct {
	// ID is the stable document identifier.
	ID string `json:"id"`

	// Content is the raw UTF-8 text.
	Content string `json:"content"`

	// Hash is the SHA-256 hash of Content.
	Hash string `json:"hash,omitempty"`
}

// NewDocument creates a document with its content hash populated.
func NewDocument(id, content string) *Document {
	return &Document{
		ID:      id,
		Content: content,
		Hash:    HashString(content),
	}
}

// Length returns the document length in runes.
func (d *Document) Length() int {
	return utf8.RuneCountInString(d.Content)
}

// Slice returns the substring covered by the rune range [start, end).
// The range must already be valid for this document.
func (d *Document) Slice(start, end int) string {
	if start < 0 || end <= start {
		return ""
	}
	i := 0
	byteStart, byteEnd := -1, -1
	for b := range d.Content {
		if i == start {
			byteStart = b
		}
		if i == end {
			byteEnd = b
			break
		}
		i++
	}
	if byteStart < 0 {
		return ""
	}
	if byteEnd < 0 {
		if end > i {
			return ""
		}
		byteEnd = len(d.Content)
	}
	return d.Content[byteStart:byteEnd]
}

// CheckRange validates a half-open rune range against the document.
func (d *Document) CheckRange(start, end int) error {
	if start < 0 || end <= start || end > d.Length() {
		return errors.NewRange(d.ID, start, end, d.Length())
	}
	return nil
}

// VerifyHash checks whether the stored hash matches the content.
// Documents with no stored hash verify trivially.
func (d *Document) VerifyHash() bool {
	if d.Hash == "" {
		return true
	}
	return d.Hash == HashString(d.Content)
}
