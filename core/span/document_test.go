package span

import (
	"errors"
	"testing"

	kerrors "github.com/hanlabel/kdpii/core/errors"
)

const sampleText = "홍길동은 010-1234-5678로 연락했다"

func TestDocumentLengthIsRuneCount(t *testing.T) {
	doc := NewDocument("doc-1", sampleText)
	// 홍길동은(4) + space + 010-1234-5678(13) + 로(1) + space + 연락했다(4)
	if got := doc.Length(); got != 24 {
		t.Errorf("Length() = %d, want 24", got)
	}
}

func TestDocumentSlice(t *testing.T) {
	doc := NewDocument("doc-1", sampleText)

	tests := []struct {
		name       string
		start, end int
		want       string
	}{
		{"leading name", 0, 3, "홍길동"},
		{"phone number", 5, 18, "010-1234-5678"},
		{"trailing verb", 20, 24, "연락했다"},
		{"full document", 0, 24, sampleText},
		{"single rune", 3, 4, "은"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := doc.Slice(tt.start, tt.end); got != tt.want {
				t.Errorf("Slice(%d, %d) = %q, want %q", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestDocumentCheckRange(t *testing.T) {
	doc := NewDocument("doc-1", sampleText)

	tests := []struct {
		name       string
		start, end int
		ok         bool
	}{
		{"valid", 0, 3, true},
		{"full length", 0, 24, true},
		{"empty range", 5, 5, false},
		{"inverted", 6, 5, false},
		{"negative start", -1, 3, false},
		{"end past document", 0, 25, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := doc.CheckRange(tt.start, tt.end)
			if tt.ok && err != nil {
				t.Errorf("CheckRange(%d, %d) = %v, want nil", tt.start, tt.end, err)
			}
			if !tt.ok {
				if !errors.Is(err, kerrors.ErrInvalidRange) {
					t.Errorf("CheckRange(%d, %d) = %v, want ErrInvalidRange", tt.start, tt.end, err)
				}
				var re *kerrors.RangeError
				if !errors.As(err, &re) {
					t.Fatalf("error type = %T, want *RangeError", err)
				}
				if re.DocumentID != "doc-1" || re.Length != 24 {
					t.Errorf("RangeError context = %+v", re)
				}
			}
		})
	}
}

func TestDocumentHash(t *testing.T) {
	doc := NewDocument("doc-1", sampleText)
	if doc.Hash == "" {
		t.Fatal("NewDocument left Hash empty")
	}
	if !doc.VerifyHash() {
		t.Error("VerifyHash() = false for untouched document")
	}

	tampered := &Document{ID: "doc-1", Content: sampleText + "!", Hash: doc.Hash}
	if tampered.VerifyHash() {
		t.Error("VerifyHash() = true for tampered content")
	}

	unhashed := &Document{ID: "doc-2", Content: sampleText}
	if !unhashed.VerifyHash() {
		t.Error("VerifyHash() = false for document without stored hash")
	}
}
