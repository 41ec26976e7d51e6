package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hanlabel/kdpii/core/bundle"
	"github.com/hanlabel/kdpii/core/codec"
	"github.com/hanlabel/kdpii/core/taxonomy"
)

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"export.json", codec.FormatJSON},
		{"export.JSON", codec.FormatJSON},
		{"spans.csv", codec.FormatCSV},
		{"doc.conll", codec.FormatCoNLL},
		{"doc.bio", codec.FormatCoNLL},
		{"doc.txt", ""},
		{"noext", ""},
	}
	for _, tt := range tests {
		if got := formatFromPath(tt.path); got != tt.want {
			t.Errorf("formatFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestResolveFormat(t *testing.T) {
	if got, err := resolveFormat("conll", "export.json"); err != nil || got != "conll" {
		t.Errorf("explicit flag not preferred: %q, %v", got, err)
	}
	if got, err := resolveFormat("", "export.csv"); err != nil || got != "csv" {
		t.Errorf("extension fallback failed: %q, %v", got, err)
	}
	if _, err := resolveFormat("", "export.txt"); err == nil {
		t.Error("expected error for unknown extension")
	}
}

func TestConvertCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "task.json")
	out := filepath.Join(dir, "task.csv")

	input := `{
		"document": {"id": "doc-1", "content": "홍길동은 서울 거주"},
		"spans": [{"start": 0, "end": 3, "label": "PS_NAME"}],
		"status": "completed"
	}`
	if err := os.WriteFile(in, []byte(input), 0644); err != nil {
		t.Fatal(err)
	}

	cmd := &TaskConvertCmd{In: in, Out: out}
	if err := cmd.Run(); err != nil {
		t.Fatalf("convert failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "PS_NAME") {
		t.Errorf("converted output missing span: %s", data)
	}
}

func TestConvertRejectsUnknownLabel(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "task.json")

	input := `{
		"document": {"id": "doc-1", "content": "홍길동"},
		"spans": [{"start": 0, "end": 3, "label": "NOT_A_LABEL"}]
	}`
	if err := os.WriteFile(in, []byte(input), 0644); err != nil {
		t.Fatal(err)
	}

	cmd := &TaskConvertCmd{In: in, Out: filepath.Join(dir, "out.csv")}
	if err := cmd.Run(); err == nil {
		t.Error("expected validation error for unknown label")
	}
}

func TestConvertCSVInputResolvesDocument(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "kdpii.db")
	in := filepath.Join(dir, "task.json")
	csvPath := filepath.Join(dir, "task.csv")
	outPath := filepath.Join(dir, "back.json")

	input := `{
		"document": {"id": "doc-1", "content": "홍길동은 서울 거주"},
		"spans": [{"start": 0, "end": 3, "label": "PS_NAME"}]
	}`
	if err := os.WriteFile(in, []byte(input), 0644); err != nil {
		t.Fatal(err)
	}

	imp := &StoreImportCmd{DB: db, Files: []string{in}}
	if err := imp.Run(); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	conv := &TaskConvertCmd{In: in, Out: csvPath}
	if err := conv.Run(); err != nil {
		t.Fatalf("json -> csv failed: %v", err)
	}

	// CSV carries no document content; converting onward needs the store.
	back := &TaskConvertCmd{In: csvPath, Out: outPath}
	if err := back.Run(); err == nil {
		t.Error("csv conversion without --db succeeded, want content error")
	}

	back = &TaskConvertCmd{In: csvPath, Out: outPath, DB: db}
	if err := back.Run(); err != nil {
		t.Fatalf("csv -> json with store failed: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "홍길동은 서울 거주") {
		t.Errorf("document content not restored from store: %s", data)
	}
}

func TestLoadTokens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.txt")
	content := "# name then phone\n0 3\n\n5 18\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	tokens, err := loadTokens(path)
	if err != nil {
		t.Fatalf("loadTokens failed: %v", err)
	}
	want := []codec.Token{{Start: 0, End: 3}, {Start: 5, End: 18}}
	if len(tokens) != len(want) {
		t.Fatalf("len(tokens) = %d, want %d", len(tokens), len(want))
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("tokens[%d] = %+v, want %+v", i, tokens[i], want[i])
		}
	}

	bad := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(bad, []byte("0 x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadTokens(bad); err == nil {
		t.Error("loadTokens accepted a non-numeric offset")
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("# only comments\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadTokens(empty); err == nil {
		t.Error("loadTokens accepted a file with no tokens")
	}
}

func TestBundlePackUnpackCommands(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "task.json")
	input := `{"document": {"id": "doc-1", "content": "홍길동"}, "spans": []}`
	if err := os.WriteFile(in, []byte(input), 0644); err != nil {
		t.Fatal(err)
	}

	archive := filepath.Join(dir, "export.tar.xz")
	pack := &BundlePackCmd{Files: []string{in}, Out: archive}
	if err := pack.Run(); err != nil {
		t.Fatalf("pack failed: %v", err)
	}

	manifest, files, err := bundle.Read(archive)
	if err != nil {
		t.Fatalf("bundle unreadable: %v", err)
	}
	if len(files) != 1 || manifest.Entries[0].DocumentID != "doc-1" {
		t.Errorf("manifest = %+v", manifest.Entries)
	}

	outDir := filepath.Join(dir, "unpacked")
	unpack := &BundleUnpackCmd{Archive: archive, Out: outDir}
	if err := unpack.Run(); err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(outDir, "task.json"))
	if err != nil || string(data) != input {
		t.Errorf("unpacked content differs: %s, %v", data, err)
	}
}

func TestTaxonomyLoadAndListCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "kdpii.db")

	load := &TaxonomyLoadCmd{DB: db, Clear: true}
	if err := load.Run(); err != nil {
		t.Fatalf("taxonomy load failed: %v", err)
	}

	// Custom entries merge over the stored set.
	custom := filepath.Join(t.TempDir(), "labels.json")
	entries := `[{"code": "PROJ_TAG", "display_name": "태그", "scope": "project", "project_id": "p1"}]`
	if err := os.WriteFile(custom, []byte(entries), 0644); err != nil {
		t.Fatal(err)
	}
	load = &TaxonomyLoadCmd{DB: db, File: custom}
	if err := load.Run(); err != nil {
		t.Fatalf("custom taxonomy load failed: %v", err)
	}

	catalog, err := openCatalog(context.Background(), db)
	if err != nil {
		t.Fatalf("openCatalog failed: %v", err)
	}
	if catalog.Len() != len(taxonomy.DefaultEntries())+1 {
		t.Errorf("catalog has %d labels", catalog.Len())
	}
	if _, err := catalog.Resolve("PROJ_TAG", "p1"); err != nil {
		t.Errorf("Resolve(PROJ_TAG, p1) = %v", err)
	}
}
