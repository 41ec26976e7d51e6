// Command kdpii is the CLI for the KDPII span annotation engine.
// It converts annotation exports between formats, validates them against the
// label taxonomy, packs verified export bundles, and manages a task store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/hanlabel/kdpii/core/bundle"
	"github.com/hanlabel/kdpii/core/codec"
	"github.com/hanlabel/kdpii/core/progress"
	"github.com/hanlabel/kdpii/core/span"
	"github.com/hanlabel/kdpii/core/taxonomy"
	"github.com/hanlabel/kdpii/internal/logging"
	"github.com/hanlabel/kdpii/internal/store"
)

const version = "0.2.0"

// CLI defines the command-line interface for kdpii.
var CLI struct {
	// Global flags
	LogLevel string `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Log level"`
	LogText  bool   `name:"log-text" help:"Log in text format instead of JSON"`

	// Command groups (noun-first organization)
	Taxonomy TaxonomyGroup `cmd:"" help:"Label taxonomy operations (load, list, remove)"`
	Task     TaskGroup     `cmd:"" help:"Task operations (convert, validate, stats)"`
	Bundle   BundleGroup   `cmd:"" help:"Export bundle operations (pack, unpack, inspect)"`
	Store    StoreGroup    `cmd:"" help:"Task store operations (import, export, list, delete, progress)"`
	Version  VersionCmd    `cmd:"" help:"Print version information"`
}

// TaxonomyGroup contains label taxonomy operations.
type TaxonomyGroup struct {
	Load   TaxonomyLoadCmd   `cmd:"" help:"Load taxonomy entries into a store"`
	List   TaxonomyListCmd   `cmd:"" help:"List visible labels"`
	Remove TaxonomyRemoveCmd `cmd:"" help:"Remove a label from a store"`
}

// TaskGroup contains single-task operations on exported files.
type TaskGroup struct {
	Convert  TaskConvertCmd  `cmd:"" help:"Convert an export between formats"`
	Validate TaskValidateCmd `cmd:"" help:"Validate an export against the taxonomy"`
	Stats    TaskStatsCmd    `cmd:"" help:"Completion statistics over export files"`
}

// BundleGroup contains export bundle operations.
type BundleGroup struct {
	Pack    BundlePackCmd    `cmd:"" help:"Pack export files into a verified bundle"`
	Unpack  BundleUnpackCmd  `cmd:"" help:"Unpack and verify a bundle"`
	Inspect BundleInspectCmd `cmd:"" help:"Print a bundle's manifest"`
}

// StoreGroup contains SQLite task store operations.
type StoreGroup struct {
	Import   StoreImportCmd   `cmd:"" help:"Import export files into a store"`
	Export   StoreExportCmd   `cmd:"" help:"Export stored tasks to files"`
	List     StoreListCmd     `cmd:"" help:"List stored tasks"`
	Delete   StoreDeleteCmd   `cmd:"" help:"Delete a stored task"`
	Progress StoreProgressCmd `cmd:"" help:"Completion statistics over a store"`
}

// formatFromPath guesses an export format from a file extension.
func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return codec.FormatJSON
	case ".csv":
		return codec.FormatCSV
	case ".conll", ".bio":
		return codec.FormatCoNLL
	default:
		return ""
	}
}

// resolveFormat picks the explicit format flag or falls back to the file
// extension.
func resolveFormat(flag, path string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if f := formatFromPath(path); f != "" {
		return f, nil
	}
	return "", fmt.Errorf("cannot infer format of %s; pass --format", path)
}

// storeResolver adapts a store to the codec's document resolver.
func storeResolver(ctx context.Context, s *store.Store) codec.DocumentResolver {
	return func(id string) (*span.Document, error) {
		return s.LoadDocument(ctx, id)
	}
}

// openCatalog builds the active catalog: the built-in KDPII taxonomy, with
// stored entries merged over it when a store is given.
func openCatalog(ctx context.Context, dbPath string) (*taxonomy.Catalog, error) {
	catalog := taxonomy.DefaultCatalog()
	if dbPath == "" {
		return catalog, nil
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	entries, err := s.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		if err := catalog.Load(entries, taxonomy.LoadOptions{}); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// TaxonomyLoadCmd loads taxonomy entries from a JSON file into a store.
type TaxonomyLoadCmd struct {
	DB    string `required:"" help:"Store database path" type:"path"`
	File  string `arg:"" optional:"" help:"JSON file of taxonomy entries (defaults to the built-in KDPII set)" type:"existingfile"`
	Clear bool   `help:"Replace stored labels instead of merging"`
}

func (c *TaxonomyLoadCmd) Run() error {
	ctx := context.Background()

	entries := taxonomy.DefaultEntries()
	if c.File != "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return fmt.Errorf("failed to read taxonomy file: %w", err)
		}
		entries = nil
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("failed to parse taxonomy file: %w", err)
		}
	}

	// Reject malformed entries before touching the store.
	staging := taxonomy.NewCatalog()
	if err := staging.Load(entries, taxonomy.LoadOptions{}); err != nil {
		return fmt.Errorf("taxonomy rejected: %w", err)
	}

	s, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.SaveCatalog(ctx, entries, c.Clear); err != nil {
		return err
	}

	logging.TaxonomyEvent("loaded", len(entries), "clear", c.Clear)
	fmt.Printf("Loaded %d labels into %s\n", len(entries), c.DB)
	return nil
}

// TaxonomyListCmd lists the labels visible to a project.
type TaxonomyListCmd struct {
	DB      string `help:"Store database path (defaults to the built-in KDPII set)" type:"path"`
	Project string `help:"Project ID whose project-scoped labels to include"`
}

func (c *TaxonomyListCmd) Run() error {
	catalog, err := openCatalog(context.Background(), c.DB)
	if err != nil {
		return err
	}

	labels := catalog.VisibleLabels(c.Project)
	for _, l := range labels {
		line := fmt.Sprintf("%-22s %s", l.Code, l.DisplayName)
		if l.Category != "" {
			line += fmt.Sprintf("  [%s]", l.Category)
		}
		if l.Scope == taxonomy.ScopeProject {
			line += fmt.Sprintf("  (project %s)", l.ProjectID)
		}
		fmt.Println(line)
	}
	fmt.Printf("%d labels\n", len(labels))
	return nil
}

// TaxonomyRemoveCmd removes a label from a store, refusing while spans still
// reference it unless forced.
type TaxonomyRemoveCmd struct {
	DB      string `required:"" help:"Store database path" type:"path"`
	Code    string `arg:"" help:"Label code to remove"`
	Project string `help:"Project ID for project-scoped labels"`
	Force   bool   `help:"Remove even if spans still reference the label"`
}

func (c *TaxonomyRemoveCmd) Run() error {
	ctx := context.Background()
	s, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.LoadCatalog(ctx)
	if err != nil {
		return err
	}
	catalog := taxonomy.NewCatalog()
	if err := catalog.Load(entries, taxonomy.LoadOptions{}); err != nil {
		return err
	}

	var usedErr error
	used := func(code string) bool {
		inUse, err := s.LabelUsed(ctx, code)
		if err != nil {
			usedErr = err
		}
		return inUse
	}
	if err := catalog.Remove(c.Code, c.Project, c.Force, used); err != nil {
		return err
	}
	if usedErr != nil {
		return usedErr
	}

	var kept []taxonomy.Entry
	for _, e := range entries {
		if e.Code == c.Code && e.ProjectID == c.Project {
			continue
		}
		kept = append(kept, e)
	}
	if err := s.SaveCatalog(ctx, kept, true); err != nil {
		return err
	}

	logging.TaxonomyEvent("removed", 1, "code", c.Code)
	fmt.Printf("Removed %s\n", c.Code)
	return nil
}

// TaskConvertCmd converts a single export file between formats.
type TaskConvertCmd struct {
	In   string `arg:"" help:"Input export file" type:"existingfile"`
	Out  string `required:"" help:"Output path" type:"path"`
	From string `help:"Input format (inferred from extension if omitted)" enum:",json,csv,conll,labelstudio" default:""`
	To   string `help:"Output format (inferred from extension if omitted)" enum:",json,csv,conll,labelstudio" default:""`

	DB      string `help:"Store database path for taxonomy validation" type:"path"`
	Project string `help:"Project ID for label visibility"`
	Lossy   bool   `help:"Allow conversions that drop spans (required for CoNLL targets with overlaps)"`
	Tokens  string `help:"Token boundary file for CoNLL output, one 'start end' pair per line (defaults to whitespace tokens)" type:"existingfile"`
}

// loadTokens parses a token boundary file: one token per line, start and end
// rune offsets separated by whitespace. Blank lines and #-comments are skipped.
func loadTokens(path string) ([]codec.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var tokens []codec.Token
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("token file line %d: want 'start end', got %q", i+1, line)
		}
		start, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("token file line %d: bad start offset %q", i+1, fields[0])
		}
		end, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("token file line %d: bad end offset %q", i+1, fields[1])
		}
		tokens = append(tokens, codec.Token{Start: start, End: end})
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("token file %s has no token lines", path)
	}
	return tokens, nil
}

func (c *TaskConvertCmd) Run() error {
	ctx := context.Background()
	from, err := resolveFormat(c.From, c.In)
	if err != nil {
		return err
	}
	to, err := resolveFormat(c.To, c.Out)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(c.In)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	catalog, err := openCatalog(ctx, c.DB)
	if err != nil {
		return err
	}
	var resolve codec.DocumentResolver
	if c.DB != "" {
		st, err := store.Open(c.DB)
		if err != nil {
			return err
		}
		defer st.Close()
		resolve = storeResolver(ctx, st)
	}
	task, err := codec.DecodeValidatedWith(data, from, catalog, c.Project, resolve)
	if err != nil {
		return err
	}
	if task.Document.Content == "" && len(task.Spans) > 0 {
		return fmt.Errorf("%s carries no document content; pass --db so the document can be resolved", c.In)
	}

	var out []byte
	if to == codec.FormatCoNLL {
		tokens := codec.WhitespaceTokens(task.Document.Content)
		if c.Tokens != "" {
			if tokens, err = loadTokens(c.Tokens); err != nil {
				return err
			}
		}
		// Surface loss instead of silently dropping spans.
		conll := &codec.CoNLLCodec{}
		result, err := conll.EncodeTokens(task, tokens)
		if err != nil {
			return err
		}
		if result.Lossy {
			logging.ConversionLoss(from, to, len(result.Report.LostSpans),
				"document_id", task.Document.ID)
			for _, lost := range result.Report.LostSpans {
				fmt.Fprintf(os.Stderr, "lost: [%d,%d) %s (%s)\n",
					lost.Start, lost.End, lost.LabelCode, lost.Reason)
			}
			if !c.Lossy {
				return fmt.Errorf("conversion to %s drops %d span(s); pass --lossy to accept",
					to, len(result.Report.LostSpans))
			}
		}
		out = result.Data
	} else {
		out, err = codec.Encode(task, to)
		if err != nil {
			return err
		}
	}

	if err := os.WriteFile(c.Out, out, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	logging.CodecEvent("convert", to, task.Document.ID, len(task.Spans), "source_format", from)
	fmt.Printf("Converted: %s (%s) -> %s (%s), %d span(s)\n", c.In, from, c.Out, to, len(task.Spans))
	return nil
}

// TaskValidateCmd validates an export file against the taxonomy and span
// rules without writing anything.
type TaskValidateCmd struct {
	In      string `arg:"" help:"Input export file" type:"existingfile"`
	Format  string `help:"Input format (inferred from extension if omitted)" enum:",json,csv,conll,labelstudio" default:""`
	DB      string `help:"Store database path for taxonomy validation" type:"path"`
	Project string `help:"Project ID for label visibility"`
}

func (c *TaskValidateCmd) Run() error {
	ctx := context.Background()
	format, err := resolveFormat(c.Format, c.In)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(c.In)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	catalog, err := openCatalog(ctx, c.DB)
	if err != nil {
		return err
	}
	var resolve codec.DocumentResolver
	if c.DB != "" {
		st, err := store.Open(c.DB)
		if err != nil {
			return err
		}
		defer st.Close()
		resolve = storeResolver(ctx, st)
	}

	task, err := codec.DecodeValidatedWith(data, format, catalog, c.Project, resolve)
	if err != nil {
		return err
	}

	overlapping := map[int]bool{}
	for i, a := range task.Spans {
		for j := i + 1; j < len(task.Spans); j++ {
			if a.Overlaps(task.Spans[j]) {
				overlapping[i] = true
				overlapping[j] = true
			}
		}
	}

	fmt.Printf("OK: %s, %d span(s), %d overlapping, status %s\n",
		c.In, len(task.Spans), len(overlapping), task.Status)
	return nil
}

// TaskStatsCmd aggregates completion statistics over export files.
type TaskStatsCmd struct {
	Files  []string `arg:"" help:"Export files" type:"existingfile"`
	Format string   `help:"Input format (inferred from extension if omitted)" enum:",json,csv,conll,labelstudio" default:""`
}

func (c *TaskStatsCmd) Run() error {
	var tasks []*span.AnnotatedTask
	for _, path := range c.Files {
		format, err := resolveFormat(c.Format, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		task, err := codec.Decode(data, format)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		tasks = append(tasks, task)
	}
	printStats(progress.Completion(tasks))
	return nil
}

// printStats prints completion statistics in a fixed order.
func printStats(stats progress.Stats) {
	fmt.Printf("Tasks: %d total, %d completed, %d in progress, %d pending (%.1f%% complete)\n",
		stats.Total, stats.Completed, stats.InProgress, stats.Pending, stats.CompletionPercent())

	codes := make([]string, 0, len(stats.PerLabel))
	for code := range stats.PerLabel {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Printf("  %-22s %d\n", code, stats.PerLabel[code])
	}
}

// BundlePackCmd packs export files into a verified bundle.
type BundlePackCmd struct {
	Files []string `arg:"" help:"Export files to pack" type:"existingfile"`
	Out   string   `required:"" help:"Output bundle path" type:"path"`
	Gzip  bool     `help:"Use gzip compression instead of xz"`
}

func (c *BundlePackCmd) Run() error {
	var files []bundle.File
	for _, path := range c.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		f := bundle.File{Name: filepath.Base(path), Data: data}
		if format := formatFromPath(path); format != "" {
			f.Format = format
			if task, err := codec.Decode(data, format); err == nil {
				f.DocumentID = task.Document.ID
			}
		}
		files = append(files, f)
	}

	opts := bundle.DefaultOptions()
	if c.Gzip {
		opts.Compression = bundle.CompressionGzip
	}
	if err := bundle.Write(c.Out, files, opts); err != nil {
		return err
	}
	fmt.Printf("Packed %d file(s) into %s\n", len(files), c.Out)
	return nil
}

// BundleUnpackCmd unpacks a bundle, verifying every entry's hashes.
type BundleUnpackCmd struct {
	Archive string `arg:"" help:"Bundle path" type:"existingfile"`
	Out     string `required:"" help:"Output directory" type:"path"`
}

func (c *BundleUnpackCmd) Run() error {
	_, files, err := bundle.Read(c.Archive)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.Out, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(c.Out, f.Name), f.Data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}
	fmt.Printf("Unpacked %d verified file(s) into %s\n", len(files), c.Out)
	return nil
}

// BundleInspectCmd prints a bundle's manifest without extracting.
type BundleInspectCmd struct {
	Archive string `arg:"" help:"Bundle path" type:"existingfile"`
}

func (c *BundleInspectCmd) Run() error {
	compression, err := bundle.DetectCompression(c.Archive)
	if err != nil {
		return err
	}
	manifest, _, err := bundle.Read(c.Archive)
	if err != nil {
		return err
	}
	fmt.Printf("Bundle: %s (%s, manifest v%s)\n", c.Archive, compression, manifest.Version)
	for _, e := range manifest.Entries {
		fmt.Printf("  %-30s %8d bytes  sha256:%s\n", e.Name, e.SizeBytes, e.SHA256[:12])
	}
	fmt.Printf("%d entries, all hashes verified\n", len(manifest.Entries))
	return nil
}

// StoreImportCmd imports export files into a task store.
type StoreImportCmd struct {
	DB      string   `required:"" help:"Store database path" type:"path"`
	Files   []string `arg:"" help:"Export files to import" type:"existingfile"`
	Format  string   `help:"Input format (inferred from extension if omitted)" enum:",json,csv,conll,labelstudio" default:""`
	Project string   `help:"Project ID for label visibility"`
}

func (c *StoreImportCmd) Run() error {
	ctx := context.Background()
	catalog, err := openCatalog(ctx, c.DB)
	if err != nil {
		return err
	}
	s, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, path := range c.Files {
		format, err := resolveFormat(c.Format, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		// Content-free formats (CSV) resolve their document from the store,
		// so import never persists a document with empty content.
		task, err := codec.DecodeValidatedWith(data, format, catalog, c.Project, storeResolver(ctx, s))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if task.ID == "" {
			task.ID = task.Document.ID
		}
		if err := s.SaveTask(ctx, task); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		logging.TaskEvent("imported", task.ID, "format", format, "spans", len(task.Spans))
		fmt.Printf("Imported %s as task %s (%d span(s))\n", path, task.ID, len(task.Spans))
	}
	return nil
}

// StoreExportCmd exports stored tasks to files in a directory.
type StoreExportCmd struct {
	DB     string `required:"" help:"Store database path" type:"path"`
	Out    string `required:"" help:"Output directory" type:"path"`
	Format string `help:"Output format" enum:"json,csv,conll,labelstudio" default:"json"`
}

func (c *StoreExportCmd) Run() error {
	ctx := context.Background()
	s, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer s.Close()

	tasks, err := s.LoadAllTasks(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.Out, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ext := c.Format
	if ext == codec.FormatLabelStudio {
		ext = "json"
	}
	for _, task := range tasks {
		data, err := codec.Encode(task, c.Format)
		if err != nil {
			return fmt.Errorf("task %s: %w", task.ID, err)
		}
		name := fmt.Sprintf("%s.%s", task.ID, ext)
		if err := os.WriteFile(filepath.Join(c.Out, name), data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	fmt.Printf("Exported %d task(s) to %s\n", len(tasks), c.Out)
	return nil
}

// StoreListCmd lists stored tasks with their status and span count.
type StoreListCmd struct {
	DB string `required:"" help:"Store database path" type:"path"`
}

func (c *StoreListCmd) Run() error {
	ctx := context.Background()
	s, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer s.Close()

	tasks, err := s.LoadAllTasks(ctx)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		fmt.Printf("%-24s %-12s %3d span(s)  doc %s\n",
			task.ID, task.Status, len(task.Spans), task.Document.ID)
	}
	fmt.Printf("%d task(s)\n", len(tasks))
	return nil
}

// StoreDeleteCmd deletes a stored task and its spans.
type StoreDeleteCmd struct {
	DB string `required:"" help:"Store database path" type:"path"`
	ID string `arg:"" help:"Task ID to delete"`
}

func (c *StoreDeleteCmd) Run() error {
	ctx := context.Background()
	s, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteTask(ctx, c.ID); err != nil {
		return err
	}
	logging.TaskEvent("deleted", c.ID)
	fmt.Printf("Deleted %s\n", c.ID)
	return nil
}

// StoreProgressCmd prints completion statistics over all stored tasks.
type StoreProgressCmd struct {
	DB string `required:"" help:"Store database path" type:"path"`
}

func (c *StoreProgressCmd) Run() error {
	s, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer s.Close()

	tasks, err := s.LoadAllTasks(context.Background())
	if err != nil {
		return err
	}
	printStats(progress.Completion(tasks))
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("kdpii %s (sqlite driver: %s)\n", version, store.DriverType())
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("kdpii"),
		kong.Description("KDPII span annotation engine - taxonomy, validation, and format conversion"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	level := logging.LevelInfo
	switch CLI.LogLevel {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	format := logging.FormatJSON
	if CLI.LogText {
		format = logging.FormatText
	}
	logging.InitLogger(level, format)

	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
