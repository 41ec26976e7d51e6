// Package taxonomy defines the label catalog for KDPII annotation.
//
// A Catalog is an explicit object passed into engine calls; there is no
// process-wide registry. The collaborator that owns the catalog loads it once
// per process or project and hands it to span validation and codec import.
package taxonomy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hanlabel/kdpii/core/errors"
)

// Scope indicates the visibility of a label.
type Scope string

// Scope constants.
const (
	// ScopeGlobal labels are visible to every project.
	ScopeGlobal Scope = "global"

	// ScopeProject labels are visible only to their owning project.
	ScopeProject Scope = "project"
)

// validScopes is the set of valid scopes.
var validScopes = map[Scope]bool{
	ScopeGlobal:  true,
	ScopeProject: true,
}

// IsValid returns true if the scope is valid.
func (s Scope) IsValid() bool {
	return validScopes[s]
}

// codePattern is the required shape of a label code.
var codePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Label is one legal annotation label.
type Label struct {
	// Code is the unique, stable identifier (e.g., "PS_NAME"). Case-sensitive.
	Code string `json:"code"`

	// DisplayName is the human-readable name shown in annotation UIs.
	DisplayName string `json:"display_name"`

	// Category groups labels for UI purposes; not enforced semantically.
	Category string `json:"category,omitempty"`

	// Scope is the visibility of the label (global or project).
	Scope Scope `json:"scope"`

	// ProjectID is the owning project for project-scoped labels.
	ProjectID string `json:"project_id,omitempty"`

	// Background is the hex display color (e.g., "#FF5733").
	Background string `json:"background,omitempty"`

	// Hotkey is a single-character keyboard shortcut, if assigned.
	Hotkey string `json:"hotkey,omitempty"`
}

// Entry is one tuple of the taxonomy load interface.
type Entry struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category,omitempty"`
	Scope       Scope  `json:"scope"`
	ProjectID   string `json:"project_id,omitempty"`
	Background  string `json:"background,omitempty"`
	Hotkey      string `json:"hotkey,omitempty"`
}

// LoadError aggregates every malformed entry found during a load, so a caller
// can report all taxonomy errors in one pass.
type LoadError struct {
	Entries []*errors.CodeError
}

func (e *LoadError) Error() string {
	if len(e.Entries) == 1 {
		return fmt.Sprintf("taxonomy load failed: %s", e.Entries[0].Error())
	}
	msgs := make([]string, len(e.Entries))
	for i, ce := range e.Entries {
		msgs[i] = ce.Error()
	}
	return fmt.Sprintf("taxonomy load failed: %d malformed entries: %s",
		len(e.Entries), strings.Join(msgs, "; "))
}

func (e *LoadError) Unwrap() error {
	return errors.ErrMalformedCode
}

// LoadOptions configures catalog loading.
type LoadOptions struct {
	// Clear replaces the existing catalog instead of merging into it.
	// Loading the same entries twice with Clear set is idempotent.
	Clear bool
}

// Catalog holds the labels visible to the engine.
// It is not safe for concurrent mutation; the owning collaborator serializes
// Load/Remove against reads.
type Catalog struct {
	global    map[string]*Label            // code -> label
	byProject map[string]map[string]*Label // project id -> code -> label
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		global:    make(map[string]*Label),
		byProject: make(map[string]map[string]*Label),
	}
}

// validateEntry checks a single entry and returns a CodeError describing the
// first problem, or nil.
func validateEntry(i int, e Entry) *errors.CodeError {
	if !codePattern.MatchString(e.Code) {
		return &errors.CodeError{
			Index:   i,
			Code:    e.Code,
			Field:   "code",
			Message: "must match ^[A-Z][A-Z0-9_]*$",
		}
	}
	if e.Scope != "" && !e.Scope.IsValid() {
		return &errors.CodeError{
			Index:   i,
			Code:    e.Code,
			Field:   "scope",
			Message: fmt.Sprintf("invalid scope %q", e.Scope),
		}
	}
	if e.Scope == ScopeProject && e.ProjectID == "" {
		return &errors.CodeError{
			Index:   i,
			Code:    e.Code,
			Field:   "project_id",
			Message: "required for project-scoped labels",
		}
	}
	if e.Background != "" && !validColor(e.Background) {
		return &errors.CodeError{
			Index:   i,
			Code:    e.Code,
			Field:   "background",
			Message: fmt.Sprintf("invalid hex color %q", e.Background),
		}
	}
	if e.Hotkey != "" && len([]rune(e.Hotkey)) != 1 {
		return &errors.CodeError{
			Index:   i,
			Code:    e.Code,
			Field:   "hotkey",
			Message: "must be a single character",
		}
	}
	return nil
}

// validColor reports whether s is a "#RRGGBB" hex color.
func validColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Load loads a sequence of entries into the catalog.
//
// Every entry is validated before anything is applied; any malformed entry
// fails the whole load atomically and the returned LoadError lists all of
// them, not just the first. An empty Scope defaults to global.
func (c *Catalog) Load(entries []Entry, opts LoadOptions) error {
	var bad []*errors.CodeError
	for i, e := range entries {
		if ce := validateEntry(i, e); ce != nil {
			bad = append(bad, ce)
		}
	}
	if len(bad) > 0 {
		return &LoadError{Entries: bad}
	}

	// Stage into fresh maps, then commit. The catalog is never observed in a
	// half-loaded state.
	global := make(map[string]*Label)
	byProject := make(map[string]map[string]*Label)
	if !opts.Clear {
		for code, l := range c.global {
			global[code] = l
		}
		for pid, m := range c.byProject {
			cp := make(map[string]*Label, len(m))
			for code, l := range m {
				cp[code] = l
			}
			byProject[pid] = cp
		}
	}

	for _, e := range entries {
		scope := e.Scope
		if scope == "" {
			scope = ScopeGlobal
		}
		label := &Label{
			Code:        e.Code,
			DisplayName: e.DisplayName,
			Category:    e.Category,
			Scope:       scope,
			Background:  e.Background,
			Hotkey:      e.Hotkey,
		}
		if scope == ScopeProject {
			label.ProjectID = e.ProjectID
			m := byProject[e.ProjectID]
			if m == nil {
				m = make(map[string]*Label)
				byProject[e.ProjectID] = m
			}
			m[e.Code] = label
		} else {
			global[e.Code] = label
		}
	}

	c.global = global
	c.byProject = byProject
	return nil
}

// Resolve looks up a label code in the set visible to projectID
// (project-scoped labels first, then global).
func (c *Catalog) Resolve(code, projectID string) (*Label, error) {
	if projectID != "" {
		if m := c.byProject[projectID]; m != nil {
			if l, ok := m[code]; ok {
				return l, nil
			}
		}
	}
	if l, ok := c.global[code]; ok {
		return l, nil
	}
	return nil, errors.NewLabel(code, projectID)
}

// VisibleLabels returns the labels visible to projectID: global labels plus
// labels scoped to that project, sorted by code for deterministic output.
func (c *Catalog) VisibleLabels(projectID string) []*Label {
	out := make([]*Label, 0, len(c.global))
	for _, l := range c.global {
		out = append(out, l)
	}
	if projectID != "" {
		for _, l := range c.byProject[projectID] {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Len returns the total number of labels in the catalog.
func (c *Catalog) Len() int {
	n := len(c.global)
	for _, m := range c.byProject {
		n += len(m)
	}
	return n
}

// Remove deletes a label from the catalog. The used callback reports whether
// any existing span still references the code; if it does, the delete is
// rejected unless force is set. A forced delete leaves the referencing spans
// to the caller.
func (c *Catalog) Remove(code, projectID string, force bool, used func(code string) bool) error {
	var m map[string]*Label
	if projectID != "" {
		m = c.byProject[projectID]
	} else {
		m = c.global
	}
	if m == nil || m[code] == nil {
		return errors.NewNotFound("label", code)
	}
	if !force && used != nil && used(code) {
		return errors.Wrapf(errors.ErrLabelInUse, "label %s is referenced by existing spans", code)
	}
	delete(m, code)
	return nil
}
