package codec

// LostSpan describes one span the BIO projection could not represent.
type LostSpan struct {
	// Start and End are the rune offsets of the unrepresentable span.
	Start int `json:"start"`
	End   int `json:"end"`

	// LabelCode is the span's label.
	LabelCode string `json:"label"`

	// Reason explains why the span was lost.
	Reason string `json:"reason"`
}

// LossReport documents the fidelity of a lossy export.
type LossReport struct {
	// SourceFormat is the representation converted from.
	SourceFormat string `json:"source_format"`

	// TargetFormat is the representation converted to.
	TargetFormat string `json:"target_format"`

	// LostSpans lists spans that do not survive a decode of the output.
	LostSpans []LostSpan `json:"lost_spans,omitempty"`

	// Warnings contains non-fatal issues encountered during conversion.
	Warnings []string `json:"warnings,omitempty"`
}

// HasLoss returns true if any spans were lost.
func (r *LossReport) HasLoss() bool {
	return len(r.LostSpans) > 0
}

// AddLostSpan records an unrepresentable span.
func (r *LossReport) AddLostSpan(start, end int, label, reason string) {
	r.LostSpans = append(r.LostSpans, LostSpan{
		Start:     start,
		End:       end,
		LabelCode: label,
		Reason:    reason,
	})
}

// AddWarning adds a warning to the report.
func (r *LossReport) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}
