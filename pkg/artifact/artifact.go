// Package artifact writes the per-run output set under an object-store
// prefix: normalized.json, provenance.json, candidates.json, summary.json,
// evidence/sources.jsonl, an optional summary.md, and a one-line TSV row.
// The storage adapter (where the prefix actually lives) is an external
// collaborator; this package only knows how to render the artifact set
// given a io/fs-style writer.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/antigravity-dev/specsheet/pkg/canon"
	"github.com/antigravity-dev/specsheet/pkg/model"
)

// Writer is the minimal storage contract artifact writing needs — a
// single object-store prefix write, keyed by relative path.
type Writer interface {
	WriteObject(relativePath string, data []byte) error
}

// RunOutput bundles everything one run produces.
type RunOutput struct {
	Record      model.NormalizedRecord
	Provenance  map[string]model.FieldProvenance
	Candidates  map[string][]model.Candidate
	Summary     Summary
	SourcesSeen []SourceSeen
	FieldOrder  []string
}

// Summary is the final-round summary contract persisted alongside the
// record.
type Summary struct {
	MissingRequiredFields         []string `json:"missing_required_fields"`
	CriticalFieldsBelowPassTarget []string `json:"critical_fields_below_pass_target"`
	Confidence                    float64  `json:"confidence"`
	Validated                     bool     `json:"validated"`
	ValidatedReason               string   `json:"validated_reason"`
	SourcesIdentityMatched        int      `json:"sources_identity_matched"`
	Notes                         []string `json:"notes,omitempty"`
}

// SourceSeen is one line of evidence/sources.jsonl.
type SourceSeen struct {
	URL     string `json:"url"`
	Host    string `json:"host"`
	Tier    string `json:"tier"`
	Role    string `json:"role"`
	Status  int    `json:"status"`
	Outcome string `json:"outcome"`
}

// WriteAll renders every artifact for out and writes it via w, honoring
// the "manifest writes last" ordering guarantee's sibling rule here: all
// content files are flushed before summary.md / the TSV row, which are
// derived views over them.
func WriteAll(w Writer, out RunOutput) error {
	normalized, err := canon.Marshal(out.Record)
	if err != nil {
		return fmt.Errorf("artifact: marshaling normalized.json: %w", err)
	}
	if err := w.WriteObject("normalized.json", normalized); err != nil {
		return err
	}

	provenance, err := canon.Marshal(out.Provenance)
	if err != nil {
		return fmt.Errorf("artifact: marshaling provenance.json: %w", err)
	}
	if err := w.WriteObject("provenance.json", provenance); err != nil {
		return err
	}

	candidates, err := canon.Marshal(out.Candidates)
	if err != nil {
		return fmt.Errorf("artifact: marshaling candidates.json: %w", err)
	}
	if err := w.WriteObject("candidates.json", candidates); err != nil {
		return err
	}

	summary, err := canon.Marshal(out.Summary)
	if err != nil {
		return fmt.Errorf("artifact: marshaling summary.json: %w", err)
	}
	if err := w.WriteObject("summary.json", summary); err != nil {
		return err
	}

	sourcesJSONL, err := renderJSONL(out.SourcesSeen)
	if err != nil {
		return fmt.Errorf("artifact: rendering evidence/sources.jsonl: %w", err)
	}
	if err := w.WriteObject("evidence/sources.jsonl", sourcesJSONL); err != nil {
		return err
	}

	if err := w.WriteObject("summary.md", renderSummaryMarkdown(out)); err != nil {
		return err
	}

	if err := w.WriteObject("summary.tsv", renderTSVRow(out)); err != nil {
		return err
	}

	return nil
}

func renderJSONL(rows []SourceSeen) ([]byte, error) {
	var buf bytes.Buffer
	for _, r := range rows {
		line, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func renderSummaryMarkdown(out RunOutput) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %s\n\n", out.Record.Brand, out.Record.Model)
	fmt.Fprintf(&b, "- validated: %v\n", out.Summary.Validated)
	fmt.Fprintf(&b, "- validated_reason: %s\n", out.Summary.ValidatedReason)
	fmt.Fprintf(&b, "- confidence: %.2f\n", out.Summary.Confidence)
	fmt.Fprintf(&b, "- sources_identity_matched: %d\n\n", out.Summary.SourcesIdentityMatched)

	fields := out.FieldOrder
	if len(fields) == 0 {
		for k := range out.Record.Fields {
			fields = append(fields, k)
		}
		sort.Strings(fields)
	}

	b.WriteString("| field | value |\n|---|---|\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "| %s | %s |\n", f, out.Record.Fields[f])
	}
	return []byte(b.String())
}

func renderTSVRow(out RunOutput) []byte {
	fields := out.FieldOrder
	if len(fields) == 0 {
		for k := range out.Record.Fields {
			fields = append(fields, k)
		}
		sort.Strings(fields)
	}
	cols := make([]string, 0, len(fields)+2)
	cols = append(cols, out.Record.ID, out.Summary.ValidatedReason)
	for _, f := range fields {
		cols = append(cols, out.Record.Fields[f])
	}
	return []byte(strings.Join(cols, "\t") + "\n")
}
