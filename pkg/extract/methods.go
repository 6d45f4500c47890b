package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

// extractNetworkJSON walks every captured XHR/fetch JSON payload and
// emits a candidate for each field whose key path resolves to a scalar
// value. Grounded on the same flatten-then-match approach embedded_state
// uses, since both sources are "arbitrary JSON, look for our field keys".
func (e *Extractor) extractNetworkJSON(page model.PageData, sourceIndex int) []model.Candidate {
	var out []model.Candidate
	for _, resp := range page.NetworkResponses {
		var parsed any
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			continue
		}
		flat := make(map[string]string)
		flatten("", parsed, flat)
		out = append(out, e.matchFlatKeys(flat, model.MethodNetworkJSON, sourceIndex)...)
	}
	return out
}

// extractEmbeddedState flattens window-attached JSON state blobs the
// fetcher already parsed and matches field key paths against it.
func (e *Extractor) extractEmbeddedState(page model.PageData, sourceIndex int) []model.Candidate {
	if len(page.EmbeddedState) == 0 {
		return nil
	}
	flat := make(map[string]string)
	flatten("", page.EmbeddedState, flat)
	return e.matchFlatKeys(flat, model.MethodEmbeddedState, sourceIndex)
}

// extractLDJSON parses every <script type="application/ld+json"> block
// the fetcher captured and matches schema.org Product properties whose
// key (case-folded) matches a field's key path hint or field key.
func (e *Extractor) extractLDJSON(page model.PageData, sourceIndex int) []model.Candidate {
	var out []model.Candidate
	for _, block := range page.LDJSONBlocks {
		var parsed any
		if err := json.Unmarshal([]byte(block), &parsed); err != nil {
			continue
		}
		flat := make(map[string]string)
		flatten("", parsed, flat)
		out = append(out, e.matchFlatKeys(flat, model.MethodLDJSON, sourceIndex)...)
	}
	return out
}

// extractPDF extracts plain text from each PDF the fetcher captured (a
// manufacturer datasheet, most often) via ledongthuc/pdf, then looks for
// "Label: value" lines whose label matches a field's display affinity. A
// PDF that fails to parse (corrupt download, password-protected) is
// skipped rather than failing the whole page's extraction.
func (e *Extractor) extractPDF(page model.PageData, sourceIndex int) []model.Candidate {
	if len(page.PDFDocs) == 0 {
		return nil
	}
	var out []model.Candidate
	for _, doc := range page.PDFDocs {
		text, err := pdfPlainText(doc)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			field, value, ok := splitLabelValueLine(line)
			if !ok {
				continue
			}
			for key, spec := range e.Fields {
				if matchesLabel(field, spec) {
					out = append(out, model.Candidate{
						Field:       key,
						Value:       strings.TrimSpace(value),
						Method:      model.MethodPDF,
						KeyPath:     field,
						SourceIndex: sourceIndex,
					})
				}
			}
		}
	}
	return out
}

// pdfPlainText renders a PDF's text layer into a single string, one line
// per source line, via ledongthuc/pdf's page-by-page plain text reader.
func pdfPlainText(doc []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return "", fmt.Errorf("extract: open pdf: %w", err)
	}
	var buf bytes.Buffer
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(content)
		buf.WriteByte('\n')
	}
	return buf.String(), nil
}

// extractDOM applies field-specific CSS selectors/regex over the raw
// HTML via goquery — the deterministic fallback when no structured data
// is present.
func (e *Extractor) extractDOM(page model.PageData, sourceIndex int) []model.Candidate {
	if page.HTML == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil
	}
	var out []model.Candidate
	doc.Find("[data-spec-field]").Each(func(_ int, s *goquery.Selection) {
		field, ok := s.Attr("data-spec-field")
		if !ok {
			return
		}
		if _, known := e.Fields[field]; !known {
			return
		}
		value := strings.TrimSpace(s.Text())
		if value == "" {
			return
		}
		out = append(out, model.Candidate{
			Field:       field,
			Value:       value,
			Method:      model.MethodDOM,
			KeyPath:     "dom:" + field,
			SourceIndex: sourceIndex,
		})
	})
	return out
}

func (e *Extractor) matchFlatKeys(flat map[string]string, method model.ExtractionMethod, sourceIndex int) []model.Candidate {
	var out []model.Candidate
	for path, value := range flat {
		for key, spec := range e.Fields {
			if matchesKeyPath(path, key, spec) {
				out = append(out, model.Candidate{
					Field:       key,
					Value:       value,
					Method:      method,
					KeyPath:     path,
					SourceIndex: sourceIndex,
				})
			}
		}
	}
	return out
}

func matchesKeyPath(path, fieldKey string, spec FieldSpec) bool {
	p := lowerASCII(path)
	if spec.KeyPathHint != "" && containsFold(p, spec.KeyPathHint) {
		return true
	}
	return containsFold(p, fieldKey)
}

func matchesLabel(label string, spec FieldSpec) bool {
	l := lowerASCII(label)
	if spec.KeyPathHint != "" && containsFold(l, spec.KeyPathHint) {
		return true
	}
	return containsFold(l, spec.FieldKey)
}

func splitLabelValueLine(line string) (label, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	label = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	if label == "" || value == "" {
		return "", "", false
	}
	return label, value, true
}

// flatten walks arbitrary decoded JSON into a dotted-key-path -> string
// value map, skipping nested objects/arrays' structural nodes and
// keeping only scalar leaves.
func flatten(prefix string, v any, out map[string]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, val, out)
		}
	case []any:
		for i, val := range t {
			key := fmt.Sprintf("%s[%d]", prefix, i)
			flatten(key, val, out)
		}
	case string:
		out[prefix] = t
	case float64:
		out[prefix] = trimFloat(t)
	case bool:
		out[prefix] = fmt.Sprintf("%v", t)
	}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	return s
}
