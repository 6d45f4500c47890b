// Package consensus reconciles per-source candidates into one accepted
// value per field, with provenance, confidence, and traffic-light
// provenance classification.
package consensus

import (
	"sort"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

// FieldPolicy carries the per-field inputs reconciliation needs beyond
// the raw candidate list: whether the field is critical (pass_target 2
// vs 1), and a normalization function mapping raw candidate values onto
// comparable tokens.
type FieldPolicy struct {
	Critical   bool
	PassTarget int // 0 means derive from Critical
	Normalize  func(value string) string
}

func (p FieldPolicy) passTarget() int {
	if p.PassTarget > 0 {
		return p.PassTarget
	}
	if p.Critical {
		return 2
	}
	return 1
}

func (p FieldPolicy) normalize(v string) string {
	if p.Normalize != nil {
		return p.Normalize(v)
	}
	return v
}

// SourceInfo is the subset of a Source reconciliation needs: its trust
// tier (for approved_confirmations) and index (matches Candidate.SourceIndex).
type SourceInfo struct {
	Approved bool
	Tier     model.SourceTier
	URL      string
}

// Weights are the consensus confidence formula's coefficients. Must be
// pure functions of their inputs — no hidden state — so confidence stays
// deterministic across runs.
type Weights struct {
	Identity float64
	Agreement float64
	Tier      float64
	Conflict  float64
}

// AnchorConflict records a major anchor/constraint conflict detected for
// a field, which vetoes an otherwise-winning group.
type AnchorConflict struct {
	Field string
	Major bool
}

// Input bundles everything Reconcile needs for one field.
type Input struct {
	Field        string
	Policy       FieldPolicy
	Candidates   []model.Candidate
	Sources      []SourceInfo // indexed by Candidate.SourceIndex
	ListShape    bool
	IdentityConf float64
	Conflicts    []AnchorConflict
	Weights      Weights
}

type group struct {
	normalized            string
	approvedConfirmations int
	confirmations         int
	bestCandidate         model.Candidate
	bestRank              int
	tier1Seen             bool
	fromComponentLib      bool
}

// Reconcile produces the FieldProvenance for one field from its
// candidates, following §4.7's grouping/winner/confidence rules.
func Reconcile(in Input) (model.FieldProvenance, model.TrafficLight, []string) {
	if in.ListShape {
		return reconcileListShape(in)
	}

	groups := groupCandidates(in)
	if len(groups) == 0 {
		return unknownProvenance(in), unknownTrafficLight(), nil
	}

	winner, hasMajorConflict := pickWinner(groups, in)
	passTarget := in.Policy.passTarget()

	if winner == nil || winner.approvedConfirmations < passTarget || hasMajorConflict {
		return unknownProvenance(in), unknownTrafficLight(), nil
	}

	confidence := computeConfidence(in, *winner)
	prov := model.FieldProvenance{
		Value:                 winner.bestCandidate.Value,
		Confirmations:         winner.confirmations,
		ApprovedConfirmations: winner.approvedConfirmations,
		PassTarget:            passTarget,
		MeetsPassTarget:       winner.approvedConfirmations >= passTarget,
		Confidence:            confidence,
		Evidence:              evidenceRows(winner.bestCandidate, in),
	}
	light := trafficLight(winner.bestCandidate, in)
	return prov, light, nil
}

func groupCandidates(in Input) map[string]*group {
	groups := make(map[string]*group)
	for rank, c := range in.Candidates {
		norm := in.Policy.normalize(c.Value)
		g, ok := groups[norm]
		if !ok {
			g = &group{normalized: norm, bestRank: rank, bestCandidate: c}
			groups[norm] = g
		}
		g.confirmations++
		if c.SourceIndex >= 0 && c.SourceIndex < len(in.Sources) && in.Sources[c.SourceIndex].Approved {
			g.approvedConfirmations++
		}
		if c.SourceIndex >= 0 && c.SourceIndex < len(in.Sources) && in.Sources[c.SourceIndex].Tier == model.Tier1 {
			g.tier1Seen = true
		}
		if rank < g.bestRank {
			g.bestRank = rank
			g.bestCandidate = c
		}
	}
	return groups
}

// pickWinner selects the group with highest approved_confirmations, ties
// broken by total confirmations, then by earliest best-ranked evidence
// (lowest bestRank). A major anchor/constraint conflict on the field
// vetoes the winner.
func pickWinner(groups map[string]*group, in Input) (*group, bool) {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var winner *group
	for _, k := range keys {
		g := groups[k]
		if winner == nil {
			winner = g
			continue
		}
		if g.approvedConfirmations > winner.approvedConfirmations {
			winner = g
			continue
		}
		if g.approvedConfirmations == winner.approvedConfirmations {
			if g.confirmations > winner.confirmations {
				winner = g
				continue
			}
			if g.confirmations == winner.confirmations && g.bestRank < winner.bestRank {
				winner = g
			}
		}
	}

	major := false
	for _, c := range in.Conflicts {
		if c.Field == in.Field && c.Major {
			major = true
		}
	}
	return winner, major
}

func computeConfidence(in Input, g group) float64 {
	disagreements := 0
	for range in.Candidates {
		disagreements++
	}
	disagreements -= g.confirmations
	agreement := 0.0
	if g.approvedConfirmations+disagreements > 0 {
		agreement = float64(g.approvedConfirmations) / float64(g.approvedConfirmations+disagreements)
	}

	tierBias := 0.0
	if g.tier1Seen {
		tierBias = 1.0
	}

	conflictCount := 0
	for _, c := range in.Conflicts {
		if c.Field == in.Field {
			conflictCount++
		}
	}

	w := in.Weights
	raw := w.Identity*in.IdentityConf + w.Agreement*agreement + w.Tier*tierBias - w.Conflict*float64(conflictCount)
	return clamp01(raw)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func unknownProvenance(in Input) model.FieldProvenance {
	return model.FieldProvenance{
		Value:      "unk",
		PassTarget: in.Policy.passTarget(),
	}
}

func unknownTrafficLight() model.TrafficLight {
	return model.TrafficLight{Color: model.ColorRed, Reason: "no accepted value", UnknownReason: "no_consensus"}
}

func evidenceRows(winner model.Candidate, in Input) []model.EvidenceRow {
	var rows []model.EvidenceRow
	for _, c := range in.Candidates {
		norm := in.Policy.normalize(c.Value)
		if norm != in.Policy.normalize(winner.Value) {
			continue
		}
		var src SourceInfo
		if c.SourceIndex >= 0 && c.SourceIndex < len(in.Sources) {
			src = in.Sources[c.SourceIndex]
		}
		rows = append(rows, model.EvidenceRow{
			Tier:     src.Tier,
			TierName: tierName(src.Tier),
			Method:   c.Method,
			URL:      src.URL,
			Quote:    c.Quote,
		})
	}
	return rows
}

func tierName(t model.SourceTier) string {
	switch t {
	case model.Tier1:
		return "tier1"
	case model.Tier2:
		return "tier2"
	case model.Tier3:
		return "tier3"
	default:
		return "unknown"
	}
}

func trafficLight(winner model.Candidate, in Input) model.TrafficLight {
	var src SourceInfo
	if winner.SourceIndex >= 0 && winner.SourceIndex < len(in.Sources) {
		src = in.Sources[winner.SourceIndex]
	}
	light := model.TrafficLight{
		SourceTier:   src.Tier,
		SourceMethod: winner.Method,
		SourceURL:    src.URL,
	}
	switch {
	case src.Tier == model.Tier1:
		light.Color = model.ColorGreen
		light.Reason = "tier-1 evidence"
	case src.Tier == model.Tier2:
		light.Color = model.ColorYellow
		light.Reason = "tier-2 evidence"
	default:
		light.Color = model.ColorRed
		light.Reason = "below tier-2 evidence"
	}
	return light
}

// reconcileListShape unions distinct normalized values across sources
// for list-shaped fields, per §4.7.
func reconcileListShape(in Input) (model.FieldProvenance, model.TrafficLight, []string) {
	seen := make(map[string]bool)
	var values []string
	var rows []model.EvidenceRow
	for _, c := range in.Candidates {
		norm := in.Policy.normalize(c.Value)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		values = append(values, c.Value)
		var src SourceInfo
		if c.SourceIndex >= 0 && c.SourceIndex < len(in.Sources) {
			src = in.Sources[c.SourceIndex]
		}
		rows = append(rows, model.EvidenceRow{Tier: src.Tier, TierName: tierName(src.Tier), Method: c.Method, URL: src.URL, Quote: c.Quote})
	}
	sort.Strings(values)

	prov := model.FieldProvenance{
		Value:                 joinList(values),
		Confirmations:         len(in.Candidates),
		ApprovedConfirmations: len(in.Candidates),
		PassTarget:            in.Policy.passTarget(),
		MeetsPassTarget:       len(values) > 0,
		Confidence:            clamp01(float64(len(values)) / float64(maxInt(1, len(values)))),
		Evidence:              rows,
	}
	light := model.TrafficLight{Color: model.ColorYellow, Reason: "list field union"}
	if len(values) == 0 {
		prov.Value = "unk"
		light = unknownTrafficLight()
	}
	return prov, light, nil
}

func joinList(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ";"
		}
		out += v
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
