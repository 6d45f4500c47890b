package fetch

import (
	"context"
	"time"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

// DryRunFetcher returns a synthetic Page Data for every source from a
// caller-supplied fixture table keyed by URL, falling back to a single
// empty 200 response for URLs it has no fixture for. Grounded on the
// same fixture-table pattern cortex's own test doubles use for its
// external collaborators (a map keyed by the thing under test, not a
// mock framework).
type DryRunFetcher struct {
	Fixtures map[string]model.PageData
	Default  model.PageData
}

// NewDryRunFetcher builds a DryRunFetcher over the given fixtures.
func NewDryRunFetcher(fixtures map[string]model.PageData) *DryRunFetcher {
	if fixtures == nil {
		fixtures = make(map[string]model.PageData)
	}
	return &DryRunFetcher{
		Fixtures: fixtures,
		Default:  model.PageData{Status: 200, FinalURL: "", Title: "", HTML: ""},
	}
}

// Fetch implements Fetcher by looking up src.URL in Fixtures.
func (f *DryRunFetcher) Fetch(_ context.Context, src model.Source, _ time.Duration) (model.PageData, error) {
	if pd, ok := f.Fixtures[src.URL]; ok {
		if pd.FinalURL == "" {
			pd.FinalURL = src.URL
		}
		return pd, nil
	}
	pd := f.Default
	pd.FinalURL = src.URL
	return pd, nil
}

var _ Fetcher = (*DryRunFetcher)(nil)
var _ Fetcher = FuncFetcher(nil)
