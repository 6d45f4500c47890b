package search

import "testing"

func TestCanonicalizeURLStripsTrackingParamsAndTrailingSlash(t *testing.T) {
	got := CanonicalizeURL("https://Example.com/Product/?utm_source=x&ref=y&id=7")
	want := "https://example.com/Product?id=7"
	if got != want {
		t.Errorf("CanonicalizeURL = %q, want %q", got, want)
	}
}

func TestDedupS6CrossProviderScenario(t *testing.T) {
	results := []Result{
		{URL: "https://A?utm_source=x", Rank: 0, Provider: ProviderBing, Query: "g pro x superlight"},
		{URL: "https://a/", Rank: 5, Provider: ProviderGoogle, Query: "g pro x superlight specs"},
	}
	out := Dedup(results)
	if len(out) != 1 {
		t.Fatalf("expected 1 deduped result, got %d", len(out))
	}
	entry := out[0]
	if entry.CanonicalURL != "https://a" {
		t.Errorf("canonical_url = %q, want https://a", entry.CanonicalURL)
	}
	if entry.Rank != 0 {
		t.Errorf("rank = %d, want 0 (minimum original rank)", entry.Rank)
	}
	if entry.CrossProviderCount != 2 {
		t.Errorf("cross_provider_count = %d, want 2", entry.CrossProviderCount)
	}
	if len(entry.SeenByProviders) != 2 {
		t.Errorf("seen_by_providers = %v, want [bing google]", entry.SeenByProviders)
	}
}

func TestDedupNeverGrowsResultCount(t *testing.T) {
	results := []Result{
		{URL: "https://a.com/1", Rank: 0, Provider: ProviderBing},
		{URL: "https://a.com/2", Rank: 1, Provider: ProviderBing},
		{URL: "https://a.com/1", Rank: 3, Provider: ProviderGoogle},
	}
	out := Dedup(results)
	if len(out) > len(results) {
		t.Fatalf("deduped count %d exceeds input count %d", len(out), len(results))
	}
	if len(out) != 2 {
		t.Errorf("expected 2 distinct canonical URLs, got %d", len(out))
	}
}

func TestSelectProviderDiscoveryDisabled(t *testing.T) {
	got := SelectProvider(SelectionInputs{DiscoveryEnabled: false})
	if got.Provider != ProviderNone {
		t.Errorf("expected none when discovery disabled, got %s", got.Provider)
	}
}

func TestSelectProviderDualPrefersPaid(t *testing.T) {
	got := SelectProvider(SelectionInputs{
		DiscoveryEnabled: true, MissingRequiredCount: 2, ConfiguredProvider: ProviderDual,
		HasBingCredentials: true,
	})
	if got.Provider != ProviderBing {
		t.Errorf("expected bing when credentials present, got %s", got.Provider)
	}
}

func TestSelectProviderDualFallsBackToFree(t *testing.T) {
	got := SelectProvider(SelectionInputs{
		DiscoveryEnabled: true, MissingRequiredCount: 2, ConfiguredProvider: ProviderDual,
	})
	if got.Provider != ProviderDuckDuckGo {
		t.Errorf("expected duckduckgo fallback, got %s", got.Provider)
	}
}

func TestSelectProviderRescueOnlyModeGatesGoogle(t *testing.T) {
	early := SelectProvider(SelectionInputs{
		DiscoveryEnabled: true, MissingRequiredCount: 1, ConfiguredProvider: ProviderDual,
		CSERescueOnlyMode: true, HasGoogleCredentials: true,
		RequiredSearchIteration: 1, CSERescueRequiredIteration: 3,
	})
	if early.Provider != ProviderDuckDuckGo {
		t.Errorf("expected free engine before rescue iteration threshold, got %s", early.Provider)
	}

	late := SelectProvider(SelectionInputs{
		DiscoveryEnabled: true, MissingRequiredCount: 1, ConfiguredProvider: ProviderDual,
		CSERescueOnlyMode: true, HasGoogleCredentials: true,
		RequiredSearchIteration: 3, CSERescueRequiredIteration: 3,
	})
	if late.Provider != ProviderGoogle {
		t.Errorf("expected google once rescue iteration threshold met, got %s", late.Provider)
	}
}
