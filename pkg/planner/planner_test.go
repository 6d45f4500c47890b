package planner

import (
	"strings"
	"testing"
	"time"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

func TestFrontierOrdersByApprovedHostTierRole(t *testing.T) {
	f := NewFrontier(nil)
	f.Add(model.Source{URL: "https://retailer.example/p", Host: "retailer.example", Tier: model.Tier3, Role: model.RoleRetailer, ApprovedDomain: true}, 0, 0)
	f.Add(model.Source{URL: "https://maker.example/spec", Host: "maker.example", Tier: model.Tier1, Role: model.RoleManufacturer, ApprovedDomain: true}, 0, 0)
	f.Add(model.Source{URL: "https://unknown.example/x", Host: "unknown.example", Tier: model.TierUnkown, Role: model.RoleOther, ApprovedDomain: false}, 0, 0)

	ordered := f.Ordered()
	if len(ordered) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(ordered))
	}
	if ordered[0].Source.Host != "maker.example" {
		t.Errorf("expected manufacturer tier-1 first, got %s", ordered[0].Source.Host)
	}
	if ordered[2].Source.Host != "unknown.example" {
		t.Errorf("expected unapproved unknown-tier host last, got %s", ordered[2].Source.Host)
	}
}

func TestFrontierDropsDeniedHosts(t *testing.T) {
	f := NewFrontier([]string{"banned.example"})
	added := f.Add(model.Source{URL: "https://banned.example/p", Host: "banned.example"}, 0, 0)
	if added {
		t.Fatal("expected denied host to be dropped")
	}
	if f.Len() != 0 {
		t.Errorf("expected empty frontier, got %d", f.Len())
	}
}

func TestFrontierDedupesByURL(t *testing.T) {
	f := NewFrontier(nil)
	f.Add(model.Source{URL: "https://a.example/p", Host: "a.example"}, 0, 0)
	added := f.Add(model.Source{URL: "https://a.example/p", Host: "a.example"}, 5, 5)
	if added {
		t.Fatal("expected duplicate URL to be dropped")
	}
	if f.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", f.Len())
	}
}

func TestFrontierTiesBreakByInsertionOrder(t *testing.T) {
	f := NewFrontier(nil)
	f.Add(model.Source{URL: "https://a.example/1", Host: "a.example"}, 0, 0)
	f.Add(model.Source{URL: "https://a.example/2", Host: "a.example"}, 0, 0)
	ordered := f.Ordered()
	if ordered[0].Source.URL != "https://a.example/1" || ordered[1].Source.URL != "https://a.example/2" {
		t.Errorf("expected insertion order preserved on tie, got %v", ordered)
	}
}

func TestClassifyFetchOutcomeIsTotal(t *testing.T) {
	cases := []struct {
		in   FetchResult
		want OutcomeClass
	}{
		{FetchResult{TimedOut: true}, OutcomeNetworkTimeout},
		{FetchResult{Status: 429}, OutcomeRateLimited},
		{FetchResult{Status: 403}, OutcomeBlocked},
		{FetchResult{Status: 401}, OutcomeLoginWall},
		{FetchResult{Status: 404}, OutcomeNotFound},
		{FetchResult{Status: 503}, OutcomeServerError},
		{FetchResult{Status: 400}, OutcomeFetchError},
		{FetchResult{Status: 200, Message: "please complete the captcha"}, OutcomeBotChallenge},
		{FetchResult{Status: 200, ContentType: "application/pdf", HTMLSize: 10}, OutcomeBadContent},
		{FetchResult{Status: 200, ContentType: "text/html", HTMLSize: 0}, OutcomeBadContent},
		{FetchResult{Status: 200, ContentType: "text/html", HTMLSize: 500}, OutcomeOK},
	}
	for _, c := range cases {
		got := ClassifyFetchOutcome(c.in)
		if got != c.want {
			t.Errorf("ClassifyFetchOutcome(%+v) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestBudgetBookBackoffWindowsByClass(t *testing.T) {
	bb := NewBudgetBook()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	bb.RecordOutcome("rl.example", OutcomeRateLimited, now)
	rl := bb.Snapshot("rl.example")
	if rl.NextRetryAt.Sub(now) < 15*time.Minute {
		t.Errorf("expected >=15min backoff for rate_limited, got %s", rl.NextRetryAt.Sub(now))
	}

	bb.RecordOutcome("blocked.example", OutcomeBlocked, now)
	bl := bb.Snapshot("blocked.example")
	if bl.NextRetryAt.Sub(now) < 30*time.Minute {
		t.Errorf("expected >=30min backoff for blocked, got %s", bl.NextRetryAt.Sub(now))
	}

	bb.RecordOutcome("timeout.example", OutcomeNetworkTimeout, now)
	to := bb.Snapshot("timeout.example")
	if to.NextRetryAt.Sub(now) < 6*time.Hour {
		t.Errorf("expected >=6h backoff for network_timeout, got %s", to.NextRetryAt.Sub(now))
	}
}

func TestBudgetBookNextRetryOnlyMovesForward(t *testing.T) {
	bb := NewBudgetBook()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	bb.RecordOutcome("h.example", OutcomeBlocked, now)
	first := bb.Snapshot("h.example").NextRetryAt

	earlier := now.Add(-time.Hour)
	bb.RecordOutcome("h.example", OutcomeRateLimited, earlier)
	second := bb.Snapshot("h.example").NextRetryAt

	if second.Before(first) {
		t.Errorf("next_retry_at moved backward: %s -> %s", first, second)
	}
}

func TestBudgetBookEligibleRespectsBackoffAndBlock(t *testing.T) {
	bb := NewBudgetBook()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if !bb.Eligible("fresh.example", now) {
		t.Error("expected untouched host to be eligible")
	}

	bb.RecordOutcome("backoff.example", OutcomeRateLimited, now)
	if bb.Eligible("backoff.example", now.Add(time.Minute)) {
		t.Error("expected host in backoff window to be ineligible")
	}
	if !bb.Eligible("backoff.example", now.Add(20*time.Minute)) {
		t.Error("expected host past backoff window to be eligible again")
	}

	bb.BlockHost("blocked.example")
	if bb.Eligible("blocked.example", now.Add(24*time.Hour)) {
		t.Error("expected permanently blocked host to stay ineligible")
	}
}

func TestBudgetBookScoreDecaysAndGrowsWithinCaps(t *testing.T) {
	bb := NewBudgetBook()
	now := time.Now()
	for i := 0; i < 50; i++ {
		bb.RecordOutcome("bad.example", OutcomeBlocked, now)
	}
	if bb.Snapshot("bad.example").Score < scoreFloor {
		t.Error("expected score floor to cap decay")
	}
	for i := 0; i < 50; i++ {
		bb.RecordOutcome("good.example", OutcomeOK, now)
	}
	if bb.Snapshot("good.example").Score > scoreCap {
		t.Error("expected score cap to bound growth")
	}
}

func TestDiscoverLinksFiltersByRootDomainAndPathHint(t *testing.T) {
	html := `<html><body>
		<a href="https://maker.example/specs/g-pro-x">specs</a>
		<a href="https://maker.example/about">about</a>
		<a href="https://other.example/specs/x">off-domain</a>
		<a href="https://sub.maker.example/support/faq">subdomain support</a>
	</body></html>`
	links, err := DiscoverLinks(html, "maker.example")
	if err != nil {
		t.Fatalf("DiscoverLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 matching links, got %d: %v", len(links), links)
	}
}

func TestParseSitemapExtractsLocURLs(t *testing.T) {
	xmlBody := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://maker.example/specs/a</loc></url>
  <url><loc>https://maker.example/specs/b</loc></url>
</urlset>`
	urls, err := ParseSitemap(strings.NewReader(xmlBody))
	if err != nil {
		t.Fatalf("ParseSitemap: %v", err)
	}
	if len(urls) != 2 || urls[0] != "https://maker.example/specs/a" {
		t.Errorf("unexpected sitemap urls: %v", urls)
	}
}
