package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

func TestDryRunFetcherReturnsFixture(t *testing.T) {
	f := NewDryRunFetcher(map[string]model.PageData{
		"https://maker.example/spec": {Status: 200, Title: "G Pro X Superlight", HTML: "<html></html>"},
	})
	pd, err := f.Fetch(context.Background(), model.Source{URL: "https://maker.example/spec"}, time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if pd.Title != "G Pro X Superlight" {
		t.Errorf("expected fixture title, got %q", pd.Title)
	}
	if pd.FinalURL != "https://maker.example/spec" {
		t.Errorf("expected FinalURL defaulted to source URL, got %q", pd.FinalURL)
	}
}

func TestDryRunFetcherFallsBackToDefault(t *testing.T) {
	f := NewDryRunFetcher(nil)
	pd, err := f.Fetch(context.Background(), model.Source{URL: "https://unseen.example/x"}, time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if pd.Status != 200 {
		t.Errorf("expected default status 200, got %d", pd.Status)
	}
}

func TestFuncFetcherAdaptsPlainFunction(t *testing.T) {
	called := false
	var f Fetcher = FuncFetcher(func(ctx context.Context, src model.Source, timeout time.Duration) (model.PageData, error) {
		called = true
		return model.PageData{Status: 200}, nil
	})
	if _, err := f.Fetch(context.Background(), model.Source{}, time.Second); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !called {
		t.Error("expected underlying function to be invoked")
	}
}

func TestHTTPFetcherReturnsStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a User-Agent header to be set")
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>spec page</body></html>"))
	}))
	defer server.Close()

	f := NewHTTPFetcher("")
	pd, err := f.Fetch(context.Background(), model.Source{URL: server.URL}, 5*time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if pd.Status != http.StatusOK {
		t.Errorf("expected status 200, got %d", pd.Status)
	}
	if pd.HTML == "" {
		t.Error("expected non-empty HTML body")
	}
}

func TestHTTPFetcherRespectsMaxBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1024))
	}))
	defer server.Close()

	f := NewHTTPFetcher("test-agent")
	f.MaxBytes = 16
	pd, err := f.Fetch(context.Background(), model.Source{URL: server.URL}, 5*time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(pd.HTML) != 16 {
		t.Errorf("expected body truncated to MaxBytes=16, got %d bytes", len(pd.HTML))
	}
}
