package canon

import (
	"encoding/json"
	"testing"
)

type sample struct {
	Zeta        string `json:"zeta"`
	Alpha       string `json:"alpha"`
	GeneratedAt string `json:"generated_at"`
}

func TestMarshalSortsKeys(t *testing.T) {
	s := sample{Zeta: "z", Alpha: "a", GeneratedAt: "2026-01-01"}
	out, err := Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	alphaIdx := indexOf(out, `"alpha"`)
	zetaIdx := indexOf(out, `"zeta"`)
	if alphaIdx < 0 || zetaIdx < 0 || alphaIdx > zetaIdx {
		t.Fatalf("expected alpha before zeta, got %s", out)
	}
}

func TestSemanticFormStripsVolatileKeys(t *testing.T) {
	s := sample{Zeta: "z", Alpha: "a", GeneratedAt: "2026-01-01"}
	out, err := SemanticForm(s)
	if err != nil {
		t.Fatalf("SemanticForm: %v", err)
	}
	if indexOf(out, "generated_at") >= 0 {
		t.Fatalf("expected generated_at stripped, got %s", out)
	}
}

func TestStableStringifyRoundTrip(t *testing.T) {
	s := map[string]any{"b": 1, "a": []any{3, 2, 1}, "generated_at": "x"}
	first, err := Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var reparsed any
	if err := json.Unmarshal(first, &reparsed); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	second, err := Marshal(reparsed)
	if err != nil {
		t.Fatalf("Marshal 2: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("stableStringify not idempotent:\n%s\nvs\n%s", first, second)
	}
}

func TestSHA256HexStableAcrossVolatileChanges(t *testing.T) {
	s1 := sample{Zeta: "z", Alpha: "a", GeneratedAt: "2026-01-01"}
	s2 := sample{Zeta: "z", Alpha: "a", GeneratedAt: "2099-12-31"}
	h1, err := SHA256Hex(s1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := SHA256Hex(s2)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical hash ignoring volatile key, got %s vs %s", h1, h2)
	}
}

func indexOf(b []byte, substr string) int {
	s := string(b)
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
