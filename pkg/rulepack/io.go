package rulepack

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/antigravity-dev/specsheet/pkg/canon"
)

func unmarshalJSON(raw []byte, into any) error {
	return json.Unmarshal(raw, into)
}

// writeCanonicalJSON renders v as canonical JSON and writes it to path,
// creating parent directories as needed.
func writeCanonicalJSON(path string, v any) error {
	out, err := canon.Marshal(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func readJSONFile(path string, into any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}
