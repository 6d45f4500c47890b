package rulepack

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/antigravity-dev/specsheet/pkg/canon"
	"github.com/antigravity-dev/specsheet/pkg/model"
)

// buildManifest enumerates every non-manifest file already written under
// generatedDir, hashes each one's canonical semantic form (JSON files) or
// raw bytes (everything else), and returns the sorted manifest.
func buildManifest(generatedDir string) (model.Manifest, error) {
	var entries []model.ManifestEntry

	err := filepath.Walk(generatedDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(generatedDir, path)
		if err != nil {
			return err
		}
		if rel == FileManifest {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var sum string
		if strings.HasSuffix(path, ".json") {
			var generic any
			sum, err = hashJSONSemantic(raw, &generic)
			if err != nil {
				return err
			}
		} else {
			sum = canon.SHA256HexBytes(raw)
		}

		entries = append(entries, model.ManifestEntry{
			RelativePath: filepath.ToSlash(rel),
			SHA256:       sum,
			Bytes:        info.Size(),
		})
		return nil
	})
	if err != nil {
		return model.Manifest{}, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelativePath < entries[j].RelativePath })
	return model.Manifest{Algorithm: "sha256", Entries: entries}, nil
}

func hashJSONSemantic(raw []byte, into *any) (string, error) {
	if err := unmarshalJSON(raw, into); err != nil {
		// Non-JSON file with a .json extension: hash byte-for-byte.
		return canon.SHA256HexBytes(raw), nil
	}
	return canon.SHA256Hex(*into)
}
