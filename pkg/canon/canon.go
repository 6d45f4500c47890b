// Package canon implements the canonical JSON form used across the
// rule-pack compiler: keys sorted lexicographically, two-space indent,
// a trailing newline, and a volatile-key-stripped semantic form used for
// manifest hashing.
//
// No third-party canonical-JSON library appears anywhere in the reference
// corpus; this is implemented directly on encoding/json + sort, which is
// the smallest correct tool for a problem the corpus never delegates.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// VolatileKeys are stripped before hashing so that re-compiling the same
// logical inputs produces the same manifest hash even though timestamps
// differ.
var VolatileKeys = map[string]bool{
	"generated_at": true,
	"compiled_at":  true,
	"created_at":   true,
	"version_id":   true,
}

// Marshal renders v as canonical JSON: object keys sorted, two-space
// indent, single trailing newline.
func Marshal(v any) ([]byte, error) {
	normalized, err := normalize(v, false)
	if err != nil {
		return nil, err
	}
	return encode(normalized)
}

// SemanticForm renders v as canonical JSON with volatile keys removed,
// the form used for manifest hashing.
func SemanticForm(v any) ([]byte, error) {
	normalized, err := normalize(v, true)
	if err != nil {
		return nil, err
	}
	return encode(normalized)
}

// SHA256Hex returns the lowercase hex sha256 of the semantic form of v.
func SHA256Hex(v any) (string, error) {
	b, err := SemanticForm(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// SHA256HexBytes returns the lowercase hex sha256 of raw bytes, used for
// non-JSON artifacts that are hashed byte-for-byte.
func SHA256HexBytes(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

// normalize round-trips v through JSON so that map keys sort deterministically
// and, when stripVolatile is set, removes any key in VolatileKeys recursively.
func normalize(v any, stripVolatile bool) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return stripAndSort(generic, stripVolatile), nil
}

func stripAndSort(v any, stripVolatile bool) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			if stripVolatile && VolatileKeys[k] {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			out[k] = stripAndSort(val[k], stripVolatile)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = stripAndSort(e, stripVolatile)
		}
		return out
	default:
		return val
	}
}
