package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Component is one normalized row out of component_db/*.json: a
// manufacturer-confirmed identity plus whatever properties the category
// seed data carries (clock speeds, sensor models, weight, ...).
type Component struct {
	ComponentType string         `json:"component_type"`
	CanonicalName string         `json:"canonical_name"`
	Maker         string         `json:"maker"`
	Aliases       []string       `json:"aliases,omitempty"`
	Links         []string       `json:"links,omitempty"`
	Properties    map[string]any `json:"properties,omitempty"`
}

// token is the stable primary key "<canonical_name>::<maker>".
func (c Component) token() string {
	return c.CanonicalName + "::" + c.Maker
}

// ComponentDB is the normalized, in-memory component_db/ for one category.
type ComponentDB struct {
	// byToken is the primary index; every Component lives here exactly once.
	byToken map[string]*Component
	// byNameFirst maps a lowercased, whitespace-collapsed name or alias to
	// the first Component that claimed it (first-wins).
	byNameFirst map[string]*Component
	// byNameAll retains every claimant of a name/alias, for ambiguity
	// detection — a name with more than one claimant is ambiguous.
	byNameAll map[string][]*Component
}

func newComponentDB() *ComponentDB {
	return &ComponentDB{
		byToken:     map[string]*Component{},
		byNameFirst: map[string]*Component{},
		byNameAll:   map[string][]*Component{},
	}
}

// Lookup resolves a component by canonical name or alias, case- and
// whitespace-insensitively. Ambiguous returns whether more than one
// component claims the name.
func (db *ComponentDB) Lookup(name string) (comp *Component, ambiguous bool) {
	if db == nil {
		return nil, false
	}
	key := foldName(name)
	claimants := db.byNameAll[key]
	first := db.byNameFirst[key]
	return first, len(claimants) > 1
}

// ByToken resolves a component by its stable "<canonical_name>::<maker>" token.
func (db *ComponentDB) ByToken(token string) *Component {
	if db == nil {
		return nil
	}
	return db.byToken[token]
}

// All returns every component in the DB. It walks the token map, so the
// order is not defined.
func (db *ComponentDB) All() []*Component {
	if db == nil {
		return nil
	}
	out := make([]*Component, 0, len(db.byToken))
	for _, c := range db.byToken {
		out = append(out, c)
	}
	return out
}

func foldName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func (db *ComponentDB) insert(c *Component) {
	token := c.token()
	if _, exists := db.byToken[token]; exists {
		suffix := 2
		for {
			candidate := fmt.Sprintf("%s#%d", token, suffix)
			if _, taken := db.byToken[candidate]; !taken {
				token = candidate
				break
			}
			suffix++
		}
	}
	db.byToken[token] = c
	db.index(c)
}

func (db *ComponentDB) index(c *Component) {
	names := append([]string{c.CanonicalName}, c.Aliases...)
	for _, n := range names {
		if n == "" {
			continue
		}
		key := foldName(n)
		if _, ok := db.byNameFirst[key]; !ok {
			db.byNameFirst[key] = c
		}
		db.byNameAll[key] = append(db.byNameAll[key], c)
	}
}

// loadComponentDB reads every *.json file directly inside dir and builds a
// normalized ComponentDB. A missing directory yields an empty, non-nil DB,
// matching the compiler's "empty component_db is warn-worthy, not fatal"
// stance.
func loadComponentDB(dir string) (*ComponentDB, error) {
	db := newComponentDB()

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return db, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loader: reading component_db %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("loader: reading %s: %w", e.Name(), err)
		}

		var single Component
		if err := json.Unmarshal(raw, &single); err == nil && single.CanonicalName != "" {
			db.insert(&single)
			continue
		}

		var list []Component
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("loader: parsing component_db/%s: %w", e.Name(), err)
		}
		for i := range list {
			db.insert(&list[i])
		}
	}

	return db, nil
}
