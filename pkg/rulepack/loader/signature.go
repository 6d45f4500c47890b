package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/antigravity-dev/specsheet/pkg/rulepack"
)

// filesystemSignature concatenates {mtime, size} of every generated JSON
// artifact plus a directory signature of component_db/ and
// _overrides/components/, so any change to inputs that feed a Load
// invalidates the cache without re-parsing the pack itself.
func filesystemSignature(paths rulepack.Paths) (string, error) {
	sig := ""

	artifacts := []string{
		rulepack.FileFieldRules, rulepack.FileUIFieldCatalog, rulepack.FileKnownValues,
		rulepack.FileParseTemplates, rulepack.FileCrossValidationRules, rulepack.FileFieldGroups,
		rulepack.FileKeyMigrations, rulepack.FileManifest,
	}
	for _, name := range artifacts {
		s, err := fileSignature(filepath.Join(paths.GeneratedDir(), name))
		if err != nil {
			return "", err
		}
		sig += s
	}

	for _, dir := range []string{paths.ComponentDBDir(), paths.OverridesDir()} {
		s, err := dirSignature(dir)
		if err != nil {
			return "", err
		}
		sig += s
	}

	return sig, nil
}

func fileSignature(path string) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "absent;", nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d@%d;", filepath.Base(path), info.Size(), info.ModTime().UnixNano()), nil
}

// dirSignature concatenates the sorted {name, mtime, size} triples of every
// file directly inside dir. A missing directory signs as empty, since an
// absent component_db/ or _overrides/components/ is a valid pack state.
func dirSignature(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	sig := ""
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return "", err
		}
		sig += fmt.Sprintf("%s:%d@%d;", name, info.Size(), info.ModTime().UnixNano())
	}
	return sig, nil
}
