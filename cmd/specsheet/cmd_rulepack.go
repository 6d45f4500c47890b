package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/antigravity-dev/specsheet/pkg/errtax"
	"github.com/antigravity-dev/specsheet/pkg/model"
	"github.com/antigravity-dev/specsheet/pkg/rulepack"
	"github.com/antigravity-dev/specsheet/pkg/rulepack/loader"
	"github.com/antigravity-dev/specsheet/pkg/rulepack/schema"
)

// seedFile is the on-disk shape of the already-parsed workbook input the
// external workbook parser (spec.md §1, out of scope here) hands the
// compiler. The CLI's job is only to read it and call rulepack.Compiler.
type seedFile struct {
	Rows                  []rulepack.WorkbookRow           `json:"rows"`
	KnownValues           map[string][]string              `json:"known_values"`
	UIFieldCatalog        map[string]rulepack.UICatalogEntry `json:"ui_field_catalog"`
	PreviousKeyMigrations *model.KeyMigrations              `json:"previous_key_migrations,omitempty"`
}

func readSeedFile(path string) (rulepack.SourceInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return rulepack.SourceInput{}, fmt.Errorf("reading seed file %s: %w", path, err)
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return rulepack.SourceInput{}, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return rulepack.SourceInput{
		Rows:                  seed.Rows,
		KnownValues:           seed.KnownValues,
		UIFieldCatalog:        seed.UIFieldCatalog,
		PreviousKeyMigrations: seed.PreviousKeyMigrations,
	}, nil
}

func categoryFlags(fs *flag.FlagSet) (helperRoot, category, seed *string) {
	helperRoot = fs.String("helper-root", "helpers", "root directory holding per-category rule packs")
	category = fs.String("category", "", "category name")
	seed = fs.String("seed", "", "path to the seed JSON (rows/known_values/ui_field_catalog)")
	return
}

func schemaRegistry() *schema.Registry {
	return schema.NewRegistry(filepath.Join("categories", "_shared"))
}

func cmdCompile(_ context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	helperRoot, category, seedPath := categoryFlags(fs)
	dryRun := fs.Bool("dry-run", false, "stage and diff without writing")
	fs.Parse(args)

	if *category == "" || *seedPath == "" {
		return fmt.Errorf("compile: -category and -seed are required")
	}
	input, err := readSeedFile(*seedPath)
	if err != nil {
		return err
	}
	paths := rulepack.Paths{HelperRoot: *helperRoot, Category: *category}
	report, err := (rulepack.Compiler{}).Compile(paths, input, *dryRun)
	if err != nil {
		return errtax.Wrap(errtax.ClassMissingOrInvalid, "compile failed", err)
	}
	logger.Info("compile complete", "category", *category, "dry_run", *dryRun,
		"added", len(report.Added), "removed", len(report.Removed), "modified", len(report.Modified))
	return json.NewEncoder(os.Stdout).Encode(struct {
		errtax.Envelope
		rulepack.CompileReport
	}{errtax.Success(), report})
}

func cmdValidate(_ context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	helperRoot, category, _ := categoryFlags(fs)
	fs.Parse(args)

	if *category == "" {
		return fmt.Errorf("validate: -category is required")
	}
	paths := rulepack.Paths{HelperRoot: *helperRoot, Category: *category}
	report := rulepack.Validate(paths, schemaRegistry())

	var envelope errtax.Envelope
	if report.OK() {
		envelope = errtax.Success()
	} else {
		errs := make([]error, 0, len(report.Errors))
		for _, e := range report.Errors {
			errs = append(errs, errtax.New(errtax.ClassSchemaValidationFailed, e))
		}
		envelope = errtax.Failed(errs...)
	}
	if err := json.NewEncoder(os.Stdout).Encode(struct {
		errtax.Envelope
		Report rulepack.ValidationReport `json:"report"`
	}{envelope, report}); err != nil {
		return err
	}
	if !report.OK() {
		logger.Error("validation failed", "category", *category, "errors", len(report.Errors))
		return fmt.Errorf("validate: %d error(s)", len(report.Errors))
	}
	logger.Info("validation passed", "category", *category, "warnings", len(report.Warnings))
	return nil
}

func cmdRulesDiff(_ context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("rules-diff", flag.ExitOnError)
	helperRoot, category, seedPath := categoryFlags(fs)
	fs.Parse(args)

	if *category == "" || *seedPath == "" {
		return fmt.Errorf("rules-diff: -category and -seed are required")
	}
	input, err := readSeedFile(*seedPath)
	if err != nil {
		return err
	}
	paths := rulepack.Paths{HelperRoot: *helperRoot, Category: *category}
	report, class, err := (rulepack.Compiler{}).RulesDiff(paths, input)
	if err != nil {
		return err
	}
	logger.Info("rules-diff complete", "category", *category, "class", class,
		"added", len(report.Added), "removed", len(report.Removed), "modified", len(report.Modified))
	return json.NewEncoder(os.Stdout).Encode(struct {
		rulepack.CompileReport
		BreakingClass rulepack.BreakingClass `json:"breaking_class"`
	}{report, class})
}

func cmdWatchCompile(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("watch-compile", flag.ExitOnError)
	helperRoot, category, seedPath := categoryFlags(fs)
	debounce := fs.Duration("debounce", 500*time.Millisecond, "debounce window after a change")
	maxEvents := fs.Int("max-events", 0, "stop after this many compile events (0 = unbounded)")
	watchSeconds := fs.Int("watch-seconds", 0, "stop after this many seconds (0 = unbounded)")
	fs.Parse(args)

	if *category == "" || *seedPath == "" {
		return fmt.Errorf("watch-compile: -category and -seed are required")
	}
	paths := rulepack.Paths{HelperRoot: *helperRoot, Category: *category}
	inputFn := func() (rulepack.SourceInput, error) { return readSeedFile(*seedPath) }

	events := make(chan rulepack.CompileEvent, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			logger.Info("compile event", "reason", ev.Reason, "category", *category)
		}
	}()

	reason, err := (rulepack.Compiler{}).WatchCompile(paths, inputFn, *debounce, *maxEvents, *watchSeconds, logger, events)
	close(events)
	<-done
	if err != nil {
		return err
	}
	logger.Info("watch-compile stopped", "reason", reason)
	return nil
}

func cmdInitCategory(_ context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("init-category", flag.ExitOnError)
	helperRoot, category, _ := categoryFlags(fs)
	fs.Parse(args)

	if *category == "" {
		return fmt.Errorf("init-category: -category is required")
	}
	paths := rulepack.Paths{HelperRoot: *helperRoot, Category: *category}
	for _, dir := range []string{
		paths.SourceDir(), paths.ControlPlaneDir(), paths.GeneratedDir(),
		paths.OverridesDir(), paths.SuggestionsDir(), paths.ComponentDBDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("init-category: %w", err)
		}
	}
	logger.Info("category scaffold created", "category", *category, "root", paths.CategoryRoot())
	return nil
}

func cmdListFields(_ context.Context, _ *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("list-fields", flag.ExitOnError)
	helperRoot, category, _ := categoryFlags(fs)
	fs.Parse(args)

	if *category == "" {
		return fmt.Errorf("list-fields: -category is required")
	}
	pack, err := loader.Load(*helperRoot, *category)
	if err != nil {
		return err
	}
	for _, f := range pack.FieldRules {
		fmt.Printf("%s\t%s\t%s\t%s\n", f.FieldKey, f.DisplayName, f.RequiredLevel, f.DataType)
	}
	return nil
}

func cmdFieldReport(_ context.Context, _ *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("field-report", flag.ExitOnError)
	helperRoot, category, _ := categoryFlags(fs)
	fieldKey := fs.String("field", "", "field key to report on")
	fs.Parse(args)

	if *category == "" || *fieldKey == "" {
		return fmt.Errorf("field-report: -category and -field are required")
	}
	pack, err := loader.Load(*helperRoot, *category)
	if err != nil {
		return err
	}
	for _, f := range pack.FieldRules {
		if f.FieldKey == *fieldKey {
			return json.NewEncoder(os.Stdout).Encode(f)
		}
	}
	return fmt.Errorf("field-report: field %q not found in category %q", *fieldKey, *category)
}
