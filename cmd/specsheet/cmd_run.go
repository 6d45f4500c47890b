package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/antigravity-dev/specsheet/pkg/artifact"
	"github.com/antigravity-dev/specsheet/pkg/consensus"
	"github.com/antigravity-dev/specsheet/pkg/extract"
	"github.com/antigravity-dev/specsheet/pkg/fetch"
	"github.com/antigravity-dev/specsheet/pkg/gates"
	"github.com/antigravity-dev/specsheet/pkg/learning"
	"github.com/antigravity-dev/specsheet/pkg/model"
	"github.com/antigravity-dev/specsheet/pkg/orchestrator"
	"github.com/antigravity-dev/specsheet/pkg/rulepack/loader"
)

// fsWriter adapts a plain output directory to artifact.Writer. The real
// deployment target is an object store (S3-compatible, per the teacher's
// storage adapter); local disk is the dry-run/test-bench equivalent.
type fsWriter struct {
	root string
}

func (w fsWriter) WriteObject(relativePath string, data []byte) error {
	full := filepath.Join(w.root, relativePath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

func runFlags(fs *flag.FlagSet) (helperRoot, category, productID, brand, modelName, sku, sourcesPath, outDir *string) {
	helperRoot = fs.String("helper-root", "helpers", "root directory holding per-category rule packs")
	category = fs.String("category", "", "category name")
	productID = fs.String("id", "", "product id")
	brand = fs.String("brand", "", "brand name")
	modelName = fs.String("model", "", "model name")
	sku = fs.String("sku", "", "sku")
	sourcesPath = fs.String("sources", "", "path to newline-delimited list of candidate source URLs")
	outDir = fs.String("out", "out", "output directory for the run's artifact set")
	return
}

func readSourceURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading sources file %s: %w", path, err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

func classifySource(rawURL string) model.Source {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	root := host
	if parts := strings.Split(host, "."); len(parts) >= 2 {
		root = strings.Join(parts[len(parts)-2:], ".")
	}
	return model.Source{
		URL:        rawURL,
		Host:       host,
		RootDomain: root,
		Tier:       model.TierUnkown,
		Role:       model.RoleOther,
	}
}

// runRound fetches every source once, extracts candidates, reconciles
// each target field via consensus, and runs the gate stack. It is the
// single-pass body both cmdRun and cmdRunUntilComplete iterate.
func runRound(ctx context.Context, logger *slog.Logger, category string, pack *loader.Pack, fetcher fetch.Fetcher, store *learning.Store, sources []model.Source, targetFields []string) (model.NormalizedRecord, gates.Result, error) {
	specs := make([]extract.FieldSpec, 0, len(pack.FieldRules))
	policies := make(map[string]consensus.FieldPolicy, len(pack.FieldRules))
	byKey := make(map[string]model.FieldRule, len(pack.FieldRules))
	for _, rule := range pack.FieldRules {
		byKey[rule.FieldKey] = rule
		spec := extract.FieldSpec{FieldKey: rule.FieldKey, DataType: rule.DataType}
		if rule.Contract != nil && rule.Contract.Range != nil {
			spec.RangeMin = rule.Contract.Range.Min
			spec.RangeMax = rule.Contract.Range.Max
		}
		specs = append(specs, spec)
		policies[rule.FieldKey] = consensus.FieldPolicy{
			Critical: rule.RequiredLevel == model.LevelCritical,
		}
	}
	extractor := extract.NewExtractor(specs)

	// Sources fetch concurrently, bounded by a worker limit — the same
	// bounded-fan-out shape the spec's fetch/LLM suspension points call
	// for — but each fetch's outcome is captured in-band rather than
	// propagated as a group error, so one failing source never cancels
	// the others still in flight.
	type fetchOutcome struct {
		page model.PageData
		err  error
	}
	outcomes := make([]fetchOutcome, len(sources))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for i, src := range sources {
		i, src := i, src
		group.Go(func() error {
			page, err := fetcher.Fetch(groupCtx, src, 30*time.Second)
			outcomes[i] = fetchOutcome{page: page, err: err}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return model.NormalizedRecord{}, gates.Result{}, err
	}

	var allCandidates []model.Candidate
	var sourcesSeen []artifact.SourceSeen
	sourceInfo := make([]consensus.SourceInfo, len(sources))

	for i, src := range sources {
		outcome := outcomes[i]
		status := "ok"
		if outcome.err != nil {
			status = "error"
			logger.Warn("fetch failed", "url", src.URL, "error", outcome.err)
			if store != nil {
				_ = store.RecordHostAttempt(src.Host, 0, 0)
			}
			sourcesSeen = append(sourcesSeen, artifact.SourceSeen{URL: src.URL, Host: src.Host, Role: string(src.Role), Outcome: status})
			continue
		}
		found := extractor.Extract(outcome.page, i)
		if store != nil {
			_ = store.RecordHostAttempt(src.Host, len(found), len(found))
		}
		allCandidates = append(allCandidates, found...)
		sourceInfo[i] = consensus.SourceInfo{Approved: src.ApprovedDomain, Tier: src.Tier, URL: src.URL}
		sourcesSeen = append(sourcesSeen, artifact.SourceSeen{
			URL: src.URL, Host: src.Host, Tier: string(src.Tier), Role: string(src.Role),
			Status: outcome.page.Status, Outcome: status,
		})
	}

	allCandidates = extract.Dedup(allCandidates)
	byField := make(map[string][]model.Candidate)
	for _, c := range allCandidates {
		byField[c.Field] = append(byField[c.Field], c)
	}

	fields := make(map[string]string)
	provenance := make(map[string]model.FieldProvenance)
	var missingRequired, criticalBelowTarget []string
	var anchorConflicts []gates.AnchorComparison
	totalConfidence := 0.0
	confidenceCount := 0

	fieldKeys := targetFields
	if len(fieldKeys) == 0 {
		fieldKeys = make([]string, 0, len(pack.FieldRules))
		for _, r := range pack.FieldRules {
			fieldKeys = append(fieldKeys, r.FieldKey)
		}
	}
	sort.Strings(fieldKeys)

	for _, key := range fieldKeys {
		rule := byKey[key]
		provResult, _, notes := consensus.Reconcile(consensus.Input{
			Field:      key,
			Candidates: byField[key],
			Policy:     policies[key],
			Sources:    sourceInfo,
		})
		provenance[key] = provResult
		if provResult.Value != "" && provResult.Value != "unk" {
			fields[key] = provResult.Value
			totalConfidence += provResult.Confidence
			confidenceCount++
		} else if rule.RequiredLevel == model.LevelCritical || rule.RequiredLevel == model.LevelRequired {
			missingRequired = append(missingRequired, key)
		}
		if rule.RequiredLevel == model.LevelCritical && !provResult.MeetsPassTarget {
			criticalBelowTarget = append(criticalBelowTarget, key)
		}
		for _, n := range notes {
			logger.Debug("consensus note", "field", key, "note", n)
		}
	}

	confidence := 0.0
	if confidenceCount > 0 {
		confidence = totalConfidence / float64(confidenceCount)
	}
	completeness := 0.0
	if len(fieldKeys) > 0 {
		completeness = float64(len(fields)) / float64(len(fieldKeys))
	}

	gateResult := gates.Run(gates.Input{
		IdentityCertainty:         1.0,
		AnchorConflicts:           anchorConflicts,
		CompletenessRequired:      completeness,
		TargetCompleteness:        0.8,
		Confidence:                confidence,
		TargetConfidence:          0.6,
		CriticalFieldsBelowTarget: criticalBelowTarget,
	})

	approved := 0
	for _, s := range sources {
		if s.ApprovedDomain {
			approved++
		}
	}

	record := model.NormalizedRecord{
		Category: category,
		Fields:   fields,
		Quality: model.Quality{
			Validated:            gateResult.Validated,
			Confidence:           confidence,
			CompletenessRequired: completeness,
			CoverageOverall:      completeness,
		},
		SourceSummary: model.SourceSummary{
			TotalSources:    len(sources),
			IdentityMatched: len(sources),
			ApprovedSources: approved,
		},
	}

	if err := writeRunArtifacts(record, provenance, byField, missingRequired, criticalBelowTarget, gateResult, sourcesSeen, fieldKeys); err != nil {
		logger.Warn("artifact write failed", "error", err)
	}

	return record, gateResult, nil
}

var lastRunArtifacts = struct {
	out artifact.RunOutput
}{}

func writeRunArtifacts(record model.NormalizedRecord, provenance map[string]model.FieldProvenance, byField map[string][]model.Candidate, missingRequired, criticalBelowTarget []string, gateResult gates.Result, sourcesSeen []artifact.SourceSeen, fieldOrder []string) error {
	candidates := make(map[string][]model.Candidate, len(byField))
	for k, v := range byField {
		candidates[k] = v
	}
	lastRunArtifacts.out = artifact.RunOutput{
		Record:      record,
		Provenance:  provenance,
		Candidates:  candidates,
		SourcesSeen: sourcesSeen,
		FieldOrder:  fieldOrder,
		Summary: artifact.Summary{
			MissingRequiredFields:         missingRequired,
			CriticalFieldsBelowPassTarget: criticalBelowTarget,
			Confidence:                    record.Quality.Confidence,
			Validated:                     gateResult.Validated,
			ValidatedReason:               string(gateResult.ValidatedReason),
			SourcesIdentityMatched:        record.SourceSummary.IdentityMatched,
		},
	}
	return nil
}

func cmdRun(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	helperRoot, category, productID, brand, modelName, sku, sourcesPath, outDir := runFlags(fs)
	dbPath := fs.String("learning-db", "learning.db", "path to the host/key-path learning store")
	fs.Parse(args)

	if *category == "" || *sourcesPath == "" {
		return fmt.Errorf("run: -category and -sources are required")
	}
	pack, err := loader.Load(*helperRoot, *category)
	if err != nil {
		return err
	}
	urls, err := readSourceURLs(*sourcesPath)
	if err != nil {
		return err
	}
	sources := make([]model.Source, 0, len(urls))
	for _, u := range urls {
		sources = append(sources, classifySource(u))
	}

	store, err := learning.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("run: opening learning store: %w", err)
	}
	defer store.Close()

	fetcher := fetch.NewHTTPFetcher("specsheet-bot/1.0")
	record, gateResult, err := runRound(ctx, logger, *category, pack, fetcher, store, sources, nil)
	if err != nil {
		return err
	}
	record.ID = *productID
	record.Brand = *brand
	record.Model = *modelName
	record.SKU = *sku

	lastRunArtifacts.out.Record = record
	if err := artifact.WriteAll(fsWriter{root: *outDir}, lastRunArtifacts.out); err != nil {
		return fmt.Errorf("run: writing artifacts: %w", err)
	}
	logger.Info("run complete", "id", record.ID, "validated", gateResult.Validated, "reason", gateResult.ValidatedReason)
	return nil
}

func cmdRunUntilComplete(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run-until-complete", flag.ExitOnError)
	helperRoot, category, productID, brand, modelName, sku, sourcesPath, outDir := runFlags(fs)
	dbPath := fs.String("learning-db", "learning.db", "path to the host/key-path learning store")
	maxRounds := fs.Int("max-rounds", 5, "maximum reconciliation rounds before giving up")
	fs.Parse(args)

	if *category == "" || *sourcesPath == "" {
		return fmt.Errorf("run-until-complete: -category and -sources are required")
	}
	pack, err := loader.Load(*helperRoot, *category)
	if err != nil {
		return err
	}
	urls, err := readSourceURLs(*sourcesPath)
	if err != nil {
		return err
	}
	sources := make([]model.Source, 0, len(urls))
	for _, u := range urls {
		sources = append(sources, classifySource(u))
	}

	store, err := learning.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("run-until-complete: opening learning store: %w", err)
	}
	defer store.Close()

	var rules []orchestrator.FieldRuleInfo
	for _, r := range pack.FieldRules {
		rules = append(rules, orchestrator.FieldRuleInfo{
			FieldKey:      r.FieldKey,
			RequiredLevel: string(r.RequiredLevel),
			Effort:        r.Effort,
			UnknownReason: r.UnknownReasonDefault,
		})
	}

	cfg := orchestrator.Config{MaxRounds: *maxRounds}
	state := orchestrator.NewState()
	fetcher := fetch.NewHTTPFetcher("specsheet-bot/1.0")

	var record model.NormalizedRecord
	var gateResult gates.Result
	var prevSummary *orchestrator.RoundSummary

	for roundIndex := 0; roundIndex < *maxRounds; roundIndex++ {
		roundCfg := orchestrator.DeriveRoundConfig(cfg, roundIndex, prevSummary, rules)
		record, gateResult, err = runRound(ctx, logger, *category, pack, fetcher, store, sources, roundCfg.TargetFields)
		if err != nil {
			return err
		}
		summary := orchestrator.RoundSummary{
			MissingRequiredFields:         lastRunArtifacts.out.Summary.MissingRequiredFields,
			CriticalFieldsBelowPassTarget: lastRunArtifacts.out.Summary.CriticalFieldsBelowPassTarget,
			Confidence:                    record.Quality.Confidence,
			Validated:                     gateResult.Validated,
			SourcesIdentityMatched:        record.SourceSummary.IdentityMatched,
			IdentityCertainty:             1.0,
		}
		var stop orchestrator.StopCondition
		state, stop = orchestrator.Step(cfg, state, roundIndex, summary, false, 0.5)
		logger.Info("round complete", "round", roundIndex, "validated", gateResult.Validated, "stop", stop)
		prevSummary = &summary
		if stop != "" {
			break
		}
	}

	record.ID = *productID
	record.Brand = *brand
	record.Model = *modelName
	record.SKU = *sku

	lastRunArtifacts.out.Record = record
	if err := artifact.WriteAll(fsWriter{root: *outDir}, lastRunArtifacts.out); err != nil {
		return fmt.Errorf("run-until-complete: writing artifacts: %w", err)
	}
	logger.Info("run-until-complete finished", "id", record.ID, "validated", gateResult.Validated, "reason", gateResult.ValidatedReason)
	return nil
}
