// Command validate performs end-to-end integrity checks on a model bundle,
// a reference dataset, and a sample request. It loads everything through the
// service's own packages, scores the request, and verifies the response
// against the scoring invariants.
//
// Usage:
//
//	go run ./cmd/validate -data-dir data
//	go run ./cmd/validate -bundle models/congestion.json -data-dir data -request data/sample_request.json
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/couchcryptid/parking-recommender/internal/congestion"
	"github.com/couchcryptid/parking-recommender/internal/domain"
	"github.com/couchcryptid/parking-recommender/internal/model"
	"github.com/couchcryptid/parking-recommender/internal/observability"
	"github.com/couchcryptid/parking-recommender/internal/recommend"
	"github.com/couchcryptid/parking-recommender/internal/reference"
	"github.com/couchcryptid/parking-recommender/internal/scoring"
	"github.com/jonboulle/clockwork"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dataDir := flag.String("data-dir", "data", "directory containing reference JSON files")
	bundlePath := flag.String("bundle", "", "model bundle path (default <data-dir>/bundle.json)")
	requestPath := flag.String("request", "", "sample request path (default <data-dir>/sample_request.json)")
	flag.Parse()

	if *bundlePath == "" {
		*bundlePath = filepath.Join(*dataDir, "bundle.json")
	}
	if *requestPath == "" {
		*requestPath = filepath.Join(*dataDir, "sample_request.json")
	}
	os.Exit(run(*dataDir, *bundlePath, *requestPath))
}

func run(dataDir, bundlePath, requestPath string) int {
	// Fixed clock matching genmock.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.April, 29, 0, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	fmt.Println("=== Parking Recommender Integrity Validation ===")
	fmt.Println()

	bundle, err := model.LoadBundle(bundlePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load bundle: %v\n", err)
		return 1
	}
	ctx := context.Background()
	ref, err := reference.Load(ctx, reference.FileSource{Dir: dataDir})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load reference data: %v\n", err)
		return 1
	}
	data, err := os.ReadFile(requestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read request: %v\n", err)
		return 1
	}
	req, err := domain.ParseRequest(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse request: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	features := congestion.NewFeatureBuilder(ref.History, bundle)
	forecaster := congestion.NewModelForecaster(features, model.NewLinear(bundle), metrics)
	resolver := congestion.NewResolver(reference.NewMembershipRouter(ref.Realtime), forecaster, time.Second, logger, metrics)
	rec, err := recommend.New(ref, resolver, 4, logger, metrics).Recommend(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: recommend: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateReference(ref),
		validateFeatures(ref, features),
		validateResolution(rec),
		validateScores(req, rec),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Bundle %s; facilities: %d legacy, %d realtime; history: %d facilities, %d slots; candidates: %d\n",
		bundle.Version, ref.Legacy.Len(), ref.Realtime.Len(), ref.History.Facilities(), ref.History.Slots(), len(req.Candidates))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phases ──

// validateReference checks that every facility resolved to a usable tariff.
func validateReference(ref *reference.Context) *phase {
	p := &phase{name: "Reference tables"}
	fmt.Println("Phase 1: Reference tables")

	for _, table := range []*reference.TariffTable{ref.Legacy, ref.Realtime} {
		if table.Len() == 0 {
			p.errorf("%s table is empty", table.Registry())
		}
	}
	if ref.History.Slots() == 0 {
		p.errorf("occupancy history has no slots")
	}
	return p
}

// validateFeatures builds a feature vector for every legacy facility with
// history at noon on Monday.
func validateFeatures(ref *reference.Context, features *congestion.FeatureBuilder) *phase {
	p := &phase{name: "Feature construction"}
	fmt.Println("Phase 2: Feature construction")

	if ref.History.Facilities() == 0 {
		p.errorf("no facilities with history")
	}
	built := 0
	for _, id := range ref.Legacy.IDs() {
		if _, ok := ref.History.FacilityAverage(id); !ok {
			continue
		}
		v, err := features.Build(id, 0, 12)
		if err != nil {
			p.errorf("%s: %v", id, err)
			continue
		}
		if len(v.Columns) != len(v.Values) {
			p.errorf("%s: %d columns but %d values", id, len(v.Columns), len(v.Values))
		}
		built++
	}
	fmt.Printf("  built %d feature vectors\n", built)
	return p
}

// validateResolution checks each candidate's congestion source.
func validateResolution(rec *recommend.Recommendation) *phase {
	p := &phase{name: "Congestion resolution"}
	fmt.Println("Phase 3: Congestion resolution")

	counts := map[congestion.Source]int{}
	for _, o := range rec.Outcomes {
		res := o.Resolution
		counts[res.Source]++
		if math.IsNaN(res.Congestion) {
			p.errorf("%s: congestion is NaN", o.Candidate.ID)
		}
		if res.Source == congestion.SourceFallback && res.Congestion != congestion.WorstCaseCongestion {
			p.errorf("%s: fallback congestion %.2f, want %.0f", o.Candidate.ID, res.Congestion, congestion.WorstCaseCongestion)
		}
		if o.Known && res.Source == congestion.SourceFallback {
			p.errorf("%s: known facility fell back (%s)", o.Candidate.ID, res.Failure)
		}
	}
	fmt.Printf("  override=%d model=%d fallback=%d\n",
		counts[congestion.SourceOverride], counts[congestion.SourceModel], counts[congestion.SourceFallback])
	return p
}

// validateScores checks response shape and score bounds.
func validateScores(req domain.Request, rec *recommend.Recommendation) *phase {
	p := &phase{name: "Scenario scores"}
	fmt.Println("Phase 4: Scenario scores")

	rows := rec.Response()
	if len(rows) != len(req.Candidates) {
		p.errorf("response has %d rows for %d candidates", len(rows), len(req.Candidates))
		return p
	}
	for i, row := range rows {
		if row.ID != req.Candidates[i].ID {
			p.errorf("row %d is %q, want %q", i, row.ID, req.Candidates[i].ID)
		}
		for _, s := range scoring.Scenarios() {
			if v := row.Score(s); v < 0 || v > 100 || math.IsNaN(v) {
				p.errorf("%s %s score %.2f outside [0, 100]", row.ID, s, v)
			}
		}
	}

	ranking := rec.Ranking(rec.Scenario)
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	sorted := slices.Clone(ranking)
	slices.Sort(sorted)
	slices.Sort(ids)
	if !slices.Equal(sorted, ids) {
		p.errorf("ranking %v is not a permutation of the candidates", ranking)
	}
	for i := 1; i < len(ranking); i++ {
		prev, cur := rec.ByCandidate()[ranking[i-1]], rec.ByCandidate()[ranking[i]]
		if prev.Score(rec.Scenario) < cur.Score(rec.Scenario) {
			p.errorf("ranking out of order at %d: %s < %s", i, ranking[i-1], ranking[i])
		}
	}
	fmt.Printf("  %s ranking: %v\n", rec.Scenario, ranking)
	return p
}
