// Package resolve maps a free-text company name to a canonical Wikidata
// identifier. The search is a monotonic narrowing: each retry queries a
// stopword-filtered or prefix-trimmed version of the previous name, so the
// attempt loop is bounded and terminating by construction.
package resolve

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/klimatdata/disclosure-pipeline/internal/extract"
	"github.com/klimatdata/disclosure-pipeline/pkg/anthropic"
	"github.com/klimatdata/disclosure-pipeline/pkg/wikidata"
)

// maxSearchAttempts bounds the narrowing search loop.
const maxSearchAttempts = 4

// ErrNoEntityFound means the bounded search produced zero candidates.
// Fatal for the resolution job; nothing downstream is enqueued.
var ErrNoEntityFound = eris.New("resolve: no entity found")

// ErrCouldNotParseIdentity means the extraction service returned no usable
// identifier for the candidate list.
var ErrCouldNotParseIdentity = eris.New("resolve: could not parse identifier")

var qidRe = regexp.MustCompile(`^Q\d+$`)

// Resolver resolves company names against Wikidata with LLM disambiguation.
type Resolver struct {
	search        wikidata.Client
	extractor     *extract.Extractor
	maxCandidates int
}

// New creates a Resolver.
func New(search wikidata.Client, extractor *extract.Extractor, maxCandidates int) *Resolver {
	if maxCandidates <= 0 {
		maxCandidates = 10
	}
	return &Resolver{search: search, extractor: extractor, maxCandidates: maxCandidates}
}

// Resolve returns the canonical identifier for companyName. retryContext
// carries failure messages from prior attempts of the same logical task.
func (r *Resolver) Resolve(ctx context.Context, companyName string, retryContext []string) (string, error) {
	hits, err := r.searchNarrowing(ctx, companyName)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", eris.Wrapf(ErrNoEntityFound, "resolve: %q", companyName)
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	entities, err := r.search.GetEntities(ctx, ids)
	if err != nil {
		return "", eris.Wrap(err, "resolve: fetch entity details")
	}

	candidates := RankByEmissions(entities)
	if len(candidates) > r.maxCandidates {
		candidates = candidates[:r.maxCandidates]
	}
	if len(candidates) == 1 {
		return candidates[0].ID, nil
	}

	// Claims have served their ranking purpose; strip them to bound the
	// prompt before disambiguation.
	trimmed := make([]wikidata.Entity, len(candidates))
	for i, c := range candidates {
		trimmed[i] = c.WithoutClaims()
	}

	return r.disambiguate(ctx, companyName, trimmed, retryContext)
}

// searchNarrowing runs the bounded narrowing search:
//
//	attempt 1: the name as given
//	attempt 2: lowercased, insignificant tokens stripped
//	attempt 3+: last whitespace token dropped
func (r *Resolver) searchNarrowing(ctx context.Context, name string) ([]wikidata.SearchHit, error) {
	query := strings.TrimSpace(name)
	for attempt := 1; attempt <= maxSearchAttempts && query != ""; attempt++ {
		hits, err := r.search.Search(ctx, query)
		if err != nil {
			return nil, eris.Wrapf(err, "resolve: search attempt %d", attempt)
		}
		if len(hits) > 0 {
			zap.L().Debug("resolve: search hit",
				zap.String("name", name),
				zap.String("query", query),
				zap.Int("attempt", attempt),
				zap.Int("hits", len(hits)),
			)
			return hits, nil
		}

		if attempt == 1 {
			query = StripInsignificant(query)
		} else {
			query = DropLastToken(query)
		}
	}
	return nil, nil
}

// RankByEmissions sorts entities so that any candidate with a carbon
// footprint claim comes first, preserving relative order within each group.
func RankByEmissions(entities []wikidata.Entity) []wikidata.Entity {
	out := append([]wikidata.Entity(nil), entities...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].HasClaim(wikidata.CarbonFootprintProperty) &&
			!out[j].HasClaim(wikidata.CarbonFootprintProperty)
	})
	return out
}

const disambiguationSystem = "You identify which Wikidata entity matches a company name. Reply with JSON only."

// disambiguate asks the extraction service to pick the best candidate.
func (r *Resolver) disambiguate(ctx context.Context, companyName string, candidates []wikidata.Entity, retryContext []string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Company name: %s\n\nCandidates:\n", companyName)
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", c.ID, c.Label, c.Description)
	}
	b.WriteString("\nReturn {\"wikidataId\": \"<best matching id>\"} or {\"wikidataId\": null} if none match.")

	var out struct {
		WikidataID *string `json:"wikidataId"`
	}
	_, err := r.extractor.Extract(ctx, extract.Request{
		Schema:       "wikidata_selection",
		System:       disambiguationSystem,
		Turns:        []anthropic.Message{{Role: "user", Content: b.String()}},
		RetryContext: retryContext,
	}, &out)
	if err != nil {
		if extract.IsParseError(err) {
			return "", eris.Wrap(ErrCouldNotParseIdentity, err.Error())
		}
		return "", eris.Wrap(err, "resolve: disambiguation call")
	}

	if out.WikidataID == nil || !qidRe.MatchString(*out.WikidataID) {
		return "", eris.Wrapf(ErrCouldNotParseIdentity, "resolve: reply %v", out.WikidataID)
	}

	// The model must pick from the offered list, not invent an ID.
	for _, c := range candidates {
		if c.ID == *out.WikidataID {
			return c.ID, nil
		}
	}
	return "", eris.Wrapf(ErrCouldNotParseIdentity, "resolve: %s not among candidates", *out.WikidataID)
}
