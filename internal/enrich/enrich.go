// Package enrich resolves country reference facts for the codes a trade
// dataset mentions, combining a persistent cache with a live provider.
package enrich

import (
	"context"
	"sort"

	"tradeatlas/internal/model"
	"tradeatlas/internal/providers"
)

// Cache persists country facts between runs. Implementations must tolerate
// codes they have never seen.
type Cache interface {
	Get(ctx context.Context, codes []string) (map[string]model.CountryFact, error)
	Put(ctx context.Context, facts []model.CountryFact) error
}

// Result carries resolved facts plus run statistics for logging.
type Result struct {
	Facts      map[string]model.CountryFact
	Unresolved []string
	CacheHits  int
	Fetched    int
	// CacheWriteErr records a failed write-back of fresh facts. The facts
	// themselves are still usable for the run; callers decide whether to
	// warn or abort.
	CacheWriteErr error
}

// Codes lists every country code mentioned by the records, sorted. The world
// aggregate is a synthetic partner and is never enriched.
func Codes(records []model.TradeRecord) []string {
	seen := make(map[string]struct{})
	for _, record := range records {
		seen[record.ReporterISO3] = struct{}{}
		seen[record.PartnerISO3] = struct{}{}
	}
	delete(seen, model.WorldISO3)

	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Resolve gathers facts for codes, consulting the cache first and the
// provider for the remainder. A nil cache disables caching; a nil provider
// restricts the run to cached facts. A provider error is returned alongside
// the usable partial result so callers can degrade instead of aborting.
func Resolve(ctx context.Context, provider providers.ReferenceProvider, cache Cache, codes []string) (Result, error) {
	result := Result{Facts: make(map[string]model.CountryFact)}

	if cache != nil {
		cached, err := cache.Get(ctx, codes)
		if err != nil {
			return result, err
		}
		for code, fact := range cached {
			result.Facts[code] = fact
		}
		result.CacheHits = len(cached)
	}

	pending := make([]string, 0, len(codes))
	for _, code := range codes {
		if _, ok := result.Facts[code]; !ok {
			pending = append(pending, code)
		}
	}

	if provider == nil || len(pending) == 0 {
		result.Unresolved = pending
		return result, nil
	}

	fetched, err := provider.FetchFacts(ctx, pending)
	for code, fact := range fetched.Facts {
		result.Facts[code] = fact
	}
	result.Fetched = len(fetched.Facts)

	if cache != nil && len(fetched.Facts) > 0 {
		fresh := make([]model.CountryFact, 0, len(fetched.Facts))
		for _, fact := range fetched.Facts {
			fresh = append(fresh, fact)
		}
		result.CacheWriteErr = cache.Put(ctx, fresh)
	}

	for _, code := range pending {
		if _, ok := result.Facts[code]; !ok {
			result.Unresolved = append(result.Unresolved, code)
		}
	}
	sort.Strings(result.Unresolved)
	return result, err
}
