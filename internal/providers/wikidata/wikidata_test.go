package wikidata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradeatlas/internal/model"
)

func testConfig(endpoint string) Config {
	return Config{
		EndpointURL: endpoint,
		MaxRetries:  2,
		RetryBase:   time.Millisecond,
		BatchSize:   50,
		Timeout:     2 * time.Second,
	}
}

func bindingsResponse(bindings []map[string]sparqlTerm) []byte {
	var payload sparqlResponse
	payload.Results.Bindings = bindings
	body, _ := json.Marshal(payload)
	return body
}

func fraBinding() map[string]sparqlTerm {
	return map[string]sparqlTerm{
		"isoCode":      {Type: "literal", Value: "FRA"},
		"countryLabel": {Type: "literal", Value: "France"},
		"capitalLabel": {Type: "literal", Value: "Paris"},
		"population":   {Type: "literal", Value: "68000000"},
		"lat":          {Type: "literal", Value: "46"},
		"lon":          {Type: "literal", Value: "2"},
	}
}

// dispatch answers the fact query with facts and every enrichment query with
// an empty result unless a per-marker override is set. Markers are substrings
// of the query text ("P2131", "P463", ...).
func dispatch(facts []map[string]sparqlTerm, overrides map[string][]map[string]sparqlTerm) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		for marker, bindings := range overrides {
			if strings.Contains(query, marker) {
				w.Write(bindingsResponse(bindings))
				return
			}
		}
		if strings.Contains(query, "capitalLabel") {
			w.Write(bindingsResponse(facts))
			return
		}
		w.Write(bindingsResponse(nil))
	}
}

func isFactQuery(r *http.Request) bool {
	return strings.Contains(r.URL.Query().Get("query"), "capitalLabel")
}

func TestFetchFactsPartialResolution(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		if isFactQuery(r) && (!strings.Contains(query, `"FRA"`) || !strings.Contains(query, `"XXX"`)) {
			t.Errorf("expected batched query with both codes, got %q", query)
		}
		dispatch([]map[string]sparqlTerm{fraBinding()}, nil)(w, r)
	}))
	defer server.Close()

	client := NewWithConfig(testConfig(server.URL))
	result, err := client.FetchFacts(context.Background(), []string{"fra", "XXX", "FRA"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	fact, ok := result.Facts["FRA"]
	if !ok {
		t.Fatal("expected FRA fact")
	}
	if fact.Label != "France" || fact.Capital != "Paris" {
		t.Fatalf("unexpected fact: %+v", fact)
	}
	if !fact.HasPopulation || fact.Population != 68000000 {
		t.Fatalf("unexpected population: %+v", fact)
	}
	if !fact.HasCoordinates || fact.Latitude != 46 || fact.Longitude != 2 {
		t.Fatalf("unexpected coordinates: %+v", fact)
	}
	if len(result.Unresolved) != 1 || result.Unresolved[0] != "XXX" {
		t.Fatalf("expected XXX unresolved, got %v", result.Unresolved)
	}
}

func TestFetchFactsMeasurementsAndMemberships(t *testing.T) {
	gdp := []map[string]sparqlTerm{
		{"isoCode": {Value: "FRA"}, "value": {Value: "2800000000000"}, "year": {Value: "2021"}},
		{"isoCode": {Value: "FRA"}, "value": {Value: "2900000000000"}, "year": {Value: "2022"}},
		{"isoCode": {Value: "FRA"}, "value": {Value: "9999"}, "year": {Value: "2022"}}, // duplicate year, ignored
	}
	hdi := []map[string]sparqlTerm{
		{"isoCode": {Value: "FRA"}, "value": {Value: "0.903"}, "year": {Value: "2021"}},
	}
	orgs := []map[string]sparqlTerm{
		{"isoCode": {Value: "FRA"}, "org": {Value: "http://www.wikidata.org/entity/Q458"}, "orgLabel": {Value: "European Union"}},
		{"isoCode": {Value: "FRA"}, "org": {Value: "http://www.wikidata.org/entity/Q99999999"}, "orgLabel": {Value: "Q99999999"}},
		{"isoCode": {Value: "FRA"}, "org": {Value: "http://www.wikidata.org/entity/Q458"}, "orgLabel": {Value: "European Union"}},
	}
	server := httptest.NewServer(dispatch([]map[string]sparqlTerm{fraBinding()}, map[string][]map[string]sparqlTerm{
		"P2131": gdp,
		"P1081": hdi,
		"P463":  orgs,
	}))
	defer server.Close()

	client := NewWithConfig(testConfig(server.URL))
	result, err := client.FetchFacts(context.Background(), []string{"FRA"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	fact := result.Facts["FRA"]

	wantMeasurements := []model.Measurement{
		{Kind: model.IndicatorGDP, Year: 2021, Value: 2800000000000},
		{Kind: model.IndicatorGDP, Year: 2022, Value: 2900000000000},
		{Kind: model.IndicatorHDI, Year: 2021, Value: 0.903},
	}
	if len(fact.Measurements) != len(wantMeasurements) {
		t.Fatalf("expected %d measurements, got %+v", len(wantMeasurements), fact.Measurements)
	}
	for i, want := range wantMeasurements {
		if fact.Measurements[i] != want {
			t.Fatalf("measurement %d: expected %+v, got %+v", i, want, fact.Measurements[i])
		}
	}

	if len(fact.Memberships) != 2 {
		t.Fatalf("expected 2 memberships, got %+v", fact.Memberships)
	}
	if fact.Memberships[0].ID != "Q458" || fact.Memberships[0].Label != "European Union" {
		t.Fatalf("unexpected membership: %+v", fact.Memberships[0])
	}
	// Label service fell back to the entity id; not a usable label.
	if fact.Memberships[1].ID != "Q99999999" || fact.Memberships[1].Label != "" {
		t.Fatalf("expected unlabeled membership, got %+v", fact.Memberships[1])
	}
}

func TestFetchFactsIndicatorFailureKeepsBaseFacts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("query"), "P2131") {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		dispatch([]map[string]sparqlTerm{fraBinding()}, nil)(w, r)
	}))
	defer server.Close()

	client := NewWithConfig(testConfig(server.URL))
	result, err := client.FetchFacts(context.Background(), []string{"FRA"})
	if err == nil {
		t.Fatal("expected degraded-run error")
	}
	fact, ok := result.Facts["FRA"]
	if !ok {
		t.Fatal("base facts must survive an enrichment query failure")
	}
	if fact.Label != "France" {
		t.Fatalf("unexpected fact: %+v", fact)
	}
	if len(fact.Measurements) != 0 {
		t.Fatalf("expected no measurements, got %+v", fact.Measurements)
	}
}

func TestFetchFactsSkipsQIDLabelFallback(t *testing.T) {
	binding := fraBinding()
	binding["countryLabel"] = sparqlTerm{Type: "literal", Value: "Q142"}
	server := httptest.NewServer(dispatch([]map[string]sparqlTerm{binding}, nil))
	defer server.Close()

	client := NewWithConfig(testConfig(server.URL))
	result, err := client.FetchFacts(context.Background(), []string{"FRA"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	fact := result.Facts["FRA"]
	if fact.Label != "" {
		t.Fatalf("entity-id label fallback must not become a country label, got %q", fact.Label)
	}
	if fact.Capital != "Paris" {
		t.Fatalf("other fields must still merge: %+v", fact)
	}
}

func TestFetchFactsRetriesServerErrors(t *testing.T) {
	factAttempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isFactQuery(r) {
			factAttempts++
			if factAttempts < 3 {
				http.Error(w, "overloaded", http.StatusInternalServerError)
				return
			}
		}
		dispatch([]map[string]sparqlTerm{fraBinding()}, nil)(w, r)
	}))
	defer server.Close()

	client := NewWithConfig(testConfig(server.URL))
	result, err := client.FetchFacts(context.Background(), []string{"FRA"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if factAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", factAttempts)
	}
	if _, ok := result.Facts["FRA"]; !ok {
		t.Fatal("expected FRA fact after retries")
	}
}

func TestRetryAfterReplacesBackoff(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		dispatch([]map[string]sparqlTerm{fraBinding()}, nil)(w, r)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RetryBase = 3 * time.Second
	client := NewWithConfig(cfg)

	start := time.Now()
	result, err := client.FetchFacts(context.Background(), []string{"FRA"})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, ok := result.Facts["FRA"]; !ok {
		t.Fatal("expected FRA fact after rate limit")
	}
	// Honoring Retry-After (1s) must not be followed by the 3s backoff.
	if elapsed >= 2500*time.Millisecond {
		t.Fatalf("expected only the Retry-After wait, took %v", elapsed)
	}
}

func TestFetchFactsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewWithConfig(testConfig(server.URL))
	result, err := client.FetchFacts(context.Background(), []string{"FRA", "DEU"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if len(result.Facts) != 0 {
		t.Fatalf("expected no facts, got %v", result.Facts)
	}
	if len(result.Unresolved) != 2 {
		t.Fatalf("expected both codes unresolved, got %v", result.Unresolved)
	}
}

func TestFetchFactsEmptyInput(t *testing.T) {
	client := NewWithConfig(testConfig("http://127.0.0.1:0"))
	result, err := client.FetchFacts(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected no error for empty input, got %v", err)
	}
	if len(result.Facts) != 0 || len(result.Unresolved) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestFetchFactsNoMatchesIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bindingsResponse(nil))
	}))
	defer server.Close()

	client := NewWithConfig(testConfig(server.URL))
	result, err := client.FetchFacts(context.Background(), []string{"XAA", "XBB"})
	if err != nil {
		t.Fatalf("unmatched codes must not be an error, got %v", err)
	}
	if len(result.Facts) != 0 {
		t.Fatalf("expected empty mapping, got %v", result.Facts)
	}
	if len(result.Unresolved) != 2 {
		t.Fatalf("expected both codes unresolved, got %v", result.Unresolved)
	}
}

func TestFetchFactsCachesPerRun(t *testing.T) {
	factQueries := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isFactQuery(r) {
			factQueries++
		}
		dispatch([]map[string]sparqlTerm{fraBinding()}, nil)(w, r)
	}))
	defer server.Close()

	client := NewWithConfig(testConfig(server.URL))
	for i := 0; i < 3; i++ {
		result, err := client.FetchFacts(context.Background(), []string{"FRA", "XXX"})
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if _, ok := result.Facts["FRA"]; !ok {
			t.Fatalf("fetch %d: missing FRA", i)
		}
		if len(result.Unresolved) != 1 {
			t.Fatalf("fetch %d: expected XXX unresolved, got %v", i, result.Unresolved)
		}
	}
	if factQueries != 1 {
		t.Fatalf("expected 1 fact query across repeat fetches, got %d", factQueries)
	}
}

func TestNewWithConfigDefaults(t *testing.T) {
	client := NewWithConfig(Config{})
	if client.config.EndpointURL != defaultEndpointURL {
		t.Fatalf("unexpected endpoint: %s", client.config.EndpointURL)
	}
	if client.config.MaxRetries != defaultMaxRetries {
		t.Fatalf("unexpected retries: %d", client.config.MaxRetries)
	}
	if client.config.BatchSize != defaultBatchSize {
		t.Fatalf("unexpected batch size: %d", client.config.BatchSize)
	}
}
