// Package wikidata resolves country reference facts from the Wikidata SPARQL
// endpoint.
package wikidata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"tradeatlas/internal/model"
	"tradeatlas/internal/providers"
)

const (
	defaultEndpointURL    = "https://query.wikidata.org/sparql"
	defaultTimeoutSeconds = 30
	defaultMaxRetries     = 3
	defaultRetryBase      = 500 * time.Millisecond
	defaultBatchSize      = 100
	defaultUserAgent      = "TradeAtlas/0.1"
)

// ErrUnavailable reports that the endpoint stayed unreachable after retries.
// The accompanying Result still carries everything resolved before the
// failure; callers degrade to minimal nodes instead of failing the run.
var ErrUnavailable = errors.New("wikidata: endpoint unavailable")

type Config struct {
	EndpointURL string
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	RetryBase   time.Duration
	BatchSize   int
}

type Client struct {
	config Config
	client *http.Client

	cache  map[string]model.CountryFact
	misses map[string]struct{}
}

func New() *Client {
	return NewWithConfig(ConfigFromEnv())
}

func NewWithConfig(cfg Config) *Client {
	if strings.TrimSpace(cfg.EndpointURL) == "" {
		cfg.EndpointURL = defaultEndpointURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  make(map[string]model.CountryFact),
		misses: make(map[string]struct{}),
	}
}

func ConfigFromEnv() Config {
	return Config{
		EndpointURL: getenv("WIKIDATA_ENDPOINT_URL", defaultEndpointURL),
		UserAgent:   getenv("WIKIDATA_USER_AGENT", defaultUserAgent),
		Timeout:     time.Duration(getenvInt("WIKIDATA_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second,
		MaxRetries:  getenvInt("WIKIDATA_MAX_RETRIES", defaultMaxRetries),
		RetryBase:   time.Duration(getenvInt("WIKIDATA_RETRY_BASE_MS", int(defaultRetryBase/time.Millisecond))) * time.Millisecond,
		BatchSize:   getenvInt("WIKIDATA_BATCH_SIZE", defaultBatchSize),
	}
}

func (c *Client) Name() string {
	return "wikidata"
}

// FetchFacts resolves codes with one batched query per BatchSize chunk.
// Every code is queried at most once per client lifetime; repeat calls are
// served from the in-memory cache, including known misses.
func (c *Client) FetchFacts(ctx context.Context, codes []string) (providers.Result, error) {
	result := providers.Result{Facts: make(map[string]model.CountryFact)}

	pending := make([]string, 0, len(codes))
	requested := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if _, ok := requested[code]; ok {
			continue
		}
		requested[code] = struct{}{}

		if fact, ok := c.cache[code]; ok {
			result.Facts[code] = fact
			continue
		}
		if _, ok := c.misses[code]; ok {
			result.Unresolved = append(result.Unresolved, code)
			continue
		}
		pending = append(pending, code)
	}
	sort.Strings(pending)

	var lastErr error
	for start := 0; start < len(pending); start += c.config.BatchSize {
		end := start + c.config.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		facts, err := c.queryBatch(ctx, batch)
		if err != nil {
			lastErr = err
			// A nil map means even the base fact query failed; facts
			// with a later indicator query failure are kept as-is.
			if facts == nil {
				for _, code := range batch {
					c.misses[code] = struct{}{}
					result.Unresolved = append(result.Unresolved, code)
				}
				continue
			}
		}
		for _, code := range batch {
			fact, ok := facts[code]
			if !ok {
				c.misses[code] = struct{}{}
				result.Unresolved = append(result.Unresolved, code)
				continue
			}
			c.cache[code] = fact
			result.Facts[code] = fact
		}
	}

	sort.Strings(result.Unresolved)
	if lastErr != nil {
		return result, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
	}
	return result, nil
}

// Dated indicators fetched per resolved country, each backed by a statement
// property whose point-in-time qualifier (P585) gives the year.
var indicatorProperties = []struct {
	Kind     model.IndicatorKind
	Property string
}{
	{model.IndicatorGDP, "P2131"},
	{model.IndicatorHDI, "P1081"},
	{model.IndicatorDemocracyIndex, "P8328"},
	{model.IndicatorPopulation, "P1082"},
}

// queryBatch resolves base facts for codes, then dated indicator measurements
// and organization memberships for the codes that resolved. A nil map with a
// non-nil error means the base query itself failed; a non-nil map with a
// non-nil error carries base facts whose enrichment queries failed.
func (c *Client) queryBatch(ctx context.Context, codes []string) (map[string]model.CountryFact, error) {
	body, err := c.doRequest(ctx, buildFactQuery(codes))
	if err != nil {
		return nil, err
	}
	facts, err := parseFacts(body)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return facts, nil
	}

	resolved := make([]string, 0, len(facts))
	for code := range facts {
		resolved = append(resolved, code)
	}
	sort.Strings(resolved)

	for _, indicator := range indicatorProperties {
		body, err := c.doRequest(ctx, buildIndicatorQuery(indicator.Property, resolved))
		if err != nil {
			return facts, err
		}
		measurements, err := parseMeasurements(indicator.Kind, body)
		if err != nil {
			return facts, err
		}
		for code, series := range measurements {
			fact := facts[code]
			fact.Measurements = append(fact.Measurements, series...)
			facts[code] = fact
		}
	}

	body, err = c.doRequest(ctx, buildMembershipQuery(resolved))
	if err != nil {
		return facts, err
	}
	memberships, err := parseMemberships(body)
	if err != nil {
		return facts, err
	}
	for code, orgs := range memberships {
		fact := facts[code]
		fact.Memberships = orgs
		facts[code] = fact
	}

	for code, fact := range facts {
		fact.Normalize()
		facts[code] = fact
	}
	return facts, nil
}

func valuesClause(codes []string) string {
	values := make([]string, 0, len(codes))
	for _, code := range codes {
		values = append(values, strconv.Quote(code))
	}
	return strings.Join(values, " ")
}

func buildFactQuery(codes []string) string {
	return fmt.Sprintf(`SELECT ?isoCode ?countryLabel ?capitalLabel ?population ?lat ?lon WHERE {
  VALUES ?isoCode { %s }
  ?country wdt:P298 ?isoCode .
  OPTIONAL { ?country wdt:P36 ?capital . }
  OPTIONAL { ?country wdt:P1082 ?population . }
  OPTIONAL {
    ?country p:P625/psv:P625 ?coordNode .
    ?coordNode wikibase:geoLatitude ?lat ;
               wikibase:geoLongitude ?lon .
  }
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
}`, valuesClause(codes))
}

func buildIndicatorQuery(property string, codes []string) string {
	return fmt.Sprintf(`SELECT ?isoCode ?value ?year WHERE {
  VALUES ?isoCode { %s }
  ?country wdt:P298 ?isoCode .
  ?country p:%s ?statement .
  ?statement ps:%s ?value ;
             pq:P585 ?date .
  BIND(YEAR(?date) AS ?year)
}`, valuesClause(codes), property, property)
}

func buildMembershipQuery(codes []string) string {
	return fmt.Sprintf(`SELECT ?isoCode ?org ?orgLabel WHERE {
  VALUES ?isoCode { %s }
  ?country wdt:P298 ?isoCode .
  ?country wdt:P463 ?org .
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
}`, valuesClause(codes))
}

func (c *Client) doRequest(ctx context.Context, query string) ([]byte, error) {
	var lastErr error
	attempts := c.config.MaxRetries + 1
	waited := false
	for attempt := 0; attempt < attempts; attempt++ {
		// An honored Retry-After replaces the backoff for this attempt.
		if attempt > 0 && !waited {
			delay := c.config.RetryBase << (attempt - 1)
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, err
			}
		}
		waited = false

		body, status, retryAfter, err := c.doRequestOnce(ctx, query)
		if err == nil {
			return body, nil
		}
		lastErr = err

		switch {
		case status == 0:
			// network error, retry
		case status == http.StatusTooManyRequests:
			if retryAfter > 0 {
				if err := sleepWithContext(ctx, retryAfter); err != nil {
					return nil, err
				}
				waited = true
			}
		case status >= http.StatusInternalServerError:
			// retry
		default:
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doRequestOnce(ctx context.Context, query string) ([]byte, int, time.Duration, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.EndpointURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, 0, err
	}
	req.Header.Set("Accept", "application/sparql-results+json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, parseRetryAfter(resp), fmt.Errorf("wikidata: request failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, resp.StatusCode, 0, nil
}

func parseRetryAfter(resp *http.Response) time.Duration {
	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := time.Parse(http.TimeFormat, value); err == nil {
		if wait := time.Until(when); wait > 0 {
			return wait
		}
	}
	return 0
}

type sparqlTerm struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]sparqlTerm `json:"bindings"`
	} `json:"results"`
}

func parseFacts(body []byte) (map[string]model.CountryFact, error) {
	var payload sparqlResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("wikidata: decode response: %w", err)
	}

	facts := make(map[string]model.CountryFact)
	for _, binding := range payload.Results.Bindings {
		code := strings.ToUpper(strings.TrimSpace(binding["isoCode"].Value))
		if code == "" {
			continue
		}
		fact := facts[code]
		fact.ISO3 = code
		mergeBinding(&fact, binding)
		facts[code] = fact
	}
	return facts, nil
}

// parseMeasurements reads one indicator query response into per-country
// measurement series. The first value per (country, year) wins.
func parseMeasurements(kind model.IndicatorKind, body []byte) (map[string][]model.Measurement, error) {
	var payload sparqlResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("wikidata: decode response: %w", err)
	}

	measurements := make(map[string][]model.Measurement)
	seen := make(map[string]struct{})
	for _, binding := range payload.Results.Bindings {
		code := strings.ToUpper(strings.TrimSpace(binding["isoCode"].Value))
		if code == "" {
			continue
		}
		year, err := strconv.Atoi(binding["year"].Value)
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(binding["value"].Value, 64)
		if err != nil {
			continue
		}
		key := fmt.Sprintf("%s|%04d", code, year)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		measurements[code] = append(measurements[code], model.Measurement{Kind: kind, Year: year, Value: value})
	}
	return measurements, nil
}

// parseMemberships reads the membership query response into per-country
// organization lists. The organization id is the last path segment of its
// entity IRI; label-service QID fallbacks are not usable labels.
func parseMemberships(body []byte) (map[string][]model.Organization, error) {
	var payload sparqlResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("wikidata: decode response: %w", err)
	}

	memberships := make(map[string][]model.Organization)
	seen := make(map[string]struct{})
	for _, binding := range payload.Results.Bindings {
		code := strings.ToUpper(strings.TrimSpace(binding["isoCode"].Value))
		if code == "" {
			continue
		}
		iri := binding["org"].Value
		id := iri[strings.LastIndex(iri, "/")+1:]
		if id == "" {
			continue
		}
		key := code + "|" + id
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		label := binding["orgLabel"].Value
		if qidPattern.MatchString(label) {
			label = ""
		}
		memberships[code] = append(memberships[code], model.Organization{ID: id, Label: label})
	}
	return memberships, nil
}

// qidPattern matches bare entity ids, which the label service returns when an
// entity has no English label.
var qidPattern = regexp.MustCompile(`^Q\d+$`)

// mergeBinding fills fields the fact does not have yet. A country can come
// back in several bindings (one per population statement, say); the first
// value wins.
func mergeBinding(fact *model.CountryFact, binding map[string]sparqlTerm) {
	if fact.Label == "" {
		if label := binding["countryLabel"].Value; label != "" && label != fact.ISO3 && !qidPattern.MatchString(label) {
			fact.Label = label
		}
	}
	if fact.Capital == "" {
		fact.Capital = binding["capitalLabel"].Value
	}
	if !fact.HasPopulation {
		if raw := binding["population"].Value; raw != "" {
			if population, err := strconv.ParseFloat(raw, 64); err == nil && population >= 0 {
				fact.Population = int64(population)
				fact.HasPopulation = true
			}
		}
	}
	if !fact.HasCoordinates {
		rawLat := binding["lat"].Value
		rawLon := binding["lon"].Value
		if rawLat != "" && rawLon != "" {
			lat, errLat := strconv.ParseFloat(rawLat, 64)
			lon, errLon := strconv.ParseFloat(rawLon, 64)
			if errLat == nil && errLon == nil {
				fact.Latitude = lat
				fact.Longitude = lon
				fact.HasCoordinates = true
			}
		}
	}
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

var _ providers.ReferenceProvider = (*Client)(nil)
