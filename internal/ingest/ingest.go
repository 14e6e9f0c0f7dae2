// Package ingest reads the tabular trade-flow source and turns it into
// validated trade records.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"tradeatlas/internal/model"
)

// Policy decides what an invalid row does to the run.
type Policy string

const (
	// PolicySkip rejects invalid rows individually and keeps going,
	// collecting a report. Default, so dirty source data does not block
	// the whole run.
	PolicySkip Policy = "skip"
	// PolicyStrict aborts on the first invalid row.
	PolicyStrict Policy = "strict"
)

// ParsePolicy maps a config/flag token to a Policy.
func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(PolicySkip):
		return PolicySkip, nil
	case string(PolicyStrict):
		return PolicyStrict, nil
	default:
		return "", fmt.Errorf("ingest: unknown policy %q", value)
	}
}

// Rejection categories, reported in aggregate at the end of a run.
const (
	CategoryMissingFields  = "missing_required_fields"
	CategoryInvalidNumeric = "invalid_numeric_value"
	CategoryNegativeValue  = "negative_trade_value"
	CategoryInvalidYear    = "invalid_year"
	CategoryInvalidFlow    = "invalid_flow_direction"
	CategoryInvalidKind    = "invalid_trade_type"
	CategoryWorldPair      = "world_aggregate_pair"
	CategoryDuplicate      = "duplicate_identity"
	CategoryMalformedRow   = "other_validation_errors"
)

// RowError describes one rejected row.
type RowError struct {
	Line     int
	Category string
	Reason   string
}

func (e RowError) Error() string {
	return fmt.Sprintf("ingest: row %d: %s: %s", e.Line, e.Category, e.Reason)
}

// Report summarizes one ingestion run.
type Report struct {
	Rows     int
	Valid    int
	Rejected []RowError
}

// ByCategory counts rejected rows per category.
func (r *Report) ByCategory() map[string]int {
	counts := make(map[string]int)
	for _, rejection := range r.Rejected {
		counts[rejection.Category]++
	}
	return counts
}

// Summary renders the per-category counts in a stable order.
func (r *Report) Summary() string {
	counts := r.ByCategory()
	if len(counts) == 0 {
		return "no rows rejected"
	}
	categories := make([]string, 0, len(counts))
	for category := range counts {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	parts := make([]string, 0, len(categories))
	for _, category := range categories {
		parts = append(parts, fmt.Sprintf("%s=%d", category, counts[category]))
	}
	return strings.Join(parts, " ")
}

// Required source columns. Header matching is case-insensitive.
var requiredColumns = []string{"reporteriso", "partneriso", "flowdesc", "cmdcode", "period", "primaryvalue", "typecode"}

const columnQuantity = "qty"

// ReadFile ingests the CSV file at path under the given policy.
func ReadFile(path string, policy Policy) ([]model.TradeRecord, *Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer file.Close()
	return Read(file, policy)
}

// Read ingests CSV data from r under the given policy. Under PolicySkip the
// returned report lists every rejected row; under PolicyStrict the first
// invalid row is returned as a *RowError.
func Read(r io.Reader, policy Policy) ([]model.TradeRecord, *Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headerRow, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: read header: %w", err)
	}
	header := normalizeHeader(headerRow)
	for _, column := range requiredColumns {
		if _, ok := header[column]; !ok {
			return nil, nil, fmt.Errorf("ingest: missing required column %q", column)
		}
	}

	report := &Report{}
	records := make([]model.TradeRecord, 0)
	seen := make(map[string]int)

	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		report.Rows++
		if err != nil {
			// The csv reader recovers from parse errors and resumes on
			// the next line; anything else is an I/O failure.
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, report, fmt.Errorf("ingest: read row %d: %w", line, err)
			}
			rejection := RowError{Line: line, Category: CategoryMalformedRow, Reason: err.Error()}
			if reject(report, rejection, policy) {
				return nil, report, &rejection
			}
			continue
		}

		record, rejection := parseRow(row, header, line)
		if rejection == nil {
			key := record.Key()
			if first, dup := seen[key]; dup {
				rejection = &RowError{
					Line:     line,
					Category: CategoryDuplicate,
					Reason:   fmt.Sprintf("identity %s already seen at row %d", key, first),
				}
			} else {
				seen[key] = line
			}
		}
		if rejection != nil {
			if reject(report, *rejection, policy) {
				return nil, report, rejection
			}
			continue
		}

		report.Valid++
		records = append(records, record)
	}

	return records, report, nil
}

func reject(report *Report, rejection RowError, policy Policy) bool {
	report.Rejected = append(report.Rejected, rejection)
	return policy == PolicyStrict
}

func parseRow(row []string, header map[string]int, line int) (model.TradeRecord, *RowError) {
	fail := func(category, format string, args ...any) (model.TradeRecord, *RowError) {
		return model.TradeRecord{}, &RowError{Line: line, Category: category, Reason: fmt.Sprintf(format, args...)}
	}

	for _, column := range requiredColumns {
		if getCell(row, header, column) == "" {
			return fail(CategoryMissingFields, "empty column %q", column)
		}
	}

	reporter := normalizeCode(getCell(row, header, "reporteriso"))
	partner := normalizeCode(getCell(row, header, "partneriso"))
	if reporter == model.WorldISO3 && partner == model.WorldISO3 {
		return fail(CategoryWorldPair, "both reporter and partner are world aggregates")
	}

	flow, ok := model.ParseFlow(getCell(row, header, "flowdesc"))
	if !ok {
		return fail(CategoryInvalidFlow, "unknown flow direction %q", getCell(row, header, "flowdesc"))
	}

	kind, ok := model.ParseKind(getCell(row, header, "typecode"))
	if !ok {
		return fail(CategoryInvalidKind, "unknown trade type %q", getCell(row, header, "typecode"))
	}

	rawPeriod := getCell(row, header, "period")
	year, ok := parseYear(rawPeriod)
	if !ok {
		return fail(CategoryInvalidYear, "malformed year %q", rawPeriod)
	}

	rawValue := getCell(row, header, "primaryvalue")
	value, err := strconv.ParseFloat(rawValue, 64)
	if err != nil {
		return fail(CategoryInvalidNumeric, "non-numeric trade value %q", rawValue)
	}
	if value < 0 {
		return fail(CategoryNegativeValue, "trade value %v is negative", value)
	}

	record := model.TradeRecord{
		ReporterISO3: reporter,
		PartnerISO3:  partner,
		Flow:         flow,
		Kind:         kind,
		Commodity:    strings.ToUpper(getCell(row, header, "cmdcode")),
		Year:         year,
		ValueUSD:     value,
	}

	if rawQuantity := getCell(row, header, columnQuantity); rawQuantity != "" {
		quantity, err := strconv.ParseFloat(rawQuantity, 64)
		if err != nil {
			return fail(CategoryInvalidNumeric, "non-numeric quantity %q", rawQuantity)
		}
		record.Quantity = quantity
		record.HasQuantity = true
	}

	return record, nil
}

// normalizeCode collapses name variants of the world aggregate to W00 and
// uppercases everything else.
func normalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch code {
	case "0", "W00", "WLD", "WORLD":
		return model.WorldISO3
	default:
		return code
	}
}

func parseYear(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if len(value) != 4 || !isDigits(value) {
		return 0, false
	}
	year, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return year, true
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func normalizeHeader(header []string) map[string]int {
	result := make(map[string]int, len(header))
	for i, value := range header {
		key := strings.ToLower(strings.TrimSpace(value))
		if key == "" {
			continue
		}
		result[key] = i
	}
	return result
}

func getCell(record []string, header map[string]int, key string) string {
	index, ok := header[key]
	if !ok || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}
