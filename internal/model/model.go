package model

import (
	"fmt"
	"sort"
	"strings"
)

type Flow string

const (
	FlowExport Flow = "export"
	FlowImport Flow = "import"
)

// Kind distinguishes trade in physical goods from trade in services,
// following the UN Comtrade type codes.
type Kind string

const (
	KindGoods    Kind = "C"
	KindServices Kind = "S"
)

// WorldISO3 is the pseudo-code for world aggregate rows. Source files spell
// it several ways; ingestion collapses them all to this value.
const WorldISO3 = "W00"

// TradeRecord is one reported trade flow, validated at the ingestion
// boundary. Identity within a batch is (reporter, partner, commodity, flow,
// kind, year).
type TradeRecord struct {
	ReporterISO3 string
	PartnerISO3  string
	Flow         Flow
	Kind         Kind
	Commodity    string
	Year         int
	ValueUSD     float64
	Quantity     float64
	HasQuantity  bool
}

// Key returns the identity of the record within a batch.
func (r TradeRecord) Key() string {
	return strings.Join([]string{
		r.ReporterISO3,
		r.PartnerISO3,
		r.Commodity,
		string(r.Flow),
		string(r.Kind),
		fmt.Sprintf("%04d", r.Year),
	}, "|")
}

// IndicatorKind names a dated country indicator tracked by the knowledge
// base.
type IndicatorKind string

const (
	IndicatorGDP            IndicatorKind = "gdp"
	IndicatorHDI            IndicatorKind = "hdi"
	IndicatorDemocracyIndex IndicatorKind = "democracyIndex"
	IndicatorPopulation     IndicatorKind = "population"
)

// Measurement is one indicator observation for a country in a given year.
type Measurement struct {
	Kind  IndicatorKind
	Year  int
	Value float64
}

// Organization is an international organization a country belongs to,
// identified by its knowledge-base entity id.
type Organization struct {
	ID    string
	Label string
}

// CountryFact carries reference attributes for a country fetched from the
// external knowledge base. Any field beyond ISO3 may be absent.
// Measurements are sorted by (kind, year) and Memberships by id, so equal
// facts compare equal regardless of fetch order.
type CountryFact struct {
	ISO3           string
	Label          string
	Capital        string
	Population     int64
	HasPopulation  bool
	Latitude       float64
	Longitude      float64
	HasCoordinates bool
	Measurements   []Measurement
	Memberships    []Organization
}

// Normalize sorts Measurements by (kind, year) and Memberships by id.
func (f *CountryFact) Normalize() {
	sort.Slice(f.Measurements, func(i, j int) bool {
		a, b := f.Measurements[i], f.Measurements[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Year < b.Year
	})
	sort.Slice(f.Memberships, func(i, j int) bool {
		return f.Memberships[i].ID < f.Memberships[j].ID
	})
}

// TradeBalance is derived from the base graph for one (country, year) pair:
// signed sums of that country's trade flows, split by kind.
type TradeBalance struct {
	ISO3           string
	Year           int
	GoodsExport    float64
	GoodsImport    float64
	ServicesExport float64
	ServicesImport float64
}

func (b TradeBalance) TotalExport() float64 {
	return b.GoodsExport + b.ServicesExport
}

func (b TradeBalance) TotalImport() float64 {
	return b.GoodsImport + b.ServicesImport
}

func (b TradeBalance) GoodsBalance() float64 {
	return b.GoodsExport - b.GoodsImport
}

func (b TradeBalance) ServicesBalance() float64 {
	return b.ServicesExport - b.ServicesImport
}

// Balance is total exports minus total imports.
func (b TradeBalance) Balance() float64 {
	return b.TotalExport() - b.TotalImport()
}

// ParseFlow maps source flow tokens ("Export", "Imports", "M", "X", ...) to a
// Flow value.
func ParseFlow(value string) (Flow, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "export", "exports", "x", "re-export", "re-exports":
		return FlowExport, true
	case "import", "imports", "m", "re-import", "re-imports":
		return FlowImport, true
	default:
		return "", false
	}
}

// ParseKind maps source type codes to a Kind value.
func ParseKind(value string) (Kind, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "C", "GOODS":
		return KindGoods, true
	case "S", "SERVICES":
		return KindServices, true
	default:
		return "", false
	}
}
