// Package balance derives per-country, per-year trade balances from a base
// graph and produces the augmented graph carrying them.
package balance

import (
	"fmt"
	"sort"

	"tradeatlas/internal/graph"
	"tradeatlas/internal/model"
	"tradeatlas/internal/ontology"
)

// Warning reports a trade flow whose contribution had to be skipped because
// the flow or its country reference was malformed. Never fatal; remaining
// groups are still computed.
type Warning struct {
	FlowIRI string
	ISO3    string
	Year    int
	Reason  string
}

func (w Warning) String() string {
	if w.ISO3 != "" {
		return fmt.Sprintf("balance: (%s, %d) flow %s: %s", w.ISO3, w.Year, w.FlowIRI, w.Reason)
	}
	return fmt.Sprintf("balance: flow %s: %s", w.FlowIRI, w.Reason)
}

// Compute aggregates TradeFlow triples by (country, year): export values add,
// import values subtract. Flows worth zero still register their group, so a
// country active in a year always gets a balance. The result is sorted by
// country then year and deterministic for a given base graph.
func Compute(base []graph.Triple) ([]model.TradeBalance, []Warning) {
	properties := make(map[string]map[string]graph.Object)
	flowSubjects := make([]string, 0)
	reporterOf := make(map[string]string)

	for _, triple := range base {
		switch triple.Predicate {
		case graph.RDFType:
			if triple.Object.IsIRI && triple.Object.Value == ontology.ClassTradeFlow {
				flowSubjects = append(flowSubjects, triple.Subject)
			}
		case ontology.PropHasTradeFlow:
			if triple.Object.IsIRI {
				reporterOf[triple.Object.Value] = triple.Subject
			}
		}
		if _, ok := properties[triple.Subject]; !ok {
			properties[triple.Subject] = make(map[string]graph.Object)
		}
		properties[triple.Subject][triple.Predicate] = triple.Object
	}
	sort.Strings(flowSubjects)

	groups := make(map[string]*model.TradeBalance)
	warnings := make([]Warning, 0)
	warn := func(flow, iso3 string, year int, format string, args ...any) {
		warnings = append(warnings, Warning{FlowIRI: flow, ISO3: iso3, Year: year, Reason: fmt.Sprintf(format, args...)})
	}

	for _, flow := range flowSubjects {
		props := properties[flow]

		country, ok := reporterOf[flow]
		if !ok {
			warn(flow, "", 0, "no country references this flow")
			continue
		}
		iso3 := ""
		if countryProps, ok := properties[country]; ok {
			iso3 = countryProps[ontology.PropISOCode].Value
		}
		if iso3 == "" {
			warn(flow, "", 0, "reporter %s has no country code", country)
			continue
		}

		year, ok := props[ontology.PropYear].Int()
		if !ok {
			warn(flow, iso3, 0, "missing or malformed year")
			continue
		}
		value, ok := props[ontology.PropValue].Float()
		if !ok {
			warn(flow, iso3, year, "missing or malformed trade value")
			continue
		}
		if value < 0 {
			warn(flow, iso3, year, "negative trade value %v", value)
			continue
		}
		direction, ok := model.ParseFlow(props[ontology.PropFlow].Value)
		if !ok {
			warn(flow, iso3, year, "unknown flow direction %q", props[ontology.PropFlow].Value)
			continue
		}
		kind, ok := model.ParseKind(props[ontology.PropKind].Value)
		if !ok {
			warn(flow, iso3, year, "unknown trade type %q", props[ontology.PropKind].Value)
			continue
		}

		key := fmt.Sprintf("%s|%04d", iso3, year)
		group, ok := groups[key]
		if !ok {
			group = &model.TradeBalance{ISO3: iso3, Year: year}
			groups[key] = group
		}
		switch {
		case kind == model.KindGoods && direction == model.FlowExport:
			group.GoodsExport += value
		case kind == model.KindGoods && direction == model.FlowImport:
			group.GoodsImport += value
		case kind == model.KindServices && direction == model.FlowExport:
			group.ServicesExport += value
		case kind == model.KindServices && direction == model.FlowImport:
			group.ServicesImport += value
		}
	}

	balances := make([]model.TradeBalance, 0, len(groups))
	for _, group := range groups {
		balances = append(balances, *group)
	}
	sort.Slice(balances, func(i, j int) bool {
		if balances[i].ISO3 != balances[j].ISO3 {
			return balances[i].ISO3 < balances[j].ISO3
		}
		return balances[i].Year < balances[j].Year
	})
	return balances, warnings
}

// Triples renders balances as graph triples attached to their country nodes.
func Triples(balances []model.TradeBalance) []graph.Triple {
	triples := make([]graph.Triple, 0, len(balances)*12)
	for _, b := range balances {
		node := ontology.BalanceIRI(b.ISO3, b.Year)
		country := ontology.CountryIRI(b.ISO3)
		triples = append(triples,
			graph.Triple{Subject: node, Predicate: graph.RDFType, Object: graph.IRI(ontology.ClassTradeBalance)},
			graph.Triple{Subject: node, Predicate: ontology.PropYear, Object: graph.Integer(b.Year)},
			graph.Triple{Subject: country, Predicate: ontology.PropHasTradeBalance, Object: graph.IRI(node)},
			graph.Triple{Subject: node, Predicate: ontology.PropGoodsExportValue, Object: graph.Decimal(b.GoodsExport)},
			graph.Triple{Subject: node, Predicate: ontology.PropGoodsImportValue, Object: graph.Decimal(b.GoodsImport)},
			graph.Triple{Subject: node, Predicate: ontology.PropServicesExportValue, Object: graph.Decimal(b.ServicesExport)},
			graph.Triple{Subject: node, Predicate: ontology.PropServicesImportValue, Object: graph.Decimal(b.ServicesImport)},
			graph.Triple{Subject: node, Predicate: ontology.PropTotalExportValue, Object: graph.Decimal(b.TotalExport())},
			graph.Triple{Subject: node, Predicate: ontology.PropTotalImportValue, Object: graph.Decimal(b.TotalImport())},
			graph.Triple{Subject: node, Predicate: ontology.PropGoodsBalanceValue, Object: graph.Decimal(b.GoodsBalance())},
			graph.Triple{Subject: node, Predicate: ontology.PropServicesBalanceValue, Object: graph.Decimal(b.ServicesBalance())},
			graph.Triple{Subject: node, Predicate: ontology.PropBalanceValue, Object: graph.Decimal(b.Balance())},
		)
	}
	graph.Sort(triples)
	return triples
}

// Augment returns the base graph unchanged plus the derived balance triples.
// The base triples keep their order so the augmented file is a byte-level
// superset of the base file.
func Augment(base []graph.Triple) ([]graph.Triple, []model.TradeBalance, []Warning) {
	balances, warnings := Compute(base)
	augmented := make([]graph.Triple, 0, len(base)+len(balances)*12)
	augmented = append(augmented, base...)
	augmented = append(augmented, Triples(balances)...)
	return augmented, balances, warnings
}
