package ontology

import (
	"fmt"
	"strings"

	"tradeatlas/internal/graph"
	"tradeatlas/internal/model"
)

// Map converts validated trade records and whatever reference facts are
// available into graph triples. It is pure and idempotent: the output is
// canonically sorted, so the same inputs in any order yield byte-identical
// triples. Codes missing from facts still get a minimal Country node carrying
// only the code.
func Map(records []model.TradeRecord, facts map[string]model.CountryFact) []graph.Triple {
	triples := Header()

	codes := make(map[string]struct{})
	for _, record := range records {
		codes[record.ReporterISO3] = struct{}{}
		codes[record.PartnerISO3] = struct{}{}
	}
	seenOrgs := make(map[string]struct{})
	for code := range codes {
		triples = append(triples, countryTriples(code, facts)...)
		if fact, ok := facts[code]; ok {
			triples = append(triples, measurementTriples(fact)...)
			triples = append(triples, membershipTriples(fact, seenOrgs)...)
		}
	}
	for _, record := range records {
		triples = append(triples, flowTriples(record)...)
	}

	graph.Sort(triples)
	return triples
}

// Header emits the ontology declaration and the class definitions that open
// every base graph.
func Header() []graph.Triple {
	triples := []graph.Triple{
		{Subject: OntologyIRI, Predicate: graph.RDFType, Object: graph.IRI(ClassOntology)},
		{Subject: OntologyIRI, Predicate: graph.RDFSLabel, Object: graph.LangLiteral("Trade Atlas Ontology", "en")},
		{Subject: OntologyIRI, Predicate: graph.RDFSComment, Object: graph.LangLiteral("Countries, trade flows between them and derived trade balances", "en")},
	}

	classes := []struct {
		iri     string
		label   string
		comment string
	}{
		{ClassCountry, "Country", "A country or world aggregate identified by its ISO alpha-3 code"},
		{ClassTradeFlow, "TradeFlow", "One reported trade flow between a reporter and a partner country"},
		{ClassTradeBalance, "TradeBalance", "Derived export minus import totals for a country and year"},
		{ClassEconomicMeasurement, "EconomicMeasurement", "Economic indicators like GDP"},
		{ClassSocialMeasurement, "SocialMeasurement", "Social indicators like HDI"},
		{ClassDemographicMeasurement, "DemographicMeasurement", "Demographic indicators like population"},
		{ClassOrganization, "Organization", "An international organization countries belong to"},
	}
	for _, class := range classes {
		triples = append(triples,
			graph.Triple{Subject: class.iri, Predicate: graph.RDFSLabel, Object: graph.LangLiteral(class.label, "en")},
			graph.Triple{Subject: class.iri, Predicate: graph.RDFSComment, Object: graph.LangLiteral(class.comment, "en")},
		)
	}
	return triples
}

func countryTriples(iso3 string, facts map[string]model.CountryFact) []graph.Triple {
	subject := CountryIRI(iso3)
	triples := []graph.Triple{
		{Subject: subject, Predicate: graph.RDFType, Object: graph.IRI(ClassCountry)},
		{Subject: subject, Predicate: PropISOCode, Object: graph.Literal(iso3)},
	}

	fact, ok := facts[iso3]
	if !ok {
		return triples
	}
	if fact.Label != "" {
		triples = append(triples, graph.Triple{Subject: subject, Predicate: PropName, Object: graph.LangLiteral(fact.Label, "en")})
	}
	if fact.Capital != "" {
		triples = append(triples, graph.Triple{Subject: subject, Predicate: PropCapital, Object: graph.LangLiteral(fact.Capital, "en")})
	}
	if fact.HasPopulation {
		triples = append(triples, graph.Triple{Subject: subject, Predicate: PropPopulation, Object: graph.Integer64(fact.Population)})
	}
	if fact.HasCoordinates {
		triples = append(triples,
			graph.Triple{Subject: subject, Predicate: PropLatitude, Object: graph.Double(fact.Latitude)},
			graph.Triple{Subject: subject, Predicate: PropLongitude, Object: graph.Double(fact.Longitude)},
		)
	}
	return triples
}

func measurementTriples(fact model.CountryFact) []graph.Triple {
	country := CountryIRI(fact.ISO3)
	triples := make([]graph.Triple, 0, len(fact.Measurements)*4)
	for _, measurement := range fact.Measurements {
		class, valueProp, linkProp, ok := IndicatorTerms(measurement.Kind)
		if !ok {
			continue
		}
		node := MeasurementIRI(fact.ISO3, measurement.Kind, measurement.Year)
		triples = append(triples,
			graph.Triple{Subject: node, Predicate: graph.RDFType, Object: graph.IRI(class)},
			graph.Triple{Subject: node, Predicate: PropYear, Object: graph.Integer(measurement.Year)},
			graph.Triple{Subject: node, Predicate: valueProp, Object: graph.Decimal(measurement.Value)},
			graph.Triple{Subject: country, Predicate: linkProp, Object: graph.IRI(node)},
		)
	}
	return triples
}

// membershipTriples links a country to its organizations. Organization nodes
// are shared between countries; seenOrgs keeps each emitted once per graph.
func membershipTriples(fact model.CountryFact, seenOrgs map[string]struct{}) []graph.Triple {
	country := CountryIRI(fact.ISO3)
	triples := make([]graph.Triple, 0, len(fact.Memberships))
	for _, org := range fact.Memberships {
		if org.ID == "" {
			continue
		}
		node := OrganizationIRI(org.ID)
		if _, ok := seenOrgs[org.ID]; !ok {
			seenOrgs[org.ID] = struct{}{}
			triples = append(triples, graph.Triple{Subject: node, Predicate: graph.RDFType, Object: graph.IRI(ClassOrganization)})
			if org.Label != "" {
				triples = append(triples, graph.Triple{Subject: node, Predicate: PropName, Object: graph.LangLiteral(org.Label, "en")})
			}
		}
		triples = append(triples, graph.Triple{Subject: country, Predicate: PropIsMemberOf, Object: graph.IRI(node)})
	}
	return triples
}

func flowTriples(record model.TradeRecord) []graph.Triple {
	subject := FlowIRI(record)
	triples := []graph.Triple{
		{Subject: subject, Predicate: graph.RDFType, Object: graph.IRI(ClassTradeFlow)},
		{Subject: subject, Predicate: PropYear, Object: graph.Integer(record.Year)},
		{Subject: subject, Predicate: PropValue, Object: graph.Decimal(record.ValueUSD)},
		{Subject: subject, Predicate: PropFlow, Object: graph.Literal(string(record.Flow))},
		{Subject: subject, Predicate: PropKind, Object: graph.Literal(string(record.Kind))},
		{Subject: subject, Predicate: PropCommodity, Object: graph.Literal(record.Commodity)},
		{Subject: CountryIRI(record.ReporterISO3), Predicate: PropHasTradeFlow, Object: graph.IRI(subject)},
		{Subject: subject, Predicate: PropHasPartner, Object: graph.IRI(CountryIRI(record.PartnerISO3))},
	}
	if record.HasQuantity {
		triples = append(triples, graph.Triple{Subject: subject, Predicate: PropQuantity, Object: graph.Decimal(record.Quantity)})
	}
	return triples
}

// FlowIRI derives the TradeFlow node IRI from the record identity, so equal
// records always map to the same node.
func FlowIRI(record model.TradeRecord) string {
	parts := []string{
		SanitizeLocal(record.ReporterISO3),
		SanitizeLocal(record.PartnerISO3),
		SanitizeLocal(record.Commodity),
		string(record.Flow),
		string(record.Kind),
		fmt.Sprintf("%04d", record.Year),
	}
	return Base + strings.Join(parts, "_")
}
