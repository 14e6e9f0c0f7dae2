// Package ontology fixes the vocabulary of the trade knowledge graph and maps
// ingested records plus reference facts into triples using it.
package ontology

import (
	"fmt"
	"regexp"
	"strings"

	"tradeatlas/internal/model"
)

// Base is the namespace every node and property of the vocabulary lives in.
const Base = "http://example.org/trade-atlas#"

// OntologyIRI identifies the ontology itself in the graph header.
const OntologyIRI = "http://example.org/trade-atlas"

// Classes. The set is closed: the mapper emits no node type outside it.
const (
	ClassCountry                = Base + "Country"
	ClassTradeFlow              = Base + "TradeFlow"
	ClassTradeBalance           = Base + "TradeBalance"
	ClassEconomicMeasurement    = Base + "EconomicMeasurement"
	ClassSocialMeasurement      = Base + "SocialMeasurement"
	ClassDemographicMeasurement = Base + "DemographicMeasurement"
	ClassOrganization           = Base + "Organization"
	ClassOntology               = "http://www.w3.org/2002/07/owl#Ontology"
)

// Properties.
const (
	PropName       = Base + "name"
	PropISOCode    = Base + "isoCode"
	PropCapital    = Base + "capital"
	PropPopulation = Base + "population"
	PropLatitude   = Base + "latitude"
	PropLongitude  = Base + "longitude"

	PropYear      = Base + "year"
	PropValue     = Base + "tradeValue"
	PropQuantity  = Base + "quantity"
	PropFlow      = Base + "flowType"
	PropKind      = Base + "tradeType"
	PropCommodity = Base + "commodityCode"

	PropHasTradeFlow = Base + "hasTradeFlow"
	PropHasPartner   = Base + "hasPartnerCountry"

	PropGDPValue                  = Base + "gdpValue"
	PropHDIValue                  = Base + "hdiValue"
	PropDemocracyIndexValue       = Base + "democracyIndexValue"
	PropPopulationValue           = Base + "populationValue"
	PropHasEconomicMeasurement    = Base + "hasEconomicMeasurement"
	PropHasSocialMeasurement      = Base + "hasSocialMeasurement"
	PropHasDemographicMeasurement = Base + "hasDemographicMeasurement"
	PropIsMemberOf                = Base + "isMemberOf"

	PropHasTradeBalance      = Base + "hasTradeBalance"
	PropBalanceValue         = Base + "totalTradeBalance"
	PropGoodsBalanceValue    = Base + "goodsTradeBalance"
	PropServicesBalanceValue = Base + "servicesTradeBalance"
	PropTotalExportValue     = Base + "totalExportValue"
	PropTotalImportValue     = Base + "totalImportValue"
	PropGoodsExportValue     = Base + "goodsExportValue"
	PropGoodsImportValue     = Base + "goodsImportValue"
	PropServicesExportValue  = Base + "servicesExportValue"
	PropServicesImportValue  = Base + "servicesImportValue"
)

// CountryIRI returns the node IRI for a country code.
func CountryIRI(iso3 string) string {
	return Base + SanitizeLocal(iso3)
}

// BalanceIRI returns the node IRI for a (country, year) trade balance.
func BalanceIRI(iso3 string, year int) string {
	return CountryIRI(iso3) + "_balance_" + fmt.Sprintf("%04d", year)
}

// MeasurementIRI returns the node IRI for one indicator observation. The kind
// is part of the IRI so indicators sharing a measurement class cannot collide
// on the same (country, year).
func MeasurementIRI(iso3 string, kind model.IndicatorKind, year int) string {
	return CountryIRI(iso3) + "_" + SanitizeLocal(string(kind)) + "_" + fmt.Sprintf("%04d", year)
}

// OrganizationIRI returns the node IRI for an international organization.
func OrganizationIRI(id string) string {
	return Base + "org_" + SanitizeLocal(id)
}

// IndicatorTerms maps an indicator kind to its measurement class, value
// property and the country-to-measurement link property.
func IndicatorTerms(kind model.IndicatorKind) (class, valueProp, linkProp string, ok bool) {
	switch kind {
	case model.IndicatorGDP:
		return ClassEconomicMeasurement, PropGDPValue, PropHasEconomicMeasurement, true
	case model.IndicatorHDI:
		return ClassSocialMeasurement, PropHDIValue, PropHasSocialMeasurement, true
	case model.IndicatorDemocracyIndex:
		return ClassSocialMeasurement, PropDemocracyIndexValue, PropHasSocialMeasurement, true
	case model.IndicatorPopulation:
		return ClassDemographicMeasurement, PropPopulationValue, PropHasDemographicMeasurement, true
	default:
		return "", "", "", false
	}
}

var nonLocalChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// SanitizeLocal makes text safe as the local part of an IRI: non-alphanumeric
// runs collapse to a single underscore and the result starts with a letter.
func SanitizeLocal(text string) string {
	sanitized := nonLocalChars.ReplaceAllString(strings.TrimSpace(text), "_")
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		return "unknown"
	}
	first := sanitized[0]
	if !(first >= 'a' && first <= 'z') && !(first >= 'A' && first <= 'Z') {
		sanitized = "n" + sanitized
	}
	return sanitized
}
