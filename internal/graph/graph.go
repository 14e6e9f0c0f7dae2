// Package graph defines the triple model shared by the ontology mapper, the
// store and the balance enricher, together with a line-oriented serialization
// (the N-Triples subset of Turtle) that keeps graph files diffable.
package graph

import (
	"sort"
	"strconv"
	"strings"
)

const (
	RDFType     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	RDFSLabel   = "http://www.w3.org/2000/01/rdf-schema#label"
	RDFSComment = "http://www.w3.org/2000/01/rdf-schema#comment"

	XSDInteger = "http://www.w3.org/2001/XMLSchema#integer"
	XSDDecimal = "http://www.w3.org/2001/XMLSchema#decimal"
	XSDDouble  = "http://www.w3.org/2001/XMLSchema#double"
)

// Object is the object position of a triple: either an IRI or a literal with
// an optional datatype or language tag.
type Object struct {
	Value    string
	IsIRI    bool
	Datatype string
	Lang     string
}

type Triple struct {
	Subject   string
	Predicate string
	Object    Object
}

func IRI(value string) Object {
	return Object{Value: value, IsIRI: true}
}

func Literal(value string) Object {
	return Object{Value: value}
}

func LangLiteral(value, lang string) Object {
	return Object{Value: value, Lang: lang}
}

func TypedLiteral(value, datatype string) Object {
	return Object{Value: value, Datatype: datatype}
}

func Integer(value int) Object {
	return TypedLiteral(strconv.Itoa(value), XSDInteger)
}

func Integer64(value int64) Object {
	return TypedLiteral(strconv.FormatInt(value, 10), XSDInteger)
}

// Decimal renders value with the shortest representation that round-trips,
// so repeated runs over the same inputs emit byte-identical triples.
func Decimal(value float64) Object {
	return TypedLiteral(strconv.FormatFloat(value, 'f', -1, 64), XSDDecimal)
}

func Double(value float64) Object {
	return TypedLiteral(strconv.FormatFloat(value, 'f', -1, 64), XSDDouble)
}

// Float reads a literal back as float64. Returns false for IRIs and
// non-numeric literals.
func (o Object) Float() (float64, bool) {
	if o.IsIRI {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(o.Value), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// Int reads a literal back as int.
func (o Object) Int() (int, bool) {
	if o.IsIRI {
		return 0, false
	}
	value, err := strconv.Atoi(strings.TrimSpace(o.Value))
	if err != nil {
		return 0, false
	}
	return value, true
}

// Sort orders triples by subject, predicate, then rendered object. This is
// the canonical order used for all emitted graphs.
func Sort(triples []Triple) {
	sort.Slice(triples, func(i, j int) bool {
		a, b := triples[i], triples[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Predicate != b.Predicate {
			return a.Predicate < b.Predicate
		}
		return renderObject(a.Object) < renderObject(b.Object)
	})
}
