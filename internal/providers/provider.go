package providers

import (
	"context"

	"tradeatlas/internal/model"
)

// Result is what a reference-data lookup produced. Facts may cover only part
// of the requested codes; Unresolved lists the rest. Callers must tolerate
// partial enrichment.
type Result struct {
	Facts      map[string]model.CountryFact
	Unresolved []string
}

// ReferenceProvider resolves country codes to reference facts from an
// external knowledge base.
type ReferenceProvider interface {
	Name() string
	// FetchFacts resolves the given codes in as few round trips as the
	// backend allows. A non-nil error means the backend was unreachable
	// even after retries; the Result still carries whatever was resolved
	// before the failure.
	FetchFacts(ctx context.Context, codes []string) (Result, error)
}
