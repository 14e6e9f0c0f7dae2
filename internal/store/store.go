// Package store defines the graph store handle passed to every component
// that reads or writes a graph file.
package store

import "tradeatlas/internal/graph"

// Store owns one on-disk graph file. Append is blind append; a clean rebuild
// is Purge followed by Append. Any error from these operations is fatal for
// the run.
type Store interface {
	// Purge destructively empties the graph file, leaving it valid but
	// empty. Idempotent.
	Purge() error
	// Append adds triples to the graph file, creating it if absent.
	Append(triples []graph.Triple) error
	// Load reads every triple currently in the graph file.
	Load() ([]graph.Triple, error)
	Close() error
}

// NopStore discards writes and loads nothing. Used when persistence is
// disabled.
type NopStore struct{}

func (s *NopStore) Purge() error {
	return nil
}

func (s *NopStore) Append(triples []graph.Triple) error {
	_ = triples
	return nil
}

func (s *NopStore) Load() ([]graph.Triple, error) {
	return nil, nil
}

func (s *NopStore) Close() error {
	return nil
}
