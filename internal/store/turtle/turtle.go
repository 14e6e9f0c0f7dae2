// Package turtle is the file-backed graph store.
package turtle

import (
	"fmt"
	"os"

	"tradeatlas/internal/graph"
	"tradeatlas/internal/store"
)

type Store struct {
	path string
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("turtle: path is required")
	}
	return &Store{path: path}, nil
}

// Path returns the graph file this store owns.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Purge() error {
	file, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("turtle: purge %s: %w", s.path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("turtle: purge %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) Append(triples []graph.Triple) error {
	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("turtle: open %s: %w", s.path, err)
	}
	if err := graph.Encode(file, triples); err != nil {
		_ = file.Close()
		return fmt.Errorf("turtle: write %s: %w", s.path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("turtle: write %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) Load() ([]graph.Triple, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("turtle: open %s: %w", s.path, err)
	}
	defer file.Close()

	triples, err := graph.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("turtle: read %s: %w", s.path, err)
	}
	return triples, nil
}

func (s *Store) Close() error {
	return nil
}

var _ store.Store = (*Store)(nil)
