// Package sqlite caches country reference facts between runs, so codes the
// knowledge base already answered do not need another round trip and codes it
// could not answer this run can still be served from an earlier one.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"tradeatlas/internal/model"
)

type Cache struct {
	db *sql.DB
}

func New(path string) (*Cache, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	cache := &Cache{db: db}
	if err := cache.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return cache, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Put upserts facts keyed by ISO3 code.
func (c *Cache) Put(ctx context.Context, facts []model.CountryFact) error {
	if len(facts) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO country_facts (
			iso3, label, capital, population, has_population,
			latitude, longitude, has_coordinates, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(iso3) DO UPDATE SET
			label = excluded.label,
			capital = excluded.capital,
			population = excluded.population,
			has_population = excluded.has_population,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			has_coordinates = excluded.has_coordinates,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, fact := range facts {
		if fact.ISO3 == "" {
			continue
		}
		_, err = stmt.ExecContext(
			ctx,
			fact.ISO3,
			fact.Label,
			fact.Capital,
			fact.Population,
			fact.HasPopulation,
			fact.Latitude,
			fact.Longitude,
			fact.HasCoordinates,
			now,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := putSeries(ctx, tx, fact); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// putSeries replaces the measurement and membership rows for one country.
// Delete-then-insert keeps the stored series an exact copy of the fact.
func putSeries(ctx context.Context, tx *sql.Tx, fact model.CountryFact) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM country_measurements WHERE iso3 = ?`, fact.ISO3); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM country_memberships WHERE iso3 = ?`, fact.ISO3); err != nil {
		return err
	}
	for _, m := range fact.Measurements {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO country_measurements (iso3, kind, year, value)
			VALUES (?, ?, ?, ?)`,
			fact.ISO3, string(m.Kind), m.Year, m.Value,
		)
		if err != nil {
			return err
		}
	}
	for _, org := range fact.Memberships {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO country_memberships (iso3, org_id, org_label)
			VALUES (?, ?, ?)`,
			fact.ISO3, org.ID, org.Label,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Get returns cached facts for whichever of the given codes are present.
func (c *Cache) Get(ctx context.Context, codes []string) (map[string]model.CountryFact, error) {
	facts := make(map[string]model.CountryFact)
	if len(codes) == 0 {
		return facts, nil
	}

	query := `
		SELECT iso3, label, capital, population, has_population,
		       latitude, longitude, has_coordinates
		FROM country_facts
		WHERE iso3 IN (` + placeholders(len(codes)) + `)`

	rows, err := c.db.QueryContext(ctx, query, asArgs(codes)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var fact model.CountryFact
		if err := rows.Scan(
			&fact.ISO3,
			&fact.Label,
			&fact.Capital,
			&fact.Population,
			&fact.HasPopulation,
			&fact.Latitude,
			&fact.Longitude,
			&fact.HasCoordinates,
		); err != nil {
			return nil, err
		}
		facts[fact.ISO3] = fact
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return facts, nil
	}

	found := make([]string, 0, len(facts))
	for code := range facts {
		found = append(found, code)
	}
	if err := c.loadMeasurements(ctx, facts, found); err != nil {
		return nil, err
	}
	if err := c.loadMemberships(ctx, facts, found); err != nil {
		return nil, err
	}
	for code, fact := range facts {
		fact.Normalize()
		facts[code] = fact
	}
	return facts, nil
}

func (c *Cache) loadMeasurements(ctx context.Context, facts map[string]model.CountryFact, codes []string) error {
	query := `
		SELECT iso3, kind, year, value
		FROM country_measurements
		WHERE iso3 IN (` + placeholders(len(codes)) + `)`
	rows, err := c.db.QueryContext(ctx, query, asArgs(codes)...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var iso3, kind string
		var m model.Measurement
		if err := rows.Scan(&iso3, &kind, &m.Year, &m.Value); err != nil {
			return err
		}
		m.Kind = model.IndicatorKind(kind)
		fact := facts[iso3]
		fact.Measurements = append(fact.Measurements, m)
		facts[iso3] = fact
	}
	return rows.Err()
}

func (c *Cache) loadMemberships(ctx context.Context, facts map[string]model.CountryFact, codes []string) error {
	query := `
		SELECT iso3, org_id, org_label
		FROM country_memberships
		WHERE iso3 IN (` + placeholders(len(codes)) + `)`
	rows, err := c.db.QueryContext(ctx, query, asArgs(codes)...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var iso3 string
		var org model.Organization
		if err := rows.Scan(&iso3, &org.ID, &org.Label); err != nil {
			return err
		}
		fact := facts[iso3]
		fact.Memberships = append(fact.Memberships, org)
		facts[iso3] = fact
	}
	return rows.Err()
}

func (c *Cache) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS country_facts (
			iso3 TEXT NOT NULL PRIMARY KEY,
			label TEXT NOT NULL,
			capital TEXT NOT NULL,
			population INTEGER NOT NULL,
			has_population INTEGER NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			has_coordinates INTEGER NOT NULL,
			fetched_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS country_measurements (
			iso3 TEXT NOT NULL,
			kind TEXT NOT NULL,
			year INTEGER NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (iso3, kind, year)
		);`,
		`CREATE TABLE IF NOT EXISTS country_memberships (
			iso3 TEXT NOT NULL,
			org_id TEXT NOT NULL,
			org_label TEXT NOT NULL,
			PRIMARY KEY (iso3, org_id)
		);`,
	}

	for _, statement := range statements {
		if _, err := c.db.Exec(statement); err != nil {
			return err
		}
	}
	return nil
}

func asArgs(codes []string) []any {
	args := make([]any, 0, len(codes))
	for _, code := range codes {
		args = append(args, code)
	}
	return args
}

func placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	out := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
