package database

import "fmt"

var migrations = []struct {
	name string
	sql  string
}{
	{"listings", `
		CREATE TABLE IF NOT EXISTS listings (
			id TEXT PRIMARY KEY,
			source_url TEXT,
			neighborhood TEXT NOT NULL DEFAULT '',
			price REAL,
			area_sqm REAL,
			energy_class TEXT NOT NULL DEFAULT '',
			energy_class_confirmed BOOLEAN NOT NULL DEFAULT 0,
			latitude REAL,
			longitude REAL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`},
	{"listings neighborhood index", `
		CREATE INDEX IF NOT EXISTS idx_listings_neighborhood
		ON listings(neighborhood);`},
	{"listings coordinates index", `
		CREATE INDEX IF NOT EXISTS idx_listings_coordinates
		ON listings(latitude, longitude);`},
	{"runs", `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TIMESTAMP NOT NULL,
			duration_ms INTEGER NOT NULL,
			strategy TEXT NOT NULL,
			settings TEXT NOT NULL,
			input_count INTEGER NOT NULL,
			clean_count INTEGER NOT NULL,
			rejected_count INTEGER NOT NULL,
			warned_count INTEGER NOT NULL,
			group_count INTEGER NOT NULL
		);`},
	{"run_groups", `
		CREATE TABLE IF NOT EXISTS run_groups (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			group_id TEXT NOT NULL,
			base_key TEXT NOT NULL,
			member_count INTEGER NOT NULL,
			status TEXT NOT NULL,
			weighted_median TEXT,
			summary TEXT NOT NULL,
			members TEXT NOT NULL,
			PRIMARY KEY (run_id, position)
		);`},
	{"run_rejections", `
		CREATE TABLE IF NOT EXISTS run_rejections (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			record_id TEXT NOT NULL,
			flags TEXT NOT NULL,
			record TEXT NOT NULL,
			PRIMARY KEY (run_id, position)
		);`},
}

// RunMigrations creates the schema. It is safe to call on every start.
func (d *Database) RunMigrations() error {
	for _, m := range migrations {
		if _, err := d.db.Exec(m.sql); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", m.name, err)
		}
	}
	return nil
}
