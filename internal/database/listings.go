package database

import (
	"database/sql"
	"fmt"
	"time"

	"athensenergy/server/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListingRow is the persisted form of a PropertyRecord.
type ListingRow struct {
	ID                   string `gorm:"primaryKey"`
	SourceURL            string
	Neighborhood         string
	Price                *float64
	AreaSqm              *float64
	EnergyClass          string
	EnergyClassConfirmed bool
	Latitude             *float64
	Longitude            *float64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (ListingRow) TableName() string {
	return "listings"
}

func listingRow(r models.PropertyRecord) ListingRow {
	return ListingRow{
		ID:                   r.ID,
		SourceURL:            r.SourceURL,
		Neighborhood:         r.Neighborhood,
		Price:                r.Price,
		AreaSqm:              r.AreaSqm,
		EnergyClass:          r.EnergyClass.String(),
		EnergyClassConfirmed: r.EnergyClassConfirmed,
		Latitude:             r.Latitude,
		Longitude:            r.Longitude,
	}
}

// UpsertListings inserts or refreshes a batch inside tx. Later duplicates of
// the same id within the batch win.
func UpsertListings(tx *gorm.DB, records []models.PropertyRecord) error {
	if len(records) == 0 {
		return nil
	}

	position := make(map[string]int, len(records))
	rows := make([]ListingRow, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("listing without id in batch")
		}
		if i, ok := position[r.ID]; ok {
			rows[i] = listingRow(r)
			continue
		}
		position[r.ID] = len(rows)
		rows = append(rows, listingRow(r))
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_url", "neighborhood", "price", "area_sqm", "energy_class",
			"energy_class_confirmed", "latitude", "longitude", "updated_at",
		}),
	}).Create(&rows).Error
}

// GetListings returns stored listings in insertion order, optionally limited
// to one neighborhood (case-insensitive).
func (d *Database) GetListings(neighborhood string) ([]models.PropertyRecord, error) {
	rows, err := d.db.Query(`
		SELECT id, COALESCE(source_url, ''), neighborhood, price, area_sqm,
		       energy_class, energy_class_confirmed, latitude, longitude
		FROM listings
		WHERE (? = '' OR LOWER(TRIM(neighborhood)) = LOWER(TRIM(?)))
		ORDER BY rowid
	`, neighborhood, neighborhood)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var records []models.PropertyRecord
	for rows.Next() {
		var r models.PropertyRecord
		var class string
		var price, area, lat, lon sql.NullFloat64

		if err := rows.Scan(
			&r.ID,
			&r.SourceURL,
			&r.Neighborhood,
			&price,
			&area,
			&class,
			&r.EnergyClassConfirmed,
			&lat,
			&lon,
		); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}

		r.Price = nullableFloat(price)
		r.AreaSqm = nullableFloat(area)
		r.Latitude = nullableFloat(lat)
		r.Longitude = nullableFloat(lon)
		if parsed, err := models.ParseEnergyClass(class); err == nil {
			r.EnergyClass = parsed
		}

		records = append(records, r)
	}
	return records, rows.Err()
}

// CountListings returns the number of stored listings.
func (d *Database) CountListings() (int, error) {
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM listings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return n, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
