package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertAreas inserts or replaces entries in the area name index.
func (s *SQLiteStore) UpsertAreas(ctx context.Context, areas []Area) error {
	if len(areas) == 0 {
		return nil
	}
	return s.RunAtomic(ctx, func(tx Tx) error {
		return tx.UpsertAreas(ctx, areas)
	})
}

func upsertAreas(ctx context.Context, q dbtx, areas []Area) error {
	if len(areas) == 0 {
		return nil
	}
	stmt, err := q.PrepareContext(ctx,
		"INSERT OR REPLACE INTO areas (area_code, area_name, area_type) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare area upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range areas {
		if _, err := stmt.ExecContext(ctx, a.Code, a.Name, string(a.Type)); err != nil {
			return fmt.Errorf("failed to upsert area %s: %w", a.Code, err)
		}
	}
	return nil
}

// GetArea returns one area from the index, or nil if it is not known.
func (s *SQLiteStore) GetArea(ctx context.Context, code string) (*Area, error) {
	var a Area
	var areaType string
	err := s.db.QueryRowContext(ctx,
		"SELECT area_code, area_name, area_type FROM areas WHERE area_code = ?", code,
	).Scan(&a.Code, &a.Name, &areaType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get area %s: %w", code, err)
	}
	a.Type = AreaType(areaType)
	return &a, nil
}

// CountAreas returns the size of the area name index.
func (s *SQLiteStore) CountAreas(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM areas").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count areas: %w", err)
	}
	return n, nil
}

// SearchAreasByNamePrefix matches area names against a LIKE pattern. The
// pattern must already have %, _ and \ escaped with a backslash.
func (s *SQLiteStore) SearchAreasByNamePrefix(ctx context.Context, pattern string) ([]Area, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT area_code, area_name, area_type FROM areas
		 WHERE area_name LIKE ? ESCAPE '\'
		 ORDER BY area_name, area_code`,
		pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search areas: %w", err)
	}
	defer rows.Close()

	var areas []Area
	for rows.Next() {
		var a Area
		var areaType string
		if err := rows.Scan(&a.Code, &a.Name, &areaType); err != nil {
			return nil, fmt.Errorf("failed to scan area: %w", err)
		}
		a.Type = AreaType(areaType)
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

const lookupColumns = `code, lsoa, lsoa_name, msoa, msoa_name, ltla, ltla_name,
	utla, utla_name, region, region_name, nation, nation_name,
	nhs_region, nhs_region_name, nhs_trust, nhs_trust_name`

// AreaLookup returns the cached hierarchy for code, or nil if none is cached.
func (s *SQLiteStore) AreaLookup(ctx context.Context, code string) (*AreaLookup, error) {
	var l AreaLookup
	err := s.db.QueryRowContext(ctx,
		"SELECT "+lookupColumns+" FROM area_lookups WHERE code = ?", code,
	).Scan(
		&l.Code, &l.LSOA, &l.LSOAName, &l.MSOA, &l.MSOAName, &l.LTLA, &l.LTLAName,
		&l.UTLA, &l.UTLAName, &l.Region, &l.RegionName, &l.Nation, &l.NationName,
		&l.NHSRegion, &l.NHSRegionName, &l.NHSTrust, &l.NHSTrustName,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get area lookup %s: %w", code, err)
	}
	return &l, nil
}

// UpsertAreaLookup caches a lookup, replacing any previous one for the code.
func (s *SQLiteStore) UpsertAreaLookup(ctx context.Context, l AreaLookup) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO area_lookups ("+lookupColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Code, l.LSOA, l.LSOAName, l.MSOA, l.MSOAName, l.LTLA, l.LTLAName,
		l.UTLA, l.UTLAName, l.Region, l.RegionName, l.Nation, l.NationName,
		l.NHSRegion, l.NHSRegionName, l.NHSTrust, l.NHSTrustName,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert area lookup %s: %w", l.Code, err)
	}
	return nil
}
