package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const recordColumns = "area_code, area_name, area_type, date, new_value, cumulative_value, rate"

// UpsertRecords inserts or replaces records keyed by (area_code, date).
func (s *SQLiteStore) UpsertRecords(ctx context.Context, table Table, records []DailyRecord) error {
	if err := table.recordTable(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	return s.RunAtomic(ctx, func(tx Tx) error {
		return tx.UpsertRecords(ctx, table, records)
	})
}

func upsertRecords(ctx context.Context, q dbtx, table Table, records []DailyRecord) error {
	if err := table.recordTable(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	stmt, err := q.PrepareContext(ctx, fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)", table, recordColumns))
	if err != nil {
		return fmt.Errorf("failed to prepare %s upsert: %w", table, err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.AreaCode, r.AreaName, string(r.AreaType), FormatDay(r.Date),
			r.NewValue, r.CumulativeValue, r.Rate,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert %s record %s/%s: %w",
				table, r.AreaCode, FormatDay(r.Date), err)
		}
	}
	return nil
}

// Series returns one area's records from table, oldest first.
func (s *SQLiteStore) Series(ctx context.Context, table Table, areaCode string) ([]DailyRecord, error) {
	if err := table.recordTable(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM %s WHERE area_code = ? ORDER BY date ASC", recordColumns, table),
		areaCode,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s series: %w", table, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// AreaSeries returns the cached per-area series for areaCode, oldest first.
func (s *SQLiteStore) AreaSeries(ctx context.Context, areaCode string) ([]DailyRecord, error) {
	return s.Series(ctx, TableAreaData, areaCode)
}

// RecordsSince returns every record of areaType dated on or after since,
// grouped by area and ordered by date within each area.
func (s *SQLiteStore) RecordsSince(ctx context.Context, table Table, areaType AreaType, since time.Time) ([]DailyRecord, error) {
	if err := table.recordTable(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM %s WHERE area_type = ? AND date >= ? ORDER BY area_code, date", recordColumns, table),
		string(areaType), FormatDay(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s since %s: %w", table, FormatDay(since), err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// LatestDate returns the newest date in table, optionally restricted to one
// area. The bool is false when there are no matching rows.
func (s *SQLiteStore) LatestDate(ctx context.Context, table Table, areaCode string) (time.Time, bool, error) {
	if err := table.recordTable(); err != nil {
		return time.Time{}, false, err
	}
	var latest sql.NullString
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT MAX(date) FROM %s WHERE (? = '' OR area_code = ?)", table),
		areaCode, areaCode,
	).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get latest %s date: %w", table, err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	day, err := ParseDay(latest.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("bad date in %s: %w", table, err)
	}
	return day, true, nil
}

// CountRecords counts rows in table, optionally restricted to one area.
func (s *SQLiteStore) CountRecords(ctx context.Context, table Table, areaCode string) (int, error) {
	if err := table.recordTable(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE (? = '' OR area_code = ?)", table),
		areaCode, areaCode,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// HasData reports whether any record table holds at least one row.
func (s *SQLiteStore) HasData(ctx context.Context) (bool, error) {
	var has bool
	err := s.db.QueryRowContext(ctx, `SELECT
		EXISTS(SELECT 1 FROM area_data) OR
		EXISTS(SELECT 1 FROM cases) OR
		EXISTS(SELECT 1 FROM deaths)`,
	).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("failed to check for data: %w", err)
	}
	return has, nil
}

func scanRecords(rows *sql.Rows) ([]DailyRecord, error) {
	var records []DailyRecord
	for rows.Next() {
		var r DailyRecord
		var areaType, date string
		if err := rows.Scan(&r.AreaCode, &r.AreaName, &areaType, &date,
			&r.NewValue, &r.CumulativeValue, &r.Rate); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		day, err := ParseDay(date)
		if err != nil {
			return nil, fmt.Errorf("bad date for %s: %w", r.AreaCode, err)
		}
		r.AreaType = AreaType(areaType)
		r.Date = day
		records = append(records, r)
	}
	return records, rows.Err()
}
