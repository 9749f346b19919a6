package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed Store.
type SQLiteStore struct {
	db *sql.DB
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query helper can
// run inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// NewSQLiteStore opens (creating if needed) the database and initializes the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers; category syncs queue for it
	// instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RunAtomic runs fn inside a transaction. The transaction commits only if fn
// returns nil; any error or panic rolls back every write made through tx.
func (s *SQLiteStore) RunAtomic(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&sqliteTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) UpsertRecords(ctx context.Context, table Table, records []DailyRecord) error {
	return upsertRecords(ctx, t.tx, table, records)
}

func (t *sqliteTx) UpsertMetadata(ctx context.Context, m Metadata) error {
	return upsertMetadata(ctx, t.tx, m)
}

func (t *sqliteTx) UpsertAreas(ctx context.Context, areas []Area) error {
	return upsertAreas(ctx, t.tx, areas)
}

// Metadata returns the freshness cursor for a category, or nil if the
// category has never been seeded.
func (s *SQLiteStore) Metadata(ctx context.Context, id string) (*Metadata, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT last_updated_at FROM metadata WHERE id = ?", id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata %s: %w", id, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("bad last_updated_at for %s: %w", id, err)
	}
	return &Metadata{ID: id, LastUpdatedAt: ts}, nil
}

// UpsertMetadata creates or replaces a category's cursor.
func (s *SQLiteStore) UpsertMetadata(ctx context.Context, m Metadata) error {
	return upsertMetadata(ctx, s.db, m)
}

func upsertMetadata(ctx context.Context, q dbtx, m Metadata) error {
	_, err := q.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata (id, last_updated_at) VALUES (?, ?)",
		m.ID, m.LastUpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert metadata %s: %w", m.ID, err)
	}
	return nil
}

// SaveArea pins an area so its series survives pruning.
func (s *SQLiteStore) SaveArea(ctx context.Context, areaCode string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO saved_areas (area_code) VALUES (?)", areaCode)
	if err != nil {
		return fmt.Errorf("failed to save area: %w", err)
	}
	return nil
}

// DeleteSavedArea unpins an area. Its cached series is left for the next prune.
func (s *SQLiteStore) DeleteSavedArea(ctx context.Context, areaCode string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM saved_areas WHERE area_code = ?", areaCode)
	if err != nil {
		return fmt.Errorf("failed to delete saved area: %w", err)
	}
	return nil
}

// ListSavedAreas returns saved area codes in the order they were saved.
func (s *SQLiteStore) ListSavedAreas(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT area_code FROM saved_areas ORDER BY saved_at, area_code")
	if err != nil {
		return nil, fmt.Errorf("failed to list saved areas: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan saved area: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// CountSavedAreas returns the number of saved areas.
func (s *SQLiteStore) CountSavedAreas(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM saved_areas").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count saved areas: %w", err)
	}
	return n, nil
}

// PruneAreaData deletes every area_data row and AREA_DATA_* metadata row whose
// area code is neither in keep nor saved. Both deletes share one transaction.
func (s *SQLiteStore) PruneAreaData(ctx context.Context, keep ...string) (PruneStats, error) {
	var stats PruneStats

	notKept := ""
	args := make([]any, 0, len(keep))
	if len(keep) > 0 {
		notKept = "%[1]s NOT IN (" + strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",") + ") AND "
		for _, k := range keep {
			args = append(args, k)
		}
	}
	savedFilter := "%[1]s NOT IN (SELECT area_code FROM saved_areas)"

	recordsSQL := "DELETE FROM area_data WHERE " +
		fmt.Sprintf(notKept+savedFilter, "area_code")
	metaCode := fmt.Sprintf("substr(id, %d)", len(areaDataPrefix)+1)
	metadataSQL := `DELETE FROM metadata WHERE id LIKE 'AREA\_DATA\_%' ESCAPE '\' AND ` +
		fmt.Sprintf(notKept+savedFilter, metaCode)

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin prune: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx, recordsSQL, args...)
	if err != nil {
		return stats, fmt.Errorf("failed to prune area data: %w", err)
	}
	stats.RecordsDeleted, _ = res.RowsAffected()

	res, err = sqlTx.ExecContext(ctx, metadataSQL, args...)
	if err != nil {
		return stats, fmt.Errorf("failed to prune area metadata: %w", err)
	}
	stats.MetadataDeleted, _ = res.RowsAffected()

	if err := sqlTx.Commit(); err != nil {
		return PruneStats{}, fmt.Errorf("failed to commit prune: %w", err)
	}
	return stats, nil
}
