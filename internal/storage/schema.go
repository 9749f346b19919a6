package storage

// Schema creates every table the cache needs. The three daily record tables
// share one shape and are keyed by (area_code, date); upserts replace the
// whole row on conflict.
const Schema = `
CREATE TABLE IF NOT EXISTS area_data (
    area_code TEXT NOT NULL,
    area_name TEXT NOT NULL,
    area_type TEXT NOT NULL,
    date TEXT NOT NULL,
    new_value INTEGER NOT NULL DEFAULT 0,
    cumulative_value INTEGER NOT NULL DEFAULT 0,
    rate REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (area_code, date)
);

CREATE TABLE IF NOT EXISTS cases (
    area_code TEXT NOT NULL,
    area_name TEXT NOT NULL,
    area_type TEXT NOT NULL,
    date TEXT NOT NULL,
    new_value INTEGER NOT NULL DEFAULT 0,
    cumulative_value INTEGER NOT NULL DEFAULT 0,
    rate REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (area_code, date)
);

CREATE INDEX IF NOT EXISTS idx_cases_type_date ON cases(area_type, date);

CREATE TABLE IF NOT EXISTS deaths (
    area_code TEXT NOT NULL,
    area_name TEXT NOT NULL,
    area_type TEXT NOT NULL,
    date TEXT NOT NULL,
    new_value INTEGER NOT NULL DEFAULT 0,
    cumulative_value INTEGER NOT NULL DEFAULT 0,
    rate REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (area_code, date)
);

CREATE TABLE IF NOT EXISTS metadata (
    id TEXT PRIMARY KEY,
    last_updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS saved_areas (
    area_code TEXT PRIMARY KEY,
    saved_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS areas (
    area_code TEXT PRIMARY KEY,
    area_name TEXT NOT NULL,
    area_type TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_areas_name ON areas(area_name);

CREATE TABLE IF NOT EXISTS area_lookups (
    code TEXT PRIMARY KEY,
    lsoa TEXT NOT NULL DEFAULT '',
    lsoa_name TEXT NOT NULL DEFAULT '',
    msoa TEXT NOT NULL DEFAULT '',
    msoa_name TEXT NOT NULL DEFAULT '',
    ltla TEXT NOT NULL DEFAULT '',
    ltla_name TEXT NOT NULL DEFAULT '',
    utla TEXT NOT NULL DEFAULT '',
    utla_name TEXT NOT NULL DEFAULT '',
    region TEXT NOT NULL DEFAULT '',
    region_name TEXT NOT NULL DEFAULT '',
    nation TEXT NOT NULL DEFAULT '',
    nation_name TEXT NOT NULL DEFAULT '',
    nhs_region TEXT NOT NULL DEFAULT '',
    nhs_region_name TEXT NOT NULL DEFAULT '',
    nhs_trust TEXT NOT NULL DEFAULT '',
    nhs_trust_name TEXT NOT NULL DEFAULT '',
    fetched_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
