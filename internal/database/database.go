package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite aircraft registry
type DB struct {
	db       *sql.DB
	aircraft AircraftRepository
}

// New opens (or creates) the registry database and prepares its schema
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := optimizeSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to optimize database: %w", err)
	}

	database := &DB{
		db:       db,
		aircraft: NewAircraftRepository(db),
	}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// optimizeSQLite tunes SQLite for a read-mostly lookup table
func optimizeSQLite(db *sql.DB) error {
	// WAL allows concurrent readers while the CSV import writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// 64MB page cache, the registry is hit once per aircraft per cycle
	if _, err := db.Exec("PRAGMA cache_size=-64000"); err != nil {
		return fmt.Errorf("failed to set cache size: %w", err)
	}

	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA temp_store=MEMORY"); err != nil {
		return fmt.Errorf("failed to set temp_store: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return nil
}

// AircraftRepository returns the registry repository
func (d *DB) AircraftRepository() AircraftRepository {
	return d.aircraft
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// initSchema creates the registry table if it doesn't exist
func (d *DB) initSchema() error {
	aircraftSchema := `CREATE TABLE IF NOT EXISTS aircraft (
		icao24 TEXT PRIMARY KEY,
		registration TEXT,
		manufacturerName TEXT,
		model TEXT,
		typecode TEXT,
		icaoAircraftClass TEXT,
		categoryDescription TEXT,
		operator TEXT,
		operatorIcao TEXT,
		owner TEXT,
		country TEXT,
		built TEXT
	);`

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_aircraft_typecode ON aircraft(typecode)`,
		`CREATE INDEX IF NOT EXISTS idx_aircraft_registration ON aircraft(registration)`,
	}

	if _, err := d.db.Exec(aircraftSchema); err != nil {
		return fmt.Errorf("failed to create aircraft table: %w", err)
	}

	for _, idx := range indexes {
		if _, err := d.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
