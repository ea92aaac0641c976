package database

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"flight_collector/internal/models"
)

type AircraftRepository interface {
	InsertBatch(aircraft []*models.RegistryRecord) error
	IsTablePopulated() (bool, error)
	LoadFromMultipleCSV(csvPaths []string, batchSize int) error
	LoadFromCSV(r io.Reader, batchSize int) error
	Lookup(ctx context.Context, icao24 string) (*models.RegistryRecord, bool, error)
}

type aircraftRepository struct {
	db *sql.DB
}

func NewAircraftRepository(db *sql.DB) AircraftRepository {
	return &aircraftRepository{db: db}
}

// InsertBatch inserts or replaces one or more registry records in a single transaction
func (r *aircraftRepository) InsertBatch(aircraft []*models.RegistryRecord) error {
	if len(aircraft) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO aircraft (
		icao24, registration, manufacturerName, model, typecode, icaoAircraftClass,
		categoryDescription, operator, operatorIcao, owner, country, built
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ac := range aircraft {
		if _, err := stmt.Exec(
			ac.ICAO24, ac.Registration, ac.ManufacturerName, ac.Model,
			ac.TypeCode, ac.ICAOAircraftClass, ac.CategoryDescription,
			ac.Operator, ac.OperatorICAO, ac.Owner, ac.Country, ac.Built,
		); err != nil {
			return fmt.Errorf("failed to insert aircraft %s: %w", ac.ICAO24, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *aircraftRepository) IsTablePopulated() (bool, error) {
	var ignored int
	err := r.db.QueryRow("SELECT 1 FROM aircraft LIMIT 1").Scan(&ignored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check aircraft table: %w", err)
	}
	return true, nil
}

// Lookup returns the registry record for an ICAO address. A miss is not an error.
func (r *aircraftRepository) Lookup(ctx context.Context, icao24 string) (*models.RegistryRecord, bool, error) {
	var rec models.RegistryRecord
	err := r.db.QueryRowContext(ctx, `SELECT
		icao24, registration, manufacturerName, model, typecode, icaoAircraftClass,
		categoryDescription, operator, operatorIcao, owner, country, built
		FROM aircraft WHERE icao24 = ?`, models.NormalizeHex(icao24)).Scan(
		&rec.ICAO24, &rec.Registration, &rec.ManufacturerName, &rec.Model,
		&rec.TypeCode, &rec.ICAOAircraftClass, &rec.CategoryDescription,
		&rec.Operator, &rec.OperatorICAO, &rec.Owner, &rec.Country, &rec.Built,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up aircraft %s: %w", icao24, err)
	}
	return &rec, true, nil
}

// LoadFromMultipleCSV loads the aircraft database from several CSV parts.
// The export is split so each part stays below hosting size limits.
func (r *aircraftRepository) LoadFromMultipleCSV(csvPaths []string, batchSize int) error {
	for _, csvPath := range csvPaths {
		if err := r.loadFile(csvPath, batchSize); err != nil {
			return err
		}
	}
	return nil
}

func (r *aircraftRepository) loadFile(csvPath string, batchSize int) error {
	file, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file %s: %w", csvPath, err)
	}
	defer file.Close()

	if err := r.LoadFromCSV(file, batchSize); err != nil {
		return fmt.Errorf("failed to load %s: %w", csvPath, err)
	}
	return nil
}

// LoadFromCSV loads registry records from one CSV stream with a header row
func (r *aircraftRepository) LoadFromCSV(in io.Reader, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1000
	}

	reader := csv.NewReader(in)
	reader.LazyQuotes = true    // Handle malformed quotes in CSV
	reader.FieldsPerRecord = -1 // Allow variable number of fields per record

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	headerMap := make(map[string]int, len(header))
	for i, h := range header {
		headerMap[strings.Trim(strings.TrimSpace(h), "'\"")] = i
	}

	batch := make([]*models.RegistryRecord, 0, batchSize)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV record: %w", err)
		}

		if len(record) != len(header) {
			continue
		}

		ac := &models.RegistryRecord{
			ICAO24:              models.NormalizeHex(getField(record, headerMap, "icao24")),
			Registration:        getField(record, headerMap, "registration"),
			ManufacturerName:    getField(record, headerMap, "manufacturerName"),
			Model:               getField(record, headerMap, "model"),
			TypeCode:            getField(record, headerMap, "typecode"),
			ICAOAircraftClass:   getField(record, headerMap, "icaoAircraftClass"),
			CategoryDescription: getField(record, headerMap, "categoryDescription"),
			Operator:            getField(record, headerMap, "operator"),
			OperatorICAO:        getField(record, headerMap, "operatorIcao"),
			Owner:               getField(record, headerMap, "owner"),
			Country:             getField(record, headerMap, "country"),
			Built:               getField(record, headerMap, "built"),
		}

		// Skip records without ICAO24 (invalid data)
		if ac.ICAO24 == "" {
			continue
		}

		batch = append(batch, ac)

		if len(batch) >= batchSize {
			if err := r.InsertBatch(batch); err != nil {
				return fmt.Errorf("failed to insert batch: %w", err)
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := r.InsertBatch(batch); err != nil {
			return fmt.Errorf("failed to insert final batch: %w", err)
		}
	}

	return nil
}

// getField safely retrieves a field from a CSV record by header name
func getField(record []string, headerMap map[string]int, fieldName string) string {
	if idx, ok := headerMap[fieldName]; ok && idx < len(record) {
		return strings.Trim(strings.TrimSpace(record[idx]), "'\"")
	}
	return ""
}
