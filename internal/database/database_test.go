package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flight_collector/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registryCSV = `'icao24','registration','manufacturerName','model','typecode','icaoAircraftClass','operator','owner'
'a1b2c3','N123AB','Airbus Helicopters','EC135 P2+','EC35','H2T','Air Evac','Air Evac Lifeteam'
'ABC123','N456CD','Boeing','737-800','B738','L2J','','Southwest Airlines'
'','N000XX','Cessna','172','C172','L1P','',''
'short','row'
`

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	require.NotNil(t, db)

	t.Cleanup(func() {
		assert.NoError(t, db.Close())
	})
	return db
}

func TestNew(t *testing.T) {
	db := setupTestDB(t)

	populated, err := db.AircraftRepository().IsTablePopulated()
	require.NoError(t, err)
	assert.False(t, populated)
}

func TestLoadFromCSV(t *testing.T) {
	db := setupTestDB(t)
	repo := db.AircraftRepository()

	require.NoError(t, repo.LoadFromCSV(strings.NewReader(registryCSV), 1))

	populated, err := repo.IsTablePopulated()
	require.NoError(t, err)
	assert.True(t, populated)

	rec, ok, err := repo.Lookup(context.Background(), "A1B2C3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "EC135 P2+", rec.Model)
	assert.Equal(t, "EC35", rec.TypeCode)
	assert.Equal(t, "H2T", rec.ICAOAircraftClass)
	assert.Equal(t, "Air Evac", rec.OperatorName())

	// Upper-case identifiers in the CSV are normalized on import
	rec, ok, err = repo.Lookup(context.Background(), "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Southwest Airlines", rec.OperatorName(), "owner is the operator fallback")
}

func TestLookup_Miss(t *testing.T) {
	db := setupTestDB(t)

	rec, ok, err := db.AircraftRepository().Lookup(context.Background(), "ffffff")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestLoadFromMultipleCSV(t *testing.T) {
	db := setupTestDB(t)
	repo := db.AircraftRepository()

	dir := t.TempDir()
	part1 := filepath.Join(dir, "part1.csv")
	part2 := filepath.Join(dir, "part2.csv")
	require.NoError(t, os.WriteFile(part1, []byte(registryCSV), 0o600))
	require.NoError(t, os.WriteFile(part2, []byte("icao24,model,typecode\n4840d6,Fokker 70,F70\n"), 0o600))

	require.NoError(t, repo.LoadFromMultipleCSV([]string{part1, part2}, 100))

	rec, ok, err := repo.Lookup(context.Background(), "4840d6")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "F70", rec.TypeCode)

	err = repo.LoadFromMultipleCSV([]string{filepath.Join(dir, "missing.csv")}, 100)
	assert.Error(t, err)
}

func TestInsertBatch_Empty(t *testing.T) {
	db := setupTestDB(t)

	// Empty batch should not error
	err := db.AircraftRepository().InsertBatch([]*models.RegistryRecord{})
	assert.NoError(t, err)
}

func TestInsertBatch_Replace(t *testing.T) {
	db := setupTestDB(t)
	repo := db.AircraftRepository()

	require.NoError(t, repo.InsertBatch([]*models.RegistryRecord{{ICAO24: "abc123", Model: "old"}}))
	require.NoError(t, repo.InsertBatch([]*models.RegistryRecord{{ICAO24: "abc123", Model: "new"}}))

	rec, ok, err := repo.Lookup(context.Background(), "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", rec.Model)
}
