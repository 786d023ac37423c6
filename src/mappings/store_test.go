package mappings_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/portfolioxray/backend/src/database"
	"github.com/username/portfolioxray/backend/src/ingestion"
	"github.com/username/portfolioxray/backend/src/logger"
	"github.com/username/portfolioxray/backend/src/mappings"
)

func setupStore(t *testing.T) *mappings.Store {
	t.Helper()
	logger.InitLogger("error")
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	return mappings.NewStore(database.DB, ingestion.DefaultSchema())
}

var schwabHeaders = []string{"Symbol", "Description", "Qty", "Price", "Market Value", "Cost Basis"}

func TestResolveInfersAndMemoizes(t *testing.T) {
	store := setupStore(t)

	fm, err := store.Resolve(1, schwabHeaders, "Charles Schwab")
	require.NoError(t, err)
	assert.Equal(t, 0, fm[ingestion.FieldSymbol])
	assert.Equal(t, 2, fm[ingestion.FieldShares])
	assert.Equal(t, 4, fm[ingestion.FieldMarketValue])

	again, err := store.Resolve(1, schwabHeaders, "Charles Schwab")
	require.NoError(t, err)
	assert.Equal(t, fm, again)

	var count int
	require.NoError(t, database.DB.QueryRow(`SELECT COUNT(*) FROM mappings`).Scan(&count))
	assert.Equal(t, 1, count, "repeat resolves reuse the single stored row")

	m, err := store.Lookup(1, schwabHeaders)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Charles Schwab", m.CustodianHint)
	assert.Equal(t, 1, m.Version)
	assert.Equal(t, ingestion.HeaderSignature(schwabHeaders), m.HeaderSignature)
}

func TestResolveIsolatedPerOrg(t *testing.T) {
	store := setupStore(t)

	_, err := store.Resolve(1, schwabHeaders, "")
	require.NoError(t, err)
	_, err = store.Resolve(2, schwabHeaders, "")
	require.NoError(t, err)

	var count int
	require.NoError(t, database.DB.QueryRow(`SELECT COUNT(*) FROM mappings`).Scan(&count))
	assert.Equal(t, 2, count, "organizations never share mapping rows")
}

func TestSaveOverridesStored(t *testing.T) {
	store := setupStore(t)

	_, err := store.Resolve(1, schwabHeaders, "Charles Schwab")
	require.NoError(t, err)

	custom := ingestion.FieldMap{
		ingestion.FieldSymbol: 1,
		ingestion.FieldName:   0,
		ingestion.FieldShares: 2,
	}
	require.NoError(t, store.Save(1, schwabHeaders, "Fidelity", custom))

	fm, err := store.Resolve(1, schwabHeaders, "ignored")
	require.NoError(t, err)
	assert.Equal(t, custom, fm)

	m, err := store.Lookup(1, schwabHeaders)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Fidelity", m.CustodianHint)

	var count int
	require.NoError(t, database.DB.QueryRow(`SELECT COUNT(*) FROM mappings`).Scan(&count))
	assert.Equal(t, 1, count, "save replaces in place")
}

func TestSaveRejectsInvalidFieldMap(t *testing.T) {
	store := setupStore(t)

	var fmErr *ingestion.FieldMapError

	err := store.Save(1, schwabHeaders, "", ingestion.FieldMap{"bogus": 0})
	require.ErrorAs(t, err, &fmErr)

	err = store.Save(1, schwabHeaders, "", ingestion.FieldMap{ingestion.FieldSymbol: 99})
	require.ErrorAs(t, err, &fmErr)

	err = store.Save(1, schwabHeaders, "", ingestion.FieldMap{ingestion.FieldSymbol: 0, ingestion.FieldName: 0})
	assert.Error(t, err)

	var count int
	require.NoError(t, database.DB.QueryRow(`SELECT COUNT(*) FROM mappings`).Scan(&count))
	assert.Equal(t, 0, count, "invalid maps are never persisted")
}

func TestLookupMissing(t *testing.T) {
	store := setupStore(t)

	m, err := store.Lookup(1, []string{"Never", "Seen"})
	require.NoError(t, err)
	assert.Nil(t, m)
}
