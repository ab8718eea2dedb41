package catalog

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFarms(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT farm_id, name, location, created_at FROM farms`)).
		WillReturnRows(sqlmock.NewRows([]string{"farm_id", "name", "location", "created_at"}).
			AddRow(int64(1), "North", "Kranji", created).
			AddRow(int64(2), "South", nil, created))

	farms, err := New(db).Farms(context.Background())
	require.NoError(t, err)
	require.Len(t, farms, 2)
	assert.Equal(t, "Kranji", *farms[0].Location)
	assert.Nil(t, farms[1].Location)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFarms_Failure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM farms`).WillReturnError(errors.New("connection refused"))
	_, err = New(db).Farms(context.Background())
	assert.ErrorContains(t, err, "cannot list farms")
}

func TestPlants(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`JOIN plant_species ps ON p.species_id = ps.species_id`)).
		WillReturnRows(sqlmock.NewRows([]string{"plant_id", "farm_id", "species_id", "name", "planted_at", "species_name", "farm_name"}).
			AddRow(int64(5), int64(1), int64(2), "Bed A", nil, "Basil", "North"))

	plants, err := New(db).Plants(context.Background())
	require.NoError(t, err)
	require.Len(t, plants, 1)
	assert.Equal(t, "Basil", plants[0].SpeciesName)
	assert.Equal(t, "North", plants[0].FarmName)
	assert.Equal(t, "Bed A", *plants[0].Name)
	assert.Nil(t, plants[0].PlantedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSensors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	columns := []string{"sensor_id", "farm_id", "plant_id", "sensor_type", "unit", "installed_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM sensors ORDER BY sensor_id`)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(1), int64(1), nil, "temperature", "C", nil).
			AddRow(int64(2), nil, int64(5), "humidity", nil, time.Now()))

	sensors, err := New(db).Sensors(context.Background())
	require.NoError(t, err)
	require.Len(t, sensors, 2)
	assert.Equal(t, "temperature", sensors[0].SensorType)
	assert.Nil(t, sensors[0].PlantID)
	assert.Equal(t, int64(5), *sensors[1].PlantID)
	assert.NotNil(t, sensors[1].InstalledAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSensor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	columns := []string{"sensor_id", "farm_id", "plant_id", "sensor_type", "unit", "installed_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM sensors WHERE sensor_id = $1`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(1), int64(1), nil, "temperature", "C", nil))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM sensors WHERE sensor_id = $1`)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(columns))

	c := New(db)
	s, err := c.Sensor(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "C", *s.Unit)

	_, err = c.Sensor(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
