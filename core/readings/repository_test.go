package readings

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

const insertQuery = `INSERT INTO sensor_readings (sensor_id, value, unit, timestamp, plant_id) VALUES ($1, $2, $3, $4, $5) RETURNING reading_id;`

func TestRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ts := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	plant := int64(9)

	mock.ExpectQuery(regexp.QuoteMeta(insertQuery)).
		WithArgs(int64(3), 21.5, "C", ts, plant).
		WillReturnRows(sqlmock.NewRows([]string{"reading_id"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(insertQuery)).
		WithArgs(int64(4), 60.0, "%", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"reading_id"}).AddRow(int64(2)))
	mock.ExpectQuery(regexp.QuoteMeta(insertQuery)).
		WillReturnError(errors.New("value too long"))

	repo := NewRepository(db)
	id, err := repo.Insert(context.Background(), Reading{SensorID: 3, Value: 21.5, Unit: "C", Timestamp: &ts, PlantID: &plant})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	id, err = repo.Insert(context.Background(), Reading{SensorID: 4, Value: 60, Unit: "%"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	_, err = repo.Insert(context.Background(), Reading{SensorID: 5, Value: 1, Unit: "C"})
	assert.ErrorContains(t, err, "cannot insert reading of sensor 5")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ts := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	columns := []string{"reading_id", "sensor_id", "value", "unit", "timestamp", "plant_id"}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT reading_id, sensor_id, value, unit, timestamp, plant_id FROM sensor_readings WHERE sensor_id = $1 AND plant_id = $2 ORDER BY timestamp DESC NULLS LAST, reading_id DESC LIMIT $3;`)).
		WithArgs(int64(3), int64(9), 10).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(2), int64(3), 22.0, "C", ts, int64(9)).
			AddRow(int64(1), int64(3), 21.5, "C", nil, nil))

	sensor, plant := int64(3), int64(9)
	list, err := NewRepository(db).List(context.Background(), Filter{SensorID: &sensor, PlantID: &plant, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ReadingID)
	require.NotNil(t, list[0].Timestamp)
	assert.True(t, ts.Equal(*list[0].Timestamp))
	assert.Equal(t, int64(9), *list[0].PlantID)
	assert.Nil(t, list[1].Timestamp)
	assert.Nil(t, list[1].PlantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_List_DefaultLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM sensor_readings ORDER BY timestamp DESC NULLS LAST, reading_id DESC LIMIT $1;`)).
		WithArgs(DefaultListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"reading_id", "sensor_id", "value", "unit", "timestamp", "plant_id"}))

	list, err := NewRepository(db).List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}
