package registry

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summary struct {
	Saved int `json:"saved"`
}

func TestWriteRead(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	r := New(db)
	r.now = func() time.Time { return now }
	acc := r.Accessor("sync")

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "_registry_"(key,value,timestamp)`)).
		WithArgs("sync:last", `{"saved":3}`, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, acc.Write(context.Background(), "last", summary{Saved: 3}))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value, timestamp FROM "_registry_" WHERE key=$1;`)).
		WithArgs("sync:last").
		WillReturnRows(sqlmock.NewRows([]string{"value", "timestamp"}).AddRow([]byte(`{"saved":3}`), now))

	var got summary
	ts, err := acc.Read(context.Background(), "last", &got)
	require.NoError(t, err)
	assert.Equal(t, now, ts)
	assert.Equal(t, 3, got.Saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRead_Missing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value, timestamp FROM "_registry_"`)).
		WithArgs("nothing").
		WillReturnRows(sqlmock.NewRows([]string{"value", "timestamp"}))

	var got summary
	ts, err := New(db).Accessor("").Read(context.Background(), "nothing", &got)
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrite_NothingWritten(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "_registry_"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = New(db).Accessor("").Write(context.Background(), "k", 1)
	assert.ErrorContains(t, err, "could not write key k")
}
