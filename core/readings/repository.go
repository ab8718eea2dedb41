package readings

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/agrigate/core/csql"
	"github.com/relabs-tech/agrigate/core/pointers"
)

const (
	queryTimeout = 5 * time.Second

	// DefaultListLimit bounds List when the filter has no limit
	DefaultListLimit = 500
	maxListLimit     = 5000
)

// Filter narrows List
type Filter struct {
	SensorID *int64
	PlantID  *int64
	Limit    int
}

// Repository stores readings in the local "sensor_readings" table. Re-synchronized
// readings are stored again, there is no deduplication.
type Repository struct {
	db csql.DBTX
}

// NewRepository returns a repository over db
func NewRepository(db csql.DBTX) *Repository {
	return &Repository{db: db}
}

// Insert stores r and returns the new reading id. A nil timestamp is stored as NULL.
func (s *Repository) Insert(ctx context.Context, r Reading) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var timestamp interface{}
	if r.Timestamp != nil {
		timestamp = r.Timestamp.UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO sensor_readings (sensor_id, value, unit, timestamp, plant_id) VALUES ($1, $2, $3, $4, $5) RETURNING reading_id;`,
		r.SensorID, r.Value, r.Unit, timestamp, pointers.Arg(r.PlantID)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("cannot insert reading of sensor %d: %w", r.SensorID, err)
	}
	return id, nil
}

// List returns stored readings, newest first
func (s *Repository) List(ctx context.Context, f Filter) ([]Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		conditions []string
		args       []interface{}
	)
	if f.SensorID != nil {
		args = append(args, *f.SensorID)
		conditions = append(conditions, "sensor_id = $"+strconv.Itoa(len(args)))
	}
	if f.PlantID != nil {
		args = append(args, *f.PlantID)
		conditions = append(conditions, "plant_id = $"+strconv.Itoa(len(args)))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	args = append(args, limit)

	query := `SELECT reading_id, sensor_id, value, unit, timestamp, plant_id FROM sensor_readings`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY timestamp DESC NULLS LAST, reading_id DESC LIMIT $` + strconv.Itoa(len(args)) + `;`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot list readings: %w", err)
	}
	defer rows.Close()

	result := []Reading{}
	for rows.Next() {
		var (
			r         Reading
			timestamp sql.NullTime
			plantID   sql.NullInt64
		)
		if err := rows.Scan(&r.ReadingID, &r.SensorID, &r.Value, &r.Unit, &timestamp, &plantID); err != nil {
			return nil, err
		}
		r.Timestamp = pointers.FromNullTime(timestamp)
		r.PlantID = pointers.FromNullInt64(plantID)
		result = append(result, r)
	}
	return result, rows.Err()
}
