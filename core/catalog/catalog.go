// Package catalog reads farms, plants and sensors from the local database.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/agrigate/core/csql"
	"github.com/relabs-tech/agrigate/core/pointers"
)

const queryTimeout = 5 * time.Second

// ErrNotFound is returned for unknown ids
var ErrNotFound = errors.New("not found")

// Farm is a row of the farms table
type Farm struct {
	FarmID    int64     `json:"FarmId"`
	Name      string    `json:"Name"`
	Location  *string   `json:"Location"`
	CreatedAt time.Time `json:"CreatedAt"`
}

// Plant is a row of the plants table joined with its species and farm name
type Plant struct {
	PlantID     int64      `json:"PlantId"`
	FarmID      int64      `json:"FarmId"`
	SpeciesID   int64      `json:"SpeciesId"`
	Name        *string    `json:"Name"`
	PlantedAt   *time.Time `json:"PlantedAt"`
	SpeciesName string     `json:"SpeciesName"`
	FarmName    string     `json:"FarmName"`
}

// Sensor is a row of the sensors table
type Sensor struct {
	SensorID    int64      `json:"SensorId"`
	FarmID      *int64     `json:"FarmId"`
	PlantID     *int64     `json:"PlantId"`
	SensorType  string     `json:"SensorType"`
	Unit        *string    `json:"Unit"`
	InstalledAt *time.Time `json:"InstalledAt"`
}

// Catalog answers catalog queries
type Catalog struct {
	db csql.DBTX
}

// New returns a catalog over db
func New(db csql.DBTX) *Catalog {
	return &Catalog{db: db}
}

// Farms returns all farms
func (c *Catalog) Farms(ctx context.Context) ([]Farm, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, `SELECT farm_id, name, location, created_at FROM farms ORDER BY farm_id;`)
	if err != nil {
		return nil, fmt.Errorf("cannot list farms: %w", err)
	}
	defer rows.Close()

	farms := []Farm{}
	for rows.Next() {
		var (
			f        Farm
			location sql.NullString
		)
		if err := rows.Scan(&f.FarmID, &f.Name, &location, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Location = pointers.FromNullString(location)
		farms = append(farms, f)
	}
	return farms, rows.Err()
}

// Plants returns all plants with species and farm name
func (c *Catalog) Plants(ctx context.Context) ([]Plant, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx,
		`SELECT p.plant_id, p.farm_id, p.species_id, p.name, p.planted_at, ps.species_name, f.name AS farm_name
FROM plants p
JOIN plant_species ps ON p.species_id = ps.species_id
JOIN farms f ON p.farm_id = f.farm_id
ORDER BY p.plant_id;`)
	if err != nil {
		return nil, fmt.Errorf("cannot list plants: %w", err)
	}
	defer rows.Close()

	plants := []Plant{}
	for rows.Next() {
		var (
			p         Plant
			name      sql.NullString
			plantedAt sql.NullTime
		)
		if err := rows.Scan(&p.PlantID, &p.FarmID, &p.SpeciesID, &name, &plantedAt, &p.SpeciesName, &p.FarmName); err != nil {
			return nil, err
		}
		p.Name = pointers.FromNullString(name)
		p.PlantedAt = pointers.FromNullTime(plantedAt)
		plants = append(plants, p)
	}
	return plants, rows.Err()
}

const sensorColumns = `sensor_id, farm_id, plant_id, sensor_type, unit, installed_at`

// Sensors returns all sensors
func (c *Catalog) Sensors(ctx context.Context) ([]Sensor, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, `SELECT `+sensorColumns+` FROM sensors ORDER BY sensor_id;`)
	if err != nil {
		return nil, fmt.Errorf("cannot list sensors: %w", err)
	}
	defer rows.Close()

	sensors := []Sensor{}
	for rows.Next() {
		s, err := scanSensor(rows)
		if err != nil {
			return nil, err
		}
		sensors = append(sensors, *s)
	}
	return sensors, rows.Err()
}

// Sensor returns the sensor with id, or ErrNotFound
func (c *Catalog) Sensor(ctx context.Context, id int64) (*Sensor, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	s, err := scanSensor(c.db.QueryRowContext(ctx, `SELECT `+sensorColumns+` FROM sensors WHERE sensor_id = $1;`, id))
	if errors.Is(err, csql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read sensor %d: %w", id, err)
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSensor(row scanner) (*Sensor, error) {
	var (
		s           Sensor
		farmID      sql.NullInt64
		plantID     sql.NullInt64
		unit        sql.NullString
		installedAt sql.NullTime
	)
	if err := row.Scan(&s.SensorID, &farmID, &plantID, &s.SensorType, &unit, &installedAt); err != nil {
		return nil, err
	}
	s.FarmID = pointers.FromNullInt64(farmID)
	s.PlantID = pointers.FromNullInt64(plantID)
	s.Unit = pointers.FromNullString(unit)
	s.InstalledAt = pointers.FromNullTime(installedAt)
	return &s, nil
}
