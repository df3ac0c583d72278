package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/airquality.report/internal/grid"
	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/training"
)

// Sensor is one registered monitor.
type Sensor struct {
	ID        string  `json:"id"`
	Source    string  `json:"source"`
	Model     string  `json:"model"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Reading is one PM2.5 sample. A missing Value is stored as NULL.
type Reading struct {
	SensorID string
	Time     time.Time
	Value    training.Reading
}

// UpsertSensor registers s or updates its metadata.
func (db *DB) UpsertSensor(ctx context.Context, s Sensor) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sensors (id, source, model, latitude, longitude, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			source = excluded.source,
			model = excluded.model,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			updated_at = excluded.updated_at`,
		s.ID, s.Source, s.Model, s.Latitude, s.Longitude, db.clock.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert sensor %s: %w", s.ID, err)
	}
	return nil
}

// Sensors lists registered sensors ordered by id.
func (db *DB) Sensors(ctx context.Context) ([]Sensor, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, source, model, latitude, longitude FROM sensors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sensor
	for rows.Next() {
		var s Sensor
		if err := rows.Scan(&s.ID, &s.Source, &s.Model, &s.Latitude, &s.Longitude); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertReadings stores readings in one transaction. A reading for an
// existing (sensor, time) pair replaces it.
func (db *DB) InsertReadings(ctx context.Context, readings []Reading) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			monitoring.Logf("warning: failed to rollback readings insert: %v", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO sensor_readings (sensor_id, ts_unix, pm25) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range readings {
		v := sql.NullFloat64{Float64: r.Value.Value, Valid: r.Value.Valid}
		if _, err := stmt.ExecContext(ctx, r.SensorID, unixSeconds(r.Time), v); err != nil {
			return fmt.Errorf("insert reading %s@%s: %w", r.SensorID, r.Time.Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}

// Query returns the readings of every sensor inside box, averaged into
// step-wide bins starting at window.Start. A sensor with no non-NULL reading
// in a bin is missing for that bin.
func (db *DB) Query(ctx context.Context, window training.Window, box grid.BoundingBox, step time.Duration) (*training.RawObservationSet, error) {
	bins, err := window.Bins(step)
	if err != nil {
		return nil, err
	}

	sensors, err := db.sensorsIn(ctx, box)
	if err != nil {
		return nil, err
	}
	column := make(map[string]int, len(sensors))
	raw := &training.RawObservationSet{
		Concentration: make([][]training.Reading, len(bins)),
		Latitudes:     make([]float64, len(sensors)),
		Longitudes:    make([]float64, len(sensors)),
		Timestamps:    bins,
		SensorIDs:     make([]string, len(sensors)),
		SensorModels:  make([]string, len(sensors)),
	}
	for i, s := range sensors {
		column[s.ID] = i
		raw.Latitudes[i] = s.Latitude
		raw.Longitudes[i] = s.Longitude
		raw.SensorIDs[i] = s.ID
		raw.SensorModels[i] = s.Model
	}
	for t := range raw.Concentration {
		raw.Concentration[t] = make([]training.Reading, len(sensors))
	}

	start := unixSeconds(window.Start)
	rows, err := db.QueryContext(ctx, `
		SELECT sensor_id, CAST((ts_unix - ?) / ? AS INTEGER) AS bin, AVG(pm25)
		FROM sensor_readings
		WHERE ts_unix >= ? AND ts_unix < ?
		GROUP BY sensor_id, bin`,
		start, step.Seconds(), start, unixSeconds(window.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  string
			bin int
			avg sql.NullFloat64
		)
		if err := rows.Scan(&id, &bin, &avg); err != nil {
			return nil, err
		}
		s, ok := column[id]
		if !ok || !avg.Valid || bin < 0 || bin >= len(bins) {
			continue
		}
		raw.Concentration[bin][s] = training.Value(avg.Float64)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return raw, nil
}

func (db *DB) sensorsIn(ctx context.Context, box grid.BoundingBox) ([]Sensor, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, source, model, latitude, longitude
		FROM sensors
		WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
		ORDER BY id`,
		box.BottomLeft.Lat, box.TopRight.Lat, box.BottomLeft.Lng, box.TopRight.Lng)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sensor
	for rows.Next() {
		var s Sensor
		if err := rows.Scan(&s.ID, &s.Source, &s.Model, &s.Latitude, &s.Longitude); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
