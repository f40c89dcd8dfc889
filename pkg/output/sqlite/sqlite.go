package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ericogr/hcsr04-exerciser/pkg/config"
	"github.com/ericogr/hcsr04-exerciser/pkg/output"
	"github.com/ericogr/hcsr04-exerciser/pkg/sensor"
	_ "modernc.org/sqlite"
)

const DefaultPath = "hcsr04_readings.db"

type SQLiteOutput struct {
	db *sql.DB
}

func NewSQLite(cfg config.SQLiteConfig) (output.Output, error) {
	return Open(cfg)
}

// Open opens (creating if needed) the readings database.
func Open(cfg config.SQLiteConfig) (*SQLiteOutput, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS readings (
			cycle             BIGINT,
			status_code       INTEGER,
			status            TEXT,
			distance_cm       DOUBLE,
			raw               TEXT,
			timestamp         TEXT
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create readings table: %w", err)
	}
	return &SQLiteOutput{db: db}, nil
}

func (o *SQLiteOutput) Publish(r sensor.Reading) error {
	var distance sql.NullFloat64
	if cm, ok := r.Result().Distance(); ok {
		distance = sql.NullFloat64{Float64: cm, Valid: true}
	}
	_, err := o.db.Exec(
		`INSERT INTO readings (cycle, status_code, status, distance_cm, raw, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Cycle, r.Status.Code(), r.Status.String(), distance, r.Raw, r.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert reading %d: %w", r.Cycle, err)
	}
	return nil
}

// Row is one stored reading.
type Row struct {
	Cycle      uint64
	StatusCode int
	Status     string
	DistanceCM sql.NullFloat64
	Raw        string
	Timestamp  string
}

// Readings returns the stored readings in insertion order.
func (o *SQLiteOutput) Readings() ([]Row, error) {
	rows, err := o.db.Query(`SELECT cycle, status_code, status, distance_cm, raw, timestamp FROM readings ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Cycle, &r.StatusCode, &r.Status, &r.DistanceCM, &r.Raw, &r.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (o *SQLiteOutput) Close() error {
	return o.db.Close()
}
