package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-dam-alerts/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// Every new connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			dam_id TEXT NOT NULL,
			dam_name TEXT NOT NULL,
			severity INTEGER NOT NULL,
			previous_severity INTEGER NOT NULL,
			water_level TEXT,
			reading_date TEXT,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_dam_id ON alerts(dam_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) AddAlert(ctx context.Context, a *models.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, dam_id, dam_name, severity, previous_severity, water_level, reading_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DamID, a.DamName, int(a.Severity), int(a.PreviousSeverity),
		a.WaterLevel, a.ReadingDate, a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("error inserting alert %s: %w", a.ID, err)
	}
	return nil
}

func (s *SQLiteDB) LatestForDam(ctx context.Context, damID string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, dam_id, dam_name, severity, previous_severity, water_level, reading_date, created_at
		FROM alerts WHERE dam_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, damID)

	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading latest alert for %s: %w", damID, err)
	}
	return a, nil
}

func (s *SQLiteDB) ListAlerts(ctx context.Context, opts Filter) ([]models.Alert, error) {
	var (
		where []string
		args  []any
	)
	if opts.DamID != "" {
		where = append(where, "dam_id = ?")
		args = append(args, opts.DamID)
	}
	if opts.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, opts.Since.UnixMilli())
	}
	if opts.MinSeverity != nil {
		where = append(where, "severity >= ?")
		args = append(args, int(*opts.MinSeverity))
	}

	query := `SELECT id, dam_id, dam_name, severity, previous_severity, water_level, reading_date, created_at FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(sc scanner) (*models.Alert, error) {
	var (
		a                  models.Alert
		severity, previous int
		waterLevel, date   sql.NullString
		createdAt          int64
	)
	if err := sc.Scan(&a.ID, &a.DamID, &a.DamName, &severity, &previous, &waterLevel, &date, &createdAt); err != nil {
		return nil, err
	}
	a.Severity = models.Severity(severity)
	a.PreviousSeverity = models.Severity(previous)
	a.WaterLevel = waterLevel.String
	a.ReadingDate = date.String
	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &a, nil
}
