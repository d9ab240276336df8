package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"swingspin/bowler/internal/bowling"
)

// ErrNotFound is returned when a delivery is not in the history.
var ErrNotFound = errors.New("delivery not found")

// Record is one persisted delivery, with its landing when it bounced.
type Record struct {
	SessionID  string        `json:"session_id"`
	DeliveryID uint64        `json:"delivery_id"`
	BallID     int           `json:"ball_id"`
	Side       string        `json:"side"`
	Mode       string        `json:"mode"`
	Direction  string        `json:"direction"`
	Accuracy   string        `json:"accuracy"`
	Phase      float64       `json:"phase"`
	Duration   float64       `json:"duration"`
	Drift      float64       `json:"drift"`
	TargetX    float64       `json:"target_x"`
	TargetZ    float64       `json:"target_z"`
	BowledAt   time.Duration `json:"bowled_at"`
	Landed     bool          `json:"landed"`
	LandedX    float64       `json:"landed_x"`
	LandedZ    float64       `json:"landed_z"`
	LandedAt   time.Duration `json:"landed_at"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Stats aggregates the stored deliveries.
type Stats struct {
	Deliveries int            `json:"deliveries"`
	Landed     int            `json:"landed"`
	ByAccuracy map[string]int `json:"by_accuracy"`
	ByMode     map[string]int `json:"by_mode"`
	// MeanMissMetres is the mean horizontal distance between target and bounce.
	MeanMissMetres float64 `json:"mean_miss_metres"`
}

// Store persists deliveries in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordDelivery inserts d under sessionID.
func (s *Store) RecordDelivery(ctx context.Context, sessionID string, d bowling.Delivery) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("history is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if d.ID == 0 {
		return fmt.Errorf("delivery id is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO deliveries (
	session_id, delivery_id, ball_id, side, mode, direction, accuracy,
	phase, duration, drift, target_x, target_z, bowled_at_ms, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		sessionID, int64(d.ID), d.BallID, d.Side, d.Mode.String(), d.Direction.String(), d.Accuracy.String(),
		d.Phase, d.Duration, d.Plan.Drift, d.Target.X, d.Target.Z, d.At.Milliseconds(),
		s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// RecordLanding attaches the first bounce to an already recorded delivery.
func (s *Store) RecordLanding(ctx context.Context, sessionID string, l bowling.Landing) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("history is not configured")
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE deliveries SET landed_x = ?, landed_z = ?, landed_at_ms = ?
WHERE session_id = ? AND delivery_id = ? AND landed_at_ms IS NULL
`, l.Point.X, l.Point.Z, l.At.Milliseconds(), sessionID, int64(l.DeliveryID))
	if err != nil {
		return fmt.Errorf("record landing: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectColumns = `
SELECT session_id, delivery_id, ball_id, side, mode, direction, accuracy,
	phase, duration, drift, target_x, target_z, bowled_at_ms,
	landed_x, landed_z, landed_at_ms, created_at
FROM deliveries`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r                 Record
		id                int64
		bowledMs, created int64
		landedX, landedZ  sql.NullFloat64
		landedMs          sql.NullInt64
	)
	if err := row.Scan(&r.SessionID, &id, &r.BallID, &r.Side, &r.Mode, &r.Direction, &r.Accuracy,
		&r.Phase, &r.Duration, &r.Drift, &r.TargetX, &r.TargetZ, &bowledMs,
		&landedX, &landedZ, &landedMs, &created); err != nil {
		return Record{}, err
	}
	r.DeliveryID = uint64(id)
	r.BowledAt = time.Duration(bowledMs) * time.Millisecond
	r.CreatedAt = time.UnixMilli(created).UTC()
	if landedMs.Valid {
		r.Landed = true
		r.LandedX = landedX.Float64
		r.LandedZ = landedZ.Float64
		r.LandedAt = time.Duration(landedMs.Int64) * time.Millisecond
	}
	return r, nil
}

// Delivery looks up one delivery.
func (s *Store) Delivery(ctx context.Context, sessionID string, deliveryID uint64) (Record, error) {
	if s == nil || s.db == nil {
		return Record{}, fmt.Errorf("history is not configured")
	}
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE session_id = ? AND delivery_id = ?`, sessionID, int64(deliveryID))
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get delivery: %w", err)
	}
	return r, nil
}

// Recent lists the newest deliveries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("history is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return records, nil
}

// Stats aggregates every stored delivery.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, fmt.Errorf("history is not configured")
	}
	stats := Stats{ByAccuracy: map[string]int{}, ByMode: map[string]int{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1), COUNT(landed_at_ms) FROM deliveries`).Scan(&stats.Deliveries, &stats.Landed); err != nil {
		return Stats{}, fmt.Errorf("count deliveries: %w", err)
	}
	miss, err := s.meanMiss(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats.MeanMissMetres = miss
	if err := s.groupCount(ctx, "accuracy", stats.ByAccuracy); err != nil {
		return Stats{}, err
	}
	if err := s.groupCount(ctx, "mode", stats.ByMode); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (s *Store) meanMiss(ctx context.Context) (float64, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT landed_x - target_x, landed_z - target_z FROM deliveries WHERE landed_at_ms IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("list landings: %w", err)
	}
	defer rows.Close()
	total, n := 0.0, 0
	for rows.Next() {
		var dx, dz float64
		if err := rows.Scan(&dx, &dz); err != nil {
			return 0, fmt.Errorf("scan landing: %w", err)
		}
		total += math.Hypot(dx, dz)
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate landings: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	return total / float64(n), nil
}

func (s *Store) groupCount(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+column+`, COUNT(1) FROM deliveries GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("group by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s group: %w", column, err)
		}
		into[key] = n
	}
	return rows.Err()
}
