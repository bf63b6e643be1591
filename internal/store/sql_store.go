package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"planner.commuteway.org/internal/geo"
	"planner.commuteway.org/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
	DriverMySQL    = "mysql"
)

// MySQL has no IF NOT EXISTS for indexes, so these only run elsewhere.
var secondaryIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_route_stops_stop ON route_stops (stop_id)",
	"CREATE INDEX IF NOT EXISTS idx_stops_lat_lng ON stops (lat, lng)",
}

// SQLStore reads stops and routes from a relational database.
type SQLStore struct {
	db      *sql.DB
	driver  string
	logger  *slog.Logger
	writeMu sync.Mutex // serializes imports; SQLite allows a single writer
}

// OpenSQLStore opens and pings a database for one of the supported drivers.
func OpenSQLStore(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQLStore, error) {
	switch driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database", "driver", driver)
	return &SQLStore{db: db, driver: driver, logger: logger}, nil
}

// NewSQLStore wraps an already opened database.
func NewSQLStore(db *sql.DB, driver string, logger *slog.Logger) *SQLStore {
	return &SQLStore{db: db, driver: driver, logger: logger}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables and indexes if they don't exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, stmt := range schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if s.driver != DriverMySQL {
		for _, stmt := range secondaryIndexes {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}
	}

	s.logger.Info("Database schema ensured", "driver", s.driver)
	return nil
}

// schemaStatements splits the embedded schema into single statements, since
// not every driver accepts several statements in one Exec.
func schemaStatements() []string {
	var out []string
	for _, part := range strings.Split(schemaSQL, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n"))
		}
	}
	return out
}

// ReplaceNetwork deletes every stop, bus and route and inserts network in a
// single transaction.
func (s *SQLStore) ReplaceNetwork(ctx context.Context, network *models.Network) (err error) {
	if network == nil {
		return fmt.Errorf("nil network")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"route_stops", "buses", "stops"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	stopStmt, err := tx.PrepareContext(ctx, s.rebind(
		"INSERT INTO stops (id, name, lat, lng, accessible) VALUES (?, ?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("failed to prepare stop insert: %w", err)
	}
	defer stopStmt.Close()
	for _, stop := range network.Stops {
		if _, err = stopStmt.ExecContext(ctx, stop.ID, stop.Name, stop.Lat, stop.Lng, stop.Accessible); err != nil {
			return fmt.Errorf("failed to insert stop %q: %w", stop.ID, err)
		}
	}

	busStmt, err := tx.PrepareContext(ctx, s.rebind(
		"INSERT INTO buses (id, name, is_ac, coach_type, status) VALUES (?, ?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("failed to prepare bus insert: %w", err)
	}
	defer busStmt.Close()
	for _, bus := range network.Buses {
		status := bus.Status
		if status == "" {
			status = models.BusStatusActive
		}
		if _, err = busStmt.ExecContext(ctx, bus.ID, bus.Name, bus.IsAC, bus.CoachType, status); err != nil {
			return fmt.Errorf("failed to insert bus %q: %w", bus.ID, err)
		}
	}

	segStmt, err := tx.PrepareContext(ctx, s.rebind(
		"INSERT INTO route_stops (bus_id, direction, stop_order, stop_id, distance_to_next_km) VALUES (?, ?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("failed to prepare route insert: %w", err)
	}
	defer segStmt.Close()
	segments := 0
	for busID, directions := range network.Routes {
		for dir, route := range directions {
			for _, seg := range route {
				if _, err = segStmt.ExecContext(ctx, busID, string(dir), seg.Sequence, seg.StopID, seg.DistanceToNextKm); err != nil {
					return fmt.Errorf("failed to insert route stop %s/%s/%d: %w", busID, dir, seg.Sequence, err)
				}
				segments++
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}

	s.logger.Info("Imported network",
		"stops", len(network.Stops), "buses", len(network.Buses), "route_stops", segments)
	return nil
}

func (s *SQLStore) AllStops(ctx context.Context) ([]models.Stop, error) {
	return s.queryStops(ctx, "SELECT id, name, lat, lng, accessible FROM stops ORDER BY id")
}

// StopsNear uses the bounding box of the search cap, which is a superset of
// the cap itself.
func (s *SQLStore) StopsNear(ctx context.Context, center models.Coordinate, radiusMeters float64) ([]models.Stop, error) {
	box := geo.BoundingBoxAround(center, radiusMeters)
	return s.queryStops(ctx, `
		SELECT id, name, lat, lng, accessible
		FROM stops
		WHERE lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?
		ORDER BY id`,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
}

func (s *SQLStore) Stop(ctx context.Context, id string) (models.Stop, error) {
	stops, err := s.queryStops(ctx, "SELECT id, name, lat, lng, accessible FROM stops WHERE id = ?", id)
	if err != nil {
		return models.Stop{}, err
	}
	if len(stops) == 0 {
		return models.Stop{}, fmt.Errorf("stop %q: %w", id, ErrNotFound)
	}
	return stops[0], nil
}

func (s *SQLStore) queryStops(ctx context.Context, query string, args ...any) ([]models.Stop, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stops: %w", err)
	}
	defer rows.Close()

	var stops []models.Stop
	for rows.Next() {
		var stop models.Stop
		if err := rows.Scan(&stop.ID, &stop.Name, &stop.Lat, &stop.Lng, &stop.Accessible); err != nil {
			return nil, fmt.Errorf("failed to scan stop: %w", err)
		}
		stops = append(stops, stop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stops: %w", err)
	}
	return stops, nil
}

func (s *SQLStore) Bus(ctx context.Context, id string) (models.Bus, error) {
	var bus models.Bus
	err := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT id, name, is_ac, coach_type, status FROM buses WHERE id = ?"), id).
		Scan(&bus.ID, &bus.Name, &bus.IsAC, &bus.CoachType, &bus.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Bus{}, fmt.Errorf("bus %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Bus{}, fmt.Errorf("failed to query bus %q: %w", id, err)
	}
	return bus, nil
}

func (s *SQLStore) BusesServingStops(ctx context.Context, onboardingStopID, offboardingStopID string, q models.BusQuery) ([]models.Bus, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT DISTINCT b.id, b.name, b.is_ac, b.coach_type, b.status
		FROM buses b
		JOIN route_stops a ON a.bus_id = b.id AND a.stop_id = ?
		JOIN route_stops z ON z.bus_id = b.id AND z.direction = a.direction AND z.stop_id = ?
		WHERE b.status = ?`)
	args := []any{onboardingStopID, offboardingStopID, models.BusStatusActive}

	if q.AC != nil {
		sb.WriteString(" AND b.is_ac = ?")
		args = append(args, *q.AC)
	}
	if len(q.CoachTypes) > 0 {
		sb.WriteString(" AND b.coach_type IN (")
		for i, ct := range q.CoachTypes {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, ct)
		}
		sb.WriteString(")")
	}
	sb.WriteString(" ORDER BY b.id")

	rows, err := s.db.QueryContext(ctx, s.rebind(sb.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query buses: %w", err)
	}
	defer rows.Close()

	var buses []models.Bus
	for rows.Next() {
		var bus models.Bus
		if err := rows.Scan(&bus.ID, &bus.Name, &bus.IsAC, &bus.CoachType, &bus.Status); err != nil {
			return nil, fmt.Errorf("failed to scan bus: %w", err)
		}
		buses = append(buses, bus)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating buses: %w", err)
	}
	return buses, nil
}

func (s *SQLStore) RouteSegments(ctx context.Context, busID string, direction models.Direction) ([]models.RouteSegment, error) {
	if _, err := s.Bus(ctx, busID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT stop_order, stop_id, distance_to_next_km
		FROM route_stops
		WHERE bus_id = ? AND direction = ?
		ORDER BY stop_order`), busID, string(direction))
	if err != nil {
		return nil, fmt.Errorf("failed to query route of bus %q: %w", busID, err)
	}
	defer rows.Close()

	var segments []models.RouteSegment
	for rows.Next() {
		seg := models.RouteSegment{BusID: busID, Direction: direction}
		if err := rows.Scan(&seg.Sequence, &seg.StopID, &seg.DistanceToNextKm); err != nil {
			return nil, fmt.Errorf("failed to scan route stop: %w", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating route stops: %w", err)
	}
	return segments, nil
}

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
