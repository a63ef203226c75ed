// Package worlddb is the relational mirror of the declared world plus the
// runtime state this daemon owns: user locations and the orphan-report
// memory. Backed by a single-writer sqlite database.
package worlddb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mudgate.gg/internal/recon"
	"mudgate.gg/internal/world"
)

type DB struct {
	db *sql.DB
}

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS zones (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			zone_id TEXT NOT NULL,
			has_voice INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			current_room TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS orphans (
			channel_id TEXT PRIMARY KEY,
			first_seen TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) Close() error { return d.db.Close() }

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// SyncWorld upserts the declared zones and rooms, deletes mirror rows for
// entities no longer declared, and relocates users whose room disappeared to
// the default room. The whole sync is one transaction, so a pass never
// observes a half-mirrored world.
func (d *DB) SyncWorld(ctx context.Context, def *world.Definition) (recon.MirrorStats, error) {
	var stats recon.MirrorStats

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	declaredRooms := make(map[string]bool, len(def.Rooms))
	for _, r := range def.Rooms {
		declaredRooms[r.ID] = true
	}
	declaredZones := make(map[string]bool, len(def.Zones))
	for _, z := range def.Zones {
		declaredZones[z.ID] = true
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM rooms`)
	if err != nil {
		return stats, err
	}
	var gone []any
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return stats, err
		}
		if !declaredRooms[id] {
			gone = append(gone, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if len(gone) > 0 {
		args := append([]any{def.DefaultRoom}, gone...)
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET current_room = ? WHERE current_room IN (`+placeholders(len(gone))+`)`, args...)
		if err != nil {
			return stats, err
		}
		if n, err := res.RowsAffected(); err == nil {
			stats.UsersRelocated = int(n)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM rooms WHERE id IN (`+placeholders(len(gone))+`)`, gone...); err != nil {
			return stats, err
		}
	}

	zrows, err := tx.QueryContext(ctx, `SELECT id FROM zones`)
	if err != nil {
		return stats, err
	}
	var goneZones []any
	for zrows.Next() {
		var id string
		if err := zrows.Scan(&id); err != nil {
			zrows.Close()
			return stats, err
		}
		if !declaredZones[id] {
			goneZones = append(goneZones, id)
		}
	}
	zrows.Close()
	if err := zrows.Err(); err != nil {
		return stats, err
	}
	if len(goneZones) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM zones WHERE id IN (`+placeholders(len(goneZones))+`)`, goneZones...); err != nil {
			return stats, err
		}
	}

	for _, z := range def.Zones {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO zones (id, name, description) VALUES (?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET name = excluded.name, description = excluded.description`,
			z.ID, z.Name, z.Description); err != nil {
			return stats, err
		}
		stats.Zones++
	}
	for _, r := range def.Rooms {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rooms (id, name, description, zone_id, has_voice) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
			   name = excluded.name, description = excluded.description,
			   zone_id = excluded.zone_id, has_voice = excluded.has_voice`,
			r.ID, r.Name, r.Description, r.ZoneID, boolInt(r.HasVoice)); err != nil {
			return stats, err
		}
		stats.Rooms++
	}

	return stats, tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Users returns every recorded user location.
func (d *DB) Users(ctx context.Context) (map[string]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, COALESCE(current_room, '') FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, room string
		if err := rows.Scan(&id, &room); err != nil {
			return nil, err
		}
		out[id] = room
	}
	return out, rows.Err()
}

// UserRoom returns the user's recorded room, or "" when unknown.
func (d *DB) UserRoom(ctx context.Context, userID string) (string, error) {
	var room string
	err := d.db.QueryRowContext(ctx,
		`SELECT COALESCE(current_room, '') FROM users WHERE id = ?`, userID).Scan(&room)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return room, err
}

// SetUserRoom records the user's current room.
func (d *DB) SetUserRoom(ctx context.Context, userID, roomID string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (id, current_room) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET current_room = excluded.current_room`,
		userID, roomID)
	return err
}

// ClearUser drops the user's location record entirely.
func (d *DB) ClearUser(ctx context.Context, userID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	return err
}

// Orphans exposes the persisted orphan-report memory.
func (d *DB) Orphans() *OrphanSet { return &OrphanSet{db: d.db} }

// OrphanSet is the sqlite-backed recon.OrphanMemory: channel ids that were
// already reported as orphans, persisted so restarts do not re-alert.
type OrphanSet struct {
	db *sql.DB
}

func (o *OrphanSet) Contains(channelID string) (bool, error) {
	var one int
	err := o.db.QueryRow(`SELECT 1 FROM orphans WHERE channel_id = ?`, channelID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (o *OrphanSet) Remember(channelID string) error {
	_, err := o.db.Exec(
		`INSERT INTO orphans (channel_id, first_seen) VALUES (?, ?)
		 ON CONFLICT (channel_id) DO NOTHING`,
		channelID, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (o *OrphanSet) Forget(channelID string) error {
	_, err := o.db.Exec(`DELETE FROM orphans WHERE channel_id = ?`, channelID)
	return err
}

func (o *OrphanSet) Remembered() ([]string, error) {
	rows, err := o.db.Query(`SELECT channel_id FROM orphans ORDER BY channel_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
