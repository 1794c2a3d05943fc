// database.go - SQLite-Ablage fuer Trainings-Summaries
// Enthält: database struct, newDatabase, Close, init, Abfragen

package summary

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite-Treiber registrieren
)

// currentSchemaVersion wird bei Schema-Änderungen erhöht
const currentSchemaVersion = 1

// database umhüllt die SQLite-Verbindung. Im WAL-Modus blockieren Leser
// den einzelnen Schreiber nicht, Locks auf Anwendungsebene sind unnötig.
type database struct {
	conn *sql.DB
}

func newDatabase(dbPath string) (*database, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &database{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return db, nil
}

func (db *database) Close() error {
	_, _ = db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return db.conn.Close()
}

func (db *database) init() error {
	if _, err := db.conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL DEFAULT %d
	);

	INSERT OR IGNORE INTO meta (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS scalars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		tag TEXT NOT NULL,
		value REAL NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_scalars_run_tag ON scalars(run_id, tag, step);
	`, currentSchemaVersion)

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (db *database) schemaVersion() (int, error) {
	var v int
	if err := db.conn.QueryRow("SELECT schema_version FROM meta WHERE id = 1").Scan(&v); err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return v, nil
}

func (db *database) insertRun(r Run) error {
	config, err := json.Marshal(r.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = db.conn.Exec("INSERT INTO runs (id, name, config, created_at) VALUES (?, ?, ?, ?)",
		r.ID, r.Name, string(config), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (db *database) getRun(id string) (Run, error) {
	query := `
		SELECT r.id, r.name, r.config, r.created_at, COUNT(s.id), COALESCE(MAX(s.step), -1)
		FROM runs r
		LEFT JOIN scalars s ON s.run_id = r.id
		WHERE r.id = ?
		GROUP BY r.id
	`
	r, err := scanRun(db.conn.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

func (db *database) getRuns() ([]Run, error) {
	query := `
		SELECT r.id, r.name, r.config, r.created_at, COUNT(s.id), COALESCE(MAX(s.step), -1)
		FROM runs r
		LEFT JOIN scalars s ON s.run_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at DESC, r.id DESC
	`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var config string
	var createdAt time.Time
	if err := row.Scan(&r.ID, &r.Name, &config, &createdAt, &r.Scalars, &r.LastStep); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.CreatedAt = createdAt
	if err := json.Unmarshal([]byte(config), &r.Config); err != nil {
		return Run{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return r, nil
}

func (db *database) insertScalars(runID string, step int, values []Value) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO scalars (run_id, step, tag, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err := stmt.Exec(runID, step, v.Tag, v.Value); err != nil {
			return fmt.Errorf("insert scalar %s: %w", v.Tag, err)
		}
	}
	return tx.Commit()
}

func (db *database) getScalars(runID, tag string) ([]Point, error) {
	rows, err := db.conn.Query("SELECT step, value, created_at FROM scalars WHERE run_id = ? AND tag = ? ORDER BY step, id", runID, tag)
	if err != nil {
		return nil, fmt.Errorf("query scalars: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Step, &p.Value, &p.Time); err != nil {
			return nil, fmt.Errorf("scan scalar: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scalars: %w", err)
	}
	return points, nil
}

func (db *database) getTags(runID string) ([]string, error) {
	rows, err := db.conn.Query("SELECT DISTINCT tag FROM scalars WHERE run_id = ? ORDER BY tag", runID)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (db *database) deleteRun(id string) error {
	res, err := db.conn.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
