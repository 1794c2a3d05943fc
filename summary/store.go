// Modul: store.go
// Beschreibung: Summary-Store fuer Skalare pro Lauf und Schritt.
// Enthaelt Store, ensureDB und die oeffentlichen Operationen.

package summary

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ollama/aegan/envconfig"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrInvalid     = errors.New("invalid summary")
)

// Run ist ein Lauf mit eigener Konfiguration
type Run struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Config    map[string]string `json:"config"`
	CreatedAt time.Time         `json:"created_at"`

	// Scalars ist die Anzahl gespeicherter Werte, LastStep der hoechste Schritt (-1 ohne Werte)
	Scalars  int `json:"scalars"`
	LastStep int `json:"last_step"`
}

// Value ist ein Skalar fuer einen Schritt
type Value struct {
	Tag   string  `json:"tag"`
	Value float64 `json:"value"`
}

// Point ist ein gespeicherter Skalar
type Point struct {
	Step  int       `json:"step"`
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}

type Store struct {
	// DBPath ueberschreibt den Pfad aus AEGAN_SUMMARY_DB (vor allem fuer Tests)
	DBPath string

	// dbMu schuetzt nur die Initialisierung
	dbMu sync.Mutex
	db   *database
}

func (s *Store) ensureDB() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db != nil {
		return nil
	}

	dbPath := s.DBPath
	if dbPath == "" {
		dbPath = envconfig.SummaryDB()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	db, err := newDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if v, err := db.schemaVersion(); err == nil && v != currentSchemaVersion {
		slog.Warn("summary database schema version differs", "path", dbPath, "version", v, "want", currentSchemaVersion)
	}

	s.db = db
	return nil
}

func (s *Store) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// NewRun legt einen Lauf mit UUIDv7 an. config haelt die AEGAN_* Werte des Laufs.
func (s *Store) NewRun(name string, config map[string]string) (Run, error) {
	if err := s.ensureDB(); err != nil {
		return Run{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Run{}, fmt.Errorf("generate run id: %w", err)
	}
	if config == nil {
		config = map[string]string{}
	}

	r := Run{ID: id.String(), Name: name, Config: config, CreatedAt: time.Now().UTC(), LastStep: -1}
	if err := s.db.insertRun(r); err != nil {
		return Run{}, err
	}
	slog.Debug("summary run created", "id", r.ID, "name", name)
	return r, nil
}

// Add speichert einen Skalar
func (s *Store) Add(runID string, step int, tag string, value float64) error {
	return s.Record(runID, step, []Value{{Tag: tag, Value: value}})
}

// Record speichert alle Werte eines Schritts in einer Transaktion
func (s *Store) Record(runID string, step int, values []Value) error {
	if step < 0 {
		return fmt.Errorf("%w: step %d", ErrInvalid, step)
	}
	for _, v := range values {
		if v.Tag == "" {
			return fmt.Errorf("%w: empty tag", ErrInvalid)
		}
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			return fmt.Errorf("%w: %s is %v", ErrInvalid, v.Tag, v.Value)
		}
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if _, err := s.db.getRun(runID); err != nil {
		return err
	}
	return s.db.insertScalars(runID, step, values)
}

func (s *Store) Run(id string) (Run, error) {
	if err := s.ensureDB(); err != nil {
		return Run{}, err
	}
	return s.db.getRun(id)
}

// Runs gibt alle Laeufe zurueck, neueste zuerst
func (s *Store) Runs() ([]Run, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	return s.db.getRuns()
}

// Scalars gibt die Werte eines Tags nach Schritt sortiert zurueck
func (s *Store) Scalars(runID, tag string) ([]Point, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if _, err := s.db.getRun(runID); err != nil {
		return nil, err
	}
	return s.db.getScalars(runID, tag)
}

// Tags gibt die Tags eines Laufs alphabetisch zurueck
func (s *Store) Tags(runID string) ([]string, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	return s.db.getTags(runID)
}

// DeleteRun loescht einen Lauf mit allen Werten
func (s *Store) DeleteRun(id string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.db.deleteRun(id)
}
