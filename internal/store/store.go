// Package store provides SQLite persistence for the development annotation
// server: tasks, their classes, samples and model predictions.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JackEngelmann/nlpanno/internal/sample"
)

var (
	// ErrNotFound is returned for an unknown task or sample id.
	ErrNotFound = errors.New("store: not found")
	// ErrUnknownClass is returned by SetLabel for a class the sample's task
	// does not declare.
	ErrUnknownClass = errors.New("store: class not declared by task")
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex // Protects all database operations
	now func() time.Time
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// For in-memory databases, limit to 1 connection to avoid issues
	// with multiple connections getting different databases
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db, now: time.Now}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS text_classes (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id),
		name TEXT NOT NULL,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS samples (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id),
		text TEXT NOT NULL,
		text_class_id TEXT REFERENCES text_classes(id),
		seq INTEGER NOT NULL,
		served_at INTEGER, -- unix nanos
		labeled_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS predictions (
		sample_id TEXT NOT NULL REFERENCES samples(id),
		text_class_id TEXT NOT NULL REFERENCES text_classes(id),
		confidence REAL NOT NULL,
		PRIMARY KEY (sample_id, text_class_id)
	);

	CREATE INDEX IF NOT EXISTS idx_samples_task ON samples(task_id, seq);
	CREATE INDEX IF NOT EXISTS idx_classes_task ON text_classes(task_id, position);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Tasks returns every task with its classes, in insertion order.
// Thread-safe: acquires read lock.
func (s *Store) Tasks() ([]sample.AnnotationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, name FROM tasks ORDER BY position`)
	if err != nil {
		return nil, err
	}
	var tasks []sample.AnnotationTask
	for rows.Next() {
		var t sample.AnnotationTask
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tasks {
		classes, err := s.classes(tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].TextClasses = classes
	}
	return tasks, nil
}

// Task returns one task with its classes.
// Thread-safe: acquires read lock.
func (s *Store) Task(id string) (sample.AnnotationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.task(id)
}

// Caller must hold s.mu.
func (s *Store) task(id string) (sample.AnnotationTask, error) {
	t := sample.AnnotationTask{ID: id}
	err := s.db.QueryRow(`SELECT name FROM tasks WHERE id = ?`, id).Scan(&t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return sample.AnnotationTask{}, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if err != nil {
		return sample.AnnotationTask{}, err
	}
	t.TextClasses, err = s.classes(id)
	if err != nil {
		return sample.AnnotationTask{}, err
	}
	return t, nil
}

// Caller must hold s.mu.
func (s *Store) classes(taskID string) ([]sample.TextClass, error) {
	rows, err := s.db.Query(`SELECT id, name FROM text_classes WHERE task_id = ? ORDER BY position`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	classes := []sample.TextClass{}
	for rows.Next() {
		var c sample.TextClass
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// NextSample picks the next unlabeled sample of a task and marks it served.
// Samples never served come first, in insertion order; after that the one
// served longest ago. ok is false when every sample is labeled.
// Thread-safe: acquires write lock.
func (s *Store) NextSample(taskID string) (smp sample.Sample, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	err = s.db.QueryRow(`
		SELECT id FROM samples
		WHERE task_id = ? AND text_class_id IS NULL
		ORDER BY served_at IS NOT NULL, served_at, seq
		LIMIT 1
	`, taskID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return sample.Sample{}, false, nil
	}
	if err != nil {
		return sample.Sample{}, false, err
	}

	if _, err := s.db.Exec(`UPDATE samples SET served_at = ? WHERE id = ?`, s.now().UnixNano(), id); err != nil {
		return sample.Sample{}, false, err
	}

	smp, err = s.sample(id)
	if err != nil {
		return sample.Sample{}, false, err
	}
	return smp, true, nil
}

// Sample returns one sample with its label and predictions.
// Thread-safe: acquires read lock.
func (s *Store) Sample(id string) (sample.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sample(id)
}

// Caller must hold s.mu.
func (s *Store) sample(id string) (sample.Sample, error) {
	smp := sample.Sample{ID: id}
	var classID, className sql.NullString
	err := s.db.QueryRow(`
		SELECT s.text, s.text_class_id, c.name
		FROM samples s LEFT JOIN text_classes c ON c.id = s.text_class_id
		WHERE s.id = ?
	`, id).Scan(&smp.Text, &classID, &className)
	if errors.Is(err, sql.ErrNoRows) {
		return sample.Sample{}, fmt.Errorf("%w: sample %s", ErrNotFound, id)
	}
	if err != nil {
		return sample.Sample{}, err
	}
	if classID.Valid {
		smp.TextClass = &sample.TextClass{ID: classID.String, Name: className.String}
	}

	rows, err := s.db.Query(`
		SELECT c.id, c.name, p.confidence
		FROM predictions p JOIN text_classes c ON c.id = p.text_class_id
		WHERE p.sample_id = ?
		ORDER BY c.position
	`, id)
	if err != nil {
		return sample.Sample{}, err
	}
	defer rows.Close()

	var candidates []sample.Candidate
	for rows.Next() {
		var c sample.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.Confidence); err != nil {
			return sample.Sample{}, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return sample.Sample{}, err
	}
	if len(candidates) > 0 {
		smp.Predictions = sample.CandidatePredictions(candidates)
	}
	return smp, nil
}

// SetLabel sets (classID non-nil) or clears (nil) a sample's label and
// returns the updated sample.
// Thread-safe: acquires write lock.
func (s *Store) SetLabel(sampleID string, classID *string) (sample.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var taskID string
	err := s.db.QueryRow(`SELECT task_id FROM samples WHERE id = ?`, sampleID).Scan(&taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return sample.Sample{}, fmt.Errorf("%w: sample %s", ErrNotFound, sampleID)
	}
	if err != nil {
		return sample.Sample{}, err
	}

	if classID == nil {
		if _, err := s.db.Exec(`UPDATE samples SET text_class_id = NULL, labeled_at = NULL WHERE id = ?`, sampleID); err != nil {
			return sample.Sample{}, err
		}
		return s.sample(sampleID)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM text_classes WHERE id = ? AND task_id = ?`, *classID, taskID).Scan(&n); err != nil {
		return sample.Sample{}, err
	}
	if n == 0 {
		return sample.Sample{}, fmt.Errorf("%w: %s", ErrUnknownClass, *classID)
	}

	if _, err := s.db.Exec(`UPDATE samples SET text_class_id = ?, labeled_at = ? WHERE id = ?`, *classID, s.now().UnixNano(), sampleID); err != nil {
		return sample.Sample{}, err
	}
	return s.sample(sampleID)
}

// Progress returns how many of a task's samples are labeled.
// Thread-safe: acquires read lock.
func (s *Store) Progress(taskID string) (labeled, total int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err = s.db.QueryRow(`
		SELECT COUNT(text_class_id), COUNT(*) FROM samples WHERE task_id = ?
	`, taskID).Scan(&labeled, &total)
	return labeled, total, err
}

// TaskOf returns the task a sample belongs to.
// Thread-safe: acquires read lock.
func (s *Store) TaskOf(sampleID string) (sample.AnnotationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var taskID string
	err := s.db.QueryRow(`SELECT task_id FROM samples WHERE id = ?`, sampleID).Scan(&taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return sample.AnnotationTask{}, fmt.Errorf("%w: sample %s", ErrNotFound, sampleID)
	}
	if err != nil {
		return sample.AnnotationTask{}, err
	}
	return s.task(taskID)
}
