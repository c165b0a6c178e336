package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Dataset is the YAML seed file for the development server.
//
//	tasks:
//	  - name: intents
//	    classes: [weather, music]
//	    samples:
//	      - text: will it rain tomorrow
//	        predictions: {weather: 0.9, music: 0.05}
type Dataset struct {
	Tasks []TaskSpec `yaml:"tasks"`
}

// TaskSpec is one task of a dataset. Missing ids are generated.
type TaskSpec struct {
	ID      string       `yaml:"id"`
	Name    string       `yaml:"name"`
	Classes []string     `yaml:"classes"`
	Samples []SampleSpec `yaml:"samples"`
}

// SampleSpec is one sample of a task. Label and prediction keys are class
// names.
type SampleSpec struct {
	ID          string             `yaml:"id"`
	Text        string             `yaml:"text"`
	Label       string             `yaml:"label,omitempty"`
	Predictions map[string]float64 `yaml:"predictions,omitempty"`
}

// LoadDataset reads and validates a dataset file.
func LoadDataset(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ReadDataset(f)
}

// ReadDataset decodes and validates a dataset. Unknown keys are rejected.
func ReadDataset(r io.Reader) (Dataset, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var d Dataset
	if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		return Dataset{}, fmt.Errorf("decode dataset: %w", err)
	}
	if err := d.Validate(); err != nil {
		return Dataset{}, err
	}
	return d, nil
}

// Validate checks that every label and prediction names a declared class.
func (d Dataset) Validate() error {
	for ti, t := range d.Tasks {
		if t.Name == "" {
			return fmt.Errorf("dataset: task %d has no name", ti)
		}
		if len(t.Classes) == 0 {
			return fmt.Errorf("dataset: task %q declares no classes", t.Name)
		}
		declared := make(map[string]bool, len(t.Classes))
		for _, c := range t.Classes {
			if declared[c] {
				return fmt.Errorf("dataset: task %q declares class %q twice", t.Name, c)
			}
			declared[c] = true
		}
		for si, smp := range t.Samples {
			if smp.Text == "" {
				return fmt.Errorf("dataset: task %q sample %d has no text", t.Name, si)
			}
			if smp.Label != "" && !declared[smp.Label] {
				return fmt.Errorf("dataset: task %q sample %d: unknown label %q", t.Name, si, smp.Label)
			}
			for name, conf := range smp.Predictions {
				if !declared[name] {
					return fmt.Errorf("dataset: task %q sample %d: prediction for unknown class %q", t.Name, si, name)
				}
				if conf < 0 || conf > 1 {
					return fmt.Errorf("dataset: task %q sample %d: confidence %v out of [0,1]", t.Name, si, conf)
				}
			}
		}
	}
	return nil
}

// Seed inserts a dataset's tasks. Tasks whose id already exists are
// skipped, so seeding the same file twice is a no-op. Returns the number of
// samples inserted.
// Thread-safe: acquires write lock.
func (s *Store) Seed(d Dataset) (int, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var position int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&position); err != nil {
		return 0, err
	}

	added := 0
	for _, t := range d.Tasks {
		taskID := t.ID
		if taskID == "" {
			taskID = uuid.NewString()
		}

		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM tasks WHERE id = ?`, taskID).Scan(&exists); err != nil {
			return 0, err
		}
		if exists > 0 {
			continue
		}

		n, err := seedTask(tx, taskID, position, t)
		if err != nil {
			return 0, fmt.Errorf("seed task %q: %w", t.Name, err)
		}
		position++
		added += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

func seedTask(tx *sql.Tx, taskID string, position int, t TaskSpec) (int, error) {
	if _, err := tx.Exec(`INSERT INTO tasks (id, name, position) VALUES (?, ?, ?)`, taskID, t.Name, position); err != nil {
		return 0, err
	}

	classIDs := make(map[string]string, len(t.Classes))
	for i, name := range t.Classes {
		id := uuid.NewString()
		classIDs[name] = id
		if _, err := tx.Exec(`INSERT INTO text_classes (id, task_id, name, position) VALUES (?, ?, ?, ?)`, id, taskID, name, i); err != nil {
			return 0, err
		}
	}

	for seq, smp := range t.Samples {
		id := smp.ID
		if id == "" {
			id = uuid.NewString()
		}
		var label any
		if smp.Label != "" {
			label = classIDs[smp.Label]
		}
		if _, err := tx.Exec(`INSERT INTO samples (id, task_id, text, text_class_id, seq) VALUES (?, ?, ?, ?, ?)`,
			id, taskID, smp.Text, label, seq); err != nil {
			return 0, err
		}
		for name, conf := range smp.Predictions {
			if _, err := tx.Exec(`INSERT INTO predictions (sample_id, text_class_id, confidence) VALUES (?, ?, ?)`,
				id, classIDs[name], conf); err != nil {
				return 0, err
			}
		}
	}
	return len(t.Samples), nil
}
