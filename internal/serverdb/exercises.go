package serverdb

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed exercises.yaml
var exercisesYAML []byte

// Exercise is one catalog entry.
type Exercise struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	MuscleGroup string `yaml:"muscle_group" json:"muscle_group"`
	Equipment   string `yaml:"equipment" json:"equipment"`
}

// seedExercises loads the embedded catalog into the exercises table.
// Reseeding an existing database is a no-op.
func (db *ServerDB) seedExercises(ctx context.Context) error {
	var catalog struct {
		Exercises []Exercise `yaml:"exercises"`
	}
	if err := yaml.Unmarshal(exercisesYAML, &catalog); err != nil {
		return fmt.Errorf("parse exercise catalog: %w", err)
	}

	for _, ex := range catalog.Exercises {
		if ex.ID == "" || ex.Name == "" {
			return fmt.Errorf("exercise catalog entry missing id or name: %q/%q", ex.ID, ex.Name)
		}
		if _, err := db.conn.ExecContext(ctx,
			`INSERT OR IGNORE INTO exercises (id, name, muscle_group, equipment) VALUES (?, ?, ?, ?)`,
			ex.ID, ex.Name, ex.MuscleGroup, ex.Equipment,
		); err != nil {
			return fmt.Errorf("seed exercise %s: %w", ex.ID, err)
		}
	}
	return nil
}

// ListExercises returns the catalog ordered by name.
func (db *ServerDB) ListExercises(ctx context.Context) ([]Exercise, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, muscle_group, equipment FROM exercises ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	defer rows.Close()

	var out []Exercise
	for rows.Next() {
		var ex Exercise
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.MuscleGroup, &ex.Equipment); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list exercises: iterate: %w", err)
	}
	return out, nil
}
