package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/asana/internal/pose"
)

// Template is a trained reference embedding for a pose.
type Template struct {
	Pose        pose.Label     `json:"pose"`
	Embedding   pose.Embedding `json:"embedding"`
	SampleCount int            `json:"sample_count"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TemplateRepository provides operations for trained templates.
type TemplateRepository struct {
	db *sql.DB
}

// Templates returns the template repository for this store.
func (s *Store) Templates() *TemplateRepository {
	return &TemplateRepository{db: s.db}
}

// Save inserts or replaces the template for t.Pose.
func (r *TemplateRepository) Save(t *Template) error {
	if !t.Pose.Valid() {
		return fmt.Errorf("%w: %q", pose.ErrUnknownLabel, t.Pose)
	}
	if err := t.Embedding.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(t.Embedding)
	if err != nil {
		return err
	}
	t.UpdatedAt = time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO pose_templates (pose, embedding, sample_count, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(pose) DO UPDATE SET
		   embedding = excluded.embedding,
		   sample_count = excluded.sample_count,
		   updated_at = excluded.updated_at`,
		string(t.Pose), string(data), t.SampleCount, t.UpdatedAt,
	)
	return err
}

// Get retrieves the template for a pose.
func (r *TemplateRepository) Get(label pose.Label) (*Template, error) {
	t := &Template{}
	var name, data string

	err := r.db.QueryRow(
		`SELECT pose, embedding, sample_count, updated_at FROM pose_templates WHERE pose = ?`,
		string(label),
	).Scan(&name, &data, &t.SampleCount, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(data), &t.Embedding); err != nil {
		return nil, fmt.Errorf("decode template %s: %w", name, err)
	}
	t.Pose = pose.Label(name)
	return t, nil
}

// List retrieves every template.
func (r *TemplateRepository) List() ([]*Template, error) {
	rows, err := r.db.Query(`SELECT pose, embedding, sample_count, updated_at FROM pose_templates ORDER BY pose`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		t := &Template{}
		var name, data string
		if err := rows.Scan(&name, &data, &t.SampleCount, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &t.Embedding); err != nil {
			return nil, fmt.Errorf("decode template %s: %w", name, err)
		}
		t.Pose = pose.Label(name)
		templates = append(templates, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return templates, nil
}

// Delete removes the template for a pose.
func (r *TemplateRepository) Delete(label pose.Label) error {
	result, err := r.db.Exec(`DELETE FROM pose_templates WHERE pose = ?`, string(label))
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
