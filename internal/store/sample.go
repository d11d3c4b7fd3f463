package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ayusman/asana/internal/pose"
)

// Sample is a recorded pose embedding stored for training.
type Sample struct {
	ID        int64          `json:"id"`
	Pose      pose.Label     `json:"pose"`
	Embedding pose.Embedding `json:"embedding"`
	CreatedAt time.Time      `json:"created_at"`
}

// SampleRepository provides operations for recorded pose samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Create appends samples for a pose in a single transaction.
func (r *SampleRepository) Create(label pose.Label, embeddings []pose.Embedding) error {
	if !label.Valid() {
		return fmt.Errorf("%w: %q", pose.ErrUnknownLabel, label)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO pose_samples (pose, embedding, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, e := range embeddings {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(string(label), string(data), now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListByPose retrieves all samples for a pose in insertion order.
func (r *SampleRepository) ListByPose(label pose.Label) ([]Sample, error) {
	rows, err := r.db.Query(
		`SELECT id, pose, embedding, created_at
		 FROM pose_samples
		 WHERE pose = ?
		 ORDER BY id`,
		string(label),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var name, data string
		if err := rows.Scan(&s.ID, &name, &data, &s.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &s.Embedding); err != nil {
			return nil, fmt.Errorf("decode sample %d: %w", s.ID, err)
		}
		s.Pose = pose.Label(name)
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// Embeddings returns just the embeddings recorded for a pose.
func (r *SampleRepository) Embeddings(label pose.Label) ([]pose.Embedding, error) {
	samples, err := r.ListByPose(label)
	if err != nil {
		return nil, err
	}
	out := make([]pose.Embedding, len(samples))
	for i, s := range samples {
		out[i] = s.Embedding
	}
	return out, nil
}

// Counts returns the number of samples per pose.
func (r *SampleRepository) Counts() (map[pose.Label]int, error) {
	rows, err := r.db.Query(`SELECT pose, COUNT(*) FROM pose_samples GROUP BY pose`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[pose.Label]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[pose.Label(name)] = n
	}
	return counts, rows.Err()
}

// DeleteByPose removes all samples for a pose.
func (r *SampleRepository) DeleteByPose(label pose.Label) error {
	_, err := r.db.Exec(`DELETE FROM pose_samples WHERE pose = ?`, string(label))
	return err
}
