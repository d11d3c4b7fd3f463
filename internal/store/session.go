package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/asana/internal/pose"
)

// Session is one finished practice session of a single target pose.
type Session struct {
	ID              string     `json:"id"`
	Pose            pose.Label `json:"pose"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         time.Time  `json:"ended_at"`
	BestHoldSeconds float64    `json:"best_hold_seconds"`
}

// Duration returns the wall time of the session.
func (s *Session) Duration() time.Duration {
	if s.EndedAt.Before(s.StartedAt) {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// SessionRepository provides CRUD operations for sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a finished session. An empty ID is replaced by a new UUID.
func (r *SessionRepository) Create(s *Session) error {
	if !s.Pose.Valid() {
		return fmt.Errorf("%w: %q", pose.ErrUnknownLabel, s.Pose)
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, pose, started_at, ended_at, best_hold_seconds)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID, string(s.Pose), s.StartedAt.UTC(), s.EndedAt.UTC(), s.BestHoldSeconds,
	)
	return err
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	s := &Session{}
	var label string

	err := r.db.QueryRow(
		`SELECT id, pose, started_at, ended_at, best_hold_seconds
		 FROM sessions WHERE id = ?`,
		id,
	).Scan(&s.ID, &label, &s.StartedAt, &s.EndedAt, &s.BestHoldSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.Pose = pose.Label(label)
	return s, nil
}

// List retrieves sessions, most recent first. A non-positive limit returns all.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	query := `SELECT id, pose, started_at, ended_at, best_hold_seconds
		 FROM sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s := &Session{}
		var label string
		if err := rows.Scan(&s.ID, &label, &s.StartedAt, &s.EndedAt, &s.BestHoldSeconds); err != nil {
			return nil, err
		}
		s.Pose = pose.Label(label)
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Delete removes a session by its ID.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
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

// Stats aggregates the practice history.
type Stats struct {
	TotalSessions    int                    `json:"total_sessions"`
	TotalSeconds     float64                `json:"total_seconds"`
	BestScores       map[pose.Label]float64 `json:"best_scores"`
	SessionsThisWeek int                    `json:"sessions_this_week"`
	CurrentStreak    int                    `json:"current_streak"`
}

// Stats computes aggregate statistics as of now. The week is the seven days
// ending at now; the streak counts consecutive calendar days in now's location
// with at least one session, ending today or yesterday.
func (r *SessionRepository) Stats(now time.Time) (*Stats, error) {
	sessions, err := r.List(0)
	if err != nil {
		return nil, err
	}
	return computeStats(sessions, now), nil
}

func computeStats(sessions []*Session, now time.Time) *Stats {
	stats := &Stats{BestScores: make(map[pose.Label]float64)}
	weekStart := now.Add(-7 * 24 * time.Hour)
	days := make(map[string]bool)

	for _, s := range sessions {
		stats.TotalSessions++
		stats.TotalSeconds += s.Duration().Seconds()

		if best, ok := stats.BestScores[s.Pose]; !ok || s.BestHoldSeconds > best {
			stats.BestScores[s.Pose] = s.BestHoldSeconds
		}
		if !s.StartedAt.Before(weekStart) && !s.StartedAt.After(now) {
			stats.SessionsThisWeek++
		}
		days[dayKey(s.StartedAt.In(now.Location()))] = true
	}

	day := now
	if !days[dayKey(day)] {
		day = day.AddDate(0, 0, -1)
	}
	for days[dayKey(day)] {
		stats.CurrentStreak++
		day = day.AddDate(0, 0, -1)
	}

	return stats
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
