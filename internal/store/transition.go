package store

import (
	"database/sql"
	"errors"
	"time"
)

// Transition is a journaled scene change.
type Transition struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Position  float64   `json:"position"`
	Tick      uint64    `json:"tick"`
	Applied   bool      `json:"applied"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TransitionRepository provides access to the transitions journal.
type TransitionRepository struct {
	db *sql.DB
}

// Transitions returns the transition repository for this store.
func (s *Store) Transitions() *TransitionRepository {
	return &TransitionRepository{db: s.db}
}

// Create appends a transition. CreatedAt defaults to now.
func (r *TransitionRepository) Create(t *Transition) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO transitions (id, from_scene, to_scene, position, tick, applied, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.From, t.To, t.Position, int64(t.Tick), t.Applied, t.Error, t.CreatedAt,
	)
	return err
}

// GetByID retrieves a transition by its ID.
func (r *TransitionRepository) GetByID(id string) (*Transition, error) {
	row := r.db.QueryRow(
		`SELECT id, from_scene, to_scene, position, tick, applied, error, created_at
		 FROM transitions WHERE id = ?`,
		id,
	)

	t, err := scanTransition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// List returns up to limit transitions in reverse insertion order. A limit <= 0
// returns all.
func (r *TransitionRepository) List(limit int) ([]*Transition, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, from_scene, to_scene, position, tick, applied, error, created_at
		 FROM transitions ORDER BY rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []*Transition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return transitions, nil
}

// Count returns the number of journaled transitions.
func (r *TransitionRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM transitions`).Scan(&n)
	return n, err
}

// Prune deletes all but the newest keep transitions and reports how many
// rows were removed.
func (r *TransitionRepository) Prune(keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	result, err := r.db.Exec(
		`DELETE FROM transitions WHERE rowid NOT IN (
			SELECT rowid FROM transitions ORDER BY rowid DESC LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransition(s scanner) (*Transition, error) {
	t := &Transition{}
	var tick int64
	var applied int

	err := s.Scan(&t.ID, &t.From, &t.To, &t.Position, &tick, &applied, &t.Error, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	t.Tick = uint64(tick)
	t.Applied = applied != 0
	return t, nil
}
