package consultation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("consultation not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	Save(ctx context.Context, c *Consultation) error
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	query := `SELECT id, patient_id, history, session, diagnosis, is_complete, created_at, updated_at FROM consultations WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	var c Consultation
	var historyJSON, sessionJSON []byte

	err := row.Scan(
		&c.ID,
		&c.PatientID,
		&historyJSON,
		&sessionJSON,
		&c.Diagnosis,
		&c.IsComplete,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &c.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history: %w", err)
		}
	}
	if len(sessionJSON) > 0 {
		if err := json.Unmarshal(sessionJSON, &c.Session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
	}

	return &c, nil
}

func (r *postgresRepo) Save(ctx context.Context, c *Consultation) error {
	historyJSON, err := json.Marshal(c.History)
	if err != nil {
		return err
	}
	sessionJSON, err := json.Marshal(c.Session)
	if err != nil {
		return err
	}

	touch(c)

	query := `
		INSERT INTO consultations (id, patient_id, history, session, diagnosis, is_complete, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			history = $3,
			session = $4,
			diagnosis = $5,
			is_complete = $6,
			updated_at = $8
	`
	_, err = r.db.ExecContext(ctx, query,
		c.ID, c.PatientID, historyJSON, sessionJSON, c.Diagnosis, c.IsComplete, c.CreatedAt, c.UpdatedAt)
	return err
}

// memoryRepo keeps consultations in process memory. It is used when no
// database is configured and by tests.
type memoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Consultation
}

func NewMemoryRepository() Repository {
	return &memoryRepo{items: map[uuid.UUID]Consultation{}}
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	c = clone(c)
	return &c, nil
}

func (r *memoryRepo) Save(_ context.Context, c *Consultation) error {
	touch(c)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[c.ID] = clone(*c)
	return nil
}

func touch(c *Consultation) {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
}

func clone(c Consultation) Consultation {
	c.History = append([]Message(nil), c.History...)
	c.Session = c.Session.Clone()
	return c
}
