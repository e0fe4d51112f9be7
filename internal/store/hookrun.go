package store

import (
	"database/sql"
	"time"
)

// HookRun records one external hook execution.
type HookRun struct {
	ID            int64     `json:"id"`
	TranslationID string    `json:"translationId"`
	HookName      string    `json:"hookName"`
	Event         string    `json:"event"`
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HookRunRepository records hook executions.
type HookRunRepository struct {
	db *sql.DB
}

// HookRuns returns the hook run repository for this store.
func (s *Store) HookRuns() *HookRunRepository {
	return &HookRunRepository{db: s.db}
}

// Create inserts a hook run. The translation must exist.
func (r *HookRunRepository) Create(h *HookRun) error {
	h.CreatedAt = time.Now()

	result, err := r.db.Exec(
		`INSERT INTO hook_runs (translation_id, hook_name, event, success, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		h.TranslationID, h.HookName, h.Event, h.Success, h.Message, h.CreatedAt,
	)
	if err != nil {
		return err
	}

	h.ID, err = result.LastInsertId()
	return err
}

// ListByTranslation returns the hook runs of a translation in execution order.
func (r *HookRunRepository) ListByTranslation(translationID string) ([]*HookRun, error) {
	rows, err := r.db.Query(
		`SELECT id, translation_id, hook_name, event, success, message, created_at
		 FROM hook_runs WHERE translation_id = ? ORDER BY id`,
		translationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*HookRun
	for rows.Next() {
		h := &HookRun{}
		var success int
		if err := rows.Scan(&h.ID, &h.TranslationID, &h.HookName, &h.Event, &success, &h.Message, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Success = success != 0
		runs = append(runs, h)
	}

	return runs, rows.Err()
}
