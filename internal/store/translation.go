package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/healthbridge/healthbridge/internal/confidence"
	"github.com/healthbridge/healthbridge/internal/translate"
)

// Source says where the frames of a translation came from.
type Source string

const (
	// SourceCamera is the live capture loop.
	SourceCamera Source = "camera"
	// SourceAPI is a frame burst posted over HTTP.
	SourceAPI Source = "api"
)

// Translation is a persisted translation result.
type Translation struct {
	translate.Result
	Source Source `json:"source"`
}

// TranslationRepository provides CRUD operations for translations.
type TranslationRepository struct {
	db *sql.DB
}

// Translations returns the translation repository for this store.
func (s *Store) Translations() *TranslationRepository {
	return &TranslationRepository{db: s.db}
}

const translationColumns = `id, translation, latency_ms, score, level, factors, alternatives,
	explanation, selected_indices, frame_count, sign_duration_ms, error, source, created_at`

// Create inserts a translation. CreatedAt is set when zero.
func (r *TranslationRepository) Create(t *Translation) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Source == "" {
		t.Source = SourceCamera
	}

	factors, err := json.Marshal(t.Confidence.Factors)
	if err != nil {
		return fmt.Errorf("encode factors: %w", err)
	}
	alternatives, err := json.Marshal(nonNilStrings(t.Confidence.Alternatives))
	if err != nil {
		return fmt.Errorf("encode alternatives: %w", err)
	}
	indices, err := json.Marshal(nonNilInts(t.SelectedIndices))
	if err != nil {
		return fmt.Errorf("encode selected indices: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO translations (`+translationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Translation, t.LatencyMs, t.Confidence.Score, string(t.Confidence.Level),
		string(factors), string(alternatives), t.Confidence.Explanation, string(indices),
		t.FrameCount, t.SignDurationMs, t.Error, string(t.Source), t.CreatedAt,
	)
	return err
}

// GetByID retrieves a translation by its ID.
func (r *TranslationRepository) GetByID(id string) (*Translation, error) {
	row := r.db.QueryRow(`SELECT `+translationColumns+` FROM translations WHERE id = ?`, id)

	t, err := scanTranslation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// List returns the most recent translations, newest first. A non-positive
// limit returns all rows.
func (r *TranslationRepository) List(limit int) ([]*Translation, error) {
	query := `SELECT ` + translationColumns + ` FROM translations ORDER BY created_at DESC, rowid DESC`
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

	var translations []*Translation
	for rows.Next() {
		t, err := scanTranslation(rows)
		if err != nil {
			return nil, err
		}
		translations = append(translations, t)
	}

	return translations, rows.Err()
}

// Delete removes a translation and its hook runs.
func (r *TranslationRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM translations WHERE id = ?`, id)
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

// Count returns the number of stored translations.
func (r *TranslationRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM translations`).Scan(&n)
	return n, err
}

// Prune deletes all but the newest keep translations and returns how many
// rows were removed.
func (r *TranslationRepository) Prune(keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := r.db.Exec(
		`DELETE FROM translations WHERE id NOT IN (
			SELECT id FROM translations ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTranslation(row rowScanner) (*Translation, error) {
	t := &Translation{}
	var (
		level, factors, alternatives, indices, source string
	)

	err := row.Scan(
		&t.ID, &t.Translation, &t.LatencyMs, &t.Confidence.Score, &level,
		&factors, &alternatives, &t.Confidence.Explanation, &indices,
		&t.FrameCount, &t.SignDurationMs, &t.Error, &source, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Confidence.Level = confidence.Level(level)
	t.Source = Source(source)

	if err := json.Unmarshal([]byte(factors), &t.Confidence.Factors); err != nil {
		return nil, fmt.Errorf("decode factors: %w", err)
	}
	if err := json.Unmarshal([]byte(alternatives), &t.Confidence.Alternatives); err != nil {
		return nil, fmt.Errorf("decode alternatives: %w", err)
	}
	if err := json.Unmarshal([]byte(indices), &t.SelectedIndices); err != nil {
		return nil, fmt.Errorf("decode selected indices: %w", err)
	}

	return t, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
