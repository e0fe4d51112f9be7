package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Translations table - one row per translation round trip
		`CREATE TABLE IF NOT EXISTS translations (
			id TEXT PRIMARY KEY,
			translation TEXT NOT NULL,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			score INTEGER NOT NULL,
			level TEXT NOT NULL CHECK(level IN ('high', 'medium', 'low', 'very-low')),
			factors TEXT NOT NULL DEFAULT '{}',
			alternatives TEXT NOT NULL DEFAULT '[]',
			explanation TEXT NOT NULL DEFAULT '',
			selected_indices TEXT NOT NULL DEFAULT '[]',
			frame_count INTEGER NOT NULL,
			sign_duration_ms INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT 'camera',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Hook runs table - external hook executions triggered by a translation
		`CREATE TABLE IF NOT EXISTS hook_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			translation_id TEXT NOT NULL REFERENCES translations(id) ON DELETE CASCADE,
			hook_name TEXT NOT NULL,
			event TEXT NOT NULL,
			success INTEGER NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_translations_created_at ON translations(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_hook_runs_translation_id ON hook_runs(translation_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
