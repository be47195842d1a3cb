package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS identifiers (
		id          BIGSERIAL PRIMARY KEY,
		kind        TEXT NOT NULL,
		value       TEXT NOT NULL,
		normalized  TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_identifiers_kind_normalized ON identifiers(kind, normalized);`,
	`CREATE INDEX IF NOT EXISTS idx_identifiers_normalized ON identifiers(normalized);`,
	`CREATE TABLE IF NOT EXISTS analyses (
		id                      UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		image_key               TEXT,
		image_format            TEXT,
		overall_confidence      NUMERIC(6,4) NOT NULL,
		entity_type             TEXT,
		operator                TEXT,
		classification_provider TEXT,
		text_provider           TEXT,
		processing_time_ms      BIGINT NOT NULL DEFAULT 0,
		result                  JSONB NOT NULL,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);`,
	`CREATE TABLE IF NOT EXISTS analysis_identifiers (
		analysis_id    UUID REFERENCES analyses(id) ON DELETE CASCADE,
		identifier_id  BIGINT REFERENCES identifiers(id),
		PRIMARY KEY (analysis_id, identifier_id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_identifiers_identifier_id ON analysis_identifiers(identifier_id);`,
	`CREATE TABLE IF NOT EXISTS lists (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		type        TEXT NOT NULL,
		description TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_lists_name ON lists(name);`,
	`CREATE TABLE IF NOT EXISTS list_items (
		list_id        BIGINT REFERENCES lists(id),
		identifier_id  BIGINT REFERENCES identifiers(id),
		note           TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (list_id, identifier_id)
	);`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM lists WHERE name = 'default_whitelist') THEN
			INSERT INTO lists (name, type, description) VALUES ('default_whitelist', 'WHITELIST', 'Trusted identifiers');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM lists WHERE name = 'default_blacklist') THEN
			INSERT INTO lists (name, type, description) VALUES ('default_blacklist', 'BLACKLIST', 'Identifiers to flag');
		END IF;
	END
	$$;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
