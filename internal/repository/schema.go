package repository

import (
	"database/sql"
	"fmt"

	"github.com/apex/log"
)

// InitSchema creates the report and attachment tables if they don't exist.
func InitSchema(db *sql.DB) error {
	log.Info("Initializing report database schema...")

	reportsTableSQL := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		title VARCHAR(500) NOT NULL,
		description TEXT NOT NULL,
		category VARCHAR(50) NOT NULL,
		status VARCHAR(50) NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		ai_confidence DOUBLE PRECISION,
		transcribed_voice_text TEXT,
		user_id TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK (ai_confidence IS NULL OR (ai_confidence >= 0 AND ai_confidence <= 1)),
		CHECK (latitude <> 0 AND longitude <> 0)
	)`

	if _, err := db.Exec(reportsTableSQL); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}

	attachmentsTableSQL := `
	CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		report_id TEXT NOT NULL REFERENCES reports (id),
		blob_uri TEXT NOT NULL,
		mime_type VARCHAR(100) NOT NULL,
		file_type VARCHAR(50) NOT NULL,
		size_bytes BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`

	if _, err := db.Exec(attachmentsTableSQL); err != nil {
		return fmt.Errorf("failed to create attachments table: %w", err)
	}

	indexSQL := []string{
		`CREATE INDEX IF NOT EXISTS idx_reports_status ON reports (status)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_category ON reports (category)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports (created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_report_id ON attachments (report_id)`,
	}
	for _, stmt := range indexSQL {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	log.Info("Report schema created/verified")
	return nil
}
