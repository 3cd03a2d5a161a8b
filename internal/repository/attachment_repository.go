package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"civicreport/internal/apperr"
	"civicreport/internal/model"
)

const attachmentColumns = `id, report_id, blob_uri, mime_type, file_type, size_bytes, created_at`

const (
	createAttachmentQuery = `
		INSERT INTO attachments (` + attachmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getAttachmentQuery = `
		SELECT ` + attachmentColumns + `
		FROM attachments
		WHERE id = $1`

	listAttachmentsQuery = `
		SELECT ` + attachmentColumns + `
		FROM attachments
		WHERE report_id = $1
		ORDER BY created_at ASC, id ASC`

	countAttachmentsQuery  = `SELECT COUNT(*) FROM attachments WHERE report_id = $1`
	deleteAttachmentQuery  = `DELETE FROM attachments WHERE id = $1`
	deleteAllByReportQuery = `DELETE FROM attachments WHERE report_id = $1`
)

// AttachmentRepository stores attachment references in Postgres. The
// media bytes themselves live in the object store; only the linkage and
// metadata are kept here.
type AttachmentRepository struct {
	db *sql.DB
}

func NewAttachmentRepository(db *sql.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

func (r *AttachmentRepository) Create(ctx context.Context, att *model.Attachment) error {
	_, err := r.db.ExecContext(ctx, createAttachmentQuery,
		att.ID,
		att.ReportID,
		att.BlobURI,
		att.MimeType,
		att.FileType,
		att.SizeBytes,
		att.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("attachment %s: %w", att.ID, apperr.ErrDuplicateID)
		}
		return apperr.Storage(err)
	}
	return nil
}

func (r *AttachmentRepository) GetByID(ctx context.Context, id string) (*model.Attachment, error) {
	var att model.Attachment
	err := r.db.QueryRowContext(ctx, getAttachmentQuery, id).Scan(
		&att.ID,
		&att.ReportID,
		&att.BlobURI,
		&att.MimeType,
		&att.FileType,
		&att.SizeBytes,
		&att.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("attachment %s", id)
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return &att, nil
}

func (r *AttachmentRepository) ListByReport(ctx context.Context, reportID string) ([]model.Attachment, error) {
	rows, err := r.db.QueryContext(ctx, listAttachmentsQuery, reportID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer rows.Close()

	var attachments []model.Attachment
	for rows.Next() {
		var att model.Attachment
		err := rows.Scan(
			&att.ID,
			&att.ReportID,
			&att.BlobURI,
			&att.MimeType,
			&att.FileType,
			&att.SizeBytes,
			&att.CreatedAt,
		)
		if err != nil {
			return nil, apperr.Storage(err)
		}
		attachments = append(attachments, att)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err)
	}
	return attachments, nil
}

// CountByReport is read live on every report view; attachment counts are
// never cached across calls.
func (r *AttachmentRepository) CountByReport(ctx context.Context, reportID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, countAttachmentsQuery, reportID).Scan(&count); err != nil {
		return 0, apperr.Storage(err)
	}
	return count, nil
}

func (r *AttachmentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, deleteAttachmentQuery, id)
	if err != nil {
		return apperr.Storage(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperr.Storage(err)
	}
	if rows == 0 {
		return apperr.NotFoundf("attachment %s", id)
	}
	return nil
}

func (r *AttachmentRepository) DeleteAllByReport(ctx context.Context, reportID string) error {
	if _, err := r.db.ExecContext(ctx, deleteAllByReportQuery, reportID); err != nil {
		return apperr.Storage(err)
	}
	return nil
}
