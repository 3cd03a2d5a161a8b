package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/lib/pq"

	"civicreport/internal/apperr"
	"civicreport/internal/geo"
	"civicreport/internal/model"
)

const pqUniqueViolation = "23505"

const reportColumns = `id, title, description, category, status, latitude, longitude,
		ai_confidence, transcribed_voice_text, user_id, created_at, updated_at`

// haversineExpr computes the great-circle distance in meters between the
// stored coordinates and a center passed as ($1=lat, $2=lng). The
// least/greatest clamp keeps acos in its domain for near-identical points.
const haversineExpr = `6371000 * acos(least(1.0, greatest(-1.0,
		cos(radians($1)) * cos(radians(latitude)) * cos(radians(longitude) - radians($2)) +
		sin(radians($1)) * sin(radians(latitude)))))`

const (
	createReportQuery = `
		INSERT INTO reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	getReportQuery = `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE id = $1`

	updateReportQuery = `
		UPDATE reports
		SET title = $2, description = $3, category = $4,
			latitude = $5, longitude = $6, ai_confidence = $7,
			transcribed_voice_text = $8, user_id = $9, updated_at = $10
		WHERE id = $1`

	updateStatusQuery = `
		UPDATE reports
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`

	currentStatusQuery = `SELECT status FROM reports WHERE id = $1`

	deleteAttachmentsByReportQuery = `DELETE FROM attachments WHERE report_id = $1`
	deleteReportQuery              = `DELETE FROM reports WHERE id = $1`

	findNearQuery = `
		SELECT ` + reportColumns + `, distance_m
		FROM (SELECT ` + reportColumns + `, ` + haversineExpr + ` AS distance_m FROM reports) r
		WHERE r.distance_m <= $3
		ORDER BY r.distance_m ASC, r.created_at DESC
		LIMIT $4 OFFSET $5`

	countNearQuery = `
		SELECT COUNT(*)
		FROM (SELECT ` + haversineExpr + ` AS distance_m FROM reports) r
		WHERE r.distance_m <= $3`
)

// ReportRepository stores reports in Postgres.
type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Create(ctx context.Context, report *model.Report) error {
	_, err := r.db.ExecContext(ctx, createReportQuery,
		report.ID,
		report.Title,
		report.Description,
		report.Category,
		report.Status,
		report.Location.Lat(),
		report.Location.Lng(),
		report.AIConfidence,
		report.TranscribedVoiceText,
		report.UserID,
		report.CreatedAt,
		report.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("report %s: %w", report.ID, apperr.ErrDuplicateID)
		}
		return apperr.Storage(err)
	}
	return nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id string) (*model.Report, error) {
	row := r.db.QueryRowContext(ctx, getReportQuery, id)
	report, err := scanReport(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("report %s", id)
		}
		return nil, apperr.Storage(err)
	}
	return report, nil
}

// Update replaces the mutable columns of a previously stored report.
// Status is deliberately not among them: it only moves through
// UpdateStatus's compare-and-set, so a stale in-memory status can never
// be written back over a concurrent transition.
func (r *ReportRepository) Update(ctx context.Context, report *model.Report) error {
	result, err := r.db.ExecContext(ctx, updateReportQuery,
		report.ID,
		report.Title,
		report.Description,
		report.Category,
		report.Location.Lat(),
		report.Location.Lng(),
		report.AIConfidence,
		report.TranscribedVoiceText,
		report.UserID,
		report.UpdatedAt,
	)
	if err != nil {
		return apperr.Storage(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperr.Storage(err)
	}
	if rows == 0 {
		return apperr.NotFoundf("report %s", report.ID)
	}
	return nil
}

// UpdateStatus performs a compare-and-set transition: the row is only
// updated if it still carries the status the caller read. A concurrent
// transition makes the affected count zero, which is reported as
// ErrConflict so the caller can re-read and re-check the state machine.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id string, from, to model.Status, now time.Time) error {
	result, err := r.db.ExecContext(ctx, updateStatusQuery, id, from, to, now)
	if err != nil {
		return apperr.Storage(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperr.Storage(err)
	}
	if rows == 1 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, currentStatusQuery, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFoundf("report %s", id)
	}
	if err != nil {
		return apperr.Storage(err)
	}
	return fmt.Errorf("report %s moved to %s concurrently: %w", id, current, apperr.ErrConflict)
}

// Delete removes the report and its attachment references in one
// transaction. A second delete of the same id reports not-found.
func (r *ReportRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteAttachmentsByReportQuery, id); err != nil {
		return apperr.Storage(err)
	}

	result, err := tx.ExecContext(ctx, deleteReportQuery, id)
	if err != nil {
		return apperr.Storage(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperr.Storage(err)
	}
	if rows == 0 {
		return apperr.NotFoundf("report %s", id)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// List returns the filtered page, newest first (ties on created_at break
// by id), plus the total match count ignoring pagination.
func (r *ReportRepository) List(ctx context.Context, filters model.ListFilters, page model.Page) ([]model.Report, int, error) {
	where := ""
	args := []interface{}{}
	argIndex := 1

	if filters.Status != nil {
		where += fmt.Sprintf(" WHERE status = $%d", argIndex)
		args = append(args, *filters.Status)
		argIndex++
	}
	if filters.Category != nil {
		if where == "" {
			where = fmt.Sprintf(" WHERE category = $%d", argIndex)
		} else {
			where += fmt.Sprintf(" AND category = $%d", argIndex)
		}
		args = append(args, *filters.Category)
		argIndex++
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM reports` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage(err)
	}

	listQuery := fmt.Sprintf(`SELECT `+reportColumns+` FROM reports`+where+
		` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, argIndex, argIndex+1)
	args = append(args, page.Limit, page.Skip)

	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, apperr.Storage(err)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		report, err := scanReport(rows.Scan)
		if err != nil {
			return nil, 0, apperr.Storage(err)
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage(err)
	}

	return reports, total, nil
}

// FindNear returns reports within radiusMeters of center ordered by
// ascending distance, ties broken newest first, plus the total count.
// The distance is computed in SQL with the same haversine the service's
// geo package uses, so both agree on what "within radius" means.
func (r *ReportRepository) FindNear(ctx context.Context, center geo.Coordinate, radiusMeters float64, page model.Page) ([]model.ReportWithDistance, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, countNearQuery, center.Lat(), center.Lng(), radiusMeters).Scan(&total)
	if err != nil {
		return nil, 0, apperr.Storage(err)
	}

	rows, err := r.db.QueryContext(ctx, findNearQuery,
		center.Lat(), center.Lng(), radiusMeters, page.Limit, page.Skip)
	if err != nil {
		return nil, 0, apperr.Storage(err)
	}
	defer rows.Close()

	var results []model.ReportWithDistance
	for rows.Next() {
		var item model.ReportWithDistance
		report, err := scanReportWithExtra(rows.Scan, &item.DistanceMeters)
		if err != nil {
			return nil, 0, apperr.Storage(err)
		}
		item.Report = *report
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage(err)
	}

	return results, total, nil
}

type scanFunc func(dest ...interface{}) error

func scanReport(scan scanFunc) (*model.Report, error) {
	return scanReportWithExtra(scan)
}

func scanReportWithExtra(scan scanFunc, extra ...interface{}) (*model.Report, error) {
	var report model.Report
	var lat, lng float64
	var aiConfidence sql.NullFloat64
	var voiceText, userID sql.NullString

	dest := []interface{}{
		&report.ID,
		&report.Title,
		&report.Description,
		&report.Category,
		&report.Status,
		&lat,
		&lng,
		&aiConfidence,
		&voiceText,
		&userID,
		&report.CreatedAt,
		&report.UpdatedAt,
	}
	dest = append(dest, extra...)

	if err := scan(dest...); err != nil {
		return nil, err
	}

	location, err := geo.New(lat, lng)
	if err != nil {
		// The schema forbids zero/out-of-range coordinates; hitting this
		// means the row was written around the application.
		log.Errorf("report %s carries invalid stored coordinates %f,%f", report.ID, lat, lng)
		return nil, fmt.Errorf("stored coordinates for report %s: %v", report.ID, err)
	}
	report.Location = location

	if aiConfidence.Valid {
		report.AIConfidence = &aiConfidence.Float64
	}
	if voiceText.Valid {
		report.TranscribedVoiceText = &voiceText.String
	}
	if userID.Valid {
		report.UserID = &userID.String
	}

	return &report, nil
}
