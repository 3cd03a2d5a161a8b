package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"civicreport/config"
	"civicreport/internal/apperr"
	"civicreport/internal/geo"
	"civicreport/internal/messaging"
	"civicreport/internal/model"
)

// ReportRepository is the storage contract the domain service needs.
// The Postgres implementation lives in internal/repository; tests use
// an in-memory fake.
type ReportRepository interface {
	Create(ctx context.Context, report *model.Report) error
	GetByID(ctx context.Context, id string) (*model.Report, error)
	Update(ctx context.Context, report *model.Report) error
	UpdateStatus(ctx context.Context, id string, from, to model.Status, now time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filters model.ListFilters, page model.Page) ([]model.Report, int, error)
	FindNear(ctx context.Context, center geo.Coordinate, radiusMeters float64, page model.Page) ([]model.ReportWithDistance, int, error)
}

type AttachmentRepository interface {
	Create(ctx context.Context, att *model.Attachment) error
	GetByID(ctx context.Context, id string) (*model.Attachment, error)
	ListByReport(ctx context.Context, reportID string) ([]model.Attachment, error)
	CountByReport(ctx context.Context, reportID string) (int, error)
	Delete(ctx context.Context, id string) error
	DeleteAllByReport(ctx context.Context, reportID string) error
}

// Categorizer is the optional best-effort categorization collaborator.
// Any failure is absorbed; the user-supplied category stands.
type Categorizer interface {
	Categorize(ctx context.Context, text string) (model.Category, float64, error)
}

// Publisher emits lifecycle events. Publishing is best-effort and never
// fails the triggering operation.
type Publisher interface {
	PublishReportCreated(ctx context.Context, evt messaging.ReportCreatedEvent) error
	PublishStatusUpdated(ctx context.Context, evt messaging.StatusUpdatedEvent) error
}

// NewReportID generates an opaque report id: "R-" plus eight uppercase
// hex characters of a fresh UUID.
func NewReportID() string {
	u := uuid.New()
	return "R-" + strings.ToUpper(hex.EncodeToString(u[:4]))
}

// ReportService orchestrates the report lifecycle. It holds no mutable
// state between calls; everything durable lives behind the repositories.
type ReportService struct {
	reports     ReportRepository
	attachments AttachmentRepository
	anonConfig  config.AnonymousConfig
	categorizer Categorizer
	publisher   Publisher
	blobs       BlobStore
	newID       func() string
	now         func() time.Time
}

func NewReportService(reports ReportRepository, attachments AttachmentRepository, anonConfig config.AnonymousConfig) *ReportService {
	return &ReportService{
		reports:     reports,
		attachments: attachments,
		anonConfig:  anonConfig,
		newID:       NewReportID,
		now:         time.Now,
	}
}

// SetCategorizer injects the optional categorization collaborator.
func (s *ReportService) SetCategorizer(c Categorizer) {
	s.categorizer = c
}

// SetPublisher injects the optional event publisher.
func (s *ReportService) SetPublisher(p Publisher) {
	s.publisher = p
}

// SetBlobStore injects the object store used to clean up stored media
// when a report is deleted.
func (s *ReportService) SetBlobStore(b BlobStore) {
	s.blobs = b
}

// SetIDGenerator overrides report id generation. Used by tests.
func (s *ReportService) SetIDGenerator(f func() string) {
	s.newID = f
}

// SetClock overrides the time source. Used by tests.
func (s *ReportService) SetClock(f func() time.Time) {
	s.now = f
}

// Submit validates and persists a new report. The id is generated before
// the persist call, so a retried submit with the same id surfaces as a
// duplicate-id collision instead of a second row. Anonymous submitters
// are tracked by a salted hash of their device id, never the raw value.
func (s *ReportService) Submit(ctx context.Context, req *model.SubmitReportRequest, userID *string, deviceID string) (*model.ReportResponse, error) {
	category, location, err := req.Validate()
	if err != nil {
		return nil, err
	}

	now := s.now()
	report := &model.Report{
		ID:                   s.newID(),
		Title:                req.Title,
		Description:          req.Description,
		Category:             category,
		Location:             location,
		Status:               model.StatusSubmitted,
		TranscribedVoiceText: req.TranscribedVoiceText,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if userID != nil {
		report.UserID = userID
	} else if deviceID != "" {
		hash := s.hashDeviceID(deviceID)
		report.UserID = &hash
	}

	if s.categorizer != nil {
		aiCategory, confidence, cerr := s.categorizer.Categorize(ctx, req.Title+" "+req.Description)
		if cerr != nil {
			log.WithError(cerr).Infof("categorization unavailable for report %s, keeping submitted category", report.ID)
		} else {
			report.Category = aiCategory
			report.AIConfidence = &confidence
		}
	}

	if err := s.reports.Create(ctx, report); err != nil {
		return nil, err
	}
	log.Infof("report %s submitted at %s", report.ID, report.Location)

	if s.publisher != nil {
		evt := messaging.ReportCreatedEvent{
			ReportID:  report.ID,
			Title:     report.Title,
			Category:  string(report.Category),
			Latitude:  report.Location.Lat(),
			Longitude: report.Location.Lng(),
			Timestamp: now.Unix(),
		}
		if perr := s.publisher.PublishReportCreated(ctx, evt); perr != nil {
			log.WithError(perr).Errorf("failed to publish created event for report %s", report.ID)
		}
	}

	resp := model.NewReportResponse(report, 0)
	return &resp, nil
}

// Get returns the report with its live attachment count.
func (s *ReportService) Get(ctx context.Context, id string) (*model.ReportResponse, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.attachments.CountByReport(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := model.NewReportResponse(report, count)
	return &resp, nil
}

// List returns a page of reports, newest first, with pagination metadata.
func (s *ReportService) List(ctx context.Context, filters model.ListFilters, page model.Page) (*model.ReportListResponse, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	reports, total, err := s.reports.List(ctx, filters, page)
	if err != nil {
		return nil, err
	}

	responses := make([]model.ReportResponse, 0, len(reports))
	for i := range reports {
		count, err := s.attachments.CountByReport(ctx, reports[i].ID)
		if err != nil {
			return nil, err
		}
		responses = append(responses, model.NewReportResponse(&reports[i], count))
	}

	return &model.ReportListResponse{
		Reports:    responses,
		Total:      total,
		Page:       page.Number(),
		PageSize:   page.Limit,
		TotalPages: page.TotalPages(total),
	}, nil
}

// UpdateFields updates title, description and category. Status never
// moves through here.
func (s *ReportService) UpdateFields(ctx context.Context, id string, req *model.UpdateReportRequest) (*model.ReportResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		report.Title = *req.Title
	}
	if req.Description != nil {
		report.Description = *req.Description
	}
	if req.Category != nil {
		report.Category = model.Category(*req.Category)
	}
	report.UpdatedAt = s.now()

	if err := s.reports.Update(ctx, report); err != nil {
		return nil, err
	}

	count, err := s.attachments.CountByReport(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := model.NewReportResponse(report, count)
	return &resp, nil
}

// UpdateStatus applies a state-machine transition with a compare-and-set
// write, so two concurrent transitions from the same prior state cannot
// both succeed. When the write loses the race, the check is re-run
// against the winning status and reported as a transition violation.
func (s *ReportService) UpdateStatus(ctx context.Context, id string, next model.Status, note *string) (*model.ReportResponse, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from := report.Status
	now := s.now()
	if err := report.TransitionTo(next, now); err != nil {
		return nil, err
	}

	if err := s.reports.UpdateStatus(ctx, id, from, next, now); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			current, gerr := s.reports.GetByID(ctx, id)
			if gerr != nil {
				return nil, gerr
			}
			return nil, &apperr.TransitionError{From: string(current.Status), To: string(next)}
		}
		return nil, err
	}

	if note != nil {
		log.Infof("report %s moved %s -> %s: %s", id, from, next, *note)
	} else {
		log.Infof("report %s moved %s -> %s", id, from, next)
	}

	if s.publisher != nil {
		evt := messaging.StatusUpdatedEvent{
			ReportID:  id,
			Title:     report.Title,
			OldStatus: string(from),
			NewStatus: string(next),
			Timestamp: now.Unix(),
		}
		if note != nil {
			evt.Note = *note
		}
		if perr := s.publisher.PublishStatusUpdated(ctx, evt); perr != nil {
			log.WithError(perr).Errorf("failed to publish status event for report %s", id)
		}
	}

	count, err := s.attachments.CountByReport(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := model.NewReportResponse(report, count)
	return &resp, nil
}

// Delete removes a report and all its attachment references. The row
// cascade is one repository transaction; callers never observe a report
// without its attachments or vice versa. Stored media is then removed
// best-effort by the report's object prefix, which also catches objects
// uploaded while the delete was in flight: the object store tolerates
// orphans, the database does not.
func (s *ReportService) Delete(ctx context.Context, id string) error {
	if err := s.reports.Delete(ctx, id); err != nil {
		return err
	}

	if s.blobs != nil {
		if berr := s.blobs.DeleteAll(ctx, blobPrefix(id)); berr != nil {
			log.WithError(berr).Warnf("failed to remove stored objects under %s", blobPrefix(id))
		}
	}

	log.Infof("report %s deleted", id)
	return nil
}

// FindNear returns reports within radiusMeters of center ordered by
// ascending distance, with the same pagination metadata as List.
func (s *ReportService) FindNear(ctx context.Context, center geo.Coordinate, radiusMeters float64, page model.Page) (*model.ReportListResponse, error) {
	if radiusMeters <= 0 {
		return nil, apperr.Invalid("radius", "must be greater than zero")
	}
	if err := page.Validate(); err != nil {
		return nil, err
	}

	results, total, err := s.reports.FindNear(ctx, center, radiusMeters, page)
	if err != nil {
		return nil, err
	}

	responses := make([]model.ReportResponse, 0, len(results))
	for i := range results {
		count, err := s.attachments.CountByReport(ctx, results[i].ID)
		if err != nil {
			return nil, err
		}
		resp := model.NewReportResponse(&results[i].Report, count)
		distance := results[i].DistanceMeters
		resp.DistanceMeters = &distance
		responses = append(responses, resp)
	}

	return &model.ReportListResponse{
		Reports:    responses,
		Total:      total,
		Page:       page.Number(),
		PageSize:   page.Limit,
		TotalPages: page.TotalPages(total),
	}, nil
}

// hashDeviceID hashes a device id with the configured salt. The raw
// device id is never stored.
func (s *ReportService) hashDeviceID(deviceID string) string {
	sum := sha256.Sum256([]byte(deviceID + s.anonConfig.Salt))
	return "anon-" + hex.EncodeToString(sum[:])
}
