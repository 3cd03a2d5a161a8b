package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"civicreport/internal/apperr"
	"civicreport/internal/model"
)

// BlobStore is the external object storage collaborator. Attachment
// bytes live there; the repositories only hold references.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	DeleteAll(ctx context.Context, prefix string) error
}

// blobPrefix is the object-store prefix holding all media of one report.
func blobPrefix(reportID string) string {
	return fmt.Sprintf("reports/%s/", reportID)
}

const presignExpiry = 15 * time.Minute

// AttachmentService manages media attached to reports. A reference row
// is only created after the file is durably stored.
type AttachmentService struct {
	reports     ReportRepository
	attachments AttachmentRepository
	blobs       BlobStore
	newID       func() string
	now         func() time.Time
}

func NewAttachmentService(reports ReportRepository, attachments AttachmentRepository, blobs BlobStore) *AttachmentService {
	return &AttachmentService{
		reports:     reports,
		attachments: attachments,
		blobs:       blobs,
		newID:       func() string { return uuid.New().String() },
		now:         time.Now,
	}
}

// SetIDGenerator overrides attachment id generation. Used by tests.
func (s *AttachmentService) SetIDGenerator(f func() string) {
	s.newID = f
}

// SetClock overrides the time source. Used by tests.
func (s *AttachmentService) SetClock(f func() time.Time) {
	s.now = f
}

// Add stores the file and records the reference. The upload happens
// first; if recording the reference fails the stored object is removed
// again so no reference ever points at a missing file.
func (s *AttachmentService) Add(ctx context.Context, reportID, filename, mimeType string, sizeBytes int64, r io.Reader) (*model.AttachmentResponse, error) {
	if _, err := s.reports.GetByID(ctx, reportID); err != nil {
		return nil, err
	}

	id := s.newID()
	key := blobPrefix(reportID) + id + path.Ext(filename)

	att, err := model.NewAttachment(id, reportID, key, mimeType, sizeBytes, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.blobs.Put(ctx, key, r, sizeBytes, mimeType); err != nil {
		return nil, err
	}

	if err := s.attachments.Create(ctx, att); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			log.WithError(derr).Warnf("failed to clean up stored object %s after insert failure", key)
		}
		return nil, err
	}

	log.Infof("attachment %s (%s, %d bytes) added to report %s", id, att.FileType, sizeBytes, reportID)
	return s.respond(ctx, att), nil
}

// List returns the attachments of a report with download URLs.
func (s *AttachmentService) List(ctx context.Context, reportID string) (*model.AttachmentListResponse, error) {
	if _, err := s.reports.GetByID(ctx, reportID); err != nil {
		return nil, err
	}

	attachments, err := s.attachments.ListByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}

	responses := make([]model.AttachmentResponse, 0, len(attachments))
	for i := range attachments {
		responses = append(responses, *s.respond(ctx, &attachments[i]))
	}
	return &model.AttachmentListResponse{Attachments: responses, Total: len(responses)}, nil
}

// Remove deletes an attachment reference and then the stored object.
// The attachment must belong to the given report.
func (s *AttachmentService) Remove(ctx context.Context, reportID, attachmentID string) error {
	att, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		return err
	}
	// An attachment reached through the wrong report is not revealed.
	if att.ReportID != reportID {
		return apperr.NotFoundf("attachment %s on report %s", attachmentID, reportID)
	}

	if err := s.attachments.Delete(ctx, attachmentID); err != nil {
		return err
	}
	if derr := s.blobs.Delete(ctx, att.BlobURI); derr != nil {
		log.WithError(derr).Warnf("failed to remove stored object %s", att.BlobURI)
	}
	return nil
}

func (s *AttachmentService) respond(ctx context.Context, att *model.Attachment) *model.AttachmentResponse {
	url := att.BlobURI
	if presigned, err := s.blobs.PresignGet(ctx, att.BlobURI, presignExpiry); err == nil {
		url = presigned
	} else {
		log.WithError(err).Warnf("failed to presign %s, returning raw key", att.BlobURI)
	}
	return &model.AttachmentResponse{
		ID:        att.ID,
		ReportID:  att.ReportID,
		URL:       url,
		MimeType:  att.MimeType,
		FileType:  att.FileType,
		SizeBytes: att.SizeBytes,
		CreatedAt: att.CreatedAt,
	}
}
