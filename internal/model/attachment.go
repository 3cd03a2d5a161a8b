package model

import (
	"regexp"
	"strings"
	"time"

	"civicreport/internal/apperr"
)

type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeVideo FileType = "video"
	FileTypeAudio FileType = "audio"
)

// MaxAttachmentSizeBytes caps uploads at 50 MiB.
const MaxAttachmentSizeBytes = 50 * 1024 * 1024

var mimeTypePattern = regexp.MustCompile(`^[a-z]+/[a-z0-9.+-]+$`)

// Attachment is the stored reference to a media file held in the object
// store. The row is created only after the file is durably stored.
type Attachment struct {
	ID        string
	ReportID  string
	BlobURI   string
	MimeType  string
	FileType  FileType
	SizeBytes int64
	CreatedAt time.Time
}

// NewAttachment validates the upload metadata and derives the file type
// from the MIME prefix. Only image, video and audio media are accepted.
func NewAttachment(id, reportID, blobURI, mimeType string, sizeBytes int64, now time.Time) (*Attachment, error) {
	verr := &apperr.ValidationError{}

	if !mimeTypePattern.MatchString(mimeType) {
		verr.Add("mime_type", "must match type/subtype, lowercase")
	}
	fileType, ok := fileTypeForMime(mimeType)
	if !ok {
		verr.Add("mime_type", "only image, video and audio media are accepted")
	}
	if sizeBytes <= 0 {
		verr.Add("size_bytes", "must be positive")
	} else if sizeBytes > MaxAttachmentSizeBytes {
		verr.Add("size_bytes", "must not exceed 50 MiB")
	}
	if blobURI == "" {
		verr.Add("blob_uri", "must not be empty")
	}

	if !verr.Empty() {
		return nil, verr
	}
	return &Attachment{
		ID:        id,
		ReportID:  reportID,
		BlobURI:   blobURI,
		MimeType:  mimeType,
		FileType:  fileType,
		SizeBytes: sizeBytes,
		CreatedAt: now,
	}, nil
}

func fileTypeForMime(mimeType string) (FileType, bool) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return FileTypeImage, true
	case strings.HasPrefix(mimeType, "video/"):
		return FileTypeVideo, true
	case strings.HasPrefix(mimeType, "audio/"):
		return FileTypeAudio, true
	}
	return "", false
}

type AttachmentResponse struct {
	ID        string    `json:"id"`
	ReportID  string    `json:"report_id"`
	URL       string    `json:"url"`
	MimeType  string    `json:"mime_type"`
	FileType  FileType  `json:"file_type"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type AttachmentListResponse struct {
	Attachments []AttachmentResponse `json:"attachments"`
	Total       int                  `json:"total"`
}
