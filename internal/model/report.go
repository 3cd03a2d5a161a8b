package model

import (
	"time"
	"unicode/utf8"

	"civicreport/internal/apperr"
	"civicreport/internal/geo"
)

type Status string

const (
	StatusSubmitted  Status = "Submitted"
	StatusAssigned   Status = "Assigned"
	StatusInProgress Status = "InProgress"
	StatusResolved   Status = "Resolved"
	StatusRejected   Status = "Rejected"
)

// transitions is the full lifecycle graph. Resolved and Rejected are
// terminal; Rejected is reachable from every non-terminal state.
var transitions = map[Status][]Status{
	StatusSubmitted:  {StatusAssigned, StatusRejected},
	StatusAssigned:   {StatusInProgress, StatusRejected},
	StatusInProgress: {StatusResolved, StatusRejected},
	StatusResolved:   {},
	StatusRejected:   {},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseStatus rejects unknown status codes at the boundary.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusSubmitted, StatusAssigned, StatusInProgress, StatusResolved, StatusRejected:
		return Status(s), nil
	}
	return "", apperr.Invalid("status", "unknown status "+s)
}

type Category string

const (
	CategoryInfrastructure Category = "infrastructure"
	CategoryUtilities      Category = "utilities"
	CategoryCrime          Category = "crime"
	CategoryTraffic        Category = "traffic"
	CategoryPublicNuisance Category = "public_nuisance"
	CategoryEnvironmental  Category = "environmental"
	CategoryOther          Category = "other"
)

// ParseCategory rejects unknown category codes at the boundary.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryInfrastructure, CategoryUtilities, CategoryCrime, CategoryTraffic,
		CategoryPublicNuisance, CategoryEnvironmental, CategoryOther:
		return Category(s), nil
	}
	return "", apperr.Invalid("category", "unknown category "+s)
}

type Report struct {
	ID                   string
	Title                string
	Description          string
	Category             Category
	Location             geo.Coordinate
	Status               Status
	AIConfidence         *float64
	TranscribedVoiceText *string
	UserID               *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TransitionTo applies the state machine. On a violation the report is
// left unchanged and the rejected pair is named in the error.
func (r *Report) TransitionTo(next Status, now time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return &apperr.TransitionError{From: string(r.Status), To: string(next)}
	}
	r.Status = next
	r.UpdatedAt = now
	return nil
}

// ReportWithDistance is a nearby-search row: the report plus its distance
// from the query center.
type ReportWithDistance struct {
	Report
	DistanceMeters float64
}

// Request/Response DTOs

type SubmitReportRequest struct {
	Title                string  `json:"title" binding:"required"`
	Description          string  `json:"description" binding:"required"`
	Category             string  `json:"category" binding:"required"`
	Latitude             float64 `json:"latitude"`
	Longitude            float64 `json:"longitude"`
	TranscribedVoiceText *string `json:"transcribed_voice_text,omitempty"`
}

const (
	titleMinLen       = 3
	titleMaxLen       = 500
	descriptionMinLen = 10
)

// Validate checks every field and returns the parsed category and
// coordinate. All violations are collected into one error.
func (req *SubmitReportRequest) Validate() (Category, geo.Coordinate, error) {
	verr := &apperr.ValidationError{}

	if n := utf8.RuneCountInString(req.Title); n < titleMinLen || n > titleMaxLen {
		verr.Add("title", "must be between 3 and 500 characters")
	}
	if utf8.RuneCountInString(req.Description) < descriptionMinLen {
		verr.Add("description", "must be at least 10 characters")
	}

	category, err := ParseCategory(req.Category)
	if err != nil {
		verr.Merge(err)
	}

	location, err := geo.New(req.Latitude, req.Longitude)
	if err != nil {
		verr.Merge(err)
	}

	if !verr.Empty() {
		return "", geo.Coordinate{}, verr
	}
	return category, location, nil
}

type UpdateReportRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
}

// Validate checks the provided fields. At least one must be set. Status
// is deliberately absent here: it only moves through the status update.
func (req *UpdateReportRequest) Validate() error {
	verr := &apperr.ValidationError{}

	if req.Title == nil && req.Description == nil && req.Category == nil {
		verr.Add("request", "nothing to update")
		return verr
	}
	if req.Title != nil {
		if n := utf8.RuneCountInString(*req.Title); n < titleMinLen || n > titleMaxLen {
			verr.Add("title", "must be between 3 and 500 characters")
		}
	}
	if req.Description != nil && utf8.RuneCountInString(*req.Description) < descriptionMinLen {
		verr.Add("description", "must be at least 10 characters")
	}
	if req.Category != nil {
		if _, err := ParseCategory(*req.Category); err != nil {
			verr.Merge(err)
		}
	}

	if !verr.Empty() {
		return verr
	}
	return nil
}

type UpdateStatusRequest struct {
	Status string  `json:"status" binding:"required"`
	Note   *string `json:"note,omitempty"`
}

type ReportResponse struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	Category             Category  `json:"category"`
	Status               Status    `json:"status"`
	Latitude             float64   `json:"latitude"`
	Longitude            float64   `json:"longitude"`
	AIConfidence         *float64  `json:"ai_confidence,omitempty"`
	TranscribedVoiceText *string   `json:"transcribed_voice_text,omitempty"`
	UserID               *string   `json:"user_id,omitempty"`
	AttachmentCount      int       `json:"attachment_count"`
	DistanceMeters       *float64  `json:"distance_meters,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// NewReportResponse assembles the outward view of a report. The
// attachment count is always supplied by the caller from the live store.
func NewReportResponse(r *Report, attachmentCount int) ReportResponse {
	return ReportResponse{
		ID:                   r.ID,
		Title:                r.Title,
		Description:          r.Description,
		Category:             r.Category,
		Status:               r.Status,
		Latitude:             r.Location.Lat(),
		Longitude:            r.Location.Lng(),
		AIConfidence:         r.AIConfidence,
		TranscribedVoiceText: r.TranscribedVoiceText,
		UserID:               r.UserID,
		AttachmentCount:      attachmentCount,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

type ReportListResponse struct {
	Reports    []ReportResponse `json:"reports"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// ListFilters narrows a listing. Nil means "any".
type ListFilters struct {
	Status   *Status
	Category *Category
}

// Page is the skip/limit pagination window.
type Page struct {
	Skip  int
	Limit int
}

// Validate enforces skip >= 0 and limit in [1, 100].
func (p Page) Validate() error {
	verr := &apperr.ValidationError{}
	if p.Skip < 0 {
		verr.Add("skip", "must be >= 0")
	}
	if p.Limit < 1 || p.Limit > 100 {
		verr.Add("limit", "must be between 1 and 100")
	}
	if !verr.Empty() {
		return verr
	}
	return nil
}

// Number is the 1-based page number. For skip values not aligned to the
// limit this floors: skip=15, limit=10 is page 2.
func (p Page) Number() int { return p.Skip/p.Limit + 1 }

// TotalPages is ceil(total / limit).
func (p Page) TotalPages(total int) int { return (total + p.Limit - 1) / p.Limit }
