package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"civicreport/internal/apperr"
	"civicreport/internal/geo"
	"civicreport/internal/messaging"
	"civicreport/internal/model"
)

// In-memory repository fakes. They model the same contract the Postgres
// implementations honor, including compare-and-set status writes and the
// delete cascade over attachment rows.

type fakeReportRepo struct {
	reports     map[string]*model.Report
	attachments *fakeAttachmentRepo

	// beforeStatusWrite runs between the service's read and its
	// compare-and-set write, to stage a lost race. beforeUpdate does the
	// same for field updates.
	beforeStatusWrite func()
	beforeUpdate      func()
}

func newFakeReportRepo(attachments *fakeAttachmentRepo) *fakeReportRepo {
	return &fakeReportRepo{
		reports:     make(map[string]*model.Report),
		attachments: attachments,
	}
}

func copyReport(r *model.Report) *model.Report {
	c := *r
	return &c
}

func (f *fakeReportRepo) Create(_ context.Context, report *model.Report) error {
	if _, ok := f.reports[report.ID]; ok {
		return fmt.Errorf("report %s: %w", report.ID, apperr.ErrDuplicateID)
	}
	f.reports[report.ID] = copyReport(report)
	return nil
}

func (f *fakeReportRepo) GetByID(_ context.Context, id string) (*model.Report, error) {
	r, ok := f.reports[id]
	if !ok {
		return nil, apperr.NotFoundf("report %s", id)
	}
	return copyReport(r), nil
}

// Update mirrors the Postgres repository: the status column is not
// among the written fields, the stored status always stands.
func (f *fakeReportRepo) Update(_ context.Context, report *model.Report) error {
	if f.beforeUpdate != nil {
		f.beforeUpdate()
	}
	current, ok := f.reports[report.ID]
	if !ok {
		return apperr.NotFoundf("report %s", report.ID)
	}
	c := copyReport(report)
	c.Status = current.Status
	f.reports[report.ID] = c
	return nil
}

func (f *fakeReportRepo) UpdateStatus(_ context.Context, id string, from, to model.Status, now time.Time) error {
	if f.beforeStatusWrite != nil {
		f.beforeStatusWrite()
	}
	r, ok := f.reports[id]
	if !ok {
		return apperr.NotFoundf("report %s", id)
	}
	if r.Status != from {
		return apperr.ErrConflict
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

func (f *fakeReportRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.reports[id]; !ok {
		return apperr.NotFoundf("report %s", id)
	}
	delete(f.reports, id)
	if f.attachments != nil {
		_ = f.attachments.DeleteAllByReport(context.Background(), id)
	}
	return nil
}

func (f *fakeReportRepo) matching(filters model.ListFilters) []model.Report {
	out := make([]model.Report, 0, len(f.reports))
	for _, r := range f.reports {
		if filters.Status != nil && r.Status != *filters.Status {
			continue
		}
		if filters.Category != nil && r.Category != *filters.Category {
			continue
		}
		out = append(out, *r)
	}
	return out
}

func (f *fakeReportRepo) List(_ context.Context, filters model.ListFilters, page model.Page) ([]model.Report, int, error) {
	rows := f.matching(filters)
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})
	total := len(rows)
	return window(rows, page), total, nil
}

func (f *fakeReportRepo) FindNear(_ context.Context, center geo.Coordinate, radiusMeters float64, page model.Page) ([]model.ReportWithDistance, int, error) {
	rows := make([]model.ReportWithDistance, 0)
	for _, r := range f.reports {
		d := center.DistanceMeters(r.Location)
		if d <= radiusMeters {
			rows = append(rows, model.ReportWithDistance{Report: *r, DistanceMeters: d})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DistanceMeters != rows[j].DistanceMeters {
			return rows[i].DistanceMeters < rows[j].DistanceMeters
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	total := len(rows)
	return window(rows, page), total, nil
}

func window[T any](rows []T, page model.Page) []T {
	if page.Skip >= len(rows) {
		return nil
	}
	end := page.Skip + page.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[page.Skip:end]
}

type fakeAttachmentRepo struct {
	items     map[string]*model.Attachment
	createErr error
}

func newFakeAttachmentRepo() *fakeAttachmentRepo {
	return &fakeAttachmentRepo{items: make(map[string]*model.Attachment)}
}

func (f *fakeAttachmentRepo) Create(_ context.Context, att *model.Attachment) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.items[att.ID]; ok {
		return fmt.Errorf("attachment %s: %w", att.ID, apperr.ErrDuplicateID)
	}
	c := *att
	f.items[att.ID] = &c
	return nil
}

func (f *fakeAttachmentRepo) GetByID(_ context.Context, id string) (*model.Attachment, error) {
	a, ok := f.items[id]
	if !ok {
		return nil, apperr.NotFoundf("attachment %s", id)
	}
	c := *a
	return &c, nil
}

func (f *fakeAttachmentRepo) ListByReport(_ context.Context, reportID string) ([]model.Attachment, error) {
	out := make([]model.Attachment, 0)
	for _, a := range f.items {
		if a.ReportID == reportID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeAttachmentRepo) CountByReport(ctx context.Context, reportID string) (int, error) {
	list, err := f.ListByReport(ctx, reportID)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func (f *fakeAttachmentRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return apperr.NotFoundf("attachment %s", id)
	}
	delete(f.items, id)
	return nil
}

func (f *fakeAttachmentRepo) DeleteAllByReport(_ context.Context, reportID string) error {
	for id, a := range f.items {
		if a.ReportID == reportID {
			delete(f.items, id)
		}
	}
	return nil
}

type fakePublisher struct {
	created []messaging.ReportCreatedEvent
	status  []messaging.StatusUpdatedEvent
	err     error
}

func (f *fakePublisher) PublishReportCreated(_ context.Context, evt messaging.ReportCreatedEvent) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, evt)
	return nil
}

func (f *fakePublisher) PublishStatusUpdated(_ context.Context, evt messaging.StatusUpdatedEvent) error {
	if f.err != nil {
		return f.err
	}
	f.status = append(f.status, evt)
	return nil
}

type fakeCategorizer struct {
	category   model.Category
	confidence float64
	err        error
}

func (f *fakeCategorizer) Categorize(_ context.Context, _ string) (model.Category, float64, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	return f.category, f.confidence, nil
}

type fakeBlobStore struct {
	objects    map[string]bool
	deleted    []string
	putErr     error
	presignErr error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string]bool)}
}

func (f *fakeBlobStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	_, _ = io.Copy(io.Discard, r)
	f.objects[key] = true
	return nil
}

func (f *fakeBlobStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://blobs.local/" + key + "?signed", nil
}

func (f *fakeBlobStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeBlobStore) DeleteAll(_ context.Context, prefix string) error {
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			delete(f.objects, key)
			f.deleted = append(f.deleted, key)
		}
	}
	return nil
}
