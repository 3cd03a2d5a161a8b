package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicreport/internal/apperr"
)

var allStatuses = []Status{
	StatusSubmitted, StatusAssigned, StatusInProgress, StatusResolved, StatusRejected,
}

func TestStatusTransitionTable(t *testing.T) {
	allowed := map[Status]map[Status]bool{
		StatusSubmitted:  {StatusAssigned: true, StatusRejected: true},
		StatusAssigned:   {StatusInProgress: true, StatusRejected: true},
		StatusInProgress: {StatusResolved: true, StatusRejected: true},
		StatusResolved:   {},
		StatusRejected:   {},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			assert.Equal(t, allowed[from][to], from.CanTransitionTo(to),
				"transition %s -> %s", from, to)
		}
	}
}

func TestReportTransitionTo(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)

	r := &Report{ID: "R-1", Status: StatusSubmitted, CreatedAt: created, UpdatedAt: created}

	require.NoError(t, r.TransitionTo(StatusAssigned, later))
	assert.Equal(t, StatusAssigned, r.Status)
	assert.Equal(t, later, r.UpdatedAt)

	// Assigned may not jump straight to Resolved; the report is untouched.
	err := r.TransitionTo(StatusResolved, later.Add(time.Hour))
	require.Error(t, err)
	var terr *apperr.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "Assigned", terr.From)
	assert.Equal(t, "Resolved", terr.To)
	assert.Equal(t, StatusAssigned, r.Status)
	assert.Equal(t, later, r.UpdatedAt)
}

func TestParseStatus(t *testing.T) {
	for _, s := range allStatuses {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStatus("Closed")
	assert.Error(t, err)
	_, err = ParseStatus("submitted") // case-sensitive codes
	assert.Error(t, err)
}

func TestParseCategory(t *testing.T) {
	for _, c := range []string{
		"infrastructure", "utilities", "crime", "traffic",
		"public_nuisance", "environmental", "other",
	} {
		got, err := ParseCategory(c)
		require.NoError(t, err)
		assert.Equal(t, Category(c), got)
	}
	_, err := ParseCategory("potholes")
	assert.Error(t, err)
}

func TestSubmitReportRequestValidate(t *testing.T) {
	valid := SubmitReportRequest{
		Title:       "Pothole on Main Street",
		Description: "Large pothole near the intersection",
		Category:    "infrastructure",
		Latitude:    30.0444,
		Longitude:   31.2357,
	}

	category, location, err := valid.Validate()
	require.NoError(t, err)
	assert.Equal(t, CategoryInfrastructure, category)
	assert.Equal(t, 30.0444, location.Lat())

	testCases := []struct {
		name     string
		mutate   func(*SubmitReportRequest)
		badField string
	}{
		{"title too short", func(r *SubmitReportRequest) { r.Title = "ab" }, "title"},
		{"description too short", func(r *SubmitReportRequest) { r.Description = "short" }, "description"},
		{"unknown category", func(r *SubmitReportRequest) { r.Category = "misc" }, "category"},
		{"zero latitude", func(r *SubmitReportRequest) { r.Latitude = 0 }, "latitude"},
		{"longitude out of range", func(r *SubmitReportRequest) { r.Longitude = 181 }, "longitude"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			_, _, err := req.Validate()
			require.Error(t, err)
			var verr *apperr.ValidationError
			require.True(t, errors.As(err, &verr))
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, tc.badField, verr.Fields[0].Field)
		})
	}

	t.Run("all violations collected", func(t *testing.T) {
		req := SubmitReportRequest{Title: "ab", Description: "no", Category: "x"}
		_, _, err := req.Validate()
		var verr *apperr.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Len(t, verr.Fields, 5) // title, description, category, latitude, longitude
	})
}

func TestUpdateReportRequestValidate(t *testing.T) {
	title := "New title"
	bad := "ab"
	category := "traffic"

	assert.NoError(t, (&UpdateReportRequest{Title: &title}).Validate())
	assert.NoError(t, (&UpdateReportRequest{Category: &category}).Validate())
	assert.Error(t, (&UpdateReportRequest{}).Validate())
	assert.Error(t, (&UpdateReportRequest{Title: &bad}).Validate())
}

func TestPage(t *testing.T) {
	p := Page{Skip: 0, Limit: 10}
	assert.Equal(t, 1, p.Number())
	assert.Equal(t, 3, p.TotalPages(25))
	assert.Equal(t, 0, p.TotalPages(0))

	// Misaligned skip floors to the containing page.
	assert.Equal(t, 2, Page{Skip: 15, Limit: 10}.Number())
	assert.Equal(t, 3, Page{Skip: 20, Limit: 10}.Number())

	assert.Error(t, Page{Skip: -1, Limit: 10}.Validate())
	assert.Error(t, Page{Skip: 0, Limit: 0}.Validate())
	assert.Error(t, Page{Skip: 0, Limit: 101}.Validate())
	assert.NoError(t, Page{Skip: 0, Limit: 100}.Validate())
}
