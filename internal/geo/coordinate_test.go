package geo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicreport/internal/apperr"
)

func TestNew(t *testing.T) {
	testCases := []struct {
		name      string
		lat       float64
		lng       float64
		wantErr   bool
		badFields []string
	}{
		{name: "valid", lat: 30.0444, lng: 31.2357},
		{name: "valid negative", lat: -33.8688, lng: -70.6693},
		{name: "latitude above range", lat: 91, lng: 31, wantErr: true, badFields: []string{"latitude"}},
		{name: "latitude below range", lat: -90.5, lng: 31, wantErr: true, badFields: []string{"latitude"}},
		{name: "longitude above range", lat: 30, lng: 181, wantErr: true, badFields: []string{"longitude"}},
		{name: "longitude below range", lat: 30, lng: -180.01, wantErr: true, badFields: []string{"longitude"}},
		{name: "zero latitude rejected", lat: 0, lng: 31, wantErr: true, badFields: []string{"latitude"}},
		{name: "zero longitude rejected", lat: 30, lng: 0, wantErr: true, badFields: []string{"longitude"}},
		{name: "both zero rejected", lat: 0, lng: 0, wantErr: true, badFields: []string{"latitude", "longitude"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(tc.lat, tc.lng)
			if !tc.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tc.lat, c.Lat())
				assert.Equal(t, tc.lng, c.Lng())
				return
			}
			require.Error(t, err)
			var verr *apperr.ValidationError
			require.True(t, errors.As(err, &verr))
			var fields []string
			for _, f := range verr.Fields {
				fields = append(fields, f.Field)
			}
			assert.Equal(t, tc.badFields, fields)
		})
	}
}

func TestDistanceMeters(t *testing.T) {
	a, err := New(30, 31)
	require.NoError(t, err)
	b, err := New(31, 31)
	require.NoError(t, err)

	// One degree of latitude along a meridian is R * pi / 180.
	assert.InDelta(t, 111194.93, a.DistanceMeters(b), 1.0)
	assert.InDelta(t, a.DistanceMeters(b), b.DistanceMeters(a), 1e-6)
	assert.InDelta(t, 0, a.DistanceMeters(a), 1e-6)
}
