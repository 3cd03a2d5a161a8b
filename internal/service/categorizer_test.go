package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicreport/internal/model"
)

func TestKeywordCategorizer(t *testing.T) {
	c := NewKeywordCategorizer()

	category, confidence, err := c.Categorize(context.Background(), "Pothole and broken sidewalk on the road")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryInfrastructure, category)
	assert.InDelta(t, 0.8, confidence, 1e-9)

	// Confidence never reaches certainty.
	_, confidence, err = c.Categorize(context.Background(), "pothole road bridge sidewalk pavement manhole")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, confidence, 1e-9)

	_, _, err = c.Categorize(context.Background(), "nothing recognizable in this text")
	assert.ErrorIs(t, err, ErrNoCategoryMatch)
}
