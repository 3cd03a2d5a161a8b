package service

import (
	"context"
	"errors"
	"strings"

	"civicreport/internal/model"
)

// ErrNoCategoryMatch means the categorizer found nothing it recognizes;
// the caller keeps the user-supplied category.
var ErrNoCategoryMatch = errors.New("no category keyword matched")

// KeywordCategorizer is a local implementation of the categorization
// collaborator: it scores report text against per-category keyword sets.
type KeywordCategorizer struct{}

func NewKeywordCategorizer() *KeywordCategorizer {
	return &KeywordCategorizer{}
}

var categoryKeywords = map[model.Category][]string{
	model.CategoryInfrastructure: {"pothole", "road", "bridge", "sidewalk", "pavement", "street light", "manhole"},
	model.CategoryUtilities:      {"water", "electricity", "power", "sewage", "gas leak", "outage", "pipe"},
	model.CategoryCrime:          {"theft", "robbery", "assault", "vandalism", "break-in", "stolen"},
	model.CategoryTraffic:        {"traffic", "accident", "congestion", "signal", "parking", "crash"},
	model.CategoryPublicNuisance: {"noise", "litter", "garbage", "trash", "dumping", "graffiti", "smell"},
	model.CategoryEnvironmental:  {"pollution", "smoke", "chemical", "flood", "tree", "air quality"},
}

// Categorize picks the category with the most keyword hits in text.
// Confidence grows with the number of hits and is capped below 1.
func (c *KeywordCategorizer) Categorize(_ context.Context, text string) (model.Category, float64, error) {
	lowered := strings.ToLower(text)

	var best model.Category
	bestHits := 0
	for category, keywords := range categoryKeywords {
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				hits++
			}
		}
		if hits > bestHits || (hits == bestHits && hits > 0 && category < best) {
			best = category
			bestHits = hits
		}
	}

	if bestHits == 0 {
		return "", 0, ErrNoCategoryMatch
	}

	confidence := 0.5 + 0.1*float64(bestHits)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return best, confidence, nil
}
