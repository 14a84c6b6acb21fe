package guidance

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/elimu-labs/cbe-compass/internal/curriculum"
	"github.com/elimu-labs/cbe-compass/internal/domain"
)

// ErrNoJSONArray is returned when the model response contains no bracketed
// JSON array anywhere in its text.
var ErrNoJSONArray = errors.New("guidance: no JSON array found in model response")

// ExtractJSONArray locates the first bracketed JSON array substring in free
// text. The model is instructed to return a bare array but routinely wraps it
// in prose or markdown fences, so this takes everything from the first '[' to
// the last ']' and ignores the surroundings.
func ExtractJSONArray(text string) (string, bool) {
	start := strings.Index(text, "[")
	if start < 0 {
		return "", false
	}
	end := strings.LastIndex(text, "]")
	if end < start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseRecommendations extracts and decodes the recommendation array from a
// model response. Every parsed recommendation is normalized: matchPercentage
// clamped to [0,100], nil list fields replaced with empty slices. When the
// model names a known pathway but omits its career list, the catalog's
// opportunities fill the gap.
func ParseRecommendations(text string) ([]domain.CareerRecommendation, error) {
	raw, ok := ExtractJSONArray(text)
	if !ok {
		return nil, ErrNoJSONArray
	}

	var recs []domain.CareerRecommendation
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNoJSONArray
	}

	for i := range recs {
		recs[i].Normalize()
		if len(recs[i].CareerOpportunities) == 0 {
			if p := curriculum.FindPathway(recs[i].Pathway); p != nil {
				recs[i].CareerOpportunities = p.CareerOpportunities
			}
		}
	}
	return recs, nil
}
