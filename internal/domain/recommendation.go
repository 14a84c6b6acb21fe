package domain

import (
	"time"
)

// CareerRecommendation is one recommended CBE pathway/track for a student.
// Instances are produced fresh per extraction call and never mutated afterward.
type CareerRecommendation struct {
	Pathway             string   `json:"pathway"`
	Track               string   `json:"track"`
	MatchPercentage     int      `json:"matchPercentage"`
	Reasoning           string   `json:"reasoning"`
	RecommendedSubjects []string `json:"recommendedSubjects"`
	CareerOpportunities []string `json:"careerOpportunities"`
	NextSteps           []string `json:"nextSteps"`
}

// Normalize clamps MatchPercentage into [0,100] and replaces nil list fields
// with empty slices. The upstream model occasionally returns out-of-range
// percentages or omits optional arrays; callers must never observe either.
func (r *CareerRecommendation) Normalize() {
	if r.MatchPercentage < 0 {
		r.MatchPercentage = 0
	}
	if r.MatchPercentage > 100 {
		r.MatchPercentage = 100
	}
	if r.RecommendedSubjects == nil {
		r.RecommendedSubjects = []string{}
	}
	if r.CareerOpportunities == nil {
		r.CareerOpportunities = []string{}
	}
	if r.NextSteps == nil {
		r.NextSteps = []string{}
	}
}

// RecommendationSource records which pipeline produced a recommendation set.
type RecommendationSource string

const (
	// SourceModel marks recommendations parsed from the model's response.
	SourceModel RecommendationSource = "model"
	// SourceFallback marks recommendations from the rule-based recommender.
	SourceFallback RecommendationSource = "fallback"
)

// RecommendationSet is a stored batch of recommendations for one user.
type RecommendationSet struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	Source          RecommendationSource   `json:"source"`
	Recommendations []CareerRecommendation `json:"recommendations"`
	CreatedAt       time.Time              `json:"created_at"`
}
