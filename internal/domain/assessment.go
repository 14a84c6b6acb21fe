package domain

import (
	"time"
)

// AssessmentProfile is the structured summary of a student's self-reported
// interests, strengths, and aspirations. It is immutable once constructed from
// assessment answers and is consumed read-only by the prompt composer and the
// recommendation pipeline.
type AssessmentProfile struct {
	GradeLevel        int      `json:"gradeLevel,omitempty"`
	Interests         []string `json:"interests,omitempty"`
	FavoriteSubjects  []string `json:"favoriteSubjects,omitempty"`
	Strengths         []string `json:"strengths,omitempty"`
	CareerAspirations []string `json:"careerAspirations,omitempty"`
	PersonalityTraits []string `json:"personalityTraits,omitempty"`
	LearningStyle     string   `json:"learningStyle,omitempty"`
	Extracurricular   []string `json:"extracurricularActivities,omitempty"`
}

// IsEmpty reports whether the profile carries no answers at all.
func (p AssessmentProfile) IsEmpty() bool {
	return p.GradeLevel == 0 &&
		len(p.Interests) == 0 &&
		len(p.FavoriteSubjects) == 0 &&
		len(p.Strengths) == 0 &&
		len(p.CareerAspirations) == 0 &&
		len(p.PersonalityTraits) == 0 &&
		p.LearningStyle == "" &&
		len(p.Extracurricular) == 0
}

// AssessmentRecord is a stored assessment submission for a user.
type AssessmentRecord struct {
	UserID    string            `json:"user_id"`
	Profile   AssessmentProfile `json:"profile"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
