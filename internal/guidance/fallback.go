package guidance

import (
	"strings"

	"github.com/elimu-labs/cbe-compass/internal/domain"
)

// stemSubjects are the favorite subjects that trigger the STEM rule group.
// Matching is case-insensitive equality on the subject name.
var stemSubjects = []string{
	"Mathematics", "Physics", "Chemistry", "Biology", "Computer Science",
}

// socialStems and artsStems trigger their rule groups when any word of an
// interest starts with one of them (case-insensitive). Stems rather than full
// words so "leading group activities" matches "lead" and "artistic" matches
// "art", while "participating" matches neither.
var socialStems = []string{
	"help", "lead", "communic", "business", "entrepreneur", "debat", "teach",
}

var artsStems = []string{
	"art", "music", "creativ", "sport", "design", "draw", "paint", "danc", "film", "photo",
}

// FallbackRecommendations is the deterministic rule-based recommender used
// when the model's output cannot be obtained or parsed. Pure function over the
// profile: no I/O, no randomness; identical input yields identical output.
// Rule groups are evaluated in fixed order (STEM, Social Sciences, Arts) and
// each appends one hand-authored recommendation. At least one recommendation
// is always returned.
func FallbackRecommendations(profile domain.AssessmentProfile) []domain.CareerRecommendation {
	var recs []domain.CareerRecommendation

	if anySubjectIn(profile.FavoriteSubjects, stemSubjects) {
		recs = append(recs, domain.CareerRecommendation{
			Pathway:             "STEM",
			Track:               "Pure Sciences",
			MatchPercentage:     75,
			Reasoning:           "Your interest in science and mathematics subjects suggests a strong fit for STEM careers.",
			RecommendedSubjects: []string{"Mathematics", "Physics", "Chemistry", "Biology"},
			CareerOpportunities: []string{"Engineer", "Doctor", "Scientist", "Researcher"},
			NextSteps:           []string{"Focus on mathematics and sciences", "Consider science competitions", "Explore university programs"},
		})
	}

	if anyInterestMatches(profile.Interests, socialStems) {
		recs = append(recs, domain.CareerRecommendation{
			Pathway:             "Social Sciences",
			Track:               "Business Studies",
			MatchPercentage:     70,
			Reasoning:           "Your interest in helping others and leadership suggests social sciences could be a good fit.",
			RecommendedSubjects: []string{"Business Studies", "Economics", "History & Government"},
			CareerOpportunities: []string{"Lawyer", "Business Manager", "Teacher", "Social Worker"},
			NextSteps:           []string{"Develop communication skills", "Join debate club", "Consider internships"},
		})
	}

	if anyInterestMatches(profile.Interests, artsStems) {
		recs = append(recs, domain.CareerRecommendation{
			Pathway:             "Arts & Sports Science",
			Track:               "Creative Arts",
			MatchPercentage:     65,
			Reasoning:           "Your creative interests suggest you might thrive in arts and creative fields.",
			RecommendedSubjects: []string{"Art & Design", "Music", "Drama"},
			CareerOpportunities: []string{"Artist", "Designer", "Musician", "Actor"},
			NextSteps:           []string{"Build a portfolio", "Join arts clubs", "Explore creative programs"},
		})
	}

	if len(recs) == 0 {
		recs = append(recs, domain.CareerRecommendation{
			Pathway:             "General",
			Track:               "Exploration",
			MatchPercentage:     50,
			Reasoning:           "Based on the information provided, I recommend exploring different subjects to discover your interests.",
			RecommendedSubjects: []string{"Mathematics", "English", "Science"},
			CareerOpportunities: []string{"Various opportunities available"},
			NextSteps:           []string{"Take career assessments", "Talk to career counselors", "Explore different subjects"},
		})
	}

	return recs
}

func anySubjectIn(subjects, set []string) bool {
	for _, s := range subjects {
		for _, want := range set {
			if strings.EqualFold(strings.TrimSpace(s), want) {
				return true
			}
		}
	}
	return false
}

func anyInterestMatches(interests, stems []string) bool {
	for _, interest := range interests {
		for _, word := range strings.Fields(strings.ToLower(interest)) {
			for _, stem := range stems {
				if strings.HasPrefix(word, stem) {
					return true
				}
			}
		}
	}
	return false
}
