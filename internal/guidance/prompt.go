package guidance

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/elimu-labs/cbe-compass/internal/curriculum"
	"github.com/elimu-labs/cbe-compass/internal/domain"
)

// ComposeSystemPrompt builds the counselor system prompt. Pure function: the
// fixed CBE context block plus a STUDENT CONTEXT section rendering whichever
// profile fields are present, one per line, in a fixed order. Absent fields
// are omitted entirely.
func ComposeSystemPrompt(profile *domain.AssessmentProfile) string {
	var b strings.Builder
	b.WriteString(curriculum.CareerContext)

	if profile != nil && !profile.IsEmpty() {
		b.WriteString("\n\nSTUDENT CONTEXT:\n")
		if profile.GradeLevel > 0 {
			b.WriteString("- Grade Level: ")
			b.WriteString(strconv.Itoa(profile.GradeLevel))
			b.WriteString("\n")
		}
		writeListLine(&b, "Interests", profile.Interests)
		writeListLine(&b, "Strengths", profile.Strengths)
		writeListLine(&b, "Favorite Subjects", profile.FavoriteSubjects)
		writeListLine(&b, "Career Aspirations", profile.CareerAspirations)
	}

	b.WriteString("\n\nProvide personalized, encouraging, and practical career guidance based on this information.")
	return b.String()
}

// ComposeRecommendationPrompt builds the user prompt asking the model for a
// JSON array of pathway recommendations for the given profile.
func ComposeRecommendationPrompt(profile domain.AssessmentProfile) string {
	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		profileJSON = []byte("{}")
	}

	var b strings.Builder
	b.WriteString("Based on the following student assessment data, provide 3 career pathway recommendations in JSON format:\n\n")
	b.WriteString("Student Data:\n")
	b.Write(profileJSON)
	b.WriteString("\n\nAvailable CBE Pathways:\n")
	b.WriteString(curriculum.PathwaysJSON())
	b.WriteString(`

Return a JSON array with this structure:
[
  {
    "pathway": "pathway_name",
    "track": "track_name",
    "matchPercentage": 85,
    "reasoning": "Detailed explanation of why this pathway fits",
    "recommendedSubjects": ["subject1", "subject2"],
    "careerOpportunities": ["career1", "career2"],
    "nextSteps": ["step1", "step2"]
  }
]

Consider the student's interests, strengths, and aspirations. Provide realistic match percentages and practical next steps.`)
	return b.String()
}

// recommendationSystemPrompt is the system message for recommendation calls.
const recommendationSystemPrompt = curriculum.CareerContext +
	"\n\nYou must respond with a valid JSON array of career recommendations."

func writeListLine(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		return
	}
	b.WriteString("- ")
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(strings.Join(values, ", "))
	b.WriteString("\n")
}
