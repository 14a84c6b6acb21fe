// Package curriculum holds the static CBE (Competency-Based Education)
// knowledge base: the Grade 10-12 career pathways, their tracks, and the
// counselor context block used to steer the model. Based on the KICD
// curriculum framework.
package curriculum

import (
	"encoding/json"
	"strings"
)

// Track is a specialization within a pathway.
type Track struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Subjects       []string `json:"subjects"`
	CareerOutcomes []string `json:"careerOutcomes"`
}

// Pathway is one of the three CBE senior-school career pathways.
type Pathway struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	Tracks              []Track  `json:"tracks"`
	CareerOpportunities []string `json:"careerOpportunities"`
	EntryRequirements   []string `json:"entryRequirements"`
}

// Pathways lists the CBE career pathways students choose at the end of Grade 9.
var Pathways = []Pathway{
	{
		ID:          "stem",
		Name:        "STEM (Science, Technology, Engineering & Mathematics)",
		Description: "Focuses on scientific inquiry, technological innovation, engineering design, and mathematical reasoning",
		Tracks: []Track{
			{
				ID:          "pure-sciences",
				Name:        "Pure Sciences",
				Description: "Theoretical and research-oriented scientific disciplines",
				Subjects:    []string{"Physics", "Chemistry", "Biology", "Mathematics"},
				CareerOutcomes: []string{
					"Medical Doctor", "Research Scientist", "Pharmacist", "Veterinarian",
					"Biotechnologist", "Environmental Scientist", "Physicist", "Chemist",
				},
			},
			{
				ID:          "applied-sciences",
				Name:        "Applied Sciences",
				Description: "Practical application of scientific principles",
				Subjects:    []string{"Computer Science", "Home Science", "Agriculture", "Mathematics"},
				CareerOutcomes: []string{
					"Software Developer", "Data Scientist", "Agricultural Engineer",
					"Food Scientist", "Nutritionist", "IT Specialist", "Systems Analyst",
				},
			},
			{
				ID:          "technical-studies",
				Name:        "Technical Studies",
				Description: "Hands-on technical and engineering skills",
				Subjects: []string{
					"Aviation Technology", "Building Construction", "Electrical Technology",
					"Metal Work", "Power Mechanics", "Woodwork", "Media Technology",
					"Marine and Fisheries Technology",
				},
				CareerOutcomes: []string{
					"Civil Engineer", "Electrical Engineer", "Mechanical Engineer",
					"Architect", "Pilot", "Marine Engineer", "Media Producer", "Technician",
				},
			},
		},
		CareerOpportunities: []string{
			"Engineering", "Medicine", "Technology", "Research", "Aviation",
			"Agriculture", "Construction", "Manufacturing", "Energy",
		},
		EntryRequirements: []string{
			"Strong performance in Mathematics and Sciences",
			"Logical thinking and problem-solving skills",
			"Interest in innovation and technology",
		},
	},
	{
		ID:          "social-sciences",
		Name:        "Social Sciences",
		Description: "Study of human society, behavior, and social relationships",
		Tracks: []Track{
			{
				ID:          "humanities",
				Name:        "Humanities",
				Description: "Study of human culture, history, and society",
				Subjects:    []string{"History & Government", "Geography", "Religious Studies", "Philosophy"},
				CareerOutcomes: []string{
					"Lawyer", "Diplomat", "Historian", "Political Scientist",
					"Social Worker", "Journalist", "Teacher", "Civil Servant",
				},
			},
			{
				ID:          "business-studies",
				Name:        "Business Studies",
				Description: "Commerce, entrepreneurship, and business management",
				Subjects:    []string{"Business Studies", "Economics", "Accounting", "Entrepreneurship"},
				CareerOutcomes: []string{
					"Business Manager", "Entrepreneur", "Accountant", "Economist",
					"Marketing Manager", "Financial Analyst", "Banker", "Consultant",
				},
			},
			{
				ID:          "languages",
				Name:        "Languages & Communication",
				Description: "Language skills and communication competencies",
				Subjects:    []string{"English", "Kiswahili", "French", "German", "Arabic"},
				CareerOutcomes: []string{
					"Translator", "Interpreter", "Journalist", "Editor",
					"Communications Specialist", "Diplomat", "Teacher", "Writer",
				},
			},
		},
		CareerOpportunities: []string{
			"Law", "Government", "Business", "Education", "Media",
			"International Relations", "Social Work", "Banking",
		},
		EntryRequirements: []string{
			"Strong communication skills",
			"Interest in human behavior and society",
			"Critical thinking abilities",
		},
	},
	{
		ID:          "arts-sports",
		Name:        "Arts & Sports Science",
		Description: "Creative arts, physical education, and sports science",
		Tracks: []Track{
			{
				ID:          "creative-arts",
				Name:        "Creative Arts",
				Description: "Visual and performing arts",
				Subjects:    []string{"Art & Design", "Music", "Drama", "Media Studies"},
				CareerOutcomes: []string{
					"Artist", "Musician", "Actor", "Designer", "Filmmaker",
					"Photographer", "Art Director", "Creative Director",
				},
			},
			{
				ID:          "sports-science",
				Name:        "Sports Science",
				Description: "Physical education and sports management",
				Subjects:    []string{"Physical Education", "Sports Science", "Health Education"},
				CareerOutcomes: []string{
					"Sports Coach", "Physical Therapist", "Sports Manager",
					"Fitness Trainer", "Sports Journalist", "Recreation Director",
				},
			},
		},
		CareerOpportunities: []string{
			"Entertainment", "Sports", "Media", "Design", "Fitness",
			"Recreation", "Arts Management", "Creative Industries",
		},
		EntryRequirements: []string{
			"Creative abilities and artistic talent",
			"Physical fitness and coordination",
			"Passion for arts or sports",
		},
	},
}

// CareerContext is the fixed domain-context block prepended to every prompt.
const CareerContext = `You are an expert career counselor specializing in Kenya's Competency-Based Education (CBE) curriculum.

KEY CBE INFORMATION:
- CBE has 3 main career pathways starting from Grade 10: STEM, Social Sciences, and Arts & Sports Science
- Students choose their pathway at the end of Grade 9 (around age 14-15)
- Each pathway has multiple tracks with specific subjects and career outcomes
- The system emphasizes competency development over rote learning

CAREER PATHWAYS:
1. STEM: Pure Sciences, Applied Sciences, Technical Studies
2. Social Sciences: Humanities, Business Studies, Languages
3. Arts & Sports: Creative Arts, Sports Science

Your role is to:
- Understand student interests, strengths, and aspirations
- Provide personalized career guidance based on CBE pathways
- Explain subject combinations and their career implications
- Consider Kenyan job market and opportunities
- Be encouraging and supportive while being realistic
- Ask follow-up questions to better understand the student

Always provide specific, actionable advice relevant to the Kenyan context and CBE system.`

// PathwaysJSON renders the pathway catalog as indented JSON for inclusion in
// the recommendation prompt. The catalog is static, so a marshal failure is a
// programming error.
func PathwaysJSON() string {
	data, err := json.MarshalIndent(Pathways, "", "  ")
	if err != nil {
		panic("curriculum: marshal pathways: " + err.Error())
	}
	return string(data)
}

// FindPathway returns the pathway whose ID or name matches, or nil.
func FindPathway(idOrName string) *Pathway {
	for i := range Pathways {
		if strings.EqualFold(Pathways[i].ID, idOrName) || strings.EqualFold(Pathways[i].Name, idOrName) {
			return &Pathways[i]
		}
	}
	return nil
}
