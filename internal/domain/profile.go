package domain

import "time"

type Experience struct {
	Title       string `json:"title" bson:"title"`
	Company     string `json:"company" bson:"company"`
	StartDate   string `json:"startDate" bson:"startDate"`
	EndDate     string `json:"endDate" bson:"endDate"`
	Description string `json:"description" bson:"description"`
}

type Education struct {
	Institution string `json:"institution" bson:"institution"`
	Degree      string `json:"degree" bson:"degree"`
	StartDate   string `json:"startDate" bson:"startDate"`
	EndDate     string `json:"endDate" bson:"endDate"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
}

type Skill struct {
	Value string `json:"value" bson:"value"`
}

type Preferences struct {
	Location   string   `json:"location" bson:"location"`
	Remote     bool     `json:"remote" bson:"remote"`
	Industries []string `json:"industries" bson:"industries"`
}

// UserProfile is the career profile document of one user.
type UserProfile struct {
	Name        string       `json:"name" bson:"name"`
	Email       string       `json:"email" bson:"email"`
	Phone       string       `json:"phone" bson:"phone"`
	DOB         *time.Time   `json:"dob" bson:"dob,omitempty"`
	Gender      string       `json:"gender" bson:"gender"`
	PhotoURL    string       `json:"photoURL" bson:"photoURL"`
	LinkedIn    string       `json:"linkedin" bson:"linkedin"`
	GitHub      string       `json:"github" bson:"github"`
	Summary     string       `json:"summary" bson:"summary"`
	CareerGoals string       `json:"careerGoals" bson:"careerGoals"`
	Education   []Education  `json:"education" bson:"education"`
	Experience  []Experience `json:"experience" bson:"experience"`
	Skills      []Skill      `json:"skills" bson:"skills"`
	Interests   []string     `json:"interests" bson:"interests"`
	Preferences Preferences  `json:"preferences" bson:"preferences"`
	CreatedAt   time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt" bson:"updatedAt"`
}

// DefaultProfile returns the empty profile shape served before the first save.
func DefaultProfile(now time.Time) UserProfile {
	return UserProfile{
		Education:   []Education{},
		Experience:  []Experience{},
		Skills:      []Skill{},
		Interests:   []string{},
		Preferences: Preferences{Industries: []string{}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
