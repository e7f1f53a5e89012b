package profile

import (
	"errors"
	"fmt"
	"strings"
)

// WorkFormat is the expected work arrangement for the position.
type WorkFormat string

const (
	WorkFormatOffice WorkFormat = "office"
	WorkFormatRemote WorkFormat = "remote"
	WorkFormatHybrid WorkFormat = "hybrid"
)

var (
	ErrInvalidWorkFormat  = errors.New("invalid work format")
	ErrNegativeExperience = errors.New("experience years must not be negative")
)

// ParseWorkFormat normalizes free text into one of the known work formats.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseWorkFormat(raw string) (WorkFormat, error) {
	switch WorkFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case WorkFormatOffice:
		return WorkFormatOffice, nil
	case WorkFormatRemote:
		return WorkFormatRemote, nil
	case WorkFormatHybrid:
		return WorkFormatHybrid, nil
	default:
		return "", fmt.Errorf("%w: %q (expected office, remote or hybrid)", ErrInvalidWorkFormat, raw)
	}
}

// Position describes the vacancy itself.
type Position struct {
	Title           *string `json:"title"`
	ExperienceYears *int    `json:"experience_years"`
	CompanyField    *string `json:"company_field"`
}

// Complete reports whether title, experience and company field are all present.
func (p Position) Complete() bool {
	return present(p.Title) && p.ExperienceYears != nil && present(p.CompanyField)
}

// HardSkills holds professional and technical requirements.
type HardSkills struct {
	Languages      []string `json:"programming_languages"`
	Frameworks     []string `json:"frameworks"`
	Tools          []string `json:"tools"`
	Certifications []string `json:"certifications"`
}

// Complete reports whether at least one of the lists has an entry.
func (h HardSkills) Complete() bool {
	return anyFilled(h.Languages, h.Frameworks, h.Tools, h.Certifications)
}

// SoftSkills holds personal and interpersonal requirements.
type SoftSkills struct {
	PersonalQualities []string `json:"personal_qualities"`
	Communication     []string `json:"communication_skills"`
	Team              []string `json:"team_skills"`
	Leadership        []string `json:"leadership_skills"`
}

// Complete reports whether at least one of the lists has an entry.
func (s SoftSkills) Complete() bool {
	return anyFilled(s.PersonalQualities, s.Communication, s.Team, s.Leadership)
}

// WorkConditions describes what the employer offers.
type WorkConditions struct {
	WorkFormat         *WorkFormat `json:"work_format"`
	SalaryExpectations *string     `json:"salary_expectations"`
	Benefits           []string    `json:"benefits"`
	TravelReadiness    *bool       `json:"travel_readiness"`
}

// Complete reports whether format and salary are present.
// Benefits and travel readiness are optional.
func (w WorkConditions) Complete() bool {
	return w.WorkFormat != nil && *w.WorkFormat != "" && present(w.SalaryExpectations)
}

// CandidateProfile is the aggregate built during one interview.
type CandidateProfile struct {
	Position       Position       `json:"position"`
	HardSkills     HardSkills     `json:"hard_skills"`
	SoftSkills     SoftSkills     `json:"soft_skills"`
	WorkConditions WorkConditions `json:"work_conditions"`
}

// New returns an empty profile.
func New() *CandidateProfile {
	return &CandidateProfile{}
}

// Clone returns a deep copy of the profile.
func (p *CandidateProfile) Clone() *CandidateProfile {
	if p == nil {
		return New()
	}

	return &CandidateProfile{
		Position: Position{
			Title:           cloneString(p.Position.Title),
			ExperienceYears: cloneInt(p.Position.ExperienceYears),
			CompanyField:    cloneString(p.Position.CompanyField),
		},
		HardSkills: HardSkills{
			Languages:      cloneList(p.HardSkills.Languages),
			Frameworks:     cloneList(p.HardSkills.Frameworks),
			Tools:          cloneList(p.HardSkills.Tools),
			Certifications: cloneList(p.HardSkills.Certifications),
		},
		SoftSkills: SoftSkills{
			PersonalQualities: cloneList(p.SoftSkills.PersonalQualities),
			Communication:     cloneList(p.SoftSkills.Communication),
			Team:              cloneList(p.SoftSkills.Team),
			Leadership:        cloneList(p.SoftSkills.Leadership),
		},
		WorkConditions: WorkConditions{
			WorkFormat:         cloneFormat(p.WorkConditions.WorkFormat),
			SalaryExpectations: cloneString(p.WorkConditions.SalaryExpectations),
			Benefits:           cloneList(p.WorkConditions.Benefits),
			TravelReadiness:    cloneBool(p.WorkConditions.TravelReadiness),
		},
	}
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func anyFilled(lists ...[]string) bool {
	for _, list := range lists {
		if len(list) > 0 {
			return true
		}
	}
	return false
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func cloneFormat(f *WorkFormat) *WorkFormat {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneList(list []string) []string {
	if list == nil {
		return nil
	}
	return append([]string(nil), list...)
}
