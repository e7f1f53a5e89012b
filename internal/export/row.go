package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/spigell/hr-intake/internal/profile"
)

const (
	ColumnCount     = 6
	TimestampLayout = "2006-01-02 15:04:05"
	partSeparator   = "; "
)

// Header is written once when the worksheet is created.
var Header = []string{"Profile ID", "Created At", "Position", "Hard Skills", "Soft Skills", "Work Conditions"}

// Row renders the profile into the fixed six column layout.
func Row(id string, createdAt time.Time, p *profile.CandidateProfile) []string {
	if p == nil {
		p = profile.New()
	}

	return []string{
		id,
		createdAt.Format(TimestampLayout),
		Position(p.Position),
		HardSkills(p.HardSkills),
		SoftSkills(p.SoftSkills),
		WorkConditions(p.WorkConditions),
	}
}

// Position renders "Title (N years of experience, Field)".
func Position(pos profile.Position) string {
	if pos.Title == nil && pos.ExperienceYears == nil && pos.CompanyField == nil {
		return profile.NotSpecified
	}

	years := 0
	if pos.ExperienceYears != nil {
		years = *pos.ExperienceYears
	}

	return fmt.Sprintf("%s (%d years of experience, %s)", orNotSpecified(pos.Title), years, orNotSpecified(pos.CompanyField))
}

func HardSkills(h profile.HardSkills) string {
	return joinParts(
		listPart("Languages", h.Languages),
		listPart("Frameworks", h.Frameworks),
		listPart("Tools", h.Tools),
		listPart("Certifications", h.Certifications),
	)
}

func SoftSkills(s profile.SoftSkills) string {
	return joinParts(
		listPart("Qualities", s.PersonalQualities),
		listPart("Communication", s.Communication),
		listPart("Team", s.Team),
		listPart("Leadership", s.Leadership),
	)
}

func WorkConditions(w profile.WorkConditions) string {
	var format, salary, travel string
	if w.WorkFormat != nil && *w.WorkFormat != "" {
		format = "Format: " + string(*w.WorkFormat)
	}
	if w.SalaryExpectations != nil && strings.TrimSpace(*w.SalaryExpectations) != "" {
		salary = "Salary: " + *w.SalaryExpectations
	}
	if w.TravelReadiness != nil {
		travel = "Travel: " + profile.YesNo(w.TravelReadiness)
	}

	return joinParts(format, salary, listPart("Benefits", w.Benefits), travel)
}

func listPart(label string, items []string) string {
	if len(items) == 0 {
		return ""
	}
	return label + ": " + strings.Join(items, ", ")
}

func joinParts(parts ...string) string {
	present := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			present = append(present, part)
		}
	}
	if len(present) == 0 {
		return profile.NotSpecified
	}
	return strings.Join(present, partSeparator)
}

func orNotSpecified(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return profile.NotSpecified
	}
	return *s
}
