package profile

import (
	"fmt"
	"strconv"
	"strings"
)

// NotSpecified is rendered for absent values.
const NotSpecified = "not specified"

// Describe renders a full summary for a complete profile and a short
// progress note otherwise.
func Describe(p *CandidateProfile) string {
	stage := ResolveStage(p)
	if stage != StageComplete {
		return fmt.Sprintf("Current stage: %s. The profile is not complete yet.", stage)
	}

	var b strings.Builder
	b.WriteString("CANDIDATE PROFILE COMPLETE:\n\n")

	b.WriteString("POSITION:\n")
	fmt.Fprintf(&b, "- Title: %s\n", text(p.Position.Title))
	fmt.Fprintf(&b, "- Experience: %s years\n", years(p.Position.ExperienceYears))
	fmt.Fprintf(&b, "- Company field: %s\n\n", text(p.Position.CompanyField))

	b.WriteString("HARD SKILLS:\n")
	fmt.Fprintf(&b, "- Programming languages: %s\n", List(p.HardSkills.Languages))
	fmt.Fprintf(&b, "- Frameworks: %s\n", List(p.HardSkills.Frameworks))
	fmt.Fprintf(&b, "- Tools: %s\n", List(p.HardSkills.Tools))
	fmt.Fprintf(&b, "- Certifications: %s\n\n", List(p.HardSkills.Certifications))

	b.WriteString("SOFT SKILLS:\n")
	fmt.Fprintf(&b, "- Personal qualities: %s\n", List(p.SoftSkills.PersonalQualities))
	fmt.Fprintf(&b, "- Communication: %s\n", List(p.SoftSkills.Communication))
	fmt.Fprintf(&b, "- Teamwork: %s\n", List(p.SoftSkills.Team))
	fmt.Fprintf(&b, "- Leadership: %s\n\n", List(p.SoftSkills.Leadership))

	b.WriteString("WORK CONDITIONS:\n")
	fmt.Fprintf(&b, "- Format: %s\n", format(p.WorkConditions.WorkFormat))
	fmt.Fprintf(&b, "- Salary: %s\n", text(p.WorkConditions.SalaryExpectations))
	fmt.Fprintf(&b, "- Benefits: %s\n", List(p.WorkConditions.Benefits))
	fmt.Fprintf(&b, "- Ready to travel: %s\n", YesNo(p.WorkConditions.TravelReadiness))

	return b.String()
}

// List joins list items with ", " or returns NotSpecified for an empty list.
func List(items []string) string {
	if len(items) == 0 {
		return NotSpecified
	}
	return strings.Join(items, ", ")
}

// YesNo renders an optional boolean.
func YesNo(b *bool) string {
	switch {
	case b == nil:
		return NotSpecified
	case *b:
		return "yes"
	default:
		return "no"
	}
}

func text(s *string) string {
	if !present(s) {
		return NotSpecified
	}
	return *s
}

func years(i *int) string {
	if i == nil {
		return NotSpecified
	}
	return strconv.Itoa(*i)
}

func format(f *WorkFormat) string {
	if f == nil || *f == "" {
		return NotSpecified
	}
	return string(*f)
}
