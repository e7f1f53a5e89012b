package profile

import (
	"fmt"
	"strings"
)

// Section names used in audit records and tool results.
const (
	SectionPosition       = "position"
	SectionHardSkills     = "hard_skills"
	SectionSoftSkills     = "soft_skills"
	SectionWorkConditions = "work_conditions"
)

// PositionPatch is a partial update of Position. A nil field is left untouched.
type PositionPatch struct {
	Title           *string `mapstructure:"title"`
	ExperienceYears *int    `mapstructure:"experience_years"`
	CompanyField    *string `mapstructure:"company_field"`
}

// HardSkillsPatch is a partial update of HardSkills. A supplied list replaces
// the stored one wholesale; a supplied empty list clears it.
type HardSkillsPatch struct {
	Languages      *[]string `mapstructure:"programming_languages"`
	Frameworks     *[]string `mapstructure:"frameworks"`
	Tools          *[]string `mapstructure:"tools"`
	Certifications *[]string `mapstructure:"certifications"`
}

// SoftSkillsPatch is a partial update of SoftSkills.
type SoftSkillsPatch struct {
	PersonalQualities *[]string `mapstructure:"personal_qualities"`
	Communication     *[]string `mapstructure:"communication_skills"`
	Team              *[]string `mapstructure:"team_skills"`
	Leadership        *[]string `mapstructure:"leadership_skills"`
}

// WorkConditionsPatch is a partial update of WorkConditions. WorkFormat is free
// text and gets normalized by ParseWorkFormat.
type WorkConditionsPatch struct {
	WorkFormat         *string   `mapstructure:"work_format"`
	SalaryExpectations *string   `mapstructure:"salary_expectations"`
	Benefits           *[]string `mapstructure:"benefits"`
	TravelReadiness    *bool     `mapstructure:"travel_readiness"`
}

// UpdatePosition applies the patch and returns the names of supplied fields.
// The profile is not modified when the patch is invalid.
func (p *CandidateProfile) UpdatePosition(patch PositionPatch) ([]string, error) {
	if patch.ExperienceYears != nil && *patch.ExperienceYears < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeExperience, *patch.ExperienceYears)
	}

	var changed []string
	if patch.Title != nil {
		p.Position.Title = normalizeText(*patch.Title)
		changed = append(changed, "title")
	}
	if patch.ExperienceYears != nil {
		years := *patch.ExperienceYears
		p.Position.ExperienceYears = &years
		changed = append(changed, "experience_years")
	}
	if patch.CompanyField != nil {
		p.Position.CompanyField = normalizeText(*patch.CompanyField)
		changed = append(changed, "company_field")
	}

	return changed, nil
}

// UpdateHardSkills applies the patch and returns the names of supplied fields.
func (p *CandidateProfile) UpdateHardSkills(patch HardSkillsPatch) ([]string, error) {
	var changed []string
	replaceList(&p.HardSkills.Languages, patch.Languages, "programming_languages", &changed)
	replaceList(&p.HardSkills.Frameworks, patch.Frameworks, "frameworks", &changed)
	replaceList(&p.HardSkills.Tools, patch.Tools, "tools", &changed)
	replaceList(&p.HardSkills.Certifications, patch.Certifications, "certifications", &changed)
	return changed, nil
}

// UpdateSoftSkills applies the patch and returns the names of supplied fields.
func (p *CandidateProfile) UpdateSoftSkills(patch SoftSkillsPatch) ([]string, error) {
	var changed []string
	replaceList(&p.SoftSkills.PersonalQualities, patch.PersonalQualities, "personal_qualities", &changed)
	replaceList(&p.SoftSkills.Communication, patch.Communication, "communication_skills", &changed)
	replaceList(&p.SoftSkills.Team, patch.Team, "team_skills", &changed)
	replaceList(&p.SoftSkills.Leadership, patch.Leadership, "leadership_skills", &changed)
	return changed, nil
}

// UpdateWorkConditions applies the patch and returns the names of supplied fields.
// A blank work format clears it; an unknown one rejects the whole patch with
// ErrInvalidWorkFormat.
func (p *CandidateProfile) UpdateWorkConditions(patch WorkConditionsPatch) ([]string, error) {
	var format *WorkFormat
	if patch.WorkFormat != nil && strings.TrimSpace(*patch.WorkFormat) != "" {
		parsed, err := ParseWorkFormat(*patch.WorkFormat)
		if err != nil {
			return nil, err
		}
		format = &parsed
	}

	var changed []string
	if patch.WorkFormat != nil {
		p.WorkConditions.WorkFormat = format
		changed = append(changed, "work_format")
	}
	if patch.SalaryExpectations != nil {
		p.WorkConditions.SalaryExpectations = normalizeText(*patch.SalaryExpectations)
		changed = append(changed, "salary_expectations")
	}
	replaceList(&p.WorkConditions.Benefits, patch.Benefits, "benefits", &changed)
	if patch.TravelReadiness != nil {
		travel := *patch.TravelReadiness
		p.WorkConditions.TravelReadiness = &travel
		changed = append(changed, "travel_readiness")
	}

	return changed, nil
}

// normalizeText trims the value; a blank value clears the field.
func normalizeText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func replaceList(dst *[]string, src *[]string, name string, changed *[]string) {
	if src == nil {
		return
	}

	list := make([]string, 0, len(*src))
	for _, item := range *src {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	if len(list) == 0 {
		list = nil
	}

	*dst = list
	*changed = append(*changed, name)
}
