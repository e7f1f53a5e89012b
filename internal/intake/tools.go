package intake

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/hr-intake/internal/ai"
	"github.com/spigell/hr-intake/internal/logger"
	"github.com/spigell/hr-intake/internal/profile"
)

const (
	ToolUpdatePosition       = "update_position_info"
	ToolUpdateHardSkills     = "update_hard_skills"
	ToolUpdateSoftSkills     = "update_soft_skills"
	ToolUpdateWorkConditions = "update_work_conditions"
	ToolProfileStatus        = "get_profile_status"
	ToolSaveProfile          = "save_profile_to_sheets"
)

// tools binds the profile operations to one session. Handlers run while the
// session lock is held by HandleTurn.
func (s *Service) tools(sess *session) []ai.Tool {
	return []ai.Tool{
		{
			Name:        ToolUpdatePosition,
			Description: "Updates the position section of the candidate profile. Pass only the fields the recruiter mentioned.",
			Params: []ai.Param{
				{Name: "title", Type: ai.ParamString, Description: "Job title"},
				{Name: "experience_years", Type: ai.ParamInteger, Description: "Required years of experience, zero or more"},
				{Name: "company_field", Type: ai.ParamString, Description: "Industry or field of the company"},
			},
			Handler: func(_ context.Context, args map[string]any) (string, error) {
				var patch profile.PositionPatch
				if err := decodeArgs(args, &patch); err != nil {
					return "", err
				}
				changed, err := sess.conv.Profile.UpdatePosition(patch)
				if err != nil {
					return "", err
				}
				return s.updated(sess, profile.SectionPosition, "Position info", changed), nil
			},
		},
		{
			Name:        ToolUpdateHardSkills,
			Description: "Updates the hard skills section. Every supplied list replaces the stored one.",
			Params: []ai.Param{
				{Name: "programming_languages", Type: ai.ParamStringList},
				{Name: "frameworks", Type: ai.ParamStringList},
				{Name: "tools", Type: ai.ParamStringList},
				{Name: "certifications", Type: ai.ParamStringList},
			},
			Handler: func(_ context.Context, args map[string]any) (string, error) {
				var patch profile.HardSkillsPatch
				if err := decodeArgs(args, &patch); err != nil {
					return "", err
				}
				changed, err := sess.conv.Profile.UpdateHardSkills(patch)
				if err != nil {
					return "", err
				}
				return s.updated(sess, profile.SectionHardSkills, "Hard skills", changed), nil
			},
		},
		{
			Name:        ToolUpdateSoftSkills,
			Description: "Updates the soft skills section. Every supplied list replaces the stored one.",
			Params: []ai.Param{
				{Name: "personal_qualities", Type: ai.ParamStringList},
				{Name: "communication_skills", Type: ai.ParamStringList},
				{Name: "team_skills", Type: ai.ParamStringList},
				{Name: "leadership_skills", Type: ai.ParamStringList},
			},
			Handler: func(_ context.Context, args map[string]any) (string, error) {
				var patch profile.SoftSkillsPatch
				if err := decodeArgs(args, &patch); err != nil {
					return "", err
				}
				changed, err := sess.conv.Profile.UpdateSoftSkills(patch)
				if err != nil {
					return "", err
				}
				return s.updated(sess, profile.SectionSoftSkills, "Soft skills", changed), nil
			},
		},
		{
			Name:        ToolUpdateWorkConditions,
			Description: "Updates the work conditions section.",
			Params: []ai.Param{
				{
					Name:        "work_format",
					Type:        ai.ParamString,
					Description: "Work format",
					Enum:        []string{string(profile.WorkFormatOffice), string(profile.WorkFormatRemote), string(profile.WorkFormatHybrid)},
				},
				{Name: "salary_expectations", Type: ai.ParamString, Description: "Salary range or expectations as free text"},
				{Name: "benefits", Type: ai.ParamStringList},
				{Name: "travel_readiness", Type: ai.ParamBoolean, Description: "Whether the candidate must be ready for business trips"},
			},
			Handler: func(_ context.Context, args map[string]any) (string, error) {
				var patch profile.WorkConditionsPatch
				if err := decodeArgs(args, &patch); err != nil {
					return "", err
				}
				changed, err := sess.conv.Profile.UpdateWorkConditions(patch)
				if err != nil {
					return "", err
				}
				return s.updated(sess, profile.SectionWorkConditions, "Work conditions", changed), nil
			},
		},
		{
			Name:        ToolProfileStatus,
			Description: "Returns the current stage, or the full profile summary once it is complete.",
			Handler: func(context.Context, map[string]any) (string, error) {
				return profile.Describe(sess.conv.Profile), nil
			},
		},
		{
			Name:        ToolSaveProfile,
			Description: "Saves a complete profile to the spreadsheet. Call only after the recruiter confirmed the summary.",
			Handler: func(ctx context.Context, _ map[string]any) (string, error) {
				return s.exportProfile(ctx, sess).Message, nil
			},
		},
	}
}

// updated writes the audit record of a mutation and builds the tool result.
func (s *Service) updated(sess *session, section, label string, changed []string) string {
	stage := sess.conv.Stage()

	logger.WithSession(s.logger, sess.id).Info("profile updated",
		zap.String("section", section),
		zap.Strings("changed_fields", changed),
		zap.String("current_stage", stage.String()),
	)

	return fmt.Sprintf("%s updated. Current stage: %s", label, stage)
}

func decodeArgs(args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  wholeNumbers,
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// wholeNumbers rejects JSON numbers with a fraction where an integer is expected.
func wholeNumbers(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Int {
		return data, nil
	}
	if f, ok := data.(float64); ok && f != math.Trunc(f) {
		return nil, fmt.Errorf("expected a whole number, got %v", f)
	}
	return data, nil
}
