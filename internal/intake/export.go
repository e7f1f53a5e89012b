package intake

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/hr-intake/internal/events"
	"github.com/spigell/hr-intake/internal/export"
	"github.com/spigell/hr-intake/internal/logger"
	"github.com/spigell/hr-intake/internal/profile"
)

const profileIDLength = 8

// ExportResult is the outcome of export_profile.
type ExportResult struct {
	Success   bool   `json:"success"`
	ProfileID string `json:"profile_id,omitempty"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
}

// exportProfile appends a complete profile to the export table exactly once.
// Incomplete profiles never reach the exporter.
func (s *Service) exportProfile(ctx context.Context, sess *session) ExportResult {
	log := logger.WithSession(s.logger, sess.id)

	stage := sess.conv.Stage()
	if stage != profile.StageComplete {
		err := fmt.Errorf("%w: current stage %s", ErrProfileIncomplete, stage)
		logger.LogOperation(log, "export_profile", err)
		return ExportResult{
			Message: fmt.Sprintf("The profile is not complete yet. Current stage: %s", stage),
			Err:     err,
		}
	}

	if s.exporter == nil {
		err := errors.New("export is not configured")
		logger.LogOperation(log, "export_profile", err)
		return ExportResult{Message: "Profile export is not configured.", Err: err}
	}

	profileID := s.newID()[:profileIDLength]
	exportedAt := s.now()

	if err := s.exporter.AppendRow(ctx, export.Row(profileID, exportedAt, sess.conv.Profile)); err != nil {
		logger.LogOperation(log, "export_profile", err)
		return ExportResult{Message: fmt.Sprintf("Failed to save the profile: %v", err), Err: err}
	}
	logger.LogOperation(log, "export_profile", nil, zap.String("profile_id", profileID))

	if s.publisher != nil {
		err := s.publisher.PublishProfileExported(ctx, events.ProfileExported{
			SessionID:  sess.id,
			ProfileID:  profileID,
			ExportedAt: exportedAt,
			Profile:    sess.conv.Profile.Clone(),
		})
		logger.LogOperation(log, "publish_profile_exported", err, zap.String("profile_id", profileID))
	}

	return ExportResult{
		Success:   true,
		ProfileID: profileID,
		Message:   fmt.Sprintf("Profile saved with ID %s.", profileID),
	}
}
