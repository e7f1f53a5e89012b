package profile

// Stage is the interview section currently being filled.
type Stage string

const (
	StagePosition       Stage = "position"
	StageHardSkills     Stage = "hard_skills"
	StageSoftSkills     Stage = "soft_skills"
	StageWorkConditions Stage = "work_conditions"
	StageComplete       Stage = "complete"
)

// ResolveStage returns the first incomplete section of the profile, or
// StageComplete when every section passes. A nil profile is treated as empty.
func ResolveStage(p *CandidateProfile) Stage {
	if p == nil {
		return StagePosition
	}

	switch {
	case !p.Position.Complete():
		return StagePosition
	case !p.HardSkills.Complete():
		return StageHardSkills
	case !p.SoftSkills.Complete():
		return StageSoftSkills
	case !p.WorkConditions.Complete():
		return StageWorkConditions
	default:
		return StageComplete
	}
}

// Stage is a shortcut for ResolveStage(p).
func (p *CandidateProfile) Stage() Stage {
	return ResolveStage(p)
}

func (s Stage) String() string {
	return string(s)
}
