package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spigell/hr-intake/internal/profile"
)

// Context binds one profile to its derived stage and an optional attached document.
// A Context belongs to a single session and is not safe for concurrent use.
type Context struct {
	Profile  *profile.CandidateProfile
	Document string
}

func New() *Context {
	return &Context{Profile: profile.New()}
}

// Stage is always recomputed from the profile.
func (c *Context) Stage() profile.Stage {
	if c == nil {
		return profile.StagePosition
	}
	return profile.ResolveStage(c.Profile)
}

// AttachDocument replaces the document text used as extra prompt context.
func (c *Context) AttachDocument(text string) {
	c.Document = strings.TrimSpace(text)
}

func (c *Context) HasDocument() bool {
	return c != nil && c.Document != ""
}

// Snapshot is the serialized form stored in thread and message metadata.
// CurrentStage is a cache for display and is ignored on restore.
type Snapshot struct {
	Profile      *profile.CandidateProfile `json:"profile"`
	CurrentStage profile.Stage             `json:"current_stage"`
	Document     string                    `json:"document,omitempty"`
}

func (c *Context) Snapshot() Snapshot {
	return Snapshot{
		Profile:      c.Profile.Clone(),
		CurrentStage: c.Stage(),
		Document:     c.Document,
	}
}

// Map converts the snapshot into a JSON-shaped value suitable for metadata bags.
func (s Snapshot) Map() (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return out, nil
}

// SnapshotFromValue decodes a snapshot previously stored with Map.
func SnapshotFromValue(v any) (Snapshot, error) {
	var s Snapshot
	if v == nil {
		return s, fmt.Errorf("snapshot is empty")
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return s, fmt.Errorf("marshal snapshot value: %w", err)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("decode snapshot: %w", err)
	}

	return s, nil
}

// Restore rebuilds a context from a snapshot. The stored stage is not trusted.
func Restore(s Snapshot) *Context {
	ctx := New()
	if s.Profile != nil {
		ctx.Profile = s.Profile.Clone()
	}
	ctx.Document = s.Document
	return ctx
}
