package pipeline

import (
	"time"

	"github.com/jjglab/campaign-agent/internal/db"
	"github.com/jjglab/campaign-agent/internal/recommend"
)

// Handoff stage names exchanged with the upstream planning agents.
const (
	StageBrief            = "BRIEF"
	StageTargetAudience   = "TARGET_AUDIENCE"
	StageSelectedTemplate = "SELECTED_TEMPLATE"
	StageExecutionResult  = "EXECUTION_RESULT"
)

// AudiencePayload is the decoded TARGET_AUDIENCE handoff payload.
type AudiencePayload struct {
	UserIDs []string `json:"user_ids"`
}

// TemplatePayload is the decoded SELECTED_TEMPLATE handoff payload.
type TemplatePayload struct {
	TemplateID  string         `json:"template_id,omitempty"`
	CandidateID string         `json:"candidate_id,omitempty"`
	Body        string         `json:"body_with_slots"`
	Notes       *TemplateNotes `json:"notes,omitempty"`
}

// TemplateNotes carries optional normalized campaign text.
type TemplateNotes struct {
	CampaignTextNormalized *CampaignText `json:"campaign_text_normalized,omitempty"`
}

// CampaignText is the normalized keyword list for the campaign.
type CampaignText struct {
	Keywords []string `json:"keywords"`
}

// State is the value passed between pipeline stages. Each stage receives a
// State, returns a new one, and never mutates shared data, keeping stages
// isolated and independently testable.
type State struct {
	RunID string

	// Loaded context
	Run      *db.Run
	Brief    map[string]any
	Template TemplatePayload
	Audience AudiencePayload

	// Derived context
	Channel      string
	CampaignGoal string
	CandidateID  string

	// Computed per stage
	Users           []db.User
	Recommendations map[string]recommend.Recommendation
	Entries         []db.SendLogEntry

	// Output
	Summary *Summary
}

// Summary is the run result persisted as the EXECUTION_RESULT handoff.
type Summary struct {
	RunID        string    `json:"run_id"`
	Channel      string    `json:"channel"`
	CampaignGoal string    `json:"campaign_goal"`
	TemplateID   string    `json:"template_id,omitempty"`
	TotalUsersIn int       `json:"total_users_in"`
	LogsWritten  int       `json:"logs_written"`
	Failed       int       `json:"failed"`
	Skipped      int       `json:"skipped"`
	Sample       []string  `json:"sample"`
	CreatedAt    time.Time `json:"created_at"`
}
