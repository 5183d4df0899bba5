package db

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run represents a campaign run. Runs are created by the upstream planning
// agents; this pipeline only reads them and advances their status.
type Run struct {
	RunID        string     `json:"run_id"`
	Channel      string     `json:"channel,omitempty"`
	CampaignGoal string     `json:"campaign_goal,omitempty"`
	StepID       string     `json:"step_id,omitempty"`
	Status       string     `json:"status,omitempty"`
	Brief        []byte     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// Handoff is a staged JSON payload exchanged between pipeline agents.
// Only the most recent handoff per (run, stage) is authoritative.
type Handoff struct {
	ID        uuid.UUID `json:"id"`
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a targeted customer joined with their feature row.
type User struct {
	UserID           string `json:"user_id"`
	CustomerName     string `json:"customer_name"`
	PreferredChannel string `json:"preferred_channel,omitempty"`
	SMSOptIn         bool   `json:"sms_opt_in"`
	KakaoOptIn       bool   `json:"kakao_opt_in"`
	PushOptIn        bool   `json:"push_opt_in"`
	EmailOptIn       bool   `json:"email_opt_in"`
	TopCategory30d   string `json:"top_category_30d,omitempty"`
	Keyword          string `json:"keyword,omitempty"`
}

// OptedIn reports whether the user consented to receive messages on the
// given channel. Unknown channels are treated as opted in.
func (u User) OptedIn(channel string) bool {
	switch strings.ToUpper(channel) {
	case "SMS":
		return u.SMSOptIn
	case "KAKAO":
		return u.KakaoOptIn
	case "PUSH":
		return u.PushOptIn
	case "EMAIL":
		return u.EmailOptIn
	}
	return true
}

// Product is a catalog item. DetailText and Keywords are OCR-derived
// descriptive text used as the similarity anchor for embedding matches.
type Product struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	DeepLink   string `json:"deep_link,omitempty"`
	Category   string `json:"category,omitempty"`
	DetailText string `json:"detail_text,omitempty"`
	Keywords   string `json:"keywords,omitempty"`
}

// CartItem is one product sitting in an abandoned cart.
type CartItem struct {
	UserID        string
	Product       Product
	CartCreatedAt time.Time
}

// OrderItem is one product from a delivered order.
type OrderItem struct {
	UserID  string
	Product Product
}

// Status classifies a send log entry.
type Status string

// Send log entry statuses.
const (
	StatusCreated Status = "CREATED"
	StatusPreview Status = "PREVIEW"
	StatusFailed  Status = "FAILED"
)

// SendLogEntry is one per-user outcome row for a run. The full set of rows
// for a run is replaced wholesale on every pipeline execution.
type SendLogEntry struct {
	ID           uuid.UUID `json:"id"`
	RunID        string    `json:"run_id"`
	UserID       string    `json:"user_id"`
	CampaignGoal string    `json:"campaign_goal"`
	Channel      string    `json:"channel"`
	StepID       string    `json:"step_id,omitempty"`
	CandidateID  string    `json:"candidate_id,omitempty"`
	Status       Status    `json:"status"`
	RenderedText string    `json:"rendered_text,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
