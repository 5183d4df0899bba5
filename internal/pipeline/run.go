// Package pipeline orchestrates one campaign message generation run: load
// the run context and handoffs, load the targeted users, pick one product
// per user, render and validate messages, and persist the send log.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jjglab/campaign-agent/internal/db"
	"github.com/jjglab/campaign-agent/internal/observability"
	"github.com/jjglab/campaign-agent/internal/recommend"
	"github.com/jjglab/campaign-agent/internal/rendering"
	"github.com/jjglab/campaign-agent/internal/validation"
	"github.com/jjglab/campaign-agent/schemas"
)

const (
	// stepID tags every send log row written by this pipeline.
	stepID = "S1"

	// maxErrorMessageLen bounds the error_message column.
	maxErrorMessageLen = 255

	// renderConcurrency caps the parallel per-user rendering workers.
	renderConcurrency = 8
)

// RunNotFoundError indicates the requested run does not exist.
type RunNotFoundError struct {
	RunID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("run %q not found", e.RunID)
}

// MissingHandoffError indicates a required upstream handoff has not been
// produced for the run yet.
type MissingHandoffError struct {
	RunID string
	Stage string
}

func (e *MissingHandoffError) Error() string {
	return fmt.Sprintf("run %q has no %s handoff", e.RunID, e.Stage)
}

// Store is the persistence access the pipeline needs.
type Store interface {
	GetRun(ctx context.Context, runID string) (*db.Run, error)
	GetLatestHandoff(ctx context.Context, runID, stage string) (*db.Handoff, error)
	CreateHandoff(ctx context.Context, runID, stage string, payload any) (*db.Handoff, error)
	GetUsersByIDs(ctx context.Context, userIDs []string) ([]db.User, error)
	ReplaceSendLog(ctx context.Context, runID string, entries []db.SendLogEntry) (int, error)
	UpdateRunStatus(ctx context.Context, runID, stepID, status string) error
}

// Recommender selects one product per user.
type Recommender interface {
	Select(ctx context.Context, users []db.User, rc recommend.Context) (map[string]recommend.Recommendation, error)
}

// Options configure one pipeline execution.
type Options struct {
	// Strategy names the recommendation strategy. Empty selects fallback.
	Strategy string
	// TopK sizes the fallback candidate slice. Zero uses the default.
	TopK int
	// MaxPreview caps the rendered message sample carried in the summary.
	MaxPreview int
	// DefaultChannel is used when neither the run nor the brief names one.
	DefaultChannel string
	// RequireAllSlots fails a user's message when any slot stays unfilled
	// instead of rendering with the slot removed.
	RequireAllSlots bool
	// Verbose enables formatted progress output on stdout.
	Verbose bool
}

// Pipeline executes campaign runs end to end.
type Pipeline struct {
	store   Store
	rec     Recommender
	opts    Options
	printer *observability.Printer
	warnOut io.Writer
}

// New creates a pipeline over the given store and recommender.
func New(store Store, rec Recommender, opts Options) *Pipeline {
	p := &Pipeline{
		store:   store,
		rec:     rec,
		opts:    opts,
		warnOut: os.Stderr,
	}
	if opts.MaxPreview <= 0 {
		p.opts.MaxPreview = 5
	}
	if opts.DefaultChannel == "" {
		p.opts.DefaultChannel = "SMS"
	}
	if opts.Verbose {
		p.printer = observability.NewPrinter(os.Stdout)
	}
	return p
}

type stage struct {
	name string
	fn   func(ctx context.Context, st State) (State, error)
}

// Execute runs all pipeline stages for a run and returns the summary that
// was persisted as the EXECUTION_RESULT handoff. Re-running the same run
// replaces its send log wholesale rather than appending.
func (p *Pipeline) Execute(ctx context.Context, runID string) (*Summary, error) {
	st := State{RunID: runID}

	stages := []stage{
		{"load_context", p.loadContext},
		{"load_users", p.loadUsers},
		{"recommend", p.recommend},
		{"render_and_persist", p.renderAndPersist},
	}
	for _, s := range stages {
		var err error
		st, err = s.fn(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.name, err)
		}
	}
	return st.Summary, nil
}

// loadContext fetches the run, the brief, and the template and audience
// handoffs, then derives the channel and campaign goal.
func (p *Pipeline) loadContext(ctx context.Context, st State) (State, error) {
	run, err := p.store.GetRun(ctx, st.RunID)
	if err != nil {
		return st, err
	}
	if run == nil {
		return st, &RunNotFoundError{RunID: st.RunID}
	}
	st.Run = run

	// The BRIEF handoff supersedes the brief stored on the run row.
	briefRaw := run.Brief
	if h, err := p.store.GetLatestHandoff(ctx, st.RunID, StageBrief); err != nil {
		return st, err
	} else if h != nil {
		briefRaw = h.Payload
	}
	st.Brief = map[string]any{}
	if len(briefRaw) > 0 {
		if err := json.Unmarshal(briefRaw, &st.Brief); err != nil {
			p.warnf("ignoring malformed brief for run %s: %v", st.RunID, err)
			st.Brief = map[string]any{}
		}
	}

	tmplHandoff, err := p.store.GetLatestHandoff(ctx, st.RunID, StageSelectedTemplate)
	if err != nil {
		return st, err
	}
	if tmplHandoff == nil {
		return st, &MissingHandoffError{RunID: st.RunID, Stage: StageSelectedTemplate}
	}
	if err := schemas.ValidateSelectedTemplate(tmplHandoff.Payload); err != nil {
		return st, err
	}
	if err := json.Unmarshal(tmplHandoff.Payload, &st.Template); err != nil {
		return st, fmt.Errorf("failed to decode %s payload: %w", StageSelectedTemplate, err)
	}

	audHandoff, err := p.store.GetLatestHandoff(ctx, st.RunID, StageTargetAudience)
	if err != nil {
		return st, err
	}
	if audHandoff == nil {
		return st, &MissingHandoffError{RunID: st.RunID, Stage: StageTargetAudience}
	}
	if err := schemas.ValidateTargetAudience(audHandoff.Payload); err != nil {
		return st, err
	}
	if err := json.Unmarshal(audHandoff.Payload, &st.Audience); err != nil {
		return st, fmt.Errorf("failed to decode %s payload: %w", StageTargetAudience, err)
	}

	st.Channel = strings.ToUpper(firstNonEmpty(
		run.Channel,
		briefString(st.Brief, "channel_hint"),
		p.opts.DefaultChannel,
	))
	st.CampaignGoal = firstNonEmpty(
		run.CampaignGoal,
		briefString(st.Brief, "campaign_goal"),
		"unknown_goal",
	)
	st.CandidateID = st.Template.CandidateID
	if st.CandidateID == "" {
		st.CandidateID = truncateRunes(st.Template.TemplateID, 16)
	}

	if p.printer != nil {
		p.printer.PrintRunContext(st.RunID, st.Channel, st.CampaignGoal,
			st.Template.TemplateID, len(st.Audience.UserIDs))
	}
	return st, nil
}

// loadUsers resolves the audience user ids against the user store. Users
// absent from the store are dropped silently; an empty audience is not an
// error.
func (p *Pipeline) loadUsers(ctx context.Context, st State) (State, error) {
	if len(st.Audience.UserIDs) == 0 {
		st.Users = nil
		return st, nil
	}
	users, err := p.store.GetUsersByIDs(ctx, st.Audience.UserIDs)
	if err != nil {
		return st, err
	}
	st.Users = users
	if len(users) < len(st.Audience.UserIDs) {
		p.warnf("run %s: %d of %d audience users not found",
			st.RunID, len(st.Audience.UserIDs)-len(users), len(st.Audience.UserIDs))
	}
	return st, nil
}

// recommend picks one product per loaded user. A recommendation failure
// degrades to empty product slots rather than aborting the run.
func (p *Pipeline) recommend(ctx context.Context, st State) (State, error) {
	strategy, err := recommend.ParseStrategy(p.opts.Strategy)
	if err != nil {
		return st, err
	}

	recs, err := p.rec.Select(ctx, st.Users, recommend.Context{
		Strategy:     strategy,
		CampaignText: campaignText(st),
		TopK:         p.opts.TopK,
	})
	if err != nil {
		p.warnf("run %s: recommendation failed, continuing without products: %v", st.RunID, err)
		recs = map[string]recommend.Recommendation{}
	}
	st.Recommendations = recs

	if p.printer != nil {
		p.printer.PrintRecommendations(userIDs(st.Users), recs)
	}
	return st, nil
}

// renderAndPersist renders one message per user, validates it against the
// channel rules, replaces the run's send log, and records the summary as
// the EXECUTION_RESULT handoff.
func (p *Pipeline) renderAndPersist(ctx context.Context, st State) (State, error) {
	entries := make([]db.SendLogEntry, len(st.Users))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(renderConcurrency)
	for i, user := range st.Users {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries[i] = p.buildEntry(st, user)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return st, err
	}
	st.Entries = entries

	written, err := p.store.ReplaceSendLog(ctx, st.RunID, entries)
	if err != nil {
		return st, err
	}

	summary := &Summary{
		RunID:        st.RunID,
		Channel:      st.Channel,
		CampaignGoal: st.CampaignGoal,
		TemplateID:   st.Template.TemplateID,
		TotalUsersIn: len(st.Audience.UserIDs),
		LogsWritten:  written,
		CreatedAt:    time.Now().UTC(),
		Sample:       []string{},
	}
	for _, e := range entries {
		switch e.Status {
		case db.StatusFailed:
			summary.Failed++
		case db.StatusPreview:
			summary.Skipped++
		case db.StatusCreated:
			if len(summary.Sample) < p.opts.MaxPreview {
				summary.Sample = append(summary.Sample, e.RenderedText)
			}
		}
	}
	st.Summary = summary

	payload, err := json.Marshal(summary)
	if err != nil {
		return st, fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := schemas.ValidateExecutionResult(payload); err != nil {
		return st, err
	}
	if _, err := p.store.CreateHandoff(ctx, st.RunID, StageExecutionResult, json.RawMessage(payload)); err != nil {
		return st, err
	}

	// Advancing the run pointer is best effort. The send log and summary
	// are already durable at this point.
	if err := p.store.UpdateRunStatus(ctx, st.RunID, "S6_EXEC", "EXECUTED"); err != nil {
		p.warnf("run %s: failed to advance run status: %v", st.RunID, err)
	}

	if p.printer != nil {
		p.printer.PrintOutcomes(entries)
	}
	return st, nil
}

// buildEntry renders and validates one user's message and classifies the
// outcome.
func (p *Pipeline) buildEntry(st State, user db.User) db.SendLogEntry {
	entry := db.SendLogEntry{
		RunID:        st.RunID,
		UserID:       user.UserID,
		CampaignGoal: st.CampaignGoal,
		Channel:      st.Channel,
		StepID:       stepID,
		CandidateID:  st.CandidateID,
	}

	values := p.slotValues(st, user)
	if p.opts.RequireAllSlots {
		if missing := rendering.MissingSlots(st.Template.Body, values); len(missing) > 0 {
			entry.Status = db.StatusFailed
			entry.ErrorCode = "MISSING_SLOT"
			entry.ErrorMessage = truncateRunes(
				fmt.Sprintf("unfilled slots: %s", strings.Join(missing, ", ")),
				maxErrorMessageLen)
			return entry
		}
	}

	entry.RenderedText = rendering.FillSlots(st.Template.Body, values, true)

	result := validation.Validate(entry.RenderedText, st.Channel)
	if result.Status == validation.StatusFail {
		entry.Status = db.StatusFailed
		entry.ErrorCode = "RULE_FAIL"
		entry.ErrorMessage = truncateRunes(strings.Join(result.Reasons, "; "), maxErrorMessageLen)
		return entry
	}

	if !user.OptedIn(st.Channel) {
		entry.Status = db.StatusPreview
		entry.ErrorCode = "OPT_OUT_PREVIEW"
		entry.ErrorMessage = "preview generated although opt-in is false"
		return entry
	}

	entry.Status = db.StatusCreated
	return entry
}

// slotValues assembles the substitution values for one user's message.
func (p *Pipeline) slotValues(st State, user db.User) map[string]string {
	name := user.CustomerName
	if name == "" {
		name = "Customer"
	}

	values := map[string]string{
		"customer_name": name,
		"offer":         offerText(st.CampaignGoal),
		"cta":           ctaText(st.Channel),
		"unsubscribe":   unsubscribeText(st.Channel),
	}
	if rec, ok := st.Recommendations[user.UserID]; ok {
		values["product_name"] = rec.Product.Name
		values["deep_link"] = rec.Product.DeepLink
		values["product_detail"] = rec.Product.DetailText
	} else {
		values["product_name"] = ""
		values["deep_link"] = ""
		values["product_detail"] = ""
	}
	return values
}

func offerText(goal string) string {
	switch {
	case strings.Contains(goal, "browse"):
		return "Take another look at the products you were eyeing."
	case strings.Contains(goal, "cart"):
		return "The items in your cart are still waiting for you."
	}
	return "Check it out today."
}

func ctaText(channel string) string {
	switch channel {
	case "SMS":
		return "View again"
	case "KAKAO":
		return "See details"
	case "PUSH":
		return "Open now"
	}
	return "Go now"
}

func unsubscribeText(channel string) string {
	switch channel {
	case "SMS":
		return "Reply STOP to opt out"
	case "EMAIL":
		return "Unsubscribe"
	}
	return ""
}

// campaignText derives the similarity anchor text from the template notes,
// falling back to the brief.
func campaignText(st State) string {
	if n := st.Template.Notes; n != nil && n.CampaignTextNormalized != nil {
		if kws := n.CampaignTextNormalized.Keywords; len(kws) > 0 {
			return strings.Join(kws, " ")
		}
	}
	return briefString(st.Brief, "campaign_text")
}

func (p *Pipeline) warnf(format string, args ...any) {
	fmt.Fprintf(p.warnOut, "warning: "+format+"\n", args...)
}

func briefString(brief map[string]any, key string) string {
	if s, ok := brief[key].(string); ok {
		return s
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func userIDs(users []db.User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}
	return ids
}
