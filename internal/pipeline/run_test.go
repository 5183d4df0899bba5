package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjglab/campaign-agent/internal/db"
	"github.com/jjglab/campaign-agent/internal/recommend"
)

type fakeStore struct {
	run           *db.Run
	handoffs      map[string][]byte
	users         []db.User
	replaced      [][]db.SendLogEntry
	created       map[string][]byte
	statusUpdates []string
	replaceErr    error
	updateErr     error
}

func (f *fakeStore) GetRun(_ context.Context, runID string) (*db.Run, error) {
	if f.run != nil && f.run.RunID == runID {
		return f.run, nil
	}
	return nil, nil
}

func (f *fakeStore) GetLatestHandoff(_ context.Context, runID, stage string) (*db.Handoff, error) {
	payload, ok := f.handoffs[stage]
	if !ok {
		return nil, nil
	}
	return &db.Handoff{RunID: runID, Stage: stage, Payload: payload}, nil
}

func (f *fakeStore) CreateHandoff(_ context.Context, runID, stage string, payload any) (*db.Handoff, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if f.created == nil {
		f.created = map[string][]byte{}
	}
	f.created[stage] = data
	return &db.Handoff{RunID: runID, Stage: stage, Payload: data}, nil
}

func (f *fakeStore) GetUsersByIDs(_ context.Context, userIDs []string) ([]db.User, error) {
	wanted := map[string]bool{}
	for _, id := range userIDs {
		wanted[id] = true
	}
	var out []db.User
	for _, u := range f.users {
		if wanted[u.UserID] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) ReplaceSendLog(_ context.Context, _ string, entries []db.SendLogEntry) (int, error) {
	if f.replaceErr != nil {
		return 0, f.replaceErr
	}
	f.replaced = append(f.replaced, append([]db.SendLogEntry(nil), entries...))
	return len(entries), nil
}

func (f *fakeStore) UpdateRunStatus(_ context.Context, runID, stepID, status string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.statusUpdates = append(f.statusUpdates, fmt.Sprintf("%s/%s/%s", runID, stepID, status))
	return nil
}

type fakeRecommender struct {
	recs map[string]recommend.Recommendation
	err  error
}

func (f *fakeRecommender) Select(_ context.Context, users []db.User, _ recommend.Context) (map[string]recommend.Recommendation, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]recommend.Recommendation{}
	for _, u := range users {
		if rec, ok := f.recs[u.UserID]; ok {
			out[u.UserID] = rec
		}
	}
	return out, nil
}

func audiencePayload(userIDs ...string) []byte {
	if userIDs == nil {
		userIDs = []string{}
	}
	data, _ := json.Marshal(map[string]any{"user_ids": userIDs})
	return data
}

func templatePayload(body string) []byte {
	data, _ := json.Marshal(map[string]any{"template_id": "tmpl-42", "body_with_slots": body})
	return data
}

func newTestStore(body string, userIDs ...string) *fakeStore {
	store := &fakeStore{
		run: &db.Run{RunID: "run-1", Channel: "SMS", CampaignGoal: "cart_recovery"},
		handoffs: map[string][]byte{
			StageSelectedTemplate: templatePayload(body),
			StageTargetAudience:   audiencePayload(userIDs...),
		},
	}
	for _, id := range userIDs {
		store.users = append(store.users, db.User{
			UserID: id, CustomerName: "Jane", SMSOptIn: true,
		})
	}
	return store
}

func newTestPipeline(store Store, rec Recommender, opts Options) *Pipeline {
	p := New(store, rec, opts)
	p.warnOut = io.Discard
	return p
}

func TestExecute_WritesOneEntryPerUser(t *testing.T) {
	store := newTestStore("Hi {customer_name}, check out {product_name}. {cta}", "u1", "u2")
	rec := &fakeRecommender{recs: map[string]recommend.Recommendation{
		"u1": {Product: db.Product{ProductID: "P1", Name: "Toner"}},
		"u2": {Product: db.Product{ProductID: "P2", Name: "Serum"}},
	}}

	summary, err := newTestPipeline(store, rec, Options{}).Execute(context.Background(), "run-1")

	require.NoError(t, err)
	require.Len(t, store.replaced, 1)
	entries := store.replaced[0]
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, "SMS", e.Channel)
		assert.Equal(t, "cart_recovery", e.CampaignGoal)
		assert.Equal(t, "S1", e.StepID)
		assert.Equal(t, db.StatusCreated, e.Status)
		assert.NotEmpty(t, e.RenderedText)
	}
	assert.Contains(t, entries[0].RenderedText, "Toner")
	assert.Contains(t, entries[1].RenderedText, "Serum")

	assert.Equal(t, 2, summary.TotalUsersIn)
	assert.Equal(t, 2, summary.LogsWritten)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
}

func TestExecute_EmptyAudience(t *testing.T) {
	store := newTestStore("Hi {customer_name}")

	summary, err := newTestPipeline(store, &fakeRecommender{}, Options{}).Execute(context.Background(), "run-1")

	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalUsersIn)
	assert.Equal(t, 0, summary.LogsWritten)
	require.Len(t, store.replaced, 1)
	assert.Empty(t, store.replaced[0])
}

func TestExecute_RunNotFound(t *testing.T) {
	store := &fakeStore{}

	_, err := newTestPipeline(store, &fakeRecommender{}, Options{}).Execute(context.Background(), "nope")

	var notFound *RunNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.RunID)
}

func TestExecute_MissingTemplateHandoff(t *testing.T) {
	store := newTestStore("Hi {customer_name}", "u1")
	delete(store.handoffs, StageSelectedTemplate)

	_, err := newTestPipeline(store, &fakeRecommender{}, Options{}).Execute(context.Background(), "run-1")

	var missing *MissingHandoffError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, StageSelectedTemplate, missing.Stage)
}

func TestExecute_MissingAudienceHandoff(t *testing.T) {
	store := newTestStore("Hi {customer_name}", "u1")
	delete(store.handoffs, StageTargetAudience)

	_, err := newTestPipeline(store, &fakeRecommender{}, Options{}).Execute(context.Background(), "run-1")

	var missing *MissingHandoffError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, StageTargetAudience, missing.Stage)
}

func TestExecute_Idempotent(t *testing.T) {
	store := newTestStore("Hi {customer_name}, {product_name}", "u1", "u2")
	rec := &fakeRecommender{recs: map[string]recommend.Recommendation{
		"u1": {Product: db.Product{Name: "Toner"}},
	}}
	p := newTestPipeline(store, rec, Options{})

	_, err := p.Execute(context.Background(), "run-1")
	require.NoError(t, err)
	_, err = p.Execute(context.Background(), "run-1")
	require.NoError(t, err)

	require.Len(t, store.replaced, 2)
	assert.Equal(t, store.replaced[0], store.replaced[1])
}

func TestExecute_OverlongMessageFails(t *testing.T) {
	long := strings.Repeat("a", 150)
	store := newTestStore(long, "u1")

	summary, err := newTestPipeline(store, &fakeRecommender{}, Options{}).Execute(context.Background(), "run-1")

	require.NoError(t, err)
	entries := store.replaced[0]
	require.Len(t, entries, 1)
	assert.Equal(t, db.StatusFailed, entries[0].Status)
	assert.Equal(t, "RULE_FAIL", entries[0].ErrorCode)
	assert.Contains(t, entries[0].ErrorMessage, "exceeds")
	assert.Equal(t, 1, summary.Failed)
}

func TestExecute_OptOutProducesPreview(t *testing.T) {
	store := newTestStore("Hi {customer_name}", "u1")
	store.users[0].SMSOptIn = false

	summary, err := newTestPipeline(store, &fakeRecommender{}, Options{}).Execute(context.Background(), "run-1")

	require.NoError(t, err)
	entries := store.replaced[0]
	require.Len(t, entries, 1)
	assert.Equal(t, db.StatusPreview, entries[0].Status)
	assert.Equal(t, "OPT_OUT_PREVIEW", entries[0].ErrorCode)
	assert.NotEmpty(t, entries[0].RenderedText, "preview keeps the rendered message")
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, summary.Sample)
}

func TestExecute_RecommenderFailureDegrades(t *testing.T) {
	store := newTestStore("Hi {customer_name}, try {product_name} today", "u1", "u2")
	rec := &fakeRecommender{err: errors.New("embedding backend down")}

	summary, err := newTestPipeline(store, rec, Options{}).Execute(context.Background(), "run-1")

	require.NoError(t, err)
	entries := store.replaced[0]
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, db.StatusCreated, e.Status)
		assert.NotContains(t, e.RenderedText, "{product_name}")
	}
	assert.Equal(t, 2, summary.LogsWritten)
}

func TestExecute_RequireAllSlots(t *testing.T) {
	store := newTestStore("Hi {customer_name}, try {product_name}", "u1")
	rec := &fakeRecommender{err: errors.New("backend down")}

	summary, err := newTestPipeline(store, rec, Options{RequireAllSlots: false}).Execute(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, db.StatusCreated, store.replaced[0][0].Status)
	assert.Equal(t, 0, summary.Failed)

	store2 := newTestStore("Hi {customer_name}, try {undefined_slot}", "u1")
	summary, err = newTestPipeline(store2, &fakeRecommender{}, Options{RequireAllSlots: true}).Execute(context.Background(), "run-1")
	require.NoError(t, err)
	entry := store2.replaced[0][0]
	assert.Equal(t, db.StatusFailed, entry.Status)
	assert.Equal(t, "MISSING_SLOT", entry.ErrorCode)
	assert.Contains(t, entry.ErrorMessage, "undefined_slot")
	assert.Equal(t, 1, summary.Failed)
}

func TestExecute_SummaryPersistedAsHandoff(t *testing.T) {
	store := newTestStore("Hi {customer_name}", "u1")

	summary, err := newTestPipeline(store, &fakeRecommender{}, Options{}).Execute(context.Background(), "run-1")

	require.NoError(t, err)
	raw, ok := store.created[StageExecutionResult]
	require.True(t, ok, "summary handoff should be written")

	var persisted Summary
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, summary.RunID, persisted.RunID)
	assert.Equal(t, summary.LogsWritten, persisted.LogsWritten)
}

func TestExecute_SampleCappedAtMaxPreview(t *testing.T) {
	store := newTestStore("Hi {customer_name}", "u1", "u2", "u3", "u4")

	summary, err := newTestPipeline(store, &fakeRecommender{}, Options{MaxPreview: 2}).Execute(context.Background(), "run-1")

	require.NoError(t, err)
	assert.Len(t, summary.Sample, 2)
}

func TestExecute_RunStatusAdvanceBestEffort(t *testing.T) {
	store := newTestStore("Hi {customer_name}", "u1")
	store.updateErr = errors.New("lock timeout")

	summary, err := newTestPipeline(store, &fakeRecommender{}, Options{}).Execute(context.Background(), "run-1")

	require.NoError(t, err, "status advance failure must not fail the run")
	assert.Equal(t, 1, summary.LogsWritten)
}

func TestExecute_SendLogErrorIsFatal(t *testing.T) {
	store := newTestStore("Hi {customer_name}", "u1")
	store.replaceErr = errors.New("connection reset")

	_, err := newTestPipeline(store, &fakeRecommender{}, Options{}).Execute(context.Background(), "run-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "render_and_persist")
	assert.Empty(t, store.created, "no summary handoff on persistence failure")
}

func TestExecute_BriefChannelHintUsedWhenRunChannelEmpty(t *testing.T) {
	store := newTestStore("Hi {customer_name}", "u1")
	store.run.Channel = ""
	store.handoffs[StageBrief] = []byte(`{"channel_hint": "push"}`)
	store.users[0].PushOptIn = true

	_, err := newTestPipeline(store, &fakeRecommender{}, Options{}).Execute(context.Background(), "run-1")

	require.NoError(t, err)
	assert.Equal(t, "PUSH", store.replaced[0][0].Channel)
}

func TestExecute_UnknownStrategyRejected(t *testing.T) {
	store := newTestStore("Hi {customer_name}", "u1")

	_, err := newTestPipeline(store, &fakeRecommender{}, Options{Strategy: "astrology"}).Execute(context.Background(), "run-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}
