package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jjglab/campaign-agent/internal/db"
	"github.com/jjglab/campaign-agent/internal/recommend"
)

func TestPrintRunContext_IncludesKeyFields(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRunContext("run-1", "SMS", "cart_recovery", "tmpl-42", 7)

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "SMS")
	assert.Contains(t, out, "cart_recovery")
	assert.Contains(t, out, "tmpl-42")
	assert.Contains(t, out, "7 users")
}

func TestPrintRecommendations_MarksMissingUsers(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	recs := map[string]recommend.Recommendation{
		"u1": {Product: db.Product{Name: "Hydrating Toner"}, Strategy: recommend.StrategyCart},
	}
	p.PrintRecommendations([]string{"u1", "u2"}, recs)

	out := buf.String()
	assert.Contains(t, out, "Hydrating Toner")
	assert.Contains(t, out, "(no recommendation)")
}

func TestPrintOutcomes_CountsByStatus(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintOutcomes([]db.SendLogEntry{
		{Status: db.StatusCreated},
		{Status: db.StatusCreated},
		{Status: db.StatusPreview},
		{Status: db.StatusFailed},
	})

	out := buf.String()
	assert.Contains(t, out, "CREATED: 2")
	assert.Contains(t, out, "PREVIEW: 1")
	assert.Contains(t, out, "FAILED:  1")
}
