// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jjglab/campaign-agent/internal/db"
	"github.com/jjglab/campaign-agent/internal/recommend"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRunContext outputs a human-readable summary of the loaded run context.
func (p *Printer) PrintRunContext(runID, channel, goal, templateID string, audienceSize int) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Run:      %s\n", runID))
	sb.WriteString(fmt.Sprintf("Channel:  %s\n", channel))
	sb.WriteString(fmt.Sprintf("Goal:     %s\n", goal))
	if templateID != "" {
		sb.WriteString(fmt.Sprintf("Template: %s\n", templateID))
	}
	sb.WriteString(fmt.Sprintf("Audience: %d users", audienceSize))

	p.printBox("Run Context", sb.String())
}

// PrintRecommendations outputs the per-user product selections, capped at a
// handful of rows.
func (p *Printer) PrintRecommendations(userIDs []string, recs map[string]recommend.Recommendation) {
	var sb strings.Builder

	shown := 0
	for _, uid := range userIDs {
		if shown >= maxItemsToShow {
			sb.WriteString(fmt.Sprintf("... and %d more", len(userIDs)-shown))
			break
		}
		rec, ok := recs[uid]
		if !ok {
			sb.WriteString(fmt.Sprintf("%s: (no recommendation)\n", uid))
		} else {
			sb.WriteString(fmt.Sprintf("%s: %s [%s]\n", uid, rec.Product.Name, rec.Strategy))
		}
		shown++
	}
	if sb.Len() == 0 {
		sb.WriteString("(none)")
	}

	p.printBox("Recommendations", strings.TrimRight(sb.String(), "\n"))
}

// PrintOutcomes outputs the per-user send log statuses.
func (p *Printer) PrintOutcomes(entries []db.SendLogEntry) {
	var sb strings.Builder

	counts := map[db.Status]int{}
	for _, e := range entries {
		counts[e.Status]++
	}
	sb.WriteString(fmt.Sprintf("CREATED: %d\n", counts[db.StatusCreated]))
	sb.WriteString(fmt.Sprintf("PREVIEW: %d\n", counts[db.StatusPreview]))
	sb.WriteString(fmt.Sprintf("FAILED:  %d", counts[db.StatusFailed]))

	p.printBox("Send Log", sb.String())
}
