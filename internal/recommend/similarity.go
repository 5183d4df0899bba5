package recommend

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jjglab/campaign-agent/internal/db"
)

// DefaultCampaignText anchors the similarity search when the selected
// template carries no normalized campaign keywords.
const DefaultCampaignText = "recommended products"

// selectBySimilarity picks the single candidate whose descriptive text is
// closest to the campaign text and broadcasts it to every user in the
// cohort. Candidates come from the cohort's winning keyword category.
func (e *Engine) selectBySimilarity(ctx context.Context, users []db.User, campaignText string) (map[string]Recommendation, error) {
	category := winningCategory(users)
	if category == "" {
		return map[string]Recommendation{}, nil
	}

	candidates, err := e.store.GetCategoryProducts(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates for category %q: %w", category, err)
	}
	if len(candidates) == 0 {
		return map[string]Recommendation{}, nil
	}

	campaign := strings.TrimSpace(campaignText)
	if campaign == "" {
		campaign = DefaultCampaignText
	}

	// One batched call per run: scores must come from a single consistent
	// embedding batch so the cohort-wide winner is stable.
	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, campaign)
	for _, c := range candidates {
		texts = append(texts, candidateText(c))
	}

	vectors, err := e.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed campaign and candidates: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}

	// Argmax over cosine similarity; ties keep the first candidate in
	// retrieval order.
	bestIdx := 0
	bestScore := math.Inf(-1)
	for i, vec := range vectors[1:] {
		if score := cosineSimilarity(vectors[0], vec); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	winner := candidates[bestIdx]

	out := make(map[string]Recommendation, len(users))
	for _, u := range users {
		out[u.UserID] = Recommendation{Product: winner, Strategy: StrategySimilarity, Score: bestScore}
	}
	return out, nil
}

// winningCategory tallies the cohort's free-text keyword feature and returns
// the most frequent value, reduced to its first comma-separated segment.
// Ties keep the first-encountered keyword.
func winningCategory(users []db.User) string {
	counts := make(map[string]int)
	var order []string
	for _, u := range users {
		kw := strings.TrimSpace(u.Keyword)
		if kw == "" {
			continue
		}
		if _, seen := counts[kw]; !seen {
			order = append(order, kw)
		}
		counts[kw]++
	}
	if len(order) == 0 {
		return ""
	}

	winner := order[0]
	for _, kw := range order[1:] {
		if counts[kw] > counts[winner] {
			winner = kw
		}
	}
	return strings.TrimSpace(strings.SplitN(winner, ",", 2)[0])
}

// candidateText is the descriptive anchor for a candidate product: the OCR
// keyword text when present, else the detail text, else the product name.
func candidateText(p db.Product) string {
	if t := strings.TrimSpace(p.Keywords); t != "" {
		return t
	}
	if t := strings.TrimSpace(p.DetailText); t != "" {
		return t
	}
	return p.Name
}

// cosineSimilarity returns the cosine of the angle between two vectors.
// Zero-length or mismatched vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
