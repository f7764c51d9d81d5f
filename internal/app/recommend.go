package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookrec/internal/util"
	"bookrec/pkg/domain"
	"bookrec/pkg/safety"
)

const groundedSystemPrompt = "You are a careful book recommendation assistant. " +
	"You may only state facts contained in the stored summary you are given. " +
	"Always mention the book title exactly as written. Do not invent plot points, characters, or details."

// Recommend turns a free-text query into one profile-safe, corpus-grounded
// book recommendation. user may be the zero value for anonymous callers, in
// which case no history is written.
func (a *App) Recommend(ctx context.Context, user domain.UserProfile, q domain.RecommendationQuery) (domain.Recommendation, error) {
	logger := util.LoggerFromContext(ctx)

	text := safety.Sanitize(q.RawText)
	if text == "" {
		return domain.Recommendation{}, fmt.Errorf("%w: query required", domain.ErrValidation)
	}
	profile := q.Profile
	if profile == "" {
		// same fallback the clarification flow uses when the caller
		// declines to answer
		profile = domain.ProfileAdult
	}
	if !profile.Valid() {
		return domain.Recommendation{}, fmt.Errorf("%w: unknown profile %q", domain.ErrValidation, string(q.Profile))
	}

	// Pre-check before any embedding or generation spend.
	if err := a.safety.CheckQuery(text, profile); err != nil {
		return domain.Recommendation{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()

	queryVec, err := a.embedder.EmbedText(ctx, text)
	if err != nil {
		return domain.Recommendation{}, upstreamErr("embed query", err)
	}

	snap, err := a.index.Current()
	if err != nil {
		return domain.Recommendation{}, err
	}
	matches := snap.Nearest(queryVec, a.topK)

	// Threshold first: entries below the similarity floor never compete.
	thresholded := matches[:0]
	for _, m := range matches {
		if m.Score >= a.minScore {
			thresholded = append(thresholded, m)
		}
	}
	if len(thresholded) == 0 {
		return domain.Recommendation{}, domain.ErrNoMatchFound
	}

	var selected domain.BookRecord
	var summaryText string
	found := false
	for _, m := range thresholded {
		record, ok := a.corpus.Get(m.BookID)
		if !ok {
			continue
		}
		if !record.AllowsProfile(profile) {
			continue
		}
		// The stored summary itself must clear the profile filter before
		// a generation call is spent on it.
		if !a.safety.CheckCandidate(record.Summary, "", profile) {
			continue
		}
		generated, err := a.generateGrounded(ctx, record, text, profile)
		if err != nil {
			if errors.Is(err, domain.ErrGroundingFailure) {
				logger.Warn("candidate rejected", "title", record.Title, "reason", err.Error())
				continue
			}
			return domain.Recommendation{}, err
		}
		selected = record
		summaryText = generated
		found = true
		break
	}
	if !found {
		return domain.Recommendation{}, domain.ErrNoSafeMatch
	}

	rec := domain.Recommendation{
		BookID:  selected.ID,
		Title:   selected.Title,
		Summary: summaryText,
	}

	// Cover image is best-effort: a failure downgrades the response, it
	// does not fail it.
	if a.imager != nil {
		prompt := a.coverPrompt(summaryText, profile)
		if url, err := a.imager.GenerateCover(ctx, selected.Title, prompt); err != nil {
			logger.Warn("cover image generation failed", "title", selected.Title, "err", err)
		} else {
			rec.ImageURL = url
		}
	}

	if a.translator != nil && q.Language != "" {
		translated, err := a.translator.Translate(ctx, summaryText, q.Language)
		if err != nil {
			return domain.Recommendation{}, upstreamErr("translate summary", err)
		}
		rec.Summary = translated
	}

	// A cancelled request must not half-commit; the ledger write happens
	// only while the caller is still waiting.
	if err := ctx.Err(); err != nil {
		return domain.Recommendation{}, upstreamErr("finalize", err)
	}
	if user.ID != "" {
		entry := domain.HistoryEntry{
			ID:               uuid.NewString(),
			UserID:           user.ID,
			BookID:           selected.ID,
			QueryText:        q.RawText,
			RecommendedTitle: selected.Title,
			Summary:          rec.Summary,
			ImageURL:         rec.ImageURL,
			CreatedAt:        time.Now().UTC(),
		}
		if err := a.store.AppendHistory(entry); err != nil {
			return domain.Recommendation{}, fmt.Errorf("append history: %w", err)
		}
	}
	return rec, nil
}

// generateGrounded asks the model to paraphrase exactly the selected
// record's summary, then validates that the output stays anchored to it.
func (a *App) generateGrounded(ctx context.Context, record domain.BookRecord, query string, profile domain.Profile) (string, error) {
	author := record.Author
	if author == "" {
		author = "unknown"
	}
	userPrompt := fmt.Sprintf(
		"Book title: %s\nAuthor: %s\nStored summary:\n%s\n\nReader request: %s\n\nWrite a short recommendation for this reader that paraphrases and condenses the stored summary. Mention the title exactly.",
		record.Title, author, record.Summary, query,
	)
	out, err := a.generator.GenerateText(ctx, groundedSystemPrompt, userPrompt)
	if err != nil {
		return "", upstreamErr("generate recommendation", err)
	}
	if !strings.Contains(strings.ToLower(out), strings.ToLower(record.Title)) {
		return "", fmt.Errorf("%w: output omits title %q", domain.ErrGroundingFailure, record.Title)
	}
	if !a.safety.CheckCandidate(record.Summary, out, profile) {
		return "", fmt.Errorf("%w: output failed content filter", domain.ErrGroundingFailure)
	}
	return out, nil
}

// coverPrompt builds the image prompt: banned terms stripped, audience
// style appended the way the product always has.
func (a *App) coverPrompt(summary string, profile domain.Profile) string {
	prompt := a.safety.SanitizeForImagePrompt(summary, 800)
	switch profile {
	case domain.ProfileChild:
		prompt += " (colorful, cartoonish, friendly, for children, illustration style)"
	case domain.ProfileTeen:
		prompt += " (dynamic, modern, appealing to teenagers, graphic novel style)"
	case domain.ProfileTechnical:
		prompt += " (clean, schematic, technical illustration, informative)"
	}
	return prompt
}

func upstreamErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, domain.ErrUpstreamTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
