package safety

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"

	"bookrec/pkg/domain"
)

// Prompt-injection fragments screened on every incoming query regardless of
// profile. Matching is plain lowercase substring.
var injectionPatterns = []string{
	"ignore previous instructions",
	"ignore all previous",
	"disregard previous",
	"disregard all instructions",
	"system prompt",
	"you are now",
	"pretend you are",
	"act as if",
	"jailbreak",
}

// Built-in base list applied when no banned-terms file is configured. The
// real deployment ships a much larger list per tier.
var defaultTiers = map[domain.Profile][]string{
	domain.ProfileAdult: {"bomb-making", "beheading"},
	domain.ProfileTeen:  {"explicit", "gore"},
	domain.ProfileChild: {"murder", "torture", "violent", "horror"},
}

// Filter enforces audience-appropriate content at the query and candidate
// checkpoints. Matchers are compiled once at load; every check is a pure
// function of the list version and its input.
type Filter struct {
	// effective banned-term set per profile, tier-inherited: child bans
	// everything teen bans, teen bans everything the base tier bans.
	terms map[domain.Profile]map[string]struct{}
	// multi-word banned phrases, matched by substring.
	phrases map[domain.Profile][]string
}

// Default builds a filter from the built-in lists.
func Default() *Filter {
	return New(defaultTiers)
}

// Load reads tiered banned-term lists from a JSON file keyed by profile.
// An empty path falls back to the built-in defaults.
func Load(path string) (*Filter, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read banned terms: %w", err)
	}
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse banned terms: %w", err)
	}
	tiers := make(map[domain.Profile][]string, len(raw))
	for key, words := range raw {
		profile, ok := domain.ParseProfile(key)
		if !ok {
			return nil, fmt.Errorf("banned terms: unknown profile %q", key)
		}
		tiers[profile] = words
	}
	return New(tiers), nil
}

// New compiles tier lists into per-profile matchers. Adult and technical
// share the base tier; teen adds to it; child adds to teen.
func New(tiers map[domain.Profile][]string) *Filter {
	f := &Filter{
		terms:   make(map[domain.Profile]map[string]struct{}),
		phrases: make(map[domain.Profile][]string),
	}
	base := append([]string{}, tiers[domain.ProfileAdult]...)
	base = append(base, tiers[domain.ProfileTechnical]...)
	teen := append(append([]string{}, base...), tiers[domain.ProfileTeen]...)
	child := append(append([]string{}, teen...), tiers[domain.ProfileChild]...)

	f.compile(domain.ProfileAdult, base)
	f.compile(domain.ProfileTechnical, base)
	f.compile(domain.ProfileTeen, teen)
	f.compile(domain.ProfileChild, child)
	return f
}

func (f *Filter) compile(profile domain.Profile, words []string) {
	set := make(map[string]struct{}, len(words))
	var phrases []string
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if strings.ContainsRune(w, ' ') {
			phrases = append(phrases, w)
			continue
		}
		set[w] = struct{}{}
	}
	f.terms[profile] = set
	f.phrases[profile] = phrases
}

// CheckQuery scans the query for banned terms and injection patterns before
// any retrieval work happens. A match fails with ErrSanitizationRejected.
func (f *Filter) CheckQuery(text string, profile domain.Profile) error {
	lower := strings.ToLower(text)
	for _, pattern := range injectionPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%w: query looks like a prompt injection (%q)", domain.ErrSanitizationRejected, pattern)
		}
	}
	if term, found := f.match(lower, profile); found {
		return fmt.Errorf("%w: query contains %q", domain.ErrSanitizationRejected, term)
	}
	return nil
}

// CheckCandidate scans both the stored summary and the generated text
// against the profile's banned-term set. It never errors; callers use the
// verdict to advance to the next-ranked candidate.
func (f *Filter) CheckCandidate(summary, generated string, profile domain.Profile) bool {
	if _, found := f.match(strings.ToLower(summary), profile); found {
		return false
	}
	if _, found := f.match(strings.ToLower(generated), profile); found {
		return false
	}
	return true
}

// match tokenizes on non-letter/digit runes so single banned words only hit
// on word boundaries ("bad" does not flag "badly"), then checks banned
// phrases by substring.
func (f *Filter) match(lower string, profile domain.Profile) (string, bool) {
	set, ok := f.terms[profile]
	if !ok {
		set = f.terms[domain.ProfileAdult]
	}
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, banned := set[w]; banned {
			return w, true
		}
	}
	for _, phrase := range f.phrases[profile] {
		if strings.Contains(lower, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// Sanitize normalizes raw query text: control characters dropped, whitespace
// collapsed, surrounding space trimmed.
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	lastSpace := false
	for _, r := range raw {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimRight(b.String(), " ")
}

// SanitizeForImagePrompt strips base-tier banned terms from text destined
// for the cover-image model and bounds its length.
func (f *Filter) SanitizeForImagePrompt(text string, maxRunes int) string {
	words := strings.Fields(text)
	kept := words[:0]
	base := f.terms[domain.ProfileAdult]
	for _, w := range words {
		probe := strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
		if _, banned := base[probe]; banned {
			continue
		}
		kept = append(kept, w)
	}
	out := strings.Join(kept, " ")
	if maxRunes > 0 {
		runes := []rune(out)
		if len(runes) > maxRunes {
			out = string(runes[:maxRunes])
		}
	}
	return out
}
