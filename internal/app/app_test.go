package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bookrec/internal/config"
	"bookrec/pkg/corpus"
	"bookrec/pkg/domain"
	"bookrec/pkg/index"
	"bookrec/pkg/safety"
	"bookrec/pkg/store"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}
	return []float32{0, 0, 0}, nil
}

// fakeGenerator echoes the title it finds in the prompt, optionally failing
// grounding for the first N calls by omitting it.
type fakeGenerator struct {
	mu           sync.Mutex
	calls        int
	omitTitleFor int
	output       string
}

func (g *fakeGenerator) GenerateText(_ context.Context, _ string, userPrompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.output != "" {
		return g.output, nil
	}
	if g.calls <= g.omitTitleFor {
		return "a wonderful book you will surely enjoy", nil
	}
	title := ""
	for _, line := range strings.Split(userPrompt, "\n") {
		if strings.HasPrefix(line, "Book title: ") {
			title = strings.TrimPrefix(line, "Book title: ")
			break
		}
	}
	return "You should try " + title + ", it matches what you asked for.", nil
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, text, targetLang string) (string, error) {
	return "[" + targetLang + "] " + text, nil
}

type fakeImager struct{ url string }

func (f *fakeImager) GenerateCover(_ context.Context, _, _ string) (string, error) {
	return f.url, nil
}

func testCatalog(t *testing.T) *corpus.Store {
	t.Helper()
	s, err := corpus.New([]domain.BookRecord{
		{
			ID:        "b-gore",
			Title:     "Space Gore Chronicles",
			Summary:   "a war story full of gore among the stars",
			Embedding: []float32{1, 0, 0},
			Profiles:  []domain.Profile{domain.ProfileChild, domain.ProfileTeen, domain.ProfileAdult},
		},
		{
			ID:        "b-star",
			Title:     "Gentle Star Voyage",
			Summary:   "a kind crew explores friendly planets",
			Embedding: []float32{0.9, 0.1, 0},
			Profiles:  []domain.Profile{domain.ProfileChild, domain.ProfileTeen, domain.ProfileAdult},
		},
		{
			ID:        "b-quantum",
			Title:     "Quantum Mechanics Primer",
			Summary:   "an introduction to wavefunctions",
			Embedding: []float32{0, 1, 0},
			Profiles:  []domain.Profile{domain.ProfileTechnical},
		},
	})
	if err != nil {
		t.Fatalf("new corpus: %v", err)
	}
	return s
}

func queryEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: map[string][]float32{
		"space adventure": {1, 0, 0},
		"basket weaving":  {0, 0, 1},
	}}
}

type testDeps struct {
	store     *store.MemoryStore
	embedder  *fakeEmbedder
	generator *fakeGenerator
}

func newTestApp(t *testing.T, mutate func(*Config, *testDeps)) (*App, *testDeps) {
	t.Helper()
	catalog := testCatalog(t)
	deps := &testDeps{
		store:     store.NewMemoryStore(),
		embedder:  queryEmbedder(),
		generator: &fakeGenerator{},
	}
	ix := index.New(2)
	if _, err := ix.Rebuild(context.Background(), catalog.All(), deps.embedder); err != nil {
		t.Fatalf("build index: %v", err)
	}
	cfg := Config{
		Store:     deps.store,
		Corpus:    catalog,
		Index:     ix,
		Safety:    safety.Default(),
		Embedder:  deps.embedder,
		Generator: deps.generator,
	}
	if mutate != nil {
		mutate(&cfg, deps)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.SyncCatalog(); err != nil {
		t.Fatalf("sync catalog: %v", err)
	}
	return a, deps
}

func saveUser(t *testing.T, s *store.MemoryStore, id, username string) domain.UserProfile {
	t.Helper()
	user := domain.UserProfile{ID: id, Username: username, Profile: domain.ProfileAdult, Language: "english"}
	if err := s.SaveUser(user); err != nil {
		t.Fatalf("save user: %v", err)
	}
	return user
}

func TestRecommendHappyPath(t *testing.T) {
	a, deps := newTestApp(t, nil)
	user := saveUser(t, deps.store, "u1", "alice")

	rec, err := a.Recommend(context.Background(), user, domain.RecommendationQuery{
		RawText: "space adventure",
		Profile: domain.ProfileAdult,
	})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if rec.BookID != "b-gore" || rec.Title != "Space Gore Chronicles" {
		t.Fatalf("selected %s (%s), want the top-ranked eligible book", rec.BookID, rec.Title)
	}
	if !strings.Contains(rec.Summary, rec.Title) {
		t.Fatalf("summary %q does not mention the title", rec.Summary)
	}

	history, err := deps.store.ListHistoryByUser("u1", 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want exactly 1", len(history))
	}
	if history[0].RecommendedTitle != rec.Title || history[0].QueryText != "space adventure" {
		t.Fatalf("history entry = %+v", history[0])
	}
	if history[0].ID == "" {
		t.Fatalf("history entry needs an ID")
	}
}

func TestRecommendChildProfileSkipsUnsafeCandidate(t *testing.T) {
	a, _ := newTestApp(t, nil)
	rec, err := a.Recommend(context.Background(), domain.UserProfile{}, domain.RecommendationQuery{
		RawText: "space adventure",
		Profile: domain.ProfileChild,
	})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if rec.BookID != "b-star" {
		t.Fatalf("selected %s, want the first profile-safe candidate b-star", rec.BookID)
	}
}

func TestRecommendAnonymousWritesNoHistory(t *testing.T) {
	a, deps := newTestApp(t, nil)
	if _, err := a.Recommend(context.Background(), domain.UserProfile{}, domain.RecommendationQuery{
		RawText: "space adventure",
		Profile: domain.ProfileAdult,
	}); err != nil {
		t.Fatalf("recommend: %v", err)
	}
	history, err := deps.store.ListHistoryByUser("", 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("anonymous request wrote %d history rows", len(history))
	}
}

func TestRecommendRejectsBannedQuery(t *testing.T) {
	a, deps := newTestApp(t, nil)
	user := saveUser(t, deps.store, "u1", "alice")
	_, err := a.Recommend(context.Background(), user, domain.RecommendationQuery{
		RawText: "a story with murder in it",
		Profile: domain.ProfileChild,
	})
	if !errors.Is(err, domain.ErrSanitizationRejected) {
		t.Fatalf("got %v, want ErrSanitizationRejected", err)
	}
	if deps.generator.calls != 0 {
		t.Fatalf("generator called %d times for a rejected query", deps.generator.calls)
	}
	history, _ := deps.store.ListHistoryByUser("u1", 10)
	if len(history) != 0 {
		t.Fatalf("rejected query wrote %d history rows", len(history))
	}
}

func TestRecommendValidation(t *testing.T) {
	a, _ := newTestApp(t, nil)
	if _, err := a.Recommend(context.Background(), domain.UserProfile{}, domain.RecommendationQuery{
		RawText: "  \t ",
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty query: got %v, want ErrValidation", err)
	}
	if _, err := a.Recommend(context.Background(), domain.UserProfile{}, domain.RecommendationQuery{
		RawText: "space adventure",
		Profile: domain.Profile("wizard"),
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown profile: got %v, want ErrValidation", err)
	}
}

func TestRecommendNoMatchBelowThreshold(t *testing.T) {
	a, _ := newTestApp(t, nil)
	_, err := a.Recommend(context.Background(), domain.UserProfile{}, domain.RecommendationQuery{
		RawText: "basket weaving",
		Profile: domain.ProfileAdult,
	})
	if !errors.Is(err, domain.ErrNoMatchFound) {
		t.Fatalf("got %v, want ErrNoMatchFound", err)
	}
}

func TestRecommendAdvancesOnGroundingFailure(t *testing.T) {
	a, deps := newTestApp(t, func(_ *Config, deps *testDeps) {
		deps.generator.omitTitleFor = 1
	})
	rec, err := a.Recommend(context.Background(), domain.UserProfile{}, domain.RecommendationQuery{
		RawText: "space adventure",
		Profile: domain.ProfileAdult,
	})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if rec.BookID != "b-star" {
		t.Fatalf("selected %s, want the next-ranked candidate after a grounding failure", rec.BookID)
	}
	if deps.generator.calls != 2 {
		t.Fatalf("generator calls = %d, want 2", deps.generator.calls)
	}
}

func TestRecommendNoSafeMatchWhenAllCandidatesFail(t *testing.T) {
	a, _ := newTestApp(t, func(_ *Config, deps *testDeps) {
		deps.generator.omitTitleFor = 100
	})
	_, err := a.Recommend(context.Background(), domain.UserProfile{}, domain.RecommendationQuery{
		RawText: "space adventure",
		Profile: domain.ProfileAdult,
	})
	if !errors.Is(err, domain.ErrNoSafeMatch) {
		t.Fatalf("got %v, want ErrNoSafeMatch", err)
	}
}

func TestRecommendUpstreamTimeout(t *testing.T) {
	a, deps := newTestApp(t, nil)
	deps.embedder.err = context.DeadlineExceeded
	user := saveUser(t, deps.store, "u1", "alice")
	_, err := a.Recommend(context.Background(), user, domain.RecommendationQuery{
		RawText: "space adventure",
		Profile: domain.ProfileAdult,
	})
	if !errors.Is(err, domain.ErrUpstreamTimeout) {
		t.Fatalf("got %v, want ErrUpstreamTimeout", err)
	}
	history, _ := deps.store.ListHistoryByUser("u1", 10)
	if len(history) != 0 {
		t.Fatalf("failed request wrote %d history rows", len(history))
	}
}

func TestRecommendTranslatesSummary(t *testing.T) {
	a, _ := newTestApp(t, func(cfg *Config, _ *testDeps) {
		cfg.Translator = fakeTranslator{}
	})
	rec, err := a.Recommend(context.Background(), domain.UserProfile{}, domain.RecommendationQuery{
		RawText:  "space adventure",
		Profile:  domain.ProfileAdult,
		Language: "spanish",
	})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if !strings.HasPrefix(rec.Summary, "[spanish] ") {
		t.Fatalf("summary not translated: %q", rec.Summary)
	}
	if rec.Title != "Space Gore Chronicles" {
		t.Fatalf("title must stay canonical under translation, got %q", rec.Title)
	}
}

func TestRecommendAttachesCoverImage(t *testing.T) {
	a, _ := newTestApp(t, func(cfg *Config, _ *testDeps) {
		cfg.Imager = &fakeImager{url: "https://covers.example/dune.png"}
	})
	rec, err := a.Recommend(context.Background(), domain.UserProfile{}, domain.RecommendationQuery{
		RawText: "space adventure",
		Profile: domain.ProfileAdult,
	})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if rec.ImageURL != "https://covers.example/dune.png" {
		t.Fatalf("imageURL = %q", rec.ImageURL)
	}
}

func TestMarkReadRatingRules(t *testing.T) {
	a, deps := newTestApp(t, nil)
	saveUser(t, deps.store, "u1", "alice")

	six := 6
	if err := a.MarkRead("alice", "Gentle Star Voyage", &six); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("rating 6: got %v, want ErrValidation", err)
	}

	four, five := 4, 5
	if err := a.MarkRead("alice", "Gentle Star Voyage", &four); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := a.MarkRead("alice", "Gentle Star Voyage", &five); err != nil {
		t.Fatalf("second mark: %v", err)
	}

	books, err := a.ListReadBooks("alice")
	if err != nil {
		t.Fatalf("list read books: %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("read-book rows = %d, want exactly 1 after upsert", len(books))
	}
	if books[0].Rating == nil || *books[0].Rating != 5 {
		t.Fatalf("rating = %v, want 5", books[0].Rating)
	}
}

func TestMarkReadRejectPolicy(t *testing.T) {
	a, deps := newTestApp(t, func(cfg *Config, _ *testDeps) {
		cfg.ReadBookPolicy = config.ReadBookPolicyReject
	})
	saveUser(t, deps.store, "u1", "alice")
	if err := a.MarkRead("alice", "Gentle Star Voyage", nil); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := a.MarkRead("alice", "Gentle Star Voyage", nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("duplicate under reject policy: got %v, want ErrValidation", err)
	}
}

func TestMarkReadUnknownUserAndBook(t *testing.T) {
	a, deps := newTestApp(t, nil)
	if err := a.MarkRead("nobody", "Gentle Star Voyage", nil); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: got %v, want ErrUserNotFound", err)
	}
	saveUser(t, deps.store, "u1", "alice")
	if err := a.MarkRead("alice", "Some Unlisted Book", nil); !errors.Is(err, ErrBookNotInCatalog) {
		t.Fatalf("unknown book: got %v, want ErrBookNotInCatalog", err)
	}
}

func TestListReadBooksSortedByDate(t *testing.T) {
	a, deps := newTestApp(t, nil)
	saveUser(t, deps.store, "u1", "alice")
	older := domain.ReadBookEntry{UserID: "u1", BookID: "b-star", ReadDate: time.Now().Add(-time.Hour)}
	newer := domain.ReadBookEntry{UserID: "u1", BookID: "b-gore", ReadDate: time.Now()}
	if err := deps.store.UpsertReadBook(older); err != nil {
		t.Fatalf("seed older: %v", err)
	}
	if err := deps.store.UpsertReadBook(newer); err != nil {
		t.Fatalf("seed newer: %v", err)
	}
	books, err := a.ListReadBooks("alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 2 || !books[0].ReadDate.After(books[1].ReadDate) {
		t.Fatalf("expected most recent first, got %+v", books)
	}
}

func TestListHistoryUnknownUser(t *testing.T) {
	a, _ := newTestApp(t, nil)
	if _, err := a.ListHistory("ghost", 10); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("got %v, want ErrUserNotFound", err)
	}
}

func TestSearchTitlesDelegates(t *testing.T) {
	a, _ := newTestApp(t, nil)
	titles, total, err := a.SearchTitles("star", 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || len(titles) != 1 || titles[0] != "Gentle Star Voyage" {
		t.Fatalf("titles = %v total = %d", titles, total)
	}
}
