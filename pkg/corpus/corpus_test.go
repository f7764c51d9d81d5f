package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bookrec/pkg/domain"
)

func harryCatalog(t *testing.T) *Store {
	t.Helper()
	s, err := New([]domain.BookRecord{
		{Title: "Harry Potter and the Chamber of Secrets", Summary: "second year"},
		{Title: "Harry Potter and the Goblet of Fire", Summary: "fourth year"},
		{Title: "Harry Potter and the Half-Blood Prince", Summary: "sixth year"},
		{Title: "Harry Potter and the Philosopher's Stone", Summary: "first year"},
		{Title: "Harry Potter and the Prisoner of Azkaban", Summary: "third year"},
		{Title: "The Hobbit", Summary: "there and back again"},
		{Title: "Dune", Summary: "desert planet"},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s
}

func TestSearchTitlesPagination(t *testing.T) {
	s := harryCatalog(t)

	page1, total, err := s.SearchTitles("Harry", 2, 0)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
	page2, total2, err := s.SearchTitles("Harry", 2, 2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if total2 != total {
		t.Fatalf("total changed across pages: %d vs %d", total2, total)
	}
	page3, _, err := s.SearchTitles("Harry", 2, 4)
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}

	var all []string
	all = append(all, page1...)
	all = append(all, page2...)
	all = append(all, page3...)
	if len(all) != 5 {
		t.Fatalf("pages concatenate to %d titles, want 5", len(all))
	}
	seen := make(map[string]bool)
	prev := ""
	for _, title := range all {
		if seen[title] {
			t.Fatalf("title %q appears on more than one page", title)
		}
		seen[title] = true
		if title <= prev {
			t.Fatalf("titles not strictly ascending: %q after %q", title, prev)
		}
		prev = title
	}
}

func TestSearchTitlesCaseInsensitive(t *testing.T) {
	s := harryCatalog(t)
	titles, total, err := s.SearchTitles("hArRy", 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 5 || len(titles) != 5 {
		t.Fatalf("got %d/%d matches, want 5/5", len(titles), total)
	}
}

func TestSearchTitlesEmptyQueryMatchesAll(t *testing.T) {
	s := harryCatalog(t)
	titles, total, err := s.SearchTitles("", 100, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != s.Len() || len(titles) != s.Len() {
		t.Fatalf("empty query matched %d/%d, want %d", len(titles), total, s.Len())
	}
}

func TestSearchTitlesOffsetBeyondMatches(t *testing.T) {
	s := harryCatalog(t)
	titles, total, err := s.SearchTitles("Harry", 2, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(titles) != 0 || total != 5 {
		t.Fatalf("got %d titles total %d, want 0 titles total 5", len(titles), total)
	}
}

func TestSearchTitlesValidation(t *testing.T) {
	s := harryCatalog(t)
	if _, _, err := s.SearchTitles("Harry", 0, 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("limit 0: got %v, want ErrValidation", err)
	}
	if _, _, err := s.SearchTitles("Harry", 2, -1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("negative offset: got %v, want ErrValidation", err)
	}
}

func TestNewRejectsDuplicateTitles(t *testing.T) {
	_, err := New([]domain.BookRecord{
		{Title: "Dune", Summary: "one"},
		{Title: "dune", Summary: "two"},
	})
	if err == nil {
		t.Fatalf("expected duplicate title error")
	}
}

func TestNewAssignsStableIDs(t *testing.T) {
	records := []domain.BookRecord{{Title: "Dune", Summary: "desert planet"}}
	a, err := New(records)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b, err := New(records)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	idA := a.All()[0].ID
	if idA == "" || idA != b.All()[0].ID {
		t.Fatalf("IDs not stable across rebuilds: %q vs %q", idA, b.All()[0].ID)
	}
}

func TestGetByTitle(t *testing.T) {
	s := harryCatalog(t)
	rec, ok := s.GetByTitle("  the hobbit ")
	if !ok || rec.Title != "The Hobbit" {
		t.Fatalf("GetByTitle = %+v, %v", rec, ok)
	}
	if _, ok := s.GetByTitle("The Silmarillion"); ok {
		t.Fatalf("unknown title should miss")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.json")
	data := `[
		{"title": "Dune", "author": "Frank Herbert", "summary": "desert planet", "profiles": ["teen", "adult"]},
		{"title": "The Hobbit", "summary": "there and back again"}
	]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	dune, ok := s.GetByTitle("Dune")
	if !ok || dune.Author != "Frank Herbert" {
		t.Fatalf("dune = %+v, %v", dune, ok)
	}
	if !dune.AllowsProfile(domain.ProfileTeen) || dune.AllowsProfile(domain.ProfileChild) {
		t.Fatalf("dune profiles = %v", dune.Profiles)
	}
	hobbit, ok := s.GetByTitle("The Hobbit")
	if !ok {
		t.Fatalf("hobbit missing")
	}
	if !hobbit.AllowsProfile(domain.ProfileAdult) || !hobbit.AllowsProfile(domain.ProfileTechnical) {
		t.Fatalf("untagged record should default to the base tiers, got %v", hobbit.Profiles)
	}
}

func TestLoadRejectsUnknownProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.json")
	data := `[{"title": "Dune", "summary": "x", "profiles": ["grownup"]}]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown profile error")
	}
}
