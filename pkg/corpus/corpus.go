package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"bookrec/pkg/domain"
)

// Store is the immutable catalog of book records. All lookups are read-only
// after construction, so it is safe for unbounded concurrent readers.
type Store struct {
	books   []domain.BookRecord
	byID    map[string]int
	byTitle map[string]int
}

type fileRecord struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Summary  string   `json:"summary"`
	Profiles []string `json:"profiles"`
}

// Load reads a JSON catalog from disk. The file is an array of records with
// title, optional author, summary, and eligible profile tags.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	var raw []fileRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	records := make([]domain.BookRecord, 0, len(raw))
	for _, r := range raw {
		rec := domain.BookRecord{
			ID:      strings.TrimSpace(r.ID),
			Title:   strings.TrimSpace(r.Title),
			Author:  strings.TrimSpace(r.Author),
			Summary: strings.TrimSpace(r.Summary),
		}
		for _, p := range r.Profiles {
			profile, ok := domain.ParseProfile(p)
			if !ok {
				return nil, fmt.Errorf("corpus entry %q: unknown profile %q", rec.Title, p)
			}
			rec.Profiles = append(rec.Profiles, profile)
		}
		if len(rec.Profiles) == 0 {
			rec.Profiles = []domain.Profile{domain.ProfileAdult, domain.ProfileTechnical}
		}
		records = append(records, rec)
	}
	return New(records)
}

// New builds a store from in-memory records, assigning deterministic IDs
// where absent and enforcing title uniqueness.
func New(records []domain.BookRecord) (*Store, error) {
	books := make([]domain.BookRecord, len(records))
	copy(books, records)
	sort.Slice(books, func(i, j int) bool { return books[i].Title < books[j].Title })

	s := &Store{
		books:   books,
		byID:    make(map[string]int, len(books)),
		byTitle: make(map[string]int, len(books)),
	}
	for i := range s.books {
		b := &s.books[i]
		if b.Title == "" {
			return nil, fmt.Errorf("corpus entry %d: title required", i)
		}
		if b.Summary == "" {
			return nil, fmt.Errorf("corpus entry %q: summary required", b.Title)
		}
		if b.ID == "" {
			b.ID = stableID(b.Title)
		}
		titleKey := strings.ToLower(b.Title)
		if _, dup := s.byTitle[titleKey]; dup {
			return nil, fmt.Errorf("corpus: duplicate title %q", b.Title)
		}
		if _, dup := s.byID[b.ID]; dup {
			return nil, fmt.Errorf("corpus: duplicate id %q", b.ID)
		}
		s.byTitle[titleKey] = i
		s.byID[b.ID] = i
	}
	return s, nil
}

// stableID derives the surrogate key from the title so that rebuilding the
// catalog from an unchanged file reproduces identical IDs.
func stableID(title string) string {
	sum := sha256.Sum256([]byte(title))
	return hex.EncodeToString(sum[:12])
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (domain.BookRecord, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.BookRecord{}, false
	}
	return s.books[i], true
}

// GetByTitle looks a record up by title, case-insensitively.
func (s *Store) GetByTitle(title string) (domain.BookRecord, bool) {
	i, ok := s.byTitle[strings.ToLower(strings.TrimSpace(title))]
	if !ok {
		return domain.BookRecord{}, false
	}
	return s.books[i], true
}

// All returns a copy of every record, ordered by ascending title.
func (s *Store) All() []domain.BookRecord {
	out := make([]domain.BookRecord, len(s.books))
	copy(out, s.books)
	return out
}

// Len returns the number of records in the catalog.
func (s *Store) Len() int {
	return len(s.books)
}

// SearchTitles returns titles containing q (case-insensitive substring),
// ordered ascending, windowed by [offset, offset+limit), together with the
// total match count regardless of window.
func (s *Store) SearchTitles(q string, limit, offset int) ([]string, int, error) {
	if limit <= 0 {
		return nil, 0, fmt.Errorf("%w: limit must be positive", domain.ErrValidation)
	}
	if offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset must not be negative", domain.ErrValidation)
	}
	needle := strings.ToLower(strings.TrimSpace(q))
	matches := make([]string, 0, limit)
	total := 0
	for i := range s.books {
		title := s.books[i].Title
		if needle != "" && !strings.Contains(strings.ToLower(title), needle) {
			continue
		}
		if total >= offset && total < offset+limit {
			matches = append(matches, title)
		}
		total++
	}
	return matches, total, nil
}
