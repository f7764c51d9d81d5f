package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"bookrec/pkg/domain"
)

type readBookKey struct {
	userID string
	bookID string
}

// MemoryStore keeps everything in-process. Used by tests and databaseless
// development runs; mirrors the cascade semantics of the Postgres store.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.UserProfile // key: user ID
	usernames map[string]string             // username -> user ID
	books     map[string]domain.BookRecord  // key: book ID
	titles    map[string]string             // lower(title) -> book ID
	readBooks map[readBookKey]domain.ReadBookEntry
	history   []domain.HistoryEntry
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.UserProfile),
		usernames: make(map[string]string),
		books:     make(map[string]domain.BookRecord),
		titles:    make(map[string]string),
		readBooks: make(map[readBookKey]domain.ReadBookEntry),
	}
}

// SaveUser registers or replaces a user.
func (m *MemoryStore) SaveUser(u domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok {
		delete(m.usernames, lower(prev.Username))
	}
	m.users[u.ID] = u
	m.usernames[lower(u.Username)] = u.ID
	return nil
}

// GetUserByUsername looks up a user by username.
func (m *MemoryStore) GetUserByUsername(username string) (domain.UserProfile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usernames[lower(username)]
	if !ok {
		return domain.UserProfile{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// DeleteUser removes the user and cascades to history and read books.
func (m *MemoryStore) DeleteUser(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		delete(m.usernames, lower(u.Username))
	}
	delete(m.users, userID)
	for key := range m.readBooks {
		if key.userID == userID {
			delete(m.readBooks, key)
		}
	}
	kept := m.history[:0]
	for _, h := range m.history {
		if h.UserID != userID {
			kept = append(kept, h)
		}
	}
	m.history = kept
	return nil
}

// SaveBookRef stores or replaces a catalog reference.
func (m *MemoryStore) SaveBookRef(b domain.BookRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.books[b.ID]; ok {
		delete(m.titles, lower(prev.Title))
	}
	m.books[b.ID] = b
	m.titles[lower(b.Title)] = b.ID
	return nil
}

// GetBookRefByTitle resolves a title to its book ID.
func (m *MemoryStore) GetBookRefByTitle(title string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.titles[lower(title)]
	return id, ok, nil
}

// ListBookEmbeddings returns cached embeddings keyed by book ID.
func (m *MemoryStore) ListBookEmbeddings() (map[string][]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]float32)
	for id, b := range m.books {
		if len(b.Embedding) > 0 {
			out[id] = b.Embedding
		}
	}
	return out, nil
}

// GetReadBook fetches one ledger row.
func (m *MemoryStore) GetReadBook(userID, bookID string) (domain.ReadBookEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.readBooks[readBookKey{userID, bookID}]
	return entry, ok, nil
}

// UpsertReadBook inserts or updates the (user, book) row.
func (m *MemoryStore) UpsertReadBook(entry domain.ReadBookEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ReadDate.IsZero() {
		entry.ReadDate = time.Now().UTC()
	}
	if entry.Title == "" {
		if b, ok := m.books[entry.BookID]; ok {
			entry.Title = b.Title
		}
	}
	m.readBooks[readBookKey{entry.UserID, entry.BookID}] = entry
	return nil
}

// ListReadBooks returns all ledger rows for the user, unordered.
func (m *MemoryStore) ListReadBooks(userID string) ([]domain.ReadBookEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []domain.ReadBookEntry
	for key, entry := range m.readBooks {
		if key.userID == userID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// AppendHistory records one immutable history entry.
func (m *MemoryStore) AppendHistory(h domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	m.history = append(m.history, h)
	return nil
}

// ListHistoryByUser returns the user's history, newest first.
func (m *MemoryStore) ListHistoryByUser(userID string, limit int) ([]domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []domain.HistoryEntry
	for _, h := range m.history {
		if h.UserID == userID {
			entries = append(entries, h)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
