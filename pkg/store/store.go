package store

import "bookrec/pkg/domain"

// Store defines persistence for users, catalog references, read-book marks,
// and recommendation history. Implementations must enforce the referential
// rules themselves: history and read-book rows always point at existing
// users/books and cascade away when the user is deleted.
type Store interface {
	// users
	SaveUser(domain.UserProfile) error
	GetUserByUsername(username string) (domain.UserProfile, bool, error)
	DeleteUser(userID string) error

	// catalog references (row per corpus record; embeddings cached here
	// between restarts)
	SaveBookRef(domain.BookRecord) error
	GetBookRefByTitle(title string) (string, bool, error)
	ListBookEmbeddings() (map[string][]float32, error)

	// read-book ledger, keyed by (user_id, book_id)
	GetReadBook(userID, bookID string) (domain.ReadBookEntry, bool, error)
	UpsertReadBook(domain.ReadBookEntry) error
	ListReadBooks(userID string) ([]domain.ReadBookEntry, error)

	// append-only recommendation history
	AppendHistory(domain.HistoryEntry) error
	ListHistoryByUser(userID string, limit int) ([]domain.HistoryEntry, error)
}
