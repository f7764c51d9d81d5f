package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"bookrec/internal/config"
	"bookrec/pkg/domain"
)

// MarkRead records that the user has read the titled book, optionally with
// a rating. Duplicate (user, book) pairs update in place under the default
// policy, or fail under the reject policy.
func (a *App) MarkRead(username, title string, rating *int) error {
	if rating != nil && (*rating < 1 || *rating > 5) {
		return fmt.Errorf("%w: rating must be between 1 and 5", domain.ErrValidation)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username required", domain.ErrValidation)
	}
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: book title required", domain.ErrValidation)
	}

	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	bookID, ok, err := a.store.GetBookRefByTitle(title)
	if err != nil {
		return fmt.Errorf("load book: %w", err)
	}
	if !ok {
		return ErrBookNotInCatalog
	}

	if a.readBookPolicy == config.ReadBookPolicyReject {
		if _, exists, err := a.store.GetReadBook(user.ID, bookID); err != nil {
			return fmt.Errorf("check read book: %w", err)
		} else if exists {
			return fmt.Errorf("%w: book already marked as read", domain.ErrValidation)
		}
	}

	entry := domain.ReadBookEntry{
		UserID:   user.ID,
		BookID:   bookID,
		Rating:   rating,
		ReadDate: time.Now().UTC(),
	}
	if err := a.store.UpsertReadBook(entry); err != nil {
		return fmt.Errorf("upsert read book: %w", err)
	}
	return nil
}

// ListReadBooks returns the user's read books, most recently read first.
func (a *App) ListReadBooks(username string) ([]domain.ReadBookEntry, error) {
	user, ok, err := a.store.GetUserByUsername(strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	entries, err := a.store.ListReadBooks(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list read books: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ReadDate.After(entries[j].ReadDate) })
	return entries, nil
}

// ListHistory returns the user's recommendation history, newest first.
func (a *App) ListHistory(username string, limit int) ([]domain.HistoryEntry, error) {
	user, ok, err := a.store.GetUserByUsername(strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	entries, err := a.store.ListHistoryByUser(user.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}
