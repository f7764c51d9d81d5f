package app

import "errors"

var (
	// ErrUserNotFound indicates an unknown username on a ledger operation.
	ErrUserNotFound = errors.New("user not found")
	// ErrBookNotInCatalog indicates a mark-as-read title outside the corpus.
	ErrBookNotInCatalog = errors.New("this book is not included in our catalog yet")
)
