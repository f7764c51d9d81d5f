package store

import (
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"

	"bookrec/pkg/domain"
)

// GORM models used for persistence. Table names follow the relational
// layout shared with the auth collaborator.

type UserModel struct {
	ID        string    `gorm:"primaryKey"`
	Username  string    `gorm:"uniqueIndex;not null"`
	Profile   string    `gorm:"not null"`
	Language  string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

func (UserModel) TableName() string { return "users" }

type BookModel struct {
	ID          string           `gorm:"primaryKey"`
	Title       string           `gorm:"uniqueIndex;not null"`
	Author      string
	ProfileTags datatypes.JSON   `gorm:"type:jsonb"`
	Embedding   *pgvector.Vector `gorm:"type:vector(1536)"`
	CreatedAt   time.Time        `gorm:"not null"`
	UpdatedAt   time.Time
}

func (BookModel) TableName() string { return "books" }

type ReadBookModel struct {
	UserID   string    `gorm:"primaryKey"`
	BookID   string    `gorm:"primaryKey"`
	Rating   *int
	ReadDate time.Time `gorm:"not null"`
}

func (ReadBookModel) TableName() string { return "user_read_books" }

type HistoryModel struct {
	ID               string    `gorm:"primaryKey"`
	UserID           string    `gorm:"not null;index"`
	BookID           *string   `gorm:"index"`
	QueryText        string    `gorm:"type:text;not null"`
	RecommendedTitle string    `gorm:"not null"`
	Summary          string    `gorm:"type:text"`
	ImageURL         string
	CreatedAt        time.Time `gorm:"not null;index"`
}

func (HistoryModel) TableName() string { return "user_history" }

func userToModel(u domain.UserProfile) UserModel {
	return UserModel{
		ID:       u.ID,
		Username: u.Username,
		Profile:  string(u.Profile),
		Language: u.Language,
	}
}

func userFromModel(m UserModel) domain.UserProfile {
	return domain.UserProfile{
		ID:       m.ID,
		Username: m.Username,
		Profile:  domain.Profile(m.Profile),
		Language: m.Language,
	}
}

func bookToModel(b domain.BookRecord) (BookModel, error) {
	tags, err := json.Marshal(b.Profiles)
	if err != nil {
		return BookModel{}, err
	}
	model := BookModel{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		ProfileTags: datatypes.JSON(tags),
	}
	if len(b.Embedding) > 0 {
		vec := pgvector.NewVector(b.Embedding)
		model.Embedding = &vec
	}
	return model, nil
}

func historyToModel(h domain.HistoryEntry) HistoryModel {
	model := HistoryModel{
		ID:               h.ID,
		UserID:           h.UserID,
		QueryText:        h.QueryText,
		RecommendedTitle: h.RecommendedTitle,
		Summary:          h.Summary,
		ImageURL:         h.ImageURL,
		CreatedAt:        h.CreatedAt,
	}
	if h.BookID != "" {
		bookID := h.BookID
		model.BookID = &bookID
	}
	return model
}

func historyFromModel(m HistoryModel) domain.HistoryEntry {
	entry := domain.HistoryEntry{
		ID:               m.ID,
		UserID:           m.UserID,
		QueryText:        m.QueryText,
		RecommendedTitle: m.RecommendedTitle,
		Summary:          m.Summary,
		ImageURL:         m.ImageURL,
		CreatedAt:        m.CreatedAt,
	}
	if m.BookID != nil {
		entry.BookID = *m.BookID
	}
	return entry
}
