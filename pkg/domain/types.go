package domain

import (
	"strings"
	"time"
)

// Profile is the audience category that controls content eligibility.
type Profile string

const (
	ProfileChild     Profile = "child"
	ProfileTeen      Profile = "teen"
	ProfileAdult     Profile = "adult"
	ProfileTechnical Profile = "technical"
)

// ParseProfile normalizes raw input into a known profile.
func ParseProfile(raw string) (Profile, bool) {
	p := Profile(strings.ToLower(strings.TrimSpace(raw)))
	if p.Valid() {
		return p, true
	}
	return "", false
}

// Valid reports whether the profile is one of the known categories.
func (p Profile) Valid() bool {
	switch p {
	case ProfileChild, ProfileTeen, ProfileAdult, ProfileTechnical:
		return true
	}
	return false
}

// Strictness orders profiles by how restrictive their content rules are.
// Child is the strictest tier; adult and technical share the base tier.
func (p Profile) Strictness() int {
	switch p {
	case ProfileChild:
		return 3
	case ProfileTeen:
		return 2
	default:
		return 1
	}
}

// BookRecord is one entry in the recommendation corpus.
type BookRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author,omitempty"`
	Summary   string    `json:"summary"`
	Embedding []float32 `json:"-"`
	Profiles  []Profile `json:"profiles"`
}

// AllowsProfile reports whether the record is eligible for the given audience.
func (b BookRecord) AllowsProfile(p Profile) bool {
	for _, tag := range b.Profiles {
		if tag == p {
			return true
		}
	}
	return false
}

// UserProfile is the read-only identity supplied by the auth collaborator.
type UserProfile struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Profile  Profile `json:"profile"`
	Language string  `json:"language"`
}

// RecommendationQuery is the ephemeral input to one recommendation request.
type RecommendationQuery struct {
	RawText  string
	Profile  Profile
	Language string
}

// Recommendation is the final grounded answer returned to the caller.
type Recommendation struct {
	BookID   string `json:"bookId"`
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// HistoryEntry is one append-only record of a completed recommendation.
type HistoryEntry struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	BookID           string    `json:"bookId,omitempty"`
	QueryText        string    `json:"queryText"`
	RecommendedTitle string    `json:"recommendedTitle"`
	Summary          string    `json:"summary"`
	ImageURL         string    `json:"imageUrl,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ReadBookEntry marks a book as read by a user, optionally rated 1..5.
type ReadBookEntry struct {
	UserID   string    `json:"-"`
	BookID   string    `json:"-"`
	Title    string    `json:"title"`
	Rating   *int      `json:"rating,omitempty"`
	ReadDate time.Time `json:"readDate"`
}
