package usertoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"bookrec/pkg/domain"
)

const (
	defaultIssuer   = "bookrec-auth"
	defaultAudience = "bookrec-api"
	defaultLeeway   = 30 * time.Second
)

// Claims are the profile attributes the auth collaborator embeds in access
// tokens. Subject carries the user ID.
type Claims struct {
	Username string `json:"username"`
	Profile  string `json:"profile"`
	Language string `json:"language"`
	jwt.RegisteredClaims
}

// Config configures access-token verification.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Verifier validates HS256 access tokens issued by the auth collaborator
// and maps them to a read-only UserProfile.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// NewVerifier creates a token verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("token verifier requires a secret")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	return &Verifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   leeway,
	}, nil
}

// Verify validates the token and returns the embedded user profile.
func (v *Verifier) Verify(token string) (domain.UserProfile, error) {
	claims := Claims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return domain.UserProfile{}, errors.New("invalid token")
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return domain.UserProfile{}, errors.New("token subject missing")
	}
	profile, ok := domain.ParseProfile(claims.Profile)
	if !ok {
		profile = domain.ProfileAdult
	}
	language := strings.ToLower(strings.TrimSpace(claims.Language))
	if language == "" {
		language = "english"
	}
	return domain.UserProfile{
		ID:       subject,
		Username: strings.TrimSpace(claims.Username),
		Profile:  profile,
		Language: language,
	}, nil
}
