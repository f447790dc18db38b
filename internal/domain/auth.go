package domain

import "time"

// Token is a decoded or freshly built API token. It is never mutated once issued.
type Token struct {
	SubjectID string
	Email     string
	Issuer    string
	Audience  string
	TokenID   string
	IssuedAt  time.Time
	NotBefore time.Time
	ExpiresAt time.Time

	// Populated by decoding.
	Raw          string
	SigningInput string
	Algorithm    string
	Signature    []byte
}

// ActiveAt reports whether now lies inside [NotBefore, ExpiresAt).
func (t *Token) ActiveAt(now time.Time) bool {
	if t == nil {
		return false
	}
	if !t.NotBefore.IsZero() && now.Before(t.NotBefore) {
		return false
	}
	return now.Before(t.ExpiresAt)
}

// StoredToken is the persisted record of the single live token of a user.
type StoredToken struct {
	ID             int64
	UserID         string
	Token          string
	ExpirationDate time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Expired reports whether the record's expiration date has passed.
func (s *StoredToken) Expired(now time.Time) bool {
	return !now.Before(s.ExpirationDate)
}
