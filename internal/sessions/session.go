package sessions

import "time"

// Session is one refresh credential. The refresh token itself is the lookup
// key; it never appears inside an access token.
type Session struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	RefreshToken string    `bson:"refreshToken" json:"refreshToken"`
	Sub          string    `bson:"sub" json:"sub"`
	ExpiresAt    time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

func (s *Session) Expired() bool {
	return time.Now().UTC().After(s.ExpiresAt)
}
