package models

import "time"

// User represents an application user (mapped from token claims)
type User struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	Sub         string    `bson:"sub" json:"sub"` // OIDC subject
	Email       string    `bson:"email" json:"email"`
	Name        string    `bson:"name" json:"name"`
	DisplayName string    `bson:"displayName,omitempty" json:"displayName,omitempty"`
	Roles       []string  `bson:"roles,omitempty" json:"roles,omitempty"`
	// FeedKey is a fixed-length bearer credential for the private revision
	// feed; valid until regenerated.
	FeedKey   string    `bson:"feedKey,omitempty" json:"-"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// HasRole reports whether the user carries the named role.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Display returns the best available human-readable name.
func (u *User) Display() string {
	if u == nil {
		return "Somebody"
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
