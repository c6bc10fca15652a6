package entity

import (
	"errors"
	"time"
)

// ErrNotFound is returned by every user store when a unique lookup matches no row.
var ErrNotFound = errors.New("user not found")

// User is the application-level profile row in the `users` table. It is
// distinct from the auth provider's identity and references it via AuthID.
type User struct {
	ID                   string    `db:"id" json:"id"`
	AuthID               string    `db:"auth_id" json:"auth_id"`
	Email                string    `db:"email" json:"email"`
	Name                 *string   `db:"name" json:"name,omitempty"`
	LastName             *string   `db:"last_name" json:"last_name,omitempty"`
	BirthDate            *string   `db:"birth_date" json:"birth_date,omitempty"` // ISO 8601
	OnboardingCompleted  bool      `db:"onboarding_completed" json:"onboarding_completed"`
	ExpoPushToken        *string   `db:"expo_push_token" json:"expo_push_token,omitempty"`
	NotificationsEnabled bool      `db:"notifications_enabled" json:"notifications_enabled"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy so callers can't mutate shared state through pointers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Name = cloneString(u.Name)
	c.LastName = cloneString(u.LastName)
	c.BirthDate = cloneString(u.BirthDate)
	c.ExpoPushToken = cloneString(u.ExpoPushToken)
	return &c
}

// Patch is a partial update of the mutable profile fields. id, auth_id and
// email have no field here: they are fixed at creation.
//
// A non-nil ExpoPushToken pointing at "" clears the stored token (NULL).
type Patch struct {
	Name                 *string `json:"name,omitempty"`
	LastName             *string `json:"last_name,omitempty"`
	BirthDate            *string `json:"birth_date,omitempty"`
	OnboardingCompleted  *bool   `json:"onboarding_completed,omitempty"`
	ExpoPushToken        *string `json:"expo_push_token,omitempty"`
	NotificationsEnabled *bool   `json:"notifications_enabled,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Fields returns the column -> value map to write. A nil value means NULL.
func (p Patch) Fields() map[string]any {
	out := map[string]any{}
	if p.Name != nil {
		out["name"] = nullable(*p.Name)
	}
	if p.LastName != nil {
		out["last_name"] = nullable(*p.LastName)
	}
	if p.BirthDate != nil {
		out["birth_date"] = nullable(*p.BirthDate)
	}
	if p.OnboardingCompleted != nil {
		out["onboarding_completed"] = *p.OnboardingCompleted
	}
	if p.ExpoPushToken != nil {
		out["expo_push_token"] = nullable(*p.ExpoPushToken)
	}
	if p.NotificationsEnabled != nil {
		out["notifications_enabled"] = *p.NotificationsEnabled
	}
	return out
}

// Apply merges the patch into u in place. onboarding_completed only moves
// from false to true.
func (p Patch) Apply(u *User) {
	if u == nil {
		return
	}
	if p.Name != nil {
		u.Name = stringOrNil(*p.Name)
	}
	if p.LastName != nil {
		u.LastName = stringOrNil(*p.LastName)
	}
	if p.BirthDate != nil {
		u.BirthDate = stringOrNil(*p.BirthDate)
	}
	if p.OnboardingCompleted != nil && *p.OnboardingCompleted {
		u.OnboardingCompleted = true
	}
	if p.ExpoPushToken != nil {
		u.ExpoPushToken = stringOrNil(*p.ExpoPushToken)
	}
	if p.NotificationsEnabled != nil {
		u.NotificationsEnabled = *p.NotificationsEnabled
	}
}

// String returns a pointer to s, or nil for the empty string.
func String(s string) *string {
	return stringOrNil(s)
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func stringOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
