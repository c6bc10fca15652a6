package auth

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the minimal auth-provider account view.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is an access/refresh token pair plus the identity it belongs to.
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresAt    int64    `json:"expires_at,omitempty"` // unix seconds
	User         Identity `json:"user"`
}

// Expiry returns when the access token stops being valid. ExpiresAt wins;
// otherwise the JWT exp claim is read without verifying the signature.
func (s *Session) Expiry() (time.Time, bool) {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0), true
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether the access token is expired (or within margin of it).
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	exp, ok := s.Expiry()
	if !ok {
		return false
	}
	return !now.Add(margin).Before(exp)
}

// Registration is the outcome of a sign-up. Session is nil while the
// provider waits for the user to confirm their email address.
type Registration struct {
	Identity Identity
	Session  *Session
}

// ConfirmationPending reports the "no session yet" outcome of a sign-up.
func (r *Registration) ConfirmationPending() bool {
	return r.Session == nil
}

// KV is the subset of the credential store the auth client needs.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
}

// SessionKey is where the provider session lives in the local store.
const SessionKey = "@auth:session"

// SessionStore retains the provider session between launches.
type SessionStore interface {
	Load() (*Session, error)
	Save(s *Session) error
	Clear() error
}

type kvSessions struct {
	kv KV
}

// NewKVSessionStore persists the session as JSON under SessionKey.
func NewKVSessionStore(kv KV) SessionStore {
	return &kvSessions{kv: kv}
}

func (k *kvSessions) Load() (*Session, error) {
	raw, ok, err := k.kv.Get(SessionKey)
	if err != nil || !ok {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (k *kvSessions) Save(s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return k.kv.Set(SessionKey, string(b))
}

func (k *kvSessions) Clear() error {
	return k.kv.Delete(SessionKey)
}
