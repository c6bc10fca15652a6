// Package platformtest runs an in-process stand-in for the hosted platform:
// the auth REST API (signup, token grants, logout) and the users table of the
// REST data API. Tests point the real clients at Server.URL.
package platformtest

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-app-core/pkg/utilities"
)

// AnonKey is the api key the fake accepts.
const AnonKey = "anon-key"

type account struct {
	id        string
	email     string
	hash      []byte
	confirmed bool
}

type Server struct {
	*httptest.Server

	// Secret signs access tokens (HS256).
	Secret []byte
	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL time.Duration

	mu           sync.Mutex
	confirmEmail bool
	failLogout   bool
	failData     bool
	accounts     map[string]*account // by email
	refresh      map[string]string   // refresh token -> account id
	rows         map[string]*entity.User
	calls        map[string]int
}

// New starts the fake. Callers must Close it.
func New() *Server {
	s := &Server{
		Secret:   []byte("platformtest-secret"),
		TokenTTL: time.Hour,
		accounts: map[string]*account{},
		refresh:  map[string]string{},
		rows:     map[string]*entity.User{},
		calls:    map[string]int{},
	}
	r := chi.NewRouter()
	r.Use(s.count)
	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/signup", s.signup)
		r.Post("/token", s.token)
		r.Post("/logout", s.logout)
	})
	r.Route("/rest/v1/users", func(r chi.Router) {
		r.Use(s.requireKey)
		r.Get("/", s.selectUser)
		r.Post("/", s.insertUser)
		r.Patch("/", s.updateUser)
		r.Delete("/", s.deleteUser)
	})
	s.Server = httptest.NewServer(r)
	return s
}

// RequireConfirmation makes sign-ups return no session until ConfirmEmail.
func (s *Server) RequireConfirmation(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmEmail = on
}

// FailLogout makes the logout endpoint answer 500.
func (s *Server) FailLogout(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLogout = on
}

// FailData makes every data API call answer 500.
func (s *Server) FailData(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failData = on
}

// ConfirmEmail marks the account as confirmed.
func (s *Server) ConfirmEmail(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[strings.ToLower(email)]; ok {
		a.confirmed = true
	}
}

// AddAccount creates a confirmed auth identity and returns its id.
func (s *Server) AddAccount(email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, _ := s.createAccount(email, password, true)
	return a.id
}

// AccountID returns the auth id for email, or "".
func (s *Server) AccountID(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[strings.ToLower(email)]; ok {
		return a.id
	}
	return ""
}

// AddRow stores a profile row directly, assigning an id when empty.
func (s *Server) AddRow(u entity.User) *entity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = utilities.NewUUID()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	s.rows[u.ID] = u.Clone()
	return u.Clone()
}

// Row returns the stored profile for an auth id, or nil.
func (s *Server) Row(authID string) *entity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.rows {
		if u.AuthID == authID {
			return u.Clone()
		}
	}
	return nil
}

// Rows returns how many profile rows exist.
func (s *Server) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Calls returns how many requests hit "METHOD /path".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// IssueToken signs an access token for an arbitrary subject; exp is absolute.
func (s *Server) IssueToken(sub string, exp time.Time) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": "authenticated",
		"iat":  time.Now().Unix(),
		"exp":  exp.Unix(),
	})
	signed, _ := tok.SignedString(s.Secret)
	return signed
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+strings.TrimRight(r.URL.Path, "/")]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) createAccount(email, password string, confirmed bool) (*account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	a := &account{id: utilities.NewUUID(), email: strings.ToLower(email), hash: hash, confirmed: confirmed}
	s.accounts[a.email] = a
	return a, nil
}

// issue builds a GoTrue-style session answer and records the refresh token.
func (s *Server) issue(a *account) map[string]any {
	now := time.Now()
	exp := now.Add(s.TokenTTL)
	rt := make([]byte, 24)
	_, _ = rand.Read(rt)
	refresh := base64.RawURLEncoding.EncodeToString(rt)
	s.refresh[refresh] = a.id
	return map[string]any{
		"access_token":  s.IssueToken(a.id, exp),
		"token_type":    "bearer",
		"expires_in":    int64(s.TokenTTL.Seconds()),
		"expires_at":    exp.Unix(),
		"refresh_token": refresh,
		"user":          userJSON(a),
	}
}

func userJSON(a *account) map[string]any {
	return map[string]any{"id": a.id, "email": a.email, "aud": "authenticated", "role": "authenticated"}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
