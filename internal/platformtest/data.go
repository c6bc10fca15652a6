package platformtest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-app-core/pkg/utilities"
)

func dataError(w http.ResponseWriter, status int, code, msg, details string) {
	writeJSON(w, status, map[string]any{"code": code, "message": msg, "details": details, "hint": nil})
}

func noRows(w http.ResponseWriter) {
	dataError(w, http.StatusNotAcceptable, "PGRST116",
		"JSON object requested, multiple (or no) rows returned", "The result contains 0 rows")
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != AnonKey || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			dataError(w, http.StatusUnauthorized, "PGRST301", "No suitable key or wrong key type", "")
			return
		}
		s.mu.Lock()
		fail := s.failData
		s.mu.Unlock()
		if fail {
			dataError(w, http.StatusInternalServerError, "XX000", "database unavailable", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// match returns the row selected by an id or auth_id eq filter. Caller holds mu.
func (s *Server) match(r *http.Request) *entity.User {
	q := r.URL.Query()
	if v := strings.TrimPrefix(q.Get("id"), "eq."); v != "" {
		return s.rows[v]
	}
	if v := strings.TrimPrefix(q.Get("auth_id"), "eq."); v != "" {
		for _, u := range s.rows {
			if u.AuthID == v {
				return u
			}
		}
	}
	return nil
}

func (s *Server) selectUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.match(r)
	if u == nil {
		noRows(w)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) insertUser(w http.ResponseWriter, r *http.Request) {
	var u entity.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		dataError(w, http.StatusBadRequest, "PGRST102", "Empty or invalid json", "")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.AuthID == u.AuthID {
			dataError(w, http.StatusConflict, "23505",
				`duplicate key value violates unique constraint "users_auth_id_key"`, "")
			return
		}
	}
	u.ID = utilities.NewUUID()
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	s.rows[u.ID] = u.Clone()
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		dataError(w, http.StatusBadRequest, "PGRST102", "Empty or invalid json", "")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.match(r)
	if u == nil {
		noRows(w)
		return
	}
	for col, v := range fields {
		str, _ := v.(string)
		b, _ := v.(bool)
		switch col {
		case "name":
			u.Name = entity.String(str)
		case "last_name":
			u.LastName = entity.String(str)
		case "birth_date":
			u.BirthDate = entity.String(str)
		case "expo_push_token":
			u.ExpoPushToken = entity.String(str)
		case "notifications_enabled":
			u.NotificationsEnabled = b
		case "onboarding_completed":
			u.OnboardingCompleted = u.OnboardingCompleted || b
		default:
			dataError(w, http.StatusBadRequest, "PGRST204",
				"Could not find the '"+col+"' column of 'users' in the schema cache", "")
			return
		}
	}
	u.UpdatedAt = time.Now().UTC()
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.match(r)
	if u == nil {
		noRows(w)
		return
	}
	delete(s.rows, u.ID)
	writeJSON(w, http.StatusOK, u)
}
