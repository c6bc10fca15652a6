package platformtest

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type credentials struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Provider     string `json:"provider"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

func authError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "error_code": code, "msg": msg})
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}
	if !strings.Contains(req.Email, "@") {
		authError(w, http.StatusBadRequest, "email_address_invalid", "Unable to validate email address: invalid format")
		return
	}
	if len(req.Password) < 6 {
		authError(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[strings.ToLower(req.Email)]; ok {
		authError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}
	a, err := s.createAccount(req.Email, req.Password, !s.confirmEmail)
	if err != nil {
		authError(w, http.StatusInternalServerError, "unexpected_failure", err.Error())
		return
	}
	if !a.confirmed {
		writeJSON(w, http.StatusOK, userJSON(a))
		return
	}
	writeJSON(w, http.StatusOK, s.issue(a))
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.URL.Query().Get("grant_type") {
	case "password":
		a, ok := s.accounts[strings.ToLower(req.Email)]
		if !ok || bcrypt.CompareHashAndPassword(a.hash, []byte(req.Password)) != nil {
			authError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
			return
		}
		if !a.confirmed {
			authError(w, http.StatusBadRequest, "email_not_confirmed", "Email not confirmed")
			return
		}
		writeJSON(w, http.StatusOK, s.issue(a))
	case "id_token":
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(req.IDToken, claims); err != nil {
			authError(w, http.StatusBadRequest, "bad_jwt", "Bad ID token")
			return
		}
		email, _ := claims["email"].(string)
		if email == "" {
			authError(w, http.StatusBadRequest, "bad_jwt", "ID token has no email claim")
			return
		}
		a, ok := s.accounts[strings.ToLower(email)]
		if !ok {
			var err error
			if a, err = s.createAccount(email, req.IDToken, true); err != nil {
				authError(w, http.StatusInternalServerError, "unexpected_failure", err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, s.issue(a))
	case "refresh_token":
		id, ok := s.refresh[req.RefreshToken]
		if !ok {
			authError(w, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
			return
		}
		delete(s.refresh, req.RefreshToken)
		for _, a := range s.accounts {
			if a.id == id {
				writeJSON(w, http.StatusOK, s.issue(a))
				return
			}
		}
		authError(w, http.StatusBadRequest, "user_not_found", "User not found")
	default:
		authError(w, http.StatusBadRequest, "validation_failed", "unsupported grant_type")
	}
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLogout {
		authError(w, http.StatusInternalServerError, "unexpected_failure", "logout failed")
		return
	}
	sub, ok := s.subject(r)
	if !ok {
		authError(w, http.StatusUnauthorized, "no_authorization", "This endpoint requires a Bearer token")
		return
	}
	for rt, id := range s.refresh {
		if id == sub {
			delete(s.refresh, rt)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// subject verifies the bearer token and returns its sub claim.
func (s *Server) subject(r *http.Request) (string, bool) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return s.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return "", false
	}
	sub, err := tok.Claims.GetSubject()
	return sub, err == nil && sub != ""
}
