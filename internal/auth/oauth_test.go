package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

func TestGoogleCodeExchanger(t *testing.T) {
	idToken, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "g@x.com", "given_name": "Ana", "family_name": "Ruiz",
	}).SignedString([]byte("google"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{"access_token": "at", "token_type": "Bearer", "expires_in": 3600}
		if r.Form.Get("code") == "good" {
			resp["id_token"] = idToken
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	g := NewGoogleCodeExchanger("client", "secret", "http://localhost/cb").
		WithEndpoint(oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"})

	if u := g.AuthURL("st"); !strings.HasPrefix(u, srv.URL+"/auth?") || !strings.Contains(u, "state=st") {
		t.Fatalf("unexpected auth url %q", u)
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, srv.Client())
	cred, err := g.Exchange(ctx, "good")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if cred.Provider != ProviderGoogle || cred.IDToken != idToken {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if cred.Profile != (Profile{GivenName: "Ana", FamilyName: "Ruiz", Email: "g@x.com"}) {
		t.Fatalf("unexpected profile %+v", cred.Profile)
	}

	if _, err := g.Exchange(ctx, "no-id-token"); !errors.Is(err, ErrNoIDToken) {
		t.Fatalf("expected ErrNoIDToken, got %v", err)
	}
}
