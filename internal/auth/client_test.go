package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/auth"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/credstore"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/platformtest"
)

func newClient(t *testing.T) (*auth.Client, *platformtest.Server, auth.SessionStore) {
	t.Helper()
	srv := platformtest.New()
	t.Cleanup(srv.Close)
	sessions := auth.NewKVSessionStore(credstore.NewMemoryKV())
	return auth.NewClient(srv.URL, platformtest.AnonKey, sessions, srv.Client(), nil), srv, sessions
}

func TestRegisterAndLogin(t *testing.T) {
	c, srv, sessions := newClient(t)
	ctx := context.Background()

	reg, err := c.Register(ctx, "new@x.com", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.ConfirmationPending() || reg.Identity.ID == "" || reg.Identity.Email != "new@x.com" {
		t.Fatalf("unexpected registration %+v", reg)
	}
	if stored, _ := sessions.Load(); stored == nil || stored.AccessToken != reg.Session.AccessToken {
		t.Fatalf("session was not retained")
	}

	s, err := c.Login(ctx, "new@x.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if s.User.ID != srv.AccountID("new@x.com") || s.RefreshToken == "" {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestRegisterConfirmationPending(t *testing.T) {
	c, srv, sessions := newClient(t)
	srv.RequireConfirmation(true)

	reg, err := c.Register(context.Background(), "pending@x.com", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !reg.ConfirmationPending() || reg.Identity.ID == "" {
		t.Fatalf("expected pending confirmation with identity, got %+v", reg)
	}
	if s, _ := sessions.Load(); s != nil {
		t.Fatalf("no session should be stored")
	}

	_, err = c.Login(context.Background(), "pending@x.com", "secret1")
	if auth.Classify(err) != auth.ReasonEmailNotConfirmed {
		t.Fatalf("expected email not confirmed, got %v", err)
	}
}

func TestProviderErrorsAreVerbatim(t *testing.T) {
	c, srv, _ := newClient(t)
	srv.AddAccount("taken@x.com", "secret1")
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func() error
		msg    string
		reason auth.Reason
	}{
		{"wrong password", func() error { _, err := c.Login(ctx, "taken@x.com", "nope"); return err },
			"Invalid login credentials", auth.ReasonInvalidCredentials},
		{"duplicate", func() error { _, err := c.Register(ctx, "taken@x.com", "secret1"); return err },
			"User already registered", auth.ReasonUserExists},
		{"weak password", func() error { _, err := c.Register(ctx, "weak@x.com", "123"); return err },
			"Password should be at least 6 characters.", auth.ReasonWeakPassword},
		{"bad email", func() error { _, err := c.Register(ctx, "not-an-email", "secret1"); return err },
			"Unable to validate email address: invalid format", auth.ReasonInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var ae *auth.Error
			if !errors.As(err, &ae) {
				t.Fatalf("expected *auth.Error, got %T %v", err, err)
			}
			if ae.Message != tt.msg {
				t.Fatalf("message = %q, want %q", ae.Message, tt.msg)
			}
			if got := auth.Classify(err); got != tt.reason {
				t.Fatalf("reason = %q, want %q", got, tt.reason)
			}
		})
	}
}

func TestNetworkFailure(t *testing.T) {
	c, srv, _ := newClient(t)
	srv.Close()

	_, err := c.Login(context.Background(), "a@x.com", "secret1")
	if auth.Classify(err) != auth.ReasonNetwork {
		t.Fatalf("expected network reason, got %v", err)
	}
}

func TestCurrentSessionRefreshesExpiredToken(t *testing.T) {
	c, srv, sessions := newClient(t)
	ctx := context.Background()
	srv.AddAccount("a@x.com", "secret1")

	s, err := c.Login(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	expired := *s
	expired.ExpiresAt = 0
	expired.AccessToken = srv.IssueToken(s.User.ID, time.Now().Add(-time.Minute))
	if err := sessions.Save(&expired); err != nil {
		t.Fatalf("save: %v", err)
	}

	fresh, err := c.CurrentSession(ctx)
	if err != nil {
		t.Fatalf("current session: %v", err)
	}
	if fresh == nil || fresh.AccessToken == expired.AccessToken || fresh.User.ID != s.User.ID {
		t.Fatalf("expected a refreshed session, got %+v", fresh)
	}

	// the old refresh token is spent; a second refresh with it fails and signs out
	expired.RefreshToken = s.RefreshToken
	_ = sessions.Save(&expired)
	if _, err := c.CurrentSession(ctx); err == nil {
		t.Fatalf("expected refresh failure")
	}
	if stored, _ := sessions.Load(); stored != nil {
		t.Fatalf("failed refresh must clear the stored session")
	}
}

func TestCurrentSessionEmpty(t *testing.T) {
	c, _, _ := newClient(t)
	s, err := c.CurrentSession(context.Background())
	if s != nil || err != nil {
		t.Fatalf("expected (nil, nil), got %v %v", s, err)
	}
	if tok := c.AccessToken(context.Background()); tok != "" {
		t.Fatalf("expected no access token, got %q", tok)
	}
}

func TestLogout(t *testing.T) {
	c, srv, sessions := newClient(t)
	ctx := context.Background()
	srv.AddAccount("a@x.com", "secret1")
	if _, err := c.Login(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	srv.FailLogout(true)
	if err := c.Logout(ctx); err == nil {
		t.Fatalf("expected remote logout error")
	}
	if s, _ := sessions.Load(); s != nil {
		t.Fatalf("local session must be cleared even when remote logout fails")
	}
	if srv.Calls("POST /auth/v1/logout") != 1 {
		t.Fatalf("expected one remote logout call")
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout without session: %v", err)
	}
	if srv.Calls("POST /auth/v1/logout") != 1 {
		t.Fatalf("logout without session must not call the provider")
	}
}

func TestExchangeIDToken(t *testing.T) {
	c, srv, _ := newClient(t)
	idToken := unsignedIDToken(t, jwt.MapClaims{"email": "g@x.com", "given_name": "Ana", "family_name": "Ruiz"})

	s, err := c.ExchangeIDToken(context.Background(), auth.ProviderGoogle, idToken)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if s.User.ID != srv.AccountID("g@x.com") {
		t.Fatalf("unexpected identity %+v", s.User)
	}

	_, err = c.ExchangeIDToken(context.Background(), auth.ProviderApple, "garbage")
	var ae *auth.Error
	if !errors.As(err, &ae) || ae.Message != "Bad ID token" {
		t.Fatalf("expected provider message, got %v", err)
	}
}

func unsignedIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("idp"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestLoginWithEmptyFieldsNeverReachesProvider(t *testing.T) {
	c, srv, _ := newClient(t)
	_, err := c.Login(context.Background(), "a@x.com", "")
	if auth.Classify(err) != auth.ReasonInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if srv.Calls("POST /auth/v1/token") != 0 {
		t.Fatalf("empty password must not be sent")
	}
}

func TestCanceledContextStopsCall(t *testing.T) {
	c, srv, _ := newClient(t)
	srv.AddAccount("a@x.com", "secret1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Login(ctx, "a@x.com", "secret1")
	if !errors.Is(err, context.Canceled) || auth.Classify(err) != auth.ReasonNetwork {
		t.Fatalf("expected a canceled network failure, got %v", err)
	}
}
