// Package auth wraps the hosted auth provider (GoTrue) through its Go SDK.
// Every call returns either a normalized Session or an *Error carrying one
// message; nothing is retried.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	"go.uber.org/zap"
)

// Provider names an OAuth identity provider accepted by the id_token grant.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderApple  Provider = "apple"
)

// refreshMargin refreshes tokens slightly before they expire.
const refreshMargin = 30 * time.Second

// Client is the remote auth client. It retains the provider session in a
// SessionStore the way the platform SDK does.
type Client struct {
	sdk      gotrue.Client
	baseURL  string
	apiKey   string
	http     *http.Client
	sessions SessionStore
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewClient(baseURL, apiKey string, sessions SessionStore, hc *http.Client, logger *zap.SugaredLogger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	base := strings.TrimRight(baseURL, "/") + "/auth/v1"
	return &Client{
		sdk:      gotrue.New("", apiKey).WithCustomGoTrueURL(base),
		baseURL:  base,
		apiKey:   apiKey,
		http:     hc,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// with binds the SDK to ctx; the SDK itself takes no context.
func (c *Client) with(ctx context.Context) gotrue.Client {
	hc := *c.http
	hc.Transport = ctxTransport{ctx: ctx, next: hc.Transport}
	return c.sdk.WithClient(hc)
}

type ctxTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t ctxTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(r.WithContext(t.ctx))
}

func identity(u types.User) Identity {
	if u.ID == uuid.Nil {
		return Identity{Email: u.Email}
	}
	return Identity{ID: u.ID.String(), Email: u.Email}
}

func (c *Client) session(ts types.Session) *Session {
	if ts.AccessToken == "" {
		return nil
	}
	s := &Session{
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		ExpiresAt:    ts.ExpiresAt,
		User:         identity(ts.User),
	}
	if s.ExpiresAt == 0 && ts.ExpiresIn > 0 {
		s.ExpiresAt = c.now().Add(time.Duration(ts.ExpiresIn) * time.Second).Unix()
	}
	return s
}

// Register creates an auth identity. A nil Registration.Session means the
// provider requires email confirmation first; that is not an error.
func (c *Client) Register(ctx context.Context, email, password string) (*Registration, error) {
	res, err := c.with(ctx).Signup(types.SignupRequest{Email: email, Password: password})
	if err != nil {
		return nil, normalize(err, "Failed to sign up")
	}
	reg := &Registration{Identity: identity(res.User)}
	if s := c.session(res.Session); s != nil {
		if s.User.ID == "" {
			s.User = reg.Identity
		}
		c.store(s)
		reg.Session = s
	}
	return reg, nil
}

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	res, err := c.with(ctx).SignInWithEmailPassword(email, password)
	if errors.Is(err, types.ErrInvalidTokenRequest) {
		// the SDK refuses empty fields before sending anything
		return nil, &Error{Message: "Invalid login credentials", Code: "invalid_credentials", cause: err}
	}
	if err != nil {
		return nil, normalize(err, "Failed to sign in")
	}
	return c.keep(res.Session, "Failed to sign in")
}

// ExchangeIDToken trades an OAuth provider's ID token for a session.
// The SDK has no id_token grant, so this one goes over plain HTTP.
func (c *Client) ExchangeIDToken(ctx context.Context, provider Provider, idToken string) (*Session, error) {
	fallback := fmt.Sprintf("Failed to sign in with %s", provider)
	var ts types.Session
	body := map[string]string{"provider": string(provider), "id_token": idToken}
	if err := c.post(ctx, "/token?grant_type=id_token", body, &ts, fallback); err != nil {
		return nil, err
	}
	return c.keep(ts, fallback)
}

// Logout revokes the session remotely and always forgets it locally.
func (c *Client) Logout(ctx context.Context) error {
	s, _ := c.sessions.Load()
	if err := c.sessions.Clear(); err != nil {
		c.logger.Warnw("clear auth session failed", "err", err)
	}
	if s == nil {
		return nil
	}
	if err := c.with(ctx).WithToken(s.AccessToken).Logout(); err != nil {
		return normalize(err, "Failed to sign out")
	}
	return nil
}

// CurrentSession returns the retained session, refreshing it once when the
// access token is expired. (nil, nil) means nobody is signed in.
func (c *Client) CurrentSession(ctx context.Context) (*Session, error) {
	s, err := c.sessions.Load()
	if err != nil {
		return nil, &Error{Message: "Failed to get session", cause: err}
	}
	if s == nil {
		return nil, nil
	}
	if !s.Expired(c.now(), refreshMargin) {
		return s, nil
	}
	fresh, err := c.refresh(ctx, s.RefreshToken)
	if err != nil {
		c.logger.Infow("session refresh failed", "user_id", s.User.ID, "err", err)
		_ = c.sessions.Clear()
		return nil, err
	}
	return fresh, nil
}

func (c *Client) refresh(ctx context.Context, token string) (*Session, error) {
	const fallback = "Failed to get session"
	res, err := c.with(ctx).RefreshToken(token)
	if err != nil {
		return nil, normalize(err, fallback)
	}
	return c.keep(res.Session, fallback)
}

// AccessToken returns the current access token or "" when signed out.
func (c *Client) AccessToken(ctx context.Context) string {
	s, err := c.CurrentSession(ctx)
	if err != nil || s == nil {
		return ""
	}
	return s.AccessToken
}

func (c *Client) keep(ts types.Session, fallback string) (*Session, error) {
	s := c.session(ts)
	if s == nil {
		return nil, &Error{Message: fallback}
	}
	c.store(s)
	return s, nil
}

func (c *Client) store(s *Session) {
	if err := c.sessions.Save(s); err != nil {
		c.logger.Warnw("persist auth session failed", "err", err)
	}
}

// errorPayload accepts both the current ({code, error_code, msg}) and the
// older OAuth style ({error, error_description}) error bodies.
type errorPayload struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Err              string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e errorPayload) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Err} {
		if s != "" {
			return s
		}
	}
	return ""
}

func providerError(status int, raw []byte, fallback string) *Error {
	var ep errorPayload
	_ = json.Unmarshal(raw, &ep)
	msg := ep.text()
	if msg == "" {
		msg = fallback
	}
	code := ep.ErrorCode
	if code == "" && ep.Msg == "" {
		code = ep.Err
	}
	return &Error{Message: msg, Code: code, Status: status}
}

// sdkStatus matches the SDK's non-2xx error text: "response status code N: <body>".
var sdkStatus = regexp.MustCompile(`(?s)^response status code (\d+)(?:: (.*))?$`)

// normalize turns an SDK error into an *Error.
func normalize(err error, fallback string) error {
	if m := sdkStatus.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		return providerError(status, []byte(m[2]), fallback)
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return networkError(err)
	}
	return &Error{Message: fallback, cause: err}
}

func networkError(err error) *Error {
	return &Error{Message: "Network request failed: " + err.Error(), Code: codeNetwork, cause: err}
}

func (c *Client) post(ctx context.Context, path string, body, out any, fallback string) error {
	b, err := json.Marshal(body)
	if err != nil {
		return &Error{Message: fallback, cause: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return &Error{Message: fallback, cause: err}
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(err)
	}
	if resp.StatusCode >= 300 {
		return providerError(resp.StatusCode, raw, fallback)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Message: fallback, cause: err}
	}
	return nil
}
