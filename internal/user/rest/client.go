// Package rest talks to the hosted platform's REST data API (PostgREST) for
// the users table through postgrest-go. Every request asks for a single
// object, so "zero rows" becomes an explicit PGRST116 error.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/supabase-community/postgrest-go"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
)

// PostgREST code for "JSON object requested, multiple (or no) rows returned".
const codeSingularity = "PGRST116"

// Bearer returns the access token for the signed-in user, or "" to fall back
// to the anon key.
type Bearer func(ctx context.Context) string

// APIError is an error answer from the data API. Error() is the store's
// message verbatim.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Client implements the user store over the data API.
type Client struct {
	url    string
	apiKey string
	bearer Bearer
	table  string
	http   *http.Client
}

// New builds a client for baseURL (the project URL, without /rest/v1).
func New(baseURL, apiKey string, bearer Bearer, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		url:    strings.TrimRight(baseURL, "/") + "/rest/v1",
		apiKey: apiKey,
		bearer: bearer,
		table:  "users",
		http:   hc,
	}
}

type insertRow struct {
	AuthID               string  `json:"auth_id"`
	Email                string  `json:"email"`
	Name                 *string `json:"name"`
	LastName             *string `json:"last_name"`
	OnboardingCompleted  bool    `json:"onboarding_completed"`
	NotificationsEnabled bool    `json:"notifications_enabled"`
}

func (c *Client) Create(ctx context.Context, u *entity.User) error {
	row := insertRow{
		AuthID:               u.AuthID,
		Email:                u.Email,
		Name:                 u.Name,
		LastName:             u.LastName,
		OnboardingCompleted:  u.OnboardingCompleted,
		NotificationsEnabled: u.NotificationsEnabled,
	}
	out, err := c.one(ctx, c.from(ctx).Insert(row, false, "", "representation", "").Single())
	if err != nil {
		return err
	}
	*u = *out
	return nil
}

func (c *Client) GetByAuthID(ctx context.Context, authID string) (*entity.User, error) {
	return c.one(ctx, c.from(ctx).Select("*", "", false).Eq("auth_id", authID).Single())
}

func (c *Client) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return c.one(ctx, c.from(ctx).Select("*", "", false).Eq("id", id).Single())
}

func (c *Client) Update(ctx context.Context, id string, p entity.Patch) (*entity.User, error) {
	return c.one(ctx, c.from(ctx).Update(p.Fields(), "representation", "").Eq("id", id).Single())
}

func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.one(ctx, c.from(ctx).Delete("representation", "").Eq("id", id).Single())
	return err
}

// from starts a query carrying this request's bearer. The SDK keeps headers
// on the client, so each request gets its own.
func (c *Client) from(ctx context.Context) *postgrest.QueryBuilder {
	pc := postgrest.NewClient(c.url, "public", map[string]string{"apikey": c.apiKey})
	pc.SetAuthToken(c.token(ctx))
	pc.Transport.Parent = c.http.Transport
	return pc.From(c.table)
}

func (c *Client) one(ctx context.Context, q *postgrest.FilterBuilder) (*entity.User, error) {
	raw, _, err := q.ExecuteWithContext(ctx)
	if err != nil {
		return nil, decodeError(err)
	}
	var u entity.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

func (c *Client) token(ctx context.Context) string {
	if c.bearer != nil {
		if t := c.bearer(ctx); t != "" {
			return t
		}
	}
	return c.apiKey
}

// sdkError matches the SDK's error answer text: "(code) message".
var sdkError = regexp.MustCompile(`(?s)^\(([^)]*)\) (.*)$`)

func decodeError(err error) error {
	m := sdkError.FindStringSubmatch(err.Error())
	if m == nil {
		return err
	}
	apiErr := &APIError{Code: m[1], Message: m[2]}
	if apiErr.Code == codeSingularity {
		return fmt.Errorf("%w: %s", entity.ErrNotFound, apiErr.Message)
	}
	return apiErr
}
