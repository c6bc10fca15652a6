package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// Bearer returns the caller's access token, or "" to use the anon key.
type Bearer func(ctx context.Context) string

// Response is what the relay client reports back. Failures never come back
// as Go errors; they are folded into Success and Error.
type Response struct {
	Success bool
	Error   string
	Result  json.RawMessage
}

// Client invokes the relay endpoint.
type Client struct {
	url    string
	apiKey string
	bearer Bearer
	http   *http.Client
}

func NewClient(url, apiKey string, bearer Bearer, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{url: url, apiKey: apiKey, bearer: bearer, http: hc}
}

func (c *Client) Send(ctx context.Context, req Request) Response {
	b, err := json.Marshal(req)
	if err != nil {
		return failed(err.Error())
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return failed(err.Error())
	}
	token := c.apiKey
	if c.bearer != nil {
		if t := c.bearer(ctx); t != "" {
			token = t
		}
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("apikey", c.apiKey)
	hr.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(hr)
	if err != nil {
		return failed(err.Error())
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(err.Error())
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.Error == "" {
			e.Error = "Failed to send notification"
		}
		return Response{Error: e.Error, Result: raw}
	}
	return Response{Success: true, Result: raw}
}

func (c *Client) SendToUser(ctx context.Context, userID, title, body, route string, data map[string]any) Response {
	return c.Send(ctx, Request{UserID: userID, Title: title, Body: body, Route: route, Data: data})
}

func (c *Client) SendToToken(ctx context.Context, token, title, body, route string, data map[string]any) Response {
	return c.Send(ctx, Request{ExpoPushToken: token, Title: title, Body: body, Route: route, Data: data})
}

func failed(msg string) Response {
	if msg == "" {
		msg = "Failed to send notification"
	}
	return Response{Error: msg}
}
