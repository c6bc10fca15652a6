package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DefaultGatewayURL is the Expo push send endpoint.
const DefaultGatewayURL = "https://exp.host/--/api/v2/push/send"

// Message is one outbound push notification.
type Message struct {
	To        string         `json:"to"`
	Sound     string         `json:"sound"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data"`
	Priority  string         `json:"priority"`
	ChannelID string         `json:"channelId"`
}

// Ticket is the gateway's per-message answer.
type Ticket struct {
	Status  string          `json:"status"`
	ID      string          `json:"id,omitempty"`
	Message string          `json:"message,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Receipt is the decoded gateway answer. Raw is passed back to callers as is.
type Receipt struct {
	Raw     json.RawMessage
	Tickets []Ticket
}

// Failed returns the first error ticket, if any.
func (r *Receipt) Failed() (Ticket, bool) {
	for _, t := range r.Tickets {
		if t.Status == "error" {
			return t, true
		}
	}
	return Ticket{}, false
}

// Sender delivers a message to the push gateway.
type Sender interface {
	Send(ctx context.Context, m Message) (*Receipt, error)
}

type Gateway struct {
	url  string
	http *http.Client
}

func NewGateway(url string, hc *http.Client) *Gateway {
	if url == "" {
		url = DefaultGatewayURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Gateway{url: url, http: hc}
}

func (g *Gateway) Send(ctx context.Context, m Message) (*Receipt, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decodeReceipt(raw)
}

// decodeReceipt accepts "data" as a list of tickets or as a single ticket;
// the gateway answers a one-message request with the latter.
func decodeReceipt(raw []byte) (*Receipt, error) {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode push gateway response: %w", err)
	}
	r := &Receipt{Raw: json.RawMessage(raw)}
	data := bytes.TrimSpace(env.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case data[0] == '[':
		if err := json.Unmarshal(data, &r.Tickets); err != nil {
			return nil, fmt.Errorf("decode push tickets: %w", err)
		}
	default:
		var t Ticket
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("decode push ticket: %w", err)
		}
		r.Tickets = []Ticket{t}
	}
	return r, nil
}
