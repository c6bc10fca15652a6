// Package relay is the server-side push relay: it resolves the device token
// for a user when needed and forwards the notification to the push gateway.
package relay

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-app-core/pkg/utilities"
)

//go:embed schema.json
var requestSchema string

const defaultRoute = "/(tabs)/index"

// MaxBodyBytes caps the request body.
const MaxBodyBytes = 1 << 20

// ProfileFinder looks up a profile row by id. user.Service satisfies it.
type ProfileFinder interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}

// Request is the relay's input body.
type Request struct {
	ExpoPushToken string         `json:"expoPushToken,omitempty"`
	UserID        string         `json:"userId,omitempty"`
	Title         string         `json:"title"`
	Body          string         `json:"body"`
	Route         string         `json:"route,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

type Handler struct {
	users  ProfileFinder
	sender Sender
	schema *gojsonschema.Schema
	logger *zap.SugaredLogger
}

func NewHandler(users ProfileFinder, sender Sender, logger *zap.SugaredLogger) (*Handler, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchema))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{users: users, sender: sender, schema: schema, logger: logger}, nil
}

// Send handles POST send-notification.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	deliveryID := utilities.NewSnowflakeID()
	log := h.logger.With("delivery_id", deliveryID)

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		status := http.StatusInternalServerError
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			status = http.StatusRequestEntityTooLarge
		}
		log.Infow("unreadable notification request", "err", err)
		h.writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}
	req, err := h.decode(raw)
	if err != nil {
		var verr *validationError
		if errors.As(err, &verr) {
			log.Debugw("invalid notification request", "err", err)
			h.writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		log.Warnw("error sending notification", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	token := req.ExpoPushToken
	if token == "" && req.UserID != "" {
		u, err := h.users.GetByID(r.Context(), req.UserID)
		if err != nil || u == nil {
			log.Debugw("recipient lookup failed", "user_id", req.UserID, "err", err)
			h.writeJSON(w, http.StatusNotFound, errorBody{Error: "User not found or no token available"})
			return
		}
		if !u.NotificationsEnabled {
			h.writeJSON(w, http.StatusForbidden, errorBody{Error: "Notifications are disabled for this user"})
			return
		}
		if u.ExpoPushToken != nil {
			token = *u.ExpoPushToken
		}
	}
	if token == "" {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "expoPushToken or userId is required"})
		return
	}

	receipt, err := h.sender.Send(r.Context(), BuildMessage(token, req))
	if err != nil {
		log.Warnw("error sending notification", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	if t, failed := receipt.Failed(); failed {
		log.Infow("push gateway rejected notification", "message", t.Message)
		h.writeJSON(w, http.StatusBadRequest, failureBody{Success: false, Error: t.Message, Details: t.Details})
		return
	}
	log.Infow("notification sent", "user_id", req.UserID)
	h.writeJSON(w, http.StatusOK, successBody{Success: true, Result: receipt.Raw, Message: "Notification sent successfully"})
}

// BuildMessage fills in the relay defaults. Keys in req.Data override the
// default route entry.
func BuildMessage(token string, req Request) Message {
	title := req.Title
	if title == "" {
		title = "Notification"
	}
	route := req.Route
	if route == "" {
		route = defaultRoute
	}
	data := map[string]any{"route": route}
	for k, v := range req.Data {
		data[k] = v
	}
	return Message{
		To:        token,
		Sound:     "default",
		Title:     title,
		Body:      req.Body,
		Data:      data,
		Priority:  "high",
		ChannelID: "default",
	}
}

type validationError struct {
	msgs []string
}

func (e *validationError) Error() string { return strings.Join(e.msgs, "; ") }

func (h *Handler) decode(raw []byte) (Request, error) {
	var req Request
	if !json.Valid(raw) {
		return req, errors.New("request body is not valid JSON")
	}
	res, err := h.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return req, err
	}
	if !res.Valid() {
		verr := &validationError{}
		for _, e := range res.Errors() {
			verr.msgs = append(verr.msgs, e.String())
		}
		return req, verr
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, err
	}
	return req, nil
}

type errorBody struct {
	Error string `json:"error"`
}

type failureBody struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details,omitempty"`
}

type successBody struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
