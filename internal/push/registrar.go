// Package push registers the device for push notifications: it asks for
// permission, obtains the device token and stores it on the user's profile.
package push

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
)

var (
	ErrPermissionDenied = errors.New("Notification permissions denied")
	ErrNoToken          = errors.New("Failed to get push token")
	ErrNoUser           = errors.New("no signed-in user")
)

// Permission asks the platform for notification permission.
type Permission interface {
	Request(ctx context.Context) (bool, error)
}

// TokenSource obtains the push token for this device.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenStore persists the token on the profile. user.Service satisfies it.
type TokenStore interface {
	SetPushToken(ctx context.Context, id, token string) (*entity.User, error)
	ClearPushToken(ctx context.Context, id string) (*entity.User, error)
}

var tokenFormat = regexp.MustCompile(`^Expo(nent)?PushToken\[.+\]$`)

// ValidToken reports whether s looks like a push gateway device token.
func ValidToken(s string) bool {
	return tokenFormat.MatchString(s)
}

type Registrar struct {
	perm   Permission
	tokens TokenSource
	store  TokenStore
	logger *zap.SugaredLogger
}

func NewRegistrar(perm Permission, tokens TokenSource, store TokenStore, logger *zap.SugaredLogger) *Registrar {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registrar{perm: perm, tokens: tokens, store: store, logger: logger}
}

// Register runs permission -> token -> profile update and returns the token.
// A store failure is returned unchanged.
func (r *Registrar) Register(ctx context.Context, u *entity.User) (string, error) {
	if u == nil || u.ID == "" {
		return "", ErrNoUser
	}
	granted, err := r.perm.Request(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if !granted {
		return "", ErrPermissionDenied
	}
	token, err := r.tokens.Token(ctx)
	if err != nil || token == "" {
		r.logger.Debugw("push token unavailable", "user_id", u.ID, "err", err)
		return "", ErrNoToken
	}
	if !ValidToken(token) {
		r.logger.Warnw("unexpected push token format", "user_id", u.ID)
	}
	if _, err := r.store.SetPushToken(ctx, u.ID, token); err != nil {
		return "", err
	}
	r.logger.Infow("push token registered", "user_id", u.ID)
	return token, nil
}

// Unregister clears the stored token and turns notifications off.
func (r *Registrar) Unregister(ctx context.Context, u *entity.User) error {
	if u == nil || u.ID == "" {
		return ErrNoUser
	}
	_, err := r.store.ClearPushToken(ctx, u.ID)
	return err
}

// StaticPermission answers every request with the same decision.
type StaticPermission bool

func (p StaticPermission) Request(context.Context) (bool, error) { return bool(p), nil }

// StaticToken hands out a fixed token; empty means no token is available.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}
