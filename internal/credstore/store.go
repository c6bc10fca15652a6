// Package credstore is the local credential cache: the last known profile
// row and a "has session" flag. It is written through on every successful
// auth flow and is never treated as the source of truth.
package credstore

import (
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
)

const (
	UserKey    = "@app:user"
	SessionKey = "@app:session"
)

type Store struct {
	kv     KV
	logger *zap.SugaredLogger
}

func New(kv KV, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{kv: kv, logger: logger}
}

// KV exposes the backing store so the auth client and app state can keep
// their own keys next to the credential keys.
func (s *Store) KV() KV { return s.kv }

func (s *Store) SaveUser(u *entity.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := s.kv.Set(UserKey, string(b)); err != nil {
		s.logger.Warnw("save user failed", "err", err)
		return err
	}
	return nil
}

// User returns the cached profile, or nil when absent or unreadable.
func (s *Store) User() *entity.User {
	raw, ok, err := s.kv.Get(UserKey)
	if err != nil {
		s.logger.Warnw("read user failed", "err", err)
		return nil
	}
	if !ok {
		return nil
	}
	var u entity.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		s.logger.Warnw("decode cached user failed", "err", err)
		return nil
	}
	return &u
}

func (s *Store) RemoveUser() error {
	return s.kv.Delete(UserKey)
}

func (s *Store) SaveSession(has bool) error {
	if err := s.kv.Set(SessionKey, strconv.FormatBool(has)); err != nil {
		s.logger.Warnw("save session flag failed", "err", err)
		return err
	}
	return nil
}

func (s *Store) HasSession() bool {
	raw, ok, err := s.kv.Get(SessionKey)
	if err != nil || !ok {
		return false
	}
	v, _ := strconv.ParseBool(raw)
	return v
}

// Clear removes the cached profile and the session flag together.
func (s *Store) Clear() error {
	if err := s.kv.Delete(UserKey, SessionKey); err != nil {
		s.logger.Warnw("clear auth storage failed", "err", err)
		return err
	}
	return nil
}
