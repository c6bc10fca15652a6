package user

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
)

// Store is the remote users table. repo.UserRepo (direct Postgres) and
// rest.Client (data API) both satisfy it.
type Store interface {
	Create(ctx context.Context, u *entity.User) error
	GetByAuthID(ctx context.Context, authID string) (*entity.User, error)
	GetByID(ctx context.Context, id string) (*entity.User, error)
	Update(ctx context.Context, id string, p entity.Patch) (*entity.User, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrNotFound        = entity.ErrNotFound
	ErrMissingAuthID   = errors.New("auth id is required")
	ErrEmptyPatch      = errors.New("nothing to update")
	ErrOnboardingReset = errors.New("onboarding_completed cannot be reset")
)

// Service is the user record client: CRUD over the profile row keyed by the
// auth identity. Store errors are returned unchanged; nothing is retried and
// no local copy is touched before the store confirms.
type Service struct {
	store  Store
	logger *zap.SugaredLogger
}

func NewService(store Store, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, logger: logger}
}

// Create inserts the profile for a freshly created auth identity. Empty name
// parts are stored as NULL.
func (s *Service) Create(ctx context.Context, authID, email, name, lastName string) (*entity.User, error) {
	if strings.TrimSpace(authID) == "" {
		return nil, ErrMissingAuthID
	}
	u := &entity.User{
		AuthID:   authID,
		Email:    email,
		Name:     entity.String(name),
		LastName: entity.String(lastName),
	}
	if err := s.store.Create(ctx, u); err != nil {
		s.logger.Debugw("create user failed", "auth_id", authID, "err", err)
		return nil, err
	}
	return u, nil
}

func (s *Service) GetByAuthID(ctx context.Context, authID string) (*entity.User, error) {
	return s.store.GetByAuthID(ctx, authID)
}

func (s *Service) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return s.store.GetByID(ctx, id)
}

// Update writes the mutable fields carried by p.
func (s *Service) Update(ctx context.Context, id string, p entity.Patch) (*entity.User, error) {
	if p.IsEmpty() {
		return nil, ErrEmptyPatch
	}
	if p.OnboardingCompleted != nil && !*p.OnboardingCompleted {
		return nil, ErrOnboardingReset
	}
	return s.store.Update(ctx, id, p)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// CompleteOnboarding saves the onboarding answers together with the
// onboarding_completed flag in one write.
func (s *Service) CompleteOnboarding(ctx context.Context, id string, p entity.Patch) (*entity.User, error) {
	p.OnboardingCompleted = entity.Bool(true)
	return s.Update(ctx, id, p)
}

// SetPushToken stores the device token and switches notifications on.
func (s *Service) SetPushToken(ctx context.Context, id, token string) (*entity.User, error) {
	return s.Update(ctx, id, entity.Patch{
		ExpoPushToken:        &token,
		NotificationsEnabled: entity.Bool(true),
	})
}

// ClearPushToken removes the device token and switches notifications off.
func (s *Service) ClearPushToken(ctx context.Context, id string) (*entity.User, error) {
	none := ""
	return s.Update(ctx, id, entity.Patch{
		ExpoPushToken:        &none,
		NotificationsEnabled: entity.Bool(false),
	})
}

func (s *Service) ToggleNotifications(ctx context.Context, id string, enabled bool) (*entity.User, error) {
	return s.Update(ctx, id, entity.Patch{NotificationsEnabled: &enabled})
}
