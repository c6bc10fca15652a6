package user

import (
	"context"
	"errors"
	"testing"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/platformtest"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/rest"
)

func newService(t *testing.T) *Service {
	t.Helper()
	srv := platformtest.New()
	t.Cleanup(srv.Close)
	return NewService(rest.New(srv.URL, platformtest.AnonKey, nil, srv.Client()), nil)
}

func TestCreateDefaults(t *testing.T) {
	s := newService(t)
	u, err := s.Create(context.Background(), "auth-1", "a@x.com", "Ana", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.AuthID != "auth-1" || u.Email != "a@x.com" || *u.Name != "Ana" || u.LastName != nil {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.OnboardingCompleted || u.NotificationsEnabled || u.ExpoPushToken != nil {
		t.Fatalf("new users start with flags off: %+v", u)
	}

	if _, err := s.Create(context.Background(), " ", "a@x.com", "", ""); !errors.Is(err, ErrMissingAuthID) {
		t.Fatalf("expected ErrMissingAuthID, got %v", err)
	}
}

func TestUpdateRules(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	u, err := s.Create(ctx, "auth-1", "a@x.com", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.Update(ctx, u.ID, entity.Patch{}); !errors.Is(err, ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got %v", err)
	}
	if _, err := s.Update(ctx, u.ID, entity.Patch{OnboardingCompleted: entity.Bool(false)}); !errors.Is(err, ErrOnboardingReset) {
		t.Fatalf("expected ErrOnboardingReset, got %v", err)
	}

	done, err := s.CompleteOnboarding(ctx, u.ID, entity.Patch{
		Name:      entity.String("Ana"),
		LastName:  entity.String("Ruiz"),
		BirthDate: entity.String("1990-01-02T00:00:00.000Z"),
	})
	if err != nil {
		t.Fatalf("complete onboarding: %v", err)
	}
	if !done.OnboardingCompleted || *done.LastName != "Ruiz" || done.AuthID != "auth-1" || done.Email != "a@x.com" {
		t.Fatalf("unexpected onboarded user %+v", done)
	}

	again, err := s.ToggleNotifications(ctx, u.ID, true)
	if err != nil || !again.OnboardingCompleted || !again.NotificationsEnabled {
		t.Fatalf("toggle must keep onboarding: %v %+v", err, again)
	}
}

func TestPushTokenHelpers(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	u, _ := s.Create(ctx, "auth-1", "a@x.com", "", "")

	got, err := s.SetPushToken(ctx, u.ID, "ExpoPushToken[1]")
	if err != nil || got.ExpoPushToken == nil || !got.NotificationsEnabled {
		t.Fatalf("set push token: %v %+v", err, got)
	}
	got, err = s.ClearPushToken(ctx, u.ID)
	if err != nil || got.ExpoPushToken != nil || got.NotificationsEnabled {
		t.Fatalf("clear push token: %v %+v", err, got)
	}
}

func TestLookupsSurfaceNotFound(t *testing.T) {
	s := newService(t)
	if _, err := s.GetByAuthID(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
