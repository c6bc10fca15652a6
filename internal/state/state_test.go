package state

import (
	"testing"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/credstore"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
)

func TestUserIsCopied(t *testing.T) {
	s := New(nil)
	u := &entity.User{ID: "u1", Name: entity.String("Ana")}
	s.SetUser(u)

	*u.Name = "changed"
	got := s.User()
	if got == nil || *got.Name != "Ana" {
		t.Fatalf("state must hold its own copy, got %+v", got)
	}
	*got.Name = "changed again"
	if *s.User().Name != "Ana" {
		t.Fatalf("User() must return a copy")
	}
}

func TestUpdateUserAndClear(t *testing.T) {
	s := New(nil)
	s.UpdateUser(entity.Patch{Name: entity.String("ignored")})
	if s.User() != nil {
		t.Fatalf("update without a user must be a no-op")
	}

	s.SetUser(&entity.User{ID: "u1"})
	s.UpdateUser(entity.Patch{Name: entity.String("Ana"), BirthDate: entity.String("1990-01-02T00:00:00.000Z")})
	got := s.User()
	if got.Name == nil || *got.Name != "Ana" || got.BirthDate == nil {
		t.Fatalf("patch not applied: %+v", got)
	}

	s.Clear()
	if s.User() != nil {
		t.Fatalf("user should be cleared")
	}
}

func TestPreferencesPersist(t *testing.T) {
	kv := credstore.NewMemoryKV()
	s := New(kv)
	if s.Language() != LanguageEN || s.Theme() != ThemeSystem {
		t.Fatalf("unexpected defaults %q %q", s.Language(), s.Theme())
	}
	if err := s.SetLanguage(LanguageES); err != nil {
		t.Fatalf("set language: %v", err)
	}
	if err := s.SetTheme(ThemeDark); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if err := s.SetLanguage("fr"); err == nil {
		t.Fatalf("expected unsupported language error")
	}

	reloaded := New(kv)
	if reloaded.Language() != LanguageES || reloaded.Theme() != ThemeDark {
		t.Fatalf("preferences not reloaded: %q %q", reloaded.Language(), reloaded.Theme())
	}
}
