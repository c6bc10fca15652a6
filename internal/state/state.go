// Package state holds the in-memory application state shared by the flows:
// the signed-in profile plus UI preferences. It is constructed explicitly and
// passed to whoever needs it.
package state

import (
	"fmt"
	"sync"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/credstore"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
)

type Language string

const (
	LanguageEN Language = "en"
	LanguageES Language = "es"
)

type Theme string

const (
	ThemeSystem Theme = "system"
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
)

const (
	languageKey = "@app:language"
	themeKey    = "@app:theme"
)

type State struct {
	mu       sync.RWMutex
	user     *entity.User
	language Language
	theme    Theme
	kv       credstore.KV
}

// New returns a state with defaults; when kv is non-nil, saved preferences
// are loaded from it and later changes are written back.
func New(kv credstore.KV) *State {
	s := &State{language: LanguageEN, theme: ThemeSystem, kv: kv}
	if kv == nil {
		return s
	}
	if v, ok, err := kv.Get(languageKey); err == nil && ok && validLanguage(Language(v)) {
		s.language = Language(v)
	}
	if v, ok, err := kv.Get(themeKey); err == nil && ok && validTheme(Theme(v)) {
		s.theme = Theme(v)
	}
	return s
}

// User returns a copy of the signed-in profile, or nil.
func (s *State) User() *entity.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Clone()
}

func (s *State) SetUser(u *entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u.Clone()
}

// UpdateUser merges p into the current profile; it is a no-op when signed out.
func (s *State) UpdateUser(p entity.Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Apply(s.user)
}

// Clear forgets the signed-in profile. Preferences survive.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
}

func (s *State) Language() Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

func (s *State) SetLanguage(l Language) error {
	if !validLanguage(l) {
		return fmt.Errorf("unsupported language %q", l)
	}
	s.mu.Lock()
	s.language = l
	s.mu.Unlock()
	return s.persist(languageKey, string(l))
}

func (s *State) Theme() Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

func (s *State) SetTheme(t Theme) error {
	if !validTheme(t) {
		return fmt.Errorf("unsupported theme %q", t)
	}
	s.mu.Lock()
	s.theme = t
	s.mu.Unlock()
	return s.persist(themeKey, string(t))
}

func (s *State) persist(key, value string) error {
	if s.kv == nil {
		return nil
	}
	return s.kv.Set(key, value)
}

func validLanguage(l Language) bool {
	return l == LanguageEN || l == LanguageES
}

func validTheme(t Theme) bool {
	return t == ThemeSystem || t == ThemeLight || t == ThemeDark
}
