package credstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
)

func TestStoreRoundTrip(t *testing.T) {
	for name, kv := range map[string]KV{
		"memory": NewMemoryKV(),
		"file":   mustFileKV(t, filepath.Join(t.TempDir(), "nested", "store.json")),
	} {
		t.Run(name, func(t *testing.T) {
			s := New(kv, nil)
			if s.User() != nil || s.HasSession() {
				t.Fatalf("fresh store should be empty")
			}

			u := &entity.User{ID: "u1", AuthID: "a1", Email: "a@x.com", OnboardingCompleted: true}
			if err := s.SaveUser(u); err != nil {
				t.Fatalf("save user: %v", err)
			}
			if err := s.SaveSession(true); err != nil {
				t.Fatalf("save session: %v", err)
			}
			if err := kv.Set("@app:language", "es"); err != nil {
				t.Fatalf("set: %v", err)
			}

			got := s.User()
			if got == nil || got.ID != "u1" || !got.OnboardingCompleted {
				t.Fatalf("unexpected cached user %+v", got)
			}
			if !s.HasSession() {
				t.Fatalf("session flag not saved")
			}

			if err := s.Clear(); err != nil {
				t.Fatalf("clear: %v", err)
			}
			if s.User() != nil || s.HasSession() {
				t.Fatalf("clear must remove user and session flag")
			}
			if v, ok, _ := kv.Get("@app:language"); !ok || v != "es" {
				t.Fatalf("clear must leave other keys alone")
			}
		})
	}
}

func TestFileKVCorruptFileReadsAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := New(mustFileKV(t, path), nil)
	if s.User() != nil {
		t.Fatalf("corrupt store should read as empty")
	}
	if s.HasSession() {
		t.Fatalf("corrupt store should read as signed out")
	}
}

func mustFileKV(t *testing.T, path string) *FileKV {
	t.Helper()
	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("new file kv: %v", err)
	}
	return kv
}
