package repo

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-app-core/pkg/database"
	"github.com/ovaphlow/pitchfork/service-app-core/pkg/utilities"
)

func TestBuildUpdate(t *testing.T) {
	empty := ""
	q, args := buildUpdate("u1", entity.Patch{
		Name:                 entity.String("Ana"),
		OnboardingCompleted:  entity.Bool(true),
		ExpoPushToken:        &empty,
		NotificationsEnabled: entity.Bool(false),
	})
	want := "UPDATE users SET expo_push_token = $1, name = $2, notifications_enabled = $3, " +
		"onboarding_completed = onboarding_completed OR $4, updated_at = NOW() WHERE id=$5 RETURNING "
	if !strings.HasPrefix(q, want) {
		t.Fatalf("unexpected query:\n%s", q)
	}
	if len(args) != 5 {
		t.Fatalf("expected 5 args, got %d", len(args))
	}
	if args[0] != nil {
		t.Fatalf("empty token should be written as NULL, got %v", args[0])
	}
	if args[4] != "u1" {
		t.Fatalf("last arg should be the id, got %v", args[4])
	}
}

func TestBuildUpdateEmpty(t *testing.T) {
	if q, _ := buildUpdate("u1", entity.Patch{}); q != "" {
		t.Fatalf("expected no statement for an empty patch, got %q", q)
	}
}

// TestUserRepoLifecycle runs against a real database when TEST_DATABASE_URL is set.
func TestUserRepoLifecycle(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	cfg := database.ConfigFromEnv()
	cfg.DSN = dsn
	db, err := database.Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := NewUserRepo(db)
	if err := r.EnsureTable(ctx); err != nil {
		t.Fatalf("ensure table: %v", err)
	}

	u := &entity.User{AuthID: utilities.NewUUID(), Email: "repo@example.com", Name: entity.String("Ana")}
	if err := r.Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	defer r.Delete(context.Background(), u.ID)
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps to be filled: %+v", u)
	}

	got, err := r.GetByAuthID(ctx, u.AuthID)
	if err != nil {
		t.Fatalf("get by auth id: %v", err)
	}
	if got.ID != u.ID || got.OnboardingCompleted {
		t.Fatalf("unexpected row: %+v", got)
	}

	done, err := r.Update(ctx, u.ID, entity.Patch{OnboardingCompleted: entity.Bool(true)})
	if err != nil {
		t.Fatalf("complete onboarding: %v", err)
	}
	if !done.OnboardingCompleted {
		t.Fatalf("onboarding flag not set")
	}
	again, err := r.Update(ctx, u.ID, entity.Patch{OnboardingCompleted: entity.Bool(false)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !again.OnboardingCompleted {
		t.Fatalf("onboarding flag must not revert")
	}

	if err := r.Delete(ctx, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetByID(ctx, u.ID); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
