package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jefjesuswt/accounts-server/internal/db"
	"github.com/jefjesuswt/accounts-server/internal/model"
)

func openTestDB(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("ACCOUNTS_TEST_DB")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("ACCOUNTS_TEST_DB or DATABASE_URL not set")
		return nil
	}
	ctx := context.Background()
	if err := db.RunMigrations(ctx, url); err != nil {
		t.Skipf("migrations failed: %v", err)
		return nil
	}
	pool, err := db.NewPool(ctx, url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
		return nil
	}
	return pool
}

func testUser(email string) model.User {
	now := time.Now().UTC()
	return model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "x",
		Name:         "Test User",
		PhoneNumber:  "+15550001111",
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserLifecycle(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()

	ctx := context.Background()
	store := NewStore(pool)
	email := "lifecycle." + uuid.NewString() + "@example.local"

	user := testUser(email)
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("create error: %v", err)
	}
	defer store.DeleteUser(ctx, user.ID)

	if err := store.CreateUser(ctx, testUser(email)); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	got, err := store.GetUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("get by email error: %v", err)
	}
	if got.ID != user.ID || got.EmailConfirmed {
		t.Fatalf("unexpected record: %+v", got)
	}

	confirmed, err := store.ConfirmEmail(ctx, user.ID)
	if err != nil {
		t.Fatalf("confirm error: %v", err)
	}
	if !confirmed.EmailConfirmed {
		t.Fatalf("expected confirmed account")
	}

	name := "Renamed"
	updated, err := store.UpdateUser(ctx, user.ID, UserUpdate{Name: &name})
	if err != nil {
		t.Fatalf("update error: %v", err)
	}
	if updated.Name != "Renamed" || updated.Email != email {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	ok, err := store.UpdatePassword(ctx, email, "y")
	if err != nil || !ok {
		t.Fatalf("password update failed: ok=%v err=%v", ok, err)
	}
	if ok, _ := store.UpdatePassword(ctx, "missing."+email, "y"); ok {
		t.Fatalf("expected no rows for unknown email")
	}

	deleted, err := store.DeleteUser(ctx, user.ID)
	if err != nil || !deleted {
		t.Fatalf("delete failed: deleted=%v err=%v", deleted, err)
	}
	if _, err := store.GetUserByID(ctx, user.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected ErrNoRows after delete, got %v", err)
	}
}
