package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Error opening database: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func newTestUser(t *testing.T, s *Store, email string) User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), email, "hash")
	if err != nil {
		t.Fatalf("Error creating user: %v", err)
	}
	return user
}

func TestStore_InitSchemaIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.InitSchema(context.Background()); err != nil {
		t.Errorf("second InitSchema failed: %v", err)
	}
}

func TestStore_Users(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	user := newTestUser(t, s, "  Reader@Example.com ")
	if user.Email != "reader@example.com" {
		t.Errorf("expected a normalized email, got %q", user.Email)
	}

	found, err := s.FindUserByEmail(ctx, "READER@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != user.ID || found.PasswordHash != "hash" {
		t.Errorf("unexpected user %+v", found)
	}

	if _, err := s.CreateUser(ctx, "reader@example.com", "other"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if _, err := s.FindUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.UpdatePasswordHash(ctx, user.ID, "rehashed"); err != nil {
		t.Fatal(err)
	}
	found, _ = s.FindUserByID(ctx, user.ID)
	if found.PasswordHash != "rehashed" {
		t.Errorf("password hash was not updated")
	}
	if err := s.UpdatePasswordHash(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Sessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := newTestUser(t, s, "a@example.com")

	created := now()
	live := Session{ID: "live", UserID: user.ID, CreatedAt: created, ExpiresAt: created.Add(time.Hour)}
	stale := Session{ID: "stale", UserID: user.ID, CreatedAt: created, ExpiresAt: created.Add(-time.Hour)}
	for _, session := range []Session{live, stale} {
		if err := s.CreateSession(ctx, session); err != nil {
			t.Fatal(err)
		}
	}

	found, err := s.FindSession(ctx, "live")
	if err != nil {
		t.Fatal(err)
	}
	if found.UserID != user.ID || !found.ExpiresAt.Equal(live.ExpiresAt) {
		t.Errorf("unexpected session %+v", found)
	}

	n, err := s.DeleteExpiredSessions(ctx, created)
	if err != nil || n != 1 {
		t.Fatalf("expected one expired session removed, got %d (%v)", n, err)
	}
	if _, err := s.FindSession(ctx, "stale"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.DeleteSession(ctx, "live"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSession(ctx, "live"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Flipbooks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := newTestUser(t, s, "owner@example.com")

	flipbook := Flipbook{UserID: owner.ID, Title: "First", Pages: []string{"leaves/a.png", "leaves/b.png"}}
	if err := s.CreateFlipbook(ctx, &flipbook); err != nil {
		t.Fatal(err)
	}
	if flipbook.ID == "" || flipbook.PageCount != 2 || flipbook.Kind != KindBook || flipbook.CreatedAt.IsZero() {
		t.Errorf("unexpected created record %+v", flipbook)
	}

	found, err := s.FindFlipbook(ctx, flipbook.ID)
	if err != nil {
		t.Fatal(err)
	}
	if found.Title != "First" || len(found.Pages) != 2 || found.Pages[1] != "leaves/b.png" {
		t.Errorf("unexpected record %+v", found)
	}
	if !found.CreatedAt.Equal(flipbook.CreatedAt) {
		t.Errorf("created_at round trip: %v != %v", found.CreatedAt, flipbook.CreatedAt)
	}

	title := "Renamed"
	updated, err := s.UpdateFlipbook(ctx, flipbook.ID, FlipbookUpdate{Title: &title})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "Renamed" || updated.PageCount != 2 {
		t.Errorf("unexpected update result %+v", updated)
	}

	updated, err = s.UpdateFlipbook(ctx, flipbook.ID, FlipbookUpdate{Pages: []string{"leaves/c.png"}})
	if err != nil {
		t.Fatal(err)
	}
	if updated.PageCount != 1 || len(updated.Pages) != 1 || updated.Title != "Renamed" {
		t.Errorf("unexpected update result %+v", updated)
	}

	if _, err := s.UpdateFlipbook(ctx, "missing", FlipbookUpdate{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.DeleteFlipbook(ctx, flipbook.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FindFlipbook(ctx, flipbook.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_EmptyFlipbook(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := newTestUser(t, s, "owner@example.com")

	flipbook := Flipbook{UserID: owner.ID, Title: "Empty", Kind: KindStory}
	if err := s.CreateFlipbook(ctx, &flipbook); err != nil {
		t.Fatal(err)
	}
	found, err := s.FindFlipbook(ctx, flipbook.ID)
	if err != nil {
		t.Fatal(err)
	}
	if found.PageCount != 0 || found.Pages == nil || found.Kind != KindStory {
		t.Errorf("unexpected record %+v", found)
	}
}

func TestStore_CreateFlipbookUnknownOwner(t *testing.T) {
	s := newTestStore(t)
	flipbook := Flipbook{UserID: "ghost", Title: "Orphan"}
	err := s.CreateFlipbook(context.Background(), &flipbook)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if flipbook.ID != "" {
		t.Error("failed create should not assign an id")
	}
}

func TestStore_ListFlipbooks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := newTestUser(t, s, "alice@example.com")
	bob := newTestUser(t, s, "bob@example.com")

	for _, title := range []string{"one", "two", "three"} {
		if err := s.CreateFlipbook(ctx, &Flipbook{UserID: alice.ID, Title: title}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err := s.CreateFlipbook(ctx, &Flipbook{UserID: bob.ID, Title: "bob's"}); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListFlipbooks(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 flipbooks, got %d", len(list))
	}
	if list[0].Title != "three" || list[2].Title != "one" {
		t.Errorf("expected newest first, got %s, %s, %s", list[0].Title, list[1].Title, list[2].Title)
	}

	empty, err := s.ListFlipbooks(ctx, "nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("expected an empty list, got %v (%v)", empty, err)
	}
}
