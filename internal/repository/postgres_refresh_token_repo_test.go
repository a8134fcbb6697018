package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/runTech0704/Study-Savings/internal/model"
)

func TestPostgresRefreshTokenRepo_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostgresRefreshTokenRepo(db)
	ctx := context.Background()

	u := createTestUser(t, db, "alice")
	now := time.Now().UTC()

	live := &model.RefreshToken{ID: uuid.NewString(), UserID: u.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	expired := &model.RefreshToken{ID: uuid.NewString(), UserID: u.ID, ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour)}
	for _, tok := range []*model.RefreshToken{live, expired} {
		if err := repo.Create(ctx, tok); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	if got, err := repo.FindByID(ctx, live.ID); err != nil || got == nil || got.UserID != u.ID {
		t.Errorf("FindByID(live) = (%+v, %v)", got, err)
	}
	if got, err := repo.FindByID(ctx, expired.ID); err != nil || got != nil {
		t.Errorf("FindByID(expired) = (%+v, %v), want (nil, nil)", got, err)
	}

	n, err := repo.DeleteExpired(ctx)
	if err != nil || n != 1 {
		t.Errorf("DeleteExpired = (%d, %v), want 1", n, err)
	}

	if ok, err := repo.DeleteByID(ctx, live.ID); err != nil || !ok {
		t.Errorf("DeleteByID = (%v, %v), want true", ok, err)
	}
	if ok, _ := repo.DeleteByID(ctx, live.ID); ok {
		t.Error("second DeleteByID should report false")
	}
}
