package repositories_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := repositories.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	return db
}

func strPtr(s string) *string { return &s }

func TestUserRepositories(t *testing.T) {
	ctx := context.Background()
	impls := map[string]repositories.UserRepository{
		"gorm": repositories.NewGORMUserRepository(openTestDB(t)),
		"mock": repositories.NewMockUserRepository(),
	}

	for name, repo := range impls {
		t.Run(name, func(t *testing.T) {
			user := &models.User{Email: strPtr("ana@example.com"), Password: "hash"}
			require.NoError(t, repo.Create(ctx, user))
			assert.NotEmpty(t, user.ID)

			err := repo.Create(ctx, &models.User{Email: strPtr("ana@example.com")})
			assert.ErrorIs(t, err, repositories.ErrConflict)

			phoneUser := &models.User{Phone: strPtr("+33612345678")}
			require.NoError(t, repo.Create(ctx, phoneUser))

			got, err := repo.GetByEmail(ctx, "ana@example.com")
			require.NoError(t, err)
			assert.Equal(t, user.ID, got.ID)
			assert.False(t, got.Confirmed())

			got, err = repo.GetByPhone(ctx, "+33612345678")
			require.NoError(t, err)
			assert.Equal(t, phoneUser.ID, got.ID)

			_, err = repo.GetByEmail(ctx, "nobody@example.com")
			assert.ErrorIs(t, err, repositories.ErrNotFound)

			at := time.Now().UTC().Truncate(time.Second)
			require.NoError(t, repo.Confirm(ctx, user.ID, at))
			require.NoError(t, repo.Confirm(ctx, user.ID, at.Add(time.Hour)))
			got, err = repo.GetByID(ctx, user.ID)
			require.NoError(t, err)
			require.True(t, got.Confirmed())
			assert.True(t, at.Equal(got.ConfirmedAt.UTC()))

			require.NoError(t, repo.UpdatePassword(ctx, user.ID, "new-hash"))
			got, _ = repo.GetByID(ctx, user.ID)
			assert.Equal(t, "new-hash", got.Password)

			assert.ErrorIs(t, repo.UpdatePassword(ctx, "missing", "x"), repositories.ErrNotFound)
		})
	}
}

func TestOTPRepositories(t *testing.T) {
	ctx := context.Background()
	impls := map[string]repositories.OTPRepository{
		"gorm": repositories.NewGORMOTPRepository(openTestDB(t)),
		"mock": repositories.NewMockOTPRepository(),
	}
	now := time.Now()

	for name, repo := range impls {
		t.Run(name, func(t *testing.T) {
			expired := &models.OTPChallenge{Phone: "+33600000000", CodeHash: "a", ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-10 * time.Minute)}
			older := &models.OTPChallenge{Phone: "+33600000000", CodeHash: "b", ExpiresAt: now.Add(time.Minute), CreatedAt: now.Add(-2 * time.Minute)}
			newer := &models.OTPChallenge{Phone: "+33600000000", CodeHash: "c", ExpiresAt: now.Add(5 * time.Minute), CreatedAt: now.Add(-time.Minute)}
			for _, c := range []*models.OTPChallenge{expired, older, newer} {
				require.NoError(t, repo.Create(ctx, c))
			}

			active, err := repo.Active(ctx, "+33600000000", now)
			require.NoError(t, err)
			assert.Equal(t, newer.ID, active.ID)

			require.NoError(t, repo.Consume(ctx, newer.ID, now))
			assert.ErrorIs(t, repo.Consume(ctx, newer.ID, now), repositories.ErrNotFound)

			active, err = repo.Active(ctx, "+33600000000", now)
			require.NoError(t, err)
			assert.Equal(t, older.ID, active.ID)

			_, err = repo.Active(ctx, "+33611111111", now)
			assert.ErrorIs(t, err, repositories.ErrNotFound)

			n, err := repo.IncrementAttempts(ctx, older.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			n, err = repo.IncrementAttempts(ctx, older.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			active, err = repo.Active(ctx, "+33600000000", now)
			require.NoError(t, err)
			assert.Equal(t, 2, active.Attempts)

			_, err = repo.IncrementAttempts(ctx, "missing")
			assert.ErrorIs(t, err, repositories.ErrNotFound)
		})
	}
}

func TestGORMTable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	posts := repositories.NewGORMTable[models.CommunityPost](db)

	first := &models.CommunityPost{Title: "Orge", Content: "Germination en 7 jours", Category: "tips"}
	first.SetOwner("user-1")
	require.NoError(t, posts.Insert(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := &models.CommunityPost{Title: "Maïs", Content: "Moisissure au bac 3", Category: "help"}
	second.SetOwner("user-2")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, posts.Insert(ctx, second))

	all, err := posts.List(ctx, repositories.Query{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first by default")

	byUser, err := posts.List(ctx, repositories.Query{Filters: map[string]any{"user_id": "user-1"}})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "Orge", byUser[0].Title)

	asc, err := posts.List(ctx, repositories.Query{OrderBy: "title", Limit: 1})
	require.NoError(t, err)
	require.Len(t, asc, 1)
	assert.Equal(t, "Maïs", asc[0].Title)

	_, err = posts.List(ctx, repositories.Query{Filters: map[string]any{"title; drop table": "x"}})
	assert.Error(t, err)

	dup := &models.CommunityPost{Title: "dup", Content: "dup"}
	dup.ID = first.ID
	assert.ErrorIs(t, posts.Insert(ctx, dup), repositories.ErrConflict)

	got, err := posts.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Orge", got.Title)

	_, err = posts.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	require.NoError(t, posts.UpdateColumns(ctx, first.ID, map[string]any{"category": "archive"}))
	got, _ = posts.GetByID(ctx, first.ID)
	assert.Equal(t, "archive", got.Category)
	assert.ErrorIs(t, posts.UpdateColumns(ctx, "missing", map[string]any{"category": "x"}), repositories.ErrNotFound)
}

func TestGORMTable_UpsertProfile(t *testing.T) {
	ctx := context.Background()
	profiles := repositories.NewGORMTable[models.Profile](openTestDB(t))

	profile := &models.Profile{ID: "user-1", Username: "ana", Phone: "+33612345678"}
	require.NoError(t, profiles.Insert(ctx, profile))
	assert.ErrorIs(t, profiles.Insert(ctx, &models.Profile{ID: "user-1", Username: "again"}), repositories.ErrConflict)

	require.NoError(t, profiles.Upsert(ctx, &models.Profile{ID: "user-1", Username: "ana-b", Phone: "+33612345678", Location: "Rennes"}))
	got, err := profiles.GetByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ana-b", got.Username)
	assert.Equal(t, "Rennes", got.Location)
}

func TestLikeUniquePerPostAndUser(t *testing.T) {
	ctx := context.Background()
	likes := repositories.NewGORMTable[models.Like](openTestDB(t))

	like := &models.Like{PostID: "post-1"}
	like.SetOwner("user-1")
	require.NoError(t, likes.Insert(ctx, like))

	again := &models.Like{PostID: "post-1"}
	again.SetOwner("user-1")
	assert.ErrorIs(t, likes.Insert(ctx, again), repositories.ErrConflict)
}
