package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/autocare/autocare-backend/internal/repo/sqlitetest"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
)

func seed(t *testing.T, repo Repository, userID uuid.UUID, createdAt time.Time, readAt *time.Time) *models.Notification {
	t.Helper()
	n := &models.Notification{
		UserID:    userID,
		Type:      enums.NotificationTypeBookingUpdate,
		Title:     "Booking received",
		Message:   "Your booking has been received.",
		ReadAt:    readAt,
		CreatedAt: createdAt,
	}
	require.NoError(t, repo.Create(context.Background(), n))
	return n
}

func TestRepositoryPagesNewestFirst(t *testing.T) {
	repo := NewRepository(sqlitetest.Open(t))
	ctx := context.Background()
	userID := uuid.New()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		ids = append(ids, seed(t, repo, userID, base.Add(time.Duration(i)*time.Minute), nil).ID)
	}
	seed(t, repo, uuid.New(), base, nil)

	page, cursor, err := repo.List(ctx, listNotificationsParams{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, ids[2], page[0].ID)
	require.Equal(t, ids[1], page[1].ID)
	require.NotNil(t, cursor)

	rest, cursor, err := repo.List(ctx, listNotificationsParams{UserID: userID, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, ids[0], rest[0].ID)
	require.Nil(t, cursor)
}

func TestRepositoryMarkReadScopesToUser(t *testing.T) {
	repo := NewRepository(sqlitetest.Open(t))
	ctx := context.Background()
	userID := uuid.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	n := seed(t, repo, userID, now, nil)
	seed(t, repo, userID, now.Add(time.Second), nil)

	other, err := repo.MarkRead(ctx, uuid.New(), n.ID, now)
	require.NoError(t, err)
	require.False(t, other.Found)

	mark, err := repo.MarkRead(ctx, userID, n.ID, now)
	require.NoError(t, err)
	require.True(t, mark.Updated)

	again, err := repo.MarkRead(ctx, userID, n.ID, now)
	require.NoError(t, err)
	require.True(t, again.Found)
	require.False(t, again.Updated)

	unread, err := repo.CountUnread(ctx, userID)
	require.NoError(t, err)
	require.EqualValues(t, 1, unread)

	onlyUnread, _, err := repo.List(ctx, listNotificationsParams{UserID: userID, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, onlyUnread, 1)

	updated, err := repo.MarkAllRead(ctx, userID, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, updated)
}

func TestRepositoryDeleteReadOlderThanKeepsUnread(t *testing.T) {
	repo := NewRepository(sqlitetest.Open(t))
	ctx := context.Background()
	userID := uuid.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	old := now.Add(-60 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	seed(t, repo, userID, old, &old)
	keptUnread := seed(t, repo, userID, old, nil)
	keptRecent := seed(t, repo, userID, recent, &recent)

	deleted, err := repo.DeleteReadOlderThan(ctx, nil, now.Add(-30*24*time.Hour), 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	rows, _, err := repo.List(ctx, listNotificationsParams{UserID: userID})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.ElementsMatch(t, []uuid.UUID{keptUnread.ID, keptRecent.ID}, []uuid.UUID{rows[0].ID, rows[1].ID})
}

func TestRepositoryDeleteReadOlderThanHonoursLimit(t *testing.T) {
	repo := NewRepository(sqlitetest.Open(t))
	ctx := context.Background()
	userID := uuid.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		readAt := now.Add(-time.Duration(40+i) * 24 * time.Hour)
		seed(t, repo, userID, readAt, &readAt)
	}
	cutoff := now.Add(-30 * 24 * time.Hour)

	deleted, err := repo.DeleteReadOlderThan(ctx, nil, cutoff, 2)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	deleted, err = repo.DeleteReadOlderThan(ctx, nil, cutoff, 10)
	require.NoError(t, err)
	require.EqualValues(t, 3, deleted)
}
