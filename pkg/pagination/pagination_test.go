package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC), ID: uuid.New()}
	encoded := EncodeCursor(in)
	require.NotContains(t, encoded, "+")
	require.NotContains(t, encoded, "/")
	require.NotContains(t, encoded, "=")

	out, err := ParseCursor(encoded)
	require.NoError(t, err)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	c, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)

	for _, raw := range []string{"%%%", rawCursor("no-separator"), rawCursor("yesterday|" + uuid.NewString()), rawCursor(time.Now().Format(time.RFC3339Nano) + "|nope")} {
		_, err := ParseCursor(raw)
		require.Error(t, err, raw)
	}
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 7, NormalizeLimit(7))
	require.Equal(t, 8, LimitWithBuffer(7))
}

type row struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time
}

func TestKeysetWalksAllPagesWithoutOverlap(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&row{}))

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var all []row
	for i := 0; i < 7; i++ {
		// pairs share a timestamp so the id tie breaker matters
		all = append(all, row{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i/2) * time.Minute)})
	}
	require.NoError(t, db.Create(&all).Error)

	seen := map[uuid.UUID]bool{}
	var cursor *Cursor
	pages := 0
	for {
		var rows []row
		require.NoError(t, db.Model(&row{}).Scopes(Keyset(cursor, 3)).Find(&rows).Error)
		page, next := Trim(rows, 3, func(r row) Cursor { return Cursor{CreatedAt: r.CreatedAt, ID: r.ID} })
		pages++
		for _, r := range page {
			require.False(t, seen[r.ID], "row served twice")
			seen[r.ID] = true
		}
		if next == nil {
			break
		}
		cursor = next
	}
	require.Equal(t, 3, pages)
	require.Len(t, seen, 7)
}

func rawCursor(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
