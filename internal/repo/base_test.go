package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type widget struct {
	ID    uuid.UUID `gorm:"type:text;primaryKey"`
	Owner string
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&widget{}))
	return conn
}

func TestBaseDBBindsContext(t *testing.T) {
	base := NewBase(openDB(t))

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	scoped := base.DB(ctx)
	require.NotNil(t, scoped.Statement)
	require.Equal(t, ctx, scoped.Statement.Context)

	require.Same(t, base.db, base.DB(nil))
}

func TestBaseBindKeepsHandleOnNilTx(t *testing.T) {
	conn := openDB(t)
	base := NewBase(conn)
	require.Same(t, conn, base.Bind(nil).db)

	err := conn.Transaction(func(tx *gorm.DB) error {
		require.Same(t, tx, base.Bind(tx).db)
		return nil
	})
	require.NoError(t, err)
}

func TestBaseCount(t *testing.T) {
	conn := openDB(t)
	base := NewBase(conn)
	require.NoError(t, conn.Create(&[]widget{
		{ID: uuid.New(), Owner: "a"},
		{ID: uuid.New(), Owner: "a"},
		{ID: uuid.New(), Owner: "b"},
	}).Error)

	n, err := base.Count(context.Background(), &widget{}, "owner = ?", "a")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}
