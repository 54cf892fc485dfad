package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by repositories that share one connection handle.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection scoped to ctx. A nil ctx yields the raw handle.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Bind returns a copy running on tx. A nil tx keeps the current handle.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// Count returns the number of model rows matching query.
func (b Base) Count(ctx context.Context, model any, query string, args ...any) (int64, error) {
	var n int64
	err := b.DB(ctx).Model(model).Where(query, args...).Count(&n).Error
	return n, err
}
