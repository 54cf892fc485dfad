package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir is the migrations directory relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

const versionLayout = "20060102150405"

// Applied describes one migration that ran.
type Applied struct {
	Version   int64
	Path      string
	Direction string
	Duration  time.Duration
	Empty     bool
}

// Status is the state of one known migration.
type Status struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// Migrator runs goose migrations from a filesystem against Postgres. It uses
// a goose provider so nothing touches goose's package-level state.
type Migrator struct {
	provider *goose.Provider
}

func New(db *sql.DB, fsys fs.FS) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if fsys == nil {
		return nil, errors.New("migrations filesystem is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

// NewEmbedded reads the migrations compiled into the binary.
func NewEmbedded(db *sql.DB) (*Migrator, error) {
	sub, err := fs.Sub(Embedded, embeddedDir)
	if err != nil {
		return nil, err
	}
	return New(db, sub)
}

// FromDir reads migrations from dir on disk.
func FromDir(db *sql.DB, dir string) (*Migrator, error) {
	if dir == "" {
		return nil, errors.New("dir is required")
	}
	return New(db, os.DirFS(dir))
}

func (m *Migrator) Up(ctx context.Context) ([]Applied, error) {
	results, err := m.provider.Up(ctx)
	return toApplied(results), wrapGoose("up", err)
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) ([]Applied, error) {
	result, err := m.provider.Down(ctx)
	if result == nil {
		return nil, wrapGoose("down", err)
	}
	return toApplied([]*goose.MigrationResult{result}), wrapGoose("down", err)
}

// To migrates up or down until target is the current version.
func (m *Migrator) To(ctx context.Context, target int64) ([]Applied, error) {
	current, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case current == target:
		return nil, nil
	case current < target:
		results, err := m.provider.UpTo(ctx, target)
		return toApplied(results), wrapGoose(fmt.Sprintf("up-to %d", target), err)
	default:
		results, err := m.provider.DownTo(ctx, target)
		return toApplied(results), wrapGoose(fmt.Sprintf("down-to %d", target), err)
	}
}

func (m *Migrator) Version(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	return v, wrapGoose("version", err)
}

func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	rows, err := m.provider.Status(ctx)
	if err != nil {
		return nil, wrapGoose("status", err)
	}
	out := make([]Status, 0, len(rows))
	for _, row := range rows {
		st := Status{Applied: row.State == goose.StateApplied, AppliedAt: row.AppliedAt}
		if row.Source != nil {
			st.Version = row.Source.Version
			st.Path = row.Source.Path
		}
		out = append(out, st)
	}
	return out, nil
}

// ParseVersion accepts a YYYYMMDDHHMMSS migration version.
func ParseVersion(raw string) (int64, error) {
	if _, err := time.Parse(versionLayout, raw); err != nil {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", raw)
	}
	return strconv.ParseInt(raw, 10, 64)
}

func toApplied(results []*goose.MigrationResult) []Applied {
	out := make([]Applied, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		a := Applied{Direction: r.Direction, Duration: r.Duration, Empty: r.Empty}
		if r.Source != nil {
			a.Version = r.Source.Version
			a.Path = r.Source.Path
		}
		out = append(out, a)
	}
	return out
}

func wrapGoose(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
