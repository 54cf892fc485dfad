// Package sqlitetest opens isolated in-memory SQLite databases carrying the
// autocare schema for repository tests.
package sqlitetest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const idColumn = "id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16))))"

var schema = []string{
	`CREATE TABLE users (
  ` + idColumn + `,
  mobile_number TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL DEFAULT '',
  email TEXT,
  user_type TEXT NOT NULL DEFAULT 'customer',
  is_verified INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE service_areas (
  ` + idColumn + `,
  name TEXT NOT NULL UNIQUE,
  description TEXT,
  center_latitude REAL NOT NULL,
  center_longitude REAL NOT NULL,
  radius_km REAL NOT NULL DEFAULT 30,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE addresses (
  ` + idColumn + `,
  user_id TEXT NOT NULL,
  address_type TEXT NOT NULL DEFAULT 'home',
  address_line1 TEXT NOT NULL,
  address_line2 TEXT,
  landmark TEXT,
  city TEXT NOT NULL,
  state TEXT NOT NULL,
  pincode TEXT NOT NULL,
  latitude REAL,
  longitude REAL,
  is_default INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE UNIQUE INDEX ux_addresses_user_default ON addresses (user_id) WHERE is_default = 1`,
	`CREATE TABLE service_providers (
  ` + idColumn + `,
  user_id TEXT NOT NULL UNIQUE,
  employee_id TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  phone TEXT NOT NULL,
  email TEXT,
  specialization TEXT NOT NULL DEFAULT 'general',
  experience_years INTEGER NOT NULL DEFAULT 0,
  current_latitude REAL,
  current_longitude REAL,
  location_updated_at DATETIME,
  is_available INTEGER NOT NULL DEFAULT 0,
  verification_status TEXT NOT NULL DEFAULT 'pending',
  rating NUMERIC NOT NULL DEFAULT 0,
  total_jobs_completed INTEGER NOT NULL DEFAULT 0,
  total_earnings NUMERIC NOT NULL DEFAULT 0,
  claim_version INTEGER NOT NULL DEFAULT 0,
  last_assigned_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE provider_service_areas (
  provider_id TEXT NOT NULL,
  service_area_id TEXT NOT NULL,
  created_at DATETIME,
  PRIMARY KEY (provider_id, service_area_id)
)`,
	`CREATE TABLE provider_locations (
  ` + idColumn + `,
  provider_id TEXT NOT NULL,
  latitude REAL NOT NULL,
  longitude REAL NOT NULL,
  accuracy_m REAL,
  recorded_at DATETIME NOT NULL
)`,
	`CREATE TABLE bookings (
  ` + idColumn + `,
  user_id TEXT NOT NULL,
  vehicle_type TEXT NOT NULL,
  booking_date DATETIME NOT NULL,
  time_slot TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  notes TEXT,
  latitude REAL,
  longitude REAL,
  service_address TEXT NOT NULL,
  address_id TEXT,
  match_attempts INTEGER NOT NULL DEFAULT 0,
  last_match_attempt_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE UNIQUE INDEX ux_bookings_user_open_slot ON bookings (user_id, booking_date, time_slot)
  WHERE status IN ('pending', 'confirmed')`,
	`CREATE TABLE service_assignments (
  ` + idColumn + `,
  booking_id TEXT NOT NULL,
  provider_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'assigned',
  distance_km REAL,
  assigned_at DATETIME,
  accepted_at DATETIME,
  rejected_at DATETIME,
  started_at DATETIME,
  completed_at DATETIME,
  cancelled_at DATETIME,
  estimated_arrival DATETIME,
  actual_arrival DATETIME,
  provider_notes TEXT,
  rejection_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE UNIQUE INDEX ux_service_assignments_booking_active ON service_assignments (booking_id)
  WHERE status IN ('assigned', 'accepted', 'en_route', 'in_progress')`,
	`CREATE TABLE notifications (
  ` + idColumn + `,
  user_id TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  link TEXT,
  read_at DATETIME,
  created_at DATETIME
)`,
	`CREATE TABLE outbox_events (
  ` + idColumn + `,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
)`,
	`CREATE TABLE outbox_dlq (
  ` + idColumn + `,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
)`,
}

// Open returns a fresh database private to t with every table created.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// one connection keeps the shared in-memory database alive and serialises writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return conn
}
