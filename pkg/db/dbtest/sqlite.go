// Package dbtest opens throwaway sqlite databases carrying the settlement
// schema for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sellers (
  id TEXT PRIMARY KEY,
  display_name TEXT NOT NULL,
  phone TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS master_orders (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  tracking_id TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'pending',
  currency TEXT NOT NULL,
  total_amount INTEGER NOT NULL,
  seller_count INTEGER NOT NULL,
  is_split_order INTEGER NOT NULL,
  delivery_address TEXT,
  payment_method TEXT,
  cancel_reason TEXT,
  paid_at DATETIME,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS sub_orders (
  id TEXT PRIMARY KEY,
  master_order_id TEXT NOT NULL REFERENCES master_orders(id),
  seller_id TEXT NOT NULL,
  tracking_id TEXT NOT NULL UNIQUE,
  position INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  currency TEXT NOT NULL,
  subtotal_amount INTEGER NOT NULL,
  delivery_fee_amount INTEGER NOT NULL DEFAULT 0,
  total_amount INTEGER NOT NULL,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS sub_order_items (
  id TEXT PRIMARY KEY,
  sub_order_id TEXT NOT NULL REFERENCES sub_orders(id),
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price_amount INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  line_total_amount INTEGER NOT NULL,
  position INTEGER NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS payment_intents (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  method TEXT NOT NULL,
  amount INTEGER NOT NULL,
  currency TEXT NOT NULL,
  provider_reference TEXT,
  status TEXT NOT NULL DEFAULT 'processing',
  retry_count INTEGER NOT NULL DEFAULT 0,
  max_retries INTEGER NOT NULL DEFAULT 3,
  failure_reason TEXT,
  idempotency_key TEXT,
  resolved_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_intents_processing
  ON payment_intents(order_id) WHERE status = 'processing';`,
	`CREATE TABLE IF NOT EXISTS reserve_entries (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  intent_id TEXT,
  amount INTEGER NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  reason TEXT,
  released_at DATETIME,
  refunded_at DATETIME,
  frozen_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_reserve_entries_active
  ON reserve_entries(order_id) WHERE status IN ('held', 'frozen');`,
	`CREATE TABLE IF NOT EXISTS transaction_records (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  order_id TEXT,
  type TEXT NOT NULL,
  amount INTEGER NOT NULL,
  currency TEXT NOT NULL,
  reference TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_transaction_records_reference
  ON transaction_records(account_id, type, reference);`,
	`CREATE TABLE IF NOT EXISTS ledger_accounts (
  id TEXT PRIMARY KEY,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
}

// Open returns a fresh in-memory database with every settlement table.
// Each call gets its own named database and a single connection so
// transactions serialize the way row locks do in Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v\n%s", err, stmt)
		}
	}
	return conn
}
