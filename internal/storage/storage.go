// Package storage implements shared, expiring key/value stores used as the
// second cache level behind the in-process memo.
package storage

import (
	"context"
	"time"
)

// Store is a byte-valued key/value store with per-entry expiry. A ttl of
// zero or less keeps the entry until it is overwritten.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Redis)(nil)
)
