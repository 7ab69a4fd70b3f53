// Package kv is the durable key-value layer under the store. Backends persist
// raw bytes; Storage adds JSON encoding, graceful degradation and a single
// change-notification stream covering writes from this process and from any
// other process sharing the same backend.
package kv

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is reported (to logs and metrics) when an encoded value is
// larger than the configured quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Backend is a durable byte store. Get reports a missing key as (nil, false,
// nil); errors are reserved for backend failures.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Notifier is implemented by backends that can tell other contexts sharing
// the same storage about writes.
type Notifier interface {
	Publish(ctx context.Context, c Change) error
	// Listen delivers changes published by any context until ctx is done. It
	// returns once the subscription is established.
	Listen(ctx context.Context, fn func(Change)) error
}

// Change announces that a key was written or removed.
type Change struct {
	Key    string `json:"key"`
	Source string `json:"source"`
	// Remote is true when the write happened in another Storage instance.
	Remote bool `json:"-"`
}

// Discard is a backend that stores nothing. Reads are always absent and writes
// always succeed.
type Discard struct{}

func (Discard) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Discard) Set(context.Context, string, []byte) error         { return nil }
func (Discard) Delete(context.Context, string) error              { return nil }
func (Discard) Close() error                                      { return nil }
