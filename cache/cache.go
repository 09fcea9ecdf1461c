// Package cache defines a small key value cache with per item TTL.
package cache

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("cache: key not found")

type Cache[V any] interface {
	Set(key string, value V, ttl time.Duration) error
	Get(key string) (V, error)
	Remove(key ...string) error
	Pop(key string) (V, error)
	Keys(prefix string) []string
}
