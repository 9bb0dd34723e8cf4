package cachestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/ninjabot/ninjaguard/automod/helpers"
)

const (
	memcachedPrefix = "ninjaguard/"
	// memcached treats larger relative expirations as unix timestamps
	memcachedMaxExpiry = 30*24*60*60 - 60
	memcachedMaxKeyLen = 250
)

// Cache on one or more memcached servers. Contexts are not honored by the memcache client; Timeout bounds each call instead.
type MemcachedCacheStore struct {
	Client *memcache.Client
	expiry int32
}

var _ CacheStore = (*MemcachedCacheStore)(nil)

func NewMemcachedCacheStore(ttl time.Duration, servers ...string) *MemcachedCacheStore {
	expiry := int32(ttl.Seconds())
	if ttl.Seconds() > memcachedMaxExpiry {
		expiry = memcachedMaxExpiry
	}
	client := memcache.New(servers...)
	client.Timeout = 500 * time.Millisecond
	return &MemcachedCacheStore{
		Client: client,
		expiry: expiry,
	}
}

// memcached keys are limited in length and may not contain whitespace or control characters
func memcachedKey(name, key string) string {
	k := memcachedPrefix + cacheKey(name, key)
	if len(k) > memcachedMaxKeyLen || strings.IndexFunc(k, func(r rune) bool { return r <= ' ' || r == 0x7f }) >= 0 {
		return memcachedPrefix + name + "/h/" + helpers.Fingerprint(key)
	}
	return k
}

func (s *MemcachedCacheStore) Get(ctx context.Context, name, key string) (string, bool, error) {
	item, err := s.Client.Get(memcachedKey(name, key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(item.Value), true, nil
}

func (s *MemcachedCacheStore) Set(ctx context.Context, name, key string, val string) error {
	return s.Client.Set(&memcache.Item{
		Key:        memcachedKey(name, key),
		Value:      []byte(val),
		Expiration: s.expiry,
	})
}

func (s *MemcachedCacheStore) Purge(ctx context.Context, name, key string) error {
	err := s.Client.Delete(memcachedKey(name, key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}
