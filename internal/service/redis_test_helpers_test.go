package service

import (
	"sort"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newRedisNegativeStoreForTest returns a negative lookup store backed by an
// in-process Redis. Retries are off so a broken command fails the test at once.
func newRedisNegativeStoreForTest(t *testing.T, prefix string) (*miniredis.Miniredis, *RedisNegativeLookupCacheStore) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return server, NewRedisNegativeLookupCacheStore(client, prefix)
}

// negativeDataKeys lists the cached "not found" entries, skipping the
// per-namespace index sets.
func negativeDataKeys(server *miniredis.Miniredis, prefix string) []string {
	var keys []string
	for _, k := range server.Keys() {
		if strings.HasPrefix(k, prefix+":data:") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
