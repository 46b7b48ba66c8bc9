package service

import (
	"sort"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newSecurityRedis starts an in-process redis for the store tests. Both are closed when
// the test ends.
func newSecurityRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{srv.Addr()}})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

// keysUnder lists the keys a store wrote below prefix, sorted.
func keysUnder(srv *miniredis.Miniredis, prefix string) []string {
	var out []string
	for _, k := range srv.Keys() {
		if strings.HasPrefix(k, prefix+":") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
