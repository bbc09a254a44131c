package testing

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

// StartEmbeddedRedis starts an in-process miniredis server and returns a client for it.
//
// Both are shut down automatically when the test completes.
//
// Example:
//
//	func TestRedisStore(t *testing.T) {
//	    mr, rdb := cftest.StartEmbeddedRedis(t)
//	    client := redisstore.New(rdb, redisstore.Config{})
//	    mr.FastForward(time.Minute)
//	}
func StartEmbeddedRedis(t testing.TB) (*miniredis.Miniredis, goredis.UniversalClient) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return mr, rdb
}
