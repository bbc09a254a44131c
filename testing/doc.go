// Package testing provides test utilities for the changefeed library.
//
// This package offers helpers for setting up test environments backed by real
// protocol implementations running in-process, in the spirit of net/http/httptest.
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - CreateJetStreamKV: Convenience wrapper for KV bucket creation
//   - StartEmbeddedRedis: miniredis server plus a go-redis client
//   - NewTestLogger: types.Logger writing through t.Logf
//
// Example usage:
//
//	import (
//	    "testing"
//	    cftest "github.com/arloliu/changefeed/testing"
//	)
//
//	func TestMyHandler(t *testing.T) {
//	    _, nc := cftest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
