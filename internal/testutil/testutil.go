// Package testutil holds shared test helpers: request builders, a fixed clock origin and
// connections to the Postgres and Redis instances used by the infra-backed store tests.
//
// Infra-backed helpers skip the calling test when the service is unreachable. Set
// TEST_REQUIRE_DB, TEST_REQUIRE_REDIS or TEST_REQUIRE_INFRA to turn the skip into a failure.
package testutil

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestTime returns the fixed origin used by fake clocks in tests.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// RunConcurrent runs every function at once, releasing them together, and returns their errors
// in argument order.
func RunConcurrent(funcs ...func() error) []error {
	start := make(chan struct{})
	errs := make([]error, len(funcs))
	var wg sync.WaitGroup
	for i, fn := range funcs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = fn()
		}()
	}
	close(start)
	wg.Wait()
	return errs
}

// unavailable skips t, or fails it when the matching TEST_REQUIRE_* variable is set.
func unavailable(t testing.TB, required bool, format string, args ...any) {
	t.Helper()
	if required {
		t.Fatalf(format, args...)
	}
	t.Skipf(format, args...)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }
