// Package testing flips the binaries into test mode when imported for side
// effects from a _test.go file.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("PROVISION_TEST_MODE", "1")
		if os.Getenv("SUPABASE_URL") == "" {
			_ = os.Setenv("SUPABASE_URL", "http://127.0.0.1:0")
		}
		if os.Getenv("SUPABASE_SERVICE_ROLE_KEY") == "" {
			_ = os.Setenv("SUPABASE_SERVICE_ROLE_KEY", "test-service-role-key")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
