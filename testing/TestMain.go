package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("SASSY_TEST_MODE", "1")
		if os.Getenv("SECRET_COOKIE_PASSWORD") == "" {
			_ = os.Setenv("SECRET_COOKIE_PASSWORD", "test-secret-password-32-characters")
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
