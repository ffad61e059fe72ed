package testutil

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestTime is the fixed instant fixtures are built around.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// Clock is a manually advanced time source. Pass c.Now where a
// func() time.Time is expected.
type Clock struct {
	now time.Time
}

func NewClock(start time.Time) *Clock { return &Clock{now: start} }

func (c *Clock) Now() time.Time { return c.now }

func (c *Clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// TEST_REQUIRE_* turn a missing backing service into a failure instead of a skip.
func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }
