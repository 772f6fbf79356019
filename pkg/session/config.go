package session

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the session lifecycle settings populated from environment
// variables for deployment convenience. Functional options take precedence
// when both are used.
type Config struct {
	// Idle timeout for newly created sessions. Negative means never expire.
	MaxInactiveInterval time.Duration `env:"SESSION_MAX_INACTIVE_INTERVAL" envDefault:"30m"`

	// When attribute accesses are recorded in the delta: on_set, on_get, always.
	SaveMode SaveMode `env:"SESSION_SAVE_MODE" envDefault:"on_set"`

	// When the delta is pushed to the store: on_save, immediate.
	FlushMode FlushMode `env:"SESSION_FLUSH_MODE" envDefault:"on_save"`

	// Sweeper schedule: a cron expression or an @every interval.
	CleanupSchedule string `env:"SESSION_CLEANUP_SCHEDULE" envDefault:"@every 1m"`
}

// LoadConfig parses the configuration from environment variables.
func LoadConfig() (Config, error) {
	return env.ParseAs[Config]()
}
