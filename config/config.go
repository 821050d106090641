// ════════════════════════════════════════════════════════════════════════════════════════════════
// 🛠️ RUNTIME CONFIGURATION
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: JSON Config Loader
//
// Description:
//   Runtime overrides for the compile-time defaults in constants. A config file is a single
//   JSON object; absent fields keep their defaults. Loaded once at startup, never on the
//   realtime path.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"rtwork/constants"
	"rtwork/ring"
	"rtwork/work"
)

// EnvPath names the environment variable consulted when no path is given.
const EnvPath = "RTWORK_CONFIG"

// ErrInvalid reports a config that fails validation.
var ErrInvalid = errors.New("config: invalid")

// Duration is a time.Duration that reads and writes as a Go duration string.
type Duration time.Duration

// MarshalJSON encodes d as "250ms".
func (d Duration) MarshalJSON() ([]byte, error) {
	return sonnet.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := sonnet.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%w: cycle_interval %q: %v", ErrInvalid, s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := sonnet.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: cycle_interval %s", ErrInvalid, b)
	}
	*d = Duration(n)
	return nil
}

// Config holds every runtime setting.
type Config struct {
	Name             string   `json:"name"`
	RequestCapacity  int      `json:"request_capacity"`
	ResponseCapacity int      `json:"response_capacity"`
	Core             int      `json:"core"`
	CycleInterval    Duration `json:"cycle_interval"`
	JournalPath      string   `json:"journal_path"`
	MetricsAddr      string   `json:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Name:             constants.DefaultSchedulerName,
		RequestCapacity:  constants.DefaultRequestCapacity,
		ResponseCapacity: constants.DefaultResponseCapacity,
		Core:             constants.NoCore,
		CycleInterval:    Duration(constants.DefaultCycleInterval),
		JournalPath:      ":memory:",
	}
}

// Load reads path over the defaults. An empty path falls back to $RTWORK_CONFIG,
// and to the defaults alone when that is unset too.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := sonnet.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.RequestCapacity <= 0 || c.RequestCapacity > ring.MaxCapacity {
		return fmt.Errorf("%w: request_capacity %d", ErrInvalid, c.RequestCapacity)
	}
	if c.ResponseCapacity <= 0 || c.ResponseCapacity > ring.MaxCapacity {
		return fmt.Errorf("%w: response_capacity %d", ErrInvalid, c.ResponseCapacity)
	}
	if c.Core < constants.NoCore {
		return fmt.Errorf("%w: core %d", ErrInvalid, c.Core)
	}
	if c.CycleInterval <= 0 {
		return fmt.Errorf("%w: cycle_interval %s", ErrInvalid, time.Duration(c.CycleInterval))
	}
	return nil
}

// Scheduler projects c onto a work.SchedulerConfig.
func (c Config) Scheduler() work.SchedulerConfig {
	return work.SchedulerConfig{
		Name:            c.Name,
		RequestCapacity: c.RequestCapacity,
		Core:            c.Core,
	}
}

// JSON renders c as indented JSON.
func (c Config) JSON() ([]byte, error) {
	return sonnet.MarshalIndent(c, "", "  ")
}
