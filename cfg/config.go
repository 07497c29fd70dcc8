package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/maxpert/mirrordb/dialect"
	"github.com/maxpert/mirrordb/node"
	"github.com/rs/zerolog/log"
)

// StateStoreType defines where cluster state is persisted
type StateStoreType string

const (
	StatePebble StateStoreType = "pebble" // Embedded Pebble store on local disk
	StateMemory StateStoreType = "memory" // Process lifetime only
)

// ClusterConfiguration describes the logical cluster
type ClusterConfiguration struct {
	ID            string `toml:"id"`
	Dialect       string `toml:"dialect"`        // Lock-key pattern: identity, sequence-PostgreSQL, ...
	ValidationSQL string `toml:"validation_sql"` // Statement executed by liveness checks
	Balancer      string `toml:"balancer"`       // round-robin, random, weighted-random, load
}

// ExecutorConfiguration sizes the fan-out worker pool
type ExecutorConfiguration struct {
	MinWorkers     int `toml:"min_workers"`
	MaxWorkers     int `toml:"max_workers"`
	MaxIdleSeconds int `toml:"max_idle_seconds"` // Idle time before a worker above MinWorkers exits
}

// DatabaseConfiguration describes one backend database
type DatabaseConfiguration struct {
	ID     string `toml:"id"`
	Weight int    `toml:"weight"`
	Driver string `toml:"driver"` // sqlite3, mysql or pgx
	DSN    string `toml:"dsn"`
}

// StateConfiguration controls where the active set is persisted
type StateConfiguration struct {
	Store StateStoreType `toml:"store"`
	Path  string         `toml:"path"`
}

// HealthConfiguration controls background failure detection
type HealthConfiguration struct {
	Enabled     bool `toml:"enabled"`
	IntervalMS  int  `toml:"interval_ms"`
	TimeoutMS   int  `toml:"timeout_ms"`   // Per liveness check
	MaxFailures int  `toml:"max_failures"` // Consecutive failures before deactivation
}

// SinkConfiguration describes one membership event sink
type SinkConfiguration struct {
	Name      string   `toml:"name"`
	Type      string   `toml:"type"` // nats or kafka
	NatsURL   string   `toml:"nats_url"`
	Brokers   []string `toml:"brokers"`
	Topic     string   `toml:"topic"`
	Databases []string `toml:"databases"` // Glob patterns, empty matches all
}

// EventsConfiguration controls membership event publishing
type EventsConfiguration struct {
	Sinks []SinkConfiguration `toml:"sink"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// AdminConfiguration for the management HTTP endpoint
type AdminConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
	Secret  string `toml:"secret"` // Empty disables authentication
}

// Configuration is the main configuration structure
type Configuration struct {
	InstanceID uint64 `toml:"instance_id"`

	Cluster    ClusterConfiguration    `toml:"cluster"`
	Executor   ExecutorConfiguration   `toml:"executor"`
	Databases  []DatabaseConfiguration `toml:"database"`
	State      StateConfiguration      `toml:"state"`
	Health     HealthConfiguration     `toml:"health"`
	Events     EventsConfiguration     `toml:"events"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Admin      AdminConfiguration      `toml:"admin"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	StatePathFlag  = flag.String("state-path", "", "State directory (overrides config)")
	AdminPortFlag  = flag.Int("admin-port", 0, "Admin HTTP port (overrides config)")
)

// Default configuration
var Config = &Configuration{
	InstanceID: 0, // Auto-generate

	Cluster: ClusterConfiguration{
		ID:            "default",
		Dialect:       "none",
		ValidationSQL: "SELECT 1",
		Balancer:      "round-robin",
	},

	Executor: ExecutorConfiguration{
		MinWorkers:     0,
		MaxWorkers:     64,
		MaxIdleSeconds: 60,
	},

	State: StateConfiguration{
		Store: StatePebble,
		Path:  "./mirrordb-state",
	},

	Health: HealthConfiguration{
		Enabled:     true,
		IntervalMS:  5000,
		TimeoutMS:   2000,
		MaxFailures: 3,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
	},

	Admin: AdminConfiguration{
		Enabled: true,
		Address: "0.0.0.0",
		Port:    8090,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	if *StatePathFlag != "" {
		Config.State.Path = *StatePathFlag
	}
	if *AdminPortFlag != 0 {
		Config.Admin.Port = *AdminPortFlag
	}

	if Config.InstanceID == 0 {
		var err error
		Config.InstanceID, err = generateInstanceID()
		if err != nil {
			return fmt.Errorf("failed to generate instance ID: %w", err)
		}
		log.Info().Uint64("instance_id", Config.InstanceID).Msg("Auto-generated instance ID")
	}

	if Config.State.Store == StatePebble {
		if err := os.MkdirAll(Config.State.Path, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	return nil
}

// LoadString decodes configuration from TOML text on top of the current defaults
func LoadString(data string) error {
	if _, err := toml.Decode(data, Config); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// generateInstanceID derives a stable id for this process host from the machine ID
func generateInstanceID() (uint64, error) {
	id, err := machineid.ProtectedID("mirrordb")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// InstanceLabel returns the instance id formatted for metric labels
func InstanceLabel() string {
	return strconv.FormatUint(Config.InstanceID, 10)
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Cluster.ID == "" {
		return fmt.Errorf("cluster id must not be empty")
	}

	if Config.Cluster.ValidationSQL == "" {
		return fmt.Errorf("cluster validation_sql must not be empty")
	}

	if _, err := dialect.Parse(Config.Cluster.Dialect); err != nil {
		return err
	}

	validBalancers := map[string]bool{
		"round-robin": true, "random": true, "weighted-random": true, "load": true,
	}
	if !validBalancers[Config.Cluster.Balancer] {
		return fmt.Errorf("invalid balancer: %s", Config.Cluster.Balancer)
	}

	if Config.Executor.MinWorkers < 0 {
		return fmt.Errorf("executor min workers must be >= 0")
	}

	if Config.Executor.MaxWorkers < 1 {
		return fmt.Errorf("executor max workers must be >= 1")
	}

	if Config.Executor.MinWorkers > Config.Executor.MaxWorkers {
		return fmt.Errorf("executor min workers (%d) exceeds max workers (%d)",
			Config.Executor.MinWorkers, Config.Executor.MaxWorkers)
	}

	if Config.Executor.MaxIdleSeconds < 0 {
		return fmt.Errorf("executor max idle must be >= 0")
	}

	if len(Config.Databases) == 0 {
		return fmt.Errorf("at least one database must be configured")
	}

	seen := make(map[string]bool, len(Config.Databases))
	for i, db := range Config.Databases {
		if db.ID == "" {
			return fmt.Errorf("database %d: id must not be empty", i)
		}
		if err := node.ValidateID(db.ID); err != nil {
			return fmt.Errorf("database %d: %w", i, err)
		}
		if seen[db.ID] {
			return fmt.Errorf("duplicate database id: %s", db.ID)
		}
		seen[db.ID] = true

		if db.Weight < 0 {
			return fmt.Errorf("database %s: weight must be >= 0", db.ID)
		}
		if db.Driver == "" {
			return fmt.Errorf("database %s: driver must not be empty", db.ID)
		}
	}

	switch Config.State.Store {
	case StatePebble:
		if Config.State.Path == "" {
			return fmt.Errorf("state path is required for pebble store")
		}
	case StateMemory:
	default:
		return fmt.Errorf("invalid state store: %s", Config.State.Store)
	}

	if Config.Health.Enabled {
		if Config.Health.IntervalMS < 1 {
			return fmt.Errorf("health interval must be >= 1ms")
		}
		if Config.Health.TimeoutMS < 1 {
			return fmt.Errorf("health timeout must be >= 1ms")
		}
		if Config.Health.MaxFailures < 1 {
			return fmt.Errorf("health max failures must be >= 1")
		}
	}

	for _, sink := range Config.Events.Sinks {
		switch sink.Type {
		case "nats":
			if sink.NatsURL == "" {
				return fmt.Errorf("sink %s: nats sink requires nats_url", sink.Name)
			}
		case "kafka":
			if len(sink.Brokers) == 0 {
				return fmt.Errorf("sink %s: kafka sink requires brokers", sink.Name)
			}
		default:
			return fmt.Errorf("sink %s: invalid type %q", sink.Name, sink.Type)
		}
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	return nil
}

// IsAdminAuthEnabled returns true if the admin endpoint requires a secret
func IsAdminAuthEnabled() bool {
	return Config.Admin.Secret != ""
}
