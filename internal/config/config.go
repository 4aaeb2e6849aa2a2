// Package config loads provisioner settings from an optional YAML file,
// an optional .env file and VESTAPROV_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/shawn/vesta-provisioner/internal/servers"
	"github.com/spf13/viper"
)

const envPrefix = "VESTAPROV"

type Config struct {
	Port      string
	LocalMode bool
	Namespace string
	LeaderID  string

	DynamoTable    string
	DynamoEndpoint string
	RedisAddr      string

	Servers   []servers.Server
	Provision Provision
	CallLog   CallLog

	SecretKey string
	JWTSecret string

	ReconcileInterval time.Duration
	UsageCacheTTL     time.Duration
	LockTTL           time.Duration
	// UsernameReservationTTL bounds how long a probed username stays claimed.
	UsernameReservationTTL time.Duration
}

type Provision struct {
	RollbackOnFailure bool
	UsernameProbes    int
	PasswordMinLength int
	PasswordMaxLength int
}

// CallLog selects where panel commands are recorded. Empty fields disable a sink.
type CallLog struct {
	Driver string
	DSN    string
	File   string
}

// Load reads path (may be empty) and the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config: .env not loaded", "err", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("local_mode", false)
	v.SetDefault("namespace", "vesta")
	v.SetDefault("leader_id", "")
	v.SetDefault("dynamodb.table", "vesta-services")
	v.SetDefault("dynamodb.endpoint", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("provision.rollback_on_failure", false)
	v.SetDefault("provision.username_probes", 9)
	v.SetDefault("provision.password_min_length", 10)
	v.SetDefault("provision.password_max_length", 14)
	v.SetDefault("call_log.driver", "")
	v.SetDefault("call_log.dsn", "")
	v.SetDefault("call_log.file", "")
	v.SetDefault("secret_key", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("reconcile_interval", "5m")
	v.SetDefault("usage_cache_ttl", "10m")
	v.SetDefault("lock_ttl", "2m")
	v.SetDefault("username_reservation_ttl", "10m")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Port:              v.GetString("port"),
		LocalMode:         v.GetBool("local_mode"),
		Namespace:         v.GetString("namespace"),
		LeaderID:          v.GetString("leader_id"),
		DynamoTable:       v.GetString("dynamodb.table"),
		DynamoEndpoint:    v.GetString("dynamodb.endpoint"),
		RedisAddr:         v.GetString("redis.addr"),
		SecretKey:         v.GetString("secret_key"),
		JWTSecret:         v.GetString("jwt_secret"),
		ReconcileInterval: v.GetDuration("reconcile_interval"),
		UsageCacheTTL:     v.GetDuration("usage_cache_ttl"),
		LockTTL:           v.GetDuration("lock_ttl"),
		Provision: Provision{
			RollbackOnFailure: v.GetBool("provision.rollback_on_failure"),
			UsernameProbes:    v.GetInt("provision.username_probes"),
			PasswordMinLength: v.GetInt("provision.password_min_length"),
			PasswordMaxLength: v.GetInt("provision.password_max_length"),
		},
		CallLog: CallLog{
			Driver: v.GetString("call_log.driver"),
			DSN:    v.GetString("call_log.dsn"),
			File:   v.GetString("call_log.file"),
		},
	}
	cfg.UsernameReservationTTL = v.GetDuration("username_reservation_ttl")
	if cfg.DynamoEndpoint != "" {
		cfg.LocalMode = true
	}

	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		strictBool,
	))
	if err := v.UnmarshalKey("servers", &cfg.Servers, hooks); err != nil {
		return nil, fmt.Errorf("decode servers: %w", err)
	}
	if cfg.CallLog.Driver != "" && cfg.CallLog.DSN == "" {
		return nil, fmt.Errorf("call_log.dsn is required for driver %q", cfg.CallLog.Driver)
	}
	return cfg, nil
}

// strictBool only accepts the literals true and false for string-typed booleans.
func strictBool(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
		return data, nil
	}
	return servers.ParseUseSSL(strings.TrimSpace(data.(string)))
}
