// Package config loads the orchestrator's configuration: required
// connection settings from the environment, and tunables (retry
// policies, timeouts) from a TOML file with environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// Env holds the settings spec §6 requires to come from the environment.
type Env struct {
	SourceRPCURL    string
	TargetRPCURL    string
	TargetAdminURL  string
	Port            string
	StateFilePath   string
	CleanSlate      bool
}

// LoadEnv reads the required environment variables. Returns a
// config-error–class error (wrapped by the caller) if a required
// variable is missing.
func LoadEnv(lookup func(string) (string, bool)) (Env, error) {
	var e Env
	var missing []string

	get := func(name string) string {
		v, ok := lookup(name)
		if !ok || v == "" {
			missing = append(missing, name)
		}
		return v
	}

	e.SourceRPCURL = get("SOURCE_RPC_URL")
	e.TargetRPCURL = get("TARGET_RPC_URL")
	e.TargetAdminURL = get("TARGET_ADMIN_RPC_URL")
	e.StateFilePath = get("STATE_FILE_PATH")

	if v, ok := lookup("PORT"); ok && v != "" {
		e.Port = v
	} else {
		e.Port = "8080"
	}

	if v, ok := lookup("CLEAN_SLATE"); ok {
		e.CleanSlate = v == "1" || strings.EqualFold(v, "true")
	}

	if len(missing) > 0 {
		return e, fmt.Errorf("config-error: missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return e, nil
}

// Tunables holds every retry/timeout/poll knob named in spec §4, loaded
// from config.toml with CONFIG_SECTION_KEY-style environment overrides,
// exactly as internal/util.InitConfig layers file and env providers.
type Tunables struct {
	ko *koanf.Koanf
}

// Load reads tunables from a TOML file (missing file is not an error —
// defaults below apply) and layers environment overrides on top.
func Load(path string, logger zerolog.Logger) (*Tunables, error) {
	ko := koanf.New(".")

	if path != "" {
		if err := ko.Load(file.Provider(path), toml.Parser()); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to load tunables file, using defaults")
		}
	}

	// An env name is the key path with dots replaced by underscores. Keys
	// that contain underscores themselves are matched against the keys
	// already loaded from the file.
	known := make(map[string]string)
	for _, k := range ko.Keys() {
		known[strings.ReplaceAll(k, ".", "_")] = k
	}
	if err := ko.Load(env.Provider("", ".", func(s string) string {
		s = strings.ToLower(s)
		if k, ok := known[s]; ok {
			return k
		}
		return strings.ReplaceAll(s, "_", ".")
	}), nil); err != nil {
		logger.Warn().Err(err).Msg("failed to load environment overrides")
	}

	return &Tunables{ko: ko}, nil
}

func (t *Tunables) durationOr(key string, def time.Duration) time.Duration {
	if !t.ko.Exists(key) {
		return def
	}
	d := t.ko.Duration(key)
	if d == 0 {
		return def
	}
	return d
}

func (t *Tunables) intOr(key string, def int) int {
	if !t.ko.Exists(key) {
		return def
	}
	v := t.ko.Int(key)
	if v == 0 {
		return def
	}
	return v
}

// SourceBlockFetchMaxAttempts is the max attempt count for source block
// fetch (spec §4.1: exponential, base 1s, 8 attempts, ~127s of back-off).
func (t *Tunables) SourceBlockFetchMaxAttempts() int { return t.intOr("retry.source_fetch.max_attempts", 8) }

// TargetHashPollMaxAttempts is the max attempt count for the target
// block-hash poll (exponential, base 100ms, cap 30s, 100 attempts).
func (t *Tunables) TargetHashPollMaxAttempts() int { return t.intOr("retry.hash_poll.max_attempts", 100) }

// HashMatchMaxAttempts bounds the verify-hash retry loop (§4.5 step 6:
// up to 400 attempts).
func (t *Tunables) HashMatchMaxAttempts() int { return t.intOr("retry.hash_match.max_attempts", 400) }

// ReceiptPollSerialMaxAttempts bounds serial receipt polling (fixed
// 100ms, 20 attempts, seeded with >=2s initial delay).
func (t *Tunables) ReceiptPollSerialMaxAttempts() int { return t.intOr("retry.receipt_poll.max_attempts", 20) }

// InjectMaxAttempts bounds transaction injection retries (fixed 30s,
// 3 attempts).
func (t *Tunables) InjectMaxAttempts() int { return t.intOr("retry.inject.max_attempts", 3) }

// HealthCheckTimeout bounds a single /health probe (5s).
func (t *Tunables) HealthCheckTimeout() time.Duration { return t.durationOr("health.check_timeout", 5*time.Second) }

// RecoveryWaitCap bounds waitForRecovery's total wall-clock budget (24h).
func (t *Tunables) RecoveryWaitCap() time.Duration { return t.durationOr("health.recovery_wait_cap", 24*time.Hour) }

// RecoveryProbeCap bounds the back-off between recovery probes (5m).
func (t *Tunables) RecoveryProbeCap() time.Duration { return t.durationOr("health.recovery_probe_cap", 5*time.Minute) }

// ReceiptValidationBudget bounds phased receipt polling per block (15m).
func (t *Tunables) ReceiptValidationBudget() time.Duration { return t.durationOr("engine.receipt_budget", 15*time.Minute) }

// TipFollowerInterval is the tip-follower's poll period (60s).
func (t *Tunables) TipFollowerInterval() time.Duration { return t.durationOr("tip.interval", 60*time.Second) }

// TipFollowerMaxAttempts bounds the tip-follower's per-tick retry (5).
func (t *Tunables) TipFollowerMaxAttempts() int { return t.intOr("tip.max_attempts", 5) }

// EngineIdleSleep is how long the engine sleeps when continuous and
// caught up to syncTo (5s).
func (t *Tunables) EngineIdleSleep() time.Duration { return t.durationOr("engine.idle_sleep", 5*time.Second) }

// AlignMaxAttempts bounds the align-step retry before escalating to
// recovery (5).
func (t *Tunables) AlignMaxAttempts() int { return t.intOr("engine.align.max_attempts", 5) }

// AuditDatabaseURL returns the optional Postgres DSN for internal/audit;
// empty means the audit sink is disabled.
func (t *Tunables) AuditDatabaseURL() string { return t.ko.String("audit.database_url") }

// HistoryDBPath returns the bbolt file path backing internal/history.
func (t *Tunables) HistoryDBPath(def string) string {
	if v := t.ko.String("history.db_path"); v != "" {
		return v
	}
	return def
}

// NATSURL returns the JetStream connection URL for internal/events;
// empty means the event bus is disabled.
func (t *Tunables) NATSURL() string { return t.ko.String("events.nats_url") }

// LogLevel returns the configured log level string.
func (t *Tunables) LogLevel() string { return t.ko.String("logging.level") }
