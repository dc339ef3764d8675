package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "echochamber.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := resolvePrompts(&cfg); err != nil {
		return nil, fmt.Errorf("config prompts: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "ECHO_PORT")
	setBool(&cfg.Server.DevMode, "ECHO_DEV_MODE")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "ECHO_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "ECHO_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "ECHO_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "ECHO_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "ECHO_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.Model, "ECHO_OPENAI_MODEL")
	setString(&cfg.OpenAI.EmbeddingModel, "ECHO_OPENAI_EMBEDDING_MODEL")
	setFloat64(&cfg.OpenAI.Temperature, "ECHO_OPENAI_TEMPERATURE")
	setFloat64(&cfg.OpenAI.TopP, "ECHO_OPENAI_TOP_P")
	setString(&cfg.Logging.Level, "ECHO_LOG_LEVEL")
	setString(&cfg.Logging.Service, "ECHO_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "ECHO_LOG_ASYNC")
	setString(&cfg.Logging.NotifyLevel, "ECHO_LOG_NOTIFY_LEVEL")
	setInt(&cfg.Breaker.MaxFailures, "ECHO_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "ECHO_BREAKER_TIMEOUT")
	setDuration(&cfg.Agent.AlarmInterval, "ECHO_ALARM_INTERVAL")
	setInt64(&cfg.Agent.DailyTokenLimit, "ECHO_DAILY_TOKEN_LIMIT")
	setInt64(&cfg.Agent.SoftTokenLimit, "ECHO_SOFT_TOKEN_LIMIT")
	setFloat64(&cfg.Agent.BufferFactor, "ECHO_BUFFER_FACTOR")
	setInt(&cfg.Agent.MaxTurns, "ECHO_MAX_TURNS")
	setDuration(&cfg.Agent.CycleTimeout, "ECHO_CYCLE_TIMEOUT")
	setInt(&cfg.Agent.SleepHour, "ECHO_SLEEP_HOUR")
	setInt(&cfg.Agent.WakeHour, "ECHO_WAKE_HOUR")

	// Per-instance bot tokens: ECHO_BOT_TOKEN_{ID} overrides the YAML value
	// so secrets can stay out of config files.
	for i := range cfg.Instances {
		setString(&cfg.Instances[i].BotToken, "ECHO_BOT_TOKEN_"+envKey(cfg.Instances[i].ID))
	}
}

// resolvePrompts reads each instance's system prompt file when configured.
func resolvePrompts(cfg *Config) error {
	for i := range cfg.Instances {
		inst := &cfg.Instances[i]
		if inst.SystemPromptFile == "" {
			continue
		}
		data, err := os.ReadFile(inst.SystemPromptFile) //nolint:gosec // G304: operator-provided path
		if err != nil {
			return fmt.Errorf("read system prompt for %s: %w", inst.ID, err)
		}
		inst.SystemPrompt = string(data)
	}
	return nil
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.OpenAI.APIKey == "" {
		return errors.New("openai.api_key is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Agent.AlarmInterval < time.Second {
		return errors.New("agent.alarm_interval must be >= 1s")
	}
	if cfg.Agent.MaxTurns < 1 {
		return errors.New("agent.max_turns must be >= 1")
	}
	if cfg.Agent.BufferFactor < 1 {
		return errors.New("agent.buffer_factor must be >= 1")
	}
	if len(cfg.Instances) == 0 {
		return errors.New("at least one instance is required")
	}

	seen := make(map[string]bool, len(cfg.Instances))
	for _, inst := range cfg.Instances {
		if inst.ID == "" {
			return errors.New("instance id is required")
		}
		if seen[inst.ID] {
			return fmt.Errorf("duplicate instance id %q", inst.ID)
		}
		seen[inst.ID] = true
		if inst.Name == "" {
			return fmt.Errorf("instance %s: name is required", inst.ID)
		}
		if inst.BotToken == "" {
			return fmt.Errorf("instance %s: bot_token is required", inst.ID)
		}
		if inst.ChatChannelID == "" {
			return fmt.Errorf("instance %s: chat_channel_id is required", inst.ID)
		}
	}
	return nil
}

// envKey uppercases an instance ID for use in an environment variable name.
func envKey(id string) string {
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
