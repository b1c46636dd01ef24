// Package config loads the service and CLI settings from YAML with
// environment overrides.
package config

import (
    "bytes"
    "errors"
    "fmt"
    "io"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/rs/zerolog"
    "gopkg.in/yaml.v3"

    "darpm/internal/opt"
)

type Config struct {
    Solver   SolverConfig   `yaml:"solver"`
    Dataset  DatasetConfig  `yaml:"dataset"`
    Server   ServerConfig   `yaml:"server"`
    Database DatabaseConfig `yaml:"database"`
    Redis    RedisConfig    `yaml:"redis"`
    Webhooks WebhookConfig  `yaml:"webhooks"`
    Auth     AuthConfig     `yaml:"auth"`
    Log      LogConfig      `yaml:"log"`
}

type SolverConfig struct {
    Capacity              int           `yaml:"capacity"`
    SpeedKph              float64       `yaml:"speedKph"`
    Alpha                 float64       `yaml:"alpha"`
    Beta                  float64       `yaml:"beta"`
    LimitRCL              float64       `yaml:"limitRCL"`
    GRASPIterations       int           `yaml:"graspIterations"`
    LocalSearchIterations int           `yaml:"localSearchIterations"`
    InsertAttempts        int           `yaml:"insertAttempts"`
    SwapAttempts          int           `yaml:"swapAttempts"`
    SwapFraction          float64       `yaml:"swapFraction"`
    InsertionMethod       string        `yaml:"insertionMethod"`
    GuidedSwap            bool          `yaml:"guidedSwap"`
    Seed                  int64         `yaml:"seed"`
    TimeLimit             time.Duration `yaml:"timeLimit"`
}

type DatasetConfig struct {
    Path       string        `yaml:"path"`
    TimeWindow time.Duration `yaml:"timeWindow"` // width of pickup and drop-off windows
    Timeframe  time.Duration `yaml:"timeframe"`  // span of pickups kept after the first one
    TestSize   int           `yaml:"testSize"`   // 0 keeps every request in the timeframe
}

type ServerConfig struct {
    Port         string        `yaml:"port"`
    RateRPS      float64       `yaml:"rateRPS"`
    RateBurst    int           `yaml:"rateBurst"`
    MaxTimeLimit time.Duration `yaml:"maxTimeLimit"`
}

type DatabaseConfig struct {
    URL     string `yaml:"url"`
    Migrate bool   `yaml:"migrate"`
}

type RedisConfig struct {
    URL     string `yaml:"url"`
    Channel string `yaml:"channel"`
}

type WebhookConfig struct {
    MaxAttempts  int           `yaml:"maxAttempts"`
    PollInterval time.Duration `yaml:"pollInterval"`
    Timeout      time.Duration `yaml:"timeout"`
}

type AuthConfig struct {
    Mode       string `yaml:"mode"` // dev or hmac
    HMACSecret string `yaml:"hmacSecret"`
    RoleClaim  string `yaml:"roleClaim"`
}

type LogConfig struct {
    Level  string `yaml:"level"`
    Pretty bool   `yaml:"pretty"`
}

// Default returns the settings used by the batch experiments.
func Default() Config {
    p := opt.DefaultParams()
    return Config{
        Solver: SolverConfig{
            Capacity:              p.Capacity,
            SpeedKph:              40,
            Alpha:                 p.Alpha,
            Beta:                  p.Beta,
            LimitRCL:              p.LimitRCL,
            GRASPIterations:       p.GRASPIterations,
            LocalSearchIterations: p.LocalSearchIterations,
            InsertAttempts:        p.InsertAttempts,
            SwapAttempts:          p.SwapAttempts,
            SwapFraction:          p.SwapFraction,
            InsertionMethod:       p.Method.String(),
            GuidedSwap:            p.GuidedSwap,
            TimeLimit:             30 * time.Second,
        },
        Dataset: DatasetConfig{
            TimeWindow: 15 * time.Minute,
            Timeframe:  1000 * time.Second,
            TestSize:   200,
        },
        Server:   ServerConfig{Port: "8080", RateRPS: 20, RateBurst: 40, MaxTimeLimit: 5 * time.Minute},
        Database: DatabaseConfig{Migrate: true},
        Redis:    RedisConfig{Channel: "darpm:run-events"},
        Webhooks: WebhookConfig{MaxAttempts: 8, PollInterval: 500 * time.Millisecond, Timeout: 10 * time.Second},
        Auth:     AuthConfig{Mode: "dev", RoleClaim: "role"},
        Log:      LogConfig{Level: "info"},
    }
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
    cfg := Default()
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err := Decode(bytes.NewReader(b), &cfg); err != nil {
            return cfg, fmt.Errorf("parse %s: %w", path, err)
        }
    }
    if err := cfg.applyEnv(os.Getenv); err != nil {
        return cfg, err
    }
    return cfg, cfg.Validate()
}

// Decode strictly decodes YAML into cfg; unknown keys are errors.
func Decode(r io.Reader, cfg *Config) error {
    dec := yaml.NewDecoder(r)
    dec.KnownFields(true)
    if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
        return err
    }
    return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
    str := func(key string, dst *string) {
        if v := strings.TrimSpace(getenv(key)); v != "" {
            *dst = v
        }
    }
    str("PORT", &c.Server.Port)
    str("DATABASE_URL", &c.Database.URL)
    str("REDIS_URL", &c.Redis.URL)
    str("LOG_LEVEL", &c.Log.Level)
    str("AUTH_MODE", &c.Auth.Mode)
    str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
    if v := getenv("DB_MIGRATE"); v != "" {
        c.Database.Migrate = v != "false"
    }
    if v := getenv("RATE_RPS"); v != "" {
        f, err := strconv.ParseFloat(v, 64)
        if err != nil {
            return fmt.Errorf("RATE_RPS: %w", err)
        }
        c.Server.RateRPS = f
    }
    if v := getenv("RATE_BURST"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil {
            return fmt.Errorf("RATE_BURST: %w", err)
        }
        c.Server.RateBurst = n
    }
    if v := getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil {
            return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS: %w", err)
        }
        c.Webhooks.MaxAttempts = n
    }
    return nil
}

// Validate checks ranges that would otherwise surface deep inside a run.
func (c Config) Validate() error {
    if _, err := c.Solver.Params(); err != nil {
        return err
    }
    switch {
    case c.Solver.SpeedKph <= 0:
        return fmt.Errorf("%w: solver.speedKph must be > 0", opt.ErrInvalidParams)
    case c.Solver.TimeLimit <= 0:
        return fmt.Errorf("%w: solver.timeLimit must be > 0", opt.ErrInvalidParams)
    case c.Dataset.TimeWindow < 0, c.Dataset.Timeframe < 0, c.Dataset.TestSize < 0:
        return errors.New("dataset: timeWindow, timeframe and testSize must be >= 0")
    case c.Server.RateRPS < 0 || c.Server.RateBurst < 0:
        return errors.New("server: rate limits must be >= 0")
    case c.Webhooks.MaxAttempts < 1:
        return errors.New("webhooks.maxAttempts must be >= 1")
    }
    switch c.Auth.Mode {
    case "dev":
    case "hmac":
        if c.Auth.HMACSecret == "" {
            return errors.New("auth.hmacSecret is required in hmac mode")
        }
    default:
        return fmt.Errorf("auth.mode %q: expected dev or hmac", c.Auth.Mode)
    }
    if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
        return fmt.Errorf("log.level: %w", err)
    }
    return nil
}

// Params converts the solver section into engine parameters.
func (s SolverConfig) Params() (opt.Params, error) {
    m, err := opt.ParseInsertionMethod(s.InsertionMethod)
    if err != nil {
        return opt.Params{}, err
    }
    p := opt.Params{
        Capacity:              s.Capacity,
        Alpha:                 s.Alpha,
        Beta:                  s.Beta,
        LimitRCL:              s.LimitRCL,
        GRASPIterations:       s.GRASPIterations,
        LocalSearchIterations: s.LocalSearchIterations,
        InsertAttempts:        s.InsertAttempts,
        SwapAttempts:          s.SwapAttempts,
        SwapFraction:          s.SwapFraction,
        Method:                m,
        GuidedSwap:            s.GuidedSwap,
        Seed:                  s.Seed,
    }
    return p, p.Validate()
}

// Logger builds the process logger. Pretty output goes through a console writer.
func (l LogConfig) Logger(w io.Writer) zerolog.Logger {
    level, err := zerolog.ParseLevel(l.Level)
    if err != nil || level == zerolog.NoLevel {
        level = zerolog.InfoLevel
    }
    if l.Pretty {
        w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
    }
    return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
