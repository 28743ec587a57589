package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. ROOMCHAT_AUTH_JWT_SECRET.
const EnvPrefix = "ROOMCHAT"

type HTTP struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idleTimeout" envconfig:"IDLE_TIMEOUT"`
	CORSOrigins  []string      `yaml:"corsOrigins" envconfig:"CORS_ORIGINS"`
}

type GRPC struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // room-chat
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource" envconfig:"ADD_SOURCE"`
}

type Auth struct {
	JWTSecret  string        `yaml:"jwtSecret" envconfig:"JWT_SECRET"`
	Issuer     string        `yaml:"issuer"`
	TokenTTL   time.Duration `yaml:"tokenTTL" envconfig:"TOKEN_TTL"`
	CookieName string        `yaml:"cookieName" envconfig:"COOKIE_NAME"`
	BcryptCost int           `yaml:"bcryptCost" envconfig:"BCRYPT_COST"`
}

type Store struct {
	// Backends в порядке приоритета: postgres, redis, badger, memory
	Backends       []string      `yaml:"backends"`
	OpTimeout      time.Duration `yaml:"opTimeout" envconfig:"OP_TIMEOUT"`
	ConnectTimeout time.Duration `yaml:"connectTimeout" envconfig:"CONNECT_TIMEOUT"`
}

type Postgres struct {
	// DSNs пробуются по очереди (основной, затем локальный)
	DSNs            []string      `yaml:"dsns"`
	MaxConns        int32         `yaml:"maxConns" envconfig:"MAX_CONNS"`
	MinConns        int32         `yaml:"minConns" envconfig:"MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime" envconfig:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime" envconfig:"MAX_CONN_IDLE_TIME"`
}

type Redis struct {
	URL string `yaml:"url"`
}

type Badger struct {
	Path string `yaml:"path"` // пусто: in-memory
}

type WS struct {
	PingEvery  time.Duration `yaml:"pingEvery" envconfig:"PING_EVERY"`
	SendBuffer int           `yaml:"sendBuffer" envconfig:"SEND_BUFFER"`
	ReadLimit  int64         `yaml:"readLimit" envconfig:"READ_LIMIT"`
}

type Rooms struct {
	KeyBytes      int `yaml:"keyBytes" envconfig:"KEY_BYTES"`
	MaxMessageLen int `yaml:"maxMessageLen" envconfig:"MAX_MESSAGE_LEN"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Auth     Auth     `yaml:"auth"`
	Store    Store    `yaml:"store"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Badger   Badger   `yaml:"badger"`
	WS       WS       `yaml:"ws"`
	Rooms    Rooms    `yaml:"rooms"`
}

// LoadConfig reads CONFIG_PATH (./config/config.yaml by default), then applies
// .env and ROOMCHAT_* overrides. A missing file is fine when the environment
// provides the required values.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwtSecret must be at least 16 bytes")
	}

	// установка дефолтов, если значения не указаны
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	c.HTTP.ReadTimeout = durationOr(c.HTTP.ReadTimeout, 10*time.Second)
	c.HTTP.WriteTimeout = durationOr(c.HTTP.WriteTimeout, 15*time.Second)
	c.HTTP.IdleTimeout = durationOr(c.HTTP.IdleTimeout, 60*time.Second)
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":9090"
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "room-chat"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	switch c.Logging.Backend {
	case "std", "zap":
	default:
		return fmt.Errorf("logging.backend: unknown %q", c.Logging.Backend)
	}

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "room-chat"
	}
	c.Auth.TokenTTL = durationOr(c.Auth.TokenTTL, 24*time.Hour)
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = "access_token_cookie"
	}

	for _, b := range c.Store.Backends {
		switch b {
		case "postgres", "redis", "badger", "memory":
		default:
			return fmt.Errorf("store.backends: unknown backend %q", b)
		}
	}
	c.Store.OpTimeout = durationOr(c.Store.OpTimeout, 3*time.Second)
	c.Store.ConnectTimeout = durationOr(c.Store.ConnectTimeout, 5*time.Second)

	c.WS.PingEvery = durationOr(c.WS.PingEvery, 30*time.Second)
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 64
	}
	if c.WS.ReadLimit <= 0 {
		c.WS.ReadLimit = 16 << 10
	}

	if c.Rooms.KeyBytes <= 0 {
		c.Rooms.KeyBytes = 8
	}
	if c.Rooms.MaxMessageLen <= 0 {
		c.Rooms.MaxMessageLen = 4096
	}
	return nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
