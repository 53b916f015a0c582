package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr               string   `yaml:"addr"`
		MetricsAddr        string   `yaml:"metrics_addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		ReadTimeout        string   `yaml:"read_timeout"`
		WriteTimeout       string   `yaml:"write_timeout"`
	} `yaml:"server"`

	Storage struct {
		// fs | pg | memory
		Driver string `yaml:"driver"`
		// FSRoot directorio de datos para el driver fs
		FSRoot string `yaml:"fs_root"`
		// DSN para el driver pg
		DSN string `yaml:"dsn"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	TOTP struct {
		// Issuer es el nombre de servicio del otpauth:// (lo muestra la app authenticator)
		Issuer string `yaml:"issuer"`
		// Window tolerancia de pasos de reloj (0..3)
		Window int `yaml:"window"`
		// QRSize lado en píxeles de la imagen QR
		QRSize int `yaml:"qr_size"`
	} `yaml:"totp"`

	Auth struct {
		MFA struct {
			// ReverifyOnLogin: si el usuario tiene requires_2fa y vuelve a hacer
			// login sobre una sesión existente, la sesión se recrea sin verificar
			// y debe pasar verify de nuevo. Default false (comportamiento de referencia).
			ReverifyOnLogin bool `yaml:"reverify_on_login"`
		} `yaml:"mfa"`
	} `yaml:"auth"`
}

// Load lee el YAML (opcional: path vacío usa solo defaults+env),
// aplica defaults sanos y pisa con variables de entorno.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = ":9090"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "fs"
	}
	if c.Storage.FSRoot == "" {
		c.Storage.FSRoot = "./data"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.TOTP.Issuer == "" {
		c.TOTP.Issuer = "LittleJohn"
	}
	if c.TOTP.QRSize == 0 {
		c.TOTP.QRSize = 256
	}
	// Window 0 es válido pero inusual; el YAML no distingue "ausente" de 0,
	// así que 0 significa default.
	if c.TOTP.Window == 0 {
		c.TOTP.Window = 1
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate chequea combinaciones inválidas antes de arrancar.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "fs", "memory":
	case "pg":
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: storage.driver=pg requires storage.dsn")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("config: cache.kind=redis requires cache.redis.addr")
		}
	default:
		return fmt.Errorf("config: unknown cache.kind %q", c.Cache.Kind)
	}
	if c.TOTP.Window < 0 || c.TOTP.Window > 3 {
		return fmt.Errorf("config: totp.window out of range (0..3): %d", c.TOTP.Window)
	}
	return nil
}

// ReadTimeoutDur parsea Server.ReadTimeout.
func (c *Config) ReadTimeoutDur() time.Duration { return parseDurOr(c.Server.ReadTimeout, 10*time.Second) }

// WriteTimeoutDur parsea Server.WriteTimeout.
func (c *Config) WriteTimeoutDur() time.Duration {
	return parseDurOr(c.Server.WriteTimeout, 30*time.Second)
}

// CacheDefaultTTL parsea Cache.Memory.DefaultTTL.
func (c *Config) CacheDefaultTTL() time.Duration {
	return parseDurOr(c.Cache.Memory.DefaultTTL, 2*time.Minute)
}

func parseDurOr(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil && d > 0 {
		return d
	}
	return def
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("METRICS_ADDR"); ok {
		c.Server.MetricsAddr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_FS_ROOT"); ok {
		c.Storage.FSRoot = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}

	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("CACHE_REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("CACHE_REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("CACHE_REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}

	if v, ok := getEnvStr("MFA_TOTP_ISSUER"); ok {
		c.TOTP.Issuer = v
	}
	if v, ok := getEnvInt("MFA_TOTP_WINDOW"); ok && v >= 0 && v <= 3 {
		c.TOTP.Window = v
	}
	if v, ok := getEnvBool("MFA_REVERIFY_ON_LOGIN"); ok {
		c.Auth.MFA.ReverifyOnLogin = v
	}
}
