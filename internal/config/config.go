package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned when neither WEATHER_API_KEY nor
// config/secrets.yaml provides a key.
var ErrMissingAPIKey = errors.New("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")

// Config holds dashboard configuration loaded from YAML and env.
type Config struct {
	ServerPort string `validate:"required,numeric"`

	WeatherAPIKey     string        `validate:"required"`
	WeatherAPIURL     string        `validate:"required,url"`
	WeatherAPITimeout time.Duration `validate:"gt=0"`
	ValidateOnStart   bool

	City        string `validate:"required"`
	SmoothLines bool
	Timezone    string         `validate:"required,timezone"`
	Location    *time.Location `validate:"-"`

	TrendPoints int           `validate:"gt=0,lte=500"`
	TrendStep   time.Duration `validate:"gt=0"`

	RequestTimeout time.Duration `validate:"gt=0"`

	RateLimitRPS            int `validate:"gt=0"`
	RateLimitBurst          int `validate:"gt=0"`
	CircuitBreakerEnabled   bool
	CircuitBreakerThreshold uint32        `validate:"gt=0"`
	CircuitBreakerTimeout   time.Duration `validate:"gt=0"`

	WarmCities   []string      `validate:"dive,required"`
	WarmInterval time.Duration `validate:"gt=0"`

	ShutdownTimeout time.Duration `validate:"gt=0"`
	InFlightTimeout time.Duration `validate:"gt=0"`

	HealthWindow     time.Duration `validate:"gt=0"`
	DegradedErrorPct int           `validate:"gte=0,lte=100"`

	CityMinLength int `validate:"gte=0"`
	CityMaxLength int `validate:"gtefield=CityMinLength"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL             string `yaml:"url"`
		Timeout         string `yaml:"timeout"`
		ValidateOnStart *bool  `yaml:"validate_on_start"`
	} `yaml:"weather_api"`

	Dashboard struct {
		City        string `yaml:"city"`
		SmoothLines *bool  `yaml:"smooth_lines"`
		Timezone    string `yaml:"timezone"`
	} `yaml:"dashboard"`

	Trend struct {
		Points int    `yaml:"points"`
		Step   string `yaml:"step"`
	} `yaml:"trend"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold uint32 `yaml:"failure_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Cache struct {
		Warm         []string `yaml:"warm"`
		WarmInterval string   `yaml:"warm_interval"`
	} `yaml:"cache"`

	Shutdown struct {
		Timeout         string `yaml:"timeout"`
		InFlightTimeout string `yaml:"in_flight_timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Window           string `yaml:"window"`
		DegradedErrorPct *int   `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Validation struct {
		CityMinLength *int `yaml:"city_min_length"`
		CityMaxLength *int `yaml:"city_max_length"`
	} `yaml:"validation"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

var validate = validator.New()

// Load reads configuration relative to the working directory. Call from
// the project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom reads dir/.env (optional), dir/config/{ENV_NAME}.yaml (default
// dev) and the API key from WEATHER_API_KEY or dir/config/secrets.yaml.
// Variables already set in the environment win over .env entries.
func LoadFrom(dir string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.WeatherAPIKey, err = loadAPIKey(dir)
	if err != nil {
		return nil, err
	}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.WeatherAPITimeout = parseDuration(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.ValidateOnStart = boolOr(fc.WeatherAPI.ValidateOnStart, true)

	cfg.City = firstNonEmpty(os.Getenv("DASHBOARD_CITY"), strings.TrimSpace(fc.Dashboard.City), "Bangalore")
	cfg.SmoothLines = boolOr(fc.Dashboard.SmoothLines, true)
	cfg.Timezone = firstNonEmpty(strings.TrimSpace(fc.Dashboard.Timezone), "Asia/Kolkata")

	cfg.TrendPoints = fc.Trend.Points
	if cfg.TrendPoints <= 0 {
		cfg.TrendPoints = 10
	}
	cfg.TrendStep = parseDuration(fc.Trend.Step, 3*time.Minute)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}
	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled
	cfg.CircuitBreakerThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerThreshold == 0 {
		cfg.CircuitBreakerThreshold = 5
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.WarmCities = fc.Cache.Warm
	cfg.WarmInterval = parseDuration(fc.Cache.WarmInterval, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 15*time.Second)
	cfg.InFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)

	cfg.HealthWindow = parseDuration(fc.Health.Window, time.Minute)
	cfg.DegradedErrorPct = intOr(fc.Health.DegradedErrorPct, 50)

	cfg.CityMinLength = intOr(fc.Validation.CityMinLength, 1)
	cfg.CityMaxLength = intOr(fc.Validation.CityMaxLength, 100)

	if err := check(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadAPIKey prefers WEATHER_API_KEY over config/secrets.yaml.
func loadAPIKey(dir string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("WEATHER_API_KEY")); key != "" {
		return key, nil
	}
	secretsPath := filepath.Join(dir, "config", "secrets.yaml")
	data, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrMissingAPIKey
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	if key := strings.TrimSpace(sec.WeatherAPIKey); key != "" {
		return key, nil
	}
	return "", ErrMissingAPIKey
}

// check runs struct validation, resolves the time zone and keeps the
// request deadline above the upstream timeout.
func check(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	return nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
