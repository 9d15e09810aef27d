package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from the process environment.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads configuration through lookup. Every malformed variable is
// reported, not just the first.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	l := envLoader{lookup: lookup}
	l.load(reflect.ValueOf(cfg).Elem())
	if err := errors.Join(l.errs...); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

type envLoader struct {
	lookup LookupFunc
	errs   []error
}

// value returns the first non-empty of the env tag, the envAlt tag and the
// default tag. An empty variable counts as unset.
func (l *envLoader) value(field reflect.StructField) (name, value string) {
	name = field.Tag.Get("env")
	for _, key := range []string{name, field.Tag.Get("envAlt")} {
		if key == "" {
			continue
		}
		if v, ok := l.lookup(key); ok && strings.TrimSpace(v) != "" {
			return name, strings.TrimSpace(v)
		}
	}
	return name, field.Tag.Get("default")
}

// load walks the section structs of Config and fills tagged fields.
func (l *envLoader) load(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)

		if field.Type.Kind() == reflect.Struct {
			l.load(fv)
			continue
		}
		if field.Tag.Get("env") == "" {
			continue
		}

		name, raw := l.value(field)
		if raw == "" {
			continue
		}
		if err := decode(fv, raw); err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s=%q: %w", name, raw, err))
		}
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

// decode parses raw into the field's type. Config uses strings, ints,
// int64 byte sizes, durations, float rates, booleans and comma lists.
func decode(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return errors.New("not a duration")
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return errors.New("not an integer")
		}
		fv.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return errors.New("not a number")
		}
		fv.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return errors.New("not a boolean")
		}
		fv.SetBool(b)
	case reflect.Slice:
		var items []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		fv.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", fv.Type())
	}
	return nil
}

// Validate checks that the configuration is consistent.
// Returns an error listing every problem found.
func (c *Config) Validate() error {
	var p problems
	c.Server.validate(&p)
	c.Database.validate(&p)
	c.Import.validate(&p)
	c.Rate.validate(&p)
	c.Security.validate(&p)
	c.Logging.validate(&p)
	return p.err()
}

// problems collects validation failures.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
}

func (s *ServerConfig) validate(p *problems) {
	if s.Port <= 0 || s.Port > 65535 {
		p.addf("SERVER_PORT (%d) must be 1-65535", s.Port)
	}
	if s.ReadTimeout < 0 {
		p.addf("SERVER_READ_TIMEOUT must be non-negative")
	}
	if s.ShutdownTimeout <= 0 {
		p.addf("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
}

func (d *DatabaseConfig) validate(p *problems) {
	switch strings.ToLower(d.Driver) {
	case "memory":
	case "postgres":
		if d.URL == "" {
			p.addf("DATABASE_URL is required when DB_DRIVER is postgres")
		}
		if d.MaxConns <= 0 {
			p.addf("DB_MAX_CONNS must be positive")
		}
		if d.MinConns < 0 {
			p.addf("DB_MIN_CONNS must be non-negative")
		}
		if d.MaxConns < d.MinConns {
			p.addf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", d.MaxConns, d.MinConns)
		}
	default:
		p.addf("DB_DRIVER (%q) must be one of: postgres, memory", d.Driver)
	}
}

func (i *ImportConfig) validate(p *problems) {
	if i.MaxFileSize <= 0 {
		p.addf("IMPORT_MAX_FILE_SIZE must be positive")
	}
	if i.MaxConcurrent <= 0 {
		p.addf("IMPORT_MAX_CONCURRENT must be positive")
	}
	if i.MaxWaitTime <= 0 {
		p.addf("IMPORT_MAX_WAIT_TIME must be positive")
	}
	if i.Timeout <= 0 {
		p.addf("IMPORT_TIMEOUT must be positive")
	}
	if i.Workers <= 0 {
		p.addf("IMPORT_WORKERS must be positive")
	}
	if i.RowsPerSecond < 0 {
		p.addf("IMPORT_ROWS_PER_SECOND must be non-negative")
	}
	if i.RowsPerSecond > 0 && i.Burst <= 0 {
		p.addf("IMPORT_BURST must be positive when IMPORT_ROWS_PER_SECOND is set")
	}
	if i.MaxSlugAttempts <= 0 {
		p.addf("IMPORT_MAX_SLUG_ATTEMPTS must be positive")
	}
	if i.ResultRetention < 0 {
		p.addf("IMPORT_RESULT_RETENTION must be non-negative")
	}
}

func (r *RateLimitConfig) validate(p *problems) {
	if !r.Enabled {
		return
	}
	if r.RequestsPerMinute <= 0 {
		p.addf("RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if r.ImportLimit <= 0 {
		p.addf("RATE_LIMIT_IMPORT must be positive when rate limiting is enabled")
	}
}

func (s *SecurityConfig) validate(p *problems) {
	if s.RequireAPIKey && len(s.APIKeys) == 0 {
		p.addf("REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}
}

func (l *LoggingConfig) validate(p *problems) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		p.addf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		p.addf("LOG_FORMAT (%q) must be one of: text, json", l.Format)
	}
}

// String returns a safe string representation of the config for logging.
// The database URL and API keys are masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Server: {Addr: %q}, "+
		"Database: {Driver: %q, URL: [MASKED], MaxConns: %d, MinConns: %d}, "+
		"Import: {MaxFileSize: %d, MaxConcurrent: %d, Workers: %d, RowsPerSecond: %g}, "+
		"Rate: {Enabled: %v, RequestsPerMinute: %d, ImportLimit: %d}, "+
		"Security: {RequireAPIKey: %v, APIKeys: %d}, "+
		"Logging: {Level: %q, Format: %q}}",
		c.Server.Addr(),
		c.Database.Driver, c.Database.MaxConns, c.Database.MinConns,
		c.Import.MaxFileSize, c.Import.MaxConcurrent, c.Import.Workers, c.Import.RowsPerSecond,
		c.Rate.Enabled, c.Rate.RequestsPerMinute, c.Rate.ImportLimit,
		c.Security.RequireAPIKey, len(c.Security.APIKeys),
		c.Logging.Level, c.Logging.Format)
}
