package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the complete configuration.
type Config struct {
	Database  string        `yaml:"database,omitempty"`
	LogLevel  string        `yaml:"log_level"`
	WeekStart string        `yaml:"week_start"`
	Browse    BrowseConfig  `yaml:"browse"`
	Read      ReadConfig    `yaml:"read"`
	Server    ServerConfig  `yaml:"server"`
	Metrics   MetricsConfig `yaml:"metrics"`
}

// BrowseConfig controls namespace browsing.
type BrowseConfig struct {
	PageSize int `yaml:"page_size"`
}

// ReadConfig controls history reads.
type ReadConfig struct {
	MaxValues int `yaml:"max_values"`
}

// ServerConfig configures the in-process endpoint.
type ServerConfig struct {
	PageSize       int      `yaml:"page_size"`
	AdviseInterval Duration `yaml:"advise_interval"`
}

// MetricsConfig toggles prometheus collectors. Long-running commands serve
// them on Addr.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Duration is a time.Duration written as a Go duration string ("1s").
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:  "info",
		WeekStart: "sunday",
		Server: ServerConfig{
			PageSize:       100,
			AdviseInterval: Duration(time.Second),
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
	}
}

// Error reports an invalid configuration.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("invalid config: %v", e.Err)
	}
	return fmt.Sprintf("invalid config %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads path over Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	cfg, err = Parse(data)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.Source = path
		}
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes a YAML document over Default after checking it against the
// schema.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return cfg, &Error{Err: err}
	}
	if err := checkSchema(doc); err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &Error{Err: err}
	}
	return cfg, cfg.Validate()
}

// Validate checks c, including values set after loading (e.g. from flags).
func (c Config) Validate() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return &Error{Err: err}
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &Error{Err: err}
	}
	if err := checkSchema(doc); err != nil {
		return err
	}
	if c.Server.AdviseInterval <= 0 {
		return &Error{Err: errors.New("server.advise_interval must be positive")}
	}
	return nil
}

func checkSchema(doc map[string]any) error {
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &Error{Err: errors.New(strings.TrimSpace(cueerrors.Details(err, nil)))}
	}
	return nil
}

// Weekday returns WeekStart as a time.Weekday.
func (c Config) Weekday() time.Weekday {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), c.WeekStart) {
			return d
		}
	}
	return time.Sunday
}

// Level returns LogLevel as a slog level.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
