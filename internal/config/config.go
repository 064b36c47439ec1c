// Package config holds the run settings assembled from flags, environment
// and an optional config file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"

	"sweepq/internal/sweep"
)

// Keys shared by flags, environment (SWEEPQ_*) and the config file.
const (
	KeyURL         = "url"
	KeyConcurrency = "concurrency"
	KeyRequests    = "requests"
	KeyFindOptimal = "find-optimal"
	KeyStart       = "start"
	KeyMax         = "max"
	KeyStep        = "step"
	KeyTimeout     = "timeout"
	KeyCooldown    = "cooldown"
	KeyMinSuccess  = "min-success"
	KeyInsecure    = "insecure"
	KeyOut         = "out"
	KeyLive        = "live"
	KeyMetricsAddr = "metrics-addr"
	KeyLogLevel    = "log-level"
	KeyLogFormat   = "log-format"
	KeyDebug       = "debug"
)

var ErrURLRequired = errors.New("url is required")

// MaxRounds caps the number of levels a sweep may visit.
const MaxRounds = 10000

type Config struct {
	URL         string
	Concurrency int
	Requests    int

	FindOptimal bool
	Start       int
	Max         int
	Step        int

	Timeout    time.Duration
	Cooldown   time.Duration
	MinSuccess float64
	Insecure   bool

	OutPrefix   string
	Live        bool
	MetricsAddr string

	LogLevel  string
	LogFormat string
	Debug     bool
}

func Default() Config {
	return Config{
		Concurrency: 10,
		Requests:    100,
		Start:       5,
		Max:         100,
		Step:        5,
		Timeout:     30 * time.Second,
		Cooldown:    sweep.DefaultCooldown,
		MinSuccess:  sweep.DefaultMinSuccess,
		LogLevel:    "info",
		LogFormat:   "console",
	}
}

// SetDefaults registers Default() values on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyConcurrency, d.Concurrency)
	v.SetDefault(KeyRequests, d.Requests)
	v.SetDefault(KeyStart, d.Start)
	v.SetDefault(KeyMax, d.Max)
	v.SetDefault(KeyStep, d.Step)
	v.SetDefault(KeyTimeout, d.Timeout)
	v.SetDefault(KeyCooldown, d.Cooldown)
	v.SetDefault(KeyMinSuccess, d.MinSuccess)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)
}

// Load reads every key from v and validates the result.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		URL:         v.GetString(KeyURL),
		Concurrency: v.GetInt(KeyConcurrency),
		Requests:    v.GetInt(KeyRequests),
		FindOptimal: v.GetBool(KeyFindOptimal),
		Start:       v.GetInt(KeyStart),
		Max:         v.GetInt(KeyMax),
		Step:        v.GetInt(KeyStep),
		Timeout:     v.GetDuration(KeyTimeout),
		Cooldown:    v.GetDuration(KeyCooldown),
		MinSuccess:  v.GetFloat64(KeyMinSuccess),
		Insecure:    v.GetBool(KeyInsecure),
		OutPrefix:   v.GetString(KeyOut),
		Live:        v.GetBool(KeyLive),
		MetricsAddr: v.GetString(KeyMetricsAddr),
		LogLevel:    v.GetString(KeyLogLevel),
		LogFormat:   v.GetString(KeyLogFormat),
		Debug:       v.GetBool(KeyDebug),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that would make the run meaningless. A sweep whose
// start is above its max is allowed: it runs no rounds.
func (c Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}
	u, err := url.ParseRequestURI(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", c.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", c.URL)
	}

	if c.Requests < 0 {
		return fmt.Errorf("requests must not be negative, got %d", c.Requests)
	}
	if c.FindOptimal {
		if c.Start < 1 {
			return fmt.Errorf("start must be positive, got %d", c.Start)
		}
		if c.Step < 1 {
			return fmt.Errorf("step must be positive, got %d", c.Step)
		}
		if n := c.Plan().Count(); n > MaxRounds {
			return fmt.Errorf("sweep from %d to %d by %d has %d rounds, at most %d allowed", c.Start, c.Max, c.Step, n, MaxRounds)
		}
	} else if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %s", c.Cooldown)
	}
	if c.MinSuccess < 0 || c.MinSuccess > 1 {
		return fmt.Errorf("min-success must be between 0 and 1, got %v", c.MinSuccess)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("log-format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// Plan turns the sweep settings into a sweep plan.
func (c Config) Plan() sweep.Plan {
	return sweep.Plan{
		Start:            c.Start,
		Max:              c.Max,
		Step:             c.Step,
		RequestsPerRound: c.Requests,
	}
}

// PeakConcurrency is the highest number of requests the run will put in flight.
func (c Config) PeakConcurrency() int {
	if !c.FindOptimal {
		return c.Concurrency
	}
	if peak := c.Plan().Peak(); peak > 0 {
		return peak
	}
	return c.Start
}
