// Package config loads pipeline settings from a YAML file, a .env file, and
// COHORTMATCH_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COHORTMATCH_"

// Config holds pipeline settings.
type Config struct {
	APIBaseURL        string        `yaml:"api_base_url"`
	CacheDir          string        `yaml:"cache_dir"`
	MHSubredditsFile  string        `yaml:"mh_subreddits_file"`
	MHPatternsFile    string        `yaml:"mh_patterns_file"`
	ControlsPerUser   int           `yaml:"controls_per_diagnosed"`
	BatchSize         int           `yaml:"control_batch_size"`
	MinControlPosts   int           `yaml:"min_control_posts"`
	MinDiagnosedPosts int           `yaml:"minimum_posts_per_diagnosed_user"`
	Workers           int           `yaml:"workers"`
	CandidateWorkers  int           `yaml:"candidate_workers"`
	SubredditLimit    int           `yaml:"subreddit_post_limit"`
	MinWords          int           `yaml:"min_words"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		APIBaseURL:        "https://arctic-shift.photon-reddit.com",
		MHSubredditsFile:  "mh_subreddits.txt",
		MHPatternsFile:    "mh_patterns.txt",
		ControlsPerUser:   9,
		BatchSize:         50,
		MinControlPosts:   50,
		MinDiagnosedPosts: 30,
		Workers:           8,
		CandidateWorkers:  10,
		SubredditLimit:    100,
		MinWords:          10,
		RequestsPerSecond: 2,
		CacheTTL:          72 * time.Hour,
	}
}

// Load reads settings. An empty path uses the defaults; a missing .env is ignored.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env is optional

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"API_BASE_URL":       &c.APIBaseURL,
		"CACHE_DIR":          &c.CacheDir,
		"MH_SUBREDDITS_FILE": &c.MHSubredditsFile,
		"MH_PATTERNS_FILE":   &c.MHPatternsFile,
	}
	for k, p := range strs {
		if v := os.Getenv(EnvPrefix + k); v != "" {
			*p = v
		}
	}

	ints := map[string]*int{
		"CONTROLS_PER_DIAGNOSED":           &c.ControlsPerUser,
		"CONTROL_BATCH_SIZE":               &c.BatchSize,
		"MIN_CONTROL_POSTS":                &c.MinControlPosts,
		"MINIMUM_POSTS_PER_DIAGNOSED_USER": &c.MinDiagnosedPosts,
		"WORKERS":                          &c.Workers,
		"CANDIDATE_WORKERS":                &c.CandidateWorkers,
		"SUBREDDIT_POST_LIMIT":             &c.SubredditLimit,
		"MIN_WORDS":                        &c.MinWords,
	}
	for k, p := range ints {
		v := os.Getenv(EnvPrefix + k)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, k, err)
		}
		*p = n
	}

	if v := os.Getenv(EnvPrefix + "REQUESTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sREQUESTS_PER_SECOND: %w", EnvPrefix, err)
		}
		c.RequestsPerSecond = f
	}
	if v := os.Getenv(EnvPrefix + "CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sCACHE_TTL: %w", EnvPrefix, err)
		}
		c.CacheTTL = d
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.APIBaseURL == "" {
		errs = append(errs, errors.New("api_base_url is empty"))
	}
	positive := []struct {
		name string
		v    int
	}{
		{"controls_per_diagnosed", c.ControlsPerUser},
		{"control_batch_size", c.BatchSize},
		{"min_control_posts", c.MinControlPosts},
		{"workers", c.Workers},
		{"candidate_workers", c.CandidateWorkers},
		{"subreddit_post_limit", c.SubredditLimit},
	}
	for _, p := range positive {
		if p.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.name, p.v))
		}
	}
	if c.MinDiagnosedPosts < 0 || c.MinWords < 0 {
		errs = append(errs, errors.New("minimum_posts_per_diagnosed_user and min_words must not be negative"))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests_per_second must not be negative, got %v", c.RequestsPerSecond))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("cache_ttl must not be negative, got %v", c.CacheTTL))
	}
	return errors.Join(errs...)
}
