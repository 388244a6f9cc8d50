package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"dario.cat/mergo"
	"github.com/robfig/cron/v3"
	"github.com/titanous/json5"

	"dataeng/internal/dbclient"
	"dataeng/internal/etl"
	"dataeng/internal/secret"
)

// DefaultPath is where the CLI looks for pipeline definitions.
const DefaultPath = "configs/pipelines.json5"

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultHistoryPath = "data/runs.db"
)

// Config is the root of a pipelines file.
type Config struct {
	// Stores are the named relational stores pipelines load into.
	Stores       map[string]dbclient.ConnectionConfig `json:"stores,omitempty"`
	DefaultStore string                               `json:"defaultStore,omitempty"`

	// History is the sqlite file run history is kept in. "-" disables it.
	History string `json:"history,omitempty"`

	HTTPTimeout string `json:"httpTimeout,omitempty"` // Go duration, default 30s
	RunTimeout  string `json:"runTimeout,omitempty"`  // Go duration, default none

	Pipelines []etl.Pipeline `json:"pipelines"`

	// Secrets resolves store password references. Nil uses the env and
	// keychain stores.
	Secrets *secret.Resolver `json:"-"`
}

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// Read loads name and merges <name>.local.<ext> over it when present.
// It returns os.ErrNotExist when neither file exists.
func Read(name string) (*Config, error) {
	var out Config
	allNotFound := true

	dirname := filepath.Dir(name)
	prefixname, ext := splitExt(filepath.Base(name))

	defaultFile, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if len(defaultFile) > 0 {
		if err := json5.Unmarshal(defaultFile, &out); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		allNotFound = false
	}

	localFilepath := filepath.Join(dirname, fmt.Sprintf("%s.local.%s", prefixname, ext))
	localFile, err := os.ReadFile(localFilepath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if len(localFile) > 0 {
		var override Config
		if err := json5.Unmarshal(localFile, &override); err != nil {
			return nil, fmt.Errorf("parse %s: %w", localFilepath, err)
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge %s: %w", localFilepath, err)
		}
		slog.Info("merging config with local overrides", "local", localFilepath)
		allNotFound = false
	}

	if allNotFound {
		return nil, os.ErrNotExist
	}
	return &out, nil
}

// Load reads and validates name.
func Load(name string) (*Config, error) {
	cfg, err := Read(name)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every pipeline and returns all problems found.
func (c *Config) Validate() error {
	var errs []error
	if _, err := parseDuration(c.HTTPTimeout); err != nil {
		errs = append(errs, fmt.Errorf("httpTimeout: %w", err))
	}
	if _, err := parseDuration(c.RunTimeout); err != nil {
		errs = append(errs, fmt.Errorf("runTimeout: %w", err))
	}
	if c.DefaultStore != "" {
		if _, ok := c.Stores[c.DefaultStore]; !ok {
			errs = append(errs, fmt.Errorf("defaultStore: unknown store %q", c.DefaultStore))
		}
	}

	seen := make(map[string]bool, len(c.Pipelines))
	for i := range c.Pipelines {
		p := &c.Pipelines[i]
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("pipelines[%d]: name is required", i))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("pipeline %s: duplicate name", p.Name))
		}
		seen[p.Name] = true
		for _, err := range c.validatePipeline(p) {
			errs = append(errs, fmt.Errorf("pipeline %s: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validatePipeline(p *etl.Pipeline) []error {
	var errs []error
	if len(p.Sources) == 0 {
		errs = append(errs, errors.New("at least one source is required"))
	}
	for i, s := range p.Sources {
		if _, err := etl.GetSource(s.Type); err != nil {
			errs = append(errs, fmt.Errorf("sources[%d]: %w", i, err))
		}
		if !s.Admission.Valid() {
			errs = append(errs, fmt.Errorf("sources[%d]: invalid admission policy %q", i, s.Admission))
		}
	}
	if p.Rates != nil && p.Rates.Location == "" {
		errs = append(errs, errors.New("rates: location is required"))
	}

	needsStore := len(p.Queries) > 0
	for i, s := range p.Sinks {
		switch s.Type {
		case "csv":
			if s.Path == "" {
				errs = append(errs, fmt.Errorf("sinks[%d]: csv sink needs a path", i))
			}
		case "sql":
			needsStore = true
			if s.Table == "" {
				errs = append(errs, fmt.Errorf("sinks[%d]: sql sink needs a table", i))
			}
			if s.Mode != "" && s.Mode != etl.SyncReplace && s.Mode != etl.SyncAppend {
				errs = append(errs, fmt.Errorf("sinks[%d]: invalid mode %q", i, s.Mode))
			}
		default:
			errs = append(errs, fmt.Errorf("sinks[%d]: unknown sink type %q", i, s.Type))
		}
	}
	if p.Store != "" {
		if _, ok := c.Stores[p.Store]; !ok {
			errs = append(errs, fmt.Errorf("unknown store %q", p.Store))
		}
	} else if needsStore && c.storeName(p) == "" {
		errs = append(errs, errors.New("sql sinks or queries need a store"))
	}

	if p.Schedule != "" {
		if _, err := cron.ParseStandard(p.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid schedule %q: %w", p.Schedule, err))
		}
	}
	return errs
}

// storeName picks the store a pipeline uses: its own, the default, or the
// only one configured.
func (c *Config) storeName(p *etl.Pipeline) string {
	switch {
	case p.Store != "":
		return p.Store
	case c.DefaultStore != "":
		return c.DefaultStore
	case len(c.Stores) == 1:
		for name := range c.Stores {
			return name
		}
	}
	return ""
}

// StoreNames returns the configured store names, sorted.
func (c *Config) StoreNames() []string {
	names := make([]string, 0, len(c.Stores))
	for name := range c.Stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StoreOpener resolves the relational store of p. A pipeline with no store
// gets a nil opener. Environment variables in the DSN and password are
// expanded and a password secret is resolved.
func (c *Config) StoreOpener(p *etl.Pipeline) (etl.StoreOpener, error) {
	name := c.storeName(p)
	if name == "" {
		return nil, nil
	}
	conn, ok := c.Stores[name]
	if !ok {
		return nil, fmt.Errorf("unknown store %q", name)
	}
	conn.DSN = os.ExpandEnv(conn.DSN)
	conn.Password = os.ExpandEnv(conn.Password)
	if conn.PasswordSecret != "" {
		resolver := c.Secrets
		if resolver == nil {
			resolver = secret.NewResolver()
		}
		password, err := resolver.Resolve(conn.PasswordSecret)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", name, err)
		}
		conn.Password = password
	}
	return dbclient.Opener(conn), nil
}

// HTTPTimeoutDuration returns the remote fetch timeout.
func (c *Config) HTTPTimeoutDuration() time.Duration {
	d, err := parseDuration(c.HTTPTimeout)
	if err != nil || d == 0 {
		return defaultHTTPTimeout
	}
	return d
}

// RunTimeoutDuration returns the per-run timeout; zero means none.
func (c *Config) RunTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.RunTimeout)
	return d
}

// HistoryPath returns the run history database, or "" when disabled.
func (c *Config) HistoryPath() string {
	switch c.History {
	case "-":
		return ""
	case "":
		return defaultHistoryPath
	}
	return c.History
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
