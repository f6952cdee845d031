// Package config loads and validates the FactoryConfig TOML
// configuration: the wiring knobs (paths, timeouts, retry counts) a
// process needs to assemble a Master Controller. It never encodes Spec
// content — specs are submitted at run time, not configured at process
// start.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like
// "60s" or "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the FactoryConfig: every wiring knob a factory process needs
// to assemble a Master Controller, nested one table per concern.
type Config struct {
	General           General           `toml:"general"`
	Pipeline          PipelineConfig    `toml:"pipeline"`
	ConsequenceMemory ConsequenceMemory `toml:"consequence_memory"`
}

// General holds the knobs shared by every run: where run state and the
// evidence chain persist, how many times a worker dispatch retries on
// exception, and the per-stage dispatch deadline.
type General struct {
	PersistDir     string   `toml:"persist_dir"`
	MaxRetries     int      `toml:"max_retries"`
	WorkerTimeout  Duration `toml:"worker_timeout"`
	RetryBackoffBase Duration `toml:"retry_backoff_base"`
	RetryBackoffMax  Duration `toml:"retry_backoff_max"`
	LogLevel       string   `toml:"log_level"`
}

// PipelineInsert names one extra stage to splice into
// pipeline.DefaultFactory1's nine-stage DAG, attached immediately after
// an existing stage. The inserted stage runs Worker and is guarded by Gate
// when one is set; an empty Gate leaves the stage without a gate.
type PipelineInsert struct {
	New      string   `toml:"new"`
	After    string   `toml:"after"`
	Worker   string   `toml:"worker"`
	Gate     string   `toml:"gate"`
	Requires []string `toml:"requires"`
	Produces []string `toml:"produces"`
}

// PipelineConfig optionally extends the default pipeline with inserted
// stages. An empty Insert list means the default nine-stage pipeline runs
// unmodified.
type PipelineConfig struct {
	Insert []PipelineInsert `toml:"insert"`
}

// ConsequenceMemory configures the on-disk NDJSON record store and its
// optional periodic decay schedule.
type ConsequenceMemory struct {
	Path          string   `toml:"path"`
	DecayInterval Duration `toml:"decay_interval"`
	DecayAmount   float64  `toml:"decay_amount"`
}

// Clone returns a deep copy of cfg so callers can safely mutate the
// result (mirrors the teacher's RWMutexManager-facing Clone pattern).
func (cfg *Config) Clone() *Config {
	if cfg == nil {
		return nil
	}
	cloned := *cfg
	cloned.Pipeline.Insert = cloneInserts(cfg.Pipeline.Insert)
	return &cloned
}

func cloneInserts(in []PipelineInsert) []PipelineInsert {
	if in == nil {
		return nil
	}
	out := make([]PipelineInsert, len(in))
	for i, ins := range in {
		out[i] = ins
		out[i].Requires = cloneStringSlice(ins.Requires)
		out[i].Produces = cloneStringSlice(ins.Produces)
	}
	return out
}

func cloneStringSlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func applyDefaults(cfg *Config, md toml.MetaData) {
	if !md.IsDefined("general", "persist_dir") || cfg.General.PersistDir == "" {
		cfg.General.PersistDir = "./runs"
	}
	if !md.IsDefined("general", "max_retries") {
		cfg.General.MaxRetries = 3
	}
	if !md.IsDefined("general", "worker_timeout") || cfg.General.WorkerTimeout.Duration == 0 {
		cfg.General.WorkerTimeout = Duration{5 * time.Minute}
	}
	if !md.IsDefined("general", "retry_backoff_base") || cfg.General.RetryBackoffBase.Duration == 0 {
		cfg.General.RetryBackoffBase = Duration{500 * time.Millisecond}
	}
	if !md.IsDefined("general", "retry_backoff_max") || cfg.General.RetryBackoffMax.Duration == 0 {
		cfg.General.RetryBackoffMax = Duration{30 * time.Second}
	}
	if !md.IsDefined("general", "log_level") || cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if !md.IsDefined("consequence_memory", "path") || cfg.ConsequenceMemory.Path == "" {
		cfg.ConsequenceMemory.Path = "./consequence-memory.ndjson"
	}
	if !md.IsDefined("consequence_memory", "decay_interval") || cfg.ConsequenceMemory.DecayInterval.Duration == 0 {
		cfg.ConsequenceMemory.DecayInterval = Duration{24 * time.Hour}
	}
	if !md.IsDefined("consequence_memory", "decay_amount") {
		cfg.ConsequenceMemory.DecayAmount = 0.05
	}
}

func normalizePaths(cfg *Config) {
	cfg.General.PersistDir = filepath.Clean(cfg.General.PersistDir)
	cfg.ConsequenceMemory.Path = filepath.Clean(cfg.ConsequenceMemory.Path)
}

// validate checks the wiring-knob invariants Load and Reload both enforce.
func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.General.PersistDir) == "" {
		return fmt.Errorf("general.persist_dir is required")
	}
	if cfg.General.MaxRetries < 1 {
		return fmt.Errorf("general.max_retries must be >= 1, got %d", cfg.General.MaxRetries)
	}
	if cfg.General.WorkerTimeout.Duration <= 0 {
		return fmt.Errorf("general.worker_timeout must be positive")
	}
	if cfg.ConsequenceMemory.DecayAmount < 0 || cfg.ConsequenceMemory.DecayAmount > 1 {
		return fmt.Errorf("consequence_memory.decay_amount must be within [0,1], got %f", cfg.ConsequenceMemory.DecayAmount)
	}
	for _, ins := range cfg.Pipeline.Insert {
		if strings.TrimSpace(ins.New) == "" {
			return fmt.Errorf("pipeline.insert: new is required")
		}
		if strings.TrimSpace(ins.After) == "" {
			return fmt.Errorf("pipeline.insert %q: after is required", ins.New)
		}
		if strings.TrimSpace(ins.Worker) == "" {
			return fmt.Errorf("pipeline.insert %q: worker is required", ins.New)
		}
	}
	return nil
}

// Load reads and validates a FactoryConfig TOML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&cfg, md)
	normalizePaths(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Reload reads and validates a FactoryConfig TOML file. It mirrors Load
// but is named separately to reflect runtime refresh call sites.
func Reload(path string) (*Config, error) {
	return Load(path)
}

// LoadManager reads config from path and returns an RWMutex-backed
// thread-safe manager.
func LoadManager(path string) (ConfigManager, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}

	cfg, err := Reload(path)
	if err != nil {
		return nil, err
	}
	return NewRWMutexManager(cfg), nil
}
