package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	perrors "github.com/randalmurphal/paperflow/pkg/paperflow/errors"
)

// Environment variables that override file settings.
const (
	// EnvConfig names the settings file Load reads when given no path.
	EnvConfig       = "PAPERFLOW_CONFIG"
	EnvModel        = "PAPERFLOW_MODEL"
	EnvClaudePath   = "PAPERFLOW_CLAUDE_PATH"
	EnvOTLPEndpoint = "PAPERFLOW_OTLP_ENDPOINT"
	EnvStorePath    = "PAPERFLOW_STORE_PATH"
)

// Settings is the typed application configuration.
type Settings struct {
	LLM       LLMSettings
	Arxiv     ArxivSettings
	Pipeline  PipelineSettings
	Store     StoreSettings
	Log       LogSettings
	Telemetry TelemetrySettings
}

// LLMSettings configures the text-generation client.
type LLMSettings struct {
	Model      string
	ClaudePath string
	Timeout    time.Duration
	// RPS and Burst pace calls. RPS <= 0 disables pacing.
	RPS   float64
	Burst int
}

// ArxivSettings configures the search collaborator.
type ArxivSettings struct {
	BaseURL          string
	MaxResults       int
	MaxPapers        int
	RPS              float64
	SimhashThreshold int
}

// PipelineSettings tunes stage behaviour.
type PipelineSettings struct {
	ReadConcurrency    int
	AnalyzeConcurrency int
	MaxRetrievalRounds int
	RetrievalK         int
	ApprovalMarker     string
	MaxIterations      int
	Retry              perrors.RetryConfig
}

// StoreSettings locates persistent state. Empty paths select in-memory
// stores.
type StoreSettings struct {
	DocumentsPath   string
	CheckpointsPath string
}

// LogSettings selects the slog handler.
type LogSettings struct {
	Level  string
	Format string
}

// TelemetrySettings configures OTLP export. An empty endpoint disables it.
type TelemetrySettings struct {
	OTLPEndpoint string
	ServiceName  string
	Insecure     bool
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		LLM: LLMSettings{
			ClaudePath: "claude",
			Timeout:    5 * time.Minute,
			RPS:        2,
			Burst:      4,
		},
		Arxiv: ArxivSettings{
			BaseURL:          "https://export.arxiv.org/api/query",
			MaxResults:       50,
			MaxPapers:        50,
			RPS:              1.0 / 3,
			SimhashThreshold: 3,
		},
		Pipeline: PipelineSettings{
			ReadConcurrency:    4,
			AnalyzeConcurrency: 4,
			MaxRetrievalRounds: 3,
			RetrievalK:         5,
			ApprovalMarker:     "APPROVED",
			MaxIterations:      100,
			Retry:              perrors.DefaultRetry,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetrySettings{
			ServiceName: "paperflow",
		},
	}
}

// sections are the top-level keys a settings file may hold.
var sections = []string{"arxiv", "llm", "log", "pipeline", "store", "telemetry"}

// Load reads path, or the file named by PAPERFLOW_CONFIG when path is
// empty, fills defaults, applies environment overrides and validates the
// result. Without either file the defaults are used.
func Load(path string) (Settings, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Settings, error) {
	if path == "" {
		path, _ = lookup(EnvConfig)
	}

	cfg := New(nil)
	if path != "" {
		var err error
		cfg, err = ReadFile(path)
		if err != nil {
			return Settings{}, err
		}
	}

	s := FromConfig(cfg)
	s.applyEnv(lookup)
	if err := errors.Join(checkSections(cfg), s.Validate()); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ReadFile decodes a settings file. The extension picks the format:
// .yaml and .yml for YAML, .json for JSON.
func ReadFile(path string) (Config, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "yml" {
		format = "yaml"
	}
	if format != "yaml" && format != "json" {
		return Config{}, fmt.Errorf("settings file %s: unsupported format %q", path, format)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read settings file: %w", err)
	}
	cfg, err := Decode(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("settings file %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses a settings document in format "yaml" or "json". An empty
// document decodes to an empty Config.
func Decode(data []byte, format string) (Config, error) {
	var m map[string]any
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	case "json":
		if len(strings.TrimSpace(string(data))) == 0 {
			break
		}
		if err := json.Unmarshal(data, &m); err != nil {
			return Config{}, fmt.Errorf("parse json: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported format %q", format)
	}
	return New(m), nil
}

// checkSections rejects top-level keys no setting reads, which are
// usually typos that would otherwise be ignored silently.
func checkSections(cfg Config) error {
	var unknown []string
	for key := range cfg.Raw() {
		if !slices.Contains(sections, key) {
			unknown = append(unknown, key)
		}
	}
	slices.Sort(unknown)

	errs := make([]error, len(unknown))
	for i, key := range unknown {
		errs[i] = &perrors.ValidationError{
			Field:   key,
			Message: fmt.Sprintf("unknown section (want one of %s)", strings.Join(sections, ", ")),
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds Settings from cfg on top of Defaults.
func FromConfig(cfg Config) Settings {
	d := Defaults()

	llm := cfg.Sub("llm")
	arxiv := cfg.Sub("arxiv")
	pipe := cfg.Sub("pipeline")
	retry := pipe.Sub("retry")
	store := cfg.Sub("store")
	logCfg := cfg.Sub("log")
	tel := cfg.Sub("telemetry")

	return Settings{
		LLM: LLMSettings{
			Model:      llm.String("model", d.LLM.Model),
			ClaudePath: llm.String("claude_path", d.LLM.ClaudePath),
			Timeout:    llm.Duration("timeout", d.LLM.Timeout),
			RPS:        llm.Float("rps", d.LLM.RPS),
			Burst:      llm.Int("burst", d.LLM.Burst),
		},
		Arxiv: ArxivSettings{
			BaseURL:          arxiv.String("base_url", d.Arxiv.BaseURL),
			MaxResults:       arxiv.Int("max_results", d.Arxiv.MaxResults),
			MaxPapers:        arxiv.Int("max_papers", d.Arxiv.MaxPapers),
			RPS:              arxiv.Float("rps", d.Arxiv.RPS),
			SimhashThreshold: arxiv.Int("simhash_threshold", d.Arxiv.SimhashThreshold),
		},
		Pipeline: PipelineSettings{
			ReadConcurrency:    pipe.Int("read_concurrency", d.Pipeline.ReadConcurrency),
			AnalyzeConcurrency: pipe.Int("analyze_concurrency", d.Pipeline.AnalyzeConcurrency),
			MaxRetrievalRounds: pipe.Int("max_retrieval_rounds", d.Pipeline.MaxRetrievalRounds),
			RetrievalK:         pipe.Int("retrieval_k", d.Pipeline.RetrievalK),
			ApprovalMarker:     pipe.String("approval_marker", d.Pipeline.ApprovalMarker),
			MaxIterations:      pipe.Int("max_iterations", d.Pipeline.MaxIterations),
			Retry: perrors.RetryConfig{
				MaxAttempts:    retry.Int("max_attempts", d.Pipeline.Retry.MaxAttempts),
				InitialBackoff: retry.Duration("initial_backoff", d.Pipeline.Retry.InitialBackoff),
				MaxBackoff:     retry.Duration("max_backoff", d.Pipeline.Retry.MaxBackoff),
				BackoffFactor:  retry.Float("backoff_factor", d.Pipeline.Retry.BackoffFactor),
				Jitter:         retry.Float("jitter", d.Pipeline.Retry.Jitter),
			},
		},
		Store: StoreSettings{
			DocumentsPath:   store.String("documents_path", d.Store.DocumentsPath),
			CheckpointsPath: store.String("checkpoints_path", d.Store.CheckpointsPath),
		},
		Log: LogSettings{
			Level:  logCfg.String("level", d.Log.Level),
			Format: logCfg.String("format", d.Log.Format),
		},
		Telemetry: TelemetrySettings{
			OTLPEndpoint: tel.String("otlp_endpoint", d.Telemetry.OTLPEndpoint),
			ServiceName:  tel.String("service_name", d.Telemetry.ServiceName),
			Insecure:     tel.Bool("insecure", d.Telemetry.Insecure),
		},
	}
}

func (s *Settings) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvModel); ok && v != "" {
		s.LLM.Model = v
	}
	if v, ok := lookup(EnvClaudePath); ok && v != "" {
		s.LLM.ClaudePath = v
	}
	if v, ok := lookup(EnvOTLPEndpoint); ok && v != "" {
		s.Telemetry.OTLPEndpoint = v
	}
	if v, ok := lookup(EnvStorePath); ok && v != "" {
		s.Store.DocumentsPath = v
	}
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	check := func(ok bool, field, msg string) {
		if !ok {
			errs = append(errs, &perrors.ValidationError{Field: field, Message: msg})
		}
	}

	check(s.LLM.ClaudePath != "", "llm.claude_path", "must not be empty")
	check(s.LLM.Timeout >= 0, "llm.timeout", "must not be negative")
	check(s.Arxiv.MaxPapers > 0, "arxiv.max_papers", "must be positive")
	check(s.Arxiv.MaxResults > 0, "arxiv.max_results", "must be positive")
	check(s.Pipeline.ReadConcurrency >= 0, "pipeline.read_concurrency", "must not be negative")
	check(s.Pipeline.AnalyzeConcurrency >= 0, "pipeline.analyze_concurrency", "must not be negative")
	check(s.Pipeline.MaxRetrievalRounds >= 0, "pipeline.max_retrieval_rounds", "must not be negative")
	check(strings.TrimSpace(s.Pipeline.ApprovalMarker) != "", "pipeline.approval_marker", "must not be empty")
	check(s.Pipeline.MaxIterations > 0, "pipeline.max_iterations", "must be positive")
	check(s.Pipeline.Retry.MaxAttempts > 0, "pipeline.retry.max_attempts", "must be positive")
	check(s.Pipeline.Retry.BackoffFactor >= 1, "pipeline.retry.backoff_factor", "must be at least 1")

	switch strings.ToLower(s.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &perrors.ValidationError{Field: "log.level", Message: fmt.Sprintf("unknown level %q", s.Log.Level)})
	}
	switch s.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, &perrors.ValidationError{Field: "log.format", Message: fmt.Sprintf("unknown format %q", s.Log.Format)})
	}

	return errors.Join(errs...)
}
